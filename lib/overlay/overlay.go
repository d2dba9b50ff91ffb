// Package overlay unpacks a recipe's file overlay onto a mounted image
// root. Overlays are tar.gz archives supplied by the surrounding
// application; they are treated as untrusted input because a recipe file
// must not be able to write outside the image tree.
package overlay

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrOverlayTooLarge is returned when unpacked content exceeds the size limit
	ErrOverlayTooLarge = errors.New("overlay content exceeds size limit")

	// ErrInvalidOverlayPath is returned when an archive entry would escape the root
	ErrInvalidOverlayPath = errors.New("invalid overlay path")
)

// DefaultMaxBytes bounds an unpacked overlay; recipes ship config files and
// scripts, not payloads.
const DefaultMaxBytes = 256 << 20

// Apply unpacks the tar.gz overlay at path over root, returning the number
// of file bytes written. Entries escaping root, absolute symlink targets and
// content beyond maxBytes all abort the unpack.
func Apply(path, root string, maxBytes int64) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open overlay: %w", err)
	}
	defer f.Close()
	return unpack(f, root, maxBytes)
}

func unpack(r io.Reader, root string, maxBytes int64) (int64, error) {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("overlay gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	var written int64

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return written, fmt.Errorf("read overlay entry: %w", err)
		}

		target, err := securePath(root, header.Name)
		if err != nil {
			return written, err
		}
		if written+header.Size > maxBytes {
			return written, fmt.Errorf("%w: would exceed %d bytes", ErrOverlayTooLarge, maxBytes)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(header.Mode)); err != nil {
				return written, fmt.Errorf("overlay dir %s: %w", header.Name, err)
			}

		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return written, fmt.Errorf("overlay parent dir: %w", err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode))
			if err != nil {
				return written, fmt.Errorf("overlay file %s: %w", header.Name, err)
			}
			// LimitReader as a second guard; +1 detects overflow.
			n, err := io.Copy(out, io.LimitReader(tr, maxBytes-written+1))
			out.Close()
			if err != nil {
				return written, fmt.Errorf("write overlay file %s: %w", header.Name, err)
			}
			written += n
			if written > maxBytes {
				return written, fmt.Errorf("%w: exceeded %d bytes", ErrOverlayTooLarge, maxBytes)
			}

		case tar.TypeSymlink:
			if filepath.IsAbs(header.Linkname) {
				return written, fmt.Errorf("%w: absolute symlink target", ErrInvalidOverlayPath)
			}
			resolved := filepath.Clean(filepath.Join(filepath.Dir(target), header.Linkname))
			if !within(root, resolved) {
				return written, fmt.Errorf("%w: symlink escapes root", ErrInvalidOverlayPath)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return written, fmt.Errorf("overlay parent dir: %w", err)
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return written, fmt.Errorf("overlay symlink %s: %w", header.Name, err)
			}

		default:
			// Devices, fifos etc. have no business in a recipe overlay.
			continue
		}
	}

	return written, nil
}

// securePath validates an archive entry name and maps it under root.
func securePath(root, name string) (string, error) {
	name = filepath.Clean(name)
	if filepath.IsAbs(name) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %s", ErrInvalidOverlayPath, name)
	}
	target := filepath.Join(root, name)
	if !within(root, target) {
		return "", fmt.Errorf("%w: %s", ErrInvalidOverlayPath, name)
	}
	return target, nil
}

func within(root, path string) bool {
	root = filepath.Clean(root)
	path = filepath.Clean(path)
	return path == root || strings.HasPrefix(path, root+string(os.PathSeparator))
}
