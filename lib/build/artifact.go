package build

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// Artifact is one finished image with its sibling checksum file, immutable
// once emitted.
type Artifact struct {
	ImagePath    string
	ChecksumPath string
	SHA256       string
}

// WriteChecksum computes the sha256 of path and writes the sibling
// "<hex>  <name>" checksum file, sha256sum-compatible.
func WriteChecksum(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("hash artifact: %w", err)
	}
	sum := fmt.Sprintf("%x", h.Sum(nil))

	checksumPath := path + ".sha256"
	line := fmt.Sprintf("%s  %s\n", sum, filepath.Base(path))
	if err := os.WriteFile(checksumPath, []byte(line), 0644); err != nil {
		return nil, fmt.Errorf("write checksum: %w", err)
	}

	return &Artifact{ImagePath: path, ChecksumPath: checksumPath, SHA256: sum}, nil
}

// RestoreOwnership hands the artifact back to the invoking non-privileged
// user, when sudo tells us who that was. Without that information it does
// nothing.
func (a *Artifact) RestoreOwnership() error {
	uid, gid, ok := invokingUser()
	if !ok {
		return nil
	}
	for _, path := range []string{a.ImagePath, a.ChecksumPath} {
		if err := os.Chown(path, uid, gid); err != nil {
			return fmt.Errorf("chown %s: %w", path, err)
		}
	}
	return nil
}

// MoveTo relocates the artifact and its checksum into dir, updating the
// paths. Falls back to copy+remove across filesystems.
func (a *Artifact) MoveTo(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	for _, p := range []*string{&a.ImagePath, &a.ChecksumPath} {
		dst := filepath.Join(dir, filepath.Base(*p))
		if err := moveFile(*p, dst); err != nil {
			return err
		}
		*p = dst
	}
	return nil
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	// Cross-device: copy then remove.
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("move %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	return os.Remove(src)
}

// invokingUser recovers the pre-sudo identity from the environment.
func invokingUser() (uid, gid int, ok bool) {
	uidStr, gidStr := os.Getenv("SUDO_UID"), os.Getenv("SUDO_GID")
	if uidStr == "" || gidStr == "" {
		return 0, 0, false
	}
	uid, err := strconv.Atoi(uidStr)
	if err != nil {
		return 0, 0, false
	}
	gid, err = strconv.Atoi(gidStr)
	if err != nil {
		return 0, 0, false
	}
	return uid, gid, true
}
