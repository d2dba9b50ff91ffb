package overlay

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeOverlay creates a tar.gz on disk with the given files.
func writeOverlay(t *testing.T, files map[string][]byte) string {
	t.Helper()

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(content))}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())

	path := filepath.Join(t.TempDir(), "overlay.tar.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func TestApply_UnpacksOverRoot(t *testing.T) {
	path := writeOverlay(t, map[string][]byte{
		"etc/hostname":            []byte("slate\n"),
		"etc/cloud/cloud.cfg.d/x": []byte("datasource_list: [ None ]\n"),
	})

	root := t.TempDir()
	written, err := Apply(path, root, DefaultMaxBytes)
	require.NoError(t, err)
	assert.Equal(t, int64(len("slate\n")+len("datasource_list: [ None ]\n")), written)

	content, err := os.ReadFile(filepath.Join(root, "etc/hostname"))
	require.NoError(t, err)
	assert.Equal(t, "slate\n", string(content))
}

func TestApply_RejectsEscapingPaths(t *testing.T) {
	path := writeOverlay(t, map[string][]byte{
		"../outside": []byte("nope"),
	})

	root := t.TempDir()
	_, err := Apply(path, root, DefaultMaxBytes)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidOverlayPath)

	_, statErr := os.Stat(filepath.Join(filepath.Dir(root), "outside"))
	assert.True(t, os.IsNotExist(statErr), "escaping file must not be created")
}

func TestApply_SizeLimit(t *testing.T) {
	path := writeOverlay(t, map[string][]byte{
		"big": bytes.Repeat([]byte("x"), 4096),
	})

	_, err := Apply(path, t.TempDir(), 1024)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOverlayTooLarge)
}

func TestApply_RejectsAbsoluteSymlink(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "etc/link",
		Typeflag: tar.TypeSymlink,
		Linkname: "/etc/shadow",
		Mode:     0777,
	}))
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())

	path := filepath.Join(t.TempDir(), "overlay.tar.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	_, err := Apply(path, t.TempDir(), DefaultMaxBytes)
	assert.ErrorIs(t, err, ErrInvalidOverlayPath)
}
