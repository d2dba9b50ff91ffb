package build

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifest_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := &Manifest{
		BuildID:   "20260831.1200",
		CreatedAt: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC),
		BaseSize:  16 << 30,
		Artifacts: []ManifestEntry{
			{Recipe: "cloud", File: "slate-cloudimg-20260831.1200.qcow2", SHA256: "abc", Size: 999},
		},
	}

	require.NoError(t, WriteManifest(dir, m))

	got, err := ReadManifest(dir, "20260831.1200")
	require.NoError(t, err)
	assert.Equal(t, m, got)

	// No temp file left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "manifest-20260831.1200.json", entries[0].Name())
}

func TestWriteManifest_CreatesOutputDir(t *testing.T) {
	// A build with no variant artifacts writes the manifest before anything
	// else has created the output directory.
	dir := filepath.Join(t.TempDir(), "out")

	require.NoError(t, WriteManifest(dir, &Manifest{BuildID: "empty"}))

	_, err := ReadManifest(dir, "empty")
	assert.NoError(t, err)
}

func TestWriteManifest_CleansUpTempOnRenameFailure(t *testing.T) {
	dir := t.TempDir()
	// Occupy the final path with a directory so the rename fails.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "manifest-x.json"), 0755))

	err := WriteManifest(dir, &Manifest{BuildID: "x"})
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "manifest-x.json.tmp"))
	assert.True(t, os.IsNotExist(statErr))
}
