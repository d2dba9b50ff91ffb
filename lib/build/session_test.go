package build

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPaths(t *testing.T) Paths {
	t.Helper()
	base := t.TempDir()
	return Paths{
		WorkDir:   filepath.Join(base, "work"),
		OutputDir: filepath.Join(base, "out"),
		CacheDir:  filepath.Join(base, "cache"),
	}
}

func TestSession_CleanupRunsInReverseOrder(t *testing.T) {
	sess, err := NewSession("t1", testPaths(t), slog.Default())
	require.NoError(t, err)

	var order []string
	sess.Defer("first", func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	sess.Defer("second", func(context.Context) error {
		order = append(order, "second")
		return nil
	})

	sess.Cleanup(context.Background())
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestSession_CleanupIsIdempotent(t *testing.T) {
	sess, err := NewSession("t1", testPaths(t), slog.Default())
	require.NoError(t, err)

	count := 0
	sess.Defer("counter", func(context.Context) error {
		count++
		return nil
	})

	sess.Cleanup(context.Background())
	sess.Cleanup(context.Background())
	assert.Equal(t, 1, count, "cleanups must run exactly once")
}

func TestSession_CleanupRemovesWorkDirKeepsCache(t *testing.T) {
	paths := testPaths(t)
	require.NoError(t, os.MkdirAll(paths.CacheDir, 0755))
	cached := filepath.Join(paths.CacheDir, "pkg.tar.zst")
	require.NoError(t, os.WriteFile(cached, []byte("cached"), 0644))

	sess, err := NewSession("t1", paths, slog.Default())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(paths.WorkDir, "scratch.img"), []byte("x"), 0644))

	sess.Cleanup(context.Background())

	_, err = os.Stat(paths.WorkDir)
	assert.True(t, os.IsNotExist(err), "workdir must be removed")
	_, err = os.Stat(cached)
	assert.NoError(t, err, "shared package cache must survive cleanup")
}

func TestSession_CleanupKeepsGoingPastFailures(t *testing.T) {
	sess, err := NewSession("t1", testPaths(t), slog.Default())
	require.NoError(t, err)

	ran := false
	sess.Defer("runs anyway", func(context.Context) error {
		ran = true
		return nil
	})
	sess.Defer("fails", func(context.Context) error {
		return assert.AnError
	})

	sess.Cleanup(context.Background())
	assert.True(t, ran, "a failing cleanup must not stop the rest")
}

func TestSession_CleanupKeepsWorkDirAfterFailedStep(t *testing.T) {
	// A failed step can mean a mount is still live under the workdir;
	// removing it then would reach through the cache bind mount.
	paths := testPaths(t)
	sess, err := NewSession("t1", paths, slog.Default())
	require.NoError(t, err)
	keep := filepath.Join(paths.WorkDir, "still-mounted")
	require.NoError(t, os.WriteFile(keep, []byte("x"), 0644))

	sess.Defer("unmount", func(context.Context) error {
		return assert.AnError
	})

	sess.Cleanup(context.Background())

	_, err = os.Stat(keep)
	assert.NoError(t, err, "workdir must survive a failed cleanup step")
}

func TestNewBuildID(t *testing.T) {
	assert.Equal(t, "v42", NewBuildID("v42", slog.Default()))

	defaulted := NewBuildID("", slog.Default())
	assert.Regexp(t, regexp.MustCompile(`^\d{8}\.\d{4}$`), defaulted)
}

func TestRequireRoot(t *testing.T) {
	err := RequireRoot()
	if os.Geteuid() == 0 {
		assert.NoError(t, err)
	} else {
		assert.ErrorIs(t, err, ErrNotRoot)
	}
}
