package build

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Paths are the directories one build works with. CacheDir is shared across
// builds (it is bind-mounted into image trees) and is therefore never
// removed by cleanup; everything under WorkDir is disposable.
type Paths struct {
	// WorkDir holds scratch images and mount points for this build only.
	WorkDir string

	// OutputDir receives the final artifacts.
	OutputDir string

	// CacheDir is the shared package download cache.
	CacheDir string
}

// MountRoot is where images get mounted during customization.
func (p Paths) MountRoot() string {
	return filepath.Join(p.WorkDir, "mnt")
}

// BasePath is the location of the reusable base image.
func (p Paths) BasePath() string {
	return filepath.Join(p.WorkDir, "base.img")
}

// Session carries the state of one build: identifier, directories, logger,
// and the cleanup stack. It replaces process-global state; every operation
// receives the session explicitly.
type Session struct {
	ID     string
	Paths  Paths
	Logger *slog.Logger

	mu         sync.Mutex
	cleanups   []cleanup
	removeWork bool
}

type cleanup struct {
	name string
	fn   func(context.Context) error
}

// NewSession creates a session and its working directory. Cleanup is armed
// from the first Defer on; the caller must invoke Cleanup on every exit
// path, including interruption.
func NewSession(id string, paths Paths, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{ID: id, Paths: paths, Logger: logger}

	if err := os.MkdirAll(paths.WorkDir, 0755); err != nil {
		return nil, err
	}
	// The working directory goes away last, after every mount and binding
	// inside it has been released.
	s.removeWork = true
	return s, nil
}

// Defer pushes a cleanup. Cleanups run in reverse order, each exactly once,
// and every one must tolerate already-clean state: the normal path releases
// resources eagerly and Cleanup runs the same functions again.
func (s *Session) Defer(name string, fn func(context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanups = append(s.cleanups, cleanup{name: name, fn: fn})
}

// Cleanup releases everything the build acquired, LIFO. Errors are logged,
// not returned: cleanup must keep going. Calling it twice is safe. The
// shared package cache is outside WorkDir and no cleanup ever touches it.
//
// The working directory is removed only after every step succeeded. A failed
// unmount or detach can leave live mounts under WorkDir, and removing it then
// would recurse through the bind mount into the shared cache.
func (s *Session) Cleanup(ctx context.Context) {
	s.mu.Lock()
	cleanups := s.cleanups
	s.cleanups = nil
	removeWork := s.removeWork
	s.removeWork = false
	s.mu.Unlock()

	failed := false
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i].fn(ctx); err != nil {
			failed = true
			s.Logger.Error("cleanup step failed", "step", cleanups[i].name, "error", err)
		}
	}

	if !removeWork {
		return
	}
	if failed {
		s.Logger.Warn("keeping working directory after failed cleanup step", "dir", s.Paths.WorkDir)
		return
	}
	if err := os.RemoveAll(s.Paths.WorkDir); err != nil {
		s.Logger.Error("remove workdir", "error", err)
	}
}

// NewBuildID returns the explicit identifier, or a date-based default with a
// warning: defaulted IDs make artifacts from repeated runs collide on name.
func NewBuildID(explicit string, logger *slog.Logger) string {
	if explicit != "" {
		return explicit
	}
	id := time.Now().Format("20060102.1504")
	if logger != nil {
		logger.Warn("no build id given, defaulting to date", "build_id", id)
	}
	return id
}

// RequireRoot refuses to proceed without elevated privilege. It runs before
// any resource is acquired.
func RequireRoot() error {
	if os.Geteuid() != 0 {
		return ErrNotRoot
	}
	return nil
}
