// Package build sequences a whole image build: one base image, then one
// derived variant per declared recipe, with an unconditional cleanup
// guarantee. The design assumes exactly one build in flight per host; the
// loop-device table and mount namespace are process-wide and nothing here
// locks against concurrent invocations.
package build

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/c2h5oh/datasize"

	"github.com/slatelinux/forge/lib/console"
	"github.com/slatelinux/forge/lib/guest"
	"github.com/slatelinux/forge/lib/recipe"
	"github.com/slatelinux/forge/lib/vm"
)

// Builder drives one build end to end.
type Builder struct {
	Registry     *recipe.Registry
	Bootstrapper Bootstrapper
	Installer    PackageInstaller
	Logger       *slog.Logger
	Metrics      *Metrics

	// ConsoleEcho receives a live mirror of the guest console in remote
	// mode. Nil disables the mirror.
	ConsoleEcho io.Writer
}

// New assembles a builder.
func New(reg *recipe.Registry, bootstrapper Bootstrapper, installer PackageInstaller, logger *slog.Logger, metrics *Metrics) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		Registry:     reg,
		Bootstrapper: bootstrapper,
		Installer:    installer,
		Logger:       logger,
		Metrics:      metrics,
	}
}

// Run executes the pipeline on the host: privilege check, disk setup, base
// build, then each declared variant in registration order. Cleanup runs on
// every exit path; an interrupt cancels ctx, the failing step returns, and
// the deferred cleanup still releases bindings, unmounts and removes the
// working directory.
func (b *Builder) Run(ctx context.Context, buildID string, paths Paths) (*Manifest, error) {
	if err := RequireRoot(); err != nil {
		return nil, err
	}

	id := NewBuildID(buildID, b.Logger)
	sess, err := NewSession(id, paths, b.Logger)
	if err != nil {
		return nil, fmt.Errorf("create build session: %w", err)
	}
	defer sess.Cleanup(context.WithoutCancel(ctx))

	baseRec, baseHooks, err := b.Registry.Base()
	if err != nil {
		return nil, err
	}

	basePath, err := b.buildBase(ctx, sess, baseRec, baseHooks)
	if err != nil {
		return nil, fmt.Errorf("base build: %w", err)
	}
	baseInfo, err := os.Stat(basePath)
	if err != nil {
		return nil, fmt.Errorf("stat base: %w", err)
	}

	manifest := &Manifest{
		BuildID:   id,
		CreatedAt: time.Now().UTC(),
		BaseSize:  baseInfo.Size(),
	}
	for _, rec := range b.Registry.Variants() {
		hooks, _ := b.Registry.Hooks(rec.Name)
		art, err := b.derive(ctx, sess, basePath, rec, hooks)
		if err != nil {
			return nil, fmt.Errorf("derive %s: %w", rec.Name, err)
		}
		info, err := os.Stat(art.ImagePath)
		if err != nil {
			return nil, fmt.Errorf("stat artifact: %w", err)
		}
		manifest.Artifacts = append(manifest.Artifacts, ManifestEntry{
			Recipe: rec.Name,
			File:   filepath.Base(art.ImagePath),
			SHA256: art.SHA256,
			Size:   info.Size(),
		})
	}

	if err := WriteManifest(paths.OutputDir, manifest); err != nil {
		return nil, err
	}
	b.Logger.Info("build complete", "build_id", id, "artifacts", len(manifest.Artifacts))
	return manifest, nil
}

// RemoteConfig parameterizes a build executed inside a throwaway VM.
type RemoteConfig struct {
	VM vm.Config

	// InputDir is copied into the guest as the build inputs.
	InputDir string

	// ScratchDisk is the guest-side device used as scratch space.
	// Defaults to /dev/vda.
	ScratchDisk string

	// ScratchSize is the size of the sparse scratch disk attached to the
	// VM. Defaults to 32 GiB.
	ScratchSize datasize.ByteSize

	// Tooling and BuildCommand parameterize the guest bootstrap sequence.
	Tooling      []string
	BuildCommand string

	// PerByteTimeout bounds each console byte wait.
	PerByteTimeout time.Duration
}

// RunRemote boots a scratch VM and drives the whole pipeline inside it over
// the serial console, collecting whatever the guest copied back to the
// shared directory. The guest runs asynchronously; the blocking per-byte
// expect is the only synchronization with it.
func (b *Builder) RunRemote(ctx context.Context, buildID string, paths Paths, cfg RemoteConfig) error {
	if err := RequireRoot(); err != nil {
		return err
	}

	id := NewBuildID(buildID, b.Logger)
	sess, err := NewSession(id, paths, b.Logger)
	if err != nil {
		return fmt.Errorf("create build session: %w", err)
	}
	defer sess.Cleanup(context.WithoutCancel(ctx))

	share := filepath.Join(paths.WorkDir, "share")
	for _, dir := range []string{filepath.Join(share, "in"), filepath.Join(share, "out")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create share dir: %w", err)
		}
	}
	if cfg.InputDir != "" {
		if err := copyTree(cfg.InputDir, filepath.Join(share, "in")); err != nil {
			return err
		}
	}

	scratchSize := cfg.ScratchSize
	if scratchSize == 0 {
		scratchSize = 32 * datasize.GB
	}
	scratchImg := filepath.Join(paths.WorkDir, "scratch.img")
	if err := createSparse(scratchImg, scratchSize); err != nil {
		return fmt.Errorf("create scratch disk: %w", err)
	}

	vmCfg := cfg.VM
	vmCfg.ShareDir = share
	if vmCfg.ShareTag == "" {
		vmCfg.ShareTag = "hostshare"
	}
	vmCfg.RuntimeDir = paths.WorkDir
	vmCfg.Disks = append(vmCfg.Disks, scratchImg)

	machine, err := vm.Start(ctx, vmCfg, b.Logger)
	if err != nil {
		return err
	}
	sess.Defer("stop vm", machine.Stop)

	opts := []console.Option{}
	if b.ConsoleEcho != nil {
		opts = append(opts, console.WithObserver(b.ConsoleEcho))
	}
	cons := console.NewSession(machine.Console(), machine.Console(), opts...)

	scratchDisk := cfg.ScratchDisk
	if scratchDisk == "" {
		scratchDisk = "/dev/vda"
	}
	script := guest.BuildScript(guest.BuildParams{
		ShareTag:     vmCfg.ShareTag,
		ScratchDisk:  scratchDisk,
		Tooling:      cfg.Tooling,
		BuildCommand: cfg.BuildCommand,
	})
	if err := script.Run(ctx, cons, cfg.PerByteTimeout); err != nil {
		return fmt.Errorf("remote build: %w", err)
	}
	if err := machine.Wait(ctx); err != nil {
		return fmt.Errorf("vm exit: %w", err)
	}

	// Collect what the guest copied out.
	entries, err := os.ReadDir(filepath.Join(share, "out"))
	if err != nil {
		return fmt.Errorf("read results: %w", err)
	}
	if err := os.MkdirAll(paths.OutputDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	for _, e := range entries {
		src := filepath.Join(share, "out", e.Name())
		if err := moveFile(src, filepath.Join(paths.OutputDir, e.Name())); err != nil {
			return err
		}
	}
	b.Logger.Info("remote build complete", "build_id", id, "results", len(entries))
	return nil
}

// createSparse makes a sparse file of the given size.
func createSparse(path string, size datasize.ByteSize) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := f.Truncate(int64(size.Bytes())); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// copyTree copies the regular files of src into dst, one level deep; build
// inputs are flat file sets.
func copyTree(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("read input dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(src, e.Name()))
		if err != nil {
			return fmt.Errorf("read input %s: %w", e.Name(), err)
		}
		if err := os.WriteFile(filepath.Join(dst, e.Name()), data, 0644); err != nil {
			return fmt.Errorf("copy input %s: %w", e.Name(), err)
		}
	}
	return nil
}
