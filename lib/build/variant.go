package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"

	"github.com/slatelinux/forge/lib/disk"
	"github.com/slatelinux/forge/lib/overlay"
	"github.com/slatelinux/forge/lib/recipe"
)

// presetPath is where enable directives land inside the image, relative to
// its root. systemd applies presets on first boot, so writing the file is
// equivalent to enabling the services, without running anything in the
// image.
const presetPath = "usr/lib/systemd/system-preset/90-forge.preset"

// derive clones the base image, customizes the clone for one recipe and
// emits the checksummed artifact. Any failing step aborts the whole
// derivation: a failed variant leaves no artifact behind.
func (b *Builder) derive(ctx context.Context, sess *Session, basePath string, rec recipe.Recipe, hooks recipe.Hooks) (art *Artifact, err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "failure"
		}
		b.Metrics.RecordDerivation(ctx, rec.Name, status, time.Since(start))
	}()

	sess.Logger.Info("deriving variant", "recipe", rec.Name)
	scratch := filepath.Join(sess.Paths.WorkDir, rec.Name+".img")

	if err := disk.Clone(ctx, basePath, scratch); err != nil {
		return nil, fmt.Errorf("clone base: %w", err)
	}

	grown := false
	if rec.Size > 0 {
		baseInfo, err := os.Stat(basePath)
		if err != nil {
			return nil, fmt.Errorf("stat base: %w", err)
		}
		if int64(rec.Size) < baseInfo.Size() {
			return nil, fmt.Errorf("size override %s smaller than base image (%s)",
				rec.Size.HR(), datasize.ByteSize(baseInfo.Size()).HR())
		}
		if int64(rec.Size) > baseInfo.Size() {
			if _, err := disk.Grow(ctx, scratch, rec.Size); err != nil {
				return nil, err
			}
			grown = true
		}
	}

	loop, err := disk.Attach(ctx, scratch)
	if err != nil {
		return nil, err
	}
	sess.Defer("detach "+rec.Name, loop.Detach)

	if grown {
		if err := disk.ResizeRootFS(ctx, loop); err != nil {
			return nil, err
		}
	}

	tree, err := disk.Mount(ctx, loop, sess.Paths.MountRoot(), cacheBind(sess.Paths))
	if err != nil {
		return nil, err
	}
	sess.Defer("unmount "+rec.Name, func(context.Context) error { return tree.Unmount() })

	if len(rec.Packages) > 0 {
		if err := b.Installer.Install(ctx, tree.Root, rec.Packages); err != nil {
			return nil, fmt.Errorf("install packages: %w", err)
		}
	}
	if err := writePresets(tree.Root, rec.Services); err != nil {
		return nil, err
	}
	if rec.Overlay != "" {
		if _, err := overlay.Apply(rec.Overlay, tree.Root, overlay.DefaultMaxBytes); err != nil {
			return nil, err
		}
	}
	if hooks.Customize != nil {
		if err := hooks.Customize(ctx, tree.Root); err != nil {
			return nil, fmt.Errorf("customize hook: %w", err)
		}
	}

	if err := tree.Trim(ctx); err != nil {
		return nil, err
	}
	if err := tree.Unmount(); err != nil {
		return nil, err
	}
	if err := loop.Detach(ctx); err != nil {
		return nil, err
	}

	finalName := rec.ArtifactName(sess.ID)
	artifactPath := scratch
	if hooks.Package != nil {
		artifactPath, err = hooks.Package(ctx, scratch, finalName)
		if err != nil {
			return nil, fmt.Errorf("package hook: %w", err)
		}
	} else {
		artifactPath = filepath.Join(sess.Paths.WorkDir, finalName)
		if err := os.Rename(scratch, artifactPath); err != nil {
			return nil, fmt.Errorf("rename artifact: %w", err)
		}
	}

	art, err = WriteChecksum(artifactPath)
	if err != nil {
		return nil, err
	}
	if err := art.RestoreOwnership(); err != nil {
		return nil, err
	}
	if err := art.MoveTo(sess.Paths.OutputDir); err != nil {
		return nil, err
	}
	if hooks.Package != nil && artifactPath != scratch {
		// The packaging hook may have left the scratch clone behind.
		_ = os.Remove(scratch)
	}

	sess.Logger.Info("variant ready", "recipe", rec.Name, "artifact", art.ImagePath)
	return art, nil
}

// writePresets appends one enable directive per declared service. Appending
// to the preset file is the file-based equivalent of systemctl enable; it is
// idempotent from systemd's point of view, and works on an image that has
// never booted.
func writePresets(root string, services []string) error {
	if len(services) == 0 {
		return nil
	}
	path := filepath.Join(root, presetPath)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create preset dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open preset file: %w", err)
	}
	for _, svc := range services {
		if !strings.Contains(svc, ".") {
			svc += ".service"
		}
		if _, err := fmt.Fprintf(f, "enable %s\n", svc); err != nil {
			f.Close()
			return fmt.Errorf("write preset: %w", err)
		}
	}
	return f.Close()
}
