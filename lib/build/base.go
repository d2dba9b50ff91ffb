package build

import (
	"context"
	"fmt"

	"github.com/c2h5oh/datasize"

	"github.com/slatelinux/forge/lib/disk"
	"github.com/slatelinux/forge/lib/overlay"
	"github.com/slatelinux/forge/lib/recipe"
)

// DefaultBaseSize is used when the base recipe declares no size.
const DefaultBaseSize = 16 * datasize.GB

// PkgCacheTreePath is where the shared package cache is bound inside a
// mounted image.
const PkgCacheTreePath = "var/cache/pacman/pkg"

func cacheBind(p Paths) *disk.CacheBind {
	if p.CacheDir == "" {
		return nil
	}
	return &disk.CacheBind{HostDir: p.CacheDir, TreePath: PkgCacheTreePath}
}

// buildBase produces the reusable base image every variant derives from:
// partition, format, bootstrap, customize, trim. Returns the image path.
func (b *Builder) buildBase(ctx context.Context, sess *Session, rec recipe.Recipe, hooks recipe.Hooks) (string, error) {
	size := rec.Size
	if size == 0 {
		size = DefaultBaseSize
	}
	sess.Logger.Info("building base image", "recipe", rec.Name, "size", size.HR())

	img, err := disk.Create(ctx, sess.Paths.BasePath(), size)
	if err != nil {
		return "", fmt.Errorf("setup base disk: %w", err)
	}

	loop, err := disk.Attach(ctx, img.Path)
	if err != nil {
		return "", fmt.Errorf("attach base image: %w", err)
	}
	sess.Defer("detach base image", loop.Detach)

	if err := disk.Format(ctx, loop); err != nil {
		return "", err
	}

	tree, err := disk.Mount(ctx, loop, sess.Paths.MountRoot(), cacheBind(sess.Paths))
	if err != nil {
		return "", err
	}
	sess.Defer("unmount base image", func(context.Context) error { return tree.Unmount() })

	if err := b.Bootstrapper.Bootstrap(ctx, tree.Root, rec.Packages); err != nil {
		return "", fmt.Errorf("bootstrap: %w", err)
	}
	if rec.Overlay != "" {
		if _, err := overlay.Apply(rec.Overlay, tree.Root, overlay.DefaultMaxBytes); err != nil {
			return "", err
		}
	}
	if hooks.Customize != nil {
		if err := hooks.Customize(ctx, tree.Root); err != nil {
			return "", fmt.Errorf("base customize hook: %w", err)
		}
	}

	if err := tree.Trim(ctx); err != nil {
		return "", err
	}
	if err := tree.Unmount(); err != nil {
		return "", err
	}
	if err := loop.Detach(ctx); err != nil {
		return "", err
	}

	sess.Logger.Info("base image ready", "path", img.Path)
	return img.Path, nil
}
