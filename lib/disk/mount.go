package disk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// CacheBind bind-mounts a shared host directory into the image tree so
// repeated package installs reuse downloads. The host directory is shared
// across builds and must never be deleted with the tree.
type CacheBind struct {
	// HostDir is the shared package cache on the host.
	HostDir string

	// TreePath is the mount point relative to the image root, e.g.
	// "var/cache/pacman/pkg".
	TreePath string
}

type mountPoint struct {
	path string
}

// MountTree is the mounted view of one attached image: root filesystem, EFI
// partition under <root>/efi, and optionally the shared package cache bound
// into the tree. It must be fully torn down before the backing image file is
// deleted or relocated.
type MountTree struct {
	Root string

	// mounts in mount order; unmounted in reverse.
	mounts []mountPoint
}

// Mount mounts an attached image under root. The directory is created if
// needed.
func Mount(ctx context.Context, loop *Loop, root string, cache *CacheBind) (*MountTree, error) {
	t := &MountTree{Root: root}

	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create mount root: %w", err)
	}
	if err := t.mount(loop.Partition(3), root, "ext4", 0, ""); err != nil {
		return nil, err
	}

	efi := filepath.Join(root, "efi")
	if err := os.MkdirAll(efi, 0755); err != nil {
		t.Unmount()
		return nil, fmt.Errorf("create efi mount point: %w", err)
	}
	if err := t.mount(loop.Partition(2), efi, "vfat", 0, ""); err != nil {
		t.Unmount()
		return nil, err
	}

	if cache != nil {
		target := filepath.Join(root, cache.TreePath)
		if err := os.MkdirAll(target, 0755); err != nil {
			t.Unmount()
			return nil, fmt.Errorf("create cache mount point: %w", err)
		}
		if err := t.mount(cache.HostDir, target, "", unix.MS_BIND, ""); err != nil {
			t.Unmount()
			return nil, err
		}
	}

	return t, nil
}

func (t *MountTree) mount(source, target, fstype string, flags uintptr, data string) error {
	if err := unix.Mount(source, target, fstype, flags, data); err != nil {
		return fmt.Errorf("mount %s on %s: %w", source, target, err)
	}
	t.mounts = append(t.mounts, mountPoint{path: target})
	return nil
}

// Unmount tears the tree down in reverse mount order. It is a no-op when
// nothing is mounted, and safe to call repeatedly: the unconditional cleanup
// handler runs it regardless of state.
func (t *MountTree) Unmount() error {
	var firstErr error
	for i := len(t.mounts) - 1; i >= 0; i-- {
		err := unix.Unmount(t.mounts[i].path, 0)
		// EINVAL means not mounted, ENOENT means the path is already gone;
		// both count as clean.
		if err != nil && !errors.Is(err, unix.EINVAL) && !errors.Is(err, unix.ENOENT) {
			if firstErr == nil {
				firstErr = fmt.Errorf("unmount %s: %w", t.mounts[i].path, err)
			}
			continue
		}
	}
	if firstErr != nil {
		return firstErr
	}
	t.mounts = nil
	return nil
}

// Trim syncs and discards free space on both mounted filesystems, keeping
// the sparse image small.
func (t *MountTree) Trim(ctx context.Context) error {
	unix.Sync()
	if err := runTool(ctx, "fstrim", filepath.Join(t.Root, "efi")); err != nil {
		return err
	}
	return runTool(ctx, "fstrim", t.Root)
}
