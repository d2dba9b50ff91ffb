package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// pacstrapBootstrapper performs the one full OS install with pacstrap. -c
// uses the host-side package cache, which the disk layer has already
// bind-mounted into the tree.
type pacstrapBootstrapper struct{}

func (pacstrapBootstrapper) Bootstrap(ctx context.Context, root string, packages []string) error {
	args := append([]string{"-c", "-K", root}, packages...)
	return runCmd(ctx, "pacstrap", args...)
}

// chrootInstaller installs variant packages against a mounted root.
type chrootInstaller struct{}

func (chrootInstaller) Install(ctx context.Context, root string, packages []string) error {
	args := append([]string{root, "pacman", "-S", "--noconfirm", "--needed"}, packages...)
	return runCmd(ctx, "arch-chroot", args...)
}

// qcow2Package converts the raw scratch image into a compressed qcow2; the
// packaging hook for cloud-style variants.
func qcow2Package(ctx context.Context, scratch, finalName string) (string, error) {
	dst := filepath.Join(filepath.Dir(scratch), finalName)
	if err := runCmd(ctx, "qemu-img", "convert", "-O", "qcow2", "-c", scratch, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// rawPackage just renames the scratch clone; for variants shipped as raw
// images.
func rawPackage(_ context.Context, scratch, finalName string) (string, error) {
	dst := filepath.Join(filepath.Dir(scratch), finalName)
	if err := os.Rename(scratch, dst); err != nil {
		return "", fmt.Errorf("rename artifact: %w", err)
	}
	return dst, nil
}

func runCmd(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w, output: %s", name, err, output)
	}
	return nil
}
