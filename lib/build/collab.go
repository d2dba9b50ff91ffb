package build

import "context"

// Bootstrapper performs the one full OS install onto a mounted, empty root.
// The concrete invocation (pacstrap, debootstrap, ...) belongs to the
// surrounding application.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, root string, packages []string) error
}

// PackageInstaller installs packages into an already bootstrapped root,
// chroot-style.
type PackageInstaller interface {
	Install(ctx context.Context, root string, packages []string) error
}
