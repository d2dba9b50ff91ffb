package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/slatelinux/forge/cmd/forge/config"
	"github.com/slatelinux/forge/lib/build"
	"github.com/slatelinux/forge/lib/recipe"
	"github.com/slatelinux/forge/lib/vm"
)

func main() {
	if err := run(); err != nil {
		slog.Error("build failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// An interrupt cancels the context; the builder's deferred cleanup
	// still releases loop bindings and unmounts before the process exits.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := loadRegistry(cfg.RecipeDir)
	if err != nil {
		return err
	}
	logger.Info("recipes loaded", "names", strings.Join(registry.Names(), ","))

	builder := build.New(registry, pacstrapBootstrapper{}, chrootInstaller{}, logger, nil)
	builder.ConsoleEcho = os.Stderr

	paths := build.Paths{
		WorkDir:   cfg.WorkDir,
		OutputDir: cfg.OutputDir,
		CacheDir:  cfg.CacheDir,
	}

	if cfg.Remote {
		return builder.RunRemote(ctx, cfg.BuildID, paths, build.RemoteConfig{
			VM: vm.Config{
				BootISO:  cfg.BootISO,
				MemoryMB: cfg.MemoryMB,
				CPUs:     cfg.CPUs,
			},
			InputDir:       cfg.InputDir,
			Tooling:        []string{"gptfdisk", "parted", "dosfstools", "qemu-img"},
			BuildCommand:   "./build.sh",
			PerByteTimeout: 5 * time.Minute,
		})
	}

	_, err = builder.Run(ctx, cfg.BuildID, paths)
	return err
}

// loadRegistry reads the recipe descriptors and attaches the hooks this
// distribution uses: qcow2 packaging for cloud-style variants, raw images
// for everything else.
func loadRegistry(dir string) (*recipe.Registry, error) {
	recipes, err := recipe.LoadDir(dir)
	if err != nil {
		return nil, err
	}

	registry := recipe.NewRegistry()
	for _, r := range recipes {
		hooks := recipe.Hooks{Package: rawPackage}
		if strings.HasSuffix(r.ArtifactName("x"), ".qcow2") {
			hooks.Package = qcow2Package
		}
		if r.Role == recipe.RoleBase {
			hooks = recipe.Hooks{}
		}
		if err := registry.Register(r, hooks); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
