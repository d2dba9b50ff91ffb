// Package recipe holds the declarative descriptions of the image variants a
// build produces. Recipes are immutable once registered; the registry
// distinguishes the base recipe by role, never by name or filename.
package recipe

import (
	"context"
	"fmt"
	"slices"

	"github.com/c2h5oh/datasize"
)

// Role says how a recipe participates in a build.
type Role string

const (
	// RoleBase is the single OS-bootstrapped ancestor image.
	RoleBase Role = "base"

	// RoleVariant is a derived image cloned from the base.
	RoleVariant Role = "variant"
)

// Recipe describes one image: either the base or a derived variant.
type Recipe struct {
	// Name identifies the recipe within the registry.
	Name string `json:"name"`

	// Role marks the base recipe explicitly.
	Role Role `json:"role"`

	// NameTemplate renders the final artifact name; %s receives the build
	// ID. Empty defaults to "<name>-%s.img".
	NameTemplate string `json:"name_template,omitempty"`

	// Size overrides the base image size for this variant. Zero keeps the
	// clone at the base's size.
	Size datasize.ByteSize `json:"size,omitempty"`

	// Packages are installed into the mounted root, chroot-style.
	Packages []string `json:"packages,omitempty"`

	// Services are enabled via a systemd preset file written into the
	// image, so the effect is file-based and applies on first boot.
	Services []string `json:"services,omitempty"`

	// Overlay is an optional tar.gz whose contents are unpacked over the
	// mounted root before the customize hook runs.
	Overlay string `json:"overlay,omitempty"`
}

// Hooks are the imperative parts of a recipe, attached by the surrounding
// application rather than parsed from the descriptor file.
type Hooks struct {
	// Customize runs on the mounted root before cleanup. May be nil.
	Customize func(ctx context.Context, root string) error

	// Package runs on the unmounted scratch image and produces the final
	// artifact (e.g. a qcow2 conversion), returning its path. May be nil,
	// in which case the raw scratch image is the artifact.
	Package func(ctx context.Context, scratch, finalName string) (string, error)
}

// ArtifactName renders the final artifact file name for a build ID.
func (r Recipe) ArtifactName(buildID string) string {
	tmpl := r.NameTemplate
	if tmpl == "" {
		tmpl = r.Name + "-%s.img"
	}
	return fmt.Sprintf(tmpl, buildID)
}

// clone returns a deep copy so registered recipes stay immutable.
func (r Recipe) clone() Recipe {
	r.Packages = slices.Clone(r.Packages)
	r.Services = slices.Clone(r.Services)
	return r
}
