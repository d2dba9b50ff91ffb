package recipe

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
)

var (
	// ErrNoBase is returned when a registry has no base recipe
	ErrNoBase = errors.New("no base recipe registered")

	// ErrDuplicate is returned when a recipe name or the base role is
	// registered twice
	ErrDuplicate = errors.New("duplicate recipe")

	// ErrInvalidRecipe is returned for descriptors that fail validation
	ErrInvalidRecipe = errors.New("invalid recipe")
)

type entry struct {
	recipe Recipe
	hooks  Hooks
}

// Registry is the explicit set of recipes for one build: exactly one base
// plus zero or more variants, kept in registration order.
type Registry struct {
	base    *entry
	entries []entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a recipe with its hooks. The base recipe is identified by
// its Role field; registering a second base or reusing a name fails.
func (reg *Registry) Register(r Recipe, h Hooks) error {
	if r.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidRecipe)
	}
	if r.Role != RoleBase && r.Role != RoleVariant {
		return fmt.Errorf("%w: %s: unknown role %q", ErrInvalidRecipe, r.Name, r.Role)
	}
	for _, e := range reg.entries {
		if e.recipe.Name == r.Name {
			return fmt.Errorf("%w: %s", ErrDuplicate, r.Name)
		}
	}

	e := entry{recipe: r.clone(), hooks: h}
	if r.Role == RoleBase {
		if reg.base != nil {
			return fmt.Errorf("%w: base role already held by %s", ErrDuplicate, reg.base.recipe.Name)
		}
		reg.base = &e
	}
	reg.entries = append(reg.entries, e)
	return nil
}

// Base returns the base recipe and its hooks.
func (reg *Registry) Base() (Recipe, Hooks, error) {
	if reg.base == nil {
		return Recipe{}, Hooks{}, ErrNoBase
	}
	return reg.base.recipe.clone(), reg.base.hooks, nil
}

// Variants returns all non-base recipes in registration order.
func (reg *Registry) Variants() []Recipe {
	variants := lo.Filter(reg.entries, func(e entry, _ int) bool {
		return e.recipe.Role != RoleBase
	})
	return lo.Map(variants, func(e entry, _ int) Recipe {
		return e.recipe.clone()
	})
}

// Hooks returns the hooks registered for a recipe name.
func (reg *Registry) Hooks(name string) (Hooks, bool) {
	for _, e := range reg.entries {
		if e.recipe.Name == name {
			return e.hooks, true
		}
	}
	return Hooks{}, false
}

// Names lists all recipe names in registration order.
func (reg *Registry) Names() []string {
	return lo.Map(reg.entries, func(e entry, _ int) string {
		return e.recipe.Name
	})
}
