package recipe

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ghodss/yaml"
)

// LoadDir reads every *.yaml descriptor in dir, in lexical order. Hooks are
// not part of the descriptor format; the caller attaches them when
// registering.
func LoadDir(dir string) ([]Recipe, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("glob recipes: %w", err)
	}
	sort.Strings(matches)

	recipes := make([]Recipe, 0, len(matches))
	for _, path := range matches {
		r, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		recipes = append(recipes, r)
	}
	return recipes, nil
}

// LoadFile parses one YAML recipe descriptor.
func LoadFile(path string) (Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Recipe{}, fmt.Errorf("read recipe: %w", err)
	}

	var r Recipe
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Recipe{}, fmt.Errorf("parse recipe %s: %w", filepath.Base(path), err)
	}
	if r.Role == "" {
		r.Role = RoleVariant
	}
	if r.Name == "" {
		return Recipe{}, fmt.Errorf("%w: %s: missing name", ErrInvalidRecipe, filepath.Base(path))
	}
	return r, nil
}
