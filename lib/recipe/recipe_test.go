package recipe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_BaseByRoleNotName(t *testing.T) {
	reg := NewRegistry()

	// The base recipe is whatever carries the base role, regardless of name.
	require.NoError(t, reg.Register(Recipe{Name: "cloud", Role: RoleVariant}, Hooks{}))
	require.NoError(t, reg.Register(Recipe{Name: "minimal", Role: RoleBase}, Hooks{}))

	base, _, err := reg.Base()
	require.NoError(t, err)
	assert.Equal(t, "minimal", base.Name)

	variants := reg.Variants()
	require.Len(t, variants, 1)
	assert.Equal(t, "cloud", variants[0].Name)
}

func TestRegistry_RejectsSecondBase(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Recipe{Name: "base", Role: RoleBase}, Hooks{}))

	err := reg.Register(Recipe{Name: "other", Role: RoleBase}, Hooks{})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestRegistry_RejectsDuplicateName(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Recipe{Name: "cloud", Role: RoleVariant}, Hooks{}))

	err := reg.Register(Recipe{Name: "cloud", Role: RoleVariant}, Hooks{})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestRegistry_NoBase(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Recipe{Name: "cloud", Role: RoleVariant}, Hooks{}))

	_, _, err := reg.Base()
	assert.ErrorIs(t, err, ErrNoBase)
}

func TestRegistry_VariantsKeepRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Recipe{Name: "base", Role: RoleBase}, Hooks{}))
	for _, name := range []string{"cloud", "vagrant", "docker"} {
		require.NoError(t, reg.Register(Recipe{Name: name, Role: RoleVariant}, Hooks{}))
	}

	names := make([]string, 0)
	for _, v := range reg.Variants() {
		names = append(names, v.Name)
	}
	assert.Equal(t, []string{"cloud", "vagrant", "docker"}, names)
	assert.Equal(t, []string{"base", "cloud", "vagrant", "docker"}, reg.Names())
}

func TestRegistry_RegisteredRecipeIsImmutable(t *testing.T) {
	reg := NewRegistry()
	pkgs := []string{"openssh"}
	require.NoError(t, reg.Register(Recipe{Name: "base", Role: RoleBase, Packages: pkgs}, Hooks{}))

	// Mutating the caller's slice must not reach the registry.
	pkgs[0] = "mutated"
	base, _, err := reg.Base()
	require.NoError(t, err)
	assert.Equal(t, []string{"openssh"}, base.Packages)
}

func TestArtifactName(t *testing.T) {
	r := Recipe{Name: "cloud", NameTemplate: "slate-cloudimg-%s.qcow2"}
	assert.Equal(t, "slate-cloudimg-20260831.1200.qcow2", r.ArtifactName("20260831.1200"))

	plain := Recipe{Name: "docker"}
	assert.Equal(t, "docker-b1.img", plain.ArtifactName("b1"))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()

	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	write("10-base.yaml", "name: base\nrole: base\npackages: [linux, grub]\n")
	write("20-cloud.yaml", `
name: cloud
name_template: slate-cloudimg-%s.qcow2
size: 20G
packages: [cloud-init, openssh]
services: [sshd, cloud-init]
`)

	recipes, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, recipes, 2)

	base := recipes[0]
	assert.Equal(t, RoleBase, base.Role)
	assert.Equal(t, []string{"linux", "grub"}, base.Packages)

	cloud := recipes[1]
	assert.Equal(t, RoleVariant, cloud.Role, "role defaults to variant")
	assert.Equal(t, 20*datasize.GB, cloud.Size)
	assert.Equal(t, []string{"sshd", "cloud-init"}, cloud.Services)
}

func TestLoadFile_MissingName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("packages: [vim]\n"), 0644))

	_, err := LoadFile(path)
	assert.ErrorIs(t, err, ErrInvalidRecipe)
}
