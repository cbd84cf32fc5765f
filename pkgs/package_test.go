package pkgs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultOptimizations(t *testing.T) {
	opt := DefaultOptimizations()
	assert.True(t, opt.EnableLTO)
	assert.True(t, opt.EnablePGO)
	assert.Equal(t, []string{"-O3", "-flto", "-fprofile-generate"}, opt.CFlags)
	assert.Equal(t, []string{"-flto", "-fprofile-generate"}, opt.LDFlags)
	assert.Empty(t, opt.Profdata)
}

func TestPGOReplayOptimizations(t *testing.T) {
	opt := PGOReplayOptimizations("/var/lib/lpkg/profiles/gcc.profdata")
	assert.Contains(t, opt.CFlags, "-fprofile-use")
	assert.NotContains(t, opt.CFlags, "-fprofile-generate")
	assert.Equal(t, "/var/lib/lpkg/profiles/gcc.profdata", opt.Profdata)
}

func TestRegistryLastRegistrationWins(t *testing.T) {
	first := NewPackageDefinition("testpkg-registry", "1.0")
	first.Source = "https://example.invalid/first.tar.xz"
	Register(first)

	second := first
	second.Source = "https://example.invalid/second.tar.xz"
	Register(second)

	var found *PackageDefinition
	for _, def := range Registered() {
		if def.Name == "testpkg-registry" && def.Version == "1.0" {
			d := def
			found = &d
		}
	}
	if assert.NotNil(t, found) {
		assert.Equal(t, "https://example.invalid/second.tar.xz", found.Source)
	}
}

func TestRegisteredSorted(t *testing.T) {
	Register(NewPackageDefinition("zz-sort-b", "1.0"))
	Register(NewPackageDefinition("zz-sort-a", "2.0"))
	Register(NewPackageDefinition("zz-sort-a", "1.0"))

	defs := Registered()
	var order []string
	for _, def := range defs {
		if def.Name == "zz-sort-a" || def.Name == "zz-sort-b" {
			order = append(order, def.Name+"@"+def.Version)
		}
	}
	assert.Equal(t, []string{"zz-sort-a@1.0", "zz-sort-a@2.0", "zz-sort-b@1.0"}, order)
}
