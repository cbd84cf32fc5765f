// Package pkgs holds the build-definition types shared between the
// scaffolder, the package store and the generated package modules under
// pkgs/by_name.
package pkgs

import (
	"sort"
	"sync"
)

// PackageDefinition is the persisted description of one package build.
type PackageDefinition struct {
	Name            string               `json:"name"`
	Version         string               `json:"version"`
	Source          string               `json:"source,omitempty"`
	MD5             string               `json:"md5,omitempty"`
	Stage           string               `json:"stage,omitempty"`
	Variant         string               `json:"variant,omitempty"`
	Notes           string               `json:"notes,omitempty"`
	ConfigureArgs   []string             `json:"configure_args"`
	BuildCommands   []string             `json:"build_commands"`
	InstallCommands []string             `json:"install_commands"`
	Dependencies    []string             `json:"dependencies"`
	Optimizations   OptimizationSettings `json:"optimizations"`
}

// NewPackageDefinition returns a definition with the default instrumented
// optimization preset.
func NewPackageDefinition(name, version string) PackageDefinition {
	return PackageDefinition{
		Name:          name,
		Version:       version,
		Optimizations: DefaultOptimizations(),
	}
}

// OptimizationSettings carries the compiler and linker flags applied when a
// package is built.
type OptimizationSettings struct {
	EnableLTO bool     `json:"enable_lto"`
	EnablePGO bool     `json:"enable_pgo"`
	CFlags    []string `json:"cflags"`
	LDFlags   []string `json:"ldflags"`
	Profdata  string   `json:"profdata,omitempty"`
}

// DefaultOptimizations is the instrumented PGO preset used before any
// profile data exists.
func DefaultOptimizations() OptimizationSettings {
	return OptimizationSettings{
		EnableLTO: true,
		EnablePGO: true,
		CFlags:    []string{"-O3", "-flto", "-fprofile-generate"},
		LDFlags:   []string{"-flto", "-fprofile-generate"},
	}
}

// PGOReplayOptimizations switches instrumentation off once profile data has
// been gathered: -fprofile-use replaces -fprofile-generate.
func PGOReplayOptimizations(profdata string) OptimizationSettings {
	return OptimizationSettings{
		EnableLTO: true,
		EnablePGO: true,
		CFlags:    []string{"-O3", "-flto", "-fprofile-use"},
		LDFlags:   []string{"-flto", "-fprofile-use"},
		Profdata:  profdata,
	}
}

var (
	registryMu sync.Mutex
	registry   = make(map[string]PackageDefinition)
)

// Register is called from the init() of every generated package module.
// Last registration for a name/version pair wins, which makes regenerated
// modules safe to reload.
func Register(def PackageDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[def.Name+"@"+def.Version] = def
}

// Registered returns the definitions contributed by generated modules,
// ordered by name then version.
func Registered() []PackageDefinition {
	registryMu.Lock()
	defer registryMu.Unlock()
	out := make([]PackageDefinition, 0, len(registry))
	for _, def := range registry {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version < out[j].Version
	})
	return out
}
