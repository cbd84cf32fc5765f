package lpkg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeModuleName(t *testing.T) {
	assert.Equal(t, "xml__parser", sanitizeModuleName("XML::Parser"))
	assert.Equal(t, "gcc", sanitizeModuleName("GCC"))
	assert.Equal(t, "util_linux", sanitizeModuleName("Util-linux"))
	assert.Equal(t, "__", sanitizeModuleName("++"))
	assert.Equal(t, "pkg", sanitizeModuleName(""))
	assert.Equal(t, "p7zip", sanitizeModuleName("7zip"))
}

func TestShardPrefix(t *testing.T) {
	assert.Equal(t, "bi", shardPrefix("binutils"))
	assert.Equal(t, "mk", shardPrefix("m"))
	assert.Equal(t, "pk", shardPrefix(""))
}

func TestScaffoldRequiresByNameDir(t *testing.T) {
	dir := t.TempDir()
	_, err := Scaffold(dir, ScaffoldRequest{Name: "binutils", Version: "2.45"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "by_name")
}

func TestScaffoldGeneratesModuleAndRegistry(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "by_name")
	require.NoError(t, os.MkdirAll(baseDir, 0o755))

	result, err := Scaffold(baseDir, ScaffoldRequest{
		Name:         "Binutils",
		Version:      "2.45",
		Source:       "https://sourceware.org/pub/binutils/releases/binutils-2.45.tar.xz",
		MD5:          "5e1df82b43de7b01b6eee5e2ab8d8533",
		EnableLTO:    true,
		EnablePGO:    true,
		Dependencies: []string{"zlib", "glibc", "zlib"},
	})
	require.NoError(t, err)
	assert.Equal(t, "binutils", result.ModuleName)
	assert.Equal(t, filepath.Join(baseDir, "bi", "binutils"), result.ModuleDir)

	source, err := os.ReadFile(result.SourceFile)
	require.NoError(t, err)
	text := string(source)
	assert.Contains(t, text, "package binutils")
	assert.Contains(t, text, "pkgs.Register(Definition())")
	assert.Contains(t, text, `"binutils"`)
	assert.Contains(t, text, `"-fprofile-generate"`)
	// Dependencies dedupe and sort.
	assert.Less(t, strings.Index(text, `"glibc"`), strings.Index(text, `"zlib"`))
	assert.Equal(t, 1, strings.Count(text, `"zlib"`))

	registry, err := os.ReadFile(filepath.Join(baseDir, "registry.go"))
	require.NoError(t, err)
	assert.Contains(t, string(registry), `_ "lpkg/pkgs/by_name/bi/binutils"`)
}

func TestScaffoldConflictAndOverwrite(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "by_name")
	require.NoError(t, os.MkdirAll(baseDir, 0o755))

	req := ScaffoldRequest{Name: "gcc", Version: "15.2.0"}
	_, err := Scaffold(baseDir, req)
	require.NoError(t, err)

	_, err = Scaffold(baseDir, req)
	require.ErrorIs(t, err, errModuleExists)

	req.Overwrite = true
	_, err = Scaffold(baseDir, req)
	require.NoError(t, err)
}

func TestScaffoldRegistryIdempotent(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "by_name")
	require.NoError(t, os.MkdirAll(baseDir, 0o755))

	_, err := Scaffold(baseDir, ScaffoldRequest{Name: "gcc", Version: "15.2.0"})
	require.NoError(t, err)
	_, err = Scaffold(baseDir, ScaffoldRequest{Name: "binutils", Version: "2.45"})
	require.NoError(t, err)
	_, err = Scaffold(baseDir, ScaffoldRequest{Name: "gcc", Version: "15.2.0", Overwrite: true})
	require.NoError(t, err)

	registry, err := os.ReadFile(filepath.Join(baseDir, "registry.go"))
	require.NoError(t, err)
	text := string(registry)
	assert.Equal(t, 1, strings.Count(text, "by_name/gc/gcc"))
	assert.Equal(t, 1, strings.Count(text, "by_name/bi/binutils"))
	// Sorted import order.
	assert.Less(t, strings.Index(text, "bi/binutils"), strings.Index(text, "gc/gcc"))
}

func TestBuildDefinitionDedupesExplicitFlags(t *testing.T) {
	def := buildDefinition(ScaffoldRequest{
		Name:    "gcc",
		Version: "15.2.0",
		CFlags:  []string{"-O3", "-O3", "-march=native"},
		LDFlags: []string{"-flto", "-flto"},
	})
	assert.Equal(t, []string{"-O3", "-march=native"}, def.Optimizations.CFlags)
	assert.Equal(t, []string{"-flto"}, def.Optimizations.LDFlags)
}

func TestBuildDefinitionKeepsExplicitFlagsWithProfdata(t *testing.T) {
	def := buildDefinition(ScaffoldRequest{
		Name:      "gcc",
		Version:   "15.2.0",
		EnableLTO: true,
		EnablePGO: true,
		CFlags:    []string{"-O3", "-march=native"},
		Profdata:  "/var/lib/lpkg/profiles/gcc.profdata",
	})
	assert.Contains(t, def.Optimizations.CFlags, "-march=native")
	assert.True(t, def.Optimizations.EnableLTO)
	assert.True(t, def.Optimizations.EnablePGO)
	assert.Equal(t, "/var/lib/lpkg/profiles/gcc.profdata", def.Optimizations.Profdata)
	// The empty ldflags list falls back to replay defaults.
	assert.Equal(t, []string{"-flto", "-fprofile-use"}, def.Optimizations.LDFlags)
}

func TestBuildDefinitionDefaultFlagsKeepLTO(t *testing.T) {
	def := buildDefinition(ScaffoldRequest{Name: "sed", Version: "4.9"})
	assert.Contains(t, def.Optimizations.CFlags, "-flto")
	assert.Contains(t, def.Optimizations.LDFlags, "-flto")
	assert.NotContains(t, def.Optimizations.CFlags, "-fprofile-generate")
}

func TestBuildDefinitionCarriesStageVariantNotes(t *testing.T) {
	def := buildDefinition(ScaffoldRequest{
		Name:    "Binutils",
		Version: "2.45",
		Stage:   "cross-toolchain",
		Variant: "Pass 1",
		Notes:   "first pass",
	})
	assert.Equal(t, "cross-toolchain", def.Stage)
	assert.Equal(t, "Pass 1", def.Variant)
	assert.Equal(t, "first pass", def.Notes)
	for _, flag := range def.Optimizations.CFlags {
		assert.NotContains(t, flag, "LPKG_")
	}
}

func TestScaffoldRendersStageAndVariant(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "by_name")
	require.NoError(t, os.MkdirAll(baseDir, 0o755))

	result, err := Scaffold(baseDir, ScaffoldRequest{
		Name:    "Binutils",
		Version: "2.45",
		Stage:   "cross-toolchain",
		Variant: "Pass 1",
	})
	require.NoError(t, err)

	source, err := os.ReadFile(result.SourceFile)
	require.NoError(t, err)
	text := string(source)
	assert.Contains(t, text, `Stage:   "cross-toolchain"`)
	assert.Contains(t, text, `Variant: "Pass 1"`)
}

func TestScaffoldPGOReplayPreset(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "by_name")
	require.NoError(t, os.MkdirAll(baseDir, 0o755))

	result, err := Scaffold(baseDir, ScaffoldRequest{
		Name:     "gcc",
		Version:  "15.2.0",
		Profdata: "/var/lib/lpkg/profiles/gcc.profdata",
	})
	require.NoError(t, err)
	assert.Contains(t, result.Definition.Optimizations.CFlags, "-fprofile-use")
	assert.NotContains(t, result.Definition.Optimizations.CFlags, "-fprofile-generate")
	assert.Equal(t, "/var/lib/lpkg/profiles/gcc.profdata", result.Definition.Optimizations.Profdata)
}

func TestRequestFromMetadata(t *testing.T) {
	meta := validRecord("mlfs/binutils-pass-1", "Binutils", "2.45")
	meta.Source.URLs = append(meta.Source.URLs,
		SourceURL{URL: "https://example.invalid/fix.patch", Kind: "patch"})
	meta.Build = []BuildPhase{
		{Phase: "configure", Commands: []string{"../configure --prefix=$LFS/tools"}},
		{Phase: "build", Commands: []string{"make"}},
		{Phase: "install", Commands: []string{"make install"}},
	}
	meta.Dependencies = Dependencies{Build: []string{"zlib"}, Runtime: []string{"glibc", "zlib"}}

	req := RequestFromMetadata(&meta)
	assert.Equal(t, "Binutils", req.Name)
	assert.Equal(t, "2.45", req.Version)
	assert.Equal(t, "cross-toolchain", req.Stage)
	assert.Equal(t, "https://example.invalid/src.tar.xz", req.Source)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", req.MD5)
	assert.Equal(t, []string{"../configure --prefix=$LFS/tools", "make"}, req.BuildCommands)
	assert.Equal(t, []string{"make install"}, req.InstallCommands)
	assert.Equal(t, []string{"glibc", "zlib"}, req.Dependencies)
	assert.Equal(t, "binutils-pass-1", req.ModuleOverride)
}
