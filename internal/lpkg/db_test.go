package lpkg

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lpkg/pkgs"
)

func testStore(t *testing.T) *PackageStore {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "lpkg.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUpsertAndFindPackage(t *testing.T) {
	store := testStore(t)

	def := pkgs.NewPackageDefinition("binutils", "2.45")
	def.Source = "https://sourceware.org/pub/binutils/releases/binutils-2.45.tar.xz"
	def.MD5 = "5e1df82b43de7b01b6eee5e2ab8d8533"
	def.Stage = "cross-toolchain"
	def.Variant = "Pass 1"
	def.ConfigureArgs = []string{"--prefix=$LFS/tools"}
	def.Dependencies = []string{"glibc", "zlib"}
	require.NoError(t, store.UpsertPackage(def))

	loaded, err := store.FindPackage("binutils", "2.45")
	require.NoError(t, err)
	assert.Equal(t, def.Source, loaded.Source)
	assert.Equal(t, "cross-toolchain", loaded.Stage)
	assert.Equal(t, "Pass 1", loaded.Variant)
	assert.Equal(t, []string{"--prefix=$LFS/tools"}, loaded.ConfigureArgs)
	assert.Equal(t, []string{"glibc", "zlib"}, loaded.Dependencies)
	assert.True(t, loaded.Optimizations.EnableLTO)

	// Upsert replaces rather than duplicating.
	def.Source = "https://mirror.invalid/binutils-2.45.tar.xz"
	require.NoError(t, store.UpsertPackage(def))
	all, err := store.LoadPackages()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "https://mirror.invalid/binutils-2.45.tar.xz", all[0].Source)
}

func TestFindPackageNewestVersion(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.UpsertPackage(pkgs.NewPackageDefinition("gcc", "14.2.0")))
	require.NoError(t, store.UpsertPackage(pkgs.NewPackageDefinition("gcc", "15.2.0")))

	def, err := store.FindPackage("gcc", "")
	require.NoError(t, err)
	assert.Equal(t, "15.2.0", def.Version)

	def, err = store.FindPackage("gcc", "14.2.0")
	require.NoError(t, err)
	assert.Equal(t, "14.2.0", def.Version)

	_, err = store.FindPackage("clang", "")
	require.ErrorIs(t, err, errPackageNotFound)
}

func TestSearchPackages(t *testing.T) {
	store := testStore(t)
	for _, name := range []string{"binutils", "coreutils", "zlib"} {
		require.NoError(t, store.UpsertPackage(pkgs.NewPackageDefinition(name, "1.0")))
	}

	defs, err := store.SearchPackages("utils", 0)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "binutils", defs[0].Name)
	assert.Equal(t, "coreutils", defs[1].Name)

	// LIKE metacharacters match literally.
	defs, err = store.SearchPackages("%", 0)
	require.NoError(t, err)
	assert.Empty(t, defs)

	defs, err = store.SearchPackages("zlib", 1)
	require.NoError(t, err)
	assert.Len(t, defs, 1)
}
