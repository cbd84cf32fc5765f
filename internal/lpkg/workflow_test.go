package lpkg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestForRecordBare(t *testing.T) {
	record := MlfsPackageRecord{
		Name:    "Binutils",
		Version: "2.45",
		Chapter: 5,
		Section: "5.05",
		Stage:   "cross-toolchain",
		Variant: "Pass 1",
		Notes:   "first pass",
	}

	req := requestForRecord(record, nil)
	assert.Equal(t, "Binutils", req.Name)
	assert.Equal(t, "2.45", req.Version)
	assert.Equal(t, "binutils_pass_1", req.ModuleOverride)
	assert.True(t, req.EnableLTO)
	assert.True(t, req.EnablePGO)
	assert.Equal(t, "cross-toolchain", req.Stage)
	assert.Equal(t, "Pass 1", req.Variant)
	assert.Equal(t, "first pass", req.Notes)
	// Provenance never leaks into compiler flags.
	assert.Empty(t, req.CFlags)
	assert.Empty(t, req.LDFlags)
}

func TestRequestForRecordPrefersMetadata(t *testing.T) {
	metadataDir := t.TempDir()
	origMetadataDir, origPackagesDir := MetadataDir, PackagesDir
	MetadataDir = metadataDir
	PackagesDir = metadataDir + "/packages"
	defer func() { MetadataDir, PackagesDir = origMetadataDir, origPackagesDir }()

	meta := validRecord("mlfs/zlib", "Zlib", "1.3.1")
	meta.Build = []BuildPhase{
		{Phase: "build", Commands: []string{"make"}},
		{Phase: "install", Commands: []string{"make install"}},
	}
	writeRecord(t, metadataDir, "mlfs", "zlib", meta)

	summaries := indexSummaries()
	require.Len(t, summaries, 1)

	record := MlfsPackageRecord{
		Name:    "Zlib",
		Version: "1.3.1",
		Chapter: 8,
		Section: "8.06",
		Stage:   "system",
		Notes:   "multilib",
	}
	req := requestForRecord(record, summaries)
	assert.Equal(t, "zlib", req.ModuleOverride)
	assert.Equal(t, []string{"make"}, req.BuildCommands)
	assert.Equal(t, []string{"make install"}, req.InstallCommands)
	assert.Equal(t, "https://example.invalid/src.tar.xz", req.Source)
	// The metadata stage wins; the catalog backfills what it left unset.
	assert.Equal(t, "cross-toolchain", req.Stage)
	assert.Equal(t, "multilib", req.Notes)
}

func TestImportRecordsSkipsExistingModules(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "by_name")
	require.NoError(t, os.MkdirAll(baseDir, 0o755))
	store := testStore(t)

	records := []MlfsPackageRecord{
		{Name: "Binutils", Version: "2.45", Chapter: 5, Stage: "cross-toolchain", Variant: "Pass 1"},
		{Name: "Zlib", Version: "1.3.1", Chapter: 8, Stage: "system"},
	}

	_, err := Scaffold(baseDir, ScaffoldRequest{
		Name:           "Binutils",
		Version:        "2.45",
		ModuleOverride: records[0].ModuleAlias(),
	})
	require.NoError(t, err)

	imported, skipped, err := importRecords(store, records, nil, ImportOptions{BaseDir: baseDir})
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	assert.Equal(t, []string{"binutils_pass_1"}, skipped)

	def, err := store.FindPackage("zlib", "1.3.1")
	require.NoError(t, err)
	assert.Equal(t, "system", def.Stage)
}

func TestBuildInfoReport(t *testing.T) {
	info := &BuildInfo{
		Name:          "Binutils",
		Version:       "2.45",
		DownloadURL:   "https://example.invalid/binutils-2.45.tar.xz",
		ConfigureArgs: []string{"--prefix=$LFS/tools", "--target=$LFS_TGT"},
		BuildCmds:     []string{"make"},
		InstallCmds:   []string{"make install"},
		SBU:           "1 SBU",
		DiskSpace:     "677 MB",
	}

	lines := buildInfoReport(info)
	joined := ""
	for _, line := range lines {
		joined += line + "\n"
	}
	assert.Contains(t, joined, "https://example.invalid/binutils-2.45.tar.xz")
	assert.Contains(t, joined, "--prefix=$LFS/tools")
	assert.Contains(t, joined, "make install")
	assert.Contains(t, joined, "1 SBU")
	assert.Contains(t, joined, "677 MB")
}
