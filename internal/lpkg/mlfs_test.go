package lpkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBookHTML = `<html><body>
<h1 class="sect1" id="ch05-binutils-pass1">5.5. Binutils-2.45 - Pass 1</h1>
<h1 class="sect1" id="ch05-gcc-pass1">5.6. GCC-15.2.0 - Pass 1</h1>
<h1 class="sect1" id="ch09-bootscripts">9.3. LFS-Bootscripts-20250827</h1>
<h1 class="sect1" id="ch08-xml-parser">8.41. XML::Parser-2.47</h1>
<h1 class="sect1" id="ch02-intro">2.1. Preparing the Host</h1>
<h1 class="sect1" id="ch08-glibc-32">8.39. Glibc-2.42 (32-bit)</h1>
</body></html>`

func TestParseBookCatalog(t *testing.T) {
	records, err := ParseBookCatalog(sampleBookHTML)
	require.NoError(t, err)
	require.Len(t, records, 5)

	assert.Equal(t, "Binutils", records[0].Name)
	assert.Equal(t, "2.45", records[0].Version)
	assert.Equal(t, "Pass 1", records[0].Variant)
	assert.Equal(t, 5, records[0].Chapter)
	assert.Equal(t, "5.05", records[0].Section)
	assert.Equal(t, "cross-toolchain", records[0].Stage)

	assert.Equal(t, "Pass 1", records[1].Variant)
	assert.Equal(t, "LFS-Bootscripts", records[2].Name)
	assert.Equal(t, "", records[2].Variant)
	assert.Equal(t, "system-configuration", records[2].Stage)
	assert.Equal(t, "XML::Parser", records[3].Name)

	// Parenthetical multilib variants split out of the version.
	assert.Equal(t, "Glibc", records[4].Name)
	assert.Equal(t, "2.42", records[4].Version)
	assert.Equal(t, "32-bit", records[4].Variant)
}

func TestRecordIDAndAlias(t *testing.T) {
	record := MlfsPackageRecord{Name: "Binutils", Version: "2.45", Variant: "Pass 1"}
	assert.Equal(t, "Binutils_Pass 1", record.ID())
	assert.Equal(t, "binutils_pass_1", record.ModuleAlias())

	plus := MlfsPackageRecord{Name: "Libstdc++", Version: "15.2.0"}
	assert.Equal(t, "Libstdcplusplus", plus.ID())
	assert.Equal(t, "libstdcplusplus", plus.ModuleAlias())

	dotted := MlfsPackageRecord{Name: "XML::Parser", Version: "2.47"}
	assert.Equal(t, "xml::parser", dotted.ModuleAlias())
}

func TestLoadCachedCatalog(t *testing.T) {
	records, err := LoadCachedCatalog()
	require.NoError(t, err)
	require.NotEmpty(t, records)

	var foundPass1, foundPass2 bool
	for _, record := range records {
		if record.Name == "Binutils" && record.Variant == "Pass 1" {
			foundPass1 = true
			assert.Equal(t, "cross-toolchain", record.Stage)
		}
		if record.Name == "Binutils" && record.Variant == "Pass 2" {
			foundPass2 = true
		}
	}
	assert.True(t, foundPass1)
	assert.True(t, foundPass2)
}

func TestMatchSummary(t *testing.T) {
	summaries := []PackageSummary{
		{ID: "mlfs/binutils-pass-1", Name: "Binutils", Version: "2.45", Variant: "Pass 1"},
		{ID: "mlfs/binutils-pass-2", Name: "Binutils", Version: "2.45", Variant: "Pass 2"},
		{ID: "mlfs/zlib", Name: "Zlib", Version: "1.3.1"},
	}

	pass2 := MlfsPackageRecord{Name: "Binutils", Version: "2.45", Variant: "Pass 2"}
	match := pass2.MatchSummary(summaries)
	require.NotNil(t, match)
	assert.Equal(t, "mlfs/binutils-pass-2", match.ID)

	wrongVersion := MlfsPackageRecord{Name: "Zlib", Version: "1.2.0"}
	assert.Nil(t, wrongVersion.MatchSummary(summaries))

	unknown := MlfsPackageRecord{Name: "Ncurses", Version: "6.5"}
	assert.Nil(t, unknown.MatchSummary(summaries))
}

func TestDisplayLabel(t *testing.T) {
	assert.Equal(t, "5.05 (Pass 1)",
		MlfsPackageRecord{Name: "Binutils", Section: "5.05", Variant: "Pass 1"}.DisplayLabel())
	assert.Equal(t, "8.06", MlfsPackageRecord{Name: "Zlib", Section: "8.06"}.DisplayLabel())
	assert.Equal(t, "Zlib", MlfsPackageRecord{Name: "Zlib"}.DisplayLabel())
}
