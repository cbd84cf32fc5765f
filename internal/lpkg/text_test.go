package lpkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitNameVersion(t *testing.T) {
	cases := []struct {
		title   string
		name    string
		version string
		variant string
	}{
		{"Binutils-2.45 - Pass 1", "Binutils", "2.45", "Pass 1"},
		{"GCC-15.2.0 - Pass 2", "GCC", "15.2.0", "Pass 2"},
		{"XML::Parser-2.47", "XML::Parser", "2.47", ""},
		{"LFS-Bootscripts-20250827", "LFS-Bootscripts", "20250827", ""},
		{"Util-linux-2.41.1", "Util-linux", "2.41.1", ""},
		{"Glibc-2.42 (32-bit)", "Glibc", "2.42", "32-bit"},
		{"Ncurses-6.5 (32-bit libraries)", "Ncurses", "6.5", "32-bit libraries"},
		{"Creating Directories", "Creating Directories", "unknown", ""},
		{"Introduction - Notes", "Introduction - Notes", "unknown", ""},
	}
	for _, tc := range cases {
		name, version, variant := splitNameVersion(tc.title)
		assert.Equal(t, tc.name, name, tc.title)
		assert.Equal(t, tc.version, version, tc.title)
		assert.Equal(t, tc.variant, variant, tc.title)
	}
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "xml-parser", slugify("XML::Parser"))
	assert.Equal(t, "gcc", slugify("GCC"))
	assert.Equal(t, "util-linux", slugify("Util-linux"))
	assert.Equal(t, "libstdc", slugify("Libstdc++"))
	assert.Equal(t, "", slugify("--"))
}

func TestNormalizeWhitespaceFoldsNbsp(t *testing.T) {
	assert.Equal(t, "5.2. Binutils-2.45 - Pass 1",
		normalizeWhitespace("5.2. Binutils-2.45\n   - Pass 1"))
}

func TestClassifyPhasePrecedence(t *testing.T) {
	assert.Equal(t, "install", classifyPhase([]string{"make", "make install"}))
	assert.Equal(t, "test", classifyPhase([]string{"make -k check"}))
	assert.Equal(t, "test", classifyPhase([]string{"make check"}))
	assert.Equal(t, "configure", classifyPhase([]string{"../configure --prefix=/usr"}))
	assert.Equal(t, "setup", classifyPhase([]string{"tar -xf binutils-2.45.tar.xz"}))
	assert.Equal(t, "setup", classifyPhase([]string{"mkdir -v build"}))
	assert.Equal(t, "build", classifyPhase([]string{"sed -i 's/a/b/' Makefile"}))
}

func TestParseNumeric(t *testing.T) {
	v, ok := parseNumeric("1.2 SBU")
	assert.True(t, ok)
	assert.InDelta(t, 1.2, v, 1e-9)

	v, ok = parseNumeric("677 MB")
	assert.True(t, ok)
	assert.InDelta(t, 677, v, 1e-9)

	_, ok = parseNumeric("less than one")
	assert.False(t, ok)
}

func TestStageForChapter(t *testing.T) {
	assert.Equal(t, "cross-toolchain", stageForChapter(5))
	assert.Equal(t, "temporary-tools", stageForChapter(6))
	assert.Equal(t, "temporary-tools", stageForChapter(7))
	assert.Equal(t, "system", stageForChapter(8))
	assert.Equal(t, "system-configuration", stageForChapter(9))
	assert.Equal(t, "system-finalization", stageForChapter(10))
	assert.Equal(t, "", stageForChapter(3))
}
