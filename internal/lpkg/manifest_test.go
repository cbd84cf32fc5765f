package lpkg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestURLTable(t *testing.T) {
	for _, book := range AllBooks {
		for _, kind := range []ManifestKind{WgetList, Md5Sums} {
			u, err := manifestURL(book, kind)
			require.NoError(t, err)
			assert.Contains(t, u, "linuxfromscratch.org")
		}
	}

	_, err := manifestURL(Book("bogus"), WgetList)
	assert.Error(t, err)
}

func TestParseBook(t *testing.T) {
	book, err := ParseBook("mlfs")
	require.NoError(t, err)
	assert.Equal(t, BookMLFS, book)

	_, err = ParseBook("bsd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown book")
}

func TestRefreshManifestUsesCache(t *testing.T) {
	metadataDir := t.TempDir()
	cacheDir := filepath.Join(metadataDir, "cache")
	require.NoError(t, os.MkdirAll(cacheDir, 0o755))

	cached := "https://example.invalid/cached-1.0.tar.xz\n"
	cachePath := filepath.Join(cacheDir, "mlfs-wget-list.txt")
	require.NoError(t, os.WriteFile(cachePath, []byte(cached), 0o644))

	// A warm cache short-circuits before any network access.
	path, err := RefreshManifest(metadataDir, BookMLFS, WgetList, false)
	require.NoError(t, err)
	assert.Equal(t, cachePath, path)

	text, err := LoadManifest(metadataDir, BookMLFS, WgetList)
	require.NoError(t, err)
	assert.Equal(t, cached, text)
}
