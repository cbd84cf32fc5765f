package lpkg

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTarFile(t *testing.T, tw *tar.Writer, name, content string) {
	t.Helper()
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     name,
		Typeflag: tar.TypeReg,
		Mode:     0o644,
		Size:     int64(len(content)),
	}))
	_, err := tw.Write([]byte(content))
	require.NoError(t, err)
}

func TestUntarStripsTopLevelDir(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	writeTarFile(t, tw, "pkg-1.0/README", "hello")
	writeTarFile(t, tw, "pkg-1.0/src/main.c", "int main(void) { return 0; }")
	require.NoError(t, tw.Close())

	dest := t.TempDir()
	require.NoError(t, untar(&buf, dest, "pkg-1.0.tar"))

	data, err := os.ReadFile(filepath.Join(dest, "README"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	_, err = os.Stat(filepath.Join(dest, "src", "main.c"))
	assert.NoError(t, err)
}

func TestUntarRejectsPathTraversal(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	writeTarFile(t, tw, "pkg-1.0/README", "hello")
	writeTarFile(t, tw, "../evil.txt", "owned")
	require.NoError(t, tw.Close())

	parent := t.TempDir()
	dest := filepath.Join(parent, "dest")
	require.NoError(t, os.MkdirAll(dest, 0o755))

	err := untar(&buf, dest, "pkg-1.0.tar")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes")

	_, statErr := os.Stat(filepath.Join(parent, "evil.txt"))
	assert.True(t, os.IsNotExist(statErr))
}
