package lpkg

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const binutilsBuildPage = `<html><body>
<h1 class="sect1" id="ch-tools-binutils-pass1">5.2. Binutils-2.45 - Pass 1</h1>
<div class="package">
  <p><a href="../../binutils-2.45.tar.xz">Binutils (2.45)</a></p>
  <div class="segmentedlist">
    <div class="seg"><strong class="segtitle">Approximate build time:</strong>
      <span class="segbody">1 SBU</span></div>
    <div class="seg"><strong class="segtitle">Required disk space:</strong>
      <span class="segbody">677 MB</span></div>
  </div>
</div>
<div class="installation">
<pre class="kbd command">../configure --prefix=$LFS/tools \
             --with-sysroot=$LFS   \
             --target=$LFS_TGT     \
             --disable-nls         \
             --enable-gprofng=no   \
             --disable-werror</pre>
<pre class="kbd command">make</pre>
<pre class="kbd command">make install</pre>
</div>
</body></html>`

func TestParseBuildPage(t *testing.T) {
	info, err := ParseBuildPage(
		"https://linuxfromscratch.org/~thomas/multilib-m32/chapter05/binutils-pass1.html",
		binutilsBuildPage)
	require.NoError(t, err)

	assert.Equal(t, "Binutils", info.Name)
	assert.Equal(t, "2.45", info.Version)
	assert.Equal(t, "https://linuxfromscratch.org/~thomas/binutils-2.45.tar.xz", info.DownloadURL)
	assert.Equal(t, "1 SBU", info.SBU)
	assert.Equal(t, "677 MB", info.DiskSpace)

	assert.Equal(t, []string{
		"--prefix=$LFS/tools",
		"--with-sysroot=$LFS",
		"--target=$LFS_TGT",
		"--disable-nls",
		"--enable-gprofng=no",
		"--disable-werror",
	}, info.ConfigureArgs)
	assert.Equal(t, []string{"make"}, info.BuildCmds)
	assert.Equal(t, []string{"make install"}, info.InstallCmds)
}

func TestParseBuildPageInfersMake(t *testing.T) {
	page := `<html><body>
<h1 class="sect1">5.2. Binutils-2.45 - Pass 1</h1>
<pre class="kbd command">make install</pre>
</body></html>`
	info, err := ParseBuildPage("https://example.invalid/p.html", page)
	require.NoError(t, err)
	assert.Equal(t, []string{"make"}, info.BuildCmds)
	assert.Equal(t, []string{"make install"}, info.InstallCmds)
}

func TestNewCrossBuildConfig(t *testing.T) {
	t.Setenv("LFS_TGT", "")
	cfg := NewCrossBuildConfig("/mnt/lfs", "", &BuildInfo{})
	assert.Equal(t, "x86_64-lfs-linux-gnu", cfg.Target)

	t.Setenv("LFS_TGT", "aarch64-lfs-linux-gnu")
	cfg = NewCrossBuildConfig("/mnt/lfs", "", &BuildInfo{})
	assert.Equal(t, "aarch64-lfs-linux-gnu", cfg.Target)

	cfg = NewCrossBuildConfig("/mnt/lfs", "riscv64-lfs-linux-gnu", &BuildInfo{})
	assert.Equal(t, "riscv64-lfs-linux-gnu", cfg.Target)

	assert.Equal(t, filepath.Join("/mnt/lfs", "build", "binutils-pass1"), cfg.BuildDir())
	assert.Equal(t, filepath.Join("/mnt/lfs", "tools"), cfg.InstallDir())
}

func TestSourceBaseDir(t *testing.T) {
	t.Setenv("BINUTILS_SRC_DIR", "")
	cfg := NewCrossBuildConfig("/mnt/lfs", "", &BuildInfo{})
	assert.Equal(t,
		filepath.Join("/mnt/lfs", "src", "pkgs", "by-name", "bi", "binutils"),
		cfg.SourceBaseDir())

	t.Setenv("BINUTILS_SRC_DIR", "/srv/sources/binutils")
	assert.Equal(t, "/srv/sources/binutils", cfg.SourceBaseDir())
}

func TestArchiveStem(t *testing.T) {
	assert.Equal(t, "binutils-2.45", archiveStem("binutils-2.45.tar.xz"))
	assert.Equal(t, "pkg-1.0", archiveStem("pkg-1.0.tgz"))
	assert.Equal(t, "plain", archiveStem("plain"))
}
