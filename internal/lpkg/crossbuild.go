package lpkg

import (
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/shlex"
)

// BuildInfo is everything the cross-toolchain runner needs, parsed from a
// book instruction page rather than hardcoded.
type BuildInfo struct {
	Name          string
	Version       string
	DownloadURL   string
	ConfigureArgs []string
	BuildCmds     []string
	InstallCmds   []string
	SBU           string
	DiskSpace     string
}

// ParseBuildPage extracts build instructions from a book page. The heading
// gives name and version, the first tarball link gives the download URL and
// the pre.kbd.command blocks give configure arguments plus make lines.
// Relative download links resolve against pageURL.
func ParseBuildPage(pageURL, html string) (*BuildInfo, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing instruction page: %w", err)
	}

	info := &BuildInfo{}

	heading := doc.Find("h1.sect1").First()
	if heading.Length() > 0 {
		title := normalizeWhitespace(heading.Text())
		if m := headingRe.FindStringSubmatch(title); m != nil {
			title = m[2]
		}
		info.Name, info.Version, _ = splitNameVersion(title)
	}

	base, baseErr := url.Parse(pageURL)
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if !strings.HasSuffix(href, ".tar.xz") &&
			!strings.HasSuffix(href, ".tar.gz") &&
			!strings.HasSuffix(href, ".tgz") {
			return true
		}
		if baseErr == nil {
			if ref, err := url.Parse(href); err == nil {
				href = base.ResolveReference(ref).String()
			}
		}
		info.DownloadURL = href
		return false
	})

	doc.Find("div.segmentedlist div.seg").Each(func(_ int, seg *goquery.Selection) {
		title := strings.ToLower(seg.Find("strong.segtitle").Text())
		body := normalizeWhitespace(seg.Find("span.segbody").Text())
		switch {
		case strings.Contains(title, "approximate build time"):
			info.SBU = body
		case strings.Contains(title, "required disk space"):
			info.DiskSpace = body
		}
	})

	doc.Find("pre.kbd.command").Each(func(_ int, pre *goquery.Selection) {
		text := strings.TrimSpace(pre.Text())
		if strings.HasPrefix(text, "../configure") || strings.HasPrefix(text, "./configure") {
			info.ConfigureArgs = parseConfigureArgs(text)
			return
		}
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			switch {
			case line == "make install":
				if !containsString(info.InstallCmds, line) {
					info.InstallCmds = append(info.InstallCmds, line)
				}
			case line == "make" || strings.HasPrefix(line, "make "):
				if !containsString(info.BuildCmds, line) {
					info.BuildCmds = append(info.BuildCmds, line)
				}
			}
		}
	})

	if len(info.BuildCmds) == 0 && len(info.InstallCmds) > 0 {
		info.BuildCmds = append(info.BuildCmds, "make")
	}
	return info, nil
}

// parseConfigureArgs joins backslash-continued lines and returns the tokens
// after the configure invocation itself.
func parseConfigureArgs(block string) []string {
	var joined strings.Builder
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimRight(line, " \t")
		line = strings.TrimSuffix(line, "\\")
		joined.WriteString(strings.TrimSpace(line))
		joined.WriteByte(' ')
	}

	var args []string
	started := false
	for _, tok := range strings.Fields(joined.String()) {
		if !started {
			if strings.Contains(tok, "configure") {
				started = true
			}
			continue
		}
		args = append(args, tok)
	}
	return args
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// CrossBuildConfig fixes the filesystem layout of a pass 1 binutils build
// inside the target tree.
type CrossBuildConfig struct {
	LfsRoot string
	Target  string
	Info    *BuildInfo
}

// NewCrossBuildConfig resolves the target triplet: explicit argument, then
// $LFS_TGT, then the book's x86_64 default.
func NewCrossBuildConfig(lfsRoot, target string, info *BuildInfo) *CrossBuildConfig {
	if target == "" {
		target = os.Getenv("LFS_TGT")
	}
	if target == "" {
		target = "x86_64-lfs-linux-gnu"
	}
	return &CrossBuildConfig{LfsRoot: lfsRoot, Target: target, Info: info}
}

// SourceBaseDir is where unpacked sources live: $BINUTILS_SRC_DIR when set,
// otherwise the by-name layout inside the target tree.
func (c *CrossBuildConfig) SourceBaseDir() string {
	if dir := os.Getenv("BINUTILS_SRC_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(c.LfsRoot, "src", "pkgs", "by-name", "bi", "binutils")
}

func (c *CrossBuildConfig) BuildDir() string {
	return filepath.Join(c.LfsRoot, "build", "binutils-pass1")
}

func (c *CrossBuildConfig) InstallDir() string {
	return filepath.Join(c.LfsRoot, "tools")
}

// BuildFromPage runs the full pass 1 sequence: fetch and parse the
// instruction page, locate or download the source tree, configure in a
// separate build directory, then run the build and install steps. Steps run
// through execCtx so Ctrl-C kills the whole make process group.
func BuildFromPage(execCtx *Executor, pageURL, lfsRoot, target string) error {
	colArrow.Print("-> ")
	colSuccess.Printf("Fetching build page: %s\n", pageURL)
	html, err := fetchPage(pageURL)
	if err != nil {
		return err
	}
	info, err := ParseBuildPage(pageURL, html)
	if err != nil {
		return err
	}
	debugf("Parsed build info: %+v\n", info)

	cfg := NewCrossBuildConfig(lfsRoot, target, info)

	srcBase := cfg.SourceBaseDir()
	if err := os.MkdirAll(srcBase, 0o755); err != nil {
		return fmt.Errorf("creating source base dir %s: %w", srcBase, err)
	}

	sourceDir, err := locateSourceDir(srcBase, "binutils")
	if err != nil {
		return err
	}
	if sourceDir == "" {
		sourceDir, err = downloadAndExtract(info, srcBase)
		if err != nil {
			return err
		}
	}
	if sourceDir == "" {
		return fmt.Errorf("could not locate or download the binutils source tree under %s", srcBase)
	}
	colArrow.Print("-> ")
	colSuccess.Printf("Using source dir: %s\n", sourceDir)

	buildDir := cfg.BuildDir()
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return fmt.Errorf("creating build dir %s: %w", buildDir, err)
	}

	configurePath := filepath.Join(sourceDir, "configure")
	if _, err := os.Stat(configurePath); err != nil {
		return fmt.Errorf("configure script not found at %s", configurePath)
	}

	args := info.ConfigureArgs
	if len(args) == 0 {
		args = []string{
			"--prefix=" + cfg.InstallDir(),
			"--with-sysroot=" + cfg.LfsRoot,
			"--target=" + cfg.Target,
			"--disable-nls",
			"--disable-werror",
		}
	}
	resolved := make([]string, len(args))
	for i, a := range args {
		a = strings.ReplaceAll(a, "$LFS_TGT", cfg.Target)
		a = strings.ReplaceAll(a, "$LFS", cfg.LfsRoot)
		resolved[i] = a
	}

	env := []string{"LFS=" + cfg.LfsRoot, "LFS_TGT=" + cfg.Target}

	colArrow.Print("-> ")
	colSuccess.Printf("Configuring binutils %s for %s\n", info.Version, cfg.Target)
	configureCmd := exec.Command(configurePath, resolved...)
	configureCmd.Dir = buildDir
	configureCmd.Env = append(os.Environ(), env...)
	if err := execCtx.Run(configureCmd); err != nil {
		return fmt.Errorf("configure step failed: %w", err)
	}

	buildCmds := info.BuildCmds
	if len(buildCmds) == 0 {
		buildCmds = []string{"make"}
	}
	for _, raw := range buildCmds {
		if err := runBuildStep(execCtx, raw, buildDir, env); err != nil {
			return fmt.Errorf("build step failed: %s: %w", raw, err)
		}
	}

	installCmds := info.InstallCmds
	if len(installCmds) == 0 {
		installCmds = []string{"make install"}
	}
	for _, raw := range installCmds {
		if err := runBuildStep(execCtx, raw, buildDir, env); err != nil {
			return fmt.Errorf("install step failed: %s: %w", raw, err)
		}
	}

	colArrow.Print("-> ")
	colSuccess.Println("Binutils pass 1 build completed")
	return nil
}

// runBuildStep splits a simple command line into an argv; anything shlex
// cannot split cleanly goes through sh -c instead.
func runBuildStep(execCtx *Executor, raw, dir string, env []string) error {
	argv, err := shlex.Split(raw)
	if err != nil || len(argv) == 0 {
		return execCtx.RunShell(raw, dir, env)
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	return execCtx.Run(cmd)
}

// locateSourceDir finds the first unpacked directory under base whose name
// contains needle.
func locateSourceDir(base, needle string) (string, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading directory %s: %w", base, err)
	}
	for _, entry := range entries {
		if entry.IsDir() && strings.Contains(strings.ToLower(entry.Name()), needle) {
			return filepath.Join(base, entry.Name()), nil
		}
	}
	return "", nil
}

// downloadAndExtract fetches the page's tarball into base and unpacks it
// into a directory named after the archive stem.
func downloadAndExtract(info *BuildInfo, base string) (string, error) {
	if info.DownloadURL == "" {
		colWarn.Println("No download URL found on the page and no unpacked source present.")
		return "", nil
	}

	filename := info.DownloadURL
	if idx := strings.LastIndex(filename, "/"); idx >= 0 {
		filename = filename[idx+1:]
	}
	if filename == "" {
		return "", fmt.Errorf("cannot determine filename from URL %s", info.DownloadURL)
	}

	archivePath := filepath.Join(base, filename)
	colArrow.Print("-> ")
	colSuccess.Printf("Downloading %s\n", info.DownloadURL)
	if err := downloadFile(info.DownloadURL, archivePath, false); err != nil {
		return "", err
	}

	destDir := filepath.Join(base, archiveStem(filename))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("creating extraction dir %s: %w", destDir, err)
	}
	if err := extractTar(archivePath, destDir); err != nil {
		return "", err
	}
	return destDir, nil
}

func archiveStem(filename string) string {
	for _, suffix := range []string{".tar.xz", ".tar.gz", ".tar.bz2", ".tar.zst", ".tgz", ".tar"} {
		if strings.HasSuffix(filename, suffix) {
			return strings.TrimSuffix(filename, suffix)
		}
	}
	return filename
}
