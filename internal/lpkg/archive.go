package lpkg

import (
	"archive/tar"
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
)

// shouldStripTar reports whether the archive keeps everything under a single
// top-level directory, in which case extraction strips that component. Only
// the first entries are listed, enough to decide without scanning a full
// kernel tarball.
func shouldStripTar(archive string) (bool, error) {
	cmd := exec.Command("sh", "-c", fmt.Sprintf("tar tf %s | head -n 51", archive))
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = io.Discard
	if err := cmd.Run(); err != nil {
		return false, fmt.Errorf("tar tf failed: %w", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return false, nil
	}

	slashIdx := strings.IndexByte(lines[0], '/')
	if slashIdx == -1 {
		return false, nil
	}
	topDir := lines[0][:slashIdx+1]
	for _, line := range lines[1:] {
		if line != "" && !strings.HasPrefix(line, topDir) {
			return false, nil
		}
	}
	return true, nil
}

// extractTar unpacks a source tarball into dest, stripping the top-level
// directory when the archive has one. System tar is tried first; the pure-Go
// path handles gz, bz2, xz and zst so extraction still works on a minimal
// host.
func extractTar(archivePath, dest string) error {
	strip, err := shouldStripTar(archivePath)
	if err != nil {
		debugf("shouldStripTar(%s) failed: %v\n", archivePath, err)
	}

	args := []string{"xf", archivePath, "-C", dest}
	if strip {
		args = append(args, "--strip-components=1")
	}
	if err := exec.Command("tar", args...).Run(); err == nil {
		debugf("Used system tar for %s\n", archivePath)
		return nil
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive %s: %w", archivePath, err)
	}
	defer f.Close()

	var r io.Reader = f
	switch {
	case strings.HasSuffix(archivePath, ".tar.gz") || strings.HasSuffix(archivePath, ".tgz"):
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("gzip reader for %s: %w", archivePath, err)
		}
		defer gz.Close()
		r = gz
	case strings.HasSuffix(archivePath, ".tar.bz2"):
		r = bzip2.NewReader(f)
	case strings.HasSuffix(archivePath, ".tar.xz"):
		xzr, err := xz.NewReader(f)
		if err != nil {
			return fmt.Errorf("xz reader for %s: %w", archivePath, err)
		}
		r = xzr
	case strings.HasSuffix(archivePath, ".tar.zst"):
		zst, err := zstd.NewReader(f)
		if err != nil {
			return fmt.Errorf("zstd reader for %s: %w", archivePath, err)
		}
		defer zst.Close()
		r = zst
	case strings.HasSuffix(archivePath, ".tar"):
	default:
		return fmt.Errorf("unsupported archive format: %s", archivePath)
	}

	return untar(r, dest, archivePath)
}

// untar extracts a plain tar stream into dest, stripping the archive's
// top-level directory when present. Entry names that resolve outside dest
// abort the extraction.
func untar(r io.Reader, dest, archivePath string) error {
	tr := tar.NewReader(r)
	var prefix string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar header in %s: %w", archivePath, err)
		}

		if hdr.Typeflag == tar.TypeXHeader || hdr.Typeflag == tar.TypeXGlobalHeader {
			if _, err := io.Copy(io.Discard, tr); err != nil {
				return fmt.Errorf("skipping extended header in %s: %w", archivePath, err)
			}
			continue
		}

		if prefix == "" && (hdr.Typeflag == tar.TypeDir || hdr.Typeflag == tar.TypeReg) {
			if slashIdx := strings.Index(hdr.Name, "/"); slashIdx != -1 {
				prefix = hdr.Name[:slashIdx+1]
			}
		}

		targetName := hdr.Name
		if prefix != "" {
			targetName = strings.TrimPrefix(targetName, prefix)
		}
		if targetName == "" {
			continue
		}
		clean := filepath.Clean(targetName)
		if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
			return fmt.Errorf("tar entry %s in %s escapes the extraction directory", hdr.Name, archivePath)
		}
		targetPath := filepath.Join(dest, clean)
		if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return fmt.Errorf("creating parent dir for %s: %w", targetPath, err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, os.FileMode(hdr.Mode)); err != nil {
				return fmt.Errorf("creating dir %s: %w", targetPath, err)
			}
		case tar.TypeReg:
			out, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return fmt.Errorf("creating file %s: %w", targetPath, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return fmt.Errorf("writing file %s: %w", targetPath, err)
			}
			out.Close()
			_ = os.Chtimes(targetPath, hdr.AccessTime, hdr.ModTime)
		case tar.TypeSymlink:
			_ = os.Remove(targetPath)
			if err := os.Symlink(hdr.Linkname, targetPath); err != nil && !os.IsExist(err) {
				return fmt.Errorf("creating symlink %s -> %s: %w", targetPath, hdr.Linkname, err)
			}
		default:
			debugf("Skipping unsupported tar entry type %c: %s\n", hdr.Typeflag, hdr.Name)
		}
	}

	if prefix == "" {
		debugf("No top-level directory prefix found in %s; extracted without stripping\n", archivePath)
	}
	return nil
}
