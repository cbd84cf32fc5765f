package lpkg

import (
	"bufio"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sys/unix"
)

var gnuMirrorMessageOnce sync.Once

var downloadClient = &http.Client{Timeout: 30 * time.Minute}

// applyGnuMirror rewrites canonical ftp.gnu.org URLs to the configured
// mirror, when one is set.
func applyGnuMirror(originalURL string) string {
	if gnuMirrorURL != "" && strings.HasPrefix(originalURL, gnuOriginalURL) {
		return strings.Replace(originalURL, gnuOriginalURL, gnuMirrorURL, 1)
	}
	return originalURL
}

// downloadFile fetches originalURL to destPath, preferring system curl, then
// wget, then the native HTTP client. An flock on destPath.lock serializes
// concurrent downloads of the same file; whoever loses the race finds the
// file already present and returns.
func downloadFile(originalURL, destPath string, quiet bool) error {
	finalURL := applyGnuMirror(originalURL)
	if !quiet && originalURL != finalURL {
		gnuMirrorMessageOnce.Do(func() {
			colArrow.Print("-> ")
			colSuccess.Printf("Using GNU mirror: %s\n", gnuMirrorURL)
		})
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("creating parent directory for %s: %w", destPath, err)
	}

	lockPath := destPath + ".lock"
	lFile, err := os.Create(lockPath)
	if err != nil {
		return fmt.Errorf("creating download lock: %w", err)
	}
	defer lFile.Close()
	if err := unix.Flock(int(lFile.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("acquiring download lock: %w", err)
	}
	defer unix.Flock(int(lFile.Fd()), unix.LOCK_UN)

	if _, err := os.Stat(destPath); err == nil {
		debugf("File %s appeared after acquiring lock, skipping download.\n", destPath)
		_ = os.Remove(lockPath)
		return nil
	}
	defer func() {
		if _, err := os.Stat(destPath); err == nil {
			_ = os.Remove(lockPath)
		}
	}()

	debugf("Downloading %s -> %s\n", finalURL, destPath)

	if _, err := exec.LookPath("curl"); err == nil {
		curlArgs := []string{"-L", "--fail", "-o", destPath}
		if quiet {
			curlArgs = append(curlArgs, "-sS")
		} else {
			curlArgs = append(curlArgs, "-#")
		}
		curlArgs = append(curlArgs, finalURL)
		cmd := exec.Command("curl", curlArgs...)
		if quiet {
			cmd.Stdout = io.Discard
			cmd.Stderr = io.Discard
		} else {
			cmd.Stdout = os.Stdout
			cmd.Stderr = os.Stderr
		}
		if err := cmd.Run(); err == nil {
			return nil
		}
		debugf("curl failed, falling back to wget\n")
	} else {
		debugf("curl not found, trying wget\n")
	}

	if _, err := exec.LookPath("wget"); err == nil {
		args := []string{"-O", destPath, finalURL}
		if quiet {
			args = append([]string{"-q"}, args...)
		} else {
			args = append([]string{"-nv"}, args...)
		}
		cmd := exec.Command("wget", args...)
		if quiet {
			cmd.Stdout = io.Discard
			cmd.Stderr = io.Discard
		} else {
			cmd.Stdout = os.Stdout
			cmd.Stderr = os.Stderr
		}
		if err := cmd.Run(); err == nil {
			return nil
		}
		debugf("wget failed, falling back to native Go HTTP client\n")
	} else {
		debugf("wget not found, using native Go HTTP client\n")
	}

	resp, err := downloadClient.Get(finalURL)
	if err != nil {
		return fmt.Errorf("native http get failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %s", resp.Status)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating destination file %s: %w", destPath, err)
	}
	defer out.Close()

	var body io.Reader = resp.Body
	if !quiet {
		bar := progressbar.DefaultBytes(resp.ContentLength, filepath.Base(destPath))
		body = io.TeeReader(resp.Body, bar)
	}
	if _, err := io.Copy(out, body); err != nil {
		return fmt.Errorf("writing destination file: %w", err)
	}
	return nil
}

func md5File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SourceEntry is one line of the wget-list manifest, paired with its
// md5sums digest when the checksum manifest carries one.
type SourceEntry struct {
	URL      string
	Filename string
	MD5      string
}

// BuildSourceEntries joins the wget-list and md5sums manifests on filename.
func BuildSourceEntries(wgetList, md5sums string) []SourceEntry {
	digests := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(md5sums))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 2 {
			digests[fields[1]] = fields[0]
		}
	}

	var entries []SourceEntry
	scanner = bufio.NewScanner(strings.NewReader(wgetList))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		filename := line
		if idx := strings.LastIndex(line, "/"); idx >= 0 {
			filename = line[idx+1:]
		}
		entries = append(entries, SourceEntry{
			URL:      line,
			Filename: filename,
			MD5:      digests[filename],
		})
	}
	return entries
}

// DownloadResult is the per-file outcome of a batch download.
type DownloadResult struct {
	Entry  SourceEntry
	Path   string
	Cached bool
	Err    error
}

func (r DownloadResult) OK() bool { return r.Err == nil }

// DownloadBatch fetches every entry into destDir with bounded concurrency.
// One failed or corrupt file never aborts the rest of the batch; each entry
// gets its own result and the caller decides what a partial batch means.
// Files already present with a matching checksum are reported as cached.
func DownloadBatch(entries []SourceEntry, destDir string, concurrency int) []DownloadResult {
	if concurrency <= 0 {
		concurrency = 10
	}

	results := make([]DownloadResult, len(entries))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, entry := range entries {
		wg.Add(1)
		go func(i int, entry SourceEntry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = downloadOne(entry, destDir)
		}(i, entry)
	}
	wg.Wait()
	return results
}

func downloadOne(entry SourceEntry, destDir string) DownloadResult {
	destPath := filepath.Join(destDir, entry.Filename)
	result := DownloadResult{Entry: entry, Path: destPath}

	if _, err := os.Stat(destPath); err == nil {
		if err := verifyMD5(destPath, entry.MD5); err == nil {
			result.Cached = true
			return result
		}
		// Stale or truncated file, refetch.
		_ = os.Remove(destPath)
	}

	if err := downloadFile(entry.URL, destPath, true); err != nil {
		result.Err = fmt.Errorf("downloading %s: %w", entry.URL, err)
		return result
	}
	if err := verifyMD5(destPath, entry.MD5); err != nil {
		result.Err = err
	}
	return result
}

func verifyMD5(path, expected string) error {
	if expected == "" {
		return nil
	}
	actual, err := md5File(path)
	if err != nil {
		return fmt.Errorf("hashing %s: %w", path, err)
	}
	if !strings.EqualFold(actual, expected) {
		return fmt.Errorf("checksum mismatch for %s: expected %s, got %s",
			filepath.Base(path), expected, actual)
	}
	return nil
}
