package lpkg

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

var manifestClient = &http.Client{Timeout: 120 * time.Second}

// RefreshManifest fetches and caches the (book, kind) jhalfs manifest under
// <metadataDir>/cache, returning the cache path. An existing cache file is
// returned unchanged unless force is set. The check-fetch-write sequence is
// guarded by an exclusive flock so concurrent refreshes single-flight
// instead of racing on the cache file.
func RefreshManifest(metadataDir string, book Book, kind ManifestKind, force bool) (string, error) {
	cacheDir := filepath.Join(metadataDir, "cache")
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("creating cache directory %s: %w", cacheDir, err)
	}

	cachePath := filepath.Join(cacheDir, fmt.Sprintf("%s-%s", book, kind.filename()))

	lockPath := cachePath + ".lock"
	lFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return "", fmt.Errorf("creating manifest lock %s: %w", lockPath, err)
	}
	defer lFile.Close()
	if err := unix.Flock(int(lFile.Fd()), unix.LOCK_EX); err != nil {
		return "", fmt.Errorf("locking manifest cache %s: %w", cachePath, err)
	}
	defer unix.Flock(int(lFile.Fd()), unix.LOCK_UN)

	if _, err := os.Stat(cachePath); err == nil && !force {
		debugf("Manifest already cached: %s\n", cachePath)
		return cachePath, nil
	}

	url, err := manifestURL(book, kind)
	if err != nil {
		return "", err
	}

	debugf("Fetching manifest %s\n", url)
	resp, err := manifestClient.Get(url)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("request failed for %s: HTTP %s", url, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response body from %s: %w", url, err)
	}
	if err := os.WriteFile(cachePath, body, 0o644); err != nil {
		return "", fmt.Errorf("caching manifest %s: %w", cachePath, err)
	}

	return cachePath, nil
}

// LoadManifest returns the cached manifest text, fetching it first when the
// cache is cold.
func LoadManifest(metadataDir string, book Book, kind ManifestKind) (string, error) {
	cachePath, err := RefreshManifest(metadataDir, book, kind, false)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(cachePath)
	if err != nil {
		return "", fmt.Errorf("reading cached manifest %s: %w", cachePath, err)
	}
	return string(data), nil
}
