package lpkg

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// Config struct
type Config struct {
	Values map[string]string
}

// Load /etc/lpkg.conf and apply defaults
func loadConfig(path string) (*Config, error) {
	cfg := &Config{Values: make(map[string]string)}

	// Attempt to read the file
	file, err := os.Open(path)
	if err == nil {
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			val := strings.TrimSpace(parts[1])
			val = strings.Trim(val, `"'`)
			cfg.Values[key] = val
		}
		if err := scanner.Err(); err != nil {
			return cfg, err
		}
	}

	// Merge LPKG_* env overrides
	mergeEnvOverrides(cfg)

	// Ensure TMPDIR has a default
	if tmp := cfg.Values["TMPDIR"]; tmp == "" {
		cfg.Values["TMPDIR"] = "/tmp"
	}

	return cfg, nil
}

// Merge LPKG_* env overrides
func mergeEnvOverrides(cfg *Config) {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "LPKG_") {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) == 2 {
				cfg.Values[parts[0]] = parts[1]
			}
		}
	}

	// Import LFS and LFS_TGT from the environment without overwriting an
	// explicit config file value.
	for _, key := range []string{"LFS", "LFS_TGT", "BINUTILS_SRC_DIR"} {
		if val := os.Getenv(key); val != "" {
			if _, exists := cfg.Values[key]; !exists {
				cfg.Values[key] = val
			}
		}
	}
}

func initConfig(cfg *Config) {
	rootDir = cfg.Values["LPKG_ROOT"]
	if rootDir == "" {
		rootDir = "."
	}

	CacheDir = cfg.Values["LPKG_CACHE_DIR"]
	if CacheDir == "" {
		CacheDir = filepath.Join(rootDir, "ai", "metadata", "cache")
	}

	MetadataDir = filepath.Join(rootDir, "ai", "metadata")
	PackagesDir = filepath.Join(MetadataDir, "packages")
	SchemaPath = filepath.Join(MetadataDir, "schema.json")
	IndexPath = filepath.Join(MetadataDir, "index.json")

	tmpDir = cfg.Values["TMPDIR"]
	if tmpDir == "" {
		tmpDir = "/tmp"
	}

	Debug = cfg.Values["LPKG_DEBUG"] == "1"

	// Load the GNU mirror URL if it's set in the config
	if mirror, exists := cfg.Values["GNU_MIRROR"]; exists && mirror != "" {
		gnuMirrorURL = strings.TrimRight(mirror, "/")
		debugf("=> Using GNU mirror from config: %s\n", gnuMirrorURL)
	}
}

// databaseURL resolves the sqlite path from LPKG_DATABASE_URL or falls back
// to lpkg.db in the working directory.
func databaseURL() string {
	if url := os.Getenv("LPKG_DATABASE_URL"); url != "" {
		return url
	}
	return "lpkg.db"
}
