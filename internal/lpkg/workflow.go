package lpkg

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ImportOptions controls the catalog import workflow.
type ImportOptions struct {
	BaseURL   string
	BaseDir   string // pkgs/by_name of the target tree
	Limit     int
	DryRun    bool
	Overwrite bool
}

// loadMetadataFile reads one harvested record back from disk.
func loadMetadataFile(path string) (*PackageMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading metadata %s: %w", path, err)
	}
	var meta PackageMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing metadata %s: %w", path, err)
	}
	return &meta, nil
}

// ImportMLFS scaffolds package modules for the book catalog. Records sharing
// a module alias collapse to the first occurrence, the optional limit caps
// how many modules are generated, and existing modules are skipped rather
// than clobbered unless overwrite is set. Harvested metadata enriches a
// record when the catalog entry matches an index summary; otherwise the
// module is scaffolded bare with the default optimization preset.
func ImportMLFS(opts ImportOptions) error {
	records, err := LoadOrFetchCatalog(opts.BaseURL)
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	var selected []MlfsPackageRecord
	for _, record := range records {
		alias := record.ModuleAlias()
		if seen[alias] {
			debugf("Skipping duplicate module alias %s (%s)\n", alias, record.DisplayLabel())
			continue
		}
		seen[alias] = true
		selected = append(selected, record)
		if opts.Limit > 0 && len(selected) >= opts.Limit {
			break
		}
	}

	if opts.DryRun {
		colArrow.Print("-> ")
		colSuccess.Printf("Would import %d packages:\n", len(selected))
		for _, record := range selected {
			fmt.Printf("  %-28s %-12s %s\n", record.ModuleAlias(), record.Version, record.DisplayLabel())
		}
		return nil
	}

	// Harvested records refine what the catalog knows.
	summaries := indexSummaries()

	store, err := OpenStore(databaseURL())
	if err != nil {
		return err
	}
	defer store.Close()

	imported, skipped, err := importRecords(store, selected, summaries, opts)
	if err != nil {
		return err
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Processed %d records: %d imported, %d skipped\n",
		len(selected), imported, len(skipped))
	for _, alias := range skipped {
		colWarn.Printf("  skipped %s (module exists)\n", alias)
	}
	return nil
}

// importRecords scaffolds and persists each record in order. Existing
// modules are collected into the skipped list in encounter order; any other
// failure aborts.
func importRecords(store *PackageStore, records []MlfsPackageRecord, summaries []PackageSummary, opts ImportOptions) (int, []string, error) {
	imported := 0
	var skipped []string
	for _, record := range records {
		req := requestForRecord(record, summaries)
		req.Overwrite = opts.Overwrite

		result, err := Scaffold(opts.BaseDir, req)
		if err != nil {
			if errors.Is(err, errModuleExists) {
				skipped = append(skipped, record.ModuleAlias())
				continue
			}
			return imported, skipped, fmt.Errorf("scaffolding %s: %w", record.ModuleAlias(), err)
		}
		if err := store.UpsertPackage(result.Definition); err != nil {
			return imported, skipped, err
		}
		imported++
		debugf("Imported %s %s -> %s\n", record.Name, record.Version, result.ModuleDir)
	}
	return imported, skipped, nil
}

// indexSummaries loads the package summaries from the metadata tree. A
// missing or unreadable tree degrades to no matches; the import still works
// from the catalog alone.
func indexSummaries() []PackageSummary {
	records, err := ScanPackages(PackagesDir)
	if err != nil {
		debugf("Metadata scan failed: %v\n", err)
		return nil
	}
	var summaries []PackageSummary
	for _, record := range records {
		if record.Summary != nil {
			summaries = append(summaries, *record.Summary)
		}
	}
	return summaries
}

// requestForRecord builds the scaffold request for one catalog entry,
// preferring harvested metadata when an index summary matches. The catalog
// record backfills stage, variant and notes wherever the metadata left them
// unset.
func requestForRecord(record MlfsPackageRecord, summaries []PackageSummary) ScaffoldRequest {
	var req ScaffoldRequest
	if summary := record.MatchSummary(summaries); summary != nil {
		meta, err := loadMetadataFile(filepath.Join(MetadataDir, summary.Path))
		if err == nil {
			req = RequestFromMetadata(meta)
			req.ModuleOverride = record.ModuleAlias()
		} else {
			debugf("Matched %s but could not load metadata: %v\n", summary.ID, err)
		}
	}

	if req.Name == "" {
		req = ScaffoldRequest{
			Name:           record.Name,
			Version:        record.Version,
			EnableLTO:      true,
			EnablePGO:      true,
			ModuleOverride: record.ModuleAlias(),
		}
	}

	if req.Stage == "" {
		req.Stage = record.Stage
	}
	if req.Variant == "" {
		req.Variant = record.Variant
	}
	if req.Notes == "" {
		req.Notes = record.Notes
	}
	return req
}

// FetchManifests refreshes the wget-list and md5sums caches for the given
// books under outputDir.
func FetchManifests(books []Book, outputDir string, force bool) error {
	for _, book := range books {
		for _, kind := range []ManifestKind{WgetList, Md5Sums} {
			path, err := RefreshManifest(outputDir, book, kind, force)
			if err != nil {
				return fmt.Errorf("refreshing %s %s: %w", book, kind.Description(), err)
			}
			colArrow.Print("-> ")
			colSuccess.Printf("%s %s cached at %s\n", book, kind.Description(), path)
		}
	}
	return nil
}

// FetchSources downloads every source archive a book's manifests name into
// destDir. Failures are collected per file; the batch always runs to
// completion and the error reports how many files failed.
func FetchSources(book Book, destDir string, concurrency int) error {
	wgetList, err := LoadManifest(MetadataDir, book, WgetList)
	if err != nil {
		return err
	}
	md5sums, err := LoadManifest(MetadataDir, book, Md5Sums)
	if err != nil {
		return err
	}

	entries := BuildSourceEntries(wgetList, md5sums)
	if len(entries) == 0 {
		return fmt.Errorf("no source URLs in the %s wget-list", book)
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Downloading %d sources for %s into %s\n", len(entries), book, destDir)
	results := DownloadBatch(entries, destDir, concurrency)

	failed := 0
	for _, result := range results {
		switch {
		case result.Err != nil:
			failed++
			colError.Printf("  FAIL %s: %v\n", result.Entry.Filename, result.Err)
		case result.Cached:
			debugf("  cached %s\n", result.Entry.Filename)
		default:
			debugf("  fetched %s\n", result.Entry.Filename)
		}
	}

	colArrow.Print("-> ")
	if failed > 0 {
		colWarn.Printf("Downloaded %d/%d sources (%d failed)\n",
			len(results)-failed, len(results), failed)
		return fmt.Errorf("%d of %d downloads failed", failed, len(results))
	}
	colSuccess.Printf("All %d sources present\n", len(results))
	return nil
}

// EnvCheck fetches and parses a build page, then reports the instruction
// set and the environment a cross build would pick up, without executing
// anything.
func EnvCheck(pageURL string) error {
	html, err := fetchPage(pageURL)
	if err != nil {
		return err
	}
	info, err := ParseBuildPage(pageURL, html)
	if err != nil {
		return err
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Parsed %s %s\n", info.Name, info.Version)
	for _, line := range buildInfoReport(info) {
		fmt.Println(line)
	}

	cfg := NewCrossBuildConfig(os.Getenv("LFS"), "", info)
	colArrow.Print("-> ")
	colSuccess.Println("Build environment:")
	if cfg.LfsRoot == "" {
		colError.Printf("  %-18s (not set, required for cross builds)\n", "LFS")
	} else {
		colSuccess.Printf("  %-18s %s\n", "LFS", cfg.LfsRoot)
	}
	colSuccess.Printf("  %-18s %s\n", "LFS_TGT", cfg.Target)

	for _, name := range []string{"BINUTILS_SRC_DIR", "GNU_MIRROR", "LPKG_DATABASE_URL"} {
		if value := os.Getenv(name); value != "" {
			colSuccess.Printf("  %-18s %s\n", name, value)
		} else {
			colWarn.Printf("  %-18s (not set, default applies)\n", name)
		}
	}
	return nil
}

// buildInfoReport renders the parsed instruction set one line per fact.
func buildInfoReport(info *BuildInfo) []string {
	lines := []string{
		fmt.Sprintf("  %-12s %s", "download:", info.DownloadURL),
	}
	if info.SBU != "" {
		lines = append(lines, fmt.Sprintf("  %-12s %s", "build time:", info.SBU))
	}
	if info.DiskSpace != "" {
		lines = append(lines, fmt.Sprintf("  %-12s %s", "disk space:", info.DiskSpace))
	}
	for _, arg := range info.ConfigureArgs {
		lines = append(lines, fmt.Sprintf("  %-12s %s", "configure:", arg))
	}
	for _, cmd := range info.BuildCmds {
		lines = append(lines, fmt.Sprintf("  %-12s %s", "build:", cmd))
	}
	for _, cmd := range info.InstallCmds {
		lines = append(lines, fmt.Sprintf("  %-12s %s", "install:", cmd))
	}
	return lines
}
