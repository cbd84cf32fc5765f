// Command metadata-indexer maintains the ai/metadata tree: it harvests
// package records from book pages, validates them against the JSON schema,
// regenerates the index and refreshes the cached manifests.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"lpkg/internal/lpkg"
)

func usage() {
	fmt.Println("Usage: metadata-indexer [--base-dir DIR] <command> [args...]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  harvest --book BOOK --page PAGE   Draft a metadata record from a book page")
	fmt.Println("  validate                          Check all records against the schema")
	fmt.Println("  index                             Validate and regenerate index.json")
	fmt.Println("  refresh [--books CSV] [--force]   Refresh cached wget-list/md5sums manifests")
}

func main() {
	baseDir := flag.String("base-dir", ".", "repository root containing ai/metadata")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	metadataDir := filepath.Join(*baseDir, "ai", "metadata")

	var err error
	switch flag.Arg(0) {
	case "harvest":
		err = runHarvest(metadataDir, flag.Args()[1:])
	case "validate":
		err = runValidate(metadataDir)
	case "index":
		err = runIndex(metadataDir, flag.Args()[1:])
	case "refresh":
		err = runRefresh(metadataDir, flag.Args()[1:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runHarvest(metadataDir string, args []string) error {
	fs := flag.NewFlagSet("harvest", flag.ExitOnError)
	bookFlag := fs.String("book", string(lpkg.BookMLFS), "book the page belongs to")
	page := fs.String("page", "", "page URL or chapter-relative path (required)")
	base := fs.String("base-url", "", "book base URL override")
	output := fs.String("output", "", "output path override")
	dryRun := fs.Bool("dry-run", false, "print the record instead of writing it")
	fs.Parse(args)

	if *page == "" {
		return fmt.Errorf("harvest requires --page")
	}
	book, err := lpkg.ParseBook(*bookFlag)
	if err != nil {
		return err
	}

	result, err := lpkg.Harvest(metadataDir, book, *page, *base)
	if err != nil {
		return err
	}

	if *dryRun {
		data, err := json.MarshalIndent(result.Metadata, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	path, err := lpkg.WriteMetadata(metadataDir, result, *output)
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	if len(result.Metadata.Status.Issues) > 0 {
		fmt.Printf("Record has %d issue(s):\n", len(result.Metadata.Status.Issues))
		for _, issue := range result.Metadata.Status.Issues {
			fmt.Printf("  - %s\n", issue)
		}
	}
	return nil
}

func runValidate(metadataDir string) error {
	errs, count, err := validateTree(metadataDir)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  %s\n", e)
		}
		return fmt.Errorf("%d validation error(s) across %d record(s)", len(errs), count)
	}
	fmt.Printf("All %d record(s) valid\n", count)
	return nil
}

func runIndex(metadataDir string, args []string) error {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	compact := fs.Bool("compact", false, "write compact JSON")
	fs.Parse(args)

	// The index is only ever generated from a fully valid tree.
	records, err := lpkg.ScanPackages(filepath.Join(metadataDir, "packages"))
	if err != nil {
		return err
	}
	sch, err := lpkg.LoadSchema(filepath.Join(metadataDir, "schema.json"))
	if err != nil {
		return err
	}
	if errs := lpkg.ValidateRecords(records, sch); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  %s\n", e)
		}
		return fmt.Errorf("refusing to write index: %d validation error(s)", len(errs))
	}

	index := lpkg.BuildIndex(records)
	path, err := lpkg.WriteIndex(metadataDir, index, *compact)
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%d packages)\n", path, len(index.Packages))
	return nil
}

func validateTree(metadataDir string) ([]string, int, error) {
	records, err := lpkg.ScanPackages(filepath.Join(metadataDir, "packages"))
	if err != nil {
		return nil, 0, err
	}
	sch, err := lpkg.LoadSchema(filepath.Join(metadataDir, "schema.json"))
	if err != nil {
		return nil, 0, err
	}
	return lpkg.ValidateRecords(records, sch), len(records), nil
}

func runRefresh(metadataDir string, args []string) error {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	booksFlag := fs.String("books", "", "comma-separated books to refresh (default: all)")
	force := fs.Bool("force", false, "refetch even when cached")
	fs.Parse(args)

	books := lpkg.AllBooks
	if *booksFlag != "" {
		books = nil
		for _, name := range strings.Split(*booksFlag, ",") {
			book, err := lpkg.ParseBook(strings.TrimSpace(name))
			if err != nil {
				return err
			}
			books = append(books, book)
		}
	}

	for _, book := range books {
		for _, kind := range []lpkg.ManifestKind{lpkg.WgetList, lpkg.Md5Sums} {
			path, err := lpkg.RefreshManifest(metadataDir, book, kind, *force)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s -> %s\n", book, kind.Description(), path)
		}
	}
	return nil
}
