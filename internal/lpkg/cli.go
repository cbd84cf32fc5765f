package lpkg

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func printHelp() {
	fmt.Println("Usage: lpkg <command> [args...]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  version                         Show version information")
	fmt.Println("  list                            List stored package definitions")
	fmt.Println("  search <term>                   Search stored packages by name")
	fmt.Println("  workflow env-check <url>        Parse a build page and show the environment")
	fmt.Println("  workflow fetch-manifests        Cache wget-list and md5sums manifests")
	fmt.Println("  workflow fetch-sources          Download a book's source archives")
	fmt.Println("  workflow scaffold-package       Generate one package module")
	fmt.Println("  workflow import-mlfs            Scaffold modules from the book catalog")
	fmt.Println("  workflow build-binutils <url>   Run the binutils pass 1 cross build")
	fmt.Println("  help                            Show this help")
}

// Main is the lpkg entry point.
func Main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	// Two-stage Ctrl-C: during a critical phase (a child build step running)
	// the first signal only warns, the second forces exit. Outside critical
	// phases the first signal cancels the context and the second force-exits.
	go func() {
		for {
			select {
			case sig := <-sigs:
				if isCriticalAtomic.Load() == 1 {
					fmt.Printf("\n[WARNING] Critical operation in progress. Press Ctrl+C AGAIN to force exit NOW.\n")
					select {
					case <-sigs:
						fmt.Println("\n[FATAL] Forced immediate exit.")
						os.Exit(130)
					case <-time.After(5 * time.Second):
						continue
					case <-ctx.Done():
						return
					}
				} else {
					fmt.Printf("\n[INFO] Received %v. Cancelling process gracefully...\n", sig)
					cancel()
					time.Sleep(100 * time.Millisecond)
					select {
					case <-sigs:
						fmt.Println("\n[FATAL] Second interrupt received. Forcing immediate exit.")
						os.Exit(130)
					case <-ctx.Done():
						return
					case <-time.After(500 * time.Millisecond):
						return
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if ctx.Err() != nil {
		return
	}

	if len(os.Args) < 2 {
		printHelp()
		return
	}

	cfg, err := loadConfig(ConfigFile)
	if err != nil {
		colWarn.Printf("Config load warning: %v\n", err)
	}
	initConfig(cfg)

	UserExec = &Executor{Context: ctx, ShouldRunAsRoot: false}
	RootExec = &Executor{Context: ctx, ShouldRunAsRoot: true}

	switch os.Args[1] {
	case "version":
		fmt.Printf("lpkg %s (built %s)\n", version, buildDate)

	case "help", "-h", "--help":
		printHelp()

	case "list":
		store, err := OpenStore(databaseURL())
		if err != nil {
			colError.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
		defs, err := store.LoadPackages()
		if err != nil {
			colError.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		for _, def := range defs {
			fmt.Printf("%-28s %s\n", def.Name, def.Version)
		}

	case "search":
		fs := flag.NewFlagSet("search", flag.ExitOnError)
		limit := fs.Int("limit", 50, "maximum results")
		fs.Parse(os.Args[2:])
		if fs.NArg() < 1 {
			fmt.Println("Usage: lpkg search [--limit N] <term>")
			os.Exit(1)
		}
		store, err := OpenStore(databaseURL())
		if err != nil {
			colError.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
		defs, err := store.SearchPackages(fs.Arg(0), *limit)
		if err != nil {
			colError.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if len(defs) == 0 {
			colWarn.Printf("No packages matching %q\n", fs.Arg(0))
			return
		}
		for _, def := range defs {
			fmt.Printf("%-28s %-12s %s\n", def.Name, def.Version, def.Source)
		}

	case "workflow":
		if len(os.Args) < 3 {
			printHelp()
			os.Exit(1)
		}
		if err := runWorkflow(os.Args[2], os.Args[3:]); err != nil {
			colError.Printf("Error: %v\n", err)
			os.Exit(1)
		}

	default:
		colError.Printf("Unknown command: %s\n", os.Args[1])
		printHelp()
		os.Exit(1)
	}
}

func runWorkflow(sub string, args []string) error {
	switch sub {
	case "env-check":
		if len(args) < 1 || strings.HasPrefix(args[0], "-") {
			return fmt.Errorf("env-check requires a page URL")
		}
		return EnvCheck(args[0])

	case "fetch-manifests":
		fs := flag.NewFlagSet("fetch-manifests", flag.ExitOnError)
		bookFlag := fs.String("book", "", "book to refresh (default: all)")
		output := fs.String("output", "", "manifest cache directory (default: metadata dir)")
		force := fs.Bool("force", false, "refetch even when cached")
		fs.Parse(args)

		books := AllBooks
		if *bookFlag != "" {
			book, err := ParseBook(*bookFlag)
			if err != nil {
				return err
			}
			books = []Book{book}
		}
		outputDir := *output
		if outputDir == "" {
			outputDir = MetadataDir
		}
		return FetchManifests(books, outputDir, *force)

	case "fetch-sources":
		fs := flag.NewFlagSet("fetch-sources", flag.ExitOnError)
		bookFlag := fs.String("book", string(BookMLFS), "book whose sources to download")
		destDir := fs.String("dest", "", "destination directory (default: cache dir)")
		jobs := fs.Int("jobs", 10, "concurrent downloads")
		fs.Parse(args)

		book, err := ParseBook(*bookFlag)
		if err != nil {
			return err
		}
		dest := *destDir
		if dest == "" {
			dest = CacheDir
		}
		return FetchSources(book, dest, *jobs)

	case "scaffold-package":
		fs := flag.NewFlagSet("scaffold-package", flag.ExitOnError)
		name := fs.String("name", "", "package name (required)")
		pkgVersion := fs.String("version", "", "package version (required)")
		source := fs.String("source", "", "source archive URL")
		md5sum := fs.String("md5", "", "md5 digest of the source archive")
		baseDir := fs.String("base-dir", "pkgs/by_name", "by_name directory to scaffold into")
		module := fs.String("module", "", "module name override")
		deps := fs.String("deps", "", "comma-separated dependencies")
		lto := fs.Bool("lto", true, "enable LTO flags")
		pgo := fs.Bool("pgo", true, "enable PGO instrumentation flags")
		profdata := fs.String("profdata", "", "profile data path (switches to -fprofile-use)")
		overwrite := fs.Bool("overwrite", false, "replace an existing module")
		fs.Parse(args)

		if *name == "" || *pkgVersion == "" {
			return fmt.Errorf("scaffold-package requires --name and --version")
		}

		req := ScaffoldRequest{
			Name:           *name,
			Version:        *pkgVersion,
			Source:         *source,
			MD5:            *md5sum,
			EnableLTO:      *lto,
			EnablePGO:      *pgo,
			Profdata:       *profdata,
			ModuleOverride: *module,
			Overwrite:      *overwrite,
		}
		if *deps != "" {
			req.Dependencies = strings.Split(*deps, ",")
		}

		result, err := Scaffold(*baseDir, req)
		if err != nil {
			return err
		}
		store, err := OpenStore(databaseURL())
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.UpsertPackage(result.Definition); err != nil {
			return err
		}
		colArrow.Print("-> ")
		colSuccess.Printf("Scaffolded %s at %s\n", result.ModuleName, result.ModuleDir)
		return nil

	case "import-mlfs":
		fs := flag.NewFlagSet("import-mlfs", flag.ExitOnError)
		baseURL := fs.String("source-url", "", "book base URL override")
		baseDir := fs.String("base-dir", "pkgs/by_name", "by_name directory to scaffold into")
		limit := fs.Int("limit", 0, "import at most N packages (0 = all)")
		dryRun := fs.Bool("dry-run", false, "list what would be imported")
		overwrite := fs.Bool("overwrite", false, "replace existing modules")
		fs.Parse(args)

		return ImportMLFS(ImportOptions{
			BaseURL:   *baseURL,
			BaseDir:   *baseDir,
			Limit:     *limit,
			DryRun:    *dryRun,
			Overwrite: *overwrite,
		})

	case "build-binutils":
		fs := flag.NewFlagSet("build-binutils", flag.ExitOnError)
		lfsRoot := fs.String("lfs-root", os.Getenv("LFS"), "target tree root (default: $LFS)")
		target := fs.String("target", "", "target triplet (default: $LFS_TGT)")

		// The page URL is positional and accepted before or after the flags.
		var pageURL string
		if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
			pageURL = args[0]
			args = args[1:]
		}
		fs.Parse(args)
		if pageURL == "" && fs.NArg() > 0 {
			pageURL = fs.Arg(0)
		}

		if pageURL == "" {
			return fmt.Errorf("build-binutils requires a page URL")
		}
		if *lfsRoot == "" {
			return fmt.Errorf("build-binutils requires --lfs-root or $LFS")
		}

		isCriticalAtomic.Store(1)
		defer isCriticalAtomic.Store(0)
		return BuildFromPage(UserExec, pageURL, *lfsRoot, *target)

	default:
		return fmt.Errorf("unknown workflow command: %s", sub)
	}
}
