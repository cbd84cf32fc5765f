package lpkg

import (
	"embed"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gookit/color"
)

// GLOBAL STATE
// isCriticalAtomic is 1 while a child process step (configure/make/install)
// is running and must not be interrupted by the first Ctrl-C.
var isCriticalAtomic atomic.Int32

// Global variables
var (
	rootDir     string
	CacheDir    string
	MetadataDir string
	PackagesDir string
	SchemaPath  string
	IndexPath   string
	tmpDir      string
	Debug       bool

	ConfigFile = "/etc/lpkg.conf"

	gnuMirrorURL   string
	gnuOriginalURL = "https://ftp.gnu.org/gnu"

	version   = "dev"     // overridden at build time
	buildDate = "unknown" // overridden at build time

	errPackageNotFound = errors.New("package not found")
	errModuleExists    = errors.New("package module already exists")

	// Global executors (assigned in Main)
	UserExec *Executor
	RootExec *Executor

	//go:embed data/schema.json data/mlfs_catalog.json
	embeddedAssets embed.FS
)

// color helpers
var (
	colInfo    = color.Info
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
)

func debugf(format string, args ...interface{}) {
	if Debug {
		fmt.Printf(format, args...)
	}
}
