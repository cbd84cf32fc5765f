package lpkg

// SchemaVersion is stamped on every harvested record.
const SchemaVersion = "v0.1.0"

// PackageMetadata is the harvested/authored record, one JSON document per
// package under ai/metadata/packages/<book>/<slug>.json. Records are never
// mutated in place; re-harvesting overwrites the file.
type PackageMetadata struct {
	SchemaVersion string          `json:"schema_version"`
	Package       PackageIdentity `json:"package"`
	Source        SourceInfo      `json:"source"`
	Artifacts     Artifacts       `json:"artifacts"`
	Dependencies  Dependencies    `json:"dependencies"`
	Build         []BuildPhase    `json:"build"`
	Optimizations Optimizations   `json:"optimizations"`
	Provenance    Provenance      `json:"provenance"`
	Status        Status          `json:"status"`
}

// PackageIdentity carries the parsed heading identity. ID is globally unique
// per book ("<book>/<slug>").
type PackageIdentity struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Version string            `json:"version"`
	Book    string            `json:"book"`
	Chapter int               `json:"chapter"`
	Section string            `json:"section"`
	Stage   string            `json:"stage,omitempty"`
	Variant string            `json:"variant,omitempty"`
	Anchors map[string]string `json:"anchors"`
}

type SourceInfo struct {
	URLs      []SourceURL `json:"urls"`
	Archive   string      `json:"archive,omitempty"`
	Checksums []Checksum  `json:"checksums"`
}

type SourceURL struct {
	URL  string `json:"url"`
	Kind string `json:"kind"` // primary, patch or signature
}

type Checksum struct {
	Alg   string `json:"alg"`
	Value string `json:"value"`
}

type Artifacts struct {
	SBU           float64 `json:"sbu,omitempty"`
	Disk          int64   `json:"disk,omitempty"`
	InstallPrefix string  `json:"install_prefix,omitempty"`
}

type Dependencies struct {
	Build   []string `json:"build"`
	Runtime []string `json:"runtime"`
}

type BuildPhase struct {
	Phase        string   `json:"phase"`
	Commands     []string `json:"commands"`
	Cwd          string   `json:"cwd,omitempty"`
	RequiresRoot bool     `json:"requires_root"`
	Notes        string   `json:"notes,omitempty"`
}

type Optimizations struct {
	EnableLTO bool     `json:"enable_lto"`
	EnablePGO bool     `json:"enable_pgo"`
	CFlags    []string `json:"cflags"`
	LDFlags   []string `json:"ldflags"`
	Profdata  string   `json:"profdata,omitempty"`
}

// Provenance records where a harvest came from. ContentHash is the sha256
// of the raw page body, so it changes iff the source page text changed.
type Provenance struct {
	BookRelease string `json:"book_release"`
	PageURL     string `json:"page_url"`
	RetrievedAt string `json:"retrieved_at"`
	ContentHash string `json:"content_hash"`
}

// Status tracks the record lifecycle: draft -> validated -> indexed.
type Status struct {
	State  string   `json:"state"`
	Issues []string `json:"issues"`
}

// PackageSummary is the denormalized projection kept in index.json.
type PackageSummary struct {
	SchemaVersion string `json:"-"`
	ID            string `json:"id"`
	Name          string `json:"name"`
	Version       string `json:"version"`
	Stage         string `json:"stage,omitempty"`
	Book          string `json:"book"`
	Variant       string `json:"variant,omitempty"`
	Status        string `json:"status"`
	Path          string `json:"path"`
}

// MetadataIndex is regenerated wholesale from the full validated set, never
// incrementally patched.
type MetadataIndex struct {
	GeneratedAt   string           `json:"generated_at"`
	SchemaVersion string           `json:"schema_version"`
	Packages      []PackageSummary `json:"packages"`
}
