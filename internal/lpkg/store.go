package lpkg

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ScannedRecord is one *.json file discovered under ai/metadata/packages.
// Summary extraction runs independently of schema validity so both failure
// kinds surface at the validate gate.
type ScannedRecord struct {
	Path       string
	RelPath    string
	Value      interface{}
	Summary    *PackageSummary
	SummaryErr error
}

// ScanPackages walks packagesDir recursively for JSON records. Per-file
// summary extraction failures are recorded on the record, not returned;
// unreadable or unparseable files abort the scan.
func ScanPackages(packagesDir string) ([]ScannedRecord, error) {
	if _, err := os.Stat(packagesDir); os.IsNotExist(err) {
		return nil, nil
	}

	relBase := filepath.Dir(packagesDir)
	var records []ScannedRecord

	err := filepath.WalkDir(packagesDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading package metadata %s: %w", path, err)
		}
		var value interface{}
		if err := json.Unmarshal(data, &value); err != nil {
			return fmt.Errorf("parsing package JSON %s: %w", path, err)
		}

		rel, err := filepath.Rel(relBase, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		record := ScannedRecord{Path: path, RelPath: rel, Value: value}
		summary, sumErr := extractSummary(value)
		if sumErr != nil {
			record.SummaryErr = sumErr
		} else {
			summary.Path = rel
			record.Summary = summary
		}
		records = append(records, record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func extractSummary(value interface{}) (*PackageSummary, error) {
	root, ok := value.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("record is not a JSON object")
	}

	schemaVersion, ok := root["schema_version"].(string)
	if !ok {
		return nil, fmt.Errorf("missing schema_version")
	}
	pkg, ok := root["package"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("missing package block")
	}
	status, ok := root["status"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("missing status block")
	}

	str := func(m map[string]interface{}, key string) (string, error) {
		v, ok := m[key].(string)
		if !ok {
			return "", fmt.Errorf("missing package.%s", key)
		}
		return v, nil
	}

	id, err := str(pkg, "id")
	if err != nil {
		return nil, err
	}
	name, err := str(pkg, "name")
	if err != nil {
		return nil, err
	}
	pkgVersion, err := str(pkg, "version")
	if err != nil {
		return nil, err
	}
	book, err := str(pkg, "book")
	if err != nil {
		return nil, err
	}
	state, ok := status["state"].(string)
	if !ok {
		return nil, fmt.Errorf("missing status.state")
	}

	stage, _ := pkg["stage"].(string)
	variant, _ := pkg["variant"].(string)

	return &PackageSummary{
		SchemaVersion: schemaVersion,
		ID:            id,
		Name:          name,
		Version:       pkgVersion,
		Stage:         stage,
		Book:          book,
		Variant:       variant,
		Status:        state,
	}, nil
}

// LoadSchema compiles the metadata JSON Schema. The on-disk schema at
// schemaPath wins; when it is absent the embedded copy is used so a fresh
// checkout validates without extra setup. The compiled schema is owned by
// the caller, no process-wide state.
func LoadSchema(schemaPath string) (*jsonschema.Schema, error) {
	data, err := os.ReadFile(schemaPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading schema file %s: %w", schemaPath, err)
		}
		data, err = embeddedAssets.ReadFile("data/schema.json")
		if err != nil {
			return nil, fmt.Errorf("reading embedded schema: %w", err)
		}
		debugf("Using embedded metadata schema (no %s)\n", schemaPath)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(string(data))); err != nil {
		return nil, fmt.Errorf("loading JSON schema: %w", err)
	}
	sch, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compiling JSON schema: %w", err)
	}
	return sch, nil
}

// ValidateRecords checks every record against the schema and accumulates
// all errors across all files; it never short-circuits. Summary extraction
// failures and schema_version drift from the first record are reported the
// same way.
func ValidateRecords(records []ScannedRecord, sch *jsonschema.Schema) []string {
	var errs []string
	firstVersion := ""

	for _, record := range records {
		if err := sch.Validate(record.Value); err != nil {
			if ve, ok := err.(*jsonschema.ValidationError); ok {
				for _, cause := range flattenCauses(ve) {
					errs = append(errs, fmt.Sprintf("%s: %s", record.RelPath, cause))
				}
			} else {
				errs = append(errs, fmt.Sprintf("%s: %v", record.RelPath, err))
			}
		}

		if record.SummaryErr != nil {
			errs = append(errs, fmt.Sprintf("%s: summary extraction failed: %v", record.RelPath, record.SummaryErr))
			continue
		}

		if firstVersion == "" {
			firstVersion = record.Summary.SchemaVersion
		} else if record.Summary.SchemaVersion != firstVersion {
			errs = append(errs, fmt.Sprintf("%s: schema_version %q differs from %q",
				record.RelPath, record.Summary.SchemaVersion, firstVersion))
		}
	}
	return errs
}

// flattenCauses walks to the leaf validation errors, which carry the
// instance locations operators actually need.
func flattenCauses(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return []string{fmt.Sprintf("%s: %s", loc, ve.Message)}
	}
	var out []string
	for _, cause := range ve.Causes {
		out = append(out, flattenCauses(cause)...)
	}
	return out
}

// BuildIndex assembles the wholesale-regenerated index document from the
// scanned set, in filesystem walk order. The index schema_version comes from
// the first record, or v0.0.0 for an empty tree.
func BuildIndex(records []ScannedRecord) MetadataIndex {
	summaries := make([]PackageSummary, 0, len(records))
	schemaVersion := "v0.0.0"
	for _, record := range records {
		if record.Summary == nil {
			continue
		}
		if len(summaries) == 0 {
			schemaVersion = record.Summary.SchemaVersion
		}
		summaries = append(summaries, *record.Summary)
	}

	return MetadataIndex{
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
		SchemaVersion: schemaVersion,
		Packages:      summaries,
	}
}

// WriteIndex serializes the index to metadataDir/index.json, pretty by
// default or compact on request.
func WriteIndex(metadataDir string, index MetadataIndex, compact bool) (string, error) {
	var data []byte
	var err error
	if compact {
		data, err = json.Marshal(index)
	} else {
		data, err = json.MarshalIndent(index, "", "  ")
	}
	if err != nil {
		return "", fmt.Errorf("serializing index: %w", err)
	}

	indexPath := filepath.Join(metadataDir, "index.json")
	if err := os.WriteFile(indexPath, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", indexPath, err)
	}
	return indexPath, nil
}

// WriteMetadata persists a harvested record to its canonical location
// (packages/<book>/<slug>.json) or an explicit output path.
func WriteMetadata(metadataDir string, result *HarvestResult, outputPath string) (string, error) {
	if outputPath == "" {
		outputPath = filepath.Join(metadataDir, "packages",
			result.Metadata.Package.Book, result.Slug+".json")
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return "", fmt.Errorf("creating directory %s: %w", filepath.Dir(outputPath), err)
	}
	data, err := json.MarshalIndent(result.Metadata, "", "  ")
	if err != nil {
		return "", fmt.Errorf("serializing metadata: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", outputPath, err)
	}
	return outputPath, nil
}
