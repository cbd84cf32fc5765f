package lpkg

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultMlfsBaseURL is the published multilib edition the catalog workflow
// ingests when no override is given.
const DefaultMlfsBaseURL = "https://linuxfromscratch.org/~thomas/multilib-m32"

// MlfsPackageRecord is one catalog entry parsed from the book's single-page
// edition. Section keeps the zero-padded "5.02" form so lexical sort matches
// book order.
type MlfsPackageRecord struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Chapter int    `json:"chapter"`
	Section string `json:"section"`
	Stage   string `json:"stage,omitempty"`
	Variant string `json:"variant,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

// ID is the catalog identity: name with '+' spelled out, variant appended
// with underscores. Distinguishes the two Binutils passes.
func (r MlfsPackageRecord) ID() string {
	id := strings.ReplaceAll(r.Name, "+", "plus")
	if r.Variant != "" {
		id += "_" + strings.ReplaceAll(r.Variant, "-", "_")
	}
	return id
}

// ModuleAlias lowers the ID into a module-name-safe form.
func (r MlfsPackageRecord) ModuleAlias() string {
	alias := r.ID()
	alias = strings.ReplaceAll(alias, ".", "_")
	alias = strings.ReplaceAll(alias, "/", "_")
	alias = strings.ReplaceAll(alias, " ", "_")
	return strings.ToLower(alias)
}

// DisplayLabel is what the import workflow prints for a record.
func (r MlfsPackageRecord) DisplayLabel() string {
	switch {
	case r.Section != "" && r.Variant != "":
		return fmt.Sprintf("%s (%s)", r.Section, r.Variant)
	case r.Section != "":
		return r.Section
	case r.Variant != "":
		return r.Variant
	default:
		return r.Name
	}
}

var bookHeadingRe = regexp.MustCompile(`^(\d+)\.(\d+)\.\s+(.+)$`)

// ParseBookCatalog extracts package records from the book's all-in-one
// page. Every h1.sect1 whose title carries a "chapter.section." prefix and a
// name-version split contributes one record; front matter and appendix
// headings fall out naturally.
func ParseBookCatalog(html string) ([]MlfsPackageRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing book HTML: %w", err)
	}

	var records []MlfsPackageRecord
	doc.Find("h1.sect1").Each(func(_ int, heading *goquery.Selection) {
		text := normalizeWhitespace(heading.Text())
		m := bookHeadingRe.FindStringSubmatch(text)
		if m == nil {
			return
		}
		chapter, _ := strconv.Atoi(m[1])
		sectionNum, _ := strconv.Atoi(m[2])
		title := strings.TrimSpace(m[3])

		name, version, variant := splitNameVersion(title)
		if version == "unknown" {
			return
		}

		records = append(records, MlfsPackageRecord{
			Name:    name,
			Version: version,
			Chapter: chapter,
			Section: fmt.Sprintf("%d.%02d", chapter, sectionNum),
			Stage:   stageForChapter(chapter),
			Variant: variant,
		})
	})
	return records, nil
}

// FetchCatalog downloads and parses the book at baseURL. An empty parse is
// an error, a half-renamed book URL should not silently import nothing.
func FetchCatalog(baseURL string) ([]MlfsPackageRecord, error) {
	url := strings.TrimRight(baseURL, "/") + "/book.html"
	body, err := fetchPage(url)
	if err != nil {
		return nil, err
	}

	records, err := ParseBookCatalog(body)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no packages parsed from book at %s", baseURL)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Name != records[j].Name {
			return records[i].Name < records[j].Name
		}
		return records[i].Variant < records[j].Variant
	})
	return records, nil
}

// LoadCachedCatalog returns the catalog snapshot compiled into the binary.
func LoadCachedCatalog() ([]MlfsPackageRecord, error) {
	raw, err := embeddedAssets.ReadFile("data/mlfs_catalog.json")
	if err != nil {
		return nil, fmt.Errorf("reading embedded catalog: %w", err)
	}
	var records []MlfsPackageRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("parsing cached package catalog: %w", err)
	}
	return records, nil
}

// LoadOrFetchCatalog prefers the live book and falls back to the embedded
// snapshot when the network fetch fails.
func LoadOrFetchCatalog(baseURL string) ([]MlfsPackageRecord, error) {
	if baseURL == "" {
		baseURL = DefaultMlfsBaseURL
	}
	records, err := FetchCatalog(baseURL)
	if err != nil {
		colWarn.Printf("Catalog fetch failed (%v), using cached package list\n", err)
		return LoadCachedCatalog()
	}
	return records, nil
}

// MatchSummary pairs a catalog record with a harvested index entry. Names
// must match after slugification (containment covers Libstdc++ style
// renames), versions must agree when the summary has one, and a record
// variant must appear in the summary variant.
func (r MlfsPackageRecord) MatchSummary(summaries []PackageSummary) *PackageSummary {
	nameSlug := slugify(strings.ReplaceAll(r.Name, "+", "plus"))
	for i := range summaries {
		s := &summaries[i]
		sSlug := slugify(strings.ReplaceAll(s.Name, "+", "plus"))
		if nameSlug != sSlug &&
			!strings.Contains(sSlug, nameSlug) && !strings.Contains(nameSlug, sSlug) {
			continue
		}
		if s.Version != "" && s.Version != "unknown" && s.Version != r.Version {
			continue
		}
		if r.Variant != "" && !strings.Contains(slugify(s.Variant), slugify(r.Variant)) {
			continue
		}
		return s
	}
	return nil
}
