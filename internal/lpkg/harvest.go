package lpkg

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// HarvestResult bundles the drafted record with the slug used to derive its
// on-disk filename.
type HarvestResult struct {
	Metadata PackageMetadata
	Slug     string
}

var headingRe = regexp.MustCompile(`^(\d+\.\d+)\.\s+(.+)$`)

var harvestClient = &http.Client{Timeout: 120 * time.Second}

// Harvest fetches a book page and drafts a PackageMetadata record from it.
// Partial extraction failures (missing anchor, no source URLs, no build
// steps) degrade to status issues; only a missing or unparseable heading
// aborts, because nothing can be identified without it.
func Harvest(metadataDir string, book Book, page, baseOverride string) (*HarvestResult, error) {
	pageURL, err := resolvePageURL(book, page, baseOverride)
	if err != nil {
		return nil, err
	}

	body, err := fetchPage(pageURL)
	if err != nil {
		return nil, err
	}

	return HarvestDocument(metadataDir, book, pageURL, body)
}

func fetchPage(pageURL string) (string, error) {
	resp, err := harvestClient.Get(pageURL)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("non-success status for %s: HTTP %s", pageURL, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response body from %s: %w", pageURL, err)
	}
	return string(body), nil
}

// resolvePageURL passes absolute URLs through and joins relative pages with
// the book's base URL (or an override), appending .html when missing.
func resolvePageURL(book Book, page, baseOverride string) (string, error) {
	if strings.HasPrefix(page, "http://") || strings.HasPrefix(page, "https://") {
		return page, nil
	}

	base := baseOverride
	if base == "" {
		base = defaultBaseURL(book)
	}
	if base == "" {
		return "", fmt.Errorf("no base URL available for book %q", book)
	}

	base = strings.TrimRight(base, "/")
	pagePath := strings.TrimLeft(page, "/")
	if pagePath == "" {
		pagePath = "index.html"
	}
	if !strings.HasSuffix(pagePath, ".html") {
		pagePath += ".html"
	}
	return base + "/" + pagePath, nil
}

// HarvestDocument drafts a record from already-fetched HTML. Split out from
// Harvest so fixtures can be parsed without a network round trip.
func HarvestDocument(metadataDir string, book Book, pageURL, html string) (*HarvestResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML from %s: %w", pageURL, err)
	}

	heading := doc.Find("h1.sect1").First()
	if heading.Length() == 0 {
		return nil, fmt.Errorf("no <h1 class=\"sect1\"> found on %s", pageURL)
	}
	// normalizeWhitespace also folds the non-breaking spaces in the books' markup.
	headingText := normalizeWhitespace(heading.Text())
	caps := headingRe.FindStringSubmatch(headingText)
	if caps == nil {
		return nil, fmt.Errorf("unable to parse heading %q", headingText)
	}
	section := caps[1]
	title := strings.TrimSpace(caps[2])

	name, pkgVersion, variant := splitNameVersion(title)
	chapter, _ := strconv.Atoi(strings.SplitN(section, ".", 2)[0])
	stage := stageForChapter(chapter)

	slugBase := slugify(name)
	slug := slugBase
	if variant != "" {
		slug = slugBase + "-" + slugify(variant)
	}
	packageID := fmt.Sprintf("%s/%s", book, slug)

	anchors := map[string]string{}
	if anchorID := resolveAnchor(doc, heading, slugBase, html); anchorID != "" {
		anchors["section"] = pageURL + "#" + anchorID
	}

	sourceURLs := collectSourceURLs(pageURL, doc)
	archive := inferArchiveFromCommands(doc)

	if len(sourceURLs) == 0 {
		fallback, err := fallbackURLsFromWgetList(metadataDir, book, slugBase, pkgVersion)
		if err != nil {
			colWarn.Printf("warning: failed to consult wget-list for %s %s: %v\n", slugBase, pkgVersion, err)
		} else if len(fallback) > 0 {
			debugf("Using %d URL(s) from wget-list for %s %s\n", len(fallback), slugBase, pkgVersion)
			sourceURLs = fallback
		}
	}

	if archive == "" {
		archive = archiveFromURLs(sourceURLs)
	}

	checksums, err := resolveChecksums(metadataDir, book, archive)
	if err != nil {
		colWarn.Printf("warning: failed to resolve checksums for %s %s: %v\n", slugBase, pkgVersion, err)
		checksums = nil
	}

	sbu, disk := extractArtifacts(doc)
	buildSteps := extractBuildSteps(doc)

	var issues []string
	if len(anchors) == 0 {
		issues = append(issues, "Could not locate anchor id for primary heading")
	}
	if len(sourceURLs) == 0 {
		issues = append(issues, "No source URLs with archive extensions detected")
	}
	if len(buildSteps) == 0 {
		issues = append(issues, `No <pre class="userinput"> blocks found for build commands`)
	}

	bookRelease, _ := doc.Find("body").First().Attr("id")
	contentHash := sha256.Sum256([]byte(html))

	meta := PackageMetadata{
		SchemaVersion: SchemaVersion,
		Package: PackageIdentity{
			ID:      packageID,
			Name:    name,
			Version: pkgVersion,
			Book:    string(book),
			Chapter: chapter,
			Section: section,
			Stage:   stage,
			Variant: variant,
			Anchors: anchors,
		},
		Source: SourceInfo{
			URLs:      sourceURLs,
			Archive:   archive,
			Checksums: checksums,
		},
		Artifacts: Artifacts{SBU: sbu, Disk: disk},
		Dependencies: Dependencies{
			Build:   []string{},
			Runtime: []string{},
		},
		Build: buildSteps,
		Optimizations: Optimizations{
			EnableLTO: true,
			EnablePGO: true,
			CFlags:    []string{"-O3", "-flto"},
			LDFlags:   []string{"-flto"},
		},
		Provenance: Provenance{
			BookRelease: bookRelease,
			PageURL:     pageURL,
			RetrievedAt: time.Now().UTC().Format(time.RFC3339),
			ContentHash: hex.EncodeToString(contentHash[:]),
		},
		Status: Status{State: "draft", Issues: issues},
	}
	if meta.Status.Issues == nil {
		meta.Status.Issues = []string{}
	}

	return &HarvestResult{Metadata: meta, Slug: slug}, nil
}

// resolveAnchor cascades through: the heading's own id, the id/name of its
// first child element carrying one, any a[id] containing the slug, and
// finally a raw-HTML regex search. First hit wins; "" means no anchor.
func resolveAnchor(doc *goquery.Document, heading *goquery.Selection, slugBase, html string) string {
	if id, ok := heading.Attr("id"); ok && id != "" {
		return id
	}

	anchor := ""
	heading.Children().EachWithBreak(func(_ int, child *goquery.Selection) bool {
		if id, ok := child.Attr("id"); ok && id != "" {
			anchor = id
			return false
		}
		if name, ok := child.Attr("name"); ok && name != "" {
			anchor = name
			return false
		}
		return true
	})
	if anchor != "" {
		return anchor
	}

	doc.Find("a[id]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if id, ok := a.Attr("id"); ok && strings.Contains(id, slugBase) {
			anchor = id
			return false
		}
		return true
	})
	if anchor != "" {
		return anchor
	}

	pattern := regexp.MustCompile(`id="([^"]*` + regexp.QuoteMeta(slugBase) + `[^"]*)"`)
	if m := pattern.FindStringSubmatch(html); m != nil {
		return m[1]
	}
	return ""
}

// classifyArtifactURL maps an href to a source kind by suffix, or "" when
// the link is not a source artifact.
func classifyArtifactURL(href string) string {
	lower := strings.ToLower(href)
	switch {
	case strings.HasSuffix(lower, ".tar"),
		strings.HasSuffix(lower, ".tar.gz"),
		strings.HasSuffix(lower, ".tar.bz2"),
		strings.HasSuffix(lower, ".tar.xz"),
		strings.HasSuffix(lower, ".tgz"),
		strings.HasSuffix(lower, ".zip"):
		return "primary"
	case strings.HasSuffix(lower, ".patch"):
		return "patch"
	case strings.HasSuffix(lower, ".sig"), strings.HasSuffix(lower, ".asc"):
		return "signature"
	default:
		return ""
	}
}

// collectSourceURLs gathers every archive/patch/signature link on the page,
// resolved against the page URL and de-duplicated in first-seen order.
func collectSourceURLs(pageURL string, doc *goquery.Document) []SourceURL {
	base, _ := url.Parse(pageURL)
	seen := make(map[string]bool)
	var results []SourceURL

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		kind := classifyArtifactURL(href)
		if kind == "" {
			return
		}
		resolved, err := url.Parse(href)
		if err != nil {
			return
		}
		if !resolved.IsAbs() {
			if base == nil {
				return
			}
			resolved = base.ResolveReference(resolved)
		}
		abs := resolved.String()
		if seen[abs] {
			return
		}
		seen[abs] = true
		results = append(results, SourceURL{URL: abs, Kind: kind})
	})

	return results
}

// fallbackURLsFromWgetList scans the book's cached wget-list for lines
// containing "<slug>-<version>" when the page itself carried no links.
func fallbackURLsFromWgetList(metadataDir string, book Book, slug, version string) ([]SourceURL, error) {
	manifest, err := LoadManifest(metadataDir, book, WgetList)
	if err != nil {
		return nil, err
	}

	needle := strings.ReplaceAll(slug, "_", "-") + "-" + version
	debugf("Searching wget-list for %q\n", needle)

	var entries []SourceURL
	for _, line := range strings.Split(manifest, "\n") {
		if !strings.Contains(line, needle) {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if u, err := url.Parse(trimmed); err == nil && u.IsAbs() {
			entries = append(entries, SourceURL{URL: trimmed, Kind: "primary"})
		} else {
			debugf("Unparseable wget-list line: %s\n", trimmed)
		}
	}
	return entries, nil
}

// inferArchiveFromCommands looks for a "tar -xf <archive>" token inside any
// userinput block.
func inferArchiveFromCommands(doc *goquery.Document) string {
	archive := ""
	doc.Find("pre.userinput").EachWithBreak(func(_ int, pre *goquery.Selection) bool {
		for _, line := range strings.Split(pre.Text(), "\n") {
			idx := strings.Index(line, "tar -xf")
			if idx < 0 {
				continue
			}
			fields := strings.Fields(line[idx+len("tar -xf"):])
			if len(fields) == 0 {
				continue
			}
			cleaned := strings.Trim(fields[0], `"',`)
			if strings.HasSuffix(cleaned, ".tar") || strings.Contains(cleaned, ".tar.") ||
				strings.HasSuffix(cleaned, ".tgz") || strings.HasSuffix(cleaned, ".zip") {
				archive = strings.TrimPrefix(cleaned, "../")
				return false
			}
		}
		return true
	})
	return archive
}

// archiveFromURLs falls back to the last path segment of the first source URL.
func archiveFromURLs(sources []SourceURL) string {
	for _, entry := range sources {
		u, err := url.Parse(entry.URL)
		if err != nil {
			continue
		}
		segs := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(segs) > 0 && segs[len(segs)-1] != "" {
			return segs[len(segs)-1]
		}
	}
	return ""
}

// resolveChecksums matches the inferred archive name against the book's
// md5sums manifest ("<md5hex>  <filename>" lines, exact filename match).
func resolveChecksums(metadataDir string, book Book, archive string) ([]Checksum, error) {
	if archive == "" {
		return nil, nil
	}

	manifest, err := LoadManifest(metadataDir, book, Md5Sums)
	if err != nil {
		return nil, err
	}

	for _, line := range strings.Split(manifest, "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 2 {
			continue
		}
		if fields[1] == archive {
			return []Checksum{{Alg: "md5", Value: strings.ToLower(fields[0])}}, nil
		}
	}
	return nil, nil
}

// extractArtifacts reads SBU and disk-space estimates from the package
// segmentedlist.
func extractArtifacts(doc *goquery.Document) (sbu float64, disk int64) {
	doc.Find("div.segmentedlist div.seg").Each(func(_ int, seg *goquery.Selection) {
		title := normalizeWhitespace(seg.Find("strong.segtitle").First().Text())
		body := normalizeWhitespace(seg.Find("span.segbody").First().Text())
		if title == "" || body == "" {
			return
		}
		if strings.Contains(title, "Approximate build time") {
			if value, ok := parseNumeric(body); ok {
				sbu = value
			}
		} else if strings.Contains(title, "Required disk space") {
			if value, ok := parseNumeric(body); ok {
				disk = int64(value)
			}
		}
	})
	return sbu, disk
}

// extractBuildSteps turns each userinput block into one classified phase.
func extractBuildSteps(doc *goquery.Document) []BuildPhase {
	var steps []BuildPhase
	doc.Find("pre.userinput").Each(func(_ int, pre *goquery.Selection) {
		var commands []string
		for _, line := range strings.Split(pre.Text(), "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				commands = append(commands, trimmed)
			}
		}
		if len(commands) == 0 {
			return
		}
		steps = append(steps, BuildPhase{
			Phase:    classifyPhase(commands),
			Commands: commands,
		})
	})
	return steps
}
