package lpkg

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// normalizeWhitespace collapses runs of whitespace (including non-breaking
// space) to a single ASCII space and trims the ends.
func normalizeWhitespace(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	prevSpace := false
	for _, r := range input {
		if unicode.IsSpace(r) {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		} else {
			prevSpace = false
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// slugify lowercases, maps non-alphanumerics to '-', collapses repeats and
// trims leading/trailing dashes.
func slugify(input string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range input {
		var c byte
		switch {
		case r >= 'A' && r <= 'Z':
			c = byte(r) + ('a' - 'A')
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			c = byte(r)
		default:
			c = '-'
		}
		if c == '-' {
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		} else {
			prevDash = false
			b.WriteByte(c)
		}
	}
	return strings.Trim(b.String(), "-")
}

// splitNameVersion splits a page title like "Binutils-2.45 - Pass 1" into
// name, version and optional variant. The version starts at the last '-'
// immediately followed by a digit, so names containing "::" or plain
// hyphens (XML::Parser-2.47, LFS-Bootscripts-20250827) split correctly.
// A " - " suffix after the version becomes the variant, as does a
// parenthetical like "Glibc-2.42 (32-bit)". When no version hyphen exists
// the whole title is the name and the version is "unknown".
func splitNameVersion(title string) (name, version, variant string) {
	base := strings.TrimSpace(title)
	for idx := len(base) - 1; idx >= 0; idx-- {
		if base[idx] != '-' || idx+1 >= len(base) {
			continue
		}
		if next := base[idx+1]; next < '0' || next > '9' {
			continue
		}
		n := strings.TrimSpace(base[:idx])
		rest := strings.TrimSpace(base[idx+1:])
		if n == "" || rest == "" {
			continue
		}

		version = rest
		if vi := strings.Index(version, " - "); vi >= 0 {
			variant = strings.TrimSpace(version[vi+3:])
			version = strings.TrimSpace(version[:vi])
		}
		if pi := strings.Index(version, " ("); pi >= 0 {
			if variant == "" {
				variant = strings.TrimSpace(strings.TrimSuffix(version[pi+2:], ")"))
			}
			version = strings.TrimSpace(version[:pi])
		}
		return n, version, variant
	}
	return base, "unknown", ""
}

// classifyPhase buckets one userinput block into a build phase. Keyword
// precedence is fixed: install wins over test wins over configure wins over
// setup; anything else is a plain build step.
func classifyPhase(commands []string) string {
	joined := strings.ToLower(strings.Join(commands, "\n"))
	switch {
	case strings.Contains(joined, "make install"):
		return "install"
	case strings.Contains(joined, "make -k check") || strings.Contains(joined, "make check"):
		return "test"
	case strings.Contains(joined, "configure"):
		return "configure"
	case strings.Contains(joined, "tar -xf") || strings.Contains(joined, "mkdir "):
		return "setup"
	default:
		return "build"
	}
}

var numericRe = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)?`)

// parseNumeric extracts the first numeric token from a segment body like
// "1.2 SBU" or "677 MB". Returns false when no number is present.
func parseNumeric(input string) (float64, bool) {
	match := numericRe.FindString(input)
	if match == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
