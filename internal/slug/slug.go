// Package slug turns free-text subjects into the URL-safe path segments used
// in thread ids. The output is part of every permanent thread URL, so the
// rules here must not change once threads have been imported.
package slug

import (
	"regexp"
	"strings"
)

// MaxLength is the length after which a slug is cut and marked with Ellipsis.
const MaxLength = 120

// Ellipsis is appended to truncated slugs.
const Ellipsis = "..."

type transliteration struct {
	chars       string
	replacement string
}

// transliterations is applied in order after lowercasing.
var transliterations = []transliteration{
	{"äÄ", "ae"},
	{"öÖ", "oe"},
	{"üÜ", "ue"},
	{"ß", "ss"},
	{"ÀÁÂÃÅÆàáâãåæĀāĂăĄą", "a"},
	{"ÇçĆćĈĉĊċČč", "c"},
	{"ÐĎďĐđ", "d"},
	{"ÈÉÊËèéêëĒēĔĕĖėĘęĚě", "e"},
	{"ÌÍÎÏìíîï", "i"},
	{"Ññ", "n"},
	{"ÒÓÔÕ×Øòóôõø", "o"},
	{"ÙÚÛùúû", "u"},
	{"Ýýÿ", "y"},
}

var (
	disallowed = regexp.MustCompile(`[^a-zA-Z0-9.$%;,_*-]`)
	hyphenRuns = regexp.MustCompile(`-{2,}`)
)

// Make returns the slug for s.
func Make(s string) string {
	s = strings.ReplaceAll(s, " ", "-")
	s = lowerASCII(s)

	for _, t := range transliterations {
		s = replaceAny(s, t.chars, t.replacement)
	}

	s = disallowed.ReplaceAllString(s, "-")
	s = hyphenRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	// Only ASCII is left at this point, so byte offsets are character offsets.
	if len(s) > MaxLength {
		s = s[:MaxLength] + Ellipsis
	}

	return s
}

// lowerASCII folds A-Z only; other letters are handled by the
// transliteration table or end up as hyphens.
func lowerASCII(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}

func replaceAny(s, chars, replacement string) string {
	if !strings.ContainsAny(s, chars) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + len(replacement))
	for _, r := range s {
		if strings.ContainsRune(chars, r) {
			b.WriteString(replacement)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
