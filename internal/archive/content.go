package archive

import (
	"html"
	"regexp"
	"strings"
)

// The legacy encoding used the DEL byte for a visible glyph. It is moved to a
// private-use code point so later stages do not treat it as a control char.
const (
	legacyDelete     = "\u007f"
	deleteSubstitute = "\uecf0"
)

var lineBreak = regexp.MustCompile(`<br ?/?>`)

// NormalizeContent converts raw message content into plain text: line break
// tags become newlines, entities are decoded and DEL is remapped.
func NormalizeContent(raw string) string {
	s := lineBreak.ReplaceAllString(raw, "\n")
	s = html.UnescapeString(s)
	return strings.ReplaceAll(s, legacyDelete, deleteSubstitute)
}
