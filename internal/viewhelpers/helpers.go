// Package viewhelpers has small string helpers for rendering thread links.
package viewhelpers

import "strings"

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Escape replaces every &, < and > in s with its HTML entity.
func Escape(s string) string {
	return escaper.Replace(s)
}

// AbsURL builds base+threadID, followed by "/"+messageID, ";"+method and
// "?"+query for each part that is not empty.
func AbsURL(base, threadID, messageID, method, query string) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteString(threadID)
	if messageID != "" {
		b.WriteByte('/')
		b.WriteString(messageID)
	}
	if method != "" {
		b.WriteByte(';')
		b.WriteString(method)
	}
	if query != "" {
		b.WriteByte('?')
		b.WriteString(query)
	}
	return b.String()
}
