package viewhelpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscape(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"a < b", "a &lt; b"},
		{"<p>&</p>", "&lt;p&gt;&amp;&lt;/p&gt;"},
		{"<<>>&&", "&lt;&lt;&gt;&gt;&amp;&amp;"},
		{"&amp;", "&amp;amp;"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Escape(tt.in), tt.in)
	}
}

func TestAbsURL(t *testing.T) {
	const base = "https://forum.example.org"
	const thread = "/2011/05/03/hello"

	assert.Equal(t, base+thread, AbsURL(base, thread, "", "", ""))
	assert.Equal(t, base+thread+"/m100", AbsURL(base, thread, "m100", "", ""))
	assert.Equal(t, base+thread+"/m100;vote", AbsURL(base, thread, "m100", "vote", ""))
	assert.Equal(t, base+thread+"?page=2", AbsURL(base, thread, "", "", "page=2"))
	assert.Equal(t, base+thread+"/m100;edit?x=1", AbsURL(base, thread, "m100", "edit", "x=1"))
}
