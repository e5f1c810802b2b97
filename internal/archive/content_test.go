package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeContent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"open break", "a<br>b", "a\nb"},
		{"self closing break", "a<br/>b", "a\nb"},
		{"spaced self closing break", "a<br />b", "a\nb"},
		{"several breaks", "<br><br/>", "\n\n"},
		{"uppercase break untouched", "a<BR>b", "a<BR>b"},
		{"entities", "&amp; &lt;b&gt; &quot;x&quot; &auml;", "& <b> \"x\" ä"},
		{"numeric entity", "&#8364;", "€"},
		{"delete remapped", "x\x7fy", "x\uecf0y"},
		{"escaped break decoded after break pass", "&lt;br&gt;", "<br>"},
		{"plain", "nothing to do", "nothing to do"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeContent(tt.in))
		})
	}
}
