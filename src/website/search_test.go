package website

import (
	"html/template"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHighlighted(t *testing.T) {
	items := []struct {
		name     string
		input    string
		expected template.HTML
	}{
		{"plain", "hello world", "hello world"},
		{"marks survive", "say <mark>hello</mark>", "say <mark>hello</mark>"},
		{"other tags escaped", "<b>bold</b> <mark>x</mark>", "&lt;b&gt;bold&lt;/b&gt; <mark>x</mark>"},
		{"attributes on mark escaped", `<mark onclick="x">y</mark>`, `&lt;mark onclick=&#34;x&#34;&gt;y</mark>`},
		{"ampersand", "a & b", "a &amp; b"},
	}

	for _, item := range items {
		t.Run(item.name, func(t *testing.T) {
			assert.Equal(t, item.expected, highlighted(item.input))
		})
	}
}
