package parsing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdown(t *testing.T) {
	t.Run("fenced code blocks", func(t *testing.T) {
		t.Run("multiple lines", func(t *testing.T) {
			html := ParseMarkdown("```\nmultiple lines\n\tof code\n```", CommentMarkdown)
			t.Log(html)
			assert.Equal(t, 1, strings.Count(html, "<pre"))
			assert.Contains(t, html, `class="forum-code"`)
			assert.Contains(t, html, "multiple lines\n\tof code")
		})
		t.Run("multiple lines with language", func(t *testing.T) {
			html := ParseMarkdown("```go\nfunc main() {\n\tfmt.Println(\"Hello, world!\")\n}\n```", CommentMarkdown)
			t.Log(html)
			assert.Equal(t, 1, strings.Count(html, "<pre"))
			assert.Contains(t, html, `class="forum-code"`)
			assert.Contains(t, html, "Println")
			assert.Contains(t, html, "Hello, world!")
		})
	})
	t.Run("raw html is not passed through", func(t *testing.T) {
		html := ParseMarkdown("hello <script>alert(1)</script>", CommentMarkdown)
		assert.NotContains(t, html, "<script>")
	})
	t.Run("bare urls are linked", func(t *testing.T) {
		html := ParseMarkdown("see https://example.com/docs for details", CommentMarkdown)
		assert.Contains(t, html, `<a href="https://example.com/docs">`)
	})
	t.Run("tables", func(t *testing.T) {
		html := ParseMarkdown("| a | b |\n|---|---|\n| 1 | 2 |", CommentMarkdown)
		assert.Contains(t, html, "<table>")
	})
}

func TestMentions(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		expected []string
	}{
		{"single", "hey @Alice, look", []string{"alice"}},
		{"start of line", "@bob", []string{"bob"}},
		{"deduplicated case-insensitively", "@Bob and @bob and @BOB", []string{"bob"}},
		{"order of first appearance", "@zed then @amy", []string{"zed", "amy"}},
		{"trailing dot", "thanks @carol.", []string{"carol"}},
		{"email is not a mention", "mail me at dave@example.com", nil},
		{"lone at sign", "meet @ noon", nil},
		{"inline code", "use `@ignored` here", nil},
		{"fenced code", "```\n@ignored\n```", nil},
		{"emphasis", "*@erin*", []string{"erin"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractMentions(tt.source))
		})
	}

	t.Run("capped", func(t *testing.T) {
		var b strings.Builder
		for i := 0; i < MaxMentions+10; i++ {
			b.WriteString("@user")
			b.WriteString(strings.Repeat("x", i+1))
			b.WriteString(" ")
		}
		assert.Len(t, ExtractMentions(b.String()), MaxMentions)
	})
}

func TestRenderComment(t *testing.T) {
	rendered, err := RenderComment("Hi @Alice <b>&</b>")
	require.Nil(t, err)
	assert.Contains(t, rendered.HTML, `<strong class="mention" data-username="alice">@Alice</strong>`)
	assert.NotContains(t, rendered.HTML, "<b>")
	assert.Equal(t, []string{"alice"}, rendered.Mentions)
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "Title Some emphasized text for @bob", PlainText("# Title\n\nSome *emphasized* text\nfor @bob"))
}
