package parsing

import (
	"io"
	"regexp"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
)

// Flattens markdown to text for search documents. Formatting is dropped;
// block boundaries become spaces.
type plaintextRenderer struct{}

var _ renderer.Renderer = plaintextRenderer{}

var backslashEscape = regexp.MustCompile("\\\\([\\\\\\x60!\"#$%&'()*+,-./:;<=>?@\\[\\]^_{|}~])")

func (r plaintextRenderer) Render(w io.Writer, source []byte, n ast.Node) error {
	return ast.Walk(n, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		var text string
		switch node := n.(type) {
		case *ast.Text:
			text = string(backslashEscape.ReplaceAll(node.Text(source), []byte("$1")))
			if node.SoftLineBreak() {
				text += " "
			}
		case *MentionNode:
			text = "@" + node.Username
		case *ast.Paragraph, *ast.Heading, *ast.ListItem, *ast.FencedCodeBlock:
			text = " "
		}

		if text == "" {
			return ast.WalkContinue, nil
		}
		_, err := io.WriteString(w, text)
		return ast.WalkContinue, err
	})
}

func (r plaintextRenderer) AddOptions(...renderer.Option) {}
