package parsing

import (
	"strings"

	"github.com/yuin/goldmark"
	gast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// Nobody gets notified past this many mentions in one comment.
const MaxMentions = 30

const maxUsernameLength = 30

func isUsernameChar(b byte) bool {
	return b >= 'a' && b <= 'z' ||
		b >= 'A' && b <= 'Z' ||
		b >= '0' && b <= '9' ||
		b == '_' || b == '-' || b == '.'
}

// ----------------------
// Parser
// ----------------------

type mentionParser struct{}

func (p mentionParser) Trigger() []byte {
	return []byte{'@'}
}

func (p mentionParser) Parse(parent gast.Node, block text.Reader, pc parser.Context) gast.Node {
	// foo@example.com is not a mention.
	if isUsernameChar(byte(block.PrecendingCharacter())) {
		return nil
	}

	line, segment := block.PeekLine()
	n := 1
	for n < len(line) && n <= maxUsernameLength && isUsernameChar(line[n]) {
		n++
	}
	// Trailing dots are punctuation, not part of the name.
	for n > 1 && line[n-1] == '.' {
		n--
	}
	if n == 1 {
		return nil
	}

	block.Advance(n)
	return &MentionNode{
		Username: string(line[1:n]),
		segment:  segment.WithStop(segment.Start + n),
	}
}

// ----------------------
// AST node
// ----------------------

type MentionNode struct {
	gast.BaseInline
	Username string
	segment  text.Segment
}

var KindMention = gast.NewNodeKind("Mention")

func (n *MentionNode) Kind() gast.NodeKind {
	return KindMention
}

func (n *MentionNode) Dump(source []byte, level int) {
	gast.DumpHelper(n, source, level, map[string]string{"Username": n.Username}, nil)
}

// ----------------------
// Renderer
// ----------------------

type mentionHTMLRenderer struct {
	html.Config
}

func (r *mentionHTMLRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindMention, r.renderMention)
}

func (r *mentionHTMLRenderer) renderMention(w util.BufWriter, source []byte, n gast.Node, entering bool) (gast.WalkStatus, error) {
	if entering {
		mention := n.(*MentionNode)
		_, _ = w.WriteString(`<strong class="mention" data-username="`)
		_, _ = w.Write(util.EscapeHTML([]byte(strings.ToLower(mention.Username))))
		_, _ = w.WriteString(`">@`)
		_, _ = w.Write(util.EscapeHTML([]byte(mention.Username)))
		_, _ = w.WriteString(`</strong>`)
	}
	return gast.WalkSkipChildren, nil
}

// ----------------------
// Extension
// ----------------------

type MentionExtension struct{}

func (e MentionExtension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithInlineParsers(
		util.Prioritized(mentionParser{}, 500),
	))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(&mentionHTMLRenderer{Config: html.NewConfig()}, 500),
	))
}

func collectMentions(doc gast.Node, source []byte) []string {
	var mentions []string
	seen := make(map[string]bool)
	_ = gast.Walk(doc, func(n gast.Node, entering bool) (gast.WalkStatus, error) {
		if !entering {
			return gast.WalkContinue, nil
		}
		if mention, ok := n.(*MentionNode); ok {
			username := strings.ToLower(mention.Username)
			if !seen[username] {
				seen[username] = true
				mentions = append(mentions, username)
			}
			if len(mentions) >= MaxMentions {
				return gast.WalkStop, nil
			}
		}
		return gast.WalkContinue, nil
	})
	return mentions
}

// ExtractMentions returns the usernames mentioned in source.
func ExtractMentions(source string) []string {
	src := []byte(source)
	doc := CommentMarkdown.Parser().Parse(text.NewReader(src))
	return collectMentions(doc, src)
}

// PlainText flattens markdown into a single line of text.
func PlainText(source string) string {
	return strings.TrimSpace(ParseMarkdown(source, PlaintextMarkdown))
}
