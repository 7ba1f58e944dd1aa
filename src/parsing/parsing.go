package parsing

import (
	"bytes"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
	"mvdan.cc/xurls/v2"
)

// Used for generating the HTML stored alongside each comment.
var CommentMarkdown = goldmark.New(
	goldmark.WithExtensions(makeGoldmarkExtensions()...),
)

// Used for search documents and link previews.
var PlaintextMarkdown = goldmark.New(
	goldmark.WithExtensions(makeGoldmarkExtensions()...),
	goldmark.WithRenderer(plaintextRenderer{}),
)

func ParseMarkdown(source string, md goldmark.Markdown) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		panic(err)
	}

	return buf.String()
}

type Rendered struct {
	HTML string

	// Lowercased usernames mentioned outside of code, in order of first appearance.
	Mentions []string
}

// RenderComment parses once and produces both the HTML and the mentions.
func RenderComment(source string) (Rendered, error) {
	src := []byte(source)
	doc := CommentMarkdown.Parser().Parse(text.NewReader(src), parser.WithContext(parser.NewContext()))

	var buf bytes.Buffer
	if err := CommentMarkdown.Renderer().Render(&buf, src, doc); err != nil {
		return Rendered{}, err
	}

	return Rendered{
		HTML:     buf.String(),
		Mentions: collectMentions(doc, src),
	}, nil
}

func makeGoldmarkExtensions() []goldmark.Extender {
	return []goldmark.Extender{
		extension.Table,
		extension.Strikethrough,
		extension.TaskList,
		extension.NewLinkify(
			extension.WithLinkifyURLRegexp(xurls.Strict()),
		),
		highlightExtension,
		MentionExtension{},
	}
}

var highlightExtension = highlighting.NewHighlighting(
	highlighting.WithFormatOptions(chromaOptions...),
	highlighting.WithWrapperRenderer(func(w util.BufWriter, context highlighting.CodeBlockContext, entering bool) {
		if entering {
			w.WriteString(`<pre class="forum-code">`)
		} else {
			w.WriteString(`</pre>`)
		}
	}),
)
