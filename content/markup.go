package content

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// ReferencesHeading titles the appended reference list.
const ReferencesHeading = "References"

// allowedElements is everything ToMarkup can emit.
var allowedElements = []string{
	"h1", "h2", "h3", "h4", "h5", "h6",
	"p", "br", "ul", "ol", "li", "strong", "em", "sup",
}

var citeRe = regexp.MustCompile(`\{\{cite:(\d+)\}\}`)

const markerFormat = "<sup>[%d]</sup>"

// Transformer renders posts. It is safe for concurrent use.
type Transformer struct {
	parser parser.Parser
	policy *bluemonday.Policy
	strict *bluemonday.Policy
	md     *converter.Converter
}

// NewTransformer builds the Markdown parser, the sanitizing policies and the
// preview converter.
func NewTransformer() *Transformer {
	// No paragraph transformers: link reference definitions stay in the text
	// instead of disappearing into the parser context.
	mdParser := parser.NewParser(
		parser.WithBlockParsers(parser.DefaultBlockParsers()...),
		parser.WithInlineParsers(parser.DefaultInlineParsers()...),
	)

	policy := bluemonday.NewPolicy()
	policy.AllowElements(allowedElements...)

	strict := bluemonday.StrictPolicy()
	strict.AddSpaceWhenStrippingTag(true)

	return &Transformer{
		parser: mdParser,
		policy: policy,
		strict: strict,
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

var std = NewTransformer()

// ToMarkup renders p with the default transformer.
func ToMarkup(p Post) (string, error) {
	return std.ToMarkup(p)
}

// PlainText extracts visible text with the default transformer.
func PlainText(markup string) string {
	return std.PlainText(markup)
}

// Preview converts markup to Markdown with the default transformer.
func Preview(markup string) (string, error) {
	return std.Preview(markup)
}

// ToMarkup renders the post body. Each section gets its fixed heading, then
// its Markdown text with headings, lists, emphasis and paragraphs mapped to
// tags. Every other construct (code, links, quotes, raw HTML) is kept as
// escaped source text. Citation markers are numbered by first
// appearance and listed at the end. The result depends only on p.
func (t *Transformer) ToMarkup(p Post) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	r := &renderer{parser: t.parser, numbers: make(map[string]int)}
	var parts []string
	for _, s := range p.Sections {
		label, _ := HeadingFor(s.Name)
		parts = append(parts, "<h2>"+html.EscapeString(label)+"</h2>")

		blocks, err := r.section(s)
		if err != nil {
			return "", err
		}
		for _, b := range blocks {
			parts = append(parts, b.render())
		}
	}
	for _, c := range p.Citations {
		r.number(c)
	}

	if len(r.refs) > 0 {
		var list strings.Builder
		list.WriteString("<ol>")
		for _, ref := range r.refs {
			list.WriteString("<li>" + html.EscapeString(strings.TrimSpace(ref)) + "</li>")
		}
		list.WriteString("</ol>")
		parts = append(parts, "<h2>"+ReferencesHeading+"</h2>", list.String())
	}

	return t.policy.Sanitize(strings.Join(parts, "\n")), nil
}

// PlainText strips all tags and returns the visible text with whitespace
// collapsed.
func (t *Transformer) PlainText(markup string) string {
	text := html.UnescapeString(t.strict.Sanitize(markup))
	return strings.Join(strings.Fields(text), " ")
}

// Preview renders markup as Markdown for dry runs.
func (t *Transformer) Preview(markup string) (string, error) {
	out, err := t.md.ConvertString(markup)
	if err != nil {
		return "", fmt.Errorf("failed to convert markup to markdown: %w", err)
	}
	return out, nil
}

type block struct {
	tag   string
	items []string
}

func (b block) render() string {
	switch b.tag {
	case "ul", "ol":
		var sb strings.Builder
		sb.WriteString("<" + b.tag + ">")
		for _, it := range b.items {
			sb.WriteString("<li>" + it + "</li>")
		}
		sb.WriteString("</" + b.tag + ">")
		return sb.String()
	default:
		return "<" + b.tag + ">" + strings.Join(b.items, "") + "</" + b.tag + ">"
	}
}

type renderer struct {
	parser  parser.Parser
	numbers map[string]int
	refs    []string
}

// number assigns the next reference number to c unless an equal citation
// already has one.
func (r *renderer) number(c string) int {
	key := strings.TrimSpace(c)
	if n, ok := r.numbers[key]; ok {
		return n
	}
	r.refs = append(r.refs, key)
	n := len(r.refs)
	r.numbers[key] = n
	return n
}

func (r *renderer) section(s Section) ([]block, error) {
	src := []byte(strings.ReplaceAll(s.Text, "\r\n", "\n"))
	sr := &sectionRenderer{renderer: r, src: src, s: s, used: make(map[int]bool)}

	blocks := sr.blocks(r.parser.Parse(text.NewReader(src)))
	if sr.err != nil {
		return nil, sr.err
	}

	var trailing strings.Builder
	for k := 1; k <= len(s.Citations); k++ {
		if !sr.used[k] {
			fmt.Fprintf(&trailing, markerFormat, r.number(s.Citations[k-1]))
		}
	}
	if trailing.Len() > 0 && len(blocks) > 0 {
		last := &blocks[len(blocks)-1]
		last.items[len(last.items)-1] += trailing.String()
	}

	return blocks, nil
}

// sectionRenderer walks the Markdown tree of one section.
type sectionRenderer struct {
	*renderer
	src  []byte
	s    Section
	used map[int]bool
	err  error
}

func (sr *sectionRenderer) blocks(doc ast.Node) []block {
	var out []block
	for c := doc.FirstChild(); c != nil; c = c.NextSibling() {
		switch n := c.(type) {
		case *ast.Heading:
			out = append(out, block{tag: "h" + strconv.Itoa(n.Level), items: []string{sr.inline(n)}})
		case *ast.Paragraph, *ast.TextBlock:
			out = append(out, block{tag: "p", items: []string{sr.inline(n)}})
		case *ast.List:
			out = append(out, sr.list(n))
		default:
			if lit := sr.literalBlock(n); lit != "" {
				out = append(out, block{tag: "p", items: []string{lit}})
			}
		}
	}
	return out
}

func (sr *sectionRenderer) list(n *ast.List) block {
	b := block{tag: "ul"}
	if n.IsOrdered() {
		b.tag = "ol"
	}
	for item := n.FirstChild(); item != nil; item = item.NextSibling() {
		var parts []string
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			switch c := c.(type) {
			case *ast.Paragraph, *ast.TextBlock:
				parts = append(parts, sr.inline(c))
			case *ast.List:
				parts = append(parts, sr.list(c).render())
			default:
				parts = append(parts, sr.literalBlock(c))
			}
		}
		b.items = append(b.items, strings.Join(parts, "<br>"))
	}
	return b
}

// inline renders the children of a paragraph-like node. Text goes through
// the citation pass; code spans, links and raw HTML are escaped verbatim.
func (sr *sectionRenderer) inline(parent ast.Node) string {
	var out, buf strings.Builder
	flush := func() {
		if buf.Len() > 0 {
			out.WriteString(sr.cite(html.EscapeString(buf.String())))
			buf.Reset()
		}
	}
	// A break is only written once something follows it.
	pendingBreak := false
	for c := parent.FirstChild(); c != nil; c = c.NextSibling() {
		if pendingBreak {
			flush()
			out.WriteString("<br>")
			pendingBreak = false
		}
		switch n := c.(type) {
		case *ast.Text:
			buf.Write(unescape(n.Segment.Value(sr.src)))
			if n.SoftLineBreak() || n.HardLineBreak() {
				flush()
				pendingBreak = true
			}
		case *ast.String:
			buf.Write(n.Value)
		case *ast.Emphasis:
			flush()
			tag := "em"
			if n.Level >= 2 {
				tag = "strong"
			}
			out.WriteString("<" + tag + ">" + sr.inline(n) + "</" + tag + ">")
		default:
			flush()
			out.WriteString(html.EscapeString(sr.source(n)))
		}
	}
	flush()
	return out.String()
}

// cite replaces {{cite:N}} markers in escaped text with reference numbers.
func (sr *sectionRenderer) cite(escaped string) string {
	return citeRe.ReplaceAllStringFunc(escaped, func(m string) string {
		k, _ := strconv.Atoi(citeRe.FindStringSubmatch(m)[1])
		if k < 1 || k > len(sr.s.Citations) {
			if sr.err == nil {
				sr.err = fmt.Errorf("%w: %w: %s in section %q has %d citations",
					ErrInvalidPost, ErrInvalidCitation, m, sr.s.Name, len(sr.s.Citations))
			}
			return m
		}
		sr.used[k] = true
		return fmt.Sprintf(markerFormat, sr.number(sr.s.Citations[k-1]))
	})
}

// source rebuilds the Markdown source of an unsupported inline node.
func (sr *sectionRenderer) source(n ast.Node) string {
	switch n := n.(type) {
	case *ast.CodeSpan:
		var b strings.Builder
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch c := c.(type) {
			case *ast.Text:
				b.Write(c.Segment.Value(sr.src))
			case *ast.String:
				b.Write(c.Value)
			}
		}
		if strings.Contains(b.String(), "`") {
			return "`` " + b.String() + " ``"
		}
		return "`" + b.String() + "`"
	case *ast.Link:
		return "[" + sr.plain(n) + "](" + destination(n.Destination, n.Title) + ")"
	case *ast.Image:
		return "![" + sr.plain(n) + "](" + destination(n.Destination, n.Title) + ")"
	case *ast.AutoLink:
		return "<" + string(n.URL(sr.src)) + ">"
	case *ast.RawHTML:
		var b strings.Builder
		for i := 0; i < n.Segments.Len(); i++ {
			seg := n.Segments.At(i)
			b.Write(seg.Value(sr.src))
		}
		return b.String()
	}
	return sr.plain(n)
}

// plain flattens inline children back to Markdown-like text.
func (sr *sectionRenderer) plain(n ast.Node) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch c := c.(type) {
		case *ast.Text:
			b.Write(unescape(c.Segment.Value(sr.src)))
			if c.SoftLineBreak() || c.HardLineBreak() {
				b.WriteString(" ")
			}
		case *ast.String:
			b.Write(c.Value)
		case *ast.Emphasis:
			mark := strings.Repeat("*", c.Level)
			b.WriteString(mark + sr.plain(c) + mark)
		default:
			b.WriteString(sr.source(c))
		}
	}
	return strings.TrimRight(b.String(), " ")
}

func destination(dest, title []byte) string {
	if len(title) == 0 {
		return string(dest)
	}
	return string(dest) + ` "` + string(title) + `"`
}

// literalBlock renders an unsupported block as escaped source lines.
func (sr *sectionRenderer) literalBlock(n ast.Node) string {
	lines := sr.blockLines(n)
	for i, l := range lines {
		lines[i] = html.EscapeString(l)
	}
	return strings.Join(lines, "<br>")
}

func (sr *sectionRenderer) blockLines(n ast.Node) []string {
	var lines []string
	appendSegments := func(segs *text.Segments) {
		for i := 0; i < segs.Len(); i++ {
			seg := segs.At(i)
			lines = append(lines, strings.TrimRight(string(seg.Value(sr.src)), "\r\n"))
		}
	}

	switch n := n.(type) {
	case *ast.FencedCodeBlock:
		open := "```"
		if n.Info != nil {
			open += string(n.Info.Segment.Value(sr.src))
		}
		lines = append(lines, open)
		appendSegments(n.Lines())
		return append(lines, "```")
	case *ast.CodeBlock:
		appendSegments(n.Lines())
		return lines
	case *ast.HTMLBlock:
		appendSegments(n.Lines())
		if n.HasClosure() {
			lines = append(lines, strings.TrimRight(string(n.ClosureLine.Value(sr.src)), "\r\n"))
		}
		return lines
	case *ast.ThematicBreak:
		return []string{"---"}
	}
	return sr.span(n)
}

// span returns the whole source lines covered by n, markers included.
func (sr *sectionRenderer) span(n ast.Node) []string {
	start, stop := -1, -1
	widen := func(seg text.Segment) {
		if start < 0 || seg.Start < start {
			start = seg.Start
		}
		if seg.Stop > stop {
			stop = seg.Stop
		}
	}
	ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := c.(*ast.Text); ok {
			widen(t.Segment)
		}
		if c.Type() == ast.TypeBlock {
			lines := c.Lines()
			for i := 0; i < lines.Len(); i++ {
				widen(lines.At(i))
			}
		}
		return ast.WalkContinue, nil
	})
	if start < 0 {
		return nil
	}

	if stop > start && sr.src[stop-1] == '\n' {
		stop--
	}
	if i := bytes.LastIndexByte(sr.src[:start], '\n'); i >= 0 {
		start = i + 1
	} else {
		start = 0
	}
	if i := bytes.IndexByte(sr.src[stop:], '\n'); i >= 0 {
		stop += i
	} else {
		stop = len(sr.src)
	}
	return strings.Split(strings.TrimRight(string(sr.src[start:stop]), "\r\n"), "\n")
}

func unescape(b []byte) []byte {
	return util.ResolveNumericReferences(util.ResolveEntityNames(util.UnescapePunctuations(b)))
}
