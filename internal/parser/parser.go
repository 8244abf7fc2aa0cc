// Package parser converts normalized mandoc HTML into the typed document
// model: table of contents, block/inline AST, and the extracted
// description, synopsis, options and see-also references.
package parser

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/mancorpus/mancorpus/internal/document"
	"github.com/mancorpus/mancorpus/internal/manpage"
)

// Fragment is the parsed form of one rendered page.
type Fragment struct {
	Title       string
	Description string
	Doc         document.Document
	PlainText   string
	Synopsis    []document.Block
	Options     []manpage.OptionItem
	SeeAlso     []manpage.SeeAlsoRef
}

// Parse builds a Fragment from normalized renderer HTML. A page with no
// recognizable sections still produces a valid (possibly empty) document.
func Parse(src string) (*Fragment, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(src), body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	p := &pageBuilder{slugs: newSlugger()}
	p.walkTopLevel(nodes)
	return p.finish(), nil
}

// section is one top-level manual section plus its nested subsections,
// flattened into a block sequence in document order.
type section struct {
	title  string
	id     string
	blocks []document.Block
}

type pageBuilder struct {
	slugs    *slugger
	sections []section
	// preamble collects content appearing before any section heading.
	preamble []document.Block
	toc      []document.TOCEntry
	options  []manpage.OptionItem
}

func (p *pageBuilder) walkTopLevel(nodes []*html.Node) {
	for _, n := range nodes {
		p.topLevelNode(n)
	}
}

func (p *pageBuilder) topLevelNode(n *html.Node) {
	if n.Type != html.ElementNode {
		if n.Type == html.TextNode && strings.TrimSpace(n.Data) != "" {
			p.appendBlocks([]document.Block{document.Paragraph{
				Inlines: []document.Inline{document.Text{Text: collapse(n.Data)}},
			}})
		}
		return
	}

	switch n.DataAtom {
	case atom.Section:
		p.openSectionFrom(n, 1)
	case atom.H1, atom.H2:
		p.openSection(nodeText(n), 1)
	case atom.H3:
		p.subHeading(nodeText(n), 2)
	default:
		p.appendBlocks(p.convertBlocks(n, 1))
	}
}

// openSectionFrom handles a <section> container: its first heading child
// names the section, the rest is content (including nested subsections).
func (p *pageBuilder) openSectionFrom(n *html.Node, level int) {
	opened := false
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			switch c.DataAtom {
			case atom.H1, atom.H2, atom.H3:
				title := nodeText(c)
				if !opened && level == 1 {
					p.openSection(title, level)
					opened = true
				} else {
					p.subHeading(title, level+1)
				}
				continue
			case atom.Section:
				p.openSectionFrom(c, level+1)
				continue
			}
		}
		p.appendBlocks(p.convertBlocks(c, level))
	}
}

func (p *pageBuilder) openSection(title string, level int) {
	title = collapse(title)
	id := p.slugs.slug(title)
	p.sections = append(p.sections, section{title: title, id: id})
	p.toc = append(p.toc, document.TOCEntry{ID: id, Title: title, Level: level})
	p.appendBlocks([]document.Block{document.Heading{ID: id, Text: title, Level: level}})
}

// subHeading records a subsection heading inside the current section.
func (p *pageBuilder) subHeading(title string, level int) {
	title = collapse(title)
	id := p.slugs.slug(title)
	p.toc = append(p.toc, document.TOCEntry{ID: id, Title: title, Level: level})
	p.appendBlocks([]document.Block{document.Heading{ID: id, Text: title, Level: level}})
}

func (p *pageBuilder) appendBlocks(blocks []document.Block) {
	if len(blocks) == 0 {
		return
	}
	if len(p.sections) == 0 {
		p.preamble = append(p.preamble, blocks...)
		return
	}
	cur := &p.sections[len(p.sections)-1]
	cur.blocks = append(cur.blocks, blocks...)
}

// convertBlocks converts one HTML node into block nodes. Loose inline
// content is wrapped in an implicit paragraph.
func (p *pageBuilder) convertBlocks(n *html.Node, level int) []document.Block {
	if n.Type == html.TextNode {
		if strings.TrimSpace(n.Data) == "" {
			return nil
		}
		return []document.Block{document.Paragraph{
			Inlines: []document.Inline{document.Text{Text: collapse(n.Data)}},
		}}
	}
	if n.Type != html.ElementNode {
		return nil
	}

	switch n.DataAtom {
	case atom.P:
		inlines := convertInlines(n)
		if len(inlines) == 0 {
			return nil
		}
		return []document.Block{document.Paragraph{Inlines: inlines}}
	case atom.Pre:
		return []document.Block{document.CodeBlock{Text: strings.TrimRight(rawText(n), "\n")}}
	case atom.Dl:
		return []document.Block{p.convertDefinitionList(n, level)}
	case atom.Ul, atom.Ol:
		return []document.Block{p.convertList(n, level)}
	case atom.Table:
		return []document.Block{convertTable(n)}
	case atom.Hr:
		return []document.Block{document.HorizontalRule{}}
	case atom.H1, atom.H2:
		title := collapse(nodeText(n))
		id := p.slugs.slug(title)
		p.toc = append(p.toc, document.TOCEntry{ID: id, Title: title, Level: level})
		return []document.Block{document.Heading{ID: id, Text: title, Level: level}}
	case atom.H3, atom.H4:
		title := collapse(nodeText(n))
		id := p.slugs.slug(title)
		p.toc = append(p.toc, document.TOCEntry{ID: id, Title: title, Level: level + 1})
		return []document.Block{document.Heading{ID: id, Text: title, Level: level + 1}}
	case atom.Section, atom.Div, atom.Blockquote:
		var out []document.Block
		var pending []document.Inline
		flush := func() {
			if len(pending) > 0 {
				out = append(out, document.Paragraph{Inlines: pending})
				pending = nil
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if isInlineNode(c) {
				pending = append(pending, convertInline(c)...)
				continue
			}
			flush()
			out = append(out, p.convertBlocks(c, level)...)
		}
		flush()
		return out
	case atom.Br:
		return nil
	default:
		// Unknown block container: keep its inline content.
		inlines := convertInlines(n)
		if len(inlines) == 0 {
			return nil
		}
		return []document.Block{document.Paragraph{Inlines: inlines}}
	}
}

// convertDefinitionList maps a <dl> to a DefinitionList. Malformed markup
// (no <dt> terms at all) degrades to a single unstructured paragraph.
func (p *pageBuilder) convertDefinitionList(n *html.Node, level int) document.Block {
	var items []document.Definition
	var current *document.Definition

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.DataAtom {
		case atom.Dt:
			if current != nil {
				items = append(items, *current)
			}
			term := convertInlines(c)
			anchor := attr(c, "id")
			if anchor == "" {
				anchor = document.InlineText(term)
			}
			current = &document.Definition{
				Term:     term,
				AnchorID: p.slugs.slug(anchor),
			}
		case atom.Dd:
			body := p.convertChildren(c, level)
			if current == nil {
				// dd without dt: fold into an anonymous term.
				current = &document.Definition{AnchorID: p.slugs.slug("item")}
			}
			current.Body = append(current.Body, body...)
		}
	}
	if current != nil {
		items = append(items, *current)
	}

	if len(items) == 0 {
		inlines := convertInlines(n)
		return document.Paragraph{Inlines: inlines}
	}
	return document.DefinitionList{Items: items}
}

func (p *pageBuilder) convertChildren(n *html.Node, level int) []document.Block {
	var out []document.Block
	var pending []document.Inline
	flush := func() {
		if len(pending) > 0 {
			out = append(out, document.Paragraph{Inlines: pending})
			pending = nil
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if isInlineNode(c) {
			pending = append(pending, convertInline(c)...)
			continue
		}
		flush()
		out = append(out, p.convertBlocks(c, level)...)
	}
	flush()
	return out
}

func (p *pageBuilder) convertList(n *html.Node, level int) document.Block {
	list := document.List{Ordered: n.DataAtom == atom.Ol}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.DataAtom != atom.Li {
			continue
		}
		item := p.convertChildren(c, level)
		if len(item) == 0 {
			continue
		}
		list.Items = append(list.Items, item)
	}
	return list
}

func convertTable(n *html.Node) document.Block {
	var table document.Table
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Tr:
				var row []string
				for cell := c.FirstChild; cell != nil; cell = cell.NextSibling {
					if cell.Type == html.ElementNode && (cell.DataAtom == atom.Td || cell.DataAtom == atom.Th) {
						row = append(row, collapse(nodeText(cell)))
					}
				}
				table.Rows = append(table.Rows, row)
			case atom.Thead, atom.Tbody, atom.Tfoot:
				walk(c)
			}
		}
	}
	walk(n)
	return table
}

func isInlineNode(n *html.Node) bool {
	if n.Type == html.TextNode {
		return true
	}
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.A, atom.B, atom.Strong, atom.I, atom.Em, atom.Code, atom.Span, atom.Var, atom.Tt:
		return true
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// rawText is nodeText without whitespace collapsing, for code blocks.
func rawText(n *html.Node) string {
	return nodeText(n)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
