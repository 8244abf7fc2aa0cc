package parser

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/mancorpus/mancorpus/internal/document"
)

var (
	// xrefPattern matches "name(section)" citation text.
	xrefPattern = regexp.MustCompile(`^([a-zA-Z0-9][-a-zA-Z0-9._:+]*)\(([1-9][a-z0-9]*)\)$`)
	// manHrefPattern matches already-normalized internal hrefs.
	manHrefPattern = regexp.MustCompile(`^/man/([^/]+)(?:/([1-9][a-z0-9]*))?$`)
	// mandocXrHref matches the relative hrefs mandoc emits for .Xr
	// references, e.g. "tar.1.html" or "../man1/tar.1.html".
	mandocXrHref = regexp.MustCompile(`([a-zA-Z0-9][-a-zA-Z0-9._:+]*)\.([1-9][a-z0-9]*)\.html$`)
)

func convertInlines(n *html.Node) []document.Inline {
	var out []document.Inline
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, convertInline(c)...)
	}
	return out
}

func convertInline(n *html.Node) []document.Inline {
	switch n.Type {
	case html.TextNode:
		text := collapseKeepEdges(n.Data)
		if text == "" {
			return nil
		}
		return []document.Inline{document.Text{Text: text}}
	case html.ElementNode:
	default:
		return nil
	}

	switch n.DataAtom {
	case atom.B, atom.Strong:
		inner := convertInlines(n)
		if len(inner) == 0 {
			return nil
		}
		return []document.Inline{document.Strong{Inlines: inner}}
	case atom.I, atom.Em, atom.Var:
		inner := convertInlines(n)
		if len(inner) == 0 {
			return nil
		}
		return []document.Inline{document.Emphasis{Inlines: inner}}
	case atom.Code, atom.Tt:
		text := collapse(nodeText(n))
		if text == "" {
			return nil
		}
		return []document.Inline{document.Code{Text: text}}
	case atom.A:
		return []document.Inline{convertLink(n)}
	case atom.Span:
		return convertInlines(n)
	case atom.Br:
		return []document.Inline{document.Text{Text: " "}}
	default:
		return convertInlines(n)
	}
}

// convertLink normalizes an anchor. Cross-reference anchors (mandoc .Xr
// output, or any "name(section)" text) get a normalized internal href and
// are left unclassified for the link resolver; everything else is
// external.
func convertLink(n *html.Node) document.Inline {
	href := attr(n, "href")
	inner := convertInlines(n)
	text := collapse(nodeText(n))

	if name, section, ok := crossReference(n, href, text); ok {
		normalized := "/man/" + name
		if section != "" {
			normalized += "/" + section
		}
		return document.Link{Href: normalized, Inlines: inner}
	}

	if href == "" {
		return document.Link{Href: "", LinkType: document.LinkExternal, Inlines: inner}
	}
	if m := manHrefPattern.FindStringSubmatch(href); m != nil {
		// Already-normalized internal href; classification happens at
		// resolution time.
		return document.Link{Href: href, Inlines: inner}
	}
	return document.Link{Href: href, LinkType: document.LinkExternal, Inlines: inner}
}

func crossReference(n *html.Node, href, text string) (name, section string, ok bool) {
	if m := xrefPattern.FindStringSubmatch(text); m != nil {
		return m[1], m[2], true
	}
	if attr(n, "class") == "Xr" {
		if m := mandocXrHref.FindStringSubmatch(href); m != nil {
			return m[1], m[2], true
		}
		if text != "" {
			return text, "", true
		}
	}
	return "", "", false
}

// collapseKeepEdges collapses interior whitespace runs but preserves a
// single leading/trailing space so adjacent inlines keep separation.
func collapseKeepEdges(s string) string {
	collapsed := collapse(s)
	if collapsed == "" {
		return ""
	}
	if strings.HasPrefix(s, " ") || strings.HasPrefix(s, "\n") || strings.HasPrefix(s, "\t") {
		collapsed = " " + collapsed
	}
	if strings.HasSuffix(s, " ") || strings.HasSuffix(s, "\n") || strings.HasSuffix(s, "\t") {
		collapsed += " "
	}
	return collapsed
}
