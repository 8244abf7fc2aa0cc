// Package resolver performs two-pass whole-batch resolution of internal
// document links and see-also references into a directed reference graph.
// The full batch must be parsed before resolution starts; streaming
// against a partial index would make resolution order-dependent.
package resolver

import (
	"regexp"
	"sort"

	"github.com/mancorpus/mancorpus/internal/document"
	"github.com/mancorpus/mancorpus/internal/manpage"
)

var manHrefPattern = regexp.MustCompile(`^/man/([^/]+)(?:/([1-9][a-z0-9]*))?$`)

type index struct {
	exact  map[string]string   // name \x00 section -> pageID
	byName map[string][]target // name -> candidates, sorted by section
}

type target struct {
	section string
	pageID  string
}

// Resolve mutates every page in the batch: internal inline links are
// classified internal or unresolved (hrefs are kept either way), see-also
// references get their resolved page id, and the deduplicated edge set is
// returned. Resolution is idempotent.
func Resolve(pages []*manpage.ParsedPage) []manpage.Edge {
	idx := buildIndex(pages)

	edgeSet := map[manpage.Edge]bool{}
	var edges []manpage.Edge
	addEdge := func(e manpage.Edge) {
		if e.From == e.To || edgeSet[e] {
			return
		}
		edgeSet[e] = true
		edges = append(edges, e)
	}

	for _, page := range pages {
		page.Doc.Blocks = resolveBlocks(page, idx, page.Doc.Blocks, addEdge)
		page.Synopsis = resolveBlocks(page, idx, page.Synopsis, addEdge)

		for i := range page.SeeAlso {
			ref := &page.SeeAlso[i]
			if id, ok := idx.lookup(ref.Name, ref.Section); ok {
				ref.ResolvedPageID = id
				addEdge(manpage.Edge{From: page.PageID, To: id, Kind: manpage.LinkSeeAlso})
			} else {
				ref.ResolvedPageID = ""
			}
		}
	}

	return edges
}

func buildIndex(pages []*manpage.ParsedPage) *index {
	idx := &index{
		exact:  make(map[string]string, len(pages)),
		byName: make(map[string][]target, len(pages)),
	}
	for _, page := range pages {
		idx.exact[page.Name+"\x00"+page.Section] = page.PageID
		idx.byName[page.Name] = append(idx.byName[page.Name], target{page.Section, page.PageID})
	}
	for name := range idx.byName {
		candidates := idx.byName[name]
		sort.Slice(candidates, func(i, j int) bool {
			return manpage.CompareSections(candidates[i].section, candidates[j].section) < 0
		})
	}
	return idx
}

// lookup resolves a (name, section) pair. An empty section matching
// several candidates picks the lowest section; this is the documented
// deterministic tie-break for ambiguous unqualified references.
func (idx *index) lookup(name, section string) (string, bool) {
	if section != "" {
		id, ok := idx.exact[name+"\x00"+section]
		return id, ok
	}
	candidates := idx.byName[name]
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[0].pageID, true
}

func resolveBlocks(page *manpage.ParsedPage, idx *index, blocks []document.Block, addEdge func(manpage.Edge)) []document.Block {
	out := make([]document.Block, len(blocks))
	for i, b := range blocks {
		switch v := b.(type) {
		case document.Paragraph:
			v.Inlines = resolveInlines(page, idx, v.Inlines, addEdge)
			out[i] = v
		case document.List:
			items := make([][]document.Block, len(v.Items))
			for j, item := range v.Items {
				items[j] = resolveBlocks(page, idx, item, addEdge)
			}
			v.Items = items
			out[i] = v
		case document.DefinitionList:
			items := make([]document.Definition, len(v.Items))
			for j, item := range v.Items {
				item.Term = resolveInlines(page, idx, item.Term, addEdge)
				item.Body = resolveBlocks(page, idx, item.Body, addEdge)
				items[j] = item
			}
			v.Items = items
			out[i] = v
		case document.Heading, document.CodeBlock, document.Table, document.HorizontalRule:
			out[i] = b
		default:
			out[i] = b
		}
	}
	return out
}

func resolveInlines(page *manpage.ParsedPage, idx *index, inlines []document.Inline, addEdge func(manpage.Edge)) []document.Inline {
	out := make([]document.Inline, len(inlines))
	for i, in := range inlines {
		switch v := in.(type) {
		case document.Link:
			v.Inlines = resolveInlines(page, idx, v.Inlines, addEdge)
			out[i] = resolveLink(page, idx, v, addEdge)
		case document.Emphasis:
			v.Inlines = resolveInlines(page, idx, v.Inlines, addEdge)
			out[i] = v
		case document.Strong:
			v.Inlines = resolveInlines(page, idx, v.Inlines, addEdge)
			out[i] = v
		case document.Text, document.Code:
			out[i] = in
		default:
			out[i] = in
		}
	}
	return out
}

// resolveLink classifies one link. Unresolvable internal hrefs are
// reclassified, never deleted.
func resolveLink(page *manpage.ParsedPage, idx *index, link document.Link, addEdge func(manpage.Edge)) document.Link {
	if link.LinkType == document.LinkExternal {
		return link
	}
	m := manHrefPattern.FindStringSubmatch(link.Href)
	if m == nil {
		link.LinkType = document.LinkExternal
		return link
	}
	if id, ok := idx.lookup(m[1], m[2]); ok {
		link.LinkType = document.LinkInternal
		addEdge(manpage.Edge{From: page.PageID, To: id, Kind: manpage.LinkXref})
	} else {
		link.LinkType = document.LinkUnresolved
	}
	return link
}
