package parser

import (
	"regexp"
	"strings"

	"github.com/mancorpus/mancorpus/internal/document"
	"github.com/mancorpus/mancorpus/internal/manpage"
)

// nameKeywords are the heading texts (uppercased) that identify a NAME
// section, including common translations.
var nameKeywords = map[string]bool{
	"NAME": true, "BEZEICHNUNG": true, "NOMBRE": true,
	"NOM": true, "NOME": true, "NAAM": true, "NAZWA": true,
}

var seeAlsoKeywords = map[string]bool{
	"SEE ALSO": true, "SIEHE AUCH": true, "VOIR AUSSI": true,
	"VÉASE TAMBIÉN": true, "VEDERE ANCHE": true, "ZOBACZ TAKŻE": true,
}

var optionsKeywords = map[string]bool{
	"OPTIONS": true, "OPTIONEN": true, "OPCIONES": true, "OPZIONI": true,
}

var titleSeparators = []string{" -- ", " - ", " – ", " — "}

// xrefTextPattern matches "name(section)" citations inside running text.
var xrefTextPattern = regexp.MustCompile(`\b([a-zA-Z0-9][-a-zA-Z0-9._:+]*)\(([1-9][a-z0-9]*)\)`)

func (p *pageBuilder) finish() *Fragment {
	frag := &Fragment{}

	var blocks []document.Block
	blocks = append(blocks, p.preamble...)
	for _, sec := range p.sections {
		blocks = append(blocks, sec.blocks...)
	}
	toc := p.toc
	if toc == nil {
		toc = []document.TOCEntry{}
	}
	frag.Doc = document.Document{TOC: toc, Blocks: blocks}
	frag.PlainText = document.PlainText(blocks)

	if name := p.findSection(nameKeywords); name != nil {
		frag.Title, frag.Description = splitNameLine(sectionText(name))
	}
	if syn := p.findSectionByTitle("SYNOPSIS"); syn != nil {
		frag.Synopsis = contentBlocks(syn)
	}
	frag.Options = p.extractOptions()
	if sa := p.findSection(seeAlsoKeywords); sa != nil {
		frag.SeeAlso = extractSeeAlso(sa)
	}

	return frag
}

func (p *pageBuilder) findSection(keywords map[string]bool) *section {
	for i := range p.sections {
		if keywords[strings.ToUpper(p.sections[i].title)] {
			return &p.sections[i]
		}
	}
	return nil
}

func (p *pageBuilder) findSectionByTitle(title string) *section {
	for i := range p.sections {
		if strings.EqualFold(p.sections[i].title, title) {
			return &p.sections[i]
		}
	}
	return nil
}

// contentBlocks returns a section's blocks without its own heading.
func contentBlocks(sec *section) []document.Block {
	var out []document.Block
	for _, b := range sec.blocks {
		if h, ok := b.(document.Heading); ok && h.ID == sec.id {
			continue
		}
		out = append(out, b)
	}
	return out
}

func sectionText(sec *section) string {
	return document.PlainText(contentBlocks(sec))
}

// splitNameLine splits the NAME section's "name - description" line. The
// description is the text after the separator; without one the whole line
// is the title.
func splitNameLine(line string) (title, description string) {
	line = strings.TrimSpace(line)
	for _, sep := range titleSeparators {
		if i := strings.Index(line, sep); i >= 0 {
			return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+len(sep):])
		}
	}
	return line, ""
}

// extractOptions collects OptionItems from definition lists. Lists in an
// OPTIONS-titled section always count; elsewhere a list counts only when
// its first term looks like a command-line flag.
func (p *pageBuilder) extractOptions() []manpage.OptionItem {
	var out []manpage.OptionItem
	for i := range p.sections {
		sec := &p.sections[i]
		inOptions := optionsKeywords[strings.ToUpper(sec.title)]
		for _, b := range sec.blocks {
			dl, ok := b.(document.DefinitionList)
			if !ok || len(dl.Items) == 0 {
				continue
			}
			if !inOptions && !looksLikeFlag(dl.Items[0].Term) {
				continue
			}
			for _, item := range dl.Items {
				opt := optionFromDefinition(item)
				if opt.Flags == "" {
					continue
				}
				out = append(out, opt)
			}
		}
	}
	return out
}

func looksLikeFlag(term []document.Inline) bool {
	return strings.HasPrefix(strings.TrimSpace(document.InlineText(term)), "-")
}

// optionFromDefinition maps one <dt>/<dd> pair to an OptionItem: flags are
// the concatenated bold/code text, the argument is the trailing
// emphasized text, the description is the flattened body.
func optionFromDefinition(item document.Definition) manpage.OptionItem {
	flags := markedText(item.Term, false)
	if flags == "" {
		// Unmarked term: degrade to the full term text.
		flags = document.InlineText(item.Term)
	}
	return manpage.OptionItem{
		Flags:       strings.TrimSpace(flags),
		Argument:    strings.TrimSpace(markedText(item.Term, true)),
		Description: document.PlainText(item.Body),
		AnchorID:    item.AnchorID,
	}
}

// markedText flattens either the strong/code text (emphasized=false) or
// the emphasized text (emphasized=true) of an inline sequence.
func markedText(inlines []document.Inline, emphasized bool) string {
	var b strings.Builder
	for _, in := range inlines {
		switch v := in.(type) {
		case document.Strong:
			if !emphasized {
				b.WriteString(document.InlineText(v.Inlines))
				b.WriteByte(' ')
			}
		case document.Code:
			if !emphasized {
				b.WriteString(v.Text)
				b.WriteByte(' ')
			}
		case document.Emphasis:
			if emphasized {
				b.WriteString(document.InlineText(v.Inlines))
				b.WriteByte(' ')
			}
		case document.Text, document.Link:
			// Plain and linked term text contributes to neither side.
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// extractSeeAlso pulls name(section) citations from a SEE ALSO section:
// cross-reference anchors first, then bare text citations. Order is
// document order, deduplicated by (name, section).
func extractSeeAlso(sec *section) []manpage.SeeAlsoRef {
	var refs []manpage.SeeAlsoRef
	seen := map[string]bool{}
	add := func(name, section string) {
		key := name + "\x00" + section
		if name == "" || seen[key] {
			return
		}
		seen[key] = true
		refs = append(refs, manpage.SeeAlsoRef{Name: name, Section: section})
	}

	var walkInlines func([]document.Inline)
	walkInlines = func(inlines []document.Inline) {
		for _, in := range inlines {
			switch v := in.(type) {
			case document.Link:
				if m := manHrefPattern.FindStringSubmatch(v.Href); m != nil {
					add(m[1], m[2])
					continue
				}
				walkInlines(v.Inlines)
			case document.Text:
				for _, m := range xrefTextPattern.FindAllStringSubmatch(v.Text, -1) {
					add(m[1], m[2])
				}
			case document.Emphasis:
				walkInlines(v.Inlines)
			case document.Strong:
				walkInlines(v.Inlines)
			case document.Code:
				for _, m := range xrefTextPattern.FindAllStringSubmatch(v.Text, -1) {
					add(m[1], m[2])
				}
			}
		}
	}

	var walkBlocks func([]document.Block)
	walkBlocks = func(blocks []document.Block) {
		for _, b := range blocks {
			switch v := b.(type) {
			case document.Paragraph:
				walkInlines(v.Inlines)
			case document.List:
				for _, item := range v.Items {
					walkBlocks(item)
				}
			case document.DefinitionList:
				for _, item := range v.Items {
					walkInlines(item.Term)
					walkBlocks(item.Body)
				}
			case document.CodeBlock:
				for _, m := range xrefTextPattern.FindAllStringSubmatch(v.Text, -1) {
					add(m[1], m[2])
				}
			case document.Heading, document.Table, document.HorizontalRule:
				// No citations expected.
			}
		}
	}
	walkBlocks(contentBlocks(sec))

	return refs
}
