// Package document defines the typed model a parsed manual page is stored
// as: a table of contents plus a tree of block and inline nodes. The node
// types are closed sums; every consumer (plain-text flattener, link
// rewriter, JSON codec) switches exhaustively over them so that adding a
// node type is a compile-time-visible change.
package document

// Document is one page's content model.
type Document struct {
	TOC    []TOCEntry
	Blocks []Block
}

// TOCEntry is one table-of-contents row, in document order.
type TOCEntry struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Level int    `json:"level"`
}

// Block is a block-level node. The concrete types are Heading, Paragraph,
// List, DefinitionList, CodeBlock, Table and HorizontalRule.
type Block interface {
	blockNode()
}

type Heading struct {
	ID    string
	Text  string
	Level int
}

type Paragraph struct {
	Inlines []Inline
}

// List is an ordered or unordered list. Each item is a block sequence.
type List struct {
	Ordered bool
	Items   [][]Block
}

// DefinitionList maps terms to their definitions, as produced by mandoc
// for tagged lists (options, environment variables, ...).
type DefinitionList struct {
	Items []Definition
}

// Definition is one <dt>/<dd> pair. AnchorID is the page-unique id the
// term can be linked to.
type Definition struct {
	Term     []Inline
	AnchorID string
	Body     []Block
}

type CodeBlock struct {
	Text string
}

type Table struct {
	Rows [][]string
}

type HorizontalRule struct{}

func (Heading) blockNode()        {}
func (Paragraph) blockNode()      {}
func (List) blockNode()           {}
func (DefinitionList) blockNode() {}
func (CodeBlock) blockNode()      {}
func (Table) blockNode()          {}
func (HorizontalRule) blockNode() {}

// Inline is an inline node. The concrete types are Text, Code, Emphasis,
// Strong and Link.
type Inline interface {
	inlineNode()
}

type Text struct {
	Text string
}

type Code struct {
	Text string
}

type Emphasis struct {
	Inlines []Inline
}

type Strong struct {
	Inlines []Inline
}

// LinkType classifies a Link target. The empty value means the link has
// not been through resolution yet; resolved documents only contain
// internal, external or unresolved links.
type LinkType string

const (
	LinkInternal   LinkType = "internal"
	LinkExternal   LinkType = "external"
	LinkUnresolved LinkType = "unresolved"
)

// Link is an anchor. Internal links reference other pages by a
// normalized "/man/{name}/{section}" href.
type Link struct {
	Href     string
	LinkType LinkType
	Inlines  []Inline
}

func (Text) inlineNode()     {}
func (Code) inlineNode()     {}
func (Emphasis) inlineNode() {}
func (Strong) inlineNode()   {}
func (Link) inlineNode()     {}
