// Package textify converts MediaWiki markup into plain text suitable for
// full-text indexing. Markup is parsed into a closed set of node types and
// rendered depth-first; malformed constructs degrade to literal text.
package textify

// Node is a parsed markup element. The set of implementations is closed.
type Node interface {
	node()
}

// =============================================================================
// Inline Nodes
// =============================================================================

// Text is literal text.
type Text struct {
	Value string
}

// Emphasis is a bold or italic toggle ('' ''' or ''''').
type Emphasis struct {
	Source string
}

// MagicWord is a behavior switch such as __TOC__.
type MagicWord struct {
	Source string
}

// CharEntity is a decoded character reference such as &amp;.
type CharEntity struct {
	Source string
	Value  string
}

// Comment is an HTML comment including its delimiters.
type Comment struct {
	Source string
}

// Template is a {{name|...}} transclusion.
type Template struct {
	Name   []Node
	Params []TemplateParam
}

// TemplateParam is one template argument. Name is only meaningful when
// Named is set.
type TemplateParam struct {
	Named bool
	Name  []Node
	Value []Node
}

// Parameter is a {{{name}}} template parameter reference.
type Parameter struct {
	Source string
}

// Link is an internal [[target|text]] link.
type Link struct {
	Target string
	Text   []Node
}

// ExternalLink is a bracketed [url text] link.
type ExternalLink struct {
	Target string
	Text   []Node
}

// Image is a [[File:...]] embed.
type Image struct {
	Target  string
	Caption []Node
}

// Category is a [[Category:...]] assignment.
type Category struct {
	Target string
}

// Tag is an HTML-like start or end tag with no special handling.
type Tag struct {
	Name    string
	Closing bool
}

// =============================================================================
// Block Nodes
// =============================================================================

// Redirect marks the page as a redirect to Target.
type Redirect struct {
	Target string
}

// Heading is a section heading of the given level.
type Heading struct {
	Level int
	Nodes []Node
}

// List is a run of consecutive list lines.
type List struct {
	Items []ListItem
}

// ListItem is one list line. Marker holds the leading *#:; characters.
type ListItem struct {
	Marker string
	Nodes  []Node
}

// Table is a {| ... |} table.
type Table struct {
	Captions [][]Node
	Rows     []TableRow
}

// TableRow is one table row.
type TableRow struct {
	Cells [][]Node
}

// Preformatted is a <pre> block or a run of space-indented lines.
type Preformatted struct {
	Source string
}

// ParagraphBreak separates paragraphs.
type ParagraphBreak struct{}

// HorizontalRule is a ---- line.
type HorizontalRule struct{}

func (Text) node()           {}
func (Emphasis) node()       {}
func (MagicWord) node()      {}
func (CharEntity) node()     {}
func (Comment) node()        {}
func (Template) node()       {}
func (Parameter) node()      {}
func (Link) node()           {}
func (ExternalLink) node()   {}
func (Image) node()          {}
func (Category) node()       {}
func (Tag) node()            {}
func (Redirect) node()       {}
func (Heading) node()        {}
func (List) node()           {}
func (Table) node()          {}
func (Preformatted) node()   {}
func (ParagraphBreak) node() {}
func (HorizontalRule) node() {}
