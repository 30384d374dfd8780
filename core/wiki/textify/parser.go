package textify

import (
	"html"
	"strings"
)

// maxDepth bounds construct nesting. Deeper constructs are kept as text.
const maxDepth = 64

type construct int

const (
	constructTemplate construct = iota
	constructParameter
	constructLink
	constructExternalLink
	constructTable
	constructComment
	constructNowiki
	constructPre
	constructTag
)

// failKey records a construct that could not be parsed at a position so it
// is never retried there.
type failKey struct {
	kind construct
	pos  int
}

var (
	templateNameStops  = []string{"|", "}}"}
	templateParamStops = []string{"|", "}}", "="}
	linkTextStops      = []string{"]]"}
	imageOptionStops   = []string{"|", "]]"}
	externalTextStops  = []string{"]", "\n"}
)

type parser struct {
	src    string
	pos    int
	depth  int
	block  bool
	failed map[failKey]bool

	lastTemplateClose int
	lastLinkClose     int
}

// Parse parses markup into nodes. It accepts any input.
func Parse(markup string) []Node {
	return newParser(markup, 0, true).parseNodes(nil)
}

func newParser(src string, depth int, block bool) *parser {
	return &parser{
		src:               src,
		depth:             depth,
		block:             block,
		failed:            make(map[failKey]bool),
		lastTemplateClose: strings.LastIndex(src, "}}"),
		lastLinkClose:     strings.LastIndex(src, "]]"),
	}
}

// sub parses a detached fragment such as a heading body or table cell.
func (p *parser) sub(src string, block bool) []Node {
	if src == "" {
		return nil
	}
	if p.depth >= maxDepth {
		return []Node{Text{Value: src}}
	}
	return newParser(src, p.depth+1, block).parseNodes(nil)
}

// =============================================================================
// Driver
// =============================================================================

// parseNodes parses until end of input or until one of stops is next.
// Contiguous literal source is collected into a single Text node.
func (p *parser) parseNodes(stops []string) []Node {
	var nodes []Node
	literal := -1

	for p.pos < len(p.src) && !p.atStop(stops) {
		mark := p.pos

		var n Node
		var ok bool
		if p.block && p.atLineStart() {
			n, ok = p.parseBlock()
		}
		if !ok {
			n, ok = p.parseInline()
		}

		if ok {
			if literal >= 0 {
				nodes = appendNode(nodes, Text{Value: p.src[literal:mark]})
				literal = -1
			}
			nodes = appendNode(nodes, n)
			continue
		}

		p.pos = mark
		if literal < 0 {
			literal = p.pos
		}
		p.skipLiteral()
	}

	if literal >= 0 {
		nodes = appendNode(nodes, Text{Value: p.src[literal:p.pos]})
	}
	return nodes
}

func (p *parser) atStop(stops []string) bool {
	rest := p.src[p.pos:]
	for _, stop := range stops {
		if strings.HasPrefix(rest, stop) {
			return true
		}
	}
	return false
}

func (p *parser) atLineStart() bool {
	return p.pos == 0 || p.src[p.pos-1] == '\n'
}

func (p *parser) rest() string {
	return p.src[p.pos:]
}

// skipLiteral consumes one byte and any following ordinary text. A newline
// is consumed alone so the next line start is examined.
func (p *parser) skipLiteral() {
	c := p.src[p.pos]
	p.pos++
	if c == '\n' {
		return
	}
	for p.pos < len(p.src) && !isSpecial(p.src[p.pos]) {
		p.pos++
	}
}

// line returns the current line without its newline and the position just
// after it.
func (p *parser) line() (string, int) {
	rest := p.rest()
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		return rest[:i], p.pos + i + 1
	}
	return rest, len(p.src)
}

// =============================================================================
// Block Constructs
// =============================================================================

func (p *parser) parseBlock() (Node, bool) {
	if p.pos == 0 {
		if n, ok := p.parseRedirect(); ok {
			return n, true
		}
	}

	rest := p.rest()
	switch rest[0] {
	case '=':
		return p.parseHeading()
	case '*', '#', ':', ';':
		return p.parseList(), true
	case '-':
		if strings.HasPrefix(rest, "----") {
			for p.pos < len(p.src) && p.src[p.pos] == '-' {
				p.pos++
			}
			return HorizontalRule{}, true
		}
	case '{':
		if strings.HasPrefix(rest, "{|") {
			return p.parseTable()
		}
	case ' ':
		return p.parsePreformatted()
	}
	return nil, false
}

func (p *parser) parseRedirect() (Node, bool) {
	i := p.pos
	for i < len(p.src) && isSpace(p.src[i]) {
		i++
	}
	if !hasPrefixFold(p.src[i:], "#redirect") {
		return nil, false
	}
	i += len("#redirect")
	for i < len(p.src) && (p.src[i] == ' ' || p.src[i] == '\t' || p.src[i] == ':') {
		i++
	}
	if !strings.HasPrefix(p.src[i:], "[[") {
		return nil, false
	}
	end := strings.Index(p.src[i+2:], "]]")
	if end < 0 {
		return nil, false
	}
	target := p.src[i+2 : i+2+end]
	if strings.ContainsAny(target, "\n[") {
		return nil, false
	}
	if bar := strings.IndexByte(target, '|'); bar >= 0 {
		target = target[:bar]
	}
	p.pos = i + 2 + end + 2
	return Redirect{Target: strings.TrimSpace(target)}, true
}

func (p *parser) parseHeading() (Node, bool) {
	line, next := p.line()
	trimmed := strings.TrimRight(line, " \t\r")

	open := countPrefix(trimmed, '=')
	if open == len(trimmed) {
		return nil, false
	}
	closing := countSuffix(trimmed, '=')
	level := min(open, closing, 6)
	if level == 0 {
		return nil, false
	}

	inner := strings.TrimSpace(trimmed[level : len(trimmed)-level])
	if inner == "" {
		return nil, false
	}

	p.pos = next
	return Heading{Level: level, Nodes: p.sub(inner, false)}, true
}

func (p *parser) parseList() Node {
	var list List
	for p.pos < len(p.src) && isListMarker(p.src[p.pos]) {
		line, next := p.line()
		n := 0
		for n < len(line) && isListMarker(line[n]) {
			n++
		}
		list.Items = append(list.Items, ListItem{
			Marker: line[:n],
			Nodes:  p.sub(strings.TrimSpace(line[n:]), false),
		})
		p.pos = next
	}
	return list
}

func (p *parser) parsePreformatted() (Node, bool) {
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		line, next := p.line()
		if strings.TrimSpace(line) == "" {
			break
		}
		p.pos = next
	}
	if p.pos == start {
		return nil, false
	}
	return Preformatted{Source: p.src[start:p.pos]}, true
}

// =============================================================================
// Tables
// =============================================================================

type tableLine struct {
	text   string
	nested bool
}

func (p *parser) parseTable() (Node, bool) {
	start := p.pos
	key := failKey{constructTable, start}
	if p.failed[key] {
		return nil, false
	}

	lines, next, ok := p.tableLines()
	if !ok {
		p.failed[key] = true
		return nil, false
	}

	p.pos = next
	return p.buildTable(lines), true
}

// tableLines collects the lines between a table's opening and closing
// lines. Lines of nested tables are flagged so they stay inside a cell.
func (p *parser) tableLines() ([]tableLine, int, bool) {
	_, pos := p.line()
	depth := 1

	var lines []tableLine
	for pos < len(p.src) {
		rest := p.src[pos:]
		line := rest
		next := len(p.src)
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			line = rest[:i]
			next = pos + i + 1
		}

		trimmed := strings.TrimLeft(line, " \t")
		switch {
		case strings.HasPrefix(trimmed, "{|"):
			depth++
		case strings.HasPrefix(trimmed, "|}"):
			depth--
			if depth == 0 {
				return lines, next, true
			}
			lines = append(lines, tableLine{text: line, nested: true})
			pos = next
			continue
		}

		lines = append(lines, tableLine{text: line, nested: depth > 1})
		pos = next
	}
	return nil, 0, false
}

func (p *parser) buildTable(lines []tableLine) Table {
	var (
		captions []string
		rows     [][]string
		inCell   bool
	)

	appendCells := func(cells []string) {
		if len(rows) == 0 {
			rows = append(rows, nil)
		}
		last := len(rows) - 1
		for _, cell := range cells {
			rows[last] = append(rows[last], stripCellAttributes(cell))
		}
		inCell = true
	}

	for _, line := range lines {
		trimmed := strings.TrimLeft(line.text, " \t")
		if line.nested {
			trimmed = ""
		}

		switch {
		case strings.HasPrefix(trimmed, "|+"):
			captions = append(captions, stripCellAttributes(trimmed[2:]))
			inCell = false
		case strings.HasPrefix(trimmed, "|-"):
			rows = append(rows, nil)
			inCell = false
		case strings.HasPrefix(trimmed, "|"):
			appendCells(strings.Split(trimmed[1:], "||"))
		case strings.HasPrefix(trimmed, "!"):
			var cells []string
			for _, part := range strings.Split(trimmed[1:], "!!") {
				cells = append(cells, strings.Split(part, "||")...)
			}
			appendCells(cells)
		default:
			switch {
			case inCell:
				row := rows[len(rows)-1]
				row[len(row)-1] += "\n" + line.text
			case len(captions) > 0 && len(rows) == 0:
				captions[len(captions)-1] += "\n" + line.text
			}
		}
	}

	var t Table
	for _, caption := range captions {
		t.Captions = append(t.Captions, p.sub(strings.TrimSpace(caption), true))
	}
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		var r TableRow
		for _, cell := range row {
			r.Cells = append(r.Cells, p.sub(strings.TrimSpace(cell), true))
		}
		t.Rows = append(t.Rows, r)
	}
	return t
}

// stripCellAttributes drops a leading attribute section such as
// `style="x" | content`.
func stripCellAttributes(cell string) string {
	bar := strings.IndexByte(cell, '|')
	if bar < 0 {
		return cell
	}
	head := cell[:bar]
	if strings.Contains(head, "[[") || strings.Contains(head, "{{") {
		return cell
	}
	return cell[bar+1:]
}

// =============================================================================
// Inline Constructs
// =============================================================================

func (p *parser) parseInline() (Node, bool) {
	rest := p.rest()
	switch rest[0] {
	case '\n':
		n := countPrefix(rest, '\n')
		if n >= 2 {
			p.pos += n
			return ParagraphBreak{}, true
		}
	case '<':
		return p.parseAngle()
	case '{':
		if strings.HasPrefix(rest, "{{{") {
			if n, ok := p.parseParameter(); ok {
				return n, true
			}
		}
		if strings.HasPrefix(rest, "{{") {
			return p.parseTemplate()
		}
	case '[':
		if strings.HasPrefix(rest, "[[") {
			return p.parseLink()
		}
		return p.parseExternalLink()
	case '\'':
		return p.parseEmphasis()
	case '_':
		return p.parseMagicWord()
	case '&':
		return p.parseEntity()
	}
	return nil, false
}

func (p *parser) parseEmphasis() (Node, bool) {
	n := countPrefix(p.rest(), '\'')
	switch n {
	case 2, 3, 5:
		p.pos += n
		return Emphasis{Source: strings.Repeat("'", n)}, true
	}
	// A lone apostrophe, or the surplus of a longer run, is text.
	return nil, false
}

func (p *parser) parseMagicWord() (Node, bool) {
	rest := p.rest()
	if !strings.HasPrefix(rest, "__") {
		return nil, false
	}
	i := 2
	for i < len(rest) && rest[i] >= 'A' && rest[i] <= 'Z' {
		i++
	}
	if i == 2 || !strings.HasPrefix(rest[i:], "__") {
		return nil, false
	}
	p.pos += i + 2
	return MagicWord{Source: rest[:i+2]}, true
}

func (p *parser) parseEntity() (Node, bool) {
	rest := p.rest()
	i := 1
	for i < len(rest) && i <= 32 && (isAlnum(rest[i]) || (i == 1 && rest[i] == '#')) {
		i++
	}
	if i == 1 || i >= len(rest) || rest[i] != ';' {
		return nil, false
	}
	source := rest[:i+1]
	value := html.UnescapeString(source)
	if value == source {
		return nil, false
	}
	p.pos += i + 1
	return CharEntity{Source: source, Value: value}, true
}

func (p *parser) parseAngle() (Node, bool) {
	rest := p.rest()
	switch {
	case strings.HasPrefix(rest, "<!--"):
		source, ok := p.delimited(constructComment, "<!--", "-->")
		if ok {
			return Comment{Source: source}, true
		}
	case hasPrefixFold(rest, "<nowiki>"):
		source, ok := p.delimited(constructNowiki, "<nowiki>", "</nowiki>")
		if ok {
			return Text{Value: source[len("<nowiki>") : len(source)-len("</nowiki>")]}, true
		}
	case hasPrefixFold(rest, "<pre>") || hasPrefixFold(rest, "<pre "):
		source, ok := p.delimited(constructPre, "<pre", "</pre>")
		if ok {
			return Preformatted{Source: source}, true
		}
	}
	return p.parseTag()
}

// delimited consumes open...close, matching close case-insensitively.
func (p *parser) delimited(kind construct, open, close string) (string, bool) {
	key := failKey{kind, p.pos}
	if p.failed[key] {
		return "", false
	}
	rest := p.rest()
	end := strings.Index(asciiLower(rest[len(open):]), close)
	if end < 0 {
		p.failed[key] = true
		return "", false
	}
	n := len(open) + end + len(close)
	p.pos += n
	return rest[:n], true
}

func (p *parser) parseTag() (Node, bool) {
	key := failKey{constructTag, p.pos}
	if p.failed[key] {
		return nil, false
	}
	rest := p.rest()

	i := 1
	closing := false
	if i < len(rest) && rest[i] == '/' {
		closing = true
		i++
	}
	j := i
	for j < len(rest) && isAlnum(rest[j]) {
		j++
	}
	name := asciiLower(rest[i:j])
	if !knownTags[name] {
		return nil, false
	}

	end := strings.IndexByte(rest[j:], '>')
	if end < 0 || end > 1024 || strings.ContainsRune(rest[j:j+end], '<') {
		p.failed[key] = true
		return nil, false
	}
	p.pos += j + end + 1
	return Tag{Name: name, Closing: closing}, true
}

func (p *parser) parseParameter() (Node, bool) {
	key := failKey{constructParameter, p.pos}
	if p.failed[key] {
		return nil, false
	}
	rest := p.rest()
	end := strings.Index(rest[3:], "}}}")
	if end < 0 {
		p.failed[key] = true
		return nil, false
	}
	n := 3 + end + 3
	p.pos += n
	return Parameter{Source: rest[:n]}, true
}

// enter marks the start of a nested construct. The returned func restores
// the parser's nesting state.
func (p *parser) enter() func() {
	block := p.block
	p.depth++
	p.block = false
	return func() {
		p.depth--
		p.block = block
	}
}

func (p *parser) parseTemplate() (Node, bool) {
	start := p.pos
	key := failKey{constructTemplate, start}
	if p.failed[key] || p.depth >= maxDepth || start > p.lastTemplateClose {
		return nil, false
	}
	leave := p.enter()
	defer leave()

	p.pos += 2
	t := Template{Name: p.parseNodes(templateNameStops)}
	for strings.HasPrefix(p.rest(), "|") {
		p.pos++
		param := TemplateParam{Value: p.parseNodes(templateParamStops)}
		if strings.HasPrefix(p.rest(), "=") {
			p.pos++
			param.Named = true
			param.Name = param.Value
			param.Value = p.parseNodes(templateNameStops)
		}
		t.Params = append(t.Params, param)
	}

	if !strings.HasPrefix(p.rest(), "}}") {
		p.failed[key] = true
		p.pos = start
		return nil, false
	}
	p.pos += 2
	return t, true
}

func (p *parser) parseLink() (Node, bool) {
	start := p.pos
	key := failKey{constructLink, start}
	if p.failed[key] || p.depth >= maxDepth || start > p.lastLinkClose {
		return nil, false
	}

	rest := p.src[start+2:]
	end := strings.IndexAny(rest, "|]\n[")
	if end < 0 || rest[end] == '\n' || rest[end] == '[' ||
		(rest[end] == ']' && !strings.HasPrefix(rest[end:], "]]")) {
		p.failed[key] = true
		return nil, false
	}
	raw := strings.TrimSpace(rest[:end])
	if raw == "" {
		p.failed[key] = true
		return nil, false
	}

	leave := p.enter()
	defer leave()

	kind, target := classifyTarget(raw)
	stops := linkTextStops
	if kind == targetImage {
		stops = imageOptionStops
	}

	p.pos = start + 2 + end
	var segments [][]Node
	for strings.HasPrefix(p.rest(), "|") {
		p.pos++
		segments = append(segments, p.parseNodes(stops))
	}
	if !strings.HasPrefix(p.rest(), "]]") {
		p.failed[key] = true
		p.pos = start
		return nil, false
	}
	p.pos += 2

	switch kind {
	case targetCategory:
		return Category{Target: target}, true
	case targetImage:
		return Image{Target: target, Caption: imageCaption(segments)}, true
	}

	var text []Node
	if len(segments) > 0 {
		text = segments[0]
	}
	if len(text) == 0 {
		text = []Node{Text{Value: target}}
	}
	return Link{Target: target, Text: text}, true
}

func (p *parser) parseExternalLink() (Node, bool) {
	start := p.pos
	key := failKey{constructExternalLink, start}
	if p.failed[key] || p.depth >= maxDepth {
		return nil, false
	}

	rest := p.src[start+1:]
	if !hasURLScheme(rest) {
		return nil, false
	}
	end := strings.IndexAny(rest, " \t]\n")
	if end < 0 || rest[end] == '\n' {
		p.failed[key] = true
		return nil, false
	}

	leave := p.enter()
	defer leave()

	link := ExternalLink{Target: rest[:end]}
	p.pos = start + 1 + end
	if c := p.src[p.pos]; c == ' ' || c == '\t' {
		p.pos++
		link.Text = p.parseNodes(externalTextStops)
	}
	if !strings.HasPrefix(p.rest(), "]") {
		p.failed[key] = true
		p.pos = start
		return nil, false
	}
	p.pos++
	return link, true
}

// =============================================================================
// Link Targets
// =============================================================================

type targetKind int

const (
	targetPage targetKind = iota
	targetImage
	targetCategory
)

func classifyTarget(target string) (targetKind, string) {
	if strings.HasPrefix(target, ":") {
		return targetPage, strings.TrimSpace(target[1:])
	}
	ns, _, found := strings.Cut(target, ":")
	if !found {
		return targetPage, target
	}
	switch asciiLower(strings.TrimSpace(ns)) {
	case "file", "image":
		return targetImage, target
	case "category":
		return targetCategory, target
	}
	return targetPage, target
}

var imageKeywords = map[string]bool{
	"thumb": true, "thumbnail": true, "frame": true, "framed": true,
	"frameless": true, "border": true, "left": true, "right": true,
	"center": true, "centre": true, "none": true, "upright": true,
	"baseline": true, "sub": true, "super": true, "top": true,
	"text-top": true, "middle": true, "bottom": true, "text-bottom": true,
}

var imageOptionPrefixes = []string{"alt=", "link=", "upright=", "page=", "class=", "lang="}

func isImageOption(s string) bool {
	s = asciiLower(strings.TrimSpace(s))
	if s == "" || imageKeywords[s] {
		return true
	}
	for _, prefix := range imageOptionPrefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	if size, ok := strings.CutSuffix(s, "px"); ok && size != "" {
		return strings.Trim(size, "0123456789x") == ""
	}
	return false
}

// imageCaption returns the last segment that is not a display option.
func imageCaption(segments [][]Node) []Node {
	for i := len(segments) - 1; i >= 0; i-- {
		if !isImageOption(Render(segments[i])) {
			return segments[i]
		}
	}
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

var knownTags = map[string]bool{
	"abbr": true, "b": true, "bdi": true, "big": true, "blockquote": true,
	"br": true, "caption": true, "center": true, "cite": true, "code": true,
	"data": true, "dd": true, "del": true, "div": true, "dl": true,
	"dt": true, "em": true, "font": true, "gallery": true, "h1": true,
	"h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"hr": true, "i": true, "ins": true, "kbd": true, "li": true,
	"mark": true, "math": true, "nowiki": true, "ol": true, "p": true,
	"poem": true, "pre": true, "q": true, "rb": true, "ref": true,
	"references": true, "rp": true, "rt": true, "ruby": true, "s": true,
	"samp": true, "small": true, "source": true, "span": true, "strike": true,
	"strong": true, "sub": true, "sup": true, "syntaxhighlight": true, "table": true,
	"td": true, "th": true, "time": true, "tr": true, "tt": true,
	"u": true, "ul": true, "var": true, "wbr": true,
}

var urlSchemes = []string{"http://", "https://", "ftp://", "ftps://", "irc://", "mailto:", "news:", "//"}

func hasURLScheme(s string) bool {
	for _, scheme := range urlSchemes {
		if hasPrefixFold(s, scheme) {
			return true
		}
	}
	return false
}

func appendNode(nodes []Node, n Node) []Node {
	text, ok := n.(Text)
	if !ok {
		return append(nodes, n)
	}
	if text.Value == "" {
		return nodes
	}
	if last := len(nodes) - 1; last >= 0 {
		if prev, ok := nodes[last].(Text); ok {
			nodes[last] = Text{Value: prev.Value + text.Value}
			return nodes
		}
	}
	return append(nodes, text)
}

func isSpecial(c byte) bool {
	switch c {
	case '\n', '<', '{', '[', '\'', '_', '&', '|', '}', ']', '=':
		return true
	}
	return false
}

func isListMarker(c byte) bool {
	return c == '*' || c == '#' || c == ':' || c == ';'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func countPrefix(s string, c byte) int {
	n := 0
	for n < len(s) && s[n] == c {
		n++
	}
	return n
}

func countSuffix(s string, c byte) int {
	n := 0
	for n < len(s) && s[len(s)-1-n] == c {
		n++
	}
	return n
}

// asciiLower lowercases ASCII letters only, preserving byte offsets.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
