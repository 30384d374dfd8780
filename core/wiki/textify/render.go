package textify

import "strings"

// Textify converts markup to plain text. It accepts any input and never
// panics; markup it cannot make sense of is kept as literal text.
func Textify(markup string) (text string) {
	if markup == "" {
		return ""
	}
	defer func() {
		if r := recover(); r != nil {
			text = markup
		}
	}()
	return Render(Parse(markup))
}

// Render renders parsed nodes as plain text.
func Render(nodes []Node) string {
	var b strings.Builder
	renderNodes(&b, nodes)
	return b.String()
}

func renderNodes(b *strings.Builder, nodes []Node) {
	for _, n := range nodes {
		renderNode(b, n)
	}
}

func renderNode(b *strings.Builder, n Node) {
	switch n := n.(type) {
	case Text:
		b.WriteString(n.Value)
	case Emphasis:
		b.WriteString(n.Source)
	case MagicWord:
		b.WriteString(n.Source)
	case CharEntity:
		b.WriteString(n.Value)
	case Comment:
		b.WriteString(n.Source)

	case Template:
		b.WriteString("{{")
		renderNodes(b, n.Name)
		for _, param := range n.Params {
			b.WriteByte('|')
			if param.Named {
				renderNodes(b, param.Name)
				b.WriteByte('=')
			}
			renderNodes(b, param.Value)
		}
		b.WriteString("}}")

	case Link:
		renderNodes(b, n.Text)
		b.WriteString("(" + n.Target + ")")
	case ExternalLink:
		renderNodes(b, n.Text)
		b.WriteString("(" + n.Target + ")")
	case Image:
		b.WriteString("IMAGE: " + n.Target)
		if caption := Render(n.Caption); strings.TrimSpace(caption) != "" {
			b.WriteString(" " + caption)
		}
	case Redirect:
		b.WriteString("REDIRECT: " + n.Target)

	case Heading:
		marks := strings.Repeat("=", n.Level)
		b.WriteString(marks + " ")
		renderNodes(b, n.Nodes)
		b.WriteString(" " + marks + "\n")
	case List:
		for _, item := range n.Items {
			renderNodes(b, item.Nodes)
			b.WriteByte('\n')
		}
	case Table:
		for _, caption := range n.Captions {
			renderNodes(b, caption)
			b.WriteByte('\n')
		}
		for _, row := range n.Rows {
			for i, cell := range row.Cells {
				if i > 0 {
					b.WriteString(" | ")
				}
				renderNodes(b, cell)
			}
			b.WriteByte('\n')
		}

	case ParagraphBreak:
		b.WriteString("\n\n")
	case HorizontalRule:
		b.WriteByte('\n')

	case Parameter, Category, Tag, Preformatted:
		// Not part of the readable text.
	}
}
