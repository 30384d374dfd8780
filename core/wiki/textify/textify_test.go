package textify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Textify Tests
// =============================================================================

func TestTextify_Cases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		markup string
		want   string
	}{
		{"empty", "", ""},
		{"plain text", "hello world", "hello world"},
		{"named template params", "{{a|b=c|d=e}}", "{{a|b=c|d=e}}"},
		{"positional template params", "{{a|b|c}}", "{{a|b|c}}"},
		{"italic", "''hello''", "''hello''"},
		{"bold italic", "'''''both'''''", "'''''both'''''"},
		{"four apostrophes", "''''x'''", "''''x'''"},
		{"link", "[[Foo]]", "Foo(Foo)"},
		{"link with text", "[[Foo|bar baz]]", "bar baz(Foo)"},
		{"link inside template", "{{a|[[b|c]]}}", "{{a|c(b)}}"},
		{"heading", "== Title ==\nbody", "== Title ==\nbody"},
		{"heading without newline", "=== Deep ===", "=== Deep ===\n"},
		{"heading with link", "== [[Cat]] ==", "== Cat(Cat) ==\n"},
		{"entities", "&amp; &lt;b&gt;", "& <b>"},
		{"unknown entity", "&bogus;", "&bogus;"},
		{"category", "[[Category:Cats]]Text", "Text"},
		{"image", "[[File:Cat.png|thumb|200px|A cat]]", "IMAGE: File:Cat.png A cat"},
		{"image without caption", "[[Image:Cat.png|thumb]]", "IMAGE: Image:Cat.png"},
		{"colon link to category", "[[:Category:Cats]]", "Category:Cats(Category:Cats)"},
		{"redirect", "#REDIRECT [[Main Page]]", "REDIRECT: Main Page"},
		{"list", "* one\n* two\n", "one\ntwo\n"},
		{"numbered list", "# one\n## two", "one\ntwo\n"},
		{"table", "{|\n|+ Pets\n|-\n| cat || dog\n|-\n! a !! b\n|}", "Pets\ncat | dog\na | b\n"},
		{"table cell attributes", "{|\n|-\n| style=\"x\" | cat\n|}", "cat\n"},
		{"paragraph break kept", "a\n\n\nb", "a\n\nb"},
		{"single newline kept", "a\nb", "a\nb"},
		{"comment", "<!-- note -->x", "<!-- note -->x"},
		{"tags dropped", "a<br/>b<span class=\"x\">c</span>", "abc"},
		{"unknown tag literal", "a <foo> b", "a <foo> b"},
		{"nowiki", "<nowiki>[[x]]</nowiki>", "[[x]]"},
		{"pre dropped", "x<pre>code</pre>y", "xy"},
		{"preformatted lines dropped", "a\n code\nb", "a\nb"},
		{"external link", "[https://example.org Example site]", "Example site(https://example.org)"},
		{"bare external link", "[https://example.org]", "(https://example.org)"},
		{"not a url", "[not a link]", "[not a link]"},
		{"parameter dropped", "a{{{1}}}b", "ab"},
		{"magic word", "__TOC__Intro", "__TOC__Intro"},
		{"horizontal rule", "----\nafter", "\n\nafter"},
		{"unclosed template", "{{unclosed", "{{unclosed"},
		{"unclosed link", "[[unclosed", "[[unclosed"},
		{"unclosed table", "{|\n| cell", "{|\n| cell"},
		{"unclosed comment", "<!-- open", "<!-- open"},
		{"stray closers", "}} ]] |", "}} ]] |"},
		{"cjk text", "日本語のテキスト", "日本語のテキスト"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Textify(tt.markup))
		})
	}
}

func TestTextify_NeverPanics(t *testing.T) {
	t.Parallel()

	inputs := []string{
		strings.Repeat("{{", 5000),
		strings.Repeat("{{[[", 500) + "}}",
		strings.Repeat("[[a|", 200) + strings.Repeat("]]", 100),
		strings.Repeat("{|\n", 100),
		strings.Repeat("'", 1000),
		strings.Repeat("=", 100) + "\n",
		"{{{{{{{{}}}}",
		"[[]]",
		"[[|]]",
		"[http://",
		"&#xZZ;",
		"\x00\xff\xfe{{",
		"<",
		"{{a|=}}",
	}

	for _, in := range inputs {
		require.NotPanics(t, func() {
			_ = Textify(in)
		})
	}
}

func TestTextify_DeepNestingStaysLiteral(t *testing.T) {
	t.Parallel()

	in := strings.Repeat("{{", 5000)
	assert.Equal(t, in, Textify(in))
}

// =============================================================================
// Parse Tests
// =============================================================================

func TestParse_TemplateStructure(t *testing.T) {
	t.Parallel()

	nodes := Parse("{{a|b=c|d}}")
	require.Len(t, nodes, 1)

	tmpl, ok := nodes[0].(Template)
	require.True(t, ok)
	assert.Equal(t, []Node{Text{Value: "a"}}, tmpl.Name)
	require.Len(t, tmpl.Params, 2)

	assert.True(t, tmpl.Params[0].Named)
	assert.Equal(t, []Node{Text{Value: "b"}}, tmpl.Params[0].Name)
	assert.Equal(t, []Node{Text{Value: "c"}}, tmpl.Params[0].Value)

	assert.False(t, tmpl.Params[1].Named)
	assert.Equal(t, []Node{Text{Value: "d"}}, tmpl.Params[1].Value)
}

func TestParse_HeadingLevel(t *testing.T) {
	t.Parallel()

	nodes := Parse("=== A ==")
	require.Len(t, nodes, 1)

	heading, ok := nodes[0].(Heading)
	require.True(t, ok)
	assert.Equal(t, 2, heading.Level)
	assert.Equal(t, []Node{Text{Value: "= A"}}, heading.Nodes)
}

func TestParse_CategoryLink(t *testing.T) {
	t.Parallel()

	nodes := Parse("x[[Category:Animals|sort key]]")
	require.Len(t, nodes, 2)
	assert.Equal(t, Category{Target: "Category:Animals"}, nodes[1])
}

func TestParse_MergesContiguousText(t *testing.T) {
	t.Parallel()

	nodes := Parse("snake_case = value | more")
	assert.Equal(t, []Node{Text{Value: "snake_case = value | more"}}, nodes)
}
