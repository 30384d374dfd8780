package search

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// MergeRanges Tests
// =============================================================================

func TestMergeRanges(t *testing.T) {
	t.Parallel()

	got := MergeRanges([]Range{{0, 5}, {3, 8}, {10, 12}})
	assert.Equal(t, []Range{{0, 8}, {10, 12}}, got)

	got = MergeRanges([]Range{{10, 12}, {0, 5}, {1, 2}})
	assert.Equal(t, []Range{{0, 5}, {10, 12}}, got)

	assert.Nil(t, MergeRanges(nil))
}

func TestMergeRanges_Disjoint(t *testing.T) {
	t.Parallel()

	in := []Range{{5, 9}, {0, 2}, {1, 6}, {20, 25}, {24, 30}, {12, 13}}
	got := MergeRanges(in)
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1].End, got[i].Start)
	}
}

// =============================================================================
// Highlight Tests
// =============================================================================

func TestHighlight_MergesOverlaps(t *testing.T) {
	t.Parallel()

	s := MatchSnippet{
		Source:      "abcdefghijklmn",
		Fragment:    "abcdefghijklmn",
		Highlighted: []Range{{0, 5}, {3, 8}, {10, 12}},
		MaxLength:   100,
	}
	assert.Equal(t, "[abcdefgh]ij[kl]mn", s.Highlight("[", "]"))
}

func TestHighlight_NoRangesIsPlainPrefix(t *testing.T) {
	t.Parallel()

	source := strings.Repeat("word ", 50)
	s := MatchSnippet{Source: source, Fragment: source, MaxLength: 20}

	got := s.Highlight("<b>", "</b>")
	assert.Equal(t, source[:20], got)
	assert.NotContains(t, got, "<b>")
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 20)
	assert.NotEmpty(t, got)
}

func TestHighlight_NoRangesMultibyte(t *testing.T) {
	t.Parallel()

	s := MatchSnippet{Source: "日本語のテキスト", MaxLength: 3}
	assert.Equal(t, "日本語", s.Highlight("[", "]"))
}

func TestHighlightEscaped(t *testing.T) {
	t.Parallel()

	s := MatchSnippet{
		Source:      "a<b> cat & dog",
		Fragment:    "a<b> cat & dog",
		Highlighted: []Range{{5, 8}},
		MaxLength:   100,
	}
	escape := func(v string) string {
		return strings.NewReplacer("<", "&lt;", ">", "&gt;", "&", "&amp;").Replace(v)
	}
	assert.Equal(t, `a&lt;b&gt; <span class="term">cat</span> &amp; dog`,
		s.HighlightEscaped(`<span class="term">`, "</span>", escape))
}

// =============================================================================
// ExtractSnippet Tests
// =============================================================================

func TestExtractSnippet_ShortSourceKeepsAll(t *testing.T) {
	t.Parallel()

	s := ExtractSnippet("Cats are mammals", []Range{{9, 16}, {0, 4}}, 400)
	assert.Equal(t, "Cats are mammals", s.Fragment)
	assert.Equal(t, []Range{{0, 4}, {9, 16}}, s.Highlighted)
	assert.Equal(t, "[Cats] are [mammals]", s.Highlight("[", "]"))
}

func TestExtractSnippet_WindowCoversMostMatches(t *testing.T) {
	t.Parallel()

	source := "cat " + strings.Repeat("x", 50) + " dog dog dog"
	dogStart := strings.Index(source, "dog")
	matches := []Range{
		{0, 3},
		{dogStart, dogStart + 3},
		{dogStart + 4, dogStart + 7},
		{dogStart + 8, dogStart + 11},
	}

	s := ExtractSnippet(source, matches, 12)
	assert.Equal(t, "dog dog dog", s.Fragment)
	assert.Equal(t, []Range{{0, 3}, {4, 7}, {8, 11}}, s.Highlighted)
}

func TestExtractSnippet_NoMatchesTruncates(t *testing.T) {
	t.Parallel()

	s := ExtractSnippet(strings.Repeat("a", 500), nil, 100)
	assert.Len(t, s.Fragment, 100)
	assert.Empty(t, s.Highlighted)
}

func TestExtractSnippet_ClampsAndSnapsRanges(t *testing.T) {
	t.Parallel()

	s := ExtractSnippet("日本語", []Range{{1, 4}, {-3, 0}, {9, 20}}, 10)
	require.Len(t, s.Highlighted, 1)
	assert.Equal(t, Range{0, 6}, s.Highlighted[0])
}
