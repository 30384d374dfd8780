package search

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Range is a half-open byte range [Start, End).
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// MatchSnippet is a window of a stored field with the byte ranges of
// matched terms inside that window. Highlighted is sorted by Start.
type MatchSnippet struct {
	Source      string  `json:"-"`
	Fragment    string  `json:"fragment"`
	Highlighted []Range `json:"highlighted"`
	MaxLength   int     `json:"max_length"`
}

// =============================================================================
// Extraction
// =============================================================================

// ExtractSnippet picks the window of at most maxLength characters of
// source covering the most matches, earliest window winning ties. The
// window starts at a match. With no matches the window is the start of
// source. A maxLength of zero or less keeps the whole source.
func ExtractSnippet(source string, matches []Range, maxLength int) MatchSnippet {
	snippet := MatchSnippet{Source: source, MaxLength: maxLength}
	matches = normalizeRanges(source, matches)

	if maxLength <= 0 || utf8.RuneCountInString(source) <= maxLength {
		snippet.Fragment = source
		snippet.Highlighted = matches
		return snippet
	}

	if len(matches) == 0 {
		snippet.Fragment = truncateRunes(source, maxLength)
		return snippet
	}

	bestStart, bestEnd, bestCount := 0, 0, -1
	for i, m := range matches {
		end := m.Start + runePrefixLen(source[m.Start:], maxLength)
		count := 0
		for _, other := range matches[i:] {
			if other.Start >= end {
				break
			}
			if other.End <= end {
				count++
			}
		}
		if count > bestCount {
			bestStart, bestEnd, bestCount = m.Start, end, count
		}
	}

	snippet.Fragment = source[bestStart:bestEnd]
	for _, m := range matches {
		if m.End <= bestStart || m.Start >= bestEnd {
			continue
		}
		snippet.Highlighted = append(snippet.Highlighted, Range{
			Start: max(m.Start, bestStart) - bestStart,
			End:   min(m.End, bestEnd) - bestStart,
		})
	}
	return snippet
}

// normalizeRanges clamps ranges to s, snaps them to rune boundaries, drops
// empty ones and sorts by start.
func normalizeRanges(s string, ranges []Range) []Range {
	out := make([]Range, 0, len(ranges))
	for _, r := range ranges {
		start := snapBack(s, max(r.Start, 0))
		end := snapForward(s, min(r.End, len(s)))
		if start >= end {
			continue
		}
		out = append(out, Range{Start: start, End: end})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].End < out[j].End
	})
	if len(out) == 0 {
		return nil
	}
	return out
}

func snapBack(s string, i int) int {
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

func snapForward(s string, i int) int {
	if i <= 0 {
		return 0
	}
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}

// runePrefixLen returns the byte length of the first n runes of s.
func runePrefixLen(s string, n int) int {
	i := 0
	for n > 0 && i < len(s) {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
		n--
	}
	return i
}

func truncateRunes(s string, n int) string {
	return s[:runePrefixLen(s, n)]
}

// =============================================================================
// Highlighting
// =============================================================================

// MergeRanges merges overlapping or touching ranges into a sorted, disjoint
// list.
func MergeRanges(ranges []Range) []Range {
	if len(ranges) == 0 {
		return nil
	}
	sorted := make([]Range, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	merged := []Range{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End {
			last.End = max(last.End, r.End)
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// Highlight renders the fragment with prefix and suffix around each merged
// match range. With no ranges it returns the first MaxLength characters of
// Source without markers.
func (s MatchSnippet) Highlight(prefix, suffix string) string {
	return s.HighlightEscaped(prefix, suffix, nil)
}

// HighlightEscaped is Highlight with escape applied to all text outside the
// markers. A nil escape leaves text unchanged.
func (s MatchSnippet) HighlightEscaped(prefix, suffix string, escape func(string) string) string {
	if escape == nil {
		escape = func(v string) string { return v }
	}

	ranges := MergeRanges(normalizeRanges(s.Fragment, s.Highlighted))
	if len(ranges) == 0 {
		if s.MaxLength <= 0 {
			return escape(s.Source)
		}
		return escape(truncateRunes(s.Source, s.MaxLength))
	}

	var b strings.Builder
	pos := 0
	for _, r := range ranges {
		b.WriteString(escape(s.Fragment[pos:r.Start]))
		b.WriteString(prefix)
		b.WriteString(escape(s.Fragment[r.Start:r.End]))
		b.WriteString(suffix)
		pos = r.End
	}
	b.WriteString(escape(s.Fragment[pos:]))
	return b.String()
}
