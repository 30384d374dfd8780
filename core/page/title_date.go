package page

import (
	"strings"
	"time"
	"unicode/utf8"
)

// titleDateLayouts are tried in order against a prefix of the title.
var titleDateLayouts = []string{
	"Jan 2, 2006",
	"January 2, 2006",
	"2006-01-02",
	"2006年1月2日",
	"2006-01",
	"2006 Jan",
	"2006 January",
	"2006",
}

const (
	// maxTitleDatePrefix bounds the prefix lengths tried for each layout.
	maxTitleDatePrefix = 32

	minTitleYear = 1678
	maxTitleYear = 2262
)

// ParseTitleDate extracts a date from the start of a page title, so that
// "Jan 1, 2023/Note" yields 2023-01-01. Missing month or day default to 1.
// Years outside 1678..2262 are treated as a mismatch. Returns nil when no
// layout matches.
func ParseTitleDate(title string) *time.Time {
	title = strings.ReplaceAll(title, "_", " ")

	for _, layout := range titleDateLayouts {
		t, ok := parsePrefix(layout, title)
		if !ok {
			continue
		}
		if t.Year() < minTitleYear || t.Year() > maxTitleYear {
			continue
		}
		return &t
	}
	return nil
}

// parsePrefix parses the longest prefix of s that matches layout.
func parsePrefix(layout, s string) (time.Time, bool) {
	end := min(len(s), maxTitleDatePrefix)
	for ; end > 0; end-- {
		if end < len(s) && !utf8.RuneStart(s[end]) {
			continue
		}
		if t, err := time.ParseInLocation(layout, s[:end], time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
