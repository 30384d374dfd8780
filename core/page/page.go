// Package page defines the wiki page model shared by the wiki source and
// the search index.
package page

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidTimestamp indicates a malformed wiki timestamp.
var ErrInvalidTimestamp = errors.New("invalid wiki timestamp")

// Page is one wiki page as read from the wiki database.
type Page struct {
	ID         int64
	Title      string
	Text       string
	TitleDate  *time.Time
	Updated    time.Time
	Namespace  Namespace
	URL        string
	Categories []string
}

// New builds a page from raw database values. rawTitle is the stored title
// (underscores for spaces); touched is the wiki timestamp of the last
// change. The URL is left empty when baseURL is empty.
func New(id int64, ns Namespace, rawTitle, text, touched, baseURL string) (Page, error) {
	updated, err := ParseWikiTimestamp(touched)
	if err != nil {
		return Page{}, err
	}

	p := Page{
		ID:        id,
		Title:     DisplayTitle(rawTitle),
		Text:      text,
		TitleDate: ParseTitleDate(rawTitle),
		Updated:   updated,
		Namespace: ns,
	}
	if baseURL != "" {
		p.URL = URL(baseURL, ns, rawTitle)
	}
	return p, nil
}

// FullTitle returns the title including its namespace prefix, with spaces.
func (p Page) FullTitle() string {
	return strings.ReplaceAll(p.Namespace.Prefix(), "_", " ") + p.Title
}

// DisplayTitle converts a stored title to its display form.
func DisplayTitle(rawTitle string) string {
	return strings.ReplaceAll(rawTitle, "_", " ")
}

// URL returns base + namespace prefix + title, with spaces in the title
// written as underscores.
func URL(base string, ns Namespace, title string) string {
	return base + ns.Prefix() + strings.ReplaceAll(title, " ", "_")
}

// =============================================================================
// Timestamps
// =============================================================================

// WikiTimestampLayout is MediaWiki's compact UTC timestamp format.
const WikiTimestampLayout = "20060102150405"

// ParseWikiTimestamp parses a YYYYMMDDHHMMSS timestamp as UTC.
func ParseWikiTimestamp(s string) (time.Time, error) {
	t, err := time.ParseInLocation(WikiTimestampLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}
	return t, nil
}

// FormatWikiTimestamp formats t in MediaWiki's compact UTC format.
func FormatWikiTimestamp(t time.Time) string {
	return t.UTC().Format(WikiTimestampLayout)
}
