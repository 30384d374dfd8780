// Package search provides the query and result types for wiki page search,
// along with snippet extraction and highlight rendering.
package search

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adalundhe/wikisearch/core/page"
)

// Validation constants for QueryOptions.
const (
	DefaultCount         = 10
	MaxCount             = 1000
	DefaultSnippetLength = 400
	CLISnippetLength     = 100
)

var (
	// ErrStorage indicates the index could not be read or written.
	ErrStorage = errors.New("index storage error")

	// ErrInvalidQuery indicates malformed query syntax or options.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrInvalidDate indicates a malformed or out-of-range date bound.
	ErrInvalidDate = errors.New("invalid date")

	// ErrSourceUnavailable indicates the wiki database could not be read.
	ErrSourceUnavailable = errors.New("wiki source unavailable")
)

// =============================================================================
// Query Options
// =============================================================================

// QueryOptions controls pagination, snippets, date filtering and fuzziness
// of a page query. Date bounds are inclusive and apply to a page's title
// date; when neither is set no date filter is applied.
type QueryOptions struct {
	Offset        int        `json:"offset"`
	Count         int        `json:"count"`
	SnippetLength int        `json:"snippet_length"`
	DateBefore    *time.Time `json:"date_before,omitempty"`
	DateAfter     *time.Time `json:"date_after,omitempty"`
	Fuzzy         bool       `json:"fuzzy"`
}

// DefaultQueryOptions returns options for the first page of results.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{
		Count:         DefaultCount,
		SnippetLength: DefaultSnippetLength,
	}
}

// HasDateFilter reports whether either date bound is set.
func (o *QueryOptions) HasDateFilter() bool {
	return o.DateBefore != nil || o.DateAfter != nil
}

// Validate checks that the options are usable.
func (o *QueryOptions) Validate() error {
	if o.Offset < 0 {
		return fmt.Errorf("%w: offset cannot be negative", ErrInvalidQuery)
	}
	if o.Count < 0 {
		return fmt.Errorf("%w: count must be positive", ErrInvalidQuery)
	}
	if o.Count > MaxCount {
		return fmt.Errorf("%w: count exceeds %d", ErrInvalidQuery, MaxCount)
	}
	if o.SnippetLength < 0 {
		return fmt.Errorf("%w: snippet length cannot be negative", ErrInvalidQuery)
	}
	return nil
}

// Normalize applies defaults to unset fields. A zero Count means
// DefaultCount; the HTTP and CLI front ends reject an explicit zero.
func (o *QueryOptions) Normalize() {
	if o.Count == 0 {
		o.Count = DefaultCount
	}
	if o.SnippetLength == 0 {
		o.SnippetLength = DefaultSnippetLength
	}
}

// ValidateAndNormalize validates and normalizes the options in one call.
func (o *QueryOptions) ValidateAndNormalize() error {
	if err := o.Validate(); err != nil {
		return err
	}
	o.Normalize()
	return nil
}

// Key returns a stable string form of the options for cache keys.
func (o QueryOptions) Key() string {
	return fmt.Sprintf("%d/%d/%d/%s/%s/%t",
		o.Offset, o.Count, o.SnippetLength,
		formatBound(o.DateAfter), formatBound(o.DateBefore), o.Fuzzy)
}

func formatBound(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout)
}

// =============================================================================
// Dates
// =============================================================================

// DateLayout is the accepted format for query date bounds.
const DateLayout = "2006-01-02"

const (
	minQueryYear = 1700
	maxQueryYear = 2200
)

// ParseDate parses a YYYY-MM-DD date bound. An empty string means unset and
// yields nil without error.
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	if t.Year() < minQueryYear || t.Year() > maxQueryYear {
		return nil, fmt.Errorf("%w: year out of range in %q", ErrInvalidDate, s)
	}
	return &t, nil
}

// =============================================================================
// Results
// =============================================================================

// PageMatchResult is one page of query results.
type PageMatchResult struct {
	Entries   []PageMatchEntry `json:"entries"`
	Total     int              `json:"total"`
	Remaining int              `json:"remaining"`
	NewOffset *int             `json:"new_offset,omitempty"`
	Elapsed   time.Duration    `json:"elapsed"`
}

// HasMore reports whether another page of results exists.
func (r *PageMatchResult) HasMore() bool {
	return r.NewOffset != nil
}

// Paginate fills Remaining and NewOffset from Total, the request offset
// and the number of entries returned.
func (r *PageMatchResult) Paginate(offset int) {
	r.Remaining = max(r.Total-offset, 0)
	r.NewOffset = nil
	if next := offset + len(r.Entries); next < r.Total {
		r.NewOffset = &next
	}
}

// PageMatchEntry is a single matching page.
type PageMatchEntry struct {
	Namespace page.Namespace `json:"namespace"`
	Title     MatchSnippet   `json:"title"`
	Text      MatchSnippet   `json:"text"`
	URL       string         `json:"url"`
	PageID    int64          `json:"page_id"`
	Score     *float64       `json:"score,omitempty"`
}
