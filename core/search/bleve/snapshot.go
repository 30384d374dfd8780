package bleve

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	blevesearch "github.com/blevesearch/bleve/v2/search"

	"github.com/adalundhe/wikisearch/core/page"
	"github.com/adalundhe/wikisearch/core/search"
)

// scoreSortField is Bleve's pseudo-field for relevance.
const scoreSortField = "_score"

// Snapshot is a read-only view of one index generation. It must be
// released when no longer needed.
type Snapshot struct {
	gen     *generation
	fields  Fields
	release sync.Once
}

// Release returns the snapshot. Calling it more than once is harmless.
func (s *Snapshot) Release() {
	s.release.Do(s.gen.refs.Done)
}

// Revision returns the wiki revision this snapshot was built from.
func (s *Snapshot) Revision() uint32 {
	return s.gen.revision
}

// Generation returns the generation id of this snapshot.
func (s *Snapshot) Generation() uint64 {
	return s.gen.id
}

// PageCount returns the number of indexed pages.
func (s *Snapshot) PageCount() (uint64, error) {
	count, err := s.gen.index.DocCount()
	if err != nil {
		return 0, fmt.Errorf("%w: count documents: %w", search.ErrStorage, err)
	}
	return count, nil
}

// =============================================================================
// Search
// =============================================================================

// Search runs plan and assembles one page of results. Results are in
// relevance order, or in descending title-date order when the plan has a
// date filter. A single request yields both the page and the total.
func (s *Snapshot) Search(ctx context.Context, plan *QueryPlan) (*search.PageMatchResult, error) {
	start := time.Now()
	opts := plan.Options

	req := bleve.NewSearchRequestOptions(plan.Query, opts.Count, opts.Offset, false)
	req.Fields = s.fields.stored()
	req.IncludeLocations = true
	if plan.DateOrdered {
		req.SortBy([]string{"-" + s.fields.TitleDate, "-" + scoreSortField})
	}

	res, err := s.gen.index.SearchInContext(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: search: %w", search.ErrStorage, err)
	}

	result := &search.PageMatchResult{
		Entries: make([]search.PageMatchEntry, 0, len(res.Hits)),
		Total:   int(res.Total),
	}
	for _, hit := range res.Hits {
		result.Entries = append(result.Entries, s.convertHit(hit, plan))
	}
	result.Paginate(opts.Offset)
	result.Elapsed = time.Since(start)
	return result, nil
}

// convertHit converts a single Bleve hit to a PageMatchEntry.
func (s *Snapshot) convertHit(hit *blevesearch.DocumentMatch, plan *QueryPlan) search.PageMatchEntry {
	title := getStringField(hit.Fields, s.fields.Title)
	text := getStringField(hit.Fields, s.fields.Text)

	entry := search.PageMatchEntry{
		Namespace: page.Namespace(getNumberField(hit.Fields, s.fields.NamespaceID)),
		Title:     search.ExtractSnippet(title, matchRanges(hit, s.fields.Title), utf8.RuneCountInString(title)),
		Text:      search.ExtractSnippet(text, matchRanges(hit, s.fields.Text), plan.Options.SnippetLength),
		URL:       getStringField(hit.Fields, s.fields.URL),
		PageID:    parsePageID(hit),
	}
	if !plan.DateOrdered {
		score := hit.Score
		entry.Score = &score
	}
	return entry
}

// matchRanges collects the byte ranges of matched terms in field.
func matchRanges(hit *blevesearch.DocumentMatch, field string) []search.Range {
	terms := hit.Locations[field]
	if len(terms) == 0 {
		return nil
	}
	var ranges []search.Range
	for _, locations := range terms {
		for _, loc := range locations {
			ranges = append(ranges, search.Range{Start: int(loc.Start), End: int(loc.End)})
		}
	}
	return ranges
}

func parsePageID(hit *blevesearch.DocumentMatch) int64 {
	id, err := strconv.ParseInt(hit.ID, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// =============================================================================
// Point Lookup
// =============================================================================

// Page returns the stored form of a page. Text is the indexed plain text,
// not the original markup. Returns ErrPageNotFound if the id is unknown.
func (s *Snapshot) Page(ctx context.Context, id int64) (page.Page, error) {
	q := bleve.NewDocIDQuery([]string{pageDocID(id)})
	req := bleve.NewSearchRequestOptions(q, 1, 0, false)
	req.Fields = s.fields.stored()

	res, err := s.gen.index.SearchInContext(ctx, req)
	if err != nil {
		return page.Page{}, fmt.Errorf("%w: lookup page %d: %w", search.ErrStorage, id, err)
	}
	if len(res.Hits) == 0 {
		return page.Page{}, fmt.Errorf("%w: %d", ErrPageNotFound, id)
	}

	fields := res.Hits[0].Fields
	p := page.Page{
		ID:         id,
		Title:      getStringField(fields, s.fields.Title),
		Text:       getStringField(fields, s.fields.Text),
		Updated:    getTimeField(fields, s.fields.Updated),
		Namespace:  page.Namespace(getNumberField(fields, s.fields.NamespaceID)),
		URL:        getStringField(fields, s.fields.URL),
		Categories: getStringSliceField(fields, s.fields.Category),
	}
	if t := getTimeField(fields, s.fields.TitleDate); !t.IsZero() {
		p.TitleDate = &t
	}
	return p, nil
}

// =============================================================================
// Field Helpers
// =============================================================================

// getStringField extracts a string field from the fields map.
func getStringField(fields map[string]interface{}, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

// getNumberField extracts a numeric field from the fields map.
func getNumberField(fields map[string]interface{}, key string) float64 {
	if v, ok := fields[key].(float64); ok {
		return v
	}
	return 0
}

// getStringSliceField extracts a string slice field from the fields map.
// A single stored value comes back as a plain string.
func getStringSliceField(fields map[string]interface{}, key string) []string {
	switch v := fields[key].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []interface{}:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result
	default:
		return nil
	}
}

// getTimeField extracts a time.Time field from the fields map.
func getTimeField(fields map[string]interface{}, key string) time.Time {
	switch v := fields[key].(type) {
	case time.Time:
		return v.UTC()
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}
		}
		return t.UTC()
	default:
		return time.Time{}
	}
}
