package bleve

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/wikisearch/core/page"
	"github.com/adalundhe/wikisearch/core/search"
)

// runQuery plans and executes raw against the current generation.
func runQuery(t *testing.T, mgr *IndexManager, raw string, opts search.QueryOptions) *search.PageMatchResult {
	t.Helper()
	plan, err := mgr.Planner().Plan(raw, opts)
	require.NoError(t, err)

	snap, err := mgr.Snapshot()
	require.NoError(t, err)
	defer snap.Release()

	result, err := snap.Search(context.Background(), plan)
	require.NoError(t, err)
	return result
}

func titles(result *search.PageMatchResult) []string {
	out := make([]string, 0, len(result.Entries))
	for _, e := range result.Entries {
		out = append(out, e.Title.Source)
	}
	return out
}

// indexAnimals indexes an undated Cats page and a Dogs page dated 2020.
func indexAnimals(t *testing.T) *IndexManager {
	t.Helper()
	mgr := createOpenIndex(t)

	cats := testPage(t, 1, "Cats", "Cats are mammals")
	dogs := testPage(t, 2, "Dogs_2020", "Dogs are mammals")
	dogs.TitleDate = date(t, "2020-01-01")

	reindex(t, mgr, 1, cats, dogs)
	return mgr
}

// =============================================================================
// Search Tests
// =============================================================================

func TestSnapshot_Search_NoDateFilter(t *testing.T) {
	t.Parallel()

	mgr := indexAnimals(t)
	result := runQuery(t, mgr, "mammals", search.DefaultQueryOptions())

	assert.Equal(t, 2, result.Total)
	assert.ElementsMatch(t, []string{"Cats", "Dogs 2020"}, titles(result))
	for i, e := range result.Entries {
		require.NotNil(t, e.Score, "score-ordered results carry scores")
		if i > 0 {
			assert.GreaterOrEqual(t, *result.Entries[i-1].Score, *e.Score)
		}
	}
}

func TestSnapshot_Search_DateAfter(t *testing.T) {
	t.Parallel()

	mgr := indexAnimals(t)
	opts := search.DefaultQueryOptions()
	opts.DateAfter = date(t, "2019-01-01")
	result := runQuery(t, mgr, "mammals", opts)

	require.Equal(t, 1, result.Total)
	assert.Equal(t, []string{"Dogs 2020"}, titles(result))
	assert.Nil(t, result.Entries[0].Score)
}

func TestSnapshot_Search_DateBoundsInclusive(t *testing.T) {
	t.Parallel()

	mgr := indexAnimals(t)
	opts := search.DefaultQueryOptions()
	opts.DateBefore = date(t, "2020-01-01")
	opts.DateAfter = date(t, "2020-01-01")
	result := runQuery(t, mgr, "mammals", opts)
	assert.Equal(t, 1, result.Total)

	opts.DateBefore = date(t, "2019-12-31")
	opts.DateAfter = nil
	result = runQuery(t, mgr, "mammals", opts)
	assert.Equal(t, 0, result.Total)
	assert.Empty(t, result.Entries)
}

func TestSnapshot_Search_DateOrdered(t *testing.T) {
	t.Parallel()

	mgr := createOpenIndex(t)
	var pages []page.Page
	for i, title := range []string{"1999_Report", "2021_Report", "2005_Report"} {
		pages = append(pages, testPage(t, int64(i+1), title, "annual report"))
	}
	reindex(t, mgr, 1, pages...)

	opts := search.DefaultQueryOptions()
	opts.DateAfter = date(t, "1900-01-01")
	result := runQuery(t, mgr, "report", opts)

	assert.Equal(t, []string{"2021 Report", "2005 Report", "1999 Report"}, titles(result))
}

func TestSnapshot_Search_Fuzzy(t *testing.T) {
	t.Parallel()

	mgr := indexAnimals(t)

	opts := search.DefaultQueryOptions()
	result := runQuery(t, mgr, "mammal", opts)
	assert.Equal(t, 2, result.Total, "stemming matches the plural")

	result = runQuery(t, mgr, "mammls", opts)
	assert.Equal(t, 0, result.Total)

	opts.Fuzzy = true
	result = runQuery(t, mgr, "mammls", opts)
	assert.Equal(t, 2, result.Total)

	result = runQuery(t, mgr, "mam", opts)
	assert.Equal(t, 2, result.Total, "fuzzy mode also matches prefixes")
}

func TestSnapshot_Search_Highlights(t *testing.T) {
	t.Parallel()

	mgr := indexAnimals(t)
	result := runQuery(t, mgr, "cats", search.DefaultQueryOptions())

	require.Len(t, result.Entries, 1)
	e := result.Entries[0]
	assert.Equal(t, "<b>Cats</b>", e.Title.Highlight("<b>", "</b>"))
	assert.Equal(t, "<b>Cats</b> are mammals", e.Text.Highlight("<b>", "</b>"))
	assert.Equal(t, int64(1), e.PageID)
	assert.Equal(t, page.NamespaceMain, e.Namespace)
	assert.Equal(t, testBaseURL+"Cats", e.URL)
}

func TestSnapshot_Search_MatchAll(t *testing.T) {
	t.Parallel()

	mgr := indexAnimals(t)
	result := runQuery(t, mgr, "", search.DefaultQueryOptions())
	assert.Equal(t, 2, result.Total)
}

func TestSnapshot_Search_CJK(t *testing.T) {
	t.Parallel()

	mgr := createOpenIndex(t)
	reindex(t, mgr, 1,
		testPage(t, 1, "東京", "東京は日本の首都です"),
		testPage(t, 2, "Cats", "Cats are mammals"),
	)

	result := runQuery(t, mgr, "日本", search.DefaultQueryOptions())
	assert.Equal(t, []string{"東京"}, titles(result))
}

// =============================================================================
// Pagination Tests
// =============================================================================

func TestSnapshot_Search_PaginationCoversAllMatches(t *testing.T) {
	t.Parallel()

	mgr := createOpenIndex(t)
	const total = 25
	var pages []page.Page
	for i := int64(1); i <= total; i++ {
		pages = append(pages, testPage(t, i, fmt.Sprintf("Page_%d", i), "shared alpha text"))
	}
	reindex(t, mgr, 1, pages...)

	opts := search.DefaultQueryOptions()
	seen := make(map[int64]bool)
	for pageNum := 0; ; pageNum++ {
		result := runQuery(t, mgr, "alpha", opts)
		assert.Equal(t, total, result.Total)
		assert.Equal(t, total-opts.Offset, result.Remaining)
		for _, e := range result.Entries {
			assert.False(t, seen[e.PageID], "page %d returned twice", e.PageID)
			seen[e.PageID] = true
		}
		if !result.HasMore() {
			break
		}
		assert.Equal(t, opts.Offset+opts.Count, *result.NewOffset)
		opts.Offset = *result.NewOffset
		require.Less(t, pageNum, total, "pagination did not terminate")
	}
	assert.Len(t, seen, total)
}

func TestSnapshot_Search_OffsetPastEnd(t *testing.T) {
	t.Parallel()

	mgr := indexAnimals(t)
	opts := search.DefaultQueryOptions()
	opts.Offset = 50
	result := runQuery(t, mgr, "mammals", opts)

	assert.Equal(t, 2, result.Total)
	assert.Empty(t, result.Entries)
	assert.Equal(t, 0, result.Remaining)
	assert.False(t, result.HasMore())
}
