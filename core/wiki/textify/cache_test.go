package textify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/wikisearch/core/page"
)

func TestCache_Textify(t *testing.T) {
	t.Parallel()

	c, err := NewCache(nil)
	require.NoError(t, err)
	defer c.Close()

	updated := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := page.Page{ID: 1, Text: "See [[Cats|cats]]", Updated: updated}

	assert.Equal(t, "See cats(Cats)", c.Textify(p))
	c.Wait()
	assert.Equal(t, "See cats(Cats)", c.Textify(p))

	// The admission policy may drop a set, so only the totals are exact.
	hits, misses := c.Stats()
	assert.Equal(t, uint64(2), hits+misses)
	assert.GreaterOrEqual(t, misses, uint64(1))
}

func TestCache_ChangedPageMisses(t *testing.T) {
	t.Parallel()

	c, err := NewCache(&CacheConfig{MaxCost: 1 << 20})
	require.NoError(t, err)
	defer c.Close()

	updated := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := page.Page{ID: 1, Text: "old", Updated: updated}
	assert.Equal(t, "old", c.Textify(p))
	c.Wait()

	p.Text = "new"
	p.Updated = updated.Add(time.Hour)
	assert.Equal(t, "new", c.Textify(p))

	_, misses := c.Stats()
	assert.Equal(t, uint64(2), misses)
}
