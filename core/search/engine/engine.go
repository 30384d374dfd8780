// Package engine ties the wiki source, the page index and metrics
// together behind the query and reindex operations.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/adalundhe/wikisearch/core/metrics"
	"github.com/adalundhe/wikisearch/core/search"
	"github.com/adalundhe/wikisearch/core/search/bleve"
	"github.com/adalundhe/wikisearch/core/wiki/source"
)

// DefaultQueryCacheSize is the number of query results kept per engine.
const DefaultQueryCacheSize = 512

// Config configures the engine.
type Config struct {
	QueryCacheSize int // Zero uses DefaultQueryCacheSize; negative disables caching
}

// ReindexResult describes one reindex request.
type ReindexResult struct {
	RunID     string        `json:"run_id"`
	Skipped   bool          `json:"skipped"`
	PageCount uint64        `json:"page_count"`
	Revision  uint32        `json:"revision"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Engine serves queries from the current index generation and rebuilds
// the index from the wiki. Queries never wait on a reindex.
type Engine struct {
	index   *bleve.IndexManager
	planner *bleve.QueryPlanner
	wiki    source.Wiki
	metrics *metrics.Metrics
	logger  *slog.Logger

	sourceMu sync.Mutex // one reader of the wiki at a time
	cache    *lru.Cache[string, *search.PageMatchResult]
}

// New creates an engine over an open index. A nil metrics uses a private
// registry.
func New(index *bleve.IndexManager, wiki source.Wiki, m *metrics.Metrics, config Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New(false)
	}

	e := &Engine{
		index:   index,
		planner: index.Planner(),
		wiki:    wiki,
		metrics: m,
		logger:  logger,
	}

	size := config.QueryCacheSize
	if size == 0 {
		size = DefaultQueryCacheSize
	}
	if size > 0 {
		cache, err := lru.New[string, *search.PageMatchResult](size)
		if err != nil {
			return nil, fmt.Errorf("create query cache: %w", err)
		}
		e.cache = cache
	}

	if count, err := index.PageCount(); err == nil {
		m.SetIndexState(count, index.Revision())
	}
	return e, nil
}

// =============================================================================
// Query
// =============================================================================

// Query runs q against the current index generation. Results for a
// generation are cached; the returned result must not be modified.
func (e *Engine) Query(ctx context.Context, q string, opts search.QueryOptions) (*search.PageMatchResult, error) {
	start := time.Now()

	plan, err := e.planner.Plan(q, opts)
	if err != nil {
		e.metrics.RecordQuery(metrics.StatusInvalid, time.Since(start))
		return nil, err
	}

	snap, err := e.index.Snapshot()
	if err != nil {
		e.metrics.RecordQuery(metrics.StatusError, time.Since(start))
		return nil, fmt.Errorf("%w: %w", search.ErrStorage, err)
	}
	defer snap.Release()

	key := cacheKey(snap.Generation(), q, plan.Options)
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			result := *cached
			result.Elapsed = time.Since(start)
			e.metrics.RecordQuery(metrics.StatusCached, result.Elapsed)
			return &result, nil
		}
	}

	result, err := snap.Search(ctx, plan)
	if err != nil {
		e.metrics.RecordQuery(metrics.StatusError, time.Since(start))
		return nil, err
	}
	if e.cache != nil {
		e.cache.Add(key, result)
	}

	e.metrics.RecordQuery(metrics.StatusOK, result.Elapsed)
	e.logger.Debug("query",
		"q", q,
		"total", result.Total,
		"offset", plan.Options.Offset,
		"elapsed", result.Elapsed,
	)
	return result, nil
}

func cacheKey(generation uint64, q string, opts search.QueryOptions) string {
	return fmt.Sprintf("%d\x00%s\x00%s", generation, strings.TrimSpace(q), opts.Key())
}

// =============================================================================
// Reindex
// =============================================================================

// Reindex rebuilds the index when the wiki has a revision newer than the
// index, or unconditionally when force is set. Source errors wrap
// search.ErrSourceUnavailable; the previous index stays current on error.
func (e *Engine) Reindex(ctx context.Context, force bool) (ReindexResult, error) {
	e.sourceMu.Lock()
	defer e.sourceMu.Unlock()

	start := time.Now()
	result := ReindexResult{RunID: uuid.NewString()}

	latest, err := e.wiki.LatestRevision(ctx)
	if err != nil {
		e.metrics.RecordReindex(metrics.OutcomeFailed, time.Since(start))
		return result, sourceError(err)
	}

	if !force && !e.index.RequiresReindex(latest) {
		result.Skipped = true
		result.Revision = e.index.Revision()
		result.PageCount, _ = e.index.PageCount()
		result.Elapsed = time.Since(start)
		e.metrics.RecordReindex(metrics.OutcomeSkipped, result.Elapsed)
		return result, nil
	}

	pages, err := e.wiki.ListPages(ctx)
	if err != nil {
		e.metrics.RecordReindex(metrics.OutcomeFailed, time.Since(start))
		return result, sourceError(err)
	}

	stats, err := e.index.Reindex(ctx, pages, latest)
	if err != nil {
		e.metrics.RecordReindex(metrics.OutcomeFailed, time.Since(start))
		return result, err
	}
	if e.cache != nil {
		e.cache.Purge()
	}

	result.PageCount = stats.PageCount
	result.Revision = stats.Revision
	result.Elapsed = time.Since(start)
	e.metrics.RecordReindex(metrics.OutcomeReindexed, result.Elapsed)
	e.metrics.SetIndexState(stats.PageCount, stats.Revision)
	return result, nil
}

// sourceError makes sure source failures carry ErrSourceUnavailable.
func sourceError(err error) error {
	if errors.Is(err, search.ErrSourceUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", search.ErrSourceUnavailable, err)
}

// =============================================================================
// Index State
// =============================================================================

// PageCount returns the number of indexed pages.
func (e *Engine) PageCount() (uint64, error) {
	return e.index.PageCount()
}

// Revision returns the wiki revision the index was built from.
func (e *Engine) Revision() uint32 {
	return e.index.Revision()
}
