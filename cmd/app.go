package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/adalundhe/wikisearch/core/config"
	"github.com/adalundhe/wikisearch/core/metrics"
	"github.com/adalundhe/wikisearch/core/page"
	"github.com/adalundhe/wikisearch/core/search"
	"github.com/adalundhe/wikisearch/core/search/bleve"
	"github.com/adalundhe/wikisearch/core/search/engine"
	"github.com/adalundhe/wikisearch/core/wiki/source"
	"github.com/adalundhe/wikisearch/core/wiki/textify"
)

// app holds the opened index, wiki and engine for one command.
type app struct {
	index   *bleve.IndexManager
	wiki    *source.SQLite
	texts   *textify.Cache
	metrics *metrics.Metrics
	engine  *engine.Engine
}

// appOptions selects what openApp opens.
type appOptions struct {
	withWiki    bool
	withRuntime bool
}

// openApp opens the index and, when requested, the wiki database. The
// engine always exists; without a wiki its Reindex fails with
// search.ErrSourceUnavailable.
func openApp(c *config.Config, opts appOptions, logger *slog.Logger) (*app, error) {
	a := &app{metrics: metrics.New(opts.withRuntime)}

	index, err := bleve.NewIndexManager(bleve.IndexConfig{
		Path:          c.Index.Path,
		BatchSize:     c.Index.BatchSize,
		BatchTimeout:  c.Index.BatchTimeoutDuration(),
		ExcludeTitles: c.Index.ExcludeTitles,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := index.Open(); err != nil {
		return nil, fmt.Errorf("open index %s: %w", c.Index.Path, err)
	}
	a.index = index

	var wiki source.Wiki = unavailableWiki{}
	if opts.withWiki {
		texts, err := textify.NewCache(&textify.CacheConfig{MaxCost: c.Index.TextifyCacheBytes})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create textify cache: %w", err)
		}
		a.texts = texts
		index.UseTextifier(texts)

		w, err := source.OpenSQLite(source.SQLiteConfig{
			Path:        c.Wiki.SQLiteFile,
			BaseURL:     c.Wiki.BaseURL,
			Driver:      c.Wiki.Driver,
			BusyTimeout: c.Wiki.BusyTimeoutDuration(),
		}, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.wiki = w
		wiki = w
	}

	e, err := engine.New(index, wiki, a.metrics, engine.Config{QueryCacheSize: c.Index.QueryCacheSize}, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine = e
	return a, nil
}

// Close releases everything openApp opened.
func (a *app) Close() error {
	var errs []error
	if a.wiki != nil {
		errs = append(errs, a.wiki.Close())
	}
	if a.index != nil {
		errs = append(errs, a.index.Close())
	}
	if a.texts != nil {
		a.texts.Close()
	}
	return errors.Join(errs...)
}

// unavailableWiki stands in for the wiki in read-only commands.
type unavailableWiki struct{}

func (unavailableWiki) LatestRevision(context.Context) (uint32, error) {
	return 0, fmt.Errorf("%w: wiki database not opened", search.ErrSourceUnavailable)
}

func (unavailableWiki) ListPages(context.Context) ([]page.Page, error) {
	return nil, fmt.Errorf("%w: wiki database not opened", search.ErrSourceUnavailable)
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
