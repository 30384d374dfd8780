package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/adalundhe/wikisearch/core/search/reindexer"
	"github.com/adalundhe/wikisearch/core/server"
	"github.com/adalundhe/wikisearch/core/wiki/source"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search API and keep the index current",
	Long: `Serve the HTTP search API. The index is rebuilt at startup when the wiki
has changed, on every reindex interval, and shortly after the wiki
database file is written when watching is enabled.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(cfg, appOptions{withWiki: true, withRuntime: true}, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	scheduler, err := reindexer.NewScheduler(a.engine, reindexer.Config{
		Interval: cfg.Reindex.IntervalDuration(),
	}, logger)
	if err != nil {
		return err
	}

	var watcher *source.Watcher
	if cfg.Wiki.Watch {
		watcher, err = source.NewWatcher(a.wiki.Path(), cfg.Wiki.WatchDebounceDuration(), scheduler.Trigger, logger)
		if err != nil {
			return err
		}
	}

	srv := server.New(a.engine, a.metrics.Handler(), server.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeoutDuration(),
		WriteTimeout:    cfg.Server.WriteTimeoutDuration(),
		ShutdownTimeout: cfg.Server.ShutdownTimeoutDuration(),
		ReindexEvery:    cfg.Server.ReindexEveryDuration(),
		ReindexBurst:    cfg.Server.ReindexBurst,
		DefaultCount:    cfg.Search.DefaultCount,
		SnippetLength:   cfg.Search.SnippetLength,
		SnippetPrefix:   cfg.Search.SnippetPrefix,
		SnippetSuffix:   cfg.Search.SnippetSuffix,
	}, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error { return scheduler.Run(ctx) })

	if watcher != nil {
		g.Go(func() error { return watcher.Run(ctx) })
	}

	logger.Info("wikisearch started",
		"addr", cfg.Server.Addr,
		"wiki", a.wiki.Path(),
		"index", cfg.Index.Path,
		"interval", cfg.Reindex.Interval,
		"watch", cfg.Wiki.Watch,
	)
	return g.Wait()
}
