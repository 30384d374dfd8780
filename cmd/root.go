// Package cmd provides the wikisearch command line.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adalundhe/wikisearch/core/config"
)

// =============================================================================
// Global Flags
// =============================================================================

var (
	rootConfigPath string
	rootLogLevel   string
)

// cfg and logger are set up before any subcommand runs.
var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "wikisearch",
	Short: "Full-text search for a MediaWiki database",
	Long: `wikisearch indexes the pages of a MediaWiki SQLite database and serves
full-text queries over them.

Examples:
  wikisearch serve --config wikisearch.yaml
  wikisearch reindex --force
  wikisearch query "cats -dogs"
  wikisearch query --after 2020-01-01 --json meeting`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootConfigPath, "config", "c", "", "Path to config file (default $"+config.EnvConfigPath+")")
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

func Execute() error {
	return rootCmd.Execute()
}

// setup loads configuration and installs the default logger.
func setup(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(config.ResolvePath(rootConfigPath))
	if err != nil {
		return err
	}
	if rootLogLevel != "" {
		loaded.Log.Level = rootLogLevel
	}

	l, err := newLogger(cmd.ErrOrStderr(), loaded.Log)
	if err != nil {
		return err
	}
	cfg = loaded
	logger = l
	slog.SetDefault(l)
	return nil
}

// newLogger builds a text or JSON slog handler at the configured level.
func newLogger(w io.Writer, lc config.LogConfig) (*slog.Logger, error) {
	level, err := lc.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(lc.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("%w: log.format %q", config.ErrInvalidConfig, lc.Format)
	}
}

// stdoutIsTerminal is replaced in tests.
var stdoutIsTerminal = func(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isTerminal(f)
}
