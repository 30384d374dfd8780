// Package config loads the wikisearch configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the config file when no path is given explicitly.
const EnvConfigPath = "WIKISEARCH_CONFIG"

// ErrInvalidConfig indicates a configuration value is out of range or
// malformed.
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Index   IndexConfig   `yaml:"index"`
	Wiki    WikiConfig    `yaml:"wiki"`
	Reindex ReindexConfig `yaml:"reindex"`
	Server  ServerConfig  `yaml:"server"`
	Search  SearchConfig  `yaml:"search"`
	Log     LogConfig     `yaml:"log"`
}

type IndexConfig struct {
	Path              string   `yaml:"path"`
	BatchSize         int      `yaml:"batch_size"`
	BatchTimeout      string   `yaml:"batch_timeout"`
	ExcludeTitles     []string `yaml:"exclude_titles"`
	QueryCacheSize    int      `yaml:"query_cache_size"`
	TextifyCacheBytes int64    `yaml:"textify_cache_bytes"`
}

type WikiConfig struct {
	SQLiteFile    string `yaml:"sqlite_file"`
	BaseURL       string `yaml:"base_url"`
	Driver        string `yaml:"driver"`
	BusyTimeout   string `yaml:"busy_timeout"`
	Watch         bool   `yaml:"watch"`
	WatchDebounce string `yaml:"watch_debounce"`
}

type ReindexConfig struct {
	Interval string `yaml:"interval"`
}

type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	ReindexEvery    string `yaml:"reindex_every"`
	ReindexBurst    int    `yaml:"reindex_burst"`
}

type SearchConfig struct {
	DefaultCount  int    `yaml:"default_count"`
	SnippetLength int    `yaml:"snippet_length"`
	SnippetPrefix string `yaml:"snippet_prefix"`
	SnippetSuffix string `yaml:"snippet_suffix"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func DefaultConfig() *Config {
	return &Config{
		Index: IndexConfig{
			Path:              "data/index",
			ExcludeTitles:     []string{},
			BatchSize:         500,
			BatchTimeout:      "30s",
			QueryCacheSize:    512,
			TextifyCacheBytes: 256 << 20,
		},
		Wiki: WikiConfig{
			SQLiteFile:    "wiki.sqlite",
			Driver:        "sqlite",
			BusyTimeout:   "5s",
			Watch:         true,
			WatchDebounce: "2s",
		},
		Reindex: ReindexConfig{
			Interval: "1h",
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			ReadTimeout:     "10s",
			WriteTimeout:    "30s",
			ShutdownTimeout: "10s",
			ReindexEvery:    "1m",
			ReindexBurst:    1,
		},
		Search: SearchConfig{
			DefaultCount:  10,
			SnippetLength: 400,
			SnippetPrefix: `<span class="term">`,
			SnippetSuffix: "</span>",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// =============================================================================
// Loading
// =============================================================================

// ResolvePath returns path, or the WIKISEARCH_CONFIG file when path is
// empty.
func ResolvePath(path string) string {
	if path != "" {
		return path
	}
	return os.Getenv(EnvConfigPath)
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. A missing or empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := loadYAMLFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	applyEnvironment(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadYAMLFile(path string, cfg *Config) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvironment(cfg *Config) {
	if v := os.Getenv("WIKISEARCH_INDEX_PATH"); v != "" {
		cfg.Index.Path = v
	}
	if v := os.Getenv("WIKISEARCH_WIKI_SQLITE_FILE"); v != "" {
		cfg.Wiki.SQLiteFile = v
	}
	if v := os.Getenv("WIKISEARCH_WIKI_BASE_URL"); v != "" {
		cfg.Wiki.BaseURL = v
	}
	if v := os.Getenv("WIKISEARCH_WIKI_WATCH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Wiki.Watch = b
		}
	}
	if v := os.Getenv("WIKISEARCH_REINDEX_INTERVAL"); v != "" {
		cfg.Reindex.Interval = v
	}
	if v := os.Getenv("WIKISEARCH_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("WIKISEARCH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// =============================================================================
// Validation
// =============================================================================

// Validate checks every field, reporting the first problem found.
func (c *Config) Validate() error {
	if c.Index.Path == "" {
		return fmt.Errorf("%w: index.path is required", ErrInvalidConfig)
	}
	if c.Wiki.SQLiteFile == "" {
		return fmt.Errorf("%w: wiki.sqlite_file is required", ErrInvalidConfig)
	}
	if c.Index.BatchSize < 0 {
		return fmt.Errorf("%w: index.batch_size cannot be negative", ErrInvalidConfig)
	}
	if c.Search.DefaultCount < 1 {
		return fmt.Errorf("%w: search.default_count must be positive", ErrInvalidConfig)
	}
	if c.Search.SnippetLength < 1 {
		return fmt.Errorf("%w: search.snippet_length must be positive", ErrInvalidConfig)
	}
	if c.Server.ReindexBurst < 1 {
		return fmt.Errorf("%w: server.reindex_burst must be positive", ErrInvalidConfig)
	}

	durations := []struct {
		name, value string
	}{
		{"index.batch_timeout", c.Index.BatchTimeout},
		{"wiki.busy_timeout", c.Wiki.BusyTimeout},
		{"wiki.watch_debounce", c.Wiki.WatchDebounce},
		{"reindex.interval", c.Reindex.Interval},
		{"server.read_timeout", c.Server.ReadTimeout},
		{"server.write_timeout", c.Server.WriteTimeout},
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
		{"server.reindex_every", c.Server.ReindexEvery},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, d.name, err)
		}
		if parsed <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, d.name)
		}
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be text or json, got %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

// mustDuration parses a duration already checked by Validate.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

func (c IndexConfig) BatchTimeoutDuration() time.Duration {
	return mustDuration(c.BatchTimeout)
}

func (c WikiConfig) BusyTimeoutDuration() time.Duration {
	return mustDuration(c.BusyTimeout)
}

func (c WikiConfig) WatchDebounceDuration() time.Duration {
	return mustDuration(c.WatchDebounce)
}

func (c ReindexConfig) IntervalDuration() time.Duration {
	return mustDuration(c.Interval)
}

func (c ServerConfig) ReadTimeoutDuration() time.Duration {
	return mustDuration(c.ReadTimeout)
}

func (c ServerConfig) WriteTimeoutDuration() time.Duration {
	return mustDuration(c.WriteTimeout)
}

func (c ServerConfig) ShutdownTimeoutDuration() time.Duration {
	return mustDuration(c.ShutdownTimeout)
}

func (c ServerConfig) ReindexEveryDuration() time.Duration {
	return mustDuration(c.ReindexEvery)
}

// SlogLevel parses the configured level name.
func (c LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return 0, fmt.Errorf("%w: log.level: %w", ErrInvalidConfig, err)
	}
	return level, nil
}
