package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wikisearch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, time.Hour, cfg.Reindex.IntervalDuration())
	assert.Equal(t, 30*time.Second, cfg.Index.BatchTimeoutDuration())
	assert.Equal(t, 400, cfg.Search.SnippetLength)
	assert.True(t, cfg.Wiki.Watch)

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.Addr, cfg.Server.Addr)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Index.Path, cfg.Index.Path)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
index:
  path: /var/lib/wikisearch
  exclude_titles:
    - "User:*/sandbox"
wiki:
  sqlite_file: /srv/wiki/my_wiki.sqlite
  base_url: https://wiki.example/wiki/
reindex:
  interval: 15m
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/wikisearch", cfg.Index.Path)
	assert.Equal(t, []string{"User:*/sandbox"}, cfg.Index.ExcludeTitles)
	assert.Equal(t, "/srv/wiki/my_wiki.sqlite", cfg.Wiki.SQLiteFile)
	assert.Equal(t, 15*time.Minute, cfg.Reindex.IntervalDuration())
	assert.Equal(t, "json", cfg.Log.Format)

	assert.Equal(t, 500, cfg.Index.BatchSize, "unset keys keep their defaults")
	assert.Equal(t, "sqlite", cfg.Wiki.Driver)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("WIKISEARCH_SERVER_ADDR", ":9999")
	t.Setenv("WIKISEARCH_REINDEX_INTERVAL", "5m")
	t.Setenv("WIKISEARCH_WIKI_WATCH", "false")

	path := writeConfig(t, "server:\n  addr: 127.0.0.1:1234\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Reindex.IntervalDuration())
	assert.False(t, cfg.Wiki.Watch)
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/wikisearch.yaml")

	assert.Equal(t, "explicit.yaml", ResolvePath("explicit.yaml"))
	assert.Equal(t, "/etc/wikisearch.yaml", ResolvePath(""))
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":         "index: [",
		"bad duration":     "reindex:\n  interval: soon\n",
		"zero duration":    "reindex:\n  interval: 0s\n",
		"bad level":        "log:\n  level: loud\n",
		"bad format":       "log:\n  format: xml\n",
		"empty index path": "index:\n  path: \"\"\n",
		"zero count":       "search:\n  default_count: 0\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestValidate_WrapsErrInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.ReindexBurst = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestConfig_MarshalRoundTrip(t *testing.T) {
	data, err := DefaultConfig().Marshal()
	require.NoError(t, err)

	cfg, err := Load(writeConfig(t, string(data)))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}
