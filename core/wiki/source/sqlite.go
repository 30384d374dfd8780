package source

import (
	"bytes"
	"compress/flate"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/adalundhe/wikisearch/core/page"
	"github.com/adalundhe/wikisearch/core/search"
)

// Driver names registered with database/sql.
const (
	// DriverModernc is the pure-Go driver.
	DriverModernc = "sqlite"

	// DriverCGO is the cgo driver.
	DriverCGO = "sqlite3"

	DefaultDriver = DriverModernc
)

// DefaultBusyTimeout bounds how long a read waits on a locked database.
const DefaultBusyTimeout = 5 * time.Second

var (
	// ErrUnknownDriver indicates an unsupported database/sql driver name.
	ErrUnknownDriver = errors.New("unknown sqlite driver")

	// ErrEmptyPath indicates no database file was configured.
	ErrEmptyPath = errors.New("wiki database path cannot be empty")
)

// =============================================================================
// Configuration
// =============================================================================

// SQLiteConfig configures the wiki database reader.
type SQLiteConfig struct {
	Path        string        // MediaWiki SQLite database file
	BaseURL     string        // Prefix for page URLs, e.g. https://wiki.example/wiki/
	Driver      string        // DriverModernc or DriverCGO
	BusyTimeout time.Duration // Default: 5s
}

// Validate checks the configuration and applies defaults.
func (c *SQLiteConfig) Validate() error {
	if c.Path == "" {
		return ErrEmptyPath
	}
	if c.Driver == "" {
		c.Driver = DefaultDriver
	}
	if c.Driver != DriverModernc && c.Driver != DriverCGO {
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Driver)
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = DefaultBusyTimeout
	}
	return nil
}

// dsn builds a read-only connection string in the driver's dialect.
func (c SQLiteConfig) dsn() string {
	ms := c.BusyTimeout.Milliseconds()
	if c.Driver == DriverCGO {
		return fmt.Sprintf("file:%s?mode=ro&_busy_timeout=%d", c.Path, ms)
	}
	return fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(%d)", c.Path, ms)
}

// =============================================================================
// SQLite
// =============================================================================

// SQLite reads a MediaWiki database (1.35+ schema with content slots).
type SQLite struct {
	config SQLiteConfig
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens the wiki database read-only. The file must exist.
func OpenSQLite(config SQLiteConfig, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(config.Path); err != nil {
		return nil, fmt.Errorf("%w: %w", search.ErrSourceUnavailable, err)
	}

	db, err := sql.Open(config.Driver, config.dsn())
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", search.ErrSourceUnavailable, config.Path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", search.ErrSourceUnavailable, config.Path, err)
	}

	return &SQLite{config: config, db: db, logger: logger}, nil
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.config.Path
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// LatestRevision returns MAX(rev_id), or zero for an empty wiki.
func (s *SQLite) LatestRevision(ctx context.Context) (uint32, error) {
	var latest sql.NullInt64
	if err := s.db.QueryRowContext(ctx, latestRevisionSQL).Scan(&latest); err != nil {
		return 0, fmt.Errorf("%w: latest revision: %w", search.ErrSourceUnavailable, err)
	}
	if !latest.Valid || latest.Int64 < 0 {
		return 0, nil
	}
	return uint32(latest.Int64), nil
}

const latestRevisionSQL = `SELECT MAX(rev_id) FROM revision`

// listPagesSQL joins each page's latest revision to its main-slot text.
const listPagesSQL = `
SELECT p.page_id, p.page_namespace, p.page_title, p.page_touched, t.old_text, t.old_flags
FROM page p
JOIN slots s ON s.slot_revision_id = p.page_latest
JOIN slot_roles r ON r.role_id = s.slot_role_id AND r.role_name = 'main'
JOIN content c ON c.content_id = s.slot_content_id
JOIN text t ON 'tt:' || t.old_id = CAST(c.content_address AS TEXT)
ORDER BY p.page_id`

const categoriesSQL = `SELECT cl_from, cl_to FROM categorylinks ORDER BY cl_from, cl_to`

// ListPages returns every page with its latest text and categories. Pages
// whose text cannot be decoded are skipped with a warning.
func (s *SQLite) ListPages(ctx context.Context) ([]page.Page, error) {
	categories, err := s.categories(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, listPagesSQL)
	if err != nil {
		return nil, fmt.Errorf("%w: list pages: %w", search.ErrSourceUnavailable, err)
	}
	defer rows.Close()

	var pages []page.Page
	for rows.Next() {
		var (
			id      int64
			ns      int32
			title   string
			touched string
			raw     []byte
			flags   string
		)
		if err := rows.Scan(&id, &ns, &title, &touched, &raw, &flags); err != nil {
			return nil, fmt.Errorf("%w: scan page: %w", search.ErrSourceUnavailable, err)
		}

		text, err := decodeText(raw, flags)
		if err != nil {
			s.logger.Warn("skipping page with undecodable text", "page_id", id, "title", title, "error", err)
			continue
		}

		p, err := page.New(id, page.Namespace(ns), title, text, touched, s.config.BaseURL)
		if err != nil {
			s.logger.Warn("skipping page with bad timestamp", "page_id", id, "title", title, "error", err)
			continue
		}
		p.Categories = categories[id]
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list pages: %w", search.ErrSourceUnavailable, err)
	}
	return pages, nil
}

// categories maps page ids to their category names, with spaces.
func (s *SQLite) categories(ctx context.Context) (map[int64][]string, error) {
	rows, err := s.db.QueryContext(ctx, categoriesSQL)
	if err != nil {
		return nil, fmt.Errorf("%w: list categories: %w", search.ErrSourceUnavailable, err)
	}
	defer rows.Close()

	out := make(map[int64][]string)
	for rows.Next() {
		var (
			from int64
			to   string
		)
		if err := rows.Scan(&from, &to); err != nil {
			return nil, fmt.Errorf("%w: scan category: %w", search.ErrSourceUnavailable, err)
		}
		out[from] = append(out[from], page.DisplayTitle(to))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list categories: %w", search.ErrSourceUnavailable, err)
	}
	return out, nil
}

// =============================================================================
// Text Decoding
// =============================================================================

// ErrUnsupportedFlags indicates text stored in a form this reader cannot
// decode, such as external storage.
var ErrUnsupportedFlags = errors.New("unsupported text flags")

// decodeText decodes a text row according to its comma-separated old_flags.
// gzip means raw DEFLATE, as written by PHP's gzdeflate.
func decodeText(raw []byte, flags string) (string, error) {
	for _, flag := range strings.Split(flags, ",") {
		switch strings.TrimSpace(flag) {
		case "", "utf-8", "utf8":
		case "gzip":
			inflated, err := io.ReadAll(flate.NewReader(bytes.NewReader(raw)))
			if err != nil {
				return "", fmt.Errorf("inflate: %w", err)
			}
			raw = inflated
		default:
			return "", fmt.Errorf("%w: %s", ErrUnsupportedFlags, strconv.Quote(flags))
		}
	}
	return string(raw), nil
}
