package bleve

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/gobwas/glob"

	"github.com/adalundhe/wikisearch/core/page"
	"github.com/adalundhe/wikisearch/core/search"
	"github.com/adalundhe/wikisearch/core/wiki/textify"
)

// =============================================================================
// Configuration
// =============================================================================

// IndexConfig holds index configuration.
type IndexConfig struct {
	Path          string        // Root directory holding index generations
	BatchSize     int           // Pages per batch commit
	BatchTimeout  time.Duration // Timeout for batch commit operations. Default: 30s
	ExcludeTitles []string      // Glob patterns matched against full page titles
}

// DefaultBatchTimeout is the default timeout for batch commit operations.
const DefaultBatchTimeout = 30 * time.Second

const (
	// MinBatchSize is the minimum allowed batch size to prevent excessive commit overhead.
	MinBatchSize = 10

	// MaxBatchSize is the maximum allowed batch size to prevent OOM from large batches.
	MaxBatchSize = 10000

	// DefaultBatchSize is the default batch size when not specified.
	DefaultBatchSize = 500
)

// ValidateBatchSize ensures batch size is within acceptable range.
func ValidateBatchSize(size int) int {
	if size < MinBatchSize {
		return MinBatchSize
	}
	if size > MaxBatchSize {
		return MaxBatchSize
	}
	return size
}

// DefaultIndexConfig returns sensible defaults for the given root path.
func DefaultIndexConfig(path string) IndexConfig {
	return IndexConfig{
		Path:         path,
		BatchSize:    DefaultBatchSize,
		BatchTimeout: DefaultBatchTimeout,
	}
}

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrIndexClosed indicates an operation was attempted on a closed index.
	ErrIndexClosed = errors.New("index is closed")

	// ErrIncompatibleSchema indicates the stored index was written with a
	// different schema version.
	ErrIncompatibleSchema = errors.New("incompatible index schema")

	// ErrBatchTimeout indicates a batch commit operation timed out.
	ErrBatchTimeout = errors.New("batch commit timeout")

	// ErrPageNotFound indicates a page id is not in the index.
	ErrPageNotFound = errors.New("page not found")
)

// =============================================================================
// Generations
// =============================================================================

const (
	currentFileName  = "CURRENT"
	generationPrefix = "gen-"
)

// Internal keys stored alongside the documents of each generation.
var (
	revisionKey = []byte("_wikisearch_revision")
	schemaKey   = []byte("_wikisearch_schema")
)

// generation is one complete, immutable index directory. refs counts
// open snapshots; the directory is removed once it is retired and refs
// drains.
type generation struct {
	id       uint64
	dir      string
	index    bleve.Index
	revision uint32
	refs     sync.WaitGroup
}

func generationName(id uint64) string {
	return fmt.Sprintf("%s%06d", generationPrefix, id)
}

func parseGenerationName(name string) (uint64, bool) {
	rest, ok := strings.CutPrefix(name, generationPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(rest, 10, 64)
	return id, err == nil
}

// Textifier converts a page's markup to indexable plain text.
type Textifier interface {
	Textify(p page.Page) string
}

type markupTextifier struct{}

func (markupTextifier) Textify(p page.Page) string {
	return textify.Textify(p.Text)
}

// =============================================================================
// IndexManager
// =============================================================================

// IndexManager owns the on-disk index. Reads go through snapshots of the
// current generation; Reindex builds a new generation beside it and swaps
// it in atomically, so readers never observe a partial index.
type IndexManager struct {
	config    IndexConfig
	logger    *slog.Logger
	mapping   *mapping.IndexMappingImpl
	fields    Fields
	excludes  []glob.Glob
	textifier Textifier

	mu      sync.RWMutex // guards current and closed
	current *generation
	closed  bool

	writeMu  sync.Mutex // serializes Reindex
	retiring sync.WaitGroup
}

// NewIndexManager creates an IndexManager for the given configuration.
// The index is not opened until Open() is called.
func NewIndexManager(config IndexConfig, logger *slog.Logger) (*IndexManager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.BatchTimeout <= 0 {
		config.BatchTimeout = DefaultBatchTimeout
	}

	indexMapping, err := BuildIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("build mapping: %w", err)
	}
	fields, err := ResolveFields(indexMapping)
	if err != nil {
		return nil, err
	}

	excludes := make([]glob.Glob, 0, len(config.ExcludeTitles))
	for _, pattern := range config.ExcludeTitles {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile exclude pattern %q: %w", pattern, err)
		}
		excludes = append(excludes, g)
	}

	return &IndexManager{
		config:    config,
		logger:    logger,
		mapping:   indexMapping,
		fields:    fields,
		excludes:  excludes,
		textifier: markupTextifier{},
	}, nil
}

// UseTextifier replaces the markup textifier used by Reindex.
func (m *IndexManager) UseTextifier(t Textifier) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if t == nil {
		t = markupTextifier{}
	}
	m.textifier = t
}

// Fields returns the schema field handles.
func (m *IndexManager) Fields() Fields {
	return m.fields
}

// Path returns the index root directory.
func (m *IndexManager) Path() string {
	return m.config.Path
}

// =============================================================================
// Lifecycle Methods
// =============================================================================

// Open opens the current generation, creating an empty index when none
// exists. Calling Open on an open manager is a no-op. Storage failures and
// schema mismatches are reported as search.ErrStorage.
func (m *IndexManager) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return nil
	}

	if err := os.MkdirAll(m.config.Path, 0o755); err != nil {
		return fmt.Errorf("%w: create index root: %w", search.ErrStorage, err)
	}

	gen, err := m.openOrCreate()
	if err != nil {
		return err
	}

	m.current = gen
	m.closed = false
	m.removeStaleGenerations(gen.id)

	m.logger.Info("index opened",
		"path", m.config.Path,
		"generation", gen.id,
		"revision", gen.revision,
	)
	return nil
}

// openOrCreate opens the generation named by CURRENT, or creates the first
// generation. Must be called with write lock held.
func (m *IndexManager) openOrCreate() (*generation, error) {
	data, err := os.ReadFile(filepath.Join(m.config.Path, currentFileName))
	if errors.Is(err, os.ErrNotExist) {
		return m.createInitialGeneration()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", search.ErrStorage, currentFileName, err)
	}

	name := strings.TrimSpace(string(data))
	id, ok := parseGenerationName(name)
	if !ok {
		return nil, fmt.Errorf("%w: malformed %s %q", search.ErrStorage, currentFileName, name)
	}
	return m.openGeneration(id)
}

func (m *IndexManager) createInitialGeneration() (*generation, error) {
	gen, err := m.createGeneration(1)
	if err != nil {
		return nil, err
	}
	if err := gen.index.SetInternal(schemaKey, []byte(SchemaVersion)); err != nil {
		m.discard(gen)
		return nil, fmt.Errorf("%w: write schema version: %w", search.ErrStorage, err)
	}
	if err := m.writeCurrent(gen.id); err != nil {
		m.discard(gen)
		return nil, err
	}
	return gen, nil
}

func (m *IndexManager) createGeneration(id uint64) (*generation, error) {
	dir := filepath.Join(m.config.Path, generationName(id))
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("%w: clear %s: %w", search.ErrStorage, dir, err)
	}
	index, err := bleve.New(dir, m.mapping)
	if err != nil {
		return nil, fmt.Errorf("%w: create index: %w", search.ErrStorage, err)
	}
	return &generation{id: id, dir: dir, index: index}, nil
}

func (m *IndexManager) openGeneration(id uint64) (*generation, error) {
	dir := filepath.Join(m.config.Path, generationName(id))
	index, err := bleve.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: open index: %w", search.ErrStorage, err)
	}

	schema, err := index.GetInternal(schemaKey)
	if err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("%w: read schema version: %w", search.ErrStorage, err)
	}
	if string(schema) != SchemaVersion {
		_ = index.Close()
		return nil, fmt.Errorf("%w: %w: found %q, want %q",
			search.ErrStorage, ErrIncompatibleSchema, schema, SchemaVersion)
	}

	raw, err := index.GetInternal(revisionKey)
	if err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("%w: read revision: %w", search.ErrStorage, err)
	}

	return &generation{id: id, dir: dir, index: index, revision: decodeRevision(raw)}, nil
}

// writeCurrent points CURRENT at generation id via write-then-rename.
func (m *IndexManager) writeCurrent(id uint64) error {
	path := filepath.Join(m.config.Path, currentFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(generationName(id)+"\n"), 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %w", search.ErrStorage, currentFileName, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: swap %s: %w", search.ErrStorage, currentFileName, err)
	}
	return nil
}

// removeStaleGenerations deletes generation directories left behind by an
// interrupted reindex or retirement.
func (m *IndexManager) removeStaleGenerations(keep uint64) {
	entries, err := os.ReadDir(m.config.Path)
	if err != nil {
		return
	}
	for _, entry := range entries {
		id, ok := parseGenerationName(entry.Name())
		if !ok || !entry.IsDir() || id == keep {
			continue
		}
		dir := filepath.Join(m.config.Path, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			m.logger.Warn("failed to remove stale generation", "dir", dir, "error", err)
		}
	}
}

func (m *IndexManager) discard(gen *generation) {
	_ = gen.index.Close()
	_ = os.RemoveAll(gen.dir)
}

// retire closes and removes gen once every snapshot on it is released.
func (m *IndexManager) retire(gen *generation) {
	m.retiring.Add(1)
	go func() {
		defer m.retiring.Done()
		gen.refs.Wait()
		if err := gen.index.Close(); err != nil {
			m.logger.Warn("failed to close retired generation", "generation", gen.id, "error", err)
		}
		if err := os.RemoveAll(gen.dir); err != nil {
			m.logger.Warn("failed to remove retired generation", "generation", gen.id, "error", err)
		}
	}()
}

// Close closes the current generation. Snapshots must be released first.
// Returns nil if the index is already closed.
func (m *IndexManager) Close() error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	gen := m.current
	m.current = nil
	m.closed = true
	m.mu.Unlock()

	m.retiring.Wait()

	if gen == nil {
		return nil
	}
	return gen.index.Close()
}

// IsOpen returns true if the index is currently open.
func (m *IndexManager) IsOpen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current != nil && !m.closed
}

// =============================================================================
// Revision & Counts
// =============================================================================

// Revision returns the wiki revision the current generation was built
// from. Zero means the index was never built.
func (m *IndexManager) Revision() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return 0
	}
	return m.current.revision
}

// RequiresReindex reports whether latest is newer than the indexed revision.
func (m *IndexManager) RequiresReindex(latest uint32) bool {
	return latest > m.Revision()
}

// PageCount returns the number of pages in the current generation.
func (m *IndexManager) PageCount() (uint64, error) {
	snap, err := m.Snapshot()
	if err != nil {
		return 0, err
	}
	defer snap.Release()
	return snap.PageCount()
}

// Generation returns the id of the current generation.
func (m *IndexManager) Generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return 0
	}
	return m.current.id
}

// Snapshot returns a point-in-time view of the current generation. The
// view stays valid across reindexes until Release is called.
func (m *IndexManager) Snapshot() (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed || m.current == nil {
		return nil, ErrIndexClosed
	}
	m.current.refs.Add(1)
	return &Snapshot{gen: m.current, fields: m.fields}, nil
}

// =============================================================================
// Reindex
// =============================================================================

// ReindexStats describes a completed reindex.
type ReindexStats struct {
	PageCount  uint64
	Empty      int
	Excluded   int
	Revision   uint32
	Generation uint64
	Elapsed    time.Duration
}

// Reindex replaces the index contents with pages, recorded as built from
// revision. The stored revision never decreases. Pages whose text is empty
// after textifying, or whose title matches an exclude pattern, are not
// indexed. On failure the previous generation stays current.
func (m *IndexManager) Reindex(ctx context.Context, pages []page.Page, revision uint32) (ReindexStats, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	start := time.Now()

	m.mu.RLock()
	prev := m.current
	m.mu.RUnlock()
	if prev == nil {
		return ReindexStats{}, ErrIndexClosed
	}

	stats := ReindexStats{
		Revision:   max(prev.revision, revision),
		Generation: prev.id + 1,
	}

	next, err := m.createGeneration(stats.Generation)
	if err != nil {
		return ReindexStats{}, err
	}

	if err := m.fill(ctx, next, pages, stats.Revision, &stats); err != nil {
		m.discard(next)
		if ctx.Err() != nil {
			return ReindexStats{}, err
		}
		return ReindexStats{}, fmt.Errorf("%w: %w", search.ErrStorage, err)
	}
	next.revision = stats.Revision

	count, err := next.index.DocCount()
	if err != nil {
		m.discard(next)
		return ReindexStats{}, fmt.Errorf("%w: count documents: %w", search.ErrStorage, err)
	}
	stats.PageCount = count

	if err := m.writeCurrent(next.id); err != nil {
		m.discard(next)
		return ReindexStats{}, err
	}

	m.mu.Lock()
	m.current = next
	m.mu.Unlock()
	m.retire(prev)

	stats.Elapsed = time.Since(start)
	m.logger.Info("reindex complete",
		"pages", stats.PageCount,
		"empty", stats.Empty,
		"excluded", stats.Excluded,
		"revision", stats.Revision,
		"generation", stats.Generation,
		"elapsed", stats.Elapsed,
	)
	return stats, nil
}

// fill writes pages into gen in batches. The revision and schema version
// are committed with the last batch.
func (m *IndexManager) fill(ctx context.Context, gen *generation, pages []page.Page, revision uint32, stats *ReindexStats) error {
	batchSize := ValidateBatchSize(m.config.BatchSize)
	batch := gen.index.NewBatch()

	for _, p := range pages {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if m.excluded(p) {
			stats.Excluded++
			continue
		}
		doc, ok := m.buildDocument(p)
		if !ok {
			stats.Empty++
			continue
		}
		if err := batch.Index(pageDocID(p.ID), doc); err != nil {
			return fmt.Errorf("index page %d: %w", p.ID, err)
		}

		if batch.Size() >= batchSize {
			if err := m.BatchWithTimeout(ctx, gen.index, batch); err != nil {
				return fmt.Errorf("commit batch: %w", err)
			}
			batch = gen.index.NewBatch()
		}
	}

	batch.SetInternal(revisionKey, encodeRevision(revision))
	batch.SetInternal(schemaKey, []byte(SchemaVersion))
	if err := m.BatchWithTimeout(ctx, gen.index, batch); err != nil {
		return fmt.Errorf("commit final batch: %w", err)
	}
	return nil
}

// BatchWithTimeout wraps batch commit with context timeout protection.
// If the context doesn't already have a deadline, it applies the configured BatchTimeout.
func (m *IndexManager) BatchWithTimeout(ctx context.Context, index bleve.Index, batch *bleve.Batch) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.BatchTimeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- index.Batch(batch)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrBatchTimeout, ctx.Err())
		}
		return ctx.Err()
	}
}

func (m *IndexManager) excluded(p page.Page) bool {
	if len(m.excludes) == 0 {
		return false
	}
	title := p.FullTitle()
	for _, g := range m.excludes {
		if g.Match(title) {
			return true
		}
	}
	return false
}

// buildDocument converts a page to its indexed form. Returns false when the
// page has no text worth indexing.
func (m *IndexManager) buildDocument(p page.Page) (map[string]interface{}, bool) {
	text := m.textifier.Textify(p)
	if strings.TrimSpace(text) == "" {
		return nil, false
	}

	doc := map[string]interface{}{
		m.fields.ID:          float64(p.ID),
		m.fields.Title:       p.Title,
		m.fields.Text:        text,
		m.fields.Updated:     p.Updated,
		m.fields.Namespace:   p.Namespace.String(),
		m.fields.NamespaceID: float64(p.Namespace),
		m.fields.URL:         p.URL,
	}
	if p.TitleDate != nil {
		doc[m.fields.TitleDate] = *p.TitleDate
	}
	if len(p.Categories) > 0 {
		doc[m.fields.Category] = p.Categories
	}
	return doc, true
}

func pageDocID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func encodeRevision(revision uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, revision)
	return buf
}

func decodeRevision(raw []byte) uint32 {
	if len(raw) != 4 {
		return 0
	}
	return binary.BigEndian.Uint32(raw)
}
