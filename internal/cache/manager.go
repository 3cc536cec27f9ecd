package cache

import (
	"slices"
	"sync"

	dserrors "github.com/paveg/datascope/internal/errors"
	"github.com/paveg/datascope/internal/io"
	"github.com/paveg/datascope/internal/thumbnail"
)

// Format identifies the kind of dataset a manager serves.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// Dataset is the immutable handle of the open file. It is replaced
// wholesale, never mutated.
type Dataset struct {
	Path      string
	Format    Format
	Delimiter rune
	Headers   []string
	Columns   []io.Column
	TotalRows uint64
}

// Snapshot is a consistent view of the manager at one generation.
type Snapshot struct {
	Dataset    *Dataset
	Content    []byte
	Generation uint64
}

// Stats reports cache occupancy and lookup counters.
type Stats struct {
	Generation      uint64 `json:"generation"`
	Pages           int    `json:"pages"`
	Thumbnails      int    `json:"thumbnails"`
	PageHits        uint64 `json:"page_hits"`
	PageMisses      uint64 `json:"page_misses"`
	ThumbnailHits   uint64 `json:"thumbnail_hits"`
	ThumbnailMisses uint64 `json:"thumbnail_misses"`
}

// Manager owns one dataset handle and its page and thumbnail namespaces.
// The handle and generation are guarded by mu; entries live in sharded
// stores. Puts hold mu shared so they cannot interleave with a swap.
type Manager struct {
	format Format

	mu         sync.RWMutex
	dataset    *Dataset
	content    []byte
	generation uint64

	pages  *Store[*io.Page]
	thumbs *Store[thumbnail.Thumbnail]
}

// NewManager creates an empty manager for format.
func NewManager(format Format) *Manager {
	return &Manager{
		format: format,
		pages:  NewStore[*io.Page](),
		thumbs: NewStore[thumbnail.Thumbnail](),
	}
}

// NewCSVCache creates a manager for CSV datasets.
func NewCSVCache() *Manager { return NewManager(FormatCSV) }

// NewParquetCache creates a manager for Parquet datasets.
func NewParquetCache() *Manager { return NewManager(FormatParquet) }

// Format returns the dataset format served.
func (m *Manager) Format() Format { return m.format }

// Open installs ds (and, for CSV, its raw content) and clears both
// namespaces in one critical section. It returns the new generation.
func (m *Manager) Open(ds *Dataset, content []byte) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.swapLocked(ds, content)
}

func (m *Manager) swapLocked(ds *Dataset, content []byte) uint64 {
	m.generation++
	m.dataset = ds
	m.content = content
	m.pages.Clear()
	m.thumbs.Clear()
	return m.generation
}

// Snapshot returns the current handle. ok is false when nothing is open.
func (m *Manager) Snapshot() (snap Snapshot, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			snap, ok = Snapshot{}, false
		}
	}()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.dataset == nil {
		return Snapshot{Generation: m.generation}, false
	}
	return Snapshot{Dataset: m.dataset, Content: m.content, Generation: m.generation}, true
}

// Handle returns the open dataset, or nil.
func (m *Manager) Handle() *Dataset {
	snap, _ := m.Snapshot()
	return snap.Dataset
}

// Content returns the raw CSV content of the open dataset, or nil.
func (m *Manager) Content() []byte {
	snap, _ := m.Snapshot()
	return snap.Content
}

// GetPage looks up a cached page.
func (m *Manager) GetPage(key string) (*io.Page, bool) {
	return m.pages.Get(key)
}

// PutPage stores page if generation is still current. It reports whether
// the page was stored.
func (m *Manager) PutPage(generation uint64, key string, page *io.Page) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if generation != m.generation || m.dataset == nil {
		return false
	}
	m.pages.Put(key, page)
	return true
}

// GetThumbnail looks up a cached thumbnail.
func (m *Manager) GetThumbnail(key string) (thumbnail.Thumbnail, bool) {
	return m.thumbs.Get(key)
}

// PutThumbnail stores thumb if generation is still current.
func (m *Manager) PutThumbnail(generation uint64, key string, thumb thumbnail.Thumbnail) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if generation != m.generation || m.dataset == nil {
		return false
	}
	m.thumbs.Put(key, thumb)
	return true
}

// ChangeDelimiter replaces the CSV handle with one using delimiter and the
// recounted headers and totalRows, keeping the content. generation must be
// the one the recount was derived from.
func (m *Manager) ChangeDelimiter(generation uint64, delimiter rune, headers []string, totalRows uint64) (uint64, error) {
	const op = "ChangeDelimiter"
	if m.format != FormatCSV {
		return 0, dserrors.NewValidationError(op, "", "delimiter applies to CSV datasets only")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dataset == nil {
		return 0, dserrors.NewNoDatasetError(op, string(m.format))
	}
	if generation != m.generation {
		return 0, &dserrors.ViewerError{
			Op:      op,
			Kind:    dserrors.KindState,
			Path:    m.dataset.Path,
			Message: "dataset changed while the delimiter was applied",
		}
	}

	next := *m.dataset
	next.Delimiter = delimiter
	next.Headers = slices.Clone(headers)
	next.TotalRows = totalRows
	return m.swapLocked(&next, m.content), nil
}

// Clear drops the dataset and every cached entry.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.swapLocked(nil, nil)
}

// Stats returns occupancy and lookup counters.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	gen := m.generation
	m.mu.RUnlock()
	return Stats{
		Generation:      gen,
		Pages:           m.pages.Len(),
		Thumbnails:      m.thumbs.Len(),
		PageHits:        m.pages.Hits(),
		PageMisses:      m.pages.Misses(),
		ThumbnailHits:   m.thumbs.Hits(),
		ThumbnailMisses: m.thumbs.Misses(),
	}
}
