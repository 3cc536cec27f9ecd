// Package datascope is the data viewer core. It pages through CSV and
// Parquet files too large to load whole, samples per-page thumbnails,
// memoizes both in per-dataset caches and converts CSV to Parquet.
//
// A Service is built once at the application root and shared by every
// caller; all blocking work runs on its bounded executor.
package datascope

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/paveg/datascope/internal/cache"
	"github.com/paveg/datascope/internal/config"
	dserrors "github.com/paveg/datascope/internal/errors"
	"github.com/paveg/datascope/internal/monitoring"
	"github.com/paveg/datascope/internal/pagination"
	"github.com/paveg/datascope/internal/parallel"
	"github.com/paveg/datascope/internal/thumbnail"
	"github.com/paveg/datascope/internal/validation"
)

// closeTimeout bounds how long Close waits for running tasks.
const closeTimeout = 30 * time.Second

// Service owns the executor, the caches and the viewers built on them.
type Service struct {
	cfg     config.Config
	logger  *zap.Logger
	exec    *parallel.Executor
	planner *pagination.Planner
	metrics *monitoring.MetricsCollector

	csv       *CSVViewer
	parquet   *ParquetViewer
	converter *Converter
}

// New validates cfg, fills defaults and starts the executor. A nil logger
// discards all output.
func New(cfg config.Config, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, warnings, err := config.NewConfigValidator().Validate(cfg.WithDefaults())
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		logger.Warn("configuration warning", zap.String("warning", w))
	}

	planner, err := pagination.NewPlanner(cfg.PageSize)
	if err != nil {
		return nil, err
	}
	exec, err := parallel.NewExecutor(cfg.WorkerPoolSize, logger)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:     cfg,
		logger:  logger,
		exec:    exec,
		planner: planner,
		metrics: monitoring.NewMetricsCollector(cfg.MetricsCollection),
	}
	sampler := thumbnail.NewSampler(cfg.ThumbnailSamples, cfg.NumericSampleRows, cfg.NumericThreshold)
	base := viewer{
		cfg:     cfg,
		exec:    exec,
		planner: planner,
		sampler: sampler,
		metrics: s.metrics,
	}

	s.csv = &CSVViewer{viewer: base.named(logger, "csv"), cache: cache.NewCSVCache()}
	s.parquet = &ParquetViewer{viewer: base.named(logger, "parquet"), cache: cache.NewParquetCache()}
	s.converter = &Converter{viewer: base.named(logger, "convert")}

	logger.Info("datascope service started",
		zap.Int("workers", exec.Cap()),
		zap.Uint64("page_size", cfg.PageSize),
		zap.Bool("metrics", cfg.MetricsCollection),
	)
	return s, nil
}

// Config returns the effective configuration.
func (s *Service) Config() config.Config { return s.cfg }

// Logger returns the service logger.
func (s *Service) Logger() *zap.Logger { return s.logger }

// CSV returns the CSV viewer.
func (s *Service) CSV() *CSVViewer { return s.csv }

// Parquet returns the Parquet viewer.
func (s *Service) Parquet() *ParquetViewer { return s.parquet }

// Converter returns the CSV to Parquet converter.
func (s *Service) Converter() *Converter { return s.converter }

// Metrics returns the operation metrics collector.
func (s *Service) Metrics() *monitoring.MetricsCollector { return s.metrics }

// Pagination plans pages for totalRows with the configured page size.
func (s *Service) Pagination(totalRows uint64) (pagination.Plan, error) {
	return s.planner.Plan(totalRows)
}

// OpenResult is the outcome of opening a file of either format.
type OpenResult struct {
	Format  cache.Format       `json:"format"`
	CSV     *CSVOpenResult     `json:"csv,omitempty"`
	Parquet *ParquetOpenResult `json:"parquet,omitempty"`
}

// TotalRows returns the row count of whichever dataset was opened.
func (r *OpenResult) TotalRows() uint64 {
	switch {
	case r.CSV != nil:
		return r.CSV.TotalRows
	case r.Parquet != nil:
		return r.Parquet.TotalRows
	}
	return 0
}

// FormatOf picks the viewer for path by extension. Anything that is not
// .parquet or .pq is treated as delimited text.
func FormatOf(path string) cache.Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet", ".pq":
		return cache.FormatParquet
	default:
		return cache.FormatCSV
	}
}

// Open opens path with the viewer for its format. The other viewer is
// cleared so only one dataset is held at a time.
func (s *Service) Open(ctx context.Context, path string) (*OpenResult, error) {
	switch FormatOf(path) {
	case cache.FormatParquet:
		res, err := s.parquet.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		s.csv.Clear()
		return &OpenResult{Format: cache.FormatParquet, Parquet: res}, nil
	default:
		res, err := s.csv.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		s.parquet.Clear()
		return &OpenResult{Format: cache.FormatCSV, CSV: res}, nil
	}
}

// ParseDelimiter reads a delimiter given as text. It must be a single
// character; the escapes \t and "tab" name a tab.
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case `\t`, "tab":
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, dserrors.NewValidationError("ParseDelimiter", "delimiter", fmt.Sprintf("must be a single character, got %q", s))
	}
	d, _ := utf8.DecodeRuneInString(s)
	if err := validation.ValidateDelimiter(d, "ParseDelimiter"); err != nil {
		return 0, err
	}
	return d, nil
}

// Viewer is the format-independent surface shared by both viewers.
type Viewer interface {
	Format() cache.Format
	TotalRows() (uint64, bool)
	Thumbnail(ctx context.Context, pageIndex int, desc pagination.Page) (thumbnail.Thumbnail, error)
	Stats() cache.Stats
	Clear()
}

// Viewer returns the viewer for format.
func (s *Service) Viewer(format cache.Format) (Viewer, error) {
	switch format {
	case cache.FormatCSV:
		return s.csv, nil
	case cache.FormatParquet:
		return s.parquet, nil
	default:
		return nil, dserrors.NewValidationError("Viewer", "format", "unknown format "+string(format))
	}
}

// Thumbnails samples the given pages of v concurrently. Results are in the
// order of pageIndexes; the first failure cancels the remaining waits.
func (s *Service) Thumbnails(ctx context.Context, v Viewer, pageIndexes []int) ([]thumbnail.Thumbnail, error) {
	total, ok := v.TotalRows()
	if !ok {
		return nil, dserrors.NewNoDatasetError("Thumbnails", string(v.Format()))
	}

	descs := make([]pagination.Page, len(pageIndexes))
	for i, idx := range pageIndexes {
		desc, err := s.planner.Page(total, idx)
		if err != nil {
			return nil, err
		}
		descs[i] = desc
	}

	out := make([]thumbnail.Thumbnail, len(pageIndexes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.exec.Cap())
	for i := range descs {
		g.Go(func() error {
			th, err := v.Thumbnail(gctx, pageIndexes[i], descs[i])
			if err != nil {
				return err
			}
			out[i] = th
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Clear drops both datasets and every cached page and thumbnail.
func (s *Service) Clear() {
	s.csv.Clear()
	s.parquet.Clear()
}

// Close clears the caches and stops the executor, waiting for running
// tasks up to a fixed timeout.
func (s *Service) Close() error {
	s.Clear()
	err := s.exec.Close(closeTimeout)
	_ = s.logger.Sync()
	return err
}

// viewer carries the dependencies shared by the format viewers.
type viewer struct {
	cfg     config.Config
	logger  *zap.Logger
	exec    *parallel.Executor
	planner *pagination.Planner
	sampler *thumbnail.Sampler
	metrics *monitoring.MetricsCollector
}

func (v viewer) named(logger *zap.Logger, name string) viewer {
	v.logger = logger.Named(name)
	return v
}

// Pagination plans pages for totalRows with the configured page size.
func (v *viewer) Pagination(totalRows uint64) (pagination.Plan, error) {
	return v.planner.Plan(totalRows)
}
