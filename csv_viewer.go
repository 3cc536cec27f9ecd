package datascope

import (
	"context"
	"errors"
	"os"

	"go.uber.org/zap"

	"github.com/paveg/datascope/internal/cache"
	dserrors "github.com/paveg/datascope/internal/errors"
	"github.com/paveg/datascope/internal/io"
	"github.com/paveg/datascope/internal/monitoring"
	"github.com/paveg/datascope/internal/pagination"
	"github.com/paveg/datascope/internal/parallel"
	"github.com/paveg/datascope/internal/progress"
	"github.com/paveg/datascope/internal/thumbnail"
	"github.com/paveg/datascope/internal/validation"
)

// CSVOpenResult describes a freshly opened CSV file.
type CSVOpenResult struct {
	Path      string   `json:"path"`
	TotalRows uint64   `json:"total_rows"`
	Delimiter string   `json:"delimiter"`
	Headers   []string `json:"headers"`
}

// CSVViewer pages through one delimited text file held in memory.
type CSVViewer struct {
	viewer
	cache *cache.Manager
}

// Format returns cache.FormatCSV.
func (v *CSVViewer) Format() cache.Format { return cache.FormatCSV }

// Handle returns the open dataset, or nil.
func (v *CSVViewer) Handle() *cache.Dataset { return v.cache.Handle() }

// TotalRows returns the data row count of the open file.
func (v *CSVViewer) TotalRows() (uint64, bool) {
	ds := v.cache.Handle()
	if ds == nil {
		return 0, false
	}
	return ds.TotalRows, true
}

// Stats returns cache counters.
func (v *CSVViewer) Stats() cache.Stats { return v.cache.Stats() }

// Open reads path into memory, sniffs its delimiter and counts its rows.
// The previous dataset and its cached pages are replaced only on success.
func (v *CSVViewer) Open(ctx context.Context, path string) (*CSVOpenResult, error) {
	const op = "OpenCSV"
	if err := validation.NewPathValidator(path, "path", op).Validate(); err != nil {
		return nil, err
	}

	var result *CSVOpenResult
	err := v.metrics.RecordOperation(op, func(rec *monitoring.Recording) error {
		rec.Dataset = path
		res, err := parallel.Run(ctx, v.exec, op, func(context.Context) (*CSVOpenResult, error) {
			content, err := os.ReadFile(path)
			if err != nil {
				return nil, dserrors.NewIOError(op, path, err)
			}

			delimiter := io.DetectDelimiterLimit(content, v.cfg.SniffBytes)
			headers, err := io.NewCSVReader(content, io.CSVOptions{Delimiter: delimiter}).Headers()
			if err != nil {
				return nil, withPath(err, path)
			}
			total := io.CountRows(content)

			v.cache.Open(&cache.Dataset{
				Path:      path,
				Format:    cache.FormatCSV,
				Delimiter: delimiter,
				Headers:   headers,
				TotalRows: total,
			}, content)

			return &CSVOpenResult{
				Path:      path,
				TotalRows: total,
				Delimiter: string(delimiter),
				Headers:   headers,
			}, nil
		})
		if err != nil {
			return err
		}
		rec.Rows = int64(min(res.TotalRows, 1<<63-1))
		result = res
		return nil
	})
	if err != nil {
		v.logger.Warn("open failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}

	v.logger.Info("opened csv",
		zap.String("path", path),
		zap.Uint64("total_rows", result.TotalRows),
		zap.String("delimiter", result.Delimiter),
		zap.Int("columns", len(result.Headers)),
	)
	return result, nil
}

// LoadPage returns the rows of desc. A cached page is returned with a
// single "loaded from cache" progress event; otherwise the content is
// re-parsed from the start and the result cached.
func (v *CSVViewer) LoadPage(ctx context.Context, pageIndex int, desc pagination.Page, fn progress.Func) (*io.Page, error) {
	const op = "LoadCSVPage"
	if err := validation.ValidatePage(pageIndex, desc, op); err != nil {
		return nil, err
	}

	var page *io.Page
	err := v.metrics.RecordOperation(op, func(rec *monitoring.Recording) error {
		snap, ok := v.cache.Snapshot()
		if !ok {
			return dserrors.NewNoDatasetError(op, "CSV")
		}
		rec.Dataset = snap.Dataset.Path

		key := cache.CSVPageKey(pageIndex)
		if cached, ok := v.cache.GetPage(key); ok {
			progress.Cached(fn, uint64(len(cached.Rows)))
			rec.Cached = true
			rec.Rows = int64(len(cached.Rows))
			page = cached
			return nil
		}

		p, err := v.parse(ctx, op, snap, desc, fn)
		if err != nil {
			return err
		}
		if !v.cache.PutPage(snap.Generation, key, p) {
			v.logger.Debug("dropped stale page", zap.Int("page", pageIndex))
		}
		rec.Rows = int64(len(p.Rows))
		page = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	if page.SkippedRows > 0 {
		v.logger.Info("skipped malformed rows",
			zap.Int("page", pageIndex),
			zap.Uint64("skipped", page.SkippedRows),
		)
	}
	return page, nil
}

func (v *CSVViewer) parse(ctx context.Context, op string, snap cache.Snapshot, desc pagination.Page, fn progress.Func) (*io.Page, error) {
	reader := io.NewCSVReader(snap.Content, io.CSVOptions{
		Delimiter:        snap.Dataset.Delimiter,
		ProgressInterval: v.cfg.ProgressInterval,
	})
	page, err := parallel.Run(ctx, v.exec, op, func(ctx context.Context) (*io.Page, error) {
		return reader.ReadPage(ctx, desc, fn)
	})
	if err != nil {
		return nil, withPath(err, snap.Dataset.Path)
	}
	return page, nil
}

// Thumbnail samples the first numeric column of desc. A cached page is
// reused; otherwise the page is parsed without being cached. Every
// thumbnail, empty or not, is cached.
func (v *CSVViewer) Thumbnail(ctx context.Context, pageIndex int, desc pagination.Page) (thumbnail.Thumbnail, error) {
	const op = "CSVThumbnail"
	if err := validation.ValidatePage(pageIndex, desc, op); err != nil {
		return thumbnail.Thumbnail{}, err
	}

	var thumb thumbnail.Thumbnail
	err := v.metrics.RecordOperation(op, func(rec *monitoring.Recording) error {
		key := cache.ThumbnailKey(pageIndex)
		if cached, ok := v.cache.GetThumbnail(key); ok {
			rec.Cached = true
			thumb = cached
			return nil
		}

		snap, ok := v.cache.Snapshot()
		if !ok {
			return dserrors.NewNoDatasetError(op, "CSV")
		}
		rec.Dataset = snap.Dataset.Path

		page, ok := v.cache.GetPage(cache.CSVPageKey(pageIndex))
		if !ok {
			var err error
			if page, err = v.parse(ctx, op, snap, desc, nil); err != nil {
				return err
			}
		}

		thumb = v.sampler.Sample(page.Headers, page.Rows, desc)
		v.cache.PutThumbnail(snap.Generation, key, thumb)
		rec.Rows = int64(len(page.Rows))
		return nil
	})
	return thumb, err
}

// ChangeDelimiter re-reads the header and row count of the cached content
// under delimiter and swaps in the new handle. Every cached page and
// thumbnail is invalidated. It returns the new total row count.
func (v *CSVViewer) ChangeDelimiter(ctx context.Context, delimiter rune) (uint64, error) {
	const op = "ChangeDelimiter"
	if err := validation.ValidateDelimiter(delimiter, op); err != nil {
		return 0, err
	}

	snap, ok := v.cache.Snapshot()
	if !ok {
		return 0, dserrors.NewNoDatasetError(op, "CSV")
	}

	var total uint64
	err := v.metrics.RecordOperation(op, func(rec *monitoring.Recording) error {
		rec.Dataset = snap.Dataset.Path
		n, err := parallel.Run(ctx, v.exec, op, func(context.Context) (uint64, error) {
			headers, err := io.NewCSVReader(snap.Content, io.CSVOptions{Delimiter: delimiter}).Headers()
			if err != nil {
				return 0, withPath(err, snap.Dataset.Path)
			}
			rows := io.CountRows(snap.Content)
			if _, err := v.cache.ChangeDelimiter(snap.Generation, delimiter, headers, rows); err != nil {
				return 0, err
			}
			return rows, nil
		})
		total = n
		rec.Rows = int64(min(n, 1<<63-1))
		return err
	})
	if err != nil {
		return 0, err
	}

	v.logger.Info("changed delimiter",
		zap.String("path", snap.Dataset.Path),
		zap.String("delimiter", string(delimiter)),
		zap.Uint64("total_rows", total),
	)
	return total, nil
}

// Clear drops the dataset, its content and every cached entry.
func (v *CSVViewer) Clear() {
	v.cache.Clear()
	v.logger.Debug("cache cleared")
}

// withPath fills in the dataset path of a viewer error that lacks one.
func withPath(err error, path string) error {
	var ve *dserrors.ViewerError
	if errors.As(err, &ve) && ve.Path == "" {
		cp := *ve
		cp.Path = path
		return &cp
	}
	return err
}
