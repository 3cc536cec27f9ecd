package datascope

import (
	"context"

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

// ParquetOpenResult describes a freshly opened Parquet file.
type ParquetOpenResult struct {
	Path      string      `json:"path"`
	TotalRows uint64      `json:"total_rows"`
	Columns   []io.Column `json:"columns"`
}

// ParquetViewer pages through one Parquet file. Only the footer is read on
// open; each page load reopens the file and decodes the overlapping row
// groups of the projected columns.
type ParquetViewer struct {
	viewer
	cache *cache.Manager
}

// Format returns cache.FormatParquet.
func (v *ParquetViewer) Format() cache.Format { return cache.FormatParquet }

// Handle returns the open dataset, or nil.
func (v *ParquetViewer) Handle() *cache.Dataset { return v.cache.Handle() }

// TotalRows returns the row count recorded in the footer.
func (v *ParquetViewer) TotalRows() (uint64, bool) {
	ds := v.cache.Handle()
	if ds == nil {
		return 0, false
	}
	return ds.TotalRows, true
}

// Stats returns cache counters.
func (v *ParquetViewer) Stats() cache.Stats { return v.cache.Stats() }

func (v *ParquetViewer) options() io.ParquetOptions {
	return io.ParquetOptions{
		ProgressInterval: v.cfg.ProgressInterval,
		Workers:          v.exec.Cap(),
	}
}

// Open reads the footer of path and installs it as the current dataset.
func (v *ParquetViewer) Open(ctx context.Context, path string) (*ParquetOpenResult, error) {
	const op = "OpenParquet"
	if err := validation.NewPathValidator(path, "path", op).Validate(); err != nil {
		return nil, err
	}

	var result *ParquetOpenResult
	err := v.metrics.RecordOperation(op, func(rec *monitoring.Recording) error {
		rec.Dataset = path
		res, err := parallel.Run(ctx, v.exec, op, func(context.Context) (*ParquetOpenResult, error) {
			pf, err := io.OpenParquet(path, v.options())
			if err != nil {
				return nil, err
			}
			defer func() { _ = pf.Close() }()

			res := &ParquetOpenResult{Path: path, TotalRows: pf.NumRows(), Columns: pf.Columns()}
			v.cache.Open(&cache.Dataset{
				Path:      path,
				Format:    cache.FormatParquet,
				Headers:   pf.ColumnNames(),
				Columns:   res.Columns,
				TotalRows: res.TotalRows,
			}, nil)
			v.logger.Debug("read parquet footer",
				zap.String("path", path),
				zap.Int("row_groups", pf.NumRowGroups()),
			)
			return res, nil
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

	v.logger.Info("opened parquet",
		zap.String("path", path),
		zap.Uint64("total_rows", result.TotalRows),
		zap.Int("columns", len(result.Columns)),
	)
	return result, nil
}

// LoadPage returns the rows of desc restricted to columns (empty means all
// columns). Pages are cached per range and projection; the projection is
// order independent.
func (v *ParquetViewer) LoadPage(ctx context.Context, pageIndex int, desc pagination.Page, columns []string, fn progress.Func) (*io.Page, error) {
	const op = "LoadParquetPage"
	if err := validation.ValidatePage(pageIndex, desc, op); err != nil {
		return nil, err
	}

	var page *io.Page
	err := v.metrics.RecordOperation(op, func(rec *monitoring.Recording) error {
		snap, ok := v.cache.Snapshot()
		if !ok {
			return dserrors.NewNoDatasetError(op, "parquet")
		}
		rec.Dataset = snap.Dataset.Path
		if err := validation.ValidateColumns(validation.Columns(snap.Dataset.Headers), op, columns...); err != nil {
			return withPath(err, snap.Dataset.Path)
		}

		key := cache.ParquetPageKey(pageIndex, desc.StartRow, desc.RowCount, columns)
		if cached, ok := v.cache.GetPage(key); ok {
			progress.Cached(fn, uint64(len(cached.Rows)))
			rec.Cached = true
			rec.Rows = int64(len(cached.Rows))
			page = cached
			return nil
		}

		p, err := v.read(ctx, op, snap, desc, columns, fn)
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
	return page, err
}

func (v *ParquetViewer) read(ctx context.Context, op string, snap cache.Snapshot, desc pagination.Page, columns []string, fn progress.Func) (*io.Page, error) {
	path := snap.Dataset.Path
	return parallel.Run(ctx, v.exec, op, func(ctx context.Context) (*io.Page, error) {
		pf, err := io.OpenParquet(path, v.options())
		if err != nil {
			return nil, err
		}
		defer func() { _ = pf.Close() }()
		return pf.ReadPage(ctx, desc, columns, fn)
	})
}

// Thumbnail samples the first numeric column of desc over all columns. A
// cached full-width page is reused; otherwise the page is read without
// being cached. Thumbnails are cached even when no column is numeric.
func (v *ParquetViewer) Thumbnail(ctx context.Context, pageIndex int, desc pagination.Page) (thumbnail.Thumbnail, error) {
	const op = "ParquetThumbnail"
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
			return dserrors.NewNoDatasetError(op, "parquet")
		}
		rec.Dataset = snap.Dataset.Path

		page, ok := v.cache.GetPage(cache.ParquetPageKey(pageIndex, desc.StartRow, desc.RowCount, nil))
		if !ok {
			var err error
			if page, err = v.read(ctx, op, snap, desc, nil, nil); err != nil {
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

// Clear drops the dataset and every cached entry.
func (v *ParquetViewer) Clear() {
	v.cache.Clear()
	v.logger.Debug("cache cleared")
}
