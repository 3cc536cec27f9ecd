package io

import (
	"context"
	"errors"
	"fmt"
	stdio "io"
	"math"
	"os"
	"slices"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	dserrors "github.com/paveg/datascope/internal/errors"
	"github.com/paveg/datascope/internal/pagination"
	"github.com/paveg/datascope/internal/parallel"
	"github.com/paveg/datascope/internal/progress"
	"github.com/paveg/datascope/internal/value"
)

// ParquetFile is an open Parquet file. Opening reads only the footer.
type ParquetFile struct {
	path     string
	options  ParquetOptions
	pf       *file.Reader
	fr       *pqarrow.FileReader
	schema   *arrow.Schema
	rowGroup []int64
	workers  *parallel.WorkerPool
}

// OpenParquet opens path and parses its footer metadata.
func OpenParquet(path string, options ParquetOptions) (*ParquetFile, error) {
	const op = "OpenParquet"
	options = options.withDefaults()

	if _, err := os.Stat(path); err != nil {
		return nil, dserrors.NewIOError(op, path, err)
	}

	pf, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, dserrors.NewFormatError(op, path, "unreadable parquet footer", err)
	}

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: options.BatchSize}, options.Allocator)
	if err != nil {
		_ = pf.Close()
		return nil, dserrors.NewFormatError(op, path, "creating arrow file reader", err)
	}

	schema, err := fr.Schema()
	if err != nil {
		_ = pf.Close()
		return nil, dserrors.NewFormatError(op, path, "converting parquet schema", err)
	}

	meta := pf.MetaData()
	rowGroups := make([]int64, pf.NumRowGroups())
	for i := range rowGroups {
		rowGroups[i] = meta.RowGroup(i).NumRows()
	}

	return &ParquetFile{
		path:     path,
		options:  options,
		pf:       pf,
		fr:       fr,
		schema:   schema,
		rowGroup: rowGroups,
		workers:  parallel.NewWorkerPool(options.Workers),
	}, nil
}

// Close releases the underlying file handle.
func (p *ParquetFile) Close() error {
	return p.pf.Close()
}

// NumRows returns the sum of all row-group row counts.
func (p *ParquetFile) NumRows() uint64 {
	var total uint64
	for _, n := range p.rowGroup {
		total += uint64(n)
	}
	return total
}

// NumRowGroups returns the number of row groups in the file.
func (p *ParquetFile) NumRowGroups() int { return len(p.rowGroup) }

// Columns returns the top-level columns with their Arrow type names.
func (p *ParquetFile) Columns() []Column {
	cols := make([]Column, 0, p.schema.NumFields())
	for _, f := range p.schema.Fields() {
		cols = append(cols, Column{
			Name:    f.Name,
			DType:   f.Type.String(),
			Numeric: isNumericType(f.Type),
		})
	}
	return cols
}

// ColumnNames returns the top-level column names in schema order.
func (p *ParquetFile) ColumnNames() []string {
	names := make([]string, 0, p.schema.NumFields())
	for _, f := range p.schema.Fields() {
		names = append(names, f.Name)
	}
	return names
}

// selectColumns maps top-level names to parquet leaf column indices. A nil
// result means all columns.
func (p *ParquetFile) selectColumns(columns []string) ([]int, error) {
	if len(columns) == 0 {
		return nil, nil
	}

	sch := p.pf.MetaData().Schema
	found := make(map[string]struct{}, len(columns))
	var indices []int
	for i := 0; i < sch.NumColumns(); i++ {
		top := sch.Column(i).ColumnPath()[0]
		if slices.Contains(columns, top) {
			indices = append(indices, i)
			found[top] = struct{}{}
		}
	}

	for _, c := range columns {
		if _, ok := found[c]; !ok {
			return nil, dserrors.NewColumnNotFoundError("LoadParquetPage", c)
		}
	}
	return indices, nil
}

// selectRowGroups returns the row groups overlapping [start, end) and the
// number of leading rows of the first selected group that precede start.
func (p *ParquetFile) selectRowGroups(start, end uint64) ([]int, uint64) {
	var (
		groups []int
		skip   uint64
		cum    uint64
	)
	for i, n := range p.rowGroup {
		lo, hi := cum, cum+uint64(n)
		cum = hi
		if hi <= start || lo >= end {
			continue
		}
		if len(groups) == 0 {
			skip = start - lo
		}
		groups = append(groups, i)
	}
	return groups, skip
}

// ReadPage loads rows [desc.StartRow, desc.StartRow+desc.RowCount) limited
// to columns (nil or empty means all). Only the overlapping row groups and
// the projected leaf columns are decoded.
func (p *ParquetFile) ReadPage(ctx context.Context, desc pagination.Page, columns []string, fn progress.Func) (*Page, error) {
	const op = "LoadParquetPage"

	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if desc.StartRow > math.MaxInt64 || desc.RowCount > math.MaxInt64 {
		return nil, dserrors.NewArithmeticError(op, "row range exceeds the supported index range")
	}

	colIdx, err := p.selectColumns(columns)
	if err != nil {
		return nil, err
	}

	headers := p.ColumnNames()
	if colIdx != nil {
		headers = make([]string, 0, len(columns))
		for _, name := range p.ColumnNames() {
			if slices.Contains(columns, name) {
				headers = append(headers, name)
			}
		}
	}

	page := &Page{Headers: headers, Rows: []*value.Record{}}
	reporter := progress.NewReporter(fn, desc.RowCount, p.options.ProgressInterval)

	groups, skip := p.selectRowGroups(desc.StartRow, desc.StartRow+desc.RowCount)
	if len(groups) == 0 || desc.RowCount == 0 {
		reporter.Done(0)
		return page, nil
	}

	rr, err := p.fr.GetRecordReader(ctx, colIdx, groups)
	if err != nil {
		return nil, dserrors.NewFormatError(op, p.path, "creating record reader", err)
	}
	defer rr.Release()

	remaining := desc.RowCount
	page.Rows = make([]*value.Record, 0, min(desc.RowCount, 1<<16))
	for remaining > 0 && rr.Next() {
		rec := rr.Record()
		n := uint64(rec.NumRows())
		if skip >= n {
			skip -= n
			continue
		}
		lo := int(skip)
		hi := int(min(n, skip+remaining))
		skip = 0

		rows, err := p.convertBatch(ctx, rec, lo, hi)
		if err != nil {
			return nil, err
		}
		page.Rows = append(page.Rows, rows...)
		remaining -= uint64(hi - lo)
		reporter.Row(uint64(len(page.Rows)))
	}
	// The record reader reports io.EOF once the selected row groups run out.
	if err := rr.Err(); err != nil && !errors.Is(err, stdio.EOF) {
		return nil, dserrors.NewFormatError(op, p.path, "reading row groups", err)
	}

	reporter.Done(uint64(len(page.Rows)))
	return page, nil
}

// convertBatch converts rows [lo, hi) of rec, one column per worker, then
// assembles row records in schema order.
func (p *ParquetFile) convertBatch(ctx context.Context, rec arrow.Record, lo, hi int) ([]*value.Record, error) {
	cols := rec.Columns()
	converted, err := parallel.ProcessIndexed(ctx, p.workers, cols, func(_ int, col arrow.Array) ([]value.Value, error) {
		return ColumnValues(col, lo, hi), nil
	})
	if err != nil {
		return nil, dserrors.NewTaskError("LoadParquetPage", fmt.Errorf("converting columns: %w", err))
	}

	names := make([]string, len(cols))
	for i := range cols {
		names[i] = rec.ColumnName(i)
	}

	rows := make([]*value.Record, hi-lo)
	for r := range rows {
		row := value.NewRecord(len(cols))
		for c := range cols {
			row.Append(names[c], converted[c][r])
		}
		rows[r] = row
	}
	return rows, nil
}

// ReadParquetColumns reads only the footer of path and returns its columns.
func ReadParquetColumns(path string) ([]Column, error) {
	pf, err := OpenParquet(path, ParquetOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pf.Close() }()
	return pf.Columns(), nil
}
