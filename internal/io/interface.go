// Package io provides the format-specific readers behind the data viewer.
//
// This package contains everything that touches file bytes: delimiter
// sniffing, row counting, page loading for CSV and Parquet, conversion of
// Arrow cells into viewer values and the streaming CSV to Parquet converter.
//
// Key components:
//   - DetectDelimiter/SniffFile for CSV dialect detection
//   - CountRows/CountRowsReader for quote-aware CSV row counting
//   - CSVReader for skip-on-error page parsing of in-memory CSV content
//   - ParquetFile for footer-only metadata and row-group pushdown paging
//   - ConvertCSVToParquet for streaming format conversion
//
// Memory management: Parquet reads go through Apache Arrow allocators and
// release every record batch before returning.
package io

import (
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/datascope/internal/value"
)

const (
	// DefaultSniffBytes is how much of a file delimiter detection inspects
	DefaultSniffBytes = 2000
	// DefaultProgressInterval is the number of rows between progress events
	DefaultProgressInterval = 2000
	// DefaultBatchSize is the Arrow record batch size for Parquet reads
	DefaultBatchSize = 64 * 1024
)

// Page is one materialized page of rows.
type Page struct {
	Headers     []string        `json:"headers"`
	Rows        []*value.Record `json:"rows"`
	SkippedRows uint64          `json:"skipped_rows"`
}

// Column describes one top-level Parquet column.
type Column struct {
	Name    string `json:"name"`
	DType   string `json:"dtype"`
	Numeric bool   `json:"numeric"`
}

// CSVOptions contains configuration options for CSV page loading
type CSVOptions struct {
	// Delimiter is the field delimiter (default: comma)
	Delimiter rune
	// ProgressInterval is the number of rows between progress events
	ProgressInterval uint64
}

// DefaultCSVOptions returns default CSV options
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		Delimiter:        ',',
		ProgressInterval: DefaultProgressInterval,
	}
}

// ParquetOptions contains configuration options for Parquet operations
type ParquetOptions struct {
	// BatchSize for reading operations
	BatchSize int64
	// ProgressInterval is the number of rows between progress events
	ProgressInterval uint64
	// Workers bounds the per-batch column conversion fan-out (0 = NumCPU)
	Workers int
	// Allocator backs Arrow buffers (default: Go allocator)
	Allocator memory.Allocator
}

// DefaultParquetOptions returns default Parquet options
func DefaultParquetOptions() ParquetOptions {
	return ParquetOptions{
		BatchSize:        DefaultBatchSize,
		ProgressInterval: DefaultProgressInterval,
		Allocator:        memory.NewGoAllocator(),
	}
}

func (o ParquetOptions) withDefaults() ParquetOptions {
	d := DefaultParquetOptions()
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.ProgressInterval == 0 {
		o.ProgressInterval = d.ProgressInterval
	}
	if o.Allocator == nil {
		o.Allocator = d.Allocator
	}
	return o
}
