package io

import (
	"context"
	"errors"
	"fmt"
	stdio "io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/hashicorp/go-multierror"
	dserrors "github.com/paveg/datascope/internal/errors"
)

// ConvertOptions contains configuration options for CSV to Parquet conversion
type ConvertOptions struct {
	// Delimiter is the CSV field delimiter (0 = sniff from the file)
	Delimiter rune
	// HasHeader indicates whether the first record names the columns
	HasHeader bool
	// InferSchemaRows is how many records are sampled for type inference
	InferSchemaRows int
	// Compression codec: zstd, snappy, gzip, lz4, uncompressed
	Compression string
	// BatchRows is the number of records per Arrow batch
	BatchRows int
	// Allocator backs Arrow buffers (default: Go allocator)
	Allocator memory.Allocator
}

// DefaultConvertOptions returns default conversion options
func DefaultConvertOptions() ConvertOptions {
	return ConvertOptions{
		HasHeader:       true,
		InferSchemaRows: 1000,
		Compression:     "zstd",
		BatchRows:       DefaultBatchSize,
	}
}

// ConvertResult summarizes a finished conversion.
type ConvertResult struct {
	Source      string   `json:"source"`
	Destination string   `json:"destination"`
	Rows        int64    `json:"rows"`
	Columns     []Column `json:"columns"`
	Compression string   `json:"compression"`
}

// compressionCodec maps an option name to a parquet codec.
func compressionCodec(name string) (compress.Compression, error) {
	switch strings.ToLower(name) {
	case "", "zstd":
		return compress.Codecs.Zstd, nil
	case "snappy":
		return compress.Codecs.Snappy, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "lz4":
		return compress.Codecs.Lz4Raw, nil
	case "uncompressed", "none":
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, fmt.Errorf("unsupported compression %q", name)
	}
}

// ConvertCSVToParquet streams src into a Parquet file at dst. Output is
// written to a temporary file next to dst and renamed into place only after
// the writer closes cleanly, so a failed conversion never leaves a partial dst.
func ConvertCSVToParquet(ctx context.Context, src, dst string, opts ConvertOptions) (result *ConvertResult, err error) {
	const op = "ConvertCSVToParquet"

	if opts.InferSchemaRows <= 0 {
		opts.InferSchemaRows = 1000
	}
	if opts.BatchRows <= 0 {
		opts.BatchRows = DefaultBatchSize
	}
	if opts.Allocator == nil {
		opts.Allocator = memory.NewGoAllocator()
	}
	codec, cerr := compressionCodec(opts.Compression)
	if cerr != nil {
		return nil, dserrors.NewValidationError(op, "compression", cerr.Error())
	}
	if opts.Delimiter == 0 {
		d, serr := SniffFile(src)
		if serr != nil {
			return nil, serr
		}
		opts.Delimiter = d
	}
	if !ValidDelimiter(opts.Delimiter) {
		return nil, dserrors.NewValidationError(op, "", "invalid delimiter")
	}

	in, oerr := os.Open(src)
	if oerr != nil {
		return nil, dserrors.NewIOError(op, src, oerr)
	}
	defer func() { _ = in.Close() }()

	schema, ierr := InferCSVSchema(in, opts.Delimiter, opts.HasHeader, opts.InferSchemaRows)
	if ierr != nil {
		return nil, dserrors.NewFormatError(op, src, "inferring CSV schema", ierr)
	}
	if _, serr := in.Seek(0, stdio.SeekStart); serr != nil {
		return nil, dserrors.NewIOError(op, src, serr)
	}

	tmp, terr := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".tmp-*")
	if terr != nil {
		return nil, dserrors.NewIOError(op, dst, terr)
	}
	tmpName := tmp.Name()

	var writer *pqarrow.FileWriter
	defer func() {
		if err == nil {
			return
		}
		var merr *multierror.Error
		merr = multierror.Append(merr, err)
		if writer != nil {
			if cerr := writer.Close(); cerr != nil && !errors.Is(cerr, os.ErrClosed) {
				merr = multierror.Append(merr, fmt.Errorf("closing parquet writer: %w", cerr))
			}
		}
		if cerr := tmp.Close(); cerr != nil && !errors.Is(cerr, os.ErrClosed) {
			merr = multierror.Append(merr, fmt.Errorf("closing temp file: %w", cerr))
		}
		if rerr := os.Remove(tmpName); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			merr = multierror.Append(merr, fmt.Errorf("removing temp file: %w", rerr))
		}
		if len(merr.Errors) == 1 {
			return
		}
		err = merr.ErrorOrNil()
	}()

	props := parquet.NewWriterProperties(
		parquet.WithCompression(codec),
		parquet.WithAllocator(opts.Allocator),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(opts.Allocator), pqarrow.WithStoreSchema())

	writer, err = pqarrow.NewFileWriter(schema, tmp, props, arrowProps)
	if err != nil {
		writer = nil
		return nil, dserrors.NewFormatError(op, dst, "creating parquet writer", err)
	}

	reader := csv.NewReader(in, schema,
		csv.WithComma(opts.Delimiter),
		csv.WithHeader(opts.HasHeader),
		csv.WithChunk(opts.BatchRows),
		csv.WithNullReader(true, ""),
		csv.WithAllocator(opts.Allocator),
	)
	defer reader.Release()

	var rows int64
	for reader.Next() {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		if rerr := reader.Err(); rerr != nil {
			return nil, dserrors.NewFormatError(op, src, "parsing CSV records", rerr)
		}
		rec := reader.Record()
		if werr := writer.WriteBuffered(rec); werr != nil {
			return nil, dserrors.NewIOError(op, dst, werr)
		}
		rows += rec.NumRows()
	}
	if rerr := reader.Err(); rerr != nil {
		return nil, dserrors.NewFormatError(op, src, "parsing CSV records", rerr)
	}

	// FileWriter.Close also closes the underlying temp file
	if cerr := writer.Close(); cerr != nil {
		return nil, dserrors.NewIOError(op, dst, cerr)
	}
	if cerr := tmp.Close(); cerr != nil && !errors.Is(cerr, os.ErrClosed) {
		return nil, dserrors.NewIOError(op, dst, cerr)
	}
	if rerr := os.Rename(tmpName, dst); rerr != nil {
		return nil, dserrors.NewIOError(op, dst, rerr)
	}

	codecName := strings.ToLower(opts.Compression)
	if codecName == "" {
		codecName = "zstd"
	}
	cols := make([]Column, 0, schema.NumFields())
	for _, f := range schema.Fields() {
		cols = append(cols, Column{Name: f.Name, DType: f.Type.String(), Numeric: isNumericType(f.Type)})
	}
	return &ConvertResult{
		Source:      src,
		Destination: dst,
		Rows:        rows,
		Columns:     cols,
		Compression: codecName,
	}, nil
}
