package datascope

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/paveg/datascope/internal/io"
	"github.com/paveg/datascope/internal/monitoring"
	"github.com/paveg/datascope/internal/parallel"
	"github.com/paveg/datascope/internal/validation"
)

// ConvertOptions tunes a CSV to Parquet conversion. Zero values take the
// service configuration, and a nil HasHeader means the file has a header.
type ConvertOptions struct {
	Delimiter       string `json:"delimiter,omitempty"`
	HasHeader       *bool  `json:"has_header,omitempty"`
	InferSchemaRows int    `json:"infer_schema_rows,omitempty"`
	Compression     string `json:"compression,omitempty"`
	BatchRows       int    `json:"batch_rows,omitempty"`
}

// Converter turns CSV files into Parquet files.
type Converter struct {
	viewer
}

func (c *Converter) resolve(opts ConvertOptions) (io.ConvertOptions, error) {
	out := io.DefaultConvertOptions()
	out.InferSchemaRows = c.cfg.InferSchemaRows
	out.Compression = c.cfg.ConvertCompression
	out.BatchRows = c.cfg.ConvertBatchRows

	if opts.Delimiter != "" {
		d, err := ParseDelimiter(opts.Delimiter)
		if err != nil {
			return out, err
		}
		out.Delimiter = d
	}
	if opts.HasHeader != nil {
		out.HasHeader = *opts.HasHeader
	}
	if opts.InferSchemaRows > 0 {
		out.InferSchemaRows = opts.InferSchemaRows
	}
	if opts.Compression != "" {
		out.Compression = strings.ToLower(opts.Compression)
	}
	if opts.BatchRows > 0 {
		out.BatchRows = opts.BatchRows
	}
	return out, nil
}

// Convert writes src as a Parquet file at dst. The output appears only
// when the whole file was written; a failed conversion leaves dst as it
// was.
func (c *Converter) Convert(ctx context.Context, src, dst string, opts ConvertOptions) (*io.ConvertResult, error) {
	const op = "ConvertCSVToParquet"
	if err := validation.ValidateConversion(src, dst, op); err != nil {
		return nil, err
	}
	resolved, err := c.resolve(opts)
	if err != nil {
		return nil, err
	}

	var result *io.ConvertResult
	err = c.metrics.RecordOperation(op, func(rec *monitoring.Recording) error {
		rec.Dataset = src
		res, err := parallel.Run(ctx, c.exec, op, func(ctx context.Context) (*io.ConvertResult, error) {
			return io.ConvertCSVToParquet(ctx, src, dst, resolved)
		})
		if err != nil {
			return err
		}
		rec.Rows = res.Rows
		result = res
		return nil
	})
	if err != nil {
		c.logger.Warn("conversion failed",
			zap.String("source", src),
			zap.String("destination", dst),
			zap.Error(err),
		)
		return nil, err
	}

	c.logger.Info("converted csv to parquet",
		zap.String("source", src),
		zap.String("destination", dst),
		zap.Int64("rows", result.Rows),
		zap.String("compression", result.Compression),
	)
	return result, nil
}
