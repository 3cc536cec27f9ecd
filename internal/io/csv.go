package io

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"

	dserrors "github.com/paveg/datascope/internal/errors"
	"github.com/paveg/datascope/internal/pagination"
	"github.com/paveg/datascope/internal/progress"
	"github.com/paveg/datascope/internal/value"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVReader parses pages out of CSV content held in memory
type CSVReader struct {
	content []byte
	options CSVOptions
}

// NewCSVReader creates a new CSV reader with the specified options
func NewCSVReader(content []byte, options CSVOptions) *CSVReader {
	if options.Delimiter == 0 {
		options.Delimiter = ','
	}
	if options.ProgressInterval == 0 {
		options.ProgressInterval = DefaultProgressInterval
	}
	return &CSVReader{content: content, options: options}
}

func (r *CSVReader) newReader() *csv.Reader {
	rd := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(r.content, utf8BOM)))
	rd.Comma = r.options.Delimiter
	rd.LazyQuotes = false
	// Records must match the header's field count; others are skipped.
	rd.FieldsPerRecord = 0
	rd.ReuseRecord = true
	return rd
}

// Headers parses only the header record.
func (r *CSVReader) Headers() ([]string, error) {
	if !ValidDelimiter(r.options.Delimiter) {
		return nil, dserrors.NewValidationError("ReadHeaders", "", "invalid delimiter")
	}
	headers, err := r.newReader().Read()
	if errors.Is(err, io.EOF) {
		return []string{}, nil
	}
	if err != nil {
		return nil, dserrors.NewFormatError("ReadHeaders", "", "malformed CSV header", err)
	}
	return append([]string(nil), headers...), nil
}

// ReadPage streams the content from the start and materializes the data
// records of desc. Records that fail to parse are counted in SkippedRows and
// do not advance the row ordinal.
func (r *CSVReader) ReadPage(ctx context.Context, desc pagination.Page, fn progress.Func) (*Page, error) {
	const op = "LoadCSVPage"

	if !ValidDelimiter(r.options.Delimiter) {
		return nil, dserrors.NewValidationError(op, "", "invalid delimiter")
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	rd := r.newReader()
	header, err := rd.Read()
	if errors.Is(err, io.EOF) {
		progress.NewReporter(fn, 0, r.options.ProgressInterval).Done(0)
		return &Page{Headers: []string{}, Rows: []*value.Record{}}, nil
	}
	if err != nil {
		return nil, dserrors.NewFormatError(op, "", "malformed CSV header", err)
	}
	headers := append([]string(nil), header...)
	unique := uniqueNames(headers)

	page := &Page{
		Headers: headers,
		Rows:    make([]*value.Record, 0, min(desc.RowCount, 1<<16)),
	}
	reporter := progress.NewReporter(fn, desc.RowCount, r.options.ProgressInterval)

	var ordinal uint64
	for ordinal < desc.EndRow {
		fields, err := rd.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				page.SkippedRows++
				continue
			}
			return nil, dserrors.NewIOError(op, "", err)
		}

		if ordinal >= desc.StartRow {
			page.Rows = append(page.Rows, alignRecord(headers, fields, unique))
			n := uint64(len(page.Rows))
			if n%r.options.ProgressInterval == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			reporter.Row(n)
		}
		ordinal++
	}

	reporter.Done(uint64(len(page.Rows)))
	return page, nil
}

// alignRecord pairs fields with headers by position.
func alignRecord(headers, fields []string, unique bool) *value.Record {
	n := min(len(headers), len(fields))
	rec := value.NewRecord(n)
	for i := 0; i < n; i++ {
		if unique {
			rec.Append(headers[i], value.String(fields[i]))
		} else {
			rec.Set(headers[i], value.String(fields[i]))
		}
	}
	return rec
}

func uniqueNames(names []string) bool {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			return false
		}
		seen[n] = struct{}{}
	}
	return true
}
