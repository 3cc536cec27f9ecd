// Package testutil provides common testing utilities to reduce code duplication
// across test files in datascope.
//
// This package consolidates common patterns:
// - Checked memory allocator setup and leak assertion
// - Standard CSV and Parquet fixture files
// - Common page assertions
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/paveg/datascope/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	// defaultRowCount is the default number of rows in fixture files.
	defaultRowCount = 4
)

// TestMemoryContext provides a checked allocator that fails the test when
// buffers are leaked.
type TestMemoryContext struct {
	Allocator *memory.CheckedAllocator
	tb        testing.TB
}

// Release asserts every allocation was returned.
func (tmc *TestMemoryContext) Release() {
	tmc.Allocator.AssertSize(tmc.tb, 0)
}

// SetupMemoryTest creates a checked allocator for tests.
// Returns a TestMemoryContext that should be released with defer.
//
// Example usage:
//
//	mem := testutil.SetupMemoryTest(t)
//	defer mem.Release()
func SetupMemoryTest(tb testing.TB) *TestMemoryContext {
	tb.Helper()
	return &TestMemoryContext{
		Allocator: memory.NewCheckedAllocator(memory.NewGoAllocator()),
		tb:        tb,
	}
}

// WriteFile writes content to name inside a fresh temp directory and returns its path.
func WriteFile(tb testing.TB, name, content string) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), name)
	require.NoError(tb, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// FixtureOption configures fixture generation.
type FixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	rowCount     int
	includeNulls bool
	rowGroupSize int64
	delimiter    string
}

// WithRowCount sets the number of data rows.
func WithRowCount(count int) FixtureOption {
	return func(cfg *fixtureConfig) {
		cfg.rowCount = count
	}
}

// WithNulls leaves every third score empty.
func WithNulls() FixtureOption {
	return func(cfg *fixtureConfig) {
		cfg.includeNulls = true
	}
}

// WithRowGroupSize sets the Parquet row group size.
func WithRowGroupSize(n int64) FixtureOption {
	return func(cfg *fixtureConfig) {
		cfg.rowGroupSize = n
	}
}

// WithDelimiter sets the CSV field delimiter.
func WithDelimiter(d rune) FixtureOption {
	return func(cfg *fixtureConfig) {
		cfg.delimiter = string(d)
	}
}

func newFixtureConfig(opts []FixtureOption) *fixtureConfig {
	cfg := &fixtureConfig{rowCount: defaultRowCount, delimiter: ","}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// GenerateCSV builds CSV content with columns id, name, score where
// id = i, name = "name_i" and score = i * 1.5.
func GenerateCSV(opts ...FixtureOption) string {
	cfg := newFixtureConfig(opts)
	var b strings.Builder
	b.Grow(cfg.rowCount * 24)
	d := cfg.delimiter
	b.WriteString("id" + d + "name" + d + "score\n")
	for i := 0; i < cfg.rowCount; i++ {
		b.WriteString(strconv.Itoa(i))
		b.WriteString(d)
		b.WriteString("name_")
		b.WriteString(strconv.Itoa(i))
		b.WriteString(d)
		if !(cfg.includeNulls && i%3 == 0) {
			b.WriteString(strconv.FormatFloat(float64(i)*1.5, 'f', -1, 64))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// FixtureSchema is the schema written by WriteParquet.
func FixtureSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.BinaryTypes.String},
		{Name: "score", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	}, nil)
}

// WriteParquet writes the GenerateCSV rows as a Parquet file and returns its path.
func WriteParquet(tb testing.TB, name string, opts ...FixtureOption) string {
	tb.Helper()
	cfg := newFixtureConfig(opts)
	mem := memory.NewGoAllocator()

	b := array.NewRecordBuilder(mem, FixtureSchema())
	defer b.Release()
	ids := b.Field(0).(*array.Int64Builder)
	names := b.Field(1).(*array.StringBuilder)
	scores := b.Field(2).(*array.Float64Builder)
	for i := 0; i < cfg.rowCount; i++ {
		ids.Append(int64(i))
		names.Append(fmt.Sprintf("name_%d", i))
		if cfg.includeNulls && i%3 == 0 {
			scores.AppendNull()
		} else {
			scores.Append(float64(i) * 1.5)
		}
	}
	rec := b.NewRecord()
	defer rec.Release()

	return WriteRecords(tb, name, cfg.rowGroupSize, rec)
}

// WriteRecords writes records to a Parquet file. A positive rowGroupSize
// caps the rows per row group.
func WriteRecords(tb testing.TB, name string, rowGroupSize int64, records ...arrow.Record) string {
	tb.Helper()
	require.NotEmpty(tb, records)

	path := filepath.Join(tb.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(tb, err)

	popts := []parquet.WriterProperty{parquet.WithCompression(compress.Codecs.Snappy)}
	if rowGroupSize > 0 {
		popts = append(popts, parquet.WithMaxRowGroupLength(rowGroupSize))
	}
	w, err := pqarrow.NewFileWriter(records[0].Schema(), f, parquet.NewWriterProperties(popts...),
		pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	require.NoError(tb, err)

	for _, rec := range records {
		require.NoError(tb, w.Write(rec))
	}
	require.NoError(tb, w.Close())
	return path
}

// AssertRowStrings checks that row holds exactly the given string fields in order.
func AssertRowStrings(t *testing.T, row *value.Record, names []string, values []string) {
	t.Helper()
	require.Equal(t, names, row.Names())
	for i, name := range names {
		got, ok := row.Get(name)
		require.True(t, ok)
		s, isStr := got.AsString()
		require.True(t, isStr, "column %s is %s", name, got.Kind())
		assert.Equal(t, values[i], s, "column %s", name)
	}
}
