package io_test

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	dserrors "github.com/paveg/datascope/internal/errors"
	"github.com/paveg/datascope/internal/io"
	"github.com/paveg/datascope/internal/pagination"
	"github.com/paveg/datascope/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertCSVToParquet_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("large round trip")
	}

	const rows = 500_000
	var b strings.Builder
	b.WriteString("a,b,c\n")
	for i := 0; i < rows; i++ {
		b.WriteString(strconv.Itoa(i))
		b.WriteString(",v")
		b.WriteString(strconv.Itoa(i % 97))
		b.WriteString(",")
		b.WriteString(strconv.FormatFloat(float64(i)/4, 'f', -1, 64))
		b.WriteByte('\n')
	}
	src := testutil.WriteFile(t, "big.csv", b.String())
	dst := filepath.Join(t.TempDir(), "big.parquet")

	result, err := io.ConvertCSVToParquet(context.Background(), src, dst, io.DefaultConvertOptions())
	require.NoError(t, err)
	assert.Equal(t, int64(rows), result.Rows)
	assert.Equal(t, "zstd", result.Compression)

	pf, err := io.OpenParquet(dst, io.ParquetOptions{})
	require.NoError(t, err)
	defer pf.Close()

	assert.Equal(t, uint64(rows), pf.NumRows())
	assert.Equal(t, []string{"a", "b", "c"}, pf.ColumnNames())

	planner, err := pagination.NewPlanner(pagination.DefaultPageSize)
	require.NoError(t, err)
	plan, err := planner.Plan(pf.NumRows())
	require.NoError(t, err)
	require.Equal(t, 3, plan.TotalPages)

	last := plan.Pages[2]
	page, err := pf.ReadPage(context.Background(), last, nil, nil)
	require.NoError(t, err)
	require.Len(t, page.Rows, int(last.RowCount))

	tail := page.Rows[len(page.Rows)-1]
	a, _ := tail.Get("a")
	n, ok := a.AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(rows-1), n)
	c, _ := tail.Get("c")
	f, ok := c.AsFloat()
	require.True(t, ok)
	assert.InDelta(t, float64(rows-1)/4, f, 1e-9)

	entries, err := os.ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestConvertCSVToParquet_Options(t *testing.T) {
	for _, codec := range []string{"snappy", "gzip", "lz4", "uncompressed", "zstd"} {
		t.Run(codec, func(t *testing.T) {
			src := testutil.WriteFile(t, "in.csv", testutil.GenerateCSV(testutil.WithRowCount(50), testutil.WithNulls()))
			dst := filepath.Join(t.TempDir(), "out.parquet")

			opts := io.DefaultConvertOptions()
			opts.Compression = codec
			opts.BatchRows = 8
			result, err := io.ConvertCSVToParquet(context.Background(), src, dst, opts)
			require.NoError(t, err)
			assert.Equal(t, int64(50), result.Rows)

			pf, err := io.OpenParquet(dst, io.ParquetOptions{})
			require.NoError(t, err)
			defer pf.Close()

			cols := pf.Columns()
			require.Len(t, cols, 3)
			assert.Equal(t, "int64", cols[0].DType)
			assert.Equal(t, "utf8", cols[1].DType)
			assert.Equal(t, "float64", cols[2].DType)

			page, err := pf.ReadPage(context.Background(), desc(0, 0, 3), []string{"score"}, nil)
			require.NoError(t, err)
			v, _ := page.Rows[0].Get("score")
			assert.True(t, v.IsNull())
		})
	}
}

func TestConvertCSVToParquet_SniffsDelimiterAndNoHeader(t *testing.T) {
	src := testutil.WriteFile(t, "in.tsv", "1\tx\n2\ty\n")
	dst := filepath.Join(t.TempDir(), "out.parquet")

	opts := io.DefaultConvertOptions()
	opts.HasHeader = false
	result, err := io.ConvertCSVToParquet(context.Background(), src, dst, opts)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Rows)
	assert.Equal(t, "column_0", result.Columns[0].Name)
}

func TestConvertCSVToParquet_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("missing source", func(t *testing.T) {
		dst := filepath.Join(t.TempDir(), "out.parquet")
		_, err := io.ConvertCSVToParquet(ctx, filepath.Join(t.TempDir(), "nope.csv"), dst, io.DefaultConvertOptions())
		assert.ErrorIs(t, err, dserrors.ErrIO)
		assert.NoFileExists(t, dst)
	})

	t.Run("unknown compression", func(t *testing.T) {
		src := testutil.WriteFile(t, "in.csv", "a\n1\n")
		opts := io.DefaultConvertOptions()
		opts.Compression = "brotli"
		_, err := io.ConvertCSVToParquet(ctx, src, filepath.Join(t.TempDir(), "out.parquet"), opts)
		assert.ErrorIs(t, err, dserrors.ErrValidation)
	})

	t.Run("bad record removes temp file", func(t *testing.T) {
		// The type is inferred from the first record, the later value cannot be parsed
		src := testutil.WriteFile(t, "in.csv", "a\n1\n2\nnot-a-number\n")
		dir := t.TempDir()
		dst := filepath.Join(dir, "out.parquet")

		opts := io.DefaultConvertOptions()
		opts.InferSchemaRows = 1
		_, err := io.ConvertCSVToParquet(ctx, src, dst, opts)
		require.Error(t, err)
		assert.ErrorIs(t, err, dserrors.ErrFormat)
		assert.NoFileExists(t, dst)

		entries, rerr := os.ReadDir(dir)
		require.NoError(t, rerr)
		assert.Empty(t, entries)
	})

	t.Run("cancelled", func(t *testing.T) {
		src := testutil.WriteFile(t, "in.csv", testutil.GenerateCSV(testutil.WithRowCount(10)))
		dir := t.TempDir()
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := io.ConvertCSVToParquet(cctx, src, filepath.Join(dir, "out.parquet"), io.DefaultConvertOptions())
		assert.ErrorIs(t, err, context.Canceled)
		entries, rerr := os.ReadDir(dir)
		require.NoError(t, rerr)
		assert.Empty(t, entries)
	})
}
