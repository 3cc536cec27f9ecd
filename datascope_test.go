package datascope_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paveg/datascope"
	"github.com/paveg/datascope/internal/cache"
	"github.com/paveg/datascope/internal/config"
	dserrors "github.com/paveg/datascope/internal/errors"
	"github.com/paveg/datascope/internal/pagination"
	"github.com/paveg/datascope/internal/progress"
	"github.com/paveg/datascope/internal/testutil"
)

func newService(t *testing.T, mutate ...func(*config.Config)) *datascope.Service {
	t.Helper()
	cfg := config.NewConfig()
	cfg.WorkerPoolSize = 4
	cfg.MetricsCollection = true
	for _, m := range mutate {
		m(&cfg)
	}
	svc, err := datascope.New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, svc.Close()) })
	return svc
}

type eventLog struct {
	mu     sync.Mutex
	events []progress.Event
}

func (l *eventLog) record(ev progress.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) all() []progress.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]progress.Event(nil), l.events...)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.ConvertCompression = "brotli"
	_, err := datascope.New(cfg, nil)
	require.Error(t, err)
}

func TestCSVViewer_OpenAndPage(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, func(c *config.Config) { c.PageSize = 3 })
	path := testutil.WriteFile(t, "data.csv", testutil.GenerateCSV(testutil.WithRowCount(7)))

	res, err := svc.CSV().Open(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), res.TotalRows)
	assert.Equal(t, ",", res.Delimiter)
	assert.Equal(t, []string{"id", "name", "score"}, res.Headers)

	plan, err := svc.Pagination(res.TotalRows)
	require.NoError(t, err)
	require.Equal(t, 3, plan.TotalPages)

	var total int
	for _, desc := range plan.Pages {
		page, err := svc.CSV().LoadPage(ctx, desc.PageIndex, desc, nil)
		require.NoError(t, err)
		total += len(page.Rows)
	}
	assert.Equal(t, 7, total)

	last := plan.Pages[2]
	page, err := svc.CSV().LoadPage(ctx, last.PageIndex, last, nil)
	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	testutil.AssertRowStrings(t, page.Rows[0], []string{"id", "name", "score"}, []string{"6", "name_6", "9"})
}

func TestCSVViewer_CachedPageEmitsSingleEvent(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	path := testutil.WriteFile(t, "data.csv", testutil.GenerateCSV(testutil.WithRowCount(10)))
	_, err := svc.CSV().Open(ctx, path)
	require.NoError(t, err)
	desc := pagination.Page{PageIndex: 0, StartRow: 0, EndRow: 10, RowCount: 10}

	first, err := svc.CSV().LoadPage(ctx, 0, desc, nil)
	require.NoError(t, err)

	var log eventLog
	second, err := svc.CSV().LoadPage(ctx, 0, desc, log.record)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, []progress.Event{{Current: 10, Total: 10, Message: progress.MessageFromCache}}, log.all())

	st := svc.CSV().Stats()
	assert.Equal(t, uint64(1), st.PageHits)
	assert.Equal(t, 1, st.Pages)
}

func TestCSVViewer_ProgressIsMonotonic(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, func(c *config.Config) { c.ProgressInterval = 100 })
	path := testutil.WriteFile(t, "data.csv", testutil.GenerateCSV(testutil.WithRowCount(1000)))
	_, err := svc.CSV().Open(ctx, path)
	require.NoError(t, err)

	var log eventLog
	desc := pagination.Page{PageIndex: 0, StartRow: 0, EndRow: 1000, RowCount: 1000}
	_, err = svc.CSV().LoadPage(ctx, 0, desc, log.record)
	require.NoError(t, err)

	events := log.all()
	require.NotEmpty(t, events)
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Current, events[i-1].Current)
	}
	lastEv := events[len(events)-1]
	assert.Equal(t, lastEv.Total, lastEv.Current)
}

func TestCSVViewer_ChangeDelimiterInvalidates(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	path := testutil.WriteFile(t, "data.csv", "a,b;c\n1,2;3\n")

	res, err := svc.CSV().Open(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, ",", res.Delimiter)
	desc := pagination.Page{PageIndex: 0, StartRow: 0, EndRow: 1, RowCount: 1}

	page, err := svc.CSV().LoadPage(ctx, 0, desc, nil)
	require.NoError(t, err)
	testutil.AssertRowStrings(t, page.Rows[0], []string{"a", "b;c"}, []string{"1", "2;3"})

	total, err := svc.CSV().ChangeDelimiter(ctx, ';')
	require.NoError(t, err)
	assert.Equal(t, uint64(1), total)

	page, err = svc.CSV().LoadPage(ctx, 0, desc, nil)
	require.NoError(t, err)
	testutil.AssertRowStrings(t, page.Rows[0], []string{"a,b", "c"}, []string{"1,2", "3"})
	assert.Equal(t, ';', svc.CSV().Handle().Delimiter)
}

func TestCSVViewer_Thumbnail(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	path := testutil.WriteFile(t, "data.csv", testutil.GenerateCSV(testutil.WithRowCount(5)))
	_, err := svc.CSV().Open(ctx, path)
	require.NoError(t, err)
	desc := pagination.Page{PageIndex: 0, StartRow: 0, EndRow: 5, RowCount: 5}

	thumb, err := svc.CSV().Thumbnail(ctx, 0, desc)
	require.NoError(t, err)
	assert.Equal(t, "id", thumb.Column)
	require.Len(t, thumb.Points, 5)
	assert.Equal(t, float64(4), thumb.Points[4].X)
	assert.Equal(t, float64(4), thumb.Points[4].Y)
	assert.Equal(t, 0, svc.CSV().Stats().Pages, "thumbnail must not fill the page cache")

	_, err = svc.CSV().Thumbnail(ctx, 0, desc)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), svc.CSV().Stats().ThumbnailHits)
}

func TestCSVViewer_Errors(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	desc := pagination.Page{PageIndex: 0, StartRow: 0, EndRow: 1, RowCount: 1}

	_, err := svc.CSV().LoadPage(ctx, 0, desc, nil)
	assert.ErrorIs(t, err, dserrors.ErrState)
	_, err = svc.CSV().ChangeDelimiter(ctx, ';')
	assert.ErrorIs(t, err, dserrors.ErrState)
	_, err = svc.CSV().Thumbnail(ctx, 0, desc)
	assert.ErrorIs(t, err, dserrors.ErrState)

	_, err = svc.CSV().Open(ctx, filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, dserrors.ErrIO)

	_, err = svc.CSV().LoadPage(ctx, 1, desc, nil)
	assert.ErrorIs(t, err, dserrors.ErrValidation)
	_, err = svc.CSV().ChangeDelimiter(ctx, '"')
	assert.ErrorIs(t, err, dserrors.ErrValidation)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = svc.CSV().Open(cancelled, "x.csv")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCSVViewer_FailedOpenKeepsDataset(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	path := testutil.WriteFile(t, "data.csv", testutil.GenerateCSV())
	_, err := svc.CSV().Open(ctx, path)
	require.NoError(t, err)

	_, err = svc.CSV().Open(ctx, filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.Equal(t, path, svc.CSV().Handle().Path)
}

func writeStringsOnly(t *testing.T, rows int) string {
	t.Helper()
	schema := arrow.NewSchema([]arrow.Field{{Name: "label", Type: arrow.BinaryTypes.String}}, nil)
	b := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	defer b.Release()
	for i := 0; i < rows; i++ {
		b.Field(0).(*array.StringBuilder).Append("x")
	}
	rec := b.NewRecord()
	defer rec.Release()
	return testutil.WriteRecords(t, "labels.parquet", 0, rec)
}

func TestParquetViewer_ProjectionCache(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	path := testutil.WriteParquet(t, "data.parquet", testutil.WithRowCount(10), testutil.WithRowGroupSize(3))

	res, err := svc.Parquet().Open(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), res.TotalRows)
	require.Len(t, res.Columns, 3)

	desc := pagination.Page{PageIndex: 0, StartRow: 0, EndRow: 10, RowCount: 10}
	first, err := svc.Parquet().LoadPage(ctx, 0, desc, []string{"score", "id"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "score"}, first.Headers)
	require.Len(t, first.Rows, 10)

	var log eventLog
	second, err := svc.Parquet().LoadPage(ctx, 0, desc, []string{"id", "score"}, log.record)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, progress.MessageFromCache, log.all()[0].Message)

	full, err := svc.Parquet().LoadPage(ctx, 0, desc, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "score"}, full.Headers)
	assert.Equal(t, 2, svc.Parquet().Stats().Pages)

	_, err = svc.Parquet().LoadPage(ctx, 0, desc, []string{"nope"}, nil)
	assert.ErrorIs(t, err, dserrors.ErrFormat)
}

func TestParquetViewer_ThumbnailCachedWhenEmpty(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	_, err := svc.Parquet().Open(ctx, writeStringsOnly(t, 4))
	require.NoError(t, err)
	desc := pagination.Page{PageIndex: 0, StartRow: 0, EndRow: 4, RowCount: 4}

	thumb, err := svc.Parquet().Thumbnail(ctx, 0, desc)
	require.NoError(t, err)
	assert.Empty(t, thumb.Points)
	assert.NotNil(t, thumb.Points)

	_, err = svc.Parquet().Thumbnail(ctx, 0, desc)
	require.NoError(t, err)
	st := svc.Parquet().Stats()
	assert.Equal(t, uint64(1), st.ThumbnailHits)
	assert.Equal(t, 0, st.Pages)
}

func TestService_OpenDispatchesByExtension(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	csvPath := testutil.WriteFile(t, "data.csv", testutil.GenerateCSV())
	pqPath := testutil.WriteParquet(t, "data.pq")

	res, err := svc.Open(ctx, csvPath)
	require.NoError(t, err)
	assert.Equal(t, cache.FormatCSV, res.Format)
	assert.Equal(t, uint64(4), res.TotalRows())

	res, err = svc.Open(ctx, pqPath)
	require.NoError(t, err)
	assert.Equal(t, cache.FormatParquet, res.Format)
	assert.Nil(t, svc.CSV().Handle(), "opening parquet clears the csv dataset")
	assert.NotNil(t, svc.Parquet().Handle())

	assert.Equal(t, cache.FormatParquet, datascope.FormatOf("X.PARQUET"))
	assert.Equal(t, cache.FormatCSV, datascope.FormatOf("data.tsv"))
}

func TestService_Thumbnails(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, func(c *config.Config) { c.PageSize = 4 })
	path := testutil.WriteParquet(t, "data.parquet", testutil.WithRowCount(10))
	_, err := svc.Parquet().Open(ctx, path)
	require.NoError(t, err)

	thumbs, err := svc.Thumbnails(ctx, svc.Parquet(), []int{2, 0, 1})
	require.NoError(t, err)
	require.Len(t, thumbs, 3)
	assert.Equal(t, 2, thumbs[0].PageIndex)
	assert.Len(t, thumbs[0].Points, 2)
	assert.Equal(t, 0, thumbs[1].PageIndex)
	assert.Len(t, thumbs[1].Points, 4)

	_, err = svc.Thumbnails(ctx, svc.Parquet(), []int{3})
	assert.ErrorIs(t, err, dserrors.ErrValidation)

	svc.Clear()
	_, err = svc.Thumbnails(ctx, svc.Parquet(), []int{0})
	assert.ErrorIs(t, err, dserrors.ErrState)
}

func TestConverter_RoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	src := testutil.WriteFile(t, "data.csv", testutil.GenerateCSV(testutil.WithRowCount(100)))
	dst := filepath.Join(t.TempDir(), "data.parquet")

	res, err := svc.Converter().Convert(ctx, src, dst, datascope.ConvertOptions{Compression: "SNAPPY"})
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.Rows)
	assert.Equal(t, "snappy", res.Compression)

	opened, err := svc.Open(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), opened.TotalRows())

	_, err = svc.Converter().Convert(ctx, src, src, datascope.ConvertOptions{})
	assert.ErrorIs(t, err, dserrors.ErrValidation)
	_, err = svc.Converter().Convert(ctx, src, dst, datascope.ConvertOptions{Delimiter: ";;"})
	assert.ErrorIs(t, err, dserrors.ErrValidation)

	_, statErr := os.Stat(src)
	require.NoError(t, statErr)
}

func TestParseDelimiter(t *testing.T) {
	tests := []struct {
		in      string
		want    rune
		wantErr bool
	}{
		{",", ',', false},
		{";", ';', false},
		{`\t`, '\t', false},
		{"tab", '\t', false},
		{"|", '|', false},
		{"", 0, true},
		{"ab", 0, true},
		{`"`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := datascope.ParseDelimiter(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, dserrors.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_MetricsRecorded(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	path := testutil.WriteFile(t, "data.csv", testutil.GenerateCSV())
	_, err := svc.CSV().Open(ctx, path)
	require.NoError(t, err)
	desc := pagination.Page{PageIndex: 0, StartRow: 0, EndRow: 4, RowCount: 4}
	for i := 0; i < 2; i++ {
		_, err = svc.CSV().LoadPage(ctx, 0, desc, nil)
		require.NoError(t, err)
	}

	summary := svc.Metrics().GetSummary()
	assert.Equal(t, int64(1), summary.Operations["OpenCSV"].Count)
	assert.Equal(t, int64(2), summary.Operations["LoadCSVPage"].Count)
	assert.Equal(t, int64(1), summary.Operations["LoadCSVPage"].CacheHit)
	assert.Equal(t, int64(8), summary.Operations["LoadCSVPage"].Rows)
}
