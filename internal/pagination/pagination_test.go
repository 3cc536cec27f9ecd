package pagination_test

import (
	"testing"

	dserrors "github.com/paveg/datascope/internal/errors"
	"github.com/paveg/datascope/internal/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPlanner_RejectsZero(t *testing.T) {
	_, err := pagination.NewPlanner(0)
	require.Error(t, err)
	assert.ErrorIs(t, err, dserrors.ErrValidation)
}

func TestPlanner_Plan(t *testing.T) {
	tests := []struct {
		name      string
		total     uint64
		pageSize  uint64
		wantPages []pagination.Page
	}{
		{
			name:     "empty dataset",
			total:    0,
			pageSize: 10,
		},
		{
			name:     "exact multiple",
			total:    20,
			pageSize: 10,
			wantPages: []pagination.Page{
				{PageIndex: 0, StartRow: 0, EndRow: 10, RowCount: 10},
				{PageIndex: 1, StartRow: 10, EndRow: 20, RowCount: 10},
			},
		},
		{
			name:     "trailing partial page",
			total:    450_000,
			pageSize: pagination.DefaultPageSize,
			wantPages: []pagination.Page{
				{PageIndex: 0, StartRow: 0, EndRow: 200_000, RowCount: 200_000},
				{PageIndex: 1, StartRow: 200_000, EndRow: 400_000, RowCount: 200_000},
				{PageIndex: 2, StartRow: 400_000, EndRow: 450_000, RowCount: 50_000},
			},
		},
		{
			name:     "smaller than one page",
			total:    3,
			pageSize: pagination.DefaultPageSize,
			wantPages: []pagination.Page{
				{PageIndex: 0, StartRow: 0, EndRow: 3, RowCount: 3},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			planner, err := pagination.NewPlanner(tt.pageSize)
			require.NoError(t, err)

			plan, err := planner.Plan(tt.total)
			require.NoError(t, err)

			assert.Equal(t, tt.total, plan.TotalRows)
			assert.Equal(t, len(tt.wantPages), plan.TotalPages)
			assert.Equal(t, 0, plan.CurrentPage)
			if len(tt.wantPages) == 0 {
				assert.Empty(t, plan.Pages)
			} else {
				assert.Equal(t, tt.wantPages, plan.Pages)
			}
		})
	}
}

func TestPlanner_PartitionProperty(t *testing.T) {
	totals := []uint64{0, 1, 7, 199_999, 200_000, 200_001, 1_000_003}
	sizes := []uint64{1, 3, 1000, 200_000}

	for _, size := range sizes {
		planner, err := pagination.NewPlanner(size)
		require.NoError(t, err)

		for _, total := range totals {
			if size == 1 && total > 10_000 {
				continue
			}
			plan, err := planner.Plan(total)
			require.NoError(t, err)

			var next uint64
			for i, pg := range plan.Pages {
				require.Equal(t, i, pg.PageIndex)
				require.Equal(t, next, pg.StartRow, "pages must be contiguous")
				require.Equal(t, pg.EndRow-pg.StartRow, pg.RowCount)
				require.Positive(t, pg.RowCount)
				require.LessOrEqual(t, pg.RowCount, size)
				require.NoError(t, pg.Validate())
				next = pg.EndRow
			}
			assert.Equal(t, total, next, "union must cover [0,total)")
		}
	}
}

func TestPlanner_Page(t *testing.T) {
	planner, err := pagination.NewPlanner(100)
	require.NoError(t, err)

	pg, err := planner.Page(250, 2)
	require.NoError(t, err)
	assert.Equal(t, pagination.Page{PageIndex: 2, StartRow: 200, EndRow: 250, RowCount: 50}, pg)

	plan, err := planner.Plan(250)
	require.NoError(t, err)
	assert.Equal(t, plan.Pages[1], mustPage(t, planner, 250, 1))

	_, err = planner.Page(250, 3)
	assert.ErrorIs(t, err, dserrors.ErrValidation)
	_, err = planner.Page(250, -1)
	assert.ErrorIs(t, err, dserrors.ErrValidation)
}

func TestPlanner_TooManyPages(t *testing.T) {
	planner, err := pagination.NewPlanner(1)
	require.NoError(t, err)

	_, err = planner.Plan(pagination.MaxPages + 1)
	assert.ErrorIs(t, err, dserrors.ErrArithmetic)

	// Page derivation is still available for huge datasets
	pg, err := planner.Page(^uint64(0), 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), pg.StartRow)
}

func TestPlanner_HugeTotalDoesNotOverflow(t *testing.T) {
	planner, err := pagination.NewPlanner(pagination.DefaultPageSize)
	require.NoError(t, err)

	total := ^uint64(0)
	count := planner.PageCount(total)
	last, err := planner.Page(total, int(count-1))
	require.NoError(t, err)
	assert.Equal(t, total, last.EndRow)
	assert.Equal(t, last.EndRow-last.StartRow, last.RowCount)
}

func TestPage_Validate(t *testing.T) {
	assert.NoError(t, pagination.Page{PageIndex: 0, StartRow: 0, EndRow: 5, RowCount: 5}.Validate())
	assert.ErrorIs(t, pagination.Page{PageIndex: -1}.Validate(), dserrors.ErrValidation)
	assert.ErrorIs(t, pagination.Page{StartRow: 5, EndRow: 1}.Validate(), dserrors.ErrValidation)
	assert.ErrorIs(t, pagination.Page{StartRow: 0, EndRow: 5, RowCount: 4}.Validate(), dserrors.ErrValidation)
}

func mustPage(t *testing.T, planner *pagination.Planner, total uint64, index int) pagination.Page {
	t.Helper()
	pg, err := planner.Page(total, index)
	require.NoError(t, err)
	return pg
}
