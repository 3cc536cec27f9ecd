// Package pagination partitions a dataset's row range into fixed-size pages.
package pagination

import (
	dserrors "github.com/paveg/datascope/internal/errors"
)

// DefaultPageSize is the number of rows per page when none is configured.
const DefaultPageSize uint64 = 200_000

// MaxPages bounds the number of descriptors a single plan may materialize.
const MaxPages uint64 = 1 << 24

// Page describes the half-open row range [StartRow, EndRow).
type Page struct {
	PageIndex int    `json:"page_index"`
	StartRow  uint64 `json:"start_row"`
	EndRow    uint64 `json:"end_row"`
	RowCount  uint64 `json:"row_count"`
}

// Plan is the full partition of a dataset.
type Plan struct {
	TotalRows   uint64 `json:"total_rows"`
	TotalPages  int    `json:"total_pages"`
	CurrentPage int    `json:"current_page"`
	Pages       []Page `json:"pages"`
}

// Planner computes page partitions for a fixed page size.
type Planner struct {
	pageSize uint64
}

// NewPlanner returns a planner. A zero page size is rejected.
func NewPlanner(pageSize uint64) (*Planner, error) {
	if pageSize == 0 {
		return nil, dserrors.NewValidationError("NewPlanner", "", "page size must be positive")
	}
	return &Planner{pageSize: pageSize}, nil
}

// PageSize returns the configured rows per page.
func (p *Planner) PageSize() uint64 { return p.pageSize }

// PageCount returns ceil(totalRows / pageSize).
func (p *Planner) PageCount(totalRows uint64) uint64 {
	n := totalRows / p.pageSize
	if totalRows%p.pageSize != 0 {
		n++
	}
	return n
}

// Plan materializes every page of a dataset with totalRows rows.
func (p *Planner) Plan(totalRows uint64) (Plan, error) {
	count := p.PageCount(totalRows)
	if count > MaxPages {
		return Plan{}, dserrors.NewArithmeticError("Plan",
			"page count exceeds the supported maximum; increase the page size")
	}

	pages := make([]Page, 0, count)
	for i := uint64(0); i < count; i++ {
		pages = append(pages, p.page(totalRows, i))
	}

	return Plan{
		TotalRows:   totalRows,
		TotalPages:  int(count),
		CurrentPage: 0,
		Pages:       pages,
	}, nil
}

// Page derives descriptor index without materializing the plan.
func (p *Planner) Page(totalRows uint64, index int) (Page, error) {
	if index < 0 || uint64(index) >= p.PageCount(totalRows) {
		return Page{}, dserrors.NewValidationError("Page", "", "page index out of range")
	}
	return p.page(totalRows, uint64(index)), nil
}

func (p *Planner) page(totalRows, index uint64) Page {
	start := index * p.pageSize
	end := totalRows
	if totalRows-start > p.pageSize {
		end = start + p.pageSize
	}
	return Page{
		PageIndex: int(index),
		StartRow:  start,
		EndRow:    end,
		RowCount:  end - start,
	}
}

// Validate checks that a caller-supplied descriptor is internally consistent.
func (pg Page) Validate() error {
	if pg.PageIndex < 0 {
		return dserrors.NewValidationError("Page", "page_index", "must be non-negative")
	}
	if pg.EndRow < pg.StartRow {
		return dserrors.NewValidationError("Page", "end_row", "must not precede start_row")
	}
	if pg.RowCount != pg.EndRow-pg.StartRow {
		return dserrors.NewValidationError("Page", "row_count", "must equal end_row - start_row")
	}
	return nil
}
