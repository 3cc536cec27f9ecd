// Package thumbnail downsamples a page into a small (x, y) series for a
// preview plot of its first numeric column.
package thumbnail

import (
	"github.com/paveg/datascope/internal/pagination"
	"github.com/paveg/datascope/internal/value"
)

const (
	// DefaultSamples is the point budget per page.
	DefaultSamples = 1000
	// DefaultDetectRows is how many leading rows column detection inspects.
	DefaultDetectRows = 100
	// DefaultThreshold is the numeric fraction a column needs to be plotted.
	DefaultThreshold = 0.7
)

// Point is one plotted sample. X is the absolute row offset.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Thumbnail is the sampled series of one page.
type Thumbnail struct {
	PageIndex int     `json:"page_index"`
	Column    string  `json:"column,omitempty"`
	Points    []Point `json:"points"`
}

// Sampler derives thumbnails from materialized pages.
type Sampler struct {
	samples    int
	detectRows int
	threshold  float64
}

// NewSampler creates a sampler. Non-positive arguments take the defaults.
func NewSampler(samples, detectRows int, threshold float64) *Sampler {
	if samples <= 0 {
		samples = DefaultSamples
	}
	if detectRows <= 0 {
		detectRows = DefaultDetectRows
	}
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Sampler{samples: samples, detectRows: detectRows, threshold: threshold}
}

// Sample builds the thumbnail of rows, which belong to page desc.
func (s *Sampler) Sample(headers []string, rows []*value.Record, desc pagination.Page) Thumbnail {
	thumb := Thumbnail{PageIndex: desc.PageIndex, Points: []Point{}}
	if len(rows) == 0 {
		return thumb
	}

	column, ok := s.NumericColumn(headers, rows)
	if !ok {
		return thumb
	}
	thumb.Column = column

	step := max(1, len(rows)/s.samples)
	thumb.Points = make([]Point, 0, len(rows)/step+1)
	for i := 0; i < len(rows); i += step {
		v, present := rows[i].Get(column)
		if !present {
			continue
		}
		y, numeric := v.Numeric()
		if !numeric {
			continue
		}
		thumb.Points = append(thumb.Points, Point{X: float64(desc.StartRow) + float64(i), Y: y})
	}
	return thumb
}

// NumericColumn returns the first header, in order, whose non-empty values
// among the leading rows are at least threshold numeric.
func (s *Sampler) NumericColumn(headers []string, rows []*value.Record) (string, bool) {
	sample := rows[:min(len(rows), s.detectRows)]
	for _, h := range headers {
		var nonEmpty, numeric int
		for _, row := range sample {
			v, present := row.Get(h)
			if !present || v.IsBlank() {
				continue
			}
			nonEmpty++
			if _, ok := v.Numeric(); ok {
				numeric++
			}
		}
		if nonEmpty > 0 && float64(numeric)/float64(nonEmpty) >= s.threshold {
			return h, true
		}
	}
	return "", false
}
