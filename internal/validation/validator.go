// Package validation provides input validation for viewer requests.
// Validators are small values that can be combined; the first failure wins.
package validation

import (
	"fmt"
	"path/filepath"
	"slices"

	dserrors "github.com/paveg/datascope/internal/errors"
	"github.com/paveg/datascope/internal/io"
	"github.com/paveg/datascope/internal/pagination"
)

// Validator interface for input validation
type Validator interface {
	Validate() error
}

// ColumnProvider exposes the column names of an open dataset.
type ColumnProvider interface {
	Columns() []string
}

// Columns adapts a plain name list to ColumnProvider.
type Columns []string

// Columns returns the names.
func (c Columns) Columns() []string { return c }

// ColumnValidator checks that every projected column exists.
type ColumnValidator struct {
	ds      ColumnProvider
	columns []string
	op      string
}

// NewColumnValidator creates a validator for a column projection
func NewColumnValidator(ds ColumnProvider, op string, columns ...string) *ColumnValidator {
	return &ColumnValidator{ds: ds, columns: columns, op: op}
}

// Validate checks if all columns exist in the dataset
func (v *ColumnValidator) Validate() error {
	known := v.ds.Columns()
	for _, column := range v.columns {
		if !slices.Contains(known, column) {
			return dserrors.NewColumnNotFoundError(v.op, column)
		}
	}
	return nil
}

// PageValidator checks a descriptor against the page index it is used with.
type PageValidator struct {
	index int
	desc  pagination.Page
	op    string
}

// NewPageValidator creates a validator for a page request
func NewPageValidator(index int, desc pagination.Page, op string) *PageValidator {
	return &PageValidator{index: index, desc: desc, op: op}
}

// Validate checks the descriptor is well formed and carries index.
func (v *PageValidator) Validate() error {
	if v.index < 0 {
		return dserrors.NewValidationError(v.op, "page_index", fmt.Sprintf("must be non-negative, got %d", v.index))
	}
	if err := v.desc.Validate(); err != nil {
		return err
	}
	if v.desc.PageIndex != v.index {
		msg := fmt.Sprintf("descriptor is for page %d, requested page %d", v.desc.PageIndex, v.index)
		return dserrors.NewValidationError(v.op, "page_index", msg)
	}
	return nil
}

// DelimiterValidator checks a CSV field delimiter.
type DelimiterValidator struct {
	delimiter rune
	op        string
}

// NewDelimiterValidator creates a validator for a CSV delimiter
func NewDelimiterValidator(delimiter rune, op string) *DelimiterValidator {
	return &DelimiterValidator{delimiter: delimiter, op: op}
}

// Validate rejects delimiters encoding/csv cannot use.
func (v *DelimiterValidator) Validate() error {
	if !io.ValidDelimiter(v.delimiter) {
		return dserrors.NewValidationError(v.op, "delimiter", fmt.Sprintf("invalid delimiter %q", v.delimiter))
	}
	return nil
}

// PathValidator checks a file path argument.
type PathValidator struct {
	path  string
	field string
	op    string
}

// NewPathValidator creates a validator for a path passed as field
func NewPathValidator(path, field, op string) *PathValidator {
	return &PathValidator{path: path, field: field, op: op}
}

// Validate rejects empty paths.
func (v *PathValidator) Validate() error {
	if v.path == "" {
		return dserrors.NewValidationError(v.op, v.field, "path must not be empty")
	}
	return nil
}

// DistinctPathValidator checks that two paths do not name the same file.
type DistinctPathValidator struct {
	src, dst string
	op       string
}

// NewDistinctPathValidator creates a validator for a source and destination
func NewDistinctPathValidator(src, dst, op string) *DistinctPathValidator {
	return &DistinctPathValidator{src: src, dst: dst, op: op}
}

// Validate compares the cleaned absolute paths.
func (v *DistinctPathValidator) Validate() error {
	a, errA := filepath.Abs(v.src)
	b, errB := filepath.Abs(v.dst)
	if errA != nil || errB != nil {
		a, b = filepath.Clean(v.src), filepath.Clean(v.dst)
	}
	if a == b {
		return dserrors.NewValidationError(v.op, "destination", "destination must differ from source")
	}
	return nil
}

// CompoundValidator combines multiple validators
type CompoundValidator struct {
	validators []Validator
}

// NewCompoundValidator creates a validator that checks multiple conditions
func NewCompoundValidator(validators ...Validator) *CompoundValidator {
	return &CompoundValidator{validators: validators}
}

// Validate runs all validators and returns the first error encountered
func (v *CompoundValidator) Validate() error {
	for _, validator := range v.validators {
		if err := validator.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Convenience validation functions

// ValidateColumns is a convenience function for projection validation
func ValidateColumns(ds ColumnProvider, op string, columns ...string) error {
	return NewColumnValidator(ds, op, columns...).Validate()
}

// ValidatePage is a convenience function for page request validation
func ValidatePage(index int, desc pagination.Page, op string) error {
	return NewPageValidator(index, desc, op).Validate()
}

// ValidateDelimiter is a convenience function for delimiter validation
func ValidateDelimiter(delimiter rune, op string) error {
	return NewDelimiterValidator(delimiter, op).Validate()
}

// ValidateConversion checks the paths of a conversion request.
func ValidateConversion(src, dst, op string) error {
	return NewCompoundValidator(
		NewPathValidator(src, "source", op),
		NewPathValidator(dst, "destination", op),
		NewDistinctPathValidator(src, dst, op),
	).Validate()
}
