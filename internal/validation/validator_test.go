package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dserrors "github.com/paveg/datascope/internal/errors"
	"github.com/paveg/datascope/internal/pagination"
	"github.com/paveg/datascope/internal/validation"
)

func TestColumnValidator(t *testing.T) {
	ds := validation.Columns{"id", "name"}

	t.Run("Valid columns", func(t *testing.T) {
		require.NoError(t, validation.NewColumnValidator(ds, "LoadParquetPage", "id", "name").Validate())
	})

	t.Run("Empty projection", func(t *testing.T) {
		require.NoError(t, validation.ValidateColumns(ds, "LoadParquetPage"))
	})

	t.Run("Invalid column", func(t *testing.T) {
		err := validation.ValidateColumns(ds, "LoadParquetPage", "id", "age", "name")
		require.Error(t, err)

		var vErr *dserrors.ViewerError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "LoadParquetPage", vErr.Op)
		assert.Equal(t, "age", vErr.Column)
		assert.ErrorIs(t, err, dserrors.ErrFormat)
	})
}

func TestPageValidator(t *testing.T) {
	good := pagination.Page{PageIndex: 1, StartRow: 200, EndRow: 400, RowCount: 200}

	tests := []struct {
		name    string
		index   int
		desc    pagination.Page
		wantErr bool
	}{
		{"valid", 1, good, false},
		{"negative index", -1, good, true},
		{"index mismatch", 2, good, true},
		{"bad row count", 1, pagination.Page{PageIndex: 1, StartRow: 200, EndRow: 400, RowCount: 10}, true},
		{"end before start", 1, pagination.Page{PageIndex: 1, StartRow: 400, EndRow: 200}, true},
		{"empty page", 0, pagination.Page{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validation.ValidatePage(tt.index, tt.desc, "LoadCSVPage")
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, dserrors.ErrValidation)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestDelimiterValidator(t *testing.T) {
	for _, d := range []rune{',', ';', '\t', '|', 'x'} {
		assert.NoError(t, validation.ValidateDelimiter(d, "ChangeDelimiter"), "%q", d)
	}
	for _, d := range []rune{0, '"', '\n', '\r', 0xFFFD} {
		err := validation.ValidateDelimiter(d, "ChangeDelimiter")
		assert.ErrorIs(t, err, dserrors.ErrValidation, "%q", d)
	}
}

func TestValidateConversion(t *testing.T) {
	require.NoError(t, validation.ValidateConversion("in.csv", "out.parquet", "Convert"))

	tests := []struct {
		name     string
		src, dst string
		field    string
	}{
		{"empty source", "", "out.parquet", "source"},
		{"empty destination", "in.csv", "", "destination"},
		{"same file", "data/in.csv", "data/../data/in.csv", "destination"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validation.ValidateConversion(tt.src, tt.dst, "Convert")
			var vErr *dserrors.ViewerError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Column)
		})
	}
}

type failing struct{ err error }

func (f failing) Validate() error { return f.err }

func TestCompoundValidatorFirstErrorWins(t *testing.T) {
	first := dserrors.NewValidationError("op", "a", "first")
	second := dserrors.NewValidationError("op", "b", "second")

	err := validation.NewCompoundValidator(failing{nil}, failing{first}, failing{second}).Validate()
	assert.Same(t, first, err)
	assert.NoError(t, validation.NewCompoundValidator().Validate())
}
