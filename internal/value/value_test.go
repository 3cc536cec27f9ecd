package value_test

import (
	"math"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/paveg/datascope/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_MarshalJSON(t *testing.T) {
	nested := value.NewRecord(2)
	nested.Append("z", value.Int(1))
	nested.Append("a", value.Array([]value.Value{value.Bool(true), value.Null()}))

	tests := []struct {
		name  string
		value value.Value
		want  string
	}{
		{"null", value.Null(), `null`},
		{"bool", value.Bool(false), `false`},
		{"int", value.Int(-42), `-42`},
		{"float", value.Float(1.5), `1.5`},
		{"nan", value.Float(math.NaN()), `null`},
		{"inf", value.Float(math.Inf(-1)), `null`},
		{"string", value.String(`say "hi"`), `"say \"hi\""`},
		{"bytes", value.Bytes([]byte("hi")), `"aGk="`},
		{"safe int", value.SafeInt(value.MaxSafeInteger), `9007199254740991`},
		{"unsafe int", value.SafeInt(value.MaxSafeInteger + 1), `"9007199254740992"`},
		{"unsafe negative", value.SafeInt(math.MinInt64), `"-9223372036854775808"`},
		{"unsafe uint", value.SafeUint(math.MaxUint64), `"18446744073709551615"`},
		{"object keeps order", value.Object(nested), `{"z":1,"a":[true,null]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestValue_Numeric(t *testing.T) {
	tests := []struct {
		name  string
		value value.Value
		want  float64
		ok    bool
	}{
		{"int", value.Int(3), 3, true},
		{"float", value.Float(2.25), 2.25, true},
		{"numeric string", value.String(" 1e3 "), 1000, true},
		{"text", value.String("abc"), 0, false},
		{"nan string", value.String("NaN"), 0, false},
		{"bool", value.Bool(true), 0, false},
		{"null", value.Null(), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.value.Numeric()
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestValue_IsBlank(t *testing.T) {
	assert.True(t, value.Null().IsBlank())
	assert.True(t, value.String("  \t").IsBlank())
	assert.False(t, value.String("x").IsBlank())
	assert.False(t, value.Bool(false).IsBlank())
	assert.False(t, value.Array(nil).IsBlank())
}

func TestValue_Equal(t *testing.T) {
	assert.True(t, value.Int(1).Equal(value.Int(1)))
	assert.False(t, value.Int(1).Equal(value.Float(1)))
	assert.True(t, value.Bytes([]byte{1}).Equal(value.Bytes([]byte{1})))
	assert.True(t, value.Array([]value.Value{value.String("a")}).Equal(value.Array([]value.Value{value.String("a")})))
	assert.False(t, value.Array([]value.Value{value.String("a")}).Equal(value.Array(nil)))
}

func TestRecord_SetGet(t *testing.T) {
	rec := value.NewRecord(2)
	rec.Set("b", value.Int(1))
	rec.Set("a", value.Int(2))
	rec.Set("b", value.Int(3))

	assert.Equal(t, []string{"b", "a"}, rec.Names())
	v, ok := rec.Get("b")
	require.True(t, ok)
	assert.True(t, v.Equal(value.Int(3)))

	_, ok = rec.Get("missing")
	assert.False(t, ok)

	got, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t, `{"b":3,"a":2}`, string(got))
}
