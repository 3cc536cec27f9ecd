package io

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/paveg/datascope/internal/value"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05.999999999"
)

// ColumnValues converts rows [lo, hi) of arr.
func ColumnValues(arr arrow.Array, lo, hi int) []value.Value {
	out := make([]value.Value, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, ArrayValue(arr, i))
	}
	return out
}

// ArrayValue converts the cell at index i of arr to a viewer value.
func ArrayValue(arr arrow.Array, i int) value.Value {
	if arr.IsNull(i) {
		return value.Null()
	}

	switch a := arr.(type) {
	case *array.Null:
		return value.Null()
	case *array.Boolean:
		return value.Bool(a.Value(i))
	case *array.Int8:
		return value.Int(int64(a.Value(i)))
	case *array.Int16:
		return value.Int(int64(a.Value(i)))
	case *array.Int32:
		return value.Int(int64(a.Value(i)))
	case *array.Int64:
		return value.SafeInt(a.Value(i))
	case *array.Uint8:
		return value.Int(int64(a.Value(i)))
	case *array.Uint16:
		return value.Int(int64(a.Value(i)))
	case *array.Uint32:
		return value.Int(int64(a.Value(i)))
	case *array.Uint64:
		return value.SafeUint(a.Value(i))
	case *array.Float16:
		return value.Float(float64(a.Value(i).Float32()))
	case *array.Float32:
		return value.Float(float64(a.Value(i)))
	case *array.Float64:
		return value.Float(a.Value(i))
	case *array.String:
		return value.String(strings.Clone(a.Value(i)))
	case *array.LargeString:
		return value.String(strings.Clone(a.Value(i)))
	case *array.Binary:
		return value.Bytes(append([]byte(nil), a.Value(i)...))
	case *array.LargeBinary:
		return value.Bytes(append([]byte(nil), a.Value(i)...))
	case *array.FixedSizeBinary:
		return value.Bytes(append([]byte(nil), a.Value(i)...))
	case *array.Date32:
		return value.String(a.Value(i).ToTime().UTC().Format(dateLayout))
	case *array.Date64:
		return value.String(a.Value(i).ToTime().UTC().Format(dateLayout))
	case *array.Timestamp:
		return timestampValue(a, i)
	case *array.Time32:
		unit := a.DataType().(*arrow.Time32Type).Unit
		return value.String(a.Value(i).ToTime(unit).UTC().Format(timeLayout))
	case *array.Time64:
		unit := a.DataType().(*arrow.Time64Type).Unit
		return value.String(a.Value(i).ToTime(unit).UTC().Format(timeLayout))
	case *array.Duration:
		unit := a.DataType().(*arrow.DurationType).Unit
		return durationValue(int64(a.Value(i)), unit)
	case *array.Decimal128:
		scale := a.DataType().(*arrow.Decimal128Type).Scale
		return value.String(a.Value(i).ToString(scale))
	case *array.Decimal256:
		scale := a.DataType().(*arrow.Decimal256Type).Scale
		return value.String(a.Value(i).ToString(scale))
	case *array.Map:
		return mapValue(a, i)
	case array.ListLike:
		start, end := a.ValueOffsets(i)
		return value.Array(ColumnValues(a.ListValues(), int(start), int(end)))
	case *array.Struct:
		return structValue(a, i)
	case *array.Dictionary:
		return ArrayValue(a.Dictionary(), a.GetValueIndex(i))
	default:
		return value.String(arr.ValueStr(i))
	}
}

func timestampValue(a *array.Timestamp, i int) value.Value {
	unit := a.DataType().(*arrow.TimestampType).Unit
	raw := a.Value(i)
	t := raw.ToTime(unit).UTC()
	if t.Year() < 0 || t.Year() > 9999 {
		return value.SafeInt(int64(raw))
	}
	return value.String(t.Format(time.RFC3339Nano))
}

// durationValue renders an ISO-8601 duration such as PT1.5S. Values whose
// nanosecond form overflows int64 fall back to the raw count.
func durationValue(raw int64, unit arrow.TimeUnit) value.Value {
	mult := int64(unit.Multiplier())
	if raw != 0 && (raw > math.MaxInt64/mult || raw < math.MinInt64/mult) {
		return value.SafeInt(raw)
	}
	nanos := raw * mult

	var b strings.Builder
	if nanos < 0 {
		b.WriteByte('-')
	}
	b.WriteString("PT")
	abs := uint64(nanos)
	if nanos < 0 {
		abs = uint64(-(nanos + 1)) + 1
	}
	b.WriteString(strconv.FormatUint(abs/1e9, 10))
	if frac := abs % 1e9; frac != 0 {
		digits := strconv.FormatUint(frac+1e9, 10)[1:]
		b.WriteByte('.')
		b.WriteString(strings.TrimRight(digits, "0"))
	}
	b.WriteByte('S')
	return value.String(b.String())
}

func mapValue(a *array.Map, i int) value.Value {
	start, end := a.ValueOffsets(i)
	keys, items := a.Keys(), a.Items()
	entries := make([]value.Value, 0, end-start)
	for j := int(start); j < int(end); j++ {
		entry := value.NewRecord(2)
		entry.Append("key", ArrayValue(keys, j))
		entry.Append("value", ArrayValue(items, j))
		entries = append(entries, value.Object(entry))
	}
	return value.Array(entries)
}

func structValue(a *array.Struct, i int) value.Value {
	st := a.DataType().(*arrow.StructType)
	rec := value.NewRecord(a.NumField())
	for f := 0; f < a.NumField(); f++ {
		rec.Set(st.Field(f).Name, ArrayValue(a.Field(f), i))
	}
	return value.Object(rec)
}

// isNumericType reports whether values of dt map to JSON numbers.
func isNumericType(dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64,
		arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64,
		arrow.DECIMAL128, arrow.DECIMAL256:
		return true
	case arrow.DICTIONARY:
		return isNumericType(dt.(*arrow.DictionaryType).ValueType)
	default:
		return false
	}
}
