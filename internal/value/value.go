// Package value defines the tagged cell value that crosses the viewer's data boundary.
package value

import (
	"bytes"
	"encoding/base64"
	"math"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindArray
	KindObject
)

// MaxSafeInteger is the largest integer a JSON consumer can hold without loss.
const MaxSafeInteger = 1<<53 - 1

var kindNames = [...]string{"null", "bool", "int", "float", "string", "bytes", "array", "object"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Value is a single cell. The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	raw  []byte
	arr  []Value
	obj  *Record
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer value. Callers holding values that may exceed
// MaxSafeInteger should use SafeInt.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// SafeInt returns an Int when |i| <= MaxSafeInteger and a decimal String otherwise.
func SafeInt(i int64) Value {
	if i > MaxSafeInteger || i < -MaxSafeInteger {
		return String(strconv.FormatInt(i, 10))
	}
	return Int(i)
}

// SafeUint is SafeInt for unsigned inputs.
func SafeUint(u uint64) Value {
	if u > MaxSafeInteger {
		return String(strconv.FormatUint(u, 10))
	}
	return Int(int64(u))
}

// Float returns a float value. NaN and infinities become Null.
func Float(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Null()
	}
	return Value{kind: KindFloat, f: f}
}

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Bytes returns a binary value, encoded as base64 in JSON.
func Bytes(b []byte) Value { return Value{kind: KindBytes, raw: b} }

// Array returns a list value.
func Array(items []Value) Value { return Value{kind: KindArray, arr: items} }

// Object returns a struct value with ordered fields.
func Object(rec *Record) Value {
	if rec == nil {
		rec = NewRecord(0)
	}
	return Value{kind: KindObject, obj: rec}
}

// Kind reports the variant.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is Null.
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool)     { return v.b, v.kind == KindBool }
func (v Value) AsInt() (int64, bool)     { return v.i, v.kind == KindInt }
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }
func (v Value) AsBytes() ([]byte, bool)  { return v.raw, v.kind == KindBytes }
func (v Value) AsArray() ([]Value, bool) { return v.arr, v.kind == KindArray }
func (v Value) AsObject() (*Record, bool) {
	return v.obj, v.kind == KindObject
}

// Numeric returns the value as a finite float64. Numbers qualify directly,
// strings qualify when they parse as float64 after trimming.
func (v Value) Numeric() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// IsBlank reports whether the value counts as empty for column detection:
// Null, or a string that is empty after trimming whitespace.
func (v Value) IsBlank() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return strings.TrimSpace(v.s) == ""
	default:
		return false
	}
}

// Equal reports deep equality.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindBytes:
		return bytes.Equal(v.raw, o.raw)
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		return v.obj.Equal(o.obj)
	}
	return false
}

// MarshalJSON encodes the value as its natural JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.appendJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) appendJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		buf.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
	case KindString:
		return writeJSONString(buf, v.s)
	case KindBytes:
		return writeJSONString(buf, base64.StdEncoding.EncodeToString(v.raw))
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.appendJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		return v.obj.appendJSON(buf)
	}
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	enc, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(enc)
	return nil
}
