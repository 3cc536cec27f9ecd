package value

import "bytes"

// Field is one named cell of a Record.
type Field struct {
	Name  string
	Value Value
}

// Record is an ordered mapping from column name to Value. Field order is
// insertion order and is preserved in JSON.
type Record struct {
	fields []Field
}

// NewRecord allocates a record with room for n fields.
func NewRecord(n int) *Record {
	return &Record{fields: make([]Field, 0, n)}
}

// Set appends name, or replaces its value in place when already present.
func (r *Record) Set(name string, v Value) {
	for i := range r.fields {
		if r.fields[i].Name == name {
			r.fields[i].Value = v
			return
		}
	}
	r.fields = append(r.fields, Field{Name: name, Value: v})
}

// Append adds a field without checking for duplicates. Loaders use it when
// names are already known to be unique.
func (r *Record) Append(name string, v Value) {
	r.fields = append(r.fields, Field{Name: name, Value: v})
}

// Get returns the value stored under name.
func (r *Record) Get(name string) (Value, bool) {
	if r == nil {
		return Value{}, false
	}
	for _, f := range r.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Len returns the number of fields.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.fields)
}

// Fields returns the fields in order. The slice must not be modified.
func (r *Record) Fields() []Field {
	if r == nil {
		return nil
	}
	return r.fields
}

// Names returns the field names in order.
func (r *Record) Names() []string {
	names := make([]string, 0, r.Len())
	for _, f := range r.Fields() {
		names = append(names, f.Name)
	}
	return names
}

// Equal reports whether both records hold the same fields in the same order.
func (r *Record) Equal(o *Record) bool {
	if r.Len() != o.Len() {
		return false
	}
	of := o.Fields()
	for i, f := range r.Fields() {
		if f.Name != of[i].Name || !f.Value.Equal(of[i].Value) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the record as a JSON object in field order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := r.appendJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *Record) appendJSON(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	for i, f := range r.Fields() {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSONString(buf, f.Name); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := f.Value.appendJSON(buf); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}
