package io

import (
	"encoding/csv"
	"errors"
	"fmt"
	stdio "io"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// InferCSVSchema samples up to maxRecords data records from r and widens each
// column through int64, float64, bool, timestamp and finally string. Empty
// values are treated as null and do not influence the type; a column that is
// empty throughout the sample becomes string.
func InferCSVSchema(r stdio.Reader, delimiter rune, hasHeader bool, maxRecords int) (*arrow.Schema, error) {
	rd := csv.NewReader(r)
	rd.Comma = delimiter
	rd.FieldsPerRecord = -1
	rd.ReuseRecord = true

	first, err := rd.Read()
	if errors.Is(err, stdio.EOF) {
		return nil, errors.New("empty CSV input")
	}
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	var headers []string
	var types []arrow.DataType
	if hasHeader {
		headers = append([]string(nil), first...)
		types = make([]arrow.DataType, len(headers))
	} else {
		headers = defaultColumnNames(len(first))
		types = make([]arrow.DataType, len(headers))
		observeRecord(types, first)
	}

	for n := 0; n < maxRecords; n++ {
		rec, err := rd.Read()
		if errors.Is(err, stdio.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				continue
			}
			return nil, err
		}
		observeRecord(types, rec)
	}

	fields := make([]arrow.Field, len(headers))
	for i, name := range headers {
		dt := types[i]
		if dt == nil {
			dt = arrow.BinaryTypes.String
		}
		fields[i] = arrow.Field{Name: name, Type: dt, Nullable: true}
	}
	return arrow.NewSchema(fields, nil), nil
}

func defaultColumnNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("column_%d", i)
	}
	return names
}

func observeRecord(types []arrow.DataType, rec []string) {
	for i, v := range rec {
		if i >= len(types) || v == "" {
			continue
		}
		types[i] = mergeArrowType(types[i], detectValueType(v))
	}
}

func detectValueType(v string) arrow.DataType {
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		return arrow.PrimitiveTypes.Int64
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return arrow.PrimitiveTypes.Float64
	}
	switch v {
	case "true", "false", "True", "False":
		return arrow.FixedWidthTypes.Boolean
	}
	for _, layout := range timestampLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return arrow.FixedWidthTypes.Timestamp_us
		}
	}
	return arrow.BinaryTypes.String
}

func mergeArrowType(a, b arrow.DataType) arrow.DataType {
	if a == nil {
		return b
	}
	if b == nil || arrow.TypeEqual(a, b) {
		return a
	}
	if isIntOrFloat(a) && isIntOrFloat(b) {
		return arrow.PrimitiveTypes.Float64
	}
	return arrow.BinaryTypes.String
}

func isIntOrFloat(dt arrow.DataType) bool {
	return dt.ID() == arrow.INT64 || dt.ID() == arrow.FLOAT64
}
