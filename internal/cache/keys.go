package cache

import (
	"slices"
	"strconv"
	"strings"
)

// CSVPageKey keys CSV pages by page index alone.
func CSVPageKey(pageIndex int) string {
	return strconv.Itoa(pageIndex)
}

// ParquetPageKey keys Parquet pages by index, range and projection. The
// projection is sorted and deduplicated so column order does not matter. Each
// name is written length-prefixed ("<len>:<name>") so names containing the
// separator cannot collide; an empty projection means all columns and renders
// as "*".
func ParquetPageKey(pageIndex int, startRow, rowCount uint64, columns []string) string {
	var b strings.Builder
	b.Grow(32 + 4*len(columns))
	b.WriteString("p=")
	b.WriteString(strconv.Itoa(pageIndex))
	b.WriteString(";s=")
	b.WriteString(strconv.FormatUint(startRow, 10))
	b.WriteString(";n=")
	b.WriteString(strconv.FormatUint(rowCount, 10))
	b.WriteString(";c=")

	if len(columns) == 0 {
		b.WriteString("*")
		return b.String()
	}
	sorted := slices.Clone(columns)
	slices.Sort(sorted)
	for i, c := range slices.Compact(sorted) {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(len(c)))
		b.WriteByte(':')
		b.WriteString(c)
	}
	return b.String()
}

// ThumbnailKey keys thumbnails by page index.
func ThumbnailKey(pageIndex int) string {
	return strconv.Itoa(pageIndex)
}
