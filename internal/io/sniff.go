package io

import (
	"bytes"
	"errors"
	"io"
	"os"
	"unicode/utf8"

	dserrors "github.com/paveg/datascope/internal/errors"
)

// candidateDelimiters are evaluated in order; a later candidate must be
// strictly more frequent to win.
var candidateDelimiters = []byte{',', '\t', ';', '|'}

// DetectDelimiter picks the delimiter from the first line of sample. Ties and
// a line with no candidates resolve to a comma.
func DetectDelimiter(sample []byte) rune {
	return DetectDelimiterLimit(sample, DefaultSniffBytes)
}

// DetectDelimiterLimit is DetectDelimiter inspecting at most limit bytes.
// A non-positive limit inspects DefaultSniffBytes.
func DetectDelimiterLimit(sample []byte, limit int) rune {
	if limit <= 0 {
		limit = DefaultSniffBytes
	}
	if len(sample) > limit {
		sample = sample[:limit]
	}
	line := sample
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = bytes.TrimSuffix(line, []byte{'\r'})

	best, bestCount := byte(','), 0
	for _, c := range candidateDelimiters {
		if n := bytes.Count(line, []byte{c}); n > bestCount {
			best, bestCount = c, n
		}
	}
	return rune(best)
}

// SniffFile reads at most the first DefaultSniffBytes of path and detects its
// delimiter.
func SniffFile(path string) (rune, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, dserrors.NewIOError("SniffFile", path, err)
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, DefaultSniffBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return 0, dserrors.NewIOError("SniffFile", path, err)
	}
	return DetectDelimiter(buf[:n]), nil
}

// ValidDelimiter reports whether d can be used as a CSV field separator.
func ValidDelimiter(d rune) bool {
	return d != 0 && d != '"' && d != '\r' && d != '\n' && d != utf8.RuneError && utf8.ValidRune(d)
}
