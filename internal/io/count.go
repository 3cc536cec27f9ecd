package io

import (
	"io"
)

// CountRows counts CSV data rows in content. Newlines inside double quotes
// are not row breaks, a trailing line without newline still counts, and the
// header line is excluded.
func CountRows(content []byte) uint64 {
	var c rowCounter
	c.feed(content)
	return c.rows()
}

// CountRowsReader counts data rows from r. A read error yields (0, err);
// partial counts are never returned.
func CountRowsReader(r io.Reader) (uint64, error) {
	var c rowCounter
	buf := make([]byte, 256*1024)
	for {
		n, err := r.Read(buf)
		c.feed(buf[:n])
		if err == io.EOF {
			return c.rows(), nil
		}
		if err != nil {
			return 0, err
		}
	}
}

type rowCounter struct {
	lines    uint64
	inQuotes bool
	seen     bool
	lastNL   bool
}

func (c *rowCounter) feed(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	c.seen = true
	for _, b := range chunk {
		switch b {
		case '"':
			c.inQuotes = !c.inQuotes
		case '\n':
			if !c.inQuotes {
				c.lines++
			}
		}
	}
	c.lastNL = chunk[len(chunk)-1] == '\n'
}

func (c *rowCounter) rows() uint64 {
	lines := c.lines
	if c.seen && !c.lastNL {
		lines++
	}
	if lines == 0 {
		return 0
	}
	return lines - 1
}
