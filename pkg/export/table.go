// Package export renders article listings as downloadable files.
package export

import (
	"errors"
	"fmt"
)

// Column is a table column. Weight sets its share of the page width in PDF output; zero counts as 1.
type Column struct {
	Name   string
	Weight float64
}

// Table is tabular export content. Each row holds one cell per column.
type Table struct {
	Title   string
	Columns []Column
	Rows    [][]string
}

// Renderer turns a Table into file bytes.
type Renderer interface {
	Render(t Table) ([]byte, error)
	ContentType() string
	Extension() string
}

var errNoColumns = errors.New("export table has no columns")

func (t Table) validate() error {
	if len(t.Columns) == 0 {
		return errNoColumns
	}
	for i, row := range t.Rows {
		if len(row) > len(t.Columns) {
			return fmt.Errorf("row %d has %d cells for %d columns", i, len(row), len(t.Columns))
		}
	}
	return nil
}

func (t Table) headers() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// cell returns the value at col, or "" for short rows.
func cell(row []string, col int) string {
	if col < len(row) {
		return row[col]
	}
	return ""
}
