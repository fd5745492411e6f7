package domain

import (
	"strconv"
	"strings"
)

type Row struct {
	ID     string
	Text   string
	Index  int
	Values map[string]string
}

type Table struct {
	Headers   []string
	Rows      []*Row
	Delimiter rune
}

func (t *Table) HasColumn(name string) bool {
	for _, h := range t.Headers {
		if h == name {
			return true
		}
	}
	return false
}

// EnsureColumn appends the header when absent and reports whether it was added.
func (t *Table) EnsureColumn(name string) bool {
	if t.HasColumn(name) {
		return false
	}
	t.Headers = append(t.Headers, name)
	return true
}

// Set copies a resolved value into the row's output cells.
func (t *Table) Set(row *Row, column, value string) {
	if row.Values == nil {
		row.Values = make(map[string]string, len(t.Headers))
	}
	row.Values[column] = value
}

// Record returns the row cells in header order.
func (t *Table) Record(row *Row) []string {
	out := make([]string, len(t.Headers))
	for i, h := range t.Headers {
		out[i] = row.Values[h]
	}
	return out
}

// BindColumns fills Row.ID and Row.Text from the identifier and text columns.
// Rows without an identifier fall back to their zero-based position.
func (t *Table) BindColumns(idColumn, textColumn string) {
	for _, row := range t.Rows {
		id := strings.TrimSpace(row.Values[idColumn])
		if idColumn == "" || !t.HasColumn(idColumn) || id == "" {
			id = strconv.Itoa(row.Index)
		}
		row.ID = id
		row.Text = row.Values[textColumn]
	}
}

type Batch struct {
	Number int
	Rows   []*Row
}

// Partition slices rows into consecutive batches of at most size rows.
// Batch numbers start at 1.
func Partition(rows []*Row, size int) []Batch {
	if size <= 0 {
		size = 1
	}
	out := make([]Batch, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, Batch{Number: len(out) + 1, Rows: rows[start:end]})
	}
	return out
}
