// Package etl turns Planning Center's linked-resource JSON into flat,
// SQL-ready tables: flattening, timestamp normalization, derived columns,
// nested-value coercion, link explosion, enrichment joins, and column type
// inference.
package etl

import (
	"sort"
)

// Row is one flat record: column name to scalar value. Nested structures are
// stored as their canonical JSON string encoding. A missing key reads as
// null for that row.
type Row map[string]any

// Table is a named, ordered collection of rows. The column set is the union
// of all row keys; later rows may introduce columns that earlier rows lack.
type Table struct {
	Name string
	Rows []Row

	colOrder []string
	colSeen  map[string]bool
}

// NewTable creates an empty table.
func NewTable(name string) *Table {
	return &Table{Name: name, colSeen: map[string]bool{}}
}

// AppendRow adds a row, registering any columns not seen before. New columns
// within one row are registered in sorted order so the overall column order
// is deterministic.
func (t *Table) AppendRow(row Row) {
	if t.colSeen == nil {
		t.colSeen = map[string]bool{}
	}

	var added []string
	for col := range row {
		if !t.colSeen[col] {
			t.colSeen[col] = true
			added = append(added, col)
		}
	}
	sort.Strings(added)
	t.colOrder = append(t.colOrder, added...)

	t.Rows = append(t.Rows, row)
}

// AppendRows adds rows in order.
func (t *Table) AppendRows(rows []Row) {
	for _, row := range rows {
		t.AppendRow(row)
	}
}

// Columns returns the column set in first-seen order.
func (t *Table) Columns() []string {
	return t.colOrder
}

// HasColumn reports whether any row carries the column.
func (t *Table) HasColumn(name string) bool {
	return t.colSeen[name]
}

// Len returns the row count.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool {
	return len(t.Rows) == 0
}

// SetColumn assigns the same value to a column on every row.
func (t *Table) SetColumn(name string, value any) {
	if !t.colSeen[name] {
		if t.colSeen == nil {
			t.colSeen = map[string]bool{}
		}
		t.colSeen[name] = true
		t.colOrder = append(t.colOrder, name)
	}
	for _, row := range t.Rows {
		row[name] = value
	}
}

// registerColumn adds a column to the registry without touching rows.
func (t *Table) registerColumn(name string) {
	if t.colSeen == nil {
		t.colSeen = map[string]bool{}
	}
	if !t.colSeen[name] {
		t.colSeen[name] = true
		t.colOrder = append(t.colOrder, name)
	}
}

// sampleColumn returns up to limit non-null values of a column in row order.
func (t *Table) sampleColumn(name string, limit int) []any {
	var sample []any
	for _, row := range t.Rows {
		v, ok := row[name]
		if !ok || v == nil {
			continue
		}
		sample = append(sample, v)
		if len(sample) >= limit {
			break
		}
	}
	return sample
}

// replaceRows swaps the row set, rebuilding column registration from the new
// rows. Used by transforms that drop or multiply rows.
func (t *Table) replaceRows(rows []Row) {
	t.Rows = nil
	t.colOrder = nil
	t.colSeen = map[string]bool{}
	t.AppendRows(rows)
}
