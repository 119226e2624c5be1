// Package sheet provides the tabular store behind orders and the public ledger.
//
// A table is a grid whose first row holds column names. Callers resolve columns
// by name on every operation so that columns added or reordered by hand are
// tolerated.
package sheet

import (
	"context"
	"errors"
	"strings"
)

// ErrNoSheet is returned when a named table does not exist in the book.
var ErrNoSheet = errors.New("sheet: no such sheet")

// Table is a named grid. Row and column numbers are 1-based; row 1 is the header.
type Table interface {
	Name() string
	Rows(ctx context.Context) ([][]string, error)
	AppendRow(ctx context.Context, values []string) error
	SetCell(ctx context.Context, row, col int, value string) error
}

// Book opens tables by name.
type Book interface {
	Table(ctx context.Context, name string) (Table, error)
	EnsureTable(ctx context.Context, name string) (Table, error)
	Ping(ctx context.Context) error
}

// Columns maps trimmed header names to 0-based indexes. The first occurrence of
// a duplicated name wins.
type Columns map[string]int

// ReadColumns builds the name index for a header row.
func ReadColumns(header []string) Columns {
	cols := make(Columns, len(header))
	for i, name := range header {
		key := cleanHeader(name)
		if key == "" {
			continue
		}
		if _, exists := cols[key]; !exists {
			cols[key] = i
		}
	}
	return cols
}

// Index returns the 0-based column index for name.
func (c Columns) Index(name string) (int, bool) {
	i, ok := c[name]
	return i, ok
}

// Has reports whether every name is present.
func (c Columns) Has(names ...string) bool {
	return len(c.Missing(names...)) == 0
}

// Missing lists the names absent from the header, in the given order.
func (c Columns) Missing(names ...string) []string {
	var out []string
	for _, name := range names {
		if _, ok := c[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

// Get returns the trimmed cell for name, or "" when the column or cell is absent.
func (c Columns) Get(row []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Width is the number of cells needed to hold every known column.
func (c Columns) Width() int {
	width := 0
	for _, i := range c {
		if i+1 > width {
			width = i + 1
		}
	}
	return width
}

// Row lays values out by column name. Names without a column are dropped.
func (c Columns) Row(values map[string]string) []string {
	row := make([]string, c.Width())
	for name, value := range values {
		if i, ok := c[name]; ok {
			row[i] = value
		}
	}
	return row
}

// Snapshot is a point-in-time read of a table split into header and data rows.
type Snapshot struct {
	Columns Columns
	Header  []string
	Data    [][]string
}

// Ref converts a 0-based data index into the 1-based row number used by SetCell.
func (s Snapshot) Ref(i int) int {
	return i + 2
}

// Load reads a table once and resolves its header.
func Load(ctx context.Context, t Table) (Snapshot, error) {
	rows, err := t.Rows(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if len(rows) == 0 {
		return Snapshot{Columns: Columns{}}, nil
	}
	return Snapshot{Columns: ReadColumns(rows[0]), Header: rows[0], Data: rows[1:]}, nil
}

// EnsureHeaders makes sure every canonical column exists. An empty table is
// seeded with the canonical header row; otherwise only missing names are
// appended after the last existing column, preserving order and data.
func EnsureHeaders(ctx context.Context, t Table, canonical []string) (Columns, error) {
	rows, err := t.Rows(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		header := append([]string(nil), canonical...)
		if err := t.AppendRow(ctx, header); err != nil {
			return nil, err
		}
		return ReadColumns(header), nil
	}
	header := append([]string(nil), rows[0]...)
	cols := ReadColumns(header)
	for _, name := range cols.Missing(canonical...) {
		header = append(header, name)
		if err := t.SetCell(ctx, 1, len(header), name); err != nil {
			return nil, err
		}
	}
	return ReadColumns(header), nil
}

// SetField writes value into the named column of row. Absent columns are skipped.
func SetField(ctx context.Context, t Table, cols Columns, row int, name, value string) error {
	i, ok := cols.Index(name)
	if !ok {
		return nil
	}
	return t.SetCell(ctx, row, i+1, value)
}

func cleanHeader(name string) string {
	return strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF"))
}
