package sheet

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process Book used by tests and ephemeral runs.
type Memory struct {
	mu     sync.Mutex
	tables map[string]*memTable
}

// NewMemory constructs an empty in-memory book.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string]*memTable)}
}

// Seed creates or replaces a table with the given rows.
func (m *Memory) Seed(name string, rows ...[]string) Table {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &memTable{name: name}
	for _, r := range rows {
		t.rows = append(t.rows, append([]string(nil), r...))
	}
	m.tables[name] = t
	return t
}

func (m *Memory) Table(_ context.Context, name string) (Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSheet, name)
	}
	return t, nil
}

func (m *Memory) EnsureTable(_ context.Context, name string) (Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[name]
	if !ok {
		t = &memTable{name: name}
		m.tables[name] = t
	}
	return t, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

type memTable struct {
	mu   sync.Mutex
	name string
	rows [][]string
}

func (t *memTable) Name() string { return t.name }

func (t *memTable) Rows(context.Context) ([][]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]string, len(t.rows))
	for i, r := range t.rows {
		out[i] = append([]string(nil), r...)
	}
	return out, nil
}

func (t *memTable) AppendRow(_ context.Context, values []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows = append(t.rows, append([]string(nil), values...))
	return nil
}

func (t *memTable) SetCell(_ context.Context, row, col int, value string) error {
	if row < 1 || col < 1 {
		return fmt.Errorf("sheet: invalid cell %d,%d", row, col)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for len(t.rows) < row {
		t.rows = append(t.rows, nil)
	}
	r := t.rows[row-1]
	for len(r) < col {
		r = append(r, "")
	}
	r[col-1] = value
	t.rows[row-1] = r
	return nil
}
