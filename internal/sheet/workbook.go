package sheet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/xuri/excelize/v2"
)

// Workbook is a Book persisted as an xlsx file. Every read and write holds the
// workbook mutex and each write is flushed to disk before returning, so cell
// writes are serialized across concurrent requests.
type Workbook struct {
	mu   sync.Mutex
	path string
	file *excelize.File
}

// OpenWorkbook opens the xlsx file at path, creating it when absent.
func OpenWorkbook(path string) (*Workbook, error) {
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat workbook: %w", err)
		}
		f := excelize.NewFile()
		if err := f.SaveAs(path); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("create workbook: %w", err)
		}
		return &Workbook{path: path, file: f}, nil
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	return &Workbook{path: path, file: f}, nil
}

// Close releases the underlying file handle.
func (w *Workbook) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

func (w *Workbook) Table(ctx context.Context, name string) (Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.hasSheet(name) {
		return nil, fmt.Errorf("%w: %s", ErrNoSheet, name)
	}
	return &xlsxTable{book: w, name: name}, nil
}

func (w *Workbook) EnsureTable(ctx context.Context, name string) (Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.hasSheet(name) {
		if _, err := w.file.NewSheet(name); err != nil {
			return nil, fmt.Errorf("new sheet %s: %w", name, err)
		}
		if err := w.file.SaveAs(w.path); err != nil {
			return nil, fmt.Errorf("save workbook: %w", err)
		}
	}
	return &xlsxTable{book: w, name: name}, nil
}

// Ping verifies the backing file is still reachable.
func (w *Workbook) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := os.Stat(w.path)
	return err
}

func (w *Workbook) hasSheet(name string) bool {
	idx, err := w.file.GetSheetIndex(name)
	return err == nil && idx >= 0
}

type xlsxTable struct {
	book *Workbook
	name string
}

func (t *xlsxTable) Name() string { return t.name }

func (t *xlsxTable) Rows(ctx context.Context) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.book.mu.Lock()
	defer t.book.mu.Unlock()
	rows, err := t.book.file.GetRows(t.name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", t.name, err)
	}
	return rows, nil
}

func (t *xlsxTable) AppendRow(ctx context.Context, values []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.book.mu.Lock()
	defer t.book.mu.Unlock()
	rows, err := t.book.file.GetRows(t.name)
	if err != nil {
		return fmt.Errorf("read %s: %w", t.name, err)
	}
	cell, err := excelize.CoordinatesToCellName(1, len(rows)+1)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := t.book.file.SetSheetRow(t.name, cell, &cells); err != nil {
		return fmt.Errorf("append %s: %w", t.name, err)
	}
	return t.book.file.SaveAs(t.book.path)
}

func (t *xlsxTable) SetCell(ctx context.Context, row, col int, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	t.book.mu.Lock()
	defer t.book.mu.Unlock()
	if err := t.book.file.SetCellStr(t.name, cell, value); err != nil {
		return fmt.Errorf("set %s!%s: %w", t.name, cell, err)
	}
	return t.book.file.SaveAs(t.book.path)
}
