// Package sheets is the spreadsheet capability the mapping core depends
// on: synchronous cell reads and writes addressed by (sheet, row, column).
// Format preservation and workbook parsing are entirely this package's
// concern; the core never sees a file format.
//
// Writes are buffered in memory and flushed atomically at job end, so a
// canceled job never leaves a partially written destination artifact.
package sheets

import (
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/finsheet/fieldmap/pkg/errors"
)

// Reader reads a single cell value. Empty cells return "".
type Reader interface {
	Read(sheet string, row, col int) (string, error)
}

// Writer stages a single cell write. Staged writes become visible in the
// destination artifact only on Flush.
type Writer interface {
	Write(sheet string, row, col int, value any) error
}

// ReadWriter combines cell access with sheet enumeration.
type ReadWriter interface {
	Reader
	Writer

	// Sheets lists the workbook's sheet names.
	Sheets() []string

	// HasSheet reports whether the named sheet exists.
	HasSheet(name string) bool
}

// Flusher commits staged writes to a destination artifact.
type Flusher interface {
	// Flush applies every staged write and persists the workbook.
	Flush(path string) error

	// Pending returns the number of staged writes.
	Pending() int
}

// Workbook wraps an xlsx file behind the capability interfaces.
type Workbook struct {
	path string

	mu      sync.Mutex
	file    *excelize.File
	pending []cellWrite
}

type cellWrite struct {
	sheet string
	row   int
	col   int
	value any
}

// Open loads a workbook from disk.
func Open(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.WrapIO("open", path, err)
	}
	return &Workbook{path: path, file: f}, nil
}

// Read returns the cell value at (sheet, row, col), 1-based.
func (w *Workbook) Read(sheet string, row, col int) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return "", errors.WrapIO("read", w.path, err)
	}
	value, err := w.file.GetCellValue(sheet, cell)
	if err != nil {
		return "", &errors.SourceNotFoundError{Sheet: sheet, Row: row, Col: col, Err: err}
	}
	return value, nil
}

// Write stages a cell write. Nothing touches the file until Flush.
func (w *Workbook) Write(sheet string, row, col int, value any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.hasSheetLocked(sheet) {
		return &errors.SourceNotFoundError{Sheet: sheet, Row: row, Col: col}
	}
	w.pending = append(w.pending, cellWrite{sheet: sheet, row: row, col: col, value: value})
	return nil
}

// Pending returns the number of staged writes.
func (w *Workbook) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Flush applies every staged write and saves the workbook to path in one
// commit. On any error the file on disk is left untouched and the staged
// writes are retained.
func (w *Workbook) Flush(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, cw := range w.pending {
		cell, err := excelize.CoordinatesToCellName(cw.col, cw.row)
		if err != nil {
			return errors.WrapIO("write", path, err)
		}
		// Decimals go through SetCellDefault so the cell stays numeric
		// without a float64 round-trip losing precision.
		switch v := cw.value.(type) {
		case decimal.Decimal:
			err = w.file.SetCellDefault(cw.sheet, cell, v.String())
		default:
			err = w.file.SetCellValue(cw.sheet, cell, cw.value)
		}
		if err != nil {
			return errors.WrapIO("write", path, err)
		}
	}
	if err := w.file.SaveAs(path); err != nil {
		return errors.WrapIO("save", path, err)
	}
	w.pending = nil
	return nil
}

// Sheets lists the workbook's sheet names.
func (w *Workbook) Sheets() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.GetSheetList()
}

// HasSheet reports whether the named sheet exists.
func (w *Workbook) HasSheet(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hasSheetLocked(name)
}

func (w *Workbook) hasSheetLocked(name string) bool {
	for _, s := range w.file.GetSheetList() {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

// Close releases the underlying file without flushing staged writes.
func (w *Workbook) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// ColumnName converts a 1-based column number to its spreadsheet letter
// form ("C" for 3). Invalid columns render as an empty string.
func ColumnName(col int) string {
	name, err := excelize.ColumnNumberToName(col)
	if err != nil {
		return ""
	}
	return name
}

// ColumnIndex converts a spreadsheet column reference to its 1-based
// number. Both letter form ("C") and numeric form ("3") are accepted.
func ColumnIndex(name string) (int, error) {
	s := strings.TrimSpace(name)
	if s == "" {
		return 0, errors.NewConfigError("layout", "empty column reference", nil)
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 {
			return 0, errors.NewConfigError("layout", "column numbers are 1-based", nil)
		}
		return n, nil
	}
	n, err := excelize.ColumnNameToNumber(strings.ToUpper(s))
	if err != nil {
		return 0, errors.NewConfigError("layout", "invalid column reference "+name, err)
	}
	return n, nil
}
