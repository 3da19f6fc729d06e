package sheets

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/finsheet/fieldmap/pkg/errors"
)

// Memory is an in-memory ReadWriter used in tests and dry runs. Writes
// are staged like the workbook implementation and only become readable
// after Flush, mirroring the all-or-nothing contract.
type Memory struct {
	mu      sync.Mutex
	cells   map[string]map[[2]int]any
	pending []cellWrite
}

// NewMemory creates an empty in-memory store with the given sheets.
func NewMemory(sheetNames ...string) *Memory {
	cells := make(map[string]map[[2]int]any, len(sheetNames))
	for _, name := range sheetNames {
		cells[name] = make(map[[2]int]any)
	}
	return &Memory{cells: cells}
}

// Set places a value directly, bypassing the staging buffer. Intended for
// test fixture setup.
func (m *Memory) Set(sheet string, row, col int, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cells[sheet] == nil {
		m.cells[sheet] = make(map[[2]int]any)
	}
	m.cells[sheet][[2]int{row, col}] = value
}

// Read returns the cell value, "" for an empty cell.
func (m *Memory) Read(sheet string, row, col int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cells, ok := m.cells[sheet]
	if !ok {
		return "", &errors.SourceNotFoundError{Sheet: sheet, Row: row, Col: col}
	}
	value, ok := cells[[2]int{row, col}]
	if !ok {
		return "", nil
	}
	return fmt.Sprintf("%v", value), nil
}

// Write stages a cell write.
func (m *Memory) Write(sheet string, row, col int, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.cells[sheet]; !ok {
		return &errors.SourceNotFoundError{Sheet: sheet, Row: row, Col: col}
	}
	m.pending = append(m.pending, cellWrite{sheet: sheet, row: row, col: col, value: value})
	return nil
}

// Pending returns the number of staged writes.
func (m *Memory) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Flush applies every staged write. The path is ignored; the store has
// no backing artifact.
func (m *Memory) Flush(string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, cw := range m.pending {
		m.cells[cw.sheet][[2]int{cw.row, cw.col}] = cw.value
	}
	m.pending = nil
	return nil
}

// Sheets lists the store's sheet names in sorted order.
func (m *Memory) Sheets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.cells))
	for name := range m.cells {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasSheet reports whether the named sheet exists, matching the
// workbook's case-insensitive contract.
func (m *Memory) HasSheet(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for s := range m.cells {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}
