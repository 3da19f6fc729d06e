// Package fields defines the field snapshot model the mapping engine works
// over: field identity, display labels, hierarchical scope paths, and known
// numeric values keyed by reference period. Snapshots are taken once per job
// from the spreadsheet capability and are read-only afterwards.
package fields

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Ref identifies a field by its sheet and row locator.
type Ref struct {
	Sheet string
	Row   int
}

// String returns the canonical "Sheet!Row" form of the reference.
func (r Ref) String() string {
	return fmt.Sprintf("%s!%d", r.Sheet, r.Row)
}

// Less orders references by sheet, then row. Used for deterministic
// tie-breaking throughout the pipeline.
func (r Ref) Less(other Ref) bool {
	if r.Sheet != other.Sheet {
		return r.Sheet < other.Sheet
	}
	return r.Row < other.Row
}

// Category is the declared category tag of a field.
type Category string

// Known field categories.
const (
	CategoryNone       Category = ""
	CategoryRevenue    Category = "revenue"
	CategoryGeographic Category = "geographic"
	CategoryProduct    Category = "product"
	CategoryFinancial  Category = "financial"
	CategoryPercentage Category = "percentage"
)

// Field is a single line item snapshot.
type Field struct {
	Ref      Ref
	Label    string
	Sections []string // ancestor section labels, top-down
	Scope    Path
	Category Category

	// Values holds known numeric values keyed by reference period,
	// e.g. "Q1-2024". Populated from the spreadsheet snapshot.
	Values map[string]decimal.Decimal
}

// Value returns the field's value at the given reference period.
func (f *Field) Value(period string) (decimal.Decimal, bool) {
	v, ok := f.Values[period]
	return v, ok
}

// Section returns the innermost section label, or "" for a top-level field.
func (f *Field) Section() string {
	if len(f.Sections) == 0 {
		return ""
	}
	return f.Sections[len(f.Sections)-1]
}

// Snapshot is an immutable collection of fields from one workbook side.
type Snapshot struct {
	fields []Field
	byRef  map[Ref]int
}

// NewSnapshot builds a snapshot from a field slice. Fields are kept in a
// deterministic order (sheet, then row) regardless of input order.
func NewSnapshot(fs []Field) *Snapshot {
	sorted := make([]Field, len(fs))
	copy(sorted, fs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Ref.Less(sorted[j].Ref)
	})

	byRef := make(map[Ref]int, len(sorted))
	for i := range sorted {
		byRef[sorted[i].Ref] = i
	}
	return &Snapshot{fields: sorted, byRef: byRef}
}

// Len returns the number of fields in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.fields)
}

// List returns the snapshot's fields in deterministic order.
// The returned slice must not be modified.
func (s *Snapshot) List() []Field {
	return s.fields
}

// Get looks up a field by reference.
func (s *Snapshot) Get(ref Ref) (*Field, bool) {
	i, ok := s.byRef[ref]
	if !ok {
		return nil, false
	}
	return &s.fields[i], true
}

// SameSection returns the fields sharing the given field's sheet and
// innermost section, excluding the field itself.
func (s *Snapshot) SameSection(f *Field) []Field {
	section := f.Section()
	var out []Field
	for i := range s.fields {
		other := &s.fields[i]
		if other.Ref == f.Ref {
			continue
		}
		if other.Ref.Sheet == f.Ref.Sheet && other.Section() == section {
			out = append(out, *other)
		}
	}
	return out
}
