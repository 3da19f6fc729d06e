// Package rules loads and validates the mapping rule table: the durable,
// row-oriented contract between a human- or AI-curated mapping and the
// transformation executor. Malformed rows, unknown tags, and references to
// nonexistent sheets are configuration errors that abort a job before
// execution begins.
package rules

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/finsheet/fieldmap/pkg/errors"
	"github.com/finsheet/fieldmap/pkg/fields"
	"github.com/finsheet/fieldmap/pkg/mapping"
)

// Header is the canonical column order of a rule table.
var Header = []string{
	"Dest_Row",
	"Dest_Field_Name",
	"Dest_Section",
	"Source_Sheet",
	"Source_Rows",
	"Source_Field_Name",
	"Source_Value_Column",
	"Match_Method",
	"Transformation",
	"Match_Confidence",
	"Verification",
	"Note",
}

// Row is one validated mapping rule.
type Row struct {
	DestRow     int
	DestLabel   string
	DestSection string
	SourceSheet string
	SourceRows  []int // one entry, or several for a composite locator
	SourceLabel string
	ValueColumn int // 1-based source value column
	Method      mapping.Method
	Transform   mapping.Transformation
	Confidence  float64
	Verified    string
	Note        string
}

// Sources returns the rule's source references.
func (r Row) Sources() []fields.Ref {
	refs := make([]fields.Ref, len(r.SourceRows))
	for i, row := range r.SourceRows {
		refs[i] = fields.Ref{Sheet: r.SourceSheet, Row: row}
	}
	return refs
}

// Table is a loaded rule table.
type Table struct {
	Rows []Row
}

// LoadFile reads and validates a rule table from a CSV file.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapIO("open", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads and validates a rule table. The header row is required and
// checked column-by-column; every data row is validated before any row is
// accepted, so a malformed table never half-loads.
func Load(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(Header)

	header, err := reader.Read()
	if err != nil {
		return nil, errors.NewConfigError("rules", "missing header row", err)
	}
	for i, want := range Header {
		if !strings.EqualFold(strings.TrimSpace(header[i]), want) {
			return nil, errors.NewConfigError("rules",
				fmt.Sprintf("header column %d is %q, want %q", i+1, header[i], want), nil)
		}
	}

	table := &Table{}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &errors.ConfigError{Component: "rules", Row: line, Message: "malformed CSV row", Err: err}
		}
		row, err := parseRow(record, line)
		if err != nil {
			return nil, err
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// parseRow validates a single record against the schema.
func parseRow(record []string, line int) (Row, error) {
	fail := func(msg string, err error) (Row, error) {
		return Row{}, &errors.ConfigError{Component: "rules", Row: line, Message: msg, Err: err}
	}

	destRow, err := strconv.Atoi(strings.TrimSpace(record[0]))
	if err != nil || destRow < 1 {
		return fail(fmt.Sprintf("invalid destination row %q", record[0]), err)
	}

	sourceSheet := strings.TrimSpace(record[3])
	if sourceSheet == "" {
		return fail("source sheet is required", nil)
	}

	sourceRows, err := parseLocators(record[4])
	if err != nil {
		return fail(fmt.Sprintf("invalid source locator %q", record[4]), err)
	}

	valueCol, err := parseColumn(record[6])
	if err != nil {
		return fail(fmt.Sprintf("invalid source value column %q", record[6]), err)
	}

	method, err := mapping.ParseMethod(strings.TrimSpace(record[7]))
	if err != nil {
		return Row{}, err
	}

	sourceRefs := make([]fields.Ref, len(sourceRows))
	for i, r := range sourceRows {
		sourceRefs[i] = fields.Ref{Sheet: sourceSheet, Row: r}
	}
	transform, err := mapping.ParseTransformation(strings.TrimSpace(record[8]), sourceRefs)
	if err != nil {
		return Row{}, err
	}

	confidence := 0.0
	if c := strings.TrimSpace(record[9]); c != "" {
		confidence, err = strconv.ParseFloat(c, 64)
		if err != nil || confidence < 0 || confidence > 1 {
			return fail(fmt.Sprintf("invalid confidence %q", record[9]), err)
		}
	}

	return Row{
		DestRow:     destRow,
		DestLabel:   strings.TrimSpace(record[1]),
		DestSection: strings.TrimSpace(record[2]),
		SourceSheet: sourceSheet,
		SourceRows:  sourceRows,
		SourceLabel: strings.TrimSpace(record[5]),
		ValueColumn: valueCol,
		Method:      method,
		Transform:   transform,
		Confidence:  confidence,
		Verified:    strings.TrimSpace(record[10]),
		Note:        strings.TrimSpace(record[11]),
	}, nil
}

// parseLocators parses a source locator: a single row number or a
// composite "+"-joined list such as "30+31+32+33".
func parseLocators(raw string) ([]int, error) {
	parts := strings.Split(strings.TrimSpace(raw), "+")
	rows := make([]int, 0, len(parts))
	seen := make(map[int]bool)
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("locator element %q", part)
		}
		if seen[n] {
			return nil, fmt.Errorf("duplicate locator element %d", n)
		}
		seen[n] = true
		rows = append(rows, n)
	}
	return rows, nil
}

// parseColumn accepts a 1-based column number or a spreadsheet column
// name such as "CO".
func parseColumn(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 {
			return 0, fmt.Errorf("column %d out of range", n)
		}
		return n, nil
	}
	return excelize.ColumnNameToNumber(strings.ToUpper(s))
}

// SheetLister enumerates sheet names; satisfied by sheets.ReadWriter.
type SheetLister interface {
	HasSheet(name string) bool
}

// Validate cross-checks every rule against the source workbook: a rule
// referencing a nonexistent sheet aborts the job.
func (t *Table) Validate(source SheetLister) error {
	for i, row := range t.Rows {
		if !source.HasSheet(row.SourceSheet) {
			return &errors.ConfigError{
				Component: "rules",
				Row:       i + 2, // header offset
				Message:   fmt.Sprintf("source sheet %q does not exist", row.SourceSheet),
			}
		}
	}
	return nil
}

// Assignments converts the table into executable assignments in table
// order, each carrying its declared transformation.
func (t *Table) Assignments(destSheet string) []mapping.Assignment {
	out := make([]mapping.Assignment, 0, len(t.Rows))
	for _, row := range t.Rows {
		out = append(out, mapping.Assignment{
			Dest:        fields.Ref{Sheet: destSheet, Row: row.DestRow},
			DestLabel:   row.DestLabel,
			Sources:     row.Sources(),
			SourceLabel: row.SourceLabel,
			Method:      row.Method,
			Confidence:  row.Confidence,
			Transform:   row.Transform,
			Status:      mapping.StatusPending,
			Note:        row.Note,
		})
	}
	return out
}

// ValueColumns maps each destination reference to its row's source value
// column, for executors honoring per-row columns.
func (t *Table) ValueColumns(destSheet string) map[fields.Ref]int {
	out := make(map[fields.Ref]int, len(t.Rows))
	for _, row := range t.Rows {
		out[fields.Ref{Sheet: destSheet, Row: row.DestRow}] = row.ValueColumn
	}
	return out
}
