package rules

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/finsheet/fieldmap/pkg/errors"
	"github.com/finsheet/fieldmap/pkg/mapping"
)

// Write renders a rule table as CSV in the canonical column order, so a
// resolver run can be persisted and replayed as a curated mapping.
func Write(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return errors.WrapIO("write", "rule table", err)
	}
	for _, row := range rows {
		locators := make([]string, len(row.SourceRows))
		for i, r := range row.SourceRows {
			locators[i] = strconv.Itoa(r)
		}
		record := []string{
			strconv.Itoa(row.DestRow),
			row.DestLabel,
			row.DestSection,
			row.SourceSheet,
			strings.Join(locators, "+"),
			row.SourceLabel,
			strconv.Itoa(row.ValueColumn),
			string(row.Method),
			row.Transform.Tag(),
			fmt.Sprintf("%.3f", row.Confidence),
			row.Verified,
			row.Note,
		}
		if err := cw.Write(record); err != nil {
			return errors.WrapIO("write", "rule table", err)
		}
	}
	cw.Flush()
	return errors.WrapIO("write", "rule table", cw.Error())
}

// FromAssignments converts a resolved assignment set into rule rows with
// the given source value column, preserving assignment order.
func FromAssignments(assignments []mapping.Assignment, valueColumn int) []Row {
	rows := make([]Row, 0, len(assignments))
	for _, a := range assignments {
		sourceRows := make([]int, len(a.Sources))
		for i, s := range a.Sources {
			sourceRows[i] = s.Row
		}
		rows = append(rows, Row{
			DestRow:     a.Dest.Row,
			DestLabel:   a.DestLabel,
			SourceSheet: a.Sources[0].Sheet,
			SourceRows:  sourceRows,
			SourceLabel: a.SourceLabel,
			ValueColumn: valueColumn,
			Method:      a.Method,
			Transform:   a.Transform,
			Confidence:  a.Confidence,
			Note:        a.Note,
		})
	}
	return rows
}
