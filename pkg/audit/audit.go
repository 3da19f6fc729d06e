// Package audit provides the append-only execution trail and the
// aggregated job report. Records are never mutated or deleted once
// written; the trail is the job's durable, replayable output artifact,
// suitable for compliance review.
package audit

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/finsheet/fieldmap/pkg/errors"
	"github.com/finsheet/fieldmap/pkg/fields"
	"github.com/finsheet/fieldmap/pkg/mapping"
)

// Record captures one assignment's execution outcome.
type Record struct {
	Timestamp   time.Time
	JobID       string
	Dest        fields.Ref
	DestLabel   string
	Sources     []fields.Ref
	SourceLabel string
	SourceValue string
	DestValue   string
	Method      mapping.Method
	Status      mapping.Status
	Notes       string
}

// SourceList renders the source rows in composite locator form.
func (r Record) SourceList() string {
	if len(r.Sources) == 0 {
		return ""
	}
	parts := make([]string, len(r.Sources))
	for i, s := range r.Sources {
		parts[i] = fmt.Sprintf("%d", s.Row)
	}
	return r.Sources[0].Sheet + "!" + strings.Join(parts, "+")
}

// Trail is an append-only sequence of records. Appends are safe for
// concurrent use; existing records are never modified.
type Trail struct {
	mu      sync.Mutex
	records []Record
}

// NewTrail creates an empty trail.
func NewTrail() *Trail {
	return &Trail{}
}

// Append adds a record, stamping the time when unset.
func (t *Trail) Append(r Record) {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, r)
}

// Len returns the number of records.
func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// Records returns a copy of the trail in append order.
func (t *Trail) Records() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Record, len(t.records))
	copy(out, t.records)
	return out
}

// csvHeader is the audit trail's column order.
var csvHeader = []string{
	"Timestamp",
	"Job_ID",
	"Dest_Sheet",
	"Dest_Row",
	"Dest_Field_Name",
	"Source_Location",
	"Source_Field_Name",
	"Source_Value",
	"Dest_Value",
	"Match_Method",
	"Status",
	"Notes",
}

// WriteCSV renders the trail, one row per record.
func (t *Trail) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return errors.WrapIO("write", "audit trail", err)
	}
	for _, r := range t.Records() {
		record := []string{
			r.Timestamp.Format(time.RFC3339),
			r.JobID,
			r.Dest.Sheet,
			fmt.Sprintf("%d", r.Dest.Row),
			r.DestLabel,
			r.SourceList(),
			r.SourceLabel,
			r.SourceValue,
			r.DestValue,
			string(r.Method),
			r.Status.String(),
			r.Notes,
		}
		if err := cw.Write(record); err != nil {
			return errors.WrapIO("write", "audit trail", err)
		}
	}
	cw.Flush()
	return errors.WrapIO("write", "audit trail", cw.Error())
}
