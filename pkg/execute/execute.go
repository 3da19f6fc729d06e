// Package execute applies committed assignments to the destination
// workbook. Source reads fan out across a worker pool; writes are staged
// through the sheets layer in destination-row order, so the audit trail
// and the flushed artifact are deterministic for a given assignment set.
package execute

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/finsheet/fieldmap/pkg/audit"
	"github.com/finsheet/fieldmap/pkg/errors"
	"github.com/finsheet/fieldmap/pkg/fields"
	"github.com/finsheet/fieldmap/pkg/logging"
	"github.com/finsheet/fieldmap/pkg/mapping"
	"github.com/finsheet/fieldmap/pkg/sheets"
)

const defaultWorkers = 4

// Executor populates destination cells from committed assignments and
// appends exactly one audit record per assignment.
type Executor struct {
	source     sheets.Reader
	dest       sheets.Writer
	sourceName string // workbook filename used in tracking annotations

	sourceCol   int                // default 1-based source value column
	destCol     int                // 1-based destination value column
	trackingCol int                // 0 disables tracking annotations
	columns     map[fields.Ref]int // per-destination source column overrides

	workers int
}

// Option configures an Executor.
type Option func(*Executor)

// WithSourceName sets the filename recorded in tracking annotations.
func WithSourceName(name string) Option {
	return func(e *Executor) { e.sourceName = name }
}

// WithTrackingColumn enables source-tracking annotations in the given
// destination column.
func WithTrackingColumn(col int) Option {
	return func(e *Executor) { e.trackingCol = col }
}

// WithColumnOverrides sets per-destination source value columns, keyed by
// destination reference. Destinations absent from the map use the default.
func WithColumnOverrides(columns map[fields.Ref]int) Option {
	return func(e *Executor) { e.columns = columns }
}

// WithWorkers sets the source read concurrency.
func WithWorkers(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// New creates an executor reading source values from sourceCol and
// writing destination values to destCol, both 1-based.
func New(source sheets.Reader, dest sheets.Writer, sourceCol, destCol int, opts ...Option) *Executor {
	e := &Executor{
		source:    source,
		dest:      dest,
		sourceCol: sourceCol,
		destCol:   destCol,
		workers:   defaultWorkers,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// outcome is one assignment's execution result before it is staged.
type outcome struct {
	value       decimal.Decimal
	sourceValue string
	status      mapping.Status
	note        string
}

// Execute applies the assignments. Reads run concurrently; writes and
// audit records are emitted in ascending destination-row order. A
// duplicate destination or source aborts before any write is staged.
func (e *Executor) Execute(ctx context.Context, assignments []mapping.Assignment, trail *audit.Trail, jobID string) ([]mapping.Assignment, error) {
	log := logging.Ctx(ctx)

	if err := checkDisjoint(assignments); err != nil {
		return nil, err
	}

	ordered := make([]mapping.Assignment, len(assignments))
	copy(ordered, assignments)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Dest.Less(ordered[j].Dest) })

	outcomes := make([]outcome, len(ordered))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < e.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = e.resolve(ordered[i])
			}
		}()
	}

dispatch:
	for i := range ordered {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, &errors.TimeoutError{Operation: "execute", Message: err.Error()}
	}

	for i := range ordered {
		out := outcomes[i]
		a := &ordered[i]
		a.Status = out.status
		if out.note != "" {
			a.Note = out.note
		}

		destValue := ""
		if out.status == mapping.StatusCommitted {
			if err := e.dest.Write(a.Dest.Sheet, a.Dest.Row, e.destCol, out.value); err != nil {
				return nil, err
			}
			destValue = out.value.String()
			if e.trackingCol > 0 {
				if err := e.dest.Write(a.Dest.Sheet, a.Dest.Row, e.trackingCol, e.tracking(*a)); err != nil {
					return nil, err
				}
			}
		} else {
			log.Warn().
				Str("dest", a.Dest.String()).
				Str("reason", out.note).
				Msg("assignment failed")
		}

		trail.Append(audit.Record{
			JobID:       jobID,
			Dest:        a.Dest,
			DestLabel:   a.DestLabel,
			Sources:     a.Sources,
			SourceLabel: a.SourceLabel,
			SourceValue: out.sourceValue,
			DestValue:   destValue,
			Method:      a.Method,
			Status:      out.status,
			Notes:       out.note,
		})
	}
	return ordered, nil
}

// resolve computes one assignment's value without touching the
// destination.
func (e *Executor) resolve(a mapping.Assignment) outcome {
	switch t := a.Transform.(type) {
	case mapping.ZeroValue:
		return outcome{value: decimal.Zero, sourceValue: "0", status: mapping.StatusCommitted}
	case mapping.DirectCopy:
		return e.resolveSingle(a, false)
	case mapping.PercentageValue:
		return e.resolveSingle(a, true)
	case mapping.SumFields:
		return e.resolveSum(a, t)
	default:
		return outcome{
			status: mapping.StatusFailed,
			note:   fmt.Sprintf("unhandled transformation %q", a.Transform.Tag()),
		}
	}
}

func (e *Executor) resolveSingle(a mapping.Assignment, percentage bool) outcome {
	src := a.Sources[0]
	raw, err := e.source.Read(src.Sheet, src.Row, e.columnFor(a.Dest))
	if err != nil {
		return outcome{status: mapping.StatusFailed, note: err.Error()}
	}
	v, _, ok := sheets.ParseNumeric(raw)
	if !ok {
		return outcome{
			sourceValue: raw,
			status:      mapping.StatusFailed,
			note:        fmt.Sprintf("source cell %s is not numeric", src),
		}
	}
	out := outcome{value: v, sourceValue: raw, status: mapping.StatusCommitted}
	if percentage && (v.LessThan(decimal.NewFromInt(-1)) || v.GreaterThan(decimal.NewFromInt(1))) {
		out.note = fmt.Sprintf("percentage value %s outside [-1, 1]", v)
	}
	return out
}

func (e *Executor) resolveSum(a mapping.Assignment, t mapping.SumFields) outcome {
	col := e.columnFor(a.Dest)
	sum := decimal.Zero
	var raws, missing []string
	present := 0

	for _, c := range t.Components {
		raw, err := e.source.Read(c.Sheet, c.Row, col)
		if err != nil {
			missing = append(missing, c.String())
			continue
		}
		v, _, ok := sheets.ParseNumeric(raw)
		if !ok {
			missing = append(missing, c.String())
			continue
		}
		sum = sum.Add(v)
		raws = append(raws, raw)
		present++
	}

	if present == 0 {
		return outcome{
			status: mapping.StatusFailed,
			note:   "all sum components missing",
		}
	}
	out := outcome{
		value:       sum,
		sourceValue: strings.Join(raws, "+"),
		status:      mapping.StatusCommitted,
	}
	if len(missing) > 0 {
		out.note = fmt.Sprintf("components treated as 0: %s", strings.Join(missing, ", "))
	}
	return out
}

func (e *Executor) columnFor(dest fields.Ref) int {
	if col, ok := e.columns[dest]; ok {
		return col
	}
	return e.sourceCol
}

// tracking renders the provenance annotation written next to a populated
// cell, in the form "Filename|Sheet|Row|Column". Composite sources join
// their rows with "+".
func (e *Executor) tracking(a mapping.Assignment) string {
	rows := make([]string, len(a.Sources))
	for i, s := range a.Sources {
		rows[i] = fmt.Sprintf("%d", s.Row)
	}
	return strings.Join([]string{
		e.sourceName,
		a.Sources[0].Sheet,
		strings.Join(rows, "+"),
		sheets.ColumnName(e.columnFor(a.Dest)),
	}, "|")
}

// checkDisjoint rejects assignment sets that would write one destination
// twice or consume one source field twice.
func checkDisjoint(assignments []mapping.Assignment) error {
	dests := make(map[fields.Ref]bool, len(assignments))
	sources := make(map[fields.Ref]bool)
	for _, a := range assignments {
		if dests[a.Dest] {
			return &errors.InternalError{
				Invariant: "assignment-uniqueness",
				Message:   fmt.Sprintf("destination %s assigned twice", a.Dest),
			}
		}
		dests[a.Dest] = true
		if _, ok := a.Transform.(mapping.ZeroValue); ok {
			continue
		}
		for _, s := range a.Sources {
			if sources[s] {
				return &errors.InternalError{
					Invariant: "assignment-uniqueness",
					Message:   fmt.Sprintf("source %s consumed twice", s),
				}
			}
			sources[s] = true
		}
	}
	return nil
}
