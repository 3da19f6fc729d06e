package audit

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/finsheet/fieldmap/pkg/fields"
	"github.com/finsheet/fieldmap/pkg/mapping"
)

// Failure describes one assignment that did not populate a value.
type Failure struct {
	Dest   fields.Ref
	Label  string
	Reason string
}

// Report aggregates a job's audit trail into per-run statistics. It is
// the job's externally visible result.
type Report struct {
	JobID     string
	Attempted int
	Populated int
	Failed    int
	Skipped   int

	BySheet  map[string]int
	ByMethod map[mapping.Method]int

	Failures []Failure

	// Degraded notes that the refinement oracle was requested but
	// unavailable, and the run completed on local candidates only.
	Degraded bool

	Duration time.Duration
}

// SuccessRate returns populated/attempted in [0, 1].
func (r *Report) SuccessRate() float64 {
	if r.Attempted == 0 {
		return 0
	}
	return float64(r.Populated) / float64(r.Attempted)
}

// BuildReport aggregates the trail plus the resolver's skipped set.
func BuildReport(jobID string, trail *Trail, skipped []fields.Ref, degraded bool, duration time.Duration) *Report {
	report := &Report{
		JobID:    jobID,
		Skipped:  len(skipped),
		BySheet:  make(map[string]int),
		ByMethod: make(map[mapping.Method]int),
		Degraded: degraded,
		Duration: duration,
	}

	for _, rec := range trail.Records() {
		report.Attempted++
		switch rec.Status {
		case mapping.StatusCommitted:
			report.Populated++
			if len(rec.Sources) > 0 {
				report.BySheet[rec.Sources[0].Sheet]++
			}
			report.ByMethod[rec.Method]++
		case mapping.StatusFailed:
			report.Failed++
			report.Failures = append(report.Failures, Failure{
				Dest:   rec.Dest,
				Label:  rec.DestLabel,
				Reason: rec.Notes,
			})
		}
	}
	return report
}

// Print writes a human-readable summary.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "Job %s: %d/%d populated (%.1f%%), %d failed, %d skipped in %s\n",
		r.JobID, r.Populated, r.Attempted, r.SuccessRate()*100, r.Failed, r.Skipped, r.Duration.Round(time.Millisecond))
	if r.Degraded {
		fmt.Fprintln(w, "NOTE: refinement oracle unavailable, resolution used local candidates only")
	}

	if len(r.BySheet) > 0 {
		fmt.Fprintln(w, "By source sheet:")
		for _, sheet := range sortedKeys(r.BySheet) {
			fmt.Fprintf(w, "  %s: %d\n", sheet, r.BySheet[sheet])
		}
	}
	if len(r.ByMethod) > 0 {
		fmt.Fprintln(w, "By method:")
		methods := make([]string, 0, len(r.ByMethod))
		for m := range r.ByMethod {
			methods = append(methods, string(m))
		}
		sort.Strings(methods)
		for _, m := range methods {
			fmt.Fprintf(w, "  %s: %d\n", m, r.ByMethod[mapping.Method(m)])
		}
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "FAILED %s (%s): %s\n", f.Dest, f.Label, f.Reason)
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
