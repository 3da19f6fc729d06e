// Package job orchestrates a full population run: scan the source and
// destination workbooks, generate and verify candidates, resolve a
// conflict-free assignment set, execute it, and aggregate the audit
// trail into a report. The job is the only place the pipeline stages
// meet; each stage stays independently testable.
package job

import (
	"context"
	"fmt"
	"time"

	"github.com/finsheet/fieldmap/pkg/audit"
	"github.com/finsheet/fieldmap/pkg/errors"
	"github.com/finsheet/fieldmap/pkg/execute"
	"github.com/finsheet/fieldmap/pkg/fields"
	"github.com/finsheet/fieldmap/pkg/lexicon"
	"github.com/finsheet/fieldmap/pkg/logging"
	"github.com/finsheet/fieldmap/pkg/mapping"
	"github.com/finsheet/fieldmap/pkg/match"
	"github.com/finsheet/fieldmap/pkg/oracle"
	"github.com/finsheet/fieldmap/pkg/resolve"
	"github.com/finsheet/fieldmap/pkg/rules"
	"github.com/finsheet/fieldmap/pkg/sheets"
	"github.com/finsheet/fieldmap/pkg/verify"
)

// Config describes one job's fixed inputs.
type Config struct {
	Source     sheets.ReadWriter
	Dest       sheets.ReadWriter
	SourceName string // source workbook filename, recorded in tracking annotations
	OutputPath string // destination artifact written on flush

	SourceScans []sheets.ScanConfig
	DestScan    sheets.ScanConfig

	ReferencePeriod string // period compared during verification
	PopulatePeriod  string // period whose values are written

	DestColumn     int // 1-based destination value column
	TrackingColumn int // 0 disables tracking annotations
}

// Job runs the mapping pipeline over one source/destination pair.
type Job struct {
	cfg Config
	id  string

	lex           *lexicon.Lexicon
	orc           oracle.RefinementOracle
	threshold     float64
	oracleTimeout time.Duration
	workers       int
	dryRun        bool
}

// Option configures a Job.
type Option func(*Job)

// WithID overrides the generated job identifier.
func WithID(id string) Option {
	return func(j *Job) { j.id = id }
}

// WithLexicon replaces the built-in terminology lexicon.
func WithLexicon(lex *lexicon.Lexicon) Option {
	return func(j *Job) {
		if lex != nil {
			j.lex = lex
		}
	}
}

// WithOracle plugs in a refinement oracle for borderline matches.
func WithOracle(o oracle.RefinementOracle) Option {
	return func(j *Job) { j.orc = o }
}

// WithThreshold sets the auto-accept confidence threshold.
func WithThreshold(threshold float64) Option {
	return func(j *Job) {
		if threshold > 0 {
			j.threshold = threshold
		}
	}
}

// WithOracleTimeout bounds the oracle round-trip.
func WithOracleTimeout(d time.Duration) Option {
	return func(j *Job) {
		if d > 0 {
			j.oracleTimeout = d
		}
	}
}

// WithWorkers sets read and matching concurrency.
func WithWorkers(n int) Option {
	return func(j *Job) {
		if n > 0 {
			j.workers = n
		}
	}
}

// WithDryRun stages writes without flushing the destination artifact.
func WithDryRun(dry bool) Option {
	return func(j *Job) { j.dryRun = dry }
}

// New validates the configuration and builds a job.
func New(cfg Config, opts ...Option) (*Job, error) {
	if cfg.Source == nil || cfg.Dest == nil {
		return nil, errors.NewConfigError("job", "source and destination workbooks are required", nil)
	}
	if cfg.DestScan.Sheet == "" {
		return nil, errors.NewConfigError("job", "destination sheet is required", nil)
	}
	if cfg.DestColumn < 1 {
		return nil, errors.NewConfigError("job", "destination value column is required", nil)
	}

	j := &Job{
		cfg:           cfg,
		id:            fmt.Sprintf("job-%s", time.Now().UTC().Format("20060102T150405Z")),
		lex:           lexicon.Default(),
		threshold:     resolve.DefaultThreshold,
		oracleTimeout: resolve.DefaultOracleTimeout,
		workers:       4,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// ID returns the job identifier stamped on audit records.
func (j *Job) ID() string { return j.id }

// Result is the outcome of one job run.
type Result struct {
	Report      *audit.Report
	Trail       *audit.Trail
	Assignments []mapping.Assignment
	Skipped     []fields.Ref
	Rules       []rules.Row
	Degraded    bool
}

// Match runs the pipeline through resolution without touching the
// destination. The result carries a persistable rule table.
func (j *Job) Match(ctx context.Context) (*Result, error) {
	ctx = logging.WithJob(ctx, j.id)
	log := logging.Ctx(ctx)

	dests, sources, err := j.snapshots(ctx)
	if err != nil {
		return nil, err
	}
	log.Info().
		Int("dest_fields", dests.Len()).
		Int("source_fields", sources.Len()).
		Msg("Workbooks scanned")

	gen := match.NewGenerator(
		match.WithLexicon(j.lex),
		match.WithReferencePeriod(j.cfg.ReferencePeriod),
		match.WithWorkers(j.workers),
	)
	candidates := gen.Generate(logging.WithStage(ctx, "generate"), dests, sources)

	ver := verify.New(j.cfg.ReferencePeriod)
	// A demoted candidate must stay below the auto-accept bar, whatever
	// the configured threshold, so mismatches reach the oracle pass.
	if j.threshold <= ver.DemoteTo {
		ver.DemoteTo = j.threshold / 2
	}
	vctx := logging.WithStage(ctx, "verify")
	for ref, cs := range candidates {
		candidates[ref] = rerank(ver.Verify(vctx, cs, dests, sources))
	}

	res := resolve.New(
		resolve.WithThreshold(j.threshold),
		resolve.WithOracle(j.orc),
		resolve.WithOracleTimeout(j.oracleTimeout),
	)
	outcome, err := res.Resolve(logging.WithStage(ctx, "resolve"), dests, sources, candidates)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int("assigned", len(outcome.Assignments)).
		Int("skipped", len(outcome.Skipped)).
		Bool("degraded", outcome.Degraded).
		Msg("Resolution complete")

	return &Result{
		Assignments: outcome.Assignments,
		Skipped:     outcome.Skipped,
		Rules:       rules.FromAssignments(outcome.Assignments, j.populateColumn()),
		Degraded:    outcome.Degraded,
	}, nil
}

// Run executes the full pipeline and, unless dry-run, flushes the
// destination artifact.
func (j *Job) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result, err := j.Match(ctx)
	if err != nil {
		return nil, err
	}
	return j.execute(ctx, result, j.columnsFor(result.Assignments), start)
}

// RunRules executes a previously persisted rule table, bypassing
// matching and resolution entirely.
func (j *Job) RunRules(ctx context.Context, table *rules.Table) (*Result, error) {
	start := time.Now()
	if err := table.Validate(j.cfg.Source); err != nil {
		return nil, err
	}
	result := &Result{
		Assignments: table.Assignments(j.cfg.DestScan.Sheet),
	}
	return j.execute(ctx, result, table.ValueColumns(j.cfg.DestScan.Sheet), start)
}

func (j *Job) execute(ctx context.Context, result *Result, columns map[fields.Ref]int, start time.Time) (*Result, error) {
	ctx = logging.WithStage(logging.WithJob(ctx, j.id), "execute")
	log := logging.Ctx(ctx)

	exec := execute.New(j.cfg.Source, j.cfg.Dest, j.populateColumn(), j.cfg.DestColumn,
		execute.WithSourceName(j.cfg.SourceName),
		execute.WithTrackingColumn(j.cfg.TrackingColumn),
		execute.WithColumnOverrides(columns),
		execute.WithWorkers(j.workers),
	)

	trail := audit.NewTrail()
	executed, err := exec.Execute(ctx, result.Assignments, trail, j.id)
	if err != nil {
		return nil, err
	}
	result.Assignments = executed
	result.Trail = trail

	if j.dryRun {
		log.Info().Msg("Dry run: staged writes discarded")
	} else if f, ok := j.cfg.Dest.(sheets.Flusher); ok && f.Pending() > 0 {
		if err := f.Flush(j.cfg.OutputPath); err != nil {
			return nil, err
		}
		log.Info().Str("path", j.cfg.OutputPath).Msg("Destination workbook written")
	}

	result.Report = audit.BuildReport(j.id, trail, result.Skipped, result.Degraded, time.Since(start))
	return result, nil
}

// snapshots scans both workbooks into field snapshots.
func (j *Job) snapshots(ctx context.Context) (dests, sources *fields.Snapshot, err error) {
	destFields, err := sheets.Scan(j.cfg.Dest, j.cfg.DestScan)
	if err != nil {
		return nil, nil, err
	}

	var sourceFields []fields.Field
	for _, sc := range j.cfg.SourceScans {
		fs, err := sheets.Scan(j.cfg.Source, sc)
		if err != nil {
			return nil, nil, err
		}
		logging.Ctx(logging.WithSheet(ctx, sc.Sheet)).Debug().
			Int("fields", len(fs)).
			Msg("Source sheet scanned")
		sourceFields = append(sourceFields, fs...)
	}

	return fields.NewSnapshot(destFields), fields.NewSnapshot(sourceFields), nil
}

// populateColumn returns the default source value column for the
// populate period.
func (j *Job) populateColumn() int {
	for _, sc := range j.cfg.SourceScans {
		if col, ok := sc.Periods[j.cfg.PopulatePeriod]; ok {
			return col
		}
	}
	return 0
}

// columnsFor maps each assignment to its source sheet's populate-period
// column, so sheets scanned with different layouts read correctly.
func (j *Job) columnsFor(assignments []mapping.Assignment) map[fields.Ref]int {
	bySheet := make(map[string]int, len(j.cfg.SourceScans))
	for _, sc := range j.cfg.SourceScans {
		if col, ok := sc.Periods[j.cfg.PopulatePeriod]; ok {
			bySheet[sc.Sheet] = col
		}
	}
	out := make(map[fields.Ref]int, len(assignments))
	for _, a := range assignments {
		if len(a.Sources) == 0 {
			continue
		}
		if col, ok := bySheet[a.Sources[0].Sheet]; ok {
			out[a.Dest] = col
		}
	}
	return out
}

// rerank restores the canonical candidate order after verification
// adjusts confidences.
func rerank(cs []mapping.Candidate) []mapping.Candidate {
	out := make([]mapping.Candidate, len(cs))
	copy(out, cs)
	for i := 1; i < len(out); i++ {
		for k := i; k > 0 && candidateBefore(out[k], out[k-1]); k-- {
			out[k], out[k-1] = out[k-1], out[k]
		}
	}
	return out
}

func candidateBefore(a, b mapping.Candidate) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.Sources[0].Less(b.Sources[0])
}
