// Package resolve commits a conflict-free one-to-one assignment set from
// ranked, verified candidates. Resolution is strictly sequential: the
// shared used-source state is an explicit value threaded through each
// step, never module-global, so candidate generation can run in parallel
// beforehand while resolution stays deterministic and reproducible.
package resolve

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/finsheet/fieldmap/pkg/errors"
	"github.com/finsheet/fieldmap/pkg/fields"
	"github.com/finsheet/fieldmap/pkg/logging"
	"github.com/finsheet/fieldmap/pkg/mapping"
	"github.com/finsheet/fieldmap/pkg/oracle"
)

// Defaults for resolution behavior.
const (
	// DefaultThreshold divides auto-committable candidates from
	// borderline ones forwarded to the refinement oracle.
	DefaultThreshold = 0.70

	// DefaultOracleTimeout bounds the oracle round-trip. On timeout the
	// resolver proceeds with local-only results.
	DefaultOracleTimeout = 30 * time.Second
)

// Outcome is the result of one resolution run. Every destination field
// ends in exactly one of two terminal states: it appears in Assignments
// (pending execution) or in Skipped.
type Outcome struct {
	Assignments []mapping.Assignment
	Skipped     []fields.Ref

	// Degraded is set when an oracle was requested but unavailable or
	// timed out, and resolution completed with local candidates only.
	Degraded bool
}

// Resolver runs the greedy conflict-free assignment algorithm.
type Resolver struct {
	threshold float64
	oracle    oracle.RefinementOracle
	timeout   time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithThreshold sets the auto-accept confidence threshold.
func WithThreshold(threshold float64) Option {
	return func(r *Resolver) {
		if threshold > 0 {
			r.threshold = threshold
		}
	}
}

// WithOracle plugs in a refinement oracle for borderline destinations.
func WithOracle(o oracle.RefinementOracle) Option {
	return func(r *Resolver) { r.oracle = o }
}

// WithOracleTimeout bounds the oracle call.
func WithOracleTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// New creates a Resolver with options. Without WithOracle the resolver
// runs purely on local candidates.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		threshold: DefaultThreshold,
		timeout:   DefaultOracleTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// state is the explicit resolver state: the set of already-used source
// references and the set of destinations still pending assignment.
type state struct {
	used       map[fields.Ref]bool
	assigned   map[fields.Ref]bool
	candidates map[fields.Ref][]mapping.Candidate
}

// Resolve commits assignments for the destination snapshot. Candidates
// must be ranked per destination as produced by the generator/verifier.
func (r *Resolver) Resolve(ctx context.Context, dests, sources *fields.Snapshot, candidates map[fields.Ref][]mapping.Candidate) (*Outcome, error) {
	log := logging.FromContext(ctx)

	st := &state{
		used:       make(map[fields.Ref]bool),
		assigned:   make(map[fields.Ref]bool),
		candidates: candidates,
	}
	outcome := &Outcome{}

	// Pass 1: auto-accept. Only candidates at or above the threshold can
	// commit without the oracle seeing them.
	r.greedy(st, dests, sources, r.threshold, outcome)
	log.Info().
		Int("auto_committed", len(outcome.Assignments)).
		Float64("threshold", r.threshold).
		Msg("Auto-accept pass complete")

	// Oracle round-trip for everything still pending. Suggestions re-enter
	// the same greedy loop as ordinary candidates; the uniqueness invariant
	// is never bypassed.
	if r.oracle != nil {
		if pending := r.pendingRequests(st, dests); len(pending) > 0 {
			r.refine(ctx, st, dests, sources, pending, outcome)
		}
	}

	// Pass 2: commit the best remaining candidate per destination,
	// whatever its confidence. Anything left over is Skipped.
	r.greedy(st, dests, sources, 0, outcome)

	for _, dest := range dests.List() {
		if !st.assigned[dest.Ref] {
			outcome.Skipped = append(outcome.Skipped, dest.Ref)
		}
	}

	if err := Validate(outcome.Assignments); err != nil {
		return nil, err
	}

	log.Info().
		Int("committed", len(outcome.Assignments)).
		Int("skipped", len(outcome.Skipped)).
		Bool("degraded", outcome.Degraded).
		Msg("Resolution complete")
	return outcome, nil
}

// greedy repeatedly pops the globally highest-ranked unassigned
// (destination, candidate) pair whose sources are all unused and commits
// it. Ordering is deterministic: descending confidence, then lower
// destination row, then lower source row.
func (r *Resolver) greedy(st *state, dests, sources *fields.Snapshot, minConfidence float64, outcome *Outcome) {
	for {
		best, ok := r.bestEligible(st, dests, minConfidence)
		if !ok {
			return
		}
		outcome.Assignments = append(outcome.Assignments, r.commit(st, best, dests, sources))
	}
}

// bestEligible scans every pending destination for its best remaining
// candidate whose sources are all unused, and returns the global winner.
func (r *Resolver) bestEligible(st *state, dests *fields.Snapshot, minConfidence float64) (mapping.Candidate, bool) {
	var best mapping.Candidate
	found := false

	for _, dest := range dests.List() {
		if st.assigned[dest.Ref] {
			continue
		}
		for _, c := range st.candidates[dest.Ref] {
			if c.Confidence < minConfidence {
				// Ranked list: nothing further qualifies for this pass,
				// but the candidate stays eligible for later passes.
				break
			}
			if !r.sourcesFree(st, c) {
				continue
			}
			if !found || candidateLess(c, best) {
				best = c
				found = true
			}
			break // first free candidate is this destination's best
		}
	}
	return best, found
}

// candidateLess reports whether a outranks b in commit order.
func candidateLess(a, b mapping.Candidate) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if a.Dest != b.Dest {
		return a.Dest.Less(b.Dest)
	}
	return a.Sources[0].Less(b.Sources[0])
}

// sourcesFree reports whether every source behind the candidate is unused.
// Composite members commit or fail as a unit.
func (r *Resolver) sourcesFree(st *state, c mapping.Candidate) bool {
	for _, ref := range c.Sources {
		if st.used[ref] {
			return false
		}
	}
	return true
}

// commit marks the candidate's sources used and builds the assignment.
func (r *Resolver) commit(st *state, c mapping.Candidate, dests, sources *fields.Snapshot) mapping.Assignment {
	for _, ref := range c.Sources {
		st.used[ref] = true
	}
	st.assigned[c.Dest] = true

	a := mapping.Assignment{
		Dest:       c.Dest,
		Sources:    c.Sources,
		Method:     c.Method,
		Confidence: c.Confidence,
		Transform:  transformFor(c, dests),
		Status:     mapping.StatusPending,
		Note:       c.Evidence,
	}
	if dest, ok := dests.Get(c.Dest); ok {
		a.DestLabel = dest.Label
	}
	if src, ok := sources.Get(c.Sources[0]); ok {
		a.SourceLabel = src.Label
		if c.Composite() {
			a.SourceLabel = fmt.Sprintf("%s (composite)", src.Label)
		}
	}
	return a
}

// transformFor derives the transformation from the candidate's shape and
// the destination's declared category.
func transformFor(c mapping.Candidate, dests *fields.Snapshot) mapping.Transformation {
	if c.Composite() {
		return mapping.SumFields{Components: c.Sources}
	}
	if dest, ok := dests.Get(c.Dest); ok && dest.Category == fields.CategoryPercentage {
		return mapping.PercentageValue{}
	}
	return mapping.DirectCopy{}
}

// pendingRequests builds the oracle batch: every unassigned destination
// with whatever ranked candidates it has left.
func (r *Resolver) pendingRequests(st *state, dests *fields.Snapshot) []oracle.Request {
	var pending []oracle.Request
	for _, dest := range dests.List() {
		if st.assigned[dest.Ref] {
			continue
		}
		pending = append(pending, oracle.Request{
			Dest:       dest,
			Candidates: st.candidates[dest.Ref],
		})
	}
	return pending
}

// refine performs the bounded oracle round-trip and merges suggestions
// into the candidate lists. Oracle failure or timeout is the degraded
// mode, not an error: resolution continues with local candidates.
func (r *Resolver) refine(ctx context.Context, st *state, dests, sources *fields.Snapshot, pending []oracle.Request, outcome *Outcome) {
	log := logging.FromContext(ctx)

	oracleCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	suggestions, err := r.oracle.Refine(oracleCtx, dests, sources, pending)
	if err != nil {
		outcome.Degraded = true
		log.Warn().Err(err).
			Int("pending", len(pending)).
			Msg("Oracle unavailable, continuing with local candidates only")
		return
	}

	merged := 0
	for _, s := range suggestions {
		if st.assigned[s.Dest] || st.used[s.Source] {
			continue
		}
		c := mapping.Candidate{
			Dest:       s.Dest,
			Sources:    []fields.Ref{s.Source},
			Method:     mapping.MethodOracle,
			Confidence: s.Confidence,
			Evidence:   s.Rationale,
		}
		st.candidates[s.Dest] = insertRanked(st.candidates[s.Dest], c)
		merged++
	}
	log.Info().
		Int("suggestions", len(suggestions)).
		Int("merged", merged).
		Msg("Oracle suggestions merged")
}

// insertRanked keeps the per-destination candidate list ordered by
// descending confidence, ties by lower source row.
func insertRanked(list []mapping.Candidate, c mapping.Candidate) []mapping.Candidate {
	list = append(list, c)
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Confidence != list[j].Confidence {
			return list[i].Confidence > list[j].Confidence
		}
		return list[i].Sources[0].Less(list[j].Sources[0])
	})
	return list
}

// Validate checks the uniqueness invariants over a finalized assignment
// set: no source reference (including composite members) and no
// destination reference may appear twice. A violation is an internal
// consistency error, never bad input.
func Validate(assignments []mapping.Assignment) error {
	usedSources := make(map[fields.Ref]bool)
	usedDests := make(map[fields.Ref]bool)

	for _, a := range assignments {
		if usedDests[a.Dest] {
			return &errors.InternalError{
				Invariant: "one assignment per destination",
				Message:   fmt.Sprintf("destination %s assigned twice", a.Dest),
			}
		}
		usedDests[a.Dest] = true

		for _, src := range a.Sources {
			if usedSources[src] {
				return &errors.InternalError{
					Invariant: "one assignment per source",
					Message:   fmt.Sprintf("source %s assigned twice", src),
				}
			}
			usedSources[src] = true
		}
	}
	return nil
}
