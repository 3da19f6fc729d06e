// Package oracle abstracts the optional external refinement step as a
// single batch-call capability. The resolver forwards destinations it
// could not confidently assign together with their ranked local
// candidates; the oracle returns its own suggestions, which re-enter the
// resolver as ordinary candidates. The engine must function correctly with
// no oracle configured at all.
package oracle

import (
	"context"

	"github.com/finsheet/fieldmap/pkg/fields"
	"github.com/finsheet/fieldmap/pkg/mapping"
)

// Request carries one unresolved destination field and the ranked local
// candidates that were not good enough to auto-accept.
type Request struct {
	Dest       fields.Field
	Candidates []mapping.Candidate
}

// Suggestion is one proposed correspondence returned by the oracle.
type Suggestion struct {
	Dest       fields.Ref
	Source     fields.Ref
	Confidence float64
	Rationale  string
}

// RefinementOracle proposes additional or corrected candidates for
// destinations unresolved by local heuristics. Implementations must honor
// context cancellation; the caller bounds every call with a timeout.
type RefinementOracle interface {
	// Refine accepts the full field lists for context plus the pending
	// requests, and returns a batch of suggestions. An error or timeout
	// means the resolver completes with local candidates only.
	Refine(ctx context.Context, dests, sources *fields.Snapshot, pending []Request) ([]Suggestion, error)
}

// Noop is a RefinementOracle that never suggests anything. It stands in
// when no oracle is configured.
type Noop struct{}

// Refine returns no suggestions.
func (Noop) Refine(_ context.Context, _, _ *fields.Snapshot, _ []Request) ([]Suggestion, error) {
	return nil, nil
}
