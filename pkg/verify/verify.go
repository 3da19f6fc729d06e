// Package verify re-scores candidates against an independent
// reference-period value check. Reference values are known-good anchors,
// so the comparison is exact numeric equality: an exact match promotes
// confidence to the ceiling regardless of method, a mismatch demotes it
// below the auto-accept threshold without discarding the candidate.
package verify

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/finsheet/fieldmap/pkg/fields"
	"github.com/finsheet/fieldmap/pkg/logging"
	"github.com/finsheet/fieldmap/pkg/mapping"
)

// Default confidence adjustments.
const (
	DefaultCeiling  = 1.0
	DefaultDemoteTo = 0.40
)

// Verifier checks candidates against a shared reference period.
type Verifier struct {
	// Period is the reference period both sides must carry for a check
	// to apply, e.g. "Q1-2024". Empty disables verification.
	Period string

	// Ceiling is the confidence granted on an exact value match.
	Ceiling float64

	// DemoteTo caps confidence after a value mismatch. It must sit below
	// the resolver's auto-accept threshold.
	DemoteTo float64
}

// New creates a Verifier for the given reference period with defaults.
func New(period string) *Verifier {
	return &Verifier{
		Period:   period,
		Ceiling:  DefaultCeiling,
		DemoteTo: DefaultDemoteTo,
	}
}

// Verify returns adjusted copies of the candidates. Candidates without a
// comparable reference value on both sides pass through unchanged.
func (v *Verifier) Verify(ctx context.Context, candidates []mapping.Candidate, dests, sources *fields.Snapshot) []mapping.Candidate {
	if v.Period == "" {
		return candidates
	}
	log := logging.FromContext(ctx)

	out := make([]mapping.Candidate, len(candidates))
	promoted, demoted := 0, 0
	for i, c := range candidates {
		out[i] = v.verifyOne(c, dests, sources)
		switch {
		case out[i].Confidence > c.Confidence:
			promoted++
		case out[i].Confidence < c.Confidence:
			demoted++
		}
	}

	log.Debug().
		Str("period", v.Period).
		Int("candidates", len(candidates)).
		Int("promoted", promoted).
		Int("demoted", demoted).
		Msg("Reference verification complete")
	return out
}

// verifyOne applies the reference check to a single candidate.
func (v *Verifier) verifyOne(c mapping.Candidate, dests, sources *fields.Snapshot) mapping.Candidate {
	dest, ok := dests.Get(c.Dest)
	if !ok {
		return c
	}
	destValue, ok := dest.Value(v.Period)
	if !ok {
		return c
	}

	sourceValue, ok := v.sourceValue(c, sources)
	if !ok {
		return c
	}

	if destValue.Equal(sourceValue) {
		c.Confidence = v.Ceiling
		c.Evidence = fmt.Sprintf("%s; %s values match exactly (%s)", c.Evidence, v.Period, destValue)
		return c
	}

	if c.Confidence > v.DemoteTo {
		c.Confidence = v.DemoteTo
	}
	c.Evidence = fmt.Sprintf("%s; %s mismatch: destination %s vs source %s",
		c.Evidence, v.Period, destValue, sourceValue)
	return c
}

// sourceValue resolves the candidate's source-side reference value; for a
// composite candidate this is the sum over all members, and every member
// must carry a value for the check to apply.
func (v *Verifier) sourceValue(c mapping.Candidate, sources *fields.Snapshot) (decimal.Decimal, bool) {
	sum := decimal.Zero
	for _, ref := range c.Sources {
		src, ok := sources.Get(ref)
		if !ok {
			return decimal.Zero, false
		}
		value, ok := src.Value(v.Period)
		if !ok {
			return decimal.Zero, false
		}
		sum = sum.Add(value)
	}
	return sum, true
}
