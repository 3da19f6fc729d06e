package resolve

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsheet/fieldmap/pkg/fields"
	"github.com/finsheet/fieldmap/pkg/mapping"
	"github.com/finsheet/fieldmap/pkg/oracle"
)

const refPeriod = "Q1 FY2025"

func destSnapshot(rows ...int) *fields.Snapshot {
	fs := make([]fields.Field, 0, len(rows))
	for _, r := range rows {
		fs = append(fs, fields.Field{
			Ref:    fields.Ref{Sheet: "Dest", Row: r},
			Label:  "dest",
			Values: map[string]decimal.Decimal{refPeriod: decimal.NewFromInt(1)},
		})
	}
	return fields.NewSnapshot(fs)
}

func sourceSnapshot(rows ...int) *fields.Snapshot {
	fs := make([]fields.Field, 0, len(rows))
	for _, r := range rows {
		fs = append(fs, fields.Field{
			Ref:    fields.Ref{Sheet: "Source", Row: r},
			Label:  "source",
			Values: map[string]decimal.Decimal{refPeriod: decimal.NewFromInt(1)},
		})
	}
	return fields.NewSnapshot(fs)
}

func cand(destRow, sourceRow int, conf float64) mapping.Candidate {
	return mapping.Candidate{
		Dest:       fields.Ref{Sheet: "Dest", Row: destRow},
		Sources:    []fields.Ref{{Sheet: "Source", Row: sourceRow}},
		Method:     mapping.MethodScope,
		Confidence: conf,
	}
}

func TestResolveConflictHigherConfidenceWins(t *testing.T) {
	dests := destSnapshot(5, 6)
	sources := sourceSnapshot(40, 41)

	candidates := map[fields.Ref][]mapping.Candidate{
		{Sheet: "Dest", Row: 5}: {cand(5, 40, 0.95), cand(5, 41, 0.75)},
		{Sheet: "Dest", Row: 6}: {cand(6, 40, 0.80)},
	}

	outcome, err := New().Resolve(context.Background(), dests, sources, candidates)
	require.NoError(t, err)
	require.Len(t, outcome.Assignments, 1)

	byDest := map[int]mapping.Assignment{}
	for _, a := range outcome.Assignments {
		byDest[a.Dest.Row] = a
	}
	// Row 5 takes the contested source; row 6 loses it and has no other.
	assert.Equal(t, 40, byDest[5].Sources[0].Row)
	_, has6 := byDest[6]
	assert.False(t, has6)
	assert.Contains(t, outcome.Skipped, fields.Ref{Sheet: "Dest", Row: 6})

	require.NoError(t, Validate(outcome.Assignments))
}

func TestResolveLoserFallsBackToNextCandidate(t *testing.T) {
	dests := destSnapshot(5, 6)
	sources := sourceSnapshot(40, 41)

	candidates := map[fields.Ref][]mapping.Candidate{
		{Sheet: "Dest", Row: 5}: {cand(5, 40, 0.95)},
		{Sheet: "Dest", Row: 6}: {cand(6, 40, 0.80), cand(6, 41, 0.72)},
	}

	outcome, err := New().Resolve(context.Background(), dests, sources, candidates)
	require.NoError(t, err)
	require.Len(t, outcome.Assignments, 2)

	byDest := map[int]int{}
	for _, a := range outcome.Assignments {
		byDest[a.Dest.Row] = a.Sources[0].Row
	}
	assert.Equal(t, 40, byDest[5])
	assert.Equal(t, 41, byDest[6])
	assert.Empty(t, outcome.Skipped)
}

func TestResolveCompositeMembersBlockJointly(t *testing.T) {
	dests := destSnapshot(5, 9)
	sources := sourceSnapshot(30, 31, 32)

	composite := mapping.Candidate{
		Dest:       fields.Ref{Sheet: "Dest", Row: 9},
		Sources:    []fields.Ref{{Sheet: "Source", Row: 30}, {Sheet: "Source", Row: 31}},
		Method:     mapping.MethodComposite,
		Confidence: 0.90,
	}
	candidates := map[fields.Ref][]mapping.Candidate{
		{Sheet: "Dest", Row: 9}: {composite},
		{Sheet: "Dest", Row: 5}: {cand(5, 31, 0.75)},
	}

	outcome, err := New().Resolve(context.Background(), dests, sources, candidates)
	require.NoError(t, err)
	require.Len(t, outcome.Assignments, 1)

	a := outcome.Assignments[0]
	assert.Equal(t, 9, a.Dest.Row)
	require.IsType(t, mapping.SumFields{}, a.Transform)
	// Row 31 is consumed as a composite member, so dest 5 is skipped.
	assert.Contains(t, outcome.Skipped, fields.Ref{Sheet: "Dest", Row: 5})
}

func TestResolveBelowThresholdCommitsInSecondPass(t *testing.T) {
	dests := destSnapshot(5)
	sources := sourceSnapshot(40)

	candidates := map[fields.Ref][]mapping.Candidate{
		{Sheet: "Dest", Row: 5}: {cand(5, 40, 0.55)},
	}

	outcome, err := New().Resolve(context.Background(), dests, sources, candidates)
	require.NoError(t, err)
	require.Len(t, outcome.Assignments, 1)
	assert.Equal(t, 0.55, outcome.Assignments[0].Confidence)
	assert.False(t, outcome.Degraded)
}

// suggestOracle returns canned suggestions.
type suggestOracle struct {
	suggestions []oracle.Suggestion
}

func (o *suggestOracle) Refine(context.Context, *fields.Snapshot, *fields.Snapshot, []oracle.Request) ([]oracle.Suggestion, error) {
	return o.suggestions, nil
}

func TestResolveMergesOracleSuggestions(t *testing.T) {
	dests := destSnapshot(5)
	sources := sourceSnapshot(40, 41)

	orc := &suggestOracle{suggestions: []oracle.Suggestion{{
		Dest:       fields.Ref{Sheet: "Dest", Row: 5},
		Source:     fields.Ref{Sheet: "Source", Row: 41},
		Confidence: 0.85,
		Rationale:  "hierarchical context matches",
	}}}

	candidates := map[fields.Ref][]mapping.Candidate{
		{Sheet: "Dest", Row: 5}: {cand(5, 40, 0.50)},
	}

	outcome, err := New(WithOracle(orc)).Resolve(context.Background(), dests, sources, candidates)
	require.NoError(t, err)
	require.Len(t, outcome.Assignments, 1)

	a := outcome.Assignments[0]
	assert.Equal(t, mapping.MethodOracle, a.Method)
	assert.Equal(t, 41, a.Sources[0].Row)
	assert.Equal(t, 0.85, a.Confidence)
	assert.False(t, outcome.Degraded)
}

// stallOracle blocks until its context expires.
type stallOracle struct{}

func (stallOracle) Refine(ctx context.Context, _, _ *fields.Snapshot, _ []oracle.Request) ([]oracle.Suggestion, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestResolveDegradesOnOracleTimeout(t *testing.T) {
	dests := destSnapshot(5)
	sources := sourceSnapshot(40)

	candidates := map[fields.Ref][]mapping.Candidate{
		{Sheet: "Dest", Row: 5}: {cand(5, 40, 0.60)},
	}

	r := New(WithOracle(stallOracle{}), WithOracleTimeout(10*time.Millisecond))
	outcome, err := r.Resolve(context.Background(), dests, sources, candidates)
	require.NoError(t, err)

	assert.True(t, outcome.Degraded)
	// The run still completes on local candidates.
	require.Len(t, outcome.Assignments, 1)
	assert.Equal(t, 40, outcome.Assignments[0].Sources[0].Row)
}

func TestResolveDeterministicOrder(t *testing.T) {
	dests := destSnapshot(3, 4, 5)
	sources := sourceSnapshot(30, 31, 32)

	candidates := func() map[fields.Ref][]mapping.Candidate {
		return map[fields.Ref][]mapping.Candidate{
			{Sheet: "Dest", Row: 3}: {cand(3, 30, 0.80)},
			{Sheet: "Dest", Row: 4}: {cand(4, 31, 0.80)},
			{Sheet: "Dest", Row: 5}: {cand(5, 32, 0.90)},
		}
	}

	first, err := New().Resolve(context.Background(), dests, sources, candidates())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := New().Resolve(context.Background(), dests, sources, candidates())
		require.NoError(t, err)
		require.Equal(t, len(first.Assignments), len(again.Assignments))
		for j := range first.Assignments {
			assert.Equal(t, first.Assignments[j].Dest, again.Assignments[j].Dest)
			assert.Equal(t, first.Assignments[j].Sources, again.Assignments[j].Sources)
		}
	}

	// Highest confidence commits first; ties commit in destination order.
	assert.Equal(t, 5, first.Assignments[0].Dest.Row)
	assert.Equal(t, 3, first.Assignments[1].Dest.Row)
	assert.Equal(t, 4, first.Assignments[2].Dest.Row)
}

func TestValidateRejectsDuplicates(t *testing.T) {
	dup := mapping.Assignment{
		Dest:    fields.Ref{Sheet: "Dest", Row: 5},
		Sources: []fields.Ref{{Sheet: "Source", Row: 40}},
	}
	other := mapping.Assignment{
		Dest:    fields.Ref{Sheet: "Dest", Row: 6},
		Sources: []fields.Ref{{Sheet: "Source", Row: 40}},
	}

	assert.NoError(t, Validate([]mapping.Assignment{dup}))
	assert.Error(t, Validate([]mapping.Assignment{dup, other}), "shared source")
	assert.Error(t, Validate([]mapping.Assignment{dup, dup}), "duplicate destination")
}
