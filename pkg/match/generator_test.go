package match

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsheet/fieldmap/pkg/fields"
	"github.com/finsheet/fieldmap/pkg/mapping"
)

const refPeriod = "Q1 FY2025"

func sourceField(row int, label, section string, value int64) fields.Field {
	return fields.Field{
		Ref:      fields.Ref{Sheet: "Income Statement", Row: row},
		Label:    label,
		Sections: []string{section},
		Scope:    fields.BuildScope("Income Statement", []string{section}, label),
		Values:   map[string]decimal.Decimal{refPeriod: decimal.NewFromInt(value)},
	}
}

func destField(row int, label, section string, value int64) fields.Field {
	return fields.Field{
		Ref:      fields.Ref{Sheet: "Model", Row: row},
		Label:    label,
		Sections: []string{section},
		Scope:    fields.BuildScope("Model", []string{section}, label),
		Values:   map[string]decimal.Decimal{refPeriod: decimal.NewFromInt(value)},
	}
}

func TestGenerateExactMatch(t *testing.T) {
	dests := fields.NewSnapshot([]fields.Field{
		destField(5, "Net Income", "Income Statement", 12000),
	})
	sources := fields.NewSnapshot([]fields.Field{
		sourceField(40, "Net Income", "Income Statement", 12000),
		sourceField(41, "Gross Profit", "Income Statement", 30000),
	})

	g := NewGenerator(WithReferencePeriod(refPeriod))
	candidates := g.Generate(context.Background(), dests, sources)

	cs := candidates[fields.Ref{Sheet: "Model", Row: 5}]
	require.NotEmpty(t, cs)
	assert.Equal(t, mapping.MethodExact, cs[0].Method)
	assert.Equal(t, ExactConfidence, cs[0].Confidence)
	assert.Equal(t, 40, cs[0].Source().Row)
}

func TestGenerateGeographicTranslation(t *testing.T) {
	dests := fields.NewSnapshot([]fields.Field{
		destField(12, "United States and Other North America", "Region Breakdown", 9800),
	})
	sources := fields.NewSnapshot([]fields.Field{
		sourceField(22, "North America", "Revenue by Region", 9800),
	})

	g := NewGenerator(WithReferencePeriod(refPeriod))
	candidates := g.Generate(context.Background(), dests, sources)

	cs := candidates[fields.Ref{Sheet: "Model", Row: 12}]
	require.NotEmpty(t, cs)
	assert.Equal(t, mapping.MethodGeographic, cs[0].Method)
	assert.Equal(t, LexiconConfidence, cs[0].Confidence)
}

func TestGenerateScopeSimilarityCapped(t *testing.T) {
	dests := fields.NewSnapshot([]fields.Field{
		destField(7, "Accrued Compensations", "Payables", 500),
	})
	sources := fields.NewSnapshot([]fields.Field{
		sourceField(30, "Accrued Compensation", "Payables", 500),
	})

	g := NewGenerator(WithReferencePeriod(refPeriod))
	candidates := g.Generate(context.Background(), dests, sources)

	cs := candidates[fields.Ref{Sheet: "Model", Row: 7}]
	require.NotEmpty(t, cs)
	assert.Equal(t, mapping.MethodScope, cs[0].Method)
	assert.Less(t, cs[0].Confidence, ScopeCap)
	assert.Greater(t, cs[0].Confidence, 0.0)
}

func TestDetectComposite(t *testing.T) {
	dests := fields.NewSnapshot([]fields.Field{
		destField(9, "Other Application, of which", "End Market Breakdown", 45),
	})
	sources := fields.NewSnapshot([]fields.Field{
		sourceField(30, "Medical", "Other Applications", 10),
		sourceField(31, "Scientific", "Other Applications", 30),
		sourceField(32, "Government", "Other Applications", 5),
	})

	g := NewGenerator(WithReferencePeriod(refPeriod))
	candidates := g.Generate(context.Background(), dests, sources)

	cs := candidates[fields.Ref{Sheet: "Model", Row: 9}]
	require.NotEmpty(t, cs)

	var composite *mapping.Candidate
	for i := range cs {
		if cs[i].Composite() {
			composite = &cs[i]
			break
		}
	}
	require.NotNil(t, composite, "composite candidate expected")
	assert.Equal(t, mapping.MethodComposite, composite.Method)
	assert.Equal(t, CompositeConfidence, composite.Confidence)
	assert.Equal(t, "30+31+32", composite.SourceList())
}

func TestCompositeRequiresAggregateLabel(t *testing.T) {
	// Values sum correctly but the label does not imply an aggregate.
	dests := fields.NewSnapshot([]fields.Field{
		destField(9, "Medical Revenue", "End Market Breakdown", 40),
	})
	sources := fields.NewSnapshot([]fields.Field{
		sourceField(30, "Medical", "Other Applications", 10),
		sourceField(31, "Scientific", "Other Applications", 30),
	})

	g := NewGenerator(WithReferencePeriod(refPeriod))
	candidates := g.Generate(context.Background(), dests, sources)

	for _, c := range candidates[fields.Ref{Sheet: "Model", Row: 9}] {
		assert.False(t, c.Composite())
	}
}

func TestGenerateDeterministicRanking(t *testing.T) {
	dests := fields.NewSnapshot([]fields.Field{
		destField(5, "Net Income", "Income Statement", 100),
	})
	sources := fields.NewSnapshot([]fields.Field{
		sourceField(50, "Net Income", "Income Statement", 100),
		sourceField(10, "Net Income", "Income Statement", 100),
	})

	g := NewGenerator(WithReferencePeriod(refPeriod))
	for i := 0; i < 5; i++ {
		candidates := g.Generate(context.Background(), dests, sources)
		cs := candidates[fields.Ref{Sheet: "Model", Row: 5}]
		require.Len(t, cs, 2)
		// Equal confidence: lower source row ranks first, every run.
		assert.Equal(t, 10, cs[0].Source().Row)
		assert.Equal(t, 50, cs[1].Source().Row)
	}
}

func TestScopeSimilarity(t *testing.T) {
	a := fields.BuildScope("Balance Sheet", []string{"Payables"}, "Accrued Compensation")

	// Identical normalized paths stay strictly under the cap.
	assert.InDelta(t, ScopeCap-0.01, scopeSimilarity(a, a), 1e-9)
	assert.Less(t, scopeSimilarity(a, a), ScopeCap)

	b := fields.BuildScope("Balance Sheet", []string{"Payables"}, "Accrued Compensations")
	sim := scopeSimilarity(a, b)
	// Two exact components and one near component out of three.
	assert.InDelta(t, (2.5/3.0)*ScopeCap, sim, 1e-9)

	assert.Zero(t, scopeSimilarity(a, nil))
}
