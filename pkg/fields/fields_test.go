package fields

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Net Income", "net income"},
		{"  Accounts   Receivable, Net  ", "accounts receivable, net"},
		{"R&D", "r&d"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeLabel(tt.in), "input %q", tt.in)
	}
}

func TestNormalizeSegment(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Accrued Compensation", "accrued_compensation"},
		{"Revenue by Region (% of Total)", "revenue_by_region_of_total"},
		{"  Payables  ", "payables"},
		{"---", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeSegment(tt.in), "input %q", tt.in)
	}
}

func TestBuildScope(t *testing.T) {
	path := BuildScope("Balance Sheet", []string{"Payables"}, "Accrued Compensation")
	assert.Equal(t, "balance_sheet.payables.accrued_compensation", path.String())

	// Identical structural input yields an identical path.
	again := BuildScope("Balance Sheet", []string{"Payables"}, "Accrued Compensation")
	assert.True(t, path.Equal(again))

	// Empty sections are dropped rather than producing empty segments.
	path = BuildScope("Income Statement", []string{"--"}, "Revenue")
	assert.Equal(t, "income_statement.revenue", path.String())
}

func TestSnapshotOrderingAndLookup(t *testing.T) {
	fs := []Field{
		{Ref: Ref{Sheet: "B", Row: 10}, Label: "third"},
		{Ref: Ref{Sheet: "A", Row: 20}, Label: "second"},
		{Ref: Ref{Sheet: "A", Row: 5}, Label: "first"},
	}
	snap := NewSnapshot(fs)
	require.Equal(t, 3, snap.Len())

	list := snap.List()
	assert.Equal(t, "first", list[0].Label)
	assert.Equal(t, "second", list[1].Label)
	assert.Equal(t, "third", list[2].Label)

	got, ok := snap.Get(Ref{Sheet: "A", Row: 20})
	require.True(t, ok)
	assert.Equal(t, "second", got.Label)

	_, ok = snap.Get(Ref{Sheet: "C", Row: 1})
	assert.False(t, ok)
}

func TestFieldValue(t *testing.T) {
	f := Field{
		Ref:    Ref{Sheet: "IS", Row: 4},
		Label:  "Revenue",
		Values: map[string]decimal.Decimal{"Q1 FY2025": decimal.NewFromInt(63964)},
	}

	v, ok := f.Value("Q1 FY2025")
	require.True(t, ok)
	assert.True(t, v.Equal(decimal.NewFromInt(63964)))

	_, ok = f.Value("Q2 FY2025")
	assert.False(t, ok)
}

func TestSameSection(t *testing.T) {
	fs := []Field{
		{Ref: Ref{Sheet: "IS", Row: 10}, Label: "Europe", Sections: []string{"Revenue by Region"}},
		{Ref: Ref{Sheet: "IS", Row: 11}, Label: "Asia", Sections: []string{"Revenue by Region"}},
		{Ref: Ref{Sheet: "IS", Row: 20}, Label: "Systems", Sections: []string{"Revenue by Product"}},
	}
	snap := NewSnapshot(fs)

	peers := snap.SameSection(&fs[0])
	require.Len(t, peers, 1)
	assert.Equal(t, "Asia", peers[0].Label)
	assert.Equal(t, "Revenue by Region", peers[0].Section())
}
