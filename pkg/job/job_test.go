package job

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsheet/fieldmap/pkg/fields"
	"github.com/finsheet/fieldmap/pkg/mapping"
	"github.com/finsheet/fieldmap/pkg/oracle"
	"github.com/finsheet/fieldmap/pkg/rules"
	"github.com/finsheet/fieldmap/pkg/sheets"
)

const (
	refPeriod = "Q1 FY2025"
	popPeriod = "Q2 FY2025"
)

// fixtureConfig builds a small but complete source/destination pair:
// an exact label match, a geographic translation, and a scope match,
// all verifiable against the shared reference quarter.
func fixtureConfig() Config {
	source := sheets.NewMemory("Income Statement")
	set := func(row int, label string, q1, q2 string) {
		source.Set("Income Statement", row, 1, label)
		source.Set("Income Statement", row, 3, q1)
		source.Set("Income Statement", row, 4, q2)
	}
	source.Set("Income Statement", 4, 1, "Income Statement")
	set(5, "Revenue", "63,964", "71,200")
	set(6, "Net Income", "12,000", "14,500")
	source.Set("Income Statement", 8, 1, "Revenue by Region")
	set(9, "North America", "9,800", "10,200")

	dest := sheets.NewMemory("Model")
	dset := func(row int, label string, q1 string) {
		dest.Set("Model", row, 2, label)
		dest.Set("Model", row, 5, q1)
	}
	dest.Set("Model", 3, 2, "Consolidated Income Statement")
	dset(4, "Revenue", "63,964")
	dset(5, "Net Income", "12,000")
	dest.Set("Model", 7, 2, "Region Breakdown")
	dset(8, "United States and Other North America", "9,800")

	return Config{
		Source:     source,
		Dest:       dest,
		SourceName: "source.xlsx",
		SourceScans: []sheets.ScanConfig{{
			Sheet:    "Income Statement",
			LabelCol: 1,
			Periods:  map[string]int{refPeriod: 3, popPeriod: 4},
			StartRow: 4,
			EndRow:   9,
		}},
		DestScan: sheets.ScanConfig{
			Sheet:    "Model",
			LabelCol: 2,
			Periods:  map[string]int{refPeriod: 5},
			StartRow: 3,
			EndRow:   8,
		},
		ReferencePeriod: refPeriod,
		PopulatePeriod:  popPeriod,
		DestColumn:      6,
		TrackingColumn:  9,
	}
}

func TestJobRunEndToEnd(t *testing.T) {
	cfg := fixtureConfig()
	j, err := New(cfg, WithID("job-test"))
	require.NoError(t, err)

	result, err := j.Run(context.Background())
	require.NoError(t, err)

	report := result.Report
	require.NotNil(t, report)
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 3, report.Populated)
	assert.Zero(t, report.Failed)
	assert.False(t, report.Degraded)

	dest := cfg.Dest.(*sheets.Memory)
	read := func(row, col int) string {
		v, err := dest.Read("Model", row, col)
		require.NoError(t, err)
		return v
	}

	// Populate-period values land in the destination value column.
	assert.Equal(t, "71200", read(4, 6))
	assert.Equal(t, "14500", read(5, 6))
	assert.Equal(t, "10200", read(8, 6))

	// Tracking annotations name the populate-period source cells.
	assert.Equal(t, "source.xlsx|Income Statement|5|D", read(4, 9))
	assert.Equal(t, "source.xlsx|Income Statement|9|D", read(8, 9))

	byDest := map[int]mapping.Assignment{}
	for _, a := range result.Assignments {
		byDest[a.Dest.Row] = a
	}
	assert.Equal(t, mapping.MethodGeographic, byDest[8].Method)
	assert.Equal(t, 9, byDest[8].Sources[0].Row)
}

// recordingOracle returns a fixed suggestion and remembers being asked.
type recordingOracle struct {
	called  bool
	suggest oracle.Suggestion
}

func (o *recordingOracle) Refine(_ context.Context, _, _ *fields.Snapshot, _ []oracle.Request) ([]oracle.Suggestion, error) {
	o.called = true
	return []oracle.Suggestion{o.suggest}, nil
}

func TestJobLowThresholdKeepsMismatchFromAutoCommit(t *testing.T) {
	cfg := fixtureConfig()
	source := cfg.Source.(*sheets.Memory)

	// The exact-label pair for destination row 4 now disagrees on the
	// reference quarter, while an unmatched line carries the right value.
	source.Set("Income Statement", 5, 3, "63,000")
	source.Set("Income Statement", 7, 1, "Misc Line")
	source.Set("Income Statement", 7, 3, "63,964")
	source.Set("Income Statement", 7, 4, "71,500")

	orc := &recordingOracle{suggest: oracle.Suggestion{
		Dest:       fields.Ref{Sheet: "Model", Row: 4},
		Source:     fields.Ref{Sheet: "Income Statement", Row: 7},
		Confidence: 0.9,
		Rationale:  "alternate revenue line",
	}}

	j, err := New(cfg, WithThreshold(0.35), WithOracle(orc))
	require.NoError(t, err)

	result, err := j.Run(context.Background())
	require.NoError(t, err)

	// A demoted mismatch stays below even a low auto-accept bar, so the
	// unresolved destination reaches the oracle instead of committing.
	assert.True(t, orc.called)

	byDest := map[int]mapping.Assignment{}
	for _, a := range result.Assignments {
		byDest[a.Dest.Row] = a
	}
	require.Contains(t, byDest, 4)
	assert.Equal(t, mapping.MethodOracle, byDest[4].Method)
	assert.Equal(t, 7, byDest[4].Sources[0].Row)

	v, err := cfg.Dest.(*sheets.Memory).Read("Model", 4, 6)
	require.NoError(t, err)
	assert.Equal(t, "71500", v)
}

func TestJobRunDeterministic(t *testing.T) {
	render := func(t *testing.T) ([]mapping.Assignment, string) {
		t.Helper()
		j, err := New(fixtureConfig(), WithID("job-det"))
		require.NoError(t, err)

		result, err := j.Run(context.Background())
		require.NoError(t, err)

		var buf bytes.Buffer
		require.NoError(t, result.Trail.WriteCSV(&buf))

		// Timestamps are the only run-dependent column; drop them.
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		for i := 1; i < len(lines); i++ {
			if idx := strings.Index(lines[i], ","); idx >= 0 {
				lines[i] = lines[i][idx+1:]
			}
		}
		return result.Assignments, strings.Join(lines, "\n")
	}

	first, firstTrail := render(t)
	second, secondTrail := render(t)

	assert.Equal(t, first, second)
	assert.Equal(t, firstTrail, secondTrail)
}

func TestJobMatchProducesRuleTable(t *testing.T) {
	cfg := fixtureConfig()
	j, err := New(cfg)
	require.NoError(t, err)

	result, err := j.Match(context.Background())
	require.NoError(t, err)

	// Match touches nothing.
	assert.Zero(t, cfg.Dest.(*sheets.Memory).Pending())

	require.Len(t, result.Rules, len(result.Assignments))
	for _, row := range result.Rules {
		assert.Equal(t, "Income Statement", row.SourceSheet)
		assert.Equal(t, 4, row.ValueColumn, "populate-period column")
	}
}

func TestJobDryRunStagesNothingPermanent(t *testing.T) {
	cfg := fixtureConfig()
	j, err := New(cfg, WithDryRun(true))
	require.NoError(t, err)

	result, err := j.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result.Report)

	dest := cfg.Dest.(*sheets.Memory)
	// Writes were staged but never flushed.
	v, err := dest.Read("Model", 4, 6)
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestJobRunRules(t *testing.T) {
	cfg := fixtureConfig()
	j, err := New(cfg, WithID("job-rules"))
	require.NoError(t, err)

	table := &rules.Table{Rows: []rules.Row{{
		DestRow:     5,
		DestLabel:   "Net Income",
		SourceSheet: "Income Statement",
		SourceRows:  []int{6},
		SourceLabel: "Net Income",
		ValueColumn: 4,
		Method:      mapping.MethodManual,
		Transform:   mapping.DirectCopy{},
		Confidence:  1.0,
	}}}

	result, err := j.RunRules(context.Background(), table)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Report.Attempted)
	assert.Equal(t, 1, result.Report.Populated)

	v, err := cfg.Dest.(*sheets.Memory).Read("Model", 5, 6)
	require.NoError(t, err)
	assert.Equal(t, "14500", v)
}

func TestJobRunRulesRejectsMissingSheet(t *testing.T) {
	cfg := fixtureConfig()
	j, err := New(cfg)
	require.NoError(t, err)

	table := &rules.Table{Rows: []rules.Row{{
		DestRow:     5,
		SourceSheet: "Nope",
		SourceRows:  []int{6},
		ValueColumn: 4,
		Method:      mapping.MethodManual,
		Transform:   mapping.DirectCopy{},
	}}}

	_, err = j.RunRules(context.Background(), table)
	assert.Error(t, err)
}

func TestJobConfigValidation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	cfg := fixtureConfig()
	cfg.DestColumn = 0
	_, err = New(cfg)
	assert.Error(t, err)
}
