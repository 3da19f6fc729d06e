package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const layoutYAML = `
source:
  sheets:
    - sheet: Income Statement
      label_column: A
      start_row: 4
      end_row: 120
      periods:
        "Q1 FY2025": C
        "Q2 FY2025": D
dest:
  sheet: Model
  label_column: B
  start_row: 3
  end_row: 200
  periods:
    "Q1 FY2025": E
  value_column: F
  tracking_column: "9"
reference_period: "Q1 FY2025"
populate_period: "Q2 FY2025"
`

func writeLayout(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fieldmap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadLayout(t *testing.T) {
	layout, err := LoadLayout(writeLayout(t, layoutYAML))
	require.NoError(t, err)

	scans, err := layout.SourceScans()
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.Equal(t, "Income Statement", scans[0].Sheet)
	assert.Equal(t, 1, scans[0].LabelCol)
	assert.Equal(t, 3, scans[0].Periods["Q1 FY2025"])
	assert.Equal(t, 4, scans[0].Periods["Q2 FY2025"])

	destScan, err := layout.Dest.ScanConfig()
	require.NoError(t, err)
	assert.Equal(t, "Model", destScan.Sheet)
	assert.Equal(t, 2, destScan.LabelCol)

	value, tracking, err := layout.DestColumns()
	require.NoError(t, err)
	assert.Equal(t, 6, value)
	assert.Equal(t, 9, tracking)
}

func TestLoadLayoutValidation(t *testing.T) {
	_, err := LoadLayout(writeLayout(t, "source:\n  sheets: []\n"))
	assert.Error(t, err, "no source sheets")

	_, err = LoadLayout(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	noPeriod := `
source:
  sheets:
    - sheet: IS
      label_column: A
      start_row: 1
      end_row: 2
dest:
  sheet: Model
  label_column: A
  start_row: 1
  end_row: 2
  value_column: B
`
	_, err = LoadLayout(writeLayout(t, noPeriod))
	assert.Error(t, err, "populate_period required")
}

func TestGeminiAPIKeyFromEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	assert.Empty(t, GeminiAPIKey())

	t.Setenv("GOOGLE_API_KEY", "g-key")
	assert.Equal(t, "g-key", GeminiAPIKey())

	t.Setenv("GEMINI_API_KEY", "primary")
	assert.Equal(t, "primary", GeminiAPIKey())
}
