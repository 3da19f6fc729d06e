package sheets

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/finsheet/fieldmap/pkg/errors"
	"github.com/finsheet/fieldmap/pkg/fields"
)

// ScanConfig describes how to derive a field snapshot from one sheet:
// where labels live, which columns carry which reference periods, and the
// row range to walk.
type ScanConfig struct {
	Sheet    string
	LabelCol int            // 1-based column holding field labels
	Periods  map[string]int // reference period -> 1-based value column
	StartRow int            // first data row, 1-based
	EndRow   int            // last row to consider

	// SectionDepth limits the ancestor stack; 0 means a single level.
	SectionDepth int
}

// Scan snapshots a sheet's fields. A row whose label cell is populated but
// whose period columns are all empty is treated as a section header; data
// rows beneath it inherit it as their innermost ancestor. Rows with an
// empty label cell are ignored.
func Scan(r Reader, cfg ScanConfig) ([]fields.Field, error) {
	if cfg.Sheet == "" || cfg.LabelCol < 1 || cfg.StartRow < 1 || cfg.EndRow < cfg.StartRow {
		return nil, errors.NewConfigError("scan", "invalid scan configuration", nil)
	}
	depth := cfg.SectionDepth
	if depth < 1 {
		depth = 1
	}

	var out []fields.Field
	var sections []string

	for row := cfg.StartRow; row <= cfg.EndRow; row++ {
		label, err := r.Read(cfg.Sheet, row, cfg.LabelCol)
		if err != nil {
			return nil, err
		}
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}

		values := make(map[string]decimal.Decimal, len(cfg.Periods))
		percentage := false
		for period, col := range cfg.Periods {
			raw, err := r.Read(cfg.Sheet, row, col)
			if err != nil {
				continue
			}
			if v, isPct, ok := ParseNumeric(raw); ok {
				values[period] = v
				percentage = percentage || isPct
			}
		}

		if len(values) == 0 {
			// Section header row: becomes the innermost ancestor.
			if len(sections) >= depth {
				sections = sections[:depth-1]
			}
			sections = append(sections, label)
			continue
		}

		sectionsCopy := make([]string, len(sections))
		copy(sectionsCopy, sections)

		f := fields.Field{
			Ref:      fields.Ref{Sheet: cfg.Sheet, Row: row},
			Label:    label,
			Sections: sectionsCopy,
			Scope:    fields.BuildScope(cfg.Sheet, sectionsCopy, label),
			Values:   values,
		}
		if percentage || sectionImpliesPercentage(sectionsCopy) {
			f.Category = fields.CategoryPercentage
		}
		out = append(out, f)
	}
	return out, nil
}

// sectionImpliesPercentage reports whether any ancestor marks a
// percentage block, e.g. "Revenue by region (% of total)".
func sectionImpliesPercentage(sections []string) bool {
	for _, s := range sections {
		if strings.Contains(s, "%") {
			return true
		}
	}
	return false
}

// ParseNumeric parses a formatted cell value into a decimal. Thousands
// separators are stripped; a trailing "%" marks a fractional value and is
// rescaled. The second return flags the percent form.
func ParseNumeric(raw string) (decimal.Decimal, bool, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, false, false
	}
	s = strings.ReplaceAll(s, ",", "")

	percent := strings.HasSuffix(s, "%")
	if percent {
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	}

	// Accounting negatives: (1234) means -1234.
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + s[1:len(s)-1]
	}

	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false, false
	}
	if percent {
		v = v.Div(decimal.NewFromInt(100))
	}
	return v, percent, true
}
