package config

import (
	"os"

	"github.com/goccy/go-yaml"

	"github.com/finsheet/fieldmap/pkg/errors"
	"github.com/finsheet/fieldmap/pkg/sheets"
)

// SheetLayout describes where one sheet keeps its labels and period
// value columns. Columns accept letter ("C") or numeric ("3") form.
type SheetLayout struct {
	Sheet        string            `yaml:"sheet"`
	LabelColumn  string            `yaml:"label_column"`
	Periods      map[string]string `yaml:"periods"`
	StartRow     int               `yaml:"start_row"`
	EndRow       int               `yaml:"end_row"`
	SectionDepth int               `yaml:"section_depth,omitempty"`
}

// DestLayout extends a sheet layout with the columns population writes.
type DestLayout struct {
	SheetLayout    `yaml:",inline"`
	ValueColumn    string `yaml:"value_column"`
	TrackingColumn string `yaml:"tracking_column,omitempty"`
}

// Layout is the workbook geometry file: which sheets to scan, where
// labels and periods live, and which columns receive values.
type Layout struct {
	Source struct {
		Sheets []SheetLayout `yaml:"sheets"`
	} `yaml:"source"`
	Dest            DestLayout `yaml:"dest"`
	ReferencePeriod string     `yaml:"reference_period"`
	PopulatePeriod  string     `yaml:"populate_period"`
}

// LoadLayout reads and validates a layout file.
func LoadLayout(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO("open", path, err)
	}
	var l Layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, errors.NewConfigError("layout", "cannot parse "+path, err)
	}
	if len(l.Source.Sheets) == 0 {
		return nil, errors.NewConfigError("layout", "at least one source sheet is required", nil)
	}
	if l.Dest.Sheet == "" {
		return nil, errors.NewConfigError("layout", "destination sheet is required", nil)
	}
	if l.PopulatePeriod == "" {
		return nil, errors.NewConfigError("layout", "populate_period is required", nil)
	}
	return &l, nil
}

// ScanConfig converts one sheet layout into the scanner's form.
func (s SheetLayout) ScanConfig() (sheets.ScanConfig, error) {
	labelCol, err := sheets.ColumnIndex(s.LabelColumn)
	if err != nil {
		return sheets.ScanConfig{}, err
	}
	periods := make(map[string]int, len(s.Periods))
	for period, col := range s.Periods {
		n, err := sheets.ColumnIndex(col)
		if err != nil {
			return sheets.ScanConfig{}, err
		}
		periods[period] = n
	}
	return sheets.ScanConfig{
		Sheet:        s.Sheet,
		LabelCol:     labelCol,
		Periods:      periods,
		StartRow:     s.StartRow,
		EndRow:       s.EndRow,
		SectionDepth: s.SectionDepth,
	}, nil
}

// SourceScans converts every source sheet layout.
func (l *Layout) SourceScans() ([]sheets.ScanConfig, error) {
	out := make([]sheets.ScanConfig, 0, len(l.Source.Sheets))
	for _, s := range l.Source.Sheets {
		cfg, err := s.ScanConfig()
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

// DestColumns resolves the destination value and tracking columns. A
// missing tracking column returns 0, disabling annotations.
func (l *Layout) DestColumns() (value, tracking int, err error) {
	value, err = sheets.ColumnIndex(l.Dest.ValueColumn)
	if err != nil {
		return 0, 0, err
	}
	if l.Dest.TrackingColumn == "" {
		return value, 0, nil
	}
	tracking, err = sheets.ColumnIndex(l.Dest.TrackingColumn)
	if err != nil {
		return 0, 0, err
	}
	return value, tracking, nil
}
