// Package lexicon maintains the configured terminology tables used when the
// same concept carries different names on the two sides of a mapping:
// section synonyms, field-name synonyms, and geographic translations.
// Tables ship with curated defaults and can be extended or overridden from
// a YAML file.
package lexicon

import (
	"os"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/finsheet/fieldmap/pkg/errors"
	"github.com/finsheet/fieldmap/pkg/fields"
	"github.com/finsheet/fieldmap/pkg/mapping"
)

// Lexicon holds the substitution tables. Keys and values are normalized
// labels (lower-case, collapsed whitespace); lookups normalize their input.
type Lexicon struct {
	// Sections maps source section names to destination section names,
	// e.g. "revenue by region" -> "region breakdown".
	Sections map[string]string `yaml:"sections"`

	// Fields maps source field names to destination field names for
	// terminology and product differences.
	Fields map[string]string `yaml:"fields"`

	// Geographic maps geographic labels between the two vocabularies,
	// e.g. "north america" -> "united states and other north america".
	Geographic map[string]string `yaml:"geographic"`

	// CompositeMarkers are label fragments implying an aggregate field,
	// e.g. "and other", "total".
	CompositeMarkers []string `yaml:"composite_markers"`
}

// Default returns the built-in curated tables.
func Default() *Lexicon {
	return &Lexicon{
		Sections: map[string]string{
			"revenue by application":              "end market breakdown",
			"revenue by product":                  "segment breakdown",
			"revenue by region":                   "region breakdown",
			"revenue by region (% of total)":      "region mix (%)",
			"revenue by application (% of total)": "end market mix (%)",
			"revenue by product (% of total)":     "segment mix (%)",
			"key metrics":                         "segment information",
			"income statement":                    "consolidated income statement",
			"balance sheet":                       "consolidated balance sheet",
			"cash flows":                          "consolidated cash flow statement",
			"long-lived assets by region":         "property, plant, and equipment",
			"total backlog of orders":             "backlog",
		},
		Fields: map[string]string{
			"operating income (loss)": "operating income",
			"income (loss) before provision for income taxes": "income before provision for income taxes",
			"net income (loss)":           "net income",
			"other applications":          "other application, of which",
			"laser and non-laser systems": "systems",
			"research and development":    "r&d",
		},
		Geographic: map[string]string{
			"north america": "united states and other north america",
			"other europe":  "other including eastern europe/cis",
			"other asia":    "other asian countries",
		},
		CompositeMarkers: []string{"and other", "total", "of which"},
	}
}

// Load reads a lexicon from a YAML file and merges it over the defaults:
// file entries win on key collisions, defaults fill the rest.
func Load(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}

	var loaded Lexicon
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, errors.NewConfigError("lexicon", "malformed YAML", err)
	}

	lex := Default()
	for k, v := range loaded.Sections {
		lex.Sections[fields.NormalizeLabel(k)] = fields.NormalizeLabel(v)
	}
	for k, v := range loaded.Fields {
		lex.Fields[fields.NormalizeLabel(k)] = fields.NormalizeLabel(v)
	}
	for k, v := range loaded.Geographic {
		lex.Geographic[fields.NormalizeLabel(k)] = fields.NormalizeLabel(v)
	}
	if len(loaded.CompositeMarkers) > 0 {
		lex.CompositeMarkers = loaded.CompositeMarkers
	}
	return lex, nil
}

// TranslateSection maps a source section name into destination vocabulary.
// Returns the input unchanged when no entry exists.
func (l *Lexicon) TranslateSection(section string) (string, bool) {
	normalized := fields.NormalizeLabel(section)
	if mapped, ok := l.Sections[normalized]; ok {
		return mapped, true
	}
	return normalized, false
}

// MatchFields reports whether a destination and source label are known
// synonyms, and which method tag applies. Both table directions are
// consulted: the tables are authored source->destination but a hit in
// either direction is the same configured equivalence.
func (l *Lexicon) MatchFields(destLabel, sourceLabel string) (mapping.Method, bool) {
	dest := fields.NormalizeLabel(destLabel)
	source := fields.NormalizeLabel(sourceLabel)

	if l.Geographic[source] == dest || l.Geographic[dest] == source {
		return mapping.MethodGeographic, true
	}
	if l.Fields[source] == dest || l.Fields[dest] == source {
		return mapping.MethodSemantic, true
	}
	return "", false
}

// ImpliesComposite reports whether a destination label textually implies an
// aggregate of several source fields.
func (l *Lexicon) ImpliesComposite(label string) bool {
	normalized := fields.NormalizeLabel(label)
	for _, marker := range l.CompositeMarkers {
		if marker != "" && strings.Contains(normalized, fields.NormalizeLabel(marker)) {
			return true
		}
	}
	return false
}
