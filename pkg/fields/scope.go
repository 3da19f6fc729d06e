package fields

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Path is a normalized hierarchical scope: statement, section, subsection,
// terminating in the field's own label. Two fields with identical structural
// position produce identical paths.
type Path []string

// String joins the path segments with dots,
// e.g. "balance_sheet.payables.accrued_compensation".
func (p Path) String() string {
	return strings.Join(p, ".")
}

// Equal reports whether two paths are identical.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

var lowerCaser = cases.Lower(language.Und)

// NormalizeLabel lower-cases a display label and collapses runs of
// whitespace into single spaces. Punctuation is preserved so labels like
// "accounts receivable, net" keep their written form.
func NormalizeLabel(label string) string {
	return strings.Join(strings.Fields(lowerCaser.String(label)), " ")
}

// NormalizeSegment converts a label into a scope path segment: lower-cased
// with every run of non-alphanumeric characters collapsed to a single
// underscore.
func NormalizeSegment(label string) string {
	lowered := lowerCaser.String(label)
	var b strings.Builder
	pendingSep := false
	for _, r := range lowered {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		} else {
			pendingSep = true
		}
	}
	return b.String()
}

// BuildScope derives the normalized scope path for a field from its sheet
// name, ancestor section labels in top-down order, and its own label.
// It is a pure function: identical structural input yields an identical path.
func BuildScope(sheet string, sections []string, label string) Path {
	path := make(Path, 0, len(sections)+2)
	if seg := NormalizeSegment(sheet); seg != "" {
		path = append(path, seg)
	}
	for _, section := range sections {
		if seg := NormalizeSegment(section); seg != "" {
			path = append(path, seg)
		}
	}
	if seg := NormalizeSegment(label); seg != "" {
		path = append(path, seg)
	}
	return path
}
