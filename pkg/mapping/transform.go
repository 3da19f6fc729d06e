package mapping

import (
	"fmt"

	"github.com/finsheet/fieldmap/pkg/errors"
	"github.com/finsheet/fieldmap/pkg/fields"
)

// Transformation is the closed set of rules governing how a source value
// (or set of values) becomes a destination value. New variants must be
// added here and handled by the executor; unknown tags from a rule table
// are a construction-time ConfigError, never a silent default.
type Transformation interface {
	// Tag returns the rule-table tag of the transformation.
	Tag() string

	isTransformation()
}

// DirectCopy writes the source value verbatim.
type DirectCopy struct{}

// Tag returns the rule-table tag of the transformation.
func (DirectCopy) Tag() string { return "direct_copy" }

func (DirectCopy) isTransformation() {}

// SumFields writes the arithmetic sum of all component source values.
// A missing component is treated as zero and noted in the audit record;
// if every component is missing the assignment fails instead of writing 0.
type SumFields struct {
	Components []fields.Ref
}

// Tag returns the rule-table tag of the transformation.
func (SumFields) Tag() string { return "sum_fields" }

func (SumFields) isTransformation() {}

// PercentageValue copies a value that is already a fractional
// representation, without rescaling. Values outside [-1, 1] are written
// but flagged in the audit note.
type PercentageValue struct{}

// Tag returns the rule-table tag of the transformation.
func (PercentageValue) Tag() string { return "percentage_value" }

func (PercentageValue) isTransformation() {}

// ZeroValue writes a literal zero, used when the mapping intentionally
// represents "not applicable".
type ZeroValue struct{}

// Tag returns the rule-table tag of the transformation.
func (ZeroValue) Tag() string { return "zero_value" }

func (ZeroValue) isTransformation() {}

// ParseTransformation constructs a transformation from its rule-table tag.
// Composite source locators require the sum_fields tag and vice versa.
func ParseTransformation(tag string, sources []fields.Ref) (Transformation, error) {
	switch tag {
	case DirectCopy{}.Tag():
		if len(sources) > 1 {
			return nil, errors.NewConfigError("rules",
				"direct_copy cannot take a composite source locator", nil)
		}
		return DirectCopy{}, nil
	case SumFields{}.Tag():
		if len(sources) == 0 {
			return nil, errors.NewConfigError("rules",
				"sum_fields requires at least one component", nil)
		}
		return SumFields{Components: sources}, nil
	case PercentageValue{}.Tag():
		if len(sources) > 1 {
			return nil, errors.NewConfigError("rules",
				"percentage_value cannot take a composite source locator", nil)
		}
		return PercentageValue{}, nil
	case ZeroValue{}.Tag():
		return ZeroValue{}, nil
	}
	return nil, errors.NewConfigError("rules", fmt.Sprintf("unknown transformation tag %q", tag), nil)
}
