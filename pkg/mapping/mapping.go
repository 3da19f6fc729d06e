// Package mapping defines the correspondence model between destination and
// source fields: scored candidates proposed by the matching methods, the
// closed set of value transformations, and the committed assignments the
// executor consumes.
package mapping

import (
	"fmt"
	"strings"

	"github.com/finsheet/fieldmap/pkg/errors"
	"github.com/finsheet/fieldmap/pkg/fields"
)

// Method tags the matching method that produced a candidate.
type Method string

// Known matching methods.
const (
	MethodExact      Method = "Exact_Match"
	MethodSemantic   Method = "Semantic_Match"
	MethodGeographic Method = "Geographic_Translation"
	MethodScope      Method = "Scope_Similarity"
	MethodComposite  Method = "Composite_Match"
	MethodOracle     Method = "Oracle_Suggestion"
	MethodManual     Method = "Manual"
)

// ParseMethod validates a method tag from an external rule table.
func ParseMethod(tag string) (Method, error) {
	switch Method(tag) {
	case MethodExact, MethodSemantic, MethodGeographic, MethodScope,
		MethodComposite, MethodOracle, MethodManual:
		return Method(tag), nil
	}
	return "", errors.NewConfigError("rules", fmt.Sprintf("unknown method tag %q", tag), nil)
}

// Status is the lifecycle state of an assignment.
type Status int

// Assignment states. An assignment leaves resolution as Pending or never
// exists; execution moves it to Committed or Failed. Destinations with no
// viable candidate are Skipped.
const (
	StatusPending Status = iota
	StatusCommitted
	StatusFailed
	StatusSkipped
)

// String returns the audit-trail form of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusCommitted:
		return "Committed"
	case StatusFailed:
		return "Failed"
	case StatusSkipped:
		return "Skipped"
	default:
		return "Unknown"
	}
}

// Candidate is a scored, evidence-tagged proposed correspondence between
// one destination field and one or more source fields. Candidates are
// immutable once generated; the verifier produces adjusted copies.
type Candidate struct {
	Dest       fields.Ref
	Sources    []fields.Ref // exactly one entry except for composite matches
	Method     Method
	Confidence float64
	Evidence   string
}

// Composite reports whether the candidate's source side is a set of fields.
func (c Candidate) Composite() bool {
	return len(c.Sources) > 1
}

// Source returns the single source reference of a non-composite candidate.
func (c Candidate) Source() fields.Ref {
	return c.Sources[0]
}

// SourceList renders the source rows joined with "+", the form used by
// composite locators ("30+31+32+33").
func (c Candidate) SourceList() string {
	parts := make([]string, len(c.Sources))
	for i, s := range c.Sources {
		parts[i] = fmt.Sprintf("%d", s.Row)
	}
	return strings.Join(parts, "+")
}

// Assignment is a committed, conflict-free pairing drawn from exactly one
// candidate, carrying the transformation the executor applies.
type Assignment struct {
	Dest        fields.Ref
	DestLabel   string
	Sources     []fields.Ref
	SourceLabel string
	Method      Method
	Confidence  float64
	Transform   Transformation
	Status      Status
	Note        string
}

// Composite reports whether the assignment draws from a set of source fields.
func (a Assignment) Composite() bool {
	return len(a.Sources) > 1
}
