package match

import (
	"github.com/agnivade/levenshtein"

	"github.com/finsheet/fieldmap/pkg/fields"
)

const (
	// componentNearThreshold is the normalized edit-distance similarity
	// above which two differing path components count as a near match.
	componentNearThreshold = 0.8

	// scopeCapMargin keeps even a fully identical normalized path
	// strictly under ScopeCap: two labels collapsing to the same scope
	// are not the same evidence as an exact or lexicon label hit.
	scopeCapMargin = 0.01
)

// scopeSimilarity compares two scope paths component-wise: an identical
// component counts 1.0, a near component 0.5, divided by the longer path's
// length. The result is scaled into [0, ScopeCap) so scope matches never
// outrank exact or lexicon hits.
func scopeSimilarity(a, b fields.Path) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	maxParts := len(a)
	if len(b) > maxParts {
		maxParts = len(b)
	}
	shared := len(a)
	if len(b) < shared {
		shared = len(b)
	}

	var matching float64
	for i := 0; i < shared; i++ {
		switch {
		case a[i] == b[i]:
			matching += 1.0
		case stringSimilarity(a[i], b[i]) > componentNearThreshold:
			matching += 0.5
		}
	}

	score := (matching / float64(maxParts)) * ScopeCap
	if score >= ScopeCap {
		score = ScopeCap - scopeCapMargin
	}
	return score
}

// stringSimilarity is a normalized Levenshtein similarity in [0, 1].
func stringSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(longest)
}
