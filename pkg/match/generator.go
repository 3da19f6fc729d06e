// Package match generates ranked mapping candidates. For every destination
// field each source field is scored by four simultaneous methods: exact
// label match, configured lexicon substitution, scope-path similarity, and
// composite detection. Only the best method per (destination, source) pair
// survives; all candidates for a destination are kept as a ranked list.
package match

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/finsheet/fieldmap/pkg/fields"
	"github.com/finsheet/fieldmap/pkg/lexicon"
	"github.com/finsheet/fieldmap/pkg/logging"
	"github.com/finsheet/fieldmap/pkg/mapping"
)

// Confidence constants for the individual methods. Exact and lexicon hits
// outrank scope similarity, which is scaled below its cap; composite
// candidates stay below all of these pending verification.
const (
	ExactConfidence     = 1.0
	LexiconConfidence   = 0.9
	ScopeCap            = 0.85
	CompositeConfidence = 0.6
)

// Generator produces candidates for a destination snapshot against a
// source snapshot. Generation is a pure function of the two immutable
// snapshots and runs destination fields on parallel workers.
type Generator struct {
	lex     *lexicon.Lexicon
	period  string // reference period used to anchor composite detection
	workers int
}

// Option configures a Generator.
type Option func(*Generator)

// WithLexicon sets the substitution tables. Defaults to the curated tables.
func WithLexicon(lex *lexicon.Lexicon) Option {
	return func(g *Generator) {
		if lex != nil {
			g.lex = lex
		}
	}
}

// WithReferencePeriod sets the period composite detection sums against.
func WithReferencePeriod(period string) Option {
	return func(g *Generator) { g.period = period }
}

// WithWorkers bounds the candidate-generation worker pool.
func WithWorkers(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.workers = n
		}
	}
}

// NewGenerator creates a Generator with options.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		lex:     lexicon.Default(),
		workers: 4,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate scores every source field against every destination field and
// returns, per destination reference, candidates ranked by descending
// confidence (ties broken by lower source row). The context is consulted
// between destinations; generation itself is CPU-bound and does not block.
func (g *Generator) Generate(ctx context.Context, dests, sources *fields.Snapshot) map[fields.Ref][]mapping.Candidate {
	log := logging.FromContext(ctx)

	destList := dests.List()
	results := make([][]mapping.Candidate, len(destList))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < g.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = g.generateFor(&destList[i], sources)
			}
		}()
	}

dispatch:
	for i := range destList {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	out := make(map[fields.Ref][]mapping.Candidate, len(destList))
	total := 0
	for i := range destList {
		if len(results[i]) > 0 {
			out[destList[i].Ref] = results[i]
			total += len(results[i])
		}
	}

	log.Debug().
		Int("destinations", dests.Len()).
		Int("sources", sources.Len()).
		Int("candidates", total).
		Msg("Candidate generation complete")
	return out
}

// generateFor produces the ranked candidate list for one destination field.
func (g *Generator) generateFor(dest *fields.Field, sources *fields.Snapshot) []mapping.Candidate {
	var candidates []mapping.Candidate

	for _, src := range sources.List() {
		if c, ok := g.scorePair(dest, &src); ok {
			candidates = append(candidates, c)
		}
	}

	if composite, ok := g.detectComposite(dest, sources); ok {
		candidates = append(candidates, composite)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].Sources[0].Less(candidates[j].Sources[0])
	})
	return candidates
}

// scorePair applies the per-source methods and keeps the best one.
func (g *Generator) scorePair(dest, src *fields.Field) (mapping.Candidate, bool) {
	best := mapping.Candidate{
		Dest:    dest.Ref,
		Sources: []fields.Ref{src.Ref},
	}

	if fields.NormalizeLabel(dest.Label) == fields.NormalizeLabel(src.Label) {
		best.Method = mapping.MethodExact
		best.Confidence = ExactConfidence
		best.Evidence = "labels identical after normalization"
		return best, true
	}

	if method, ok := g.lex.MatchFields(dest.Label, src.Label); ok {
		best.Method = method
		best.Confidence = LexiconConfidence
		best.Evidence = "configured lexicon equivalence"
		return best, true
	}

	if sim := scopeSimilarity(dest.Scope, src.Scope); sim > 0 {
		best.Method = mapping.MethodScope
		best.Confidence = sim
		best.Evidence = "scope path similarity"
		return best, true
	}

	return mapping.Candidate{}, false
}

// detectComposite proposes a set of same-section source fields whose
// reference-period values sum to the destination's reference value. Only
// destinations whose label implies an aggregate are considered.
func (g *Generator) detectComposite(dest *fields.Field, sources *fields.Snapshot) (mapping.Candidate, bool) {
	if g.period == "" || !g.lex.ImpliesComposite(dest.Label) {
		return mapping.Candidate{}, false
	}
	target, ok := dest.Value(g.period)
	if !ok {
		return mapping.Candidate{}, false
	}

	// Group source fields by sheet and innermost section.
	groups := make(map[string][]fields.Field)
	var order []string
	for _, src := range sources.List() {
		if _, ok := src.Value(g.period); !ok {
			continue
		}
		key := src.Ref.Sheet + "\x00" + src.Section()
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], src)
	}

	for _, key := range order {
		members := groups[key]
		if len(members) < 2 {
			continue
		}
		sum := decimal.Zero
		refs := make([]fields.Ref, 0, len(members))
		for _, m := range members {
			v, _ := m.Value(g.period)
			sum = sum.Add(v)
			refs = append(refs, m.Ref)
		}
		if sum.Equal(target) {
			return mapping.Candidate{
				Dest:       dest.Ref,
				Sources:    refs,
				Method:     mapping.MethodComposite,
				Confidence: CompositeConfidence,
				Evidence:   "section members sum to destination reference value",
			}, true
		}
	}
	return mapping.Candidate{}, false
}
