package oracle

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/genai"

	"github.com/finsheet/fieldmap/pkg/errors"
	"github.com/finsheet/fieldmap/pkg/fields"
	"github.com/finsheet/fieldmap/pkg/logging"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-pro"

// Gemini is a RefinementOracle backed by the Google GenAI API. Both field
// lists are serialized with their scope paths into a single prompt; the
// model answers with one suggestion per line in a fixed CSV-like shape.
type Gemini struct {
	client *genai.Client
	model  string
}

// GeminiOption configures the Gemini oracle.
type GeminiOption func(*Gemini)

// WithModel overrides the Gemini model ID.
func WithModel(model string) GeminiOption {
	return func(g *Gemini) {
		if model != "" {
			g.model = model
		}
	}
}

// NewGemini creates a Gemini oracle using the given API key.
func NewGemini(ctx context.Context, apiKey string, opts ...GeminiOption) (*Gemini, error) {
	if apiKey == "" {
		return nil, &errors.ConfigError{
			Component: "oracle",
			Message:   "API key required for the Gemini refinement oracle - set GEMINI_API_KEY",
		}
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, &errors.OracleError{Provider: "gemini", Message: "client init failed", Err: err}
	}

	g := &Gemini{client: client, model: DefaultModel}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Refine sends the pending destinations and both field lists to Gemini and
// parses its suggestions. Malformed suggestion lines are skipped, never
// fatal; an unreachable API is an OracleError the resolver degrades on.
func (g *Gemini) Refine(ctx context.Context, dests, sources *fields.Snapshot, pending []Request) ([]Suggestion, error) {
	if len(pending) == 0 {
		return nil, nil
	}
	log := logging.FromContext(ctx)

	prompt := buildPrompt(dests, sources, pending)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &errors.TimeoutError{Operation: "oracle refine", Message: ctx.Err().Error()}
		}
		return nil, &errors.OracleError{Provider: "gemini", Message: "generate content failed", Err: err}
	}

	suggestions := parseSuggestions(resp.Text(), dests, sources)
	log.Debug().
		Int("pending", len(pending)).
		Int("suggestions", len(suggestions)).
		Str("model", g.model).
		Msg("Oracle refinement complete")
	return suggestions, nil
}

// buildPrompt serializes the field lists and pending destinations. Fields
// are addressed as SRC_<n>/DEST_<n> indexes into the snapshot lists so the
// model never has to echo sheet names or labels back.
func buildPrompt(dests, sources *fields.Snapshot, pending []Request) string {
	var b strings.Builder

	b.WriteString(`You are an expert financial data analyst. Match destination fields to source fields based on semantic meaning and hierarchical context.

RULES:
1. Each source field maps to AT MOST ONE destination field.
2. Absolute-value sections must not be matched to percentage sections.
3. Only return matches you are confident about (confidence above 0.7).
4. Answer with one line per match, no other text:
   SRC_<n>,DEST_<n>,<confidence 0..1>,<short reason>

SOURCE FIELDS:
`)
	for i, f := range sources.List() {
		fmt.Fprintf(&b, "SRC_%d: %s | Section: %s | Scope: %s\n", i+1, f.Label, f.Section(), f.Scope)
	}

	b.WriteString("\nUNRESOLVED DESTINATION FIELDS:\n")
	destIndex := indexByRef(dests)
	sourceIndex := indexByRef(sources)
	for _, req := range pending {
		i := destIndex[req.Dest.Ref]
		fmt.Fprintf(&b, "DEST_%d: %s | Section: %s | Scope: %s\n",
			i+1, req.Dest.Label, req.Dest.Section(), req.Dest.Scope)
		for _, c := range req.Candidates {
			fmt.Fprintf(&b, "  local candidate: SRC_%d (%.2f, %s)\n",
				sourceIndex[c.Sources[0]]+1, c.Confidence, c.Method)
		}
	}
	return b.String()
}

// parseSuggestions extracts well-formed "SRC_n,DEST_n,conf,reason" lines.
func parseSuggestions(text string, dests, sources *fields.Snapshot) []Suggestion {
	srcList := sources.List()
	destList := dests.List()

	var out []Suggestion
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "SRC_") {
			continue
		}
		parts := strings.SplitN(line, ",", 4)
		if len(parts) < 3 {
			continue
		}

		srcIdx, err1 := strconv.Atoi(strings.TrimPrefix(parts[0], "SRC_"))
		destIdx, err2 := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(parts[1]), "DEST_"))
		conf, err3 := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		if srcIdx < 1 || srcIdx > len(srcList) || destIdx < 1 || destIdx > len(destList) {
			continue
		}
		if conf < 0 || conf > 1 {
			continue
		}

		rationale := ""
		if len(parts) == 4 {
			rationale = strings.TrimSpace(parts[3])
		}
		out = append(out, Suggestion{
			Dest:       destList[destIdx-1].Ref,
			Source:     srcList[srcIdx-1].Ref,
			Confidence: conf,
			Rationale:  rationale,
		})
	}
	return out
}

// indexByRef maps each snapshot field reference to its list index.
func indexByRef(s *fields.Snapshot) map[fields.Ref]int {
	out := make(map[fields.Ref]int, s.Len())
	for i, f := range s.List() {
		out[f.Ref] = i
	}
	return out
}
