package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/helmsman-ai/concierge/pkg/ai"
	"github.com/helmsman-ai/concierge/pkg/common"
	"github.com/helmsman-ai/concierge/pkg/logger"
)

// Verdict is a disambiguation decision over a set of candidates.
type Verdict struct {
	MatchFound bool
	Entity     *common.Entity
	Confidence float64
	Reasoning  string
	Evidence   []string
}

type llmVerdict struct {
	MatchFound  bool     `json:"match_found" jsonschema_description:"Whether one of the candidates is the same person as the query identity"`
	BestMatchID string   `json:"best_match_id" jsonschema_description:"Entity ID of the best matching candidate, empty if no match"`
	Confidence  float64  `json:"confidence" jsonschema_description:"Confidence in the decision between 0 and 1"`
	Reasoning   string   `json:"reasoning" jsonschema_description:"Short explanation of the decision"`
	Evidence    []string `json:"evidence" jsonschema_description:"Specific identifier overlaps supporting the decision"`
}

// Disambiguator asks a language model to pick between ambiguous
// candidate entities when deterministic matching cannot decide.
type Disambiguator struct {
	client ai.Client
	model  string
}

// NewDisambiguator returns a disambiguator backed by the given client.
// An empty model uses the client default.
func NewDisambiguator(client ai.Client, model string) *Disambiguator {
	return &Disambiguator{client: client, model: model}
}

// Disambiguate decides whether the query identity matches one of the
// candidates. Zero candidates is a no-match and a single candidate is
// accepted at moderate confidence without a model call. Model
// confidence is clamped to [0.5, 0.9], and a match pointing at an
// unknown entity ID is rejected.
func (d *Disambiguator) Disambiguate(ctx context.Context, query Query, candidates []common.MatchCandidate) (Verdict, error) {
	if len(candidates) == 0 {
		return Verdict{Reasoning: "No candidates provided"}, nil
	}
	if len(candidates) == 1 {
		return Verdict{
			MatchFound: true,
			Entity:     &candidates[0].Entity,
			Confidence: 0.8,
			Reasoning:  "Only one candidate available",
		}, nil
	}

	prompt := buildDisambiguationPrompt(query, candidates)

	opts := []ai.GenerateOption{ai.WithTemperature(0.1)}
	if d.model != "" {
		opts = append(opts, ai.WithModel(d.model))
	}

	var raw llmVerdict
	err := d.client.GenerateCompletionWithFormat(ctx,
		"identity_verdict",
		"Decision on whether a query identity matches one of the candidate entities",
		prompt, &raw, opts...)
	if err != nil {
		return Verdict{Reasoning: "Disambiguation failed"}, fmt.Errorf("disambiguation completion: %w", err)
	}

	if raw.Confidence < 0.5 {
		raw.Confidence = 0.5
	}
	if raw.Confidence > 0.9 {
		raw.Confidence = 0.9
	}

	if !raw.MatchFound {
		return Verdict{Reasoning: raw.Reasoning, Evidence: raw.Evidence}, nil
	}

	for i := range candidates {
		if candidates[i].Entity.ID == raw.BestMatchID {
			return Verdict{
				MatchFound: true,
				Entity:     &candidates[i].Entity,
				Confidence: raw.Confidence,
				Reasoning:  raw.Reasoning,
				Evidence:   raw.Evidence,
			}, nil
		}
	}

	logger.Warn("[Identity] Disambiguation returned unknown entity ID", "id", raw.BestMatchID)
	return Verdict{
		Reasoning: raw.Reasoning + " (But matched ID not found in candidates)",
		Evidence:  raw.Evidence,
	}, nil
}

func buildDisambiguationPrompt(query Query, candidates []common.MatchCandidate) string {
	var b strings.Builder

	b.WriteString("You are resolving whether a person contacting customer support matches a known customer profile.\n\n")

	b.WriteString("QUERY IDENTITY:\n")
	writeField(&b, "Name", query.Name)
	writeField(&b, "Email", query.Email)
	writeField(&b, "Phone", query.Phone)
	writeField(&b, "Platform", query.Platform)

	b.WriteString("\nCANDIDATE PROFILES:\n")
	for i, candidate := range candidates {
		entity := candidate.Entity
		fmt.Fprintf(&b, "%d. ID: %s\n", i+1, entity.ID)
		writeField(&b, "   Name", entity.CanonicalName)
		writeField(&b, "   Email", entity.Email)
		writeField(&b, "   Phone", entity.Phone)
		for key, value := range entity.Metadata {
			fmt.Fprintf(&b, "   %s: %v\n", key, value)
		}
	}

	if query.Context != "" {
		b.WriteString("\nCONVERSATION CONTEXT:\n")
		b.WriteString(query.Context)
		b.WriteString("\n")
	}

	b.WriteString(`
TASK: Decide if the query identity is the same person as one of the candidates.

Guidelines:
- Matching email or phone is strong evidence, a similar name alone is weak evidence
- Common names shared by multiple candidates require additional evidence to match
- When the evidence is ambiguous, prefer no match over a wrong match
- best_match_id must be one of the candidate IDs exactly as shown
`)

	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if value != "" {
		fmt.Fprintf(b, "%s: %s\n", label, value)
	}
}
