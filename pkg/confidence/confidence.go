// Package confidence fuses per-stage confidence signals into a single
// score that decides between answering automatically and escalating to
// a human agent.
package confidence

import (
	"fmt"
	"strings"

	"github.com/helmsman-ai/concierge/internal/config"
	"github.com/helmsman-ai/concierge/pkg/common"
)

// Factor names in fusion order.
const (
	FactorIdentity = "identity"
	FactorIntent   = "intent"
	FactorRAG      = "rag"
	FactorLLM      = "llm"
)

// neutralScore substitutes for factors that produced no signal.
const neutralScore = 0.5

// Factors carries the raw per-stage scores feeding fusion. A nil
// field means the stage produced no signal and gets a neutral prior.
type Factors struct {
	Identity *float64
	Intent   *float64
	RAG      *float64
	LLM      *float64
}

// Score wraps a known factor value for use in Factors.
func Score(v float64) *float64 {
	return &v
}

// Factor is one weighted component of a fused score.
type Factor struct {
	Name         string  `json:"name"`
	Score        float64 `json:"score"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

// Breakdown is the result of fusing all factors. Factors holds the
// components in fusion order and Weakest the lowest-scoring one.
type Breakdown struct {
	Overall   float64  `json:"overall"`
	Factors   []Factor `json:"factors"`
	Weakest   Factor   `json:"weakest_factor"`
	Threshold float64  `json:"threshold"`
	Respond   bool     `json:"respond"`
}

// ShouldEscalate reports whether the fused score falls short of the
// auto-respond threshold.
func (b Breakdown) ShouldEscalate() bool {
	return !b.Respond
}

func (b Breakdown) factor(name string) Factor {
	for _, factor := range b.Factors {
		if factor.Name == name {
			return factor
		}
	}
	return Factor{}
}

// Common flattens the breakdown into the persisted audit form.
func (b Breakdown) Common() common.ConfidenceBreakdown {
	return common.ConfidenceBreakdown{
		Identity:      b.factor(FactorIdentity).Score,
		Intent:        b.factor(FactorIntent).Score,
		RAG:           b.factor(FactorRAG).Score,
		LLM:           b.factor(FactorLLM).Score,
		Overall:       b.Overall,
		WeakestFactor: b.Weakest.Name,
		MeetsBar:      b.Respond,
		Explanation:   b.Explain(),
	}
}

// Fuser computes weighted confidence scores. Weights are normalized
// to sum to one at construction.
type Fuser struct {
	weights   config.ConfidenceWeights
	threshold float64
}

// NewFuser builds a fuser from configured weights and the
// auto-respond threshold. Non-positive weight sums fall back to the
// default weighting.
func NewFuser(weights config.ConfidenceWeights, threshold float64) *Fuser {
	sum := weights.Identity + weights.Intent + weights.RAG + weights.LLM
	if sum <= 0 {
		weights = config.ConfidenceWeights{Identity: 0.30, Intent: 0.20, RAG: 0.25, LLM: 0.25}
		sum = 1
	}
	weights.Identity /= sum
	weights.Intent /= sum
	weights.RAG /= sum
	weights.LLM /= sum

	if threshold <= 0 {
		threshold = 0.80
	}

	return &Fuser{weights: weights, threshold: threshold}
}

// Fuse combines the factor scores into a weighted overall score and
// identifies the weakest factor. Ties on the weakest factor go to the
// earlier factor in fusion order.
func (f *Fuser) Fuse(factors Factors) Breakdown {
	scores := []Factor{
		{Name: FactorIdentity, Score: orNeutral(factors.Identity), Weight: f.weights.Identity},
		{Name: FactorIntent, Score: orNeutral(factors.Intent), Weight: f.weights.Intent},
		{Name: FactorRAG, Score: orNeutral(factors.RAG), Weight: f.weights.RAG},
		{Name: FactorLLM, Score: orNeutral(factors.LLM), Weight: f.weights.LLM},
	}

	overall := 0.0
	weakest := scores[0]
	for i := range scores {
		scores[i].Contribution = scores[i].Score * scores[i].Weight
		overall += scores[i].Contribution
		if scores[i].Score < weakest.Score {
			weakest = scores[i]
		}
	}

	return Breakdown{
		Overall:   overall,
		Factors:   scores,
		Weakest:   weakest,
		Threshold: f.threshold,
		Respond:   overall >= f.threshold,
	}
}

func orNeutral(v *float64) float64 {
	if v == nil {
		return neutralScore
	}
	return *v
}

// Explain renders a deterministic natural-language summary of the
// breakdown. Presentation only, the decision is Respond.
func (b Breakdown) Explain() string {
	var parts []string

	switch {
	case b.Overall >= 0.9:
		parts = append(parts, fmt.Sprintf("Very high confidence (%.0f%%)", b.Overall*100))
	case b.Overall >= 0.8:
		parts = append(parts, fmt.Sprintf("High confidence (%.0f%%)", b.Overall*100))
	case b.Overall >= 0.7:
		parts = append(parts, fmt.Sprintf("Moderate confidence (%.0f%%)", b.Overall*100))
	case b.Overall >= 0.6:
		parts = append(parts, fmt.Sprintf("Low confidence (%.0f%%)", b.Overall*100))
	default:
		parts = append(parts, fmt.Sprintf("Very low confidence (%.0f%%)", b.Overall*100))
	}

	identity := b.factor(FactorIdentity).Score
	intent := b.factor(FactorIntent).Score
	rag := b.factor(FactorRAG).Score

	var details []string
	switch {
	case identity >= 0.8:
		details = append(details, fmt.Sprintf("strong identity match (%.0f%%)", identity*100))
	case identity >= 0.6:
		details = append(details, fmt.Sprintf("moderate identity match (%.0f%%)", identity*100))
	default:
		details = append(details, fmt.Sprintf("weak identity match (%.0f%%)", identity*100))
	}
	if intent >= 0.8 {
		details = append(details, fmt.Sprintf("clear intent (%.0f%%)", intent*100))
	} else {
		details = append(details, fmt.Sprintf("uncertain intent (%.0f%%)", intent*100))
	}
	switch {
	case rag >= 0.8:
		details = append(details, fmt.Sprintf("highly relevant context (%.0f%%)", rag*100))
	case rag >= 0.6:
		details = append(details, fmt.Sprintf("moderately relevant context (%.0f%%)", rag*100))
	default:
		details = append(details, fmt.Sprintf("low relevance context (%.0f%%)", rag*100))
	}

	parts = append(parts, "based on:", strings.Join(details, ", "))

	if b.Weakest.Score < 0.6 {
		parts = append(parts, fmt.Sprintf(". Weakest factor: %s (%.0f%%)",
			factorDisplayName(b.Weakest.Name), b.Weakest.Score*100))
	}

	if b.Respond {
		parts = append(parts, ". Safe to respond automatically.")
	} else {
		parts = append(parts, ". Recommend escalation to human agent.")
	}

	return strings.Join(parts, " ")
}

// EscalationReasons lists why a breakdown warrants human attention.
// Each weak factor contributes a reason; when no factor crosses its
// own threshold the single weakest factor is named instead.
func (b Breakdown) EscalationReasons() []string {
	var reasons []string

	if b.Overall < b.Threshold {
		reasons = append(reasons, fmt.Sprintf("Overall confidence (%.0f%%) below threshold (%.0f%%)",
			b.Overall*100, b.Threshold*100))
	}

	var factorReasons []string
	if b.factor(FactorIdentity).Score < 0.5 {
		factorReasons = append(factorReasons, "Unable to confidently identify user")
	}
	if b.factor(FactorIntent).Score < 0.6 {
		factorReasons = append(factorReasons, "Unclear intent or ambiguous question")
	}
	if b.factor(FactorRAG).Score < 0.6 {
		factorReasons = append(factorReasons, "No relevant knowledge base information found")
	}
	if b.factor(FactorLLM).Score < 0.6 {
		factorReasons = append(factorReasons, "Model not confident in generated response")
	}

	if len(factorReasons) == 0 {
		factorReasons = append(factorReasons, fmt.Sprintf("Low confidence in %s (%.0f%%)",
			b.Weakest.Name, b.Weakest.Score*100))
	}

	return append(reasons, factorReasons...)
}

func factorDisplayName(name string) string {
	switch name {
	case FactorIdentity:
		return "identity matching"
	case FactorIntent:
		return "intent classification"
	case FactorRAG:
		return "knowledge base relevance"
	case FactorLLM:
		return "response quality"
	}
	return name
}
