package identity

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/helmsman-ai/concierge/pkg/ai"
	"github.com/helmsman-ai/concierge/pkg/common"
)

type fakeAIClient struct {
	response string
	err      error
	calls    int
	prompt   string
}

func (f *fakeAIClient) GenerateCompletion(_ context.Context, prompt string, _ ...ai.GenerateOption) (string, error) {
	f.calls++
	f.prompt = prompt
	return f.response, f.err
}

func (f *fakeAIClient) GenerateCompletionWithFormat(_ context.Context, _, _, prompt string, out any, _ ...ai.GenerateOption) error {
	f.calls++
	f.prompt = prompt
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.response), out)
}

func (f *fakeAIClient) GenerateChat(_ context.Context, _ []ai.ChatMessage, _ ...ai.GenerateOption) (string, error) {
	f.calls++
	return f.response, f.err
}

func (f *fakeAIClient) GenerateEmbedding(_ context.Context, _ []byte) ([]float32, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAIClient) ResetMetrics()                {}
func (f *fakeAIClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func twoCandidates() []common.MatchCandidate {
	return []common.MatchCandidate{
		{Entity: common.Entity{ID: "e1", CanonicalName: "jane smith", Email: "jane@example.com"}, Confidence: 0.72},
		{Entity: common.Entity{ID: "e2", CanonicalName: "jane smyth"}, Confidence: 0.71},
	}
}

func TestDisambiguateZeroCandidates(t *testing.T) {
	client := &fakeAIClient{}
	d := NewDisambiguator(client, "")

	verdict, err := d.Disambiguate(context.Background(), Query{Name: "Jane"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if verdict.MatchFound || verdict.Confidence != 0 {
		t.Errorf("verdict = %+v, want no match at zero confidence", verdict)
	}
	if verdict.Reasoning != "No candidates provided" {
		t.Errorf("reasoning = %q", verdict.Reasoning)
	}
	if client.calls != 0 {
		t.Errorf("model called %d times, want 0", client.calls)
	}
}

func TestDisambiguateSingleCandidate(t *testing.T) {
	client := &fakeAIClient{}
	d := NewDisambiguator(client, "")
	candidates := twoCandidates()[:1]

	verdict, err := d.Disambiguate(context.Background(), Query{Name: "Jane"}, candidates)
	if err != nil {
		t.Fatal(err)
	}

	if !verdict.MatchFound || verdict.Entity == nil || verdict.Entity.ID != "e1" {
		t.Fatalf("verdict = %+v, want match on e1", verdict)
	}
	if verdict.Confidence != 0.8 {
		t.Errorf("confidence = %v, want 0.8", verdict.Confidence)
	}
	if client.calls != 0 {
		t.Errorf("model called %d times, want 0", client.calls)
	}
}

func TestDisambiguateModelMatch(t *testing.T) {
	client := &fakeAIClient{
		response: `{"match_found": true, "best_match_id": "e2", "confidence": 0.82, "reasoning": "Name and platform overlap", "evidence": ["same display name"]}`,
	}
	d := NewDisambiguator(client, "gpt-4o-mini")

	verdict, err := d.Disambiguate(context.Background(), Query{Name: "Jane Smyth"}, twoCandidates())
	if err != nil {
		t.Fatal(err)
	}

	if !verdict.MatchFound || verdict.Entity == nil || verdict.Entity.ID != "e2" {
		t.Fatalf("verdict = %+v, want match on e2", verdict)
	}
	if verdict.Confidence != 0.82 {
		t.Errorf("confidence = %v, want 0.82", verdict.Confidence)
	}
	if len(verdict.Evidence) != 1 {
		t.Errorf("evidence = %v, want one item", verdict.Evidence)
	}
}

func TestDisambiguateConfidenceClamped(t *testing.T) {
	tests := []struct {
		name     string
		reported float64
		want     float64
	}{
		{"overconfident", 0.99, 0.9},
		{"underconfident", 0.1, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeAIClient{
				response: `{"match_found": true, "best_match_id": "e1", "confidence": ` +
					formatFloat(tt.reported) + `, "reasoning": "x"}`,
			}
			d := NewDisambiguator(client, "")

			verdict, err := d.Disambiguate(context.Background(), Query{Name: "Jane"}, twoCandidates())
			if err != nil {
				t.Fatal(err)
			}
			if verdict.Confidence != tt.want {
				t.Errorf("confidence = %v, want %v", verdict.Confidence, tt.want)
			}
		})
	}
}

func TestDisambiguateHallucinatedID(t *testing.T) {
	client := &fakeAIClient{
		response: `{"match_found": true, "best_match_id": "e999", "confidence": 0.85, "reasoning": "Strong match"}`,
	}
	d := NewDisambiguator(client, "")

	verdict, err := d.Disambiguate(context.Background(), Query{Name: "Jane"}, twoCandidates())
	if err != nil {
		t.Fatal(err)
	}

	if verdict.MatchFound || verdict.Confidence != 0 {
		t.Errorf("verdict = %+v, want rejected match", verdict)
	}
	if !strings.HasSuffix(verdict.Reasoning, "(But matched ID not found in candidates)") {
		t.Errorf("reasoning = %q, want rejection suffix", verdict.Reasoning)
	}
}

func TestDisambiguateModelError(t *testing.T) {
	client := &fakeAIClient{err: errors.New("model unavailable")}
	d := NewDisambiguator(client, "")

	verdict, err := d.Disambiguate(context.Background(), Query{Name: "Jane"}, twoCandidates())
	if err == nil {
		t.Fatal("want error when the model call fails")
	}
	if verdict.MatchFound {
		t.Errorf("verdict = %+v, want no match on failure", verdict)
	}
}

func TestDisambiguatePromptContents(t *testing.T) {
	client := &fakeAIClient{
		response: `{"match_found": false, "confidence": 0.5, "reasoning": "ambiguous"}`,
	}
	d := NewDisambiguator(client, "")
	query := Query{
		Name: "Jane Smith", Email: "jane@example.com", Platform: "slack",
		Context: "Customer mentioned an order from last week",
	}

	if _, err := d.Disambiguate(context.Background(), query, twoCandidates()); err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{"e1", "e2", "jane@example.com", "Jane Smith", "order from last week"} {
		if !strings.Contains(client.prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func formatFloat(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}
