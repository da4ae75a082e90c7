package identity

import (
	"math"
	"testing"

	"github.com/helmsman-ai/concierge/pkg/common"
)

func TestScoreToConfidenceBands(t *testing.T) {
	m := NewMatcher(85)

	tests := []struct {
		score float64
		want  float64
	}{
		{100, 0.9},
		{95, 0.85},
		{92, 0.82},
		{90, 0.80},
		{87, 0.77},
		{85, 0.75},
		{80, 0.675},
	}

	for _, tt := range tests {
		got := m.ScoreToConfidence(tt.score)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ScoreToConfidence(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestScoreToConfidenceClamped(t *testing.T) {
	m := NewMatcher(85)

	if got := m.ScoreToConfidence(0); got != 0.5 {
		t.Errorf("ScoreToConfidence(0) = %v, want 0.5", got)
	}
	if got := m.ScoreToConfidence(100); got > 0.9 {
		t.Errorf("ScoreToConfidence(100) = %v, want <= 0.9", got)
	}
}

func TestMatchEntitiesExactName(t *testing.T) {
	m := NewMatcher(85)
	entities := []common.Entity{
		{ID: "e1", CanonicalName: "jane smith"},
		{ID: "e2", CanonicalName: "totally different"},
	}

	got := m.MatchEntities("jane smith", entities)

	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
	if got[0].Entity.ID != "e1" {
		t.Errorf("matched %s, want e1", got[0].Entity.ID)
	}
	if got[0].Score != 100 {
		t.Errorf("score = %v, want 100", got[0].Score)
	}
	if got[0].Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", got[0].Confidence)
	}
}

func TestMatchEntitiesTokenOrderInsensitive(t *testing.T) {
	m := NewMatcher(85)
	entities := []common.Entity{{ID: "e1", CanonicalName: "smith jane"}}

	got := m.MatchEntities("jane smith", entities)

	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
	if got[0].Score < 70 {
		t.Errorf("score = %v, want token-sort dominated score", got[0].Score)
	}
}

func TestMatchEntitiesBelowThreshold(t *testing.T) {
	m := NewMatcher(85)
	entities := []common.Entity{{ID: "e1", CanonicalName: "completely unrelated person"}}

	if got := m.MatchEntities("jane smith", entities); len(got) != 0 {
		t.Errorf("got %d candidates, want 0", len(got))
	}
}

func TestMatchEntitiesTieBreakByID(t *testing.T) {
	m := NewMatcher(85)
	entities := []common.Entity{
		{ID: "e2", CanonicalName: "jane smith"},
		{ID: "e1", CanonicalName: "jane smith"},
	}

	got := m.MatchEntities("jane smith", entities)

	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	if got[0].Entity.ID != "e1" || got[1].Entity.ID != "e2" {
		t.Errorf("tie order = [%s %s], want [e1 e2]", got[0].Entity.ID, got[1].Entity.ID)
	}
}

func TestMatchEntitiesSkipsEmptyNames(t *testing.T) {
	m := NewMatcher(85)
	entities := []common.Entity{
		{ID: "e1", CanonicalName: ""},
		{ID: "e2", CanonicalName: "jane smith"},
	}

	got := m.MatchEntities("jane smith", entities)

	if len(got) != 1 || got[0].Entity.ID != "e2" {
		t.Errorf("got %v, want only e2", got)
	}
}

func TestIsSimilar(t *testing.T) {
	m := NewMatcher(85)

	if ok, score := m.IsSimilar("jane smith", "jane smith", 0); !ok || score != 100 {
		t.Errorf("identical names: ok=%v score=%v, want true 100", ok, score)
	}
	if ok, _ := m.IsSimilar("jane smith", "bob jones", 0); ok {
		t.Error("unrelated names reported similar")
	}
}

func TestIsSimilarUsesTokenSortOnly(t *testing.T) {
	m := NewMatcher(85)

	if ok, score := m.IsSimilar("smith jane", "jane smith", 0); !ok || score != 100 {
		t.Errorf("reordered names: ok=%v score=%v, want true 100", ok, score)
	}
	// A bare substring scores 100 on partial ratio; token sort alone
	// must not clear the threshold on it.
	if ok, score := m.IsSimilar("jane", "jane smith", 0); ok {
		t.Errorf("substring reported similar with score %v", score)
	}
}

func TestMatchName(t *testing.T) {
	m := NewMatcher(85)

	names := []string{"jane smith", "smith jane", "janet smith", "bob jones", ""}
	matches := m.MatchName("jane smith", names)

	if len(matches) != 3 {
		t.Fatalf("got %d matches, want 3: %v", len(matches), matches)
	}
	if matches[0].Score != 100 || matches[1].Score != 100 {
		t.Errorf("exact and reordered names should both score 100: %v", matches)
	}
	if matches[2].Name != "janet smith" {
		t.Errorf("matches[2] = %v, want janet smith", matches[2])
	}
	for _, match := range matches {
		if match.Name == "bob jones" {
			t.Error("unrelated name cleared the threshold")
		}
	}
}

func TestMatchNameCapsAtTen(t *testing.T) {
	m := NewMatcher(85)

	names := make([]string, 14)
	for i := range names {
		names[i] = "jane smith"
	}
	if got := len(m.MatchName("jane smith", names)); got != 10 {
		t.Errorf("got %d matches, want 10", got)
	}
}
