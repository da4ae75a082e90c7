package rag

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/helmsman-ai/concierge/pkg/ai"
	"github.com/helmsman-ai/concierge/pkg/common"
	"github.com/helmsman-ai/concierge/pkg/store"
)

type fakeEmbedder struct {
	ai.Client

	embedding []float32
	err       error
	calls     int
}

func (f *fakeEmbedder) GenerateEmbedding(_ context.Context, _ []byte) ([]float32, error) {
	f.calls++
	return f.embedding, f.err
}

type fakeSearchStore struct {
	store.Store

	chunks    []common.KnowledgeChunk
	err       error
	gotTopK   int
	gotMinSim float64
	gotTypes  []string
}

func (f *fakeSearchStore) SearchKnowledge(_ context.Context, _ []float32, topK int, minSimilarity float64, documentTypes []string) ([]common.KnowledgeChunk, error) {
	f.gotTopK = topK
	f.gotMinSim = minSimilarity
	f.gotTypes = documentTypes
	return f.chunks, f.err
}

func TestRetrieveBlankQuery(t *testing.T) {
	embedder := &fakeEmbedder{}
	r := NewRetriever(RetrieverParams{Client: embedder, Store: &fakeSearchStore{}})

	chunks, err := r.Retrieve(context.Background(), "   ", nil)
	if err != nil {
		t.Fatal(err)
	}
	if chunks != nil {
		t.Errorf("chunks = %v, want nil", chunks)
	}
	if embedder.calls != 0 {
		t.Errorf("embedder called %d times, want 0", embedder.calls)
	}
}

func TestRetrievePassesSearchParameters(t *testing.T) {
	s := &fakeSearchStore{chunks: []common.KnowledgeChunk{{ID: "c1", Relevance: 0.9}}}
	r := NewRetriever(RetrieverParams{
		Client: &fakeEmbedder{embedding: []float32{0.1, 0.2}},
		Store:  s,
		TopK:   3, MinSimilarity: 0.6,
	})

	chunks, err := r.Retrieve(context.Background(), "how do royalties work", []string{"technical_support"})
	if err != nil {
		t.Fatal(err)
	}

	if len(chunks) != 1 || chunks[0].ID != "c1" {
		t.Errorf("chunks = %v, want [c1]", chunks)
	}
	if s.gotTopK != 3 || s.gotMinSim != 0.6 {
		t.Errorf("search params = %d/%v, want 3/0.6", s.gotTopK, s.gotMinSim)
	}
	if len(s.gotTypes) != 1 || s.gotTypes[0] != "technical_support" {
		t.Errorf("types = %v, want [technical_support]", s.gotTypes)
	}
}

func TestRetrieveEmbeddingFailure(t *testing.T) {
	r := NewRetriever(RetrieverParams{
		Client: &fakeEmbedder{err: errors.New("embedding service down")},
		Store:  &fakeSearchStore{},
	})

	if _, err := r.Retrieve(context.Background(), "anything", nil); err == nil {
		t.Fatal("want error when embedding fails")
	}
}

func TestRetrieveDefaults(t *testing.T) {
	s := &fakeSearchStore{}
	r := NewRetriever(RetrieverParams{Client: &fakeEmbedder{embedding: []float32{1}}, Store: s})

	if _, err := r.Retrieve(context.Background(), "q", nil); err != nil {
		t.Fatal(err)
	}
	if s.gotTopK != 5 || s.gotMinSim != 0.7 {
		t.Errorf("defaults = %d/%v, want 5/0.7", s.gotTopK, s.gotMinSim)
	}
}

func TestAverageRelevance(t *testing.T) {
	if got := AverageRelevance(nil); got != 0 {
		t.Errorf("AverageRelevance(nil) = %v, want 0", got)
	}

	chunks := []common.KnowledgeChunk{{Relevance: 0.9}, {Relevance: 0.7}}
	if got := AverageRelevance(chunks); math.Abs(got-0.8) > 1e-9 {
		t.Errorf("AverageRelevance = %v, want 0.8", got)
	}
}

func TestBuildEmpty(t *testing.T) {
	got := NewContextBuilder(0).Build(nil)

	if got.Text != "" || got.TotalChunks != 0 || got.Truncated {
		t.Errorf("Build(nil) = %+v, want zero context", got)
	}
	if got.Substantial() {
		t.Error("empty context reported substantial")
	}
}

func TestBuildDeduplicatesAndFilters(t *testing.T) {
	chunks := []common.KnowledgeChunk{
		{ID: "c1", DocumentID: "d1", Title: "Royalties", Text: "Royalties are paid quarterly.", Relevance: 0.9},
		{ID: "c2", DocumentID: "d1", Title: "Royalties", Text: "  royalties are paid QUARTERLY.  ", Relevance: 0.85},
		{ID: "c3", DocumentID: "d2", Title: "Onboarding", Text: "Welcome guide text.", Relevance: 0.5},
	}

	got := NewContextBuilder(10000).Build(chunks)

	if got.ChunksIncluded != 1 {
		t.Fatalf("included %d chunks, want 1 after dedupe and relevance filter", got.ChunksIncluded)
	}
	if !strings.Contains(got.Text, "[Source: Royalties]") {
		t.Errorf("context text = %q, want source attribution", got.Text)
	}
	if strings.Contains(got.Text, "Welcome guide") {
		t.Error("low relevance chunk leaked into context")
	}
}

func TestBuildOrdersByRelevance(t *testing.T) {
	chunks := []common.KnowledgeChunk{
		{ID: "c1", DocumentID: "d1", Title: "A", Text: "less relevant text", Relevance: 0.75},
		{ID: "c2", DocumentID: "d2", Title: "B", Text: "most relevant text", Relevance: 0.95},
	}

	got := NewContextBuilder(10000).Build(chunks)

	if got.ChunksIncluded != 2 {
		t.Fatalf("included %d chunks, want 2", got.ChunksIncluded)
	}
	if strings.Index(got.Text, "most relevant") > strings.Index(got.Text, "less relevant") {
		t.Errorf("context text not ordered by relevance: %q", got.Text)
	}
}

func TestBuildTruncatesAtBudget(t *testing.T) {
	long := strings.Repeat("publishing process details ", 50)
	chunks := []common.KnowledgeChunk{
		{ID: "c1", DocumentID: "d1", Title: "A", Text: long, Relevance: 0.9},
		{ID: "c2", DocumentID: "d2", Title: "B", Text: long + "tail", Relevance: 0.8},
	}

	got := NewContextBuilder(5).Build(chunks)

	if !got.Truncated {
		t.Error("want truncation under a tiny token budget")
	}
	if got.ChunksIncluded != 0 {
		t.Errorf("included %d chunks, want 0", got.ChunksIncluded)
	}
	if got.AverageRelevance == 0 {
		t.Error("average relevance should cover retrieved chunks even when truncated")
	}
}

func TestBuildSources(t *testing.T) {
	chunks := []common.KnowledgeChunk{
		{ID: "c1", DocumentID: "d1", Title: "Royalties", DocumentType: "faq", Text: "part one", Relevance: 0.9},
		{ID: "c2", DocumentID: "d1", Title: "Royalties", DocumentType: "faq", Text: "part two", Relevance: 0.7},
		{ID: "c3", DocumentID: "d2", Title: "Dashboard", DocumentType: "technical_support", Text: "login help", Relevance: 0.85},
	}

	got := NewContextBuilder(10000).Build(chunks)

	if len(got.Sources) != 2 {
		t.Fatalf("sources = %v, want 2 documents", got.Sources)
	}
	if got.Sources[0].DocumentID != "d2" {
		t.Errorf("first source = %s, want d2 with highest average similarity", got.Sources[0].DocumentID)
	}
	var royalties Source
	for _, source := range got.Sources {
		if source.DocumentID == "d1" {
			royalties = source
		}
	}
	if royalties.ChunkCount != 2 || math.Abs(royalties.AverageSimilarity-0.8) > 1e-9 {
		t.Errorf("d1 source = %+v, want 2 chunks at 0.8 average", royalties)
	}
}
