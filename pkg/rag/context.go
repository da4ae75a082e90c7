package rag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/helmsman-ai/concierge/pkg/ai"
	"github.com/helmsman-ai/concierge/pkg/common"
	"github.com/helmsman-ai/concierge/pkg/logger"
)

// minContextRelevance drops chunks that cleared retrieval but are too
// weak to quote in a prompt.
const minContextRelevance = 0.7

// Source attributes context text back to a knowledge document.
type Source struct {
	DocumentID        string  `json:"document_id"`
	Title             string  `json:"title"`
	DocumentType      string  `json:"document_type"`
	ChunkCount        int     `json:"chunk_count"`
	AverageSimilarity float64 `json:"avg_similarity"`
}

// Context is assembled prompt context with attribution metadata.
type Context struct {
	Text             string   `json:"text"`
	Sources          []Source `json:"sources"`
	TotalChunks      int      `json:"total_chunks"`
	ChunksIncluded   int      `json:"chunks_included"`
	Tokens           int      `json:"tokens"`
	Truncated        bool     `json:"truncated"`
	AverageRelevance float64  `json:"avg_relevance"`
}

// Substantial reports whether enough context was assembled to lean on
// when generating an answer.
func (c Context) Substantial() bool {
	return len(c.Text) > 100
}

// ContextBuilder assembles retrieved chunks into prompt context under
// a token budget.
type ContextBuilder struct {
	maxTokens int
}

// NewContextBuilder returns a builder with the given token budget,
// 3000 when non-positive.
func NewContextBuilder(maxTokens int) *ContextBuilder {
	if maxTokens <= 0 {
		maxTokens = 3000
	}
	return &ContextBuilder{maxTokens: maxTokens}
}

// Build deduplicates and ranks chunks, then joins them with source
// attribution until the token budget runs out. AverageRelevance is
// computed over the input chunks, not just the ones included.
func (b *ContextBuilder) Build(chunks []common.KnowledgeChunk) Context {
	result := Context{
		TotalChunks:      len(chunks),
		AverageRelevance: AverageRelevance(chunks),
	}
	if len(chunks) == 0 {
		return result
	}

	ranked := dedupeChunks(chunks)
	relevant := ranked[:0]
	for _, chunk := range ranked {
		if chunk.Relevance >= minContextRelevance {
			relevant = append(relevant, chunk)
		}
	}
	sort.SliceStable(relevant, func(i, j int) bool {
		return relevant[i].Relevance > relevant[j].Relevance
	})

	var parts []string
	var used []common.KnowledgeChunk
	for _, chunk := range relevant {
		formatted := fmt.Sprintf("[Source: %s]\n%s\n", chunk.Title, chunk.Text)
		tokens := ai.CountTokensOrEstimate(formatted)
		if result.Tokens+tokens > b.maxTokens {
			result.Truncated = true
			break
		}
		parts = append(parts, formatted)
		used = append(used, chunk)
		result.Tokens += tokens
	}

	result.Text = strings.Join(parts, "\n---\n")
	result.ChunksIncluded = len(used)
	result.Sources = extractSources(used)

	logger.Debug("[RAG] Context assembled",
		"chunks_included", result.ChunksIncluded,
		"tokens", result.Tokens,
		"truncated", result.Truncated)

	return result
}

func dedupeChunks(chunks []common.KnowledgeChunk) []common.KnowledgeChunk {
	seen := map[string]bool{}
	deduped := make([]common.KnowledgeChunk, 0, len(chunks))
	for _, chunk := range chunks {
		normalized := strings.ToLower(strings.TrimSpace(chunk.Text))
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		deduped = append(deduped, chunk)
	}
	return deduped
}

func extractSources(chunks []common.KnowledgeChunk) []Source {
	totals := map[string]*Source{}
	similarity := map[string]float64{}
	var order []string

	for _, chunk := range chunks {
		if chunk.DocumentID == "" {
			continue
		}
		source, ok := totals[chunk.DocumentID]
		if !ok {
			source = &Source{
				DocumentID:   chunk.DocumentID,
				Title:        chunk.Title,
				DocumentType: chunk.DocumentType,
			}
			totals[chunk.DocumentID] = source
			order = append(order, chunk.DocumentID)
		}
		source.ChunkCount++
		similarity[chunk.DocumentID] += chunk.Relevance
	}

	sources := make([]Source, 0, len(order))
	for _, id := range order {
		source := *totals[id]
		source.AverageSimilarity = similarity[id] / float64(source.ChunkCount)
		sources = append(sources, source)
	}
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].AverageSimilarity > sources[j].AverageSimilarity
	})

	return sources
}
