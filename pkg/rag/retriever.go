// Package rag retrieves knowledge-base chunks by vector similarity
// and assembles them into a token-budgeted prompt context.
package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/helmsman-ai/concierge/pkg/ai"
	"github.com/helmsman-ai/concierge/pkg/common"
	"github.com/helmsman-ai/concierge/pkg/logger"
	"github.com/helmsman-ai/concierge/pkg/store"
)

// RetrieverParams configures a Retriever.
type RetrieverParams struct {
	Client ai.Client
	Store  store.Store
	// TopK is the number of chunks returned per query, 5 when zero.
	TopK int
	// MinSimilarity drops chunks below this cosine similarity, 0.7
	// when zero.
	MinSimilarity float64
}

// Retriever embeds queries and searches the knowledge base.
type Retriever struct {
	client        ai.Client
	store         store.Store
	topK          int
	minSimilarity float64
}

// NewRetriever builds a retriever over the given store and embedding
// client.
func NewRetriever(params RetrieverParams) *Retriever {
	topK := params.TopK
	if topK <= 0 {
		topK = 5
	}
	minSimilarity := params.MinSimilarity
	if minSimilarity <= 0 {
		minSimilarity = 0.7
	}
	return &Retriever{
		client:        params.Client,
		store:         params.Store,
		topK:          topK,
		minSimilarity: minSimilarity,
	}
}

// Retrieve returns the most similar knowledge chunks for a query,
// optionally restricted to the given document types. Blank queries
// return no chunks.
func (r *Retriever) Retrieve(ctx context.Context, query string, documentTypes []string) ([]common.KnowledgeChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	embedding, err := r.client.GenerateEmbedding(ctx, []byte(query))
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	chunks, err := r.store.SearchKnowledge(ctx, embedding, r.topK, r.minSimilarity, documentTypes)
	if err != nil {
		return nil, fmt.Errorf("knowledge search: %w", err)
	}

	logger.Debug("[RAG] Retrieved chunks",
		"count", len(chunks),
		"avg_relevance", AverageRelevance(chunks),
		"types", documentTypes)

	return chunks, nil
}

// AverageRelevance is the mean similarity across chunks, zero when
// none were retrieved.
func AverageRelevance(chunks []common.KnowledgeChunk) float64 {
	if len(chunks) == 0 {
		return 0
	}
	total := 0.0
	for _, chunk := range chunks {
		total += chunk.Relevance
	}
	return total / float64(len(chunks))
}
