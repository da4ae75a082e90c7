package pgx

import (
	"context"

	"github.com/pgvector/pgvector-go"

	"github.com/helmsman-ai/concierge/pkg/common"
)

// SaveKnowledgeDocument inserts a document and its embedded chunks in one
// transaction. Chunks must already carry embeddings.
func (s *Storage) SaveKnowledgeDocument(
	ctx context.Context,
	doc common.KnowledgeDocument,
	chunks []common.KnowledgeChunk,
) error {
	if doc.ID == "" {
		doc.ID = newID()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO knowledge_documents (id, title, document_type, source_url)
		VALUES ($1, $2, $3, $4)`,
		doc.ID, doc.Title, doc.DocumentType, doc.SourceURL,
	)
	if err != nil {
		return err
	}

	for i := range chunks {
		chunk := chunks[i]
		if chunk.ID == "" {
			chunk.ID = newID()
		}
		chunk.Text = sanitizeText(chunk.Text)
		_, err = tx.Exec(ctx, `
			INSERT INTO knowledge_chunks (id, document_id, position, chunk_text, embedding)
			VALUES ($1, $2, $3, $4, $5)`,
			chunk.ID, doc.ID, chunk.Position, chunk.Text,
			pgvector.NewVector(chunk.Embedding),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// SearchKnowledge runs a cosine similarity search over chunk embeddings.
// Similarity is 1 - cosine distance, so results land in [0, 1] for
// normalized embeddings.
func (s *Storage) SearchKnowledge(
	ctx context.Context,
	embedding []float32,
	topK int,
	minSimilarity float64,
	documentTypes []string,
) ([]common.KnowledgeChunk, error) {
	if topK <= 0 {
		topK = 5
	}

	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.document_id, d.title, d.document_type, c.position, c.chunk_text,
			1 - (c.embedding <=> $1) AS similarity
		FROM knowledge_chunks c
		JOIN knowledge_documents d ON d.id = c.document_id
		WHERE 1 - (c.embedding <=> $1) >= $2
			AND ($3::text[] IS NULL OR cardinality($3::text[]) = 0 OR d.document_type = ANY($3))
		ORDER BY c.embedding <=> $1
		LIMIT $4`,
		pgvector.NewVector(embedding), minSimilarity, documentTypes, topK,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []common.KnowledgeChunk
	for rows.Next() {
		var chunk common.KnowledgeChunk
		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.Title,
			&chunk.DocumentType,
			&chunk.Position,
			&chunk.Text,
			&chunk.Relevance,
		)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}
