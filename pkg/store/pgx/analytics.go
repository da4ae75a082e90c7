package pgx

import (
	"context"
	"time"

	"github.com/helmsman-ai/concierge/pkg/common"
	"github.com/helmsman-ai/concierge/pkg/store"
)

func (s *Storage) RecordAnalytics(ctx context.Context, rec common.AnalyticsRecord) error {
	if rec.ID == "" {
		rec.ID = newID()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO analytics_events (
			id, conversation_id, entity_id, platform, intent,
			identity_confidence, intent_confidence, rag_confidence,
			llm_confidence, overall_confidence, escalated, errored, latency_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID, rec.ConversationID, rec.EntityID, rec.Platform, string(rec.Intent),
		rec.Identity, rec.IntentScore, rec.RAG,
		rec.LLM, rec.Overall, rec.Escalated, rec.Errored, rec.LatencyMS,
	)
	return err
}

func (s *Storage) AnalyticsSummary(
	ctx context.Context,
	since time.Time,
) (store.AnalyticsSummary, error) {
	summary := store.AnalyticsSummary{
		QueriesByIntent: map[string]int64{},
	}

	row := s.pool.QueryRow(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE escalated),
			count(*) FILTER (WHERE errored),
			coalesce(avg(overall_confidence), 0),
			coalesce(avg(latency_ms), 0)
		FROM analytics_events
		WHERE created_at >= $1`,
		since,
	)
	err := row.Scan(
		&summary.TotalQueries,
		&summary.EscalatedQueries,
		&summary.ErroredQueries,
		&summary.AverageConfidence,
		&summary.AverageLatencyMS,
	)
	if err != nil {
		return store.AnalyticsSummary{}, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT intent, count(*)
		FROM analytics_events
		WHERE created_at >= $1 AND intent <> ''
		GROUP BY intent`,
		since,
	)
	if err != nil {
		return store.AnalyticsSummary{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var intent string
		var count int64
		if err := rows.Scan(&intent, &count); err != nil {
			return store.AnalyticsSummary{}, err
		}
		summary.QueriesByIntent[intent] = count
	}
	return summary, rows.Err()
}
