package pgx

import (
	"context"
	"encoding/json"

	"github.com/helmsman-ai/concierge/pkg/common"
)

func (s *Storage) CreateConversation(
	ctx context.Context,
	conv common.Conversation,
) (common.Conversation, error) {
	if conv.ID == "" {
		conv.ID = newID()
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (id, entity_id, platform)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`,
		conv.ID, conv.EntityID, conv.Platform,
	)
	if err := row.Scan(&conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return common.Conversation{}, err
	}
	return conv, nil
}

func (s *Storage) GetConversation(ctx context.Context, id string) (common.Conversation, error) {
	var conv common.Conversation
	row := s.pool.QueryRow(ctx, `
		SELECT id, entity_id, platform, created_at, updated_at
		FROM conversations
		WHERE id = $1`,
		id,
	)
	err := row.Scan(&conv.ID, &conv.EntityID, &conv.Platform, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return common.Conversation{}, mapNotFound(err)
	}
	return conv, nil
}

func (s *Storage) AppendMessage(ctx context.Context, msg common.Message) (common.Message, error) {
	if msg.ID == "" {
		msg.ID = newID()
	}
	msg.Content = sanitizeText(msg.Content)

	var breakdown []byte
	if msg.Breakdown != nil {
		var err error
		breakdown, err = json.Marshal(msg.Breakdown)
		if err != nil {
			return common.Message{}, err
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return common.Message{}, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, intent, confidence, breakdown, model, processing_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, string(msg.Intent), msg.Confidence,
		breakdown, msg.Model, msg.ProcessingMS,
	)
	if err := row.Scan(&msg.CreatedAt); err != nil {
		return common.Message{}, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE conversations SET updated_at = now() WHERE id = $1`,
		msg.ConversationID,
	)
	if err != nil {
		return common.Message{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return common.Message{}, err
	}
	return msg, nil
}

// GetRecentMessages returns the newest messages of a conversation in
// chronological order.
func (s *Storage) GetRecentMessages(
	ctx context.Context,
	conversationID string,
	limit int,
) ([]common.Message, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, intent, confidence, breakdown, model, processing_ms, created_at
		FROM (
			SELECT id, conversation_id, role, content, intent, confidence, breakdown, model, processing_ms, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC`,
		conversationID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []common.Message
	for rows.Next() {
		var msg common.Message
		var intent string
		var breakdown []byte
		err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.Role,
			&msg.Content,
			&intent,
			&msg.Confidence,
			&breakdown,
			&msg.Model,
			&msg.ProcessingMS,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		msg.Intent = common.Intent(intent)
		if len(breakdown) > 0 {
			var bd common.ConfidenceBreakdown
			if err := json.Unmarshal(breakdown, &bd); err != nil {
				return nil, err
			}
			msg.Breakdown = &bd
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}
