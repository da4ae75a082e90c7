package pgx

import (
	"context"

	"github.com/helmsman-ai/concierge/pkg/common"
)

const escalationColumns = `id, conversation_id, entity_id, message_id, reasons,
	priority, status, assigned_to, created_at, updated_at`

func (s *Storage) CreateEscalation(
	ctx context.Context,
	esc common.Escalation,
) (common.Escalation, error) {
	if esc.ID == "" {
		esc.ID = newID()
	}
	if esc.Status == "" {
		esc.Status = common.EscalationPending
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO escalations (id, conversation_id, entity_id, message_id, reasons, priority, status, assigned_to)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		esc.ID, esc.ConversationID, esc.EntityID, esc.MessageID, esc.Reasons,
		string(esc.Priority), string(esc.Status), esc.AssignedTo,
	)
	if err := row.Scan(&esc.CreatedAt, &esc.UpdatedAt); err != nil {
		return common.Escalation{}, err
	}
	return esc, nil
}

func (s *Storage) GetEscalation(ctx context.Context, id string) (common.Escalation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+escalationColumns+`
		FROM escalations
		WHERE id = $1`,
		id,
	)
	return scanEscalation(row)
}

// ListEscalations returns escalations newest first, optionally filtered
// by status.
func (s *Storage) ListEscalations(
	ctx context.Context,
	status common.EscalationStatus,
	limit int,
) ([]common.Escalation, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+escalationColumns+`
		FROM escalations
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2`,
		string(status), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var escs []common.Escalation
	for rows.Next() {
		esc, err := scanEscalation(rows)
		if err != nil {
			return nil, err
		}
		escs = append(escs, esc)
	}
	return escs, rows.Err()
}

func (s *Storage) UpdateEscalationStatus(
	ctx context.Context,
	id string,
	status common.EscalationStatus,
	assignedTo string,
) (common.Escalation, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE escalations
		SET status = $2,
			assigned_to = CASE WHEN $3 <> '' THEN $3 ELSE assigned_to END,
			updated_at = now()
		WHERE id = $1
		RETURNING `+escalationColumns,
		id, string(status), assignedTo,
	)
	return scanEscalation(row)
}

func scanEscalation(row rowScanner) (common.Escalation, error) {
	var esc common.Escalation
	var priority, status string
	err := row.Scan(
		&esc.ID,
		&esc.ConversationID,
		&esc.EntityID,
		&esc.MessageID,
		&esc.Reasons,
		&priority,
		&status,
		&esc.AssignedTo,
		&esc.CreatedAt,
		&esc.UpdatedAt,
	)
	if err != nil {
		return common.Escalation{}, mapNotFound(err)
	}
	esc.Priority = common.EscalationPriority(priority)
	esc.Status = common.EscalationStatus(status)
	return esc, nil
}
