package pgx

import (
	"context"
	"encoding/json"

	"github.com/helmsman-ai/concierge/pkg/common"
)

func (s *Storage) CreateEntity(ctx context.Context, entity common.Entity) (common.Entity, error) {
	if entity.ID == "" {
		entity.ID = newID()
	}

	meta, err := json.Marshal(entity.Metadata)
	if err != nil {
		return common.Entity{}, err
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO entities (id, canonical_name, email, phone, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		entity.ID, entity.CanonicalName, entity.Email, entity.Phone, meta,
	)
	if err := row.Scan(&entity.CreatedAt, &entity.UpdatedAt); err != nil {
		return common.Entity{}, err
	}
	return entity, nil
}

func (s *Storage) GetEntity(ctx context.Context, id string) (common.Entity, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, canonical_name, email, phone, metadata, created_at, updated_at
		FROM entities
		WHERE id = $1`,
		id,
	)
	return scanEntity(row)
}

func (s *Storage) ListEntities(ctx context.Context) ([]common.Entity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, canonical_name, email, phone, metadata, created_at, updated_at
		FROM entities
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []common.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (common.Entity, error) {
	var entity common.Entity
	var meta []byte
	err := row.Scan(
		&entity.ID,
		&entity.CanonicalName,
		&entity.Email,
		&entity.Phone,
		&meta,
		&entity.CreatedAt,
		&entity.UpdatedAt,
	)
	if err != nil {
		return common.Entity{}, mapNotFound(err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &entity.Metadata); err != nil {
			return common.Entity{}, err
		}
	}
	return entity, nil
}
