package pgx

import (
	"context"

	"github.com/helmsman-ai/concierge/pkg/common"
	"github.com/helmsman-ai/concierge/pkg/store"
)

const linkColumns = `id, entity_id, platform, platform_identifier,
	normalized_identifier, display_name, confidence, method, verified, created_at`

func (s *Storage) GetLinkByPlatformIdentifier(
	ctx context.Context,
	platform, platformIdentifier string,
) (common.IdentityLink, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+linkColumns+`
		FROM identity_links
		WHERE platform = $1 AND platform_identifier = $2`,
		platform, platformIdentifier,
	)
	return scanLink(row)
}

func (s *Storage) GetLinkByNormalizedIdentifier(
	ctx context.Context,
	normalized string,
) (common.IdentityLink, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+linkColumns+`
		FROM identity_links
		WHERE normalized_identifier = $1
		ORDER BY created_at
		LIMIT 1`,
		normalized,
	)
	return scanLink(row)
}

func (s *Storage) CreateIdentityLink(
	ctx context.Context,
	link common.IdentityLink,
) (common.IdentityLink, error) {
	if link.ID == "" {
		link.ID = newID()
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO identity_links (
			id, entity_id, platform, platform_identifier,
			normalized_identifier, display_name, confidence, method, verified
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		link.ID, link.EntityID, link.Platform, link.PlatformIdentifier,
		link.NormalizedIdentifier, link.DisplayName, link.Confidence,
		string(link.Method), link.Verified,
	)
	if err := row.Scan(&link.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return common.IdentityLink{}, store.ErrDuplicateLink
		}
		return common.IdentityLink{}, err
	}
	return link, nil
}

func (s *Storage) ListLinksByEntity(
	ctx context.Context,
	entityID string,
) ([]common.IdentityLink, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+linkColumns+`
		FROM identity_links
		WHERE entity_id = $1
		ORDER BY created_at`,
		entityID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []common.IdentityLink
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

func scanLink(row rowScanner) (common.IdentityLink, error) {
	var link common.IdentityLink
	var method string
	err := row.Scan(
		&link.ID,
		&link.EntityID,
		&link.Platform,
		&link.PlatformIdentifier,
		&link.NormalizedIdentifier,
		&link.DisplayName,
		&link.Confidence,
		&method,
		&link.Verified,
		&link.CreatedAt,
	)
	if err != nil {
		return common.IdentityLink{}, mapNotFound(err)
	}
	link.Method = common.MatchMethod(method)
	return link, nil
}
