package pgx

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/helmsman-ai/concierge/pkg/store"
)

// Storage implements store.Store on top of a pgx connection pool.
// Embeddings are stored as pgvector columns; all other records are
// plain relational rows.
type Storage struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Storage)(nil)

// NewStorage creates a Storage backed by the given pool.
func NewStorage(pool *pgxpool.Pool) *Storage {
	return &Storage{pool: pool}
}

func newID() string {
	id, err := gonanoid.New()
	if err != nil {
		// gonanoid only fails when the system entropy source does
		panic(err)
	}
	return id
}

// sanitizeText strips null bytes and invalid UTF-8, neither of which
// Postgres text columns accept.
func sanitizeText(value string) string {
	if value == "" {
		return value
	}
	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}

func mapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
