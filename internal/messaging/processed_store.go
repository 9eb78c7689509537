package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProcessedStore records provider message ids that were already
// handled, so webhook retries do not advance a conversation twice.
type ProcessedStore struct {
	db rowQuerier
}

func NewProcessedStore(pool *pgxpool.Pool) *ProcessedStore {
	if pool == nil {
		panic("messaging: pgx pool required")
	}
	return &ProcessedStore{db: pool}
}

// NewProcessedStoreWithDB allows injecting a mock database for testing.
func NewProcessedStoreWithDB(db rowQuerier) *ProcessedStore {
	return &ProcessedStore{db: db}
}

// AlreadyProcessed checks whether this provider message id was seen.
func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, provider, messageID string) (bool, error) {
	query := `SELECT 1 FROM processed_events WHERE provider = $1 AND event_id = $2`
	var exists int
	if err := s.db.QueryRow(ctx, query, provider, messageID).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("messaging: check processed: %w", err)
	}
	return true, nil
}

// MarkProcessed claims a message id, returning false if another request
// already claimed it.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, provider, messageID string) (bool, error) {
	query := `
		INSERT INTO processed_events (provider, event_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	ct, err := s.db.Exec(ctx, query, provider, messageID)
	if err != nil {
		return false, fmt.Errorf("messaging: mark processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
