package clinic

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// StatsRepository answers the conversation-level counters shown on the
// admin panel. Patient and consultation totals come from their own
// repositories.
type StatsRepository struct {
	db rowQuerier
}

func NewStatsRepository(pool *pgxpool.Pool) *StatsRepository {
	if pool == nil {
		panic("clinic: pgx pool required")
	}
	return &StatsRepository{db: pool}
}

// NewStatsRepositoryWithDB allows injecting a mock database for testing.
func NewStatsRepositoryWithDB(db rowQuerier) *StatsRepository {
	return &StatsRepository{db: db}
}

// ActiveConversations counts state rows for a clinic.
func (r *StatsRepository) ActiveConversations(ctx context.Context, tenantID string) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM conversation_states WHERE tenant_id = $1`
	if err := r.db.QueryRow(ctx, query, tenantID).Scan(&count); err != nil {
		return 0, fmt.Errorf("clinic: count conversations: %w", err)
	}
	return count, nil
}

// MessagesToday counts conversations that advanced since midnight UTC.
func (r *StatsRepository) MessagesToday(ctx context.Context, tenantID string) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM conversation_states WHERE tenant_id = $1 AND updated_at >= date_trunc('day', NOW())`
	if err := r.db.QueryRow(ctx, query, tenantID).Scan(&count); err != nil {
		return 0, fmt.Errorf("clinic: count today's messages: %w", err)
	}
	return count, nil
}
