package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afyacare/clinic-intake-platform/internal/consultations"
)

var (
	// ErrStateConflict means another turn updated the row since it was
	// loaded. The caller should treat the turn as lost and apologize.
	ErrStateConflict = errors.New("conversation: state modified concurrently")
)

// Store persists conversation state between turns.
type Store interface {
	// LoadOrCreate returns the current row for (tenant, phone),
	// creating a fresh greeting row when none exists.
	LoadOrCreate(ctx context.Context, tenantID, phone string) (*Conversation, error)

	// Save writes conv back, enforcing the optimistic version check.
	Save(ctx context.Context, conv *Conversation) error

	// SaveBooking writes conv and appends the consultation in one
	// transaction, so a confirmed state always has its ledger row.
	SaveBooking(ctx context.Context, conv *Conversation, rec consultations.Record) (*consultations.Consultation, error)
}

type txStarter interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore is the production Store backed by pgx.
type PostgresStore struct {
	db      txStarter
	records *consultations.Repository
}

// NewPostgresStore initializes the store over a pgx pool.
func NewPostgresStore(pool *pgxpool.Pool, records *consultations.Repository) *PostgresStore {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	return &PostgresStore{db: pool, records: records}
}

// NewPostgresStoreWithDB allows injecting a mock database for testing.
func NewPostgresStoreWithDB(db txStarter, records *consultations.Repository) *PostgresStore {
	return &PostgresStore{db: db, records: records}
}

func (s *PostgresStore) LoadOrCreate(ctx context.Context, tenantID, phone string) (*Conversation, error) {
	query := `
		INSERT INTO conversation_states (tenant_id, phone, state, context, version)
		VALUES ($1, $2, $3, '{}', 1)
		ON CONFLICT (tenant_id, phone) DO UPDATE SET phone = EXCLUDED.phone
		RETURNING tenant_id, phone, state, context, version, updated_at
	`
	var (
		conv    Conversation
		payload []byte
	)
	if err := s.db.QueryRow(ctx, query, tenantID, phone, StateGreeting).Scan(
		&conv.TenantID, &conv.Phone, &conv.State, &payload, &conv.Version, &conv.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("conversation: load state: %w", err)
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &conv.Context); err != nil {
			return nil, fmt.Errorf("conversation: decode context: %w", err)
		}
	}
	return &conv, nil
}

func (s *PostgresStore) Save(ctx context.Context, conv *Conversation) error {
	tag, err := s.exec(ctx, s.db, conv)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStateConflict
	}
	conv.Version++
	return nil
}

func (s *PostgresStore) SaveBooking(ctx context.Context, conv *Conversation, rec consultations.Record) (*consultations.Consultation, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("conversation: begin booking tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := s.exec(ctx, tx, conv)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrStateConflict
	}

	saved, err := s.records.RecordIn(ctx, tx, rec)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("conversation: commit booking tx: %w", err)
	}
	conv.Version++
	return saved, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *PostgresStore) exec(ctx context.Context, q execer, conv *Conversation) (pgconn.CommandTag, error) {
	payload, err := json.Marshal(conv.Context)
	if err != nil {
		return pgconn.CommandTag{}, fmt.Errorf("conversation: encode context: %w", err)
	}
	query := `
		UPDATE conversation_states
		SET state = $1, context = $2, version = version + 1, updated_at = NOW()
		WHERE tenant_id = $3 AND phone = $4 AND version = $5
	`
	tag, err := q.Exec(ctx, query, conv.State, payload, conv.TenantID, conv.Phone, conv.Version)
	if err != nil {
		return pgconn.CommandTag{}, fmt.Errorf("conversation: save state: %w", err)
	}
	return tag, nil
}
