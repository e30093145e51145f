package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradelab/sim-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Portfolios are stored as versioned JSONB blobs; the version column is
// checked before decoding so schema drift fails fast.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) LoadPortfolio(ctx context.Context, userID string) (*model.Portfolio, error) {
	var version int
	var data []byte

	err := s.pool.QueryRow(ctx,
		`SELECT version, data FROM portfolios WHERE user_id = $1`, userID).
		Scan(&version, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load portfolio %s: %w", userID, err)
	}

	if version != model.SchemaVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrSchemaMismatch, version, model.SchemaVersion)
	}

	var p model.Portfolio
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if p.Positions == nil {
		p.Positions = make(map[string]*model.Position)
	}
	if err := Validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) SavePortfolio(ctx context.Context, userID string, p *model.Portfolio) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode portfolio %s: %w", userID, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO portfolios (user_id, version, data, updated_at)
		 VALUES ($1, $2, $3::JSONB, $4)
		 ON CONFLICT (user_id) DO UPDATE
		 SET version = EXCLUDED.version, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		userID, p.Version, data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save portfolio %s: %w", userID, err)
	}
	return nil
}
