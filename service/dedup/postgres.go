package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS seen_transfers (
    watch_address TEXT NOT NULL,
    txn_id        TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (watch_address, txn_id)
);

CREATE TABLE IF NOT EXISTS watch_state (
    watch_address        TEXT PRIMARY KEY,
    start_of_interest_ms BIGINT,
    last_update          TIMESTAMPTZ NOT NULL
);
`

// PostgresStore keeps one row per seen id and one state row per watched address.
type PostgresStore struct {
	pool    *pgxpool.Pool
	address string
	logger  *slog.Logger
}

// NewPostgresStore connects to the database, verifies the connection and
// creates the schema if needed.
func NewPostgresStore(ctx context.Context, databaseURL, address string, logger *slog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := NewPostgresStoreFromPool(pool, address, logger)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreFromPool wraps an existing pool. The caller is responsible
// for the schema.
func NewPostgresStoreFromPool(pool *pgxpool.Pool, address string, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{
		pool:    pool,
		address: address,
		logger:  logger.With("component", "dedup", "backend", "postgres"),
	}
}

// EnsureSchema creates the tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create dedup schema: %w", err)
	}
	return nil
}

// Backend implements Store.
func (s *PostgresStore) Backend() string {
	return "postgres"
}

// Load reads all seen ids and the state row for the watched address.
func (s *PostgresStore) Load(ctx context.Context) (*State, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT txn_id FROM seen_transfers WHERE watch_address = $1 ORDER BY txn_id`,
		s.address,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query seen transfers: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan seen transfers: %w", err)
	}

	state := &State{IDs: ids}

	var start *int64
	var lastUpdate time.Time
	err = s.pool.QueryRow(ctx,
		`SELECT start_of_interest_ms, last_update FROM watch_state WHERE watch_address = $1`,
		s.address,
	).Scan(&start, &lastUpdate)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to query watch state: %w", err)
	default:
		if start != nil {
			state.StartOfInterestMs = *start
		}
		state.LastUpdate = lastUpdate
	}

	return state, nil
}

// Persist inserts missing ids and upserts the state row in one transaction.
func (s *PostgresStore) Persist(ctx context.Context, state *State) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	ids := state.IDs
	if ids == nil {
		ids = []string{}
	}
	tag, err := tx.Exec(ctx,
		`INSERT INTO seen_transfers (watch_address, txn_id)
		 SELECT $1, unnest($2::text[])
		 ON CONFLICT (watch_address, txn_id) DO NOTHING`,
		s.address, ids,
	)
	if err != nil {
		return fmt.Errorf("failed to insert seen transfers: %w", err)
	}

	var start *int64
	if state.StartOfInterestMs > 0 {
		v := state.StartOfInterestMs
		start = &v
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO watch_state (watch_address, start_of_interest_ms, last_update)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (watch_address) DO UPDATE
		 SET start_of_interest_ms = EXCLUDED.start_of_interest_ms,
		     last_update = EXCLUDED.last_update`,
		s.address, start, state.LastUpdate,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert watch state: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit dedup state: %w", err)
	}

	s.logger.DebugContext(ctx, "persisted dedup state",
		"ids", len(state.IDs),
		"inserted", tag.RowsAffected(),
	)
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
