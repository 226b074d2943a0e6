package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"git.sr.ht/~jakintosh/tollgate/internal/clock"
	"git.sr.ht/~jakintosh/tollgate/internal/usage"
	_ "github.com/lib/pq"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS subscription_usage (
		subscription_id  TEXT PRIMARY KEY,
		user_id          TEXT NOT NULL DEFAULT '',
		product_id       TEXT NOT NULL DEFAULT '',
		input_units      BIGINT NOT NULL DEFAULT 0,
		output_units     BIGINT NOT NULL DEFAULT 0,
		updated_at       TIMESTAMPTZ NOT NULL
	);`

const postgresUpsert = `
	INSERT INTO subscription_usage (
		subscription_id, user_id, product_id, input_units, output_units, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (subscription_id) DO UPDATE SET
		user_id      = EXCLUDED.user_id,
		product_id   = EXCLUDED.product_id,
		input_units  = subscription_usage.input_units + EXCLUDED.input_units,
		output_units = subscription_usage.output_units + EXCLUDED.output_units,
		updated_at   = EXCLUDED.updated_at`

const postgresSelect = `
	SELECT subscription_id, user_id, product_id, input_units, output_units, updated_at
	FROM subscription_usage
	WHERE subscription_id = $1`

// PostgresStore keeps usage in a shared Postgres table, so several server
// instances can count against the same subscriptions.
type PostgresStore struct {
	db  *sql.DB
	now clock.Clock
}

var _ usage.Store = (*PostgresStore)(nil)

// OpenPostgres connects with the lib/pq driver and creates the table if
// needed.
func OpenPostgres(
	ctx context.Context,
	dsn string,
	now clock.Clock,
) (
	*PostgresStore,
	error,
) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	store := NewPostgresStore(db, now)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore wraps an open connection pool. The caller owns schema
// creation through Migrate.
func NewPostgresStore(db *sql.DB, now clock.Clock) *PostgresStore {
	return &PostgresStore{db: db, now: now}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to init 'subscription_usage' table schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *PostgresStore) Increment(
	ctx context.Context,
	inc usage.Increment,
) error {
	if inc.SubscriptionID == "" {
		return errMissingSubscription
	}
	inc = inc.Normalized()

	_, err := s.db.ExecContext(ctx, postgresUpsert,
		inc.SubscriptionID,
		inc.UserID,
		inc.ProductID,
		inc.InputUnits,
		inc.OutputUnits,
		s.now.Now(),
	)
	if err != nil {
		return fmt.Errorf("usage increment: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(
	ctx context.Context,
	subscriptionID string,
) (
	*usage.Record,
	error,
) {
	record := usage.Record{}
	err := s.db.QueryRowContext(ctx, postgresSelect, subscriptionID).Scan(
		&record.SubscriptionID,
		&record.UserID,
		&record.ProductID,
		&record.InputUnits,
		&record.OutputUnits,
		&record.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, usage.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("usage get: %w", err)
	}
	record.UpdatedAt = record.UpdatedAt.UTC()
	return &record, nil
}
