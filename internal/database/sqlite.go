// Package database provides the durable usage stores: SQLite, Postgres and
// Redis. Each one applies increments as a single server-side operation.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"git.sr.ht/~jakintosh/tollgate/internal/clock"
	"git.sr.ht/~jakintosh/tollgate/internal/usage"
	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db  *sql.DB
	now clock.Clock
}

var _ usage.Store = (*SQLiteStore)(nil)

func NewSQLiteStore(
	dbPath string,
	now clock.Clock,
) (
	*SQLiteStore,
	error,
) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// one connection: ":memory:" databases are per-connection, and file
	// databases take a single writer anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init database: couldn't set busy timeout: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	return &SQLiteStore{db: db, now: now}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Increment(
	ctx context.Context,
	inc usage.Increment,
) error {
	if inc.SubscriptionID == "" {
		return errMissingSubscription
	}
	inc = inc.Normalized()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscription_usage (
			subscription_id, user_id, product_id, input_units, output_units, updated_at
		) VALUES (?1, ?2, ?3, ?4, ?5, ?6)
		ON CONFLICT (subscription_id) DO UPDATE SET
			user_id      = excluded.user_id,
			product_id   = excluded.product_id,
			input_units  = input_units + excluded.input_units,
			output_units = output_units + excluded.output_units,
			updated_at   = excluded.updated_at;`,
		inc.SubscriptionID,
		inc.UserID,
		inc.ProductID,
		inc.InputUnits,
		inc.OutputUnits,
		s.now.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("usage increment: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(
	ctx context.Context,
	subscriptionID string,
) (
	*usage.Record,
	error,
) {
	var (
		record    usage.Record
		updatedAt int64
	)
	row := s.db.QueryRowContext(ctx, `
		SELECT subscription_id, user_id, product_id, input_units, output_units, updated_at
		FROM subscription_usage
		WHERE subscription_id = ?1;`,
		subscriptionID,
	)
	err := row.Scan(
		&record.SubscriptionID,
		&record.UserID,
		&record.ProductID,
		&record.InputUnits,
		&record.OutputUnits,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, usage.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("usage get: %w", err)
	}
	record.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &record, nil
}

func initSchema(db *sql.DB) error {
	return initTable(db, "subscription_usage", `
		CREATE TABLE IF NOT EXISTS subscription_usage (
			subscription_id  TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL DEFAULT '',
			product_id       TEXT NOT NULL DEFAULT '',
			input_units      INTEGER NOT NULL DEFAULT 0,
			output_units     INTEGER NOT NULL DEFAULT 0,
			updated_at       INTEGER NOT NULL
		);`,
	)
}

func initTable(
	db *sql.DB,
	name string,
	sql string,
) error {
	if _, err := db.Exec(sql); err != nil {
		return fmt.Errorf("failed to init '%s' table schema: %v", name, err)
	}
	return nil
}

var errMissingSubscription = errors.New("usage increment: subscription id is required")
