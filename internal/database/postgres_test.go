package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.sr.ht/~jakintosh/tollgate/internal/clock"
	"git.sr.ht/~jakintosh/tollgate/internal/database"
	"git.sr.ht/~jakintosh/tollgate/internal/usage"
)

func setupPostgresMock(t *testing.T) (*database.PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return database.NewPostgresStore(db, clock.Fixed(testNow)), mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	t.Parallel()
	store, mock := setupPostgresMock(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS subscription_usage").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_IncrementUsesAtomicUpsert(t *testing.T) {
	t.Parallel()
	store, mock := setupPostgresMock(t)

	// counters are added server-side, negatives arrive clamped
	mock.ExpectExec(`INSERT INTO subscription_usage .* ON CONFLICT \(subscription_id\) DO UPDATE SET .* subscription_usage\.input_units \+ EXCLUDED\.input_units`).
		WithArgs("S", "user-1", "prod-1", int64(0), int64(7), testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Increment(context.Background(), usage.Increment{
		SubscriptionID: "S",
		UserID:         "user-1",
		ProductID:      "prod-1",
		InputUnits:     -3,
		OutputUnits:    7,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_IncrementError(t *testing.T) {
	t.Parallel()
	store, mock := setupPostgresMock(t)

	mock.ExpectExec("INSERT INTO subscription_usage").
		WillReturnError(errors.New("connection reset"))

	err := store.Increment(context.Background(), usage.Increment{SubscriptionID: "S"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestPostgresStore_Get(t *testing.T) {
	t.Parallel()
	store, mock := setupPostgresMock(t)

	rows := sqlmock.NewRows([]string{
		"subscription_id", "user_id", "product_id", "input_units", "output_units", "updated_at",
	}).AddRow("S", "user-1", "prod-1", int64(5), int64(2), testNow)
	mock.ExpectQuery("SELECT (.+) FROM subscription_usage WHERE subscription_id").
		WithArgs("S").
		WillReturnRows(rows)

	rec, err := store.Get(context.Background(), "S")
	require.NoError(t, err)
	assert.Equal(t, &usage.Record{
		SubscriptionID: "S",
		UserID:         "user-1",
		ProductID:      "prod-1",
		InputUnits:     5,
		OutputUnits:    2,
		UpdatedAt:      testNow,
	}, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	t.Parallel()
	store, mock := setupPostgresMock(t)

	mock.ExpectQuery("SELECT (.+) FROM subscription_usage").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{
			"subscription_id", "user_id", "product_id", "input_units", "output_units", "updated_at",
		}))

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, usage.ErrNotFound)
}
