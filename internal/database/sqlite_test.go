package database_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"git.sr.ht/~jakintosh/tollgate/internal/clock"
	"git.sr.ht/~jakintosh/tollgate/internal/database"
	"git.sr.ht/~jakintosh/tollgate/internal/usage"
	"git.sr.ht/~jakintosh/tollgate/internal/usage/usagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)

func setupSQLiteStore(t *testing.T, path string) *database.SQLiteStore {
	t.Helper()
	store, err := database.NewSQLiteStore(path, clock.Fixed(testNow))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_Contract(t *testing.T) {
	t.Parallel()
	usagetest.RunStoreContract(t, func(t *testing.T) usage.Store {
		return setupSQLiteStore(t, ":memory:")
	})
}

func TestSQLiteStore_UpdatedAt(t *testing.T) {
	t.Parallel()
	store := setupSQLiteStore(t, ":memory:")
	ctx := context.Background()

	// updated-at round-trips through the integer column
	require.NoError(t, store.Increment(ctx, usage.Increment{SubscriptionID: "S"}))
	rec, err := store.Get(ctx, "S")
	require.NoError(t, err)
	assert.True(t, testNow.Equal(rec.UpdatedAt))
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "usage.db")
	ctx := context.Background()

	// write through one store and close it
	first, err := database.NewSQLiteStore(path, clock.Fixed(testNow))
	require.NoError(t, err)
	require.NoError(t, first.Increment(ctx, usage.Increment{
		SubscriptionID: "S", UserID: "u", ProductID: "p", InputUnits: 4, OutputUnits: 1,
	}))
	require.NoError(t, first.Close())

	// counters are still there after reopening
	second := setupSQLiteStore(t, path)
	require.NoError(t, second.Increment(ctx, usage.Increment{
		SubscriptionID: "S", UserID: "u", ProductID: "p", InputUnits: 1,
	}))
	rec, err := second.Get(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, int64(5), rec.InputUnits)
	assert.Equal(t, int64(1), rec.OutputUnits)
}

func TestSQLiteStore_RejectsEmptyID(t *testing.T) {
	t.Parallel()
	store := setupSQLiteStore(t, ":memory:")

	assert.Error(t, store.Increment(context.Background(), usage.Increment{InputUnits: 1}))
}
