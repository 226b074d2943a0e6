// Package usagetest holds the behavioral checks every usage.Store must pass.
package usagetest

import (
	"context"
	"sync"
	"testing"

	"git.sr.ht/~jakintosh/tollgate/internal/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStoreContract runs the shared store checks. newStore must return an
// empty store each time it is called.
func RunStoreContract(t *testing.T, newStore func(t *testing.T) usage.Store) {
	t.Helper()

	t.Run("unknown subscription", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Get(context.Background(), "nobody")
		assert.ErrorIs(t, err, usage.ErrNotFound)
	})

	t.Run("zero increment creates record", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		// zero-count increment still creates the record
		require.NoError(t, store.Increment(ctx, usage.Increment{
			SubscriptionID: "S", UserID: "u", ProductID: "p",
		}))
		rec, err := store.Get(ctx, "S")
		require.NoError(t, err)
		assert.Equal(t, int64(0), rec.InputUnits)
		assert.Equal(t, int64(0), rec.OutputUnits)
		assert.False(t, rec.UpdatedAt.IsZero())

		// later increments add to the counters
		require.NoError(t, store.Increment(ctx, usage.Increment{
			SubscriptionID: "S", UserID: "u", ProductID: "p", InputUnits: 5, OutputUnits: 2,
		}))
		rec, err = store.Get(ctx, "S")
		require.NoError(t, err)
		assert.Equal(t, int64(5), rec.InputUnits)
		assert.Equal(t, int64(2), rec.OutputUnits)

		require.NoError(t, store.Increment(ctx, usage.Increment{
			SubscriptionID: "S", UserID: "u", ProductID: "p", InputUnits: 1, OutputUnits: 1,
		}))
		rec, err = store.Get(ctx, "S")
		require.NoError(t, err)
		assert.Equal(t, int64(6), rec.InputUnits)
		assert.Equal(t, int64(3), rec.OutputUnits)
	})

	t.Run("negative counts clamp", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Increment(ctx, usage.Increment{
			SubscriptionID: "S", InputUnits: 3, OutputUnits: 3,
		}))
		require.NoError(t, store.Increment(ctx, usage.Increment{
			SubscriptionID: "S", InputUnits: -10, OutputUnits: 4,
		}))
		rec, err := store.Get(ctx, "S")
		require.NoError(t, err)
		assert.Equal(t, int64(3), rec.InputUnits)
		assert.Equal(t, int64(7), rec.OutputUnits)
	})

	t.Run("identity fields last writer wins", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Increment(ctx, usage.Increment{
			SubscriptionID: "S", UserID: "old-user", ProductID: "old-product", InputUnits: 1,
		}))
		require.NoError(t, store.Increment(ctx, usage.Increment{
			SubscriptionID: "S", UserID: "new-user", ProductID: "new-product", OutputUnits: 1,
		}))
		rec, err := store.Get(ctx, "S")
		require.NoError(t, err)
		assert.Equal(t, "S", rec.SubscriptionID)
		assert.Equal(t, "new-user", rec.UserID)
		assert.Equal(t, "new-product", rec.ProductID)
		assert.Equal(t, int64(1), rec.InputUnits)
		assert.Equal(t, int64(1), rec.OutputUnits)
	})

	t.Run("subscriptions are independent", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Increment(ctx, usage.Increment{SubscriptionID: "A", InputUnits: 1}))
		require.NoError(t, store.Increment(ctx, usage.Increment{SubscriptionID: "B", OutputUnits: 9}))

		a, err := store.Get(ctx, "A")
		require.NoError(t, err)
		b, err := store.Get(ctx, "B")
		require.NoError(t, err)
		assert.Equal(t, int64(1), a.InputUnits)
		assert.Equal(t, int64(0), a.OutputUnits)
		assert.Equal(t, int64(0), b.InputUnits)
		assert.Equal(t, int64(9), b.OutputUnits)
	})

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		const n = 50

		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, store.Increment(ctx, usage.Increment{
					SubscriptionID: "S", UserID: "u", ProductID: "p", InputUnits: 1, OutputUnits: 1,
				}))
			}()
		}
		wg.Wait()

		rec, err := store.Get(ctx, "S")
		require.NoError(t, err)
		assert.Equal(t, int64(n), rec.InputUnits)
		assert.Equal(t, int64(n), rec.OutputUnits)
	})
}
