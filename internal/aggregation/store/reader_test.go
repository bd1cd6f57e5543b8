package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upagg/internal/aggregation/models"
	"upagg/internal/aggregation/store"
	"upagg/internal/aggregation/store/memory"
	"upagg/pkg/platform/circuit"
	"upagg/pkg/platform/sentinel"
)

type brokenCache struct {
	err   error
	calls int
}

func (b *brokenCache) FindResult(context.Context, models.EntityID) (*models.Result, error) {
	b.calls++
	return nil, b.err
}

func (b *brokenCache) PutResults(context.Context, []models.Result) error { return b.err }

func seeded(t *testing.T, ids ...models.EntityID) *memory.Store {
	t.Helper()
	s := memory.New(&models.Dataset{})
	rows := make([]models.Result, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, models.Result{EntityID: id, Resolution: models.Resolution{ParentID: id}})
	}
	require.NoError(t, s.PutResults(context.Background(), rows))
	return s
}

func TestReadThrough(t *testing.T) {
	ctx := context.Background()

	t.Run("cache hit skips the primary", func(t *testing.T) {
		cache := seeded(t, "AAAAAA")
		primary := seeded(t)
		got, err := store.NewReadThrough(cache, primary, nil).FindResult(ctx, "AAAAAA")
		require.NoError(t, err)
		assert.Equal(t, models.EntityID("AAAAAA"), got.EntityID)
	})

	t.Run("cache miss reads the primary and fills the cache", func(t *testing.T) {
		cache := seeded(t)
		primary := seeded(t, "BBBBBB")
		got, err := store.NewReadThrough(cache, primary, nil).FindResult(ctx, "BBBBBB")
		require.NoError(t, err)
		assert.Equal(t, models.EntityID("BBBBBB"), got.ParentID)

		cached, err := cache.FindResult(ctx, "BBBBBB")
		require.NoError(t, err)
		assert.Equal(t, models.EntityID("BBBBBB"), cached.EntityID)
	})

	t.Run("cache outage degrades to the primary", func(t *testing.T) {
		primary := seeded(t, "CCCCCC")
		got, err := store.NewReadThrough(&brokenCache{err: errors.New("i/o timeout")}, primary, nil).FindResult(ctx, "CCCCCC")
		require.NoError(t, err)
		assert.Equal(t, models.EntityID("CCCCCC"), got.EntityID)
	})

	t.Run("open breaker skips the cache", func(t *testing.T) {
		primary := seeded(t, "CCCCCC")
		cache := &brokenCache{err: errors.New("i/o timeout")}
		r := store.NewReadThrough(cache, primary, nil, circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))

		for range 5 {
			_, err := r.FindResult(ctx, "CCCCCC")
			require.NoError(t, err)
		}
		assert.Equal(t, 1, cache.calls, "read and fill failures open the breaker on the first lookup")
	})

	t.Run("miss everywhere is not found", func(t *testing.T) {
		_, err := store.NewReadThrough(seeded(t), seeded(t), nil).FindResult(ctx, "ZZZZZZ")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("no cache returns the primary", func(t *testing.T) {
		primary := seeded(t)
		assert.Same(t, primary, store.NewReadThrough(nil, primary, nil))
	})
}
