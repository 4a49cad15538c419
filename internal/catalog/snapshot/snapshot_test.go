package snapshot_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tair/marketplace-catalog/internal/catalog/domain"
	"github.com/tair/marketplace-catalog/internal/catalog/snapshot"
	"github.com/tair/marketplace-catalog/pkg/clock"
)

func backends(t *testing.T) map[string]snapshot.KV {
	t.Helper()
	b, err := snapshot.OpenBadger(snapshot.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	return map[string]snapshot.KV{
		"memory": snapshot.NewMemoryKV(),
		"badger": b,
		"traced": snapshot.WithTracing(snapshot.NewMemoryKV(), "memory"),
	}
}

func TestKVMissingKey(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			v, found, err := kv.Get(context.Background(), "absent")
			require.NoError(t, err)
			assert.False(t, found)
			assert.Nil(t, v)
		})
	}
}

func TestKVOverwrite(t *testing.T) {
	ctx := context.Background()
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, kv.Put(ctx, "k", []byte("one")))
			require.NoError(t, kv.Put(ctx, "k", []byte("two")))

			v, found, err := kv.Get(ctx, "k")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "two", string(v))
		})
	}
}

func TestRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	amount := 90.0
	products := []domain.Product{
		{
			ID: 1, Slug: "bike", Title: "Bike", Category: "Sports", Condition: domain.ConditionUsed,
			Price: 100, SellerAmount: &amount, Images: []string{"bike.jpg"}, SellerID: "u-1",
			CreatedAt: now.Add(-time.Hour),
		},
		{ID: 2, Slug: "lamp", Title: "Lamp", Price: 15, SellerID: "u-2", CreatedAt: now},
	}

	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repo := snapshot.NewRepository(kv, clock.NewMockClock(now))

			_, found, err := repo.Load(ctx)
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, repo.Save(ctx, products))

			got, found, err := repo.Load(ctx)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, products, got)

			savedAt, found, err := repo.SavedAt(ctx)
			require.NoError(t, err)
			assert.True(t, found)
			assert.True(t, now.Equal(savedAt))
		})
	}
}

func TestRepositoryCorruptSnapshot(t *testing.T) {
	ctx := context.Background()
	kv := snapshot.NewMemoryKV()
	require.NoError(t, kv.Put(ctx, snapshot.ProductsKey, []byte("{not json")))

	_, found, err := snapshot.NewRepository(kv, nil).Load(ctx)
	assert.Error(t, err)
	assert.False(t, found)
}
