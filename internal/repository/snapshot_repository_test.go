package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/snapshot"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func lineItems(ids ...string) []domain.LineItem {
	items := make([]domain.LineItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, domain.LineItem{
			ProductID: id,
			Name:      "name " + id,
			UnitPrice: decimal.RequireFromString("250.75"),
			Quantity:  2,
			Stock:     domain.StockSnapshot{InStock: 4, Slug: id},
		})
	}
	return items
}

type failingStore struct {
	readErr  error
	writeErr error
}

func (f failingStore) ReadAll(context.Context) (domain.Snapshot, error) {
	return nil, f.readErr
}

func (f failingStore) WriteAll(context.Context, domain.Snapshot) error {
	return f.writeErr
}

func TestSnapshotRepository_GetMissingUser(t *testing.T) {
	repo := NewSnapshotRepository(snapshot.NewMemoryStore(), zap.NewNop())

	items, err := repo.Get(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrCartNotFound)
	assert.Nil(t, items)
}

func TestSnapshotRepository_PutThenGet(t *testing.T) {
	store := snapshot.NewMemoryStore()
	repo := NewSnapshotRepository(store, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "u1", lineItems("a", "b")))
	require.NoError(t, repo.Put(ctx, "u2", lineItems("c")))

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ProductID)

	all, err := store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Len(t, all["u2"], 1)
}

func TestSnapshotRepository_EmptyCartIsStored(t *testing.T) {
	repo := NewSnapshotRepository(snapshot.NewMemoryStore(), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "u1", lineItems("a")))
	require.NoError(t, repo.Put(ctx, "u1", nil))

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSnapshotRepository_CorruptSnapshotDegradesToEmpty(t *testing.T) {
	store := snapshot.NewMemoryStore()
	store.SetRaw([]byte("{broken"))
	repo := NewSnapshotRepository(store, zap.NewNop())
	ctx := context.Background()

	_, err := repo.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrCartNotFound)

	require.NoError(t, repo.Put(ctx, "u1", lineItems("a")))
	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSnapshotRepository_StoreErrors(t *testing.T) {
	ctx := context.Background()

	repo := NewSnapshotRepository(failingStore{readErr: errors.New("connection refused")}, zap.NewNop())
	_, err := repo.Get(ctx, "u1")
	require.ErrorContains(t, err, "connection refused")
	require.ErrorContains(t, repo.Put(ctx, "u1", nil), "connection refused")

	repo = NewSnapshotRepository(failingStore{writeErr: errors.New("quota exceeded")}, zap.NewNop())
	require.ErrorContains(t, repo.Put(ctx, "u1", lineItems("a")), "quota exceeded")
}

func TestSnapshotRepository_ConcurrentPutsKeepEveryUser(t *testing.T) {
	store := snapshot.NewMemoryStore()
	repo := NewSnapshotRepository(store, zap.NewNop())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, repo.Put(ctx, fmt.Sprintf("user-%d", i), lineItems("p")))
		}(i)
	}
	wg.Wait()

	all, err := store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 20)
}
