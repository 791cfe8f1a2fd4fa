package cache

import (
	"context"
	"slices"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryCache is the process-local CartCache used when no Redis is
// configured.
type MemoryCache struct {
	entries *expirable.LRU[string, []domain.LineItem]
}

func NewMemoryCache(capacity int, ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &MemoryCache{entries: expirable.NewLRU[string, []domain.LineItem](capacity, nil, ttl)}
}

func (m *MemoryCache) Get(_ context.Context, userID string) ([]domain.LineItem, error) {
	items, ok := m.entries.Get(userID)
	if !ok {
		return nil, ErrCacheMiss
	}
	return slices.Clone(items), nil
}

func (m *MemoryCache) Set(_ context.Context, userID string, items []domain.LineItem) error {
	if items == nil {
		items = []domain.LineItem{}
	}
	m.entries.Add(userID, slices.Clone(items))
	return nil
}

func (m *MemoryCache) Delete(_ context.Context, userID string) error {
	m.entries.Remove(userID)
	return nil
}
