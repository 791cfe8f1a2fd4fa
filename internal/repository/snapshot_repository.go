package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/snapshot"
	"go.uber.org/zap"
)

// SnapshotRepository keeps every user's cart in one whole-map snapshot.
// Put is read-modify-write of the full map: serialized inside this process,
// last-writer-wins across processes sharing the same store.
type SnapshotRepository struct {
	mu     sync.Mutex
	store  snapshot.Store
	logger *zap.Logger
}

func NewSnapshotRepository(store snapshot.Store, logger *zap.Logger) *SnapshotRepository {
	return &SnapshotRepository{store: store, logger: logger}
}

func (r *SnapshotRepository) Get(ctx context.Context, userID string) ([]domain.LineItem, error) {
	s, err := r.readAll(ctx)
	if err != nil {
		return nil, err
	}
	items, ok := s[userID]
	if !ok {
		return nil, ErrCartNotFound
	}
	return slices.Clone(items), nil
}

func (r *SnapshotRepository) Put(ctx context.Context, userID string, items []domain.LineItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.readAll(ctx)
	if err != nil {
		return err
	}
	if items == nil {
		items = []domain.LineItem{}
	}
	s[userID] = slices.Clone(items)

	if err := r.store.WriteAll(ctx, s); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// readAll never returns a nil map. A corrupt snapshot is treated as empty.
func (r *SnapshotRepository) readAll(ctx context.Context) (domain.Snapshot, error) {
	s, err := r.store.ReadAll(ctx)
	if errors.Is(err, snapshot.ErrCorruptSnapshot) {
		r.logger.Warn("discarding corrupt cart snapshot", zap.Error(err))
		return domain.Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if s == nil {
		return domain.Snapshot{}, nil
	}
	return s, nil
}
