package repository

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/cartsync/internal/domain"
)

var ErrCartNotFound = errors.New("cart not found")

// CartRepository persists one user's line items. Put replaces the user's cart
// as a whole; an empty slice is stored, not deleted.
type CartRepository interface {
	Get(ctx context.Context, userID string) ([]domain.LineItem, error)
	Put(ctx context.Context, userID string, items []domain.LineItem) error
}
