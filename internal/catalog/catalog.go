// Package catalog fetches product data for the add-to-cart paths. Whatever it
// returns is treated as the freshest known price, discount and stock.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrUnavailable     = errors.New("catalog unavailable")
)

type Discount struct {
	Percent  float64    `json:"percent"`
	StartsAt *time.Time `json:"starts_at,omitempty"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`
}

// Active reports whether the discount applies at now. Open bounds are
// unlimited.
func (d *Discount) Active(now time.Time) bool {
	if d == nil || d.Percent <= 0 {
		return false
	}
	if d.StartsAt != nil && now.Before(*d.StartsAt) {
		return false
	}
	if d.EndsAt != nil && !now.Before(*d.EndsAt) {
		return false
	}
	return true
}

type Product struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Slug     string          `json:"slug"`
	Image    string          `json:"image"`
	Price    decimal.Decimal `json:"price"`
	InStock  int             `json:"in_stock"`
	Discount *Discount       `json:"discount,omitempty"`
}

// EffectiveDiscount is the discount percent in force at now, clamped to
// 0..100.
func (p Product) EffectiveDiscount(now time.Time) float64 {
	if !p.Discount.Active(now) {
		return 0
	}
	return min(p.Discount.Percent, 100)
}

// ToDelta snapshots the product into a cart delta of quantity units.
func (p Product) ToDelta(quantity int, now time.Time) domain.CartDelta {
	return domain.CartDelta{
		Name:            p.Name,
		Image:           p.Image,
		Quantity:        quantity,
		UnitPrice:       p.Price,
		DiscountPercent: p.EffectiveDiscount(now),
		Product: domain.ProductRef{
			ID:      p.ID,
			Slug:    p.Slug,
			InStock: p.InStock,
		},
	}
}

type Catalog interface {
	Product(ctx context.Context, productID string) (Product, error)
}
