// Package cart holds the pure reducers that combine a user's line items with
// requested changes. None of them mutate their input.
package cart

import (
	"slices"

	"github.com/fjod/go_cart/cartsync/internal/domain"
)

// Merge applies one delta to items. A matching line gets the delta's quantity
// added and its descriptive fields replaced; a line whose quantity drops to
// zero or below is removed. A missing product is appended only when the delta
// quantity is positive.
func Merge(items []domain.LineItem, delta domain.CartDelta) []domain.LineItem {
	out := slices.Clone(items)

	idx := slices.IndexFunc(out, func(item domain.LineItem) bool {
		return item.ProductID == delta.Product.ID
	})
	if idx < 0 {
		if delta.Quantity <= 0 {
			return out
		}
		return append(out, newLineItem(delta, delta.Quantity))
	}

	quantity := out[idx].Quantity + delta.Quantity
	if quantity <= 0 {
		return slices.Delete(out, idx, idx+1)
	}
	out[idx] = newLineItem(delta, quantity)
	return out
}

// MergeAll folds Merge over deltas in order.
func MergeAll(items []domain.LineItem, deltas []domain.CartDelta) []domain.LineItem {
	out := slices.Clone(items)
	for _, d := range deltas {
		out = Merge(out, d)
	}
	return out
}

func newLineItem(delta domain.CartDelta, quantity int) domain.LineItem {
	return domain.LineItem{
		ProductID:       delta.Product.ID,
		Name:            delta.Name,
		Image:           delta.Image,
		UnitPrice:       delta.UnitPrice,
		DiscountPercent: delta.DiscountPercent,
		Quantity:        quantity,
		Stock: domain.StockSnapshot{
			InStock: delta.Product.InStock,
			Slug:    delta.Product.Slug,
		},
	}
}

// Find returns the line for productID.
func Find(items []domain.LineItem, productID string) (domain.LineItem, bool) {
	idx := slices.IndexFunc(items, func(item domain.LineItem) bool {
		return item.ProductID == productID
	})
	if idx < 0 {
		return domain.LineItem{}, false
	}
	return items[idx], true
}
