package cart

import (
	"github.com/fjod/go_cart/cartsync/internal/domain"
)

// BulkMerge subtracts purchased quantities from items and drops every line
// that ends at zero or below. Products that were not purchased are kept as is.
func BulkMerge(items []domain.LineItem, purchased []domain.Purchase) []domain.LineItem {
	adjust := make(map[string]int, len(purchased))
	for _, p := range purchased {
		adjust[p.ProductID] -= p.Quantity
	}

	out := make([]domain.LineItem, 0, len(items))
	for _, item := range items {
		if delta, ok := adjust[item.ProductID]; ok {
			item.Quantity += delta
		}
		if item.Quantity <= 0 {
			continue
		}
		out = append(out, item)
	}
	return out
}

// Remove drops the lines for productIDs.
func Remove(items []domain.LineItem, productIDs ...string) []domain.LineItem {
	drop := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		drop[id] = struct{}{}
	}

	out := make([]domain.LineItem, 0, len(items))
	for _, item := range items {
		if _, ok := drop[item.ProductID]; ok {
			continue
		}
		out = append(out, item)
	}
	return out
}
