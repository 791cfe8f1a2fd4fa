package domain

import (
	"slices"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type StockSnapshot struct {
	InStock int    `json:"inStock"`
	Slug    string `json:"slug"`
}

// LineItem is one product entry in a user's cart. Price and discount are
// snapshots taken when the item was last merged.
type LineItem struct {
	ProductID       string          `json:"productId"`
	Name            string          `json:"name"`
	Image           string          `json:"image"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	DiscountPercent float64         `json:"discountPercent"`
	Quantity        int             `json:"quantity"`
	Stock           StockSnapshot   `json:"stock"`
}

func (i LineItem) DiscountedUnitPrice() decimal.Decimal {
	if i.DiscountPercent <= 0 {
		return i.UnitPrice
	}
	keep := hundred.Sub(decimal.NewFromFloat(i.DiscountPercent))
	return i.UnitPrice.Mul(keep).Div(hundred).Round(2)
}

func (i LineItem) Subtotal() decimal.Decimal {
	return i.DiscountedUnitPrice().Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Total sums the discounted subtotals of items.
func Total(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Purchase is a product and the quantity of it that was bought, as reported
// after an order is placed.
type Purchase struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Snapshot is the persisted value of every user's cart, keyed by user id.
type Snapshot map[string][]LineItem

// Items returns a copy of the user's slice; a nil snapshot behaves as empty.
func (s Snapshot) Items(userID string) []LineItem {
	if s == nil {
		return nil
	}
	return slices.Clone(s[userID])
}
