package domain

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrMissingProductID = errors.New("delta is missing a product id")
	ErrInvalidDiscount  = errors.New("discount percent must be between 0 and 100")
	ErrInvalidPrice     = errors.New("unit price must not be negative")
)

type ProductRef struct {
	ID      string `json:"id"`
	Slug    string `json:"slug"`
	InStock int    `json:"inStock"`
}

// CartDelta describes one requested change to a cart: the freshest known
// product data plus a signed quantity to add.
type CartDelta struct {
	Name            string          `json:"name"`
	Image           string          `json:"image"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	DiscountPercent float64         `json:"discountPercent"`
	Product         ProductRef      `json:"product"`
}

func (d CartDelta) Validate() error {
	if strings.TrimSpace(d.Product.ID) == "" {
		return ErrMissingProductID
	}
	if d.DiscountPercent < 0 || d.DiscountPercent > 100 {
		return ErrInvalidDiscount
	}
	if d.UnitPrice.IsNegative() {
		return ErrInvalidPrice
	}
	return nil
}

// DeltaFromItem rebuilds a delta from an existing line item, so a quantity
// step can be merged without re-fetching the product.
func DeltaFromItem(item LineItem, quantity int) CartDelta {
	return CartDelta{
		Name:            item.Name,
		Image:           item.Image,
		Quantity:        quantity,
		UnitPrice:       item.UnitPrice,
		DiscountPercent: item.DiscountPercent,
		Product: ProductRef{
			ID:      item.ProductID,
			Slug:    item.Stock.Slug,
			InStock: item.Stock.InStock,
		},
	}
}
