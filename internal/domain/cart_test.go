package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineItem_DiscountedUnitPrice(t *testing.T) {
	item := LineItem{UnitPrice: decimal.NewFromInt(100000), DiscountPercent: 10, Quantity: 2}

	assert.True(t, decimal.NewFromInt(90000).Equal(item.DiscountedUnitPrice()))
	assert.True(t, decimal.NewFromInt(180000).Equal(item.Subtotal()))
}

func TestLineItem_NoDiscount(t *testing.T) {
	item := LineItem{UnitPrice: decimal.RequireFromString("19.99"), Quantity: 3}

	assert.True(t, decimal.RequireFromString("19.99").Equal(item.DiscountedUnitPrice()))
	assert.True(t, decimal.RequireFromString("59.97").Equal(item.Subtotal()))
}

func TestTotal(t *testing.T) {
	items := []LineItem{
		{UnitPrice: decimal.NewFromInt(100), DiscountPercent: 50, Quantity: 1},
		{UnitPrice: decimal.NewFromInt(10), Quantity: 4},
	}
	assert.True(t, decimal.NewFromInt(90).Equal(Total(items)))
	assert.True(t, decimal.Zero.Equal(Total(nil)))
}

func TestSnapshot_ItemsReturnsCopy(t *testing.T) {
	s := Snapshot{"u1": {{ProductID: "a", Quantity: 1}}}

	items := s.Items("u1")
	items[0].Quantity = 99

	assert.Equal(t, 1, s["u1"][0].Quantity)
	assert.Nil(t, Snapshot(nil).Items("u1"))
	assert.Empty(t, s.Items("u2"))
}

func TestCartDelta_Validate(t *testing.T) {
	valid := CartDelta{Product: ProductRef{ID: "p1"}, Quantity: 1, UnitPrice: decimal.NewFromInt(5), DiscountPercent: 10}
	require.NoError(t, valid.Validate())

	missing := valid
	missing.Product.ID = "  "
	assert.ErrorIs(t, missing.Validate(), ErrMissingProductID)

	discount := valid
	discount.DiscountPercent = 101
	assert.ErrorIs(t, discount.Validate(), ErrInvalidDiscount)

	price := valid
	price.UnitPrice = decimal.NewFromInt(-1)
	assert.ErrorIs(t, price.Validate(), ErrInvalidPrice)
}

func TestDeltaFromItem(t *testing.T) {
	item := LineItem{
		ProductID:       "p1",
		Name:            "Lamp",
		Image:           "https://img/lamp.png",
		UnitPrice:       decimal.NewFromInt(40),
		DiscountPercent: 5,
		Quantity:        3,
		Stock:           StockSnapshot{InStock: 7, Slug: "lamp"},
	}

	d := DeltaFromItem(item, -1)
	assert.Equal(t, "p1", d.Product.ID)
	assert.Equal(t, "lamp", d.Product.Slug)
	assert.Equal(t, 7, d.Product.InStock)
	assert.Equal(t, -1, d.Quantity)
	assert.Equal(t, "Lamp", d.Name)
}
