package service

import "errors"

var (
	ErrLoginRequired   = errors.New("login required")
	ErrStaleResponse   = errors.New("stale response discarded")
	ErrNotPersisted    = errors.New("cart updated but not persisted")
	ErrOutOfStock      = errors.New("not enough stock")
	ErrItemNotFound    = errors.New("item not in cart")
	ErrInvalidQuantity = errors.New("quantity must be positive")
)
