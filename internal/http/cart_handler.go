package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/fjod/go_cart/cartsync/internal/service"
	"github.com/go-chi/chi/v5"
)

type CartService interface {
	Login(ctx context.Context, id service.Identity) ([]domain.LineItem, error)
	Logout(ctx context.Context, id service.Identity) error
	Cart(ctx context.Context, id service.Identity) ([]domain.LineItem, error)
	AddToCart(ctx context.Context, id service.Identity, productID string, quantity int) ([]domain.LineItem, error)
	BuyNow(ctx context.Context, id service.Identity, productID string, quantity int) (domain.LineItem, []domain.LineItem, error)
	ChangeQuantity(ctx context.Context, id service.Identity, productID string, step int) ([]domain.LineItem, error)
	RemoveItems(ctx context.Context, id service.Identity, productIDs ...string) ([]domain.LineItem, error)
	CompleteCheckout(ctx context.Context, id service.Identity, checkoutID string, purchased []domain.Purchase) ([]domain.LineItem, error)
	BuyAgain(ctx context.Context, id service.Identity, purchased []domain.Purchase) ([]domain.LineItem, error)
}

type CartHandler struct {
	cart     CartService
	timeout  time.Duration
	loginURL string
}

func NewCartHandler(cart CartService, timeout time.Duration, loginURL string) *CartHandler {
	return &CartHandler{
		cart:     cart,
		timeout:  timeout,
		loginURL: loginURL,
	}
}

type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	BuyNow    bool   `json:"buy_now"`
}

type ChangeQuantityRequestDTO struct {
	Step int `json:"step"`
}

type RemoveItemsRequestDTO struct {
	ProductIDs []string `json:"product_ids"`
}

type PurchaseDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type PurchasesRequestDTO struct {
	CheckoutID string        `json:"checkout_id,omitempty"`
	Items      []PurchaseDTO `json:"items"`
}

type LineItemDTO struct {
	ProductID           string  `json:"product_id"`
	Name                string  `json:"name"`
	Image               string  `json:"image"`
	Slug                string  `json:"slug"`
	UnitPrice           string  `json:"unit_price"`
	DiscountPercent     float64 `json:"discount_percent"`
	DiscountedUnitPrice string  `json:"discounted_unit_price"`
	Quantity            int     `json:"quantity"`
	Subtotal            string  `json:"subtotal"`
	InStock             int     `json:"in_stock"`
}

type CartResponseDTO struct {
	Items     []LineItemDTO `json:"items"`
	Total     string        `json:"total"`
	Persisted bool          `json:"persisted"`
	// CheckoutItem is the line a buy-now request opens the checkout with.
	CheckoutItem *LineItemDTO `json:"checkout_item,omitempty"`
}

func toLineItemDTO(item domain.LineItem) LineItemDTO {
	return LineItemDTO{
		ProductID:           item.ProductID,
		Name:                item.Name,
		Image:               item.Image,
		Slug:                item.Stock.Slug,
		UnitPrice:           item.UnitPrice.StringFixed(2),
		DiscountPercent:     item.DiscountPercent,
		DiscountedUnitPrice: item.DiscountedUnitPrice().StringFixed(2),
		Quantity:            item.Quantity,
		Subtotal:            item.Subtotal().StringFixed(2),
		InStock:             item.Stock.InStock,
	}
}

func toCartResponse(items []domain.LineItem, persisted bool) CartResponseDTO {
	dto := CartResponseDTO{
		Items:     make([]LineItemDTO, 0, len(items)),
		Total:     domain.Total(items).StringFixed(2),
		Persisted: persisted,
	}
	for _, item := range items {
		dto.Items = append(dto.Items, toLineItemDTO(item))
	}
	return dto
}

func toPurchases(items []PurchaseDTO) []domain.Purchase {
	out := make([]domain.Purchase, 0, len(items))
	for _, item := range items {
		out = append(out, domain.Purchase{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return out
}

// validatePurchases returns a message describing the first unusable line,
// or "" when every line names a product and a positive quantity.
func validatePurchases(items []PurchaseDTO) string {
	for i, item := range items {
		if item.ProductID == "" {
			return fmt.Sprintf("items[%d]: product_id is required", i)
		}
		if item.Quantity <= 0 {
			return fmt.Sprintf("items[%d]: quantity must be positive", i)
		}
	}
	return ""
}

// respondCart answers with the cart. A cart that changed but could not be
// stored is still a success, flagged with persisted=false.
func (h *CartHandler) respondCart(w http.ResponseWriter, status int, items []domain.LineItem, err error) {
	persisted := true
	if err != nil {
		if !errors.Is(err, service.ErrNotPersisted) || items == nil {
			handleServiceError(w, err, h.loginURL)
			return
		}
		persisted = false
		status = http.StatusOK
	}
	respondJSON(w, status, toCartResponse(items, persisted))
}

func (h *CartHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	items, err := h.cart.Login(ctx, identityFromContext(r.Context()))
	h.respondCart(w, http.StatusOK, items, err)
}

func (h *CartHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.cart.Logout(ctx, identityFromContext(r.Context())); err != nil {
		handleServiceError(w, err, h.loginURL)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	items, err := h.cart.Cart(ctx, identityFromContext(r.Context()))
	h.respondCart(w, http.StatusOK, items, err)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	// Validate request
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}
	if req.Quantity <= 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	id := identityFromContext(r.Context())
	if !req.BuyNow {
		items, err := h.cart.AddToCart(ctx, id, req.ProductID, req.Quantity)
		h.respondCart(w, http.StatusCreated, items, err)
		return
	}

	line, items, err := h.cart.BuyNow(ctx, id, req.ProductID, req.Quantity)
	if err != nil && (!errors.Is(err, service.ErrNotPersisted) || items == nil) {
		handleServiceError(w, err, h.loginURL)
		return
	}
	status := http.StatusCreated
	if err != nil {
		status = http.StatusOK
	}
	resp := toCartResponse(items, err == nil)
	checkoutItem := toLineItemDTO(line)
	resp.CheckoutItem = &checkoutItem
	respondJSON(w, status, resp)
}

func (h *CartHandler) ChangeQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID := chi.URLParam(r, "product_id")
	var req ChangeQuantityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Step == 0 {
		respondError(w, http.StatusBadRequest, "invalid_step", "step must not be zero")
		return
	}

	items, err := h.cart.ChangeQuantity(ctx, identityFromContext(r.Context()), productID, req.Step)
	h.respondCart(w, http.StatusOK, items, err)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID := chi.URLParam(r, "product_id")
	items, err := h.cart.RemoveItems(ctx, identityFromContext(r.Context()), productID)
	h.respondCart(w, http.StatusOK, items, err)
}

func (h *CartHandler) RemoveItems(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req RemoveItemsRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.ProductIDs) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_ids must not be empty")
		return
	}

	items, err := h.cart.RemoveItems(ctx, identityFromContext(r.Context()), req.ProductIDs...)
	h.respondCart(w, http.StatusOK, items, err)
}

func (h *CartHandler) CompleteCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req PurchasesRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if msg := validatePurchases(req.Items); msg != "" {
		respondError(w, http.StatusBadRequest, "invalid_argument", msg)
		return
	}

	items, err := h.cart.CompleteCheckout(ctx, identityFromContext(r.Context()), req.CheckoutID, toPurchases(req.Items))
	h.respondCart(w, http.StatusOK, items, err)
}

func (h *CartHandler) BuyAgain(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req PurchasesRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Items) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "items must not be empty")
		return
	}
	if msg := validatePurchases(req.Items); msg != "" {
		respondError(w, http.StatusBadRequest, "invalid_argument", msg)
		return
	}

	items, err := h.cart.BuyAgain(ctx, identityFromContext(r.Context()), toPurchases(req.Items))
	h.respondCart(w, http.StatusOK, items, err)
}
