package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/customtees/api/internal/domain"
	"github.com/customtees/api/internal/platform/auth"
	"github.com/customtees/api/internal/platform/httpx"
	"github.com/customtees/api/internal/services"
)

// Design payloads carry full editor state, so the body limit is generous.
const maxCartBodySize = 20 << 20

// CartHandlers exposes authenticated cart endpoints for the current user.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers constructs handlers enforcing authentication before invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{
		authn: authn,
		carts: carts,
	}
}

// Routes wires the /me/cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Patch("/items/{itemID}", h.updateItem)
	r.Delete("/items/{itemID}", h.removeItem)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	cart, err := h.carts.GetOrCreateCart(ctx, identity.UID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req addCartItemRequest
	if !decodeCartBody(ctx, w, r, &req) {
		return
	}

	cart, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		UserID:        identity.UID,
		ProductID:     strings.TrimSpace(req.ProductID),
		SelectedColor: strings.TrimSpace(req.SelectedColor),
		SelectedSize:  strings.TrimSpace(req.SelectedSize),
		FrontDesign:   req.FrontDesign.toDomain(),
		BackDesign:    req.BackDesign.toDomain(),
		Quantity:      req.Quantity,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	if itemID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item id is required", http.StatusBadRequest))
		return
	}

	var req updateCartItemRequest
	if !decodeCartBody(ctx, w, r, &req) {
		return
	}

	cart, err := h.carts.UpdateItemQuantity(ctx, services.UpdateCartItemCommand{
		UserID:   identity.UID,
		ItemID:   itemID,
		Quantity: req.Quantity,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	if itemID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item id is required", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.RemoveItem(ctx, services.RemoveCartItemCommand{
		UserID: identity.UID,
		ItemID: itemID,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	cart, err := h.carts.ClearCart(ctx, identity.UID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func decodeCartBody(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if len(body) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_item_not_found", "cart item not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartPayloadTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("design_too_large", "design payload exceeds the allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, services.ErrPricingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_design", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "failed to process cart request", http.StatusInternalServerError))
	}
}

type addCartItemRequest struct {
	ProductID     string             `json:"product_id"`
	SelectedColor string             `json:"selected_color"`
	SelectedSize  string             `json:"selected_size"`
	FrontDesign   *designSidePayload `json:"front_design,omitempty"`
	BackDesign    *designSidePayload `json:"back_design,omitempty"`
	Quantity      int                `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type cartPayload struct {
	ID         string            `json:"id,omitempty"`
	UserID     string            `json:"user_id"`
	Currency   string            `json:"currency,omitempty"`
	ItemsCount int               `json:"items_count"`
	Items      []cartItemPayload `json:"items"`
	Subtotal   int64             `json:"subtotal"`
	UpdatedAt  string            `json:"updated_at,omitempty"`
}

type cartItemPayload struct {
	ID            string             `json:"id"`
	ProductID     string             `json:"product_id"`
	ProductName   string             `json:"product_name,omitempty"`
	ProductSlug   string             `json:"product_slug,omitempty"`
	SelectedColor string             `json:"selected_color,omitempty"`
	SelectedSize  string             `json:"selected_size,omitempty"`
	FrontDesign   *designSidePayload `json:"front_design,omitempty"`
	BackDesign    *designSidePayload `json:"back_design,omitempty"`
	BasePrice     int64              `json:"base_price"`
	FrontCost     int64              `json:"front_cost"`
	BackCost      int64              `json:"back_cost"`
	TotalPrice    int64              `json:"total_price"`
	Quantity      int                `json:"quantity"`
	Currency      string             `json:"currency,omitempty"`
	AddedAt       string             `json:"added_at,omitempty"`
	UpdatedAt     string             `json:"updated_at,omitempty"`
}

func buildCartPayload(cart services.Cart) cartPayload {
	payload := cartPayload{
		ID:         strings.TrimSpace(cart.ID),
		UserID:     strings.TrimSpace(cart.UserID),
		Currency:   strings.ToUpper(strings.TrimSpace(cart.Currency)),
		ItemsCount: len(cart.Items),
		Items:      buildCartItems(cart.Items),
		Subtotal:   cart.Subtotal,
	}
	if !cart.UpdatedAt.IsZero() {
		payload.UpdatedAt = formatTime(cart.UpdatedAt)
	}
	return payload
}

func buildCartItems(items []domain.CartItem) []cartItemPayload {
	payload := make([]cartItemPayload, 0, len(items))
	for _, item := range items {
		entry := cartItemPayload{
			ID:            strings.TrimSpace(item.ID),
			ProductID:     strings.TrimSpace(item.ProductID),
			ProductName:   item.ProductName,
			ProductSlug:   item.ProductSlug,
			SelectedColor: item.SelectedColor,
			SelectedSize:  item.SelectedSize,
			FrontDesign:   buildDesignSidePayload(item.FrontDesign),
			BackDesign:    buildDesignSidePayload(item.BackDesign),
			BasePrice:     item.BasePrice,
			FrontCost:     item.FrontCost,
			BackCost:      item.BackCost,
			TotalPrice:    item.TotalPrice,
			Quantity:      item.Quantity,
			Currency:      strings.ToUpper(strings.TrimSpace(item.Currency)),
		}
		if !item.AddedAt.IsZero() {
			entry.AddedAt = formatTime(item.AddedAt)
		}
		if item.UpdatedAt != nil && !item.UpdatedAt.IsZero() {
			entry.UpdatedAt = formatTime(*item.UpdatedAt)
		}
		payload = append(payload, entry)
	}
	return payload
}
