package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/customtees/api/internal/platform/auth"
	"github.com/customtees/api/internal/platform/httpx"
	"github.com/customtees/api/internal/services"
)

const maxAdminBodySize = 8 * 1024

// AdminHandlers exposes back-office order management endpoints.
type AdminHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewAdminHandlers constructs admin-only order management handlers.
func NewAdminHandlers(authn *auth.Authenticator, orders services.OrderService) *AdminHandlers {
	return &AdminHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes wires the /admin endpoints onto the provided router.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleAdmin))
	}
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Post("/orders/{orderID}/status", h.transitionStatus)
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	filter, parsed := parseOrderListFilter(w, r)
	if !parsed {
		return
	}
	filter.ActorID = identity.UID
	filter.Admin = true
	filter.UserID = strings.TrimSpace(r.URL.Query().Get("user_id"))

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderListResponse(page))
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID, services.OrderReadOptions{
		ActorID: identity.UID,
		Admin:   true,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) transitionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}
	if len(body) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		return
	}

	var req transitionOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	next, known := parseOrderStatus(req.Status)
	if !known {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown order status", http.StatusBadRequest))
		return
	}

	cmd := services.OrderStatusTransitionCommand{
		OrderID: orderID,
		ActorID: identity.UID,
		Next:    next,
	}
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		cmd.Reason = &reason
	}

	order, err := h.orders.TransitionStatus(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type transitionOrderRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}
