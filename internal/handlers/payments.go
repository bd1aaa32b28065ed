package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/customtees/api/internal/platform/auth"
	"github.com/customtees/api/internal/platform/httpx"
	"github.com/customtees/api/internal/services"
)

const maxPaymentBodySize = 8 * 1024

// PaymentHandlers exposes payment verification endpoints.
type PaymentHandlers struct {
	authn    *auth.Authenticator
	payments services.PaymentService
}

// NewPaymentHandlers constructs payment verification handlers.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentService) *PaymentHandlers {
	return &PaymentHandlers{
		authn:    authn,
		payments: payments,
	}
}

// Routes wires the /payments endpoints onto the provided router.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Post("/{provider}/verify", h.verify)
}

func (h *PaymentHandlers) verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	provider := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))
	if provider == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "payment provider is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxPaymentBodySize)
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

	var req verifyPaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	order, err := h.payments.VerifyPayment(ctx, services.VerifyPaymentCommand{
		OrderID:       strings.TrimSpace(req.OrderID),
		ActorID:       identity.UID,
		Admin:         identity.IsAdmin(),
		Provider:      provider,
		TransactionID: strings.TrimSpace(req.TransactionID),
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("payment_forbidden", "order belongs to another user", http.StatusForbidden))
	case errors.Is(err, services.ErrPaymentWrongMethod):
		httpx.WriteError(ctx, w, httpx.NewError("payment_wrong_method", "order does not use this payment method", http.StatusConflict))
	case errors.Is(err, services.ErrPaymentUnknownProvider):
		httpx.WriteError(ctx, w, httpx.NewError("unknown_provider", "unsupported payment provider", http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentGateway):
		httpx.WriteError(ctx, w, httpx.NewError("gateway_error", "payment gateway request failed; retry later", http.StatusBadGateway))
	case errors.Is(err, services.ErrPaymentPending):
		httpx.WriteError(ctx, w, httpx.NewError("payment_pending", "payment has not completed yet", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment failed at the gateway", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrPaymentMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("payment_mismatch", "captured amount or currency does not match the order", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order was modified concurrently; retry", http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("payment_error", "failed to verify payment", http.StatusInternalServerError))
	}
}

type verifyPaymentRequest struct {
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id"`
}
