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

const maxCouponBodySize = 4 * 1024

// CouponHandlers exposes coupon discovery and validation endpoints.
type CouponHandlers struct {
	authn   *auth.Authenticator
	coupons services.CouponService
}

// NewCouponHandlers constructs coupon endpoints. Validation requires an
// authenticated user; the active list is public.
func NewCouponHandlers(authn *auth.Authenticator, coupons services.CouponService) *CouponHandlers {
	return &CouponHandlers{
		authn:   authn,
		coupons: coupons,
	}
}

// Routes wires the /coupons endpoints onto the provided router.
func (h *CouponHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/active", h.listActive)
	if h.authn != nil {
		r.With(h.authn.RequireAuth()).Post("/validate", h.validate)
		return
	}
	r.Post("/validate", h.validate)
}

func (h *CouponHandlers) listActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_service_unavailable", "coupon service is unavailable", http.StatusServiceUnavailable))
		return
	}

	coupons, err := h.coupons.ListActive(ctx)
	if err != nil {
		writeCouponError(ctx, w, err)
		return
	}

	items := make([]couponPayload, 0, len(coupons))
	for _, coupon := range coupons {
		items = append(items, buildCouponPayload(coupon))
	}
	writeJSONResponse(w, http.StatusOK, couponListResponse{Items: items})
}

func (h *CouponHandlers) validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_service_unavailable", "coupon service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCouponBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}

	var req validateCouponRequest
	if len(body) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	application, err := h.coupons.Validate(ctx, services.ValidateCouponCommand{
		Code:     req.Code,
		UserID:   identity.UID,
		Subtotal: req.Subtotal,
	})
	if err != nil {
		writeCouponError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, validateCouponResponse{
		Coupon:         buildCouponPayload(application.Coupon),
		DiscountAmount: application.DiscountAmount,
	})
}

func writeCouponError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCouponInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCouponNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_not_found", "coupon not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCouponInactive):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_inactive", "coupon is not active", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCouponExpired):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_expired", "coupon has expired", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCouponNotYetValid):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_not_yet_valid", "coupon is not valid yet", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCouponBelowMinimum):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_below_minimum", "order subtotal is below the coupon minimum", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCouponExhausted):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_exhausted", "coupon usage limit reached", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCouponUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_service_unavailable", "coupon service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("coupon_error", "failed to process coupon request", http.StatusInternalServerError))
	}
}

type validateCouponRequest struct {
	Code     string `json:"code"`
	Subtotal int64  `json:"subtotal"`
}

type validateCouponResponse struct {
	Coupon         couponPayload `json:"coupon"`
	DiscountAmount int64         `json:"discount_amount"`
}

type couponListResponse struct {
	Items []couponPayload `json:"items"`
}

type couponPayload struct {
	Code          string `json:"code"`
	Description   string `json:"description,omitempty"`
	DiscountType  string `json:"discount_type"`
	DiscountValue int64  `json:"discount_value"`
	MinPurchase   int64  `json:"min_purchase,omitempty"`
	MaxDiscount   *int64 `json:"max_discount,omitempty"`
	StartsAt      string `json:"starts_at,omitempty"`
	EndsAt        string `json:"ends_at,omitempty"`
}

func buildCouponPayload(coupon domain.Coupon) couponPayload {
	return couponPayload{
		Code:          strings.ToUpper(strings.TrimSpace(coupon.Code)),
		Description:   coupon.Description,
		DiscountType:  string(coupon.DiscountType),
		DiscountValue: coupon.DiscountValue,
		MinPurchase:   coupon.MinPurchase,
		MaxDiscount:   coupon.MaxDiscount,
		StartsAt:      formatTimePtr(coupon.StartsAt),
		EndsAt:        formatTimePtr(coupon.EndsAt),
	}
}
