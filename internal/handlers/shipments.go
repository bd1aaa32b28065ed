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

const maxShipmentBodySize = 8 * 1024

// ShipmentHandlers exposes label generation endpoints for staff users.
type ShipmentHandlers struct {
	authn     *auth.Authenticator
	shipments services.ShipmentService
}

// NewShipmentHandlers constructs shipment handlers restricted to staff and admin roles.
func NewShipmentHandlers(authn *auth.Authenticator, shipments services.ShipmentService) *ShipmentHandlers {
	return &ShipmentHandlers{
		authn:     authn,
		shipments: shipments,
	}
}

// Routes wires the /shipments endpoints onto the provided router.
func (h *ShipmentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Post("/orders/{orderID}/label", h.createLabel)
}

func (h *ShipmentHandlers) createLabel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipment_service_unavailable", "shipment service is unavailable", http.StatusServiceUnavailable))
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

	body, err := readLimitedBody(r, maxShipmentBodySize)
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

	var req createLabelRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	force := strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("force")), "true")

	order, err := h.shipments.CreateLabel(ctx, services.CreateLabelCommand{
		OrderID: orderID,
		ActorID: identity.UID,
		Package: domain.PackageDims{
			WeightKg: req.Package.WeightKg,
			LengthCm: req.Package.LengthCm,
			WidthCm:  req.Package.WidthCm,
			HeightCm: req.Package.HeightCm,
		},
		Force: force,
	})
	if err != nil {
		writeShipmentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func writeShipmentError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrShipmentInvalidPackage):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_package", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrShipmentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrShipmentMissingAddress):
		httpx.WriteError(ctx, w, httpx.NewError("missing_address", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrShipmentCarrier):
		httpx.WriteError(ctx, w, httpx.NewError("carrier_error", "carrier request failed; retry later", http.StatusBadGateway))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order was modified concurrently; retry", http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("shipment_error", "failed to create shipping label", http.StatusInternalServerError))
	}
}

type createLabelRequest struct {
	Package packageDimsPayload `json:"package"`
}
