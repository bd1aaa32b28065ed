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
	"github.com/customtees/api/internal/platform/pagination"
	"github.com/customtees/api/internal/services"
)

const (
	defaultOrderPageSize   = 20
	maxOrderPageSize       = 100
	maxOrderBodySize       = 64 * 1024
	maxOrderCancelBodySize = 4 * 1024
)

var knownOrderStatuses = map[domain.OrderStatus]struct{}{
	domain.OrderStatusPlaced:     {},
	domain.OrderStatusProcessing: {},
	domain.OrderStatusShipped:    {},
	domain.OrderStatusDelivered:  {},
	domain.OrderStatusCancelled:  {},
}

// OrderHandlers exposes checkout and order lifecycle endpoints for authenticated users.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Post("/from-cart", h.createFromCart)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
}

func (h *OrderHandlers) createFromCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
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

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	cmd := services.CreateOrderFromCartCommand{
		UserID:          identity.UID,
		PaymentMethod:   domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		ShippingAddress: req.ShippingAddress.toDomain(),
	}
	if code := strings.TrimSpace(req.CouponCode); code != "" {
		cmd.CouponCode = &code
	}

	order, err := h.orders.CreateFromCart(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	filter, ok := parseOrderListFilter(w, r)
	if !ok {
		return
	}
	filter.ActorID = identity.UID
	filter.UserID = identity.UID

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderListResponse(page))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
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
		Admin:   identity.IsAdmin(),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
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

	var req cancelOrderRequest
	body, err := readLimitedBody(r, maxOrderCancelBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	cmd := services.CancelOrderCommand{
		OrderID: orderID,
		ActorID: identity.UID,
		Admin:   identity.IsAdmin(),
	}
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		cmd.Reason = &reason
	}

	cancelled, err := h.orders.Cancel(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(cancelled)})
}

func parseOrderListFilter(w http.ResponseWriter, r *http.Request) (services.OrderListFilter, bool) {
	ctx := r.Context()
	query := r.URL.Query()

	var filter services.OrderListFilter

	for _, raw := range query["status"] {
		for _, candidate := range strings.Split(raw, ",") {
			status, ok := parseOrderStatus(candidate)
			if !ok {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status filter contains an unknown order status", http.StatusBadRequest))
				return filter, false
			}
			filter.Status = append(filter.Status, status)
		}
	}

	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_after must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return filter, false
		}
		filter.DateRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_before must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return filter, false
		}
		filter.DateRange.To = &ts
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: defaultOrderPageSize,
		MaxPageSize:     maxOrderPageSize,
	})
	if err != nil {
		switch {
		case errors.Is(err, pagination.ErrInvalidPageSize):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_token is not a valid page token", http.StatusBadRequest))
		}
		return filter, false
	}

	filter.Pager = services.Pagination{
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	}
	return filter, true
}

func parseOrderStatus(raw string) (domain.OrderStatus, bool) {
	status := domain.OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := knownOrderStatuses[status]
	return status, ok
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "cart is empty", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrOrderInvalidAddress):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_address", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderCouponInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_rejected", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("order_forbidden", "order belongs to another user", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order was modified concurrently; retry", http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

type createOrderRequest struct {
	PaymentMethod   string         `json:"payment_method"`
	ShippingAddress addressPayload `json:"shipping_address"`
	CouponCode      string         `json:"coupon_code,omitempty"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number"`
	Status      string `json:"status"`
	Currency    string `json:"currency"`
	Total       int64  `json:"total"`
	CreatedAt   string `json:"created_at"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID              string                `json:"id"`
	OrderNumber     string                `json:"order_number"`
	UserID          string                `json:"user_id"`
	Status          string                `json:"status"`
	Currency        string                `json:"currency"`
	Totals          orderTotalsPayload    `json:"totals"`
	Coupon          *orderCouponPayload   `json:"coupon,omitempty"`
	Items           []orderItemPayload    `json:"items"`
	PaymentMethod   string                `json:"payment_method"`
	Payment         *orderPaymentPayload  `json:"payment,omitempty"`
	ShippingAddress addressPayload        `json:"shipping_address"`
	Shipment        *orderShipmentPayload `json:"shipment,omitempty"`
	CreatedAt       string                `json:"created_at"`
	UpdatedAt       string                `json:"updated_at,omitempty"`
	PlacedAt        string                `json:"placed_at,omitempty"`
	ProcessingAt    string                `json:"processing_at,omitempty"`
	ShippedAt       string                `json:"shipped_at,omitempty"`
	DeliveredAt     string                `json:"delivered_at,omitempty"`
	CancelledAt     string                `json:"cancelled_at,omitempty"`
	CancelReason    string                `json:"cancel_reason,omitempty"`
}

type orderTotalsPayload struct {
	Subtotal int64 `json:"subtotal"`
	Discount int64 `json:"discount"`
	Total    int64 `json:"total"`
}

type orderCouponPayload struct {
	Code           string `json:"code"`
	DiscountType   string `json:"discount_type"`
	DiscountValue  int64  `json:"discount_value"`
	DiscountAmount int64  `json:"discount_amount"`
}

type orderItemPayload struct {
	ProductID     string             `json:"product_id"`
	ProductName   string             `json:"product_name,omitempty"`
	ProductSlug   string             `json:"product_slug,omitempty"`
	SelectedColor string             `json:"selected_color,omitempty"`
	SelectedSize  string             `json:"selected_size,omitempty"`
	FrontDesign   *designSidePayload `json:"front_design,omitempty"`
	BackDesign    *designSidePayload `json:"back_design,omitempty"`
	Quantity      int                `json:"quantity"`
	Price         int64              `json:"price"`
	Total         int64              `json:"total"`
}

type orderPaymentPayload struct {
	Status        string `json:"status"`
	Provider      string `json:"provider,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Amount        int64  `json:"amount,omitempty"`
	Currency      string `json:"currency,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	VerifiedAt    string `json:"verified_at,omitempty"`
}

type orderShipmentPayload struct {
	Status         string              `json:"status"`
	Carrier        string              `json:"carrier,omitempty"`
	TrackingNumber string              `json:"tracking_number,omitempty"`
	LabelURL       string              `json:"label_url,omitempty"`
	Package        *packageDimsPayload `json:"package,omitempty"`
	IssuedAt       string              `json:"issued_at,omitempty"`
}

type packageDimsPayload struct {
	WeightKg float64 `json:"weight_kg"`
	LengthCm float64 `json:"length_cm"`
	WidthCm  float64 `json:"width_cm"`
	HeightCm float64 `json:"height_cm"`
}

func buildOrderListResponse(page domain.CursorPage[domain.Order]) orderListResponse {
	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}
	return orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	}
}

func buildOrderSummary(order domain.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:          strings.TrimSpace(order.ID),
		OrderNumber: strings.TrimSpace(order.OrderNumber),
		Status:      string(order.Status),
		Currency:    strings.ToUpper(strings.TrimSpace(order.Currency)),
		Total:       order.Totals.Total,
		CreatedAt:   formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:          strings.TrimSpace(order.ID),
		OrderNumber: strings.TrimSpace(order.OrderNumber),
		UserID:      strings.TrimSpace(order.UserID),
		Status:      string(order.Status),
		Currency:    strings.ToUpper(strings.TrimSpace(order.Currency)),
		Totals: orderTotalsPayload{
			Subtotal: order.Totals.Subtotal,
			Discount: order.Totals.Discount,
			Total:    order.Totals.Total,
		},
		Items:           make([]orderItemPayload, 0, len(order.Items)),
		PaymentMethod:   string(order.PaymentMethod),
		ShippingAddress: buildAddressPayload(order.ShippingAddress),
		CreatedAt:       formatTime(order.CreatedAt),
		UpdatedAt:       formatTime(order.UpdatedAt),
		PlacedAt:        formatTime(order.PlacedAt),
		ProcessingAt:    formatTimePtr(order.ProcessingAt),
		ShippedAt:       formatTimePtr(order.ShippedAt),
		DeliveredAt:     formatTimePtr(order.DeliveredAt),
		CancelledAt:     formatTimePtr(order.CancelledAt),
	}

	if order.CancelReason != nil {
		payload.CancelReason = strings.TrimSpace(*order.CancelReason)
	}

	if order.Coupon != nil {
		payload.Coupon = &orderCouponPayload{
			Code:           strings.ToUpper(strings.TrimSpace(order.Coupon.Code)),
			DiscountType:   string(order.Coupon.DiscountType),
			DiscountValue:  order.Coupon.DiscountValue,
			DiscountAmount: order.Coupon.DiscountAmount,
		}
	}

	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductID:     strings.TrimSpace(item.ProductID),
			ProductName:   item.ProductName,
			ProductSlug:   item.ProductSlug,
			SelectedColor: item.SelectedColor,
			SelectedSize:  item.SelectedSize,
			FrontDesign:   buildDesignSidePayload(item.FrontDesign),
			BackDesign:    buildDesignSidePayload(item.BackDesign),
			Quantity:      item.Quantity,
			Price:         item.Price,
			Total:         item.Total,
		})
	}

	if order.Payment != nil {
		payment := &orderPaymentPayload{
			Status:        string(order.Payment.Status),
			Provider:      order.Payment.Provider,
			TransactionID: order.Payment.TransactionID,
			Amount:        order.Payment.Amount,
			Currency:      strings.ToUpper(strings.TrimSpace(order.Payment.Currency)),
			VerifiedAt:    formatTimePtr(order.Payment.VerifiedAt),
		}
		if order.Payment.FailureReason != nil {
			payment.FailureReason = strings.TrimSpace(*order.Payment.FailureReason)
		}
		payload.Payment = payment
	}

	if order.Shipment != nil {
		payload.Shipment = &orderShipmentPayload{
			Status:         string(order.Shipment.Status),
			Carrier:        order.Shipment.Carrier,
			TrackingNumber: order.Shipment.TrackingNumber,
			LabelURL:       order.Shipment.LabelURL,
			Package: &packageDimsPayload{
				WeightKg: order.Shipment.Package.WeightKg,
				LengthCm: order.Shipment.Package.LengthCm,
				WidthCm:  order.Shipment.Package.WidthCm,
				HeightCm: order.Shipment.Package.HeightCm,
			},
			IssuedAt: formatTimePtr(order.Shipment.IssuedAt),
		}
	}

	return payload
}
