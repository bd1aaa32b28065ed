package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/customtees/api/internal/platform/auth"
	"github.com/customtees/api/internal/platform/pagination"
	"github.com/customtees/api/internal/services"

	domain "github.com/customtees/api/internal/domain"
)

type stubOrderService struct {
	createFn     func(ctx context.Context, cmd services.CreateOrderFromCartCommand) (domain.Order, error)
	getFn        func(ctx context.Context, orderID string, opts services.OrderReadOptions) (domain.Order, error)
	listFn       func(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[domain.Order], error)
	transitionFn func(ctx context.Context, cmd services.OrderStatusTransitionCommand) (domain.Order, error)
	cancelFn     func(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error)
}

func (s *stubOrderService) CreateFromCart(ctx context.Context, cmd services.CreateOrderFromCartCommand) (domain.Order, error) {
	if s.createFn == nil {
		return domain.Order{}, nil
	}
	return s.createFn(ctx, cmd)
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string, opts services.OrderReadOptions) (domain.Order, error) {
	if s.getFn == nil {
		return domain.Order{}, nil
	}
	return s.getFn(ctx, orderID, opts)
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn == nil {
		return domain.CursorPage[domain.Order]{}, nil
	}
	return s.listFn(ctx, filter)
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.OrderStatusTransitionCommand) (domain.Order, error) {
	if s.transitionFn == nil {
		return domain.Order{}, nil
	}
	return s.transitionFn(ctx, cmd)
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
	if s.cancelFn == nil {
		return domain.Order{}, nil
	}
	return s.cancelFn(ctx, cmd)
}

func newOrderRouter(t *testing.T, orders services.OrderService) (http.Handler, *auth.Authenticator) {
	t.Helper()
	authn := newTestAuthenticator(t)
	handlers := NewOrderHandlers(authn, orders)
	return NewRouter(WithOrderRoutes(handlers.Routes)), authn
}

func sampleOrder(userID string) domain.Order {
	created := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:          "ord_001",
		OrderNumber: "CT-2025-000001",
		UserID:      userID,
		Status:      domain.OrderStatusPlaced,
		Currency:    "INR",
		Items: []domain.OrderLineItem{{
			ProductID:   "prd_001",
			ProductName: "Classic Tee",
			Quantity:    2,
			Price:       51100,
			Total:       102200,
		}},
		Totals:        domain.OrderTotals{Subtotal: 102200, Discount: 10000, Total: 92200},
		Coupon:        &domain.CouponSnapshot{Code: "SUMMER10", DiscountType: domain.DiscountTypePercentage, DiscountValue: 10, DiscountAmount: 10000},
		PaymentMethod: domain.PaymentMethodRazorpay,
		ShippingAddress: domain.Address{
			FullName:   "Asha Rao",
			Phone:      "+919900112233",
			Line1:      "14 Lake View Road",
			City:       "Bengaluru",
			State:      "KA",
			PostalCode: "560001",
			Country:    "IN",
		},
		CreatedAt: created,
		UpdatedAt: created,
		PlacedAt:  created,
	}
}

func validAddressBody() map[string]any {
	return map[string]any{
		"full_name":   "Asha Rao",
		"phone":       "+919900112233",
		"line1":       "14 Lake View Road",
		"city":        "Bengaluru",
		"state":       "KA",
		"postal_code": "560001",
		"country":     "IN",
	}
}

func TestCreateOrderFromCart(t *testing.T) {
	var gotCmd services.CreateOrderFromCartCommand
	orders := &stubOrderService{createFn: func(ctx context.Context, cmd services.CreateOrderFromCartCommand) (domain.Order, error) {
		gotCmd = cmd
		return sampleOrder(cmd.UserID), nil
	}}
	router, authn := newOrderRouter(t, orders)

	req := map[string]any{
		"payment_method":   "razorpay",
		"shipping_address": validAddressBody(),
		"coupon_code":      "summer10",
	}
	rec := doJSONRequest(t, router, http.MethodPost, "/api/v1/orders/from-cart", bearerToken(t, authn, testUserIdentity()), req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusCreated, rec.Body.String())
	}
	if gotCmd.UserID != "usr_123" {
		t.Errorf("user id = %q, want usr_123", gotCmd.UserID)
	}
	if gotCmd.PaymentMethod != domain.PaymentMethodRazorpay {
		t.Errorf("payment method = %q, want razorpay", gotCmd.PaymentMethod)
	}
	if gotCmd.CouponCode == nil || *gotCmd.CouponCode != "summer10" {
		t.Errorf("coupon code = %v, want summer10", gotCmd.CouponCode)
	}
	if gotCmd.ShippingAddress.City != "Bengaluru" {
		t.Errorf("address city = %q, want Bengaluru", gotCmd.ShippingAddress.City)
	}

	body := decodeBody(t, rec)
	order, ok := body["order"].(map[string]any)
	if !ok {
		t.Fatalf("order missing from response: %v", body)
	}
	if order["order_number"] != "CT-2025-000001" {
		t.Errorf("order_number = %v, want CT-2025-000001", order["order_number"])
	}
	totals, _ := order["totals"].(map[string]any)
	if totals["total"] != float64(92200) {
		t.Errorf("total = %v, want 92200", totals["total"])
	}
}

func TestCreateOrderErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"empty cart", services.ErrOrderEmptyCart, http.StatusUnprocessableEntity, "cart_empty"},
		{"bad address", services.ErrOrderInvalidAddress, http.StatusBadRequest, "invalid_address"},
		{"coupon rejected", services.ErrOrderCouponInvalid, http.StatusUnprocessableEntity, "coupon_rejected"},
		{"store down", services.ErrOrderUnavailable, http.StatusServiceUnavailable, "order_service_unavailable"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			orders := &stubOrderService{createFn: func(ctx context.Context, cmd services.CreateOrderFromCartCommand) (domain.Order, error) {
				return domain.Order{}, tc.err
			}}
			router, authn := newOrderRouter(t, orders)

			req := map[string]any{"payment_method": "cod", "shipping_address": validAddressBody()}
			rec := doJSONRequest(t, router, http.MethodPost, "/api/v1/orders/from-cart", bearerToken(t, authn, testUserIdentity()), req)
			assertErrorCode(t, rec, tc.wantStatus, tc.wantCode)
		})
	}
}

func TestListOrdersScopesToCaller(t *testing.T) {
	var gotFilter services.OrderListFilter
	orders := &stubOrderService{listFn: func(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[domain.Order], error) {
		gotFilter = filter
		return domain.CursorPage[domain.Order]{
			Items:         []domain.Order{sampleOrder("usr_123")},
			NextPageToken: "tok_next",
		}, nil
	}}
	router, authn := newOrderRouter(t, orders)

	prevToken, err := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{"ord_000"}})
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	target := "/api/v1/orders/?status=placed,processing&page_size=500&page_token=" + prevToken + "&created_after=2025-06-01T00:00:00Z"
	rec := doJSONRequest(t, router, http.MethodGet, target, bearerToken(t, authn, testUserIdentity()), nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if gotFilter.ActorID != "usr_123" || gotFilter.UserID != "usr_123" {
		t.Errorf("filter not scoped to caller: %+v", gotFilter)
	}
	if gotFilter.Admin {
		t.Errorf("admin flag set for regular user")
	}
	if len(gotFilter.Status) != 2 || gotFilter.Status[0] != domain.OrderStatusPlaced || gotFilter.Status[1] != domain.OrderStatusProcessing {
		t.Errorf("status filter = %v", gotFilter.Status)
	}
	if gotFilter.Pager.PageSize != maxOrderPageSize {
		t.Errorf("page size = %d, want clamp to %d", gotFilter.Pager.PageSize, maxOrderPageSize)
	}
	if gotFilter.Pager.PageToken != prevToken {
		t.Errorf("page token = %q, want %q", gotFilter.Pager.PageToken, prevToken)
	}
	if gotFilter.DateRange.From == nil || !gotFilter.DateRange.From.Equal(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date range from = %v", gotFilter.DateRange.From)
	}

	body := decodeBody(t, rec)
	if body["next_page_token"] != "tok_next" {
		t.Errorf("next_page_token = %v, want tok_next", body["next_page_token"])
	}
}

func TestListOrdersRejectsUnknownStatus(t *testing.T) {
	router, authn := newOrderRouter(t, &stubOrderService{})
	rec := doJSONRequest(t, router, http.MethodGet, "/api/v1/orders/?status=pending_payment", bearerToken(t, authn, testUserIdentity()), nil)
	assertErrorCode(t, rec, http.StatusBadRequest, "invalid_request")
}

func TestListOrdersRejectsMalformedPageToken(t *testing.T) {
	router, authn := newOrderRouter(t, &stubOrderService{})
	rec := doJSONRequest(t, router, http.MethodGet, "/api/v1/orders/?page_token=%21%21garbage", bearerToken(t, authn, testUserIdentity()), nil)
	assertErrorCode(t, rec, http.StatusBadRequest, "invalid_request")
}

func TestGetOrderPassesActor(t *testing.T) {
	var gotID string
	var gotOpts services.OrderReadOptions
	orders := &stubOrderService{getFn: func(ctx context.Context, orderID string, opts services.OrderReadOptions) (domain.Order, error) {
		gotID = orderID
		gotOpts = opts
		return sampleOrder("usr_123"), nil
	}}
	router, authn := newOrderRouter(t, orders)

	rec := doJSONRequest(t, router, http.MethodGet, "/api/v1/orders/ord_001", bearerToken(t, authn, testUserIdentity()), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotID != "ord_001" {
		t.Errorf("order id = %q, want ord_001", gotID)
	}
	if gotOpts.ActorID != "usr_123" || gotOpts.Admin {
		t.Errorf("read options = %+v", gotOpts)
	}
}

func TestGetOrderForbidden(t *testing.T) {
	orders := &stubOrderService{getFn: func(ctx context.Context, orderID string, opts services.OrderReadOptions) (domain.Order, error) {
		return domain.Order{}, services.ErrOrderForbidden
	}}
	router, authn := newOrderRouter(t, orders)

	rec := doJSONRequest(t, router, http.MethodGet, "/api/v1/orders/ord_999", bearerToken(t, authn, testUserIdentity()), nil)
	assertErrorCode(t, rec, http.StatusForbidden, "order_forbidden")
}

func TestCancelOrderWithReason(t *testing.T) {
	var gotCmd services.CancelOrderCommand
	orders := &stubOrderService{cancelFn: func(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
		gotCmd = cmd
		order := sampleOrder("usr_123")
		order.Status = domain.OrderStatusCancelled
		return order, nil
	}}
	router, authn := newOrderRouter(t, orders)

	req := map[string]any{"reason": "ordered wrong size"}
	rec := doJSONRequest(t, router, http.MethodPost, "/api/v1/orders/ord_001:cancel", bearerToken(t, authn, testUserIdentity()), req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if gotCmd.OrderID != "ord_001" || gotCmd.ActorID != "usr_123" {
		t.Errorf("unexpected command: %+v", gotCmd)
	}
	if gotCmd.Reason == nil || *gotCmd.Reason != "ordered wrong size" {
		t.Errorf("reason = %v, want ordered wrong size", gotCmd.Reason)
	}
}

func TestCancelShippedOrderConflicts(t *testing.T) {
	orders := &stubOrderService{cancelFn: func(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
		return domain.Order{}, services.ErrOrderInvalidTransition
	}}
	router, authn := newOrderRouter(t, orders)

	rec := doJSONRequest(t, router, http.MethodPost, "/api/v1/orders/ord_001:cancel", bearerToken(t, authn, testUserIdentity()), nil)
	assertErrorCode(t, rec, http.StatusConflict, "order_invalid_transition")
}
