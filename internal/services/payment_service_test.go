package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/customtees/api/internal/domain"
)

type stubGateway struct {
	provider string
	lookup   func(ctx context.Context, transactionID string) (GatewayPayment, error)
}

func (s *stubGateway) Provider() string { return s.provider }

func (s *stubGateway) LookupPayment(ctx context.Context, transactionID string) (GatewayPayment, error) {
	if s.lookup == nil {
		return GatewayPayment{}, errors.New("no lookup configured")
	}
	return s.lookup(ctx, transactionID)
}

var paymentTestNow = time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)

func razorpayOrder() domain.Order {
	return domain.Order{
		ID:            "ord_1",
		OrderNumber:   "CT-2025-000042",
		UserID:        "user-1",
		Status:        domain.OrderStatusPlaced,
		Currency:      "INR",
		Totals:        domain.OrderTotals{Subtotal: 150000, Total: 150000},
		PaymentMethod: domain.PaymentMethodRazorpay,
		Payment:       &domain.PaymentInfo{Status: domain.PaymentStatusPending, Provider: "razorpay", Currency: "INR"},
	}
}

func newTestPaymentService(t *testing.T, deps PaymentServiceDeps) PaymentService {
	t.Helper()
	if deps.Orders == nil {
		order := razorpayOrder()
		deps.Orders = &stubOrderRepository{
			findByID: func(context.Context, string) (domain.Order, error) { return order, nil },
		}
	}
	if deps.Gateways == nil {
		deps.Gateways = []PaymentGateway{&stubGateway{provider: "razorpay"}}
	}
	if deps.Clock == nil {
		deps.Clock = fixedClock(paymentTestNow)
	}
	svc, err := NewPaymentService(deps)
	if err != nil {
		t.Fatalf("NewPaymentService returned error: %v", err)
	}
	return svc
}

func verifyCommand() VerifyPaymentCommand {
	return VerifyPaymentCommand{
		OrderID:       "ord_1",
		ActorID:       "user-1",
		Provider:      "razorpay",
		TransactionID: "pay_123",
	}
}

func TestVerifyPaymentSuccessAdvancesOrder(t *testing.T) {
	stored := razorpayOrder()
	orders := &stubOrderRepository{
		findByID: func(context.Context, string) (domain.Order, error) { return stored, nil },
		update: func(_ context.Context, order domain.Order) error {
			stored = order
			return nil
		},
	}
	gateway := &stubGateway{
		provider: "razorpay",
		lookup: func(_ context.Context, transactionID string) (GatewayPayment, error) {
			return GatewayPayment{
				TransactionID: transactionID,
				State:         GatewayPaymentSucceeded,
				Amount:        150000,
				Currency:      "INR",
			}, nil
		},
	}
	events := &recordingEventPublisher{}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders, Gateways: []PaymentGateway{gateway}, Events: events})

	order, err := svc.VerifyPayment(context.Background(), verifyCommand())
	if err != nil {
		t.Fatalf("VerifyPayment returned error: %v", err)
	}
	if order.Payment.Status != domain.PaymentStatusPaid {
		t.Fatalf("expected paid, got %s", order.Payment.Status)
	}
	if order.Payment.TransactionID != "pay_123" || order.Payment.VerifiedAt == nil {
		t.Fatalf("payment details not recorded: %+v", order.Payment)
	}
	if order.Status != domain.OrderStatusProcessing {
		t.Fatalf("paid order must advance to processing, got %s", order.Status)
	}
	if len(events.events) != 1 || events.events[0].Type != "order.paid" {
		t.Fatalf("expected one order.paid event, got %+v", events.events)
	}
}

func TestVerifyPaymentIdempotentWhenAlreadyPaid(t *testing.T) {
	paid := razorpayOrder()
	paid.Status = domain.OrderStatusProcessing
	paid.Payment = &domain.PaymentInfo{
		Status:        domain.PaymentStatusPaid,
		Provider:      "razorpay",
		TransactionID: "pay_123",
		Amount:        150000,
		Currency:      "INR",
	}
	lookups := 0
	updates := 0
	orders := &stubOrderRepository{
		findByID: func(context.Context, string) (domain.Order, error) { return paid, nil },
		update: func(context.Context, domain.Order) error {
			updates++
			return nil
		},
	}
	gateway := &stubGateway{
		provider: "razorpay",
		lookup: func(context.Context, string) (GatewayPayment, error) {
			lookups++
			return GatewayPayment{State: GatewayPaymentSucceeded, Amount: 150000, Currency: "INR"}, nil
		},
	}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders, Gateways: []PaymentGateway{gateway}})

	order, err := svc.VerifyPayment(context.Background(), verifyCommand())
	if err != nil {
		t.Fatalf("VerifyPayment returned error: %v", err)
	}
	if lookups != 0 || updates != 0 {
		t.Fatalf("repeat verification must not touch gateway or storage: lookups=%d updates=%d", lookups, updates)
	}
	if order.Status != domain.OrderStatusProcessing {
		t.Fatalf("order must be returned unchanged, got %s", order.Status)
	}
}

func TestVerifyPaymentMissingTransactionRecordsCancellation(t *testing.T) {
	stored := razorpayOrder()
	orders := &stubOrderRepository{
		findByID: func(context.Context, string) (domain.Order, error) { return stored, nil },
		update: func(_ context.Context, order domain.Order) error {
			stored = order
			return nil
		},
	}
	lookups := 0
	gateway := &stubGateway{
		provider: "razorpay",
		lookup: func(context.Context, string) (GatewayPayment, error) {
			lookups++
			return GatewayPayment{}, nil
		},
	}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders, Gateways: []PaymentGateway{gateway}})

	cmd := verifyCommand()
	cmd.TransactionID = ""
	_, err := svc.VerifyPayment(context.Background(), cmd)
	if !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("expected ErrPaymentFailed, got %v", err)
	}
	if lookups != 0 {
		t.Fatalf("cancellation must not contact the gateway, saw %d lookups", lookups)
	}
	if stored.Payment.Status != domain.PaymentStatusFailed {
		t.Fatalf("cancellation must be persisted as failed, got %s", stored.Payment.Status)
	}
	if stored.Payment.FailureReason == nil || *stored.Payment.FailureReason == "" {
		t.Fatalf("failure reason missing: %+v", stored.Payment)
	}
	if stored.Status != domain.OrderStatusPlaced {
		t.Fatalf("cancellation must not advance the order, got %s", stored.Status)
	}
}

func TestVerifyPaymentForbiddenForStranger(t *testing.T) {
	svc := newTestPaymentService(t, PaymentServiceDeps{})

	cmd := verifyCommand()
	cmd.ActorID = "user-2"
	if _, err := svc.VerifyPayment(context.Background(), cmd); !errors.Is(err, ErrPaymentForbidden) {
		t.Fatalf("expected ErrPaymentForbidden, got %v", err)
	}
}

func TestVerifyPaymentWrongMethod(t *testing.T) {
	cod := razorpayOrder()
	cod.PaymentMethod = domain.PaymentMethodCOD
	orders := &stubOrderRepository{
		findByID: func(context.Context, string) (domain.Order, error) { return cod, nil },
	}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders})

	if _, err := svc.VerifyPayment(context.Background(), verifyCommand()); !errors.Is(err, ErrPaymentWrongMethod) {
		t.Fatalf("expected ErrPaymentWrongMethod, got %v", err)
	}
}

func TestVerifyPaymentGatewayErrorLeavesOrderUntouched(t *testing.T) {
	updates := 0
	stored := razorpayOrder()
	orders := &stubOrderRepository{
		findByID: func(context.Context, string) (domain.Order, error) { return stored, nil },
		update: func(context.Context, domain.Order) error {
			updates++
			return nil
		},
	}
	gateway := &stubGateway{
		provider: "razorpay",
		lookup: func(context.Context, string) (GatewayPayment, error) {
			return GatewayPayment{}, errors.New("connection reset")
		},
	}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders, Gateways: []PaymentGateway{gateway}})

	_, err := svc.VerifyPayment(context.Background(), verifyCommand())
	if !errors.Is(err, ErrPaymentGateway) {
		t.Fatalf("expected ErrPaymentGateway, got %v", err)
	}
	if updates != 0 {
		t.Fatalf("gateway failure must not change stored state, saw %d updates", updates)
	}
}

func TestVerifyPaymentPendingIsRetryable(t *testing.T) {
	updates := 0
	orders := &stubOrderRepository{
		findByID: func(context.Context, string) (domain.Order, error) { return razorpayOrder(), nil },
		update: func(context.Context, domain.Order) error {
			updates++
			return nil
		},
	}
	gateway := &stubGateway{
		provider: "razorpay",
		lookup: func(context.Context, string) (GatewayPayment, error) {
			return GatewayPayment{State: GatewayPaymentPending}, nil
		},
	}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders, Gateways: []PaymentGateway{gateway}})

	if _, err := svc.VerifyPayment(context.Background(), verifyCommand()); !errors.Is(err, ErrPaymentPending) {
		t.Fatalf("expected ErrPaymentPending, got %v", err)
	}
	if updates != 0 {
		t.Fatalf("pending lookup must not change stored state, saw %d updates", updates)
	}
}

func TestVerifyPaymentProviderFailureRecorded(t *testing.T) {
	stored := razorpayOrder()
	orders := &stubOrderRepository{
		findByID: func(context.Context, string) (domain.Order, error) { return stored, nil },
		update: func(_ context.Context, order domain.Order) error {
			stored = order
			return nil
		},
	}
	gateway := &stubGateway{
		provider: "razorpay",
		lookup: func(context.Context, string) (GatewayPayment, error) {
			return GatewayPayment{State: GatewayPaymentFailed, FailureReason: "card declined"}, nil
		},
	}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders, Gateways: []PaymentGateway{gateway}})

	_, err := svc.VerifyPayment(context.Background(), verifyCommand())
	if !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("expected ErrPaymentFailed, got %v", err)
	}
	if stored.Payment.Status != domain.PaymentStatusFailed {
		t.Fatalf("failure must be recorded, got %s", stored.Payment.Status)
	}
	if stored.Payment.FailureReason == nil || *stored.Payment.FailureReason != "card declined" {
		t.Fatalf("failure reason missing: %+v", stored.Payment)
	}
	if stored.Status != domain.OrderStatusPlaced {
		t.Fatalf("failed payment must not advance the order, got %s", stored.Status)
	}
}

func TestVerifyPaymentAmountMismatch(t *testing.T) {
	stored := razorpayOrder()
	orders := &stubOrderRepository{
		findByID: func(context.Context, string) (domain.Order, error) { return stored, nil },
		update: func(_ context.Context, order domain.Order) error {
			stored = order
			return nil
		},
	}
	gateway := &stubGateway{
		provider: "razorpay",
		lookup: func(context.Context, string) (GatewayPayment, error) {
			return GatewayPayment{State: GatewayPaymentSucceeded, Amount: 100, Currency: "INR"}, nil
		},
	}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders, Gateways: []PaymentGateway{gateway}})

	_, err := svc.VerifyPayment(context.Background(), verifyCommand())
	if !errors.Is(err, ErrPaymentMismatch) {
		t.Fatalf("expected ErrPaymentMismatch, got %v", err)
	}
	if stored.Payment.Status != domain.PaymentStatusFailed {
		t.Fatalf("mismatch must be recorded as failed, got %s", stored.Payment.Status)
	}
	if stored.Status != domain.OrderStatusPlaced {
		t.Fatalf("mismatch must not advance the order, got %s", stored.Status)
	}
}

func TestVerifyPaymentUnknownProvider(t *testing.T) {
	square := razorpayOrder()
	square.PaymentMethod = domain.PaymentMethodSquare
	orders := &stubOrderRepository{
		findByID: func(context.Context, string) (domain.Order, error) { return square, nil },
	}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders})

	cmd := verifyCommand()
	cmd.Provider = "square"
	if _, err := svc.VerifyPayment(context.Background(), cmd); !errors.Is(err, ErrPaymentUnknownProvider) {
		t.Fatalf("expected ErrPaymentUnknownProvider, got %v", err)
	}
}

func TestVerifyPaymentUnknownProviderBeatsPaidShortCircuit(t *testing.T) {
	square := razorpayOrder()
	square.PaymentMethod = domain.PaymentMethodSquare
	square.Status = domain.OrderStatusProcessing
	square.Payment = &domain.PaymentInfo{
		Status:        domain.PaymentStatusPaid,
		Provider:      "square",
		TransactionID: "sq_123",
	}
	orders := &stubOrderRepository{
		findByID: func(context.Context, string) (domain.Order, error) { return square, nil },
	}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: orders})

	cmd := verifyCommand()
	cmd.Provider = "square"
	if _, err := svc.VerifyPayment(context.Background(), cmd); !errors.Is(err, ErrPaymentUnknownProvider) {
		t.Fatalf("expected ErrPaymentUnknownProvider for paid order, got %v", err)
	}
}
