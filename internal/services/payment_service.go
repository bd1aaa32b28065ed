package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/customtees/api/internal/domain"
	"github.com/customtees/api/internal/repositories"
)

var (
	// ErrPaymentInvalidInput signals a malformed verification request.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentForbidden means the actor does not own the order being verified.
	ErrPaymentForbidden = errors.New("payment: forbidden")
	// ErrPaymentWrongMethod means the order was not placed with the named provider.
	ErrPaymentWrongMethod = errors.New("payment: order uses a different payment method")
	// ErrPaymentUnknownProvider means no gateway is registered for the provider.
	ErrPaymentUnknownProvider = errors.New("payment: unknown provider")
	// ErrPaymentGateway means the provider lookup itself failed. The order is
	// untouched and the caller may retry.
	ErrPaymentGateway = errors.New("payment: gateway lookup failed")
	// ErrPaymentPending means the provider has not settled the payment yet.
	ErrPaymentPending = errors.New("payment: still pending at provider")
	// ErrPaymentFailed means the provider reported an authoritative failure.
	ErrPaymentFailed = errors.New("payment: failed at provider")
	// ErrPaymentMismatch means the settled amount or currency differs from the order.
	ErrPaymentMismatch = errors.New("payment: amount or currency mismatch")
)

type paymentService struct {
	orders   repositories.OrderRepository
	gateways map[string]PaymentGateway
	events   OrderEventPublisher
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// PaymentServiceDeps wires collaborators for NewPaymentService.
type PaymentServiceDeps struct {
	Orders   repositories.OrderRepository
	Gateways []PaymentGateway
	Events   OrderEventPublisher
	Clock    func() time.Time
	Logger   func(context.Context, string, map[string]any)
}

// NewPaymentService builds the payment reconciler.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service requires order repository")
	}
	if len(deps.Gateways) == 0 {
		return nil, errors.New("payment service requires at least one gateway")
	}
	gateways := make(map[string]PaymentGateway, len(deps.Gateways))
	for _, gateway := range deps.Gateways {
		if gateway == nil {
			return nil, errors.New("payment service: nil gateway")
		}
		name := strings.ToLower(strings.TrimSpace(gateway.Provider()))
		if name == "" {
			return nil, errors.New("payment service: gateway with empty provider name")
		}
		if _, dup := gateways[name]; dup {
			return nil, fmt.Errorf("payment service: duplicate gateway %q", name)
		}
		gateways[name] = gateway
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &paymentService{
		orders:   deps.Orders,
		gateways: gateways,
		events:   deps.Events,
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

// VerifyPayment reconciles a gateway transaction against the order. The
// outcome is decided entirely by what the provider reports server-side; the
// client only names the transaction to look up. An absent transaction id is
// the customer-cancelled signal and records an authoritative failure.
// Verifying an already-settled order is a no-op.
func (s *paymentService) VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	transactionID := strings.TrimSpace(cmd.TransactionID)
	provider := strings.ToLower(strings.TrimSpace(cmd.Provider))
	if orderID == "" || provider == "" {
		return Order{}, fmt.Errorf("%w: order id and provider are required", ErrPaymentInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return Order{}, err
	}

	if !cmd.Admin && order.UserID != strings.TrimSpace(cmd.ActorID) {
		return Order{}, fmt.Errorf("%w: %s", ErrPaymentForbidden, orderID)
	}
	if string(order.PaymentMethod) != provider {
		return Order{}, fmt.Errorf("%w: order was placed with %s", ErrPaymentWrongMethod, order.PaymentMethod)
	}

	gateway, ok := s.gateways[provider]
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrPaymentUnknownProvider, provider)
	}

	if order.Payment != nil && order.Payment.Status == domain.PaymentStatusPaid {
		// Already reconciled. Repeating the call must not change anything.
		return order, nil
	}

	now := s.clock()

	if transactionID == "" {
		// No transaction to look up: the customer abandoned the provider flow.
		reason := "customer cancelled before a transaction was created"
		if err := s.storePaymentOutcome(ctx, &order, domain.PaymentInfo{
			Status:        domain.PaymentStatusFailed,
			Provider:      provider,
			Currency:      order.Currency,
			FailureReason: valuePtr(reason),
		}, now); err != nil {
			return Order{}, err
		}
		s.logger(ctx, "payment_cancelled", map[string]any{
			"orderId":  orderID,
			"provider": provider,
		})
		return Order{}, fmt.Errorf("%w: %s", ErrPaymentFailed, reason)
	}

	payment, err := gateway.LookupPayment(ctx, transactionID)
	if err != nil {
		s.logger(ctx, "payment_gateway_error", map[string]any{
			"orderId":       orderID,
			"provider":      provider,
			"transactionId": transactionID,
			"error":         err.Error(),
		})
		return Order{}, fmt.Errorf("%w: %v", ErrPaymentGateway, err)
	}

	switch payment.State {
	case GatewayPaymentPending:
		return Order{}, fmt.Errorf("%w: %s", ErrPaymentPending, transactionID)

	case GatewayPaymentFailed:
		reason := payment.FailureReason
		if reason == "" {
			reason = "declined by provider"
		}
		if err := s.storePaymentOutcome(ctx, &order, domain.PaymentInfo{
			Status:        domain.PaymentStatusFailed,
			Provider:      provider,
			TransactionID: payment.TransactionID,
			Amount:        payment.Amount,
			Currency:      payment.Currency,
			FailureReason: valuePtr(reason),
		}, now); err != nil {
			return Order{}, err
		}
		return Order{}, fmt.Errorf("%w: %s", ErrPaymentFailed, reason)

	case GatewayPaymentSucceeded:
		if payment.Amount != order.Totals.Total || !strings.EqualFold(payment.Currency, order.Currency) {
			reason := fmt.Sprintf("expected %d %s, provider settled %d %s",
				order.Totals.Total, order.Currency, payment.Amount, payment.Currency)
			if err := s.storePaymentOutcome(ctx, &order, domain.PaymentInfo{
				Status:        domain.PaymentStatusFailed,
				Provider:      provider,
				TransactionID: payment.TransactionID,
				Amount:        payment.Amount,
				Currency:      payment.Currency,
				FailureReason: valuePtr(reason),
			}, now); err != nil {
				return Order{}, err
			}
			return Order{}, fmt.Errorf("%w: %s", ErrPaymentMismatch, reason)
		}

		order.Payment = &domain.PaymentInfo{
			Status:        domain.PaymentStatusPaid,
			Provider:      provider,
			TransactionID: payment.TransactionID,
			Amount:        payment.Amount,
			Currency:      order.Currency,
			VerifiedAt:    valuePtr(now),
		}
		if order.Status == domain.OrderStatusPlaced {
			applyStatusTransition(&order, domain.OrderStatusProcessing, now)
		} else {
			order.UpdatedAt = now
		}
		if err := s.orders.Update(ctx, order); err != nil {
			return Order{}, err
		}

		s.logger(ctx, "payment_verified", map[string]any{
			"orderId":       order.ID,
			"provider":      provider,
			"transactionId": payment.TransactionID,
			"amount":        payment.Amount,
		})
		s.publishEvent(ctx, "order.paid", order)
		return order, nil

	default:
		return Order{}, fmt.Errorf("%w: unrecognised provider state %q", ErrPaymentGateway, payment.State)
	}
}

func (s *paymentService) storePaymentOutcome(ctx context.Context, order *domain.Order, info domain.PaymentInfo, now time.Time) error {
	order.Payment = &info
	order.UpdatedAt = now
	return s.orders.Update(ctx, *order)
}

func (s *paymentService) publishEvent(ctx context.Context, eventType string, order Order) {
	if s.events == nil {
		return
	}
	event := OrderEvent{
		Type:        eventType,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      order.Status,
		OccurredAt:  s.clock(),
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order_event_publish_failed", map[string]any{
			"orderId": order.ID,
			"type":    eventType,
			"error":   err.Error(),
		})
	}
}
