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
	// ErrShipmentInvalidInput signals a malformed label request.
	ErrShipmentInvalidInput = errors.New("shipment: invalid input")
	// ErrShipmentInvalidPackage means one or more package dimensions are not positive.
	ErrShipmentInvalidPackage = errors.New("shipment: invalid package dimensions")
	// ErrShipmentMissingAddress means the order carries no usable shipping address.
	ErrShipmentMissingAddress = errors.New("shipment: order has no shipping address")
	// ErrShipmentCarrier means the carrier call failed. The order is untouched
	// and the caller may retry.
	ErrShipmentCarrier = errors.New("shipment: carrier request failed")
)

type shipmentService struct {
	orders  repositories.OrderRepository
	carrier Carrier
	events  OrderEventPublisher
	clock   func() time.Time
	logger  func(context.Context, string, map[string]any)
}

// ShipmentServiceDeps wires collaborators for NewShipmentService.
type ShipmentServiceDeps struct {
	Orders  repositories.OrderRepository
	Carrier Carrier
	Events  OrderEventPublisher
	Clock   func() time.Time
	Logger  func(context.Context, string, map[string]any)
}

// NewShipmentService builds the shipment issuer.
func NewShipmentService(deps ShipmentServiceDeps) (ShipmentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("shipment service requires order repository")
	}
	if deps.Carrier == nil {
		return nil, errors.New("shipment service requires carrier")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &shipmentService{
		orders:  deps.Orders,
		carrier: deps.Carrier,
		events:  deps.Events,
		clock:   func() time.Time { return clock().UTC() },
		logger:  logger,
	}, nil
}

// CreateLabel issues a carrier label for the order and moves it to shipped.
// Repeating the call returns the stored label; Force re-issues it with the
// carrier and overwrites the stored shipment.
func (s *shipmentService) CreateLabel(ctx context.Context, cmd CreateLabelCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrShipmentInvalidInput)
	}
	if bad := invalidPackageDims(cmd.Package); len(bad) > 0 {
		return Order{}, fmt.Errorf("%w: %s must be positive", ErrShipmentInvalidPackage, strings.Join(bad, ", "))
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return Order{}, err
	}

	if missing := missingAddressFields(order.ShippingAddress); len(missing) > 0 {
		return Order{}, fmt.Errorf("%w: missing %s", ErrShipmentMissingAddress, strings.Join(missing, ", "))
	}

	if order.Shipment != nil && order.Shipment.TrackingNumber != "" && !cmd.Force {
		// A label already exists; hand it back instead of buying another one.
		return order, nil
	}

	if order.Status != domain.OrderStatusShipped && !canTransition(order.Status, domain.OrderStatusShipped) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrOrderInvalidTransition, order.Status, domain.OrderStatusShipped)
	}

	label, err := s.carrier.CreateLabel(ctx, CarrierLabelRequest{
		OrderNumber: order.OrderNumber,
		Package:     cmd.Package,
		Destination: order.ShippingAddress,
	})
	if err != nil {
		s.logger(ctx, "shipment_carrier_error", map[string]any{
			"orderId": order.ID,
			"carrier": s.carrier.Name(),
			"error":   err.Error(),
		})
		return Order{}, fmt.Errorf("%w: %v", ErrShipmentCarrier, err)
	}

	now := s.clock()
	order.Shipment = &domain.ShipmentInfo{
		Status:         domain.ShipmentStatusLabelGenerated,
		Carrier:        s.carrier.Name(),
		TrackingNumber: label.TrackingNumber,
		LabelURL:       label.LabelURL,
		LabelPublicID:  label.LabelPublicID,
		Package:        cmd.Package,
		IssuedAt:       valuePtr(now),
	}
	if order.Status != domain.OrderStatusShipped {
		applyStatusTransition(&order, domain.OrderStatusShipped, now)
	} else {
		order.UpdatedAt = now
	}

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, err
	}

	s.logger(ctx, "shipment_label_created", map[string]any{
		"orderId":        order.ID,
		"carrier":        s.carrier.Name(),
		"trackingNumber": label.TrackingNumber,
		"forced":         cmd.Force,
	})
	s.publishEvent(ctx, "order.shipped", order)
	return order, nil
}

func (s *shipmentService) publishEvent(ctx context.Context, eventType string, order Order) {
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

// invalidPackageDims lists every dimension that is zero or negative.
func invalidPackageDims(pkg PackageDims) []string {
	var bad []string
	if pkg.WeightKg <= 0 {
		bad = append(bad, "weightKg")
	}
	if pkg.LengthCm <= 0 {
		bad = append(bad, "lengthCm")
	}
	if pkg.WidthCm <= 0 {
		bad = append(bad, "widthCm")
	}
	if pkg.HeightCm <= 0 {
		bad = append(bad, "heightCm")
	}
	return bad
}
