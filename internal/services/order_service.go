package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/customtees/api/internal/domain"
	"github.com/customtees/api/internal/repositories"
)

var (
	// ErrOrderInvalidInput signals malformed order commands.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderEmptyCart means checkout was attempted with no cart lines.
	ErrOrderEmptyCart = errors.New("order: cart is empty")
	// ErrOrderInvalidAddress means the shipping address misses required fields.
	ErrOrderInvalidAddress = errors.New("order: invalid shipping address")
	// ErrOrderCouponInvalid means the supplied coupon failed server-side re-validation.
	ErrOrderCouponInvalid = errors.New("order: coupon rejected")
	// ErrOrderNotFound means no order exists for the given id.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderForbidden means the actor does not own the order and is not an admin.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderInvalidTransition means the requested status change is not allowed
	// from the order's current state.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderConflict means the cart changed while checkout was in flight.
	ErrOrderConflict = errors.New("order: concurrent modification")
	// ErrOrderUnavailable indicates order storage could not be reached.
	ErrOrderUnavailable = errors.New("order: storage unavailable")
)

// orderStateTransitions is the single source of truth for order lifecycle moves.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPlaced:     {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered},
	domain.OrderStatusDelivered:  {},
	domain.OrderStatusCancelled:  {},
}

func canTransition(from, to domain.OrderStatus) bool {
	for _, allowed := range orderStateTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func isOrderStatus(status domain.OrderStatus) bool {
	_, ok := orderStateTransitions[status]
	return ok
}

type orderService struct {
	orders             repositories.OrderRepository
	carts              repositories.CartRepository
	coupons            CouponService
	couponStore        repositories.CouponRepository
	couponUsage        repositories.CouponUsageRepository
	counters           repositories.CounterRepository
	uow                repositories.UnitOfWork
	events             OrderEventPublisher
	enforceUsageLimits bool
	idgen              func() string
	clock              func() time.Time
	logger             func(context.Context, string, map[string]any)
}

// OrderServiceDeps wires collaborators for NewOrderService.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Carts       repositories.CartRepository
	Coupons     CouponService
	CouponStore repositories.CouponRepository
	CouponUsage repositories.CouponUsageRepository
	Counters    repositories.CounterRepository
	UnitOfWork  repositories.UnitOfWork
	Events      OrderEventPublisher
	// EnforceUsageLimits additionally records coupon redemptions inside the
	// checkout transaction.
	EnforceUsageLimits bool
	IDGenerator        func() string
	Clock              func() time.Time
	Logger             func(context.Context, string, map[string]any)
}

// NewOrderService builds the order assembler.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service requires order repository")
	}
	if deps.Carts == nil {
		return nil, errors.New("order service requires cart repository")
	}
	if deps.Coupons == nil {
		return nil, errors.New("order service requires coupon service")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service requires counter repository")
	}
	if deps.EnforceUsageLimits && (deps.CouponStore == nil || deps.CouponUsage == nil) {
		return nil, errors.New("order service requires coupon stores when usage limits are enforced")
	}
	uow := deps.UnitOfWork
	if uow == nil {
		uow = noopUnitOfWork{}
	}
	idgen := deps.IDGenerator
	if idgen == nil {
		idgen = func() string { return "ord_" + ulid.Make().String() }
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &orderService{
		orders:             deps.Orders,
		carts:              deps.Carts,
		coupons:            deps.Coupons,
		couponStore:        deps.CouponStore,
		couponUsage:        deps.CouponUsage,
		counters:           deps.Counters,
		uow:                uow,
		events:             deps.Events,
		enforceUsageLimits: deps.EnforceUsageLimits,
		idgen:              idgen,
		clock:              func() time.Time { return clock().UTC() },
		logger:             logger,
	}, nil
}

// CreateFromCart assembles an order from the user's current cart. Prices are
// frozen from the cart lines; the live catalog is never consulted here. The
// order insert and the cart clear commit in one transaction.
func (s *orderService) CreateFromCart(ctx context.Context, cmd CreateOrderFromCartCommand) (Order, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	switch cmd.PaymentMethod {
	case domain.PaymentMethodCOD, domain.PaymentMethodRazorpay, domain.PaymentMethodSquare:
	default:
		return Order{}, fmt.Errorf("%w: unsupported payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}
	if missing := missingAddressFields(cmd.ShippingAddress); len(missing) > 0 {
		return Order{}, fmt.Errorf("%w: missing %s", ErrOrderInvalidAddress, strings.Join(missing, ", "))
	}

	cart, err := s.carts.GetCart(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, ErrOrderEmptyCart
		}
		return Order{}, s.mapRepositoryError(err)
	}
	if len(cart.Items) == 0 {
		return Order{}, ErrOrderEmptyCart
	}

	var subtotal int64
	items := make([]domain.OrderLineItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		if item.Quantity < 1 {
			return Order{}, fmt.Errorf("%w: cart line %s has invalid quantity", ErrOrderInvalidInput, item.ID)
		}
		lineTotal := item.TotalPrice * int64(item.Quantity)
		subtotal += lineTotal
		items = append(items, domain.OrderLineItem{
			ProductID:     item.ProductID,
			ProductName:   item.ProductName,
			ProductSlug:   item.ProductSlug,
			SelectedColor: item.SelectedColor,
			SelectedSize:  item.SelectedSize,
			FrontDesign:   item.FrontDesign,
			BackDesign:    item.BackDesign,
			Quantity:      item.Quantity,
			Price:         item.TotalPrice,
			Total:         lineTotal,
		})
	}

	var couponSnapshot *domain.CouponSnapshot
	var appliedCoupon *Coupon
	var discount int64
	if cmd.CouponCode != nil && strings.TrimSpace(*cmd.CouponCode) != "" {
		application, validateErr := s.coupons.Validate(ctx, ValidateCouponCommand{
			Code:     *cmd.CouponCode,
			UserID:   uid,
			Subtotal: subtotal,
		})
		if validateErr != nil {
			return Order{}, fmt.Errorf("%w: %s", ErrOrderCouponInvalid, validateErr)
		}
		discount = application.DiscountAmount
		coupon := application.Coupon
		appliedCoupon = &coupon
		couponSnapshot = &domain.CouponSnapshot{
			Code:           coupon.Code,
			DiscountType:   coupon.DiscountType,
			DiscountValue:  coupon.DiscountValue,
			DiscountAmount: discount,
		}
	}

	now := s.clock()
	orderNumber, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		return Order{}, err
	}

	order := domain.Order{
		ID:          s.idgen(),
		OrderNumber: orderNumber,
		UserID:      uid,
		Status:      domain.OrderStatusPlaced,
		Currency:    cart.Currency,
		Items:       items,
		Totals: domain.OrderTotals{
			Subtotal: subtotal,
			Discount: discount,
			Total:    subtotal - discount,
		},
		Coupon:          couponSnapshot,
		PaymentMethod:   cmd.PaymentMethod,
		ShippingAddress: cloneAddress(cmd.ShippingAddress),
		CreatedAt:       now,
		UpdatedAt:       now,
		PlacedAt:        now,
	}
	// COD settles on delivery and never enters the payment state machine.
	if cmd.PaymentMethod != domain.PaymentMethodCOD {
		order.Payment = &domain.PaymentInfo{
			Status:   domain.PaymentStatusPending,
			Provider: string(cmd.PaymentMethod),
			Currency: cart.Currency,
		}
	}

	err = s.uow.RunInTx(ctx, func(txCtx context.Context) error {
		if insertErr := s.orders.Insert(txCtx, order); insertErr != nil {
			return insertErr
		}
		if clearErr := s.carts.ClearIfUnchanged(txCtx, uid, cart.UpdatedAt); clearErr != nil {
			return clearErr
		}
		if s.enforceUsageLimits && appliedCoupon != nil {
			if incErr := s.couponStore.IncrementUsage(txCtx, appliedCoupon.ID, now); incErr != nil {
				return incErr
			}
			if recErr := s.couponUsage.RecordUsage(txCtx, appliedCoupon.ID, uid, order.ID, now); recErr != nil {
				return recErr
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "order_created", map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"userId":      uid,
		"total":       order.Totals.Total,
	})
	s.publishEvent(ctx, "order.created", order, nil)
	return order, nil
}

// GetOrder loads one order, limited to its owner unless the actor is an admin.
func (s *orderService) GetOrder(ctx context.Context, orderID string, opts OrderReadOptions) (Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !opts.Admin && order.UserID != strings.TrimSpace(opts.ActorID) {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderForbidden, orderID)
	}
	return order, nil
}

// ListOrders pages orders. Non-admin actors only ever see their own.
func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	userID := strings.TrimSpace(filter.UserID)
	if !filter.Admin {
		userID = strings.TrimSpace(filter.ActorID)
		if userID == "" {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: actor id is required", ErrOrderInvalidInput)
		}
	}

	statuses := make([]string, 0, len(filter.Status))
	for _, status := range filter.Status {
		if !isOrderStatus(status) {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
		}
		statuses = append(statuses, string(status))
	}

	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID:     userID,
		Status:     statuses,
		DateRange:  filter.DateRange,
		Pagination: filter.Pager,
	})
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// TransitionStatus applies an admin-driven status change through the state machine.
func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	if !isOrderStatus(cmd.Next) {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Next)
	}

	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	if !canTransition(order.Status, cmd.Next) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrOrderInvalidTransition, order.Status, cmd.Next)
	}

	now := s.clock()
	previous := order.Status
	applyStatusTransition(&order, cmd.Next, now)
	if cmd.Next == domain.OrderStatusCancelled && cmd.Reason != nil {
		order.CancelReason = valuePtr(strings.TrimSpace(*cmd.Reason))
	}

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "order_status_changed", map[string]any{
		"orderId": order.ID,
		"from":    string(previous),
		"to":      string(cmd.Next),
		"actorId": cmd.ActorID,
	})
	s.publishEvent(ctx, "order.status_changed", order, map[string]any{"from": string(previous)})
	return order, nil
}

// Cancel cancels an order on behalf of its owner or an admin. Shipped and
// delivered orders cannot be cancelled.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	if !cmd.Admin && order.UserID != strings.TrimSpace(cmd.ActorID) {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderForbidden, cmd.OrderID)
	}
	if !canTransition(order.Status, domain.OrderStatusCancelled) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrOrderInvalidTransition, order.Status, domain.OrderStatusCancelled)
	}

	now := s.clock()
	previous := order.Status
	applyStatusTransition(&order, domain.OrderStatusCancelled, now)
	if cmd.Reason != nil && strings.TrimSpace(*cmd.Reason) != "" {
		order.CancelReason = valuePtr(strings.TrimSpace(*cmd.Reason))
	}

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "order_cancelled", map[string]any{
		"orderId": order.ID,
		"from":    string(previous),
		"actorId": cmd.ActorID,
	})
	s.publishEvent(ctx, "order.cancelled", order, nil)
	return order, nil
}

func (s *orderService) loadOrder(ctx context.Context, orderID string) (Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
		}
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

// generateOrderNumber produces a human-facing sequential number like CT-2025-000042.
func (s *orderService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, "orders", 1)
	if err != nil {
		return "", s.mapRepositoryError(err)
	}
	return fmt.Sprintf("CT-%04d-%06d", now.Year(), seq), nil
}

func (s *orderService) mapRepositoryError(err error) error {
	switch {
	case isRepoConflict(err):
		return fmt.Errorf("%w: %v", ErrOrderConflict, err)
	case isRepoUnavailable(err):
		return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	default:
		return err
	}
}

func (s *orderService) publishEvent(ctx context.Context, eventType string, order Order, metadata map[string]any) {
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
		Metadata:    metadata,
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order_event_publish_failed", map[string]any{
			"orderId": order.ID,
			"type":    eventType,
			"error":   err.Error(),
		})
	}
}

// applyStatusTransition mutates the order's status and the matching timestamp.
func applyStatusTransition(order *domain.Order, next domain.OrderStatus, now time.Time) {
	order.Status = next
	order.UpdatedAt = now
	switch next {
	case domain.OrderStatusProcessing:
		order.ProcessingAt = valuePtr(now)
	case domain.OrderStatusShipped:
		order.ShippedAt = valuePtr(now)
	case domain.OrderStatusDelivered:
		order.DeliveredAt = valuePtr(now)
	case domain.OrderStatusCancelled:
		order.CancelledAt = valuePtr(now)
	}
}

func missingAddressFields(addr Address) []string {
	var missing []string
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	check("fullName", addr.FullName)
	check("phone", addr.Phone)
	check("line1", addr.Line1)
	check("city", addr.City)
	check("state", addr.State)
	check("postalCode", addr.PostalCode)
	check("country", addr.Country)
	return missing
}

func cloneAddress(addr Address) Address {
	cloned := addr
	if addr.Line2 != nil {
		cloned.Line2 = valuePtr(*addr.Line2)
	}
	return cloned
}

func valuePtr[T any](v T) *T {
	return &v
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
