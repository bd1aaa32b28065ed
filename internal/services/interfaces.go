package services

import (
	"context"
	"time"

	domain "github.com/customtees/api/internal/domain"
	"github.com/customtees/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination     = domain.Pagination
	SortOrder      = domain.SortOrder
	Product        = domain.Product
	ProductVariant = domain.ProductVariant
	DesignSide     = domain.DesignSide
	DesignLayer    = domain.DesignLayer
	PriceBreakdown = domain.PriceBreakdown
	Cart           = domain.Cart
	CartItem       = domain.CartItem
	Coupon         = domain.Coupon
	CouponSnapshot = domain.CouponSnapshot
	Address        = domain.Address
	PaymentMethod  = domain.PaymentMethod
	Order          = domain.Order
	OrderStatus    = domain.OrderStatus
	OrderLineItem  = domain.OrderLineItem
	OrderTotals    = domain.OrderTotals
	PaymentInfo    = domain.PaymentInfo
	PaymentStatus  = domain.PaymentStatus
	ShipmentInfo   = domain.ShipmentInfo
	PackageDims    = domain.PackageDims
)

// PricingEngine computes the customization-inclusive price of a configured product.
type PricingEngine interface {
	Price(ctx context.Context, cmd PriceItemCommand) (PriceBreakdown, error)
}

// CartService manages mutable cart state. Items are never deduplicated: two
// identical customizations remain two distinct lines.
type CartService interface {
	GetOrCreateCart(ctx context.Context, userID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	ClearCart(ctx context.Context, userID string) (Cart, error)
}

// CouponService validates coupon codes and computes discounts. Validation is
// side-effect free; redemption bookkeeping happens during order assembly.
type CouponService interface {
	Validate(ctx context.Context, cmd ValidateCouponCommand) (CouponApplication, error)
	ListActive(ctx context.Context) ([]Coupon, error)
}

// OrderService assembles orders from carts and walks them through the
// fulfilment state machine.
type OrderService interface {
	CreateFromCart(ctx context.Context, cmd CreateOrderFromCartCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string, opts OrderReadOptions) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
}

// PaymentService reconciles gateway payments against orders. Outcomes are
// derived from a server-side gateway lookup, never from client-supplied state.
type PaymentService interface {
	VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (Order, error)
}

// ShipmentService issues carrier labels for paid orders.
type ShipmentService interface {
	CreateLabel(ctx context.Context, cmd CreateLabelCommand) (Order, error)
}

// CatalogService serves catalog reads backing the storefront.
type CatalogService interface {
	GetProductBySlug(ctx context.Context, slug string) (Product, error)
	GetProductByID(ctx context.Context, productID string) (Product, error)
}

// SystemService aggregates utility endpoints (health checks, counters).
type SystemService interface {
	HealthReport(ctx context.Context) (repositories.SystemHealthReport, error)
}

// PaymentGateway looks up a payment on the provider's side. Implementations
// wrap provider SDKs or REST APIs; lookups are read-only.
type PaymentGateway interface {
	Provider() string
	LookupPayment(ctx context.Context, transactionID string) (GatewayPayment, error)
}

// GatewayPaymentState is the normalised state reported by a payment provider.
type GatewayPaymentState string

const (
	// GatewayPaymentSucceeded means the provider settled the payment.
	GatewayPaymentSucceeded GatewayPaymentState = "succeeded"
	// GatewayPaymentPending means the provider has not finished processing.
	GatewayPaymentPending GatewayPaymentState = "pending"
	// GatewayPaymentFailed means the provider reports an authoritative failure.
	GatewayPaymentFailed GatewayPaymentState = "failed"
)

// GatewayPayment is the provider-side view of a transaction.
type GatewayPayment struct {
	TransactionID string
	State         GatewayPaymentState
	Amount        int64
	Currency      string
	FailureReason string
}

// Carrier creates shipping labels with an external carrier.
type Carrier interface {
	Name() string
	CreateLabel(ctx context.Context, req CarrierLabelRequest) (CarrierLabel, error)
}

// CarrierLabelRequest carries everything the carrier needs to produce a label.
type CarrierLabelRequest struct {
	OrderNumber string
	Package     PackageDims
	Destination Address
}

// CarrierLabel is the carrier's response for a created label.
type CarrierLabel struct {
	TrackingNumber string
	LabelURL       string
	LabelPublicID  string
}

// OrderEvent describes a lifecycle change published for downstream consumers.
type OrderEvent struct {
	Type        string
	OrderID     string
	OrderNumber string
	UserID      string
	Status      OrderStatus
	OccurredAt  time.Time
	Metadata    map[string]any
}

// OrderEventPublisher accepts order lifecycle notifications. Publishing is
// best effort; failures are logged and never fail the triggering operation.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// Command and DTO definitions ------------------------------------------------

// PriceItemCommand prices one configured product.
type PriceItemCommand struct {
	Product     Product
	FrontDesign *DesignSide
	BackDesign  *DesignSide
}

// AddCartItemCommand appends a new customization line to the user's cart.
type AddCartItemCommand struct {
	UserID        string
	ProductID     string
	SelectedColor string
	SelectedSize  string
	FrontDesign   *DesignSide
	BackDesign    *DesignSide
	Quantity      int
}

// UpdateCartItemCommand changes the quantity of an existing line.
type UpdateCartItemCommand struct {
	UserID   string
	ItemID   string
	Quantity int
}

// RemoveCartItemCommand deletes one line from the cart.
type RemoveCartItemCommand struct {
	UserID string
	ItemID string
}

// ValidateCouponCommand checks a coupon against an order subtotal.
type ValidateCouponCommand struct {
	Code     string
	UserID   string
	Subtotal int64
}

// CouponApplication is the outcome of a successful validation.
type CouponApplication struct {
	Coupon         Coupon
	DiscountAmount int64
}

// CreateOrderFromCartCommand assembles an order from the user's current cart.
type CreateOrderFromCartCommand struct {
	UserID          string
	PaymentMethod   PaymentMethod
	ShippingAddress Address
	CouponCode      *string
}

// OrderReadOptions scopes a single-order read to its owner unless the actor is an admin.
type OrderReadOptions struct {
	ActorID string
	Admin   bool
}

// OrderListFilter narrows order list queries.
type OrderListFilter struct {
	ActorID   string
	Admin     bool
	UserID    string
	Status    []OrderStatus
	DateRange domain.RangeQuery[time.Time]
	Pager     Pagination
}

// OrderStatusTransitionCommand moves an order along the fulfilment state machine.
type OrderStatusTransitionCommand struct {
	OrderID string
	ActorID string
	Next    OrderStatus
	Reason  *string
}

// CancelOrderCommand cancels an order that has not shipped yet.
type CancelOrderCommand struct {
	OrderID string
	ActorID string
	Admin   bool
	Reason  *string
}

// VerifyPaymentCommand reconciles a gateway transaction against an order.
type VerifyPaymentCommand struct {
	OrderID       string
	ActorID       string
	Admin         bool
	Provider      string
	TransactionID string
}

// CreateLabelCommand issues a carrier label for an order.
type CreateLabelCommand struct {
	OrderID string
	ActorID string
	Package PackageDims
	Force   bool
}
