package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage wraps a page of results with the token for the following page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// ProductVariant describes one colourway of a product with its image sets.
type ProductVariant struct {
	Color       string
	ColorCode   string
	Images      []string
	FrontImages []string
	BackImages  []string
}

// Product is a catalog entry. Prices are stored in the smallest currency unit.
type Product struct {
	ID           string
	Name         string
	Slug         string
	Price        int64
	Currency     string
	Sizes        []string
	Variants     []ProductVariant
	Stock        int
	Customizable bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LayerKind enumerates the element types that can be placed on a garment side.
type LayerKind string

const (
	// LayerKindText is a user-placed text element.
	LayerKindText LayerKind = "text"
	// LayerKindImage is a user-uploaded image element.
	LayerKindImage LayerKind = "image"
	// LayerKindBase is the garment base artwork; it never contributes to cost.
	LayerKindBase LayerKind = "base"
)

// DesignLayer is one positioned element of a side's design. Width/Height are the
// element's intrinsic size in layout pixels; ScaleX/ScaleY stretch it on canvas.
type DesignLayer struct {
	ID       string
	Kind     LayerKind
	X        float64
	Y        float64
	Width    float64
	Height   float64
	ScaleX   float64
	ScaleY   float64
	Rotation float64
	Payload  map[string]any
}

// DesignSide holds the serialized design placed on one side of a garment.
// The layer payloads and raw editor data are opaque to the backend beyond
// their rendered area and serialized size.
type DesignSide struct {
	Layers       []DesignLayer
	PreviewImage string
	DesignData   map[string]any
}

// PriceBreakdown is the result of pricing one customized product.
type PriceBreakdown struct {
	BasePrice int64
	FrontCost int64
	BackCost  int64
	Total     int64
}

// CartItem stores a single customization instance within a user's cart.
// TotalPrice is always derived as BasePrice + FrontCost + BackCost; it is
// never edited independently.
type CartItem struct {
	ID            string
	ProductID     string
	ProductName   string
	ProductSlug   string
	SelectedColor string
	SelectedSize  string
	FrontDesign   *DesignSide
	BackDesign    *DesignSide
	BasePrice     int64
	FrontCost     int64
	BackCost      int64
	TotalPrice    int64
	Quantity      int
	Currency      string
	AddedAt       time.Time
	UpdatedAt     *time.Time
}

// Cart aggregates the mutable shopping cart state for a user.
type Cart struct {
	ID        string
	UserID    string
	Currency  string
	Items     []CartItem
	Subtotal  int64
	UpdatedAt time.Time
}

// DiscountType enumerates supported coupon discount mechanics.
type DiscountType string

const (
	// DiscountTypePercentage discounts a percentage of the subtotal.
	DiscountTypePercentage DiscountType = "percentage"
	// DiscountTypeFixed discounts a fixed amount in minor currency units.
	DiscountTypeFixed DiscountType = "fixed"
)

// Coupon describes a named discount rule. Codes are stored uppercase and
// matched case-insensitively.
type Coupon struct {
	ID            string
	Code          string
	Description   string
	DiscountType  DiscountType
	DiscountValue int64
	MinPurchase   int64
	MaxDiscount   *int64
	Active        bool
	StartsAt      *time.Time
	EndsAt        *time.Time
	MaxUses       *int
	UsageCount    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CouponSnapshot freezes the coupon terms applied to an order.
type CouponSnapshot struct {
	Code           string
	DiscountType   DiscountType
	DiscountValue  int64
	DiscountAmount int64
}

// Address is a value-copied postal address. Orders hold their own copy so
// later edits to a user's address book never affect placed orders.
type Address struct {
	FullName   string
	Phone      string
	Line1      string
	Line2      *string
	City       string
	State      string
	PostalCode string
	Country    string
}

// PaymentMethod enumerates the supported checkout payment backends.
type PaymentMethod string

const (
	// PaymentMethodCOD is cash on delivery; such orders skip payment reconciliation.
	PaymentMethodCOD PaymentMethod = "cod"
	// PaymentMethodRazorpay settles through Razorpay.
	PaymentMethodRazorpay PaymentMethod = "razorpay"
	// PaymentMethodSquare settles through Square.
	PaymentMethodSquare PaymentMethod = "square"
)

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPlaced indicates the order has been created from a cart.
	OrderStatusPlaced OrderStatus = "placed"
	// OrderStatusProcessing indicates payment cleared and fulfilment has begun.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates a carrier label was issued and the parcel handed off.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the parcel reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled before shipment.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentStatus enumerates payment reconciliation states for an order.
type PaymentStatus string

const (
	// PaymentStatusPending indicates the gateway payment has not been confirmed yet.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid indicates the gateway reported an authoritative success.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed indicates an authoritative failure or customer abort.
	PaymentStatusFailed PaymentStatus = "failed"
)

// ShipmentStatus enumerates shipment label states for an order.
type ShipmentStatus string

const (
	// ShipmentStatusNone indicates no label has been issued.
	ShipmentStatusNone ShipmentStatus = ""
	// ShipmentStatusLabelGenerated indicates a carrier label exists for the order.
	ShipmentStatusLabelGenerated ShipmentStatus = "label_generated"
)

// PaymentInfo is the payment sub-document of an order.
type PaymentInfo struct {
	Status        PaymentStatus
	Provider      string
	TransactionID string
	Amount        int64
	Currency      string
	FailureReason *string
	VerifiedAt    *time.Time
}

// PackageDims describes the parcel handed to the carrier.
type PackageDims struct {
	WeightKg float64
	LengthCm float64
	WidthCm  float64
	HeightCm float64
}

// ShipmentInfo records carrier label metadata for an order.
type ShipmentInfo struct {
	Status         ShipmentStatus
	Carrier        string
	TrackingNumber string
	LabelURL       string
	LabelPublicID  string
	Package        PackageDims
	IssuedAt       *time.Time
}

// OrderLineItem mirrors one cart item at the moment of checkout. Price is the
// cart item's customization-inclusive unit price frozen at order creation.
type OrderLineItem struct {
	ProductID     string
	ProductName   string
	ProductSlug   string
	SelectedColor string
	SelectedSize  string
	FrontDesign   *DesignSide
	BackDesign    *DesignSide
	Quantity      int
	Price         int64
	Total         int64
}

// OrderTotals holds rolled-up monetary fields in the smallest currency unit.
type OrderTotals struct {
	Subtotal int64
	Discount int64
	Total    int64
}

// Order is the immutable-after-creation checkout snapshot. Only the payment
// sub-document, shipment fields, and the status timeline change afterwards.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	Status          OrderStatus
	Currency        string
	Items           []OrderLineItem
	Totals          OrderTotals
	Coupon          *CouponSnapshot
	PaymentMethod   PaymentMethod
	Payment         *PaymentInfo
	ShippingAddress Address
	Shipment        *ShipmentInfo
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PlacedAt        time.Time
	ProcessingAt    *time.Time
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
	CancelReason    *string
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)
