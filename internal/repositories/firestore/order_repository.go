package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/customtees/api/internal/domain"
	pfirestore "github.com/customtees/api/internal/platform/firestore"
	"github.com/customtees/api/internal/platform/pagination"
	"github.com/customtees/api/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository persists immutable order snapshots and their mutable
// payment/shipment/status sections.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{base: base, provider: provider}, nil
}

// Insert creates the order document. Joins an ambient transaction when one is
// present so order creation and cart clearing commit atomically.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}

	doc := encodeOrder(order)

	if tx, ok := txFromContext(ctx); ok {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		return pfirestore.WrapError("orders.insert", tx.Create(ref, doc))
	}

	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	_, err = ref.Create(ctx, doc)
	return pfirestore.WrapError("orders.insert", err)
}

// Update rewrites the order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	_, err := r.base.Set(ctx, id, encodeOrder(order))
	return err
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data), nil
}

// List returns orders matching the filter, newest first, cursor paginated.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if uid := strings.TrimSpace(filter.UserID); uid != "" {
			q = q.Where("userId", "==", uid)
		}
		if len(filter.Status) > 0 {
			q = q.Where("status", "in", filter.Status)
		}
		if filter.DateRange.From != nil {
			q = q.Where("createdAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil {
			q = q.Where("createdAt", "<=", filter.DateRange.To.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(cursor.StartAfter) > 0 {
			q = q.StartAfter(cursor.StartAfter...)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{Items: make([]domain.Order, 0, len(docs))}
	for i, doc := range docs {
		if i == pageSize {
			break
		}
		page.Items = append(page.Items, decodeOrder(doc.ID, doc.Data))
	}

	if len(docs) > pageSize {
		last := docs[pageSize-1]
		token, err := pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{last.Data.CreatedAt, last.ID},
		})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	}

	return page, nil
}

func encodeOrder(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ProductID:     item.ProductID,
			ProductName:   item.ProductName,
			ProductSlug:   item.ProductSlug,
			SelectedColor: item.SelectedColor,
			SelectedSize:  item.SelectedSize,
			FrontDesign:   encodeDesignSide(item.FrontDesign),
			BackDesign:    encodeDesignSide(item.BackDesign),
			Quantity:      item.Quantity,
			Price:         item.Price,
			Total:         item.Total,
		})
	}

	doc := orderDocument{
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		Status:        string(order.Status),
		Currency:      order.Currency,
		Items:         items,
		Subtotal:      order.Totals.Subtotal,
		Discount:      order.Totals.Discount,
		Total:         order.Totals.Total,
		PaymentMethod: string(order.PaymentMethod),
		ShippingAddress: addressDocument{
			FullName:   order.ShippingAddress.FullName,
			Phone:      order.ShippingAddress.Phone,
			Line1:      order.ShippingAddress.Line1,
			Line2:      order.ShippingAddress.Line2,
			City:       order.ShippingAddress.City,
			State:      order.ShippingAddress.State,
			PostalCode: order.ShippingAddress.PostalCode,
			Country:    order.ShippingAddress.Country,
		},
		CreatedAt:    order.CreatedAt.UTC(),
		UpdatedAt:    order.UpdatedAt.UTC(),
		PlacedAt:     order.PlacedAt.UTC(),
		ProcessingAt: order.ProcessingAt,
		ShippedAt:    order.ShippedAt,
		DeliveredAt:  order.DeliveredAt,
		CancelledAt:  order.CancelledAt,
		CancelReason: order.CancelReason,
	}

	if order.Coupon != nil {
		doc.Coupon = &couponSnapshotDocument{
			Code:           order.Coupon.Code,
			DiscountType:   string(order.Coupon.DiscountType),
			DiscountValue:  order.Coupon.DiscountValue,
			DiscountAmount: order.Coupon.DiscountAmount,
		}
	}
	if order.Payment != nil {
		doc.Payment = &paymentDocument{
			Status:        string(order.Payment.Status),
			Provider:      order.Payment.Provider,
			TransactionID: order.Payment.TransactionID,
			Amount:        order.Payment.Amount,
			Currency:      order.Payment.Currency,
			FailureReason: order.Payment.FailureReason,
			VerifiedAt:    order.Payment.VerifiedAt,
		}
	}
	if order.Shipment != nil {
		doc.Shipment = &shipmentDocument{
			Status:         string(order.Shipment.Status),
			Carrier:        order.Shipment.Carrier,
			TrackingNumber: order.Shipment.TrackingNumber,
			LabelURL:       order.Shipment.LabelURL,
			LabelPublicID:  order.Shipment.LabelPublicID,
			WeightKg:       order.Shipment.Package.WeightKg,
			LengthCm:       order.Shipment.Package.LengthCm,
			WidthCm:        order.Shipment.Package.WidthCm,
			HeightCm:       order.Shipment.Package.HeightCm,
			IssuedAt:       order.Shipment.IssuedAt,
		}
	}

	return doc
}

func decodeOrder(id string, doc orderDocument) domain.Order {
	items := make([]domain.OrderLineItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.OrderLineItem{
			ProductID:     item.ProductID,
			ProductName:   item.ProductName,
			ProductSlug:   item.ProductSlug,
			SelectedColor: item.SelectedColor,
			SelectedSize:  item.SelectedSize,
			FrontDesign:   decodeDesignSide(item.FrontDesign),
			BackDesign:    decodeDesignSide(item.BackDesign),
			Quantity:      item.Quantity,
			Price:         item.Price,
			Total:         item.Total,
		})
	}

	order := domain.Order{
		ID:            id,
		OrderNumber:   doc.OrderNumber,
		UserID:        doc.UserID,
		Status:        domain.OrderStatus(doc.Status),
		Currency:      doc.Currency,
		Items:         items,
		Totals:        domain.OrderTotals{Subtotal: doc.Subtotal, Discount: doc.Discount, Total: doc.Total},
		PaymentMethod: domain.PaymentMethod(doc.PaymentMethod),
		ShippingAddress: domain.Address{
			FullName:   doc.ShippingAddress.FullName,
			Phone:      doc.ShippingAddress.Phone,
			Line1:      doc.ShippingAddress.Line1,
			Line2:      doc.ShippingAddress.Line2,
			City:       doc.ShippingAddress.City,
			State:      doc.ShippingAddress.State,
			PostalCode: doc.ShippingAddress.PostalCode,
			Country:    doc.ShippingAddress.Country,
		},
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
		PlacedAt:     doc.PlacedAt,
		ProcessingAt: doc.ProcessingAt,
		ShippedAt:    doc.ShippedAt,
		DeliveredAt:  doc.DeliveredAt,
		CancelledAt:  doc.CancelledAt,
		CancelReason: doc.CancelReason,
	}

	if doc.Coupon != nil {
		order.Coupon = &domain.CouponSnapshot{
			Code:           doc.Coupon.Code,
			DiscountType:   domain.DiscountType(doc.Coupon.DiscountType),
			DiscountValue:  doc.Coupon.DiscountValue,
			DiscountAmount: doc.Coupon.DiscountAmount,
		}
	}
	if doc.Payment != nil {
		order.Payment = &domain.PaymentInfo{
			Status:        domain.PaymentStatus(doc.Payment.Status),
			Provider:      doc.Payment.Provider,
			TransactionID: doc.Payment.TransactionID,
			Amount:        doc.Payment.Amount,
			Currency:      doc.Payment.Currency,
			FailureReason: doc.Payment.FailureReason,
			VerifiedAt:    doc.Payment.VerifiedAt,
		}
	}
	if doc.Shipment != nil {
		order.Shipment = &domain.ShipmentInfo{
			Status:         domain.ShipmentStatus(doc.Shipment.Status),
			Carrier:        doc.Shipment.Carrier,
			TrackingNumber: doc.Shipment.TrackingNumber,
			LabelURL:       doc.Shipment.LabelURL,
			LabelPublicID:  doc.Shipment.LabelPublicID,
			Package: domain.PackageDims{
				WeightKg: doc.Shipment.WeightKg,
				LengthCm: doc.Shipment.LengthCm,
				WidthCm:  doc.Shipment.WidthCm,
				HeightCm: doc.Shipment.HeightCm,
			},
			IssuedAt: doc.Shipment.IssuedAt,
		}
	}

	return order
}

type orderDocument struct {
	OrderNumber     string                  `firestore:"orderNumber"`
	UserID          string                  `firestore:"userId"`
	Status          string                  `firestore:"status"`
	Currency        string                  `firestore:"currency"`
	Items           []orderItemDocument     `firestore:"items"`
	Subtotal        int64                   `firestore:"subtotal"`
	Discount        int64                   `firestore:"discount"`
	Total           int64                   `firestore:"total"`
	Coupon          *couponSnapshotDocument `firestore:"coupon,omitempty"`
	PaymentMethod   string                  `firestore:"paymentMethod"`
	Payment         *paymentDocument        `firestore:"payment,omitempty"`
	ShippingAddress addressDocument         `firestore:"shippingAddress"`
	Shipment        *shipmentDocument       `firestore:"shipment,omitempty"`
	CreatedAt       time.Time               `firestore:"createdAt"`
	UpdatedAt       time.Time               `firestore:"updatedAt"`
	PlacedAt        time.Time               `firestore:"placedAt"`
	ProcessingAt    *time.Time              `firestore:"processingAt,omitempty"`
	ShippedAt       *time.Time              `firestore:"shippedAt,omitempty"`
	DeliveredAt     *time.Time              `firestore:"deliveredAt,omitempty"`
	CancelledAt     *time.Time              `firestore:"cancelledAt,omitempty"`
	CancelReason    *string                 `firestore:"cancelReason,omitempty"`
}

type orderItemDocument struct {
	ProductID     string              `firestore:"productId"`
	ProductName   string              `firestore:"productName"`
	ProductSlug   string              `firestore:"productSlug"`
	SelectedColor string              `firestore:"selectedColor,omitempty"`
	SelectedSize  string              `firestore:"selectedSize,omitempty"`
	FrontDesign   *designSideDocument `firestore:"frontDesign,omitempty"`
	BackDesign    *designSideDocument `firestore:"backDesign,omitempty"`
	Quantity      int                 `firestore:"quantity"`
	Price         int64               `firestore:"price"`
	Total         int64               `firestore:"total"`
}

type couponSnapshotDocument struct {
	Code           string `firestore:"code"`
	DiscountType   string `firestore:"discountType"`
	DiscountValue  int64  `firestore:"discountValue"`
	DiscountAmount int64  `firestore:"discountAmount"`
}

type paymentDocument struct {
	Status        string     `firestore:"status"`
	Provider      string     `firestore:"provider"`
	TransactionID string     `firestore:"transactionId,omitempty"`
	Amount        int64      `firestore:"amount"`
	Currency      string     `firestore:"currency"`
	FailureReason *string    `firestore:"failureReason,omitempty"`
	VerifiedAt    *time.Time `firestore:"verifiedAt,omitempty"`
}

type addressDocument struct {
	FullName   string  `firestore:"fullName"`
	Phone      string  `firestore:"phone"`
	Line1      string  `firestore:"line1"`
	Line2      *string `firestore:"line2,omitempty"`
	City       string  `firestore:"city"`
	State      string  `firestore:"state"`
	PostalCode string  `firestore:"postalCode"`
	Country    string  `firestore:"country"`
}

type shipmentDocument struct {
	Status         string     `firestore:"status"`
	Carrier        string     `firestore:"carrier"`
	TrackingNumber string     `firestore:"trackingNumber"`
	LabelURL       string     `firestore:"labelUrl"`
	LabelPublicID  string     `firestore:"labelPublicId,omitempty"`
	WeightKg       float64    `firestore:"weightKg"`
	LengthCm       float64    `firestore:"lengthCm"`
	WidthCm        float64    `firestore:"widthCm"`
	HeightCm       float64    `firestore:"heightCm"`
	IssuedAt       *time.Time `firestore:"issuedAt,omitempty"`
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
