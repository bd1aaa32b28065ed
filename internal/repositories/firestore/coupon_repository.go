package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/customtees/api/internal/domain"
	pfirestore "github.com/customtees/api/internal/platform/firestore"
	"github.com/customtees/api/internal/repositories"
)

const (
	couponCollection      = "coupons"
	couponUsageCollection = "couponUsage"
)

// CouponRepository stores coupon definitions keyed by their uppercase code, which
// gives the unique-code constraint for free.
type CouponRepository struct {
	base     *pfirestore.BaseRepository[couponDocument]
	provider *pfirestore.Provider
}

// NewCouponRepository constructs a Firestore-backed coupon repository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[couponDocument](provider, couponCollection, nil, nil)
	return &CouponRepository{base: base, provider: provider}, nil
}

// FindByCode loads a coupon by its normalised (uppercase) code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	if r == nil || r.base == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	normalised := strings.ToUpper(strings.TrimSpace(code))
	if normalised == "" {
		return domain.Coupon{}, errors.New("coupon repository: code is required")
	}
	doc, err := r.base.Get(ctx, normalised)
	if err != nil {
		return domain.Coupon{}, err
	}
	return decodeCoupon(doc.ID, doc.Data), nil
}

// ListActive returns coupons whose active flag is set and whose validity window
// (when configured) contains now. The start-window check happens in memory
// since Firestore allows only one range field per query.
func (r *CouponRepository) ListActive(ctx context.Context, now time.Time) ([]domain.Coupon, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("coupon repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("active", "==", true)
	})
	if err != nil {
		return nil, err
	}

	utcNow := now.UTC()
	coupons := make([]domain.Coupon, 0, len(docs))
	for _, doc := range docs {
		coupon := decodeCoupon(doc.ID, doc.Data)
		if coupon.StartsAt != nil && utcNow.Before(*coupon.StartsAt) {
			continue
		}
		if coupon.EndsAt != nil && utcNow.After(*coupon.EndsAt) {
			continue
		}
		coupons = append(coupons, coupon)
	}
	return coupons, nil
}

// IncrementUsage bumps the redemption counter on the coupon document.
func (r *CouponRepository) IncrementUsage(ctx context.Context, couponID string, now time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("coupon repository not initialised")
	}
	id := strings.TrimSpace(couponID)
	if id == "" {
		return errors.New("coupon repository: coupon id is required")
	}

	updates := []firestore.Update{
		{Path: "usageCount", Value: firestore.Increment(1)},
		{Path: "updatedAt", Value: now.UTC()},
	}

	if tx, ok := txFromContext(ctx); ok {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		return pfirestore.WrapError("coupons.increment", tx.Update(ref, updates))
	}

	_, err := r.base.Update(ctx, id, updates)
	return err
}

func decodeCoupon(id string, doc couponDocument) domain.Coupon {
	return domain.Coupon{
		ID:            id,
		Code:          strings.ToUpper(strings.TrimSpace(doc.Code)),
		Description:   doc.Description,
		DiscountType:  domain.DiscountType(doc.DiscountType),
		DiscountValue: doc.DiscountValue,
		MinPurchase:   doc.MinPurchase,
		MaxDiscount:   doc.MaxDiscount,
		Active:        doc.Active,
		StartsAt:      doc.StartsAt,
		EndsAt:        doc.EndsAt,
		MaxUses:       doc.MaxUses,
		UsageCount:    doc.UsageCount,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
}

type couponDocument struct {
	Code          string     `firestore:"code"`
	Description   string     `firestore:"description,omitempty"`
	DiscountType  string     `firestore:"discountType"`
	DiscountValue int64      `firestore:"discountValue"`
	MinPurchase   int64      `firestore:"minPurchase"`
	MaxDiscount   *int64     `firestore:"maxDiscount,omitempty"`
	Active        bool       `firestore:"active"`
	StartsAt      *time.Time `firestore:"startsAt,omitempty"`
	EndsAt        *time.Time `firestore:"endsAt,omitempty"`
	MaxUses       *int       `firestore:"maxUses,omitempty"`
	UsageCount    int        `firestore:"usageCount"`
	CreatedAt     time.Time  `firestore:"createdAt"`
	UpdatedAt     time.Time  `firestore:"updatedAt"`
}

// CouponUsageRepository records individual redemptions for optional usage caps.
type CouponUsageRepository struct {
	base     *pfirestore.BaseRepository[couponUsageDocument]
	provider *pfirestore.Provider
}

// NewCouponUsageRepository constructs a Firestore-backed coupon usage repository.
func NewCouponUsageRepository(provider *pfirestore.Provider) (*CouponUsageRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon usage repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[couponUsageDocument](provider, couponUsageCollection, nil, nil)
	return &CouponUsageRepository{base: base, provider: provider}, nil
}

// CountByCoupon counts recorded redemptions of the coupon.
func (r *CouponUsageRepository) CountByCoupon(ctx context.Context, couponID string) (int, error) {
	if r == nil || r.base == nil {
		return 0, errors.New("coupon usage repository not initialised")
	}
	id := strings.TrimSpace(couponID)
	if id == "" {
		return 0, errors.New("coupon usage repository: coupon id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("couponId", "==", id)
	})
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// RecordUsage appends one redemption record. Joins an ambient transaction when
// present so redemption bookkeeping commits with the order.
func (r *CouponUsageRepository) RecordUsage(ctx context.Context, couponID string, userID string, orderID string, now time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("coupon usage repository not initialised")
	}
	id := strings.TrimSpace(couponID)
	if id == "" || strings.TrimSpace(orderID) == "" {
		return errors.New("coupon usage repository: coupon id and order id are required")
	}

	doc := couponUsageDocument{
		CouponID:  id,
		UserID:    strings.TrimSpace(userID),
		OrderID:   strings.TrimSpace(orderID),
		CreatedAt: now.UTC(),
	}
	docID := id + ":" + doc.OrderID

	if tx, ok := txFromContext(ctx); ok {
		ref, err := r.base.DocumentRef(ctx, docID)
		if err != nil {
			return err
		}
		return pfirestore.WrapError("couponUsage.record", tx.Create(ref, doc))
	}

	ref, err := r.base.DocumentRef(ctx, docID)
	if err != nil {
		return err
	}
	_, err = ref.Create(ctx, doc)
	return pfirestore.WrapError("couponUsage.record", err)
}

type couponUsageDocument struct {
	CouponID  string    `firestore:"couponId"`
	UserID    string    `firestore:"userId"`
	OrderID   string    `firestore:"orderId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

var (
	_ repositories.CouponRepository      = (*CouponRepository)(nil)
	_ repositories.CouponUsageRepository = (*CouponUsageRepository)(nil)
)
