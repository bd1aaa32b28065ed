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

type couponService struct {
	coupons            repositories.CouponRepository
	usage              repositories.CouponUsageRepository
	enforceUsageLimits bool
	clock              func() time.Time
	logger             func(context.Context, string, map[string]any)
}

// CouponServiceDeps wires collaborators for NewCouponService.
type CouponServiceDeps struct {
	Coupons repositories.CouponRepository
	Usage   repositories.CouponUsageRepository
	// EnforceUsageLimits turns on redemption-cap checks for coupons that
	// declare a maximum number of uses.
	EnforceUsageLimits bool
	Clock              func() time.Time
	Logger             func(context.Context, string, map[string]any)
}

// NewCouponService builds the coupon validator.
func NewCouponService(deps CouponServiceDeps) (CouponService, error) {
	if deps.Coupons == nil {
		return nil, errors.New("coupon service requires coupon repository")
	}
	if deps.EnforceUsageLimits && deps.Usage == nil {
		return nil, errors.New("coupon service requires usage repository when limits are enforced")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &couponService{
		coupons:            deps.Coupons,
		usage:              deps.Usage,
		enforceUsageLimits: deps.EnforceUsageLimits,
		clock:              func() time.Time { return clock().UTC() },
		logger:             logger,
	}, nil
}

// Validate resolves the coupon for cmd.Code and computes the discount against
// cmd.Subtotal. It reads coupon state but never mutates it.
func (s *couponService) Validate(ctx context.Context, cmd ValidateCouponCommand) (CouponApplication, error) {
	code := strings.ToUpper(strings.TrimSpace(cmd.Code))
	if code == "" {
		return CouponApplication{}, fmt.Errorf("%w: code is required", ErrCouponInvalidInput)
	}
	if cmd.Subtotal < 0 {
		return CouponApplication{}, fmt.Errorf("%w: subtotal cannot be negative", ErrCouponInvalidInput)
	}

	coupon, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		return CouponApplication{}, s.mapLookupError(err, code)
	}

	now := s.clock()
	if !coupon.Active {
		return CouponApplication{}, fmt.Errorf("%w: %s", ErrCouponInactive, code)
	}
	if coupon.StartsAt != nil && now.Before(coupon.StartsAt.UTC()) {
		return CouponApplication{}, fmt.Errorf("%w: %s starts at %s", ErrCouponNotYetValid, code, coupon.StartsAt.UTC().Format(time.RFC3339))
	}
	if coupon.EndsAt != nil && now.After(coupon.EndsAt.UTC()) {
		return CouponApplication{}, fmt.Errorf("%w: %s ended at %s", ErrCouponExpired, code, coupon.EndsAt.UTC().Format(time.RFC3339))
	}
	if cmd.Subtotal < coupon.MinPurchase {
		return CouponApplication{}, fmt.Errorf("%w: %s requires a subtotal of at least %d", ErrCouponBelowMinimum, code, coupon.MinPurchase)
	}

	if s.enforceUsageLimits && coupon.MaxUses != nil {
		used := coupon.UsageCount
		if s.usage != nil {
			if count, countErr := s.usage.CountByCoupon(ctx, coupon.ID); countErr == nil && count > used {
				used = count
			}
		}
		if used >= *coupon.MaxUses {
			return CouponApplication{}, fmt.Errorf("%w: %s", ErrCouponExhausted, code)
		}
	}

	discount, err := discountFor(coupon, cmd.Subtotal)
	if err != nil {
		return CouponApplication{}, err
	}

	s.logger(ctx, "coupon_validated", map[string]any{
		"code":     code,
		"subtotal": cmd.Subtotal,
		"discount": discount,
	})
	return CouponApplication{Coupon: coupon, DiscountAmount: discount}, nil
}

// ListActive returns coupons currently redeemable, for the storefront banner.
func (s *couponService) ListActive(ctx context.Context) ([]Coupon, error) {
	coupons, err := s.coupons.ListActive(ctx, s.clock())
	if err != nil {
		if isRepoUnavailable(err) {
			return nil, fmt.Errorf("%w: %v", ErrCouponUnavailable, err)
		}
		return nil, err
	}
	return coupons, nil
}

func (s *couponService) mapLookupError(err error, code string) error {
	switch {
	case isRepoNotFound(err):
		return fmt.Errorf("%w: %s", ErrCouponNotFound, code)
	case isRepoUnavailable(err):
		return fmt.Errorf("%w: %v", ErrCouponUnavailable, err)
	default:
		return err
	}
}

// discountFor computes the discount a coupon grants against a subtotal. The
// result never exceeds the subtotal and never goes negative.
func discountFor(coupon Coupon, subtotal int64) (int64, error) {
	if coupon.DiscountValue < 0 {
		return 0, fmt.Errorf("%w: negative discount value on %s", ErrCouponInvalidInput, coupon.Code)
	}

	var discount int64
	switch coupon.DiscountType {
	case domain.DiscountTypeFixed:
		discount = coupon.DiscountValue
	case domain.DiscountTypePercentage:
		if coupon.DiscountValue > 100 {
			return 0, fmt.Errorf("%w: percentage above 100 on %s", ErrCouponInvalidInput, coupon.Code)
		}
		discount = subtotal * coupon.DiscountValue / 100
		if coupon.MaxDiscount != nil && discount > *coupon.MaxDiscount {
			discount = *coupon.MaxDiscount
		}
	default:
		return 0, fmt.Errorf("%w: unknown discount type %q on %s", ErrCouponInvalidInput, coupon.DiscountType, coupon.Code)
	}

	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount, nil
}
