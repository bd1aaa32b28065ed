package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/customtees/api/internal/domain"
)

type stubRepositoryError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepositoryError) Error() string       { return "stub repository error" }
func (e *stubRepositoryError) IsNotFound() bool    { return e.notFound }
func (e *stubRepositoryError) IsConflict() bool    { return e.conflict }
func (e *stubRepositoryError) IsUnavailable() bool { return e.unavailable }

type stubCouponRepository struct {
	findByCode     func(ctx context.Context, code string) (domain.Coupon, error)
	listActive     func(ctx context.Context, now time.Time) ([]domain.Coupon, error)
	incrementUsage func(ctx context.Context, couponID string, now time.Time) error
}

func (s *stubCouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	if s.findByCode == nil {
		return domain.Coupon{}, &stubRepositoryError{notFound: true}
	}
	return s.findByCode(ctx, code)
}

func (s *stubCouponRepository) ListActive(ctx context.Context, now time.Time) ([]domain.Coupon, error) {
	if s.listActive == nil {
		return nil, nil
	}
	return s.listActive(ctx, now)
}

func (s *stubCouponRepository) IncrementUsage(ctx context.Context, couponID string, now time.Time) error {
	if s.incrementUsage == nil {
		return nil
	}
	return s.incrementUsage(ctx, couponID, now)
}

type stubCouponUsageRepository struct {
	countByCoupon func(ctx context.Context, couponID string) (int, error)
	recordUsage   func(ctx context.Context, couponID, userID, orderID string, now time.Time) error
}

func (s *stubCouponUsageRepository) CountByCoupon(ctx context.Context, couponID string) (int, error) {
	if s.countByCoupon == nil {
		return 0, nil
	}
	return s.countByCoupon(ctx, couponID)
}

func (s *stubCouponUsageRepository) RecordUsage(ctx context.Context, couponID, userID, orderID string, now time.Time) error {
	if s.recordUsage == nil {
		return nil
	}
	return s.recordUsage(ctx, couponID, userID, orderID, now)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var couponTestNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func activeCoupon(code string) domain.Coupon {
	return domain.Coupon{
		ID:            code,
		Code:          code,
		DiscountType:  domain.DiscountTypeFixed,
		DiscountValue: 500,
		Active:        true,
	}
}

func newTestCouponService(t *testing.T, deps CouponServiceDeps) CouponService {
	t.Helper()
	if deps.Clock == nil {
		deps.Clock = fixedClock(couponTestNow)
	}
	svc, err := NewCouponService(deps)
	if err != nil {
		t.Fatalf("NewCouponService returned error: %v", err)
	}
	return svc
}

func TestValidateNormalisesCode(t *testing.T) {
	var seenCode string
	repo := &stubCouponRepository{
		findByCode: func(_ context.Context, code string) (domain.Coupon, error) {
			seenCode = code
			return activeCoupon("SAVE10"), nil
		},
	}
	svc := newTestCouponService(t, CouponServiceDeps{Coupons: repo})

	app, err := svc.Validate(context.Background(), ValidateCouponCommand{Code: "  save10 ", Subtotal: 10000})
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if seenCode != "SAVE10" {
		t.Fatalf("expected uppercase lookup, repository saw %q", seenCode)
	}
	if app.DiscountAmount != 500 {
		t.Fatalf("expected discount 500, got %d", app.DiscountAmount)
	}
}

func TestValidateUnknownCode(t *testing.T) {
	repo := &stubCouponRepository{
		findByCode: func(context.Context, string) (domain.Coupon, error) {
			return domain.Coupon{}, &stubRepositoryError{notFound: true}
		},
	}
	svc := newTestCouponService(t, CouponServiceDeps{Coupons: repo})

	_, err := svc.Validate(context.Background(), ValidateCouponCommand{Code: "NOPE", Subtotal: 10000})
	if !errors.Is(err, ErrCouponNotFound) {
		t.Fatalf("expected ErrCouponNotFound, got %v", err)
	}
}

func TestValidateInactiveCoupon(t *testing.T) {
	coupon := activeCoupon("OFF")
	coupon.Active = false
	repo := &stubCouponRepository{
		findByCode: func(context.Context, string) (domain.Coupon, error) { return coupon, nil },
	}
	svc := newTestCouponService(t, CouponServiceDeps{Coupons: repo})

	_, err := svc.Validate(context.Background(), ValidateCouponCommand{Code: "OFF", Subtotal: 10000})
	if !errors.Is(err, ErrCouponInactive) {
		t.Fatalf("expected ErrCouponInactive, got %v", err)
	}
}

func TestValidateWindowChecks(t *testing.T) {
	future := couponTestNow.Add(24 * time.Hour)
	past := couponTestNow.Add(-24 * time.Hour)

	cases := []struct {
		name     string
		startsAt *time.Time
		endsAt   *time.Time
		wantErr  error
	}{
		{name: "not yet valid", startsAt: &future, wantErr: ErrCouponNotYetValid},
		{name: "expired", endsAt: &past, wantErr: ErrCouponExpired},
		{name: "inside window", startsAt: &past, endsAt: &future, wantErr: nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			coupon := activeCoupon("WINDOW")
			coupon.StartsAt = tc.startsAt
			coupon.EndsAt = tc.endsAt
			repo := &stubCouponRepository{
				findByCode: func(context.Context, string) (domain.Coupon, error) { return coupon, nil },
			}
			svc := newTestCouponService(t, CouponServiceDeps{Coupons: repo})

			_, err := svc.Validate(context.Background(), ValidateCouponCommand{Code: "WINDOW", Subtotal: 10000})
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate returned error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestValidateBelowMinimumPurchase(t *testing.T) {
	coupon := activeCoupon("BIGSPEND")
	coupon.MinPurchase = 50000
	repo := &stubCouponRepository{
		findByCode: func(context.Context, string) (domain.Coupon, error) { return coupon, nil },
	}
	svc := newTestCouponService(t, CouponServiceDeps{Coupons: repo})

	_, err := svc.Validate(context.Background(), ValidateCouponCommand{Code: "BIGSPEND", Subtotal: 49999})
	if !errors.Is(err, ErrCouponBelowMinimum) {
		t.Fatalf("expected ErrCouponBelowMinimum, got %v", err)
	}

	if _, err := svc.Validate(context.Background(), ValidateCouponCommand{Code: "BIGSPEND", Subtotal: 50000}); err != nil {
		t.Fatalf("subtotal equal to minimum must pass, got %v", err)
	}
}

func TestValidateFixedDiscountNeverExceedsSubtotal(t *testing.T) {
	coupon := activeCoupon("FLAT900")
	coupon.DiscountValue = 90000
	repo := &stubCouponRepository{
		findByCode: func(context.Context, string) (domain.Coupon, error) { return coupon, nil },
	}
	svc := newTestCouponService(t, CouponServiceDeps{Coupons: repo})

	app, err := svc.Validate(context.Background(), ValidateCouponCommand{Code: "FLAT900", Subtotal: 20000})
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if app.DiscountAmount != 20000 {
		t.Fatalf("fixed discount must clamp to subtotal, got %d", app.DiscountAmount)
	}
}

func TestValidatePercentageDiscountWithCeiling(t *testing.T) {
	max := int64(1500)
	coupon := activeCoupon("PC20")
	coupon.DiscountType = domain.DiscountTypePercentage
	coupon.DiscountValue = 20
	coupon.MaxDiscount = &max
	repo := &stubCouponRepository{
		findByCode: func(context.Context, string) (domain.Coupon, error) { return coupon, nil },
	}
	svc := newTestCouponService(t, CouponServiceDeps{Coupons: repo})

	// 20% of 5000 = 1000, below the ceiling.
	app, err := svc.Validate(context.Background(), ValidateCouponCommand{Code: "PC20", Subtotal: 5000})
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if app.DiscountAmount != 1000 {
		t.Fatalf("expected 1000, got %d", app.DiscountAmount)
	}

	// 20% of 20000 = 4000, clamped to 1500.
	app, err = svc.Validate(context.Background(), ValidateCouponCommand{Code: "PC20", Subtotal: 20000})
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if app.DiscountAmount != 1500 {
		t.Fatalf("expected ceiling 1500, got %d", app.DiscountAmount)
	}
}

func TestValidateUsageLimitEnforcement(t *testing.T) {
	maxUses := 3
	coupon := activeCoupon("CAPPED")
	coupon.MaxUses = &maxUses
	coupon.UsageCount = 3
	repo := &stubCouponRepository{
		findByCode: func(context.Context, string) (domain.Coupon, error) { return coupon, nil },
	}
	usage := &stubCouponUsageRepository{}

	svc := newTestCouponService(t, CouponServiceDeps{Coupons: repo, Usage: usage, EnforceUsageLimits: true})
	_, err := svc.Validate(context.Background(), ValidateCouponCommand{Code: "CAPPED", Subtotal: 10000})
	if !errors.Is(err, ErrCouponExhausted) {
		t.Fatalf("expected ErrCouponExhausted, got %v", err)
	}

	// With enforcement off the same coupon validates.
	svc = newTestCouponService(t, CouponServiceDeps{Coupons: repo})
	if _, err := svc.Validate(context.Background(), ValidateCouponCommand{Code: "CAPPED", Subtotal: 10000}); err != nil {
		t.Fatalf("Validate returned error with enforcement off: %v", err)
	}
}

func TestValidateDoesNotMutateCoupon(t *testing.T) {
	increments := 0
	repo := &stubCouponRepository{
		findByCode: func(context.Context, string) (domain.Coupon, error) { return activeCoupon("PURE"), nil },
		incrementUsage: func(context.Context, string, time.Time) error {
			increments++
			return nil
		},
	}
	svc := newTestCouponService(t, CouponServiceDeps{Coupons: repo})

	for i := 0; i < 3; i++ {
		if _, err := svc.Validate(context.Background(), ValidateCouponCommand{Code: "PURE", Subtotal: 10000}); err != nil {
			t.Fatalf("Validate returned error: %v", err)
		}
	}
	if increments != 0 {
		t.Fatalf("validation must not record redemptions, saw %d increments", increments)
	}
}
