package services

import "errors"

var (
	// ErrCouponInvalidInput signals a malformed validation request.
	ErrCouponInvalidInput = errors.New("coupon: invalid input")
	// ErrCouponNotFound means no coupon exists for the supplied code.
	ErrCouponNotFound = errors.New("coupon: not found")
	// ErrCouponInactive means the coupon exists but is switched off.
	ErrCouponInactive = errors.New("coupon: inactive")
	// ErrCouponExpired means the coupon's validity window has closed.
	ErrCouponExpired = errors.New("coupon: expired")
	// ErrCouponNotYetValid means the coupon's validity window has not opened.
	ErrCouponNotYetValid = errors.New("coupon: not yet valid")
	// ErrCouponBelowMinimum means the order subtotal is under the coupon's minimum purchase.
	ErrCouponBelowMinimum = errors.New("coupon: below minimum purchase")
	// ErrCouponExhausted means the coupon's redemption cap has been reached.
	ErrCouponExhausted = errors.New("coupon: usage limit reached")
	// ErrCouponUnavailable indicates coupon storage could not be reached.
	ErrCouponUnavailable = errors.New("coupon: storage unavailable")
)
