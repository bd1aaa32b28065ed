package repositories

import (
	"context"
	"time"

	domain "github.com/customtees/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository reads catalog entries referenced by cart items.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindBySlug(ctx context.Context, slug string) (domain.Product, error)
}

// CartRepository owns cart header + items persistence with optimistic locking guarantees.
type CartRepository interface {
	UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	ReplaceItems(ctx context.Context, userID string, items []domain.CartItem) (domain.Cart, error)
	// ClearIfUnchanged empties the cart only when its stored UpdatedAt still matches
	// expectedUpdate. Implementations must surface a conflict RepositoryError when the
	// cart changed underneath the caller; order assembly relies on this to serialise
	// concurrent checkouts.
	ClearIfUnchanged(ctx context.Context, userID string, expectedUpdate time.Time) error
}

// CouponRepository maintains coupon definitions keyed by their uppercase code.
type CouponRepository interface {
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	ListActive(ctx context.Context, now time.Time) ([]domain.Coupon, error)
	// IncrementUsage bumps the redemption counter; only invoked when usage limits
	// are enforced.
	IncrementUsage(ctx context.Context, couponID string, now time.Time) error
}

// CouponUsageRepository records per-user redemptions to enforce optional usage caps.
type CouponUsageRepository interface {
	CountByCoupon(ctx context.Context, couponID string) (int, error)
	RecordUsage(ctx context.Context, couponID string, userID string, orderID string, now time.Time) error
}

// OrderRepository persists order snapshots and provides query helpers for users and admins.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (SystemHealthReport, error)
}

// SystemHealthReport aggregates dependency states surfaced via readiness checks.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	GeneratedAt time.Time
}

// SystemHealthCheck describes the probed state of a single dependency.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// Filter DTOs shared across repositories ------------------------------------

type OrderListFilter struct {
	UserID     string
	Status     []string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
