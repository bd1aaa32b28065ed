package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/customtees/api/internal/platform/firestore"
	"github.com/customtees/api/internal/repositories"
)

type txContextKey struct{}

// txFromContext extracts the active transaction placed on the context by UnitOfWork.
func txFromContext(ctx context.Context) (*firestore.Transaction, bool) {
	if ctx == nil {
		return nil, false
	}
	tx, ok := ctx.Value(txContextKey{}).(*firestore.Transaction)
	return tx, ok && tx != nil
}

// UnitOfWork groups repository mutations inside a single Firestore transaction.
// Repositories in this package detect the transaction on the context and route
// their reads/writes through it.
type UnitOfWork struct {
	provider *pfirestore.Provider
}

// NewUnitOfWork constructs a Firestore-backed unit of work.
func NewUnitOfWork(provider *pfirestore.Provider) (*UnitOfWork, error) {
	if provider == nil {
		return nil, errors.New("unit of work requires firestore provider")
	}
	return &UnitOfWork{provider: provider}, nil
}

// RunInTx executes fn within a Firestore transaction. The transaction is stored
// on the derived context so repository calls made by fn join it.
func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if u == nil || u.provider == nil {
		return errors.New("unit of work not initialised")
	}
	if fn == nil {
		return errors.New("unit of work: fn is required")
	}
	return u.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(context.WithValue(ctx, txContextKey{}, tx))
	})
}

var _ repositories.UnitOfWork = (*UnitOfWork)(nil)
