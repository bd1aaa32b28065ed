package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/customtees/api/internal/repositories"
)

var (
	// ErrCatalogInvalidInput signals a malformed catalog read.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound means the requested product does not exist.
	ErrCatalogNotFound = errors.New("catalog: product not found")
	// ErrCatalogUnavailable indicates catalog storage could not be reached.
	ErrCatalogUnavailable = errors.New("catalog: storage unavailable")
)

type catalogService struct {
	products repositories.ProductRepository
}

// CatalogServiceDeps wires collaborators for NewCatalogService.
type CatalogServiceDeps struct {
	Products repositories.ProductRepository
}

// NewCatalogService builds the catalog reader.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service requires product repository")
	}
	return &catalogService{products: deps.Products}, nil
}

func (s *catalogService) GetProductBySlug(ctx context.Context, slug string) (Product, error) {
	trimmed := strings.TrimSpace(slug)
	if trimmed == "" {
		return Product{}, fmt.Errorf("%w: slug is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindBySlug(ctx, trimmed)
	if err != nil {
		return Product{}, s.mapError(err, trimmed)
	}
	return product, nil
}

func (s *catalogService) GetProductByID(ctx context.Context, productID string) (Product, error) {
	trimmed := strings.TrimSpace(productID)
	if trimmed == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, trimmed)
	if err != nil {
		return Product{}, s.mapError(err, trimmed)
	}
	return product, nil
}

func (s *catalogService) mapError(err error, ref string) error {
	switch {
	case isRepoNotFound(err):
		return fmt.Errorf("%w: %s", ErrCatalogNotFound, ref)
	case isRepoUnavailable(err):
		return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	default:
		return err
	}
}
