package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/customtees/api/internal/domain"
	pfirestore "github.com/customtees/api/internal/platform/firestore"
	"github.com/customtees/api/internal/repositories"
)

const productCollection = "products"

// ProductRepository reads catalog entries. The backend only consumes the
// catalog; product CRUD belongs to the admin surface.
type ProductRepository struct {
	base     *pfirestore.BaseRepository[productDocument]
	provider *pfirestore.Provider
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil)
	return &ProductRepository{base: base, provider: provider}, nil
}

// FindByID loads a product by document ID.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return decodeProduct(doc.ID, doc.Data), nil
}

// FindBySlug loads a product by its unique slug.
func (r *ProductRepository) FindBySlug(ctx context.Context, slug string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	trimmed := strings.ToLower(strings.TrimSpace(slug))
	if trimmed == "" {
		return domain.Product{}, errors.New("product repository: slug is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("slug", "==", trimmed).Limit(1)
	})
	if err != nil {
		return domain.Product{}, err
	}
	if len(docs) == 0 {
		return domain.Product{}, pfirestore.WrapError("products.findBySlug",
			status.Error(codes.NotFound, "product not found"))
	}
	return decodeProduct(docs[0].ID, docs[0].Data), nil
}

func decodeProduct(id string, doc productDocument) domain.Product {
	variants := make([]domain.ProductVariant, 0, len(doc.Variants))
	for _, v := range doc.Variants {
		variants = append(variants, domain.ProductVariant{
			Color:       v.Color,
			ColorCode:   v.ColorCode,
			Images:      append([]string(nil), v.Images...),
			FrontImages: append([]string(nil), v.FrontImages...),
			BackImages:  append([]string(nil), v.BackImages...),
		})
	}
	return domain.Product{
		ID:           id,
		Name:         doc.Name,
		Slug:         doc.Slug,
		Price:        doc.Price,
		Currency:     strings.ToUpper(strings.TrimSpace(doc.Currency)),
		Sizes:        append([]string(nil), doc.Sizes...),
		Variants:     variants,
		Stock:        doc.Stock,
		Customizable: doc.Customizable,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}

type productDocument struct {
	Name         string                   `firestore:"name"`
	Slug         string                   `firestore:"slug"`
	Price        int64                    `firestore:"price"`
	Currency     string                   `firestore:"currency"`
	Sizes        []string                 `firestore:"sizes"`
	Variants     []productVariantDocument `firestore:"variants"`
	Stock        int                      `firestore:"stock"`
	Customizable bool                     `firestore:"customizable"`
	CreatedAt    time.Time                `firestore:"createdAt"`
	UpdatedAt    time.Time                `firestore:"updatedAt"`
}

type productVariantDocument struct {
	Color       string   `firestore:"color"`
	ColorCode   string   `firestore:"colorCode"`
	Images      []string `firestore:"images,omitempty"`
	FrontImages []string `firestore:"frontImages,omitempty"`
	BackImages  []string `firestore:"backImages,omitempty"`
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
