package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/customtees/api/internal/domain"
	"github.com/customtees/api/internal/platform/httpx"
	"github.com/customtees/api/internal/services"
)

// ProductHandlers exposes public catalog endpoints.
type ProductHandlers struct {
	catalog services.CatalogService
}

// NewProductHandlers constructs catalog read handlers.
func NewProductHandlers(catalog services.CatalogService) *ProductHandlers {
	return &ProductHandlers{catalog: catalog}
}

// Routes wires the /products endpoints onto the provided router.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{slug}", h.getProduct)
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	slug := strings.TrimSpace(chi.URLParam(r, "slug"))
	if slug == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product slug is required", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.GetProductBySlug(ctx, slug)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to fetch product", http.StatusInternalServerError))
	}
}

type productResponse struct {
	Product productPayload `json:"product"`
}

type productPayload struct {
	ID           string                  `json:"id"`
	Name         string                  `json:"name"`
	Slug         string                  `json:"slug"`
	Price        int64                   `json:"price"`
	Currency     string                  `json:"currency"`
	Sizes        []string                `json:"sizes"`
	Variants     []productVariantPayload `json:"variants"`
	Stock        int                     `json:"stock"`
	Customizable bool                    `json:"customizable"`
	CreatedAt    string                  `json:"created_at,omitempty"`
	UpdatedAt    string                  `json:"updated_at,omitempty"`
}

type productVariantPayload struct {
	Color       string   `json:"color"`
	ColorCode   string   `json:"color_code,omitempty"`
	Images      []string `json:"images,omitempty"`
	FrontImages []string `json:"front_images,omitempty"`
	BackImages  []string `json:"back_images,omitempty"`
}

func buildProductPayload(product domain.Product) productPayload {
	payload := productPayload{
		ID:           product.ID,
		Name:         product.Name,
		Slug:         product.Slug,
		Price:        product.Price,
		Currency:     strings.ToUpper(strings.TrimSpace(product.Currency)),
		Sizes:        product.Sizes,
		Variants:     make([]productVariantPayload, 0, len(product.Variants)),
		Stock:        product.Stock,
		Customizable: product.Customizable,
		CreatedAt:    formatTime(product.CreatedAt),
		UpdatedAt:    formatTime(product.UpdatedAt),
	}
	if payload.Sizes == nil {
		payload.Sizes = []string{}
	}
	for _, variant := range product.Variants {
		payload.Variants = append(payload.Variants, productVariantPayload{
			Color:       variant.Color,
			ColorCode:   variant.ColorCode,
			Images:      variant.Images,
			FrontImages: variant.FrontImages,
			BackImages:  variant.BackImages,
		})
	}
	return payload
}
