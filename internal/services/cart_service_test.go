package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	domain "github.com/customtees/api/internal/domain"
)

type stubCartRepository struct {
	upsertCart       func(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	getCart          func(ctx context.Context, userID string) (domain.Cart, error)
	replaceItems     func(ctx context.Context, userID string, items []domain.CartItem) (domain.Cart, error)
	clearIfUnchanged func(ctx context.Context, userID string, expectedUpdate time.Time) error
}

func (s *stubCartRepository) UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if s.upsertCart == nil {
		return cart, nil
	}
	return s.upsertCart(ctx, cart)
}

func (s *stubCartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if s.getCart == nil {
		return domain.Cart{}, &stubRepositoryError{notFound: true}
	}
	return s.getCart(ctx, userID)
}

func (s *stubCartRepository) ReplaceItems(ctx context.Context, userID string, items []domain.CartItem) (domain.Cart, error) {
	if s.replaceItems == nil {
		return domain.Cart{ID: userID, UserID: userID, Items: items}, nil
	}
	return s.replaceItems(ctx, userID, items)
}

func (s *stubCartRepository) ClearIfUnchanged(ctx context.Context, userID string, expectedUpdate time.Time) error {
	if s.clearIfUnchanged == nil {
		return nil
	}
	return s.clearIfUnchanged(ctx, userID, expectedUpdate)
}

type stubProductRepository struct {
	findByID   func(ctx context.Context, productID string) (domain.Product, error)
	findBySlug func(ctx context.Context, slug string) (domain.Product, error)
}

func (s *stubProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if s.findByID == nil {
		return domain.Product{}, &stubRepositoryError{notFound: true}
	}
	return s.findByID(ctx, productID)
}

func (s *stubProductRepository) FindBySlug(ctx context.Context, slug string) (domain.Product, error) {
	if s.findBySlug == nil {
		return domain.Product{}, &stubRepositoryError{notFound: true}
	}
	return s.findBySlug(ctx, slug)
}

var cartTestNow = time.Date(2025, time.April, 2, 9, 30, 0, 0, time.UTC)

func testProduct() domain.Product {
	return domain.Product{
		ID:           "prod-1",
		Name:         "Classic Tee",
		Slug:         "classic-tee",
		Price:        49900,
		Currency:     "INR",
		Customizable: true,
	}
}

func newTestCartService(t *testing.T, deps CartServiceDeps) CartService {
	t.Helper()
	if deps.Products == nil {
		deps.Products = &stubProductRepository{
			findByID: func(context.Context, string) (domain.Product, error) { return testProduct(), nil },
		}
	}
	if deps.Pricing == nil {
		deps.Pricing = newTestPricingEngine(t, 500)
	}
	if deps.Clock == nil {
		deps.Clock = fixedClock(cartTestNow)
	}
	if deps.IDGenerator == nil {
		counter := 0
		deps.IDGenerator = func() string {
			counter++
			return fmt.Sprintf("itm_%03d", counter)
		}
	}
	svc, err := NewCartService(deps)
	if err != nil {
		t.Fatalf("NewCartService returned error: %v", err)
	}
	return svc
}

func TestGetOrCreateCartReturnsEmptyWhenMissing(t *testing.T) {
	svc := newTestCartService(t, CartServiceDeps{Carts: &stubCartRepository{}})

	cart, err := svc.GetOrCreateCart(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetOrCreateCart returned error: %v", err)
	}
	if cart.UserID != "user-1" || len(cart.Items) != 0 {
		t.Fatalf("expected empty cart for user-1, got %+v", cart)
	}
}

func TestAddItemDenormalisesProductAndPrices(t *testing.T) {
	var saved domain.Cart
	carts := &stubCartRepository{
		upsertCart: func(_ context.Context, cart domain.Cart) (domain.Cart, error) {
			saved = cart
			return cart, nil
		},
	}
	svc := newTestCartService(t, CartServiceDeps{Carts: carts})

	front := &domain.DesignSide{Layers: []domain.DesignLayer{
		{ID: "txt", Kind: domain.LayerKindText, Width: 100, Height: 100, ScaleX: 1, ScaleY: 1},
	}}
	cart, err := svc.AddItem(context.Background(), AddCartItemCommand{
		UserID:      "user-1",
		ProductID:   "prod-1",
		FrontDesign: front,
		Quantity:    2,
	})
	if err != nil {
		t.Fatalf("AddItem returned error: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected one line, got %d", len(cart.Items))
	}
	item := saved.Items[0]
	if item.ProductName != "Classic Tee" || item.ProductSlug != "classic-tee" {
		t.Fatalf("product fields not denormalised: %+v", item)
	}
	if item.BasePrice != 49900 || item.FrontCost != 500 || item.BackCost != 0 {
		t.Fatalf("unexpected pricing: %+v", item)
	}
	if item.TotalPrice != 50400 {
		t.Fatalf("total must be base + sides, got %d", item.TotalPrice)
	}
	if item.Quantity != 2 {
		t.Fatalf("expected quantity 2, got %d", item.Quantity)
	}
}

func TestAddItemNeverDeduplicates(t *testing.T) {
	stored := domain.Cart{ID: "user-1", UserID: "user-1"}
	carts := &stubCartRepository{
		getCart: func(context.Context, string) (domain.Cart, error) { return stored, nil },
		upsertCart: func(_ context.Context, cart domain.Cart) (domain.Cart, error) {
			stored = cart
			return cart, nil
		},
	}
	svc := newTestCartService(t, CartServiceDeps{Carts: carts})

	cmd := AddCartItemCommand{UserID: "user-1", ProductID: "prod-1", Quantity: 1}
	if _, err := svc.AddItem(context.Background(), cmd); err != nil {
		t.Fatalf("first AddItem returned error: %v", err)
	}
	cart, err := svc.AddItem(context.Background(), cmd)
	if err != nil {
		t.Fatalf("second AddItem returned error: %v", err)
	}
	if len(cart.Items) != 2 {
		t.Fatalf("identical configurations must stay separate lines, got %d", len(cart.Items))
	}
	if cart.Items[0].ID == cart.Items[1].ID {
		t.Fatalf("lines must have distinct ids")
	}
}

func TestAddItemRejectsZeroQuantity(t *testing.T) {
	svc := newTestCartService(t, CartServiceDeps{Carts: &stubCartRepository{}})

	_, err := svc.AddItem(context.Background(), AddCartItemCommand{UserID: "user-1", ProductID: "prod-1", Quantity: 0})
	if !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput, got %v", err)
	}
}

func TestAddItemUnknownProduct(t *testing.T) {
	products := &stubProductRepository{
		findByID: func(context.Context, string) (domain.Product, error) {
			return domain.Product{}, &stubRepositoryError{notFound: true}
		},
	}
	svc := newTestCartService(t, CartServiceDeps{Carts: &stubCartRepository{}, Products: products})

	_, err := svc.AddItem(context.Background(), AddCartItemCommand{UserID: "user-1", ProductID: "ghost", Quantity: 1})
	if !errors.Is(err, ErrCartProductNotFound) {
		t.Fatalf("expected ErrCartProductNotFound, got %v", err)
	}
}

func TestAddItemRejectsOversizedDesignPayload(t *testing.T) {
	svc := newTestCartService(t, CartServiceDeps{Carts: &stubCartRepository{}})

	big := strings.Repeat("x", maxDesignPayloadBytes)
	side := &domain.DesignSide{DesignData: map[string]any{"raw": big}}
	_, err := svc.AddItem(context.Background(), AddCartItemCommand{
		UserID:      "user-1",
		ProductID:   "prod-1",
		FrontDesign: side,
		Quantity:    1,
	})
	if !errors.Is(err, ErrCartPayloadTooLarge) {
		t.Fatalf("expected ErrCartPayloadTooLarge, got %v", err)
	}
}

func TestUpdateItemQuantity(t *testing.T) {
	stored := domain.Cart{
		ID:     "user-1",
		UserID: "user-1",
		Items:  []domain.CartItem{{ID: "itm_1", ProductID: "prod-1", TotalPrice: 50000, Quantity: 1}},
	}
	carts := &stubCartRepository{
		getCart: func(context.Context, string) (domain.Cart, error) { return stored, nil },
		replaceItems: func(_ context.Context, userID string, items []domain.CartItem) (domain.Cart, error) {
			stored.Items = items
			return stored, nil
		},
	}
	svc := newTestCartService(t, CartServiceDeps{Carts: carts})

	cart, err := svc.UpdateItemQuantity(context.Background(), UpdateCartItemCommand{UserID: "user-1", ItemID: "itm_1", Quantity: 4})
	if err != nil {
		t.Fatalf("UpdateItemQuantity returned error: %v", err)
	}
	if cart.Items[0].Quantity != 4 {
		t.Fatalf("expected quantity 4, got %d", cart.Items[0].Quantity)
	}

	if _, err := svc.UpdateItemQuantity(context.Background(), UpdateCartItemCommand{UserID: "user-1", ItemID: "itm_1", Quantity: 0}); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput for zero quantity, got %v", err)
	}

	if _, err := svc.UpdateItemQuantity(context.Background(), UpdateCartItemCommand{UserID: "user-1", ItemID: "missing", Quantity: 2}); !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected ErrCartItemNotFound, got %v", err)
	}
}

func TestRemoveItem(t *testing.T) {
	stored := domain.Cart{
		ID:     "user-1",
		UserID: "user-1",
		Items: []domain.CartItem{
			{ID: "itm_1", ProductID: "prod-1", Quantity: 1},
			{ID: "itm_2", ProductID: "prod-1", Quantity: 1},
		},
	}
	carts := &stubCartRepository{
		getCart: func(context.Context, string) (domain.Cart, error) { return stored, nil },
		replaceItems: func(_ context.Context, userID string, items []domain.CartItem) (domain.Cart, error) {
			stored.Items = items
			return stored, nil
		},
	}
	svc := newTestCartService(t, CartServiceDeps{Carts: carts})

	cart, err := svc.RemoveItem(context.Background(), RemoveCartItemCommand{UserID: "user-1", ItemID: "itm_1"})
	if err != nil {
		t.Fatalf("RemoveItem returned error: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].ID != "itm_2" {
		t.Fatalf("unexpected remaining items: %+v", cart.Items)
	}

	if _, err := svc.RemoveItem(context.Background(), RemoveCartItemCommand{UserID: "user-1", ItemID: "itm_1"}); !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("removing an absent item must fail, got %v", err)
	}
}

func TestClearCart(t *testing.T) {
	stored := domain.Cart{
		ID:     "user-1",
		UserID: "user-1",
		Items:  []domain.CartItem{{ID: "itm_1", Quantity: 1}},
	}
	cleared := false
	carts := &stubCartRepository{
		getCart: func(context.Context, string) (domain.Cart, error) { return stored, nil },
		replaceItems: func(_ context.Context, userID string, items []domain.CartItem) (domain.Cart, error) {
			cleared = true
			stored.Items = items
			return stored, nil
		},
	}
	svc := newTestCartService(t, CartServiceDeps{Carts: carts})

	cart, err := svc.ClearCart(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ClearCart returned error: %v", err)
	}
	if !cleared || len(cart.Items) != 0 {
		t.Fatalf("expected emptied cart, got %+v", cart)
	}
}
