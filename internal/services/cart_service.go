package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/customtees/api/internal/domain"
	"github.com/customtees/api/internal/repositories"
)

var (
	// ErrCartInvalidInput signals malformed cart mutations such as a zero quantity.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartItemNotFound means the referenced line does not exist in the cart.
	ErrCartItemNotFound = errors.New("cart: item not found")
	// ErrCartProductNotFound means the referenced catalog product does not exist.
	ErrCartProductNotFound = errors.New("cart: product not found")
	// ErrCartPayloadTooLarge means a design side's serialized payload exceeds the limit.
	ErrCartPayloadTooLarge = errors.New("cart: design payload too large")
	// ErrCartUnavailable indicates cart storage could not be reached.
	ErrCartUnavailable = errors.New("cart: storage unavailable")
)

// maxDesignPayloadBytes caps the serialized size of a single design side.
const maxDesignPayloadBytes = 15 << 20

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	pricing  PricingEngine
	idgen    func() string
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// CartServiceDeps wires collaborators for NewCartService.
type CartServiceDeps struct {
	Carts       repositories.CartRepository
	Products    repositories.ProductRepository
	Pricing     PricingEngine
	IDGenerator func() string
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
}

// NewCartService builds the cart manager.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service requires cart repository")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service requires product repository")
	}
	if deps.Pricing == nil {
		return nil, errors.New("cart service requires pricing engine")
	}
	idgen := deps.IDGenerator
	if idgen == nil {
		idgen = func() string { return "itm_" + ulid.Make().String() }
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		pricing:  deps.Pricing,
		idgen:    idgen,
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

// GetOrCreateCart returns the user's cart, or an empty one when nothing has
// been stored yet. The empty cart is not persisted until the first mutation.
func (s *cartService) GetOrCreateCart(ctx context.Context, userID string) (Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	cart, err := s.carts.GetCart(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{ID: uid, UserID: uid, Items: []CartItem{}}, nil
		}
		return Cart{}, s.mapStorageError(err)
	}
	return cart, nil
}

// AddItem prices the configured product and appends it as a new line. Two
// identical configurations produce two lines; nothing is merged.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if strings.TrimSpace(cmd.ProductID) == "" {
		return Cart{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity < 1 {
		return Cart{}, fmt.Errorf("%w: quantity must be at least 1", ErrCartInvalidInput)
	}
	if err := checkDesignPayloadSize(cmd.FrontDesign, "front"); err != nil {
		return Cart{}, err
	}
	if err := checkDesignPayloadSize(cmd.BackDesign, "back"); err != nil {
		return Cart{}, err
	}

	product, err := s.products.FindByID(ctx, strings.TrimSpace(cmd.ProductID))
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, fmt.Errorf("%w: %s", ErrCartProductNotFound, cmd.ProductID)
		}
		return Cart{}, s.mapStorageError(err)
	}

	breakdown, err := s.pricing.Price(ctx, PriceItemCommand{
		Product:     product,
		FrontDesign: cmd.FrontDesign,
		BackDesign:  cmd.BackDesign,
	})
	if err != nil {
		return Cart{}, err
	}

	cart, err := s.GetOrCreateCart(ctx, uid)
	if err != nil {
		return Cart{}, err
	}
	if cart.Currency == "" {
		cart.Currency = product.Currency
	}

	now := s.clock()
	item := CartItem{
		ID:            s.idgen(),
		ProductID:     product.ID,
		ProductName:   product.Name,
		ProductSlug:   product.Slug,
		SelectedColor: strings.TrimSpace(cmd.SelectedColor),
		SelectedSize:  strings.TrimSpace(cmd.SelectedSize),
		FrontDesign:   cmd.FrontDesign,
		BackDesign:    cmd.BackDesign,
		BasePrice:     breakdown.BasePrice,
		FrontCost:     breakdown.FrontCost,
		BackCost:      breakdown.BackCost,
		TotalPrice:    breakdown.Total,
		Quantity:      cmd.Quantity,
		Currency:      product.Currency,
		AddedAt:       now,
	}
	cart.Items = append(cart.Items, item)
	cart.UpdatedAt = now

	saved, err := s.carts.UpsertCart(ctx, cart)
	if err != nil {
		return Cart{}, s.mapStorageError(err)
	}

	s.logger(ctx, "cart_item_added", map[string]any{
		"userId":    uid,
		"itemId":    item.ID,
		"productId": product.ID,
		"quantity":  item.Quantity,
		"unitPrice": item.TotalPrice,
	})
	return saved, nil
}

// UpdateItemQuantity sets the quantity of an existing line. Quantities below
// one are rejected; removal goes through RemoveItem.
func (s *cartService) UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error) {
	uid := strings.TrimSpace(cmd.UserID)
	itemID := strings.TrimSpace(cmd.ItemID)
	if uid == "" || itemID == "" {
		return Cart{}, fmt.Errorf("%w: user id and item id are required", ErrCartInvalidInput)
	}
	if cmd.Quantity < 1 {
		return Cart{}, fmt.Errorf("%w: quantity must be at least 1", ErrCartInvalidInput)
	}

	cart, err := s.loadCart(ctx, uid)
	if err != nil {
		return Cart{}, err
	}

	found := false
	now := s.clock()
	for idx := range cart.Items {
		if cart.Items[idx].ID != itemID {
			continue
		}
		cart.Items[idx].Quantity = cmd.Quantity
		cart.Items[idx].UpdatedAt = &now
		found = true
		break
	}
	if !found {
		return Cart{}, fmt.Errorf("%w: %s", ErrCartItemNotFound, itemID)
	}

	saved, err := s.carts.ReplaceItems(ctx, uid, cart.Items)
	if err != nil {
		return Cart{}, s.mapStorageError(err)
	}
	s.logger(ctx, "cart_item_updated", map[string]any{"userId": uid, "itemId": itemID, "quantity": cmd.Quantity})
	return saved, nil
}

// RemoveItem deletes one line from the cart.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	uid := strings.TrimSpace(cmd.UserID)
	itemID := strings.TrimSpace(cmd.ItemID)
	if uid == "" || itemID == "" {
		return Cart{}, fmt.Errorf("%w: user id and item id are required", ErrCartInvalidInput)
	}

	cart, err := s.loadCart(ctx, uid)
	if err != nil {
		return Cart{}, err
	}

	remaining := make([]CartItem, 0, len(cart.Items))
	found := false
	for _, item := range cart.Items {
		if item.ID == itemID {
			found = true
			continue
		}
		remaining = append(remaining, item)
	}
	if !found {
		return Cart{}, fmt.Errorf("%w: %s", ErrCartItemNotFound, itemID)
	}

	saved, err := s.carts.ReplaceItems(ctx, uid, remaining)
	if err != nil {
		return Cart{}, s.mapStorageError(err)
	}
	s.logger(ctx, "cart_item_removed", map[string]any{"userId": uid, "itemId": itemID})
	return saved, nil
}

// ClearCart empties the user's cart on explicit request. Checkout clears the
// cart through its own transactional path, not through this method.
func (s *cartService) ClearCart(ctx context.Context, userID string) (Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	_, err := s.loadCart(ctx, uid)
	if err != nil {
		if errors.Is(err, ErrCartItemNotFound) {
			return Cart{ID: uid, UserID: uid, Items: []CartItem{}}, nil
		}
		return Cart{}, err
	}

	saved, err := s.carts.ReplaceItems(ctx, uid, nil)
	if err != nil {
		return Cart{}, s.mapStorageError(err)
	}
	s.logger(ctx, "cart_cleared", map[string]any{"userId": uid})
	return saved, nil
}

func (s *cartService) loadCart(ctx context.Context, userID string) (Cart, error) {
	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, fmt.Errorf("%w: cart is empty", ErrCartItemNotFound)
		}
		return Cart{}, s.mapStorageError(err)
	}
	return cart, nil
}

func (s *cartService) mapStorageError(err error) error {
	if isRepoUnavailable(err) {
		return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}
	return err
}

// checkDesignPayloadSize enforces the per-side serialized payload cap before
// anything is priced or persisted.
func checkDesignPayloadSize(side *domain.DesignSide, name string) error {
	if side == nil {
		return nil
	}
	encoded, err := json.Marshal(side)
	if err != nil {
		return fmt.Errorf("%w: %s design is not serializable", ErrCartInvalidInput, name)
	}
	if len(encoded) > maxDesignPayloadBytes {
		return fmt.Errorf("%w: %s design is %d bytes, limit is %d", ErrCartPayloadTooLarge, name, len(encoded), maxDesignPayloadBytes)
	}
	return nil
}
