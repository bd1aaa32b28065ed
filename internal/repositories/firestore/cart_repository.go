package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/customtees/api/internal/domain"
	pfirestore "github.com/customtees/api/internal/platform/firestore"
	"github.com/customtees/api/internal/repositories"
)

const cartCollection = "carts"

// CartRepository persists one cart document per user, items embedded. The
// Firestore document update time doubles as the optimistic concurrency token.
type CartRepository struct {
	base     *pfirestore.BaseRepository[cartDocument]
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil)
	return &CartRepository{base: base, provider: provider}, nil
}

// UpsertCart writes the full cart document keyed by the user ID.
func (r *CartRepository) UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(cart.UserID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc := encodeCart(cart)
	result, err := r.base.Set(ctx, uid, doc)
	if err != nil {
		return domain.Cart{}, err
	}

	saved := decodeCart(uid, doc)
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// GetCart loads the cart for the given user ID.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}

	cart := decodeCart(doc.ID, doc.Data)
	if !doc.UpdateTime.IsZero() {
		cart.UpdatedAt = doc.UpdateTime
	}
	return cart, nil
}

// ReplaceItems swaps the item list and derived subtotal on the cart document.
func (r *CartRepository) ReplaceItems(ctx context.Context, userID string, items []domain.CartItem) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	docs := make([]cartItemDocument, 0, len(items))
	var subtotal int64
	for _, item := range items {
		docs = append(docs, encodeCartItem(item))
		subtotal += item.TotalPrice * int64(item.Quantity)
	}

	now := time.Now().UTC()
	result, err := r.base.Update(ctx, uid, []firestore.Update{
		{Path: "items", Value: docs},
		{Path: "subtotal", Value: subtotal},
		{Path: "updatedAt", Value: now},
	})
	if err != nil {
		return domain.Cart{}, err
	}

	cart, err := r.GetCart(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}
	cart.UpdatedAt = result.UpdateTime
	return cart, nil
}

// ClearIfUnchanged empties the cart only when the stored document has not been
// modified since expectedUpdate. Joins an ambient transaction when one is
// present on the context.
func (r *CartRepository) ClearIfUnchanged(ctx context.Context, userID string, expectedUpdate time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return errors.New("cart repository: user id is required")
	}
	if expectedUpdate.IsZero() {
		return errors.New("cart repository: expected update time is required")
	}

	updates := []firestore.Update{
		{Path: "items", Value: []cartItemDocument{}},
		{Path: "subtotal", Value: int64(0)},
		{Path: "updatedAt", Value: time.Now().UTC()},
	}
	precondition := firestore.LastUpdateTime(expectedUpdate.UTC())

	if tx, ok := txFromContext(ctx); ok {
		ref, err := r.base.DocumentRef(ctx, uid)
		if err != nil {
			return err
		}
		return pfirestore.WrapError("carts.clear", tx.Update(ref, updates, precondition))
	}

	_, err := r.base.Update(ctx, uid, updates, precondition)
	return err
}

func encodeCart(cart domain.Cart) cartDocument {
	now := time.Now().UTC()
	updatedAt := cart.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = now
	}

	items := make([]cartItemDocument, 0, len(cart.Items))
	var subtotal int64
	for _, item := range cart.Items {
		items = append(items, encodeCartItem(item))
		subtotal += item.TotalPrice * int64(item.Quantity)
	}

	return cartDocument{
		Currency:  strings.ToUpper(strings.TrimSpace(cart.Currency)),
		Items:     items,
		Subtotal:  subtotal,
		UpdatedAt: updatedAt,
	}
}

func decodeCart(userID string, doc cartDocument) domain.Cart {
	items := make([]domain.CartItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, decodeCartItem(item))
	}
	return domain.Cart{
		ID:        userID,
		UserID:    userID,
		Currency:  strings.ToUpper(strings.TrimSpace(doc.Currency)),
		Items:     items,
		Subtotal:  doc.Subtotal,
		UpdatedAt: doc.UpdatedAt,
	}
}

func encodeCartItem(item domain.CartItem) cartItemDocument {
	return cartItemDocument{
		ID:            item.ID,
		ProductID:     item.ProductID,
		ProductName:   item.ProductName,
		ProductSlug:   item.ProductSlug,
		SelectedColor: item.SelectedColor,
		SelectedSize:  item.SelectedSize,
		FrontDesign:   encodeDesignSide(item.FrontDesign),
		BackDesign:    encodeDesignSide(item.BackDesign),
		BasePrice:     item.BasePrice,
		FrontCost:     item.FrontCost,
		BackCost:      item.BackCost,
		TotalPrice:    item.TotalPrice,
		Quantity:      item.Quantity,
		Currency:      item.Currency,
		AddedAt:       item.AddedAt,
		UpdatedAt:     item.UpdatedAt,
	}
}

func decodeCartItem(doc cartItemDocument) domain.CartItem {
	return domain.CartItem{
		ID:            doc.ID,
		ProductID:     doc.ProductID,
		ProductName:   doc.ProductName,
		ProductSlug:   doc.ProductSlug,
		SelectedColor: doc.SelectedColor,
		SelectedSize:  doc.SelectedSize,
		FrontDesign:   decodeDesignSide(doc.FrontDesign),
		BackDesign:    decodeDesignSide(doc.BackDesign),
		BasePrice:     doc.BasePrice,
		FrontCost:     doc.FrontCost,
		BackCost:      doc.BackCost,
		TotalPrice:    doc.TotalPrice,
		Quantity:      doc.Quantity,
		Currency:      doc.Currency,
		AddedAt:       doc.AddedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
}

func encodeDesignSide(side *domain.DesignSide) *designSideDocument {
	if side == nil {
		return nil
	}
	layers := make([]designLayerDocument, 0, len(side.Layers))
	for _, layer := range side.Layers {
		layers = append(layers, designLayerDocument{
			ID:       layer.ID,
			Kind:     string(layer.Kind),
			X:        layer.X,
			Y:        layer.Y,
			Width:    layer.Width,
			Height:   layer.Height,
			ScaleX:   layer.ScaleX,
			ScaleY:   layer.ScaleY,
			Rotation: layer.Rotation,
			Payload:  cloneAnyMap(layer.Payload),
		})
	}
	return &designSideDocument{
		Layers:       layers,
		PreviewImage: side.PreviewImage,
		DesignData:   cloneAnyMap(side.DesignData),
	}
}

func decodeDesignSide(doc *designSideDocument) *domain.DesignSide {
	if doc == nil {
		return nil
	}
	layers := make([]domain.DesignLayer, 0, len(doc.Layers))
	for _, layer := range doc.Layers {
		layers = append(layers, domain.DesignLayer{
			ID:       layer.ID,
			Kind:     domain.LayerKind(layer.Kind),
			X:        layer.X,
			Y:        layer.Y,
			Width:    layer.Width,
			Height:   layer.Height,
			ScaleX:   layer.ScaleX,
			ScaleY:   layer.ScaleY,
			Rotation: layer.Rotation,
			Payload:  cloneAnyMap(layer.Payload),
		})
	}
	return &domain.DesignSide{
		Layers:       layers,
		PreviewImage: doc.PreviewImage,
		DesignData:   cloneAnyMap(doc.DesignData),
	}
}

func cloneAnyMap(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

type cartDocument struct {
	Currency  string             `firestore:"currency"`
	Items     []cartItemDocument `firestore:"items"`
	Subtotal  int64              `firestore:"subtotal"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ID            string              `firestore:"id"`
	ProductID     string              `firestore:"productId"`
	ProductName   string              `firestore:"productName"`
	ProductSlug   string              `firestore:"productSlug"`
	SelectedColor string              `firestore:"selectedColor,omitempty"`
	SelectedSize  string              `firestore:"selectedSize,omitempty"`
	FrontDesign   *designSideDocument `firestore:"frontDesign,omitempty"`
	BackDesign    *designSideDocument `firestore:"backDesign,omitempty"`
	BasePrice     int64               `firestore:"basePrice"`
	FrontCost     int64               `firestore:"frontCost"`
	BackCost      int64               `firestore:"backCost"`
	TotalPrice    int64               `firestore:"totalPrice"`
	Quantity      int                 `firestore:"quantity"`
	Currency      string              `firestore:"currency"`
	AddedAt       time.Time           `firestore:"addedAt"`
	UpdatedAt     *time.Time          `firestore:"updatedAt,omitempty"`
}

type designSideDocument struct {
	Layers       []designLayerDocument `firestore:"layers"`
	PreviewImage string                `firestore:"previewImage,omitempty"`
	DesignData   map[string]any        `firestore:"designData,omitempty"`
}

type designLayerDocument struct {
	ID       string         `firestore:"id"`
	Kind     string         `firestore:"kind"`
	X        float64        `firestore:"x"`
	Y        float64        `firestore:"y"`
	Width    float64        `firestore:"width"`
	Height   float64        `firestore:"height"`
	ScaleX   float64        `firestore:"scaleX"`
	ScaleY   float64        `firestore:"scaleY"`
	Rotation float64        `firestore:"rotation"`
	Payload  map[string]any `firestore:"payload,omitempty"`
}

var _ repositories.CartRepository = (*CartRepository)(nil)
