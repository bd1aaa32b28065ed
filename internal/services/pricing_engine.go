package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	domain "github.com/customtees/api/internal/domain"
)

var (
	// ErrPricingInvalidInput signals malformed pricing input such as non-finite layer dimensions.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
)

// referenceArea is the layer area, in square layout pixels, that one unit of
// the customization rate covers.
const referenceArea = 10000.0

// AreaPricingEngine prices a configured product as the catalog base price plus
// a per-side customization cost proportional to the printed area. Base-art
// layers never contribute; a side with only base layers costs nothing.
type AreaPricingEngine struct {
	ratePerArea int64
}

// AreaPricingEngineDeps configures the engine.
type AreaPricingEngineDeps struct {
	// RatePerArea is the customization cost, in minor currency units, per
	// 10,000 square layout pixels of printed area.
	RatePerArea int64
}

// NewAreaPricingEngine constructs a pricing engine.
func NewAreaPricingEngine(deps AreaPricingEngineDeps) (*AreaPricingEngine, error) {
	if deps.RatePerArea < 0 {
		return nil, errors.New("pricing engine: rate per area cannot be negative")
	}
	return &AreaPricingEngine{ratePerArea: deps.RatePerArea}, nil
}

// Price computes the breakdown for one configured product. It reads nothing
// beyond its input and performs no I/O, so identical input always yields an
// identical breakdown.
func (e *AreaPricingEngine) Price(ctx context.Context, cmd PriceItemCommand) (PriceBreakdown, error) {
	if e == nil {
		return PriceBreakdown{}, errors.New("pricing engine not initialised")
	}
	if cmd.Product.Price < 0 {
		return PriceBreakdown{}, fmt.Errorf("%w: product base price cannot be negative", ErrPricingInvalidInput)
	}

	frontCost, err := e.sideCost(cmd.FrontDesign, "front")
	if err != nil {
		return PriceBreakdown{}, err
	}
	backCost, err := e.sideCost(cmd.BackDesign, "back")
	if err != nil {
		return PriceBreakdown{}, err
	}

	return PriceBreakdown{
		BasePrice: cmd.Product.Price,
		FrontCost: frontCost,
		BackCost:  backCost,
		Total:     cmd.Product.Price + frontCost + backCost,
	}, nil
}

func (e *AreaPricingEngine) sideCost(side *DesignSide, name string) (int64, error) {
	if side == nil || len(side.Layers) == 0 {
		return 0, nil
	}

	var area float64
	for _, layer := range side.Layers {
		if layer.Kind == domain.LayerKindBase {
			continue
		}
		w, h := layer.Width, layer.Height
		if layer.ScaleX != 0 {
			w *= layer.ScaleX
		}
		if layer.ScaleY != 0 {
			h *= layer.ScaleY
		}
		if math.IsNaN(w) || math.IsNaN(h) || math.IsInf(w, 0) || math.IsInf(h, 0) {
			return 0, fmt.Errorf("%w: %s layer %s has invalid dimensions", ErrPricingInvalidInput, name, layer.ID)
		}
		// A negative effective dimension (inverted scale) occupies no area.
		if w <= 0 || h <= 0 {
			continue
		}
		area += w * h
	}

	if area <= 0 {
		return 0, nil
	}
	cost := math.Ceil(area/referenceArea) * float64(e.ratePerArea)
	if cost > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %s side cost overflow", ErrPricingInvalidInput, name)
	}
	return int64(cost), nil
}

var _ PricingEngine = (*AreaPricingEngine)(nil)
