// Package strategy implements the ladder planners that quote a two-sided set
// of resting limit orders ("bins") around the current price.
//
// Four variants share the same portfolio math and inventory-skew kernels and
// differ only in how size is distributed across the ladder:
//
//   - Spot:   uniform split of available balance across the side's bins.
//   - Curve:  geometric decay concentrating size near the mid.
//   - BidAsk: inverse-geometric weights concentrating size at the far ends.
//   - Auto:   regime switch over the three by measured effective volatility.
//
// The skew signal is the IQV move ratio: the fractional drift of the
// inventory-to-total-value ratio from its initial value. As the portfolio
// drifts long, buy sizes scale down linearly to zero; as it drifts short,
// sell sizes do. Planners never round prices or sizes — rounding to the
// venue's tick/step happens at the adapter boundary.
package strategy

import (
	"fmt"
	"math"

	"ladder-mm/pkg/types"
)

// Params configures a ladder planner. Built once from config; read-only
// afterwards.
type Params struct {
	UnderlyingAsset string
	QuoteAsset      string

	InitPrice           float64
	PriceUpPctLimit     float64 // e.g. 0.02 = asks reach +2% above mid
	PriceDownPctLimit   float64
	BinStep             int // price step between bins, basis points
	InitInventoryAmount float64
	InitQuoteAmount     float64

	LiveOrderNums int
	MinOrderSize  float64
	MaxOrderSize  float64

	IQVUpLimit          float64 // hard cutoff: stop buying above this move
	IQVDownLimit        float64 // hard cutoff: stop selling below this move
	InventoryRBIQVRatio float64 // onset of linear buy-size decay
	QuoteRBIQVRatio     float64 // onset of linear sell-size decay
}

// Planner is the contract the control loop drives each round.
type Planner interface {
	// ComputeBins refreshes portfolio-derived state from the given price,
	// inventory, and quote balances and returns the ladder for this round.
	ComputeBins(price, inventory, quote float64) (types.Ladder, error)

	// UpdateVol pushes the latest effective volatility. Only Auto reacts;
	// the fixed variants ignore it.
	UpdateVol(v float64)

	// IQVMoveRatio returns the skew signal from the most recent ComputeBins.
	IQVMoveRatio() float64

	Name() string
}

// base carries the portfolio accounting and bin geometry shared by all
// variants. It is owned by the task that calls ComputeBins and is not
// self-locking.
type base struct {
	params     Params
	askBinNums int
	bidBinNums int

	initIQVRatio float64
	midPrice     float64
	curInventory float64
	curQuote     float64
	iqvRatio     float64
	iqvMoveRatio float64
}

func newBase(p Params) (*base, error) {
	if p.InitPrice <= 0 {
		return nil, fmt.Errorf("init price must be positive, got %v", p.InitPrice)
	}
	if p.BinStep <= 0 {
		return nil, fmt.Errorf("bin step must be positive, got %d", p.BinStep)
	}
	initValue := p.InitInventoryAmount*p.InitPrice + p.InitQuoteAmount
	if initValue <= 0 {
		return nil, fmt.Errorf("initial portfolio value must be positive")
	}
	initIQV := p.InitInventoryAmount * p.InitPrice / initValue
	if initIQV <= 0 {
		return nil, fmt.Errorf("initial IQV ratio must be positive (need nonzero initial inventory)")
	}

	stepRatio := float64(p.BinStep) / 10000
	return &base{
		params:       p,
		askBinNums:   int(p.PriceUpPctLimit / stepRatio),
		bidBinNums:   int(p.PriceDownPctLimit / stepRatio),
		initIQVRatio: initIQV,
		midPrice:     p.InitPrice,
		curInventory: p.InitInventoryAmount,
		curQuote:     p.InitQuoteAmount,
		iqvRatio:     initIQV,
	}, nil
}

// updatePortfolio refreshes mid price, balances, and the IQV ratios. A
// non-positive or NaN price is fatal for the round.
func (b *base) updatePortfolio(price, inventory, quote float64) error {
	if price <= 0 || math.IsNaN(price) {
		return fmt.Errorf("price must be positive, got %v", price)
	}
	if math.IsNaN(inventory) || math.IsNaN(quote) {
		return fmt.Errorf("inventory/quote must be numbers, got %v/%v", inventory, quote)
	}

	b.midPrice = price
	b.curInventory = inventory
	b.curQuote = quote

	total := inventory*price + quote
	if total == 0 {
		b.iqvRatio = 0
	} else {
		b.iqvRatio = inventory * price / total
	}
	b.iqvMoveRatio = (b.iqvRatio - b.initIQVRatio) / b.initIQVRatio
	if math.IsNaN(b.iqvMoveRatio) {
		return fmt.Errorf("IQV move ratio is NaN (iqv=%v init=%v)", b.iqvRatio, b.initIQVRatio)
	}
	return nil
}

// buySizeMultiplier cuts buy exposure as the portfolio drifts long.
// 1 below the rebalance onset, 0 at or beyond the hard cutoff, linear
// in between.
func (b *base) buySizeMultiplier() float64 {
	switch {
	case b.iqvMoveRatio < b.params.InventoryRBIQVRatio:
		return 1
	case b.iqvMoveRatio >= b.params.IQVUpLimit:
		return 0
	default:
		return 1 - (b.iqvMoveRatio-b.params.InventoryRBIQVRatio)/(b.params.IQVUpLimit-b.params.InventoryRBIQVRatio)
	}
}

// sellSizeMultiplier is the symmetric kernel on the short side.
func (b *base) sellSizeMultiplier() float64 {
	switch {
	case b.iqvMoveRatio > b.params.QuoteRBIQVRatio:
		return 1
	case b.iqvMoveRatio <= b.params.IQVDownLimit:
		return 0
	default:
		return 1 - (b.params.QuoteRBIQVRatio-b.iqvMoveRatio)/(b.params.QuoteRBIQVRatio-b.params.IQVDownLimit)
	}
}

// sideLimit is the per-side bin cap.
func (b *base) sideLimit() int { return b.params.LiveOrderNums / 2 }

// buildSide enumerates bins for one side. sizeFor returns the unscaled size
// for bin i (0-indexed) at the given bin price; it is multiplied by mul and
// clamped to [min, max]. Non-positive sizes after scaling skip the bin.
// Enumeration stops once the side reaches the live-order cap.
func (b *base) buildSide(side types.Side, price float64, binNums int, mul float64, sizeFor func(i int, binPrice float64) float64) []types.Bin {
	stepRatio := float64(b.params.BinStep) / 10000
	limit := b.sideLimit()

	bins := make([]types.Bin, 0, binNums)
	for i := 0; i < binNums; i++ {
		offset := float64(i+1) * stepRatio * price

		binPrice := price - offset
		if side == types.SELL {
			binPrice = price + offset
		}

		raw := sizeFor(i, binPrice) * mul
		if raw <= 0 || math.IsNaN(raw) {
			continue
		}
		size := math.Min(math.Max(raw, b.params.MinOrderSize), b.params.MaxOrderSize)
		if size <= 0 {
			continue
		}

		bins = append(bins, types.Bin{Price: binPrice, Size: size})
		if len(bins) >= limit {
			break
		}
	}
	return bins
}

// IQVMoveRatio returns the skew signal from the most recent update.
func (b *base) IQVMoveRatio() float64 { return b.iqvMoveRatio }

// UpdateVol is a no-op for fixed variants.
func (b *base) UpdateVol(float64) {}
