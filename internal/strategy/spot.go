package strategy

import (
	"ladder-mm/pkg/types"
)

// Spot splits the available balance uniformly across each side's bins: every
// bid quotes the same size, every ask quotes the same size.
type Spot struct {
	*base
}

// NewSpot creates the uniform-split planner.
func NewSpot(p Params) (*Spot, error) {
	b, err := newBase(p)
	if err != nil {
		return nil, err
	}
	return &Spot{base: b}, nil
}

func (s *Spot) Name() string { return "spot" }

// ComputeBins quotes bidBinNums equal-sized bids funded by the quote balance
// and askBinNums equal-sized asks funded by inventory.
func (s *Spot) ComputeBins(price, inventory, quote float64) (types.Ladder, error) {
	if err := s.updatePortfolio(price, inventory, quote); err != nil {
		return types.Ladder{}, err
	}

	buyMul := s.buySizeMultiplier()
	sellMul := s.sellSizeMultiplier()

	var baseBid, baseAsk float64
	if s.bidBinNums > 0 {
		baseBid = (s.curQuote / price) / float64(s.bidBinNums)
	}
	if s.askBinNums > 0 {
		baseAsk = s.curInventory / float64(s.askBinNums)
	}

	return types.Ladder{
		Bids: s.buildSide(types.BUY, price, s.bidBinNums, buyMul, func(int, float64) float64 { return baseBid }),
		Asks: s.buildSide(types.SELL, price, s.askBinNums, sellMul, func(int, float64) float64 { return baseAsk }),
	}, nil
}
