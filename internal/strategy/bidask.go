package strategy

import (
	"math"

	"ladder-mm/pkg/types"
)

// bidAskEpsilon guards the inverse weights against division blow-up.
const bidAskEpsilon = 1e-6

// BidAsk concentrates liquidity at the far ends of the ladder: bin weights
// grow as the inverse of the decay series, so the outermost bins quote the
// largest size. Useful in fast markets where fills near the mid are toxic.
type BidAsk struct {
	*base
	decayRate float64
}

// NewBidAsk creates the inverse-geometric planner.
func NewBidAsk(p Params) (*BidAsk, error) {
	b, err := newBase(p)
	if err != nil {
		return nil, err
	}
	return &BidAsk{base: b, decayRate: defaultDecayRate}, nil
}

func (ba *BidAsk) Name() string { return "bid_ask" }

// ComputeBins weights bin i by 1/(decay^(i+1)+ε), normalised to 1 across the
// side. Bid sizes spend the quote balance at each bin's own price; ask sizes
// spend inventory directly.
func (ba *BidAsk) ComputeBins(price, inventory, quote float64) (types.Ladder, error) {
	if err := ba.updatePortfolio(price, inventory, quote); err != nil {
		return types.Ladder{}, err
	}

	buyMul := ba.buySizeMultiplier()
	sellMul := ba.sellSizeMultiplier()

	bidWeightSum := inverseWeightSum(ba.decayRate, ba.bidBinNums)
	askWeightSum := inverseWeightSum(ba.decayRate, ba.askBinNums)

	return types.Ladder{
		Bids: ba.buildSide(types.BUY, price, ba.bidBinNums, buyMul, func(i int, binPrice float64) float64 {
			if bidWeightSum == 0 || binPrice <= 0 {
				return 0
			}
			weight := inverseWeight(ba.decayRate, i) / bidWeightSum
			return ba.curQuote * weight / binPrice
		}),
		Asks: ba.buildSide(types.SELL, price, ba.askBinNums, sellMul, func(i int, _ float64) float64 {
			if askWeightSum == 0 {
				return 0
			}
			weight := inverseWeight(ba.decayRate, i) / askWeightSum
			return ba.curInventory * weight
		}),
	}, nil
}

func inverseWeight(r float64, i int) float64 {
	return 1 / (math.Pow(r, float64(i+1)) + bidAskEpsilon)
}

func inverseWeightSum(r float64, n int) float64 {
	var sum float64
	for i := 0; i < n; i++ {
		sum += inverseWeight(r, i)
	}
	return sum
}
