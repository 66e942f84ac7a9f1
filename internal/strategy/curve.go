package strategy

import (
	"math"

	"ladder-mm/pkg/types"
)

// defaultDecayRate is the geometric decay applied per bin away from the mid.
const defaultDecayRate = 0.95

// Curve distributes size with geometric decay away from the mid, normalised
// so that the full ladder exactly exhausts the available balance on each
// side: the bin nearest the mid is largest and each further bin shrinks by
// the decay ratio.
type Curve struct {
	*base
	decayRate float64
}

// NewCurve creates the geometric-decay planner with the default decay rate.
func NewCurve(p Params) (*Curve, error) {
	b, err := newBase(p)
	if err != nil {
		return nil, err
	}
	return &Curve{base: b, decayRate: defaultDecayRate}, nil
}

func (c *Curve) Name() string { return "curve" }

// ComputeBins sizes bin i as maxSize·decay^i where maxSize is chosen so the
// decay series sums to the side's full balance.
func (c *Curve) ComputeBins(price, inventory, quote float64) (types.Ladder, error) {
	if err := c.updatePortfolio(price, inventory, quote); err != nil {
		return types.Ladder{}, err
	}

	buyMul := c.buySizeMultiplier()
	sellMul := c.sellSizeMultiplier()

	bidDecaySum := geometricSum(c.decayRate, c.bidBinNums)
	askDecaySum := geometricSum(c.decayRate, c.askBinNums)

	var maxBid, maxAsk float64
	if bidDecaySum > 0 {
		maxBid = (c.curQuote / price) / bidDecaySum
	}
	if askDecaySum > 0 {
		maxAsk = c.curInventory / askDecaySum
	}

	return types.Ladder{
		Bids: c.buildSide(types.BUY, price, c.bidBinNums, buyMul, func(i int, _ float64) float64 {
			return maxBid * math.Pow(c.decayRate, float64(i))
		}),
		Asks: c.buildSide(types.SELL, price, c.askBinNums, sellMul, func(i int, _ float64) float64 {
			return maxAsk * math.Pow(c.decayRate, float64(i))
		}),
	}, nil
}

// geometricSum returns 1 + r + r² + … + r^(n-1).
func geometricSum(r float64, n int) float64 {
	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Pow(r, float64(i))
	}
	return sum
}
