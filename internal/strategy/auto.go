package strategy

import (
	"sync"

	"ladder-mm/pkg/types"
)

// Auto switches among the three fixed planners by measured effective
// volatility: calm markets get Curve (size near the mid), violent markets
// get BidAsk (size at the edges), and the middle band gets the uniform Spot
// split. The volatility monitor pushes updates via UpdateVol from its own
// task; ComputeBins is only ever called by the MM loop.
type Auto struct {
	spot   *Spot
	curve  *Curve
	bidAsk *BidAsk

	lowerThreshold float64
	upperThreshold float64

	volMu sync.RWMutex
	vol   float64

	// last is the planner that produced the most recent ladder; its state
	// carries the round's IQV move ratio.
	last Planner
}

// NewAuto creates the regime-switching planner. The initial volatility sits
// at the midpoint of the thresholds, selecting Spot until real measurements
// arrive.
func NewAuto(p Params, volLowerThreshold, volUpperThreshold float64) (*Auto, error) {
	spot, err := NewSpot(p)
	if err != nil {
		return nil, err
	}
	curve, err := NewCurve(p)
	if err != nil {
		return nil, err
	}
	bidAsk, err := NewBidAsk(p)
	if err != nil {
		return nil, err
	}
	return &Auto{
		spot:           spot,
		curve:          curve,
		bidAsk:         bidAsk,
		lowerThreshold: volLowerThreshold,
		upperThreshold: volUpperThreshold,
		vol:            (volLowerThreshold + volUpperThreshold) / 2,
		last:           spot,
	}, nil
}

func (a *Auto) Name() string { return "auto" }

// UpdateVol stores the latest effective volatility for the next round's
// regime selection.
func (a *Auto) UpdateVol(v float64) {
	a.volMu.Lock()
	a.vol = v
	a.volMu.Unlock()
}

// ComputeBins dispatches to the variant selected by the current volatility.
func (a *Auto) ComputeBins(price, inventory, quote float64) (types.Ladder, error) {
	a.volMu.RLock()
	v := a.vol
	a.volMu.RUnlock()

	var selected Planner
	switch {
	case v < a.lowerThreshold:
		selected = a.curve
	case v > a.upperThreshold:
		selected = a.bidAsk
	default:
		selected = a.spot
	}

	ladder, err := selected.ComputeBins(price, inventory, quote)
	if err != nil {
		return types.Ladder{}, err
	}
	a.last = selected
	return ladder, nil
}

// IQVMoveRatio reports the skew signal of the planner that produced the most
// recent ladder.
func (a *Auto) IQVMoveRatio() float64 { return a.last.IQVMoveRatio() }
