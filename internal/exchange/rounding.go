package exchange

import (
	"github.com/shopspring/decimal"

	"ladder-mm/pkg/types"
)

// Planning happens at full float precision; only here, at the venue
// boundary, are prices and sizes snapped to the symbol's tick and step.
// decimal avoids the float-formatting drift that gets orders rejected.

// roundPrice formats a price at the symbol's tick precision.
func roundPrice(s types.Symbol, price float64) string {
	return decimal.NewFromFloat(price).Round(int32(s.TickDecimals)).String()
}

// roundSize formats a quantity at the symbol's step precision, rounding
// down so the order never exceeds the intended size.
func roundSize(s types.Symbol, size float64) string {
	return decimal.NewFromFloat(size).RoundFloor(int32(s.StepDecimals)).String()
}

// sizeValue returns the step-rounded quantity as a float for arithmetic
// (e.g. the GTX unfilled computation).
func sizeValue(s types.Symbol, size float64) float64 {
	v, _ := decimal.NewFromFloat(size).RoundFloor(int32(s.StepDecimals)).Float64()
	return v
}
