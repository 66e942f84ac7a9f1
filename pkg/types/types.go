// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the engine — order sides, ladder
// bins, depth snapshots, fills, and perp order records. It has no dependencies
// on internal packages, so it can be imported by any layer.
package types

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of an order: BUY or SELL.
type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == BUY {
		return SELL
	}
	return BUY
}

// Perp order lifecycle states as reported by the hedge venue.
const (
	OrderStatusNew      = "NEW"
	OrderStatusFilled   = "FILLED"
	OrderStatusCanceled = "CANCELED"
	OrderStatusExpired  = "EXPIRED"
)

// ————————————————————————————————————————————————————————————————————————
// Symbols
// ————————————————————————————————————————————————————————————————————————

// Symbol is the venue-facing description of one trading pair. TickDecimals
// and StepDecimals are the price and quantity precisions the venue accepts;
// all planning happens at full float precision and rounding to these
// precisions happens only at the adapter boundary.
type Symbol struct {
	Base         string // underlying asset, e.g. "SUI"
	Quote        string // quote asset, e.g. "USDT"
	TickDecimals int    // price precision (decimal places)
	StepDecimals int    // quantity precision (decimal places)
}

// Pair returns the concatenated BASEQUOTE form used by Binance.
func (s Symbol) Pair() string { return s.Base + s.Quote }

// Coin returns the bare base-asset form used by Hyperliquid.
func (s Symbol) Coin() string { return s.Base }

// ————————————————————————————————————————————————————————————————————————
// Ladder
// ————————————————————————————————————————————————————————————————————————

// Bin is a single resting-order level of the ladder: a price and the size to
// quote there. Sizes are in base-asset units.
type Bin struct {
	Price float64
	Size  float64
}

// Ladder is the two-sided set of bins produced by a planner for one MM round.
// Bids are ordered descending in price (closest to mid first), asks ascending.
type Ladder struct {
	Bids []Bin
	Asks []Bin
}

// Empty reports whether the ladder carries no bins on either side.
func (l Ladder) Empty() bool { return len(l.Bids) == 0 && len(l.Asks) == 0 }

// Interleave flattens the ladder into order requests in the emit order the
// control loop sends to the venue: SELL ask_0, BUY bid_0, SELL ask_1, … with
// the shorter side simply running out. The result is truncated to limit.
func (l Ladder) Interleave(limit int) []OrderRequest {
	n := len(l.Bids)
	if len(l.Asks) > n {
		n = len(l.Asks)
	}
	orders := make([]OrderRequest, 0, 2*n)
	for i := 0; i < n; i++ {
		if i < len(l.Asks) {
			orders = append(orders, OrderRequest{Side: SELL, Size: l.Asks[i].Size, Price: l.Asks[i].Price})
		}
		if i < len(l.Bids) {
			orders = append(orders, OrderRequest{Side: BUY, Size: l.Bids[i].Size, Price: l.Bids[i].Price})
		}
		if len(orders) >= limit {
			break
		}
	}
	if len(orders) > limit {
		orders = orders[:limit]
	}
	return orders
}

// ————————————————————————————————————————————————————————————————————————
// Orders and fills
// ————————————————————————————————————————————————————————————————————————

// OrderRequest is the high-level limit order the runner hands to the venue
// adapter. Price and size are at full precision; the adapter rounds them to
// the symbol's tick/step before submission.
type OrderRequest struct {
	Side  Side
	Size  float64
	Price float64
}

// Fill is one confirmed execution reported by the fill query. QuoteSize is
// the quote-asset value exchanged (fees already netted where the venue
// reports them that way).
type Fill struct {
	OrderID   string
	Side      Side
	Size      float64
	QuoteSize float64
}

// PerpOrder is the status record for a single perpetual-futures order.
type PerpOrder struct {
	OrderID     string
	Status      string // NEW, FILLED, CANCELED, ...
	Side        Side
	ExecutedQty float64
	AvgPrice    float64
}

// ————————————————————————————————————————————————————————————————————————
// Market data
// ————————————————————————————————————————————————————————————————————————

// PriceLevel is a single bid or ask level of the top-of-book snapshot.
type PriceLevel struct {
	Price float64
	Size  float64
}

// DepthSnapshot is a point-in-time top-N view of the order book for the
// trading symbol, maintained by the live feed.
type DepthSnapshot struct {
	Bids []PriceLevel // sorted descending by price (best bid first)
	Asks []PriceLevel // sorted ascending by price (best ask first)
}

// Mid returns (bestBid+bestAsk)/2. Returns false if either side is empty.
func (d DepthSnapshot) Mid() (float64, bool) {
	if len(d.Bids) == 0 || len(d.Asks) == 0 {
		return 0, false
	}
	return (d.Bids[0].Price + d.Asks[0].Price) / 2, true
}
