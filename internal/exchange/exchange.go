// Package exchange implements the venue adapters the engine trades through.
//
// Two capability sets are defined: LadderVenue for the resting-order ladder
// (Binance spot or Hyperliquid) and HedgeVenue for the perpetual-futures
// hedge (Binance USD-M perp). The Binance adapter implements both.
//
// Adapters own the venue credentials and the tick/step rounding boundary:
// callers pass full-precision prices and sizes, the adapter rounds to the
// symbol's precision on submission. Every request is rate-limited through
// per-category token buckets and retried on transient failure.
package exchange

import (
	"context"

	"ladder-mm/pkg/types"
)

// LadderVenue is the capability set the MM control loop drives each round.
type LadderVenue interface {
	// BatchPlaceLimit places a batch of limit orders and returns the venue
	// order ids of the successfully placed ones, in input order. Partial
	// failure is reported by a shorter result list, not an error.
	BatchPlaceLimit(ctx context.Context, symbol string, orders []types.OrderRequest, postOnly bool) ([]string, error)

	// BatchQueryFills maps each queried order id to its confirmed fill.
	// Orders with no fill (zero quote value) are absent from the result.
	BatchQueryFills(ctx context.Context, symbol string, oids []string) (map[string]types.Fill, error)

	// BatchCancel cancels the given orders. Canceling an unknown or already
	// filled order is not a failure.
	BatchCancel(ctx context.Context, symbol string, oids []string) error
}

// AllCanceler is implemented by venues with a native cancel-all endpoint.
// The control loop prefers it over BatchCancel when available. Cancel-all on
// an empty book is a no-op success.
type AllCanceler interface {
	CancelAll(ctx context.Context, symbol string) error
}

// HedgeVenue is the perpetual-futures capability set the hedger drives.
type HedgeVenue interface {
	// PlacePerpMarket fires a taker order and returns the average fill price.
	PlacePerpMarket(ctx context.Context, symbol string, side types.Side, size float64) (float64, error)

	// PlacePerpGTX works a post-only filler loop for up to maxTry rounds and
	// returns the unfilled remainder. A remainder at or below the fill
	// epsilon means complete success.
	PlacePerpGTX(ctx context.Context, symbol string, side types.Side, size float64, maxTry int) (float64, error)

	// PlacePerpTrigger rests a stop-market order and returns its id.
	PlacePerpTrigger(ctx context.Context, symbol string, side types.Side, size, triggerPrice float64) (string, error)

	// QueryPerpOrder fetches the status record for one order.
	QueryPerpOrder(ctx context.Context, symbol, oid string) (types.PerpOrder, error)

	// CancelPerpOrder cancels one order; reports whether the venue confirmed
	// the cancel. Unknown orders are not failures.
	CancelPerpOrder(ctx context.Context, symbol, oid string) (bool, error)
}
