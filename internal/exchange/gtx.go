// gtx.go implements the post-only filler protocol the active hedger uses:
// repeatedly rest a GTX limit at the touch, wait, cancel, measure the
// position delta, and re-quote the remainder. Makes liquidity, never takes,
// at the cost of latency.
package exchange

import (
	"context"
	"time"

	"ladder-mm/pkg/types"
)

var (
	// gtxPlaceWait is how long a resting GTX order is given to fill before
	// it is cancelled and re-quoted. gtxRetryWait paces the loop between
	// attempts. Variables so tests can compress the timeline.
	gtxPlaceWait = 3 * time.Second
	gtxRetryWait = time.Second
)

// gtxFillEpsilon is the remainder below which the target counts as filled.
const gtxFillEpsilon = 1e-9

// PlacePerpGTX works the post-only filler loop for up to maxTry rounds and
// returns the unfilled remainder. The fill amount is measured from the
// signed position delta, not from order receipts, so partial fills during
// the resting window are captured exactly.
func (b *Binance) PlacePerpGTX(ctx context.Context, symbol string, side types.Side, size float64, maxTry int) (float64, error) {
	sym := b.symbol(symbol)
	qty := sizeValue(sym, size)
	unfilled := qty

	initPos, err := b.positionAmtRetry(ctx, symbol)
	if err != nil {
		return unfilled, err
	}

	for tries := 1; tries <= maxTry; tries++ {
		price, err := b.bestQuote(ctx, symbol, side)
		if err != nil {
			b.logger.Warn("gtx quote read failed", "error", err, "try", tries)
			if err := sleep(ctx, gtxRetryWait); err != nil {
				return unfilled, err
			}
		} else {
			oid, err := b.placePerpLimitGTX(ctx, symbol, side, unfilled, price)
			if err != nil {
				b.logger.Warn("gtx place failed", "error", err, "try", tries)
				if err := sleep(ctx, gtxRetryWait); err != nil {
					return unfilled, err
				}
			} else {
				if err := sleep(ctx, gtxPlaceWait); err != nil {
					return unfilled, err
				}
				// Cancel whatever is left resting; the position delta below
				// is the source of truth for what filled.
				if _, err := b.CancelPerpOrder(ctx, symbol, oid); err != nil {
					b.logger.Warn("gtx cancel failed", "oid", oid, "error", err)
				}
			}
		}

		curPos, err := b.positionAmtRetry(ctx, symbol)
		if err != nil {
			return unfilled, err
		}
		if side == types.BUY {
			unfilled = qty - (curPos - initPos)
		} else {
			unfilled = qty - (initPos - curPos)
		}

		if unfilled <= gtxFillEpsilon {
			b.logger.Info("gtx target filled", "symbol", symbol, "side", side, "qty", qty, "tries", tries)
			return 0, nil
		}
		b.logger.Debug("gtx round complete",
			"try", tries, "filled", qty-unfilled, "target", qty)

		if err := sleep(ctx, gtxRetryWait); err != nil {
			return unfilled, err
		}
	}

	b.logger.Warn("gtx exhausted retries",
		"symbol", symbol, "side", side, "filled", qty-unfilled, "target", qty)
	return unfilled, nil
}
