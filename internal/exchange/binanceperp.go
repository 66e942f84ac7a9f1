// binanceperp.go implements the Binance USD-M futures surface of the
// adapter: the HedgeVenue capability set plus the internals the GTX filler
// loop needs (top-of-book quotes and signed position reads).
package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"ladder-mm/pkg/types"
)

const positionQueryRetries = 5

// perpOrder is the venue's futures order record.
type perpOrder struct {
	OrderID     int64  `json:"orderId"`
	Status      string `json:"status"`
	Side        string `json:"side"`
	ExecutedQty string `json:"executedQty"`
	AvgPrice    string `json:"avgPrice"`
	StopPrice   string `json:"stopPrice"`
	OrderType   string `json:"type"`
}

func (o perpOrder) toPerpOrder() types.PerpOrder {
	executed, _ := strconv.ParseFloat(o.ExecutedQty, 64)
	avg, _ := strconv.ParseFloat(o.AvgPrice, 64)
	return types.PerpOrder{
		OrderID:     strconv.FormatInt(o.OrderID, 10),
		Status:      o.Status,
		Side:        types.Side(o.Side),
		ExecutedQty: executed,
		AvgPrice:    avg,
	}
}

// placePerpOrder submits one futures order with the given extra parameters
// and returns the venue record.
func (b *Binance) placePerpOrder(ctx context.Context, symbol string, side types.Side, orderType string, extra url.Values) (perpOrder, error) {
	if err := b.rl.Order.Wait(ctx); err != nil {
		return perpOrder{}, err
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("type", orderType)
	for k, vs := range extra {
		for _, v := range vs {
			params.Set(k, v)
		}
	}

	var result perpOrder
	resp, err := b.signedRequest(ctx, b.perp, params).
		SetResult(&result).
		Post("/fapi/v1/order")
	if err != nil {
		return perpOrder{}, fmt.Errorf("place perp %s: %w", orderType, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return perpOrder{}, fmt.Errorf("place perp %s: status %d: %s", orderType, resp.StatusCode(), resp.String())
	}
	return result, nil
}

// PlacePerpMarket fires a taker order and reports the average fill price
// from a follow-up order query.
func (b *Binance) PlacePerpMarket(ctx context.Context, symbol string, side types.Side, size float64) (float64, error) {
	sym := b.symbol(symbol)
	extra := url.Values{}
	extra.Set("quantity", roundSize(sym, size))

	placed, err := b.placePerpOrder(ctx, symbol, side, "MARKET", extra)
	if err != nil {
		return 0, err
	}

	order, err := b.QueryPerpOrder(ctx, symbol, strconv.FormatInt(placed.OrderID, 10))
	if err != nil {
		return 0, fmt.Errorf("market order placed but avg price query failed: %w", err)
	}
	return order.AvgPrice, nil
}

// PlacePerpTrigger rests a stop-market order at the trigger price.
func (b *Binance) PlacePerpTrigger(ctx context.Context, symbol string, side types.Side, size, triggerPrice float64) (string, error) {
	sym := b.symbol(symbol)
	extra := url.Values{}
	extra.Set("quantity", roundSize(sym, size))
	extra.Set("stopPrice", roundPrice(sym, triggerPrice))

	placed, err := b.placePerpOrder(ctx, symbol, side, "STOP_MARKET", extra)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(placed.OrderID, 10), nil
}

// placePerpLimitGTX submits one post-only limit order for the filler loop.
func (b *Binance) placePerpLimitGTX(ctx context.Context, symbol string, side types.Side, size, price float64) (string, error) {
	sym := b.symbol(symbol)
	extra := url.Values{}
	extra.Set("quantity", roundSize(sym, size))
	extra.Set("price", roundPrice(sym, price))
	extra.Set("timeInForce", "GTX")

	placed, err := b.placePerpOrder(ctx, symbol, side, "LIMIT", extra)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(placed.OrderID, 10), nil
}

// QueryPerpOrder fetches the status record for one futures order.
func (b *Binance) QueryPerpOrder(ctx context.Context, symbol, oid string) (types.PerpOrder, error) {
	if err := b.rl.Query.Wait(ctx); err != nil {
		return types.PerpOrder{}, err
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", oid)

	var result perpOrder
	resp, err := b.signedRequest(ctx, b.perp, params).
		SetResult(&result).
		Get("/fapi/v1/order")
	if err != nil {
		return types.PerpOrder{}, fmt.Errorf("query perp order %s: %w", oid, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.PerpOrder{}, fmt.Errorf("query perp order %s: status %d: %s", oid, resp.StatusCode(), resp.String())
	}
	return result.toPerpOrder(), nil
}

// CancelPerpOrder cancels one futures order. Unknown orders report canceled.
func (b *Binance) CancelPerpOrder(ctx context.Context, symbol, oid string) (bool, error) {
	if err := b.rl.Cancel.Wait(ctx); err != nil {
		return false, err
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", oid)

	var result perpOrder
	resp, err := b.signedRequest(ctx, b.perp, params).
		SetResult(&result).
		Delete("/fapi/v1/order")
	if err != nil {
		return false, fmt.Errorf("cancel perp order %s: %w", oid, err)
	}
	if resp.StatusCode() != http.StatusOK {
		if isUnknownOrder(resp) {
			return true, nil
		}
		return false, fmt.Errorf("cancel perp order %s: status %d: %s", oid, resp.StatusCode(), resp.String())
	}
	return result.Status == types.OrderStatusCanceled, nil
}

// positionAmt reads the signed position size for the symbol. A missing
// position entry means flat.
func (b *Binance) positionAmt(ctx context.Context, symbol string) (float64, error) {
	if err := b.rl.Query.Wait(ctx); err != nil {
		return 0, err
	}

	params := url.Values{}
	params.Set("symbol", symbol)

	var positions []struct {
		Symbol      string `json:"symbol"`
		PositionAmt string `json:"positionAmt"`
	}
	resp, err := b.signedRequest(ctx, b.perp, params).
		SetResult(&positions).
		Get("/fapi/v2/positionRisk")
	if err != nil {
		return 0, fmt.Errorf("position query: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("position query: status %d: %s", resp.StatusCode(), resp.String())
	}

	for _, p := range positions {
		if p.Symbol == symbol {
			amt, err := strconv.ParseFloat(p.PositionAmt, 64)
			if err != nil {
				return 0, fmt.Errorf("position query: parse %q: %w", p.PositionAmt, err)
			}
			return amt, nil
		}
	}
	return 0, nil
}

// positionAmtRetry wraps positionAmt with the documented 5-attempt retry.
func (b *Binance) positionAmtRetry(ctx context.Context, symbol string) (float64, error) {
	var lastErr error
	for attempt := 0; attempt < positionQueryRetries; attempt++ {
		amt, err := b.positionAmt(ctx, symbol)
		if err == nil {
			return amt, nil
		}
		lastErr = err
		if err := sleep(ctx, time.Second); err != nil {
			return 0, err
		}
	}
	return 0, fmt.Errorf("position query failed after %d attempts: %w", positionQueryRetries, lastErr)
}

// bestQuote reads the top of book: best bid for a BUY, best ask for a SELL.
func (b *Binance) bestQuote(ctx context.Context, symbol string, side types.Side) (float64, error) {
	if err := b.rl.Query.Wait(ctx); err != nil {
		return 0, err
	}

	var book struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	resp, err := b.perp.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetQueryParam("limit", "5").
		SetResult(&book).
		Get("/fapi/v1/depth")
	if err != nil {
		return 0, fmt.Errorf("depth query: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("depth query: status %d: %s", resp.StatusCode(), resp.String())
	}

	levels := book.Bids
	if side == types.SELL {
		levels = book.Asks
	}
	if len(levels) == 0 || len(levels[0]) < 1 {
		return 0, fmt.Errorf("depth query: empty %s side", side)
	}
	price, err := strconv.ParseFloat(levels[0][0], 64)
	if err != nil {
		return 0, fmt.Errorf("depth query: parse price %q: %w", levels[0][0], err)
	}
	return price, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
