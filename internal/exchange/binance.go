// binance.go implements the Binance spot surface of the adapter: the ladder
// venue methods (batch place, fill query, cancel, cancel-all). The perp
// surface lives in binanceperp.go; both share one client, signer, and rate
// limiter.
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"ladder-mm/pkg/types"
)

const (
	binanceSpotBase = "https://api.binance.com"
	binancePerpBase = "https://fapi.binance.com"

	// Binance error code for cancels that reference an unknown or already
	// gone order. Treated as success: the goal state holds either way.
	codeUnknownOrder = "-2011"
)

// Binance talks to the Binance spot and USD-M futures REST APIs. It
// implements LadderVenue, AllCanceler, and HedgeVenue.
type Binance struct {
	spot      *resty.Client
	perp      *resty.Client
	apiKey    string
	secretKey string
	symbols   map[string]types.Symbol
	rl        *RateLimiter
	logger    *slog.Logger
}

// NewBinance creates the adapter. symbols maps venue symbol names to their
// tick/step precision.
func NewBinance(apiKey, secretKey string, symbols map[string]types.Symbol, logger *slog.Logger) *Binance {
	return &Binance{
		spot:      newRESTClient(binanceSpotBase),
		perp:      newRESTClient(binancePerpBase),
		apiKey:    apiKey,
		secretKey: secretKey,
		symbols:   symbols,
		rl:        NewRateLimiter(),
		logger:    logger.With("component", "binance"),
	}
}

func newRESTClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})
}

func (b *Binance) symbol(name string) types.Symbol {
	if s, ok := b.symbols[name]; ok {
		return s
	}
	return types.Symbol{TickDecimals: 8, StepDecimals: 8}
}

// signedRequest prepares a request against a signed endpoint.
func (b *Binance) signedRequest(ctx context.Context, client *resty.Client, params url.Values) *resty.Request {
	return client.R().
		SetContext(ctx).
		SetHeader("X-MBX-APIKEY", b.apiKey).
		SetQueryParamsFromValues(signParams(b.secretKey, params))
}

// spotOrder is the subset of the venue's order record the engine reads.
type spotOrder struct {
	OrderID      int64  `json:"orderId"`
	Status       string `json:"status"`
	Side         string `json:"side"`
	ExecutedQty  string `json:"executedQty"`
	CumQuoteQty  string `json:"cummulativeQuoteQty"`
	ClientOrder  string `json:"clientOrderId"`
	Price        string `json:"price"`
	OrigQty      string `json:"origQty"`
	TimeInForce  string `json:"timeInForce"`
	OrderType    string `json:"type"`
	TransactTime int64  `json:"transactTime"`
}

// placeSpotLimit submits one limit order. Post-only uses LIMIT_MAKER, which
// the venue rejects if it would cross.
func (b *Binance) placeSpotLimit(ctx context.Context, symbol string, order types.OrderRequest, postOnly bool) (string, error) {
	if err := b.rl.Order.Wait(ctx); err != nil {
		return "", err
	}
	sym := b.symbol(symbol)

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(order.Side))
	params.Set("quantity", roundSize(sym, order.Size))
	params.Set("price", roundPrice(sym, order.Price))
	params.Set("newClientOrderId", "mm-"+uuid.NewString())
	if postOnly {
		params.Set("type", "LIMIT_MAKER")
	} else {
		params.Set("type", "LIMIT")
		params.Set("timeInForce", "GTC")
	}

	var result spotOrder
	resp, err := b.signedRequest(ctx, b.spot, params).
		SetResult(&result).
		Post("/api/v3/order")
	if err != nil {
		return "", fmt.Errorf("place spot limit: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("place spot limit: status %d: %s", resp.StatusCode(), resp.String())
	}
	return strconv.FormatInt(result.OrderID, 10), nil
}

// BatchPlaceLimit places the batch concurrently, one request per order, and
// returns the ids of the orders the venue accepted, in input order. Rejected
// orders (e.g. a post-only that would cross) are logged and skipped.
func (b *Binance) BatchPlaceLimit(ctx context.Context, symbol string, orders []types.OrderRequest, postOnly bool) ([]string, error) {
	if len(orders) == 0 {
		return nil, nil
	}

	sym := b.symbol(symbol)
	results := make([]string, len(orders))
	var wg sync.WaitGroup
	for i, order := range orders {
		if sizeValue(sym, order.Size) == 0 {
			// Rounded down to nothing at the step precision.
			continue
		}
		wg.Add(1)
		go func(i int, order types.OrderRequest) {
			defer wg.Done()
			oid, err := b.placeSpotLimit(ctx, symbol, order, postOnly)
			if err != nil {
				b.logger.Warn("spot order rejected",
					"side", order.Side, "price", order.Price, "size", order.Size, "error", err)
				return
			}
			results[i] = oid
		}(i, order)
	}
	wg.Wait()

	oids := make([]string, 0, len(orders))
	for _, oid := range results {
		if oid != "" {
			oids = append(oids, oid)
		}
	}
	return oids, nil
}

// BatchQueryFills fetches recent orders for the symbol and maps each
// requested id to its fill. Only orders with positive quote volume count.
func (b *Binance) BatchQueryFills(ctx context.Context, symbol string, oids []string) (map[string]types.Fill, error) {
	if len(oids) == 0 {
		return map[string]types.Fill{}, nil
	}
	if err := b.rl.Query.Wait(ctx); err != nil {
		return nil, err
	}

	limit := len(oids)
	if limit < 100 {
		limit = 100
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(limit))

	var all []spotOrder
	resp, err := b.signedRequest(ctx, b.spot, params).
		SetResult(&all).
		Get("/api/v3/allOrders")
	if err != nil {
		return nil, fmt.Errorf("query fills: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("query fills: status %d: %s", resp.StatusCode(), resp.String())
	}

	byID := make(map[string]spotOrder, len(all))
	for _, o := range all {
		byID[strconv.FormatInt(o.OrderID, 10)] = o
	}

	fills := make(map[string]types.Fill)
	for _, oid := range oids {
		o, ok := byID[oid]
		if !ok {
			continue
		}
		quote, _ := strconv.ParseFloat(o.CumQuoteQty, 64)
		if quote <= 0 {
			continue
		}
		size, _ := strconv.ParseFloat(o.ExecutedQty, 64)
		fills[oid] = types.Fill{
			OrderID:   oid,
			Side:      types.Side(o.Side),
			Size:      size,
			QuoteSize: quote,
		}
	}
	return fills, nil
}

// BatchCancel cancels each order individually. Unknown orders count as done.
func (b *Binance) BatchCancel(ctx context.Context, symbol string, oids []string) error {
	for _, oid := range oids {
		if err := b.cancelSpotOrder(ctx, symbol, oid); err != nil {
			return err
		}
	}
	return nil
}

func (b *Binance) cancelSpotOrder(ctx context.Context, symbol, oid string) error {
	if err := b.rl.Cancel.Wait(ctx); err != nil {
		return err
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", oid)

	resp, err := b.signedRequest(ctx, b.spot, params).
		Delete("/api/v3/order")
	if err != nil {
		return fmt.Errorf("cancel spot order %s: %w", oid, err)
	}
	if resp.StatusCode() != http.StatusOK && !isUnknownOrder(resp) {
		return fmt.Errorf("cancel spot order %s: status %d: %s", oid, resp.StatusCode(), resp.String())
	}
	return nil
}

// CancelAll cancels every resting order on the symbol and verifies each
// reported order reached CANCELED. An empty book is a no-op success.
func (b *Binance) CancelAll(ctx context.Context, symbol string) error {
	if err := b.rl.Cancel.Wait(ctx); err != nil {
		return err
	}

	params := url.Values{}
	params.Set("symbol", symbol)

	var canceled []spotOrder
	resp, err := b.signedRequest(ctx, b.spot, params).
		SetResult(&canceled).
		Delete("/api/v3/openOrders")
	if err != nil {
		return fmt.Errorf("cancel all: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		// The venue reports an empty book as an unknown-order error.
		if isUnknownOrder(resp) {
			return nil
		}
		return fmt.Errorf("cancel all: status %d: %s", resp.StatusCode(), resp.String())
	}

	for _, o := range canceled {
		if o.Status != types.OrderStatusCanceled {
			return fmt.Errorf("cancel all: order %d ended in %s", o.OrderID, o.Status)
		}
	}
	return nil
}

func isUnknownOrder(resp *resty.Response) bool {
	return resp.StatusCode() == http.StatusBadRequest &&
		strings.Contains(resp.String(), codeUnknownOrder)
}
