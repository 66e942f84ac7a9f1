// hyperliquid.go implements the Hyperliquid ladder venue: bulk order and
// cancel actions against the /exchange endpoint, fills from the /info user
// fill stream. Hyperliquid has no cancel-all for one coin, so the control
// loop falls back to batch cancel by id.
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"ladder-mm/pkg/types"
)

const (
	hyperliquidAPIBase = "https://api.hyperliquid.xyz"

	// fillQueryWindow bounds the trailing fill lookback.
	fillQueryWindow = 7200 * time.Second
)

// Hyperliquid talks to the Hyperliquid exchange API. It implements
// LadderVenue.
type Hyperliquid struct {
	http    *resty.Client
	signer  *hypeSigner
	symbols map[string]types.Symbol

	// assetIDs caches the coin → universe index mapping orders reference.
	assetIDs map[string]int

	rl     *RateLimiter
	logger *slog.Logger
}

// NewHyperliquid creates the adapter from the wallet private key.
func NewHyperliquid(priKeyHex string, symbols map[string]types.Symbol, logger *slog.Logger) (*Hyperliquid, error) {
	signer, err := newHypeSigner(priKeyHex)
	if err != nil {
		return nil, err
	}
	return &Hyperliquid{
		http:     newRESTClient(hyperliquidAPIBase),
		signer:   signer,
		symbols:  symbols,
		assetIDs: make(map[string]int),
		rl:       NewRateLimiter(),
		logger:   logger.With("component", "hyperliquid"),
	}, nil
}

func (h *Hyperliquid) symbol(coin string) types.Symbol {
	if s, ok := h.symbols[coin]; ok {
		return s
	}
	return types.Symbol{TickDecimals: 8, StepDecimals: 8}
}

// assetID resolves the universe index for a coin, fetching the meta table
// on first use.
func (h *Hyperliquid) assetID(ctx context.Context, coin string) (int, error) {
	if id, ok := h.assetIDs[coin]; ok {
		return id, nil
	}

	var meta struct {
		Universe []struct {
			Name string `json:"name"`
		} `json:"universe"`
	}
	resp, err := h.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"type": "meta"}).
		SetResult(&meta).
		Post("/info")
	if err != nil {
		return 0, fmt.Errorf("fetch meta: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("fetch meta: status %d: %s", resp.StatusCode(), resp.String())
	}

	for i, entry := range meta.Universe {
		h.assetIDs[strings.ToUpper(entry.Name)] = i
	}
	id, ok := h.assetIDs[strings.ToUpper(coin)]
	if !ok {
		return 0, fmt.Errorf("coin %s not in universe", coin)
	}
	return id, nil
}

// postAction signs and submits one exchange action.
func (h *Hyperliquid) postAction(ctx context.Context, action any, result any) error {
	nonce := uint64(time.Now().UnixMilli())
	sig, err := h.signer.signAction(action, nonce)
	if err != nil {
		return err
	}

	body := map[string]any{
		"action":    action,
		"nonce":     nonce,
		"signature": sig,
	}
	resp, err := h.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(result).
		Post("/exchange")
	if err != nil {
		return fmt.Errorf("post action: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("post action: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// exchangeResponse is the common /exchange response envelope.
type exchangeResponse struct {
	Status   string `json:"status"`
	Response struct {
		Data struct {
			Statuses []struct {
				Resting *struct {
					Oid int64 `json:"oid"`
				} `json:"resting"`
				Error string `json:"error"`
			} `json:"statuses"`
		} `json:"data"`
	} `json:"response"`
}

// BatchPlaceLimit submits the whole ladder as one bulk order action. ALO
// (add-liquidity-only) is the venue's post-only time-in-force.
func (h *Hyperliquid) BatchPlaceLimit(ctx context.Context, coin string, orders []types.OrderRequest, postOnly bool) ([]string, error) {
	if len(orders) == 0 {
		return nil, nil
	}
	if err := h.rl.Order.Wait(ctx); err != nil {
		return nil, err
	}

	asset, err := h.assetID(ctx, coin)
	if err != nil {
		return nil, err
	}
	sym := h.symbol(coin)

	tif := "Gtc"
	if postOnly {
		tif = "Alo"
	}

	wireOrders := make([]map[string]any, 0, len(orders))
	placed := make([]types.OrderRequest, 0, len(orders))
	for _, o := range orders {
		if sizeValue(sym, o.Size) == 0 {
			// Rounded down to nothing at the step precision.
			continue
		}
		placed = append(placed, o)
		wireOrders = append(wireOrders, map[string]any{
			"a": asset,
			"b": o.Side == types.BUY,
			"p": roundPrice(sym, o.Price),
			"s": roundSize(sym, o.Size),
			"r": false,
			"t": map[string]any{"limit": map[string]string{"tif": tif}},
		})
	}
	if len(wireOrders) == 0 {
		return nil, nil
	}
	action := map[string]any{
		"type":     "order",
		"orders":   wireOrders,
		"grouping": "na",
	}

	var result exchangeResponse
	if err := h.postAction(ctx, action, &result); err != nil {
		return nil, err
	}
	if result.Status != "ok" {
		return nil, fmt.Errorf("bulk order rejected: %s", result.Status)
	}

	oids := make([]string, 0, len(placed))
	for i, status := range result.Response.Data.Statuses {
		if status.Resting != nil {
			oids = append(oids, strconv.FormatInt(status.Resting.Oid, 10))
		} else if status.Error != "" && i < len(placed) {
			h.logger.Warn("order rejected",
				"side", placed[i].Side, "price", placed[i].Price, "error", status.Error)
		}
	}
	return oids, nil
}

// BatchCancel submits one bulk cancel action for all ids.
func (h *Hyperliquid) BatchCancel(ctx context.Context, coin string, oids []string) error {
	if len(oids) == 0 {
		return nil
	}
	if err := h.rl.Cancel.Wait(ctx); err != nil {
		return err
	}

	asset, err := h.assetID(ctx, coin)
	if err != nil {
		return err
	}

	cancels := make([]map[string]any, 0, len(oids))
	for _, oid := range oids {
		id, err := strconv.ParseInt(oid, 10, 64)
		if err != nil {
			return fmt.Errorf("bad order id %q: %w", oid, err)
		}
		cancels = append(cancels, map[string]any{"a": asset, "o": id})
	}
	action := map[string]any{
		"type":    "cancel",
		"cancels": cancels,
	}

	var result exchangeResponse
	if err := h.postAction(ctx, action, &result); err != nil {
		return err
	}
	if result.Status != "ok" {
		return fmt.Errorf("bulk cancel rejected: %s", result.Status)
	}
	return nil
}

// userFill is one entry of the /info userFillsByTime response.
type userFill struct {
	Oid  int64  `json:"oid"`
	Px   string `json:"px"`
	Sz   string `json:"sz"`
	Fee  string `json:"fee"`
	Side string `json:"side"` // "B" = buy, "A" = sell
}

// BatchQueryFills reads the trailing fill window and maps the requested ids
// to their fills. Quote size nets out the venue fee.
func (h *Hyperliquid) BatchQueryFills(ctx context.Context, coin string, oids []string) (map[string]types.Fill, error) {
	if len(oids) == 0 {
		return map[string]types.Fill{}, nil
	}
	if err := h.rl.Query.Wait(ctx); err != nil {
		return nil, err
	}

	startTime := time.Now().Add(-fillQueryWindow).UnixMilli()
	var fills []userFill
	resp, err := h.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"type":      "userFillsByTime",
			"user":      h.signer.address.Hex(),
			"startTime": startTime,
		}).
		SetResult(&fills).
		Post("/info")
	if err != nil {
		return nil, fmt.Errorf("query fills: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("query fills: status %d: %s", resp.StatusCode(), resp.String())
	}

	byID := make(map[string]userFill, len(fills))
	for _, f := range fills {
		byID[strconv.FormatInt(f.Oid, 10)] = f
	}

	result := make(map[string]types.Fill)
	for _, oid := range oids {
		f, ok := byID[oid]
		if !ok {
			continue
		}
		size, _ := strconv.ParseFloat(f.Sz, 64)
		price, _ := strconv.ParseFloat(f.Px, 64)
		fee, _ := strconv.ParseFloat(f.Fee, 64)
		if size <= 0 || price <= 0 {
			continue
		}
		side := types.SELL
		if f.Side == "B" {
			side = types.BUY
		}
		result[oid] = types.Fill{
			OrderID:   oid,
			Side:      side,
			Size:      size,
			QuoteSize: size*price - fee,
		}
	}
	return result, nil
}
