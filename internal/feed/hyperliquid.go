package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"ladder-mm/pkg/types"
)

const hyperliquidWSURL = "wss://api.hyperliquid.xyz/ws"

// HyperliquidConnector streams the Hyperliquid L2 book for one coin. The
// aggregate reference price still comes from the Binance spot aggTrade stream
// of the <coin>USDT pair, which is deeper than the perp's own prints.
type HyperliquidConnector struct {
	feedState
	coin   string // upper-case coin, e.g. "SUI"
	wsURL  string
	logger *slog.Logger
}

// NewHyperliquidConnector creates a connector for the given coin.
func NewHyperliquidConnector(coin string, logger *slog.Logger) *HyperliquidConnector {
	return &HyperliquidConnector{
		coin:   strings.ToUpper(coin),
		wsURL:  hyperliquidWSURL,
		logger: logger.With("component", "feed_hyperliquid", "symbol", strings.ToUpper(coin)),
	}
}

// MonitorTrades streams Binance spot aggregate trades for the coin's USDT pair.
func (c *HyperliquidConnector) MonitorTrades(ctx context.Context) error {
	url := fmt.Sprintf("%s/%susdt@aggTrade", binanceSpotWSBase, strings.ToLower(c.coin))
	return runStream(ctx, c.logger.With("stream", "aggTrade"), url, nil, c.handleTrade)
}

// MonitorDepth subscribes to the l2Book channel and publishes the top levels.
func (c *HyperliquidConnector) MonitorDepth(ctx context.Context) error {
	sub := map[string]any{
		"method": "subscribe",
		"subscription": map[string]any{
			"type": "l2Book",
			"coin": c.coin,
		},
	}
	return runStream(ctx, c.logger.With("stream", "l2Book"), c.wsURL, sub, c.handleBook)
}

func (c *HyperliquidConnector) handleTrade(data []byte) error {
	var msg struct {
		Price string `json:"p"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("unmarshal aggTrade: %w", err)
	}
	price, err := strconv.ParseFloat(msg.Price, 64)
	if err != nil {
		return fmt.Errorf("parse trade price %q: %w", msg.Price, err)
	}
	c.setPrice(price)
	return nil
}

// handleBook parses an l2Book message. levels[0] is the bid side, levels[1]
// the ask side; messages without levels (subscription acks) are skipped.
func (c *HyperliquidConnector) handleBook(data []byte) error {
	var msg struct {
		Data struct {
			Levels [][]struct {
				Px string `json:"px"`
				Sz string `json:"sz"`
			} `json:"levels"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("unmarshal l2Book: %w", err)
	}
	if len(msg.Data.Levels) < 2 {
		return nil
	}

	snap := types.DepthSnapshot{}
	for i, lvl := range msg.Data.Levels[0] {
		if i >= depthLevels {
			break
		}
		price, err1 := strconv.ParseFloat(lvl.Px, 64)
		size, err2 := strconv.ParseFloat(lvl.Sz, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		snap.Bids = append(snap.Bids, types.PriceLevel{Price: price, Size: size})
	}
	for i, lvl := range msg.Data.Levels[1] {
		if i >= depthLevels {
			break
		}
		price, err1 := strconv.ParseFloat(lvl.Px, 64)
		size, err2 := strconv.ParseFloat(lvl.Sz, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		snap.Asks = append(snap.Asks, types.PriceLevel{Price: price, Size: size})
	}
	if len(snap.Bids) == 0 && len(snap.Asks) == 0 {
		return nil
	}
	c.setDepth(snap)
	return nil
}
