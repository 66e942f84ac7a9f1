package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"ladder-mm/pkg/types"
)

const binanceSpotWSBase = "wss://stream.binance.com:9443/ws"

// BinanceConnector streams Binance spot aggregate trades and the top-10
// depth snapshot for one symbol.
type BinanceConnector struct {
	feedState
	symbol string // lower-case pair, e.g. "suiusdt"
	wsBase string
	logger *slog.Logger
}

// NewBinanceConnector creates a connector for the given BASEQUOTE pair.
func NewBinanceConnector(symbol string, logger *slog.Logger) *BinanceConnector {
	return &BinanceConnector{
		symbol: strings.ToLower(symbol),
		wsBase: binanceSpotWSBase,
		logger: logger.With("component", "feed_binance", "symbol", strings.ToUpper(symbol)),
	}
}

// MonitorTrades streams <symbol>@aggTrade and publishes each trade price.
func (c *BinanceConnector) MonitorTrades(ctx context.Context) error {
	url := fmt.Sprintf("%s/%s@aggTrade", c.wsBase, c.symbol)
	return runStream(ctx, c.logger.With("stream", "aggTrade"), url, nil, c.handleTrade)
}

// MonitorDepth streams <symbol>@depth10@100ms and publishes each snapshot.
func (c *BinanceConnector) MonitorDepth(ctx context.Context) error {
	url := fmt.Sprintf("%s/%s@depth%d@100ms", c.wsBase, c.symbol, depthLevels)
	return runStream(ctx, c.logger.With("stream", "depth"), url, nil, c.handleDepth)
}

func (c *BinanceConnector) handleTrade(data []byte) error {
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

func (c *BinanceConnector) handleDepth(data []byte) error {
	var msg struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("unmarshal depth: %w", err)
	}

	snap := types.DepthSnapshot{
		Bids: parseLevels(msg.Bids),
		Asks: parseLevels(msg.Asks),
	}
	if len(snap.Bids) == 0 && len(snap.Asks) == 0 {
		return nil
	}
	c.setDepth(snap)
	return nil
}

func parseLevels(raw [][]string) []types.PriceLevel {
	levels := make([]types.PriceLevel, 0, len(raw))
	for _, l := range raw {
		if len(l) < 2 {
			continue
		}
		price, err1 := strconv.ParseFloat(l[0], 64)
		size, err2 := strconv.ParseFloat(l[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		levels = append(levels, types.PriceLevel{Price: price, Size: size})
	}
	return levels
}

// runStream dials url, optionally sends a subscribe payload, then reads
// messages into handler until the connection breaks. Reconnects up to
// maxRetries times with a flat backoff.
func runStream(ctx context.Context, logger *slog.Logger, url string, subscribe any, handler func([]byte) error) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeLimit}

	for attempt := 0; attempt < maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := streamOnce(ctx, dialer, url, subscribe, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("stream disconnected, retrying", "error", err, "attempt", attempt+1)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBackoff):
		}
	}
	return fmt.Errorf("stream %s: gave up after %d retries", url, maxRetries)
}

func streamOnce(ctx context.Context, dialer websocket.Dialer, url string, subscribe any, handler func([]byte) error) error {
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	// Close the socket when the context ends so the blocking read returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if subscribe != nil {
		if err := conn.WriteJSON(subscribe); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if err := handler(msg); err != nil {
			return err
		}
	}
}
