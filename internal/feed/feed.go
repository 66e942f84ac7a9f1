// Package feed provides the live market-data connectors for the engine.
//
// A Connector runs two long-lived monitor tasks over WebSocket — one for the
// aggregate trade price and one for the top-of-book depth — and exposes the
// latest values through read-locked accessors. Every consumer (MM loop,
// volatility monitor, hedger snapshots) reads the same connector; only the
// monitor tasks write.
//
// Connections auto-reconnect on failure: up to 1000 attempts with a flat
// 0.5 s backoff, matching the venue's tolerance for resubscribe storms. A
// read deadline detects silent server failures.
package feed

import (
	"context"
	"sync"
	"time"

	"ladder-mm/pkg/types"
)

const (
	maxRetries     = 1000
	retryBackoff   = 500 * time.Millisecond
	readTimeout    = 90 * time.Second
	depthLevels    = 10
	handshakeLimit = 10 * time.Second
)

// Connector is the live feed for one trading symbol.
type Connector interface {
	// MonitorTrades streams the aggregate trade price. Blocks until ctx is
	// cancelled or the retry budget is exhausted.
	MonitorTrades(ctx context.Context) error

	// MonitorDepth streams the top-of-book snapshot. Blocks like MonitorTrades.
	MonitorDepth(ctx context.Context) error

	// AggrPrice returns the latest aggregate trade price. False until the
	// first tick arrives.
	AggrPrice() (float64, bool)

	// TopDepth returns the latest top-of-book snapshot. False until the
	// first snapshot arrives.
	TopDepth() (types.DepthSnapshot, bool)
}

// feedState holds the shared fields every connector publishes. Writes come
// from the monitor tasks only.
type feedState struct {
	mu        sync.RWMutex
	aggrPrice float64
	hasPrice  bool
	depth     types.DepthSnapshot
	hasDepth  bool
}

func (s *feedState) setPrice(p float64) {
	s.mu.Lock()
	s.aggrPrice = p
	s.hasPrice = true
	s.mu.Unlock()
}

func (s *feedState) setDepth(d types.DepthSnapshot) {
	s.mu.Lock()
	s.depth = d
	s.hasDepth = true
	s.mu.Unlock()
}

// AggrPrice returns the latest aggregate trade price.
func (s *feedState) AggrPrice() (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aggrPrice, s.hasPrice
}

// TopDepth returns the latest top-of-book snapshot.
func (s *feedState) TopDepth() (types.DepthSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.depth, s.hasDepth
}
