// Package hedge maintains the perpetual-futures hedge that neutralizes the
// ladder's inventory risk. Two cooperating tasks share one Hedger:
//
//   - The active hedge ticks every second and, when the IQV move drifts past
//     its activation threshold, solves for the perp position that restores
//     the target ratio and works the difference with a post-only GTX loop
//     (market order for any residual).
//
//   - The passive hedge ticks every refresh interval and keeps stop-market
//     trigger orders resting around the price. A filled trigger opens a
//     hedge and immediately rests a stop-loss; the stop-loss filling closes
//     the cycle and re-arms the triggers.
//
// The runner pushes portfolio snapshots in; the hedger never shares mutable
// state with the planner.
package hedge

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"ladder-mm/internal/exchange"
	"ladder-mm/internal/logx"
	"ladder-mm/internal/metrics"
	"ladder-mm/pkg/types"
)

const (
	activeTickInterval = time.Second
	gtxResidualEpsilon = 1e-9
)

// Params configures the hedger. Built once from config.
type Params struct {
	Symbol              string
	InitPrice           float64
	InitInventoryAmount float64
	InitQuoteAmount     float64

	PassiveHedgeRatio      float64 // trigger offset from price
	PassiveHedgeSpRatio    float64 // stop-loss offset from the entry fill
	PassiveHedgeProportion float64 // hedge size as a share of inventory
	RefreshIQVRatio        float64 // |iqv move| band that allows re-arming
	RefreshInterval        time.Duration

	ActiveHedgeIQVRatio float64
	MinHedgeOrderSize   float64
	MaxGTXTry           int

	DualSided bool
}

// portfolio is the snapshot the runner pushes each MM round.
type portfolio struct {
	price        float64
	curInventory float64
	curQuote     float64
	iqvMoveRatio float64
}

// Hedger runs the active and passive hedge strategies against one perp
// symbol. The two run-loops write disjoint state; only the portfolio
// snapshot crosses task boundaries and is mutex-guarded.
type Hedger struct {
	venue   exchange.HedgeVenue
	params  Params
	logger  *slog.Logger
	metrics *metrics.Metrics

	initIQVRatio float64

	mu   sync.RWMutex
	port portfolio

	// Active-hedge state. Touched only by the active task.
	// activeHedgeSize is the standing signed hedge target (short negative).
	activeHedgeSize float64

	// Passive-hedge state. Touched only by the passive task.
	passiveHedgeSize  float64
	longTriggerPrice  float64
	shortTriggerPrice float64
	longTriggerOID    string
	shortTriggerOID   string
	stopLossOID       string
	isOnPHedge        bool
}

// New creates a hedger from the first safe price and the initial balances.
func New(venue exchange.HedgeVenue, p Params, logger *slog.Logger) (*Hedger, error) {
	if p.InitPrice <= 0 {
		return nil, fmt.Errorf("init price must be positive, got %v", p.InitPrice)
	}
	initValue := p.InitInventoryAmount*p.InitPrice + p.InitQuoteAmount
	if initValue <= 0 {
		return nil, fmt.Errorf("initial portfolio value must be positive")
	}
	if p.MaxGTXTry <= 0 {
		p.MaxGTXTry = 30
	}

	return &Hedger{
		venue:        venue,
		params:       p,
		logger:       logger.With("component", "hedge", "symbol", p.Symbol),
		initIQVRatio: p.InitInventoryAmount * p.InitPrice / initValue,
		port: portfolio{
			price:        p.InitPrice,
			curInventory: p.InitInventoryAmount,
			curQuote:     p.InitQuoteAmount,
		},
	}, nil
}

// SetMetrics attaches the engine collectors. Optional.
func (h *Hedger) SetMetrics(m *metrics.Metrics) { h.metrics = m }

// UpdatePortfolio receives the runner's per-round snapshot.
func (h *Hedger) UpdatePortfolio(price, inventory, quote, iqvMoveRatio float64) {
	h.mu.Lock()
	h.port = portfolio{
		price:        price,
		curInventory: inventory,
		curQuote:     quote,
		iqvMoveRatio: iqvMoveRatio,
	}
	h.mu.Unlock()
}

func (h *Hedger) snapshot() portfolio {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.port
}

// RunActive is the active-hedge task loop. Transient errors are logged and
// the loop continues; only context cancellation ends it.
func (h *Hedger) RunActive(ctx context.Context) error {
	ticker := time.NewTicker(activeTickInterval)
	defer ticker.Stop()

	h.logger.Info("active hedge monitor started",
		"activation_ratio", h.params.ActiveHedgeIQVRatio,
		"dual_sided", h.params.DualSided,
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.activeTick(ctx)
		}
	}
}

// activeTick evaluates the IQV drift and reconciles the standing hedge.
func (h *Hedger) activeTick(ctx context.Context) {
	snap := h.snapshot()
	if snap.price <= 0 {
		return
	}

	i := snap.curInventory
	p := snap.price
	q := snap.curQuote
	n := h.initIQVRatio * h.params.ActiveHedgeIQVRatio

	var target float64
	switch {
	case snap.iqvMoveRatio > h.params.ActiveHedgeIQVRatio:
		// Too long: solve for the short size x that restores the target IQV.
		x := (i*p - n*i*q - n*q) / p
		if x <= 0 {
			h.logger.Error("active hedge short solve produced non-positive size, skipping round",
				"x", x, "iqv_move", snap.iqvMoveRatio)
			return
		}
		target = -x
	case snap.iqvMoveRatio < -h.params.ActiveHedgeIQVRatio && h.params.DualSided:
		// Too short: the symmetric long solve.
		x := (n*i*q + n*q - i*p) / p
		if x <= 0 {
			h.logger.Error("active hedge long solve produced non-positive size, skipping round",
				"x", x, "iqv_move", snap.iqvMoveRatio)
			return
		}
		target = x
	default:
		// In band: leave the standing hedge untouched.
		return
	}

	delta := target - h.activeHedgeSize
	if math.Abs(delta) < h.params.MinHedgeOrderSize {
		return
	}

	side := types.BUY
	if delta < 0 {
		side = types.SELL
	}
	size := math.Abs(delta)

	unfilled, err := h.venue.PlacePerpGTX(ctx, h.params.Symbol, side, size, h.params.MaxGTXTry)
	if err != nil {
		h.logger.Error("active hedge gtx failed", "side", side, "size", size, "error", err)
		return
	}
	if unfilled > gtxResidualEpsilon {
		// Take the remainder rather than carry the exposure into the next tick.
		avg, err := h.venue.PlacePerpMarket(ctx, h.params.Symbol, side, unfilled)
		if err != nil {
			h.logger.Error("active hedge market remainder failed",
				"side", side, "unfilled", unfilled, "error", err)
			// Record only what actually executed.
			executed := size - unfilled
			if delta < 0 {
				executed = -executed
			}
			h.activeHedgeSize += executed
			return
		}
		h.logger.Info("active hedge remainder taken", "side", side, "size", unfilled, "avg_price", avg)
	}

	h.activeHedgeSize = target
	if h.metrics != nil {
		h.metrics.SetActiveHedgeSize(h.activeHedgeSize)
	}
	logx.Success(h.logger, "active hedge adjusted",
		"side", side, "delta", delta, "standing", h.activeHedgeSize)
}

// RunPassive is the passive-hedge task loop. A cancel failure during trigger
// refresh is fatal: the task cannot safely re-arm and returns the error.
func (h *Hedger) RunPassive(ctx context.Context) error {
	ticker := time.NewTicker(h.params.RefreshInterval)
	defer ticker.Stop()

	h.logger.Info("passive hedge monitor started",
		"trigger_ratio", h.params.PassiveHedgeRatio,
		"stop_loss_ratio", h.params.PassiveHedgeSpRatio,
		"refresh_interval", h.params.RefreshInterval,
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := h.passiveTick(ctx); err != nil {
				return err
			}
		}
	}
}

// passiveTick advances the trigger-order state machine by one step.
func (h *Hedger) passiveTick(ctx context.Context) error {
	if h.isOnPHedge {
		return h.pollStopLoss(ctx)
	}

	// Check resting triggers for fills first; a fill consumes the tick.
	if h.params.DualSided && h.longTriggerOID != "" {
		handled, err := h.checkTriggerFilled(ctx, h.longTriggerOID, types.SELL, 1-h.params.PassiveHedgeSpRatio, &h.longTriggerOID)
		if err != nil || handled {
			return err
		}
	}
	if h.shortTriggerOID != "" {
		handled, err := h.checkTriggerFilled(ctx, h.shortTriggerOID, types.BUY, 1+h.params.PassiveHedgeSpRatio, &h.shortTriggerOID)
		if err != nil || handled {
			return err
		}
	}

	// Recovery: a long trigger must never rest in single-sided mode.
	if !h.params.DualSided && h.longTriggerOID != "" {
		if err := h.cancelTrigger(ctx, &h.longTriggerOID, "stray long"); err != nil {
			return err
		}
	}

	snap := h.snapshot()
	if math.Abs(snap.iqvMoveRatio) <= h.params.RefreshIQVRatio {
		return h.refreshTriggers(ctx, snap)
	}

	// Out of the refresh band: just make sure the armed set is complete.
	if h.params.DualSided && h.longTriggerOID == "" && h.longTriggerPrice > 0 {
		h.longTriggerOID = h.armTrigger(ctx, types.BUY, h.longTriggerPrice)
	}
	if h.shortTriggerOID == "" && h.shortTriggerPrice > 0 {
		h.shortTriggerOID = h.armTrigger(ctx, types.SELL, h.shortTriggerPrice)
	}
	return nil
}

// checkTriggerFilled polls one trigger order. On a fill it rests the
// stop-loss on the opposite side and enters the hedged state. The trigger
// oid is cleared only after the stop-loss is safely resting, so a stop-loss
// placement failure retries on the next tick.
func (h *Hedger) checkTriggerFilled(ctx context.Context, oid string, stopSide types.Side, stopFactor float64, slot *string) (bool, error) {
	order, err := h.venue.QueryPerpOrder(ctx, h.params.Symbol, oid)
	if err != nil {
		h.logger.Warn("trigger status query failed", "oid", oid, "error", err)
		return false, nil
	}
	if order.Status != types.OrderStatusFilled {
		return false, nil
	}

	if math.Abs(order.ExecutedQty-h.passiveHedgeSize) > gtxResidualEpsilon {
		h.logger.Error("trigger filled quantity mismatch",
			"oid", oid, "executed", order.ExecutedQty, "expected", h.passiveHedgeSize)
	}

	stopPrice := order.AvgPrice * stopFactor
	stopOID, err := h.venue.PlacePerpTrigger(ctx, h.params.Symbol, stopSide, h.passiveHedgeSize, stopPrice)
	if err != nil {
		h.logger.Error("stop-loss placement failed, retrying next tick",
			"entry_oid", oid, "error", err)
		return true, nil
	}

	*slot = ""
	h.stopLossOID = stopOID
	h.isOnPHedge = true
	logx.Success(h.logger, "passive hedge triggered",
		"entry_price", order.AvgPrice, "size", h.passiveHedgeSize,
		"stop_side", stopSide, "stop_price", stopPrice, "stop_oid", stopOID)
	return true, nil
}

// pollStopLoss watches the resting stop-loss while hedged.
func (h *Hedger) pollStopLoss(ctx context.Context) error {
	order, err := h.venue.QueryPerpOrder(ctx, h.params.Symbol, h.stopLossOID)
	if err != nil {
		h.logger.Warn("stop-loss status query failed", "oid", h.stopLossOID, "error", err)
		return nil
	}
	if order.Status != types.OrderStatusFilled {
		return nil
	}

	if math.Abs(order.ExecutedQty-h.passiveHedgeSize) > gtxResidualEpsilon {
		h.logger.Error("stop-loss filled quantity mismatch",
			"executed", order.ExecutedQty, "expected", h.passiveHedgeSize)
	}

	h.isOnPHedge = false
	h.stopLossOID = ""
	logx.Success(h.logger, "passive hedge closed",
		"exit_price", order.AvgPrice, "side", order.Side, "size", h.passiveHedgeSize)
	return nil
}

// refreshTriggers re-centers the trigger prices on the current price,
// resizes the hedge from current inventory, and re-arms both sides. Cancel
// failure here is fatal to the task.
func (h *Hedger) refreshTriggers(ctx context.Context, snap portfolio) error {
	h.longTriggerPrice = snap.price * (1 + h.params.PassiveHedgeRatio)
	h.shortTriggerPrice = snap.price * (1 - h.params.PassiveHedgeRatio)
	h.passiveHedgeSize = snap.curInventory * h.params.PassiveHedgeProportion

	if err := h.cancelTrigger(ctx, &h.longTriggerOID, "long"); err != nil {
		return err
	}
	if err := h.cancelTrigger(ctx, &h.shortTriggerOID, "short"); err != nil {
		return err
	}

	if h.params.DualSided {
		h.longTriggerOID = h.armTrigger(ctx, types.BUY, h.longTriggerPrice)
	}
	h.shortTriggerOID = h.armTrigger(ctx, types.SELL, h.shortTriggerPrice)
	return nil
}

func (h *Hedger) cancelTrigger(ctx context.Context, slot *string, label string) error {
	if *slot == "" {
		return nil
	}
	canceled, err := h.venue.CancelPerpOrder(ctx, h.params.Symbol, *slot)
	if err != nil {
		return fmt.Errorf("cancel %s trigger %s: %w", label, *slot, err)
	}
	if !canceled {
		return fmt.Errorf("cancel %s trigger %s: venue refused", label, *slot)
	}
	*slot = ""
	return nil
}

// armTrigger places one stop-market trigger; failures are logged and retried
// on a later tick via the re-arm path.
func (h *Hedger) armTrigger(ctx context.Context, side types.Side, triggerPrice float64) string {
	if h.passiveHedgeSize <= 0 {
		return ""
	}
	oid, err := h.venue.PlacePerpTrigger(ctx, h.params.Symbol, side, h.passiveHedgeSize, triggerPrice)
	if err != nil {
		h.logger.Warn("trigger placement failed", "side", side, "price", triggerPrice, "error", err)
		return ""
	}
	if h.metrics != nil {
		h.metrics.ObservePassiveTrigger(string(side))
	}
	h.logger.Debug("trigger armed", "side", side, "price", triggerPrice, "size", h.passiveHedgeSize, "oid", oid)
	return oid
}
