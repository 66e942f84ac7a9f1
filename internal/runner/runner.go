// Package runner is the orchestrator of the market-making engine.
//
// It owns the inventory/quote accounting and drives the round clock:
//
//  1. Live feed tasks publish the aggregate price and top-of-book depth.
//  2. Once a safe first price is seen, the planner and hedger are built
//     from it and the remaining tasks start.
//  3. The MM loop runs one round per update interval: cancel the prior
//     ladder, settle its fills into the balances, plan the next ladder,
//     push the portfolio snapshot to the hedger, and emit the new orders.
//  4. The volatility monitor bootstraps from historical klines and then
//     feeds live prices into the estimator (and the Auto planner).
//
// The six long-lived tasks run under one errgroup: a fatal task error tears
// the engine down; transient venue errors cost at most the current round.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"ladder-mm/internal/config"
	"ladder-mm/internal/exchange"
	"ladder-mm/internal/feed"
	"ladder-mm/internal/hedge"
	"ladder-mm/internal/logx"
	"ladder-mm/internal/metrics"
	"ladder-mm/internal/strategy"
	"ladder-mm/internal/vol"
	"ladder-mm/pkg/types"
)

const (
	// priceSecurityBand is the maximum tolerated divergence between the
	// aggregate price and the book mid before a tick is rejected.
	priceSecurityBand = 0.02

	initRetryWait  = 5 * time.Second
	firstPriceWait = time.Second

	// volLogEvery spaces the market-level price/vol log lines.
	volLogEvery = 120
)

// portfolioSink receives the per-round portfolio snapshot.
type portfolioSink interface {
	UpdatePortfolio(price, inventory, quote, iqvMoveRatio float64)
}

// historySource bootstraps the volatility price history.
type historySource interface {
	ClosePrices(ctx context.Context, symbol string, interval, limit int) ([]float64, error)
}

// Runner composes feed + strategy + venues + hedger and drives the rounds.
type Runner struct {
	cfg        *config.Config
	feed       feed.Connector
	ladder     exchange.LadderVenue
	hedgeVenue exchange.HedgeVenue
	history    historySource
	metrics    *metrics.Metrics
	logger     *slog.Logger

	planner   strategy.Planner
	hedger    *hedge.Hedger
	portfolio portfolioSink

	estimator *vol.Estimator

	// Accounting owned exclusively by the MM loop.
	inventoryAmount float64
	quoteAmount     float64
	oids            []string
	roundIndex      int

	// Bounded FIFO of prices feeding the estimator. Owned by the vol task.
	volHistory []float64
}

// New wires a runner from its collaborators. The planner and hedger are
// built later, from the first safe price.
func New(
	cfg *config.Config,
	fd feed.Connector,
	ladder exchange.LadderVenue,
	hedgeVenue exchange.HedgeVenue,
	history historySource,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		cfg:             cfg,
		feed:            fd,
		ladder:          ladder,
		hedgeVenue:      hedgeVenue,
		history:         history,
		metrics:         m,
		logger:          logger.With("component", "runner"),
		estimator:       vol.NewEstimator(cfg.VolShortWindow, cfg.VolLongWindow, cfg.VolEwmaLambda),
		inventoryAmount: cfg.MMInitInventoryAmount,
		quoteAmount:     cfg.MMInitQuoteAmount,
	}
}

// Run starts all tasks and blocks until the context ends or a task fails.
func (r *Runner) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return r.feed.MonitorTrades(gctx) })
	g.Go(func() error { return r.feed.MonitorDepth(gctx) })

	if err := r.initClients(gctx); err != nil {
		return fmt.Errorf("initialize clients: %w", err)
	}

	g.Go(func() error { return r.volMonitor(gctx) })
	g.Go(func() error { return r.mmLoop(gctx) })
	g.Go(func() error { return r.hedger.RunActive(gctx) })
	g.Go(func() error { return r.hedger.RunPassive(gctx) })

	err := g.Wait()
	if ctx.Err() != nil {
		return nil // parent cancellation is a clean shutdown
	}
	return err
}

// midPrice reads the current book mid.
func (r *Runner) midPrice() (float64, bool) {
	depth, ok := r.feed.TopDepth()
	if !ok {
		return 0, false
	}
	return depth.Mid()
}

// priceSecurityCheck rejects ticks where the aggregate price and the book
// mid diverge by 2% or more, or where either side is missing.
func (r *Runner) priceSecurityCheck() bool {
	aggr, okA := r.feed.AggrPrice()
	mid, okM := r.midPrice()
	if !okA || !okM || mid <= 0 {
		return false
	}
	return math.Abs((aggr-mid)/mid) < priceSecurityBand
}

// initClients waits for the first safe price and builds the planner and
// hedger from it.
func (r *Runner) initClients(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		mid, okM := r.midPrice()
		aggr, okA := r.feed.AggrPrice()
		if okM && okA && r.priceSecurityCheck() {
			planner, err := r.buildPlanner(mid)
			if err != nil {
				return err
			}
			hedger, err := hedge.New(r.hedgeVenue, r.hedgeParams(aggr), r.logger)
			if err != nil {
				return err
			}
			hedger.SetMetrics(r.metrics)
			r.planner = planner
			r.hedger = hedger
			r.portfolio = hedger
			r.logger.Info("all clients initialized",
				"mode", planner.Name(), "init_mid", mid, "init_aggr", aggr)
			return nil
		}

		r.logger.Info("waiting for a safe first price", "have_mid", okM, "have_aggr", okA)
		wait := firstPriceWait
		if okM && okA {
			// Prices are flowing but diverged: back off harder.
			wait = initRetryWait
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (r *Runner) buildPlanner(initPrice float64) (strategy.Planner, error) {
	p := strategy.Params{
		UnderlyingAsset:     r.cfg.UnderlyingToken,
		QuoteAsset:          r.cfg.QuoteToken,
		InitPrice:           initPrice,
		PriceUpPctLimit:     r.cfg.MMPriceUpPctLimit,
		PriceDownPctLimit:   r.cfg.MMPriceDownPctLimit,
		BinStep:             r.cfg.MMBinStep,
		InitInventoryAmount: r.cfg.MMInitInventoryAmount,
		InitQuoteAmount:     r.cfg.MMInitQuoteAmount,
		LiveOrderNums:       r.cfg.MMLiveOrderNums,
		MinOrderSize:        r.cfg.MMMinOrderSize,
		MaxOrderSize:        r.cfg.MMMaxOrderSize,
		IQVUpLimit:          r.cfg.MMIQVUpLimit,
		IQVDownLimit:        r.cfg.MMIQVDownLimit,
		InventoryRBIQVRatio: r.cfg.MMInventoryRBIQVRatio,
		QuoteRBIQVRatio:     r.cfg.MMQuoteRBIQVRatio,
	}

	switch r.cfg.MMMode {
	case config.ModeSpot:
		return strategy.NewSpot(p)
	case config.ModeCurve:
		return strategy.NewCurve(p)
	case config.ModeBidAsk:
		return strategy.NewBidAsk(p)
	case config.ModeAuto:
		return strategy.NewAuto(p, r.cfg.AutoMMVolLowerThreshold, r.cfg.AutoMMVolUpperThreshold)
	default:
		return nil, fmt.Errorf("unknown mm mode %q", r.cfg.MMMode)
	}
}

func (r *Runner) hedgeParams(initPrice float64) hedge.Params {
	return hedge.Params{
		Symbol:                 r.cfg.HedgeSymbol(),
		InitPrice:              initPrice,
		InitInventoryAmount:    r.cfg.MMInitInventoryAmount,
		InitQuoteAmount:        r.cfg.MMInitQuoteAmount,
		PassiveHedgeRatio:      r.cfg.HgPassiveHedgeRatio,
		PassiveHedgeSpRatio:    r.cfg.HgPassiveHedgeSpRatio,
		PassiveHedgeProportion: r.cfg.HgPassiveHedgeProportion,
		RefreshIQVRatio:        r.cfg.HgPassiveHedgeRefreshIQVRatio,
		RefreshInterval:        time.Duration(r.cfg.HgPassiveHedgeRefreshInterval) * time.Second,
		ActiveHedgeIQVRatio:    r.cfg.HgActiveHedgeIQVRatio,
		MinHedgeOrderSize:      r.cfg.HgMinHedgeOrderSize,
		DualSided:              r.cfg.HgDualSidedHedge,
	}
}

// mmLoop runs one MM round per update interval until the context ends.
func (r *Runner) mmLoop(ctx context.Context) error {
	interval := time.Duration(r.cfg.MMUpdateInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("mm loop started", "interval", interval, "mode", r.planner.Name())

	for {
		r.mmRound(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// mmRound executes one cancel → settle → plan → propagate → emit cycle.
// Transient failures abort the round and leave the next one to retry.
func (r *Runner) mmRound(ctx context.Context) {
	symbol := r.cfg.LadderSymbol()

	// Step 1: take down the prior round's ladder.
	if canceler, ok := r.ladder.(exchange.AllCanceler); ok {
		if err := canceler.CancelAll(ctx, symbol); err != nil {
			r.logger.Error("round cancel-all failed", "round", r.roundIndex, "error", err)
			return
		}
	} else if err := r.ladder.BatchCancel(ctx, symbol, r.oids); err != nil {
		r.logger.Error("round batch cancel failed", "round", r.roundIndex, "error", err)
		return
	}

	// Step 2: settle the prior round's fills into the balances.
	if len(r.oids) > 0 {
		fills, err := r.ladder.BatchQueryFills(ctx, symbol, r.oids)
		if err != nil {
			r.logger.Error("round fill query failed", "round", r.roundIndex, "error", err)
			return
		}
		r.settleFills(fills)
	}

	// Step 3: plan the next ladder from the current mid.
	mid, ok := r.midPrice()
	if !ok {
		r.logger.Warn("no mid price, skipping round", "round", r.roundIndex)
		return
	}
	ladder, err := r.planner.ComputeBins(mid, r.inventoryAmount, r.quoteAmount)
	if err != nil {
		r.logger.Error("planner failed, skipping round", "round", r.roundIndex, "error", err)
		r.oids = nil
		r.roundIndex++
		return
	}

	// Step 4: propagate the portfolio snapshot to the hedger. The hedge
	// venue marks against the aggregate price; fall back to mid if absent.
	hedgePrice := mid
	if aggr, ok := r.feed.AggrPrice(); ok {
		hedgePrice = aggr
	}
	iqvMove := r.planner.IQVMoveRatio()
	r.portfolio.UpdatePortfolio(hedgePrice, r.inventoryAmount, r.quoteAmount, iqvMove)

	// Step 5: emit the interleaved ladder as post-only orders.
	orders := ladder.Interleave(r.cfg.MMLiveOrderNums)
	oids, err := r.ladder.BatchPlaceLimit(ctx, symbol, orders, true)
	if err != nil {
		r.logger.Error("ladder placement failed", "round", r.roundIndex, "error", err)
		r.oids = nil
		r.roundIndex++
		return
	}
	r.oids = oids

	if r.metrics != nil {
		r.metrics.ObserveRound(r.inventoryAmount, r.quoteAmount, iqvMove, len(oids))
	}
	r.roundIndex++
}

// settleFills folds the reported fills into the inventory and quote
// balances and logs the round summary.
func (r *Runner) settleFills(fills map[string]types.Fill) {
	var ic, qc float64
	for _, fill := range fills {
		if fill.Side == types.BUY {
			ic += fill.Size
			qc -= fill.QuoteSize
		} else {
			ic -= fill.Size
			qc += fill.QuoteSize
		}
		if r.metrics != nil {
			r.metrics.ObserveFill(string(fill.Side))
		}
	}

	if len(fills) == 0 {
		logx.Status(r.logger, "no executed orders",
			"round", r.roundIndex,
			"inventory", r.inventoryAmount,
			"quote", r.quoteAmount,
		)
		return
	}

	r.inventoryAmount += ic
	r.quoteAmount += qc

	avgPrice := 0.0
	if math.Abs(ic) > 0 {
		avgPrice = math.Abs(qc / ic)
	}

	switch {
	case ic > 0:
		logx.Success(r.logger, "round settled: net buy",
			"round", r.roundIndex, "bought", ic, "avg_price", avgPrice,
			"inventory", r.inventoryAmount, "quote", r.quoteAmount)
	case ic < 0:
		logx.Success(r.logger, "round settled: net sell",
			"round", r.roundIndex, "sold", -ic, "avg_price", avgPrice,
			"inventory", r.inventoryAmount, "quote", r.quoteAmount)
	default:
		logx.Success(r.logger, "round settled: no inventory change",
			"round", r.roundIndex, "inventory", r.inventoryAmount, "quote", r.quoteAmount)
	}
}

// volMonitor bootstraps the price history from klines and then pushes one
// live price per window into the estimator.
func (r *Runner) volMonitor(ctx context.Context) error {
	window := time.Duration(r.cfg.VolHisPriceWindow) * time.Second

	prices, err := r.history.ClosePrices(ctx, r.cfg.HedgeSymbol(), r.cfg.VolHisPriceWindow, r.cfg.VolHisPriceWindowLimit)
	if err != nil {
		// Live ticks will fill the window; the estimator just warms up slower.
		r.logger.Error("vol history bootstrap failed", "error", err)
	} else {
		r.volHistory = append(r.volHistory, prices...)
		r.trimVolHistory()
	}

	if err := sleepCtx(ctx, window); err != nil {
		return err
	}

	tick := 0
	ticker := time.NewTicker(window)
	defer ticker.Stop()
	for {
		if r.priceSecurityCheck() {
			aggr, _ := r.feed.AggrPrice()
			r.volHistory = append(r.volHistory, aggr)
			r.trimVolHistory()

			snap := r.estimator.Update(r.volHistory)
			r.planner.UpdateVol(snap.EffectiveVol)
			if r.metrics != nil {
				r.metrics.SetEffectiveVol(snap.EffectiveVol)
			}

			if tick%volLogEvery == 0 {
				logx.Market(r.logger, "volatility update",
					"price", aggr, "effective_vol", snap.EffectiveVol)
			}
			tick++
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Runner) trimVolHistory() {
	if limit := r.cfg.VolHisPriceWindowLimit; len(r.volHistory) > limit {
		r.volHistory = r.volHistory[len(r.volHistory)-limit:]
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
