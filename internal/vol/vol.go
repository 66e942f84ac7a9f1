// Package vol implements the blended volatility estimator: a weighted mix of
// short-window, long-window, and EWMA volatilities over a log-return series.
package vol

import (
	"math"
	"sync"
)

// annualize converts per-sample volatility to the one-minute reference bar
// given one-second samples.
var annualize = math.Sqrt(60)

// Snapshot holds the four outputs of one estimator update. All values are
// non-negative.
type Snapshot struct {
	ShortVol     float64
	LongVol      float64
	EwmaVol      float64
	EffectiveVol float64
}

// Estimator blends short-term, long-term, and EWMA volatility into a single
// effective volatility scalar. The EWMA squared-vol state persists across
// updates; everything else is recomputed from the supplied price series.
//
// Safe for the update/read pattern the engine uses: the volatility monitor
// updates, the auto planner and log lines read.
type Estimator struct {
	mu          sync.RWMutex
	shortWindow int
	longWindow  int
	ewmaLambda  float64

	ewmaVolSquared float64
	last           Snapshot
}

// NewEstimator creates an estimator. shortWindow and longWindow are counted
// in returns; ewmaLambda must be in (0, 1).
func NewEstimator(shortWindow, longWindow int, ewmaLambda float64) *Estimator {
	return &Estimator{
		shortWindow: shortWindow,
		longWindow:  longWindow,
		ewmaLambda:  ewmaLambda,
	}
}

// Update recomputes volatility from a chronologically ordered price series
// (latest last) and returns the new snapshot. Fewer than two samples yield
// an all-zero snapshot and leave the EWMA state untouched.
func (e *Estimator) Update(prices []float64) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(prices) < 2 {
		e.last = Snapshot{}
		return e.last
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		returns[i-1] = math.Log(prices[i]) - math.Log(prices[i-1])
	}

	shortVol := stdev(tail(returns, e.shortWindow)) * annualize
	longVol := stdev(tail(returns, e.longWindow)) * annualize

	latest := returns[len(returns)-1]
	e.ewmaVolSquared = e.ewmaLambda*e.ewmaVolSquared + (1-e.ewmaLambda)*latest*latest
	ewmaVol := math.Sqrt(e.ewmaVolSquared) * annualize

	e.last = Snapshot{
		ShortVol:     shortVol,
		LongVol:      longVol,
		EwmaVol:      ewmaVol,
		EffectiveVol: 0.3*shortVol + 0.4*ewmaVol + 0.3*longVol,
	}
	return e.last
}

// EffectiveVol returns the effective volatility from the most recent update.
func (e *Estimator) EffectiveVol() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last.EffectiveVol
}

// Last returns the full snapshot from the most recent update.
func (e *Estimator) Last() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}

// tail returns the last n elements of s, or all of s when it is shorter.
func tail(s []float64, n int) []float64 {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// stdev is the population standard deviation.
func stdev(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	var mean float64
	for _, v := range s {
		mean += v
	}
	mean /= float64(len(s))

	var sq float64
	for _, v := range s {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(s)))
}
