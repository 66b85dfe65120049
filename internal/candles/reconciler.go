package candles

import (
	"context"
	"errors"
	"sync"

	"github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/logger"
	"github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/market"
)

// Reconciler states. A series starts uninitialized, moves to synced once a
// continuity anchor exists, and dips into recovering while a gap is being
// backfilled.
const (
	StateUninitialized = "uninitialized"
	StateSynced        = "synced"
	StateRecovering    = "recovering"
)

// ReconcilerStats is a point-in-time snapshot of one series' counters.
type ReconcilerStats struct {
	State             string `json:"state"`
	Accepted          int64  `json:"accepted"`
	Duplicates        int64  `json:"duplicates"`
	GapsDetected      int64  `json:"gaps_detected"`
	GapCandlesFilled  int64  `json:"gap_candles_filled"`
	UnrecoverableGaps int64  `json:"unrecoverable_gaps"`
	LastOpenTS        int64  `json:"last_open_ts"`
}

// Reconciler guards continuity for one (symbol, timeframe) series. Every
// closed candle from the stream passes through OnClosedCandle, which rejects
// stale bars, backfills missing boundaries over REST, and only then admits
// the candle into the window and the sink.
type Reconciler struct {
	symbol      string
	tf          string
	step        int64
	window      *Window
	fetcher     market.HistoricalFetcher
	sink        market.Sink
	onAccepted  func(market.Candle)
	recentLimit int

	mu       sync.Mutex
	state    string
	lastTS   int64
	haveLast bool

	accepted      int64
	duplicates    int64
	gaps          int64
	filled        int64
	unrecoverable int64
}

// NewReconciler wires one series. onAccepted may be nil; recentLimit bounds
// the batch fallback used when an exact gap fetch comes back empty.
func NewReconciler(symbol, timeframe string, step int64, window *Window, fetcher market.HistoricalFetcher, sink market.Sink, recentLimit int, onAccepted func(market.Candle)) *Reconciler {
	if recentLimit < 1 {
		recentLimit = 50
	}
	return &Reconciler{
		symbol:      symbol,
		tf:          timeframe,
		step:        step,
		window:      window,
		fetcher:     fetcher,
		sink:        sink,
		onAccepted:  onAccepted,
		recentLimit: recentLimit,
		state:       StateUninitialized,
	}
}

// SeedLastTimestamp sets the continuity anchor from bootstrap data, so the
// first streamed candle is checked against history instead of being
// accepted blindly.
func (r *Reconciler) SeedLastTimestamp(openTS int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastTS = openTS
	r.haveLast = true
	r.state = StateSynced
}

func (r *Reconciler) State() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Reconciler) Stats() ReconcilerStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ReconcilerStats{
		State:             r.state,
		Accepted:          r.accepted,
		Duplicates:        r.duplicates,
		GapsDetected:      r.gaps,
		GapCandlesFilled:  r.filled,
		UnrecoverableGaps: r.unrecoverable,
		LastOpenTS:        r.lastTS,
	}
}

// OnClosedCandle runs the continuity check for one closed candle.
// Alignment filtering is the gateway's job; by the time a candle reaches
// the reconciler it is trusted and only its position relative to the
// anchor matters.
//
// Without an anchor the candle is accepted as-is. With an anchor: equal or
// older timestamps are dropped as duplicates, the immediate successor is
// accepted directly, and anything further ahead triggers a per-boundary
// backfill before the arrived candle is admitted. A boundary the exchange
// cannot produce even via the batch fallback is logged as a permanent hole
// and filling stops there; the arrived candle is still accepted so the
// series keeps moving.
func (r *Reconciler) OnClosedCandle(ctx context.Context, c market.Candle) {
	r.mu.Lock()
	if !r.haveLast {
		r.state = StateSynced
		r.mu.Unlock()
		r.accept(c)
		return
	}
	last := r.lastTS
	if c.OpenTS <= last {
		r.duplicates++
		r.mu.Unlock()
		logger.Debugf("[%s %s] duplicate or stale candle open_ts=%d last=%d", r.symbol, r.tf, c.OpenTS, last)
		return
	}
	if c.OpenTS == last+r.step {
		r.mu.Unlock()
		r.accept(c)
		return
	}
	missing := (c.OpenTS - last) / r.step
	r.gaps++
	r.state = StateRecovering
	r.mu.Unlock()

	logger.Warnf("[%s %s] gap detected: last=%d incoming=%d missing=%d", r.symbol, r.tf, last, c.OpenTS, missing-1)
	r.fillGap(ctx, last, c.OpenTS)

	r.mu.Lock()
	r.state = StateSynced
	r.mu.Unlock()
	r.accept(c)
}

// fillGap fetches each missing boundary between last (exclusive) and
// incoming (exclusive) in order. The first unrecoverable boundary stops the
// fill; later boundaries are left as a hole.
func (r *Reconciler) fillGap(ctx context.Context, last, incoming int64) {
	for ts := last + r.step; ts < incoming; ts += r.step {
		filled, ok := r.fetchBoundary(ctx, ts)
		if !ok {
			r.mu.Lock()
			r.unrecoverable++
			r.mu.Unlock()
			logger.Errorf("[%s %s] unrecoverable gap at open_ts=%d, leaving hole", r.symbol, r.tf, ts)
			return
		}
		r.accept(filled)
		r.mu.Lock()
		r.filled++
		r.mu.Unlock()
	}
}

// fetchBoundary tries the exact endpoint first and falls back to scanning
// one recent batch when the exact lookup misses.
func (r *Reconciler) fetchBoundary(ctx context.Context, ts int64) (market.Candle, bool) {
	c, err := r.fetcher.FetchExact(ctx, r.symbol, r.tf, ts)
	if err == nil {
		return c, true
	}
	if !errors.Is(err, market.ErrNotFound) {
		logger.Warnf("[%s %s] exact fetch failed at open_ts=%d: %v", r.symbol, r.tf, ts, err)
	}
	batch, err := r.fetcher.FetchRange(ctx, r.symbol, r.tf, r.recentLimit, market.FetchRangeOptions{})
	if err != nil {
		logger.Warnf("[%s %s] fallback batch fetch failed at open_ts=%d: %v", r.symbol, r.tf, ts, err)
		return market.Candle{}, false
	}
	for _, b := range batch {
		if b.OpenTS == ts {
			return b, true
		}
	}
	return market.Candle{}, false
}

// accept admits one candle: window, async persistence, then the downstream
// callback. A panicking callback is contained so it cannot take the stream
// loop down with it.
func (r *Reconciler) accept(c market.Candle) {
	if !r.window.Append(c) {
		logger.Debugf("[%s %s] window rejected candle open_ts=%d", r.symbol, r.tf, c.OpenTS)
		return
	}
	r.mu.Lock()
	r.lastTS = c.OpenTS
	r.haveLast = true
	r.accepted++
	r.mu.Unlock()

	r.sink.AppendAsync(c)
	r.fireCallback(c)
}

func (r *Reconciler) fireCallback(c market.Candle) {
	if r.onAccepted == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			logger.Errorf("[%s %s] candle callback panicked: %v", r.symbol, r.tf, rec)
		}
	}()
	r.onAccepted(c)
}
