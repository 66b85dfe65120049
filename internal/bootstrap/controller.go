package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/candles"
	"github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/config"
	"github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/logger"
	"github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/market"
)

// Store is the persistence surface bootstrap needs: the async sink plus a
// synchronous batch append, because bootstrap must know its history landed
// before the stream starts.
type Store interface {
	market.Sink
	AppendBatch(ctx context.Context, candles []market.Candle, source string) error
}

// Series binds one (symbol, timeframe) pair to its in-memory state.
type Series struct {
	Symbol     string
	Spec       market.TimeframeSpec
	Window     *candles.Window
	Reconciler *candles.Reconciler
}

func (s *Series) key() string {
	return s.Symbol + " " + s.Spec.Timeframe
}

// Report summarizes one bootstrap run.
type Report struct {
	Succeeded []string
	Failed    map[string]string
}

// Controller fills the store with history (fresh or incremental), then
// hydrates each series' window and continuity anchor from what was
// persisted.
type Controller struct {
	cfg     config.BootstrapConfig
	fetcher market.HistoricalFetcher
	store   Store
	nowFn   func() time.Time
}

func NewController(cfg config.BootstrapConfig, fetcher market.HistoricalFetcher, store Store) *Controller {
	return &Controller{
		cfg:     cfg,
		fetcher: fetcher,
		store:   store,
		nowFn:   time.Now,
	}
}

// Run bootstraps every series, parallel across symbols and serial within
// one symbol's timeframes. A pair that fails is logged and skipped; the run
// as a whole fails only when no pair at all came up.
func (c *Controller) Run(ctx context.Context, series []*Series) (*Report, error) {
	report := &Report{Failed: make(map[string]string)}
	var mu sync.Mutex

	bySymbol := make(map[string][]*Series)
	var symbols []string
	for _, s := range series {
		if _, ok := bySymbol[s.Symbol]; !ok {
			symbols = append(symbols, s.Symbol)
		}
		bySymbol[s.Symbol] = append(bySymbol[s.Symbol], s)
	}

	g, gctx := errgroup.WithContext(ctx)
	limit := c.cfg.Parallelism
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for _, symbol := range symbols {
		group := bySymbol[symbol]
		g.Go(func() error {
			for _, s := range group {
				if err := c.bootstrapSeries(gctx, s); err != nil {
					logger.Errorf("[bootstrap] %s failed: %v", s.key(), err)
					mu.Lock()
					report.Failed[s.key()] = err.Error()
					mu.Unlock()
					continue
				}
				mu.Lock()
				report.Succeeded = append(report.Succeeded, s.key())
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	if len(report.Succeeded) == 0 {
		return report, fmt.Errorf("bootstrap failed for all %d series", len(series))
	}
	if n := len(report.Failed); n > 0 {
		logger.Warnf("[bootstrap] %d of %d series failed", n, len(series))
	}
	return report, nil
}

func (c *Controller) bootstrapSeries(ctx context.Context, s *Series) error {
	if err := c.ensureHistory(ctx, s); err != nil {
		return err
	}
	return c.hydrate(ctx, s)
}

// ensureHistory brings the persisted series up to the last closed boundary.
func (c *Controller) ensureHistory(ctx context.Context, s *Series) error {
	if c.cfg.Mode == config.ModeFresh {
		return c.reload(ctx, s)
	}

	last, err := c.store.GetLastPersisted(ctx, s.Symbol, s.Spec.Timeframe)
	if errors.Is(err, market.ErrNotFound) {
		logger.Infof("[bootstrap] %s has no history, loading fresh", s.key())
		return c.reload(ctx, s)
	}
	if err != nil {
		return fmt.Errorf("last persisted: %w", err)
	}

	step := s.Spec.IntervalSeconds
	target := market.LastClosedOpen(c.nowFn().Unix(), step)
	gap := (target - last.OpenTS) / step
	if gap <= 0 {
		logger.Infof("[bootstrap] %s already current (last=%d)", s.key(), last.OpenTS)
		return nil
	}
	maxGap := int64(c.cfg.MaxGapHours) * 3600
	if maxGap > 0 && gap*step > maxGap {
		logger.Warnf("[bootstrap] %s gap of %d candles exceeds %dh, reloading series", s.key(), gap, c.cfg.MaxGapHours)
		return c.reload(ctx, s)
	}

	logger.Infof("[bootstrap] %s catching up %d candles from %d", s.key(), gap, last.OpenTS+step)
	batch, err := c.fetcher.FetchRange(ctx, s.Symbol, s.Spec.Timeframe, int(gap), market.FetchRangeOptions{
		StartTS: last.OpenTS + step,
		EndTS:   target,
	})
	if err != nil {
		return fmt.Errorf("catch-up fetch: %w", err)
	}
	batch = dropUnclosed(batch, c.nowFn().Unix(), step)
	if len(batch) == 0 {
		return nil
	}
	return c.store.AppendBatch(ctx, batch, "bootstrap")
}

// reload wipes the persisted series and loads a full fetch-sized batch.
func (c *Controller) reload(ctx context.Context, s *Series) error {
	if err := c.store.DeleteSeries(ctx, s.Symbol, s.Spec.Timeframe); err != nil {
		return fmt.Errorf("delete series: %w", err)
	}
	batch, err := c.fetcher.FetchRange(ctx, s.Symbol, s.Spec.Timeframe, s.Spec.Fetch, market.FetchRangeOptions{})
	if err != nil {
		return fmt.Errorf("full fetch: %w", err)
	}
	batch = dropUnclosed(batch, c.nowFn().Unix(), s.Spec.IntervalSeconds)
	if len(batch) == 0 {
		return fmt.Errorf("exchange returned no closed candles")
	}
	return c.store.AppendBatch(ctx, batch, "bootstrap")
}

// hydrate fills the in-memory window from the store and seeds the
// reconciler so the first streamed candle is continuity-checked.
func (c *Controller) hydrate(ctx context.Context, s *Series) error {
	window, err := c.store.LoadWindow(ctx, s.Symbol, s.Spec.Timeframe, s.Spec.Window)
	if err != nil {
		return fmt.Errorf("load window: %w", err)
	}
	if len(window) == 0 {
		return fmt.Errorf("no persisted candles after bootstrap")
	}
	s.Window.LoadInitial(window)
	s.Reconciler.SeedLastTimestamp(window[len(window)-1].OpenTS)
	logger.Infof("[bootstrap] %s hydrated %d candles, last=%d", s.key(), len(window), window[len(window)-1].OpenTS)
	return nil
}

// dropUnclosed trims trailing bars whose interval has not finished yet.
// The REST endpoint includes the forming bar when the request races a
// boundary.
func dropUnclosed(batch []market.Candle, now, step int64) []market.Candle {
	cutoff := market.AlignDown(now, step)
	for len(batch) > 0 && batch[len(batch)-1].OpenTS >= cutoff {
		batch = batch[:len(batch)-1]
	}
	return batch
}
