package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/bootstrap"
	"github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/candles"
	"github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/config"
	"github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/gateway/binance"
	"github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/logger"
	"github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/market"
	"github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/store"
	transporthttp "github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/transport/http"
)

type pairKey struct {
	symbol string
	tf     string
}

// App owns the full pipeline: REST fetcher, websocket subscriber, per-symbol
// orchestrators, per-series reconcilers and windows, the sqlite sink, and
// the status server.
type App struct {
	cfg       *config.Config
	runID     string
	startedAt time.Time

	sink       *store.SqliteSink
	fetcher    *binance.Fetcher
	subscriber *binance.Subscriber
	httpSrv    *transporthttp.Server

	series        []*bootstrap.Series
	reconcilers   map[pairKey]*candles.Reconciler
	orchestrators map[string]*candles.SymbolOrchestrator

	mu     sync.RWMutex
	runCtx context.Context
}

// NewApp builds the full object graph without starting anything.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	sink, err := store.NewSqliteSink(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	gwCfg := binance.Config{
		RESTBaseURL:      cfg.Exchange.RESTBaseURL,
		HTTPTimeout:      time.Duration(cfg.Exchange.RequestTimeoutSeconds) * time.Second,
		MaxRetries:       cfg.Exchange.MaxRetries,
		RetryBackoff:     time.Duration(cfg.Exchange.RetryBackoffMS) * time.Millisecond,
		BackoffCeiling:   time.Duration(cfg.Exchange.BackoffCeilingMS) * time.Millisecond,
		RateLimitBackoff: time.Duration(cfg.Exchange.RateLimitBackoffMS) * time.Millisecond,
	}

	a := &App{
		cfg:           cfg,
		runID:         uuid.NewString(),
		sink:          sink,
		fetcher:       binance.NewFetcher(gwCfg),
		subscriber:    binance.NewSubscriber(gwCfg),
		reconcilers:   make(map[pairKey]*candles.Reconciler),
		orchestrators: make(map[string]*candles.SymbolOrchestrator),
		runCtx:        context.Background(),
	}

	coalesce := time.Duration(cfg.Orchestrator.CoalesceMS) * time.Millisecond
	for _, sym := range cfg.EnabledSymbols() {
		symbol := strings.ToUpper(sym.Name)

		ranks := make(map[string]int)
		for _, tf := range sym.Timeframes {
			if tf.Priority > 0 {
				ranks[tf.TF] = tf.Priority
			}
		}
		orch := candles.NewSymbolOrchestrator(symbol, coalesce, cfg.Orchestrator.QueueBuffer, ranks, a.processCandle(symbol))
		a.orchestrators[symbol] = orch

		for _, tf := range sym.Timeframes {
			step, ok := market.IntervalSeconds(tf.TF)
			if !ok {
				sink.Close()
				return nil, fmt.Errorf("%s: unsupported timeframe %q", symbol, tf.TF)
			}
			spec := market.TimeframeSpec{
				Timeframe:       tf.TF,
				IntervalSeconds: step,
				Window:          tf.Window,
				Fetch:           tf.Fetch,
				Rank:            candles.RankFor(tf.TF, ranks),
			}
			window := candles.NewWindow(symbol, tf.TF, spec.Window)
			rec := candles.NewReconciler(symbol, tf.TF, step, window, a.fetcher, sink, cfg.Exchange.RecentBatchLimit, nil)
			a.reconcilers[pairKey{symbol, tf.TF}] = rec
			a.series = append(a.series, &bootstrap.Series{
				Symbol:     symbol,
				Spec:       spec,
				Window:     window,
				Reconciler: rec,
			})

			timeframe := tf.TF
			err := a.subscriber.Subscribe(symbol, timeframe, func(c market.Candle) {
				orch.OnStreamCandle(timeframe, c)
			})
			if err != nil {
				sink.Close()
				return nil, fmt.Errorf("subscribe %s %s: %w", symbol, timeframe, err)
			}
		}
	}
	if len(a.series) == 0 {
		sink.Close()
		return nil, fmt.Errorf("no enabled symbol/timeframe pairs configured")
	}

	a.httpSrv = transporthttp.NewServer(cfg.App.HTTPAddr, a.statusSnapshot)
	return a, nil
}

// processCandle feeds drained candles into the matching reconciler.
func (a *App) processCandle(symbol string) func(timeframe string, c market.Candle) {
	return func(timeframe string, c market.Candle) {
		a.mu.RLock()
		rec := a.reconcilers[pairKey{symbol, timeframe}]
		ctx := a.runCtx
		a.mu.RUnlock()
		if rec == nil {
			logger.Warnf("[%s %s] no reconciler registered, dropping candle", symbol, timeframe)
			return
		}
		rec.OnClosedCandle(ctx, c)
	}
}

// Run bootstraps history, then starts the stream and the status server, and
// blocks until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	a.runCtx = ctx
	a.startedAt = time.Now()
	a.mu.Unlock()

	logger.Infof("run %s: bootstrapping %d series (mode=%s)", a.runID, len(a.series), a.cfg.Bootstrap.Mode)
	ctl := bootstrap.NewController(a.cfg.Bootstrap, a.fetcher, a.sink)
	report, err := ctl.Run(ctx, a.series)
	if err != nil {
		a.sink.Close()
		return fmt.Errorf("bootstrap: %w", err)
	}
	logger.Infof("bootstrap complete: %d ok, %d failed", len(report.Succeeded), len(report.Failed))

	if err := a.subscriber.Start(ctx); err != nil {
		a.sink.Close()
		return fmt.Errorf("start stream: %w", err)
	}
	a.httpSrv.Start()

	<-ctx.Done()
	return a.shutdown()
}

func (a *App) shutdown() error {
	logger.Infof("run %s: shutting down", a.runID)

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutCtx); err != nil {
		logger.Warnf("status server shutdown: %v", err)
	}
	if err := a.subscriber.Close(); err != nil {
		logger.Warnf("stream close: %v", err)
	}
	for _, orch := range a.orchestrators {
		orch.Shutdown()
	}
	if err := a.sink.Close(); err != nil {
		logger.Warnf("store close: %v", err)
	}
	return nil
}

type seriesStatus struct {
	Timeframe      string                  `json:"timeframe"`
	WindowSize     int                     `json:"window_size"`
	WindowCapacity int                     `json:"window_capacity"`
	WindowRejected int64                   `json:"window_rejected"`
	Reconciler     candles.ReconcilerStats `json:"reconciler"`
}

type symbolStatus struct {
	Symbol string                     `json:"symbol"`
	Queue  candles.OrchestratorStatus `json:"queue"`
	Series []seriesStatus             `json:"series"`
}

// statusSnapshot assembles the /api/status payload.
func (a *App) statusSnapshot() any {
	a.mu.RLock()
	started := a.startedAt
	a.mu.RUnlock()

	bySymbol := make(map[string]*symbolStatus)
	order := make([]string, 0, len(a.orchestrators))
	for _, s := range a.series {
		st, ok := bySymbol[s.Symbol]
		if !ok {
			st = &symbolStatus{Symbol: s.Symbol}
			if orch := a.orchestrators[s.Symbol]; orch != nil {
				st.Queue = orch.Status()
			}
			bySymbol[s.Symbol] = st
			order = append(order, s.Symbol)
		}
		st.Series = append(st.Series, seriesStatus{
			Timeframe:      s.Spec.Timeframe,
			WindowSize:     s.Window.Size(),
			WindowCapacity: s.Window.Capacity(),
			WindowRejected: s.Window.Rejected(),
			Reconciler:     s.Reconciler.Stats(),
		})
	}
	symbols := make([]symbolStatus, 0, len(order))
	for _, name := range order {
		symbols = append(symbols, *bySymbol[name])
	}

	var uptime float64
	if !started.IsZero() {
		uptime = time.Since(started).Seconds()
	}
	return map[string]any{
		"run_id":         a.runID,
		"app":            a.cfg.App.Name,
		"uptime_seconds": uptime,
		"bootstrap_mode": a.cfg.Bootstrap.Mode,
		"stream":         a.subscriber.Stats(),
		"symbols":        symbols,
	}
}
