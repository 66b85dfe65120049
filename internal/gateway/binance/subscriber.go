package binance

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/logger"
	"github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/market"

	gobinance "github.com/adshao/go-binance/v2"
)

type streamKey struct {
	symbol    string
	timeframe string
}

// Subscriber implements market.StreamSubscriber over Binance spot
// websocket kline streams. Handlers are held in a registration table keyed
// by (symbol, timeframe); one combined connection is opened per timeframe
// and each connection runs its own reconnect loop.
type Subscriber struct {
	cfg Config

	mu       sync.Mutex
	handlers map[streamKey]market.StreamHandler
	started  bool
	cancel   context.CancelFunc

	statsMu   sync.Mutex
	stats     market.SourceStats
	active    int
	exhausted int
	total     int

	wg sync.WaitGroup
}

func NewSubscriber(cfg Config) *Subscriber {
	return &Subscriber{
		cfg:      cfg.withDefaults(),
		handlers: make(map[streamKey]market.StreamHandler),
	}
}

// Subscribe registers the handler for one (symbol, timeframe). Must be
// called before Start; one handler per key.
func (s *Subscriber) Subscribe(symbol, timeframe string, handler market.StreamHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}
	key := streamKey{
		symbol:    strings.ToUpper(strings.TrimSpace(symbol)),
		timeframe: strings.ToLower(strings.TrimSpace(timeframe)),
	}
	if key.symbol == "" || key.timeframe == "" {
		return fmt.Errorf("symbol and timeframe are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("cannot subscribe after start")
	}
	if _, dup := s.handlers[key]; dup {
		return fmt.Errorf("duplicate subscription for %s %s", key.symbol, key.timeframe)
	}
	s.handlers[key] = handler
	return nil
}

// Start opens one combined kline connection per timeframe and keeps each
// alive with jittered exponential backoff up to the attempt cap.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("already started")
	}
	if len(s.handlers) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no subscriptions registered")
	}
	s.started = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	// Group symbols by timeframe: the spot combined kline endpoint takes
	// one interval per symbol, so each timeframe gets its own connection.
	byTF := make(map[string]map[string]string)
	for key := range s.handlers {
		m, ok := byTF[key.timeframe]
		if !ok {
			m = make(map[string]string)
			byTF[key.timeframe] = m
		}
		m[key.symbol] = key.timeframe
	}
	s.mu.Unlock()
	s.setTotal(len(byTF))

	for tf, pairs := range byTF {
		s.wg.Add(1)
		go func(tf string, pairs map[string]string) {
			defer s.wg.Done()
			s.runKlineLoop(runCtx, tf, pairs)
		}(tf, pairs)
	}
	return nil
}

func (s *Subscriber) runKlineLoop(ctx context.Context, tf string, pairs map[string]string) {
	attempts := 0
	delay := s.cfg.RetryBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		handler := func(event *gobinance.WsKlineEvent) {
			s.dispatch(event)
		}
		var errMu sync.Mutex
		var lastErr error
		errHandler := func(err error) {
			if err == nil {
				return
			}
			errMu.Lock()
			lastErr = err
			errMu.Unlock()
		}

		doneC, stopC, err := gobinance.WsCombinedKlineServe(pairs, handler, errHandler)
		if err != nil {
			s.recordSubscribeError(err)
			attempts++
			if attempts >= s.cfg.MaxReconnectAttempts {
				logger.Errorf("[stream] %s: max reconnect attempts (%d) reached, giving up", tf, attempts)
				s.markExhausted()
				return
			}
			if !sleepWithContext(ctx, jitter(delay)) {
				return
			}
			delay = nextDelay(delay, s.cfg.BackoffCeiling)
			continue
		}

		attempts = 0
		delay = s.cfg.RetryBackoff
		s.markConnected(tf)

		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
			s.markStopped()
			return
		case <-doneC:
		}
		errMu.Lock()
		errCopy := lastErr
		errMu.Unlock()
		s.markDisconnected(tf, errCopy)
		if !sleepWithContext(ctx, jitter(delay)) {
			return
		}
		delay = nextDelay(delay, s.cfg.BackoffCeiling)
	}
}

// dispatch routes one final kline to its registered handler. Forming bars
// are ignored; only closed candles enter the pipeline.
func (s *Subscriber) dispatch(event *gobinance.WsKlineEvent) {
	if event == nil || !event.Kline.IsFinal {
		return
	}
	c, valid := normalizeWsKline(event.Symbol, event.Kline)
	if !valid {
		logger.Warnf("[stream] dropping malformed kline %s %s open=%d", event.Symbol, event.Kline.Interval, event.Kline.StartTime)
		return
	}
	s.mu.Lock()
	handler := s.handlers[streamKey{symbol: c.Symbol, timeframe: c.Timeframe}]
	s.mu.Unlock()
	if handler == nil {
		logger.Warnf("[stream] no handler registered for %s %s", c.Symbol, c.Timeframe)
		return
	}
	handler(c)
}

func (s *Subscriber) Stats() market.SourceStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	out := s.stats
	out.Connected = s.total > 0 && s.active == s.total
	return out
}

func (s *Subscriber) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	return nil
}

// setTotal records how many connection loops Stats must see connected
// before reporting healthy. Guarded by statsMu like the rest of the
// connection counters.
func (s *Subscriber) setTotal(n int) {
	s.statsMu.Lock()
	s.total = n
	s.statsMu.Unlock()
}

func (s *Subscriber) markConnected(tf string) {
	s.statsMu.Lock()
	s.active++
	s.statsMu.Unlock()
	logger.Infof("[stream] %s connected", tf)
}

func (s *Subscriber) markDisconnected(tf string, err error) {
	s.statsMu.Lock()
	if s.active > 0 {
		s.active--
	}
	s.stats.Reconnects++
	if err != nil {
		s.stats.LastError = err.Error()
	}
	s.statsMu.Unlock()
	if err != nil {
		logger.Warnf("[stream] %s disconnected: %v", tf, err)
	}
}

// markStopped is the orderly-shutdown path; it does not count as a
// reconnect.
func (s *Subscriber) markStopped() {
	s.statsMu.Lock()
	if s.active > 0 {
		s.active--
	}
	s.statsMu.Unlock()
}

func (s *Subscriber) markExhausted() {
	s.statsMu.Lock()
	s.exhausted++
	s.statsMu.Unlock()
}

func (s *Subscriber) recordSubscribeError(err error) {
	s.statsMu.Lock()
	s.stats.SubscribeErrors++
	s.stats.LastError = err.Error()
	s.statsMu.Unlock()
}

func nextDelay(current, ceiling time.Duration) time.Duration {
	if current <= 0 {
		return time.Second
	}
	next := current * 2
	if next > ceiling {
		next = ceiling
	}
	return next
}

// jitter spreads reconnect storms out by up to 50% of the base delay.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(int64(d)/2+1))
}
