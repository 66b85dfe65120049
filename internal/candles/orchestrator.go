package candles

import (
	"container/heap"
	"sync"
	"time"

	"github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/logger"
	"github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/market"
)

// Default timeframe ranks: longer timeframes drain first so downstream
// consumers see the higher-timeframe close before the lower ones from the
// same wall-clock boundary. Unknown timeframes sort last.
const unknownRank = 99

var defaultRanks = map[string]int{
	"1h":  1,
	"15m": 2,
	"5m":  3,
	"1m":  4,
}

// RankFor resolves a timeframe's drain priority, preferring the explicit
// override when one is configured.
func RankFor(timeframe string, overrides map[string]int) int {
	if r, ok := overrides[timeframe]; ok {
		return r
	}
	if r, ok := defaultRanks[timeframe]; ok {
		return r
	}
	return unknownRank
}

type queueItem struct {
	rank   int
	seq    uint64
	tf     string
	candle market.Candle
}

// itemHeap orders by rank, breaking ties by arrival sequence so equal-rank
// candles keep FIFO order.
type itemHeap []queueItem

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	if h[i].rank != h[j].rank {
		return h[i].rank < h[j].rank
	}
	return h[i].seq < h[j].seq
}
func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x any)   { *h = append(*h, x.(queueItem)) }
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// OrchestratorStatus is a point-in-time view of one symbol's queue.
type OrchestratorStatus struct {
	Symbol     string `json:"symbol"`
	QueueDepth int    `json:"queue_depth"`
	Enqueued   int64  `json:"enqueued"`
	Processed  int64  `json:"processed"`
	Discarded  int64  `json:"discarded"`
}

// SymbolOrchestrator serializes multi-timeframe candle processing for one
// symbol. Candles that land within the coalescing delay of each other are
// drained together in rank order instead of arrival order, so a 1h close is
// always handled before the 1m close of the same boundary.
type SymbolOrchestrator struct {
	symbol   string
	coalesce time.Duration
	maxDepth int
	ranks    map[string]int
	process  func(timeframe string, c market.Candle)

	mu    sync.Mutex
	queue itemHeap
	seq   uint64
	shut  bool

	drainMu sync.Mutex

	enqueued  int64
	processed int64
	discarded int64
}

// NewSymbolOrchestrator builds the per-symbol queue. rankOverrides may be
// nil; maxDepth <= 0 means unbounded; process is invoked on the drain
// goroutine, one candle at a time.
func NewSymbolOrchestrator(symbol string, coalesce time.Duration, maxDepth int, rankOverrides map[string]int, process func(timeframe string, c market.Candle)) *SymbolOrchestrator {
	if coalesce <= 0 {
		coalesce = 100 * time.Millisecond
	}
	return &SymbolOrchestrator{
		symbol:   symbol,
		coalesce: coalesce,
		maxDepth: maxDepth,
		ranks:    rankOverrides,
		process:  process,
	}
}

// OnStreamCandle enqueues one closed candle and arms the coalescing timer.
// The timer fires a drain; overlapping timers are harmless because only one
// drain runs at a time and a drain empties the whole queue.
func (o *SymbolOrchestrator) OnStreamCandle(timeframe string, c market.Candle) {
	o.mu.Lock()
	if o.shut {
		o.mu.Unlock()
		return
	}
	if o.maxDepth > 0 && o.queue.Len() >= o.maxDepth {
		o.discarded++
		o.mu.Unlock()
		logger.Warnf("[%s] queue full (%d), dropping %s candle open_ts=%d", o.symbol, o.maxDepth, timeframe, c.OpenTS)
		time.AfterFunc(o.coalesce, o.drain)
		return
	}
	o.seq++
	heap.Push(&o.queue, queueItem{
		rank:   RankFor(timeframe, o.ranks),
		seq:    o.seq,
		tf:     timeframe,
		candle: c,
	})
	o.enqueued++
	o.mu.Unlock()

	time.AfterFunc(o.coalesce, o.drain)
}

// drain empties the queue in rank order. TryLock makes concurrent timer
// firings a no-op; whichever drain is running will pick up the new items.
func (o *SymbolOrchestrator) drain() {
	if !o.drainMu.TryLock() {
		return
	}
	defer o.drainMu.Unlock()

	for {
		o.mu.Lock()
		if o.shut || o.queue.Len() == 0 {
			o.mu.Unlock()
			return
		}
		item := heap.Pop(&o.queue).(queueItem)
		o.processed++
		o.mu.Unlock()

		o.process(item.tf, item.candle)
	}
}

// Shutdown stops accepting candles and discards anything still queued.
func (o *SymbolOrchestrator) Shutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.shut {
		return
	}
	o.shut = true
	if n := o.queue.Len(); n > 0 {
		o.discarded += int64(n)
		logger.Infof("[%s] discarding %d queued candles on shutdown", o.symbol, n)
	}
	o.queue = o.queue[:0]
}

func (o *SymbolOrchestrator) Status() OrchestratorStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return OrchestratorStatus{
		Symbol:     o.symbol,
		QueueDepth: o.queue.Len(),
		Enqueued:   o.enqueued,
		Processed:  o.processed,
		Discarded:  o.discarded,
	}
}
