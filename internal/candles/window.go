package candles

import (
	"sync"

	"github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/market"
)

// Window is a fixed-capacity sliding window of closed candles for one
// (symbol, timeframe), ordered by open timestamp ascending. Appends that
// would break monotonic ordering are rejected and counted.
//
// Eviction advances a start offset instead of shifting the slice; the
// backing array is compacted once per capacity evictions, keeping Append
// amortized O(1).
type Window struct {
	mu       sync.RWMutex
	symbol   string
	tf       string
	capacity int
	data     []market.Candle
	start    int
	rejected int64
}

func NewWindow(symbol, timeframe string, capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{
		symbol:   symbol,
		tf:       timeframe,
		capacity: capacity,
		data:     make([]market.Candle, 0, 2*capacity),
	}
}

// size must be called with the lock held.
func (w *Window) size() int { return len(w.data) - w.start }

// Append adds a candle if its open timestamp is strictly newer than the
// current tail. When full, the oldest entry is evicted first. Returns false
// for out-of-order or duplicate timestamps.
func (w *Window) Append(c market.Candle) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n := len(w.data); n > w.start && c.OpenTS <= w.data[n-1].OpenTS {
		w.rejected++
		return false
	}
	if w.size() == w.capacity {
		w.start++
	}
	w.data = append(w.data, c)
	if w.start >= w.capacity {
		w.data = append(w.data[:0], w.data[w.start:]...)
		w.start = 0
	}
	return true
}

// LoadInitial replaces the window contents with a bootstrap batch. The
// batch must already be sorted ascending; only the newest capacity entries
// are kept.
func (w *Window) LoadInitial(batch []market.Candle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(batch) > w.capacity {
		batch = batch[len(batch)-w.capacity:]
	}
	w.start = 0
	w.data = append(w.data[:0], batch...)
}

// GetAll returns a copy of the window, oldest first.
func (w *Window) GetAll() []market.Candle {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]market.Candle, w.size())
	copy(out, w.data[w.start:])
	return out
}

// GetLatest returns the newest candle, or false when empty.
func (w *Window) GetLatest() (market.Candle, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.size() == 0 {
		return market.Candle{}, false
	}
	return w.data[len(w.data)-1], true
}

// LastTimestamp returns the newest open timestamp, or false when empty.
func (w *Window) LastTimestamp() (int64, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.size() == 0 {
		return 0, false
	}
	return w.data[len(w.data)-1].OpenTS, true
}

// LastN returns a copy of the newest n candles, oldest first. n larger
// than the window size returns everything.
func (w *Window) LastN(n int) []market.Candle {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	if n > w.size() {
		n = w.size()
	}
	out := make([]market.Candle, n)
	copy(out, w.data[len(w.data)-n:])
	return out
}

func (w *Window) Size() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.size()
}

func (w *Window) Capacity() int {
	return w.capacity
}

func (w *Window) Symbol() string { return w.symbol }

func (w *Window) Timeframe() string { return w.tf }

// Rejected reports how many appends were refused for ordering violations.
func (w *Window) Rejected() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.rejected
}
