package candles

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/market"
)

func mkCandle(openTS int64) market.Candle {
	return market.Candle{
		Symbol:    "BTCUSDT",
		Timeframe: "1m",
		OpenTS:    openTS,
		CloseTS:   openTS + 60,
		Open:      100, High: 110, Low: 90, Close: 105,
		Volume: 1,
	}
}

func TestWindowEvictsOldestAtCapacity(t *testing.T) {
	w := NewWindow("BTCUSDT", "1m", 3)
	for _, ts := range []int64{100, 200, 300, 400} {
		assert.True(t, w.Append(mkCandle(ts)))
	}

	got := w.GetAll()
	assert.Len(t, got, 3)
	assert.Equal(t, int64(200), got[0].OpenTS)
	assert.Equal(t, int64(300), got[1].OpenTS)
	assert.Equal(t, int64(400), got[2].OpenTS)
	assert.Equal(t, 3, w.Size())
	assert.Equal(t, 3, w.Capacity())
}

func TestWindowRejectsOutOfOrder(t *testing.T) {
	w := NewWindow("BTCUSDT", "1m", 5)
	assert.True(t, w.Append(mkCandle(200)))

	assert.False(t, w.Append(mkCandle(200)), "duplicate timestamp")
	assert.False(t, w.Append(mkCandle(100)), "older timestamp")
	assert.Equal(t, int64(2), w.Rejected())
	assert.Equal(t, 1, w.Size())

	assert.True(t, w.Append(mkCandle(260)))
	assert.Equal(t, int64(2), w.Rejected())
}

func TestWindowAccessors(t *testing.T) {
	w := NewWindow("ETHUSDT", "5m", 4)

	_, ok := w.GetLatest()
	assert.False(t, ok)
	_, ok = w.LastTimestamp()
	assert.False(t, ok)
	assert.Empty(t, w.LastN(2))

	for _, ts := range []int64{100, 200, 300} {
		w.Append(mkCandle(ts))
	}

	latest, ok := w.GetLatest()
	assert.True(t, ok)
	assert.Equal(t, int64(300), latest.OpenTS)

	last, ok := w.LastTimestamp()
	assert.True(t, ok)
	assert.Equal(t, int64(300), last)

	lastTwo := w.LastN(2)
	assert.Len(t, lastTwo, 2)
	assert.Equal(t, int64(200), lastTwo[0].OpenTS)
	assert.Equal(t, int64(300), lastTwo[1].OpenTS)

	assert.Len(t, w.LastN(10), 3)
}

func TestWindowSustainedEviction(t *testing.T) {
	// Push many times the capacity through the window so eviction wraps the
	// backing buffer repeatedly; contents must always be the newest tail.
	w := NewWindow("BTCUSDT", "1m", 3)
	var last int64
	for ts := int64(60); ts <= 60*20; ts += 60 {
		assert.True(t, w.Append(mkCandle(ts)))
		last = ts

		got := w.GetAll()
		wantLen := int(ts / 60)
		if wantLen > 3 {
			wantLen = 3
		}
		assert.Len(t, got, wantLen)
		for i, c := range got {
			assert.Equal(t, ts-int64(wantLen-1-i)*60, c.OpenTS)
		}
	}

	latest, ok := w.GetLatest()
	assert.True(t, ok)
	assert.Equal(t, last, latest.OpenTS)
	assert.Equal(t, 3, w.Size())
	assert.Equal(t, int64(0), w.Rejected())
}

func TestWindowLoadInitialKeepsNewest(t *testing.T) {
	w := NewWindow("BTCUSDT", "1m", 2)
	w.Append(mkCandle(50))

	w.LoadInitial([]market.Candle{mkCandle(100), mkCandle(200), mkCandle(300)})

	got := w.GetAll()
	assert.Len(t, got, 2)
	assert.Equal(t, int64(200), got[0].OpenTS)
	assert.Equal(t, int64(300), got[1].OpenTS)
}
