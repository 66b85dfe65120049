package binance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/market"

	gobinance "github.com/adshao/go-binance/v2"
)

func TestSubscribeValidation(t *testing.T) {
	s := NewSubscriber(Config{})
	h := func(market.Candle) {}

	assert.Error(t, s.Subscribe("BTCUSDT", "1m", nil))
	assert.Error(t, s.Subscribe("", "1m", h))
	assert.Error(t, s.Subscribe("BTCUSDT", "", h))

	require.NoError(t, s.Subscribe(" btcusdt ", "1M", h))
	assert.Error(t, s.Subscribe("BTCUSDT", "1m", h), "canonical key already taken")
	require.NoError(t, s.Subscribe("BTCUSDT", "1h", h))
}

func TestDispatchRoutesFinalKlinesOnly(t *testing.T) {
	s := NewSubscriber(Config{})
	var got []market.Candle
	require.NoError(t, s.Subscribe("BTCUSDT", "1m", func(c market.Candle) {
		got = append(got, c)
	}))

	forming := &gobinance.WsKlineEvent{
		Symbol: "BTCUSDT",
		Kline: gobinance.WsKline{
			StartTime: 1700000040000, EndTime: 1700000099999,
			Interval: "1m", IsFinal: false,
			Open: "1", High: "2", Low: "0.5", Close: "1.5", Volume: "3",
		},
	}
	s.dispatch(forming)
	assert.Empty(t, got)

	final := *forming
	final.Kline.IsFinal = true
	s.dispatch(&final)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1700000040), got[0].OpenTS)
	assert.Equal(t, "BTCUSDT", got[0].Symbol)

	// No registration for this timeframe: dropped, not panicking.
	other := final
	other.Kline.Interval = "5m"
	assert.NotPanics(t, func() { s.dispatch(&other) })
	assert.Len(t, got, 1)

	s.dispatch(nil)
	assert.Len(t, got, 1)
}

func TestStatsReflectsConnectionState(t *testing.T) {
	s := NewSubscriber(Config{})
	assert.False(t, s.Stats().Connected, "no connections yet")

	s.setTotal(2)
	s.markConnected("1m")
	assert.False(t, s.Stats().Connected, "one of two loops up")
	s.markConnected("1h")
	assert.True(t, s.Stats().Connected)

	s.markDisconnected("1m", assert.AnError)
	stats := s.Stats()
	assert.False(t, stats.Connected)
	assert.Equal(t, 1, stats.Reconnects)
	assert.Equal(t, assert.AnError.Error(), stats.LastError)
}

func TestStartRequiresSubscriptions(t *testing.T) {
	s := NewSubscriber(Config{})
	err := s.Start(context.Background())
	assert.Error(t, err)
}

func TestBackoffHelpers(t *testing.T) {
	assert.Equal(t, 2*time.Second, nextDelay(time.Second, time.Minute))
	assert.Equal(t, time.Minute, nextDelay(40*time.Second, time.Minute))
	assert.Equal(t, time.Second, nextDelay(0, time.Minute))

	base := 2 * time.Second
	j := jitter(base)
	assert.GreaterOrEqual(t, j, base)
	assert.LessOrEqual(t, j, base+base/2)
}
