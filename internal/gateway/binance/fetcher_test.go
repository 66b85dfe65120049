package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/market"
)

// klineRow renders one kline in the provider's wire shape.
func klineRow(openMS int64) []any {
	return []any{
		openMS,
		"100.0", "110.0", "90.0", "105.0", "12.0",
		openMS + 60_000 - 1,
		"1300.0", 10, "6.0", "650.0", "0",
	}
}

type klineServer struct {
	t        *testing.T
	series   []int64 // open times in ms, ascending
	requests atomic.Int32
	failures int32 // first N requests answer 500
}

func (s *klineServer) handler(w http.ResponseWriter, r *http.Request) {
	n := s.requests.Add(1)
	if n <= atomic.LoadInt32(&s.failures) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"code":-1000,"msg":"internal error"}`)
		return
	}

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = 500
	}
	startMS, _ := strconv.ParseInt(q.Get("startTime"), 10, 64)
	endMS, _ := strconv.ParseInt(q.Get("endTime"), 10, 64)

	var rows [][]any
	for _, open := range s.series {
		if startMS > 0 && open < startMS {
			continue
		}
		if endMS > 0 && open > endMS {
			continue
		}
		rows = append(rows, klineRow(open))
	}
	// The provider returns the most recent window when only endTime bounds
	// the request.
	if len(rows) > limit {
		if startMS > 0 {
			rows = rows[:limit]
		} else {
			rows = rows[len(rows)-limit:]
		}
	}
	w.Header().Set("Content-Type", "application/json")
	require.NoError(s.t, json.NewEncoder(w).Encode(rows))
}

func newTestFetcher(t *testing.T, srv *klineServer) (*Fetcher, func()) {
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	f := NewFetcher(Config{
		RESTBaseURL:    ts.URL,
		HTTPTimeout:    2 * time.Second,
		MaxRetries:     3,
		RetryBackoff:   time.Millisecond,
		BackoffCeiling: 5 * time.Millisecond,
	})
	// Freeze "now" just after the 1700000400 boundary so the bar opening
	// there is still forming.
	f.nowFn = func() time.Time { return time.Unix(1700000410, 0) }
	return f, ts.Close
}

func minuteSeriesMS(fromSec, toSec int64) []int64 {
	var out []int64
	for ts := fromSec; ts <= toSec; ts += 60 {
		out = append(out, ts*1000)
	}
	return out
}

func TestFetchRangeRecentExcludesFormingBar(t *testing.T) {
	srv := &klineServer{t: t, series: minuteSeriesMS(1700000040, 1700000400)}
	f, done := newTestFetcher(t, srv)
	defer done()

	got, err := f.FetchRange(context.Background(), "btcusdt", "1m", 3, market.FetchRangeOptions{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(1700000220), got[0].OpenTS)
	assert.Equal(t, int64(1700000280), got[1].OpenTS)
	assert.Equal(t, int64(1700000340), got[2].OpenTS, "forming 1700000400 bar excluded")
	assert.Equal(t, "BTCUSDT", got[0].Symbol)
}

func TestFetchRangeExplicitBounds(t *testing.T) {
	srv := &klineServer{t: t, series: minuteSeriesMS(1700000040, 1700000340)}
	f, done := newTestFetcher(t, srv)
	defer done()

	got, err := f.FetchRange(context.Background(), "BTCUSDT", "1m", 100, market.FetchRangeOptions{
		StartTS: 1700000100,
		EndTS:   1700000220,
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(1700000100), got[0].OpenTS)
	assert.Equal(t, int64(1700000220), got[2].OpenTS, "EndTS is inclusive")
}

func TestFetchExact(t *testing.T) {
	srv := &klineServer{t: t, series: minuteSeriesMS(1700000040, 1700000340)}
	f, done := newTestFetcher(t, srv)
	defer done()

	c, err := f.FetchExact(context.Background(), "BTCUSDT", "1m", 1700000100)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000100), c.OpenTS)

	_, err = f.FetchExact(context.Background(), "BTCUSDT", "1m", 1800000000)
	assert.ErrorIs(t, err, market.ErrNotFound)
}

func TestFetchRetriesServerErrors(t *testing.T) {
	srv := &klineServer{t: t, series: minuteSeriesMS(1700000040, 1700000340), failures: 2}
	f, done := newTestFetcher(t, srv)
	defer done()

	got, err := f.FetchRange(context.Background(), "BTCUSDT", "1m", 2, market.FetchRangeOptions{})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.GreaterOrEqual(t, srv.requests.Load(), int32(3))
}

func TestFetchRangeRejectsUnknownTimeframe(t *testing.T) {
	srv := &klineServer{t: t}
	f, done := newTestFetcher(t, srv)
	defer done()

	_, err := f.FetchRange(context.Background(), "BTCUSDT", "13x", 10, market.FetchRangeOptions{})
	assert.Error(t, err)
}
