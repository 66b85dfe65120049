package market

import (
	"context"
	"errors"
)

// ErrNotFound is returned by exact-timestamp fetches when the provider has
// no candle at the requested boundary.
var ErrNotFound = errors.New("candle not found")

// FetchRangeOptions narrows a range fetch. Zero values mean "unset"; with
// neither set the fetcher returns the most recent closed candles.
type FetchRangeOptions struct {
	StartTS int64 // open timestamp, seconds, inclusive
	EndTS   int64 // open timestamp, seconds, inclusive
}

// HistoricalFetcher is the paginated REST side of the pipeline. Retry,
// backoff and rate-limit handling are part of the implementation's
// contract: callers see either ordered candles or an error after the
// attempt budget is spent.
type HistoricalFetcher interface {
	// FetchRange returns up to limit candles sorted ascending by OpenTS,
	// deduplicated, paginating transparently past the provider page size.
	FetchRange(ctx context.Context, symbol, timeframe string, limit int, opts FetchRangeOptions) ([]Candle, error)

	// FetchExact returns the single candle opening at openTS, or
	// ErrNotFound when the provider has no bar on that boundary.
	FetchExact(ctx context.Context, symbol, timeframe string, openTS int64) (Candle, error)
}

// StreamHandler receives one closed candle per invocation.
type StreamHandler func(Candle)

// SourceStats is a snapshot of stream connection health.
type SourceStats struct {
	Connected       bool   `json:"connected"`
	Reconnects      int    `json:"reconnects"`
	SubscribeErrors int    `json:"subscribe_errors"`
	LastError       string `json:"last_error,omitempty"`
}

// StreamSubscriber pushes closed candles per (symbol, timeframe) key.
// Handlers are registered before Start; one handler per key. Reconnecting
// with backoff is the implementation's concern up to its attempt cap,
// after which Stats reports a disconnected state.
type StreamSubscriber interface {
	Subscribe(symbol, timeframe string, handler StreamHandler) error
	Start(ctx context.Context) error
	Stats() SourceStats
	Close() error
}

// Sink is the asynchronous, best-effort persistence target. Append calls
// never block the pipeline; failures are logged by the implementation.
type Sink interface {
	AppendAsync(candle Candle)
	AppendBatchAsync(candles []Candle)
	GetLastPersisted(ctx context.Context, symbol, timeframe string) (Candle, error)
	LoadWindow(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
	DeleteSeries(ctx context.Context, symbol, timeframe string) error
	Close() error
}
