package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/logger"
	"github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/market"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
)

// Fetcher implements market.HistoricalFetcher over the Binance spot REST
// API via the go-binance SDK.
type Fetcher struct {
	cfg    Config
	client *gobinance.Client
	nowFn  func() time.Time
}

func NewFetcher(cfg Config) *Fetcher {
	final := cfg.withDefaults()
	client := gobinance.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	client.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	return &Fetcher{cfg: final, client: client, nowFn: time.Now}
}

// FetchRange returns up to limit candles sorted ascending by open
// timestamp, deduplicated, paginating past the provider's 1000-bar page
// size. With an end bound (explicit or implied) pages move backwards from
// the bound; with only a start bound they move forwards.
func (f *Fetcher) FetchRange(ctx context.Context, symbol, timeframe string, limit int, opts market.FetchRangeOptions) ([]market.Candle, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	timeframe = strings.ToLower(strings.TrimSpace(timeframe))
	step, ok := market.IntervalSeconds(timeframe)
	if !ok {
		return nil, fmt.Errorf("unknown timeframe %q", timeframe)
	}
	if limit <= 0 {
		limit = 100
	}

	var startMS, endMS int64
	if opts.StartTS > 0 {
		startMS = opts.StartTS * 1000
	}
	if opts.EndTS > 0 {
		// EndTS is an inclusive open timestamp; the provider's endTime bound
		// is against open times, so include the whole final bar.
		endMS = (opts.EndTS+step)*1000 - 1
	}
	if startMS == 0 && endMS == 0 {
		// Most recent closed candles: bound at the last closed boundary so
		// the forming bar never enters the result.
		endMS = (market.AlignDown(f.nowFn().Unix(), step))*1000 - 1
	}
	backwards := endMS > 0 && startMS == 0

	var all []market.Candle
	remaining := limit
	nextStart, nextEnd := startMS, endMS
	for remaining > 0 {
		batchLimit := remaining
		if batchLimit > pageLimit {
			batchLimit = pageLimit
		}
		raw, err := f.klinesWithRetry(ctx, symbol, timeframe, batchLimit, nextStart, nextEnd)
		if err != nil {
			if len(all) == 0 {
				return nil, err
			}
			logger.Warnf("[fetcher] %s %s pagination aborted after %d candles: %v", symbol, timeframe, len(all), err)
			break
		}
		if len(raw) == 0 {
			break
		}
		minOpen, maxOpen := raw[0].OpenTime, raw[0].OpenTime
		for _, kl := range raw {
			if kl == nil {
				continue
			}
			if kl.OpenTime < minOpen {
				minOpen = kl.OpenTime
			}
			if kl.OpenTime > maxOpen {
				maxOpen = kl.OpenTime
			}
			c, valid := normalizeKline(symbol, timeframe, kl)
			if !valid {
				logger.Warnf("[fetcher] %s %s dropping malformed kline open=%d", symbol, timeframe, kl.OpenTime)
				continue
			}
			all = append(all, c)
		}
		remaining -= len(raw)
		if len(raw) < batchLimit {
			break
		}
		if backwards {
			nextEnd = minOpen - 1
		} else {
			nextStart = maxOpen + 1
		}
	}

	out, misaligned := dedupeSortLimit(all, step, limit)
	if misaligned > 0 {
		logger.Warnf("[fetcher] %s %s dropped %d misaligned candles during pagination", symbol, timeframe, misaligned)
	}
	return out, nil
}

// FetchExact returns the candle opening at openTS, or market.ErrNotFound.
func (f *Fetcher) FetchExact(ctx context.Context, symbol, timeframe string, openTS int64) (market.Candle, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	timeframe = strings.ToLower(strings.TrimSpace(timeframe))
	step, ok := market.IntervalSeconds(timeframe)
	if !ok {
		return market.Candle{}, fmt.Errorf("unknown timeframe %q", timeframe)
	}
	startMS := openTS * 1000
	endMS := (openTS+step)*1000 - 1
	raw, err := f.klinesWithRetry(ctx, symbol, timeframe, 2, startMS, endMS)
	if err != nil {
		return market.Candle{}, err
	}
	for _, kl := range raw {
		c, valid := normalizeKline(symbol, timeframe, kl)
		if valid && c.OpenTS == openTS {
			return c, nil
		}
	}
	return market.Candle{}, market.ErrNotFound
}

func (f *Fetcher) klinesWithRetry(ctx context.Context, symbol, timeframe string, limit int, startMS, endMS int64) ([]*gobinance.Kline, error) {
	backoff := f.cfg.RetryBackoff
	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxRetries; attempt++ {
		svc := f.client.NewKlinesService().Symbol(symbol).Interval(timeframe).Limit(limit)
		if startMS > 0 {
			svc = svc.StartTime(startMS)
		}
		if endMS > 0 {
			svc = svc.EndTime(endMS)
		}
		raw, err := svc.Do(ctx)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		wait := backoff
		if isRateLimited(err) {
			wait = f.cfg.RateLimitBackoff
			logger.Warnf("[fetcher] %s %s rate limited, waiting %s (attempt %d/%d)", symbol, timeframe, wait, attempt, f.cfg.MaxRetries)
		} else if isRetryable(err) {
			logger.Warnf("[fetcher] %s %s transport error: %v (attempt %d/%d)", symbol, timeframe, err, attempt, f.cfg.MaxRetries)
		} else {
			return nil, err
		}
		if wait > f.cfg.BackoffCeiling {
			wait = f.cfg.BackoffCeiling
		}
		if !sleepWithContext(ctx, wait) {
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	logger.Errorf("[fetcher] %s %s exhausted %d retries: %v", symbol, timeframe, f.cfg.MaxRetries, lastErr)
	return nil, fmt.Errorf("klines %s %s: retries exhausted: %w", symbol, timeframe, lastErr)
}

// Binance signals rate limiting with -1003 (too many requests) and -1015
// (too many orders); the SDK surfaces both as common.APIError. The
// provider's Retry-After hint is not exposed through the SDK, so the
// configured rate-limit backoff (capped at the ceiling) stands in for it.
func isRateLimited(err error) bool {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == -1003 || apiErr.Code == -1015
	}
	return false
}

func isRetryable(err error) bool {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		// Server-side codes; everything else (bad symbol, bad interval) is
		// a caller bug and retrying cannot help.
		return apiErr.Code <= -1000 && apiErr.Code >= -1099 && apiErr.Code != -1003 && apiErr.Code != -1015
	}
	// Timeouts and connection resets arrive as plain transport errors.
	return true
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
