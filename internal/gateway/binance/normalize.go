package binance

import (
	"slices"
	"strconv"
	"strings"

	"github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/market"

	gobinance "github.com/adshao/go-binance/v2"
)

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}

// normalizeKline converts a REST kline into the pipeline shape. Binance
// reports millisecond times; the canonical index is seconds.
func normalizeKline(symbol, timeframe string, kl *gobinance.Kline) (market.Candle, bool) {
	if kl == nil {
		return market.Candle{}, false
	}
	c := market.Candle{
		Symbol:        symbol,
		Timeframe:     timeframe,
		OpenTS:        kl.OpenTime / 1000,
		CloseTS:       kl.CloseTime / 1000,
		Open:          parseFloat(kl.Open),
		High:          parseFloat(kl.High),
		Low:           parseFloat(kl.Low),
		Close:         parseFloat(kl.Close),
		Volume:        parseFloat(kl.Volume),
		QuoteVolume:   parseFloat(kl.QuoteAssetVolume),
		Trades:        kl.TradeNum,
		TakerBuyBase:  parseFloat(kl.TakerBuyBaseAssetVolume),
		TakerBuyQuote: parseFloat(kl.TakerBuyQuoteAssetVolume),
	}
	return c, c.Valid()
}

// normalizeWsKline converts a websocket kline event. Only final bars are
// expected here; the caller filters on IsFinal.
func normalizeWsKline(symbol string, k gobinance.WsKline) (market.Candle, bool) {
	c := market.Candle{
		Symbol:        strings.ToUpper(strings.TrimSpace(symbol)),
		Timeframe:     strings.ToLower(strings.TrimSpace(k.Interval)),
		OpenTS:        k.StartTime / 1000,
		CloseTS:       k.EndTime / 1000,
		Open:          parseFloat(k.Open),
		High:          parseFloat(k.High),
		Low:           parseFloat(k.Low),
		Close:         parseFloat(k.Close),
		Volume:        parseFloat(k.Volume),
		QuoteVolume:   parseFloat(k.QuoteVolume),
		Trades:        k.TradeNum,
		TakerBuyBase:  parseFloat(k.ActiveBuyVolume),
		TakerBuyQuote: parseFloat(k.ActiveBuyQuoteVolume),
	}
	if c.Symbol == "" || c.Timeframe == "" {
		return market.Candle{}, false
	}
	return c, c.Valid()
}

// dedupeSortLimit deduplicates by OpenTS keeping the last occurrence,
// sorts ascending and keeps the most recent limit bars. Misaligned bars
// are dropped and counted so the caller can log them.
func dedupeSortLimit(candles []market.Candle, step int64, limit int) ([]market.Candle, int) {
	misaligned := 0
	byTS := make(map[int64]market.Candle, len(candles))
	order := make([]int64, 0, len(candles))
	for _, c := range candles {
		if !market.IsAligned(c.OpenTS, step) {
			misaligned++
			continue
		}
		if _, ok := byTS[c.OpenTS]; !ok {
			order = append(order, c.OpenTS)
		}
		byTS[c.OpenTS] = c
	}
	slices.Sort(order)
	if limit > 0 && len(order) > limit {
		order = order[len(order)-limit:]
	}
	out := make([]market.Candle, 0, len(order))
	for _, ts := range order {
		out = append(out, byTS[ts])
	}
	return out, misaligned
}
