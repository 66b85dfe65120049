package market

// Candle is a fully closed OHLCV bar. OpenTS (seconds, aligned to the
// timeframe boundary) is the canonical index everywhere in the pipeline.
// Candles are treated as immutable once built.
type Candle struct {
	Symbol    string  `json:"symbol"`
	Timeframe string  `json:"timeframe"`
	OpenTS    int64   `json:"open_ts"`
	CloseTS   int64   `json:"close_ts"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`

	QuoteVolume   float64 `json:"quote_volume,omitempty"`
	Trades        int64   `json:"trade_count,omitempty"`
	TakerBuyBase  float64 `json:"taker_buy_base,omitempty"`
	TakerBuyQuote float64 `json:"taker_buy_quote,omitempty"`
}

// Valid reports whether the bar satisfies the basic OHLCV invariants.
// Alignment is checked separately because it needs the interval.
func (c Candle) Valid() bool {
	if c.OpenTS <= 0 || c.CloseTS <= c.OpenTS {
		return false
	}
	if c.Low > c.Open || c.Low > c.Close || c.High < c.Open || c.High < c.Close {
		return false
	}
	if c.Volume < 0 {
		return false
	}
	return true
}

// CandleEvent is one closed candle delivered by a stream subscription.
type CandleEvent struct {
	Symbol    string
	Timeframe string
	Candle    Candle
}

// TimeframeSpec is the configuration-time description of one timeframe of
// one symbol: interval length, sliding-window capacity, initial fetch size
// and cross-timeframe priority rank (lower = drained first).
type TimeframeSpec struct {
	Timeframe       string
	IntervalSeconds int64
	Window          int
	Fetch           int
	Rank            int
}
