package store

import "github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/market"

// candleModel is the persisted row shape. (symbol, timeframe, open_ts) is
// unique; re-inserts are silently ignored so backfill and live writes can
// overlap without clobbering each other.
type candleModel struct {
	ID            uint    `gorm:"primaryKey"`
	Symbol        string  `gorm:"size:32;not null;uniqueIndex:idx_candle_key,priority:1;index:idx_candle_series,priority:1"`
	Timeframe     string  `gorm:"size:8;not null;uniqueIndex:idx_candle_key,priority:2;index:idx_candle_series,priority:2"`
	OpenTS        int64   `gorm:"not null;uniqueIndex:idx_candle_key,priority:3"`
	CloseTS       int64   `gorm:"not null"`
	Open          float64 `gorm:"not null"`
	High          float64 `gorm:"not null"`
	Low           float64 `gorm:"not null"`
	Close         float64 `gorm:"not null"`
	Volume        float64 `gorm:"not null"`
	QuoteVolume   float64
	Trades        int64
	TakerBuyBase  float64
	TakerBuyQuote float64
	Source        string `gorm:"size:16"`
}

func (candleModel) TableName() string { return "candles" }

func toModel(c market.Candle, source string) candleModel {
	return candleModel{
		Symbol:        c.Symbol,
		Timeframe:     c.Timeframe,
		OpenTS:        c.OpenTS,
		CloseTS:       c.CloseTS,
		Open:          c.Open,
		High:          c.High,
		Low:           c.Low,
		Close:         c.Close,
		Volume:        c.Volume,
		QuoteVolume:   c.QuoteVolume,
		Trades:        c.Trades,
		TakerBuyBase:  c.TakerBuyBase,
		TakerBuyQuote: c.TakerBuyQuote,
		Source:        source,
	}
}

func fromModel(m candleModel) market.Candle {
	return market.Candle{
		Symbol:        m.Symbol,
		Timeframe:     m.Timeframe,
		OpenTS:        m.OpenTS,
		CloseTS:       m.CloseTS,
		Open:          m.Open,
		High:          m.High,
		Low:           m.Low,
		Close:         m.Close,
		Volume:        m.Volume,
		QuoteVolume:   m.QuoteVolume,
		Trades:        m.Trades,
		TakerBuyBase:  m.TakerBuyBase,
		TakerBuyQuote: m.TakerBuyQuote,
	}
}
