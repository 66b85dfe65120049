package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/logger"
	"github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/market"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const writeQueueSize = 4096

// SqliteSink persists candles through gorm + sqlite. All writes funnel
// through one writer goroutine so the database sees a single writer; reads
// go straight to gorm (sqlite WAL gives snapshot reads).
type SqliteSink struct {
	db *gorm.DB

	writeCh   chan []candleModel
	closeOnce sync.Once
	done      chan struct{}
}

// NewSqliteSink opens (creating if needed) the database at path and
// migrates the candle schema.
func NewSqliteSink(path string) (*SqliteSink, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	return NewSqliteSinkFromDB(db)
}

// NewSqliteSinkFromDB wraps an existing gorm handle (tests use this with an
// in-memory database).
func NewSqliteSinkFromDB(db *gorm.DB) (*SqliteSink, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db cannot be nil")
	}
	if err := db.AutoMigrate(&candleModel{}); err != nil {
		return nil, fmt.Errorf("candle schema migration failed: %w", err)
	}
	s := &SqliteSink{
		db:      db,
		writeCh: make(chan []candleModel, writeQueueSize),
		done:    make(chan struct{}),
	}
	go s.writeLoop()
	return s, nil
}

func (s *SqliteSink) writeLoop() {
	defer close(s.done)
	for batch := range s.writeCh {
		if err := s.insert(batch); err != nil {
			logger.Errorf("[store] persist batch of %d failed: %v", len(batch), err)
		}
	}
}

func (s *SqliteSink) insert(batch []candleModel) error {
	if len(batch) == 0 {
		return nil
	}
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(batch, 500).Error
}

// AppendAsync queues one candle for persistence. Never blocks: when the
// queue is full the candle is dropped with a warning.
func (s *SqliteSink) AppendAsync(c market.Candle) {
	s.enqueue([]candleModel{toModel(c, "live")})
}

// AppendBatchAsync queues a batch for persistence.
func (s *SqliteSink) AppendBatchAsync(candles []market.Candle) {
	if len(candles) == 0 {
		return
	}
	batch := make([]candleModel, 0, len(candles))
	for _, c := range candles {
		batch = append(batch, toModel(c, "rest"))
	}
	s.enqueue(batch)
}

func (s *SqliteSink) enqueue(batch []candleModel) {
	defer func() {
		// Enqueue after Close loses the write; that is the documented
		// best-effort contract, not a crash.
		if r := recover(); r != nil {
			logger.Warnf("[store] write after close dropped (%d candles)", len(batch))
		}
	}()
	select {
	case s.writeCh <- batch:
	default:
		logger.Warnf("[store] write queue full, dropping %d candles", len(batch))
	}
}

// AppendBatch writes synchronously. Bootstrap uses it so that the window
// load phase observes everything the fetch phase persisted.
func (s *SqliteSink) AppendBatch(ctx context.Context, candles []market.Candle, source string) error {
	if len(candles) == 0 {
		return nil
	}
	batch := make([]candleModel, 0, len(candles))
	for _, c := range candles {
		batch = append(batch, toModel(c, source))
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(batch, 500).Error
}

// GetLastPersisted returns the newest candle of the series, or
// market.ErrNotFound when the series is empty.
func (s *SqliteSink) GetLastPersisted(ctx context.Context, symbol, timeframe string) (market.Candle, error) {
	var m candleModel
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ?", symbol, timeframe).
		Order("open_ts DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return market.Candle{}, market.ErrNotFound
	}
	if err != nil {
		return market.Candle{}, err
	}
	return fromModel(m), nil
}

// LoadWindow returns the most recent limit candles ascending by OpenTS.
func (s *SqliteSink) LoadWindow(ctx context.Context, symbol, timeframe string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		return nil, nil
	}
	var rows []candleModel
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ?", symbol, timeframe).
		Order("open_ts DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]market.Candle, len(rows))
	for i, m := range rows {
		out[len(rows)-1-i] = fromModel(m)
	}
	return out, nil
}

// DeleteSeries removes every candle of one (symbol, timeframe).
func (s *SqliteSink) DeleteSeries(ctx context.Context, symbol, timeframe string) error {
	return s.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ?", symbol, timeframe).
		Delete(&candleModel{}).Error
}

// Count reports how many candles a series holds.
func (s *SqliteSink) Count(ctx context.Context, symbol, timeframe string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&candleModel{}).
		Where("symbol = ? AND timeframe = ?", symbol, timeframe).
		Count(&n).Error
	return n, err
}

// Close drains the write queue and stops the writer.
func (s *SqliteSink) Close() error {
	s.closeOnce.Do(func() {
		close(s.writeCh)
	})
	<-s.done
	return nil
}
