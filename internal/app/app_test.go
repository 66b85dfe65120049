package app

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		App: config.AppConfig{
			Name:     "candlesyncd",
			LogLevel: "error",
			HTTPAddr: ":0",
		},
		Exchange: config.ExchangeConfig{
			RESTBaseURL:           "https://api.binance.com",
			RequestTimeoutSeconds: 5,
			MaxRetries:            1,
			RetryBackoffMS:        10,
			BackoffCeilingMS:      20,
			RateLimitBackoffMS:    10,
			RecentBatchLimit:      50,
		},
		Bootstrap:    config.BootstrapConfig{Mode: config.ModeIncremental, MaxGapHours: 168, Parallelism: 2},
		Orchestrator: config.OrchestratorConfig{CoalesceMS: 100, QueueBuffer: 64},
		Storage:      config.StorageConfig{Path: filepath.Join(t.TempDir(), "candles.db")},
		Symbols: []config.SymbolConfig{
			{
				Name:    "btcusdt",
				Enabled: true,
				Timeframes: []config.TimeframeConfig{
					{TF: "1h", Window: 10, Fetch: 10},
					{TF: "1m", Window: 20, Fetch: 20, Priority: 8},
				},
			},
			{
				Name:       "ETHUSDT",
				Enabled:    false,
				Timeframes: []config.TimeframeConfig{{TF: "1h", Window: 10, Fetch: 10}},
			},
		},
	}
}

func TestNewAppBuildsSeriesForEnabledSymbols(t *testing.T) {
	a, err := NewApp(testConfig(t))
	require.NoError(t, err)
	defer a.sink.Close()

	assert.Len(t, a.series, 2)
	assert.Len(t, a.orchestrators, 1)
	assert.Contains(t, a.orchestrators, "BTCUSDT")
	assert.Contains(t, a.reconcilers, pairKey{"BTCUSDT", "1h"})
	assert.Contains(t, a.reconcilers, pairKey{"BTCUSDT", "1m"})
	assert.NotEmpty(t, a.runID)
}

func TestNewAppRejectsBadConfigs(t *testing.T) {
	_, err := NewApp(nil)
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Symbols[0].Enabled = false
	_, err = NewApp(cfg)
	assert.Error(t, err, "no enabled pairs")

	cfg = testConfig(t)
	cfg.Symbols[0].Timeframes[0].TF = "13x"
	_, err = NewApp(cfg)
	assert.Error(t, err, "unsupported timeframe")
}

func TestStatusSnapshotShape(t *testing.T) {
	a, err := NewApp(testConfig(t))
	require.NoError(t, err)
	defer a.sink.Close()

	snap, ok := a.statusSnapshot().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, a.runID, snap["run_id"])
	assert.Equal(t, "candlesyncd", snap["app"])
	assert.Equal(t, config.ModeIncremental, snap["bootstrap_mode"])

	symbols, ok := snap["symbols"].([]symbolStatus)
	require.True(t, ok)
	require.Len(t, symbols, 1)
	assert.Equal(t, "BTCUSDT", symbols[0].Symbol)
	require.Len(t, symbols[0].Series, 2)
	assert.Equal(t, 10, symbols[0].Series[0].WindowCapacity)
	assert.Equal(t, "uninitialized", symbols[0].Series[0].Reconciler.State)
}
