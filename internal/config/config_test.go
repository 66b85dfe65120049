package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalConfig = `
symbols:
  - name: BTCUSDT
    enabled: true
    timeframes:
      - tf: 1h
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "candlesyncd", cfg.App.Name)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":8099", cfg.App.HTTPAddr)
	assert.Equal(t, "https://api.binance.com", cfg.Exchange.RESTBaseURL)
	assert.Equal(t, 15, cfg.Exchange.RequestTimeoutSeconds)
	assert.Equal(t, 5, cfg.Exchange.MaxRetries)
	assert.Equal(t, 50, cfg.Exchange.RecentBatchLimit)
	assert.Equal(t, ModeIncremental, cfg.Bootstrap.Mode)
	assert.Equal(t, 168, cfg.Bootstrap.MaxGapHours)
	assert.Equal(t, 4, cfg.Bootstrap.Parallelism)
	assert.Equal(t, 100, cfg.Orchestrator.CoalesceMS)
	assert.Equal(t, "data/candles.db", cfg.Storage.Path)

	require.Len(t, cfg.Symbols, 1)
	tf := cfg.Symbols[0].Timeframes[0]
	assert.Equal(t, 500, tf.Window)
	assert.Equal(t, 500, tf.Fetch, "fetch defaults to window")
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
app:
  name: syncer
  log_level: debug
  http_addr: ":9000"
exchange:
  rest_base_url: https://example.test
  max_retries: 2
bootstrap:
  mode: fresh
  max_gap_hours: 24
orchestrator:
  coalesce_ms: 250
storage:
  path: /tmp/candles.db
symbols:
  - name: BTCUSDT
    enabled: true
    timeframes:
      - tf: 1h
        window: 200
        fetch: 300
        priority: 1
      - tf: 1m
        window: 100
  - name: ETHUSDT
    enabled: false
    timeframes:
      - tf: 1h
`))
	require.NoError(t, err)

	assert.Equal(t, "syncer", cfg.App.Name)
	assert.Equal(t, ModeFresh, cfg.Bootstrap.Mode)
	assert.Equal(t, 24, cfg.Bootstrap.MaxGapHours)
	assert.Equal(t, 250, cfg.Orchestrator.CoalesceMS)
	assert.Equal(t, 2, cfg.Exchange.MaxRetries)

	enabled := cfg.EnabledSymbols()
	require.Len(t, enabled, 1)
	assert.Equal(t, "BTCUSDT", enabled[0].Name)
	assert.Equal(t, 300, enabled[0].Timeframes[0].Fetch)
	assert.Equal(t, 1, enabled[0].Timeframes[0].Priority)
}

func TestLoadRejectsInvalidConfigs(t *testing.T) {
	cases := map[string]string{
		"bad mode": `
bootstrap:
  mode: partial
symbols:
  - name: BTCUSDT
    enabled: true
    timeframes:
      - tf: 1h
`,
		"no enabled symbols": `
symbols:
  - name: BTCUSDT
    enabled: false
    timeframes:
      - tf: 1h
`,
		"unknown timeframe": `
symbols:
  - name: BTCUSDT
    enabled: true
    timeframes:
      - tf: 13x
`,
		"duplicate timeframe": `
symbols:
  - name: BTCUSDT
    enabled: true
    timeframes:
      - tf: 1h
      - tf: 1h
`,
		"empty symbol name": `
symbols:
  - name: ""
    enabled: true
    timeframes:
      - tf: 1h
`,
		"no timeframes": `
symbols:
  - name: BTCUSDT
    enabled: true
    timeframes: []
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	_, err = Load("")
	assert.Error(t, err)
}
