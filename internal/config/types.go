package config

// Config is the root configuration carrier.
type Config struct {
	App          AppConfig          `yaml:"app"`
	Exchange     ExchangeConfig     `yaml:"exchange"`
	Bootstrap    BootstrapConfig    `yaml:"bootstrap"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Storage      StorageConfig      `yaml:"storage"`
	Symbols      []SymbolConfig     `yaml:"symbols"`
}

type AppConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
	LogPath  string `yaml:"log_path"`
	HTTPAddr string `yaml:"http_addr"`
}

type ExchangeConfig struct {
	RESTBaseURL           string `yaml:"rest_base_url"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
	MaxRetries            int    `yaml:"max_retries"`
	RetryBackoffMS        int    `yaml:"retry_backoff_ms"`
	BackoffCeilingMS      int    `yaml:"backoff_ceiling_ms"`
	RateLimitBackoffMS    int    `yaml:"rate_limit_backoff_ms"`
	// RecentBatchLimit sizes the fallback batch the reconciler searches when
	// an exact boundary fetch comes back empty.
	RecentBatchLimit int `yaml:"recent_batch_limit"`
}

// BootstrapConfig selects the startup load strategy.
// Mode "fresh" clears every persisted series and reloads; "incremental"
// repairs only the tail gap unless it exceeds MaxGapHours.
type BootstrapConfig struct {
	Mode        string `yaml:"mode"`
	MaxGapHours int    `yaml:"max_gap_hours"`
	Parallelism int    `yaml:"parallelism"`
}

type OrchestratorConfig struct {
	CoalesceMS  int `yaml:"coalesce_ms"`
	QueueBuffer int `yaml:"queue_buffer"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

type SymbolConfig struct {
	Name       string            `yaml:"name"`
	Enabled    bool              `yaml:"enabled"`
	Timeframes []TimeframeConfig `yaml:"timeframes"`
}

type TimeframeConfig struct {
	TF     string `yaml:"tf"`
	Window int    `yaml:"window"`
	Fetch  int    `yaml:"fetch"`
	// Priority overrides the standard cross-timeframe rank when > 0.
	Priority int `yaml:"priority"`
}

// EnabledSymbols filters the symbol list down to the enabled entries.
func (c *Config) EnabledSymbols() []SymbolConfig {
	out := make([]SymbolConfig, 0, len(c.Symbols))
	for _, s := range c.Symbols {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

const (
	ModeFresh       = "fresh"
	ModeIncremental = "incremental"
)
