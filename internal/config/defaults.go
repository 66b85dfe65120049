package config

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "candlesyncd"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = ":8099"
	}

	if c.Exchange.RESTBaseURL == "" {
		c.Exchange.RESTBaseURL = "https://api.binance.com"
	}
	if c.Exchange.RequestTimeoutSeconds <= 0 {
		c.Exchange.RequestTimeoutSeconds = 15
	}
	if c.Exchange.MaxRetries <= 0 {
		c.Exchange.MaxRetries = 5
	}
	if c.Exchange.RetryBackoffMS <= 0 {
		c.Exchange.RetryBackoffMS = 1000
	}
	if c.Exchange.BackoffCeilingMS <= 0 {
		c.Exchange.BackoffCeilingMS = 30000
	}
	if c.Exchange.RateLimitBackoffMS <= 0 {
		c.Exchange.RateLimitBackoffMS = 5000
	}
	if c.Exchange.RecentBatchLimit <= 0 {
		c.Exchange.RecentBatchLimit = 50
	}

	if c.Bootstrap.Mode == "" {
		c.Bootstrap.Mode = ModeIncremental
	}
	if c.Bootstrap.MaxGapHours <= 0 {
		c.Bootstrap.MaxGapHours = 168
	}
	if c.Bootstrap.Parallelism <= 0 {
		c.Bootstrap.Parallelism = 4
	}

	if c.Orchestrator.CoalesceMS <= 0 {
		c.Orchestrator.CoalesceMS = 100
	}
	if c.Orchestrator.QueueBuffer <= 0 {
		c.Orchestrator.QueueBuffer = 512
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "data/candles.db"
	}

	for i := range c.Symbols {
		for j := range c.Symbols[i].Timeframes {
			tf := &c.Symbols[i].Timeframes[j]
			if tf.Window <= 0 {
				tf.Window = 500
			}
			if tf.Fetch <= 0 {
				tf.Fetch = tf.Window
			}
		}
	}
}
