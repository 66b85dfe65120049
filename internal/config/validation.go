package config

import (
	"fmt"
	"strings"

	"github.com/jfj5pvtjn8-ux/ai-trading-bot-sub000/internal/market"
)

func validate(cfg *Config) error {
	switch strings.ToLower(cfg.Bootstrap.Mode) {
	case ModeFresh, ModeIncremental:
		cfg.Bootstrap.Mode = strings.ToLower(cfg.Bootstrap.Mode)
	default:
		return fmt.Errorf("bootstrap.mode must be %q or %q, got %q", ModeFresh, ModeIncremental, cfg.Bootstrap.Mode)
	}

	enabled := cfg.EnabledSymbols()
	if len(enabled) == 0 {
		return fmt.Errorf("at least one enabled symbol is required")
	}

	for _, sym := range enabled {
		name := strings.TrimSpace(sym.Name)
		if name == "" {
			return fmt.Errorf("symbol name cannot be empty")
		}
		if len(sym.Timeframes) == 0 {
			return fmt.Errorf("symbol %s has no timeframes", name)
		}
		seen := map[string]bool{}
		for _, tf := range sym.Timeframes {
			if _, ok := market.IntervalSeconds(tf.TF); !ok {
				return fmt.Errorf("symbol %s: unknown timeframe %q", name, tf.TF)
			}
			if seen[tf.TF] {
				return fmt.Errorf("symbol %s: duplicate timeframe %q", name, tf.TF)
			}
			seen[tf.TF] = true
			if tf.Window <= 0 {
				return fmt.Errorf("symbol %s %s: window must be positive", name, tf.TF)
			}
			if tf.Fetch <= 0 {
				return fmt.Errorf("symbol %s %s: fetch must be positive", name, tf.TF)
			}
			if tf.Priority < 0 {
				return fmt.Errorf("symbol %s %s: priority cannot be negative", name, tf.TF)
			}
		}
	}
	return nil
}
