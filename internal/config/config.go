package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds every knob of a backtest run. Loaded from YAML; the
// database DSN can be overridden through SIMTRADE_DSN so credentials
// stay out of the file.
type Config struct {
	Database struct {
		Backend string `yaml:"backend"` // "postgres" or "timescale"
		DSN     string `yaml:"dsn"`
	} `yaml:"database"`

	Backtest struct {
		Symbol    string `yaml:"symbol"`
		Interval  string `yaml:"interval"`
		StartTime int64  `yaml:"start_time"` // epoch ms, 0 = from first stored candle
		EndTime   int64  `yaml:"end_time"`   // epoch ms, 0 = until last stored candle
		Cash      string `yaml:"cash"`
		// Commission is a fraction, e.g. "0.001" for 10 bps. Applied by the
		// ledger's strategy-facing operations, never by exchange fills.
		Commission string `yaml:"commission"`
	} `yaml:"backtest"`

	History struct {
		MaxOrders     int           `yaml:"max_orders"`
		Window        time.Duration `yaml:"window"`
		SyntheticSeed int64         `yaml:"synthetic_seed"` // 0 = no seeding
	} `yaml:"history"`

	Server struct {
		Addr string `yaml:"addr"` // empty = no result server
	} `yaml:"server"`
}

// Load reads and validates the YAML configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if dsn := os.Getenv("SIMTRADE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate rejects configurations the run could not start from.
func (c *Config) Validate() error {
	switch c.Database.Backend {
	case "postgres", "timescale":
	case "":
		return fmt.Errorf("database backend is required")
	default:
		return fmt.Errorf("unknown database backend %q", c.Database.Backend)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required (file or SIMTRADE_DSN)")
	}

	if c.Backtest.Symbol == "" {
		return fmt.Errorf("backtest symbol is required")
	}
	if c.Backtest.Interval == "" {
		return fmt.Errorf("backtest interval is required")
	}
	if c.Backtest.StartTime != 0 && c.Backtest.EndTime != 0 &&
		c.Backtest.StartTime > c.Backtest.EndTime {
		return fmt.Errorf(
			"start_time %d after end_time %d",
			c.Backtest.StartTime, c.Backtest.EndTime,
		)
	}

	cash, err := decimal.NewFromString(c.Backtest.Cash)
	if err != nil {
		return fmt.Errorf("bad cash %q: %w", c.Backtest.Cash, err)
	}
	if !cash.IsPositive() {
		return fmt.Errorf("cash must be positive, got %s", cash)
	}

	if c.Backtest.Commission != "" {
		comm, err := decimal.NewFromString(c.Backtest.Commission)
		if err != nil {
			return fmt.Errorf("bad commission %q: %w", c.Backtest.Commission, err)
		}
		if comm.IsNegative() || comm.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return fmt.Errorf("commission must be in [0,1), got %s", comm)
		}
	}

	if c.History.MaxOrders < 0 {
		return fmt.Errorf("history max_orders cannot be negative")
	}
	if c.History.Window < 0 {
		return fmt.Errorf("history window cannot be negative")
	}

	return nil
}

// Cash returns the parsed starting cash. Validate has already vetted it.
func (c *Config) Cash() decimal.Decimal {
	return decimal.RequireFromString(c.Backtest.Cash)
}

// Commission returns the parsed commission rate, zero when unset.
func (c *Config) Commission() decimal.Decimal {
	if c.Backtest.Commission == "" {
		return decimal.Zero
	}
	return decimal.RequireFromString(c.Backtest.Commission)
}
