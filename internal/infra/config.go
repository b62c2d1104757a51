package infra

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds all application settings. Sensitive values can be
// overridden through environment variables after loading.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	API struct {
		Binance struct {
			WSURL     string `yaml:"ws_url"`
			RestURL   string `yaml:"rest_url"`
			AccessKey string `yaml:"access_key"`
			SecretKey string `yaml:"secret_key"`
		} `yaml:"binance"`
	} `yaml:"api"`

	Trading struct {
		Symbols           []string        `yaml:"symbols"`
		InitialBalance    decimal.Decimal `yaml:"initial_balance"`
		CommissionRate    decimal.Decimal `yaml:"commission_rate"`
		Slippage          decimal.Decimal `yaml:"slippage"`
		PositionSizePct   decimal.Decimal `yaml:"position_size_pct"`
		AutoTrading       bool            `yaml:"auto_trading"`
		CheckIntervalSec  int             `yaml:"check_interval_sec"`
		MinSignalStrength float64         `yaml:"min_signal_strength"`
	} `yaml:"trading"`

	Risk struct {
		MaxDailyTrades      int             `yaml:"max_daily_trades"`
		MaxDailyLossPct     decimal.Decimal `yaml:"max_daily_loss_pct"`
		MaxPositionFraction decimal.Decimal `yaml:"max_position_fraction"`
		MinTradeAmount      decimal.Decimal `yaml:"min_trade_amount"`
		StopLossPct         decimal.Decimal `yaml:"stop_loss_pct"`
		TakeProfitPct       decimal.Decimal `yaml:"take_profit_pct"`
	} `yaml:"risk"`

	Strategy struct {
		Active string `yaml:"active"`

		DualMA struct {
			ShortPeriod int             `yaml:"short_period"`
			LongPeriod  int             `yaml:"long_period"`
			Threshold   decimal.Decimal `yaml:"threshold"`
		} `yaml:"dual_ma"`

		RSI struct {
			Period     int             `yaml:"period"`
			Overbought decimal.Decimal `yaml:"overbought"`
			Oversold   decimal.Decimal `yaml:"oversold"`
		} `yaml:"rsi"`

		MACD struct {
			FastPeriod   int `yaml:"fast_period"`
			SlowPeriod   int `yaml:"slow_period"`
			SignalPeriod int `yaml:"signal_period"`
		} `yaml:"macd"`

		Composite struct {
			Weights map[string]float64 `yaml:"weights"`
		} `yaml:"composite"`
	} `yaml:"strategy"`

	Push struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"push"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Reports struct {
		Dir string `yaml:"dir"`
	} `yaml:"reports"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults fills in optional fields that were left unset.
func applyDefaults(cfg *Config) {
	if cfg.Trading.CheckIntervalSec <= 0 {
		cfg.Trading.CheckIntervalSec = 5
	}
	if cfg.Trading.MinSignalStrength <= 0 {
		cfg.Trading.MinSignalStrength = 0.7
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "data/simtrader.db"
	}
	if cfg.Reports.Dir == "" {
		cfg.Reports.Dir = "reports"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Push.Addr == "" {
		cfg.Push.Addr = ":8765"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if len(c.Trading.Symbols) == 0 {
		return fmt.Errorf("at least one trading symbol is required")
	}
	if !c.Trading.InitialBalance.IsPositive() {
		return fmt.Errorf("initial balance must be positive")
	}
	if c.Trading.CommissionRate.IsNegative() || c.Trading.CommissionRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("commission rate must be in [0, 1)")
	}
	if c.Trading.Slippage.IsNegative() {
		return fmt.Errorf("slippage must not be negative")
	}
	if !c.Trading.PositionSizePct.IsPositive() || c.Trading.PositionSizePct.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("position size pct must be in (0, 1]")
	}

	if c.Risk.MaxDailyTrades <= 0 {
		return fmt.Errorf("max daily trades must be positive")
	}
	if !c.Risk.MaxPositionFraction.IsPositive() || c.Risk.MaxPositionFraction.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("max position fraction must be in (0, 1]")
	}
	if c.Risk.StopLossPct.IsNegative() || c.Risk.TakeProfitPct.IsNegative() {
		return fmt.Errorf("stop loss and take profit percentages must not be negative")
	}

	if c.API.Binance.WSURL != "" && !strings.HasPrefix(c.API.Binance.WSURL, "ws://") && !strings.HasPrefix(c.API.Binance.WSURL, "wss://") {
		return fmt.Errorf("invalid Binance WS URL: %s", c.API.Binance.WSURL)
	}

	if s := c.Strategy.DualMA; s.ShortPeriod > 0 && s.ShortPeriod >= s.LongPeriod {
		return fmt.Errorf("dual_ma short period must be less than long period")
	}
	if s := c.Strategy.MACD; s.FastPeriod > 0 && s.FastPeriod >= s.SlowPeriod {
		return fmt.Errorf("macd fast period must be less than slow period")
	}

	return nil
}

// overrideWithEnv replaces settings from environment variables when present.
func overrideWithEnv(cfg *Config) {
	if key := os.Getenv("SIMTRADER_BINANCE_KEY"); key != "" {
		cfg.API.Binance.AccessKey = key
	}
	if secret := os.Getenv("SIMTRADER_BINANCE_SECRET"); secret != "" {
		cfg.API.Binance.SecretKey = secret
	}
}
