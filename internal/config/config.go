package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Bitkub   Bitkub   `mapstructure:"bitkub"`
	Trading  Trading  `mapstructure:"trading"`
	Strategy Strategy `mapstructure:"strategy"`
	Risk     Risk     `mapstructure:"risk"`
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	Notify   Notify   `mapstructure:"notify"`
	Tracing  Tracing  `mapstructure:"tracing"`
}

// Bitkub holds the configuration for the Bitkub API.
type Bitkub struct {
	ApiKey      string `mapstructure:"apiKey"`
	SecretKey   string `mapstructure:"secretKey"`
	BaseURL     string `mapstructure:"base_url"`
	StreamURL   string `mapstructure:"stream_url"`
	Timeout     int    `mapstructure:"timeout"`      // seconds
	RateLimit   int    `mapstructure:"rate_limit"`   // requests per window
	RateWindow  int    `mapstructure:"rate_window"`  // seconds
	RateLimiter string `mapstructure:"rate_limiter"` // "window" or "token"
}

// Trading holds the configuration for the polling loop and order sizing.
type Trading struct {
	Symbol            string  `mapstructure:"symbol"`
	TradeAmount       float64 `mapstructure:"trade_amount"` // THB per buy
	Interval          int     `mapstructure:"interval"`     // seconds between iterations
	MinTradeInterval  int     `mapstructure:"min_trade_interval"`
	PaperTrading      bool    `mapstructure:"paper_trading"`
	PaperBalance      float64 `mapstructure:"paper_balance"`
	PriceSource       string  `mapstructure:"price_source"` // "rest" or "websocket"
	StreamMaxAge      int     `mapstructure:"stream_max_age"`
	HistorySize       int     `mapstructure:"history_size"`
	CancelStaleOrders bool    `mapstructure:"cancel_stale_orders"`
	LogHoldSignals    bool    `mapstructure:"log_hold_signals"`
}

// Strategy holds the thresholds used by the trading strategies.
// Every *Pct field is expressed in percent (0.25 means 0.25%).
type Strategy struct {
	Name                string  `mapstructure:"name" json:"name" yaml:"name"`
	RSIPeriod           int     `mapstructure:"rsi_period" json:"rsi_period" yaml:"rsi_period"`
	RSIOversold         float64 `mapstructure:"rsi_oversold" json:"rsi_oversold" yaml:"rsi_oversold"`
	RSIOverbought       float64 `mapstructure:"rsi_overbought" json:"rsi_overbought" yaml:"rsi_overbought"`
	MakerFeePct         float64 `mapstructure:"maker_fee_pct" json:"maker_fee_pct" yaml:"maker_fee_pct"`
	TakerFeePct         float64 `mapstructure:"taker_fee_pct" json:"taker_fee_pct" yaml:"taker_fee_pct"`
	SlippagePct         float64 `mapstructure:"slippage_pct" json:"slippage_pct" yaml:"slippage_pct"`
	MinProfitMarginPct  float64 `mapstructure:"min_profit_margin_pct" json:"min_profit_margin_pct" yaml:"min_profit_margin_pct"`
	StopLossPct         float64 `mapstructure:"stop_loss_pct" json:"stop_loss_pct" yaml:"stop_loss_pct"`
	TakeProfitPct       float64 `mapstructure:"take_profit_pct" json:"take_profit_pct" yaml:"take_profit_pct"`
	MaxHoldHours        float64 `mapstructure:"max_hold_hours" json:"max_hold_hours" yaml:"max_hold_hours"`
	MinRSIExitProfitPct float64 `mapstructure:"min_rsi_exit_profit_pct" json:"min_rsi_exit_profit_pct" yaml:"min_rsi_exit_profit_pct"`
	BollingerConfirm    bool    `mapstructure:"bollinger_confirm" json:"bollinger_confirm" yaml:"bollinger_confirm"`
}

// Risk holds the daily caps and failure limits of the trading loop.
type Risk struct {
	MaxDailyTrades       int     `mapstructure:"max_daily_trades"`
	MaxDailyLoss         float64 `mapstructure:"max_daily_loss"` // THB
	MaxConsecutiveErrors int     `mapstructure:"max_consecutive_errors"`
	CapSleep             int     `mapstructure:"cap_sleep"` // seconds
}

// Server holds the configuration for the HTTP endpoints.
type Server struct {
	Port       int `mapstructure:"port"`
	StatusPort int `mapstructure:"status_port"`
}

// Database holds the configuration for the database.
type Database struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Notify holds the configuration for out-of-band notifications.
type Notify struct {
	TelegramToken  string `mapstructure:"telegram_token"`
	TelegramChatID int64  `mapstructure:"telegram_chat_id"`
}

// Tracing holds the configuration for OpenTelemetry tracing.
type Tracing struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// LoadConfig reads configuration from file or environment variables.
// path is either a directory containing config.{yml,json,ini} or a file.
func LoadConfig(path string) (config Config, err error) {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	v := viper.New()
	if ext := filepath.Ext(path); ext != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(path)
		v.SetConfigName("config")
	}

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return config, fmt.Errorf("failed to read config: %w", err)
		}
		err = nil
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to decode config: %w", err)
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	// Credentials must be known keys for AutomaticEnv to pick them up.
	v.SetDefault("bitkub.apiKey", "")
	v.SetDefault("bitkub.secretKey", "")
	v.SetDefault("bitkub.base_url", "https://api.bitkub.com")
	v.SetDefault("bitkub.stream_url", "wss://api.bitkub.com/websocket-api")
	v.SetDefault("bitkub.timeout", 15)
	v.SetDefault("bitkub.rate_limit", 200)
	v.SetDefault("bitkub.rate_window", 10)
	v.SetDefault("bitkub.rate_limiter", "window")

	v.SetDefault("trading.symbol", "THB_BTC")
	v.SetDefault("trading.trade_amount", 100)
	v.SetDefault("trading.interval", 30)
	v.SetDefault("trading.min_trade_interval", 300)
	v.SetDefault("trading.paper_trading", true)
	v.SetDefault("trading.paper_balance", 10000)
	v.SetDefault("trading.price_source", "rest")
	v.SetDefault("trading.stream_max_age", 60)
	v.SetDefault("trading.history_size", 100)
	v.SetDefault("trading.cancel_stale_orders", false)
	v.SetDefault("trading.log_hold_signals", false)

	d := DefaultStrategy()
	v.SetDefault("strategy.name", d.Name)
	v.SetDefault("strategy.rsi_period", d.RSIPeriod)
	v.SetDefault("strategy.rsi_oversold", d.RSIOversold)
	v.SetDefault("strategy.rsi_overbought", d.RSIOverbought)
	v.SetDefault("strategy.maker_fee_pct", d.MakerFeePct)
	v.SetDefault("strategy.taker_fee_pct", d.TakerFeePct)
	v.SetDefault("strategy.slippage_pct", d.SlippagePct)
	v.SetDefault("strategy.min_profit_margin_pct", d.MinProfitMarginPct)
	v.SetDefault("strategy.stop_loss_pct", d.StopLossPct)
	v.SetDefault("strategy.take_profit_pct", d.TakeProfitPct)
	v.SetDefault("strategy.max_hold_hours", d.MaxHoldHours)
	v.SetDefault("strategy.min_rsi_exit_profit_pct", d.MinRSIExitProfitPct)
	v.SetDefault("strategy.bollinger_confirm", d.BollingerConfirm)

	v.SetDefault("risk.max_daily_trades", 10)
	v.SetDefault("risk.max_daily_loss", 500)
	v.SetDefault("risk.max_consecutive_errors", 5)
	v.SetDefault("risk.cap_sleep", 3600)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.file", "")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.status_port", 8081)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "bitkub_trades.db")

	v.SetDefault("notify.telegram_token", "")
	v.SetDefault("notify.telegram_chat_id", 0)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "bitkub-trade-bot")
}

// DefaultStrategy returns the thresholds of the fee-aware "profitable" strategy.
func DefaultStrategy() Strategy {
	return Strategy{
		Name:                "profitable",
		RSIPeriod:           14,
		RSIOversold:         30,
		RSIOverbought:       70,
		MakerFeePct:         0.25,
		TakerFeePct:         0.25,
		SlippagePct:         0.1,
		MinProfitMarginPct:  0.8,
		StopLossPct:         2,
		TakeProfitPct:       1.5,
		MaxHoldHours:        24,
		MinRSIExitProfitPct: 0.3,
	}
}

// Validate reports every out-of-range setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !c.Trading.PaperTrading && (c.Bitkub.ApiKey == "" || c.Bitkub.SecretKey == "") {
		add("bitkub.apiKey and bitkub.secretKey are required for live trading")
	}
	if c.Bitkub.RateLimit <= 0 || c.Bitkub.RateWindow <= 0 {
		add("bitkub.rate_limit and bitkub.rate_window must be positive")
	}
	switch c.Bitkub.RateLimiter {
	case "window", "token":
	default:
		add("bitkub.rate_limiter must be \"window\" or \"token\", got %q", c.Bitkub.RateLimiter)
	}
	if strings.TrimSpace(c.Trading.Symbol) == "" {
		add("trading.symbol is required")
	}
	if c.Trading.TradeAmount <= 0 {
		add("trading.trade_amount must be positive")
	}
	if c.Trading.Interval <= 0 {
		add("trading.interval must be positive")
	}
	if c.Trading.HistorySize <= c.Strategy.RSIPeriod {
		add("trading.history_size (%d) must exceed strategy.rsi_period (%d)", c.Trading.HistorySize, c.Strategy.RSIPeriod)
	}
	switch c.Trading.PriceSource {
	case "rest", "websocket":
	default:
		add("trading.price_source must be \"rest\" or \"websocket\", got %q", c.Trading.PriceSource)
	}
	if err := c.Strategy.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Risk.MaxConsecutiveErrors <= 0 {
		add("risk.max_consecutive_errors must be positive")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		add("database.driver must be \"sqlite\" or \"postgres\", got %q", c.Database.Driver)
	}

	return errors.Join(errs...)
}

// Validate checks the strategy thresholds.
func (s *Strategy) Validate() error {
	var errs []error
	if s.RSIPeriod <= 0 {
		errs = append(errs, fmt.Errorf("strategy.rsi_period must be positive"))
	}
	if s.RSIOversold <= 0 || s.RSIOversold >= s.RSIOverbought || s.RSIOverbought >= 100 {
		errs = append(errs, fmt.Errorf("strategy rsi thresholds must satisfy 0 < oversold < overbought < 100"))
	}
	if s.MakerFeePct < 0 || s.TakerFeePct < 0 || s.SlippagePct < 0 {
		errs = append(errs, fmt.Errorf("strategy fees must not be negative"))
	}
	if s.StopLossPct <= 0 || s.TakeProfitPct <= 0 {
		errs = append(errs, fmt.Errorf("strategy.stop_loss_pct and strategy.take_profit_pct must be positive"))
	}
	return errors.Join(errs...)
}
