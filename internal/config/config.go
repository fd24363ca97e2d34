// Package config defines the top-level configuration for the hedge bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by HEDGEBOT_* environment variables.
type Config struct {
	Market    MarketConfig    `toml:"market"`
	Risk      RiskConfig      `toml:"risk"`
	Monitor   MonitorConfig   `toml:"monitor"`
	Execution ExecutionConfig `toml:"execution"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Archive   ArchiveConfig   `toml:"archive"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// MarketConfig holds exchange endpoints and simulator parameters.
type MarketConfig struct {
	ClobHost  string          `toml:"clob_host"`
	WsHost    string          `toml:"ws_host"`
	Simulator SimulatorConfig `toml:"simulator"`
}

// SimulatorConfig parameterises the random-walk market used by sim mode
// and tests.
type SimulatorConfig struct {
	InitialYesPrice float64  `toml:"initial_yes_price"`
	Volatility      float64  `toml:"volatility"`
	SpreadWidth     float64  `toml:"spread_width"`
	BookDepth       float64  `toml:"book_depth"`
	SettlementIn    Duration `toml:"settlement_in"`
	Seed            int64    `toml:"seed"`
}

// RiskConfig holds the immutable risk-gate thresholds. Loaded once at start.
type RiskConfig struct {
	MaxTotalCapital      float64  `toml:"max_total_capital"`
	MaxPositionPerWindow float64  `toml:"max_position_per_window"`
	MinExpectedROI       float64  `toml:"min_expected_roi"`
	MaxDeltaRatio        float64  `toml:"max_delta_ratio"`
	MaxSlippage          float64  `toml:"max_slippage"`
	LockWindow           Duration `toml:"lock_window"`
	MaxUnhedged          Duration `toml:"max_unhedged"`
	EntryBandLow         float64  `toml:"entry_band_low"`
	EntryBandHigh        float64  `toml:"entry_band_high"`
	FeeBuffer            float64  `toml:"fee_buffer"`
	DeadSideThreshold    float64  `toml:"dead_side_threshold"`
}

// MonitorConfig holds the decision-loop parameters.
type MonitorConfig struct {
	Contracts          []string `toml:"contracts"`
	PollInterval       Duration `toml:"poll_interval"`
	DefaultOrderSize   float64  `toml:"default_order_size"`
	RebalanceOrderSize float64  `toml:"rebalance_order_size"`
	SnapshotTradeTail  int      `toml:"snapshot_trade_tail"`
}

// ExecutionConfig holds simulated-execution parameters.
type ExecutionConfig struct {
	SafetyMargin float64  `toml:"safety_margin"`
	TickSize     float64  `toml:"tick_size"`
	OrderTimeout Duration `toml:"order_timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds trade-history archival parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      Duration `toml:"interval"`
}

// ServerConfig holds HTTP server parameters. An empty APIKey disables
// authentication.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Market: MarketConfig{
			ClobHost: "https://clob.polymarket.com",
			WsHost:   "wss://ws-subscriptions-clob.polymarket.com",
			Simulator: SimulatorConfig{
				InitialYesPrice: 0.40,
				Volatility:      0.01,
				SpreadWidth:     0.02,
				BookDepth:       500,
				SettlementIn:    Duration{15 * time.Minute},
				Seed:            0,
			},
		},
		Risk: RiskConfig{
			MaxTotalCapital:      1000,
			MaxPositionPerWindow: 300,
			MinExpectedROI:       0.02,
			MaxDeltaRatio:        0.20,
			MaxSlippage:          0.01,
			LockWindow:           Duration{180 * time.Second},
			MaxUnhedged:          Duration{120 * time.Second},
			EntryBandLow:         0.35,
			EntryBandHigh:        0.50,
			FeeBuffer:            0,
			DeadSideThreshold:    0.05,
		},
		Monitor: MonitorConfig{
			PollInterval:       Duration{100 * time.Millisecond},
			DefaultOrderSize:   100,
			RebalanceOrderSize: 50,
			SnapshotTradeTail:  20,
		},
		Execution: ExecutionConfig{
			SafetyMargin: 0.005,
			TickSize:     0.01,
			OrderTimeout: Duration{2 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "hedgebot-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      Duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"profit_locked", "risk_denied", "order_filled", "monitor_stopped"},
		},
		Mode:     "sim",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"sim":     true,
	"monitor": true,
	"server":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error wrapping domain.ErrConfigInvalid describing every problem
// found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, sim, monitor, server)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Market endpoints are required outside sim mode.
	if c.Mode != "sim" {
		if c.Market.ClobHost == "" {
			errs = append(errs, "market: clob_host must not be empty")
		}
	}
	if c.Market.Simulator.Volatility < 0 {
		errs = append(errs, "market: simulator volatility must be >= 0")
	}
	if c.Market.Simulator.InitialYesPrice <= 0 || c.Market.Simulator.InitialYesPrice >= 1 {
		errs = append(errs, fmt.Sprintf("market: simulator initial_yes_price must lie in (0,1), got %.4f", c.Market.Simulator.InitialYesPrice))
	}

	// Risk thresholds
	if c.Risk.MinExpectedROI < 0 || c.Risk.MinExpectedROI >= 1 {
		errs = append(errs, fmt.Sprintf("risk: min_expected_roi must lie in [0,1), got %.4f", c.Risk.MinExpectedROI))
	}
	if c.Risk.MaxDeltaRatio <= 0 || c.Risk.MaxDeltaRatio > 1 {
		errs = append(errs, fmt.Sprintf("risk: max_delta_ratio must lie in (0,1], got %.4f", c.Risk.MaxDeltaRatio))
	}
	if c.Risk.MaxSlippage < 0 {
		errs = append(errs, "risk: max_slippage must be >= 0")
	}
	if c.Risk.EntryBandLow >= c.Risk.EntryBandHigh {
		errs = append(errs, fmt.Sprintf("risk: entry band inverted, low %.2f >= high %.2f", c.Risk.EntryBandLow, c.Risk.EntryBandHigh))
	}
	if c.Risk.EntryBandLow <= 0 || c.Risk.EntryBandHigh >= 1 {
		errs = append(errs, "risk: entry band must lie within (0,1)")
	}
	if c.Risk.MaxTotalCapital <= 0 {
		errs = append(errs, "risk: max_total_capital must be > 0")
	}
	if c.Risk.MaxPositionPerWindow <= 0 {
		errs = append(errs, "risk: max_position_per_window must be > 0")
	}
	if c.Risk.FeeBuffer < 0 {
		errs = append(errs, "risk: fee_buffer must be >= 0")
	}
	if c.Risk.LockWindow.Duration < 0 {
		errs = append(errs, "risk: lock_window must be >= 0")
	}
	if c.Risk.MaxUnhedged.Duration <= 0 {
		errs = append(errs, "risk: max_unhedged must be > 0")
	}
	if c.Risk.DeadSideThreshold <= 0 || c.Risk.DeadSideThreshold >= 0.5 {
		errs = append(errs, fmt.Sprintf("risk: dead_side_threshold must lie in (0,0.5), got %.4f", c.Risk.DeadSideThreshold))
	}

	// Monitor
	if c.Monitor.PollInterval.Duration <= 0 {
		errs = append(errs, "monitor: poll_interval must be > 0")
	}
	if c.Monitor.DefaultOrderSize <= 0 {
		errs = append(errs, "monitor: default_order_size must be > 0")
	}
	if c.Monitor.RebalanceOrderSize <= 0 {
		errs = append(errs, "monitor: rebalance_order_size must be > 0")
	}
	if c.Monitor.SnapshotTradeTail < 0 {
		errs = append(errs, "monitor: snapshot_trade_tail must be >= 0")
	}

	// Execution
	if c.Execution.SafetyMargin < 0 {
		errs = append(errs, "execution: safety_margin must be >= 0")
	}
	if c.Execution.SafetyMargin > c.Risk.MaxSlippage {
		errs = append(errs, fmt.Sprintf("execution: safety_margin %.4f must not exceed risk max_slippage %.4f", c.Execution.SafetyMargin, c.Risk.MaxSlippage))
	}
	if c.Execution.TickSize <= 0 || c.Execution.TickSize >= 1 {
		errs = append(errs, fmt.Sprintf("execution: tick_size must lie in (0,1), got %.4f", c.Execution.TickSize))
	}
	if c.Execution.OrderTimeout.Duration <= 0 {
		errs = append(errs, "execution: order_timeout must be > 0")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 settings only matter when archival is on.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", domain.ErrConfigInvalid, strings.Join(errs, "\n  - "))
	}
	return nil
}
