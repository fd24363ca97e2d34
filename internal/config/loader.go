package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies HEDGEBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known HEDGEBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Market ──
	setStr(&cfg.Market.ClobHost, "HEDGEBOT_MARKET_CLOB_HOST")
	setStr(&cfg.Market.WsHost, "HEDGEBOT_MARKET_WS_HOST")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxTotalCapital, "HEDGEBOT_RISK_MAX_TOTAL_CAPITAL")
	setFloat64(&cfg.Risk.MaxPositionPerWindow, "HEDGEBOT_RISK_MAX_POSITION_PER_WINDOW")
	setFloat64(&cfg.Risk.MinExpectedROI, "HEDGEBOT_RISK_MIN_EXPECTED_ROI")
	setFloat64(&cfg.Risk.MaxDeltaRatio, "HEDGEBOT_RISK_MAX_DELTA_RATIO")
	setFloat64(&cfg.Risk.MaxSlippage, "HEDGEBOT_RISK_MAX_SLIPPAGE")
	setDuration(&cfg.Risk.LockWindow, "HEDGEBOT_RISK_LOCK_WINDOW")
	setDuration(&cfg.Risk.MaxUnhedged, "HEDGEBOT_RISK_MAX_UNHEDGED")
	setFloat64(&cfg.Risk.EntryBandLow, "HEDGEBOT_RISK_ENTRY_BAND_LOW")
	setFloat64(&cfg.Risk.EntryBandHigh, "HEDGEBOT_RISK_ENTRY_BAND_HIGH")
	setFloat64(&cfg.Risk.FeeBuffer, "HEDGEBOT_RISK_FEE_BUFFER")
	setFloat64(&cfg.Risk.DeadSideThreshold, "HEDGEBOT_RISK_DEAD_SIDE_THRESHOLD")

	// ── Monitor ──
	setStringSlice(&cfg.Monitor.Contracts, "HEDGEBOT_MONITOR_CONTRACTS")
	setDuration(&cfg.Monitor.PollInterval, "HEDGEBOT_MONITOR_POLL_INTERVAL")
	setFloat64(&cfg.Monitor.DefaultOrderSize, "HEDGEBOT_MONITOR_DEFAULT_ORDER_SIZE")
	setFloat64(&cfg.Monitor.RebalanceOrderSize, "HEDGEBOT_MONITOR_REBALANCE_ORDER_SIZE")
	setInt(&cfg.Monitor.SnapshotTradeTail, "HEDGEBOT_MONITOR_SNAPSHOT_TRADE_TAIL")

	// ── Execution ──
	setFloat64(&cfg.Execution.SafetyMargin, "HEDGEBOT_EXECUTION_SAFETY_MARGIN")
	setFloat64(&cfg.Execution.TickSize, "HEDGEBOT_EXECUTION_TICK_SIZE")
	setDuration(&cfg.Execution.OrderTimeout, "HEDGEBOT_EXECUTION_ORDER_TIMEOUT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "HEDGEBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "HEDGEBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "HEDGEBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "HEDGEBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "HEDGEBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "HEDGEBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "HEDGEBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "HEDGEBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "HEDGEBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "HEDGEBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "HEDGEBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "HEDGEBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "HEDGEBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "HEDGEBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "HEDGEBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "HEDGEBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "HEDGEBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "HEDGEBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "HEDGEBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "HEDGEBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "HEDGEBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "HEDGEBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "HEDGEBOT_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "HEDGEBOT_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "HEDGEBOT_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "HEDGEBOT_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "HEDGEBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "HEDGEBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "HEDGEBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "HEDGEBOT_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "HEDGEBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "HEDGEBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "HEDGEBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "HEDGEBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "HEDGEBOT_MODE")
	setStr(&cfg.LogLevel, "HEDGEBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
