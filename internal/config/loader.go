package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies FTARB_* environment variable overrides, and
// returns the final Config. A missing file leaves the defaults in place.
// The returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known FTARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── 42.space ──
	setStr(&cfg.FortyTwo.Endpoint, "FTARB_FORTYTWO_ENDPOINT")
	setInt(&cfg.FortyTwo.PageSize, "FTARB_FORTYTWO_PAGE_SIZE")
	setInt(&cfg.FortyTwo.Limit, "FTARB_FORTYTWO_LIMIT")
	setInt(&cfg.FortyTwo.Offset, "FTARB_FORTYTWO_OFFSET")
	setDuration(&cfg.FortyTwo.RequestDelay, "FTARB_FORTYTWO_REQUEST_DELAY")
	setDuration(&cfg.FortyTwo.DetailDelay, "FTARB_FORTYTWO_DETAIL_DELAY")
	setDuration(&cfg.FortyTwo.Timeout, "FTARB_FORTYTWO_TIMEOUT")
	setStr(&cfg.FortyTwo.Strategy, "FTARB_FORTYTWO_STRATEGY")
	setInt(&cfg.FortyTwo.RateLimit, "FTARB_FORTYTWO_RATE_LIMIT")
	setDuration(&cfg.FortyTwo.RateWindow, "FTARB_FORTYTWO_RATE_WINDOW")

	// ── Retry ──
	setInt(&cfg.Retry.MaxAttempts, "FTARB_RETRY_MAX_ATTEMPTS")
	setDuration(&cfg.Retry.BaseDelay, "FTARB_RETRY_BASE_DELAY")
	setDuration(&cfg.Retry.MaxDelay, "FTARB_RETRY_MAX_DELAY")
	setStr(&cfg.Retry.Backoff, "FTARB_RETRY_BACKOFF")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.GammaHost, "FTARB_POLYMARKET_GAMMA_HOST")
	setBool(&cfg.Polymarket.RefreshComparables, "FTARB_POLYMARKET_REFRESH_COMPARABLES")

	// ── Scan ──
	setFloat64(&cfg.Scan.Threshold, "FTARB_SCAN_THRESHOLD")
	setFloat64(&cfg.Scan.MinLiquidity, "FTARB_SCAN_MIN_LIQUIDITY")
	setStr(&cfg.Scan.Method, "FTARB_SCAN_METHOD")
	setStr(&cfg.Scan.ComparablesFile, "FTARB_SCAN_COMPARABLES_FILE")
	setDuration(&cfg.Scan.Interval, "FTARB_SCAN_INTERVAL")

	setStr(&cfg.Snapshot.Dir, "FTARB_SNAPSHOT_DIR")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "FTARB_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "FTARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "FTARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "FTARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "FTARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "FTARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "FTARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "FTARB_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "FTARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "FTARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "FTARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "FTARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "FTARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FTARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FTARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FTARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "FTARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "FTARB_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.LockTTL, "FTARB_REDIS_LOCK_TTL")
	setDuration(&cfg.Redis.CacheTTL, "FTARB_REDIS_CACHE_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "FTARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "FTARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "FTARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "FTARB_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "FTARB_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "FTARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "FTARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "FTARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "FTARB_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "FTARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "FTARB_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "FTARB_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "FTARB_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "FTARB_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "FTARB_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "FTARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "FTARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DISCORD_WEBHOOK_URL") // compatibility alias
	setStr(&cfg.Notify.DiscordWebhookURL, "FTARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "FTARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "FTARB_MODE")
	setStr(&cfg.LogLevel, "FTARB_LOG_LEVEL")
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

func setDuration(dst *duration, key string) {
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
