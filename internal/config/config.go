// Package config defines the top-level configuration for the 42.space
// discrepancy scanner and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by FTARB_* environment variables.
type Config struct {
	FortyTwo   FortyTwoConfig   `toml:"fortytwo"`
	Retry      RetryConfig      `toml:"retry"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Scan       ScanConfig       `toml:"scan"`
	Snapshot   SnapshotConfig   `toml:"snapshot"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// FortyTwoConfig holds the 42.space GraphQL endpoint and fetch pacing.
type FortyTwoConfig struct {
	Endpoint string `toml:"endpoint"`
	Origin   string `toml:"origin"`
	// PageSize is the page length used when paginating home_market_list.
	PageSize int `toml:"page_size"`
	// Limit caps the number of markets fetched per snapshot run.
	Limit        int      `toml:"limit"`
	Offset       int      `toml:"offset"`
	RequestDelay duration `toml:"request_delay"`
	DetailDelay  duration `toml:"detail_delay"`
	Timeout      duration `toml:"timeout"`
	// Strategy selects how snapshots are built: "detail" fetches every market
	// one at a time, "batch" fetches active questions and their stats in bulk.
	Strategy string `toml:"strategy"`
	// RateLimit caps GraphQL requests per RateWindow across every instance.
	// It needs Redis; zero disables it.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// RetryConfig parameterises the bounded retry helper used for upstream calls.
type RetryConfig struct {
	MaxAttempts int      `toml:"max_attempts"`
	BaseDelay   duration `toml:"base_delay"`
	MaxDelay    duration `toml:"max_delay"`
	Backoff     string   `toml:"backoff"`
}

// PolymarketConfig holds the Gamma API host used to refresh comparables.
type PolymarketConfig struct {
	GammaHost          string `toml:"gamma_host"`
	RefreshComparables bool   `toml:"refresh_comparables"`
}

// ScanConfig holds discrepancy scan parameters.
type ScanConfig struct {
	// Threshold is the flagging threshold in percentage points.
	Threshold float64 `toml:"threshold"`
	// MinLiquidity is the minimum total volume for a market to be scanned.
	MinLiquidity    float64  `toml:"min_liquidity"`
	Method          string   `toml:"method"`
	ComparablesFile string   `toml:"comparables_file"`
	Interval        duration `toml:"interval"`
}

// SnapshotConfig holds the output directory for snapshots and scan results.
type SnapshotConfig struct {
	Dir string `toml:"dir"`
}

// PostgresConfig holds PostgreSQL connection parameters for scan history.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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

// RedisConfig holds Redis connection parameters plus the lock and cache
// settings layered on top of it.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	LockTTL    duration `toml:"lock_ttl"`
	CacheTTL   duration `toml:"cache_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit caps API requests per client IP per RateWindow. It needs
	// Redis; zero disables it.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		FortyTwo: FortyTwoConfig{
			Endpoint:     "https://ft.42.space/v1/graphql",
			Origin:       "https://www.42.space",
			PageSize:     20,
			Limit:        50,
			RequestDelay: duration{500 * time.Millisecond},
			DetailDelay:  duration{300 * time.Millisecond},
			Timeout:      duration{30 * time.Second},
			Strategy:     "detail",
			RateWindow:   duration{time.Second},
		},
		Retry: RetryConfig{
			MaxAttempts: 4,
			BaseDelay:   duration{2 * time.Second},
			MaxDelay:    duration{30 * time.Second},
			Backoff:     "linear",
		},
		Polymarket: PolymarketConfig{
			GammaHost:          "https://gamma-api.polymarket.com",
			RefreshComparables: false,
		},
		Scan: ScanConfig{
			Threshold:       10,
			MinLiquidity:    100,
			Method:          "volume_share",
			ComparablesFile: "comparables.toml",
			Interval:        duration{15 * time.Minute},
		},
		Snapshot: SnapshotConfig{
			Dir: "knowledge/outputs",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "ftarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			LockTTL:    duration{10 * time.Minute},
			CacheTTL:   duration{24 * time.Hour},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "ftarb-data",
			Prefix:         "outputs",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     false,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"snapshot": true,
	"scan":     true,
	"full":     true,
	"watch":    true,
	"server":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validMethods = map[string]bool{
	"volume_share":     true,
	"price_normalized": true,
	"implied_payout":   true,
}

var validBackoffs = map[string]bool{
	"linear":      true,
	"exponential": true,
}

var validStrategies = map[string]bool{
	"detail": true,
	"batch":  true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: snapshot, scan, full, watch, server)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// 42.space
	if c.FortyTwo.Endpoint == "" {
		errs = append(errs, "fortytwo: endpoint must not be empty")
	}
	if c.FortyTwo.PageSize < 1 {
		errs = append(errs, "fortytwo: page_size must be >= 1")
	}
	if c.FortyTwo.Limit < 1 {
		errs = append(errs, "fortytwo: limit must be >= 1")
	}
	if c.FortyTwo.Offset < 0 {
		errs = append(errs, "fortytwo: offset must be >= 0")
	}
	if !validStrategies[c.FortyTwo.Strategy] {
		errs = append(errs, fmt.Sprintf("fortytwo: unknown strategy %q (valid: detail, batch)", c.FortyTwo.Strategy))
	}

	// Retry
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry: max_attempts must be >= 1")
	}
	if c.Retry.BaseDelay.Duration < 0 {
		errs = append(errs, "retry: base_delay must not be negative")
	}
	if !validBackoffs[c.Retry.Backoff] {
		errs = append(errs, fmt.Sprintf("retry: unknown backoff %q (valid: linear, exponential)", c.Retry.Backoff))
	}

	// Polymarket
	if c.Polymarket.RefreshComparables && c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must be set when refresh_comparables is enabled")
	}

	// Scan
	if c.Scan.Threshold <= 0 {
		errs = append(errs, "scan: threshold must be > 0")
	}
	if c.Scan.MinLiquidity < 0 {
		errs = append(errs, "scan: min_liquidity must be >= 0")
	}
	if !validMethods[c.Scan.Method] {
		errs = append(errs, fmt.Sprintf("scan: unknown method %q (valid: volume_share, price_normalized, implied_payout)", c.Scan.Method))
	}
	if c.Scan.ComparablesFile == "" {
		errs = append(errs, "scan: comparables_file must not be empty")
	}
	if c.Mode == "watch" && c.Scan.Interval.Duration <= 0 {
		errs = append(errs, "scan: interval must be > 0 in watch mode")
	}

	if c.Snapshot.Dir == "" {
		errs = append(errs, "snapshot: dir must not be empty")
	}

	// Postgres
	if c.Postgres.Enabled {
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
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	if c.FortyTwo.RateLimit > 0 && c.FortyTwo.RateWindow.Duration <= 0 {
		errs = append(errs, "fortytwo: rate_window must be > 0 when rate_limit is set")
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
		errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
	}

	// Server
	if c.Server.Enabled || c.Mode == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
