package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults_Validate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://ft.42.space/v1/graphql", cfg.FortyTwo.Endpoint)
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Retry.BaseDelay.Duration)
	assert.Equal(t, 10.0, cfg.Scan.Threshold)
	assert.Equal(t, 100.0, cfg.Scan.MinLiquidity)
	assert.Equal(t, "volume_share", cfg.Scan.Method)
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.LogLevel = "loud"
	cfg.Scan.Method = "coin_flip"
	cfg.Retry.MaxAttempts = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "trade"`)
	assert.Contains(t, err.Error(), `unknown log_level "loud"`)
	assert.Contains(t, err.Error(), `scan: unknown method "coin_flip"`)
	assert.Contains(t, err.Error(), "retry: max_attempts must be >= 1")
}

func TestValidate_OptionalBackendsOnlyCheckedWhenEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.Redis.Addr = ""
	cfg.S3.Bucket = ""
	require.NoError(t, cfg.Validate())

	cfg.Redis.Enabled = true
	cfg.S3.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: addr must not be empty")
	assert.Contains(t, err.Error(), "s3: bucket must not be empty")
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "scan"

[scan]
threshold = 7.5
interval = "2m"

[retry]
backoff = "exponential"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	t.Setenv("FTARB_SCAN_METHOD", "price_normalized")
	t.Setenv("DISCORD_WEBHOOK_URL", "https://discord.example/hook")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "scan", cfg.Mode)
	assert.Equal(t, 7.5, cfg.Scan.Threshold)
	assert.Equal(t, 2*time.Minute, cfg.Scan.Interval.Duration)
	assert.Equal(t, "exponential", cfg.Retry.Backoff)
	assert.Equal(t, "price_normalized", cfg.Scan.Method)
	assert.Equal(t, "https://discord.example/hook", cfg.Notify.DiscordWebhookURL)
	// untouched sections keep their defaults
	assert.Equal(t, 20, cfg.FortyTwo.PageSize)
}

func TestLoad_RateLimitsAreIndependent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[fortytwo]
rate_limit = 5
rate_window = "2s"

[server]
rate_limit = 120
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("FTARB_SERVER_RATE_WINDOW", "30s")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5, cfg.FortyTwo.RateLimit)
	assert.Equal(t, 2*time.Second, cfg.FortyTwo.RateWindow.Duration)
	assert.Equal(t, 120, cfg.Server.RateLimit)
	assert.Equal(t, 30*time.Second, cfg.Server.RateWindow.Duration)
}

func TestValidate_RateWindowRequiredWithLimit(t *testing.T) {
	cfg := Defaults()
	cfg.FortyTwo.RateLimit = 1
	cfg.FortyTwo.RateWindow.Duration = 0
	cfg.Server.RateLimit = 1
	cfg.Server.RateWindow.Duration = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fortytwo: rate_window must be > 0")
	assert.Contains(t, err.Error(), "server: rate_window must be > 0")
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Scan, cfg.Scan)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("mode = ["), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.DiscordWebhookURL = "https://discord.example/hook"
	cfg.Postgres.Password = "hunter2"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Notify.DiscordWebhookURL)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Empty(t, out.Redis.Password)
	assert.Equal(t, "https://discord.example/hook", cfg.Notify.DiscordWebhookURL)

	out.Notify.Events[0] = "mutated"
	assert.Equal(t, "opportunity", cfg.Notify.Events[0])
}
