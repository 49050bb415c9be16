package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "interval", cfg.Scheduler.Type)
	assert.Equal(t, 3, cfg.Scheduler.MaxConcurrentJobs)
	assert.Equal(t, 300, cfg.Scheduler.HotIntervalSecs)
	assert.Equal(t, 3600, cfg.Scheduler.WarmIntervalSecs)
	assert.Equal(t, 21600, cfg.Scheduler.CoolIntervalSecs)
	assert.Equal(t, 86400, cfg.Scheduler.ColdIntervalSecs)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 48, cfg.Cache.RawTTLHours)
	assert.Equal(t, 168, cfg.Cache.TagsTTLHours)
	assert.Equal(t, "keyword", cfg.Analyzer.Backend)
	assert.Equal(t, 3, cfg.Verification.HotFetchLimit)
	assert.Equal(t, 5, cfg.Verification.WarmFetchLimit)
	assert.Equal(t, "Venue reported unavailable", cfg.Verification.OverrideReason)
	assert.InDelta(t, 0.4, cfg.Search.Weights.TextRank, 0.001)
	assert.InDelta(t, 0.3, cfg.Search.Weights.Proximity, 0.001)
	assert.InDelta(t, 0.2, cfg.Search.Weights.QoE, 0.001)
	assert.InDelta(t, 1.0, cfg.Search.Weights.Live, 0.001)
	assert.InDelta(t, 10.0, cfg.Search.Weights.LiveBoost, 0.001)
	assert.InDelta(t, 0.85, cfg.Search.LiveConfidenceThreshold, 0.001)
	assert.InDelta(t, 50.0, cfg.Search.TrendingRadiusKM, 0.001)
	assert.Equal(t, "sports bar", cfg.Search.FallbackTag)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: /tmp/venues.db
scheduler:
  max_concurrent_jobs: 1
  hot_interval_secs: 60
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/tmp/venues.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 1, cfg.Scheduler.MaxConcurrentJobs)
	assert.Equal(t, 60, cfg.Scheduler.HotIntervalSecs)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset values
	assert.Equal(t, 3600, cfg.Scheduler.WarmIntervalSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("MOSPORT_STORE_DRIVER", "postgres")
	t.Setenv("MOSPORT_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("MOSPORT_SERVER_PORT", "3000")
	t.Setenv("MOSPORT_SCHEDULER_TYPE", "temporal")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "temporal", cfg.Scheduler.Type)
}

func TestLoadBadYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "invalid", Format: "json"}))
}

// validDefaults returns a Config with defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "venues.db"
	cfg.Analyzer.Backend = "keyword"
	cfg.Verification.HotFetchLimit = 3
	cfg.Verification.WarmFetchLimit = 5
	cfg.Search.LiveConfidenceThreshold = 0.85
	cfg.Scheduler.Enabled = true
	cfg.Scheduler.Type = "interval"
	cfg.Scheduler.MaxConcurrentJobs = 3
	cfg.Scheduler.HotIntervalSecs = 300
	cfg.Scheduler.WarmIntervalSecs = 3600
	cfg.Scheduler.CoolIntervalSecs = 21600
	cfg.Scheduler.ColdIntervalSecs = 86400
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	for _, mode := range []string{"serve", "tier", "migrate"} {
		assert.NoError(t, validDefaults().Validate(mode), mode)
	}
}

func TestValidate_Store(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `store.driver "mysql"`)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidate_AnthropicWithoutKeyDowngrades(t *testing.T) {
	cfg := validDefaults()
	cfg.Analyzer.Backend = "anthropic"

	require.NoError(t, cfg.Validate("tier"))
	assert.Equal(t, "keyword", cfg.Analyzer.Backend)
}

func TestValidate_UnknownBackend(t *testing.T) {
	cfg := validDefaults()
	cfg.Analyzer.Backend = "oracle"
	assert.Error(t, cfg.Validate("tier"))
}

func TestValidate_Scheduler(t *testing.T) {
	cfg := validDefaults()
	cfg.Scheduler.HotIntervalSecs = 0
	cfg.Scheduler.MaxConcurrentJobs = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduler.hot_interval_secs must be positive")
	assert.Contains(t, err.Error(), "max_concurrent_jobs")

	// Disabled scheduler is not validated.
	cfg.Scheduler.Enabled = false
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidate_TemporalNeedsHost(t *testing.T) {
	cfg := validDefaults()
	cfg.Scheduler.Type = "temporal"
	assert.Error(t, cfg.Validate("serve"))

	cfg.Temporal.HostPort = "localhost:7233"
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate("serve"))
	assert.NoError(t, cfg.Validate("tier"))
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, 5*time.Second, Seconds(5, time.Minute))
	assert.Equal(t, time.Minute, Seconds(0, time.Minute))
	assert.Equal(t, time.Minute, Seconds(-1, time.Minute))
}
