package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Scheduler    SchedulerConfig    `yaml:"scheduler" mapstructure:"scheduler"`
	Temporal     TemporalConfig     `yaml:"temporal" mapstructure:"temporal"`
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Redis        RedisConfig        `yaml:"redis" mapstructure:"redis"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Acquisition  AcquisitionConfig  `yaml:"acquisition" mapstructure:"acquisition"`
	Analyzer     AnalyzerConfig     `yaml:"analyzer" mapstructure:"analyzer"`
	Anthropic    AnthropicConfig    `yaml:"anthropic" mapstructure:"anthropic"`
	Verification VerificationConfig `yaml:"verification" mapstructure:"verification"`
	Search       SearchConfig       `yaml:"search" mapstructure:"search"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// SchedulerConfig controls the tiered scheduler. Values are read once at
// process start.
type SchedulerConfig struct {
	Enabled           bool   `yaml:"enabled" mapstructure:"enabled"`
	Type              string `yaml:"type" mapstructure:"type"`
	MaxConcurrentJobs int    `yaml:"max_concurrent_jobs" mapstructure:"max_concurrent_jobs"`
	HotIntervalSecs   int    `yaml:"hot_interval_secs" mapstructure:"hot_interval_secs"`
	WarmIntervalSecs  int    `yaml:"warm_interval_secs" mapstructure:"warm_interval_secs"`
	CoolIntervalSecs  int    `yaml:"cool_interval_secs" mapstructure:"cool_interval_secs"`
	ColdIntervalSecs  int    `yaml:"cold_interval_secs" mapstructure:"cold_interval_secs"`
	JobTimeoutSecs    int    `yaml:"job_timeout_secs" mapstructure:"job_timeout_secs"`
}

// TemporalConfig holds Temporal connection settings, used when
// scheduler.type is "temporal".
type TemporalConfig struct {
	HostPort  string `yaml:"host_port" mapstructure:"host_port"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue string `yaml:"task_queue" mapstructure:"task_queue"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// RedisConfig configures the expiring cache. An empty URL selects the
// in-process cache.
type RedisConfig struct {
	URL             string `yaml:"url" mapstructure:"url"`
	DialTimeoutSecs int    `yaml:"dial_timeout_secs" mapstructure:"dial_timeout_secs"`
}

// CacheConfig sets entry lifetimes.
type CacheConfig struct {
	RawTTLHours  int `yaml:"raw_ttl_hours" mapstructure:"raw_ttl_hours"`
	TagsTTLHours int `yaml:"tags_ttl_hours" mapstructure:"tags_ttl_hours"`
}

// AcquisitionConfig configures the social content source.
type AcquisitionConfig struct {
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey           string  `yaml:"api_key" mapstructure:"api_key"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	RatePerSec       float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst            int     `yaml:"burst" mapstructure:"burst"`
	BreakerThreshold int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// AnalyzerConfig selects the trust analysis backend.
type AnalyzerConfig struct {
	Backend     string `yaml:"backend" mapstructure:"backend"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	LexiconFile string `yaml:"lexicon_file" mapstructure:"lexicon_file"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// VerificationConfig tunes the verification orchestrator.
type VerificationConfig struct {
	HotFetchLimit    int    `yaml:"hot_fetch_limit" mapstructure:"hot_fetch_limit"`
	WarmFetchLimit   int    `yaml:"warm_fetch_limit" mapstructure:"warm_fetch_limit"`
	EventConcurrency int    `yaml:"event_concurrency" mapstructure:"event_concurrency"`
	VenueConcurrency int    `yaml:"venue_concurrency" mapstructure:"venue_concurrency"`
	OverrideReason   string `yaml:"override_reason" mapstructure:"override_reason"`
}

// SearchConfig tunes ranking and discovery.
type SearchConfig struct {
	Weights                 WeightsConfig `yaml:"weights" mapstructure:"weights"`
	LiveConfidenceThreshold float64       `yaml:"live_confidence_threshold" mapstructure:"live_confidence_threshold"`
	TrendingRadiusKM        float64       `yaml:"trending_radius_km" mapstructure:"trending_radius_km"`
	TrendingWindowDays      int           `yaml:"trending_window_days" mapstructure:"trending_window_days"`
	FallbackTag             string        `yaml:"fallback_tag" mapstructure:"fallback_tag"`
	DefaultLimit            int           `yaml:"default_limit" mapstructure:"default_limit"`
}

// WeightsConfig holds the composite ranking weights.
type WeightsConfig struct {
	TextRank  float64 `yaml:"text_rank" mapstructure:"text_rank"`
	Proximity float64 `yaml:"proximity" mapstructure:"proximity"`
	QoE       float64 `yaml:"qoe" mapstructure:"qoe"`
	Live      float64 `yaml:"live" mapstructure:"live"`
	LiveBoost float64 `yaml:"live_boost" mapstructure:"live_boost"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MOSPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.type", "interval")
	v.SetDefault("scheduler.max_concurrent_jobs", 3)
	v.SetDefault("scheduler.hot_interval_secs", 300)
	v.SetDefault("scheduler.warm_interval_secs", 3600)
	v.SetDefault("scheduler.cool_interval_secs", 21600)
	v.SetDefault("scheduler.cold_interval_secs", 86400)
	v.SetDefault("scheduler.job_timeout_secs", 240)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "venue-signal-tiers")
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("redis.dial_timeout_secs", 2)
	v.SetDefault("cache.raw_ttl_hours", 48)
	v.SetDefault("cache.tags_ttl_hours", 168)
	v.SetDefault("acquisition.timeout_secs", 10)
	v.SetDefault("acquisition.max_attempts", 3)
	v.SetDefault("acquisition.rate_per_sec", 5.0)
	v.SetDefault("acquisition.burst", 5)
	v.SetDefault("acquisition.breaker_threshold", 5)
	v.SetDefault("acquisition.breaker_reset_secs", 60)
	v.SetDefault("analyzer.backend", "keyword")
	v.SetDefault("analyzer.timeout_secs", 15)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 512)
	v.SetDefault("verification.hot_fetch_limit", 3)
	v.SetDefault("verification.warm_fetch_limit", 5)
	v.SetDefault("verification.event_concurrency", 4)
	v.SetDefault("verification.venue_concurrency", 4)
	v.SetDefault("verification.override_reason", "Venue reported unavailable")
	v.SetDefault("search.weights.text_rank", 0.4)
	v.SetDefault("search.weights.proximity", 0.3)
	v.SetDefault("search.weights.qoe", 0.2)
	v.SetDefault("search.weights.live", 1.0)
	v.SetDefault("search.weights.live_boost", 10.0)
	v.SetDefault("search.live_confidence_threshold", 0.85)
	v.SetDefault("search.trending_radius_km", 50.0)
	v.SetDefault("search.trending_window_days", 7)
	v.SetDefault("search.fallback_tag", "sports bar")
	v.SetDefault("search.default_limit", 20)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
