package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Validate checks the configuration for the given command mode
// ("serve", "tier", "migrate"). Problems are collected and reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	if mode == "serve" || mode == "tier" {
		errs = append(errs, c.validatePipeline()...)
	}

	if mode == "serve" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
		}
		errs = append(errs, c.validateScheduler()...)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validatePipeline() []string {
	var errs []string

	switch c.Analyzer.Backend {
	case "keyword":
	case "anthropic":
		if c.Anthropic.Key == "" {
			zap.L().Warn("config: analyzer.backend is anthropic but anthropic.key is empty, using keyword backend")
			c.Analyzer.Backend = "keyword"
		}
	default:
		errs = append(errs, fmt.Sprintf("analyzer.backend %q is not supported", c.Analyzer.Backend))
	}

	if c.Verification.HotFetchLimit <= 0 {
		errs = append(errs, "verification.hot_fetch_limit must be positive")
	}
	if c.Verification.WarmFetchLimit <= 0 {
		errs = append(errs, "verification.warm_fetch_limit must be positive")
	}
	if c.Search.LiveConfidenceThreshold < 0 || c.Search.LiveConfidenceThreshold > 1 {
		errs = append(errs, "search.live_confidence_threshold must be within [0,1]")
	}
	return errs
}

func (c *Config) validateScheduler() []string {
	if !c.Scheduler.Enabled {
		return nil
	}
	var errs []string
	switch c.Scheduler.Type {
	case "interval":
	case "temporal":
		if c.Temporal.HostPort == "" {
			errs = append(errs, "temporal.host_port is required for the temporal scheduler")
		}
	default:
		errs = append(errs, fmt.Sprintf("scheduler.type %q is not supported", c.Scheduler.Type))
	}
	if c.Scheduler.MaxConcurrentJobs <= 0 {
		errs = append(errs, "scheduler.max_concurrent_jobs must be positive")
	}
	for name, secs := range map[string]int{
		"hot":  c.Scheduler.HotIntervalSecs,
		"warm": c.Scheduler.WarmIntervalSecs,
		"cool": c.Scheduler.CoolIntervalSecs,
		"cold": c.Scheduler.ColdIntervalSecs,
	} {
		if secs <= 0 {
			errs = append(errs, fmt.Sprintf("scheduler.%s_interval_secs must be positive", name))
		}
	}
	return errs
}

// Seconds converts an integer seconds setting to a duration, falling back
// to def when the value is not positive.
func Seconds(secs int, def time.Duration) time.Duration {
	if secs <= 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}
