package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mosport/venue-signal/internal/acquisition"
	"github.com/mosport/venue-signal/internal/analyzer"
	"github.com/mosport/venue-signal/internal/cache"
	"github.com/mosport/venue-signal/internal/config"
	"github.com/mosport/venue-signal/internal/metrics"
	"github.com/mosport/venue-signal/internal/resilience"
	"github.com/mosport/venue-signal/internal/search"
	"github.com/mosport/venue-signal/internal/store"
	"github.com/mosport/venue-signal/internal/verify"
	anthropicpkg "github.com/mosport/venue-signal/pkg/anthropic"
)

// appEnv holds everything the serve and tier commands share.
type appEnv struct {
	Store        store.Store
	Cache        cache.Cache
	Registry     *prometheus.Registry
	Metrics      *metrics.Metrics
	Orchestrator *verify.Orchestrator
	Search       *search.Engine
}

// Close releases the store and cache.
func (e *appEnv) Close() {
	if e.Cache != nil {
		_ = e.Cache.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured backend.
func initStore(ctx context.Context, c config.StoreConfig) (store.Store, error) {
	switch c.Driver {
	case "sqlite":
		dsn := c.DatabaseURL
		if dsn == "" {
			dsn = "venue-signal.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, c.DatabaseURL, &store.PoolConfig{MaxConns: c.MaxConns, MinConns: c.MinConns})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Driver)
	}
}

// initCache connects to Redis when configured. A Redis outage at startup
// degrades to the in-process cache.
func initCache(ctx context.Context, c config.RedisConfig) cache.Cache {
	if c.URL == "" {
		zap.L().Info("redis not configured, using in-process cache")
		return cache.NewMemory()
	}
	rc, err := cache.NewRedis(ctx, c.URL, cache.RedisOptions{
		DialTimeout: config.Seconds(c.DialTimeoutSecs, 2*time.Second),
	})
	if err != nil {
		zap.L().Warn("redis unavailable, using in-process cache", zap.Error(err))
		return cache.NewMemory()
	}
	return rc
}

// initSource builds the acquisition source. No base URL means no signals.
func initSource(c config.AcquisitionConfig, m *metrics.Metrics) acquisition.Source {
	if c.BaseURL == "" {
		zap.L().Warn("acquisition.base_url not set, venues will report no signals")
		return acquisition.Nop{}
	}
	breaker := resilience.NewBreaker(c.BreakerThreshold,
		config.Seconds(c.BreakerResetSecs, time.Minute),
		func(_, to resilience.State) { m.SetBreakerState("feed", int(to)) },
	)
	return acquisition.NewHTTPSource(c.BaseURL, c.APIKey,
		acquisition.WithRateLimit(c.RatePerSec, c.Burst),
		acquisition.WithGuard(&resilience.Guard{
			Name:    "feed",
			Backoff: resilience.Backoff{Attempts: c.MaxAttempts, Jitter: 0.2},
			Breaker: breaker,
		}),
	)
}

// initBackend picks the trust analysis backend.
func initBackend(c *config.Config) (analyzer.Backend, error) {
	if c.Analyzer.Backend == "anthropic" {
		client := anthropicpkg.NewClient(c.Anthropic.Key)
		return analyzer.NewClaudeBackend(client, c.Anthropic.Model, c.Anthropic.MaxTokens), nil
	}
	lex := analyzer.DefaultLexicon()
	if c.Analyzer.LexiconFile != "" {
		loaded, err := analyzer.LoadLexicon(c.Analyzer.LexiconFile)
		if err != nil {
			return nil, err
		}
		lex = loaded
	}
	return analyzer.NewKeywordBackend(lex), nil
}

// initApp validates config for mode, opens backends and builds the
// orchestrator and search engine. Callers should defer env.Close().
func initApp(ctx context.Context, c *config.Config, mode string) (*appEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx, c.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	env := &appEnv{Store: st, Registry: reg, Metrics: m}
	env.Cache = initCache(ctx, c.Redis)

	backend, err := initBackend(c)
	if err != nil {
		env.Close()
		return nil, err
	}

	judge := analyzer.New(backend, env.Cache,
		analyzer.WithRawTTL(time.Duration(c.Cache.RawTTLHours)*time.Hour),
		analyzer.WithTimeout(config.Seconds(c.Analyzer.TimeoutSecs, 15*time.Second)),
		analyzer.WithMetrics(m),
	)
	acq := acquisition.NewAcquirer(initSource(c.Acquisition, m), config.Seconds(c.Acquisition.TimeoutSecs, 10*time.Second), m)

	env.Orchestrator = verify.New(st, acq, judge, env.Cache, verify.Config{
		HotFetchLimit:    c.Verification.HotFetchLimit,
		WarmFetchLimit:   c.Verification.WarmFetchLimit,
		EventConcurrency: c.Verification.EventConcurrency,
		VenueConcurrency: c.Verification.VenueConcurrency,
		OverrideReason:   c.Verification.OverrideReason,
		TagsTTL:          time.Duration(c.Cache.TagsTTLHours) * time.Hour,
	}, verify.WithPredictor(verify.LogPredictor{}), verify.WithMetrics(m))

	env.Search = search.New(st, c.Search, search.WithMetrics(m))

	zap.L().Info("app initialized",
		zap.String("mode", mode),
		zap.String("store", c.Store.Driver),
		zap.String("analyzer", judge.Backend()),
	)
	return env, nil
}
