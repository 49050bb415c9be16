package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mosport/venue-signal/internal/api"
	"github.com/mosport/venue-signal/internal/config"
	"github.com/mosport/venue-signal/internal/metrics"
	"github.com/mosport/venue-signal/internal/model"
	"github.com/mosport/venue-signal/internal/scheduler"
	"github.com/mosport/venue-signal/internal/verify"
)

var (
	servePort    int
	serveNoSched bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tier scheduler and the search API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, cfg, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Scheduler.Enabled && !serveNoSched {
			sched, err := buildScheduler(cfg, env.Metrics)
			if err != nil {
				return err
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := sched.Shutdown(sctx); err != nil {
					zap.L().Warn("scheduler shutdown", zap.Error(err))
				}
			}()
			if err := scheduleTiers(sched, env.Orchestrator, cfg.Scheduler); err != nil {
				return err
			}
			if err := sched.Start(ctx); err != nil {
				return eris.Wrap(err, "start scheduler")
			}
		} else {
			zap.L().Info("scheduler disabled")
		}

		router := api.New(env.Search,
			api.WithHealth(env.Store),
			api.WithRuns(env.Store),
			api.WithMetrics(promhttp.HandlerFor(env.Registry, promhttp.HandlerOpts{})),
		).Routes()

		return startServer(ctx, router, resolvePort(servePort, cfg.Server.Port))
	},
}

// buildScheduler returns the configured scheduler implementation.
func buildScheduler(c *config.Config, m *metrics.Metrics) (scheduler.Scheduler, error) {
	timeout := config.Seconds(c.Scheduler.JobTimeoutSecs, 0)
	switch c.Scheduler.Type {
	case "temporal":
		tc, err := scheduler.DialTemporal(c.Temporal.HostPort, c.Temporal.Namespace)
		if err != nil {
			return nil, err
		}
		return scheduler.NewTemporal(tc, scheduler.TemporalOptions{
			TaskQueue:     c.Temporal.TaskQueue,
			MaxConcurrent: c.Scheduler.MaxConcurrentJobs,
			JobTimeout:    timeout,
		}), nil
	default:
		return scheduler.NewInterval(c.Scheduler.MaxConcurrentJobs, timeout, m), nil
	}
}

// tierIntervals maps each tier to its configured period.
func tierIntervals(c config.SchedulerConfig) map[model.Tier]time.Duration {
	return map[model.Tier]time.Duration{
		model.TierHot:  config.Seconds(c.HotIntervalSecs, 5*time.Minute),
		model.TierWarm: config.Seconds(c.WarmIntervalSecs, time.Hour),
		model.TierCool: config.Seconds(c.CoolIntervalSecs, 6*time.Hour),
		model.TierCold: config.Seconds(c.ColdIntervalSecs, 24*time.Hour),
	}
}

// scheduleTiers registers one job per tier.
func scheduleTiers(s scheduler.Scheduler, o *verify.Orchestrator, c config.SchedulerConfig) error {
	intervals := tierIntervals(c)
	for _, tier := range model.Tiers {
		name := "tier-" + strings.ToLower(string(tier))
		if err := s.Schedule(name, intervals[tier], o.JobFor(tier)); err != nil {
			return eris.Wrapf(err, "schedule %s", name)
		}
		zap.L().Info("tier scheduled", zap.String("tier", string(tier)), zap.Duration("every", intervals[tier]))
	}
	return nil
}

// resolvePort prefers the flag over the config value.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves h until ctx is cancelled, then shuts down gracefully.
func startServer(ctx context.Context, h http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoSched, "no-scheduler", false, "serve the API without running tier jobs")
	rootCmd.AddCommand(serveCmd)
}
