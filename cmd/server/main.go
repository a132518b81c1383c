package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/promohub/channel-dispatch/internal/adapter"
	"github.com/promohub/channel-dispatch/internal/api"
	"github.com/promohub/channel-dispatch/internal/batchgen"
	"github.com/promohub/channel-dispatch/internal/config"
	"github.com/promohub/channel-dispatch/internal/db"
	"github.com/promohub/channel-dispatch/internal/dispatch"
	"github.com/promohub/channel-dispatch/internal/domain"
	"github.com/promohub/channel-dispatch/internal/metrics"
	"github.com/promohub/channel-dispatch/internal/ratelimiter"
	"github.com/promohub/channel-dispatch/internal/repository"
	"github.com/promohub/channel-dispatch/internal/scheduler"
	"github.com/promohub/channel-dispatch/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		logger.Fatal("failed to load channel rules", zap.Error(err))
	}

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := repository.NewPgStore(pool)
	limiter := ratelimiter.New(rules)
	svc := service.NewPromotionService(store, limiter, logger)

	// Seed the limiter from the database so a restart does not forget
	// per-channel intervals or today's send counts.
	seedLimiter(ctx, store, limiter, logger)

	adapters := buildAdapters(cfg, logger)

	exec := dispatch.NewExecutor(
		store, adapters, limiter,
		cfg.AdapterTimeout, cfg.MaxRetries, logger,
		func(ch domain.Channel, latency time.Duration) {
			m.DeliveriesSent.WithLabelValues(string(ch)).Inc()
			m.SendLatency.WithLabelValues(string(ch)).Observe(latency.Seconds())
		},
		func(ch domain.Channel) {
			m.DeliveriesFailed.WithLabelValues(string(ch)).Inc()
		},
	)

	sched := scheduler.New(
		store, limiter, exec, cfg.TickInterval, logger,
		func() { m.TicksTotal.Inc() },
		func(ch domain.Channel) { m.RateLimited.WithLabelValues(string(ch)).Inc() },
	)

	gen, err := batchgen.New(store, cfg.BatchSlots, logger)
	if err != nil {
		logger.Fatal("failed to build batch generator", zap.Error(err))
	}

	// ---- background goroutines ----
	bgCtx, cancelBg := context.WithCancel(ctx)
	defer cancelBg()

	sched.Start(bgCtx)
	if err := gen.Start(bgCtx, cfg.BatchGenSpec); err != nil {
		logger.Fatal("failed to start batch generator", zap.Error(err))
	}

	// Hot-reload pacing rules on file change.
	go func() {
		if err := config.WatchRules(bgCtx, cfg.RulesFile, logger, func(r config.Rules) { limiter.SetRules(r) }); err != nil {
			logger.Warn("rules watcher stopped", zap.Error(err))
		}
	}()

	// Periodically refresh the per-channel queue depth gauges.
	go pollQueueDepth(bgCtx, store, m, logger)

	// ---- HTTP server ----
	router := api.NewRouter(svc, sched, gen, reg, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop background loops and wait for the in-flight tick.
	gen.Stop()
	sched.Stop()
	cancelBg()

	logger.Info("server stopped cleanly")
}

// buildAdapters assembles the channel adapter registry. Channels without
// a configured integration fall back to the noop adapter inside the
// registry itself.
func buildAdapters(cfg *config.Config, logger *zap.Logger) adapter.Registry {
	adapters := make(adapter.Registry)

	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err := adapter.NewTelegramAdapter(cfg.TelegramToken, cfg.TelegramChatID, cfg.AdapterTimeout)
		if err != nil {
			logger.Warn("telegram adapter unavailable, falling back to noop", zap.Error(err))
		} else {
			adapters[domain.ChannelTelegram] = tg
			logger.Info("telegram adapter configured")
		}
	}

	if cfg.WebhookBaseURL != "" {
		for _, ch := range domain.AllChannels {
			if _, ok := adapters[ch]; ok {
				continue
			}
			adapters[ch] = adapter.NewWebhookAdapter(cfg.WebhookBaseURL, ch, cfg.AdapterTimeout, cfg.WebhookRate)
		}
		logger.Info("webhook adapters configured", zap.String("base_url", cfg.WebhookBaseURL))
	}

	return adapters
}

func seedLimiter(ctx context.Context, store repository.Store, limiter *ratelimiter.Limiter, logger *zap.Logger) {
	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	states, err := store.ChannelStates(ctx, dayStart)
	if err != nil {
		logger.Warn("failed to seed rate limiter from database", zap.Error(err))
		return
	}
	for ch, st := range states {
		limiter.Seed(ch, st.LastSentAt, st.SentToday)
	}
	logger.Info("rate limiter seeded from send history")
}

// pollQueueDepth keeps the deliveries_pending gauges roughly current.
// Exact per-send accuracy is not needed for a scrape-based metric.
func pollQueueDepth(ctx context.Context, store repository.Store, m *metrics.Metrics, logger *zap.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
			states, err := store.ChannelStates(ctx, dayStart)
			if err != nil {
				logger.Warn("failed to refresh queue depth gauges", zap.Error(err))
				continue
			}
			for ch, st := range states {
				m.DeliveriesPending.WithLabelValues(string(ch)).Set(float64(st.Queued))
			}
		}
	}
}
