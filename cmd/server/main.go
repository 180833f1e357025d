package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/web3-frozen/chain-activity/internal/app"
	"github.com/web3-frozen/chain-activity/internal/config"
	"github.com/web3-frozen/chain-activity/internal/dedup"
	"github.com/web3-frozen/chain-activity/internal/handler"
	"github.com/web3-frozen/chain-activity/internal/lark"
	"github.com/web3-frozen/chain-activity/internal/middleware"
	"github.com/web3-frozen/chain-activity/internal/monitor"
	"github.com/web3-frozen/chain-activity/internal/senders"
	"github.com/web3-frozen/chain-activity/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := app.Build(ctx, cfg, logger)
	defer engine.Close()
	agg := engine.Aggregator

	larkClient := lark.NewClient(cfg.LarkBaseURL, cfg.LarkAppID, cfg.LarkAppSecret, logger)
	if !larkClient.Enabled() {
		logger.Warn("LARK_APP_ID/LARK_APP_SECRET not set, message delivery disabled")
	}

	// Redis (retry up to 30s for ExternalSecret to sync)
	var (
		rdb         *redis.Client
		senderStore senders.Store = senders.NewMemoryStore()
		deduper     monitor.Deduper
	)
	if cfg.RedisURL != "" {
		var err error
		for i := 0; i < 6; i++ {
			rdb, err = dedup.Dial(cfg.RedisURL, cfg.RedisPassword)
			if err == nil {
				break
			}
			logger.Warn("redis not ready, retrying...", "attempt", i+1, "error", err)
			time.Sleep(5 * time.Second)
		}
		if err != nil {
			logger.Error("failed to connect to redis after retries", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		senderStore = senders.NewRedisStore(rdb)
		deduper = dedup.New(rdb)
		logger.Info("redis connected for sender capture and alert dedup")
	} else {
		logger.Warn("REDIS_URL not set, senders kept in memory and alerts not deduplicated")
	}

	// Database
	var db *store.Store
	if cfg.DatabaseURL != "" {
		var err error
		db, err = store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("database connected and migrated")

		mon := monitor.NewEngine(agg, db, larkClient, deduper, logger,
			monitor.WithPollInterval(cfg.LiquidityPollInterval),
			monitor.WithDropThreshold(cfg.LiquidityDropThreshold),
		)
		go mon.Run(ctx)
	} else {
		logger.Warn("DATABASE_URL not set, subscriptions and scheduled delivery disabled")
	}

	webhook := lark.NewWebhook(cfg.LarkVerificationToken, cfg.LarkEncryptKey, senderStore, logger)

	var readiness handler.Pinger
	if db != nil {
		readiness = db
	}

	// HTTP routes
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.FrontendOrigin))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", handler.Health())
	r.Get("/readyz", handler.Ready(engine.Registry, readiness))

	r.Route("/api", func(r chi.Router) {
		r.Get("/contracts", handler.Contracts(agg, logger))
		r.Get("/contracts/total", handler.ContractsTotal(agg, logger))
		r.Get("/projects/stats", handler.ProjectStats(agg, logger))
		r.Get("/stats/daily", handler.DailyStats(agg, logger))
		r.Get("/balances", handler.Balances(agg, logger))
		r.Get("/liquidity", handler.Liquidity(agg, logger))
		r.Get("/debug/blocks", handler.DebugBlocks(agg))
		r.Get("/debug/check-time", handler.CheckTime(agg, time.Now))

		r.Route("/lark", func(r chi.Router) {
			r.Post("/send-stats", handler.SendStats(agg, larkClient, logger))
			r.Post("/send-daily-stats", handler.SendDailyStats(agg, larkClient, logger))
			r.Get("/liquidity", handler.LarkLiquidity(agg, logger))
			r.Post("/webhook", handler.LarkWebhook(webhook))
			r.Get("/webhook", handler.ListSenders(senderStore))
		})

		if db != nil {
			r.Get("/events", handler.ListEvents(db))
			r.Get("/subscriptions", handler.ListSubscriptions(db))
			r.Post("/subscriptions", handler.Subscribe(db))
			r.Delete("/subscriptions/{id}", handler.Unsubscribe(db))
		}
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down gracefully")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
