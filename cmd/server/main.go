package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/cargo-dispatch/internal/alerts"
	"github.com/example/cargo-dispatch/internal/audit"
	"github.com/example/cargo-dispatch/internal/config"
	"github.com/example/cargo-dispatch/internal/dispatch"
	httpapi "github.com/example/cargo-dispatch/internal/http"
	"github.com/example/cargo-dispatch/internal/ingest"
	"github.com/example/cargo-dispatch/internal/lifecycle"
	"github.com/example/cargo-dispatch/internal/logging"
	"github.com/example/cargo-dispatch/internal/matchmaking"
	"github.com/example/cargo-dispatch/internal/payments"
	"github.com/example/cargo-dispatch/internal/presence"
	"github.com/example/cargo-dispatch/internal/reconcile"
	"github.com/example/cargo-dispatch/internal/storage"
	"github.com/example/cargo-dispatch/internal/verification"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// optional migration: run migrations/001_create_core.sql if requested
	if cfg.PGDSN != "" && cfg.RunMigrations {
		if db, err := sql.Open("postgres", cfg.PGDSN); err == nil {
			if b, err := os.ReadFile(filepath.Join("migrations", "001_create_core.sql")); err == nil {
				if _, err := db.Exec(string(b)); err != nil {
					logger.Error("migration exec error", "error", err)
				} else {
					logger.Info("migration applied", "file", "001_create_core.sql")
				}
			}
			_ = db.Close()
		} else {
			logger.Error("migration db open error", "error", err)
		}
	}

	var store storage.Store
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		store = ps
	} else {
		logger.Warn("PG_DSN not set, using in-memory store")
		store = storage.NewMemoryStore()
	}

	var dir presence.Directory
	if cfg.RedisAddr != "" {
		dir = presence.NewRedisPresence(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisPresenceKey)
	} else {
		dir = presence.NewIndex()
	}

	var producer *ingest.KafkaProducer
	recorder := audit.Multi{&audit.StoreRecorder{Appender: store, Logger: logger}}
	if len(cfg.KafkaBrokers) > 0 {
		producer = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaPresenceTopic)
		defer producer.Close()
		kr := audit.NewKafkaRecorder(cfg.KafkaBrokers, cfg.KafkaAuditTopic, logger)
		defer kr.Close()
		recorder = append(recorder, kr)
	}

	wsreg := dispatch.NewWSRegistry(logger)

	lc := lifecycle.NewService(store, recorder, logger)
	lc.Notifier = wsreg

	vs := verification.NewService(store, recorder)
	if cfg.AlertWebhook != "" {
		vs.Alerts = alerts.NewWebhook(cfg.AlertWebhook, logger)
	}

	rc := reconcile.NewService(store, logger)
	rc.Currency = cfg.SettlementCurrency
	if os.Getenv("STRIPE_API_KEY") != "" {
		rc.Collector = payments.NewStripeClient()
	}

	mm := matchmaking.NewService(dir, store, cfg.PresenceCutoff)

	srv := httpapi.NewServer(httpapi.Deps{
		Lifecycle:   lc,
		Verify:      vs,
		Reconcile:   rc,
		Matchmaking: mm,
		Presence:    dir,
		Store:       store,
		Kafka:       producer,
		WSReg:       wsreg,
		Logger:      logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	logger.Info("cargo-dispatch listening", "addr", cfg.HTTPAddr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("cargo-dispatch stopped")
}
