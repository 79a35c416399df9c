package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"veristat/internal/analytics"
	analyticscache "veristat/internal/analytics/cache"
	analyticshandler "veristat/internal/analytics/handler"
	analyticsmetrics "veristat/internal/analytics/metrics"
	analyticsstore "veristat/internal/analytics/store"
	"veristat/internal/audit"
	"veristat/internal/audit/alerts"
	audithandler "veristat/internal/audit/handler"
	"veristat/internal/audit/integrity"
	auditmetrics "veristat/internal/audit/metrics"
	"veristat/internal/audit/ports"
	"veristat/internal/audit/publisher"
	auditstore "veristat/internal/audit/store"
	"veristat/internal/platform/config"
	"veristat/internal/platform/httpserver"
	"veristat/internal/platform/logger"
	platformmetrics "veristat/internal/platform/metrics"
	platformredis "veristat/internal/platform/redis"
	"veristat/internal/privacy"
	"veristat/internal/privacy/budget"
	privacymetrics "veristat/internal/privacy/metrics"
	httptransport "veristat/internal/transport/http"
	"veristat/pkg/platform/crypto"
	"veristat/pkg/platform/middleware/auth"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps
// the server lifecycle small. Business logic lives in the internal
// services packages.
func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	master := []byte(cfg.MasterKey)
	encrypter, err := crypto.NewService(master)
	if err != nil {
		return err
	}
	integrityKey, err := crypto.DeriveKey(master, crypto.LabelAuditIntegrity, 32)
	if err != nil {
		return err
	}
	hasher, err := integrity.New(integrityKey)
	if err != nil {
		return err
	}

	redisClient, err := platformredis.New(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Privacy budget: shared in redis when configured, else per-process.
	var ledger budget.Ledger
	if redisClient != nil {
		ledger = budget.NewRedisLedger(redisClient.Client, cfg.EpsilonCap)
	} else {
		log.Warn("redis not configured, privacy budget is per-process")
		ledger = budget.NewInMemoryLedger(cfg.EpsilonCap)
	}
	gate, err := privacy.New(ledger,
		privacy.WithKThreshold(cfg.KThreshold),
		privacy.WithEpsilon(cfg.Epsilon),
		privacy.WithLogger(log),
		privacy.WithMetrics(privacymetrics.New()),
	)
	if err != nil {
		return err
	}

	var telemetry analyticsstore.Store
	if cfg.AnalyticsDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.AnalyticsDSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		telemetry = analyticsstore.NewPostgres(pool)
	} else {
		log.Warn("analytics DSN not configured, using empty in-memory store")
		telemetry = analyticsstore.NewMemory()
	}

	var resultCache analyticscache.Cache = analyticscache.NewMemory()
	if redisClient != nil {
		resultCache = analyticscache.NewRedis(redisClient.Client)
	}
	engine, err := analytics.NewService(telemetry, gate,
		analytics.WithLogger(log),
		analytics.WithMetrics(analyticsmetrics.New()),
		analytics.WithCache(resultCache),
		analytics.WithCacheTTL(cfg.CacheTTL),
	)
	if err != nil {
		return err
	}

	var events ports.Store
	if cfg.AuditDSN != "" {
		db, err := sql.Open("postgres", cfg.AuditDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		events = auditstore.NewPostgres(db)
	} else {
		log.Warn("audit DSN not configured, events are not durable")
		events = auditstore.NewMemory()
	}

	auditOpts := []audit.Option{
		audit.WithLogger(log),
		audit.WithMetrics(auditmetrics.New()),
		audit.WithEnvironment(cfg.Environment),
	}
	if len(cfg.KafkaBrokers) > 0 {
		sinkOpts := []alerts.Option{alerts.WithLogger(log)}
		if cfg.AlertTopic != "" {
			sinkOpts = append(sinkOpts, alerts.WithTopic(cfg.AlertTopic))
		}
		sink, err := alerts.NewKafkaSink(ctx, cfg.KafkaBrokers, sinkOpts...)
		if err != nil {
			return err
		}
		defer sink.Close(context.Background())
		auditOpts = append(auditOpts, audit.WithAlertSink(sink))
	}
	auditLedger, err := audit.NewService(events, encrypter, hasher, auditOpts...)
	if err != nil {
		return err
	}

	trail := publisher.NewAsync(auditLedger, publisher.WithLogger(log))
	trail.Start()

	var validator auth.Validator
	if cfg.JWTSecret != "" {
		validator = auth.NewHMACValidator([]byte(cfg.JWTSecret))
	} else {
		log.Warn("JWT secret not configured, audit endpoints are unmounted")
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Analytics:     analyticshandler.New(engine, log),
		Audit:         audithandler.New(auditLedger, log),
		AuthValidator: validator,
		AdminToken:    cfg.AdminToken,
		Logger:        log,
		Metrics:       platformmetrics.New(),
		AuditTrail:    trail,
	})
	srv := httpserver.New(cfg.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("veristat listening", "addr", cfg.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownWait)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return trail.Close(shutdownCtx)
}
