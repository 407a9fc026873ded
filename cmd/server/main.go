// Command server is the settlement ingestion and exposure-control
// engine's entry point: it wires config, storage, the rule/limit and FX
// caches, the running-total engine, the ingestion and workflow
// coordinators, the notification dispatcher, and the HTTP API together,
// then serves until an OS signal requests shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/colinzhu/limit-monitoring-sub001/internal/config"
	"github.com/colinzhu/limit-monitoring-sub001/internal/fx"
	"github.com/colinzhu/limit-monitoring-sub001/internal/httpapi/router"
	"github.com/colinzhu/limit-monitoring-sub001/internal/ingestion"
	"github.com/colinzhu/limit-monitoring-sub001/internal/logger"
	"github.com/colinzhu/limit-monitoring-sub001/internal/metrics"
	"github.com/colinzhu/limit-monitoring-sub001/internal/notification"
	"github.com/colinzhu/limit-monitoring-sub001/internal/query"
	"github.com/colinzhu/limit-monitoring-sub001/internal/rediscache"
	"github.com/colinzhu/limit-monitoring-sub001/internal/rules"
	"github.com/colinzhu/limit-monitoring-sub001/internal/runningtotal"
	"github.com/colinzhu/limit-monitoring-sub001/internal/status"
	"github.com/colinzhu/limit-monitoring-sub001/internal/store"
	"github.com/colinzhu/limit-monitoring-sub001/internal/validator"
	"github.com/colinzhu/limit-monitoring-sub001/internal/workflow"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	log.Info().Str("env", cfg.Env).Msg("settlement engine starting")

	ctx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid database url")
	}
	poolCfg.MaxConns = cfg.DBMaxConns
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("database pool init failed")
	}
	db := store.New(pool)
	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("schema migration failed")
	}
	cancelBoot()
	log.Info().Msg("database connected")

	m := metrics.New()

	redisCache, err := rediscache.New(cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("redis client init failed, running without cross-replica snapshot cache")
		redisCache = nil
	} else if err := redisCache.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("redis ping failed, running without cross-replica snapshot cache")
		redisCache = nil
	}

	fxConverter := fx.NewConverter(fx.NewHTTPProvider(cfg.RateSourceURL, nil), log, cfg.RateRefreshPeriod)
	ruleRegistry := rules.NewRegistry(rules.NewHTTPProvider(cfg.RuleSourceURL, nil), log, cfg.RuleRefreshPeriod)
	if redisCache != nil {
		ruleRegistry.SetPublisher(rules.NewRedisPublisher(redisCache))
	}
	engine := runningtotal.NewEngine(db, ruleRegistry, fxConverter, db, m, log, cfg.RunningTotalWorkers)
	coordinator := ingestion.NewCoordinator(db, validator.New(), engine, m, log)
	wf := workflow.New(db, db.Pool(), m, log)
	resolver := status.NewResolver(db.Pool(), db, ruleRegistry, wf)
	dispatcher := notification.NewDispatcher(db, notification.NewHTTPNotifier(cfg.NotificationEndpointURL, nil), m, log, cfg.NotificationBaseBackoff)
	if redisCache != nil {
		dispatcher.SetDedupHint(redisCache)
	}
	queryAPI := query.New(db, db.Pool(), resolver)

	runCtx, cancelRun := context.WithCancel(context.Background())
	fxConverter.Start(runCtx)
	ruleRegistry.Start(runCtx)
	engine.Start(runCtx)
	dispatcher.Start(runCtx)

	r := router.New(router.Dependencies{
		Logger:       log,
		Metrics:      m,
		Ingestor:     coordinator,
		Query:        queryAPI,
		Workflow:     wf,
		Recalculator: engine,
		MaxBodyBytes: 1 << 20,
		AdminAPIKey:  cfg.AdminAPIKey,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("settlement engine listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	engine.Stop()
	ruleRegistry.Stop()
	fxConverter.Stop()
	dispatcher.Stop()
	cancelRun()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("settlement engine stopped gracefully")
	}
	if redisCache != nil {
		redisCache.Close()
	}
	pool.Close()
}
