package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JUNIORUSENI/system-gestion-hopital/internal/cache"
	"github.com/JUNIORUSENI/system-gestion-hopital/internal/dashboard"
	"github.com/JUNIORUSENI/system-gestion-hopital/internal/gateway"
	"github.com/JUNIORUSENI/system-gestion-hopital/internal/listing"
	"github.com/JUNIORUSENI/system-gestion-hopital/internal/query"
	"github.com/JUNIORUSENI/system-gestion-hopital/internal/records"
	"github.com/JUNIORUSENI/system-gestion-hopital/internal/scheduler"
	"github.com/JUNIORUSENI/system-gestion-hopital/internal/scope"
	"github.com/JUNIORUSENI/system-gestion-hopital/internal/store"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/config"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/database"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/interfaces"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/logger"
	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/monitoring"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)

	db, err := database.NewConnection(&cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("Database connection failed")
	}
	defer db.Close()

	if err := db.EnsureSchema(context.Background()); err != nil {
		log.WithError(err).Fatal("Schema setup failed")
	}

	registry := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(registry)

	var pageCache interfaces.PageCache
	switch cfg.Cache.Backend {
	case "redis":
		redisCache, err := cache.NewRedisCache(&cfg.Redis, log)
		if err != nil {
			log.WithError(err).Fatal("Redis connection failed")
		}
		defer redisCache.Close()
		pageCache = redisCache
		log.Info("Using Redis page cache")
	default:
		pageCache = cache.NewMemoryCache(log)
		log.Info("Using in-memory page cache")
	}

	recordStore := store.NewPostgresStore(db, log)
	resolver := scope.NewResolver(log)
	builder := query.NewBuilder(log)
	sched := scheduler.New(log)

	listings := listing.NewService(resolver, builder, recordStore, pageCache, metrics, log)
	recs := records.NewService(resolver, sched, recordStore, pageCache, metrics, log)
	dash := dashboard.NewAggregator(resolver, builder, recordStore, log)

	gw := gateway.NewService(listings, recs, dash, log, cfg.Server.JWTSecret, registry,
		monitoring.HealthChecker{Name: "database", Check: db.Health})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      gw.Router(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		log.WithFields(map[string]interface{}{"addr": srv.Addr}).Info("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Shutdown incomplete")
	}
}
