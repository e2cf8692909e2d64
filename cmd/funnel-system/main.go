package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vipinuengage/funnel-system/internal/archive"
	"github.com/vipinuengage/funnel-system/internal/config"
	"github.com/vipinuengage/funnel-system/internal/counter"
	"github.com/vipinuengage/funnel-system/internal/dashboard"
	"github.com/vipinuengage/funnel-system/internal/enricher"
	"github.com/vipinuengage/funnel-system/internal/event"
	"github.com/vipinuengage/funnel-system/internal/handler"
	"github.com/vipinuengage/funnel-system/internal/recorder"
	"github.com/vipinuengage/funnel-system/internal/rollup"
	"github.com/vipinuengage/funnel-system/internal/store/postgres"
	"github.com/vipinuengage/funnel-system/internal/stream"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load config
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/funnel-system.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load config")
	}

	rep, err := event.NewReporting(cfg.Reporting.Timezone)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load reporting timezone")
	}

	log.Info().
		Str("timezone", cfg.Reporting.Timezone).
		Str("redis_addr", cfg.Redis.Addr).
		Str("rollup_schedule", cfg.Rollup.Schedule).
		Msg("Starting funnel-system")

	ctx := context.Background()

	// Durable stores
	pg, err := postgres.New(ctx, cfg.Postgres.DSN, cfg.Reporting.Timezone)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Postgres")
	}
	defer pg.Close()
	if err := pg.Schema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply Postgres schema")
	}
	log.Info().Msg("Connected to Postgres")

	// Live counter store: redis when configured, process-local otherwise
	var rdb *redis.Client
	var counters counter.Store
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		counters = counter.NewRedis(rdb, counter.Capabilities{
			ApproxDistinct: cfg.Counters.ApproxDistinct,
			ExactSets:      cfg.Counters.ExactSets,
		}, cfg.Counters.IdentityTTL)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Live counters on redis")
	} else {
		counters = counter.NewMemory()
		log.Warn().Msg("Redis not configured, live counters are process-local")
	}

	// Optional event stream fanout
	var publisher stream.Publisher
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic != "" {
		kp := stream.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kp.Close()
		publisher = kp
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka fanout enabled")
	}

	// Archive sinks
	var chArchive *archive.ClickHouseArchive
	if cfg.ClickHouse.Addr != "" {
		chArchive, err = archive.NewClickHouseArchive(ctx, cfg.ClickHouse.Addr,
			cfg.ClickHouse.Database, cfg.ClickHouse.Username, cfg.ClickHouse.Password)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to ClickHouse")
		}
		defer chArchive.Close()
		if err := chArchive.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply ClickHouse archive schema")
		}
		log.Info().Str("addr", cfg.ClickHouse.Addr).Msg("ClickHouse archive sink enabled")
	}
	opener := archive.NewOpener(cfg.Archive.Dir, chArchive)

	eventEnricher := enricher.New(cfg.GeoIP.DatabasePath)
	defer eventEnricher.Close()

	// Core components
	backfiller := recorder.NewBackfiller(pg, cfg.Backfill.MaxInFlight, cfg.Backfill.Timeout)
	rec := recorder.New(pg, counters, publisher, backfiller, rep)
	reader := dashboard.New(pg, pg, counters, rep)

	job := rollup.NewJob(pg, pg, counters, opener, rep, cfg.Rollup.LockTTL)
	sched, err := rollup.NewScheduler(job, cfg.Rollup.Schedule, rep.Location())
	if err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Rollup.Schedule).Msg("Failed to schedule rollup job")
	}
	sched.Start()
	log.Info().Str("schedule", cfg.Rollup.Schedule).Msg("Rollup job scheduled")

	// HTTP server
	h := handler.New(rec, reader, handler.NewVerifier(pg, rdb), eventEnricher, pg)
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(handler.CORSMiddleware)
	h.Routes(r)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to serve HTTP")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	httpServer.Shutdown(context.Background())
	<-sched.Stop().Done()
	backfiller.Settle()
	log.Info().Msg("Stopped")
}
