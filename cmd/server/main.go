package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/typerace/internal/dbconfig"
	"github.com/mcdev12/typerace/internal/gateway"
	"github.com/mcdev12/typerace/internal/registry"
	"github.com/mcdev12/typerace/internal/results"
	"github.com/mcdev12/typerace/internal/room"
	"github.com/mcdev12/typerace/internal/texts"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().
		Str("port", cfg.Port).
		Bool("nats", cfg.NATS.Enabled).
		Bool("database", cfg.Database.Enabled).
		Msg("starting typerace server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional result persistence
	var store results.Store
	if cfg.Database.Enabled {
		dbCfg := dbconfig.NewConfigFromEnv()
		pool, err := pgxpool.New(ctx, dbCfg.DSN())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ping database")
		}

		pgStore := results.NewPgxStore(pool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ensure results schema")
		}
		store = pgStore
		log.Info().Str("database", dbCfg.Database).Msg("result persistence enabled")
	}

	// Optional result event publishing
	var pub results.Publisher = results.NoopPublisher{}
	if cfg.NATS.Enabled {
		natsCfg := results.DefaultNATSConfig()
		natsCfg.URL = cfg.NATS.URL
		natsPub, err := results.NewNATSPublisher(natsCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to NATS")
		}
		defer natsPub.Close()
		pub = natsPub
	}

	clock := clockwork.NewRealClock()

	seed := cfg.TextSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	hub := gateway.NewHub(gateway.DefaultConfig())
	coord := room.NewCoordinator(registry.New(), hub, texts.NewStatic(seed), clock)

	resultsSvc := results.NewService(store, pub, clock)
	coord.SetResultSink(resultsSvc)

	wsHandler := gateway.NewHandler(hub, coord)
	resultsHandler := results.NewHTTPHandler(resultsSvc)

	go hub.Start(ctx)

	server := setupServer(cfg, hub, wsHandler, coord, resultsHandler)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	cancel()
	coord.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("server stopped")
}
