package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/adapters/cache"
	"github.com/dkeye/Huddle/internal/adapters/federation"
	router "github.com/dkeye/Huddle/internal/adapters/http"
	"github.com/dkeye/Huddle/internal/adapters/tasks"
	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/storage"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := storage.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}

	rooms := storage.NewRoomStore(db)
	attendees := storage.NewAttendeeStore(db)
	sessions := storage.NewSessionStore(db)

	bus := app.NewBus()
	registry := app.NewRoomRegistry(rooms)
	calls := app.NewCallStateController(rooms, sessions, bus)
	tracker := app.NewSessionTracker(sessions, attendees, calls, bus, cfg.GuestKillTimeout)

	redisCache := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := redisCache.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("redis unreachable, cache invalidation degraded")
	}

	var bridgeOpts []federation.Option
	if cfg.FederationInsecure {
		bridgeOpts = append(bridgeOpts, federation.WithInsecureHTTP())
	}
	bridge := federation.NewHTTPBridge(cfg.FederationTimeout, bridgeOpts...)

	sweeps := tasks.NewScheduler(cfg.RedisAddr, cfg.SweepDelay)

	coordinator := app.NewParticipantCoordinator(app.CoordinatorDeps{
		Attendees: attendees,
		Sessions:  sessions,
		Tracker:   tracker,
		Registry:  registry,
		Calls:     calls,
		Bus:       bus,
		Bridge:    bridge,
		Cache:     redisCache,
		Sweeps:    sweeps,
	})
	breakout := app.NewBreakoutRoomOrchestrator(rooms, attendees, registry, coordinator, nil, nil, cfg.BreakoutRoomsEnabled)

	worker := tasks.NewWorker(cfg.RedisAddr, cfg.WorkerConcurrency, registry, tracker)
	go func() {
		if err := worker.Run(ctx); err != nil {
			log.Error().Err(err).Msg("task worker stopped")
		}
	}()

	handlers := &router.Handlers{
		Registry:    registry,
		Coordinator: coordinator,
		Breakout:    breakout,
		Tracker:     tracker,
	}
	r := router.SetupRouter(cfg, handlers)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Huddle server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := sweeps.Close(); err != nil {
		log.Warn().Err(err).Msg("task scheduler close failed")
	}
	if err := redisCache.Close(); err != nil {
		log.Warn().Err(err).Msg("redis close failed")
	}
	log.Info().Msg("Server exited gracefully")
}
