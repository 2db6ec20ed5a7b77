package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinical-workflow-scheduling/internal/api"
	"github.com/hackgods/clinical-workflow-scheduling/internal/appointment"
	"github.com/hackgods/clinical-workflow-scheduling/internal/availability"
	"github.com/hackgods/clinical-workflow-scheduling/internal/clock"
	"github.com/hackgods/clinical-workflow-scheduling/internal/config"
	"github.com/hackgods/clinical-workflow-scheduling/internal/db"
	"github.com/hackgods/clinical-workflow-scheduling/internal/identity"
	"github.com/hackgods/clinical-workflow-scheduling/internal/kv"
	"github.com/hackgods/clinical-workflow-scheduling/internal/labflow"
	"github.com/hackgods/clinical-workflow-scheduling/internal/lock"
	"github.com/hackgods/clinical-workflow-scheduling/internal/logger"
	"github.com/hackgods/clinical-workflow-scheduling/internal/notify"
	redisclient "github.com/hackgods/clinical-workflow-scheduling/internal/redis"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("config load error")
	}

	log := logger.New(cfg.Env)
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.System(cfg.CalendarLocation)

	var pgPool *pgxpool.Pool
	var repo appointment.Repository = appointment.NewMemoryRepository()
	if cfg.PostgresDSN != "" {
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{})
		if err == nil {
			err = db.EnsureSchema(pgCtx, pgPool)
		}
		cancelPg()
		if err != nil {
			log.Fatal().Err(err).Msg("postgres setup error")
		}
		defer pgPool.Close()
		repo = appointment.NewPgRepository(pgPool)
		log.Info().Msg("connected to Postgres")
	} else {
		log.Warn().Msg("POSTGRES_DSN not set, appointments are kept in memory")
	}

	var (
		rdb    *redis.Client
		store  kv.Store    = kv.NewMemoryStore()
		locker lock.Locker = lock.NewMemory()
	)
	if cfg.RedisEnabled {
		rdb, err = redisclient.NewRedisClient(rootCtx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection error")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Error().Err(err).Msg("error closing redis")
			}
		}()
		store = kv.NewRedisStore(rdb, "clinic:")
		locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL)
		log.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")
	} else {
		log.Warn().Msg("redis disabled, state and locks are process-local")
	}

	bus := notify.NewBus(log, clk.Now)
	notifications := notify.NewLog(store, cfg.NotificationLimit, log)
	if err := notifications.Load(rootCtx); err != nil {
		log.Error().Err(err).Msg("failed to restore notifications")
	}
	hub := notify.NewHub()
	bus.Subscribe("notifications", notifications)
	bus.Subscribe("hub", hub)

	if rdb != nil {
		broadcaster := notify.NewRedisBroadcaster(rdb, cfg.RedisChannel, log)
		bus.Subscribe("redis", broadcaster)
		go func() {
			if err := broadcaster.Relay(rootCtx, bus.Origin(), hub); err != nil {
				log.Error().Err(err).Msg("redis event relay stopped")
			}
		}()
	}

	schedules := availability.NewBook(store, log)
	if err := schedules.Restore(rootCtx); err != nil {
		log.Error().Err(err).Msg("failed to restore availability")
	}

	appointments := appointment.NewService(appointment.Deps{
		Repo:      repo,
		Schedules: schedules,
		Locker:    locker,
		Store:     store,
		Publisher: bus,
		Clock:     clk,
		Logger:    log.With().Str("component", "appointments").Logger(),
	})
	if err := appointments.Restore(rootCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to restore appointments")
	}

	allocator, err := labflow.NewPoolAllocator(cfg.LabTechnicians, cfg.LabStations, cfg.LabSlot)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid lab pool")
	}
	lab := labflow.NewEngine(labflow.Deps{
		Allocator:     allocator,
		Locker:        locker,
		Store:         store,
		Publisher:     bus,
		Clock:         clk,
		Logger:        log.With().Str("component", "labflow").Logger(),
		ArtifactDelay: cfg.ArtifactDelay,
	})
	if err := lab.Restore(rootCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to restore lab requests")
	}

	router := api.NewRouter(api.RouterConfig{
		Appointments:  appointments,
		Schedules:     schedules,
		Lab:           lab,
		Notifications: notifications,
		Hub:           hub,
		Publisher:     bus,
		Profile: identity.Profile{
			Role:  cfg.ProfileRole,
			Name:  cfg.ProfileName,
			Email: cfg.ProfileEmail,
		},
		Clock:   clk,
		Logger:  log,
		PgPool:  pgPool,
		Redis:   rdb,
		Env:     cfg.Env,
		Version: version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
