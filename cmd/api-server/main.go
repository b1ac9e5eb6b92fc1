package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hearwell/clinic-backend/internal/api"
	"github.com/hearwell/clinic-backend/internal/billing"
	"github.com/hearwell/clinic-backend/internal/config"
	"github.com/hearwell/clinic-backend/internal/db"
	"github.com/hearwell/clinic-backend/internal/identity"
	"github.com/hearwell/clinic-backend/internal/inventory"
	"github.com/hearwell/clinic-backend/internal/patient"
	redisclient "github.com/hearwell/clinic-backend/internal/redis"
	"github.com/hearwell/clinic-backend/internal/trial"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	log := newLogger(cfg.Env).With().Str("service", "api-server").Logger()
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	locker := redisclient.NewRedisSerialLocker(rdb, cfg.LockTTL)

	identitySvc := identity.NewService(identity.NewPgRepository(pgPool), cfg.JWTSecret, cfg.TokenTTL)
	patientSvc := patient.NewService(patient.NewPgRepository(pgPool))
	inventorySvc := inventory.NewService(inventory.NewPgRepository(pgPool))
	billingSvc := billing.NewService(billing.NewPgRepository(pgPool))
	trialSvc := trial.NewService(trial.NewPgStore(pgPool), locker, log,
		cfg.DefaultTrialDays, cfg.DefaultFollowupDays)

	router := api.NewRouter(api.RouterConfig{
		Identity:  identitySvc,
		Patients:  patientSvc,
		Inventory: inventorySvc,
		Billing:   billingSvc,
		Trials:    trialSvc,
		PgPool:    pgPool,
		Redis:     rdb,
		Logger:    log,
		Env:       cfg.Env,
		Version:   version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		log.Fatal().Err(err).Msg("http server error")
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("api-server stopped")
}

func newLogger(env string) zerolog.Logger {
	if env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
