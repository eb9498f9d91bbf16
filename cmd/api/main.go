// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awareness-market/golem-sessions/internal/config"
	"github.com/awareness-market/golem-sessions/internal/demo"
	"github.com/awareness-market/golem-sessions/internal/live"
	"github.com/awareness-market/golem-sessions/internal/logging"
	"github.com/awareness-market/golem-sessions/internal/persistence/postgres"
	"github.com/awareness-market/golem-sessions/internal/playback"
	"github.com/awareness-market/golem-sessions/internal/repository"
	"github.com/awareness-market/golem-sessions/internal/session"
	httptransport "github.com/awareness-market/golem-sessions/internal/transport/http"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.NewLogger(cfg.Env)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if err := postgres.EnsureSchema(ctx, pool, logger); err != nil {
			log.Fatalf("schema bootstrap failed: %v", err)
		}
	}

	sessionRepo := repository.NewSessionRepository(pool, logger)
	eventRepo := repository.NewEventRepository(pool, logger)

	timing := playback.Timing{
		NoiseFloor: time.Duration(cfg.NoiseFloorMs) * time.Millisecond,
		Ceiling:    time.Duration(cfg.CeilingMs) * time.Millisecond,
		Default:    time.Duration(cfg.DefaultDelayMs) * time.Millisecond,
	}

	engine := session.NewEngine(logger)

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
	}
	broker := live.NewBroker(rdb, engine, logger)

	handler := httptransport.NewRouter(httptransport.Deps{
		SessionRepo: sessionRepo,
		EventRepo:   eventRepo,
		Seeder:      sessionRepo,
		Live:        broker,
		Health:      postgres.NewSchemaHealthChecker(pool),
		Logger:      logger,
		Version:     Version,
		Commit:      Commit,
		BuildDate:   BuildDate,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("api listening",
			"addr", cfg.HTTPAddr,
			"version", Version,
			"commit", Commit,
			"build_date", BuildDate,
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		if rdb != nil {
			err := broker.Run(groupCtx)
			if err == nil || groupCtx.Err() != nil {
				return nil
			}
			logger.Warn("push channel unavailable", "error", err)
			if !cfg.LiveDemoFallback {
				// Degrade to connectivity state only; the API keeps serving.
				return nil
			}
		} else if !cfg.LiveDemoFallback {
			logger.Info("live path disabled", "reason", "REDIS_ADDR is not set")
			return nil
		}

		logger.Info("feeding local demo session on the live path")
		meta, events := demo.NewSession(time.Now())
		broker.ServeLocal(groupCtx, demo.Messages(meta, events), timing)
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			5*time.Second,
		)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
