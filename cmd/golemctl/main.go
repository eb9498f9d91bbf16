// SPDX-License-Identifier: Apache-2.0

// golemctl operates on stored sessions from the command line: seeding demo
// data, exporting artifacts, replaying a session timeline at original pacing,
// and publishing a stored session onto the live push channel.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/awareness-market/golem-sessions/internal/config"
	"github.com/awareness-market/golem-sessions/internal/domain"
	"github.com/awareness-market/golem-sessions/internal/logging"
	"github.com/awareness-market/golem-sessions/internal/persistence/postgres"
	"github.com/awareness-market/golem-sessions/internal/playback"
	"github.com/awareness-market/golem-sessions/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

func main() {
	cfg := config.Load()
	logger := logging.NewLogger(cfg.Env)

	root := &cobra.Command{
		Use:           "golemctl",
		Short:         "Operate on stored golem sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newSeedCommand(cfg, logger),
		newExportCommand(cfg, logger),
		newReplayCommand(cfg, logger),
		newPublishCommand(cfg, logger),
	)

	if err := root.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// connect opens the store and optionally bootstraps the schema.
func connect(ctx context.Context, cfg config.Config, logger *slog.Logger, migrate bool) (*pgxpool.Pool, error) {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}

	if migrate && cfg.AutoMigrate {
		if err := postgres.EnsureSchema(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("schema bootstrap: %w", err)
		}
	}

	return pool, nil
}

// loadSession fetches a session's metadata and canonical event list.
func loadSession(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger, id string) (domain.SessionMeta, []domain.EventRecord, error) {
	sessionRepo := repository.NewSessionRepository(pool, logger)
	eventRepo := repository.NewEventRepository(pool, logger)

	meta, err := sessionRepo.GetSession(ctx, id)
	if err != nil {
		return domain.SessionMeta{}, nil, fmt.Errorf("get session %s: %w", id, err)
	}

	events, err := eventRepo.ListEvents(ctx, id, repository.Ascending)
	if err != nil {
		return domain.SessionMeta{}, nil, fmt.Errorf("list events for %s: %w", id, err)
	}

	return meta, events, nil
}

func timingFromConfig(cfg config.Config) playback.Timing {
	return playback.Timing{
		NoiseFloor: time.Duration(cfg.NoiseFloorMs) * time.Millisecond,
		Ceiling:    time.Duration(cfg.CeilingMs) * time.Millisecond,
		Default:    time.Duration(cfg.DefaultDelayMs) * time.Millisecond,
	}
}

// describeEvent renders one timeline line for the replay output.
func describeEvent(ev domain.EventRecord, startedAt int64) string {
	offset := ev.Timestamp - startedAt
	detail := ""

	payload, err := ev.DecodePayload()
	if err == nil {
		switch p := payload.(type) {
		case domain.Node:
			detail = fmt.Sprintf("%s (%s, dim %d) %s", p.DisplayName, p.Role, p.Dimension, p.Status)
		case domain.Edge:
			detail = fmt.Sprintf("%s -> %s %s", p.SourceNodeID, p.TargetNodeID, p.Status)
		case domain.GenericEvent:
			detail = p.Label
		case domain.Metrics:
			detail = fmt.Sprintf("%d transformations, success %.2f", p.TotalTransformations, p.SuccessRatio)
		case domain.SessionEndPayload:
			detail = string(p.Status)
		}
	}

	return strings.TrimRight(fmt.Sprintf("%8dms  %-14s %s", offset, ev.Kind, detail), " ")
}
