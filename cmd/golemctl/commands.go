// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awareness-market/golem-sessions/internal/config"
	"github.com/awareness-market/golem-sessions/internal/demo"
	"github.com/awareness-market/golem-sessions/internal/export"
	"github.com/awareness-market/golem-sessions/internal/live"
	"github.com/awareness-market/golem-sessions/internal/playback"
	"github.com/awareness-market/golem-sessions/internal/repository"
	"github.com/awareness-market/golem-sessions/internal/session"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func newSeedCommand(cfg config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert a scripted demo session into the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			pool, err := connect(ctx, cfg, logger, true)
			if err != nil {
				return err
			}
			defer pool.Close()

			meta, events := demo.NewSession(time.Now())
			repo := repository.NewSessionRepository(pool, logger)
			if err := repo.InsertSession(ctx, meta, events); err != nil {
				return fmt.Errorf("insert session: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "seeded session %s (%d events)\n", meta.ID, len(events))
			return nil
		},
	}
}

func newExportCommand(cfg config.Config, logger *slog.Logger) *cobra.Command {
	var (
		formatFlag string
		outFlag    string
	)

	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Write a session snapshot artifact to a file or stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			format, err := export.ParseFormat(formatFlag)
			if err != nil {
				return err
			}

			pool, err := connect(ctx, cfg, logger, false)
			if err != nil {
				return err
			}
			defer pool.Close()

			meta, events, err := loadSession(ctx, pool, logger, args[0])
			if err != nil {
				return err
			}

			snap := session.Reduce(meta, events).Snapshot()

			data, _, err := export.Serialize(snap, format)
			if err != nil {
				return fmt.Errorf("serialize: %w", err)
			}

			if outFlag == "" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}

			if err := os.WriteFile(outFlag, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", outFlag, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", outFlag)
			return nil
		},
	}

	cmd.Flags().StringVar(&formatFlag, "format", "json", "export format (json or csv)")
	cmd.Flags().StringVar(&outFlag, "out", "", "output path (default stdout)")
	return cmd
}

func newReplayCommand(cfg config.Config, logger *slog.Logger) *cobra.Command {
	var speedFlag float64

	cmd := &cobra.Command{
		Use:   "replay <session-id>",
		Short: "Replay a stored session timeline at reconstructed pacing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			pool, err := connect(ctx, cfg, logger, false)
			if err != nil {
				return err
			}
			defer pool.Close()

			meta, events, err := loadSession(ctx, pool, logger, args[0])
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "session has no events")
				return nil
			}

			frames := make(chan playback.Frame, len(events)+1)
			ctrl := playback.NewController(playback.Deps{
				Meta:   meta,
				Events: events,
				Timing: timingFromConfig(cfg),
				Speed:  speedFlag,
				Logger: logger,
				OnChange: func(f playback.Frame) {
					frames <- f
				},
			})
			defer ctrl.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "replaying %s (%d events, %.0fx)\n", meta.ID, len(events), speedFlag)
			ctrl.Play()

			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case f := <-frames:
					if f.Selected != nil {
						fmt.Fprintln(cmd.OutOrStdout(), describeEvent(*f.Selected, meta.StartedAt))
					}
					if f.Status == playback.StatusFinished {
						fmt.Fprintf(cmd.OutOrStdout(), "finished: %d nodes, %d edges\n",
							len(f.State.Nodes), len(f.State.Edges))
						return nil
					}
				}
			}
		},
	}

	cmd.Flags().Float64Var(&speedFlag, "speed", 1, "playback speed multiplier")
	return cmd
}

func newPublishCommand(cfg config.Config, logger *slog.Logger) *cobra.Command {
	var speedFlag float64

	cmd := &cobra.Command{
		Use:   "publish <session-id>",
		Short: "Publish a stored session onto the live push channel at timing pacing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cfg.RedisAddr == "" {
				return fmt.Errorf("REDIS_ADDR is not set")
			}

			pool, err := connect(ctx, cfg, logger, false)
			if err != nil {
				return err
			}
			defer pool.Close()

			meta, events, err := loadSession(ctx, pool, logger, args[0])
			if err != nil {
				return err
			}

			rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
			defer rdb.Close()
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis ping: %w", err)
			}

			channel := live.ChannelPrefix + meta.ID
			timing := timingFromConfig(cfg)
			msgs := demo.Messages(meta, events)

			fmt.Fprintf(cmd.OutOrStdout(), "publishing %d messages to %s\n", len(msgs), channel)
			for i, msg := range msgs {
				// msgs[0] is the synthetic session-start; pacing follows
				// the gaps between the stored events it precedes.
				if i > 1 {
					delay := timing.DelayFor(events, i-1, speedFlag)
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(delay):
					}
				}

				if err := publishMessage(ctx, rdb, channel, msg); err != nil {
					return err
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), "done")
			return nil
		},
	}

	cmd.Flags().Float64Var(&speedFlag, "speed", 1, "publish speed multiplier")
	return cmd
}

func publishMessage(ctx context.Context, rdb *redis.Client, channel string, msg session.Message) error {
	raw, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode message %s: %w", msg.EventID, err)
	}
	if err := rdb.Publish(ctx, channel, raw).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.EventID, err)
	}
	return nil
}
