// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"log/slog"

	"github.com/awareness-market/golem-sessions/internal/domain"
	"github.com/awareness-market/golem-sessions/internal/metrics"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SessionRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewSessionRepository(pool *pgxpool.Pool, logger *slog.Logger) *SessionRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &SessionRepository{
		pool:   pool,
		logger: logger,
	}
}

// GetSession returns the stored metadata for one session, event count
// included. Callers distinguish absence via pgx.ErrNoRows.
func (r *SessionRepository) GetSession(ctx context.Context, id string) (domain.SessionMeta, error) {
	var (
		meta        domain.SessionMeta
		completedAt *int64
	)

	err := r.pool.QueryRow(ctx, `
		SELECT s.id, s.session_type, s.status, s.started_at, s.completed_at,
		       (SELECT COUNT(*) FROM session_events e WHERE e.session_id = s.id)
		FROM sessions s
		WHERE s.id = $1
	`, id).Scan(
		&meta.ID,
		&meta.Type,
		&meta.Status,
		&meta.StartedAt,
		&completedAt,
		&meta.EventCount,
	)
	if err != nil {
		return domain.SessionMeta{}, err
	}

	if completedAt != nil {
		meta.CompletedAt = *completedAt
		meta.DurationMs = meta.CompletedAt - meta.StartedAt
	}

	return meta, nil
}

// InsertSession persists a session and its complete event list in one
// transaction. Used by the demo-session command interface; the live path
// never writes through this subsystem.
func (r *SessionRepository) InsertSession(ctx context.Context, meta domain.SessionMeta, events []domain.EventRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var completedAt *int64
	if meta.CompletedAt != 0 {
		completedAt = &meta.CompletedAt
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO sessions (id, session_type, status, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		meta.ID,
		meta.Type,
		meta.Status,
		meta.StartedAt,
		completedAt,
	); err != nil {
		r.logger.Error("insert session failed", "session_id", meta.ID, "error", err)
		return err
	}

	for _, ev := range events {
		if _, err := tx.Exec(ctx, `
			INSERT INTO session_events (id, session_id, kind, ts, payload)
			VALUES ($1, $2, $3, $4, $5)
		`,
			ev.ID,
			meta.ID,
			string(ev.Kind),
			ev.Timestamp,
			ev.Payload,
		); err != nil {
			r.logger.Error("insert session event failed",
				"session_id", meta.ID,
				"event_id", ev.ID,
				"error", err,
			)
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	metrics.IncDemoSessions()
	return nil
}
