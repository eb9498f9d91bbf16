// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/awareness-market/golem-sessions/internal/domain"
	"github.com/awareness-market/golem-sessions/internal/metrics"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SortOrder controls the direction of a stored event list query.
type SortOrder string

const (
	Ascending  SortOrder = "asc"
	Descending SortOrder = "desc"
)

type EventRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewEventRepository(pool *pgxpool.Pool, logger *slog.Logger) *EventRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &EventRepository{
		pool:   pool,
		logger: logger,
	}
}

// ListEvents returns the complete stored event list for a session in
// canonical order: timestamp, then insertion time, then id as a
// deterministic tiebreak. Descending reverses the same total order.
func (r *EventRepository) ListEvents(ctx context.Context, sessionID string, order SortOrder) ([]domain.EventRecord, error) {
	started := time.Now()

	query := `
		SELECT id, session_id, kind, ts, payload
		FROM session_events
		WHERE session_id = $1
		ORDER BY ts ASC, created_at ASC, id ASC
	`
	if order == Descending {
		query = `
			SELECT id, session_id, kind, ts, payload
			FROM session_events
			WHERE session_id = $1
			ORDER BY ts DESC, created_at DESC, id DESC
		`
	}

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		r.logger.Error("list events query failed",
			"session_id", sessionID,
			"error", err,
		)
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.EventRecord, 0, 64)
	for rows.Next() {
		var (
			ev   domain.EventRecord
			kind string
		)
		if err := rows.Scan(
			&ev.ID,
			&ev.SessionID,
			&kind,
			&ev.Timestamp,
			&ev.Payload,
		); err != nil {
			r.logger.Error("scan event row failed",
				"session_id", sessionID,
				"error", err,
			)
			return nil, err
		}
		ev.Kind = domain.EventKind(kind)
		out = append(out, ev)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("events rows iteration failed",
			"session_id", sessionID,
			"error", err,
		)
		return nil, err
	}

	metrics.ObserveEventQueryDuration(time.Since(started))
	return out, nil
}
