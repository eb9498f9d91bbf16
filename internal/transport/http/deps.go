// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"

	"github.com/awareness-market/golem-sessions/internal/domain"
	"github.com/awareness-market/golem-sessions/internal/repository"
)

// SessionGetter is the query interface for session metadata.
type SessionGetter interface {
	GetSession(ctx context.Context, id string) (domain.SessionMeta, error)
}

// EventLister returns the complete ordered event list for a session.
type EventLister interface {
	ListEvents(ctx context.Context, sessionID string, order repository.SortOrder) ([]domain.EventRecord, error)
}

// SessionSeeder is the command interface used to create demo sessions.
type SessionSeeder interface {
	InsertSession(ctx context.Context, meta domain.SessionMeta, events []domain.EventRecord) error
}

// LiveStreamer exposes the live broker to the SSE handler.
type LiveStreamer interface {
	Ready() bool
	State(sessionID string) (domain.Snapshot, bool)
	Subscribe(sessionID string) chan []byte
	Unsubscribe(sessionID string, ch chan []byte)
}

// HealthChecker reports backing-store reachability for the health endpoint.
type HealthChecker interface {
	Check(ctx context.Context) error
}
