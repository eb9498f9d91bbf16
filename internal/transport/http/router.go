// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/awareness-market/golem-sessions/internal/demo"
	"github.com/awareness-market/golem-sessions/internal/domain"
	"github.com/awareness-market/golem-sessions/internal/export"
	"github.com/awareness-market/golem-sessions/internal/metrics"
	"github.com/awareness-market/golem-sessions/internal/repository"
	"github.com/awareness-market/golem-sessions/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const sseKeepaliveInterval = 15 * time.Second

type Deps struct {
	SessionRepo SessionGetter
	EventRepo   EventLister
	Seeder      SessionSeeder
	Live        LiveStreamer
	Health      HealthChecker
	Logger      *slog.Logger
	Version     string
	Commit      string
	BuildDate   string
}

func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics.Init()
	version := valueOrDefault(deps.Version, "dev")
	commit := valueOrDefault(deps.Commit, "none")
	buildDate := valueOrDefault(deps.BuildDate, "unknown")

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(logger))

	// ---------------- HEALTH ----------------

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("health check hit")

		if deps.Health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := deps.Health.Check(ctx); err != nil {
				logger.Error("health check failed", "error", err)
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// ---------------- METRICS ----------------

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// ---------------- VERSION ----------------

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"commit":     commit,
			"build_date": buildDate,
		})
	})

	// ---------------- CREATE DEMO SESSION ----------------

	r.Post("/demo-sessions", func(w http.ResponseWriter, r *http.Request) {
		if deps.Seeder == nil {
			http.Error(w, "demo seeding is not configured", http.StatusInternalServerError)
			return
		}

		meta, events := demo.NewSession(time.Now())
		if err := deps.Seeder.InsertSession(r.Context(), meta, events); err != nil {
			logger.Error("seed demo session failed", "session_id", meta.ID, "error", err)
			http.Error(w, "failed to create demo session", http.StatusInternalServerError)
			return
		}

		logger.Info("demo session created via API",
			"session_id", meta.ID,
			"event_count", len(events),
		)

		writeJSON(w, http.StatusOK, map[string]any{
			"session_id":  meta.ID,
			"event_count": len(events),
		})
	})

	// ---------------- GET SESSION ----------------

	r.Get("/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		meta, err := deps.SessionRepo.GetSession(r.Context(), id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				logger.Warn("session not found", "session_id", id)
				http.Error(w, "session not found", http.StatusNotFound)
				return
			}

			logger.Error("get session failed", "session_id", id, "error", err)
			http.Error(w, "failed to get session", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, meta)
	})

	// ---------------- LIST EVENTS ----------------

	r.Get("/sessions/{id}/events", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		order, err := parseSortOrder(r.URL.Query().Get("sort"))
		if err != nil {
			http.Error(w, "invalid sort order", http.StatusBadRequest)
			return
		}

		if _, err := deps.SessionRepo.GetSession(r.Context(), id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				http.Error(w, "session not found", http.StatusNotFound)
				return
			}
			logger.Error("get session failed", "session_id", id, "error", err)
			http.Error(w, "failed to list events", http.StatusInternalServerError)
			return
		}

		events, err := deps.EventRepo.ListEvents(r.Context(), id, order)
		if err != nil {
			logger.Error("list events failed", "session_id", id, "error", err)
			http.Error(w, "failed to list events", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, struct {
			SessionID string               `json:"session_id"`
			SortOrder string               `json:"sort_order"`
			Events    []domain.EventRecord `json:"events"`
		}{
			SessionID: id,
			SortOrder: string(order),
			Events:    events,
		})
	})

	// ---------------- EXPORT ----------------

	r.Get("/sessions/{id}/export", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		format, err := export.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			http.Error(w, "unsupported export format", http.StatusBadRequest)
			return
		}

		meta, err := deps.SessionRepo.GetSession(r.Context(), id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				http.Error(w, "session not found", http.StatusNotFound)
				return
			}
			logger.Error("get session failed", "session_id", id, "error", err)
			http.Error(w, "failed to export session", http.StatusInternalServerError)
			return
		}

		events, err := deps.EventRepo.ListEvents(r.Context(), id, repository.Ascending)
		if err != nil {
			logger.Error("list events failed", "session_id", id, "error", err)
			http.Error(w, "failed to export session", http.StatusInternalServerError)
			return
		}

		exportedAt := time.Now().UTC()
		snap := session.Reduce(meta, events).Snapshot()
		artifact, contentType, err := export.SerializeAt(snap, format, exportedAt)
		if err != nil {
			if errors.Is(err, domain.ErrNothingToExport) {
				http.Error(w, "nothing to export", http.StatusUnprocessableEntity)
				return
			}
			logger.Error("serialize export failed", "session_id", id, "error", err)
			http.Error(w, "failed to export session", http.StatusInternalServerError)
			return
		}

		metrics.IncExport(string(format))

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="%s"`, export.Filename(id, format, exportedAt)))
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(artifact)
	})

	// ---------------- LIVE STREAM (SSE) ----------------

	r.Get("/sessions/{id}/live", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if deps.Live == nil {
			http.Error(w, "live streaming is not configured", http.StatusInternalServerError)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		// Connectivity first, then the current projection so a late joiner
		// is not blank, then the message stream.
		writeSSE(w, "status", map[string]any{"connected": deps.Live.Ready()})
		if snap, ok := deps.Live.State(id); ok {
			writeSSE(w, "snapshot", snap)
		}
		flusher.Flush()

		sub := deps.Live.Subscribe(id)
		defer deps.Live.Unsubscribe(id, sub)

		keepalive := time.NewTicker(sseKeepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case frame, open := <-sub:
				if !open {
					return
				}
				if _, err := w.Write(frame); err != nil {
					return
				}
				flusher.Flush()
			case <-keepalive.C:
				if _, err := w.Write([]byte(": ping\n\n")); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSSE(w http.ResponseWriter, eventType string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload)
}

func parseSortOrder(raw string) (repository.SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "asc", "ascending":
		return repository.Ascending, nil
	case "desc", "descending":
		return repository.Descending, nil
	default:
		return "", errors.New("invalid sort order")
	}
}

func valueOrDefault(value, defaultValue string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultValue
	}
	return trimmed
}
