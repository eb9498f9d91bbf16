// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/awareness-market/golem-sessions/internal/domain"
	"github.com/awareness-market/golem-sessions/internal/repository"
	"github.com/jackc/pgx/v5"
)

type fakeStore struct {
	sessions map[string]domain.SessionMeta
	events   map[string][]domain.EventRecord
	inserted []domain.SessionMeta
	failWith error
}

func (f *fakeStore) GetSession(ctx context.Context, id string) (domain.SessionMeta, error) {
	if f.failWith != nil {
		return domain.SessionMeta{}, f.failWith
	}
	meta, ok := f.sessions[id]
	if !ok {
		return domain.SessionMeta{}, pgx.ErrNoRows
	}
	return meta, nil
}

func (f *fakeStore) ListEvents(ctx context.Context, sessionID string, order repository.SortOrder) ([]domain.EventRecord, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	events := f.events[sessionID]
	if order == repository.Descending {
		reversed := make([]domain.EventRecord, len(events))
		for i, ev := range events {
			reversed[len(events)-1-i] = ev
		}
		return reversed, nil
	}
	return events, nil
}

func (f *fakeStore) InsertSession(ctx context.Context, meta domain.SessionMeta, events []domain.EventRecord) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.inserted = append(f.inserted, meta)
	return nil
}

type fakeHealth struct{ err error }

func (f fakeHealth) Check(ctx context.Context) error { return f.err }

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: map[string]domain.SessionMeta{
			"s1": {
				ID: "s1", Type: "alignment", Status: domain.SessionCompleted,
				StartedAt: 1000, CompletedAt: 4000, DurationMs: 3000, EventCount: 3,
			},
			"empty": {ID: "", Status: domain.SessionActive},
		},
		events: map[string][]domain.EventRecord{
			"s1": {
				{ID: "e1", SessionID: "s1", Kind: domain.KindNodeAdd, Timestamp: 1000,
					Payload: json.RawMessage(`{"id":"n1","role":"source"}`)},
				{ID: "e2", SessionID: "s1", Kind: domain.KindNodeAdd, Timestamp: 1500,
					Payload: json.RawMessage(`{"id":"n2","role":"target"}`)},
				{ID: "e3", SessionID: "s1", Kind: domain.KindEdgeAdd, Timestamp: 2000,
					Payload: json.RawMessage(`{"id":"t1","source_node_id":"n1","target_node_id":"n2"}`)},
			},
		},
	}
}

func newTestRouter(store *fakeStore) http.Handler {
	return NewRouter(Deps{
		SessionRepo: store,
		EventRepo:   store,
		Seeder:      store,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func doRequest(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	h := newTestRouter(newFakeStore())
	if rec := doRequest(t, h, http.MethodGet, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHealthzChecksBackingStore(t *testing.T) {
	store := newFakeStore()
	h := NewRouter(Deps{
		SessionRepo: store,
		EventRepo:   store,
		Seeder:      store,
		Health:      fakeHealth{err: errors.New("db down")},
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	if rec := doRequest(t, h, http.MethodGet, "/healthz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestVersion(t *testing.T) {
	h := newTestRouter(newFakeStore())
	rec := doRequest(t, h, http.MethodGet, "/version")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["version"] != "dev" {
		t.Fatalf("version = %q", body["version"])
	}
}

func TestGetSession(t *testing.T) {
	h := newTestRouter(newFakeStore())

	rec := doRequest(t, h, http.MethodGet, "/sessions/s1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var meta domain.SessionMeta
	if err := json.Unmarshal(rec.Body.Bytes(), &meta); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if meta.ID != "s1" || meta.DurationMs != 3000 || meta.EventCount != 3 {
		t.Fatalf("meta = %+v", meta)
	}

	if rec := doRequest(t, h, http.MethodGet, "/sessions/nope"); rec.Code != http.StatusNotFound {
		t.Fatalf("missing session status = %d", rec.Code)
	}
}

func TestGetSessionStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.failWith = errors.New("connection refused")
	h := newTestRouter(store)

	if rec := doRequest(t, h, http.MethodGet, "/sessions/s1"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestListEvents(t *testing.T) {
	h := newTestRouter(newFakeStore())

	rec := doRequest(t, h, http.MethodGet, "/sessions/s1/events")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		SessionID string               `json:"session_id"`
		SortOrder string               `json:"sort_order"`
		Events    []domain.EventRecord `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.SortOrder != string(repository.Ascending) || len(body.Events) != 3 {
		t.Fatalf("body = %+v", body)
	}
	if body.Events[0].ID != "e1" {
		t.Fatalf("ascending order broken: %s first", body.Events[0].ID)
	}

	rec = doRequest(t, h, http.MethodGet, "/sessions/s1/events?sort=desc")
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Events[0].ID != "e3" {
		t.Fatalf("descending order broken: %s first", body.Events[0].ID)
	}

	if rec := doRequest(t, h, http.MethodGet, "/sessions/s1/events?sort=sideways"); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid sort status = %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodGet, "/sessions/nope/events"); rec.Code != http.StatusNotFound {
		t.Fatalf("missing session status = %d", rec.Code)
	}
}

func TestExportJSON(t *testing.T) {
	h := newTestRouter(newFakeStore())

	rec := doRequest(t, h, http.MethodGet, "/sessions/s1/export")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
	cd := rec.Header().Get("Content-Disposition")
	if !strings.Contains(cd, "golem-session-s1-") || !strings.HasSuffix(cd, `.json"`) {
		t.Fatalf("content disposition = %q", cd)
	}

	var doc struct {
		Session domain.Snapshot `json:"session"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Session.Nodes) != 2 || len(doc.Session.Edges) != 1 {
		t.Fatalf("snapshot = %d nodes %d edges", len(doc.Session.Nodes), len(doc.Session.Edges))
	}
}

func TestExportCSV(t *testing.T) {
	h := newTestRouter(newFakeStore())

	rec := doRequest(t, h, http.MethodGet, "/sessions/s1/export?format=csv")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "node_count,2") {
		t.Fatalf("csv body missing counts:\n%s", rec.Body.String())
	}
}

func TestExportRejections(t *testing.T) {
	h := newTestRouter(newFakeStore())

	if rec := doRequest(t, h, http.MethodGet, "/sessions/s1/export?format=xml"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad format status = %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodGet, "/sessions/nope/export"); rec.Code != http.StatusNotFound {
		t.Fatalf("missing session status = %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodGet, "/sessions/empty/export"); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty session status = %d, want 422", rec.Code)
	}
}

func TestCreateDemoSession(t *testing.T) {
	store := newFakeStore()
	h := newTestRouter(store)

	rec := doRequest(t, h, http.MethodPost, "/demo-sessions")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		SessionID  string `json:"session_id"`
		EventCount int    `json:"event_count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.SessionID == "" || body.EventCount == 0 {
		t.Fatalf("body = %+v", body)
	}
	if len(store.inserted) != 1 || store.inserted[0].ID != body.SessionID {
		t.Fatalf("inserted = %+v", store.inserted)
	}
}

func TestRequestIDHeader(t *testing.T) {
	h := newTestRouter(newFakeStore())
	rec := doRequest(t, h, http.MethodGet, "/healthz")
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("X-Request-Id not set")
	}
}
