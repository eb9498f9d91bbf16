// SPDX-License-Identifier: Apache-2.0

package session

import (
	"encoding/json"

	"github.com/awareness-market/golem-sessions/internal/domain"
)

// Reduce rebuilds a projection from a prefix of the canonical stored event
// list. The replay path and the export path both go through here, so stored
// events flow through the exact upsert semantics the live path uses.
//
// Malformed records are skipped, mirroring the live engine: one bad stored
// row must not make a session unreplayable.
func Reduce(meta domain.SessionMeta, events []domain.EventRecord) *domain.SessionState {
	st := domain.NewSessionState(meta.ID, meta.StartedAt)
	st.SetType(meta.Type)
	st.SetStatus(meta.Status)
	if meta.CompletedAt != 0 {
		st.SetCompletedAt(meta.CompletedAt)
	}

	for _, ev := range events {
		ApplyEvent(st, ev)
	}
	return st
}

// ApplyEvent folds a single stored event into the projection. Returns false
// when the record could not be applied.
func ApplyEvent(st *domain.SessionState, ev domain.EventRecord) bool {
	switch ev.Kind {
	case domain.KindNodeAdd, domain.KindNodeUpdate:
		if err := upsertNodeFromPayload(st, ev.Payload); err != nil {
			return false
		}
		st.AppendEvent(ev, true)
	case domain.KindEdgeAdd, domain.KindEdgeUpdate:
		if _, err := upsertEdgeFromPayload(st, ev.Payload); err != nil {
			return false
		}
		st.AppendEvent(ev, true)
	case domain.KindGenericEvent:
		st.AppendEvent(ev, false)
	case domain.KindMetricsUpdate:
		var m domain.Metrics
		if err := json.Unmarshal(ev.Payload, &m); err != nil {
			return false
		}
		st.SetMetrics(m)
		st.AppendEvent(ev, true)
	case domain.KindSessionStart:
		// Stored lists normally begin before any lifecycle record; when one
		// is present it only refreshes the header fields.
		var p domain.SessionStartPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return false
		}
		if p.Type != "" {
			st.SetType(p.Type)
		}
	case domain.KindSessionEnd:
		var p domain.SessionEndPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return false
		}
		if p.Status != "" {
			st.SetStatus(p.Status)
		}
		if p.CompletedAt != 0 {
			st.SetCompletedAt(p.CompletedAt)
		}
		if p.Metrics != nil {
			st.SetMetrics(*p.Metrics)
		}
	default:
		return false
	}
	return true
}
