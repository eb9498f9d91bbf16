// SPDX-License-Identifier: Apache-2.0

// Package demo generates seed sessions so the live path has sample data when
// no real producer is attached.
package demo

import (
	"encoding/json"
	"time"

	"github.com/awareness-market/golem-sessions/internal/domain"
	"github.com/awareness-market/golem-sessions/internal/session"
	"github.com/google/uuid"
)

// gaps are the inter-event spacings of the scripted session, in
// milliseconds. Mostly inside the timing model's sane band, with one
// sub-floor burst and one long stall so replays exercise both fallbacks.
var gaps = []int64{0, 180, 40, 320, 650, 220, 8500, 410, 260, 900, 150, 70, 530, 1200, 340}

type scriptedNode struct {
	name string
	role domain.NodeRole
	dim  int
}

var scriptedNodes = []scriptedNode{
	{"llama-3-8b", domain.RoleSource, 4096},
	{"aligner-v2", domain.RoleIntermediate, 2048},
	{"mistral-7b", domain.RoleTarget, 4096},
	{"qwen-2-7b", domain.RoleTarget, 3584},
}

// NewSession builds a scripted demo session: its metadata and the canonical
// stored event list, timestamps anchored at start.
func NewSession(start time.Time) (domain.SessionMeta, []domain.EventRecord) {
	sessionID := uuid.NewString()
	base := start.UnixMilli()

	cur := base
	gapIdx := 0
	ts := func() int64 {
		if gapIdx < len(gaps) {
			cur += gaps[gapIdx]
			gapIdx++
		} else {
			cur += 250
		}
		return cur
	}

	var events []domain.EventRecord
	record := func(kind domain.EventKind, at int64, payload any) {
		raw, _ := json.Marshal(payload)
		events = append(events, domain.EventRecord{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Kind:      kind,
			Timestamp: at,
			Payload:   raw,
		})
	}

	nodeIDs := make([]string, len(scriptedNodes))
	for i, sn := range scriptedNodes {
		nodeIDs[i] = uuid.NewString()
		record(domain.KindNodeAdd, ts(), domain.Node{
			ID:          nodeIDs[i],
			DisplayName: sn.name,
			Role:        sn.role,
			Dimension:   sn.dim,
			Status:      domain.NodeIdle,
			Metadata:    map[string]any{"family": sn.name},
		})
	}

	record(domain.KindGenericEvent, ts(), domain.GenericEvent{
		Label:  "alignment started",
		NodeID: nodeIDs[0],
	})

	record(domain.KindNodeUpdate, ts(), map[string]any{
		"id":     nodeIDs[0],
		"status": domain.NodeActive,
	})

	type scriptedEdge struct {
		src, dst int
		quality  domain.Quality
		duration int64
	}
	scriptedEdges := []scriptedEdge{
		{0, 1, domain.Quality{Divergence: 0.12, Retention: 0.91, Similarity: 0.87}, 640},
		{1, 2, domain.Quality{Divergence: 0.21, Retention: 0.84, Similarity: 0.79}, 910},
		{1, 3, domain.Quality{Divergence: 0.17, Retention: 0.88, Similarity: 0.82}, 780},
	}

	edgeIDs := make([]string, len(scriptedEdges))
	for i, se := range scriptedEdges {
		edgeIDs[i] = uuid.NewString()
		at := ts()
		record(domain.KindEdgeAdd, at, domain.Edge{
			ID:           edgeIDs[i],
			SourceNodeID: nodeIDs[se.src],
			TargetNodeID: nodeIDs[se.dst],
			Quality:      se.quality,
			Status:       domain.EdgeActive,
			Timestamp:    at,
		})
		record(domain.KindEdgeUpdate, ts(), map[string]any{
			"id":          edgeIDs[i],
			"status":      domain.EdgeCompleted,
			"duration_ms": se.duration,
		})
	}

	record(domain.KindMetricsUpdate, ts(), domain.Metrics{
		TotalTransformations: len(scriptedEdges),
		AvgDivergence:        0.166667,
		AvgRetention:         0.876667,
		AvgSimilarity:        0.826667,
		CumulativeLatencyMs:  2330,
		SuccessRatio:         1,
	})

	record(domain.KindNodeUpdate, ts(), map[string]any{
		"id":     nodeIDs[0],
		"status": domain.NodeCompleted,
	})

	endAt := ts()
	record(domain.KindSessionEnd, endAt, domain.SessionEndPayload{
		Status:      domain.SessionCompleted,
		CompletedAt: endAt,
	})

	meta := domain.SessionMeta{
		ID:          sessionID,
		Type:        "alignment-demo",
		Status:      domain.SessionCompleted,
		StartedAt:   base,
		CompletedAt: endAt,
		DurationMs:  endAt - base,
		EventCount:  len(events),
	}
	return meta, events
}

// Messages converts a stored session into the push-channel frames that
// reproduce it over the live path: session-start first, then one message per
// event, then session-end is already part of the list.
func Messages(meta domain.SessionMeta, events []domain.EventRecord) []session.Message {
	msgs := make([]session.Message, 0, len(events)+1)

	startPayload, _ := json.Marshal(domain.SessionStartPayload{
		SessionID: meta.ID,
		Type:      meta.Type,
		StartedAt: meta.StartedAt,
	})
	msgs = append(msgs, session.Message{
		Type:      domain.KindSessionStart,
		EventID:   uuid.NewString(),
		SessionID: meta.ID,
		Timestamp: meta.StartedAt,
		Data:      startPayload,
	})

	for _, ev := range events {
		msgs = append(msgs, session.Message{
			Type:      ev.Kind,
			EventID:   ev.ID,
			SessionID: meta.ID,
			Timestamp: ev.Timestamp,
			Data:      ev.Payload,
		})
	}
	return msgs
}
