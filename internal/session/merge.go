// SPDX-License-Identifier: Apache-2.0

// Package session applies session events to an in-memory projection.
//
// The same upsert semantics serve two callers: the live merge engine, which
// consumes unordered push messages one at a time, and the replay projector,
// which walks a complete stored event list. Idempotency is structural, not a
// mode: applying the same message again produces the same state.
package session

import (
	"encoding/json"
	"log/slog"

	"github.com/awareness-market/golem-sessions/internal/domain"
	"github.com/awareness-market/golem-sessions/internal/metrics"
)

// Engine merges inbound push messages into a SessionState. Apply is not safe
// for concurrent use with itself; the caller serializes arrivals (the broker
// consumes on a single goroutine).
type Engine struct {
	logger *slog.Logger
}

func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// Apply merges one message and returns the resulting state. For
// session-start that is a fresh state; every other kind mutates and returns
// st. A nil st is tolerated for every kind (the message may arrive before
// session-start) by lazily creating an empty projection.
//
// Apply never fails the session: malformed or unrecognized messages are
// logged, counted, and skipped.
func (e *Engine) Apply(st *domain.SessionState, msg Message) *domain.SessionState {
	if msg.Type == domain.KindSessionStart {
		return e.applySessionStart(msg)
	}

	if st == nil {
		st = domain.NewSessionState(msg.SessionID, msg.Timestamp)
	}

	switch msg.Type {
	case domain.KindSessionEnd:
		e.applySessionEnd(st, msg)
	case domain.KindNodeAdd, domain.KindNodeUpdate:
		if err := upsertNodeFromPayload(st, msg.Data); err != nil {
			e.drop(msg, err)
			return st
		}
		st.AppendEvent(msg.Record(), true)
		metrics.IncMessageApplied(string(msg.Type))
	case domain.KindEdgeAdd, domain.KindEdgeUpdate:
		edge, err := upsertEdgeFromPayload(st, msg.Data)
		if err != nil {
			e.drop(msg, err)
			return st
		}
		if _, ok := st.Node(edge.SourceNodeID); !ok {
			e.logger.Debug("edge references unknown source node",
				"edge_id", edge.ID, "source_node_id", edge.SourceNodeID)
		}
		if _, ok := st.Node(edge.TargetNodeID); !ok {
			e.logger.Debug("edge references unknown target node",
				"edge_id", edge.ID, "target_node_id", edge.TargetNodeID)
		}
		st.AppendEvent(msg.Record(), true)
		metrics.IncMessageApplied(string(msg.Type))
	case domain.KindGenericEvent:
		// Display-only entries: duplicates are accepted as duplicates.
		st.AppendEvent(msg.Record(), false)
		metrics.IncMessageApplied(string(msg.Type))
	case domain.KindMetricsUpdate:
		var m domain.Metrics
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			e.drop(msg, err)
			return st
		}
		st.SetMetrics(m)
		st.AppendEvent(msg.Record(), true)
		metrics.IncMessageApplied(string(msg.Type))
	default:
		e.drop(msg, domain.ErrUnknownKind)
	}

	return st
}

func (e *Engine) applySessionStart(msg Message) *domain.SessionState {
	var p domain.SessionStartPayload
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		e.drop(msg, err)
		return nil
	}

	id := p.SessionID
	if id == "" {
		id = msg.SessionID
	}
	startedAt := p.StartedAt
	if startedAt == 0 {
		startedAt = msg.Timestamp
	}

	st := domain.NewSessionState(id, startedAt)
	st.SetType(p.Type)
	for _, n := range p.Nodes {
		st.UpsertNode(n)
	}
	for _, ed := range p.Edges {
		st.UpsertEdge(ed)
	}
	for _, ev := range p.Events {
		st.AppendEvent(ev, ev.Kind != domain.KindGenericEvent)
	}
	if p.Metrics != nil {
		st.SetMetrics(*p.Metrics)
	}

	metrics.IncMessageApplied(string(msg.Type))
	return st
}

// applySessionEnd merges terminal fields only. Accumulated nodes, edges and
// events are untouched and no timeline entry is appended.
func (e *Engine) applySessionEnd(st *domain.SessionState, msg Message) {
	var p domain.SessionEndPayload
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		e.drop(msg, err)
		return
	}

	if p.Status != "" {
		st.SetStatus(p.Status)
	} else {
		st.SetStatus(domain.SessionCompleted)
	}
	if p.CompletedAt != 0 {
		st.SetCompletedAt(p.CompletedAt)
	} else if msg.Timestamp != 0 {
		st.SetCompletedAt(msg.Timestamp)
	}
	if p.Metrics != nil {
		st.SetMetrics(*p.Metrics)
	}

	metrics.IncMessageApplied(string(msg.Type))
}

func (e *Engine) drop(msg Message, err error) {
	e.logger.Warn("message dropped",
		"type", string(msg.Type),
		"session_id", msg.SessionID,
		"event_id", msg.EventID,
		"error", err,
	)
	metrics.IncMessageDropped(string(msg.Type))
}

// upsertNodeFromPayload decodes the payload onto the existing node, so fields
// absent from the latest message keep their prior values.
func upsertNodeFromPayload(st *domain.SessionState, payload json.RawMessage) error {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return err
	}
	if probe.ID == "" {
		return domain.ErrMissingID
	}

	base, _ := st.Node(probe.ID)
	if err := json.Unmarshal(payload, &base); err != nil {
		return err
	}
	base.ID = probe.ID
	st.UpsertNode(base)
	return nil
}

func upsertEdgeFromPayload(st *domain.SessionState, payload json.RawMessage) (domain.Edge, error) {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return domain.Edge{}, err
	}
	if probe.ID == "" {
		return domain.Edge{}, domain.ErrMissingID
	}

	base, _ := st.Edge(probe.ID)
	if err := json.Unmarshal(payload, &base); err != nil {
		return domain.Edge{}, err
	}
	base.ID = probe.ID
	st.UpsertEdge(base)
	return base, nil
}
