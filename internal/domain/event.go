// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"
	"fmt"
)

// EventKind tags the payload carried by an EventRecord.
type EventKind string

const (
	KindSessionStart  EventKind = "session-start"
	KindSessionEnd    EventKind = "session-end"
	KindNodeAdd       EventKind = "node-add"
	KindNodeUpdate    EventKind = "node-update"
	KindEdgeAdd       EventKind = "edge-add"
	KindEdgeUpdate    EventKind = "edge-update"
	KindGenericEvent  EventKind = "generic-event"
	KindMetricsUpdate EventKind = "metrics-update"
)

// Known reports whether k is one of the kinds this engine understands.
func (k EventKind) Known() bool {
	switch k {
	case KindSessionStart, KindSessionEnd,
		KindNodeAdd, KindNodeUpdate,
		KindEdgeAdd, KindEdgeUpdate,
		KindGenericEvent, KindMetricsUpdate:
		return true
	default:
		return false
	}
}

// EventRecord is one observed occurrence in a session.
// Timestamp is milliseconds since epoch; the canonical stored list is
// non-decreasing in Timestamp, push-stream arrival order is not.
type EventRecord struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Kind      EventKind       `json:"kind"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// GenericEvent is the payload of a generic-event record: a display-only
// timeline entry that never feeds aggregate computation.
type GenericEvent struct {
	Label    string         `json:"label"`
	Detail   string         `json:"detail,omitempty"`
	NodeID   string         `json:"node_id,omitempty"`
	EdgeID   string         `json:"edge_id,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DecodePayload resolves the tagged union by kind.
func (e EventRecord) DecodePayload() (any, error) {
	switch e.Kind {
	case KindSessionStart:
		var p SessionStartPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", e.Kind, err)
		}
		return p, nil
	case KindSessionEnd:
		var p SessionEndPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", e.Kind, err)
		}
		return p, nil
	case KindNodeAdd, KindNodeUpdate:
		var n Node
		if err := json.Unmarshal(e.Payload, &n); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", e.Kind, err)
		}
		return n, nil
	case KindEdgeAdd, KindEdgeUpdate:
		var ed Edge
		if err := json.Unmarshal(e.Payload, &ed); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", e.Kind, err)
		}
		return ed, nil
	case KindGenericEvent:
		var g GenericEvent
		if err := json.Unmarshal(e.Payload, &g); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", e.Kind, err)
		}
		return g, nil
	case KindMetricsUpdate:
		var m Metrics
		if err := json.Unmarshal(e.Payload, &m); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", e.Kind, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, string(e.Kind))
	}
}

// SessionStartPayload seeds a fresh SessionState. Every collection may be empty.
type SessionStartPayload struct {
	SessionID string        `json:"session_id"`
	Type      string        `json:"type,omitempty"`
	StartedAt int64         `json:"started_at"`
	Nodes     []Node        `json:"nodes,omitempty"`
	Edges     []Edge        `json:"edges,omitempty"`
	Events    []EventRecord `json:"events,omitempty"`
	Metrics   *Metrics      `json:"metrics,omitempty"`
}

// SessionEndPayload carries only the terminal fields merged onto the state.
type SessionEndPayload struct {
	Status      SessionStatus `json:"status,omitempty"`
	CompletedAt int64         `json:"completed_at,omitempty"`
	Metrics     *Metrics      `json:"metrics,omitempty"`
}
