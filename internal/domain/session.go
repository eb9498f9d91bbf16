// SPDX-License-Identifier: Apache-2.0

package domain

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// SessionMeta is what the external store returns for a session lookup.
type SessionMeta struct {
	ID          string        `json:"id"`
	Type        string        `json:"type"`
	Status      SessionStatus `json:"status"`
	StartedAt   int64         `json:"started_at"`
	CompletedAt int64         `json:"completed_at,omitempty"`
	DurationMs  int64         `json:"duration_ms,omitempty"`
	EventCount  int           `json:"event_count"`
}

// SessionState is the mutable in-memory projection of one session. It is
// owned exclusively by whichever component currently drives it (live merge
// engine or playback controller); readers get copies via Snapshot.
//
// Node and edge insertion order is preserved so listings are deterministic.
type SessionState struct {
	id          string
	sessionType string
	status      SessionStatus
	startedAt   int64
	completedAt int64

	nodes   map[string]Node
	nodeIDs []string
	edges   map[string]Edge
	edgeIDs []string

	events   []EventRecord
	eventIDs map[string]struct{}

	metrics *Metrics
}

// NewSessionState creates an empty projection for a session.
func NewSessionState(id string, startedAt int64) *SessionState {
	return &SessionState{
		id:        id,
		status:    SessionActive,
		startedAt: startedAt,
		nodes:     make(map[string]Node),
		edges:     make(map[string]Edge),
		eventIDs:  make(map[string]struct{}),
	}
}

func (s *SessionState) ID() string            { return s.id }
func (s *SessionState) Status() SessionStatus { return s.status }
func (s *SessionState) StartedAt() int64      { return s.startedAt }
func (s *SessionState) CompletedAt() int64    { return s.completedAt }

func (s *SessionState) SetType(t string)           { s.sessionType = t }
func (s *SessionState) SetStatus(st SessionStatus) { s.status = st }
func (s *SessionState) SetCompletedAt(ts int64)    { s.completedAt = ts }

// Node returns the node with the given id, if present.
func (s *SessionState) Node(id string) (Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// Edge returns the edge with the given id, if present.
func (s *SessionState) Edge(id string) (Edge, bool) {
	e, ok := s.edges[id]
	return e, ok
}

// UpsertNode inserts or replaces a node keyed by id.
func (s *SessionState) UpsertNode(n Node) {
	if _, ok := s.nodes[n.ID]; !ok {
		s.nodeIDs = append(s.nodeIDs, n.ID)
	}
	s.nodes[n.ID] = n
}

// UpsertEdge inserts or replaces an edge keyed by id. Endpoint ids are not
// checked against the node set; dangling references are tolerated.
func (s *SessionState) UpsertEdge(e Edge) {
	if _, ok := s.edges[e.ID]; !ok {
		s.edgeIDs = append(s.edgeIDs, e.ID)
	}
	s.edges[e.ID] = e
}

// AppendEvent appends ev to the timeline. When dedupe is set (everything
// except generic-event) a record whose id was already appended is skipped, so
// duplicate delivery of the same message cannot grow the log.
func (s *SessionState) AppendEvent(ev EventRecord, dedupe bool) bool {
	if dedupe && ev.ID != "" {
		if _, seen := s.eventIDs[ev.ID]; seen {
			return false
		}
	}
	if ev.ID != "" {
		s.eventIDs[ev.ID] = struct{}{}
	}
	s.events = append(s.events, ev)
	return true
}

// SetMetrics replaces the metrics aggregate wholesale.
func (s *SessionState) SetMetrics(m Metrics) {
	s.metrics = &m
}

// Metrics returns a copy of the current aggregate, or false before the first
// metrics-update.
func (s *SessionState) Metrics() (Metrics, bool) {
	if s.metrics == nil {
		return Metrics{}, false
	}
	return *s.metrics, true
}

func (s *SessionState) NodeCount() int  { return len(s.nodes) }
func (s *SessionState) EdgeCount() int  { return len(s.edges) }
func (s *SessionState) EventCount() int { return len(s.events) }

// Snapshot is a read-only copy of a SessionState handed to renderers and
// serializers after every mutation.
type Snapshot struct {
	ID          string        `json:"id"`
	Type        string        `json:"type,omitempty"`
	Status      SessionStatus `json:"status"`
	StartedAt   int64         `json:"started_at"`
	CompletedAt int64         `json:"completed_at,omitempty"`
	Nodes       []Node        `json:"nodes"`
	Edges       []Edge        `json:"edges"`
	Events      []EventRecord `json:"events"`
	Metrics     *Metrics      `json:"metrics,omitempty"`

	// DanglingEdgeIDs lists edges whose source or target does not resolve to
	// a node currently in the set. Diagnostic only; the edges themselves are
	// kept in Edges.
	DanglingEdgeIDs []string `json:"dangling_edge_ids,omitempty"`
}

// Snapshot copies the state into an immutable view. Nodes and edges come out
// in insertion order.
func (s *SessionState) Snapshot() Snapshot {
	snap := Snapshot{
		ID:          s.id,
		Type:        s.sessionType,
		Status:      s.status,
		StartedAt:   s.startedAt,
		CompletedAt: s.completedAt,
		Nodes:       make([]Node, 0, len(s.nodeIDs)),
		Edges:       make([]Edge, 0, len(s.edgeIDs)),
		Events:      make([]EventRecord, len(s.events)),
	}

	for _, id := range s.nodeIDs {
		snap.Nodes = append(snap.Nodes, s.nodes[id])
	}
	for _, id := range s.edgeIDs {
		e := s.edges[id]
		snap.Edges = append(snap.Edges, e)
		if _, ok := s.nodes[e.SourceNodeID]; !ok {
			snap.DanglingEdgeIDs = append(snap.DanglingEdgeIDs, e.ID)
			continue
		}
		if _, ok := s.nodes[e.TargetNodeID]; !ok {
			snap.DanglingEdgeIDs = append(snap.DanglingEdgeIDs, e.ID)
		}
	}
	copy(snap.Events, s.events)

	if s.metrics != nil {
		m := *s.metrics
		snap.Metrics = &m
	}

	return snap
}
