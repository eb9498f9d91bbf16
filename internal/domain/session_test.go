// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"
	"testing"
)

func TestUpsertNodePreservesInsertionOrder(t *testing.T) {
	st := NewSessionState("s1", 1000)
	st.UpsertNode(Node{ID: "b", DisplayName: "second"})
	st.UpsertNode(Node{ID: "a", DisplayName: "first"})
	st.UpsertNode(Node{ID: "b", DisplayName: "second v2", Status: NodeActive})

	snap := st.Snapshot()
	if len(snap.Nodes) != 2 {
		t.Fatalf("node count = %d, want 2", len(snap.Nodes))
	}
	if snap.Nodes[0].ID != "b" || snap.Nodes[1].ID != "a" {
		t.Fatalf("order = %s,%s, want b,a", snap.Nodes[0].ID, snap.Nodes[1].ID)
	}
	if snap.Nodes[0].DisplayName != "second v2" {
		t.Fatalf("upsert did not replace node, got %q", snap.Nodes[0].DisplayName)
	}
}

func TestAppendEventDedupe(t *testing.T) {
	st := NewSessionState("s1", 1000)

	if !st.AppendEvent(EventRecord{ID: "e1", Kind: KindNodeAdd}, true) {
		t.Fatal("first append rejected")
	}
	if st.AppendEvent(EventRecord{ID: "e1", Kind: KindNodeAdd}, true) {
		t.Fatal("duplicate id appended with dedupe set")
	}
	if !st.AppendEvent(EventRecord{ID: "e1", Kind: KindGenericEvent}, false) {
		t.Fatal("dedupe=false must always append")
	}
	if st.EventCount() != 2 {
		t.Fatalf("event count = %d, want 2", st.EventCount())
	}
}

func TestSnapshotReportsDanglingEdges(t *testing.T) {
	st := NewSessionState("s1", 1000)
	st.UpsertNode(Node{ID: "n1"})
	st.UpsertEdge(Edge{ID: "ok", SourceNodeID: "n1", TargetNodeID: "n1"})
	st.UpsertEdge(Edge{ID: "orphan", SourceNodeID: "n1", TargetNodeID: "ghost"})

	snap := st.Snapshot()
	if len(snap.Edges) != 2 {
		t.Fatalf("edges = %d, want 2 (dangling edges are kept)", len(snap.Edges))
	}
	if len(snap.DanglingEdgeIDs) != 1 || snap.DanglingEdgeIDs[0] != "orphan" {
		t.Fatalf("dangling = %v, want [orphan]", snap.DanglingEdgeIDs)
	}
}

func TestSnapshotIsIsolatedFromLaterMutation(t *testing.T) {
	st := NewSessionState("s1", 1000)
	st.UpsertNode(Node{ID: "n1", Status: NodeIdle})
	st.SetMetrics(Metrics{TotalTransformations: 1})

	snap := st.Snapshot()

	st.UpsertNode(Node{ID: "n1", Status: NodeCompleted})
	st.UpsertNode(Node{ID: "n2"})
	st.SetMetrics(Metrics{TotalTransformations: 9})

	if len(snap.Nodes) != 1 || snap.Nodes[0].Status != NodeIdle {
		t.Fatalf("snapshot mutated: %+v", snap.Nodes)
	}
	if snap.Metrics.TotalTransformations != 1 {
		t.Fatalf("snapshot metrics mutated: %+v", snap.Metrics)
	}
}

func TestDecodePayloadByKind(t *testing.T) {
	tests := []struct {
		kind    EventKind
		payload string
		check   func(t *testing.T, v any)
	}{
		{
			kind:    KindNodeAdd,
			payload: `{"id":"n1","role":"source","dimension":4096}`,
			check: func(t *testing.T, v any) {
				n, ok := v.(Node)
				if !ok || n.Role != RoleSource || n.Dimension != 4096 {
					t.Fatalf("got %#v", v)
				}
			},
		},
		{
			kind:    KindEdgeUpdate,
			payload: `{"id":"e1","source_node_id":"a","target_node_id":"b","quality":{"divergence":0.12,"retention":0.9,"similarity":0.88}}`,
			check: func(t *testing.T, v any) {
				e, ok := v.(Edge)
				if !ok || e.Quality.Retention != 0.9 {
					t.Fatalf("got %#v", v)
				}
			},
		},
		{
			kind:    KindGenericEvent,
			payload: `{"label":"alignment started"}`,
			check: func(t *testing.T, v any) {
				g, ok := v.(GenericEvent)
				if !ok || g.Label != "alignment started" {
					t.Fatalf("got %#v", v)
				}
			},
		},
		{
			kind:    KindMetricsUpdate,
			payload: `{"total_transformations":3,"success_ratio":1}`,
			check: func(t *testing.T, v any) {
				m, ok := v.(Metrics)
				if !ok || m.TotalTransformations != 3 {
					t.Fatalf("got %#v", v)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			ev := EventRecord{ID: "x", Kind: tt.kind, Payload: json.RawMessage(tt.payload)}
			v, err := ev.DecodePayload()
			if err != nil {
				t.Fatalf("DecodePayload: %v", err)
			}
			tt.check(t, v)
		})
	}

	if _, err := (EventRecord{Kind: "mystery"}).DecodePayload(); err == nil {
		t.Fatal("unknown kind must error")
	}
}

func TestKindKnown(t *testing.T) {
	if !KindEdgeAdd.Known() {
		t.Fatal("edge-add should be known")
	}
	if EventKind("telemetry").Known() {
		t.Fatal("telemetry should not be known")
	}
}
