package domain

type NodeRole string

const (
	RoleSource       NodeRole = "source"
	RoleIntermediate NodeRole = "intermediate"
	RoleTarget       NodeRole = "target"
)

type NodeStatus string

const (
	NodeIdle      NodeStatus = "idle"
	NodeActive    NodeStatus = "active"
	NodeCompleted NodeStatus = "completed"
	NodeFailed    NodeStatus = "failed"
)

// Node is a participant in the session, typically one model instance.
type Node struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name,omitempty"`
	Role        NodeRole       `json:"role,omitempty"`
	Dimension   int            `json:"dimension,omitempty"`
	Status      NodeStatus     `json:"status,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type EdgeStatus string

const (
	EdgePending   EdgeStatus = "pending"
	EdgeActive    EdgeStatus = "active"
	EdgeCompleted EdgeStatus = "completed"
	EdgeFailed    EdgeStatus = "failed"
)

// Quality scores a transformation along an edge. Each score is a bounded
// numeric value; the engine stores them as delivered.
type Quality struct {
	Divergence float64 `json:"divergence"`
	Retention  float64 `json:"retention"`
	Similarity float64 `json:"similarity"`
}

// Edge is a directed transformation between two nodes. SourceNodeID and
// TargetNodeID are resolved at render time, not at merge time: either end
// may name a node that arrives later or never arrives.
type Edge struct {
	ID           string     `json:"id"`
	SourceNodeID string     `json:"source_node_id"`
	TargetNodeID string     `json:"target_node_id"`
	Quality      Quality    `json:"quality"`
	Status       EdgeStatus `json:"status,omitempty"`
	Timestamp    int64      `json:"timestamp,omitempty"`
	DurationMs   int64      `json:"duration_ms,omitempty"`
}

// Metrics is a point-in-time aggregate over the session so far.
// It is replaced wholesale on every metrics-update, never merged field-wise.
type Metrics struct {
	TotalTransformations int     `json:"total_transformations"`
	AvgDivergence        float64 `json:"avg_divergence"`
	AvgRetention         float64 `json:"avg_retention"`
	AvgSimilarity        float64 `json:"avg_similarity"`
	CumulativeLatencyMs  int64   `json:"cumulative_latency_ms"`
	SuccessRatio         float64 `json:"success_ratio"`
}
