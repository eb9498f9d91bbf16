// SPDX-License-Identifier: Apache-2.0

// Package export snapshots a session projection into portable artifacts.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/awareness-market/golem-sessions/internal/domain"
)

// Format selects the artifact shape.
type Format string

const (
	// FormatJSON is the structured document: the full snapshot plus an
	// exported_at stamp.
	FormatJSON Format = "json"
	// FormatCSV is the flat tabular form: one row per scalar statistic,
	// suitable for spreadsheet import.
	FormatCSV Format = "csv"
)

// ParseFormat maps a user-supplied format string onto a Format.
func ParseFormat(raw string) (Format, error) {
	switch Format(raw) {
	case FormatJSON, "":
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// Document is the structured export envelope.
type Document struct {
	ExportedAt time.Time       `json:"exported_at"`
	Session    domain.Snapshot `json:"session"`
}

// Serialize renders the snapshot in the requested format and returns the
// artifact bytes plus its media type. An empty snapshot (no id, nothing
// revealed) reports domain.ErrNothingToExport.
func Serialize(snap domain.Snapshot, format Format) ([]byte, string, error) {
	return SerializeAt(snap, format, time.Now().UTC())
}

// SerializeAt is Serialize with an explicit export timestamp.
func SerializeAt(snap domain.Snapshot, format Format, exportedAt time.Time) ([]byte, string, error) {
	if snap.ID == "" && len(snap.Events) == 0 {
		return nil, "", domain.ErrNothingToExport
	}

	switch format {
	case FormatJSON:
		doc := Document{
			ExportedAt: exportedAt,
			Session:    roundSnapshot(snap),
		}
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return nil, "", fmt.Errorf("encode export document: %w", err)
		}
		return buf.Bytes(), "application/json", nil
	case FormatCSV:
		data, err := statisticsCSV(snap)
		if err != nil {
			return nil, "", err
		}
		return data, "text/csv", nil
	default:
		return nil, "", fmt.Errorf("unsupported export format %q", string(format))
	}
}

// Filename returns a timestamped download name for the artifact.
func Filename(sessionID string, format Format, exportedAt time.Time) string {
	return fmt.Sprintf("golem-session-%s-%s.%s",
		sessionID, exportedAt.Format("20060102-150405"), string(format))
}

// statisticsCSV flattens the snapshot's scalar statistics: structural counts
// first, then the metrics aggregate when one has been observed.
func statisticsCSV(snap domain.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{
		{"metric", "value"},
		{"session_id", snap.ID},
		{"status", string(snap.Status)},
		{"node_count", strconv.Itoa(len(snap.Nodes))},
		{"edge_count", strconv.Itoa(len(snap.Edges))},
		{"event_count", strconv.Itoa(len(snap.Events))},
		{"dangling_edge_count", strconv.Itoa(len(snap.DanglingEdgeIDs))},
	}

	if m := snap.Metrics; m != nil {
		rows = append(rows,
			[]string{"total_transformations", strconv.Itoa(m.TotalTransformations)},
			[]string{"avg_divergence", formatScore(m.AvgDivergence)},
			[]string{"avg_retention", formatScore(m.AvgRetention)},
			[]string{"avg_similarity", formatScore(m.AvgSimilarity)},
			[]string{"cumulative_latency_ms", strconv.FormatInt(m.CumulativeLatencyMs, 10)},
			[]string{"success_ratio", formatScore(m.SuccessRatio)},
		)
	}

	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("write statistics csv: %w", err)
	}
	return buf.Bytes(), nil
}

// roundSnapshot applies the documented export rounding to the averaged
// floating-point scores. Integer fields pass through untouched, so they
// round-trip exactly.
func roundSnapshot(snap domain.Snapshot) domain.Snapshot {
	if snap.Metrics == nil {
		return snap
	}
	m := *snap.Metrics
	m.AvgDivergence = roundScore(m.AvgDivergence)
	m.AvgRetention = roundScore(m.AvgRetention)
	m.AvgSimilarity = roundScore(m.AvgSimilarity)
	m.SuccessRatio = roundScore(m.SuccessRatio)
	snap.Metrics = &m
	return snap
}

// roundScore rounds an averaged score to 6 decimal places. This is the fixed
// export precision: reading the document back yields exactly the rounded
// value.
func roundScore(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func formatScore(v float64) string {
	return strconv.FormatFloat(roundScore(v), 'f', -1, 64)
}
