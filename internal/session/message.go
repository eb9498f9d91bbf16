// SPDX-License-Identifier: Apache-2.0

package session

import (
	"encoding/json"

	"github.com/awareness-market/golem-sessions/internal/domain"
)

// Message is the push-channel envelope. Type matches the EventRecord kinds
// plus the session lifecycle signals; Data is the kind-specific payload.
type Message struct {
	Type      domain.EventKind `json:"type"`
	EventID   string           `json:"event_id,omitempty"`
	SessionID string           `json:"session_id,omitempty"`
	Timestamp int64            `json:"timestamp,omitempty"`
	Data      json.RawMessage  `json:"data"`
}

// DecodeMessage parses one raw push-channel frame.
func DecodeMessage(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Encode renders the message as one raw push-channel frame.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Record shapes the message as the EventRecord it contributes to the
// timeline.
func (m Message) Record() domain.EventRecord {
	return domain.EventRecord{
		ID:        m.EventID,
		SessionID: m.SessionID,
		Kind:      m.Type,
		Timestamp: m.Timestamp,
		Payload:   m.Data,
	}
}
