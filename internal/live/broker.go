// SPDX-License-Identifier: Apache-2.0

// Package live owns the push channel: it consumes inbound session messages,
// keeps the live projections, and fans updates out to SSE subscribers.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/awareness-market/golem-sessions/internal/domain"
	"github.com/awareness-market/golem-sessions/internal/metrics"
	"github.com/awareness-market/golem-sessions/internal/playback"
	"github.com/awareness-market/golem-sessions/internal/session"
	"github.com/redis/go-redis/v9"
)

// ChannelPrefix is the redis pub/sub namespace for session push messages:
// one channel per session, golem:session:<id>.
const ChannelPrefix = "golem:session:"

// Broker subscribes to the push channel, applies every message through the
// merge engine on a single consumer goroutine, and broadcasts the message to
// that session's stream subscribers. It owns the channel connection
// lifecycle; the engine itself stays transport-free.
type Broker struct {
	rdb    *redis.Client
	engine *session.Engine
	logger *slog.Logger
	ready  atomic.Bool

	mu     sync.RWMutex
	states map[string]*domain.SessionState
	subs   map[string]map[chan []byte]struct{}
}

func NewBroker(rdb *redis.Client, engine *session.Engine, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		rdb:    rdb,
		engine: engine,
		logger: logger,
		states: make(map[string]*domain.SessionState),
		subs:   make(map[string]map[chan []byte]struct{}),
	}
}

// Ready reports whether the broker currently has a live message source
// (redis subscription or local feeder). Consumers surface the inverse as a
// connectivity state.
func (b *Broker) Ready() bool {
	return b.ready.Load()
}

// Run consumes the push channel until ctx is done. It blocks, so call it in
// a goroutine.
func (b *Broker) Run(ctx context.Context) error {
	pubsub := b.rdb.PSubscribe(ctx, ChannelPrefix+"*")
	defer pubsub.Close()

	// Fail fast if the subscription cannot be established.
	if _, err := pubsub.Receive(ctx); err != nil {
		b.logger.Error("push channel subscription failed", "error", err)
		return err
	}

	b.ready.Store(true)
	defer b.ready.Store(false)
	b.logger.Info("push channel connected", "pattern", ChannelPrefix+"*")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				b.logger.Warn("push channel closed")
				return nil
			}
			b.dispatch(m.Channel, []byte(m.Payload))
		}
	}
}

// dispatch applies one raw frame and fans it out. Called from the consume
// loop (or the local feeder); applies are serialized by b.mu.
func (b *Broker) dispatch(channel string, raw []byte) {
	msg, err := session.DecodeMessage(raw)
	if err != nil {
		b.logger.Warn("undecodable push message", "channel", channel, "error", err)
		metrics.IncMessageDropped("undecodable")
		return
	}
	if msg.SessionID == "" {
		msg.SessionID = strings.TrimPrefix(channel, ChannelPrefix)
	}
	if msg.SessionID == "" {
		b.logger.Warn("push message without session id", "channel", channel)
		metrics.IncMessageDropped(string(msg.Type))
		return
	}

	b.mu.Lock()
	st := b.states[msg.SessionID]
	next := b.engine.Apply(st, msg)
	if next != nil {
		b.states[msg.SessionID] = next
	}
	metrics.SetLiveSessions(len(b.states))
	b.mu.Unlock()

	b.broadcast(msg.SessionID, formatSSE(string(msg.Type), raw))
}

// State returns the current projection snapshot for a session, if the broker
// has seen any of its messages.
func (b *Broker) State(sessionID string) (domain.Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.states[sessionID]
	if !ok {
		return domain.Snapshot{}, false
	}
	return st.Snapshot(), true
}

// Subscribe returns a channel receiving SSE-formatted frames for one
// session. The caller must Unsubscribe when done.
func (b *Broker) Subscribe(sessionID string) chan []byte {
	ch := make(chan []byte, 64) // Buffer so one slow reader cannot stall the consume loop.
	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[chan []byte]struct{})
	}
	b.subs[sessionID][ch] = struct{}{}
	b.mu.Unlock()
	metrics.IncSSESubscribers()
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (b *Broker) Unsubscribe(sessionID string, ch chan []byte) {
	b.mu.Lock()
	if set, ok := b.subs[sessionID]; ok {
		if _, member := set[ch]; member {
			delete(set, ch)
			close(ch)
			metrics.DecSSESubscribers()
		}
		if len(set) == 0 {
			delete(b.subs, sessionID)
		}
	}
	b.mu.Unlock()
}

func (b *Broker) broadcast(sessionID string, frame []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[sessionID] {
		select {
		case ch <- frame:
		default:
			// Subscriber buffer full; drop this frame for them.
		}
	}
}

// ServeLocal feeds a generated message sequence through the same dispatch
// path at timing-model pacing. It is the fallback producer used when no
// push channel is configured, so the live surface is never blank.
func (b *Broker) ServeLocal(ctx context.Context, msgs []session.Message, timing playback.Timing) {
	b.ready.Store(true)
	defer b.ready.Store(false)

	recs := make([]domain.EventRecord, len(msgs))
	for i, m := range msgs {
		recs[i] = m.Record()
	}

	for i, m := range msgs {
		if delay := timing.DelayFor(recs, i, 1); delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		} else if ctx.Err() != nil {
			return
		}

		raw, err := json.Marshal(m)
		if err != nil {
			b.logger.Warn("marshal local message", "error", err)
			continue
		}
		b.dispatch(ChannelPrefix+m.SessionID, raw)
	}
}

// formatSSE shapes one Server-Sent Events frame.
func formatSSE(eventType string, data []byte) []byte {
	frame := make([]byte, 0, len(eventType)+len(data)+16)
	frame = append(frame, "event: "...)
	frame = append(frame, eventType...)
	frame = append(frame, "\ndata: "...)
	frame = append(frame, data...)
	frame = append(frame, "\n\n"...)
	return frame
}
