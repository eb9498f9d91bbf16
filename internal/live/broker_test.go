// SPDX-License-Identifier: Apache-2.0

package live

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/awareness-market/golem-sessions/internal/demo"
	"github.com/awareness-market/golem-sessions/internal/domain"
	"github.com/awareness-market/golem-sessions/internal/playback"
	"github.com/awareness-market/golem-sessions/internal/session"
)

func newTestBroker() *Broker {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewBroker(nil, session.NewEngine(logger), logger)
}

// instantTiming collapses every inter-message delay so local replay is
// immediate.
func instantTiming() playback.Timing {
	return playback.Timing{
		NoiseFloor: time.Hour,
		Ceiling:    time.Hour,
		Default:    time.Nanosecond,
	}
}

func TestServeLocalBuildsState(t *testing.T) {
	b := newTestBroker()
	meta, events := demo.NewSession(time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b.ServeLocal(ctx, demo.Messages(meta, events), instantTiming())

	snap, ok := b.State(meta.ID)
	if !ok {
		t.Fatal("no state after local replay")
	}
	if len(snap.Nodes) != 4 || len(snap.Edges) != 3 {
		t.Fatalf("state = %d nodes %d edges", len(snap.Nodes), len(snap.Edges))
	}
	if snap.Status != domain.SessionCompleted {
		t.Fatalf("status = %s", snap.Status)
	}

	if _, ok := b.State("unknown"); ok {
		t.Fatal("unknown session must have no state")
	}
}

func TestSubscribeReceivesFrames(t *testing.T) {
	b := newTestBroker()
	meta, events := demo.NewSession(time.Now())
	msgs := demo.Messages(meta, events)

	sub := b.Subscribe(meta.ID)
	defer b.Unsubscribe(meta.ID, sub)
	other := b.Subscribe("other-session")
	defer b.Unsubscribe("other-session", other)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b.ServeLocal(ctx, msgs, instantTiming())

	if got := len(sub); got != len(msgs) {
		t.Fatalf("subscriber got %d frames, want %d", got, len(msgs))
	}
	if got := len(other); got != 0 {
		t.Fatalf("other session received %d frames", got)
	}

	frame := <-sub
	if !bytes.HasPrefix(frame, []byte("event: session-start\n")) {
		t.Fatalf("first frame = %q", frame)
	}
	if !bytes.Contains(frame, []byte("\ndata: ")) || !bytes.HasSuffix(frame, []byte("\n\n")) {
		t.Fatalf("malformed frame = %q", frame)
	}
}

func TestSlowSubscriberDropsFramesNotMessages(t *testing.T) {
	b := newTestBroker()
	meta, events := demo.NewSession(time.Now())
	msgs := demo.Messages(meta, events)

	// Repeat the generic-event frames until the 64-slot buffer overflows.
	var flood []session.Message
	for len(flood) < 200 {
		flood = append(flood, msgs...)
	}

	sub := b.Subscribe(meta.ID)
	defer b.Unsubscribe(meta.ID, sub)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	b.ServeLocal(ctx, flood, instantTiming())

	if got := len(sub); got != cap(sub) {
		t.Fatalf("buffer = %d frames, want full at %d", got, cap(sub))
	}

	// Dropped frames must not have corrupted the projection.
	snap, ok := b.State(meta.ID)
	if !ok || len(snap.Nodes) != 4 {
		t.Fatalf("state after flood = %+v ok=%v", snap, ok)
	}
}

func TestUnsubscribeClosesOnce(t *testing.T) {
	b := newTestBroker()

	sub := b.Subscribe("s1")
	b.Unsubscribe("s1", sub)
	// A second call for the same channel must be a no-op, not a double close.
	b.Unsubscribe("s1", sub)

	if _, open := <-sub; open {
		t.Fatal("channel still open after Unsubscribe")
	}
}

func TestDispatchFillsSessionIDFromChannel(t *testing.T) {
	b := newTestBroker()

	msg := session.Message{Type: domain.KindNodeAdd, EventID: "e1", Timestamp: 1000,
		Data: []byte(`{"id":"n1"}`)}
	raw, err := msg.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	b.dispatch(ChannelPrefix+"s-from-channel", raw)

	if _, ok := b.State("s-from-channel"); !ok {
		t.Fatal("session id not derived from the channel name")
	}
}

func TestDispatchIgnoresGarbage(t *testing.T) {
	b := newTestBroker()

	b.dispatch(ChannelPrefix+"s1", []byte("{not json"))
	if _, ok := b.State("s1"); ok {
		t.Fatal("garbage frame created state")
	}

	// No session id in the message or the channel suffix: dropped.
	b.dispatch(ChannelPrefix, []byte(`{"type":"node-add","data":{"id":"n1"}}`))
	if _, ok := b.State(""); ok {
		t.Fatal("anonymous frame created state")
	}
}
