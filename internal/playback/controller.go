// SPDX-License-Identifier: Apache-2.0

// Package playback replays a stored session event list at variable speed.
package playback

import (
	"log/slog"
	"sync"
	"time"

	"github.com/awareness-market/golem-sessions/internal/domain"
	"github.com/awareness-market/golem-sessions/internal/session"
)

// Status is the controller's coarse state.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusPlaying  Status = "playing"
	StatusPaused   Status = "paused"
	StatusFinished Status = "finished"
)

// Frame is the read-only view handed to the consumer after every transition:
// the visible prefix projected as a session snapshot, plus cursor bookkeeping.
type Frame struct {
	Status   Status
	Cursor   int
	Speed    float64
	Selected *domain.EventRecord
	State    domain.Snapshot
}

// Deps configures a Controller.
type Deps struct {
	Meta   domain.SessionMeta
	Events []domain.EventRecord
	Timing Timing
	Speed  float64
	Logger *slog.Logger

	// OnChange receives a Frame after every state transition, including
	// autonomous advances. Called outside the controller lock; it may call
	// back into the controller.
	OnChange func(Frame)
}

// Controller is a state machine over {stopped, playing, paused, finished}
// driving a visible prefix of a fixed, already-loaded event list.
//
// All mutation happens under one mutex, triggered either by an explicit
// control call or by the single outstanding timer. Every transition that
// moves the cursor outside the timer's own fire path cancels that timer
// first, so two advances can never race. A fired timer whose schedule was
// superseded (or whose controller was closed) is a no-op: each schedule
// carries a generation number checked on fire.
type Controller struct {
	mu sync.Mutex

	meta   domain.SessionMeta
	events []domain.EventRecord
	timing Timing
	logger *slog.Logger
	notify func(Frame)

	state   *domain.SessionState
	cursor  int
	status  Status
	playing bool
	speed   float64
	timer   *time.Timer
	gen     uint64
	closed  bool
}

// NewController builds a controller in the stopped state with nothing
// revealed (cursor -1). Call Play, StepForward or Scrub to reveal events.
func NewController(deps Deps) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	speed := deps.Speed
	if speed <= 0 {
		speed = Speeds[0]
	}

	c := &Controller{
		meta:   deps.Meta,
		events: deps.Events,
		timing: deps.Timing.normalized(),
		logger: logger,
		notify: deps.OnChange,
		cursor: -1,
		status: StatusStopped,
		speed:  speed,
	}
	c.state = c.reduceTo(-1)
	return c
}

// Play starts or resumes autonomous advancing. Playing from the end (or from
// a finished run) restarts from the first event.
func (c *Controller) Play() {
	c.mu.Lock()
	if c.closed || len(c.events) == 0 {
		c.mu.Unlock()
		return
	}

	if c.cursor >= len(c.events)-1 {
		c.cursor = 0
		c.state = c.reduceTo(c.cursor)
	}
	c.playing = true
	c.status = StatusPlaying
	c.cancelLocked()
	c.scheduleLocked()

	frame := c.frameLocked()
	c.mu.Unlock()
	c.emit(frame)
}

// Pause stops autonomous advancing and cancels the pending advance.
func (c *Controller) Pause() {
	c.mu.Lock()
	if c.closed || !c.playing {
		c.mu.Unlock()
		return
	}
	c.playing = false
	c.status = StatusPaused
	c.cancelLocked()

	frame := c.frameLocked()
	c.mu.Unlock()
	c.emit(frame)
}

// StepForward reveals the next event. A no-op at the end of the list. An
// explicit step while playing advances early and reschedules from the new
// cursor.
func (c *Controller) StepForward() {
	c.mu.Lock()
	if c.closed || c.cursor >= len(c.events)-1 {
		c.mu.Unlock()
		return
	}

	c.cancelLocked()
	c.cursor++
	session.ApplyEvent(c.state, c.events[c.cursor])

	if c.cursor >= len(c.events)-1 {
		if c.playing {
			c.playing = false
			c.status = StatusFinished
		}
	} else if c.playing {
		c.scheduleLocked()
	}

	frame := c.frameLocked()
	c.mu.Unlock()
	c.emit(frame)
}

// StepBackward hides the last revealed event. A no-op at the first event.
// Does not resume playback if paused; while playing it reschedules from the
// new cursor.
func (c *Controller) StepBackward() {
	c.mu.Lock()
	if c.closed || c.cursor <= 0 {
		c.mu.Unlock()
		return
	}

	c.cancelLocked()
	c.cursor--
	c.state = c.reduceTo(c.cursor)
	if c.playing {
		c.scheduleLocked()
	}

	frame := c.frameLocked()
	c.mu.Unlock()
	c.emit(frame)
}

// Scrub jumps the cursor to target, clamped into range. The visible prefix
// is recomputed as a whole; any pending advance is canceled and not resumed.
func (c *Controller) Scrub(target int) {
	c.mu.Lock()
	if c.closed || len(c.events) == 0 {
		c.mu.Unlock()
		return
	}

	if target < 0 {
		target = 0
	}
	if target > len(c.events)-1 {
		target = len(c.events) - 1
	}

	c.cancelLocked()
	c.playing = false
	c.status = StatusPaused
	c.cursor = target
	c.state = c.reduceTo(c.cursor)

	frame := c.frameLocked()
	c.mu.Unlock()
	c.emit(frame)
}

// Reset returns to the stopped state with only the first event visible
// (nothing when the list is empty).
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	c.cancelLocked()
	c.playing = false
	c.status = StatusStopped
	if len(c.events) > 0 {
		c.cursor = 0
	} else {
		c.cursor = -1
	}
	c.state = c.reduceTo(c.cursor)

	frame := c.frameLocked()
	c.mu.Unlock()
	c.emit(frame)
}

// SetSpeed updates the multiplier. It takes effect on the next scheduled
// delay; an in-flight timer is not rescaled.
func (c *Controller) SetSpeed(multiplier float64) {
	c.mu.Lock()
	if !c.closed && multiplier > 0 {
		c.speed = multiplier
	}
	c.mu.Unlock()
}

// CycleSpeed advances to the next multiplier in the 1x/2x/5x cycle and
// returns it.
func (c *Controller) CycleSpeed() float64 {
	c.mu.Lock()
	c.speed = NextSpeed(c.speed)
	s := c.speed
	c.mu.Unlock()
	return s
}

// Frame returns the current view.
func (c *Controller) Frame() Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frameLocked()
}

// Close discards the controller. Any in-flight timer fire becomes a no-op.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.playing = false
	c.cancelLocked()
	c.mu.Unlock()
}

// advance is the timer fire handler for the schedule identified by gen.
func (c *Controller) advance(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.gen || !c.playing || c.cursor >= len(c.events)-1 {
		c.mu.Unlock()
		return
	}

	c.timer = nil
	c.cursor++
	session.ApplyEvent(c.state, c.events[c.cursor])

	if c.cursor >= len(c.events)-1 {
		c.playing = false
		c.status = StatusFinished
	} else {
		c.scheduleLocked()
	}

	frame := c.frameLocked()
	c.mu.Unlock()
	c.emit(frame)
}

// scheduleLocked arms the single timer slot for the next reveal.
func (c *Controller) scheduleLocked() {
	next := c.cursor + 1
	if next >= len(c.events) {
		return
	}
	delay := c.timing.DelayFor(c.events, next, c.speed)
	gen := c.gen
	c.timer = time.AfterFunc(delay, func() { c.advance(gen) })
}

// cancelLocked invalidates the outstanding schedule, if any. Bumping the
// generation also neutralizes a timer that has fired but not yet acquired
// the lock.
func (c *Controller) cancelLocked() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// reduceTo rebuilds the projection for the prefix ending at cursor. Terminal
// header fields stay hidden until a session-end record is revealed.
func (c *Controller) reduceTo(cursor int) *domain.SessionState {
	meta := c.meta
	meta.Status = domain.SessionActive
	meta.CompletedAt = 0
	if cursor < 0 {
		return session.Reduce(meta, nil)
	}
	return session.Reduce(meta, c.events[:cursor+1])
}

func (c *Controller) frameLocked() Frame {
	f := Frame{
		Status: c.status,
		Cursor: c.cursor,
		Speed:  c.speed,
		State:  c.state.Snapshot(),
	}
	if c.cursor >= 0 && c.cursor < len(c.events) {
		ev := c.events[c.cursor]
		f.Selected = &ev
	}
	return f
}

func (c *Controller) emit(f Frame) {
	if c.notify != nil {
		c.notify(f)
	}
}
