// SPDX-License-Identifier: Apache-2.0

package playback

import (
	"time"

	"github.com/awareness-market/golem-sessions/internal/domain"
)

// Timing derives the delay before revealing the next replay event from the
// recorded wall-clock gaps. Gaps outside (NoiseFloor, Ceiling) fall back to
// Default: reproducing normal pacing is desirable, but a multi-minute gap in
// the original recording must not stall playback for minutes.
//
// The bounds are empirical pacing choices, so they are configuration, not law.
type Timing struct {
	NoiseFloor time.Duration
	Ceiling    time.Duration
	Default    time.Duration
}

// DefaultTiming returns the stock pacing constants.
func DefaultTiming() Timing {
	return Timing{
		NoiseFloor: 100 * time.Millisecond,
		Ceiling:    5 * time.Second,
		Default:    time.Second,
	}
}

func (t Timing) normalized() Timing {
	d := DefaultTiming()
	if t.NoiseFloor <= 0 {
		t.NoiseFloor = d.NoiseFloor
	}
	if t.Ceiling <= 0 {
		t.Ceiling = d.Ceiling
	}
	if t.Default <= 0 {
		t.Default = d.Default
	}
	return t
}

// DelayFor computes the pause before events[index] is revealed. The first
// event shows immediately on play. A recorded gap is honored only when it is
// strictly inside the sane band; otherwise the fixed default applies.
// Both outcomes scale by the speed multiplier.
func (t Timing) DelayFor(events []domain.EventRecord, index int, speed float64) time.Duration {
	if index <= 0 || index >= len(events) {
		return 0
	}
	if speed <= 0 {
		speed = 1
	}
	t = t.normalized()

	raw := time.Duration(events[index].Timestamp-events[index-1].Timestamp) * time.Millisecond
	if raw > t.NoiseFloor && raw < t.Ceiling {
		return time.Duration(float64(raw) / speed)
	}
	return time.Duration(float64(t.Default) / speed)
}

// Speeds is the multiplier cycle offered by the controller.
var Speeds = []float64{1, 2, 5}

// NextSpeed returns the multiplier after cur in the cycle. Unknown values
// restart at the beginning.
func NextSpeed(cur float64) float64 {
	for i, s := range Speeds {
		if s == cur {
			return Speeds[(i+1)%len(Speeds)]
		}
	}
	return Speeds[0]
}
