// Package policy models the two streaming policies (realtime and
// quality) as an immutable tagged value with all thresholds, rather
// than as branches scattered through the consumer loop. This mirrors
// the teacher's adapt package: a small fixed table of pure values,
// chosen once and never mutated.
package policy

import "time"

// Name identifies which of the two policies a session is running.
type Name string

const (
	Realtime Name = "realtime"
	Quality  Name = "quality"
)

// Policy is the immutable set of thresholds governing backpressure and
// catch-up behavior for one session. All values are derived at session
// start and never change mid-session.
type Policy struct {
	name Name

	DropOnBackpressure bool

	// CatchUpMaxMs/CatchUpTargetMs only apply when CatchUpEnabled.
	CatchUpEnabled  bool
	CatchUpMaxMs    int
	CatchUpTargetMs int

	WSBufferHighWaterBytes int
	MaxEncodeQueue         int

	// FrameQueueMaxBytes is 0 when the policy never queues (realtime).
	FrameQueueMaxBytes  int
	FrameQueueTargetPct float64 // fraction of max used as the hysteresis target

	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// For returns the fixed table value for the named policy.
func For(name Name) Policy {
	switch name {
	case Quality:
		return Policy{
			name:                   Quality,
			DropOnBackpressure:     false,
			CatchUpEnabled:         false,
			WSBufferHighWaterBytes: 512 * 1024,
			MaxEncodeQueue:         16,
			FrameQueueMaxBytes:     8 * 1024 * 1024,
			FrameQueueTargetPct:    0.75,
			BackoffInitial:         5 * time.Millisecond,
			BackoffMax:             50 * time.Millisecond,
		}
	default:
		return Policy{
			name:                   Realtime,
			DropOnBackpressure:     true,
			CatchUpEnabled:         true,
			CatchUpMaxMs:           1000,
			CatchUpTargetMs:        200,
			WSBufferHighWaterBytes: 512 * 1024,
			MaxEncodeQueue:         3,
			FrameQueueMaxBytes:     0,
			BackoffInitial:         5 * time.Millisecond,
			BackoffMax:             40 * time.Millisecond,
		}
	}
}

// Name returns which named policy this value was constructed from.
func (p Policy) Name() Name { return p.name }

// FrameQueueTargetBytes returns the hysteresis trim target, ~75% of max.
func (p Policy) FrameQueueTargetBytes() int {
	return int(float64(p.FrameQueueMaxBytes) * p.FrameQueueTargetPct)
}

// BackoffDelay computes the exponential backoff delay for the nth
// consecutive backpressured cycle (n >= 1): initial * 2^(n-1), capped.
func (p Policy) BackoffDelay(consecutiveCycles int) time.Duration {
	if consecutiveCycles < 1 {
		consecutiveCycles = 1
	}
	d := p.BackoffInitial
	for i := 1; i < consecutiveCycles; i++ {
		d *= 2
		if d >= p.BackoffMax {
			return p.BackoffMax
		}
	}
	if d > p.BackoffMax {
		return p.BackoffMax
	}
	return d
}
