// internal/status/snapshot.go
package status

import (
	"context"
	"errors"

	"github.com/tamzrod/co2-poller/internal/driver"
)

// Snapshot represents exactly what a status writer is allowed to deliver.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	Health         uint16
	LastErrorCode  uint16
	SecondsInError uint16
	State          uint16
	Failures       uint16
}

// Tracker folds cycle results into a Snapshot.
// Owned by one goroutine (the orchestrator). Not safe for concurrent use.
type Tracker struct {
	snap     Snapshot
	failures int
}

// NewTracker starts in HealthUnknown.
func NewTracker() *Tracker {
	return &Tracker{snap: Snapshot{Health: HealthUnknown}}
}

// Snapshot returns the current snapshot.
func (t *Tracker) Snapshot() Snapshot { return t.snap }

// Observe applies one cycle result and reports whether the snapshot changed.
// Rejected and aborted cycles do not describe the sensor and are ignored.
func (t *Tracker) Observe(res driver.CycleResult) bool {
	prev := t.snap
	code := ErrorCode(res.Err)

	switch {
	case res.Err == nil:
		t.snap.Health = HealthOK
		t.snap.LastErrorCode = ErrCodeNone
		t.snap.SecondsInError = 0
		t.failures = 0

	case code == ErrCodeCycleOverlap, code == ErrCodeNotReady:
		return false
	case errors.Is(res.Err, context.Canceled), errors.Is(res.Err, context.DeadlineExceeded):
		return false

	case code == ErrCodeClosed:
		t.snap.Health = HealthDisabled
		t.snap.LastErrorCode = ErrCodeClosed

	default:
		if res.State == driver.Faulted {
			t.snap.Health = HealthError
		} else {
			t.snap.Health = HealthStale
		}
		t.snap.LastErrorCode = code
		t.failures++
	}

	t.snap.State = uint16(res.State)
	t.snap.Failures = saturate(t.failures)
	return t.snap != prev
}

// Tick advances seconds_in_error by one while the sensor is unhealthy.
// Called at 1 Hz. Reports whether the snapshot changed.
func (t *Tracker) Tick() bool {
	switch t.snap.Health {
	case HealthError, HealthStale:
	default:
		return false
	}
	// HARD INVARIANT: seconds_in_error MUST NOT wrap
	if t.snap.SecondsInError == 65535 {
		return false
	}
	t.snap.SecondsInError++
	return true
}

func saturate(n int) uint16 {
	if n > 65535 {
		return 65535
	}
	return uint16(n)
}
