// internal/driver/types.go
package driver

import (
	"errors"
	"fmt"
	"time"
)

// PPM = parts per million, the unit of CO2 concentration.
type PPM uint16

func (p PPM) String() string {
	return fmt.Sprintf("%d PPM", uint16(p))
}

// Reading is one published measurement.
// Valid=false is the invalidity signal sent when the driver faults.
type Reading struct {
	PPM   PPM
	Seq   uint64
	At    time.Time
	Valid bool
}

// Publisher receives readings. Push model, no acknowledgment expected:
// an error is logged and never retried by the driver.
type Publisher interface {
	Publish(r Reading) error
}

// PublisherFunc adapts a func to Publisher.
type PublisherFunc func(Reading) error

func (f PublisherFunc) Publish(r Reading) error { return f(r) }

// ---- STATE ----

// State is the driver state. Exactly one per driver.
type State int32

const (
	Booting State = iota
	Idle
	AwaitingResponse
	Faulted
)

func (s State) String() string {
	switch s {
	case Booting:
		return "booting"
	case Idle:
		return "idle"
	case AwaitingResponse:
		return "awaiting-response"
	case Faulted:
		return "faulted"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// ---- CYCLE RESULT ----

// CycleResult is what one poll cycle produced.
type CycleResult struct {
	Sensor string
	At     time.Time

	// Reading is set only when Err == nil.
	Reading  Reading
	Attempts int
	State    State // state after the cycle

	Err error // non-nil means no reading was published
}

var (
	ErrNotReady        = errors.New("driver: not initialized")
	ErrCycleInProgress = errors.New("driver: poll cycle in progress")
	ErrClosed          = errors.New("driver: torn down")
	ErrFaulted         = errors.New("driver: faulted")
)
