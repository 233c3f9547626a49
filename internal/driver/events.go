// internal/driver/events.go
package driver

import (
	"time"

	"github.com/golang/glog"
)

// EventKind classifies diagnostics events.
type EventKind int

const (
	EventWriteFailed EventKind = iota
	EventReadFailed
	EventTimeout
	EventChecksumMismatch
	EventMalformed
	EventCycleFailed
	EventFaulted
	EventRecovered
)

func (k EventKind) String() string {
	switch k {
	case EventWriteFailed:
		return "write-failed"
	case EventReadFailed:
		return "read-failed"
	case EventTimeout:
		return "timeout"
	case EventChecksumMismatch:
		return "checksum-mismatch"
	case EventMalformed:
		return "malformed"
	case EventCycleFailed:
		return "cycle-failed"
	case EventFaulted:
		return "faulted"
	case EventRecovered:
		return "recovered"
	}
	return "unknown"
}

// Event is one structured diagnostics record.
type Event struct {
	Kind    EventKind
	Sensor  string
	Attempt int // 0 for cycle-level events
	Err     error
	At      time.Time
}

// EventSink receives diagnostics. Fire-and-forget: it must not block.
type EventSink interface {
	Event(e Event)
}

// EventFunc adapts a func to EventSink.
type EventFunc func(Event)

func (f EventFunc) Event(e Event) { f(e) }

// LogSink writes events through glog.
type LogSink struct{}

func (LogSink) Event(e Event) {
	switch e.Kind {
	case EventTimeout, EventChecksumMismatch, EventMalformed:
		glog.Warningf("%s: attempt %d: %s: %v", e.Sensor, e.Attempt, e.Kind, e.Err)
	case EventWriteFailed, EventReadFailed, EventCycleFailed:
		glog.Errorf("%s: %s: %v", e.Sensor, e.Kind, e.Err)
	case EventFaulted:
		glog.Errorf("%s: entering faulted state: %v", e.Sensor, e.Err)
	case EventRecovered:
		glog.Infof("%s: recovered", e.Sensor)
	default:
		glog.Infof("%s: %s: %v", e.Sensor, e.Kind, e.Err)
	}
}
