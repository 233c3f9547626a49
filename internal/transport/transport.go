// internal/transport/transport.go
package transport

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/physic"
)

// Transport is the synchronous byte channel a driver owns exclusively.
// Every call is bounded. No retries at this layer.
type Transport interface {
	Write(b []byte) error

	// Read returns what arrived, up to max bytes. It waits at most timeout for
	// the first byte and returns early once the line falls silent.
	// Nothing at all within timeout yields ErrTimeout.
	Read(max int, timeout time.Duration) ([]byte, error)

	Close() error
}

// Flusher is implemented by transports that can hold stale input between
// requests.
type Flusher interface {
	Flush() int
}

var (
	// ErrTimeout means the peer stayed silent. It is never wrapped in IOError.
	ErrTimeout = errors.New("transport: timeout")
	ErrClosed  = errors.New("transport: closed")
)

// IOError is a bus-level failure (open, write, read).
type IOError struct {
	Op   string
	Port string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Op, e.Port, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ---- CONFIG ----

const (
	BackendGoburrow = "goburrow"
	BackendTarm     = "tarm"

	// DefaultGap is the line silence that ends a response.
	DefaultGap = 50 * time.Millisecond
)

// Config selects and configures a serial backend. Framing is always 8N1.
type Config struct {
	Port    string
	Backend string
	Baud    physic.Frequency
	Gap     time.Duration
}

// Open opens the serial port with the configured backend.
func Open(cfg Config) (*Port, error) {
	if cfg.Port == "" {
		return nil, errors.New("transport: port required")
	}
	if cfg.Baud <= 0 {
		return nil, errors.New("transport: baud rate must be > 0")
	}
	if cfg.Gap <= 0 {
		cfg.Gap = DefaultGap
	}

	switch cfg.Backend {
	case BackendGoburrow, "":
		return openGoburrow(cfg)
	case BackendTarm:
		return openTarm(cfg)
	}
	return nil, fmt.Errorf("transport: unknown backend %q", cfg.Backend)
}

func baudInt(f physic.Frequency) int {
	return int(f / physic.Hertz)
}
