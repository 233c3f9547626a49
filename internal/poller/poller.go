// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/tamzrod/co2-poller/internal/driver"
)

// Cycler runs one poll cycle. Implemented by *driver.Driver.
type Cycler interface {
	Poll(ctx context.Context) driver.CycleResult
}

// Config is the minimal runtime config the poller needs.
type Config struct {
	ID       string
	Interval time.Duration

	// Immediate fires one cycle as soon as Run starts.
	Immediate bool
}

// Poller is a dumb, clock-driven trigger.
// It owns no sensor state; the cycler does.
type Poller struct {
	cfg Config
	c   Cycler

	busy    atomic.Bool
	dropped atomic.Uint64
}

// New creates a poller with immutable config.
func New(cfg Config, c Cycler) (*Poller, error) {
	if cfg.ID == "" {
		return nil, errors.New("poller: sensor id required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if c == nil {
		return nil, errors.New("poller: cycler required")
	}
	return &Poller{cfg: cfg, c: c}, nil
}

// ID returns the sensor id this poller drives.
func (p *Poller) ID() string { return p.cfg.ID }

// Dropped returns how many firings were skipped because a cycle was still running.
func (p *Poller) Dropped() uint64 { return p.dropped.Load() }

// PollOnce performs exactly one poll cycle now.
// Rejected with driver.ErrCycleInProgress if a cycle is already running.
func (p *Poller) PollOnce(ctx context.Context) driver.CycleResult {
	if !p.busy.CompareAndSwap(false, true) {
		return driver.CycleResult{
			Sensor: p.cfg.ID,
			At:     time.Now(),
			Err:    driver.ErrCycleInProgress,
		}
	}
	defer p.busy.Store(false)

	return p.c.Poll(ctx)
}
