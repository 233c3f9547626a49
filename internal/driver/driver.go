// internal/driver/driver.go
package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/tamzrod/co2-poller/internal/frame"
	"github.com/tamzrod/co2-poller/internal/transport"
)

// Driver polls one CO2 sensor over a transport it owns exclusively.
//
// Lifecycle: New -> Initialize (warm-up) -> Poll ... -> Teardown.
// At most one poll cycle runs at a time; a concurrent Poll is rejected
// with ErrCycleInProgress rather than queued.
type Driver struct {
	cfg    Config
	codec  frame.Codec
	tr     transport.Transport
	pub    Publisher
	events EventSink
	now    func() time.Time

	// held for the duration of one cycle
	cycle sync.Mutex

	mu       sync.Mutex
	state    State
	failures int // consecutive failed cycles
	seq      uint64
	closed   bool

	closeOnce sync.Once
	closeErr  error
}

// Option customizes a Driver at construction.
type Option func(*Driver)

// WithEvents routes diagnostics to sink instead of glog.
func WithEvents(sink EventSink) Option {
	return func(d *Driver) { d.events = sink }
}

// WithClock replaces time.Now for reading timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

// New creates a driver in the Booting state.
func New(cfg Config, codec frame.Codec, tr transport.Transport, pub Publisher, opts ...Option) (*Driver, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if codec == nil {
		return nil, errors.New("driver: codec required")
	}
	if tr == nil {
		return nil, errors.New("driver: transport required")
	}
	if pub == nil {
		return nil, errors.New("driver: publisher required")
	}
	if cfg.Address == 0 {
		cfg.Address = codec.ReadCommand().Address
	} else if got := codec.ReadCommand().Address; got != cfg.Address {
		return nil, fmt.Errorf("driver: codec addresses 0x%02x, config says 0x%02x", got, cfg.Address)
	}

	d := &Driver{
		cfg:    cfg,
		codec:  codec,
		tr:     tr,
		pub:    pub,
		events: LogSink{},
		now:    time.Now,
		state:  Booting,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Config returns the effective (defaulted) configuration.
func (d *Driver) Config() Config { return d.cfg }

// Interval is the polling interval the scheduler should use.
func (d *Driver) Interval() time.Duration { return d.cfg.Interval }

// State returns the current state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Failures returns the number of consecutive failed cycles.
func (d *Driver) Failures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failures
}

// Initialize waits out the warm-up period, then moves to Idle.
// No polling happens while Booting.
func (d *Driver) Initialize(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if d.state != Booting {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	if d.cfg.WarmUp > 0 {
		glog.Infof("%s: warming up for %s", d.cfg.ID, d.cfg.WarmUp)
		if err := sleep(ctx, d.cfg.WarmUp); err != nil {
			return err
		}
	}

	// whatever the sensor chattered during power-up is not ours
	if f, ok := d.tr.(transport.Flusher); ok {
		if n := f.Flush(); n > 0 {
			glog.V(1).Infof("%s: dropped %d bytes after warm-up", d.cfg.ID, n)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.state = Idle
	return nil
}

// Poll performs exactly one poll cycle.
// Cycle failures are reported in the result and never fatal; the next call
// starts fresh.
func (d *Driver) Poll(ctx context.Context) CycleResult {
	res := CycleResult{Sensor: d.cfg.ID, At: d.now()}

	if !d.cycle.TryLock() {
		res.State = d.State()
		res.Err = ErrCycleInProgress
		return res
	}
	defer d.cycle.Unlock()

	d.mu.Lock()
	switch {
	case d.closed:
		res.Err = ErrClosed
	case d.state == Booting:
		res.Err = ErrNotReady
	}
	if res.Err != nil {
		res.State = d.state
		d.mu.Unlock()
		return res
	}
	prev := d.state
	d.state = AwaitingResponse
	d.mu.Unlock()

	ppm, attempts, err := d.runCycle(ctx)
	res.Attempts = attempts

	switch {
	case err == nil:
		res.Reading = d.succeed(ppm, prev)
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		// shutdown: not the sensor's fault, nothing published
		d.setState(prev)
		glog.V(1).Infof("%s: cycle aborted: %v", d.cfg.ID, err)
		res.Err = err
	default:
		d.fail(err, prev)
		res.Err = err
	}

	res.State = d.State()
	return res
}

func (d *Driver) succeed(ppm PPM, prev State) Reading {
	d.mu.Lock()
	d.seq++
	r := Reading{PPM: ppm, Seq: d.seq, At: d.now(), Valid: true}
	d.failures = 0
	d.state = Idle
	d.mu.Unlock()

	if prev == Faulted {
		d.emit(EventRecovered, 0, nil)
	}
	glog.V(1).Infof("%s: CO2=%s seq=%d", d.cfg.ID, r.PPM, r.Seq)
	d.publish(r)
	return r
}

func (d *Driver) fail(err error, prev State) {
	d.mu.Lock()
	d.failures++
	entering := d.failures >= d.cfg.FaultThreshold && prev != Faulted
	if d.failures >= d.cfg.FaultThreshold {
		d.state = Faulted
	} else {
		d.state = Idle
	}
	var invalid Reading
	if entering {
		d.seq++
		invalid = Reading{Seq: d.seq, At: d.now()}
	}
	failures := d.failures
	d.mu.Unlock()

	d.emit(EventCycleFailed, 0, err)
	if entering {
		d.emit(EventFaulted, 0, fmt.Errorf("%w after %d failed cycles: %v", ErrFaulted, failures, err))
		d.publish(invalid)
	}
}

func (d *Driver) publish(r Reading) {
	if err := d.pub.Publish(r); err != nil {
		glog.Warningf("%s: publish seq=%d: %v", d.cfg.ID, r.Seq, err)
	}
}

func (d *Driver) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

func (d *Driver) emit(kind EventKind, attempt int, err error) {
	d.events.Event(Event{
		Kind:    kind,
		Sensor:  d.cfg.ID,
		Attempt: attempt,
		Err:     err,
		At:      d.now(),
	})
}

// Teardown stops accepting cycles, waits for a running one to reach its
// next suspension point, and releases the transport. Safe to call twice.
func (d *Driver) Teardown() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.closeOnce.Do(func() {
		d.cycle.Lock()
		defer d.cycle.Unlock()
		d.closeErr = d.tr.Close()
	})
	return d.closeErr
}

func sleep(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
