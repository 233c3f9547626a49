// internal/poller/poller_test.go
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/tamzrod/co2-poller/internal/config"
	"github.com/tamzrod/co2-poller/internal/driver"
	"github.com/tamzrod/co2-poller/internal/transport"
)

type fakeCycler struct {
	calls   atomic.Int32
	running atomic.Int32
	overlap atomic.Bool
	hold    time.Duration
	err     error
}

func (f *fakeCycler) Poll(ctx context.Context) driver.CycleResult {
	if f.running.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.running.Add(-1)

	n := f.calls.Add(1)
	if f.hold > 0 {
		select {
		case <-time.After(f.hold):
		case <-ctx.Done():
		}
	}
	return driver.CycleResult{
		Sensor:  "s1",
		Reading: driver.Reading{PPM: 400, Seq: uint64(n), Valid: f.err == nil},
		Err:     f.err,
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Interval: time.Second}, &fakeCycler{}); err == nil {
		t.Fatalf("expected error for missing id")
	}
	if _, err := New(Config{ID: "s1"}, &fakeCycler{}); err == nil {
		t.Fatalf("expected error for zero interval")
	}
	if _, err := New(Config{ID: "s1", Interval: time.Second}, nil); err == nil {
		t.Fatalf("expected error for nil cycler")
	}
}

func TestPollOnce_Success(t *testing.T) {
	p, err := New(Config{ID: "s1", Interval: time.Second}, &fakeCycler{})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}

	res := p.PollOnce(context.Background())
	if res.Err != nil {
		t.Fatalf("PollOnce err=%v", res.Err)
	}
	if res.Reading.PPM != 400 {
		t.Fatalf("unexpected reading %+v", res.Reading)
	}
}

func TestPollOnce_Failure(t *testing.T) {
	p, err := New(Config{ID: "s1", Interval: time.Second}, &fakeCycler{err: errors.New("boom")})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}

	res := p.PollOnce(context.Background())
	if res.Err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestPollOnce_RejectsWhileBusy(t *testing.T) {
	fc := &fakeCycler{hold: 200 * time.Millisecond}
	p, _ := New(Config{ID: "s1", Interval: time.Second}, fc)

	done := make(chan struct{})
	go func() {
		p.PollOnce(context.Background())
		close(done)
	}()

	for fc.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	res := p.PollOnce(context.Background())
	if !errors.Is(res.Err, driver.ErrCycleInProgress) {
		t.Fatalf("expected ErrCycleInProgress, got %v", res.Err)
	}
	<-done
	if fc.calls.Load() != 1 {
		t.Fatalf("expected 1 cycle, got %d", fc.calls.Load())
	}
}

func TestRun_EmitsResults(t *testing.T) {
	fc := &fakeCycler{}
	p, _ := New(Config{ID: "s1", Interval: 10 * time.Millisecond, Immediate: true}, fc)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan driver.CycleResult)
	stopped := make(chan struct{})
	go func() {
		p.Run(ctx, out)
		close(stopped)
	}()

	for i := 0; i < 3; i++ {
		select {
		case res := <-out:
			if res.Err != nil {
				t.Fatalf("cycle %d err=%v", i, res.Err)
			}
		case <-time.After(time.Second):
			t.Fatalf("no result for cycle %d", i)
		}
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

func TestRun_DropsFiringsWhileBusy(t *testing.T) {
	fc := &fakeCycler{hold: 100 * time.Millisecond}
	p, _ := New(Config{ID: "s1", Interval: 10 * time.Millisecond}, fc)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan driver.CycleResult, 16)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Run(ctx, out)
	}()

	time.Sleep(250 * time.Millisecond)
	cancel()
	wg.Wait()

	if fc.overlap.Load() {
		t.Fatalf("cycles overlapped")
	}
	if p.Dropped() == 0 {
		t.Fatalf("expected dropped firings")
	}
	if n := fc.calls.Load(); n < 1 || n > 4 {
		t.Fatalf("unexpected cycle count %d", n)
	}
}

// ---- builder ----

type nopBus struct{ closed bool }

func (b *nopBus) Write([]byte) error { return nil }

func (b *nopBus) Read(int, time.Duration) ([]byte, error) { return nil, transport.ErrTimeout }

func (b *nopBus) Close() error {
	b.closed = true
	return nil
}

func TestBuildWith(t *testing.T) {
	c := &config.Config{Sensors: []config.SensorConfig{{
		ID:     "office",
		Serial: config.SerialConfig{Port: "/dev/null"},
		Poll:   config.PollConfig{IntervalMs: 5000},
	}}}
	if err := config.Validate(c); err != nil {
		t.Fatalf("Validate err=%v", err)
	}
	config.Normalize(c)
	s := c.Sensors[0]

	pub := driver.PublisherFunc(func(driver.Reading) error { return nil })
	p, d, err := BuildWith(s, &nopBus{}, pub)
	if err != nil {
		t.Fatalf("BuildWith err=%v", err)
	}
	if p.ID() != "office" || d.Interval() != 5*time.Second {
		t.Fatalf("unexpected wiring: id=%s interval=%s", p.ID(), d.Interval())
	}

	dc := d.Config()
	if dc.Address != 0x15 || dc.ResponseTimeout != time.Second || dc.RetryDelay != 100*time.Millisecond {
		t.Fatalf("unexpected driver config %+v", dc)
	}

	tc := TransportConfig(s)
	if tc.Backend != transport.BackendGoburrow || tc.Baud != 19200*physic.Hertz {
		t.Fatalf("unexpected transport config %+v", tc)
	}
}

func TestBuildWith_BadProtocol(t *testing.T) {
	s := config.SensorConfig{ID: "x", Protocol: "k30"}
	pub := driver.PublisherFunc(func(driver.Reading) error { return nil })
	if _, _, err := BuildWith(s, &nopBus{}, pub); err == nil {
		t.Fatalf("expected error for unknown protocol")
	}
}
