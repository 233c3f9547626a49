// internal/driver/cycle.go
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/tamzrod/co2-poller/internal/frame"
	"github.com/tamzrod/co2-poller/internal/transport"
)

// runCycle walks Start -> SendCommand -> AwaitResponse -> Validate and
// returns the converted value, or the error that ended the cycle.
//
// Retry:  timeout, checksum mismatch, malformed frame (bounded by Attempts).
// Fail:   write or read failure on the bus, attempts exhausted.
func (d *Driver) runCycle(ctx context.Context) (PPM, int, error) {
	cmd := d.codec.ReadCommand()

	var lastErr error
	for attempt := 1; attempt <= d.cfg.Attempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, d.cfg.RetryDelay); err != nil {
				return 0, attempt - 1, err
			}
			d.flushStale()
		}
		if err := ctx.Err(); err != nil {
			return 0, attempt - 1, err
		}

		// ---- SendCommand ----
		if err := d.tr.Write(cmd.Bytes()); err != nil {
			d.emit(EventWriteFailed, attempt, err)
			return 0, attempt, fmt.Errorf("driver: send: %w", err)
		}

		// ---- AwaitResponse + Validate ----
		resp, err := d.await(ctx)
		if err == nil {
			ppm, convErr := d.codec.PPM(resp)
			if convErr == nil {
				return PPM(ppm), attempt, nil
			}
			err = convErr
		}

		switch {
		case ctx.Err() != nil && errors.Is(err, ctx.Err()):
			return 0, attempt, err
		case errors.Is(err, transport.ErrTimeout):
			d.emit(EventTimeout, attempt, err)
		case errors.Is(err, frame.ErrChecksumMismatch):
			d.emit(EventChecksumMismatch, attempt, err)
		case errors.Is(err, frame.ErrMalformed):
			d.emit(EventMalformed, attempt, err)
		default:
			d.emit(EventReadFailed, attempt, err)
			return 0, attempt, fmt.Errorf("driver: receive: %w", err)
		}
		lastErr = err
	}

	return 0, d.cfg.Attempts, fmt.Errorf("driver: %d attempts failed: %w", d.cfg.Attempts, lastErr)
}

// await accumulates bytes until the codec can classify them or the response
// timeout elapses.
func (d *Driver) await(ctx context.Context) (frame.Response, error) {
	deadline := time.Now().Add(d.cfg.ResponseTimeout)
	want := d.codec.ResponseLen()
	var buf []byte

	for {
		if err := ctx.Err(); err != nil {
			return frame.Response{}, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return frame.Response{}, partialTimeout(buf, want)
		}

		n := want - len(buf)
		if n < 1 {
			n = 1
		}
		chunk, err := d.tr.Read(n, remaining)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				return frame.Response{}, partialTimeout(buf, want)
			}
			return frame.Response{}, err
		}
		buf = append(buf, chunk...)

		resp, _ := d.codec.Decode(buf)
		switch resp.Outcome {
		case frame.Incomplete:
			continue
		case frame.OK:
			if glog.V(2) {
				glog.Infof("%s: response % x", d.cfg.ID, resp.Raw)
			}
			return resp, nil
		default:
			return resp, resp.Err
		}
	}
}

func partialTimeout(buf []byte, want int) error {
	if len(buf) == 0 {
		return transport.ErrTimeout
	}
	return fmt.Errorf("%w: %d of %d bytes", transport.ErrTimeout, len(buf), want)
}

// flushStale drops bytes left over from a rejected attempt so a late or
// garbled response cannot be mistaken for the next one.
func (d *Driver) flushStale() {
	f, ok := d.tr.(transport.Flusher)
	if !ok {
		return
	}
	if n := f.Flush(); n > 0 {
		glog.V(1).Infof("%s: flushed %d stale bytes", d.cfg.ID, n)
	}
}
