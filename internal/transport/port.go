// internal/transport/port.go
package transport

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"
)

// Port implements Transport over a serial handle whose reads time out after
// one gap. Backends differ only in how they open the handle and how a silent
// read is reported.
type Port struct {
	name string
	rw   io.ReadWriteCloser

	// silent reports whether a read error only means "nothing arrived".
	silent func(err error) bool

	mu     sync.Mutex
	closed bool
}

func newPort(name string, rw io.ReadWriteCloser, silent func(error) bool) *Port {
	return &Port{name: name, rw: rw, silent: silent}
}

func (p *Port) String() string { return p.name }

func (p *Port) Write(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	if glog.V(2) {
		glog.Infof("TX %s % x", p.name, b)
	}
	n, err := p.rw.Write(b)
	if err != nil {
		return &IOError{Op: "write", Port: p.name, Err: err}
	}
	if n != len(b) {
		return &IOError{Op: "write", Port: p.name, Err: io.ErrShortWrite}
	}
	return nil
}

func (p *Port) Read(max int, timeout time.Duration) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if max <= 0 {
		return nil, fmt.Errorf("transport: read size %d", max)
	}

	deadline := time.Now().Add(timeout)
	buf := make([]byte, max)
	got := 0

	for got < max {
		n, err := p.rw.Read(buf[got:])
		got += n
		if err != nil && !p.silent(err) {
			return nil, &IOError{Op: "read", Port: p.name, Err: err}
		}
		if n > 0 {
			continue
		}

		// one gap of silence
		if got > 0 {
			break
		}
		if !time.Now().Before(deadline) {
			return nil, ErrTimeout
		}
	}

	if glog.V(2) {
		glog.Infof("RX %s % x", p.name, buf[:got])
	}
	return buf[:got], nil
}

// Close releases the handle. Safe to call more than once.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.rw.Close()
}

// Flush discards whatever is buffered on the line, bounded to a few reads.
// Returns the number of bytes dropped.
func (p *Port) Flush() int {
	dropped := 0
	for i := 0; i < 8; i++ {
		b, err := p.Read(256, 0)
		dropped += len(b)
		if err != nil || len(b) == 0 {
			break
		}
	}
	return dropped
}
