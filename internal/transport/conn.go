// internal/transport/conn.go
package transport

import (
	"errors"
	"io"
	"os"
	"time"

	"periph.io/x/conn/v3"
)

// FromConn adapts a periph.io half-duplex connection.
// Write stages the request; Read performs one Tx(request, buf[:max]).
// The connection enforces its own timeout, so Read's timeout is advisory.
func FromConn(c conn.Conn) Transport {
	return &connTransport{c: c}
}

type connTransport struct {
	c       conn.Conn
	pending []byte
	closed  bool
}

func (t *connTransport) Write(b []byte) error {
	if t.closed {
		return ErrClosed
	}
	if t.pending != nil {
		return &IOError{Op: "write", Port: t.c.String(), Err: errors.New("previous request not read")}
	}
	t.pending = append([]byte{}, b...)
	return nil
}

func (t *connTransport) Read(max int, _ time.Duration) ([]byte, error) {
	if t.closed {
		return nil, ErrClosed
	}
	w := t.pending
	t.pending = nil

	r := make([]byte, max)
	if err := t.c.Tx(w, r); err != nil {
		if os.IsTimeout(err) || errors.Is(err, ErrTimeout) {
			return nil, ErrTimeout
		}
		return nil, &IOError{Op: "tx", Port: t.c.String(), Err: err}
	}
	return r, nil
}

func (t *connTransport) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	if cl, ok := t.c.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}
