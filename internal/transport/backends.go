// internal/transport/backends.go
package transport

import (
	"errors"
	"io"
	"time"

	"github.com/goburrow/serial"
	tarm "github.com/tarm/serial"
)

func openGoburrow(cfg Config) (*Port, error) {
	h, err := serial.Open(&serial.Config{
		Address:  cfg.Port,
		BaudRate: baudInt(cfg.Baud),
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  cfg.Gap,
	})
	if err != nil {
		return nil, &IOError{Op: "open", Port: cfg.Port, Err: err}
	}

	return newPort(cfg.Port, h, func(err error) bool {
		return errors.Is(err, serial.ErrTimeout)
	}), nil
}

// tarm expresses read timeouts in tenths of a second on POSIX.
const tarmMinGap = 100 * time.Millisecond

func openTarm(cfg Config) (*Port, error) {
	gap := cfg.Gap
	if gap < tarmMinGap {
		gap = tarmMinGap
	}

	h, err := tarm.OpenPort(&tarm.Config{
		Name:        cfg.Port,
		Baud:        baudInt(cfg.Baud),
		ReadTimeout: gap,
		Size:        8,
		Parity:      tarm.ParityNone,
		StopBits:    tarm.Stop1,
	})
	if err != nil {
		return nil, &IOError{Op: "open", Port: cfg.Port, Err: err}
	}

	// a timed out read comes back as (0, nil) or (0, io.EOF)
	return newPort(cfg.Port, h, func(err error) bool {
		return err == io.EOF
	}), nil
}
