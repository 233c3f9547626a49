// internal/frame/winsen.go
package frame

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
)

// Winsen 9-byte protocol (MH-Z19 family and compatibles).
//
// Request:  FF addr 86 00 00 00 00 00 CS
// Response: FF 86 HH LL xx xx xx xx CS
// CS = (0xFF - sum(bytes[1..7])) + 1

const (
	ProtocolWinsen = "winsen"

	DefaultWinsenAddress byte = 0x01

	WinsenStart   byte = 0xFF
	WinsenReadGas byte = 0x86

	winsenFrameLen = 9
)

// Winsen is the 9-byte codec.
type Winsen struct {
	addr byte
}

func NewWinsen(addr byte) *Winsen {
	return &Winsen{addr: addr}
}

func (c *Winsen) Name() string { return ProtocolWinsen }

func (c *Winsen) Baud() physic.Frequency { return 9600 * physic.Hertz }

func (c *Winsen) ReadCommand() Command {
	w := make([]byte, winsenFrameLen)
	w[0] = WinsenStart
	w[1] = c.addr
	w[2] = WinsenReadGas
	w[8] = Sum8(w)

	return Command{
		Address:  c.addr,
		Opcode:   WinsenReadGas,
		Payload:  clone(w[3:8]),
		Checksum: uint16(w[8]),
		wire:     w,
	}
}

func (c *Winsen) MinLen() int { return winsenFrameLen }

func (c *Winsen) ResponseLen() int { return winsenFrameLen }

func (c *Winsen) Decode(b []byte) (Response, int) {
	if len(b) < winsenFrameLen {
		return incomplete(b, winsenFrameLen)
	}
	if b[0] != WinsenStart {
		return malformed(b, WinsenStart, fmt.Errorf("%w: start byte 0x%02x", ErrMalformed, b[0]))
	}
	if b[1] != WinsenReadGas {
		return malformed(b, WinsenStart, fmt.Errorf("%w: command 0x%02x", ErrMalformed, b[1]))
	}

	want := Sum8(b[:winsenFrameLen])
	if b[8] != want {
		return Response{
			Raw:      clone(b[:winsenFrameLen]),
			Address:  c.addr,
			Function: b[1],
			Checksum: uint16(b[8]),
			Outcome:  ChecksumMismatch,
			Err:      fmt.Errorf("%w: got 0x%02x, computed 0x%02x", ErrChecksumMismatch, b[8], want),
		}, winsenFrameLen
	}

	return Response{
		Raw:      clone(b[:winsenFrameLen]),
		Address:  c.addr,
		Function: b[1],
		Data:     clone(b[2:8]),
		Checksum: uint16(b[8]),
		Outcome:  OK,
	}, winsenFrameLen
}

func (c *Winsen) PPM(r Response) (uint16, error) {
	if r.Outcome != OK {
		return 0, fmt.Errorf("frame: ppm from %s response", r.Outcome)
	}
	if len(r.Data) < 2 {
		return 0, fmt.Errorf("%w: %d data bytes", ErrMalformed, len(r.Data))
	}
	return uint16(r.Data[0])*256 + uint16(r.Data[1]), nil
}
