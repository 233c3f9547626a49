// internal/frame/t6713.go
package frame

import (
	"encoding/binary"
	"fmt"

	"periph.io/x/conn/v3/physic"
)

// Telaire T6713 speaks Modbus RTU on its UART.
// Registers are input registers (FC 4), one 16-bit word each.

const (
	ProtocolT6713 = "t6713"

	DefaultT6713Address byte = 0x15

	FuncReadInputRegisters byte = 0x04

	RegFirmware uint16 = 0x1389
	RegStatus   uint16 = 0x138A
	RegGasPPM   uint16 = 0x138B

	// exception frame: addr fc|0x80 code crcLo crcHi
	rtuExceptionLen = 5
	// addr fc count crcLo crcHi, without data
	rtuOverhead = 5
)

// T6713 is the Modbus RTU codec for one device address.
type T6713 struct {
	addr byte
}

func NewT6713(addr byte) *T6713 {
	return &T6713{addr: addr}
}

func (c *T6713) Name() string { return ProtocolT6713 }

func (c *T6713) Address() byte { return c.addr }

func (c *T6713) Baud() physic.Frequency { return 19200 * physic.Hertz }

func (c *T6713) ReadCommand() Command {
	return c.ReadRegisters(RegGasPPM, 1)
}

// ReadRegisters builds an FC 4 request.
//
// ADU:
//
//	Addr(1) FC(1) Register(2) Quantity(2) CRC(2, low byte first)
func (c *T6713) ReadRegisters(reg, qty uint16) Command {
	adu := make([]byte, 8)
	adu[0] = c.addr
	adu[1] = FuncReadInputRegisters
	binary.BigEndian.PutUint16(adu[2:4], reg)
	binary.BigEndian.PutUint16(adu[4:6], qty)

	crc := CRC16(adu[:6])
	binary.LittleEndian.PutUint16(adu[6:8], crc)

	return Command{
		Address:  c.addr,
		Opcode:   FuncReadInputRegisters,
		Payload:  clone(adu[2:6]),
		Checksum: crc,
		wire:     adu,
	}
}

func (c *T6713) MinLen() int { return rtuExceptionLen }

func (c *T6713) ResponseLen() int { return rtuOverhead + 2 }

func (c *T6713) Decode(b []byte) (Response, int) {
	if len(b) < rtuExceptionLen {
		return incomplete(b, rtuExceptionLen)
	}
	if b[0] != c.addr {
		return malformed(b, c.addr, fmt.Errorf("%w: address 0x%02x, want 0x%02x", ErrMalformed, b[0], c.addr))
	}

	fc := b[1]
	switch {
	case fc == FuncReadInputRegisters|0x80:
		if r, n, bad := c.checkCRC(b, rtuExceptionLen); bad {
			return r, n
		}
		return Response{
			Raw:      clone(b[:rtuExceptionLen]),
			Address:  b[0],
			Function: fc,
			Data:     []byte{b[2]},
			Checksum: binary.LittleEndian.Uint16(b[3:5]),
			Outcome:  Malformed,
			Err:      &ExceptionError{Function: fc, Code: b[2]},
		}, rtuExceptionLen

	case fc == FuncReadInputRegisters:
		count := int(b[2])
		if count == 0 || count%2 != 0 {
			return malformed(b, c.addr, fmt.Errorf("%w: byte count %d not a register multiple", ErrMalformed, count))
		}
		total := rtuOverhead + count
		if len(b) < total {
			return incomplete(b, total)
		}
		if r, n, bad := c.checkCRC(b, total); bad {
			return r, n
		}
		return Response{
			Raw:      clone(b[:total]),
			Address:  b[0],
			Function: fc,
			Data:     clone(b[3 : 3+count]),
			Checksum: binary.LittleEndian.Uint16(b[total-2 : total]),
			Outcome:  OK,
		}, total
	}

	return malformed(b, c.addr, fmt.Errorf("%w: function 0x%02x", ErrMalformed, fc))
}

// checkCRC reports bad=true with a ChecksumMismatch response when the
// trailing CRC of b[:total] does not match.
func (c *T6713) checkCRC(b []byte, total int) (Response, int, bool) {
	want := CRC16(b[:total-2])
	got := binary.LittleEndian.Uint16(b[total-2 : total])
	if want == got {
		return Response{}, 0, false
	}
	return Response{
		Raw:      clone(b[:total]),
		Address:  b[0],
		Function: b[1],
		Checksum: got,
		Outcome:  ChecksumMismatch,
		Err:      fmt.Errorf("%w: got 0x%04x, computed 0x%04x", ErrChecksumMismatch, got, want),
	}, total, true
}

func (c *T6713) PPM(r Response) (uint16, error) {
	regs, err := Registers(r)
	if err != nil {
		return 0, err
	}
	return regs[0], nil
}

// Registers unpacks the big-endian words of an OK FC 4 response.
func Registers(r Response) ([]uint16, error) {
	if r.Outcome != OK {
		return nil, fmt.Errorf("frame: registers from %s response", r.Outcome)
	}
	if len(r.Data) < 2 || len(r.Data)%2 != 0 {
		return nil, fmt.Errorf("%w: %d data bytes", ErrMalformed, len(r.Data))
	}
	n := len(r.Data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = binary.BigEndian.Uint16(r.Data[2*i:])
	}
	return out, nil
}
