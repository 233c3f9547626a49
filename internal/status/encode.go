// internal/status/encode.go
package status

import (
	"errors"

	"github.com/tamzrod/co2-poller/internal/driver"
	"github.com/tamzrod/co2-poller/internal/frame"
	"github.com/tamzrod/co2-poller/internal/transport"
)

// Encode converts a Snapshot into a full device status block.
// Layout is protocol-locked.
// No IO. No side effects.
func Encode(s Snapshot, name []uint16) []uint16 {
	regs := make([]uint16, SlotsPerDevice)

	regs[SlotHealthCode] = s.Health
	regs[SlotLastErrorCode] = s.LastErrorCode
	regs[SlotSecondsInError] = s.SecondsInError
	regs[SlotDriverState] = s.State
	regs[SlotFailures] = s.Failures

	// Slots 5..10 are RESERVED, left as zero
	copy(regs[SlotDeviceNameStart:SlotDeviceNameEnd+1], name)

	return regs
}

// EncodeReading converts a reading into the reading block.
// No IO. No side effects.
func EncodeReading(r driver.Reading) []uint16 {
	regs := make([]uint16, ReadingBlockSize)

	regs[RegPPM] = uint16(r.PPM)
	if r.Valid {
		regs[RegValid] = 1
	}
	regs[RegSeqHi] = uint16(r.Seq >> 16)
	regs[RegSeqLo] = uint16(r.Seq)

	return regs
}

// EncodeName packs up to 16 ASCII characters into 8 uint16 registers.
// Each register stores two ASCII bytes in big-endian order.
func EncodeName(name string) []uint16 {
	out := make([]uint16, SlotDeviceNameSlots)

	b := []byte(name)
	if len(b) > DeviceNameMaxChars {
		b = b[:DeviceNameMaxChars]
	}

	// sanitize to printable ASCII
	for i := 0; i < len(b); i++ {
		if b[i] < 0x20 || b[i] > 0x7E {
			b[i] = '?'
		}
	}

	for i := 0; i < DeviceNameMaxChars; i += 2 {
		var hi, lo byte
		if i < len(b) {
			hi = b[i]
		}
		if i+1 < len(b) {
			lo = b[i+1]
		}
		out[i/2] = uint16(hi)<<8 | uint16(lo)
	}

	return out
}

// ErrorCode maps an error to a stable uint16 code without assuming concrete types.
// Errors exposing their own code win; unknown errors return ErrCodeGeneric.
func ErrorCode(err error) uint16 {
	if err == nil {
		return ErrCodeNone
	}

	type coderA interface{ Code() uint16 }
	type coderB interface{ ErrorCode() uint16 }
	type coderC interface{ ModbusCode() uint16 }

	var a coderA
	if errors.As(err, &a) {
		return a.Code()
	}
	var b coderB
	if errors.As(err, &b) {
		return b.ErrorCode()
	}
	var c coderC
	if errors.As(err, &c) {
		return c.ModbusCode()
	}

	var ioErr *transport.IOError
	switch {
	case errors.Is(err, driver.ErrCycleInProgress):
		return ErrCodeCycleOverlap
	case errors.Is(err, driver.ErrNotReady):
		return ErrCodeNotReady
	case errors.Is(err, driver.ErrClosed), errors.Is(err, transport.ErrClosed):
		return ErrCodeClosed
	case errors.Is(err, driver.ErrFaulted):
		return ErrCodeFaulted
	case errors.Is(err, transport.ErrTimeout):
		return ErrCodeTimeout
	case errors.Is(err, frame.ErrChecksumMismatch):
		return ErrCodeChecksum
	case errors.Is(err, frame.ErrMalformed):
		return ErrCodeMalformed
	case errors.Is(err, frame.ErrIncomplete):
		return ErrCodeIncomplete
	case errors.As(err, &ioErr):
		return ErrCodeIO
	}

	return ErrCodeGeneric
}
