// internal/frame/frame.go
package frame

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/physic"
)

// ---- OUTCOMES ----

// Outcome is the result of decoding one response frame.
type Outcome int

const (
	OK Outcome = iota
	Malformed
	ChecksumMismatch
	Incomplete
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case Malformed:
		return "malformed"
	case ChecksumMismatch:
		return "checksum-mismatch"
	case Incomplete:
		return "incomplete"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

var (
	ErrIncomplete       = errors.New("frame: incomplete")
	ErrMalformed        = errors.New("frame: malformed")
	ErrChecksumMismatch = errors.New("frame: checksum mismatch")
)

// ExceptionError is a well-formed Modbus exception response.
// It unwraps to ErrMalformed: the device answered, but not with data.
type ExceptionError struct {
	Function byte
	Code     byte
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("frame: modbus exception fc=0x%02x code=%d", e.Function, e.Code)
}

func (e *ExceptionError) Unwrap() error { return ErrMalformed }

// ModbusCode is the exception code as reported on the status block.
func (e *ExceptionError) ModbusCode() uint16 { return 0x8000 | uint16(e.Code) }

// ---- FRAMES ----

// Command is one outgoing request.
// Built fresh per request by a Codec. Never mutated after construction.
type Command struct {
	Address  byte
	Opcode   byte
	Payload  []byte
	Checksum uint16

	wire []byte
}

// Bytes returns a copy of the wire image.
func (c Command) Bytes() []byte {
	out := make([]byte, len(c.wire))
	copy(out, c.wire)
	return out
}

func (c Command) String() string {
	return fmt.Sprintf("% x", c.wire)
}

// Response is one decoded (or rejected) incoming frame.
// Raw and Data never alias the caller's buffer.
type Response struct {
	Raw      []byte
	Address  byte
	Function byte
	Data     []byte
	Checksum uint16

	Outcome Outcome
	Err     error // nil only when Outcome == OK
}

// Codec builds commands and decodes responses for one sensor protocol.
type Codec interface {
	// Name is the protocol name used in configuration.
	Name() string

	// ReadCommand returns the gas concentration request.
	// Deterministic. No side effects.
	ReadCommand() Command

	// MinLen is the shortest byte sequence Decode can classify as anything
	// other than Incomplete.
	MinLen() int

	// ResponseLen is the length of a successful ReadCommand response.
	ResponseLen() int

	// Decode classifies the bytes at the head of b.
	// The int is how many bytes the caller may discard:
	//   OK, ChecksumMismatch -> the frame length
	//   Malformed            -> up to the next start marker candidate
	//   Incomplete           -> 0
	Decode(b []byte) (Response, int)

	// PPM converts an OK response into parts per million.
	PPM(r Response) (uint16, error)

	// Baud is the documented line rate for the protocol.
	Baud() physic.Frequency
}

// New returns the codec for a protocol name.
// addr is the device address; 0 selects the protocol default.
func New(protocol string, addr byte) (Codec, error) {
	switch protocol {
	case ProtocolT6713, "":
		if addr == 0 {
			addr = DefaultT6713Address
		}
		return NewT6713(addr), nil
	case ProtocolWinsen:
		if addr == 0 {
			addr = DefaultWinsenAddress
		}
		return NewWinsen(addr), nil
	}
	return nil, fmt.Errorf("frame: unknown protocol %q", protocol)
}

// ---- helpers ----

func incomplete(b []byte, need int) (Response, int) {
	return Response{
		Raw:     clone(b),
		Outcome: Incomplete,
		Err:     fmt.Errorf("%w: have %d bytes, need %d", ErrIncomplete, len(b), need),
	}, 0
}

func malformed(b []byte, marker byte, err error) (Response, int) {
	n := resync(b, marker)
	return Response{
		Raw:     clone(b[:n]),
		Outcome: Malformed,
		Err:     err,
	}, n
}

// resync returns the offset of the next byte equal to marker, skipping the
// current head. If no candidate exists the whole buffer is discardable.
func resync(b []byte, marker byte) int {
	for i := 1; i < len(b); i++ {
		if b[i] == marker {
			return i
		}
	}
	return len(b)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
