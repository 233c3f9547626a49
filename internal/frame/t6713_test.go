// internal/frame/t6713_test.go
package frame

import (
	"encoding/binary"
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rtuResponse builds a valid FC 4 response frame.
func rtuResponse(addr byte, regs ...uint16) []byte {
	b := []byte{addr, FuncReadInputRegisters, byte(2 * len(regs))}
	for _, r := range regs {
		b = binary.BigEndian.AppendUint16(b, r)
	}
	return binary.LittleEndian.AppendUint16(b, CRC16(b))
}

func TestT6713_ReadCommand(t *testing.T) {
	c := NewT6713(DefaultT6713Address)
	cmd := c.ReadCommand()

	head := []byte{0x15, 0x04, 0x13, 0x8B, 0x00, 0x01}
	crc := CRC16(head)
	want := append(head, byte(crc), byte(crc>>8))

	if diff := cmp.Diff(want, cmd.Bytes()); diff != "" {
		t.Fatalf("ReadCommand() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, byte(0x15), cmd.Address)
	assert.Equal(t, FuncReadInputRegisters, cmd.Opcode)
	assert.Equal(t, []byte{0x13, 0x8B, 0x00, 0x01}, cmd.Payload)
	assert.Equal(t, crc, cmd.Checksum)

	// deterministic and detached from internal state
	again := c.ReadCommand().Bytes()
	again[0] = 0xAA
	assert.Equal(t, want, c.ReadCommand().Bytes())
}

func TestT6713_DecodeRoundTrip(t *testing.T) {
	c := NewT6713(DefaultT6713Address)
	for _, ppm := range []uint16{0, 1, 400, 558, 0x00FF, 0x0100, 5000, 0xFFFF} {
		raw := rtuResponse(0x15, ppm)
		r, n := c.Decode(raw)
		require.Equal(t, OK, r.Outcome, "ppm=%d err=%v", ppm, r.Err)
		require.NoError(t, r.Err)
		assert.Equal(t, len(raw), n)
		assert.Equal(t, raw, r.Raw)

		got, err := c.PPM(r)
		require.NoError(t, err)
		assert.Equal(t, ppm, got)
	}
}

func TestT6713_DecodeMultipleRegisters(t *testing.T) {
	c := NewT6713(0x15)
	raw := rtuResponse(0x15, 0x0102, 0x0304, 0x0506)
	r, n := c.Decode(append(raw, 0x15, 0x04))
	require.Equal(t, OK, r.Outcome)
	assert.Equal(t, len(raw), n)

	regs, err := Registers(r)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x0102, 0x0304, 0x0506}, regs)
}

func TestT6713_ShortInputIsIncomplete(t *testing.T) {
	c := NewT6713(0x15)
	rng := rand.New(rand.NewSource(1))
	for l := 0; l < c.MinLen(); l++ {
		for i := 0; i < 64; i++ {
			b := make([]byte, l)
			rng.Read(b)
			r, n := c.Decode(b)
			require.Equal(t, Incomplete, r.Outcome, "len=%d bytes=% x", l, b)
			require.True(t, errors.Is(r.Err, ErrIncomplete))
			require.Equal(t, 0, n)
		}
	}

	// header announces more than is buffered
	raw := rtuResponse(0x15, 558)
	r, n := c.Decode(raw[:6])
	assert.Equal(t, Incomplete, r.Outcome)
	assert.Equal(t, 0, n)
}

func TestT6713_ChecksumBitFlips(t *testing.T) {
	c := NewT6713(0x15)
	raw := rtuResponse(0x15, 558)
	for byteIdx := len(raw) - 2; byteIdx < len(raw); byteIdx++ {
		for bit := 0; bit < 8; bit++ {
			b := append([]byte(nil), raw...)
			b[byteIdx] ^= 1 << bit
			r, n := c.Decode(b)
			require.Equal(t, ChecksumMismatch, r.Outcome, "byte=%d bit=%d", byteIdx, bit)
			require.True(t, errors.Is(r.Err, ErrChecksumMismatch))
			require.Equal(t, len(raw), n)
		}
	}
}

func TestT6713_DecodeMalformed(t *testing.T) {
	c := NewT6713(0x15)
	good := rtuResponse(0x15, 558)

	for _, test := range []struct {
		name     string
		in       []byte
		consumed int
	}{
		{
			name:     "wrong address, resync on next marker",
			in:       append([]byte{0x42, 0x00}, good...),
			consumed: 2,
		},
		{
			name:     "no marker anywhere",
			in:       []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06},
			consumed: 6,
		},
		{
			name:     "unexpected function",
			in:       []byte{0x15, 0x03, 0x02, 0x00, 0x00, 0x00, 0x00},
			consumed: 7,
		},
		{
			name:     "odd byte count",
			in:       []byte{0x15, 0x04, 0x03, 0x00, 0x15, 0x00, 0x00},
			consumed: 4,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			r, n := c.Decode(test.in)
			require.Equal(t, Malformed, r.Outcome)
			assert.True(t, errors.Is(r.Err, ErrMalformed))
			assert.Equal(t, test.consumed, n)

			// the remainder decodes on its own when it holds a frame
			if test.consumed < len(test.in) && test.in[test.consumed] == 0x15 && len(test.in[test.consumed:]) == len(good) {
				r2, _ := c.Decode(test.in[test.consumed:])
				assert.Equal(t, OK, r2.Outcome)
			}
		})
	}
}

func TestT6713_DecodeException(t *testing.T) {
	c := NewT6713(0x15)
	b := []byte{0x15, 0x84, 0x02}
	b = binary.LittleEndian.AppendUint16(b, CRC16(b))

	r, n := c.Decode(b)
	require.Equal(t, Malformed, r.Outcome)
	assert.Equal(t, 5, n)

	var ex *ExceptionError
	require.True(t, errors.As(r.Err, &ex))
	assert.Equal(t, byte(0x84), ex.Function)
	assert.Equal(t, byte(0x02), ex.Code)
	assert.True(t, errors.Is(r.Err, ErrMalformed))

	b[4] ^= 0x01
	r, _ = c.Decode(b)
	assert.Equal(t, ChecksumMismatch, r.Outcome)
}

func TestT6713_ResponseDoesNotAliasInput(t *testing.T) {
	c := NewT6713(0x15)
	raw := rtuResponse(0x15, 558)
	r, _ := c.Decode(raw)
	raw[3], raw[4] = 0, 0
	ppm, err := c.PPM(r)
	require.NoError(t, err)
	assert.Equal(t, uint16(558), ppm)
}

func TestNew(t *testing.T) {
	c, err := New("", 0)
	require.NoError(t, err)
	assert.Equal(t, ProtocolT6713, c.Name())
	assert.Equal(t, byte(0x15), c.ReadCommand().Address)

	c, err = New(ProtocolWinsen, 0)
	require.NoError(t, err)
	assert.Equal(t, ProtocolWinsen, c.Name())
	assert.Equal(t, byte(0x01), c.ReadCommand().Address)

	_, err = New("mhz14", 0)
	assert.Error(t, err)
}
