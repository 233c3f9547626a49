// internal/console/probe_test.go
package console

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/co2-poller/internal/driver"
	"github.com/tamzrod/co2-poller/internal/frame"
	"github.com/tamzrod/co2-poller/internal/status"
)

// fakeSensor answers FC 4 reads for one address.
type fakeSensor struct {
	probe *Probe
	at    byte
	regs  map[uint16]uint16
	reads []byte // addresses asked
}

func (f *fakeSensor) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	a := f.probe.addr
	f.reads = append(f.reads, a)
	if a != f.at {
		return nil, errors.New("modbus: timeout")
	}
	v, ok := f.regs[address]
	if !ok {
		return nil, errors.New("modbus: exception '2' (illegal data address)")
	}
	return []byte{byte(v >> 8), byte(v)}, nil
}

func newFake(at byte) (*Probe, *fakeSensor) {
	f := &fakeSensor{
		at: at,
		regs: map[uint16]uint16{
			frame.RegGasPPM:   558,
			frame.RegFirmware: 0x0105,
			frame.RegStatus:   uint16(StatusRS485 | StatusWarmUp),
		},
	}
	p := newProbe(f, frame.DefaultT6713Address)
	f.probe = p
	return p, f
}

func TestProbe_Reads(t *testing.T) {
	p, _ := newFake(frame.DefaultT6713Address)

	ppm, err := p.PPM()
	require.NoError(t, err)
	assert.Equal(t, driver.PPM(558), ppm)

	fw, err := p.Firmware()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0105), fw)

	st, err := p.Status()
	require.NoError(t, err)
	assert.False(t, st.Faulty())
	assert.Equal(t, "0x0a00 rs485,warm-up", st.String())
}

func TestProbe_ReadError(t *testing.T) {
	p, _ := newFake(0x20)

	_, err := p.PPM()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "addr=0x15")
}

func TestProbe_ScanFindsSensor(t *testing.T) {
	p, f := newFake(0x05)

	addr, fw, err := p.Scan(context.Background(), 1, 247)
	require.NoError(t, err)
	assert.Equal(t, byte(0x05), addr)
	assert.Equal(t, uint16(0x0105), fw)
	assert.Equal(t, byte(0x05), p.Address())
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, f.reads)
}

func TestProbe_ScanNotFound(t *testing.T) {
	p, f := newFake(0xF0)

	_, _, err := p.Scan(context.Background(), 1, 10)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, f.reads, 10)
	assert.Equal(t, frame.DefaultT6713Address, p.Address(), "address restored after failed scan")
}

func TestProbe_ScanCancelled(t *testing.T) {
	p, _ := newFake(0xF0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := p.Scan(ctx, 1, 247)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStatus_Faulty(t *testing.T) {
	assert.True(t, (StatusError | StatusRS485).Faulty())
	assert.True(t, StatusCalibration.Faulty())
	assert.Equal(t, "0x0000 ok", Status(0).String())
}

func TestDecodeReadingBlock(t *testing.T) {
	regs := status.EncodeReading(driver.Reading{PPM: 812, Seq: 70000, Valid: true})
	m := DecodeReadingBlock(regs)
	assert.Equal(t, MirroredReading{PPM: 812, Valid: true, Seq: 70000}, m)

	assert.Equal(t, MirroredReading{}, DecodeReadingBlock(nil))
}
