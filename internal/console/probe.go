// internal/console/probe.go
package console

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/golang/glog"

	"github.com/tamzrod/co2-poller/internal/driver"
	"github.com/tamzrod/co2-poller/internal/frame"
)

// ErrNotFound is returned when an address scan finds no sensor.
var ErrNotFound = errors.New("console: no T6713 found")

// registerClient is the part of modbus.Client the probe uses (FC 4 only).
type registerClient interface {
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
}

// ProbeConfig configures a Modbus RTU probe. Framing is always 8N1.
type ProbeConfig struct {
	Port    string
	Baud    int
	Address byte
	Timeout time.Duration
}

// Probe talks to a T6713 over Modbus RTU for bench work:
// one-shot reads, firmware and status registers, address scans.
// It is not the polling driver and keeps no state beyond the address.
type Probe struct {
	mu      sync.Mutex
	handler *modbus.RTUClientHandler
	client  registerClient
	addr    byte
	setAddr func(byte)
}

// OpenProbe opens the serial port through goburrow's RTU handler.
func OpenProbe(cfg ProbeConfig) (*Probe, error) {
	if cfg.Port == "" {
		return nil, errors.New("console: port required")
	}
	if cfg.Baud == 0 {
		cfg.Baud = 19200
	}
	if cfg.Address == 0 {
		cfg.Address = frame.DefaultT6713Address
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}

	h := modbus.NewRTUClientHandler(cfg.Port)
	h.BaudRate = cfg.Baud
	h.DataBits = 8
	h.Parity = "N"
	h.StopBits = 1
	h.SlaveId = cfg.Address
	h.Timeout = cfg.Timeout

	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("console: open %s: %w", cfg.Port, err)
	}

	return &Probe{
		handler: h,
		client:  modbus.NewClient(h),
		addr:    cfg.Address,
		setAddr: func(a byte) { h.SlaveId = a },
	}, nil
}

func newProbe(c registerClient, addr byte) *Probe {
	return &Probe{client: c, addr: addr, setAddr: func(byte) {}}
}

// Close releases the serial port.
func (p *Probe) Close() error {
	if p.handler == nil {
		return nil
	}
	return p.handler.Close()
}

// Address returns the slave address requests go to.
func (p *Probe) Address() byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addr
}

// SetAddress changes the slave address for later requests.
func (p *Probe) SetAddress(a byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.addr = a
	p.setAddr(a)
}

func (p *Probe) read(reg uint16) (uint16, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	raw, err := p.client.ReadInputRegisters(reg, 1)
	if err != nil {
		return 0, fmt.Errorf("console: addr=0x%02x reg=0x%04x: %w", p.addr, reg, err)
	}
	if len(raw) < 2 {
		return 0, fmt.Errorf("console: addr=0x%02x reg=0x%04x: short payload %d", p.addr, reg, len(raw))
	}
	return uint16(raw[0])<<8 | uint16(raw[1]), nil
}

// PPM reads the gas concentration register once.
func (p *Probe) PPM() (driver.PPM, error) {
	v, err := p.read(frame.RegGasPPM)
	return driver.PPM(v), err
}

// Firmware reads the firmware revision register.
func (p *Probe) Firmware() (uint16, error) {
	return p.read(frame.RegFirmware)
}

// Status reads and decodes the status register.
func (p *Probe) Status() (Status, error) {
	v, err := p.read(frame.RegStatus)
	return Status(v), err
}

// Scan walks slave addresses from..to asking each for its firmware revision
// and stops at the first that answers. The probe keeps the found address;
// on failure the previous address is restored.
func (p *Probe) Scan(ctx context.Context, from, to byte) (byte, uint16, error) {
	prev := p.Address()

	for a := int(from); a <= int(to); a++ {
		if err := ctx.Err(); err != nil {
			p.SetAddress(prev)
			return 0, 0, err
		}
		p.SetAddress(byte(a))
		fw, err := p.Firmware()
		if err == nil {
			glog.Infof("scan: sensor at 0x%02x, firmware 0x%04x", a, fw)
			return byte(a), fw, nil
		}
		glog.V(1).Infof("scan: 0x%02x: %v", a, err)
	}

	p.SetAddress(prev)
	return 0, 0, ErrNotFound
}

// ---- STATUS ----

// Status is the T6713 status register.
type Status uint16

const (
	StatusError          Status = 1 << 0
	StatusFlashError     Status = 1 << 1
	StatusCalibration    Status = 1 << 2
	StatusRS232          Status = 1 << 8
	StatusRS485          Status = 1 << 9
	StatusI2C            Status = 1 << 10
	StatusWarmUp         Status = 1 << 11
	StatusSinglePointCal Status = 1 << 15
)

var statusNames = []struct {
	bit  Status
	name string
}{
	{StatusError, "error"},
	{StatusFlashError, "flash-error"},
	{StatusCalibration, "calibration-error"},
	{StatusRS232, "rs232"},
	{StatusRS485, "rs485"},
	{StatusI2C, "i2c"},
	{StatusWarmUp, "warm-up"},
	{StatusSinglePointCal, "single-point-cal"},
}

// Faulty reports whether any error bit is set.
func (s Status) Faulty() bool {
	return s&(StatusError|StatusFlashError|StatusCalibration) != 0
}

func (s Status) String() string {
	var parts []string
	for _, n := range statusNames {
		if s&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("0x%04x ok", uint16(s))
	}
	return fmt.Sprintf("0x%04x %s", uint16(s), strings.Join(parts, ","))
}
