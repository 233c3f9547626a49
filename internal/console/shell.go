// internal/console/shell.go
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	pmodbus "github.com/tamzrod/co2-poller/internal/publish/modbus"
	"github.com/tamzrod/co2-poller/internal/status"
)

const (
	probeKey   = "$probe"
	jsonKey    = "$json"
	scanBudget = 5 * time.Minute
)

// Shell is the ishell-backed bench console.
type Shell struct {
	Interactive bool
	Shell       *ishell.Shell
}

// New creates a shell bound to a probe.
func New(p *Probe, interactive, outputJSON bool) *Shell {
	s := &Shell{
		Interactive: interactive,
		Shell:       ishell.New(),
	}
	s.Shell.Set(probeKey, p)
	s.Shell.Set(jsonKey, outputJSON)
	s.Shell.SetPrompt(fmt.Sprintf("[0x%02x] > ", p.Address()))
	for _, cmd := range Commands() {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// Run processes args as one command, or starts the interactive loop.
func (s *Shell) Run(args ...string) error {
	if len(args) > 0 {
		return s.Shell.Process(args...)
	}
	if !s.Interactive {
		return fmt.Errorf("console: command expected")
	}
	s.Shell.Run()
	return nil
}

func probeFrom(c *ishell.Context) *Probe {
	return c.Get(probeKey).(*Probe)
}

func printResult(c *ishell.Context, v interface{}, text string) {
	if asJSON, _ := c.Get(jsonKey).(bool); asJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Println(text)
}

func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("bad address %q: %w", s, err)
	}
	return byte(v), nil
}

// Commands returns the console command set.
func Commands() []*ishell.Cmd {
	return []*ishell.Cmd{
		&PPMCmd,
		&FirmwareCmd,
		&StatusCmd,
		&ScanCmd,
		&AddrCmd,
		&MirrorCmd,
	}
}

var (
	// PPMCmd reads the gas concentration once.
	PPMCmd = ishell.Cmd{
		Name:    "ppm",
		Aliases: []string{"co2"},
		Help:    "read CO2 concentration once",
		Func: func(c *ishell.Context) {
			ppm, err := probeFrom(c).PPM()
			if err != nil {
				c.Err(err)
				return
			}
			printResult(c, map[string]uint16{"ppm": uint16(ppm)}, ppm.String())
		},
	}

	// FirmwareCmd reads the firmware revision.
	FirmwareCmd = ishell.Cmd{
		Name:    "firmware",
		Aliases: []string{"fw", "version"},
		Help:    "read firmware revision",
		Func: func(c *ishell.Context) {
			fw, err := probeFrom(c).Firmware()
			if err != nil {
				c.Err(err)
				return
			}
			printResult(c, map[string]uint16{"firmware": fw}, fmt.Sprintf("firmware 0x%04x", fw))
		},
	}

	// StatusCmd reads and decodes the status register.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"st"},
		Help:    "read status register",
		Func: func(c *ishell.Context) {
			st, err := probeFrom(c).Status()
			if err != nil {
				c.Err(err)
				return
			}
			printResult(c, map[string]interface{}{"status": uint16(st), "faulty": st.Faulty()}, st.String())
		},
	}

	// ScanCmd searches the bus for a responding sensor.
	ScanCmd = ishell.Cmd{
		Name: "scan",
		Help: "[FROM] [TO] find the sensor address (default 1..247)",
		Func: func(c *ishell.Context) {
			from, to := byte(1), byte(247)
			var err error
			if len(c.Args) > 0 {
				if from, err = parseByte(c.Args[0]); err != nil {
					c.Err(err)
					return
				}
			}
			if len(c.Args) > 1 {
				if to, err = parseByte(c.Args[1]); err != nil {
					c.Err(err)
					return
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), scanBudget)
			defer cancel()

			p := probeFrom(c)
			addr, fw, err := p.Scan(ctx, from, to)
			if err != nil {
				c.Err(err)
				return
			}
			c.SetPrompt(fmt.Sprintf("[0x%02x] > ", addr))
			printResult(c, map[string]uint16{"address": uint16(addr), "firmware": fw},
				fmt.Sprintf("found at 0x%02x, firmware 0x%04x", addr, fw))
		},
	}

	// AddrCmd shows or sets the slave address.
	AddrCmd = ishell.Cmd{
		Name: "addr",
		Help: "[ADDRESS] show or set the slave address",
		Func: func(c *ishell.Context) {
			p := probeFrom(c)
			if len(c.Args) > 0 {
				a, err := parseByte(c.Args[0])
				if err != nil {
					c.Err(err)
					return
				}
				p.SetAddress(a)
				c.SetPrompt(fmt.Sprintf("[0x%02x] > ", a))
			}
			printResult(c, map[string]uint16{"address": uint16(p.Address())}, fmt.Sprintf("0x%02x", p.Address()))
		},
	}

	// MirrorCmd reads a reading block back from a Modbus TCP mirror.
	MirrorCmd = ishell.Cmd{
		Name: "mirror",
		Help: "ENDPOINT UNIT_ID ADDRESS read a mirrored reading block",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 3 {
				c.Err(fmt.Errorf("usage: mirror ENDPOINT UNIT_ID ADDRESS"))
				return
			}
			unit, err := parseByte(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			addr, err := strconv.ParseUint(c.Args[2], 0, 16)
			if err != nil {
				c.Err(fmt.Errorf("bad register %q: %w", c.Args[2], err))
				return
			}

			cli, err := pmodbus.NewEndpointClient(pmodbus.Config{Endpoint: c.Args[0], Timeout: time.Second})
			if err != nil {
				c.Err(err)
				return
			}
			defer cli.Close()

			regs, err := cli.ReadRegisters(unit, uint16(addr), status.ReadingBlockSize)
			if err != nil {
				c.Err(err)
				return
			}
			m := DecodeReadingBlock(regs)
			printResult(c, m, fmt.Sprintf("ppm=%d valid=%t seq=%d", m.PPM, m.Valid, m.Seq))
		},
	}
)

// MirroredReading is a reading block read back from registers.
type MirroredReading struct {
	PPM   uint16 `json:"ppm"`
	Valid bool   `json:"valid"`
	Seq   uint32 `json:"seq"`
}

// DecodeReadingBlock is the inverse of status.EncodeReading (seq truncated to 32 bits).
func DecodeReadingBlock(regs []uint16) MirroredReading {
	if len(regs) < status.ReadingBlockSize {
		return MirroredReading{}
	}
	return MirroredReading{
		PPM:   regs[status.RegPPM],
		Valid: regs[status.RegValid] != 0,
		Seq:   uint32(regs[status.RegSeqHi])<<16 | uint32(regs[status.RegSeqLo]),
	}
}
