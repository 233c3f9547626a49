// internal/publish/mirror.go
package publish

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tamzrod/co2-poller/internal/driver"
	"github.com/tamzrod/co2-poller/internal/status"
)

// endpointClient is the exact contract the mirror uses.
type endpointClient interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}

// MirrorPlan places one sensor's blocks in a Modbus server's holding registers.
type MirrorPlan struct {
	Sensor   string
	Endpoint string
	UnitID   uint8
	Address  uint16 // first register of the reading block

	// Status block (optional, opt-in)
	StatusSlot *uint16
	DeviceName string
}

// Mirror writes readings and status snapshots into holding registers.
//
// Readings: the whole reading block per call.
// Status: full block re-assert on first write and after any failure,
// otherwise only the slots that changed.
type Mirror struct {
	plan MirrorPlan
	cli  endpointClient

	needFull bool
	last     status.Snapshot
	nameRegs []uint16
}

// NewMirror builds a mirror sink for one sensor.
func NewMirror(plan MirrorPlan, cli endpointClient) (*Mirror, error) {
	if cli == nil {
		return nil, fmt.Errorf("mirror: missing client for endpoint %s", plan.Endpoint)
	}
	return &Mirror{
		plan:     plan,
		cli:      cli,
		needFull: true,
		last:     status.Snapshot{Health: status.HealthUnknown},
		nameRegs: status.EncodeName(plan.DeviceName),
	}, nil
}

// StatusEnabled reports whether the plan opted into the status block.
func (m *Mirror) StatusEnabled() bool { return m.plan.StatusSlot != nil }

// Publish implements driver.Publisher.
func (m *Mirror) Publish(r driver.Reading) error {
	if err := m.cli.WriteRegisters(m.plan.UnitID, m.plan.Address, status.EncodeReading(r)); err != nil {
		return fmt.Errorf("mirror: reading seq=%d: %w", r.Seq, err)
	}
	return nil
}

// WriteStatus delivers a status snapshot into the status block.
// On any write failure, the next successful call will re-assert the full block.
func (m *Mirror) WriteStatus(s status.Snapshot) error {
	if m.plan.StatusSlot == nil {
		return errors.New("mirror: status disabled")
	}

	base := *m.plan.StatusSlot * status.SlotsPerDevice

	// ------------------------------------------------------------
	// Full block write (identity re-assert)
	// ------------------------------------------------------------
	if m.needFull {
		if err := m.cli.WriteRegisters(m.plan.UnitID, base, status.Encode(s, m.nameRegs)); err != nil {
			return fmt.Errorf("mirror: status full block write failed: %w", err)
		}
		m.needFull = false
		m.last = s
		return nil
	}

	var errs []string

	slots := []struct {
		name string
		slot uint16
		cur  *uint16
		want uint16
	}{
		{"health", status.SlotHealthCode, &m.last.Health, s.Health},
		{"last_error", status.SlotLastErrorCode, &m.last.LastErrorCode, s.LastErrorCode},
		{"seconds", status.SlotSecondsInError, &m.last.SecondsInError, s.SecondsInError},
		{"state", status.SlotDriverState, &m.last.State, s.State},
		{"failures", status.SlotFailures, &m.last.Failures, s.Failures},
	}

	for _, sl := range slots {
		if *sl.cur == sl.want {
			continue
		}
		if err := m.cli.WriteRegisters(m.plan.UnitID, base+sl.slot, []uint16{sl.want}); err != nil {
			errs = append(errs, fmt.Sprintf("slot%d %s write failed: %v", sl.slot, sl.name, err))
			continue
		}
		*sl.cur = sl.want
	}

	if len(errs) > 0 {
		// Any partial failure introduces doubt: re-assert on next success.
		m.needFull = true
		return errors.New("mirror: " + strings.Join(errs, " | "))
	}

	return nil
}
