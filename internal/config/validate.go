// internal/config/validate.go
package config

import (
	"errors"
	"fmt"

	"github.com/tamzrod/co2-poller/internal/frame"
	"github.com/tamzrod/co2-poller/internal/status"
	"github.com/tamzrod/co2-poller/internal/transport"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	type span struct {
		start  uint16
		end    uint16
		sensor string
		what   string
	}

	if cfg == nil {
		return errors.New("config: nil")
	}
	if len(cfg.Sensors) == 0 {
		return errors.New("config: at least one sensor required")
	}

	ids := make(map[string]struct{})
	// a serial port is owned by exactly one driver
	portOwner := make(map[string]string)

	for _, s := range cfg.Sensors {
		if s.ID == "" {
			return errors.New("sensor: id required")
		}
		if _, dup := ids[s.ID]; dup {
			return fmt.Errorf("sensor %q: duplicate id", s.ID)
		}
		ids[s.ID] = struct{}{}

		switch s.Protocol {
		case "", frame.ProtocolT6713, frame.ProtocolWinsen:
		default:
			return fmt.Errorf("sensor %q: unknown protocol %q", s.ID, s.Protocol)
		}

		// ------------------------------------------------------------
		// SERIAL
		// ------------------------------------------------------------

		if s.Serial.Port == "" {
			return fmt.Errorf("sensor %q: serial.port required", s.ID)
		}
		if prev, taken := portOwner[s.Serial.Port]; taken {
			return fmt.Errorf("serial port %s used by sensors %q and %q", s.Serial.Port, prev, s.ID)
		}
		portOwner[s.Serial.Port] = s.ID

		switch s.Serial.Backend {
		case "", transport.BackendGoburrow, transport.BackendTarm:
		default:
			return fmt.Errorf("sensor %q: unknown serial backend %q", s.ID, s.Serial.Backend)
		}
		if s.Serial.BaudRate < 0 {
			return fmt.Errorf("sensor %q: baud_rate must be >= 0", s.ID)
		}

		// ------------------------------------------------------------
		// TIMING
		// ------------------------------------------------------------

		for name, v := range map[string]int{
			"timeout_ms":       s.TimeoutMs,
			"attempts":         s.Attempts,
			"retry_delay_ms":   s.RetryDelayMs,
			"fault_threshold":  s.FaultThreshold,
			"warmup_ms":        s.WarmupMs,
			"poll.interval_ms": s.Poll.IntervalMs,
		} {
			if v < 0 {
				return fmt.Errorf("sensor %q: %s must be >= 0", s.ID, name)
			}
		}
		if s.Attempts > 10 {
			return fmt.Errorf("sensor %q: attempts %d exceeds 10", s.ID, s.Attempts)
		}
		if s.TimeoutMs > 0 && s.Poll.IntervalMs > 0 && s.TimeoutMs >= s.Poll.IntervalMs {
			return fmt.Errorf("sensor %q: timeout_ms must be shorter than poll.interval_ms", s.ID)
		}

		// ------------------------------------------------------------
		// PUBLISH TARGETS
		// ------------------------------------------------------------

		if s.Publish.MQTT != nil && (cfg.MQTT == nil || cfg.MQTT.URL == "") {
			return fmt.Errorf("sensor %q: publish.mqtt is set but no mqtt.url is configured", s.ID)
		}

		if m := s.Publish.Modbus; m != nil {
			if m.Endpoint == "" {
				return fmt.Errorf("sensor %q: publish.modbus.endpoint required", s.ID)
			}
			if m.TimeoutMs < 0 {
				return fmt.Errorf("sensor %q: publish.modbus.timeout_ms must be >= 0", s.ID)
			}
			// device_name sanity (ASCII only)
			for i := 0; i < len(m.DeviceName); i++ {
				if m.DeviceName[i] > 0x7F {
					return fmt.Errorf("sensor %q: device_name must contain ASCII characters only", s.ID)
				}
			}
			if m.DeviceName != "" && m.StatusSlot == nil {
				return fmt.Errorf("sensor %q: device_name is set but status_slot is not", s.ID)
			}
			if int(m.Address)+status.ReadingBlockSize > 0x10000 {
				return fmt.Errorf("sensor %q: reading block at %d exceeds register space", s.ID, m.Address)
			}
			if m.StatusSlot != nil && (int(*m.StatusSlot)+1)*status.SlotsPerDevice > 0x10000 {
				return fmt.Errorf("sensor %q: status_slot %d exceeds register space", s.ID, *m.StatusSlot)
			}
		}
	}

	if cfg.MQTT != nil && cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt: qos %d out of range 0..2", cfg.MQTT.QoS)
	}

	// ------------------------------------------------------------
	// MODBUS MIRROR GEOMETRY VALIDATION
	// ------------------------------------------------------------

	// key = endpoint | unit_id
	spans := make(map[string][]span)

	for _, s := range cfg.Sensors {
		m := s.Publish.Modbus
		if m == nil {
			continue
		}

		owned := []span{{
			start:  m.Address,
			end:    m.Address + status.ReadingBlockSize - 1,
			sensor: s.ID,
			what:   "reading block",
		}}
		if m.StatusSlot != nil {
			base := *m.StatusSlot * status.SlotsPerDevice
			owned = append(owned, span{
				start:  base,
				end:    base + status.SlotsPerDevice - 1,
				sensor: s.ID,
				what:   "status block",
			})
		}

		key := fmt.Sprintf("%s|%d", m.Endpoint, m.UnitID)
		for _, o := range owned {
			for _, e := range spans[key] {
				// overlap check (inclusive)
				if !(o.end < e.start || o.start > e.end) {
					return fmt.Errorf(
						"register overlap: endpoint=%s unit_id=%d %s of %q (%d-%d) overlaps %s of %q (%d-%d)",
						m.Endpoint, m.UnitID,
						o.what, o.sensor, o.start, o.end,
						e.what, e.sensor, e.start, e.end,
					)
				}
			}
			spans[key] = append(spans[key], o)
		}
	}

	return nil
}
