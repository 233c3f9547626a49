// internal/config/normalize.go
package config

import (
	"fmt"

	"periph.io/x/conn/v3/physic"

	"github.com/tamzrod/co2-poller/internal/frame"
	"github.com/tamzrod/co2-poller/internal/status"
	"github.com/tamzrod/co2-poller/internal/transport"
)

// Defaults applied by Normalize. Values follow the T6713 datasheet.
const (
	DefaultTimeoutMs        = 1000
	DefaultAttempts         = 3
	DefaultRetryDelayMs     = 100
	DefaultFaultThreshold   = 5
	DefaultPollIntervalMs   = 60000
	DefaultModbusTimeoutMs  = 1000
	DefaultMQTTTimeoutMs    = 5000
	DefaultMQTTTopicPattern = "co2/%s"
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	for i := range cfg.Sensors {
		s := &cfg.Sensors[i]

		if s.Protocol == "" {
			s.Protocol = frame.ProtocolT6713
		}
		if s.Address == 0 {
			if c, err := frame.New(s.Protocol, 0); err == nil {
				s.Address = c.ReadCommand().Address
			}
		}

		// ------------------------------------------------------------
		// SERIAL
		// ------------------------------------------------------------

		if s.Serial.Backend == "" {
			s.Serial.Backend = transport.BackendGoburrow
		}
		if s.Serial.BaudRate == 0 {
			s.Serial.BaudRate = ProtocolBaud(s.Protocol)
		}

		// ------------------------------------------------------------
		// TIMING
		// ------------------------------------------------------------

		if s.TimeoutMs == 0 {
			s.TimeoutMs = DefaultTimeoutMs
		}
		if s.Attempts == 0 {
			s.Attempts = DefaultAttempts
		}
		if s.RetryDelayMs == 0 {
			s.RetryDelayMs = DefaultRetryDelayMs
		}
		if s.FaultThreshold == 0 {
			s.FaultThreshold = DefaultFaultThreshold
		}
		if s.Poll.IntervalMs == 0 {
			s.Poll.IntervalMs = DefaultPollIntervalMs
		}

		// ------------------------------------------------------------
		// PUBLISH TARGETS
		// ------------------------------------------------------------

		if t := s.Publish.MQTT; t != nil && t.Topic == "" {
			t.Topic = fmt.Sprintf(DefaultMQTTTopicPattern, s.ID)
		}

		if m := s.Publish.Modbus; m != nil {
			if m.TimeoutMs == 0 {
				m.TimeoutMs = DefaultModbusTimeoutMs
			}
			// ASCII already validated; truncate to the status block name slots
			if len(m.DeviceName) > status.DeviceNameMaxChars {
				m.DeviceName = m.DeviceName[:status.DeviceNameMaxChars]
			}
		}
	}

	if cfg.MQTT != nil && cfg.MQTT.TimeoutMs == 0 {
		cfg.MQTT.TimeoutMs = DefaultMQTTTimeoutMs
	}
}

// ProtocolBaud returns the documented line rate of a protocol, or 0 if unknown.
func ProtocolBaud(protocol string) int {
	c, err := frame.New(protocol, 0)
	if err != nil {
		return 0
	}
	return int(c.Baud() / physic.Hertz)
}

// BaudWarning describes a baud rate that differs from the protocol's
// documented rate. Empty when the settings agree.
func (s SensorConfig) BaudWarning() string {
	want := ProtocolBaud(s.Protocol)
	if want == 0 || s.Serial.BaudRate == 0 || s.Serial.BaudRate == want {
		return ""
	}
	return fmt.Sprintf("sensor %q: baud_rate %d, %s sensors talk at %d 8N1", s.ID, s.Serial.BaudRate, s.Protocol, want)
}
