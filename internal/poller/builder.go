// internal/poller/builder.go
package poller

import (
	"time"

	"periph.io/x/conn/v3/physic"

	cfg "github.com/tamzrod/co2-poller/internal/config"
	"github.com/tamzrod/co2-poller/internal/driver"
	"github.com/tamzrod/co2-poller/internal/frame"
	"github.com/tamzrod/co2-poller/internal/transport"
)

// Build opens the sensor's serial port and wires codec, driver and poller.
// The driver owns the port: Driver.Teardown closes it.
// Expects a validated, normalized SensorConfig.
func Build(s cfg.SensorConfig, pub driver.Publisher, opts ...driver.Option) (*Poller, *driver.Driver, error) {
	port, err := transport.Open(TransportConfig(s))
	if err != nil {
		return nil, nil, err
	}

	p, d, err := BuildWith(s, port, pub, opts...)
	if err != nil {
		_ = port.Close()
		return nil, nil, err
	}
	return p, d, nil
}

// BuildWith wires a poller around an already open transport.
func BuildWith(s cfg.SensorConfig, tr transport.Transport, pub driver.Publisher, opts ...driver.Option) (*Poller, *driver.Driver, error) {
	codec, err := frame.New(s.Protocol, s.Address)
	if err != nil {
		return nil, nil, err
	}

	d, err := driver.New(DriverConfig(s), codec, tr, pub, opts...)
	if err != nil {
		return nil, nil, err
	}

	p, err := New(
		Config{
			ID:        s.ID,
			Interval:  d.Interval(),
			Immediate: true,
		},
		d,
	)
	if err != nil {
		return nil, nil, err
	}
	return p, d, nil
}

// DriverConfig maps the YAML sensor section onto the driver runtime config.
func DriverConfig(s cfg.SensorConfig) driver.Config {
	return driver.Config{
		ID:              s.ID,
		Interval:        ms(s.Poll.IntervalMs),
		Address:         s.Address,
		WarmUp:          ms(s.WarmupMs),
		ResponseTimeout: ms(s.TimeoutMs),
		Attempts:        s.Attempts,
		RetryDelay:      ms(s.RetryDelayMs),
		FaultThreshold:  s.FaultThreshold,
	}
}

// TransportConfig maps the YAML serial section onto the transport config.
func TransportConfig(s cfg.SensorConfig) transport.Config {
	return transport.Config{
		Port:    s.Serial.Port,
		Backend: s.Serial.Backend,
		Baud:    physic.Frequency(s.Serial.BaudRate) * physic.Hertz,
	}
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
