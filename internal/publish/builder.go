// internal/publish/builder.go
package publish

import (
	"errors"
	"time"

	cfg "github.com/tamzrod/co2-poller/internal/config"
	pmodbus "github.com/tamzrod/co2-poller/internal/publish/modbus"
)

// Clients maps a Modbus endpoint to its shared client.
type Clients map[string]endpointClient

// BuildEndpointClients creates one TCP client per unique mirror endpoint.
// The longest timeout configured for an endpoint wins.
func BuildEndpointClients(sensors []cfg.SensorConfig) (Clients, func() error, error) {
	timeouts := map[string]time.Duration{}
	var order []string
	for _, s := range sensors {
		m := s.Publish.Modbus
		if m == nil {
			continue
		}
		if _, seen := timeouts[m.Endpoint]; !seen {
			order = append(order, m.Endpoint)
			timeouts[m.Endpoint] = 0
		}
		if d := time.Duration(m.TimeoutMs) * time.Millisecond; d > timeouts[m.Endpoint] {
			timeouts[m.Endpoint] = d
		}
	}

	clients := make(Clients)
	var closers []func() error

	closeAll := func() error {
		var last error
		for _, fn := range closers {
			if err := fn(); err != nil {
				last = err
			}
		}
		return last
	}

	for _, endpoint := range order {
		c, err := pmodbus.NewEndpointClient(pmodbus.Config{
			Endpoint:    endpoint,
			Timeout:     timeouts[endpoint],
			IdleTimeout: time.Minute,
		})
		if err != nil {
			_ = closeAll()
			return nil, nil, err
		}
		clients[endpoint] = c
		closers = append(closers, c.Close)
	}

	return clients, closeAll, nil
}

// Build assembles the sinks one sensor publishes to.
// Assumes config has already passed Validate and Normalize.
// broker may be nil when no sensor uses MQTT.
func Build(s cfg.SensorConfig, broker *Broker, clients Clients) (*Fanout, error) {
	if s.ID == "" {
		return nil, errors.New("publish: sensor id required")
	}

	f := &Fanout{}

	if s.Publish.LogEnabled() {
		f.Add("log", Log{Sensor: s.ID})
	}

	if t := s.Publish.MQTT; t != nil {
		if broker == nil {
			return nil, errors.New("publish: mqtt target without broker")
		}
		sink := broker.Sink(s.ID, t.Topic, t.Retain)
		f.Add("mqtt", sink)
		f.AddStatus("mqtt", sink)
	}

	if m := s.Publish.Modbus; m != nil {
		mirror, err := NewMirror(MirrorPlan{
			Sensor:     s.ID,
			Endpoint:   m.Endpoint,
			UnitID:     m.UnitID,
			Address:    m.Address,
			StatusSlot: m.StatusSlot,
			DeviceName: m.DeviceName,
		}, clients[m.Endpoint])
		if err != nil {
			return nil, err
		}
		f.Add("modbus", mirror)
		if mirror.StatusEnabled() {
			f.AddStatus("modbus", mirror)
		}
	}

	return f, nil
}
