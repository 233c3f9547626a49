// cmd/co2d/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/golang/glog"

	"github.com/tamzrod/co2-poller/internal/config"
	"github.com/tamzrod/co2-poller/internal/driver"
	"github.com/tamzrod/co2-poller/internal/poller"
	"github.com/tamzrod/co2-poller/internal/publish"
	"github.com/tamzrod/co2-poller/internal/status"
)

var (
	cfgPath = flag.String("config", "", "config file (default $"+config.EnvPath+")")
	once    = flag.Bool("once", false, "poll every sensor once, print the readings and exit")
)

// unit is one sensor pipeline: driver, poller and its sinks.
type unit struct {
	id  string
	p   *poller.Poller
	d   *driver.Driver
	fan *publish.Fanout
}

func main() {
	flag.Parse()
	defer glog.Flush()

	if err := run(); err != nil {
		glog.Error(err)
		glog.Flush()
		os.Exit(1)
	}
}

func run() error {
	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	config.Normalize(cfg)

	for _, s := range cfg.Sensors {
		dumpConfig(s)
		if w := s.BaudWarning(); w != "" {
			glog.Warning(w)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --------------------
	// Shared sinks
	// --------------------

	var broker *publish.Broker
	if cfg.MQTT != nil && usesMQTT(cfg) {
		broker, err = publish.DialMQTT(
			cfg.MQTT.URL,
			cfg.MQTT.ClientID,
			cfg.MQTT.QoS,
			time.Duration(cfg.MQTT.TimeoutMs)*time.Millisecond,
		)
		if err != nil {
			return err
		}
		defer broker.Close()
	}

	clients, closeClients, err := publish.BuildEndpointClients(cfg.Sensors)
	if err != nil {
		return fmt.Errorf("modbus mirror clients failed: %w", err)
	}
	defer closeClients()

	// --------------------
	// Build per-sensor pipelines
	// --------------------

	var units []unit

	for _, s := range cfg.Sensors {
		fan, err := publish.Build(s, broker, clients)
		if err != nil {
			return fmt.Errorf("publish build failed (sensor=%s): %w", s.ID, err)
		}

		p, d, err := poller.Build(s, fan)
		if err != nil {
			return fmt.Errorf("poller build failed (sensor=%s): %w", s.ID, err)
		}
		defer func(id string) {
			if err := d.Teardown(); err != nil {
				glog.Warningf("%s: teardown: %v", id, err)
			}
		}(s.ID)

		units = append(units, unit{id: s.ID, p: p, d: d, fan: fan})
	}

	if *once {
		return pollOnce(ctx, units)
	}

	var wg sync.WaitGroup
	for _, u := range units {
		out := make(chan driver.CycleResult)

		// Orchestrator (runner-owned state + 1Hz seconds ticker)
		wg.Add(1)
		go func(u unit) {
			defer wg.Done()
			orchestrate(ctx, u.id, u.d, u.fan, out)
		}(u)

		// poller producer, after warm-up
		wg.Add(1)
		go func(u unit) {
			defer wg.Done()
			if err := u.d.Initialize(ctx); err != nil {
				glog.Warningf("%s: initialize: %v", u.id, err)
				return
			}
			glog.Infof("%s: polling every %s", u.id, u.d.Interval())
			u.p.Run(ctx, out)
			if n := u.p.Dropped(); n > 0 {
				glog.Infof("%s: %d firings dropped while busy", u.id, n)
			}
		}(u)
	}

	<-ctx.Done()
	glog.Info("shutting down")
	wg.Wait()
	return nil
}

// orchestrate folds cycle results into the status block and ticks
// seconds_in_error at 1 Hz while the sensor is unhealthy.
func orchestrate(ctx context.Context, id string, d *driver.Driver, fan *publish.Fanout, out <-chan driver.CycleResult) {
	tracker := status.NewTracker()

	write := func(what string) {
		if !fan.StatusEnabled() {
			return
		}
		if err := fan.WriteStatus(tracker.Snapshot()); err != nil {
			glog.Warningf("%s: status write failed on %s: %v", id, what, err)
		}
	}

	secTicker := time.NewTicker(time.Second)
	defer secTicker.Stop()

	// Full block write on start (identity re-assert).
	write("start")

	for {
		select {
		case <-ctx.Done():
			tracker.Observe(driver.CycleResult{State: d.State(), Err: driver.ErrClosed})
			write("shutdown")
			return

		case res := <-out:
			if res.Err != nil {
				glog.V(1).Infof("%s: cycle failed after %d attempts: %v", id, res.Attempts, res.Err)
			}
			if tracker.Observe(res) {
				write("cycle")
			}

		case <-secTicker.C:
			if tracker.Tick() {
				write("tick")
			}
		}
	}
}

func pollOnce(ctx context.Context, units []unit) error {
	failed := 0
	for _, u := range units {
		if err := u.d.Initialize(ctx); err != nil {
			return err
		}
		res := u.p.PollOnce(ctx)
		if res.Err != nil {
			failed++
			fmt.Printf("%s\terror\t%v\n", u.id, res.Err)
			continue
		}
		fmt.Printf("%s\t%d\tseq=%d\n", u.id, res.Reading.PPM, res.Reading.Seq)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sensors failed", failed, len(units))
	}
	return nil
}

func usesMQTT(cfg *config.Config) bool {
	for _, s := range cfg.Sensors {
		if s.Publish.MQTT != nil {
			return true
		}
	}
	return false
}

// dumpConfig logs the effective settings of one sensor.
func dumpConfig(s config.SensorConfig) {
	glog.Infof("sensor %q:", s.ID)
	glog.Infof("  protocol: %s, address: 0x%02x", s.Protocol, s.Address)
	glog.Infof("  serial: %s (%s) %d 8N1", s.Serial.Port, s.Serial.Backend, s.Serial.BaudRate)
	glog.Infof("  interval: %dms, timeout: %dms, attempts: %d, retry delay: %dms",
		s.Poll.IntervalMs, s.TimeoutMs, s.Attempts, s.RetryDelayMs)
	glog.Infof("  fault threshold: %d, warm-up: %dms", s.FaultThreshold, s.WarmupMs)
	if t := s.Publish.MQTT; t != nil {
		glog.Infof("  mqtt: topic=%s retain=%t", t.Topic, t.Retain)
	}
	if m := s.Publish.Modbus; m != nil {
		slot := "off"
		if m.StatusSlot != nil {
			slot = fmt.Sprint(*m.StatusSlot)
		}
		glog.Infof("  modbus: %s unit=%d address=%d status_slot=%s name=%q",
			m.Endpoint, m.UnitID, m.Address, slot, m.DeviceName)
	}
}
