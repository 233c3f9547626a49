// internal/publish/publish.go
package publish

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang/glog"

	"github.com/tamzrod/co2-poller/internal/driver"
	"github.com/tamzrod/co2-poller/internal/status"
)

// StatusWriter is the delivery-only contract for sensor status.
// It receives a snapshot and writes it verbatim.
// No logic, no interpretation.
type StatusWriter interface {
	WriteStatus(s status.Snapshot) error
}

// ---- LOG ----

// Log writes readings through glog.
type Log struct {
	Sensor string
}

// Publish implements driver.Publisher.
func (l Log) Publish(r driver.Reading) error {
	if !r.Valid {
		glog.Warningf("%s: reading invalid (seq=%d)", l.Sensor, r.Seq)
		return nil
	}
	glog.Infof("%s: CO2 %s (seq=%d)", l.Sensor, r.PPM, r.Seq)
	return nil
}

// ---- FANOUT ----

type namedPublisher struct {
	name string
	pub  driver.Publisher
}

type namedStatus struct {
	name string
	sw   StatusWriter
}

// Fanout delivers every reading and snapshot to all sinks.
// A failing sink never blocks the others; errors are joined.
type Fanout struct {
	pubs   []namedPublisher
	status []namedStatus
}

// Add registers a reading sink.
func (f *Fanout) Add(name string, p driver.Publisher) {
	f.pubs = append(f.pubs, namedPublisher{name: name, pub: p})
}

// AddStatus registers a status sink.
func (f *Fanout) AddStatus(name string, sw StatusWriter) {
	f.status = append(f.status, namedStatus{name: name, sw: sw})
}

// Len returns the number of reading sinks.
func (f *Fanout) Len() int { return len(f.pubs) }

// StatusEnabled reports whether any status sink is registered.
func (f *Fanout) StatusEnabled() bool { return len(f.status) > 0 }

// Publish implements driver.Publisher.
func (f *Fanout) Publish(r driver.Reading) error {
	var errs []string
	for _, p := range f.pubs {
		if err := p.pub.Publish(r); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", p.name, err))
		}
	}
	if len(errs) > 0 {
		return errors.New("publish: " + strings.Join(errs, " | "))
	}
	return nil
}

// WriteStatus implements StatusWriter.
func (f *Fanout) WriteStatus(s status.Snapshot) error {
	var errs []string
	for _, w := range f.status {
		if err := w.sw.WriteStatus(s); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", w.name, err))
		}
	}
	if len(errs) > 0 {
		return errors.New("status: " + strings.Join(errs, " | "))
	}
	return nil
}
