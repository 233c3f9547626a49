// internal/publish/publish_test.go
package publish

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tamzrod/co2-poller/internal/config"
	"github.com/tamzrod/co2-poller/internal/driver"
	"github.com/tamzrod/co2-poller/internal/status"
)

// ---- fake mqtt ----

type fakeToken struct {
	done bool
	err  error
}

func (t fakeToken) WaitTimeout(time.Duration) bool { return t.done }
func (t fakeToken) Error() error                   { return t.err }

type pubCall struct {
	topic   string
	qos     byte
	retain  bool
	payload []byte
}

type fakePublisher struct {
	calls []pubCall
	tok   fakeToken
}

func (f *fakePublisher) Publish(topic string, qos byte, retain bool, payload []byte) token {
	f.calls = append(f.calls, pubCall{topic, qos, retain, payload})
	return f.tok
}

func fakeBroker(prefix string) (*Broker, *fakePublisher) {
	fp := &fakePublisher{tok: fakeToken{done: true}}
	return &Broker{pub: fp, TopicPrefix: prefix, QoS: 1, Timeout: time.Second}, fp
}

// ---- tests ----

func TestFanout_JoinsErrors(t *testing.T) {
	var got []driver.Reading
	f := &Fanout{}
	f.Add("ok", driver.PublisherFunc(func(r driver.Reading) error {
		got = append(got, r)
		return nil
	}))
	f.Add("bad1", driver.PublisherFunc(func(driver.Reading) error { return errors.New("down") }))
	f.Add("bad2", driver.PublisherFunc(func(driver.Reading) error { return errors.New("refused") }))

	err := f.Publish(driver.Reading{PPM: 600, Valid: true})
	if err == nil {
		t.Fatalf("expected joined error")
	}
	if !strings.Contains(err.Error(), "bad1: down | bad2: refused") {
		t.Fatalf("unexpected error text %q", err)
	}
	if len(got) != 1 {
		t.Fatalf("healthy sink must still receive the reading")
	}
}

func TestLog_NeverFails(t *testing.T) {
	l := Log{Sensor: "s1"}
	if err := l.Publish(driver.Reading{PPM: 420, Seq: 1, Valid: true}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := l.Publish(driver.Reading{Seq: 2}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestMQTT_PublishReading(t *testing.T) {
	b, fp := fakeBroker("home/")
	sink := b.Sink("office", "co2/office", true)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if err := sink.Publish(driver.Reading{PPM: 558, Seq: 3, At: at, Valid: true}); err != nil {
		t.Fatalf("publish err=%v", err)
	}

	if len(fp.calls) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(fp.calls))
	}
	c := fp.calls[0]
	if c.topic != "home/co2/office" || !c.retain || c.qos != 1 {
		t.Fatalf("unexpected publish %+v", c)
	}

	var msg ReadingMessage
	if err := json.Unmarshal(c.payload, &msg); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if msg.Sensor != "office" || msg.PPM != 558 || !msg.Valid || msg.Seq != 3 || !msg.At.Equal(at) {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestMQTT_StatusRetained(t *testing.T) {
	b, fp := fakeBroker("")
	sink := b.Sink("lab", "co2/lab", false)

	err := sink.WriteStatus(status.Snapshot{Health: status.HealthError, LastErrorCode: 2, State: uint16(driver.Faulted)})
	if err != nil {
		t.Fatalf("status err=%v", err)
	}
	c := fp.calls[0]
	if c.topic != "co2/lab/status" || !c.retain {
		t.Fatalf("unexpected publish %+v", c)
	}
	if !strings.Contains(string(c.payload), `"state":"faulted"`) {
		t.Fatalf("payload %s", c.payload)
	}
}

func TestMQTT_TimeoutAndError(t *testing.T) {
	b, fp := fakeBroker("")
	sink := b.Sink("s", "t", false)

	fp.tok = fakeToken{done: false}
	if err := sink.Publish(driver.Reading{}); err == nil {
		t.Fatalf("expected timeout error")
	}

	fp.tok = fakeToken{done: true, err: errors.New("not connected")}
	if err := sink.Publish(driver.Reading{}); err == nil {
		t.Fatalf("expected token error")
	}
}

func TestClientOptionsFromURL(t *testing.T) {
	opts, prefix, err := ClientOptionsFromURL("mqtt://user:pw@broker:1883/site/floor1/?client-id=abc")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if prefix != "site/floor1/" {
		t.Fatalf("prefix=%q", prefix)
	}
	if opts.ClientID != "abc" || opts.Username != "user" || opts.Password != "pw" {
		t.Fatalf("unexpected options %+v", opts)
	}
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://broker:1883" {
		t.Fatalf("servers=%v", opts.Servers)
	}
}

func TestBuild_Sinks(t *testing.T) {
	b, _ := fakeBroker("")
	cli := &fakeEndpointClient{}

	s := config.SensorConfig{
		ID: "office",
		Publish: config.PublishConfig{
			MQTT:   &config.MQTTTarget{Topic: "co2/office"},
			Modbus: &config.ModbusTarget{Endpoint: "ep1", StatusSlot: slotPtr(1)},
		},
	}

	f, err := Build(s, b, Clients{"ep1": cli})
	if err != nil {
		t.Fatalf("Build err=%v", err)
	}
	if f.Len() != 3 || !f.StatusEnabled() {
		t.Fatalf("expected log+mqtt+modbus with status, got %d sinks", f.Len())
	}

	off := false
	s.Publish.Log = &off
	s.Publish.Modbus.StatusSlot = nil
	s.Publish.MQTT = nil
	f, err = Build(s, nil, Clients{"ep1": cli})
	if err != nil {
		t.Fatalf("Build err=%v", err)
	}
	if f.Len() != 1 || f.StatusEnabled() {
		t.Fatalf("expected modbus only, got %d sinks", f.Len())
	}
}

func TestBuild_MissingEndpointClient(t *testing.T) {
	s := config.SensorConfig{
		ID:      "office",
		Publish: config.PublishConfig{Modbus: &config.ModbusTarget{Endpoint: "ep9"}},
	}
	if _, err := Build(s, nil, Clients{}); err == nil {
		t.Fatalf("expected error for missing client")
	}
}
