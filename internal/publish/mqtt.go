// internal/publish/mqtt.go
package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/denisbrodbeck/machineid"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/tamzrod/co2-poller/internal/driver"
	"github.com/tamzrod/co2-poller/internal/status"
)

// DefaultMQTTTimeout bounds every publish token wait.
const DefaultMQTTTimeout = 5 * time.Second

// token is the part of paho.Token the sinks wait on.
type token interface {
	WaitTimeout(time.Duration) bool
	Error() error
}

// publisher is the part of an MQTT client the sinks use.
type publisher interface {
	Publish(topic string, qos byte, retain bool, payload []byte) token
}

type pahoPublisher struct{ c paho.Client }

func (p pahoPublisher) Publish(topic string, qos byte, retain bool, payload []byte) token {
	return p.c.Publish(topic, qos, retain, payload)
}

// ---- BROKER ----

// Broker is one MQTT connection shared by every sensor sink.
type Broker struct {
	client      paho.Client
	pub         publisher
	TopicPrefix string
	QoS         byte
	Timeout     time.Duration
}

// ClientOptionsFromURL creates ClientOptions from a broker URL.
// The URL path becomes the topic prefix; ?client-id= sets the client id.
func ClientOptionsFromURL(serverURL string) (*paho.ClientOptions, string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, "", err
	}
	var server string
	if u.Scheme == "" || u.Scheme == "mqtt" {
		server = "tcp"
	} else {
		server = u.Scheme
	}
	server += "://" + u.Host

	topicPrefix := strings.TrimPrefix(u.Path, "/")

	opts := paho.NewClientOptions()
	opts.AddBroker(server).
		SetAutoReconnect(true).
		SetCleanSession(true)
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pwd, ok := u.User.Password(); ok {
			opts.SetPassword(pwd)
		}
	}

	if clientID := u.Query().Get("client-id"); clientID != "" {
		opts.SetClientID(clientID)
	}

	return opts, topicPrefix, nil
}

// DefaultClientID derives a stable client id from the host's machine id.
func DefaultClientID() string {
	id, err := machineid.ProtectedID("co2-poller")
	if err != nil {
		glog.Warningf("mqtt: machine id unavailable: %v", err)
		return fmt.Sprintf("co2-%d", time.Now().UnixNano())
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return "co2-" + id
}

// DialMQTT connects to the broker and waits up to timeout for the CONNACK.
// clientID overrides the URL's client-id; both empty uses DefaultClientID.
func DialMQTT(brokerURL, clientID string, qos byte, timeout time.Duration) (*Broker, error) {
	opts, prefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("mqtt: %w", err)
	}
	if clientID != "" {
		opts.SetClientID(clientID)
	} else if opts.ClientID == "" {
		opts.SetClientID(DefaultClientID())
	}
	if timeout <= 0 {
		timeout = DefaultMQTTTimeout
	}
	opts.SetConnectTimeout(timeout)
	opts.SetOnConnectHandler(func(paho.Client) { glog.Info("mqtt: connected") })
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		glog.Warningf("mqtt: connection lost: %v", err)
	})

	c := paho.NewClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt: connect %s: timed out after %s", brokerURL, timeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect %s: %w", brokerURL, err)
	}

	return &Broker{
		client:      c,
		pub:         pahoPublisher{c},
		TopicPrefix: prefix,
		QoS:         qos,
		Timeout:     timeout,
	}, nil
}

// Close implements io.Closer.
func (b *Broker) Close() error {
	if b.client != nil {
		b.client.Disconnect(250)
	}
	return nil
}

// Sink returns a per-sensor sink publishing under topic.
func (b *Broker) Sink(sensor, topic string, retain bool) *MQTT {
	return &MQTT{
		broker: b,
		sensor: sensor,
		topic:  b.TopicPrefix + topic,
		retain: retain,
	}
}

func (b *Broker) send(topic string, retain bool, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("mqtt: %s: %w", topic, err)
	}

	if glog.V(2) {
		glog.Infof("PUB %q %s", topic, payload)
	}
	tok := b.pub.Publish(topic, b.QoS, retain, payload)
	if !tok.WaitTimeout(b.Timeout) {
		return fmt.Errorf("mqtt: %s: publish not acknowledged within %s", topic, b.Timeout)
	}
	return tok.Error()
}

// ---- SINK ----

// MQTT publishes readings as JSON on its topic and status on topic/status.
type MQTT struct {
	broker *Broker
	sensor string
	topic  string
	retain bool
}

// ReadingMessage is the JSON payload of one reading.
type ReadingMessage struct {
	Sensor string    `json:"sensor"`
	PPM    uint16    `json:"ppm"`
	Valid  bool      `json:"valid"`
	Seq    uint64    `json:"seq"`
	At     time.Time `json:"at"`
}

// StatusMessage is the JSON payload of one status snapshot.
type StatusMessage struct {
	Sensor         string `json:"sensor"`
	Health         uint16 `json:"health"`
	LastErrorCode  uint16 `json:"last_error_code"`
	SecondsInError uint16 `json:"seconds_in_error"`
	State          string `json:"state"`
	Failures       uint16 `json:"failures"`
}

// Topic returns the full reading topic, prefix included.
func (m *MQTT) Topic() string { return m.topic }

// Publish implements driver.Publisher.
func (m *MQTT) Publish(r driver.Reading) error {
	if m.broker == nil {
		return errors.New("mqtt: no broker")
	}
	return m.broker.send(m.topic, m.retain, ReadingMessage{
		Sensor: m.sensor,
		PPM:    uint16(r.PPM),
		Valid:  r.Valid,
		Seq:    r.Seq,
		At:     r.At.UTC(),
	})
}

// WriteStatus publishes a snapshot, always retained.
func (m *MQTT) WriteStatus(s status.Snapshot) error {
	if m.broker == nil {
		return errors.New("mqtt: no broker")
	}
	return m.broker.send(m.topic+"/status", true, StatusMessage{
		Sensor:         m.sensor,
		Health:         s.Health,
		LastErrorCode:  s.LastErrorCode,
		SecondsInError: s.SecondsInError,
		State:          driver.State(s.State).String(),
		Failures:       s.Failures,
	})
}
