// internal/config/config.go
package config

type Config struct {
	Sensors []SensorConfig `yaml:"sensors"`

	// Shared broker for every sensor that publishes over MQTT (optional)
	MQTT *MQTTConfig `yaml:"mqtt"`
}

// ---- SENSOR ----

type SensorConfig struct {
	ID       string       `yaml:"id"`
	Protocol string       `yaml:"protocol"` // t6713 | winsen
	Serial   SerialConfig `yaml:"serial"`

	// Bus address; 0 means the protocol default
	Address uint8 `yaml:"address"`

	TimeoutMs      int `yaml:"timeout_ms"`
	Attempts       int `yaml:"attempts"`
	RetryDelayMs   int `yaml:"retry_delay_ms"`
	FaultThreshold int `yaml:"fault_threshold"`
	WarmupMs       int `yaml:"warmup_ms"`

	Poll    PollConfig    `yaml:"poll"`
	Publish PublishConfig `yaml:"publish"`
}

// ---- SERIAL ----

type SerialConfig struct {
	Port     string `yaml:"port"`
	Backend  string `yaml:"backend"` // goburrow | tarm
	BaudRate int    `yaml:"baud_rate"`
}

// ---- POLL ----

type PollConfig struct {
	IntervalMs int `yaml:"interval_ms"`
}

// ---- PUBLISH ----

type PublishConfig struct {
	Log    *bool         `yaml:"log"` // nil => true
	MQTT   *MQTTTarget   `yaml:"mqtt"`
	Modbus *ModbusTarget `yaml:"modbus"`
}

type MQTTTarget struct {
	Topic  string `yaml:"topic"`
	Retain bool   `yaml:"retain"`
}

// ModbusTarget mirrors readings into holding registers of a Modbus TCP server.
type ModbusTarget struct {
	Endpoint  string `yaml:"endpoint"`
	UnitID    uint8  `yaml:"unit_id"`
	Address   uint16 `yaml:"address"` // first register of the reading block
	TimeoutMs int    `yaml:"timeout_ms"`

	// Device status block (optional, opt-in)
	StatusSlot *uint16 `yaml:"status_slot"`
	DeviceName string  `yaml:"device_name"`
}

// ---- MQTT BROKER ----

type MQTTConfig struct {
	URL       string `yaml:"url"`       // tcp://host:1883/prefix/?client-id=x
	ClientID  string `yaml:"client_id"` // empty => derived from machine id
	QoS       byte   `yaml:"qos"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// LogEnabled reports whether readings go to the log sink.
func (p PublishConfig) LogEnabled() bool {
	return p.Log == nil || *p.Log
}
