package config

import (
	"time"
)

type Config interface {
	// Device is the backend kind passed to device.Open.
	Device() string
	// DeviceCommand is the helper command line for the exec backend.
	DeviceCommand() []string
	HealthCheckInterval() time.Duration
	FullReconnectInterval() time.Duration
	ReconnectOnStale() bool
	AllowNonRootAccess() bool
	MQTT() MQTT

	SetDevice(string)
	SetDeviceCommand([]string)
	SetHealthCheckInterval(time.Duration)
	SetFullReconnectInterval(time.Duration)
	SetReconnectOnStale(bool)
	SetAllowNonRootAccess(bool)

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}

// MQTT configures the optional MQTT publisher. An empty Broker disables it.
type MQTT struct {
	Broker      string `json:"broker,omitempty"`
	TopicPrefix string `json:"topicPrefix,omitempty"`
	Retain      bool   `json:"retain"`
}

// Enabled reports whether a broker URL is configured.
func (m MQTT) Enabled() bool {
	return m.Broker != ""
}
