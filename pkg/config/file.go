package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/hxstat/pkg/utils/ptr"
)

const (
	DefaultDevice                = "exec"
	DefaultHealthCheckInterval   = 30 * time.Second
	DefaultFullReconnectInterval = 5 * time.Minute
	DefaultTopicPrefix           = "hxstat"

	// MinInterval is the shortest accepted health check or reconnect interval.
	MinInterval = time.Second
)

var (
	defaultFileConfig = &RawFileConfig{
		Device:                ptr.To(DefaultDevice),
		DeviceCommand:         []string{"hxhelper", "--json"},
		HealthCheckInterval:   ptr.To(Duration(DefaultHealthCheckInterval)),
		FullReconnectInterval: ptr.To(Duration(DefaultFullReconnectInterval)),
		// Reconnecting as soon as the headset goes quiet is disruptive for
		// headsets that only report on change, so it is opt-in.
		ReconnectOnStale:   ptr.To(false),
		AllowNonRootAccess: ptr.To(false),
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	return &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}
}

type RawFileConfig struct {
	Device                *string   `json:"device,omitempty"`
	DeviceCommand         []string  `json:"deviceCommand,omitempty"`
	HealthCheckInterval   *Duration `json:"healthCheckInterval,omitempty"`
	FullReconnectInterval *Duration `json:"fullReconnectInterval,omitempty"`
	ReconnectOnStale      *bool     `json:"reconnectOnStale,omitempty"`
	AllowNonRootAccess    *bool     `json:"allowNonRootAccess,omitempty"`
	MQTT                  *MQTT     `json:"mqtt,omitempty"`
}

// NewRawFileConfigFromConfig returns the fully resolved form of c, defaults
// included. The daemon serves it on /config.
func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	m := c.MQTT()
	return &RawFileConfig{
		Device:                ptr.To(c.Device()),
		DeviceCommand:         c.DeviceCommand(),
		HealthCheckInterval:   ptr.To(Duration(c.HealthCheckInterval())),
		FullReconnectInterval: ptr.To(Duration(c.FullReconnectInterval())),
		ReconnectOnStale:      ptr.To(c.ReconnectOnStale()),
		AllowNonRootAccess:    ptr.To(c.AllowNonRootAccess()),
		MQTT:                  &m,
	}, nil
}

// read runs fn with the read lock held.
func (f *File) read(fn func(c *RawFileConfig)) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	fn(f.c)
}

// write runs fn with the write lock held.
func (f *File) write(fn func(c *RawFileConfig)) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.c)
}

func (f *File) Device() string {
	var v string
	f.read(func(c *RawFileConfig) {
		v = ptr.Deref(c.Device, *defaultFileConfig.Device)
	})
	return v
}

func (f *File) DeviceCommand() []string {
	var v []string
	f.read(func(c *RawFileConfig) {
		if len(c.DeviceCommand) > 0 {
			v = append(v, c.DeviceCommand...)
		} else {
			v = append(v, defaultFileConfig.DeviceCommand...)
		}
	})
	return v
}

func (f *File) HealthCheckInterval() time.Duration {
	var v Duration
	f.read(func(c *RawFileConfig) {
		v = ptr.Deref(c.HealthCheckInterval, *defaultFileConfig.HealthCheckInterval)
	})
	return time.Duration(v)
}

func (f *File) FullReconnectInterval() time.Duration {
	var v Duration
	f.read(func(c *RawFileConfig) {
		v = ptr.Deref(c.FullReconnectInterval, *defaultFileConfig.FullReconnectInterval)
	})
	return time.Duration(v)
}

func (f *File) ReconnectOnStale() bool {
	var v bool
	f.read(func(c *RawFileConfig) {
		v = ptr.Deref(c.ReconnectOnStale, *defaultFileConfig.ReconnectOnStale)
	})
	return v
}

func (f *File) AllowNonRootAccess() bool {
	var v bool
	f.read(func(c *RawFileConfig) {
		v = ptr.Deref(c.AllowNonRootAccess, *defaultFileConfig.AllowNonRootAccess)
	})
	return v
}

func (f *File) MQTT() MQTT {
	var v MQTT
	f.read(func(c *RawFileConfig) {
		if c.MQTT != nil {
			v = *c.MQTT
		}
	})
	if v.Enabled() && v.TopicPrefix == "" {
		v.TopicPrefix = DefaultTopicPrefix
	}
	return v
}

func (f *File) SetDevice(s string) {
	f.write(func(c *RawFileConfig) {
		c.Device = &s
	})
}

func (f *File) SetDeviceCommand(cmd []string) {
	f.write(func(c *RawFileConfig) {
		c.DeviceCommand = append([]string(nil), cmd...)
	})
}

func (f *File) SetHealthCheckInterval(d time.Duration) {
	if d <= 0 {
		panic("health check interval must be positive")
	}

	f.write(func(c *RawFileConfig) {
		c.HealthCheckInterval = ptr.To(Duration(d))
	})
}

func (f *File) SetFullReconnectInterval(d time.Duration) {
	if d <= 0 {
		panic("full reconnect interval must be positive")
	}

	f.write(func(c *RawFileConfig) {
		c.FullReconnectInterval = ptr.To(Duration(d))
	})
}

func (f *File) SetReconnectOnStale(b bool) {
	f.write(func(c *RawFileConfig) {
		c.ReconnectOnStale = &b
	})
}

func (f *File) SetAllowNonRootAccess(b bool) {
	f.write(func(c *RawFileConfig) {
		c.AllowNonRootAccess = &b
	})
}

func (c *RawFileConfig) validate() error {
	health := ptr.Deref(c.HealthCheckInterval, *defaultFileConfig.HealthCheckInterval)
	full := ptr.Deref(c.FullReconnectInterval, *defaultFileConfig.FullReconnectInterval)

	if time.Duration(health) < MinInterval {
		return pkgerrors.Errorf("healthCheckInterval must be at least %s, got %s", MinInterval, time.Duration(health))
	}
	if time.Duration(full) < MinInterval {
		return pkgerrors.Errorf("fullReconnectInterval must be at least %s, got %s", MinInterval, time.Duration(full))
	}
	if full <= health {
		return pkgerrors.Errorf("fullReconnectInterval (%s) must be longer than healthCheckInterval (%s)", time.Duration(full), time.Duration(health))
	}
	return nil
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// A missing file means defaults. f.c must never be nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// json.Decoder cannot tell an empty file from a broken one.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	if err := conf.validate(); err != nil {
		return pkgerrors.Wrapf(err, "invalid config in file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	m := f.MQTT()
	return logrus.Fields{
		"device":                f.Device(),
		"deviceCommand":         strings.Join(f.DeviceCommand(), " "),
		"healthCheckInterval":   f.HealthCheckInterval(),
		"fullReconnectInterval": f.FullReconnectInterval(),
		"reconnectOnStale":      f.ReconnectOnStale(),
		"allowNonRootAccess":    f.AllowNonRootAccess(),
		"mqttBroker":            m.Broker,
	}
}
