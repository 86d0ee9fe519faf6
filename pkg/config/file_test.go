package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "hxstat.json")
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestFileDefaults(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.json") }},
		{"empty file", func(t *testing.T) string { return writeConfig(t, "  \n") }},
		{"empty object", func(t *testing.T) string { return writeConfig(t, "{}") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFile(tt.path(t))
			if err != nil {
				t.Fatal(err)
			}
			if f.Device() != DefaultDevice {
				t.Errorf("device = %s", f.Device())
			}
			if f.HealthCheckInterval() != DefaultHealthCheckInterval {
				t.Errorf("healthCheckInterval = %s", f.HealthCheckInterval())
			}
			if f.FullReconnectInterval() != DefaultFullReconnectInterval {
				t.Errorf("fullReconnectInterval = %s", f.FullReconnectInterval())
			}
			if f.ReconnectOnStale() || f.AllowNonRootAccess() {
				t.Errorf("booleans should default to false")
			}
			if f.MQTT().Enabled() {
				t.Errorf("mqtt should be disabled by default")
			}
			if len(f.DeviceCommand()) == 0 {
				t.Errorf("expected a default device command")
			}
		})
	}
}

func TestFileLoad(t *testing.T) {
	p := writeConfig(t, `{
  "device": "host",
  "deviceCommand": ["/usr/local/bin/hx", "-v"],
  "healthCheckInterval": "10s",
  "fullReconnectInterval": 60,
  "reconnectOnStale": true,
  "mqtt": {"broker": "tcp://localhost:1883"}
}`)

	f, err := NewFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if f.Device() != "host" {
		t.Errorf("device = %s", f.Device())
	}
	if got := f.DeviceCommand(); !reflect.DeepEqual(got, []string{"/usr/local/bin/hx", "-v"}) {
		t.Errorf("deviceCommand = %v", got)
	}
	if f.HealthCheckInterval() != 10*time.Second {
		t.Errorf("healthCheckInterval = %s", f.HealthCheckInterval())
	}
	if f.FullReconnectInterval() != time.Minute {
		t.Errorf("fullReconnectInterval = %s", f.FullReconnectInterval())
	}
	if !f.ReconnectOnStale() {
		t.Errorf("reconnectOnStale should be true")
	}
	m := f.MQTT()
	if !m.Enabled() || m.TopicPrefix != DefaultTopicPrefix {
		t.Errorf("unexpected mqtt config %+v", m)
	}
}

func TestFileLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"broken json", `{"device":`},
		{"bad duration", `{"healthCheckInterval": "soon"}`},
		{"negative duration", `{"fullReconnectInterval": "-1m"}`},
		{"zero duration", `{"healthCheckInterval": "0s"}`},
		{"below minimum", `{"healthCheckInterval": "500ms", "fullReconnectInterval": "1m"}`},
		{"fractional seconds below minimum", `{"healthCheckInterval": 0.2}`},
		{"full reconnect shorter than health check", `{"healthCheckInterval": "5m", "fullReconnectInterval": "30s"}`},
		{"full reconnect equal to health check", `{"healthCheckInterval": 60, "fullReconnectInterval": "1m"}`},
		{"full reconnect below default health check", `{"fullReconnectInterval": "10s"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFile(writeConfig(t, tt.content)); err == nil {
				t.Errorf("expected an error")
			}
		})
	}
}

func TestDurationNumbersAreSeconds(t *testing.T) {
	tests := []struct {
		content string
		want    time.Duration
	}{
		{`{"healthCheckInterval": 30}`, 30 * time.Second},
		{`{"healthCheckInterval": "45"}`, 45 * time.Second},
		{`{"healthCheckInterval": 1.5}`, 1500 * time.Millisecond},
		{`{"healthCheckInterval": "2m"}`, 2 * time.Minute},
	}

	for _, tt := range tests {
		f, err := NewFile(writeConfig(t, tt.content))
		if err != nil {
			t.Errorf("%s: %v", tt.content, err)
			continue
		}
		if got := f.HealthCheckInterval(); got != tt.want {
			t.Errorf("%s: healthCheckInterval = %s, want %s", tt.content, got, tt.want)
		}
	}
}

func TestFileSaveRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "hxstat.json")
	f := NewFileFromConfig(nil, p)

	f.SetDevice("mock")
	f.SetHealthCheckInterval(45 * time.Second)
	f.SetReconnectOnStale(true)
	f.SetAllowNonRootAccess(true)
	if err := f.Save(); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	// Unset keys stay out of the file so defaults can change later.
	if want := `"healthCheckInterval": "45s"`; !strings.Contains(string(b), want) {
		t.Errorf("expected %s in\n%s", want, b)
	}
	if strings.Contains(string(b), "fullReconnectInterval") {
		t.Errorf("unset key written to file:\n%s", b)
	}

	g, err := NewFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if g.Device() != "mock" || g.HealthCheckInterval() != 45*time.Second || !g.ReconnectOnStale() || !g.AllowNonRootAccess() {
		t.Errorf("unexpected reloaded config %v", g.LogrusFields())
	}
}

func TestResolvedConfig(t *testing.T) {
	raw, err := NewRawFileConfigFromConfig(NewFileFromConfig(nil, ""))
	if err != nil {
		t.Fatal(err)
	}
	if raw.Device == nil || raw.HealthCheckInterval == nil || raw.MQTT == nil {
		t.Fatalf("resolved config should have every field set: %+v", raw)
	}

	if _, err := NewRawFileConfigFromConfig(nil); err == nil {
		t.Fatalf("expected an error for a nil config")
	}
}
