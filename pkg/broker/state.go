package broker

import (
	"time"

	"github.com/charlie0129/hxstat/pkg/events"
)

// ConnectionState is the state of the single device connection.
type ConnectionState int

const (
	// Disconnected means no handle exists.
	Disconnected ConnectionState = iota
	// Connecting is transient while a handle is being opened.
	Connecting
	// Connected means a handle exists and raw handlers are registered. It
	// does not mean the device confirmed its presence.
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// healthState is the bookkeeping shared by the normalizer and the health
// monitor. Last-known power and mute are only used for inference.
type healthState struct {
	lastEvent     time.Time
	lastReconnect time.Time

	power *events.PowerState
	muted *bool

	// powerInferred is set while the last known power on came from a
	// connected event rather than an explicit power event.
	powerInferred bool
}

// track records the last known power and mute values carried by e.
func (h *healthState) track(e events.Event) {
	switch ev := e.(type) {
	case events.Power:
		s := ev.State
		h.power = &s
	case events.Muted:
		v := ev.Value
		h.muted = &v
	}
}

func (h *healthState) powerKnownOff() bool {
	return h.power != nil && *h.power == events.PowerOff
}

// idleSince returns the later of the last event and the last reconnect.
func (h *healthState) idleSince() time.Time {
	if h.lastEvent.After(h.lastReconnect) {
		return h.lastEvent
	}
	return h.lastReconnect
}

// Health is a read-only view of the health bookkeeping.
type Health struct {
	LastEvent     time.Time `json:"lastEvent"`
	LastReconnect time.Time `json:"lastReconnect"`
}

// Stats holds broker counters.
type Stats struct {
	State          ConnectionState `json:"state"`
	Subscribers    int             `json:"subscribers"`
	Connects       uint64          `json:"connects"`
	OpenFailures   uint64          `json:"openFailures"`
	Cleanups       uint64          `json:"cleanups"`
	ListenerErrors uint64          `json:"listenerErrors"`
	Dispatched     uint64          `json:"dispatched"`
	StaleChecks    uint64          `json:"staleChecks"`
}
