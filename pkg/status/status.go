// Package status folds the event stream into a point-in-time snapshot.
package status

import (
	"sync"
	"time"

	"github.com/charlie0129/hxstat/pkg/events"
)

// Status is the last known headset state. Pointer fields are nil until the
// corresponding event has been seen.
type Status struct {
	Battery   *int               `json:"battery,omitempty"`
	Power     *events.PowerState `json:"power,omitempty"`
	Muted     *bool              `json:"muted,omitempty"`
	LastError string             `json:"lastError,omitempty"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Tracker keeps a Status up to date from events. Its Handle method is meant
// to be passed to Subscribe.
type Tracker struct {
	now func() time.Time

	mu sync.RWMutex
	st Status
}

// NewTracker returns an empty Tracker. A nil now defaults to time.Now.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{now: now}
}

// Handle folds e into the snapshot.
func (t *Tracker) Handle(e events.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev := e.(type) {
	case events.Battery:
		v := ev.Percent
		t.st.Battery = &v
		t.st.LastError = ""
	case events.Power:
		v := ev.State
		t.st.Power = &v
		if v == events.PowerOff {
			// A battery level read before power off is meaningless now.
			t.st.Battery = nil
		}
	case events.Muted:
		v := ev.Value
		t.st.Muted = &v
	case events.Error:
		if ev.Cause != nil {
			t.st.LastError = ev.Cause.Error()
		} else {
			t.st.LastError = "unknown error"
		}
	default:
		return
	}
	t.st.UpdatedAt = t.now()
}

// Subscribe attaches the tracker to s.
func (t *Tracker) Subscribe(s events.Subscriber) events.CancelFunc {
	return s.Subscribe(t.Handle)
}

// Reset forgets everything seen so far.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.st = Status{}
}

// Snapshot returns a copy of the current status.
func (t *Tracker) Snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := t.st
	if s.Battery != nil {
		v := *s.Battery
		s.Battery = &v
	}
	if s.Power != nil {
		v := *s.Power
		s.Power = &v
	}
	if s.Muted != nil {
		v := *s.Muted
		s.Muted = &v
	}
	return s
}

// Events returns the snapshot as the events that would reproduce it, power
// first. Streams replay them to new clients.
func (s Status) Events() []events.Event {
	var out []events.Event
	if s.Power != nil {
		out = append(out, events.Power{State: *s.Power})
	}
	if s.Battery != nil {
		out = append(out, events.Battery{Percent: *s.Battery})
	}
	if s.Muted != nil {
		out = append(out, events.Muted{Value: *s.Muted})
	}
	return out
}

// Report is what the daemon serves on /status.
type Report struct {
	Connection    string    `json:"connection"`
	Subscribers   int       `json:"subscribers"`
	LastEvent     time.Time `json:"lastEvent"`
	LastReconnect time.Time `json:"lastReconnect"`
	Status        Status    `json:"status"`
}
