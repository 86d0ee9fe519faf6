package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message names used on the wire (SSE, websocket, MQTT).
const (
	NameBattery = "battery"
	NamePower   = "power"
	NameMuted   = "muted"
	NameError   = "error"
)

// Event is one of Battery, Power, Muted or Error. No other implementations exist.
type Event interface {
	// Name returns the wire name of the event.
	Name() string
	isEvent()
}

// PowerState is the headset power state.
type PowerState string

const (
	PowerOn  PowerState = "on"
	PowerOff PowerState = "off"
)

// Battery carries the battery percentage as reported by the device.
// Values are passed through unchanged, so they may fall outside 0-100.
type Battery struct {
	Percent int
}

// Power carries the headset power state.
type Power struct {
	State PowerState
}

// Muted carries the microphone mute state.
type Muted struct {
	Value bool
}

// Error carries a connection or device error.
type Error struct {
	Cause error
}

func (Battery) Name() string { return NameBattery }
func (Power) Name() string   { return NamePower }
func (Muted) Name() string   { return NameMuted }
func (Error) Name() string   { return NameError }

func (Battery) isEvent() {}
func (Power) isEvent()   {}
func (Muted) isEvent()   {}
func (Error) isEvent()   {}

func (e Error) String() string {
	if e.Cause == nil {
		return "error: <nil>"
	}
	return "error: " + e.Cause.Error()
}

// Message is a generic wire event.
type Message struct {
	Name string          // event name
	Data json.RawMessage // raw JSON payload
}

// BatteryPayload is the typed payload for battery.
type BatteryPayload struct {
	Value int `json:"value"`
}

// PowerPayload is the typed payload for power.
type PowerPayload struct {
	Value PowerState `json:"value"`
}

// MutedPayload is the typed payload for muted.
type MutedPayload struct {
	Value bool `json:"value"`
}

// ErrorPayload is the typed payload for error.
type ErrorPayload struct {
	Error string `json:"error"`
}

// Payload returns the wire payload of e.
func Payload(e Event) any {
	switch ev := e.(type) {
	case Battery:
		return BatteryPayload{Value: ev.Percent}
	case Power:
		return PowerPayload{Value: ev.State}
	case Muted:
		return MutedPayload{Value: ev.Value}
	case Error:
		msg := ""
		if ev.Cause != nil {
			msg = ev.Cause.Error()
		}
		return ErrorPayload{Error: msg}
	}
	return nil
}

// Encode converts e into its wire form.
func Encode(e Event) (Message, error) {
	if e == nil {
		return Message{}, errors.New("nil event")
	}
	b, err := json.Marshal(Payload(e))
	if err != nil {
		return Message{}, err
	}
	return Message{Name: e.Name(), Data: b}, nil
}

// Decode converts a wire message back into an Event. Error causes are
// restored as plain errors carrying the original message.
func Decode(m Message) (Event, error) {
	switch m.Name {
	case NameBattery:
		p, err := DecodeAs[BatteryPayload](m)
		if err != nil {
			return nil, err
		}
		return Battery{Percent: p.Value}, nil
	case NamePower:
		p, err := DecodeAs[PowerPayload](m)
		if err != nil {
			return nil, err
		}
		if p.Value != PowerOn && p.Value != PowerOff {
			return nil, fmt.Errorf("invalid power state %q", p.Value)
		}
		return Power{State: p.Value}, nil
	case NameMuted:
		p, err := DecodeAs[MutedPayload](m)
		if err != nil {
			return nil, err
		}
		return Muted{Value: p.Value}, nil
	case NameError:
		p, err := DecodeAs[ErrorPayload](m)
		if err != nil {
			return nil, err
		}
		return Error{Cause: errors.New(p.Error)}, nil
	}
	return nil, fmt.Errorf("unknown event %q", m.Name)
}

// DecodeAs decodes the message payload into the caller-specified generic type T.
// It ignores the message name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.BatteryPayload](msg)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.Value)
func DecodeAs[T any](m Message) (T, error) {
	var zero T
	if len(m.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(m.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
