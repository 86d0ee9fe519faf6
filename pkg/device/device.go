// Package device is the boundary to the headset communication library.
//
// The library is opaque: a Handle delivers raw, loosely typed events by name
// and may optionally be closed. Nothing here models the transport (USB/HID or
// Bluetooth) or the firmware behind it.
package device

import (
	pkgerrors "github.com/pkg/errors"
)

// Raw event names emitted by a Handle.
const (
	EventBattery      = "battery"
	EventPower        = "power"
	EventMuted        = "muted"
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventError        = "error"
	EventVolume       = "volume"
	EventCharging     = "charging"
	EventUnknown      = "unknown"
)

// Handle is a live connection to the device library.
type Handle interface {
	// On registers fn for the raw event name. fn may be called from any
	// goroutine.
	On(name string, fn func(args ...any))
}

// Closer is an optional capability of a Handle. Close must tolerate being
// called on an already closed handle.
type Closer interface {
	Close() error
}

// Starter is an optional capability of a Handle that only begins delivering
// events once Start is called. The broker calls Start after registering every
// handler.
type Starter interface {
	Start()
}

// Opener constructs a new Handle.
type Opener func() (Handle, error)

// Kinds of backends known to Open.
const (
	KindExec = "exec"
	KindHost = "host"
	KindMock = "mock"
)

// Options configures Open.
type Options struct {
	// Command is the helper command line used by the exec backend.
	Command []string
}

// Open returns an Opener for the backend named kind.
func Open(kind string, opts Options) (Opener, error) {
	switch kind {
	case KindExec:
		if len(opts.Command) == 0 {
			return nil, pkgerrors.New("exec backend requires a command")
		}
		return ExecOpener(opts.Command[0], opts.Command[1:]...), nil
	case KindHost:
		return HostBatteryOpener(0), nil
	case KindMock:
		return NewMockOpener().Open, nil
	default:
		return nil, pkgerrors.Errorf("unknown device backend %q", kind)
	}
}
