package broker

import (
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/charlie0129/hxstat/pkg/device"
	"github.com/charlie0129/hxstat/pkg/events"
)

// rawHandler maps one raw event to at most one public event. Last-known
// values are tracked when the event is fanned out; handlers only touch the
// inference flag of hs.
type rawHandler func(args []any, hs *healthState) (events.Event, bool)

// rawHandlers is every raw event the broker registers on a handle.
var rawHandlers = map[string]rawHandler{
	device.EventBattery:      normalizeBattery,
	device.EventPower:        normalizePower,
	device.EventMuted:        normalizeMuted,
	device.EventConnected:    normalizeConnected,
	device.EventDisconnected: normalizeDisconnected,
	device.EventError:        normalizeError,
	device.EventVolume:       bookkeepingOnly,
	device.EventCharging:     bookkeepingOnly,
	device.EventUnknown:      bookkeepingOnly,
}

func normalize(name string, args []any, hs *healthState) (events.Event, bool) {
	h, ok := rawHandlers[name]
	if !ok {
		return nil, false
	}
	return h(args, hs)
}

func firstArg(args []any) (any, bool) {
	if len(args) == 0 {
		return nil, false
	}
	return args[0], true
}

func normalizeBattery(args []any, _ *healthState) (events.Event, bool) {
	v, ok := firstArg(args)
	if !ok {
		logrus.Warn("battery event without payload")
		return nil, false
	}
	pct, err := cast.ToIntE(v)
	if err != nil {
		logrus.WithError(err).WithField("value", v).Warn("invalid battery payload")
		return nil, false
	}
	logrus.WithField("percent", pct).Debug("battery")
	return events.Battery{Percent: pct}, true
}

func normalizePower(args []any, hs *healthState) (events.Event, bool) {
	v, ok := firstArg(args)
	if !ok {
		logrus.Warn("power event without payload")
		return nil, false
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		logrus.WithError(err).WithField("value", v).Warn("invalid power payload")
		return nil, false
	}

	var state events.PowerState
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on":
		state = events.PowerOn
	case "off":
		state = events.PowerOff
	default:
		logrus.WithField("value", s).Warn("unknown power state")
		return nil, false
	}
	logrus.WithField("state", state).Debug("power")

	// connected already told subscribers the headset is on.
	inferred := hs.powerInferred
	hs.powerInferred = false
	if inferred && state == events.PowerOn && hs.power != nil && *hs.power == events.PowerOn {
		logrus.Debug("power on already inferred from connected, not repeating")
		return nil, false
	}
	return events.Power{State: state}, true
}

func normalizeMuted(args []any, _ *healthState) (events.Event, bool) {
	v, ok := firstArg(args)
	if !ok {
		logrus.Warn("muted event without payload")
		return nil, false
	}
	muted, err := cast.ToBoolE(v)
	if err != nil {
		logrus.WithError(err).WithField("value", v).Warn("invalid muted payload")
		return nil, false
	}
	logrus.WithField("muted", muted).Debug("muted")
	return events.Muted{Value: muted}, true
}

// normalizeConnected infers power on when the device comes back after being
// known off. Once power is known on, reconnects stay silent, and a real power
// on right after an inferred one is swallowed, so a connected/power race
// yields a single Power{On} whichever arrives first.
func normalizeConnected(_ []any, hs *healthState) (events.Event, bool) {
	logrus.Debug("device connected")
	if hs.powerKnownOff() {
		hs.powerInferred = true
		return events.Power{State: events.PowerOn}, true
	}
	return nil, false
}

// normalizeDisconnected only logs. The library sends an explicit power off
// for this case.
func normalizeDisconnected(args []any, _ *healthState) (events.Event, bool) {
	entry := logrus.NewEntry(logrus.StandardLogger())
	if v, ok := firstArg(args); ok && v != nil {
		entry = entry.WithField("reason", v)
	}
	entry.Debug("device disconnected")
	return nil, false
}

func normalizeError(args []any, _ *healthState) (events.Event, bool) {
	var err error
	v, _ := firstArg(args)
	switch e := v.(type) {
	case nil:
		err = pkgerrors.New("unknown device error")
	case error:
		err = e
	default:
		err = pkgerrors.Errorf("%v", e)
	}
	logrus.WithError(err).Error("error from device library")
	return events.Error{Cause: &DeviceError{Err: err}}, true
}

func bookkeepingOnly(_ []any, _ *healthState) (events.Event, bool) {
	return nil, false
}
