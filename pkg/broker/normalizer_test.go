package broker

import (
	"reflect"
	"testing"

	"github.com/charlie0129/hxstat/pkg/device"
	"github.com/charlie0129/hxstat/pkg/events"
)

type rawEvent struct {
	name string
	args []any
}

func raw(name string, args ...any) rawEvent {
	return rawEvent{name: name, args: args}
}

func TestNormalizeSequences(t *testing.T) {
	tests := []struct {
		name string
		in   []rawEvent
		want []events.Event
	}{
		{
			name: "battery passes through",
			in:   []rawEvent{raw(device.EventBattery, 42)},
			want: []events.Event{events.Battery{Percent: 42}},
		},
		{
			name: "battery is not clamped",
			in:   []rawEvent{raw(device.EventBattery, 150), raw(device.EventBattery, -1)},
			want: []events.Event{events.Battery{Percent: 150}, events.Battery{Percent: -1}},
		},
		{
			name: "loosely typed payloads are coerced",
			in:   []rawEvent{raw(device.EventBattery, float64(77)), raw(device.EventMuted, "true"), raw(device.EventPower, "OFF")},
			want: []events.Event{events.Battery{Percent: 77}, events.Muted{Value: true}, events.Power{State: events.PowerOff}},
		},
		{
			name: "invalid payloads are dropped",
			in:   []rawEvent{raw(device.EventBattery, "lots"), raw(device.EventPower, "maybe"), raw(device.EventMuted), raw(device.EventBattery)},
			want: nil,
		},
		{
			name: "connected after power off infers power on",
			in:   []rawEvent{raw(device.EventPower, "off"), raw(device.EventConnected)},
			want: []events.Event{events.Power{State: events.PowerOff}, events.Power{State: events.PowerOn}},
		},
		{
			name: "connected after power on is silent",
			in:   []rawEvent{raw(device.EventPower, "on"), raw(device.EventConnected)},
			want: []events.Event{events.Power{State: events.PowerOn}},
		},
		{
			name: "connected with unknown power is silent",
			in:   []rawEvent{raw(device.EventConnected)},
			want: nil,
		},
		{
			name: "connected then power on yields a single power on",
			in:   []rawEvent{raw(device.EventPower, "off"), raw(device.EventConnected), raw(device.EventPower, "on"), raw(device.EventConnected)},
			want: []events.Event{events.Power{State: events.PowerOff}, events.Power{State: events.PowerOn}},
		},
		{
			name: "power off after inferred on is delivered",
			in:   []rawEvent{raw(device.EventPower, "off"), raw(device.EventConnected), raw(device.EventPower, "off")},
			want: []events.Event{events.Power{State: events.PowerOff}, events.Power{State: events.PowerOn}, events.Power{State: events.PowerOff}},
		},
		{
			name: "disconnected and bookkeeping events emit nothing",
			in: []rawEvent{
				raw(device.EventDisconnected, "timeout"),
				raw(device.EventVolume, "up"),
				raw(device.EventCharging, true),
				raw(device.EventUnknown, []byte{1, 2}),
				raw("firmware"),
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, opener := newTestBroker(t)
			r := &recorder{}
			defer b.Subscribe(r.fn)()

			m := opener.Last()
			for _, ev := range tt.in {
				m.Emit(ev.name, ev.args...)
			}

			got := r.got()
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeError(t *testing.T) {
	hs := &healthState{}
	for _, arg := range []any{nil, "text", 3} {
		ev, ok := normalize(device.EventError, []any{arg}, hs)
		if !ok {
			t.Fatalf("error %v should produce an event", arg)
		}
		e, isErr := ev.(events.Error)
		if !isErr || e.Cause == nil {
			t.Fatalf("expected error with cause for %v, got %v", arg, ev)
		}
	}
}

func TestRawEventsRefreshLastEvent(t *testing.T) {
	b, opener := newTestBroker(t)
	defer b.Subscribe(func(events.Event) {})()

	if !b.Health().LastEvent.IsZero() {
		t.Fatalf("expected no event yet")
	}
	opener.Last().Emit(device.EventVolume, 3)
	if b.Health().LastEvent.IsZero() {
		t.Fatalf("bookkeeping events should refresh lastEvent")
	}
}
