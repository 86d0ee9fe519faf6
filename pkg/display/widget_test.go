package display

import (
	"errors"
	"testing"

	"github.com/charlie0129/hxstat/pkg/events"
)

type fakeSubscriber struct {
	fns     map[int]func(events.Event)
	next    int
	cancels int
}

func (f *fakeSubscriber) Subscribe(fn func(events.Event)) events.CancelFunc {
	if f.fns == nil {
		f.fns = make(map[int]func(events.Event))
	}
	id := f.next
	f.next++
	f.fns[id] = fn
	return func() {
		if _, ok := f.fns[id]; ok {
			delete(f.fns, id)
			f.cancels++
		}
	}
}

func (f *fakeSubscriber) publish(e events.Event) {
	for _, fn := range f.fns {
		fn(e)
	}
}

type frames []Frame

func (f *frames) Render(fr Frame) { *f = append(*f, fr) }

func TestBatteryIcon(t *testing.T) {
	tests := []struct {
		pct  int
		want string
	}{
		{-3, IconEmpty},
		{0, IconEmpty},
		{4, IconEmpty},
		{5, IconLow},
		{44, IconLow},
		{45, IconHalf},
		{54, IconHalf},
		{55, IconHigh},
		{94, IconHigh},
		{95, IconFull},
		{100, IconFull},
		{150, IconFull},
	}
	for _, tt := range tests {
		if got := BatteryIcon(tt.pct); got != tt.want {
			t.Errorf("BatteryIcon(%d) = %s, want %s", tt.pct, got, tt.want)
		}
	}
}

func TestBatteryWidget(t *testing.T) {
	tests := []struct {
		name string
		in   []events.Event
		want Frame
	}{
		{
			name: "initial",
			want: Frame{Icon: IconDisconnected, Title: "?"},
		},
		{
			name: "battery level",
			in:   []events.Event{events.Battery{Percent: 42}},
			want: Frame{Icon: IconLow, Title: "42%"},
		},
		{
			name: "power off",
			in:   []events.Event{events.Battery{Percent: 80}, events.Power{State: events.PowerOff}},
			want: Frame{Icon: IconDisconnected},
		},
		{
			name: "power on placeholder",
			in:   []events.Event{events.Power{State: events.PowerOff}, events.Power{State: events.PowerOn}},
			want: Frame{Icon: IconHalf, Title: "..."},
		},
		{
			name: "error",
			in:   []events.Event{events.Battery{Percent: 99}, events.Error{Cause: errors.New("x")}},
			want: Frame{Icon: IconDisconnected},
		},
		{
			name: "mute is ignored",
			in:   []events.Event{events.Battery{Percent: 99}, events.Muted{Value: true}},
			want: Frame{Icon: IconFull, Title: "99%"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSubscriber{}
			var out frames
			w := NewBatteryWidget(&out)
			w.Attach(s)
			for _, e := range tt.in {
				s.publish(e)
			}
			if got := w.Frame(); got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
			if len(out) == 0 || out[len(out)-1] != tt.want {
				t.Errorf("last rendered frame %v, want %+v", out, tt.want)
			}
		})
	}
}

func TestMicrophoneWidget(t *testing.T) {
	tests := []struct {
		name string
		in   []events.Event
		want string
	}{
		{name: "initial", want: IconUnmuted},
		{name: "muted", in: []events.Event{events.Muted{Value: true}}, want: IconMuted},
		{name: "unmuted", in: []events.Event{events.Muted{Value: true}, events.Muted{Value: false}}, want: IconUnmuted},
		{name: "power off", in: []events.Event{events.Power{State: events.PowerOff}}, want: IconDisconnected},
		{name: "power on", in: []events.Event{events.Power{State: events.PowerOff}, events.Power{State: events.PowerOn}}, want: IconUnmuted},
		{name: "error", in: []events.Event{events.Error{Cause: errors.New("x")}}, want: IconDisconnected},
		{name: "battery is ignored", in: []events.Event{events.Muted{Value: true}, events.Battery{Percent: 3}}, want: IconMuted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSubscriber{}
			w := NewMicrophoneWidget(nil)
			w.Attach(s)
			for _, e := range tt.in {
				s.publish(e)
			}
			if got := w.Frame().Icon; got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestWidgetDetach(t *testing.T) {
	s := &fakeSubscriber{}
	var out frames
	w := NewBatteryWidget(&out)

	w.Attach(s)
	w.Attach(s)
	if len(s.fns) != 1 {
		t.Fatalf("attaching twice should subscribe once, got %d", len(s.fns))
	}

	w.Detach()
	w.Detach()
	if s.cancels != 1 {
		t.Fatalf("expected a single cancel, got %d", s.cancels)
	}

	rendered := len(out)
	s.publish(events.Battery{Percent: 50})
	if len(out) != rendered {
		t.Fatalf("detached widget must not render")
	}

	w.Attach(s)
	if got := w.Frame(); got != (Frame{Icon: IconDisconnected, Title: "?"}) {
		t.Fatalf("reattaching should reset to the initial frame, got %+v", got)
	}
}
