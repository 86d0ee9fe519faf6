package display

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/hxstat/pkg/events"
)

// widget holds the subscription and current frame shared by every widget.
type widget struct {
	name     string
	initial  Frame
	update   func(cur Frame, e events.Event) (Frame, bool)
	renderer Renderer

	mu       sync.Mutex
	frame    Frame
	attached bool
	cancel   events.CancelFunc
}

// Attach shows the initial frame and subscribes to s. Attaching an attached
// widget is a no-op.
func (w *widget) Attach(s events.Subscriber) {
	w.mu.Lock()
	if w.attached {
		w.mu.Unlock()
		return
	}
	w.attached = true
	w.frame = w.initial
	w.mu.Unlock()

	w.render(w.initial)
	logrus.WithField("widget", w.name).Debug("widget attached")

	// Subscribe may deliver an open error synchronously, so no lock here.
	cancel := s.Subscribe(w.handle)

	w.mu.Lock()
	if !w.attached {
		// Detached while subscribing.
		w.mu.Unlock()
		cancel()
		return
	}
	w.cancel = cancel
	w.mu.Unlock()
}

// Detach cancels the subscription. It is safe to call more than once.
func (w *widget) Detach() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.attached = false
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		logrus.WithField("widget", w.name).Debug("widget detached")
	}
}

// Frame returns the frame currently shown.
func (w *widget) Frame() Frame {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frame
}

func (w *widget) handle(e events.Event) {
	w.mu.Lock()
	if !w.attached {
		w.mu.Unlock()
		return
	}
	next, changed := w.update(w.frame, e)
	if changed {
		w.frame = next
	}
	w.mu.Unlock()

	if changed {
		w.render(next)
	}
}

func (w *widget) render(f Frame) {
	if w.renderer != nil {
		w.renderer.Render(f)
	}
}

// BatteryWidget shows the battery level.
type BatteryWidget struct {
	widget
}

// NewBatteryWidget returns a BatteryWidget drawing to r.
func NewBatteryWidget(r Renderer) *BatteryWidget {
	return &BatteryWidget{widget{
		name:     "battery",
		initial:  Frame{Icon: IconDisconnected, Title: "?"},
		update:   updateBattery,
		renderer: r,
	}}
}

func updateBattery(cur Frame, e events.Event) (Frame, bool) {
	switch ev := e.(type) {
	case events.Battery:
		return Frame{Icon: BatteryIcon(ev.Percent), Title: fmt.Sprintf("%d%%", ev.Percent)}, true
	case events.Power:
		if ev.State == events.PowerOff {
			return Frame{Icon: IconDisconnected}, true
		}
		// Placeholder until the next battery event arrives.
		return Frame{Icon: IconHalf, Title: "..."}, true
	case events.Error:
		return Frame{Icon: IconDisconnected}, true
	}
	return cur, false
}

// MicrophoneWidget shows the microphone mute state.
type MicrophoneWidget struct {
	widget
}

// NewMicrophoneWidget returns a MicrophoneWidget drawing to r.
func NewMicrophoneWidget(r Renderer) *MicrophoneWidget {
	return &MicrophoneWidget{widget{
		name:     "microphone",
		initial:  Frame{Icon: IconUnmuted},
		update:   updateMicrophone,
		renderer: r,
	}}
}

func updateMicrophone(cur Frame, e events.Event) (Frame, bool) {
	switch ev := e.(type) {
	case events.Muted:
		if ev.Value {
			return Frame{Icon: IconMuted}, true
		}
		return Frame{Icon: IconUnmuted}, true
	case events.Power:
		if ev.State == events.PowerOff {
			return Frame{Icon: IconDisconnected}, true
		}
		return Frame{Icon: IconUnmuted}, true
	case events.Error:
		return Frame{Icon: IconDisconnected}, true
	}
	return cur, false
}
