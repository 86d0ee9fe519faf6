package gui

import (
	"fmt"

	"github.com/getlantern/systray"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/hxstat/pkg/client"
	"github.com/charlie0129/hxstat/pkg/display"
	"github.com/charlie0129/hxstat/pkg/events"
)

var glyphs = map[string]string{
	display.IconDisconnected: "🚫",
	display.IconEmpty:        "🪫",
	display.IconLow:          "🪫",
	display.IconHalf:         "🔋",
	display.IconHigh:         "🔋",
	display.IconFull:         "🔋",
	display.IconMuted:        "🔇",
	display.IconUnmuted:      "🎙",
}

func glyph(icon string) string {
	if g, ok := glyphs[icon]; ok {
		return g
	}
	return "?"
}

// trayTitle is the text shown in the tray for a battery frame.
func trayTitle(f display.Frame) string {
	if f.Title == "" {
		return glyph(f.Icon)
	}
	return fmt.Sprintf("%s %s", glyph(f.Icon), f.Title)
}

// micTitle is the menu entry text for a microphone frame.
func micTitle(f display.Frame) string {
	switch f.Icon {
	case display.IconMuted:
		return glyph(f.Icon) + " Microphone muted"
	case display.IconUnmuted:
		return glyph(f.Icon) + " Microphone live"
	}
	return glyph(f.Icon) + " Microphone unavailable"
}

type tray struct {
	api  *client.Client
	feed *events.Feed

	battery *display.BatteryWidget
	mic     *display.MicrophoneWidget
}

func newTray(api *client.Client) *tray {
	return &tray{api: api, feed: events.NewFeed()}
}

func (t *tray) setup() {
	systray.SetTitle("…")
	systray.SetTooltip("hxstat - headset status")

	mMic := systray.AddMenuItem("Microphone: -", "Microphone mute state")
	mMic.Disable()

	systray.AddSeparator()
	mReconnect := systray.AddMenuItem("Reconnect Headset", "Reopen the headset connection")
	mQuit := systray.AddMenuItem("Quit", "Quit the tray, the daemon keeps running")

	t.battery = display.NewBatteryWidget(display.RendererFunc(func(f display.Frame) {
		systray.SetTitle(trayTitle(f))
	}))
	t.mic = display.NewMicrophoneWidget(display.RendererFunc(func(f display.Frame) {
		mMic.SetTitle(micTitle(f))
	}))
	t.battery.Attach(t.feed)
	t.mic.Attach(t.feed)

	go func() {
		for {
			select {
			case <-mReconnect.ClickedCh:
				state, err := t.api.Reconnect()
				if err != nil {
					logrus.WithError(err).Error("failed to reconnect")
					continue
				}
				logrus.WithField("state", state).Info("reconnected")
			case <-mQuit.ClickedCh:
				systray.Quit()
				return
			}
		}
	}()
}

func (t *tray) teardown() {
	if t.battery != nil {
		t.battery.Detach()
	}
	if t.mic != nil {
		t.mic.Detach()
	}
}
