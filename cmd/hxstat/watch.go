package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/hxstat/pkg/broker"
	"github.com/charlie0129/hxstat/pkg/config"
	"github.com/charlie0129/hxstat/pkg/device"
	"github.com/charlie0129/hxstat/pkg/display"
	"github.com/charlie0129/hxstat/pkg/events"
	"github.com/charlie0129/hxstat/pkg/version"
)

func NewWatchCommand() *cobra.Command {
	direct := false

	cmd := &cobra.Command{
		Use:     "watch",
		GroupID: gBasic,
		Short:   "Print headset changes as they happen",
		Long: `Print a line every time the headset battery or microphone state changes.

By default the events come from the daemon. With --direct, hxstat opens the
headset itself using the config file, which is handy when no daemon runs.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p := newLinePrinter(cmd.OutOrStdout(), time.Now)
			battery := display.NewBatteryWidget(display.RendererFunc(p.setBattery))
			mic := display.NewMicrophoneWidget(display.RendererFunc(p.setMic))

			var src events.Subscriber
			if direct {
				b, err := directBroker()
				if err != nil {
					return err
				}
				defer b.Shutdown()
				src = b
			} else {
				// Fail early with a useful hint instead of retrying in the background.
				if _, err := apiClient().GetVersion(); err != nil {
					return err
				}
				checkVersion(version.Version)
				feed := events.NewFeed()
				go apiClient().Forward(ctx, feed)
				src = feed
			}

			battery.Attach(src)
			mic.Attach(src)
			defer battery.Detach()
			defer mic.Detach()

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().BoolVar(&direct, "direct", false, "Talk to the headset without the daemon")

	return cmd
}

// directBroker builds an in-process broker from the config file.
func directBroker() (*broker.Broker, error) {
	conf, err := config.NewFile(configPath)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(conf.LogrusFields()).Debug("config loaded")

	opener, err := device.Open(conf.Device(), device.Options{Command: conf.DeviceCommand()})
	if err != nil {
		return nil, err
	}

	return broker.GetOrCreate(broker.Options{
		Opener:                opener,
		HealthCheckInterval:   conf.HealthCheckInterval(),
		FullReconnectInterval: conf.FullReconnectInterval(),
		ReconnectOnStale:      conf.ReconnectOnStale(),
	}), nil
}

// linePrinter prints one line per change of either widget.
type linePrinter struct {
	w   io.Writer
	now func() time.Time

	mu      sync.Mutex
	battery display.Frame
	mic     display.Frame
	last    string
}

func newLinePrinter(w io.Writer, now func() time.Time) *linePrinter {
	return &linePrinter{w: w, now: now}
}

func (p *linePrinter) setBattery(f display.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.battery = f
	p.print()
}

func (p *linePrinter) setMic(f display.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mic = f
	p.print()
}

func (p *linePrinter) print() {
	if p.battery.Icon == "" || p.mic.Icon == "" {
		return
	}
	line := formatLine(p.battery, p.mic)
	if line == p.last {
		return
	}
	p.last = line
	fmt.Fprintf(p.w, "%s  %s\n", p.now().Format(time.TimeOnly), line)
}

func formatLine(battery, mic display.Frame) string {
	var bat string
	switch battery.Icon {
	case display.IconDisconnected:
		if battery.Title == "?" {
			bat = "unknown"
		} else {
			bat = color.New(color.Bold, color.FgRed).Sprint("disconnected")
		}
	case display.IconEmpty, display.IconLow:
		bat = color.New(color.Bold, color.FgRed).Sprint(battery.Title)
	case display.IconHalf:
		bat = color.New(color.Bold, color.FgYellow).Sprint(battery.Title)
	default:
		bat = color.New(color.Bold, color.FgGreen).Sprint(battery.Title)
	}

	var m string
	switch mic.Icon {
	case display.IconMuted:
		m = color.RedString("muted")
	case display.IconUnmuted:
		m = color.GreenString("live")
	default:
		m = "-"
	}

	return fmt.Sprintf("battery %s  mic %s", bat, m)
}
