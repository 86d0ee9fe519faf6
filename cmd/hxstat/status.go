package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/hxstat/pkg/config"
	"github.com/charlie0129/hxstat/pkg/display"
	"github.com/charlie0129/hxstat/pkg/events"
	"github.com/charlie0129/hxstat/pkg/status"
)

func NewStatusCommand() *cobra.Command {
	asJSON := false

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of your headset",
		Long:    `Get the headset connection, battery and microphone state, and the daemon configuration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := apiClient().GetStatus()
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(r)
			}

			conf, err := apiClient().GetConfig()
			if err != nil {
				return fmt.Errorf("failed to get config: %w", err)
			}

			printStatus(cmd.OutOrStdout(), r, config.NewFileFromConfig(conf, ""))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw status report as JSON")

	return cmd
}

func printStatus(w io.Writer, r *status.Report, conf config.Config) {
	fmt.Fprintln(w, bold("Connection:"))
	fmt.Fprintf(w, "  State: %s\n", connectionText(r.Connection))
	fmt.Fprintf(w, "  Subscribers: %s\n", bold("%d", r.Subscribers))
	fmt.Fprintf(w, "  Last event: %s\n", bold("%s", ago(r.LastEvent)))
	fmt.Fprintf(w, "  Last reconnect: %s\n", bold("%s", ago(r.LastReconnect)))

	fmt.Fprintln(w)

	st := r.Status
	fmt.Fprintln(w, bold("Headset:"))
	if st.Power != nil {
		fmt.Fprintf(w, "  Powered on: %s\n", bool2Text(*st.Power == events.PowerOn))
	} else {
		fmt.Fprintf(w, "  Powered on: %s\n", bold("unknown"))
	}
	if st.Battery != nil {
		fmt.Fprintf(w, "  Battery: %s\n", batteryText(*st.Battery))
	} else {
		fmt.Fprintf(w, "  Battery: %s\n", bold("unknown"))
	}
	if st.Muted != nil {
		fmt.Fprintf(w, "  Microphone muted: %s\n", bool2Text(*st.Muted))
	} else {
		fmt.Fprintf(w, "  Microphone muted: %s\n", bold("unknown"))
	}
	if st.LastError != "" {
		fmt.Fprintf(w, "  Last error: %s\n", color.RedString(st.LastError))
	}

	fmt.Fprintln(w)

	fmt.Fprintln(w, bold("Configuration:"))
	fmt.Fprintf(w, "  Device: %s\n", bold("%s", conf.Device()))
	fmt.Fprintf(w, "  Health check interval: %s\n", bold("%s", conf.HealthCheckInterval()))
	fmt.Fprintf(w, "  Full reconnect interval: %s\n", bold("%s", conf.FullReconnectInterval()))
	fmt.Fprintf(w, "  Reconnect on stale: %s\n", bool2Text(conf.ReconnectOnStale()))
	fmt.Fprintf(w, "  Allow non-root users to access the daemon: %s\n", bool2Text(conf.AllowNonRootAccess()))
	if m := conf.MQTT(); m.Enabled() {
		fmt.Fprintf(w, "  MQTT: %s\n", bold("%s (%s/...)", m.Broker, m.TopicPrefix))
	} else {
		fmt.Fprintf(w, "  MQTT: %s\n", bool2Text(false))
	}
}

func connectionText(s string) string {
	switch s {
	case "connected":
		return color.New(color.Bold, color.FgGreen).Sprint(s)
	case "connecting":
		return color.New(color.Bold, color.FgYellow).Sprint(s)
	}
	return color.New(color.Bold, color.FgRed).Sprint(s)
}

func batteryText(pct int) string {
	switch display.BatteryIcon(pct) {
	case display.IconEmpty, display.IconLow:
		return color.New(color.Bold, color.FgRed).Sprintf("%d%%", pct)
	case display.IconHalf:
		return color.New(color.Bold, color.FgYellow).Sprintf("%d%%", pct)
	}
	return color.New(color.Bold, color.FgGreen).Sprintf("%d%%", pct)
}

func ago(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return time.Since(t).Truncate(time.Second).String() + " ago"
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}
