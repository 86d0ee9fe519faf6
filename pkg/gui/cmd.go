package gui

import (
	"context"

	"github.com/getlantern/systray"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/hxstat/pkg/client"
	"github.com/charlie0129/hxstat/pkg/version"
)

func NewGUICommand(unixSocketPath *string, groupID string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "gui",
		Short:   "Show headset status in the system tray",
		GroupID: groupID,
		Long: `Show headset battery and microphone state in the system tray.

The tray reads events from the hxstat daemon, which must be running.`,
		Run: func(_ *cobra.Command, _ []string) {
			Run(*unixSocketPath)
		},
	}

	return cmd
}

// Run shows the tray and blocks until it is quit.
func Run(unixSocketPath string) {
	apiClient := client.NewClient(unixSocketPath)
	logrus.WithField("version", version.Version).WithField("gitCommit", version.GitCommit).Info("hxstat gui")

	ctx, cancel := context.WithCancel(context.Background())
	t := newTray(apiClient)

	systray.Run(func() {
		t.setup()
		go apiClient.Forward(ctx, t.feed)
	}, func() {
		cancel()
		t.teardown()
		logrus.Info("hxstat gui exiting")
	})
}
