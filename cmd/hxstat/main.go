package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/charlie0129/hxstat/pkg/client"
	"github.com/charlie0129/hxstat/pkg/gui"
)

var (
	logLevel       = "info"
	unixSocketPath = "/var/run/hxstat.sock"
	configPath     = "/etc/hxstat.json"
)

var (
	gBasic        = "Basic:"
	gAdvanced     = "Advanced:"
	gInstallation = "Installation:"
	commandGroups = []string{
		gBasic,
		gAdvanced,
		gInstallation,
	}
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

func handleCmdError(err error) {
	if errors.Is(err, client.ErrDaemonNotRunning) {
		fmt.Fprintln(os.Stderr, "\nError: hxstat daemon is not running")
		fmt.Fprintln(os.Stderr, "Is the daemon running? Have you installed it?")
		fmt.Fprintln(os.Stderr, "  - 'hxstat watch --direct' talks to the headset without a daemon")
	} else if errors.Is(err, client.ErrPermissionDenied) {
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or reinstall the daemon with the '--allow-non-root-access' flag to grant permissions to your user")
	}
}

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hxstat",
		Short: "hxstat shows the battery and microphone state of your headset",
		Long: `hxstat shows the battery and microphone state of your headset.

A background daemon owns the headset connection and shares it with the
tray icon, the terminal, MQTT and prometheus.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogger()
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", unixSocketPath, "hxstat daemon unix socket path")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewDaemonCommand(),
		NewVersionCommand(),
		NewStatusCommand(),
		NewWatchCommand(),
		NewReconnectCommand(),
		NewSetReconnectOnStaleCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
		gui.NewGUICommand(&unixSocketPath, gBasic),
	)

	return cmd
}

// apiClient returns a client for the socket chosen on the command line.
func apiClient() *client.Client {
	return client.NewClient(unixSocketPath)
}

// checkVersion warns when the daemon runs a different build than we are.
func checkVersion(clientVersion string) {
	daemonVersion, err := apiClient().GetVersion()
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			logrus.Error("hxstat daemon is too old to report its version")
		}
		return
	}
	if daemonVersion != clientVersion {
		logrus.WithFields(logrus.Fields{
			"clientVersion": clientVersion,
			"daemonVersion": daemonVersion,
		}).Warn("Version mismatch between client and daemon. Restart the daemon after upgrading.")
	}
}
