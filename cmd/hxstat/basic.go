package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/hxstat/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewReconnectCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "reconnect",
		Short:   "Reopen the headset connection",
		GroupID: gBasic,
		Long: `Close and reopen the headset connection held by the daemon.

Use this when the headset stopped reporting, e.g. after the receiver was replugged.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			checkVersion(version.Version)

			state, err := apiClient().Reconnect()
			if err != nil {
				return err
			}
			cmd.Printf("headset %s\n", state)
			return nil
		},
	}
}

func NewSetReconnectOnStaleCommand() *cobra.Command {
	return newEnableDisableCommand(
		"reconnect-on-stale",
		"reconnecting as soon as the headset goes quiet",
		`Reconnect as soon as no event arrived for one health check interval.

By default a quiet headset is only reconnected once the full reconnect
interval has passed, since some headsets only report on change.`,
		func() (string, error) { return apiClient().SetReconnectOnStale(true) },
		func() (string, error) { return apiClient().SetReconnectOnStale(false) },
	)
}

func newEnableDisableCommand(
	use, short, long string,
	enableFunc func() (string, error),
	disableFunc func() (string, error),
) *cobra.Command {
	cmd := &cobra.Command{
		Use:     use,
		Short:   short,
		Long:    long,
		GroupID: gAdvanced,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "enable",
			Short: "Enable " + short,
			RunE: func(_ *cobra.Command, _ []string) error {
				ret, err := enableFunc()
				if err != nil {
					return fmt.Errorf("failed to enable %s: %w", use, err)
				}
				if ret != "" {
					logrus.Infof("daemon responded: %s", ret)
				}
				logrus.Infof("successfully enabled %s", use)
				return nil
			},
		},
		&cobra.Command{
			Use:   "disable",
			Short: "Disable " + short,
			RunE: func(_ *cobra.Command, _ []string) error {
				ret, err := disableFunc()
				if err != nil {
					return fmt.Errorf("failed to disable %s: %w", use, err)
				}
				if ret != "" {
					logrus.Infof("daemon responded: %s", ret)
				}
				logrus.Infof("successfully disabled %s", use)
				return nil
			},
		},
	)

	return cmd
}
