package main

import (
	"fmt"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/hxstat/pkg/config"
	daemonutils "github.com/charlie0129/hxstat/pkg/utils/daemon"
)

// NewInstallCommand .
func NewInstallCommand() *cobra.Command {
	allowNonRootAccess := false

	cmd := &cobra.Command{
		Use:     "install",
		Short:   "Install hxstat daemon (system-wide)",
		GroupID: gInstallation,
		Long: `Install hxstat daemon as a systemd service.

This makes hxstat run in the background and automatically start on boot. You must run this command as root.

By default, only root user is allowed to access the daemon. Use --allow-non-root-access so the tray and the terminal commands work without sudo.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			conf, err := config.NewFile(configPath)
			if err != nil {
				return err
			}

			conf.SetAllowNonRootAccess(allowNonRootAccess)
			if allowNonRootAccess {
				logrus.Info("non-root users are allowed to access the hxstat daemon.")
			} else {
				logrus.Info("only root user is allowed to access the hxstat daemon.")
			}

			// Save first, so the service starts with the new config.
			err = conf.Save()
			if err != nil {
				return pkgerrors.Wrapf(err, "failed to save config")
			}

			err = daemonutils.Install(configPath, unixSocketPath)
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to install daemon: %w. Are you root?", err)
			}

			logrus.Infof("installation succeeded")
			return nil
		},
	}

	cmd.Flags().BoolVar(&allowNonRootAccess, "allow-non-root-access", false, "Allow non-root users to access the hxstat daemon.")

	return cmd
}

// NewUninstallCommand .
func NewUninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "uninstall",
		Short:   "Uninstall hxstat daemon (system-wide)",
		GroupID: gInstallation,
		RunE: func(_ *cobra.Command, _ []string) error {
			err := daemonutils.Uninstall()
			if err != nil {
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to uninstall daemon: %w", err)
			}

			logrus.Infof("hxstat daemon uninstalled, config is kept at %s", configPath)
			return nil
		},
	}
}
