package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	unitPath  = "/etc/systemd/system/hxstat.service"
	systemctl = func(args ...string) error {
		out, err := exec.Command("systemctl", args...).CombinedOutput()
		if err != nil {
			return fmt.Errorf("systemctl %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
		}
		return nil
	}
)

const unitTemplate = `[Unit]
Description=hxstat headset status daemon
After=network.target

[Service]
Type=simple
ExecStart=/path/to/hxstat daemon --config /path/to/config --daemon-socket /path/to/socket
ExecReload=/bin/kill -HUP $MAINPID
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
`

// renderUnit returns the systemd unit running exePath.
func renderUnit(exePath, configPath, socketPath string) string {
	return strings.NewReplacer(
		"/path/to/hxstat", exePath,
		"/path/to/config", configPath,
		"/path/to/socket", socketPath,
	).Replace(unitTemplate)
}

// Install writes the systemd unit for the running executable and starts it.
func Install(configPath, socketPath string) error {
	// Get the path to the current executable
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get the path to the current executable: %w", err)
	}
	exePath, err = filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
	}

	err = os.Chmod(exePath, 0755)
	if err != nil {
		return fmt.Errorf("failed to chmod the current executable to 0755: %w", err)
	}

	logrus.Infof("current executable path: %s", exePath)

	// warn if the file already exists
	if _, err := os.Stat(unitPath); err == nil {
		logrus.Warnf("%s already exists, overwriting", unitPath)
	}

	err = os.MkdirAll(filepath.Dir(unitPath), 0755)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(unitPath), err)
	}

	logrus.Infof("writing systemd unit to %s", unitPath)
	err = os.WriteFile(unitPath, []byte(renderUnit(exePath, configPath, socketPath)), 0644)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", unitPath, err)
	}

	logrus.Infof("starting hxstat")
	if err := systemctl("daemon-reload"); err != nil {
		return err
	}
	return systemctl("enable", "--now", filepath.Base(unitPath))
}

// Uninstall stops the service and removes its unit.
func Uninstall() error {
	logrus.Infof("stopping hxstat")

	if err := systemctl("disable", "--now", filepath.Base(unitPath)); err != nil {
		return fmt.Errorf("%w. Are you root?", err)
	}

	logrus.Infof("removing systemd unit")

	err := os.Remove(unitPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w. Are you root?", unitPath, err)
	}

	return systemctl("daemon-reload")
}
