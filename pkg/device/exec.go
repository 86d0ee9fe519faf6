package device

import (
	"os"
	"os/exec"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ExecOpener returns an Opener that starts the helper command and streams
// raw events from its stdout. Closing the handle kills the helper.
func ExecOpener(name string, args ...string) Opener {
	return func() (Handle, error) {
		cmd := exec.Command(name, args...)
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "failed to get stdout of %s", name)
		}
		stderr := logrus.StandardLogger().WriterLevel(logrus.DebugLevel)
		cmd.Stderr = stderr

		if err := cmd.Start(); err != nil {
			_ = stderr.Close()
			return nil, pkgerrors.Wrapf(err, "failed to start %s", name)
		}

		logrus.WithFields(logrus.Fields{
			"cmd": name,
			"pid": cmd.Process.Pid,
		}).Debug("device helper started")

		s := NewStream(stdout)
		s.onClose = func() error {
			err := cmd.Process.Kill()
			if err != nil && !pkgerrors.Is(err, os.ErrProcessDone) {
				return pkgerrors.Wrapf(err, "failed to kill %s", name)
			}
			go func() {
				if err := cmd.Wait(); err != nil {
					logrus.WithError(err).WithField("cmd", name).Debug("device helper exited")
				}
				_ = stderr.Close()
			}()
			return nil
		}
		return s, nil
	}
}
