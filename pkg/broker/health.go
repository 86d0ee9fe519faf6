package broker

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/hxstat/pkg/events"
)

// healthMonitor owns the periodic health-check ticker. It is only touched
// with the broker lifecycle lock held.
type healthMonitor struct {
	interval time.Duration
	stopCh   chan struct{}
}

func (m *healthMonitor) start(tick func(stop <-chan struct{})) {
	if m.stopCh != nil {
		return
	}

	stop := make(chan struct{})
	m.stopCh = stop
	interval := m.interval

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		logrus.WithField("interval", interval).Debug("health monitor started")
		for {
			select {
			case <-ticker.C:
				tick(stop)
			case <-stop:
				logrus.Debug("health monitor stopped")
				return
			}
		}
	}()
}

// stop never waits for the ticker goroutine: a tick may be blocked on the
// lifecycle lock held by our caller.
func (m *healthMonitor) stop() {
	if m.stopCh == nil {
		return
	}
	close(m.stopCh)
	m.stopCh = nil
}

func (m *healthMonitor) running() bool {
	return m.stopCh != nil
}

// checkHealth is one health-check tick. stop is the channel of the monitor
// run that scheduled it; a tick from a stopped run does nothing.
func (b *Broker) checkHealth(stop <-chan struct{}) {
	b.lifecycleMu.Lock()

	select {
	case <-stop:
		b.lifecycleMu.Unlock()
		return
	default:
	}

	now := b.now()

	b.mu.Lock()
	subscribers := len(b.subs)
	state := b.state
	idleSince := b.health.idleSince()
	lastReconnect := b.health.lastReconnect
	b.stats.StaleChecks++
	b.mu.Unlock()

	if subscribers == 0 {
		b.lifecycleMu.Unlock()
		return
	}

	var errEv events.Event

	if state == Disconnected {
		logrus.WithField("sinceLastAttempt", now.Sub(lastReconnect)).Info("headset not connected, retrying")
		errEv = b.connectLocked()
	} else {
		idle := now.Sub(idleSince)
		sinceReconnect := now.Sub(lastReconnect)
		if idle > b.opts.HealthCheckInterval {
			logrus.WithFields(logrus.Fields{
				"idle":           idle.Round(time.Second),
				"sinceReconnect": sinceReconnect.Round(time.Second),
			}).Warn("no events from headset, connection may be stale")

			if sinceReconnect > b.opts.FullReconnectInterval ||
				(b.opts.ReconnectOnStale && sinceReconnect > b.opts.HealthCheckInterval) {
				logrus.Info("forcing full reconnect")
				errEv = b.connectLocked()
			}
		}
	}

	b.lifecycleMu.Unlock()

	if errEv != nil {
		b.notifyListeners(errEv)
	}
}
