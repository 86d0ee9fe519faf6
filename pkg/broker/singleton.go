package broker

import (
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	defaultMu     sync.Mutex
	defaultBroker *Broker
)

// GetOrCreate returns the process-wide Broker, constructing it from opts on
// the first call. Later calls return the same Broker and ignore opts.
//
// Constructing the Broker does not open anything; the connection is opened
// by the first Subscribe.
func GetOrCreate(opts Options) *Broker {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultBroker == nil {
		defaultBroker = New(opts)
		logrus.WithFields(logrus.Fields{
			"healthCheckInterval":   defaultBroker.opts.HealthCheckInterval,
			"fullReconnectInterval": defaultBroker.opts.FullReconnectInterval,
			"reconnectOnStale":      defaultBroker.opts.ReconnectOnStale,
		}).Debug("broker created")
	}

	return defaultBroker
}
