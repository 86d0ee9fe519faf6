package mqtt

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/hxstat/pkg/events"
)

// Publisher writes every event to <prefix>/<event name>.
type Publisher struct {
	client ClientAPI
	prefix string
	retain bool
}

// NewPublisher returns a Publisher using client.
func NewPublisher(client ClientAPI, prefix string, retain bool) *Publisher {
	return &Publisher{
		client: client,
		prefix: strings.TrimSuffix(prefix, "/"),
		retain: retain,
	}
}

// Topic returns the topic e is published to.
func (p *Publisher) Topic(e events.Event) string {
	return p.prefix + "/" + e.Name()
}

// Publish sends e. It blocks until the broker acknowledges, so it must not be
// called from a subscriber callback; use Run.
func (p *Publisher) Publish(e events.Event) error {
	b, err := json.Marshal(events.Payload(e))
	if err != nil {
		return err
	}
	return p.client.PublishWith(p.Topic(e), b, p.retain)
}

// Run publishes events from s until ctx is done. The client is disconnected
// on return.
func (p *Publisher) Run(ctx context.Context, s events.Subscriber) {
	pipe := events.NewPipe(s, 64)
	defer pipe.Close()
	defer p.client.Disconnect()

	logrus.WithField("prefix", p.prefix).Info("mqtt publisher started")

	for {
		select {
		case <-ctx.Done():
			logrus.Info("mqtt publisher stopped")
			return
		case e, ok := <-pipe.C():
			if !ok {
				return
			}
			if err := p.Publish(e); err != nil {
				logrus.WithError(err).WithField("topic", p.Topic(e)).Warn("failed to publish event")
			}
		}
	}
}
