package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/hxstat/pkg/events"
)

const (
	minRetryDelay = time.Second
	maxRetryDelay = 30 * time.Second
)

// StreamEvents reads the daemon event stream once and calls fn for every
// message, until the stream ends or ctx is done.
func (c *Client) StreamEvents(ctx context.Context, fn func(events.Message)) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/events", "")
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("GET /events: %w", ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return pkgerrors.Errorf("unexpected status %d from event stream", resp.StatusCode)
	}

	err = parseSSE(resp.Body, fn)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// parseSSE decodes a server-sent event stream. Comment lines and events
// without a name are skipped; multi-line data is joined with newlines.
func parseSSE(r io.Reader, fn func(events.Message)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1024*1024)

	var name string
	var data []string
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if name != "" {
				fn(events.Message{Name: name, Data: []byte(strings.Join(data, "\n"))})
			}
			name, data = "", nil
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
		case "data":
			data = append(data, value)
		}
	}
	if err := sc.Err(); err != nil {
		return pkgerrors.Wrap(err, "failed to read event stream")
	}
	return io.ErrUnexpectedEOF
}

// SubscribeEvents streams daemon events until ctx is done, reconnecting with
// backoff whenever the stream breaks. When the stream is lost an error event
// is delivered once, so displays stop showing stale state until the daemon
// is back. The channel is closed when ctx is done.
func (c *Client) SubscribeEvents(ctx context.Context) <-chan events.Message {
	ch := make(chan events.Message, 16)

	go func() {
		defer close(ch)

		delay := minRetryDelay
		interrupted := false
		for {
			err := c.StreamEvents(ctx, func(m events.Message) {
				delay = minRetryDelay
				interrupted = false
				select {
				case ch <- m:
				case <-ctx.Done():
				}
			})
			if ctx.Err() != nil {
				return
			}

			logrus.WithError(err).WithField("retryIn", delay).Debug("event stream interrupted")
			if !interrupted {
				interrupted = true
				if err == nil {
					err = io.ErrUnexpectedEOF
				}
				m, encErr := events.Encode(events.Error{Cause: pkgerrors.Wrap(err, "lost connection to hxstat daemon")})
				if encErr == nil {
					select {
					case ch <- m:
					case <-ctx.Done():
						return
					}
				}
			}

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			delay *= 2
			if delay > maxRetryDelay {
				delay = maxRetryDelay
			}
		}
	}()

	return ch
}

// Forward decodes daemon events into f until ctx is done. Messages that fail
// to decode are logged and skipped.
func (c *Client) Forward(ctx context.Context, f *events.Feed) {
	for m := range c.SubscribeEvents(ctx) {
		logrus.WithFields(logrus.Fields{
			"event": m.Name,
			"data":  string(m.Data),
		}).Debug("new event")

		e, err := events.Decode(m)
		if err != nil {
			logrus.WithError(err).WithField("event", m.Name).Warn("failed to decode event")
			continue
		}
		f.Publish(e)
	}
}
