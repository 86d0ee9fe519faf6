package daemon

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/hxstat/pkg/events"
)

// streamEvents serves events as server-sent events. New clients first get
// the last known state, then live events.
func (s *server) streamEvents(c *gin.Context) {
	pipe := events.NewPipe(s.broker, 32)
	defer pipe.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	for _, e := range s.tracker.Snapshot().Events() {
		writeSSE(c, e)
	}
	c.Writer.Flush()

	ticker := time.NewTicker(s.keepalive)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-s.done:
			return false
		case e, ok := <-pipe.C():
			if !ok {
				return false
			}
			writeSSE(c, e)
			return true
		case <-ticker.C:
			// Comment lines are ignored by SSE clients.
			_, err := fmt.Fprint(w, ": keepalive\n\n")
			return err == nil
		}
	})

	if n := pipe.Dropped(); n > 0 {
		logrus.WithField("dropped", n).Warn("event stream client was too slow")
	}
}

func writeSSE(c *gin.Context, e events.Event) {
	m, err := events.Encode(e)
	if err != nil {
		logrus.WithError(err).Error("failed to encode event")
		return
	}
	c.SSEvent(m.Name, string(m.Data))
}
