package daemon

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// streamingPaths hold a request open for the lifetime of a client. Their
// latency is connection time, not processing time.
var streamingPaths = map[string]bool{
	"/events": true,
	"/ws":     true,
}

// ginLogger logs requests through logrus.
func ginLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// other handler can change c.Path so:
		path := c.Request.URL.Path
		start := time.Now()
		if streamingPaths[path] {
			logger.WithField("path", path).Debug("stream opened")
		}
		c.Next()
		stop := time.Since(start)
		latency := int(math.Ceil(float64(stop.Nanoseconds()) / 1000000.0))
		statusCode := c.Writer.Status()
		dataLength := c.Writer.Size()
		if dataLength < 0 {
			dataLength = 0
		}

		entry := logger.WithFields(logrus.Fields{
			"statusCode": statusCode,
			"latency":    latency,
			"method":     c.Request.Method,
			"path":       path,
			"dataLength": dataLength,
		})

		switch {
		case len(c.Errors) > 0:
			entry.Error(c.Errors.ByType(gin.ErrorTypePrivate).String())
		case streamingPaths[path]:
			entry.Debugf("stream closed after %s", stop.Round(time.Second))
		case statusCode >= http.StatusInternalServerError:
			entry.Error(requestLine(c, path, statusCode, latency))
		case statusCode >= http.StatusBadRequest:
			entry.Warn(requestLine(c, path, statusCode, latency))
		default:
			entry.Debug(requestLine(c, path, statusCode, latency))
		}
	}
}

func requestLine(c *gin.Context, path string, statusCode, latency int) string {
	return fmt.Sprintf("%s %s %d (%dms)", c.Request.Method, path, statusCode, latency)
}
