package daemon

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/hxstat/pkg/config"
	"github.com/charlie0129/hxstat/pkg/status"
	"github.com/charlie0129/hxstat/pkg/version"
)

func (s *server) getStatus(c *gin.Context) {
	h := s.broker.Health()
	c.IndentedJSON(http.StatusOK, status.Report{
		Connection:    s.broker.State().String(),
		Subscribers:   s.broker.Subscribers(),
		LastEvent:     h.LastEvent,
		LastReconnect: h.LastReconnect,
		Status:        s.tracker.Snapshot(),
	})
}

func (s *server) getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(s.conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func (s *server) setReconnectOnStale(c *gin.Context) {
	var r bool
	if err := c.BindJSON(&r); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	s.conf.SetReconnectOnStale(r)
	if err := s.conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	s.broker.Tune(tuningFromConfig(s.conf))

	logrus.Infof("set reconnect on stale to %t", r)

	c.IndentedJSON(http.StatusCreated, "ok")
}

func (s *server) reconnect(c *gin.Context) {
	if !s.broker.Reconnect() {
		c.IndentedJSON(http.StatusConflict, "no subscribers, nothing to reconnect")
		return
	}
	c.IndentedJSON(http.StatusCreated, s.broker.State().String())
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}
