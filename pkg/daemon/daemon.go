package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/hxstat/pkg/broker"
	"github.com/charlie0129/hxstat/pkg/config"
	"github.com/charlie0129/hxstat/pkg/device"
	"github.com/charlie0129/hxstat/pkg/events"
	"github.com/charlie0129/hxstat/pkg/metrics"
	"github.com/charlie0129/hxstat/pkg/mqtt"
	"github.com/charlie0129/hxstat/pkg/status"
)

// server holds everything the HTTP handlers need.
type server struct {
	conf    config.Config
	broker  *broker.Broker
	tracker *status.Tracker
	metrics *metrics.Metrics
	ws      *wsHub

	// keepalive is sent on idle event streams.
	keepalive time.Duration

	cancels []events.CancelFunc
	// done is closed by close to end open event streams.
	done      chan struct{}
	closeOnce sync.Once
}

func newServer(conf config.Config, b *broker.Broker) *server {
	s := &server{
		conf:      conf,
		broker:    b,
		tracker:   status.NewTracker(nil),
		metrics:   metrics.New(b.Stats),
		keepalive: 15 * time.Second,
		done:      make(chan struct{}),
	}
	s.ws = newWSHub(func() []events.Event {
		return s.tracker.Snapshot().Events()
	})

	// The daemon is a subscriber in its own right, so the headset stays
	// connected while no client is attached.
	s.cancels = append(s.cancels,
		s.tracker.Subscribe(b),
		b.Subscribe(s.metrics.Handle),
		b.Subscribe(s.ws.broadcast),
	)

	return s
}

func (s *server) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		for _, cancel := range s.cancels {
			cancel()
		}
		s.ws.closeAll()
	})
}

func (s *server) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/status", s.getStatus)
	router.GET("/events", s.streamEvents)
	router.GET("/ws", gin.WrapH(s.ws))
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	router.GET("/config", s.getConfig)
	router.PUT("/reconnect-on-stale", s.setReconnectOnStale)
	router.POST("/reconnect", s.reconnect)
	router.GET("/version", getVersion)

	return router
}

func brokerOptions(conf config.Config) (broker.Options, error) {
	opener, err := device.Open(conf.Device(), device.Options{Command: conf.DeviceCommand()})
	if err != nil {
		return broker.Options{}, err
	}
	return broker.Options{
		Opener:                opener,
		HealthCheckInterval:   conf.HealthCheckInterval(),
		FullReconnectInterval: conf.FullReconnectInterval(),
		ReconnectOnStale:      conf.ReconnectOnStale(),
	}, nil
}

func tuningFromConfig(conf config.Config) broker.Tuning {
	return broker.Tuning{
		HealthCheckInterval:   conf.HealthCheckInterval(),
		FullReconnectInterval: conf.FullReconnectInterval(),
		ReconnectOnStale:      conf.ReconnectOnStale(),
	}
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	conf, err := config.NewFile(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	opts, err := brokerOptions(conf)
	if err != nil {
		return err
	}
	b := broker.GetOrCreate(opts)

	s := newServer(conf, b)
	router := s.setupRoutes()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mqttDone := make(chan struct{})
	if m := conf.MQTT(); m.Enabled() {
		cli, err := mqtt.Dial(m.Broker)
		if err != nil {
			logrus.WithError(err).Error("mqtt publisher disabled")
			close(mqttDone)
		} else {
			go func() {
				defer close(mqttDone)
				mqtt.NewPublisher(cli, m.TopicPrefix, m.Retain).Run(ctx, b)
			}()
		}
	} else {
		close(mqttDone)
	}

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			prevDevice := conf.Device()
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			b.Tune(tuningFromConfig(conf))
			if conf.Device() != prevDevice {
				logrus.Warnf("device backend changed from %s to %s, restart the daemon to apply", prevDevice, conf.Device())
			}
			logrus.WithFields(conf.LogrusFields()).Infof("config reloaded")
		}
	}()

	srv := &http.Server{
		Handler: router,
	}

	// A stale socket from a previous run would make Listen fail.
	if err := os.Remove(unixSocketPath); err != nil && !os.IsNotExist(err) {
		logrus.Warnf("failed to remove stale socket %s: %v", unixSocketPath, err)
	}

	// Create the socket to listen on:
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	logrus.Info("shutting down http server")
	// Streams only end when their request context is cancelled, which
	// Shutdown does not do, so close the surfaces first.
	cancel()
	s.close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(shutdownCtx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	shutdownCancel()

	<-mqttDone

	logrus.Info("closing headset connection")
	b.Shutdown()

	logrus.Info("exiting")
	return nil
}
