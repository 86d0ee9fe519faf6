// Package broker shares a single headset connection between any number of
// display surfaces.
//
// The connection is opened when the first subscriber arrives and closed when
// the last one leaves. Raw events from the device library are normalized into
// events.Event values and fanned out to every subscriber. A health monitor
// forces a reconnect when the library goes silent without reporting a
// disconnect.
//
// Locking: mu guards every field below it. lifecycleMu serializes connect,
// cleanup and health ticks. dispatchMu serializes raw event processing.
// Subscriber callbacks always run without any broker lock held, so they may
// subscribe or cancel from inside a callback.
package broker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/hxstat/pkg/device"
	"github.com/charlie0129/hxstat/pkg/events"
)

const (
	DefaultHealthCheckInterval   = 30 * time.Second
	DefaultFullReconnectInterval = 5 * time.Minute
)

var _ events.Subscriber = &Broker{}

// Options configures a Broker.
type Options struct {
	// Opener opens the device library. Required.
	Opener device.Opener
	// HealthCheckInterval is how often the health monitor runs, and the idle
	// time after which the connection is considered stale.
	HealthCheckInterval time.Duration
	// FullReconnectInterval is the minimum time between forced reconnects.
	FullReconnectInterval time.Duration
	// ReconnectOnStale forces a reconnect as soon as the connection is stale,
	// without waiting for FullReconnectInterval.
	ReconnectOnStale bool
	// Now defaults to time.Now.
	Now func() time.Time
}

// Broker owns the device connection and the subscriber set.
type Broker struct {
	opts Options

	lifecycleMu sync.Mutex
	monitor     healthMonitor

	dispatchMu sync.Mutex

	mu     sync.Mutex
	state  ConnectionState
	handle device.Handle
	gen    uint64
	subs   map[*subscription]struct{}
	health healthState
	stats  Stats
}

type subscription struct {
	id     string
	fn     func(events.Event)
	active atomic.Bool
	once   sync.Once
}

// New returns a Broker. Most callers want GetOrCreate.
func New(opts Options) *Broker {
	if opts.Opener == nil {
		panic("opener cannot be nil")
	}
	if opts.HealthCheckInterval <= 0 {
		opts.HealthCheckInterval = DefaultHealthCheckInterval
	}
	if opts.FullReconnectInterval <= 0 {
		opts.FullReconnectInterval = DefaultFullReconnectInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Broker{
		opts:    opts,
		monitor: healthMonitor{interval: opts.HealthCheckInterval},
		subs:    make(map[*subscription]struct{}),
	}
}

func (b *Broker) now() time.Time {
	// Strip monotonic clock reading, so durations survive system sleep.
	return b.opts.Now().Round(0)
}

// Subscribe registers fn to receive every event normalized from now on,
// until the returned function is called. fn must not block.
//
// The first subscriber opens the connection and starts the health monitor.
// Open failures are reported to subscribers as events.Error.
func (b *Broker) Subscribe(fn func(events.Event)) events.CancelFunc {
	if fn == nil {
		logrus.Warn("ignoring nil subscriber")
		return func() {}
	}

	s := &subscription{id: uuid.NewString(), fn: fn}
	s.active.Store(true)

	b.lifecycleMu.Lock()

	b.mu.Lock()
	b.subs[s] = struct{}{}
	n := len(b.subs)
	b.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"subscription": s.id,
		"subscribers":  n,
	}).Debug("subscribed")

	var errEv events.Event
	if n == 1 {
		errEv = b.connectLocked()
		b.monitor.start(b.checkHealth)
	}

	b.lifecycleMu.Unlock()

	if errEv != nil {
		b.notifyListeners(errEv)
	}

	return func() {
		s.once.Do(func() {
			b.unsubscribe(s)
		})
	}
}

func (b *Broker) unsubscribe(s *subscription) {
	s.active.Store(false)

	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	b.mu.Lock()
	delete(b.subs, s)
	n := len(b.subs)
	b.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"subscription": s.id,
		"subscribers":  n,
	}).Debug("unsubscribed")

	if n == 0 {
		b.monitor.stop()
		b.cleanupLocked()
	}
}

// Reconnect forces a full reconnect. It returns false when there are no
// subscribers, in which case nothing is opened.
func (b *Broker) Reconnect() bool {
	b.lifecycleMu.Lock()

	b.mu.Lock()
	n := len(b.subs)
	b.mu.Unlock()

	if n == 0 {
		b.lifecycleMu.Unlock()
		return false
	}

	logrus.Info("reconnect requested")
	errEv := b.connectLocked()
	b.lifecycleMu.Unlock()

	if errEv != nil {
		b.notifyListeners(errEv)
	}
	return true
}

// Tuning holds the health check parameters that can change at runtime.
type Tuning struct {
	HealthCheckInterval   time.Duration
	FullReconnectInterval time.Duration
	ReconnectOnStale      bool
}

// Tune replaces the health check parameters. Non-positive intervals keep
// their current value. A running monitor is restarted with the new interval.
func (b *Broker) Tune(t Tuning) {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	if t.HealthCheckInterval > 0 {
		b.opts.HealthCheckInterval = t.HealthCheckInterval
	}
	if t.FullReconnectInterval > 0 {
		b.opts.FullReconnectInterval = t.FullReconnectInterval
	}
	b.opts.ReconnectOnStale = t.ReconnectOnStale

	if b.monitor.interval != b.opts.HealthCheckInterval {
		b.monitor.interval = b.opts.HealthCheckInterval
		if b.monitor.running() {
			b.monitor.stop()
			b.monitor.start(b.checkHealth)
		}
	}

	logrus.WithFields(logrus.Fields{
		"healthCheckInterval":   b.opts.HealthCheckInterval,
		"fullReconnectInterval": b.opts.FullReconnectInterval,
		"reconnectOnStale":      b.opts.ReconnectOnStale,
	}).Info("broker tuning updated")
}

// Tuning returns the current health check parameters.
func (b *Broker) Tuning() Tuning {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()
	return Tuning{
		HealthCheckInterval:   b.opts.HealthCheckInterval,
		FullReconnectInterval: b.opts.FullReconnectInterval,
		ReconnectOnStale:      b.opts.ReconnectOnStale,
	}
}

// Shutdown drops every subscriber and closes the connection.
func (b *Broker) Shutdown() {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	b.mu.Lock()
	for s := range b.subs {
		s.active.Store(false)
	}
	b.subs = make(map[*subscription]struct{})
	b.mu.Unlock()

	b.monitor.stop()
	b.cleanupLocked()
	logrus.Debug("broker shut down")
}

// connectLocked replaces the current handle with a new one. It returns the
// event to fan out on failure; the caller sends it after releasing
// lifecycleMu. Callers hold lifecycleMu.
func (b *Broker) connectLocked() events.Event {
	b.cleanupLocked()

	now := b.now()

	b.mu.Lock()
	b.state = Connecting
	gen := b.gen
	b.health.lastReconnect = now
	b.stats.Connects++
	b.mu.Unlock()

	logrus.Debug("connecting to headset")

	h, err := b.open(gen)
	if err != nil {
		b.mu.Lock()
		b.state = Disconnected
		b.stats.OpenFailures++
		b.mu.Unlock()

		oe := &OpenError{Err: err}
		logrus.WithError(err).Error("failed to connect to headset")
		return events.Error{Cause: oe}
	}

	b.mu.Lock()
	b.handle = h
	b.state = Connected
	b.mu.Unlock()

	logrus.Debug("connected to headset")
	return nil
}

// open calls the opener and registers the raw handlers for generation gen.
func (b *Broker) open(gen uint64) (h device.Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = pkgerrors.Errorf("panic while opening device: %v", r)
			if h != nil {
				b.closeHandle(h)
			}
			h = nil
		}
	}()

	h, err = b.opts.Opener()
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, pkgerrors.New("device library returned no handle")
	}

	for name := range rawHandlers {
		name := name
		h.On(name, func(args ...any) {
			b.handleRaw(gen, name, args)
		})
	}
	if st, ok := h.(device.Starter); ok {
		st.Start()
	}

	return h, nil
}

// cleanupLocked closes the current handle, if any. Callers hold lifecycleMu.
func (b *Broker) cleanupLocked() {
	b.mu.Lock()
	h := b.handle
	b.handle = nil
	// Events still in flight from the old handle are dropped from now on.
	b.gen++
	b.state = Disconnected
	if h != nil {
		b.stats.Cleanups++
	}
	b.mu.Unlock()

	if h == nil {
		return
	}

	logrus.Debug("cleaning up connection")
	b.closeHandle(h)
}

func (b *Broker) closeHandle(h device.Handle) {
	c, ok := h.(device.Closer)
	if !ok {
		logrus.Trace("handle cannot be closed, dropping it")
		return
	}

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = pkgerrors.Errorf("panic while closing device: %v", r)
			}
		}()
		return c.Close()
	}()

	if err != nil {
		logrus.WithError(&CloseError{Err: err}).Error("error during close")
	}
}

// handleRaw is the entry point of every raw event from handle generation gen.
// The generation check and the subscriber snapshot happen under one hold of
// mu, so an event from a closed handle never reaches a later subscription.
func (b *Broker) handleRaw(gen uint64, name string, args []any) {
	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()

	b.mu.Lock()
	if gen != b.gen {
		b.mu.Unlock()
		logrus.WithField("event", name).Trace("dropping event from stale connection")
		return
	}
	b.health.lastEvent = b.now()
	ev, ok := normalize(name, args, &b.health)
	var subs []*subscription
	if ok {
		subs = b.snapshotLocked(ev)
	}
	b.mu.Unlock()

	if ok {
		b.fanOut(subs, ev)
	}
}

// notifyListeners records ev in the health bookkeeping and calls every
// subscriber.
func (b *Broker) notifyListeners(ev events.Event) {
	b.mu.Lock()
	subs := b.snapshotLocked(ev)
	b.mu.Unlock()

	b.fanOut(subs, ev)
}

// snapshotLocked tracks ev and returns the current subscriber set. Callers
// hold mu.
func (b *Broker) snapshotLocked(ev events.Event) []*subscription {
	b.health.track(ev)
	b.stats.Dispatched++
	subs := make([]*subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	return subs
}

// fanOut calls every subscription in subs that was not cancelled since the
// snapshot was taken.
func (b *Broker) fanOut(subs []*subscription, ev events.Event) {
	for _, s := range subs {
		if !s.active.Load() {
			continue
		}
		b.invoke(s, ev)
	}
}

func (b *Broker) invoke(s *subscription, ev events.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.mu.Lock()
			b.stats.ListenerErrors++
			b.mu.Unlock()

			logrus.WithError(&ListenerError{Subscription: s.id, Value: r}).
				WithField("event", ev.Name()).
				Error("error in subscriber callback")
		}
	}()

	s.fn(ev)
}

// State returns the connection state.
func (b *Broker) State() ConnectionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Subscribers returns the number of active subscribers.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Health returns the health bookkeeping timestamps.
func (b *Broker) Health() Health {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Health{
		LastEvent:     b.health.lastEvent,
		LastReconnect: b.health.lastReconnect,
	}
}

// Stats returns a snapshot of the broker counters.
func (b *Broker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.State = b.state
	s.Subscribers = len(b.subs)
	return s
}

// MonitorRunning reports whether the health monitor is armed.
func (b *Broker) MonitorRunning() bool {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()
	return b.monitor.running()
}
