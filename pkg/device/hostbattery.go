package device

import (
	"math"
	"sync"
	"time"

	"github.com/distatus/battery"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	_ Closer  = &HostBattery{}
	_ Starter = &HostBattery{}
)

const defaultHostPollInterval = 30 * time.Second

// getBatteries is replaced in tests.
var getBatteries = battery.GetAll

// HostBattery is a Handle backed by the battery of the machine we run on.
// It lets display surfaces be exercised without a headset attached.
type HostBattery struct {
	interval time.Duration

	mu       sync.RWMutex
	handlers map[string][]func(args ...any)

	startOnce sync.Once
	closeOnce sync.Once
	stopCh    chan struct{}

	lastPower string
}

// HostBatteryOpener returns an Opener polling the host battery every
// interval. A non-positive interval selects the default of 30s.
func HostBatteryOpener(interval time.Duration) Opener {
	if interval <= 0 {
		interval = defaultHostPollInterval
	}
	return func() (Handle, error) {
		return NewHostBattery(interval), nil
	}
}

// NewHostBattery returns a HostBattery. Polling begins with Start.
func NewHostBattery(interval time.Duration) *HostBattery {
	return &HostBattery{
		interval: interval,
		handlers: make(map[string][]func(args ...any)),
		stopCh:   make(chan struct{}),
	}
}

// On registers fn for name.
func (h *HostBattery) On(name string, fn func(args ...any)) {
	h.mu.Lock()
	h.handlers[name] = append(h.handlers[name], fn)
	h.mu.Unlock()
}

// Start begins polling.
func (h *HostBattery) Start() {
	h.startOnce.Do(func() {
		go h.loop()
	})
}

func (h *HostBattery) loop() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.emit(EventConnected)
	h.poll()

	for {
		select {
		case <-ticker.C:
			h.poll()
		case <-h.stopCh:
			logrus.Debug("host battery polling stopped")
			return
		}
	}
}

func (h *HostBattery) poll() {
	batteries, err := getBatteries()
	if err != nil && len(batteries) == 0 {
		h.emit(EventError, pkgerrors.Wrap(err, "failed to read host battery"))
		return
	}

	var bat *battery.Battery
	for _, b := range batteries {
		if b != nil {
			bat = b
			break
		}
	}

	if bat == nil {
		h.setPower("off")
		return
	}

	h.setPower("on")
	if bat.Full > 0 {
		h.emit(EventBattery, int(math.Round(bat.Current/bat.Full*100)))
	}
	h.emit(EventCharging, bat.State == battery.Charging)
}

func (h *HostBattery) setPower(state string) {
	if h.lastPower == state {
		return
	}
	h.lastPower = state
	h.emit(EventPower, state)
}

func (h *HostBattery) emit(name string, args ...any) {
	select {
	case <-h.stopCh:
		return
	default:
	}

	h.mu.RLock()
	fns := append([]func(args ...any){}, h.handlers[name]...)
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(args...)
	}
}

// Close stops polling. It is safe to call more than once.
func (h *HostBattery) Close() error {
	h.closeOnce.Do(func() {
		close(h.stopCh)
	})
	return nil
}
