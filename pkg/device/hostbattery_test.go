package device

import (
	"errors"
	"testing"
	"time"

	"github.com/distatus/battery"
)

func TestHostBatteryPoll(t *testing.T) {
	tests := []struct {
		name      string
		batteries []*battery.Battery
		err       error
		want      []string
		wantPct   int
	}{
		{
			name:      "discharging",
			batteries: []*battery.Battery{{State: battery.Discharging, Current: 40, Full: 80}},
			want:      []string{EventConnected, EventPower, EventBattery, EventCharging},
			wantPct:   50,
		},
		{
			name:    "no battery",
			want:    []string{EventConnected, EventPower},
			wantPct: -1,
		},
		{
			name:    "read failure",
			err:     errors.New("no acpi"),
			want:    []string{EventConnected, EventError},
			wantPct: -1,
		},
		{
			name:      "partial failure uses what was read",
			batteries: []*battery.Battery{nil, {Current: 99, Full: 100}},
			err:       errors.New("one battery failed"),
			want:      []string{EventConnected, EventPower, EventBattery, EventCharging},
			wantPct:   99,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := getBatteries
			defer func() { getBatteries = orig }()
			getBatteries = func() ([]*battery.Battery, error) {
				return tt.batteries, tt.err
			}

			h := NewHostBattery(time.Hour)
			r := &rawRecorder{}
			r.on(h, EventConnected, EventPower, EventBattery, EventCharging, EventError)
			h.Start()
			defer h.Close()

			deadline := time.Now().Add(5 * time.Second)
			for len(r.names()) < len(tt.want) {
				if time.Now().After(deadline) {
					t.Fatalf("timed out, got %v", r.names())
				}
				time.Sleep(time.Millisecond)
			}

			got := r.names()
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
			if tt.wantPct >= 0 {
				r.mu.Lock()
				pct := r.args[2][0]
				r.mu.Unlock()
				if pct != tt.wantPct {
					t.Fatalf("expected %d%%, got %v", tt.wantPct, pct)
				}
			}
		})
	}
}

func TestHostBatteryPowerChangesOnly(t *testing.T) {
	h := NewHostBattery(time.Hour)
	r := &rawRecorder{}
	r.on(h, EventPower)

	h.setPower("on")
	h.setPower("on")
	h.setPower("off")

	if got := r.names(); len(got) != 2 {
		t.Fatalf("expected two power events, got %v", got)
	}

	_ = h.Close()
	h.setPower("on")
	if got := r.names(); len(got) != 2 {
		t.Fatalf("closed handle must not emit, got %v", got)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
