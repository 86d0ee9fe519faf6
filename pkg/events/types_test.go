package events

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		in       Event
		wantName string
		wantData string
	}{
		{Battery{Percent: 42}, NameBattery, `{"value":42}`},
		{Power{State: PowerOff}, NamePower, `{"value":"off"}`},
		{Muted{Value: true}, NameMuted, `{"value":true}`},
		{Error{Cause: errors.New("boom")}, NameError, `{"error":"boom"}`},
		{Error{}, NameError, `{"error":""}`},
	}

	for _, tt := range tests {
		m, err := Encode(tt.in)
		if err != nil {
			t.Fatalf("Encode(%v): %v", tt.in, err)
		}
		if m.Name != tt.wantName || string(m.Data) != tt.wantData {
			t.Errorf("Encode(%v) = %s %s, want %s %s", tt.in, m.Name, m.Data, tt.wantName, tt.wantData)
		}
	}

	if _, err := Encode(nil); err == nil {
		t.Errorf("expected an error for a nil event")
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"unknown name", Message{Name: "volume", Data: json.RawMessage(`{"value":1}`)}},
		{"bad power value", Message{Name: NamePower, Data: json.RawMessage(`{"value":"standby"}`)}},
		{"missing power value", Message{Name: NamePower}},
		{"wrong battery type", Message{Name: NameBattery, Data: json.RawMessage(`{"value":"full"}`)}},
		{"malformed json", Message{Name: NameMuted, Data: json.RawMessage(`{`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if ev, err := Decode(tt.msg); err == nil {
				t.Errorf("expected an error, got %v", ev)
			}
		})
	}
}

func TestDecodeError(t *testing.T) {
	ev, err := Decode(Message{Name: NameError, Data: json.RawMessage(`{"error":"device unplugged"}`)})
	if err != nil {
		t.Fatal(err)
	}
	e, ok := ev.(Error)
	if !ok || e.Cause == nil || e.Cause.Error() != "device unplugged" {
		t.Fatalf("unexpected event %v", ev)
	}
}

func TestDecodeAsEmpty(t *testing.T) {
	p, err := DecodeAs[BatteryPayload](Message{Name: NameBattery})
	if err != nil || p.Value != 0 {
		t.Fatalf("expected zero payload, got %v %v", p, err)
	}
}
