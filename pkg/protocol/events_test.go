package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewEnvelope(t *testing.T) {
	env := NewEnvelope(EventModeChanged, map[string]any{"user_id": "U1", "mode": "live_manual"})

	if env["type"] != EventModeChanged {
		t.Errorf("type = %v", env["type"])
	}
	if env["user_id"] != "U1" || env["mode"] != "live_manual" {
		t.Errorf("fields = %v", env)
	}
	ts, ok := env["timestamp"].(string)
	if !ok {
		t.Fatalf("timestamp = %v", env["timestamp"])
	}
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("timestamp not RFC3339: %v", err)
	}
}

func TestEnvelopeMarshal(t *testing.T) {
	env := NewEnvelope(EventChatEnded, map[string]any{"user_id": "U1"})
	data, err := env.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if decoded["type"] != EventChatEnded {
		t.Errorf("type = %v", decoded["type"])
	}
}

func TestPong(t *testing.T) {
	p := Pong()
	if p["type"] != EventPong {
		t.Errorf("type = %v", p["type"])
	}
	if _, ok := p["timestamp"].(int64); !ok {
		t.Errorf("timestamp = %T, want int64 millis", p["timestamp"])
	}
}
