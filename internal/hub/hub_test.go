package hub

import (
	"errors"
	"fmt"
	"testing"

	"github.com/livedesk-ai/livedesk/pkg/protocol"
)

type fakeObserver struct {
	id       string
	fail     bool
	received [][]byte
}

func (f *fakeObserver) ID() string { return f.id }

func (f *fakeObserver) Send(data []byte) error {
	if f.fail {
		return errors.New("connection gone")
	}
	f.received = append(f.received, data)
	return nil
}

func TestBroadcastZeroObservers(t *testing.T) {
	h := New()
	// Must be a no-op, not a panic.
	h.Broadcast(protocol.NewEnvelope(protocol.EventSystemStatus, nil))
	if h.Count() != 0 {
		t.Errorf("count = %d, want 0", h.Count())
	}
}

func TestBroadcastDeliversToAll(t *testing.T) {
	h := New()
	obs := make([]*fakeObserver, 3)
	for i := range obs {
		obs[i] = &fakeObserver{id: fmt.Sprintf("obs-%d", i)}
		h.Connect(obs[i])
	}

	h.Broadcast(protocol.NewEnvelope(protocol.EventNewMessage, map[string]any{"user_id": "U1"}))

	for _, o := range obs {
		if len(o.received) != 1 {
			t.Errorf("%s received %d frames, want 1", o.id, len(o.received))
		}
	}
}

// With K observers and M failing sends, the other K-M must still receive
// the event and the failed ones must be gone afterwards.
func TestBroadcastRemovesFailedAfterSweep(t *testing.T) {
	h := New()
	good1 := &fakeObserver{id: "good-1"}
	bad := &fakeObserver{id: "bad", fail: true}
	good2 := &fakeObserver{id: "good-2"}
	h.Connect(good1)
	h.Connect(bad)
	h.Connect(good2)

	h.Broadcast(protocol.NewEnvelope(protocol.EventNewMessage, nil))

	// good-2 registered after the failing observer and must still get the
	// frame from the same sweep.
	if len(good1.received) != 1 || len(good2.received) != 1 {
		t.Errorf("survivors received %d/%d frames, want 1/1", len(good1.received), len(good2.received))
	}
	if h.Count() != 2 {
		t.Errorf("count = %d, want 2 after removal", h.Count())
	}

	// The removed observer stays gone on the next broadcast.
	h.Broadcast(protocol.NewEnvelope(protocol.EventNewMessage, nil))
	if len(good1.received) != 2 || len(good2.received) != 2 {
		t.Errorf("second broadcast reached %d/%d, want 2/2", len(good1.received), len(good2.received))
	}
}

func TestDisconnectUnknownIsNoop(t *testing.T) {
	h := New()
	h.Connect(&fakeObserver{id: "a"})
	h.Disconnect("nope")
	if h.Count() != 1 {
		t.Errorf("count = %d, want 1", h.Count())
	}
}

func TestReconnectReplacesObserver(t *testing.T) {
	h := New()
	old := &fakeObserver{id: "dash", fail: true}
	h.Connect(old)
	fresh := &fakeObserver{id: "dash"}
	h.Connect(fresh)

	if h.Count() != 1 {
		t.Fatalf("count = %d, want 1", h.Count())
	}
	h.Broadcast(protocol.NewEnvelope(protocol.EventNewMessage, nil))
	if len(fresh.received) != 1 {
		t.Errorf("replacement received %d frames, want 1", len(fresh.received))
	}
}
