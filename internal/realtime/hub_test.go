package realtime

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func newTestClient(hub *Hub, userID uuid.UUID, tenantID *uuid.UUID, buffer int) *Client {
	c := NewClient(hub, nil, userID, tenantID, buffer, zap.NewNop())
	hub.Register(c)
	return c
}

func drain(t *testing.T, c *Client) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		select {
		case data := <-c.send:
			var env Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func TestDeliverRespectsTenantBinding(t *testing.T) {
	hub := NewHub(zap.NewNop())
	userID := uuid.New()
	t1, t2 := uuid.New(), uuid.New()

	inT1 := newTestClient(hub, userID, &t1, 4)
	inT2 := newTestClient(hub, userID, &t2, 4)

	if n := hub.Deliver(userID, &t1, NewEnvelope(EventMessageNew, uuid.New(), map[string]string{"content": "hi"})); n != 1 {
		t.Fatalf("delivered to %d connections, want 1", n)
	}

	if got := drain(t, inT1); len(got) != 1 || got[0].Type != EventMessageNew {
		t.Fatalf("t1 client got %+v", got)
	}
	if got := drain(t, inT2); len(got) != 0 {
		t.Fatalf("t2 client must not receive t1 events, got %+v", got)
	}

	if n := hub.Deliver(userID, nil, NewEnvelope(EventChannelCreated, uuid.New(), nil)); n != 2 {
		t.Fatalf("tenantless delivery reached %d connections, want 2", n)
	}
	if len(drain(t, inT1)) != 1 || len(drain(t, inT2)) != 1 {
		t.Fatal("tenantless delivery should reach every connection")
	}
}

func TestDeliverCountsOnlyBoundConnections(t *testing.T) {
	hub := NewHub(zap.NewNop())
	userID := uuid.New()
	building, elsewhere := uuid.New(), uuid.New()

	env := NewEnvelope(EventCallOffer, uuid.New(), nil)
	if n := hub.Deliver(userID, &building, env); n != 0 {
		t.Fatalf("offline user: delivered = %d", n)
	}

	newTestClient(hub, userID, &elsewhere, 4)
	newTestClient(hub, userID, nil, 4)
	if n := hub.Deliver(userID, &building, env); n != 0 {
		t.Fatalf("connections bound elsewhere: delivered = %d, want 0", n)
	}
	if !hub.IsConnected(userID) {
		t.Fatal("user should still count as connected")
	}
}

func TestDeliverDropsSlowClient(t *testing.T) {
	hub := NewHub(zap.NewNop())
	userID := uuid.New()
	c := newTestClient(hub, userID, nil, 1)

	hub.Deliver(userID, nil, NewEnvelope(EventMessageNew, uuid.New(), nil))
	hub.Deliver(userID, nil, NewEnvelope(EventMessageNew, uuid.New(), nil))

	if hub.IsConnected(userID) {
		t.Fatal("slow client should be unregistered")
	}
	select {
	case <-c.done:
	default:
		t.Fatal("slow client should be closed")
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(zap.NewNop())
	userID := uuid.New()

	a := newTestClient(hub, userID, nil, 1)
	b := newTestClient(hub, userID, nil, 1)
	if !hub.IsConnected(userID) || hub.ConnectionCount() != 2 {
		t.Fatalf("count = %d", hub.ConnectionCount())
	}

	hub.Unregister(a)
	hub.Unregister(a)
	if !hub.IsConnected(userID) {
		t.Fatal("b is still connected")
	}
	hub.Unregister(b)
	if hub.IsConnected(userID) || hub.ConnectionCount() != 0 {
		t.Fatal("expected no connections")
	}
}

func TestDeliverConcurrent(t *testing.T) {
	hub := NewHub(zap.NewNop())
	userID := uuid.New()
	c := newTestClient(hub, userID, nil, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Deliver(userID, nil, NewEnvelope(EventMessageNew, uuid.New(), nil))
		}()
	}
	wg.Wait()

	if got := len(drain(t, c)); got != 50 {
		t.Fatalf("delivered = %d, want 50", got)
	}
}

func TestCloseDisconnectsAll(t *testing.T) {
	hub := NewHub(zap.NewNop())
	c := newTestClient(hub, uuid.New(), nil, 1)

	hub.Close()
	hub.Close()

	if hub.ConnectionCount() != 0 {
		t.Fatal("expected empty registry")
	}
	select {
	case <-c.done:
	default:
		t.Fatal("client not closed")
	}
}
