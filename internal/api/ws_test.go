package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/courtyard/internal/models"
	"github.com/lalith-99/courtyard/internal/realtime"
)

type wireEnvelope struct {
	Type      realtime.EventType `json:"type"`
	ChannelID uuid.UUID          `json:"channel_id"`
	Payload   json.RawMessage    `json:"payload"`
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws"
}

// waitConnected polls until the hub has registered userID; the upgrade
// completes on the client side slightly before Serve registers.
func waitConnected(t *testing.T, hub *realtime.Hub, userID uuid.UUID) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !hub.IsConnected(userID) {
		if time.Now().After(deadline) {
			t.Fatal("client never registered with the hub")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) wireEnvelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode envelope %s: %v", data, err)
	}
	return env
}

func TestWebsocketReceivesMessages(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	_, alice := e.user("Alice", models.TenantRoleResident)
	bobID, bob := e.user("Bob", models.TenantRoleResident)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv)+"?token="+bob, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitConnected(t, e.hub, bobID)

	rec := e.do(http.MethodPost, "/v1/channels/direct", alice, gin.H{"user_id": bobID})
	wantStatus(t, rec, http.StatusCreated)
	ch := decode[models.Channel](t, rec)

	if env := readEnvelope(t, conn); env.Type != realtime.EventChannelCreated || env.ChannelID != ch.ID {
		t.Fatalf("first envelope = %+v", env)
	}

	wantStatus(t, e.do(http.MethodPost, "/v1/channels/"+ch.ID.String()+"/messages", alice, gin.H{"content": "knock knock"}), http.StatusCreated)

	env := readEnvelope(t, conn)
	if env.Type != realtime.EventMessageNew {
		t.Fatalf("envelope type = %s", env.Type)
	}
	var msg models.Message
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if msg.Content != "knock knock" || msg.ChannelID != ch.ID {
		t.Fatalf("payload = %+v", msg)
	}
}

func TestWebsocketSubprotocolToken(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()
	bobID, bob := e.user("Bob", models.TenantRoleResident)

	dialer := websocket.Dialer{Subprotocols: []string{"bearer", bob}, HandshakeTimeout: 2 * time.Second}
	conn, resp, err := dialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if got := resp.Header.Get("Sec-WebSocket-Protocol"); got != "bearer" {
		t.Fatalf("negotiated subprotocol = %q, want bearer", got)
	}
	waitConnected(t, e.hub, bobID)
}

func TestWebsocketRejectsBadToken(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	for name, url := range map[string]string{
		"missing": wsURL(srv),
		"garbage": wsURL(srv) + "?token=not-a-jwt",
	} {
		t.Run(name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(url, nil)
			if err == nil {
				t.Fatal("dial succeeded without a valid token")
			}
			if resp == nil || resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("response = %+v, want 401", resp)
			}
		})
	}
}

func TestWebsocketClosedOnHubShutdown(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()
	bobID, bob := e.user("Bob", models.TenantRoleResident)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv)+"?token="+bob, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitConnected(t, e.hub, bobID)

	e.hub.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("read succeeded after hub shutdown")
	}
	if e.hub.IsConnected(bobID) {
		t.Fatal("client still registered after shutdown")
	}
}
