package devnet

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/wave-portal/waveportal/internal/rpc"
)

// dialTestWS returns a server-side conn and the client end talking to it.
func dialTestWS(t *testing.T) (*httptest.Server, *websocket.Conn, *websocket.Conn) {
	t.Helper()

	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connCh <- c
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}

	select {
	case serverConn := <-connCh:
		return srv, serverConn, clientConn
	case <-time.After(2 * time.Second):
		srv.Close()
		t.Fatal("timed out waiting for server-side WebSocket connection")
		return nil, nil, nil
	}
}

func TestWritePumpRemovesClientOnWriteError(t *testing.T) {
	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	clientConn.Close()

	b := NewBroadcaster()
	c := &client{
		conn: serverConn,
		b:    b,
		send: make(chan []byte, sendBuffer),
		subs: make(map[string]LogFilter),
	}
	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	serverConn.Close()
	c.send <- []byte(`{}`)
	go c.writePump()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.ClientCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("client not removed after write error; ClientCount = %d", b.ClientCount())
}

func TestRemoveClientIdempotent(t *testing.T) {
	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	defer clientConn.Close()

	b := NewBroadcaster()
	c := b.AddClient(serverConn)
	b.RemoveClient(c)
	b.RemoveClient(c)
	if b.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", b.ClientCount())
	}
	if b.Send(c, []byte("x")) {
		t.Error("Send to a removed client should report false")
	}
}

func TestPublishLogDeliversMatchingSubscriptions(t *testing.T) {
	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	defer clientConn.Close()

	b := NewBroadcaster()
	c := b.AddClient(serverConn)

	addr := common.HexToAddress("0x01")
	matching := b.Subscribe(c, LogFilter{Address: &addr})
	b.Subscribe(c, LogFilter{Address: &common.Address{}})
	if b.SubscriptionCount() != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", b.SubscriptionCount())
	}

	b.PublishLog(Log{Address: addr, BlockNumber: 7})

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := clientConn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg rpc.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Method != "eth_subscription" {
		t.Fatalf("method = %q", msg.Method)
	}
	var p rpc.SubscriptionResult
	if err := json.Unmarshal(msg.Params, &p); err != nil {
		t.Fatal(err)
	}
	if p.Subscription != matching {
		t.Errorf("subscription = %q, want %q", p.Subscription, matching)
	}
	var l Log
	if err := json.Unmarshal(p.Result, &l); err != nil || l.BlockNumber != 7 {
		t.Errorf("payload %s (%v)", p.Result, err)
	}

	// only the matching subscription fires
	clientConn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := clientConn.ReadMessage(); err == nil {
		t.Error("unexpected second notification")
	}
}

func TestUnsubscribe(t *testing.T) {
	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	defer clientConn.Close()

	b := NewBroadcaster()
	c := b.AddClient(serverConn)
	id := b.Subscribe(c, LogFilter{})

	if !b.Unsubscribe(c, id) {
		t.Fatal("first unsubscribe should succeed")
	}
	if b.Unsubscribe(c, id) {
		t.Error("second unsubscribe should report false")
	}
	if b.SubscriptionCount() != 0 {
		t.Errorf("expected 0 subscriptions, got %d", b.SubscriptionCount())
	}
}
