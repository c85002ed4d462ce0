package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeProvider is a scripted JSON-RPC peer:
//
//	echo       replies with its params
//	fail       replies with a 4001 error
//	silent     never replies
//	drop       closes the connection
//	x_subscribe pushes a notification before the response
type fakeProvider struct {
	conns atomic.Int32
}

func (f *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		var req Message
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if req.Method == "teapot" {
			http.Error(w, "short and stout", http.StatusTeapot)
			return
		}
		json.NewEncoder(w).Encode(f.reply(&req))
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.conns.Add(1)
	defer conn.Close()

	for {
		var req Message
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		switch req.Method {
		case "silent":
			continue
		case "drop":
			return
		case "x_subscribe":
			params, _ := json.Marshal(SubscriptionResult{Subscription: "0xabc", Result: json.RawMessage(`"early"`)})
			conn.WriteJSON(Message{JSONRPC: Version, Method: "x_subscription", Params: params})
			conn.WriteJSON(Message{JSONRPC: Version, ID: req.ID, Result: json.RawMessage(`"0xabc"`)})
			params, _ = json.Marshal(SubscriptionResult{Subscription: "0xabc", Result: json.RawMessage(`"late"`)})
			conn.WriteJSON(Message{JSONRPC: Version, Method: "x_subscription", Params: params})
			continue
		}
		conn.WriteJSON(f.reply(&req))
	}
}

func (f *fakeProvider) reply(req *Message) *Message {
	resp := &Message{JSONRPC: Version, ID: req.ID}
	switch req.Method {
	case "echo":
		resp.Result = req.Params
	case "fail":
		resp.Error = &Error{Code: CodeUserRejected, Message: "User rejected the request."}
	default:
		resp.Result = json.RawMessage("true")
	}
	return resp
}

func startFake(t *testing.T) (*fakeProvider, *httptest.Server) {
	t.Helper()
	f := &fakeProvider{}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNewRejectsScheme(t *testing.T) {
	if _, err := New("ftp://example.test", Options{}); err == nil {
		t.Error("expected unsupported scheme error")
	}
}

func TestCall(t *testing.T) {
	_, srv := startFake(t)
	for _, url := range []string{srv.URL, wsURL(srv)} {
		t.Run(url[:strings.Index(url, ":")], func(t *testing.T) {
			c, err := New(url, Options{})
			if err != nil {
				t.Fatal(err)
			}
			defer c.Close()
			ctx := testContext(t)

			var out []string
			if err := c.Call(ctx, &out, "echo", "a", "b"); err != nil {
				t.Fatalf("echo: %v", err)
			}
			if len(out) != 2 || out[0] != "a" || out[1] != "b" {
				t.Errorf("echo = %v", out)
			}

			err = c.Call(ctx, nil, "fail")
			var rpcErr *Error
			if !errors.As(err, &rpcErr) || rpcErr.Code != CodeUserRejected {
				t.Errorf("fail: got %v", err)
			}
			if ErrorCode(err) != CodeUserRejected {
				t.Errorf("ErrorCode = %d", ErrorCode(err))
			}
		})
	}
}

func TestHTTPStatusError(t *testing.T) {
	_, srv := startFake(t)
	c, _ := New(srv.URL, Options{})
	err := c.Call(testContext(t), nil, "teapot")
	if err == nil || !strings.Contains(err.Error(), "418") {
		t.Errorf("expected status error, got %v", err)
	}
	if ErrorCode(err) != 0 {
		t.Error("transport errors carry no provider code")
	}
}

func TestHTTPSubscribeUnsupported(t *testing.T) {
	_, srv := startFake(t)
	c, _ := New(srv.URL, Options{})
	if c.SupportsSubscriptions() {
		t.Error("http client should not support subscriptions")
	}
	_, err := c.Subscribe(testContext(t), "x", make(chan json.RawMessage, 1))
	if !errors.Is(err, ErrNotificationsUnsupported) {
		t.Errorf("expected ErrNotificationsUnsupported, got %v", err)
	}
}

func TestCallContextTimeout(t *testing.T) {
	_, srv := startFake(t)
	c, _ := New(wsURL(srv), Options{})
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.Call(ctx, nil, "silent"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestDialUnreachable(t *testing.T) {
	_, srv := startFake(t)
	url := wsURL(srv)
	srv.Close()

	if _, err := Dial(testContext(t), url, Options{DialTimeout: time.Second}); err == nil {
		t.Error("expected dial error")
	}
}

func TestSubscribeBacklogAndOrder(t *testing.T) {
	_, srv := startFake(t)
	c, _ := New(wsURL(srv), Options{})
	defer c.Close()

	ch := make(chan json.RawMessage, 4)
	sub, err := c.Subscribe(testContext(t), "x", ch)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if sub.ID() != "0xabc" {
		t.Errorf("id = %q", sub.ID())
	}

	for _, want := range []string{`"early"`, `"late"`} {
		select {
		case got := <-ch:
			if string(got) != want {
				t.Errorf("got %s, want %s", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestDisconnectFailsSubscriptionAndRedials(t *testing.T) {
	f, srv := startFake(t)
	c, _ := New(wsURL(srv), Options{})
	defer c.Close()
	ctx := testContext(t)

	sub, err := c.Subscribe(ctx, "x", make(chan json.RawMessage, 4))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := c.Call(ctx, nil, "drop"); !errors.Is(err, ErrDisconnected) {
		t.Errorf("call on dropped conn: expected ErrDisconnected, got %v", err)
	}

	select {
	case err := <-sub.Err():
		if !errors.Is(err, ErrDisconnected) {
			t.Errorf("sub err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not failed after drop")
	}

	var ok bool
	if err := c.Call(ctx, &ok, "ping"); err != nil || !ok {
		t.Fatalf("call after drop: %v", err)
	}
	if got := f.conns.Load(); got != 2 {
		t.Errorf("expected a redial, saw %d connections", got)
	}
}

func TestClose(t *testing.T) {
	_, srv := startFake(t)
	c, _ := New(wsURL(srv), Options{})
	if err := c.Call(testContext(t), nil, "ping"); err != nil {
		t.Fatal(err)
	}
	c.Close()
	if err := c.Call(testContext(t), nil, "ping"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
