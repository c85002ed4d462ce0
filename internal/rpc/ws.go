package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second

	// notifications that arrive before their subscribe response is matched
	maxBacklog = 16
)

// wsConn owns one WebSocket connection to the provider. The connection is
// redialed lazily by the next call after a drop.
type wsConn struct {
	url    string
	dialer *websocket.Dialer
	opts   Options

	mu       sync.Mutex
	writeMu  sync.Mutex // serialises all conn writes (calls, pings)
	conn     *websocket.Conn
	pending  map[uint64]chan *Message
	subs     map[string]*Subscription
	backlog  map[string][]json.RawMessage
	pingStop context.CancelFunc
	closed   bool
}

func newWSConn(url string, opts Options) *wsConn {
	return &wsConn{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: opts.DialTimeout,
		},
		opts:    opts,
		pending: make(map[uint64]chan *Message),
		subs:    make(map[string]*Subscription),
		backlog: make(map[string][]json.RawMessage),
	}
}

func (w *wsConn) connect(ctx context.Context) error {
	_, err := w.ensure(ctx)
	return err
}

// ensure returns the live connection, dialing one if needed.
func (w *wsConn) ensure(ctx context.Context) (*websocket.Conn, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}
	if w.conn != nil {
		return w.conn, nil
	}

	conn, _, err := w.dialer.DialContext(ctx, w.url, w.opts.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", w.url, err)
	}

	pingCtx, pingCancel := context.WithCancel(context.Background())
	w.conn = conn
	w.pingStop = pingCancel

	go w.readLoop(conn)
	go w.pingLoop(pingCtx, conn)

	log.WithField("component", "rpc").Debugf("connected to %s", w.url)
	return conn, nil
}

func (w *wsConn) roundTrip(ctx context.Context, id uint64, req *Message) (*Message, error) {
	conn, err := w.ensure(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan *Message, 1)
	w.mu.Lock()
	w.pending[id] = ch
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.pending, id)
		w.mu.Unlock()
	}()

	w.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err = conn.WriteJSON(req)
	w.writeMu.Unlock()
	if err != nil {
		w.drop(conn, err)
		return nil, fmt.Errorf("%w: %v", ErrDisconnected, err)
	}

	select {
	case resp := <-ch:
		if resp == nil {
			return nil, ErrDisconnected
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *wsConn) readLoop(conn *websocket.Conn) {
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})
	conn.SetReadDeadline(time.Now().Add(pongTimeout))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			w.drop(conn, err)
			return
		}
		// any traffic proves the peer is alive
		conn.SetReadDeadline(time.Now().Add(pongTimeout))

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.WithField("component", "rpc").Debugf("ignoring malformed frame: %v", err)
			continue
		}
		w.dispatch(&msg)
	}
}

func (w *wsConn) dispatch(msg *Message) {
	if msg.IsNotification() {
		if !strings.HasSuffix(msg.Method, "_subscription") {
			return
		}
		var p SubscriptionResult
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			return
		}
		w.deliver(p.Subscription, p.Result)
		return
	}

	id, err := strconv.ParseUint(string(msg.ID), 10, 64)
	if err != nil {
		return
	}
	w.mu.Lock()
	ch, ok := w.pending[id]
	w.mu.Unlock()
	if ok {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (w *wsConn) deliver(subID string, payload json.RawMessage) {
	w.mu.Lock()
	sub, ok := w.subs[subID]
	if !ok {
		if len(w.backlog[subID]) < maxBacklog {
			w.backlog[subID] = append(w.backlog[subID], payload)
		}
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	select {
	case sub.ch <- payload:
	default:
		log.WithField("component", "rpc").Warnf("subscription %s consumer too slow, dropping notification", subID)
	}
}

func (w *wsConn) register(sub *Subscription) {
	w.mu.Lock()
	w.subs[sub.id] = sub
	queued := w.backlog[sub.id]
	delete(w.backlog, sub.id)
	w.mu.Unlock()

	for _, payload := range queued {
		select {
		case sub.ch <- payload:
		default:
		}
	}
}

func (w *wsConn) unregister(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.subs[id]
	delete(w.subs, id)
	return ok
}

// drop tears down conn if it is still the active connection, failing every
// pending call and subscription bound to it.
func (w *wsConn) drop(conn *websocket.Conn, cause error) {
	w.mu.Lock()
	if w.conn != conn {
		w.mu.Unlock()
		conn.Close()
		return
	}
	w.conn = nil
	if w.pingStop != nil {
		w.pingStop()
		w.pingStop = nil
	}
	pending := w.pending
	w.pending = make(map[uint64]chan *Message)
	subs := w.subs
	w.subs = make(map[string]*Subscription)
	w.backlog = make(map[string][]json.RawMessage)
	closed := w.closed
	w.mu.Unlock()

	conn.Close()
	for _, ch := range pending {
		select {
		case ch <- nil:
		default:
		}
	}
	for _, sub := range subs {
		sub.fail(fmt.Errorf("%w: %v", ErrDisconnected, cause))
	}
	if !closed {
		log.WithField("component", "rpc").Warnf("connection to %s lost: %v", w.url, cause)
	}
}

// pingLoop sends periodic pings on conn until ctx is cancelled or a write
// fails.
func (w *wsConn) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			w.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (w *wsConn) close() error {
	w.mu.Lock()
	w.closed = true
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return nil
	}

	w.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	w.writeMu.Unlock()

	w.drop(conn, ErrClosed)
	return nil
}
