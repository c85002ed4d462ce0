package devnet

import (
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/wave-portal/waveportal/internal/rpc"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
)

// client is one WebSocket connection. All writes go through send and are
// performed by writePump.
type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
	subs map[string]LogFilter // guarded by b.mu
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			return
		}
	}
}

// Broadcaster tracks connected clients and their log subscriptions.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*client]bool
	nextSub uint64
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[*client]bool),
	}
}

// AddClient registers conn and starts its write pump.
func (b *Broadcaster) AddClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		b:    b,
		send: make(chan []byte, sendBuffer),
		subs: make(map[string]LogFilter),
	}
	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	go c.writePump()
	return c
}

// RemoveClient drops c and its subscriptions. Safe to call more than once.
func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}

// DisconnectAll closes every client connection. Clients see the socket drop
// and must redial and resubscribe.
func (b *Broadcaster) DisconnectAll() {
	b.mu.Lock()
	n := len(b.clients)
	for c := range b.clients {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
	if n > 0 {
		log.WithField("component", "devnet").Infof("disconnected %d ws clients", n)
	}
}

// Send queues data for c. A client whose buffer is full is disconnected.
func (b *Broadcaster) Send(c *client, data []byte) bool {
	b.mu.RLock()
	if !b.clients[c] {
		b.mu.RUnlock()
		return false
	}
	var full bool
	select {
	case c.send <- data:
	default:
		full = true
	}
	b.mu.RUnlock()

	if full {
		log.WithField("component", "devnet").Warn("ws client too slow, disconnecting")
		b.RemoveClient(c)
		return false
	}
	return true
}

// Subscribe attaches a log filter to c and returns the subscription id.
func (b *Broadcaster) Subscribe(c *client, f LogFilter) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSub++
	id := "0x" + strconv.FormatUint(b.nextSub, 16)
	c.subs[id] = f
	return id
}

// Unsubscribe removes a subscription owned by c.
func (b *Broadcaster) Unsubscribe(c *client, id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := c.subs[id]; !ok {
		return false
	}
	delete(c.subs, id)
	return true
}

// PublishLog pushes l to every subscription whose filter matches.
func (b *Broadcaster) PublishLog(l Log) {
	type delivery struct {
		c    *client
		data []byte
	}

	b.mu.RLock()
	var out []delivery
	for c := range b.clients {
		for id, f := range c.subs {
			if !f.Matches(l) {
				continue
			}
			data, err := notification(id, l)
			if err != nil {
				log.WithField("component", "devnet").Errorf("broadcast marshal error: %v", err)
				continue
			}
			out = append(out, delivery{c, data})
		}
	}
	b.mu.RUnlock()

	for _, d := range out {
		b.Send(d.c, d.data)
	}
}

// SubscriptionCount returns the number of live subscriptions.
func (b *Broadcaster) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for c := range b.clients {
		n += len(c.subs)
	}
	return n
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func notification(subID string, result any) ([]byte, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	params, err := json.Marshal(rpc.SubscriptionResult{Subscription: subID, Result: raw})
	if err != nil {
		return nil, err
	}
	return json.Marshal(rpc.Message{
		JSONRPC: rpc.Version,
		Method:  "eth_subscription",
		Params:  params,
	})
}
