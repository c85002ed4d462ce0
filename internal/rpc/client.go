package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Options tunes how a Client reaches the provider.
type Options struct {
	DialTimeout time.Duration
	Header      http.Header
	HTTPClient  *http.Client
}

// Client talks to a single provider endpoint.
type Client struct {
	url    string
	nextID atomic.Uint64

	ws   *wsConn
	http *httpConn
}

// New creates a client for rawURL without contacting the provider. The
// first call establishes the connection.
func New(rawURL string, opts Options) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse provider url: %w", err)
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}

	c := &Client{url: rawURL}
	switch u.Scheme {
	case "ws", "wss":
		c.ws = newWSConn(rawURL, opts)
	case "http", "https":
		c.http = newHTTPConn(rawURL, opts)
	default:
		return nil, fmt.Errorf("unsupported provider scheme %q", u.Scheme)
	}
	return c, nil
}

// Dial is New followed by an eager connect for WebSocket endpoints, so an
// unreachable provider fails here.
func Dial(ctx context.Context, rawURL string, opts Options) (*Client, error) {
	c, err := New(rawURL, opts)
	if err != nil {
		return nil, err
	}
	if c.ws != nil {
		if err := c.ws.connect(ctx); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// URL returns the endpoint this client was dialed with.
func (c *Client) URL() string {
	return c.url
}

// SupportsSubscriptions reports whether Subscribe can be used.
func (c *Client) SupportsSubscriptions() bool {
	return c.ws != nil
}

// Call invokes method and decodes the result into result, which may be nil.
// A JSON null result leaves a pointer-to-pointer result nil.
func (c *Client) Call(ctx context.Context, result any, method string, params ...any) error {
	if params == nil {
		params = []any{}
	}
	rawParams, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode %s params: %w", method, err)
	}

	id := c.nextID.Add(1)
	req := &Message{
		JSONRPC: Version,
		ID:      json.RawMessage(strconv.FormatUint(id, 10)),
		Method:  method,
		Params:  rawParams,
	}

	var resp *Message
	if c.ws != nil {
		resp, err = c.ws.roundTrip(ctx, id, req)
	} else {
		resp, err = c.http.roundTrip(ctx, req)
	}
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// Subscribe issues <namespace>_subscribe with args and forwards every
// notification payload to ch. Delivery never blocks the read loop: if ch is
// full the notification is dropped.
func (c *Client) Subscribe(ctx context.Context, namespace string, ch chan<- json.RawMessage, args ...any) (*Subscription, error) {
	if c.ws == nil {
		return nil, ErrNotificationsUnsupported
	}
	var id string
	if err := c.Call(ctx, &id, namespace+"_subscribe", args...); err != nil {
		return nil, err
	}
	sub := &Subscription{
		id:        id,
		namespace: namespace,
		client:    c,
		ch:        ch,
		err:       make(chan error, 1),
	}
	c.ws.register(sub)
	return sub, nil
}

// Close drops the connection. Pending calls fail with ErrDisconnected and
// later calls with ErrClosed.
func (c *Client) Close() error {
	if c.ws != nil {
		return c.ws.close()
	}
	return nil
}

// Subscription is a live notification stream.
type Subscription struct {
	id        string
	namespace string
	client    *Client
	ch        chan<- json.RawMessage

	err  chan error
	once sync.Once
}

// ID returns the provider-assigned subscription id.
func (s *Subscription) ID() string {
	return s.id
}

// Err receives a value when the underlying connection is lost.
func (s *Subscription) Err() <-chan error {
	return s.err
}

// Unsubscribe stops delivery and tells the provider, best effort.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		if s.client.ws.unregister(s.id) {
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			defer cancel()
			_ = s.client.Call(ctx, nil, s.namespace+"_unsubscribe", s.id)
		}
	})
}

func (s *Subscription) fail(err error) {
	select {
	case s.err <- err:
	default:
	}
}
