package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// httpConn posts one JSON-RPC request per HTTP round trip.
type httpConn struct {
	url    string
	header http.Header
	client *http.Client
}

func newHTTPConn(url string, opts Options) *httpConn {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.DialTimeout}
	}
	return &httpConn{
		url:    url,
		header: opts.Header,
		client: client,
	}
}

func (h *httpConn) roundTrip(ctx context.Context, req *Message) (*Message, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	for k, vs := range h.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("POST %s: %d %s", h.url, resp.StatusCode, string(body))
	}

	var out Message
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}
