// Package rpc provides a JSON-RPC 2.0 client for Ethereum wallet providers.
// WebSocket endpoints support calls and eth_subscribe notifications; HTTP
// endpoints support calls only. The wire types are shared with the devnet
// server.
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Standard JSON-RPC and EIP-1193 provider error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603

	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
)

const Version = "2.0"

var (
	ErrNotificationsUnsupported = errors.New("rpc: notifications not supported")
	ErrDisconnected             = errors.New("rpc: connection lost")
	ErrClosed                   = errors.New("rpc: client closed")
)

// Message is the envelope for requests, responses and notifications.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// IsNotification reports whether m is a server push with no request id.
func (m *Message) IsNotification() bool {
	return len(m.ID) == 0 && m.Method != ""
}

// IsCall reports whether m is a request expecting a response.
func (m *Message) IsCall() bool {
	return len(m.ID) > 0 && m.Method != ""
}

// Error is a JSON-RPC error object returned by the provider.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// SubscriptionResult is the params payload of an eth_subscription push.
type SubscriptionResult struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// ErrorCode returns the provider error code carried by err, or 0.
func ErrorCode(err error) int {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Code
	}
	return 0
}
