package devnet

import (
	"net/http"
	"time"
)

// Options assembles a complete devnet.
type Options struct {
	Chain          ChainOptions
	MineDelay      time.Duration
	BotInterval    time.Duration
	AllowedOrigins []string
}

// Devnet wires a chain, its node and the HTTP/WebSocket front end together.
type Devnet struct {
	Chain       *Chain
	Broadcaster *Broadcaster
	Node        *Node
	Generator   *Generator
	Stats       *Stats
	Server      *Server
}

func New(opts Options) *Devnet {
	chain := NewChain(opts.Chain)
	b := NewBroadcaster()
	node := NewNode(chain, b, opts.MineDelay)
	stats := NewStats(chain, b)
	return &Devnet{
		Chain:       chain,
		Broadcaster: b,
		Node:        node,
		Generator:   NewGenerator(node, opts.BotInterval),
		Stats:       stats,
		Server:      NewServer(node, b, stats, opts.AllowedOrigins),
	}
}

// Handler serves JSON-RPC on "/" and the status page on "/status".
func (d *Devnet) Handler() http.Handler {
	return d.Server.Handler()
}
