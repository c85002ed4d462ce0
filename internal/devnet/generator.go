package devnet

import (
	"context"
	"time"
)

// botPool is how many distinct bot addresses take turns waving.
const botPool = 8

var botMessages = []string{
	"gm from the devnet",
	"first!",
	"check out https://github.com/ethereum/go-ethereum",
	"**bold** waves only",
	"hello from a bot :wave:",
	"just mined this one",
	"wagmi",
	"testing, testing, 1 2 3",
}

// Generator fills the chain with waves from bot accounts so a fresh devnet
// has something to show.
type Generator struct {
	node     *Node
	interval time.Duration
	next     int
}

func NewGenerator(node *Node, interval time.Duration) *Generator {
	return &Generator{node: node, interval: interval}
}

// Seed mines n bot waves immediately.
func (g *Generator) Seed(n int) {
	for i := 0; i < n; i++ {
		tx := g.nextTx()
		hash := g.node.Chain().Submit(tx)
		g.node.mine(hash)
	}
	if n > 0 {
		logger().Infof("seeded %d bot waves", n)
	}
}

// Start posts a bot wave every interval until ctx is done. A zero interval
// disables the generator.
func (g *Generator) Start(ctx context.Context) {
	if g.interval <= 0 {
		return
	}
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tx := g.nextTx()
			hash := g.node.SendTransaction(tx)
			logger().Debugf("bot %s waved: %s", tx.From.Hex(), hash.Hex())
		}
	}
}

func (g *Generator) nextTx() Tx {
	i := g.next
	g.next++
	msg := botMessages[i%len(botMessages)]
	return Tx{
		From:    DeriveAddress("bot", i%botPool),
		Gas:     BlockGasLimit,
		Message: msg,
	}
}
