// Package contract is the gateway to the WavePortal contract: two reads, one
// write that waits for mining, and the NewWave event stream.
package contract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	log "github.com/sirupsen/logrus"

	"github.com/wave-portal/waveportal/internal/portal"
	"github.com/wave-portal/waveportal/internal/rpc"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// Options configures a Gateway.
type Options struct {
	Address             common.Address
	GasLimit            uint64
	ReceiptPollInterval time.Duration
	LogPollInterval     time.Duration
}

// Gateway implements portal.Ledger over a JSON-RPC provider.
type Gateway struct {
	rpc  *rpc.Client
	opts Options
}

var _ portal.Ledger = (*Gateway)(nil)

// NewGateway returns a gateway for the contract at opts.Address.
func NewGateway(client *rpc.Client, opts Options) *Gateway {
	if opts.GasLimit == 0 {
		opts.GasLimit = 300000
	}
	if opts.ReceiptPollInterval <= 0 {
		opts.ReceiptPollInterval = time.Second
	}
	if opts.LogPollInterval <= 0 {
		opts.LogPollInterval = 4 * time.Second
	}
	return &Gateway{rpc: client, opts: opts}
}

func logger() *log.Entry {
	return log.WithField("component", "contract")
}

// FetchWaveCount reads getTotalWaves.
func (g *Gateway) FetchWaveCount(ctx context.Context) (uint64, error) {
	data, err := g.call(ctx, MethodGetTotalWaves)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", portal.ErrRemoteRead, MethodGetTotalWaves, err)
	}
	count, err := UnpackTotalWaves(data)
	if err != nil {
		return 0, fmt.Errorf("%w: decode %s: %w", portal.ErrRemoteRead, MethodGetTotalWaves, err)
	}
	return count, nil
}

// FetchAllWaves reads getAllWaves in contract order.
func (g *Gateway) FetchAllWaves(ctx context.Context) ([]portal.Wave, error) {
	data, err := g.call(ctx, MethodGetAllWaves)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", portal.ErrRemoteRead, MethodGetAllWaves, err)
	}
	records, err := UnpackAllWaves(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", portal.ErrRemoteRead, MethodGetAllWaves, err)
	}
	waves := make([]portal.Wave, 0, len(records))
	for _, r := range records {
		waves = append(waves, r.ToWave())
	}
	return waves, nil
}

// SubmitWave sends wave(message) with the configured gas ceiling, waits for
// the receipt and returns the refreshed count.
func (g *Gateway) SubmitWave(ctx context.Context, message string) (uint64, error) {
	if err := portal.ValidateMessage(message); err != nil {
		return 0, err
	}
	input, err := PackWave(message)
	if err != nil {
		return 0, fmt.Errorf("%w: encode %s: %w", portal.ErrRemoteWrite, MethodWave, err)
	}

	gas := hexutil.Uint64(g.opts.GasLimit)
	tx := callArgs{To: g.opts.Address, Gas: &gas, Data: input}

	// Without an authorized account the provider picks the sender or refuses.
	var accounts []common.Address
	if err := g.rpc.Call(ctx, &accounts, "eth_accounts"); err != nil {
		logger().WithError(err).Debug("eth_accounts before send, letting the provider pick")
	} else if len(accounts) > 0 {
		tx.From = &accounts[0]
	}

	var hash common.Hash
	if err := g.rpc.Call(ctx, &hash, "eth_sendTransaction", tx); err != nil {
		return 0, classifyWriteError(err)
	}
	logger().Infof("Mining... %s", hash.Hex())

	rcpt, err := g.waitMined(ctx, hash)
	if err != nil {
		return 0, fmt.Errorf("%w: wait for %s: %w", portal.ErrRemoteWrite, hash.Hex(), err)
	}
	if rcpt.Status != 1 {
		return 0, fmt.Errorf("%w: %s reverted in block %d", portal.ErrTransactionFailed, hash.Hex(), uint64(rcpt.BlockNumber))
	}
	logger().Infof("Mined -- %s", hash.Hex())

	// The wave is on chain by now; a failed re-read is still a write outcome.
	count, err := g.FetchWaveCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %s mined, count unavailable: %v", portal.ErrRemoteWrite, hash.Hex(), err)
	}
	logger().Infof("Retrieved total wave count... %d", count)
	return count, nil
}

// SubscribeNewWave streams NewWave events. WebSocket providers push logs and
// the subscription is re-established with backoff after a drop; HTTP
// providers are polled.
func (g *Gateway) SubscribeNewWave(ctx context.Context) (<-chan portal.Wave, error) {
	out := make(chan portal.Wave, 16)

	if g.rpc.SupportsSubscriptions() {
		raw := make(chan json.RawMessage, 64)
		sub, err := g.subscribeLogs(ctx, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: subscribe %s: %w", portal.ErrRemoteRead, EventNewWave, err)
		}
		go g.forward(ctx, sub, raw, out)
		return out, nil
	}

	var head hexutil.Uint64
	if err := g.rpc.Call(ctx, &head, "eth_blockNumber"); err != nil {
		return nil, fmt.Errorf("%w: eth_blockNumber: %w", portal.ErrRemoteRead, err)
	}
	go g.poll(ctx, uint64(head), out)
	return out, nil
}

func (g *Gateway) call(ctx context.Context, method string) ([]byte, error) {
	input, err := parsedABI.Pack(method)
	if err != nil {
		return nil, err
	}
	var out hexutil.Bytes
	if err := g.rpc.Call(ctx, &out, "eth_call", callArgs{To: g.opts.Address, Data: input}, "latest"); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty return data, no contract at %s?", g.opts.Address.Hex())
	}
	return out, nil
}

func (g *Gateway) waitMined(ctx context.Context, hash common.Hash) (*receipt, error) {
	ticker := time.NewTicker(g.opts.ReceiptPollInterval)
	defer ticker.Stop()
	for {
		var r *receipt
		if err := g.rpc.Call(ctx, &r, "eth_getTransactionReceipt", hash); err != nil {
			return nil, err
		}
		if r != nil {
			return r, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (g *Gateway) filter() logFilter {
	return logFilter{
		Address: g.opts.Address,
		Topics:  []common.Hash{NewWaveTopic()},
	}
}

func (g *Gateway) subscribeLogs(ctx context.Context, raw chan json.RawMessage) (*rpc.Subscription, error) {
	return g.rpc.Subscribe(ctx, "eth", raw, "logs", g.filter())
}

func (g *Gateway) forward(ctx context.Context, sub *rpc.Subscription, raw chan json.RawMessage, out chan<- portal.Wave) {
	defer close(out)
	defer func() { sub.Unsubscribe() }()

	for {
		select {
		case <-ctx.Done():
			return

		case payload := <-raw:
			var entry logEntry
			if err := json.Unmarshal(payload, &entry); err != nil {
				logger().WithError(err).Warn("malformed log notification")
				continue
			}
			if !g.emit(ctx, entry, out) {
				return
			}

		case err := <-sub.Err():
			logger().WithError(err).Warn("NewWave subscription lost, resubscribing")
			next, ok := g.resubscribe(ctx, raw)
			if !ok {
				return
			}
			sub = next
		}
	}
}

func (g *Gateway) resubscribe(ctx context.Context, raw chan json.RawMessage) (*rpc.Subscription, bool) {
	delay := reconnectBaseDelay
	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(delay):
		}
		sub, err := g.subscribeLogs(ctx, raw)
		if err == nil {
			logger().Info("NewWave subscription restored")
			return sub, true
		}
		if errors.Is(err, rpc.ErrClosed) {
			return nil, false
		}
		logger().Debugf("resubscribe failed: %v (retry in %v)", err, delay)
		delay = min(delay*2, reconnectMaxDelay)
	}
}

func (g *Gateway) poll(ctx context.Context, cursor uint64, out chan<- portal.Wave) {
	defer close(out)
	ticker := time.NewTicker(g.opts.LogPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		var head hexutil.Uint64
		if err := g.rpc.Call(ctx, &head, "eth_blockNumber"); err != nil {
			logger().WithError(err).Warn("poll eth_blockNumber")
			continue
		}
		if uint64(head) <= cursor {
			continue
		}

		f := g.filter()
		from := hexutil.Uint64(cursor + 1)
		f.FromBlock = &from
		f.ToBlock = &head

		var entries []logEntry
		if err := g.rpc.Call(ctx, &entries, "eth_getLogs", f); err != nil {
			logger().WithError(err).Warn("poll eth_getLogs")
			continue
		}
		for _, entry := range entries {
			if !g.emit(ctx, entry, out) {
				return
			}
		}
		cursor = uint64(head)
	}
}

// emit decodes entry and sends it on out. It returns false once ctx is done.
func (g *Gateway) emit(ctx context.Context, entry logEntry, out chan<- portal.Wave) bool {
	if entry.Removed {
		return true
	}
	w, err := UnpackNewWave(entry.Topics, entry.Data)
	if err != nil {
		logger().WithError(err).Warnf("skipping log in tx %s", entry.TxHash.Hex())
		return true
	}
	logger().Infof("NewWave %s %d %q", w.Sender, w.Timestamp.Unix(), w.Message)
	select {
	case out <- w:
		return true
	case <-ctx.Done():
		return false
	}
}

func classifyWriteError(err error) error {
	switch rpc.ErrorCode(err) {
	case rpc.CodeUserRejected, rpc.CodeUnauthorized:
		return fmt.Errorf("%w: %w", portal.ErrUserRejected, err)
	}
	return fmt.Errorf("%w: eth_sendTransaction: %w", portal.ErrRemoteWrite, err)
}
