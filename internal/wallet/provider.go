// Package wallet adapts an EIP-1193 style JSON-RPC wallet provider to the
// portal.Wallet capability.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	log "github.com/sirupsen/logrus"

	"github.com/wave-portal/waveportal/internal/portal"
	"github.com/wave-portal/waveportal/internal/rpc"
)

// Provider implements portal.Wallet. A nil client behaves as an absent
// provider.
type Provider struct {
	rpc *rpc.Client
}

var _ portal.Wallet = (*Provider)(nil)

func NewProvider(client *rpc.Client) *Provider {
	return &Provider{rpc: client}
}

func logger() *log.Entry {
	return log.WithField("component", "wallet")
}

// Detect probes the provider with eth_chainId.
func (p *Provider) Detect(ctx context.Context) bool {
	if p.rpc == nil {
		return false
	}
	var id hexutil.Uint64
	if err := p.rpc.Call(ctx, &id, "eth_chainId"); err != nil {
		logger().Debugf("provider probe failed: %v", err)
		return false
	}
	logger().Debugf("provider found on %s (chain %d)", p.rpc.URL(), uint64(id))
	return true
}

// ChainID returns the network id reported by the provider.
func (p *Provider) ChainID(ctx context.Context) (uint64, error) {
	if p.rpc == nil {
		return 0, portal.ErrNoProvider
	}
	var id hexutil.Uint64
	if err := p.rpc.Call(ctx, &id, "eth_chainId"); err != nil {
		return 0, classify(err, portal.ErrRemoteRead)
	}
	return uint64(id), nil
}

// CurrentAccounts returns the accounts already authorized, without prompting.
func (p *Provider) CurrentAccounts(ctx context.Context) ([]string, error) {
	if p.rpc == nil {
		return nil, portal.ErrNoProvider
	}
	var accounts []common.Address
	if err := p.rpc.Call(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, classify(err, portal.ErrRemoteRead)
	}
	return hexAccounts(accounts), nil
}

// RequestAccess prompts the provider for authorization and returns the first
// account granted.
func (p *Provider) RequestAccess(ctx context.Context) (string, error) {
	if p.rpc == nil {
		return "", portal.ErrNoProvider
	}
	var accounts []common.Address
	if err := p.rpc.Call(ctx, &accounts, "eth_requestAccounts"); err != nil {
		switch rpc.ErrorCode(err) {
		case rpc.CodeUserRejected, rpc.CodeUnauthorized:
			return "", fmt.Errorf("%w: %w", portal.ErrUserRejected, err)
		}
		return "", classify(err, portal.ErrRemoteRead)
	}
	if len(accounts) == 0 {
		return "", portal.ErrUserRejected
	}
	account := accounts[0].Hex()
	logger().Infof("Connected %s", account)
	return account, nil
}

// classify maps transport failures to ErrNoProvider and provider error
// objects to fallback.
func classify(err error, fallback error) error {
	var rpcErr *rpc.Error
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("%w: %w", fallback, err)
	}
	return fmt.Errorf("%w: %w", portal.ErrNoProvider, err)
}

func hexAccounts(accounts []common.Address) []string {
	out := make([]string, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.Hex())
	}
	return out
}
