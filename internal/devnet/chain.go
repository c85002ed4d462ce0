// Package devnet is a local, in-memory stand-in for a wallet provider and a
// deployed WavePortal contract. It speaks the JSON-RPC subset the client
// uses so the client can run and be tested without a live network.
package devnet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/wave-portal/waveportal/internal/contract"
)

const (
	// BlockGasLimit is used when a transaction carries no gas field.
	BlockGasLimit = 30_000_000

	baseWaveGas    = 30_000
	perByteWaveGas = 200
)

var (
	ErrAccessRejected = errors.New("user rejected the request")
	ErrUnknownTx      = errors.New("unknown transaction")
)

// Receipt mirrors the eth_getTransactionReceipt object.
type Receipt struct {
	TxHash      common.Hash    `json:"transactionHash"`
	BlockNumber hexutil.Uint64 `json:"blockNumber"`
	BlockHash   common.Hash    `json:"blockHash"`
	From        common.Address `json:"from"`
	To          common.Address `json:"to"`
	GasUsed     hexutil.Uint64 `json:"gasUsed"`
	Status      hexutil.Uint64 `json:"status"`
	Logs        []Log          `json:"logs"`
}

// Log mirrors an Ethereum log object.
type Log struct {
	Address     common.Address `json:"address"`
	Topics      []common.Hash  `json:"topics"`
	Data        hexutil.Bytes  `json:"data"`
	BlockNumber hexutil.Uint64 `json:"blockNumber"`
	BlockHash   common.Hash    `json:"blockHash"`
	TxHash      common.Hash    `json:"transactionHash"`
	LogIndex    hexutil.Uint   `json:"logIndex"`
	Removed     bool           `json:"removed"`
}

// Tx is a wave transaction waiting to be mined.
type Tx struct {
	From    common.Address
	Gas     uint64
	Message string
}

// LogFilter selects logs by block range, address and topics. Zero values
// match everything.
type LogFilter struct {
	FromBlock uint64
	ToBlock   uint64 // 0 means latest
	Address   *common.Address
	Topics    []common.Hash // zero hash is a wildcard
}

// Matches reports whether l satisfies the filter's address and topics.
func (f LogFilter) Matches(l Log) bool {
	if f.Address != nil && *f.Address != l.Address {
		return false
	}
	for i, t := range f.Topics {
		if t == (common.Hash{}) {
			continue
		}
		if i >= len(l.Topics) || l.Topics[i] != t {
			return false
		}
	}
	return true
}

// ChainOptions configures a Chain.
type ChainOptions struct {
	ChainID      uint64
	Contract     common.Address
	Accounts     int
	Preauthorize bool
	RejectAccess bool
	Cooldown     time.Duration
}

// Chain holds wallet accounts and WavePortal contract state.
type Chain struct {
	mu sync.RWMutex

	chainID  uint64
	contract common.Address
	cooldown time.Duration
	now      func() time.Time
	packLog  func(ts *big.Int, message string) ([]byte, error)

	accounts     []common.Address
	authorized   map[common.Address]bool
	rejectAccess bool

	waves    []contract.Record
	lastWave map[common.Address]time.Time

	pending  map[common.Hash]Tx
	receipts map[common.Hash]*Receipt
	logs     []Log
	height   uint64
	nonce    uint64
}

func NewChain(opts ChainOptions) *Chain {
	c := &Chain{
		chainID:      opts.ChainID,
		contract:     opts.Contract,
		cooldown:     opts.Cooldown,
		now:          time.Now,
		packLog:      packNewWave,
		authorized:   make(map[common.Address]bool),
		rejectAccess: opts.RejectAccess,
		lastWave:     make(map[common.Address]time.Time),
		pending:      make(map[common.Hash]Tx),
		receipts:     make(map[common.Hash]*Receipt),
	}
	for i := 0; i < opts.Accounts; i++ {
		c.accounts = append(c.accounts, DeriveAddress("account", i))
	}
	if opts.Preauthorize {
		for _, a := range c.accounts {
			c.authorized[a] = true
		}
	}
	return c
}

// DeriveAddress returns a deterministic address for a named role and index.
func DeriveAddress(role string, i int) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(fmt.Sprintf("waveportal-devnet/%s/%d", role, i))))
}

func (c *Chain) ChainID() uint64 {
	return c.chainID
}

func (c *Chain) Contract() common.Address {
	return c.contract
}

func (c *Chain) Height() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height
}

// Accounts returns every wallet account, authorized or not.
func (c *Chain) Accounts() []common.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]common.Address(nil), c.accounts...)
}

// AuthorizedAccounts returns the accounts exposed through eth_accounts.
func (c *Chain) AuthorizedAccounts() []common.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]common.Address, 0, len(c.accounts))
	for _, a := range c.accounts {
		if c.authorized[a] {
			out = append(out, a)
		}
	}
	return out
}

// IsAuthorized reports whether addr may send transactions.
func (c *Chain) IsAuthorized(addr common.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authorized[addr]
}

// Authorize grants every wallet account, unless the chain is configured to
// reject access requests.
func (c *Chain) Authorize() ([]common.Address, error) {
	c.mu.Lock()
	if c.rejectAccess {
		c.mu.Unlock()
		return nil, ErrAccessRejected
	}
	for _, a := range c.accounts {
		c.authorized[a] = true
	}
	c.mu.Unlock()
	return c.AuthorizedAccounts(), nil
}

// SetRejectAccess toggles whether Authorize refuses.
func (c *Chain) SetRejectAccess(reject bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejectAccess = reject
}

func (c *Chain) WaveCount() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return uint64(len(c.waves))
}

// Waves returns a copy of the stored wave records in insertion order.
func (c *Chain) Waves() []contract.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]contract.Record, len(c.waves))
	for i, w := range c.waves {
		out[i] = contract.Record{
			Waver:     w.Waver,
			Message:   w.Message,
			Timestamp: new(big.Int).Set(w.Timestamp),
		}
	}
	return out
}

// RequiredGas is the gas a wave(message) call consumes.
func RequiredGas(message string) uint64 {
	return baseWaveGas + perByteWaveGas*uint64(len(message))
}

// Submit queues tx and returns its hash. The tx stays pending until Mine.
func (c *Chain) Submit(tx Tx) common.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nonce++
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], c.nonce)
	hash := crypto.Keccak256Hash(tx.From.Bytes(), n[:], []byte(tx.Message))
	c.pending[hash] = tx
	return hash
}

// Mine executes a pending transaction in a new block. The returned logs are
// the events it emitted.
func (c *Chain) Mine(hash common.Hash) (*Receipt, []Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, ok := c.pending[hash]
	if !ok {
		return nil, nil, ErrUnknownTx
	}
	delete(c.pending, hash)

	c.height++
	now := c.now()
	blockHash := c.blockHash(c.height)
	rcpt := &Receipt{
		TxHash:      hash,
		BlockNumber: hexutil.Uint64(c.height),
		BlockHash:   blockHash,
		From:        tx.From,
		To:          c.contract,
		Logs:        []Log{},
	}

	required := RequiredGas(tx.Message)
	switch {
	case tx.Gas < required:
		// out of gas consumes everything
		rcpt.GasUsed = hexutil.Uint64(tx.Gas)
	case c.cooldown > 0 && now.Sub(c.lastWave[tx.From]) < c.cooldown:
		rcpt.GasUsed = hexutil.Uint64(baseWaveGas)
	default:
		ts := big.NewInt(now.Unix())
		data, err := c.packLog(ts, tx.Message)
		if err != nil {
			// nothing was applied; the tx fails like a revert
			logger().WithError(err).Errorf("tx %s", hash.Hex())
			rcpt.GasUsed = hexutil.Uint64(baseWaveGas)
			break
		}

		rcpt.GasUsed = hexutil.Uint64(required)
		rcpt.Status = 1
		c.lastWave[tx.From] = now
		c.waves = append(c.waves, contract.Record{Waver: tx.From, Message: tx.Message, Timestamp: ts})
		l := Log{
			Address:     c.contract,
			Topics:      []common.Hash{contract.NewWaveTopic(), common.BytesToHash(tx.From.Bytes())},
			Data:        data,
			BlockNumber: hexutil.Uint64(c.height),
			BlockHash:   blockHash,
			TxHash:      hash,
			LogIndex:    hexutil.Uint(len(c.logs)),
		}
		c.logs = append(c.logs, l)
		rcpt.Logs = append(rcpt.Logs, l)
	}

	c.receipts[hash] = rcpt
	cp := *rcpt
	return &cp, append([]Log(nil), rcpt.Logs...), nil
}

// packNewWave encodes the non-indexed NewWave fields.
func packNewWave(ts *big.Int, message string) ([]byte, error) {
	data, err := contract.ABI().Events[contract.EventNewWave].Inputs.NonIndexed().Pack(ts, message)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", contract.EventNewWave, err)
	}
	return data, nil
}

// Receipt returns the receipt of a mined transaction. Pending and unknown
// hashes report false.
func (c *Chain) Receipt(hash common.Hash) (*Receipt, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.receipts[hash]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

// Logs returns stored logs matching f.
func (c *Chain) Logs(f LogFilter) []Log {
	c.mu.RLock()
	defer c.mu.RUnlock()
	to := f.ToBlock
	if to == 0 {
		to = c.height
	}
	var out []Log
	for _, l := range c.logs {
		n := uint64(l.BlockNumber)
		if n < f.FromBlock || n > to {
			continue
		}
		if f.Matches(l) {
			out = append(out, l)
		}
	}
	return out
}

func (c *Chain) blockHash(n uint64) common.Hash {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return crypto.Keccak256Hash([]byte("waveportal-devnet/block"), b[:])
}
