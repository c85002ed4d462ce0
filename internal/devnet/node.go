package devnet

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	log "github.com/sirupsen/logrus"

	"github.com/wave-portal/waveportal/internal/contract"
	"github.com/wave-portal/waveportal/internal/rpc"
)

// Node answers JSON-RPC requests against a Chain and mines submitted
// transactions after a delay.
type Node struct {
	chain       *Chain
	broadcaster *Broadcaster
	mineDelay   time.Duration
}

func NewNode(chain *Chain, broadcaster *Broadcaster, mineDelay time.Duration) *Node {
	return &Node{
		chain:       chain,
		broadcaster: broadcaster,
		mineDelay:   mineDelay,
	}
}

func (n *Node) Chain() *Chain {
	return n.chain
}

func logger() *log.Entry {
	return log.WithField("component", "devnet")
}

// SendTransaction queues tx and schedules it for mining.
func (n *Node) SendTransaction(tx Tx) common.Hash {
	hash := n.chain.Submit(tx)
	if n.mineDelay <= 0 {
		n.mine(hash)
	} else {
		time.AfterFunc(n.mineDelay, func() { n.mine(hash) })
	}
	return hash
}

func (n *Node) mine(hash common.Hash) {
	rcpt, logs, err := n.chain.Mine(hash)
	if err != nil {
		logger().WithError(err).Errorf("mine %s", hash.Hex())
		return
	}
	logger().Infof("mined %s in block %d status=%d", hash.Hex(), uint64(rcpt.BlockNumber), uint64(rcpt.Status))
	for _, l := range logs {
		n.broadcaster.PublishLog(l)
	}
}

// Handle processes one raw JSON-RPC frame. c is nil for HTTP requests. A nil
// return means no response is due.
func (n *Node) Handle(c *client, data []byte) []byte {
	var req rpc.Message
	if err := json.Unmarshal(data, &req); err != nil {
		return encode(errorResponse(nil, rpc.CodeParseError, "parse error"))
	}
	if len(req.ID) == 0 {
		// notifications get no reply
		return nil
	}
	if req.Method == "" {
		return encode(errorResponse(req.ID, rpc.CodeInvalidRequest, "invalid request"))
	}

	var params []json.RawMessage
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return encode(errorResponse(req.ID, rpc.CodeInvalidParams, "params must be an array"))
		}
	}

	result, err := n.dispatch(c, req.Method, params)
	if err != nil {
		var rpcErr *rpc.Error
		if !errors.As(err, &rpcErr) {
			rpcErr = &rpc.Error{Code: rpc.CodeInternal, Message: err.Error()}
		}
		logger().Debugf("%s -> error %d: %s", req.Method, rpcErr.Code, rpcErr.Message)
		return encode(&rpc.Message{JSONRPC: rpc.Version, ID: req.ID, Error: rpcErr})
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return encode(errorResponse(req.ID, rpc.CodeInternal, err.Error()))
	}
	return encode(&rpc.Message{JSONRPC: rpc.Version, ID: req.ID, Result: raw})
}

func (n *Node) dispatch(c *client, method string, params []json.RawMessage) (any, error) {
	switch method {
	case "eth_chainId":
		return hexutil.Uint64(n.chain.ChainID()), nil

	case "net_version":
		return strconv.FormatUint(n.chain.ChainID(), 10), nil

	case "eth_blockNumber":
		return hexutil.Uint64(n.chain.Height()), nil

	case "eth_accounts":
		return n.chain.AuthorizedAccounts(), nil

	case "eth_requestAccounts":
		accounts, err := n.chain.Authorize()
		if err != nil {
			return nil, &rpc.Error{Code: rpc.CodeUserRejected, Message: "User rejected the request."}
		}
		return accounts, nil

	case "eth_call":
		var args txArgs
		if err := decodeParam(params, 0, &args); err != nil {
			return nil, err
		}
		return n.call(args)

	case "eth_estimateGas":
		var args txArgs
		if err := decodeParam(params, 0, &args); err != nil {
			return nil, err
		}
		msg, err := n.decodeWave(args)
		if err != nil {
			return nil, err
		}
		return hexutil.Uint64(RequiredGas(msg)), nil

	case "eth_sendTransaction":
		var args txArgs
		if err := decodeParam(params, 0, &args); err != nil {
			return nil, err
		}
		return n.sendTransaction(args)

	case "eth_getTransactionReceipt":
		var hash common.Hash
		if err := decodeParam(params, 0, &hash); err != nil {
			return nil, err
		}
		if r, ok := n.chain.Receipt(hash); ok {
			return r, nil
		}
		return nil, nil

	case "eth_getLogs":
		var q filterQuery
		if err := decodeParam(params, 0, &q); err != nil {
			return nil, err
		}
		logs := n.chain.Logs(q.toFilter())
		if logs == nil {
			logs = []Log{}
		}
		return logs, nil

	case "eth_subscribe":
		if c == nil {
			return nil, &rpc.Error{Code: rpc.CodeUnsupportedMethod, Message: "notifications not supported"}
		}
		var kind string
		if err := decodeParam(params, 0, &kind); err != nil {
			return nil, err
		}
		if kind != "logs" {
			return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: fmt.Sprintf("unsupported subscription %q", kind)}
		}
		var q filterQuery
		if len(params) > 1 {
			if err := decodeParam(params, 1, &q); err != nil {
				return nil, err
			}
		}
		return n.broadcaster.Subscribe(c, q.toFilter()), nil

	case "eth_unsubscribe":
		if c == nil {
			return nil, &rpc.Error{Code: rpc.CodeUnsupportedMethod, Message: "notifications not supported"}
		}
		var id string
		if err := decodeParam(params, 0, &id); err != nil {
			return nil, err
		}
		return n.broadcaster.Unsubscribe(c, id), nil
	}

	return nil, &rpc.Error{Code: rpc.CodeMethodNotFound, Message: fmt.Sprintf("the method %s does not exist/is not available", method)}
}

func (n *Node) call(args txArgs) (any, error) {
	if args.To == nil || *args.To != n.chain.Contract() {
		return hexutil.Bytes{}, nil
	}
	input := args.input()
	if len(input) < 4 {
		return nil, revert("missing selector")
	}
	method, err := contract.ABI().MethodById(input[:4])
	if err != nil {
		return nil, revert("unknown selector")
	}

	var out []byte
	switch method.Name {
	case contract.MethodGetTotalWaves:
		out, err = method.Outputs.Pack(new(big.Int).SetUint64(n.chain.WaveCount()))
	case contract.MethodGetAllWaves:
		out, err = method.Outputs.Pack(n.chain.Waves())
	case contract.MethodWave:
		// state changes are discarded by eth_call
		return hexutil.Bytes{}, nil
	default:
		return nil, revert("unsupported method " + method.Name)
	}
	if err != nil {
		return nil, err
	}
	return hexutil.Bytes(out), nil
}

func (n *Node) sendTransaction(args txArgs) (any, error) {
	var from common.Address
	if args.From != nil {
		from = *args.From
	} else {
		accounts := n.chain.AuthorizedAccounts()
		if len(accounts) == 0 {
			return nil, &rpc.Error{Code: rpc.CodeUnauthorized, Message: "The requested account has not been authorized by the user."}
		}
		from = accounts[0]
	}
	if !n.chain.IsAuthorized(from) {
		return nil, &rpc.Error{Code: rpc.CodeUnauthorized, Message: "The requested account has not been authorized by the user."}
	}
	if args.To == nil || *args.To != n.chain.Contract() {
		return nil, revert("no contract at target address")
	}
	msg, err := n.decodeWave(args)
	if err != nil {
		return nil, err
	}

	gas := uint64(BlockGasLimit)
	if args.Gas != nil {
		gas = uint64(*args.Gas)
	}
	hash := n.SendTransaction(Tx{From: from, Gas: gas, Message: msg})
	logger().Infof("accepted %s from %s gas=%d", hash.Hex(), from.Hex(), gas)
	return hash, nil
}

func (n *Node) decodeWave(args txArgs) (string, error) {
	input := args.input()
	if len(input) < 4 {
		return "", revert("missing selector")
	}
	method, err := contract.ABI().MethodById(input[:4])
	if err != nil || method.Name != contract.MethodWave {
		return "", revert("only wave(string) is payable here")
	}
	vals, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return "", &rpc.Error{Code: rpc.CodeInvalidParams, Message: err.Error()}
	}
	msg, _ := vals[0].(string)
	return msg, nil
}

type txArgs struct {
	From  *common.Address `json:"from"`
	To    *common.Address `json:"to"`
	Gas   *hexutil.Uint64 `json:"gas"`
	Data  hexutil.Bytes   `json:"data"`
	Input hexutil.Bytes   `json:"input"`
}

func (a txArgs) input() []byte {
	if len(a.Input) > 0 {
		return a.Input
	}
	return a.Data
}

type filterQuery struct {
	FromBlock blockTag        `json:"fromBlock"`
	ToBlock   blockTag        `json:"toBlock"`
	Address   *common.Address `json:"address"`
	Topics    []*common.Hash  `json:"topics"`
}

func (q filterQuery) toFilter() LogFilter {
	f := LogFilter{
		FromBlock: uint64(q.FromBlock),
		ToBlock:   uint64(q.ToBlock),
		Address:   q.Address,
	}
	for _, t := range q.Topics {
		if t == nil {
			f.Topics = append(f.Topics, common.Hash{})
			continue
		}
		f.Topics = append(f.Topics, *t)
	}
	return f
}

// blockTag decodes a hex block number or one of the named tags. Named tags
// other than earliest decode to 0, which LogFilter reads as latest.
type blockTag uint64

func (b *blockTag) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch strings.ToLower(s) {
	case "", "latest", "pending", "safe", "finalized", "earliest":
		*b = 0
		return nil
	}
	v, err := hexutil.DecodeUint64(s)
	if err != nil {
		return err
	}
	*b = blockTag(v)
	return nil
}

func decodeParam(params []json.RawMessage, i int, v any) error {
	if i >= len(params) {
		return &rpc.Error{Code: rpc.CodeInvalidParams, Message: fmt.Sprintf("missing value for required argument %d", i)}
	}
	if err := json.Unmarshal(params[i], v); err != nil {
		return &rpc.Error{Code: rpc.CodeInvalidParams, Message: fmt.Sprintf("invalid argument %d: %v", i, err)}
	}
	return nil
}

func revert(reason string) error {
	return &rpc.Error{Code: -32000, Message: "execution reverted: " + reason}
}

func errorResponse(id json.RawMessage, code int, msg string) *rpc.Message {
	return &rpc.Message{JSONRPC: rpc.Version, ID: id, Error: &rpc.Error{Code: code, Message: msg}}
}

func encode(m *rpc.Message) []byte {
	data, _ := json.Marshal(m)
	return data
}
