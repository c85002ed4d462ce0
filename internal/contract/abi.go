package contract

import (
	"bytes"
	_ "embed"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/wave-portal/waveportal/internal/portal"
)

// Method and event names on the WavePortal contract.
const (
	MethodGetTotalWaves = "getTotalWaves"
	MethodGetAllWaves   = "getAllWaves"
	MethodWave          = "wave"
	EventNewWave        = "NewWave"
)

//go:embed WavePortal.abi.json
var wavePortalABI []byte

var parsedABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(bytes.NewReader(wavePortalABI))
	if err != nil {
		panic(fmt.Sprintf("contract: embedded WavePortal ABI: %v", err))
	}
	return parsed
}

// ABI returns the parsed WavePortal interface description. Callers must not
// modify it.
func ABI() *abi.ABI {
	return &parsedABI
}

// NewWaveTopic is topic[0] of every NewWave log.
func NewWaveTopic() common.Hash {
	return parsedABI.Events[EventNewWave].ID
}

// Record is the on-chain Wave struct as returned by getAllWaves.
type Record struct {
	Waver     common.Address
	Message   string
	Timestamp *big.Int
}

// ToWave maps a contract record into the domain shape.
func (r Record) ToWave() portal.Wave {
	return portal.Wave{
		Sender:    r.Waver.Hex(),
		Timestamp: unixTime(r.Timestamp),
		Message:   r.Message,
	}
}

// NewWaveEvent holds the non-indexed fields of a NewWave log.
type NewWaveEvent struct {
	Timestamp *big.Int
	Message   string
}

func unixTime(ts *big.Int) time.Time {
	if ts == nil || !ts.IsInt64() {
		return time.Time{}
	}
	return time.Unix(ts.Int64(), 0)
}

// PackWave encodes the calldata for wave(message).
func PackWave(message string) ([]byte, error) {
	return parsedABI.Pack(MethodWave, message)
}

// UnpackTotalWaves decodes the getTotalWaves return data.
func UnpackTotalWaves(data []byte) (uint64, error) {
	out, err := parsedABI.Unpack(MethodGetTotalWaves, data)
	if err != nil {
		return 0, err
	}
	count := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	if count.Sign() < 0 || !count.IsUint64() {
		return 0, fmt.Errorf("wave count %s out of range", count)
	}
	return count.Uint64(), nil
}

// UnpackAllWaves decodes the getAllWaves return data.
func UnpackAllWaves(data []byte) ([]Record, error) {
	out, err := parsedABI.Unpack(MethodGetAllWaves, data)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]Record)).(*[]Record), nil
}

// UnpackNewWave decodes a NewWave log from its topics and data.
func UnpackNewWave(topics []common.Hash, data []byte) (portal.Wave, error) {
	if len(topics) < 2 || topics[0] != NewWaveTopic() {
		return portal.Wave{}, fmt.Errorf("not a %s log", EventNewWave)
	}
	var ev NewWaveEvent
	if err := parsedABI.UnpackIntoInterface(&ev, EventNewWave, data); err != nil {
		return portal.Wave{}, err
	}
	return portal.Wave{
		Sender:    common.BytesToAddress(topics[1].Bytes()).Hex(),
		Timestamp: unixTime(ev.Timestamp),
		Message:   ev.Message,
	}, nil
}
