package devnet

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Status is the payload served on /status.
type Status struct {
	ChainID       uint64  `json:"chainId"`
	Contract      string  `json:"contract"`
	BlockNumber   uint64  `json:"blockNumber"`
	WaveCount     uint64  `json:"waveCount"`
	Clients       int     `json:"clients"`
	Subscriptions int     `json:"subscriptions"`
	Uptime        string  `json:"uptime"`
	Goroutines    int     `json:"goroutines"`
	RSSBytes      uint64  `json:"rssBytes,omitempty"`
	CPUPercent    float64 `json:"cpuPercent,omitempty"`
}

// Stats collects chain counters and host process usage.
type Stats struct {
	chain       *Chain
	broadcaster *Broadcaster
	started     time.Time
	proc        *process.Process
}

func NewStats(chain *Chain, broadcaster *Broadcaster) *Stats {
	s := &Stats{
		chain:       chain,
		broadcaster: broadcaster,
		started:     time.Now(),
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger().Debugf("process stats unavailable: %v", err)
	} else {
		s.proc = proc
	}
	return s
}

func (s *Stats) Snapshot() Status {
	st := Status{
		ChainID:       s.chain.ChainID(),
		Contract:      s.chain.Contract().Hex(),
		BlockNumber:   s.chain.Height(),
		WaveCount:     s.chain.WaveCount(),
		Clients:       s.broadcaster.ClientCount(),
		Subscriptions: s.broadcaster.SubscriptionCount(),
		Uptime:        time.Since(s.started).Round(time.Second).String(),
		Goroutines:    runtime.NumGoroutine(),
	}
	if s.proc == nil {
		return st
	}
	if mem, err := s.proc.MemoryInfo(); err == nil {
		st.RSSBytes = mem.RSS
	}
	if cpu, err := s.proc.CPUPercent(); err == nil {
		st.CPUPercent = cpu
	}
	return st
}
