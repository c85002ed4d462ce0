package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wave-portal/waveportal/internal/logging"
	"github.com/wave-portal/waveportal/internal/portal"
	"github.com/wave-portal/waveportal/internal/views/status"
)

// Messages produced by the commands below. Each remote call reports back
// exactly once.
type (
	detectedMsg struct{ ok bool }

	accountsMsg struct {
		accounts []string
		err      error
	}

	connectedMsg struct {
		account string
		err     error
	}

	countMsg struct {
		count uint64
		err   error
	}

	wavesMsg struct {
		waves []portal.Wave
		err   error
	}

	submittedMsg struct {
		count uint64
		err   error
	}

	subscribedMsg struct {
		ch  <-chan portal.Wave
		err error
	}

	newWaveMsg struct {
		wave portal.Wave
		ch   <-chan portal.Wave
	}
	streamDoneMsg struct{}

	logMsg struct{ entry logging.Entry }

	frameMsg struct{}
)

func detect(ctx context.Context, w portal.Wallet) tea.Cmd {
	return func() tea.Msg {
		return detectedMsg{ok: w.Detect(ctx)}
	}
}

func currentAccounts(ctx context.Context, w portal.Wallet) tea.Cmd {
	return func() tea.Msg {
		accounts, err := w.CurrentAccounts(ctx)
		return accountsMsg{accounts: accounts, err: err}
	}
}

func requestAccess(ctx context.Context, w portal.Wallet) tea.Cmd {
	return func() tea.Msg {
		account, err := w.RequestAccess(ctx)
		return connectedMsg{account: account, err: err}
	}
}

func fetchCount(ctx context.Context, l portal.Ledger) tea.Cmd {
	return func() tea.Msg {
		n, err := l.FetchWaveCount(ctx)
		return countMsg{count: n, err: err}
	}
}

func fetchWaves(ctx context.Context, l portal.Ledger) tea.Cmd {
	return func() tea.Msg {
		ws, err := l.FetchAllWaves(ctx)
		return wavesMsg{waves: ws, err: err}
	}
}

func submitWave(ctx context.Context, l portal.Ledger, message string) tea.Cmd {
	return func() tea.Msg {
		n, err := l.SubmitWave(ctx, message)
		return submittedMsg{count: n, err: err}
	}
}

func subscribe(ctx context.Context, l portal.Ledger) tea.Cmd {
	return func() tea.Msg {
		ch, err := l.SubscribeNewWave(ctx)
		return subscribedMsg{ch: ch, err: err}
	}
}

// waitForWave blocks on the subscription channel. The newWaveMsg handler
// re-issues it with the channel the message carries.
func waitForWave(ch <-chan portal.Wave) tea.Cmd {
	return func() tea.Msg {
		w, ok := <-ch
		if !ok {
			return streamDoneMsg{}
		}
		return newWaveMsg{wave: w, ch: ch}
	}
}

func waitForLog(ch <-chan logging.Entry) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		return logMsg{entry: <-ch}
	}
}

func nextFrame() tea.Cmd {
	return tea.Tick(status.FrameInterval, func(time.Time) tea.Msg {
		return frameMsg{}
	})
}
