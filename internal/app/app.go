// Package app is the Bubble Tea root model: it owns the session state and
// turns key presses and remote results into view updates.
package app

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	log "github.com/sirupsen/logrus"

	"github.com/wave-portal/waveportal/internal/logging"
	"github.com/wave-portal/waveportal/internal/portal"
	"github.com/wave-portal/waveportal/internal/theme"
	"github.com/wave-portal/waveportal/internal/views/alert"
	"github.com/wave-portal/waveportal/internal/views/debug"
	"github.com/wave-portal/waveportal/internal/views/status"
	"github.com/wave-portal/waveportal/internal/views/waves"
)

// Alert texts.
const (
	AlertNoProvider   = "No wallet provider found"
	AlertEmptyMessage = "Please enter a message!"
)

const bio = "Connect your Ethereum wallet and wave at me! Messages are markdown, so links work."

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayDebug
)

// Options tunes the model.
type Options struct {
	// Logs feeds the console overlay. May be nil.
	Logs <-chan logging.Entry
	// MarkdownStyle is the glamour style for wave messages. Defaults to "dark".
	MarkdownStyle string
}

// Model is the root Bubble Tea model.
type Model struct {
	wallet portal.Wallet
	ledger portal.Ledger
	logs   <-chan logging.Entry
	ctx    context.Context
	cancel context.CancelFunc

	keys   KeyMap
	width  int
	height int

	session portal.Session

	// Remote state.
	checked    bool // detection finished
	provider   bool
	subscribed bool
	submitting bool
	loading    bool // wave list fetch in flight
	animating  bool

	overlay Overlay

	// notifications received while the wave list fetch is in flight
	early []portal.Wave

	// Sub-views.
	input     textinput.Model
	spinner   spinner.Model
	statusBar status.Model
	list      waves.Model
	console   debug.Model
	alert     alert.Model
}

// New creates the root model.
func New(wallet portal.Wallet, ledger portal.Ledger, opts Options) Model {
	ctx, cancel := context.WithCancel(context.Background())

	if opts.MarkdownStyle == "" {
		opts.MarkdownStyle = "dark"
	}

	input := textinput.New()
	input.Placeholder = "Enter a message or share a link!"
	input.CharLimit = 280
	input.Prompt = "> "
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorAccent)

	return Model{
		wallet:    wallet,
		ledger:    ledger,
		logs:      opts.Logs,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		input:     input,
		spinner:   sp,
		statusBar: status.New(),
		list:      waves.New(opts.MarkdownStyle),
		console:   debug.New(),
	}
}

func logger() *log.Entry {
	return log.WithField("component", "tui")
}

// Session returns a snapshot of the session state.
func (m Model) Session() portal.Session {
	s := m.session
	s.Draft = m.input.Value()
	return s
}

// Waves returns the displayed waves in order.
func (m Model) Waves() []portal.Wave {
	return m.list.Waves
}

// Alert returns the blocking alert text, or "" when none is shown.
func (m Model) Alert() string {
	return m.alert.Message
}

// Init detects the wallet and loads the count. The count is fetched
// whether or not an account is authorized.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		detect(m.ctx, m.wallet),
		fetchCount(m.ctx, m.ledger),
		waitForLog(m.logs),
	)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.input.Width = msg.Width - 6
		m.list.SetSize(msg.Width, m.listHeight())
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd

	case detectedMsg:
		m.checked = true
		m.provider = msg.ok
		m.statusBar.Checked = true
		m.statusBar.Provider = msg.ok
		if !msg.ok {
			logger().Warn("Make sure you have a wallet provider running!")
			return m, nil
		}
		logger().Info("We have a wallet provider")
		return m, currentAccounts(m.ctx, m.wallet)

	case accountsMsg:
		if msg.err != nil {
			logger().WithError(msg.err).Error("eth_accounts failed")
			return m, nil
		}
		if len(msg.accounts) == 0 {
			logger().Info("No authorized account found")
			return m, nil
		}
		logger().Infof("Found an authorized account: %s", msg.accounts[0])
		return m, m.adopt(msg.accounts[0])

	case connectedMsg:
		if msg.err != nil {
			logger().WithError(msg.err).Error("connect wallet failed")
			if errors.Is(msg.err, portal.ErrNoProvider) {
				m.alert.Show(AlertNoProvider)
			}
			return m, nil
		}
		return m, m.adopt(msg.account)

	case countMsg:
		if msg.err != nil {
			logger().WithError(msg.err).Error("read wave count failed")
			return m, nil
		}
		logger().Infof("Retrieved total wave count... %d", msg.count)
		return m, m.setCount(msg.count)

	case wavesMsg:
		early := m.early
		m.loading = false
		m.early = nil
		if msg.err != nil {
			logger().WithError(msg.err).Error("read waves failed")
			return m, nil
		}
		// the fetched history goes in front of anything that arrived meanwhile
		m.list.SetWaves(append(append([]portal.Wave(nil), msg.waves...), early...))
		return m, nil

	case subscribedMsg:
		if msg.err != nil {
			m.subscribed = false
			logger().WithError(msg.err).Error("NewWave subscription failed")
			return m, nil
		}
		return m, waitForWave(msg.ch)

	case newWaveMsg:
		m.list.Append(msg.wave)
		if m.loading {
			m.early = append(m.early, msg.wave)
		}
		return m, waitForWave(msg.ch)

	case streamDoneMsg:
		m.subscribed = false
		return m, nil

	case submittedMsg:
		m.submitting = false
		m.statusBar.Mining = false
		if msg.err != nil {
			logger().WithError(msg.err).Error("wave failed")
			if errors.Is(msg.err, portal.ErrNoProvider) {
				m.alert.Show(AlertNoProvider)
			}
			return m, nil
		}
		m.input.Reset()
		return m, m.setCount(msg.count)

	case logMsg:
		m.console.Push(msg.entry)
		return m, waitForLog(m.logs)

	case frameMsg:
		m.statusBar.Tick()
		if m.statusBar.Animating() {
			return m, nextFrame()
		}
		m.animating = false
		return m, nil

	case spinner.TickMsg:
		if !m.submitting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// adopt stores account as the session account and, the first time, loads
// the wave list and starts listening for new waves.
func (m *Model) adopt(account string) tea.Cmd {
	m.session.Account = account
	m.statusBar.Account = account
	m.loading = true
	m.early = nil
	if m.subscribed {
		return fetchWaves(m.ctx, m.ledger)
	}
	m.subscribed = true
	return tea.Batch(fetchWaves(m.ctx, m.ledger), subscribe(m.ctx, m.ledger))
}

func (m *Model) setCount(n uint64) tea.Cmd {
	m.session.WaveCount = n
	m.statusBar.SetCount(n)
	if m.statusBar.Animating() && !m.animating {
		m.animating = true
		return nextFrame()
	}
	return nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.cancel()
		return m, tea.Quit
	}

	if m.alert.Active() {
		if key.Matches(msg, m.keys.Escape) || key.Matches(msg, m.keys.Submit) {
			m.alert.Dismiss()
		}
		return m, nil
	}

	if m.overlay == OverlayDebug {
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Debug):
			m.overlay = OverlayNone
		case key.Matches(msg, m.keys.ScrollUp):
			m.console.Older(1)
		case key.Matches(msg, m.keys.ScrollDn):
			m.console.Newer(1)
		case key.Matches(msg, m.keys.PageUp):
			m.console.Older(10)
		case key.Matches(msg, m.keys.PageDown):
			m.console.Newer(10)
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Debug):
		m.overlay = OverlayDebug
		return m, nil

	case key.Matches(msg, m.keys.Connect):
		if m.session.Connected() {
			return m, nil
		}
		if m.checked && !m.provider {
			m.alert.Show(AlertNoProvider)
			return m, nil
		}
		return m, requestAccess(m.ctx, m.wallet)

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.ScrollUp, m.keys.ScrollDn, m.keys.PageUp, m.keys.PageDown):
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.submitting {
		return m, nil
	}
	if m.checked && !m.provider {
		m.alert.Show(AlertNoProvider)
		return m, nil
	}
	draft := m.input.Value()
	if strings.TrimSpace(draft) == "" {
		m.alert.Show(AlertEmptyMessage)
		return m, nil
	}
	m.submitting = true
	m.statusBar.Mining = true
	return m, tea.Batch(submitWave(m.ctx, m.ledger, draft), m.spinner.Tick)
}

func (m Model) listHeight() int {
	// header, bio, input, buttons, status bar and help
	h := m.height - 13
	if h < 3 {
		h = 3
	}
	return h
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if m.alert.Active() {
		return m.alert.View(m.width, m.height)
	}
	if m.overlay == OverlayDebug {
		return m.console.View(m.width, m.height)
	}

	sections := []string{
		theme.StyleHeader.Render("👋 Hey there!"),
		theme.StyleDimmed.Width(m.width).Render(bio),
		"",
		theme.StyleBorder.Width(m.width - 2).Render(m.input.View()),
		m.renderButtons(),
		m.statusBar.View(),
		m.list.View(),
		theme.StyleDimmed.Render("  " + m.helpLine()),
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderButtons() string {
	wave := theme.StyleButton.Render("Wave at Me")
	if m.submitting {
		wave = theme.StyleButton.Render(m.spinner.View() + " Mining...")
	}
	parts := []string{wave}
	if !m.session.Connected() {
		connect := theme.StyleButton.Background(theme.ColorDanger).Render("Connect Wallet")
		parts = append(parts, "  ", connect)
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, parts...)
}

func (m Model) helpLine() string {
	bindings := []key.Binding{m.keys.Submit}
	if !m.session.Connected() {
		bindings = append(bindings, m.keys.Connect)
	}
	bindings = append(bindings, m.keys.ScrollUp, m.keys.Debug, m.keys.Quit)

	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, h.Key+":"+h.Desc)
	}
	return strings.Join(parts, "  ")
}
