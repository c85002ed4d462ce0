package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/wave-portal/waveportal/internal/app"
	"github.com/wave-portal/waveportal/internal/config"
	"github.com/wave-portal/waveportal/internal/contract"
	"github.com/wave-portal/waveportal/internal/logging"
	"github.com/wave-portal/waveportal/internal/rpc"
	"github.com/wave-portal/waveportal/internal/wallet"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "path to the YAML config file",
		Value: "waveportal.yaml",
	}
	providerFlag = &cli.StringFlag{
		Name:    "provider",
		Usage:   "wallet provider JSON-RPC endpoint (ws://, wss://, http:// or https://)",
		EnvVars: []string{"WAVEPORTAL_PROVIDER"},
	}
	contractFlag = &cli.StringFlag{
		Name:    "contract",
		Usage:   "WavePortal contract address",
		EnvVars: []string{"WAVEPORTAL_CONTRACT"},
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "panic, fatal, error, warn, info, debug or trace",
	}
	styleFlag = &cli.StringFlag{
		Name:  "style",
		Usage: "markdown style for wave messages (dark, light, notty)",
		Value: "dark",
	}
)

func main() {
	a := &cli.App{
		Name:   "waveportal",
		Usage:  "Wave at the WavePortal contract from your terminal",
		Flags:  []cli.Flag{configFlag, providerFlag, contractFlag, logLevelFlag, styleFlag},
		Action: defaultAction,
		Commands: cli.Commands{
			countCmd,
			wavesCmd,
			waveCmd,
			connectCmd,
			watchCmd,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// env holds the adapters shared by every command.
type env struct {
	cfg     *config.Config
	client  *rpc.Client
	wallet  *wallet.Provider
	gateway *contract.Gateway
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String(configFlag.Name))
	if err != nil {
		return nil, err
	}
	if c.IsSet(providerFlag.Name) {
		cfg.Provider.URL = c.String(providerFlag.Name)
	}
	if c.IsSet(contractFlag.Name) {
		cfg.Contract.Address = c.String(contractFlag.Name)
	}
	if c.IsSet(logLevelFlag.Name) {
		cfg.Log.Level = c.String(logLevelFlag.Name)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newEnv(cfg *config.Config) (*env, error) {
	client, err := rpc.New(cfg.Provider.URL, rpc.Options{DialTimeout: cfg.Provider.DialTimeout})
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:    cfg,
		client: client,
		wallet: wallet.NewProvider(client),
		gateway: contract.NewGateway(client, contract.Options{
			Address:             cfg.ContractAddress(),
			GasLimit:            cfg.Contract.GasLimit,
			ReceiptPollInterval: cfg.Contract.ReceiptPollInterval,
			LogPollInterval:     cfg.Contract.LogPollInterval,
		}),
	}, nil
}

func (e *env) close() {
	if err := e.client.Close(); err != nil {
		log.WithError(err).Debug("close provider")
	}
}

// setup loads config, routes logs to stderr and builds the adapters.
func setup(c *cli.Context) (*env, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if err := logging.Setup(cfg.Log, os.Stderr); err != nil {
		return nil, err
	}
	return newEnv(cfg)
}

func defaultAction(c *cli.Context) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return printAll(c)
	}
	return runTUI(c)
}

func runTUI(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	// The UI owns the terminal: logs go to a file and into the console overlay.
	f, err := logging.SetupFile(cfg.Log)
	if err != nil {
		return err
	}
	defer f.Close()

	level, _ := log.ParseLevel(cfg.Log.Level)
	hook := logging.NewHook(256, level)
	log.AddHook(hook)

	e, err := newEnv(cfg)
	if err != nil {
		return err
	}
	defer e.close()

	log.WithField("component", "main").Infof("provider %s, contract %s", cfg.Provider.URL, cfg.Contract.Address)

	m := app.New(e.wallet, e.gateway, app.Options{
		Logs:          hook.Entries(),
		MarkdownStyle: c.String(styleFlag.Name),
	})
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(c.Context))
	if _, err := p.Run(); err != nil && c.Context.Err() == nil {
		return err
	}
	return nil
}
