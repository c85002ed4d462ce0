package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// DefaultContractAddress is the WavePortal deployment the client targets
// unless configured otherwise.
const DefaultContractAddress = "0x30895bF7Ad28D83D185d55bfa5F79eA6CDDa6A81"

type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	Contract ContractConfig `yaml:"contract"`
	Log      LogConfig      `yaml:"log"`
	Devnet   DevnetConfig   `yaml:"devnet"`
}

type ProviderConfig struct {
	URL         string        `yaml:"url"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

type ContractConfig struct {
	Address             string        `yaml:"address"`
	GasLimit            uint64        `yaml:"gas_limit"`
	ReceiptPollInterval time.Duration `yaml:"receipt_poll_interval"`
	LogPollInterval     time.Duration `yaml:"log_poll_interval"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// File receives the log while the terminal UI owns the screen.
	File string `yaml:"file"`
}

type DevnetConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ChainID        uint64        `yaml:"chain_id"`
	Accounts       int           `yaml:"accounts"`
	Preauthorize   bool          `yaml:"preauthorize"`
	RejectAccess   bool          `yaml:"reject_access"`
	MineDelay      time.Duration `yaml:"mine_delay"`
	Cooldown       time.Duration `yaml:"cooldown"`
	SeedWaves      int           `yaml:"seed_waves"`
	BotInterval    time.Duration `yaml:"bot_interval"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

func defaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			URL:         "ws://127.0.0.1:8545",
			DialTimeout: 5 * time.Second,
		},
		Contract: ContractConfig{
			Address:             DefaultContractAddress,
			GasLimit:            300000,
			ReceiptPollInterval: time.Second,
			LogPollInterval:     4 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(os.TempDir(), "waveportal.log"),
		},
		Devnet: DevnetConfig{
			Host:      "127.0.0.1",
			Port:      8545,
			ChainID:   31337,
			Accounts:  3,
			MineDelay: 2 * time.Second,
			Cooldown:  30 * time.Second,
			SeedWaves: 3,
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.Provider.URL)
	if err != nil {
		return fmt.Errorf("provider.url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("provider.url: unsupported scheme %q", u.Scheme)
	}
	if !common.IsHexAddress(c.Contract.Address) {
		return fmt.Errorf("contract.address: %q is not a hex address", c.Contract.Address)
	}
	if c.Contract.GasLimit == 0 {
		return errors.New("contract.gas_limit must be positive")
	}
	if c.Contract.ReceiptPollInterval <= 0 || c.Contract.LogPollInterval <= 0 {
		return errors.New("contract poll intervals must be positive")
	}
	if c.Devnet.Port < 0 || c.Devnet.Port > 65535 {
		return fmt.Errorf("devnet.port: %d out of range", c.Devnet.Port)
	}
	if c.Devnet.Accounts < 1 {
		return errors.New("devnet.accounts must be at least 1")
	}
	return nil
}

// ContractAddress returns the configured contract as an address.
func (c *Config) ContractAddress() common.Address {
	return common.HexToAddress(c.Contract.Address)
}

// DevnetAddr returns host:port for the devnet listener.
func (c *Config) DevnetAddr() string {
	return fmt.Sprintf("%s:%d", c.Devnet.Host, c.Devnet.Port)
}
