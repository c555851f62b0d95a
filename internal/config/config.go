// internal/config/config.go
package config

import (
	"errors"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// Network selects which pool-state source the engine uses: on mainnet pool
// metadata comes from the aggregated index and reserves from chain; on any
// other network both come straight from chain.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkDevnet  Network = "devnet"
)

// Named defaults substituted when a swap request omits the corresponding
// field. Substitution is logged; these are demo conveniences, not production
// policy.
const (
	// DefaultPoolID is the WSOL/USDC constant-product pool.
	DefaultPoolID = "7JuwJuNU88gurFnyWeiyGKbFmExMWcmRZntn9imEzdny"
	// DefaultOutputMint is USDC.
	DefaultOutputMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	// DefaultOutputAmount is 1.0 USDC in smallest units (6 decimals).
	DefaultOutputAmount uint64 = 1_000_000
	// DefaultSlippageBps is 0.5%.
	DefaultSlippageBps uint64 = 50

	// DefaultTipRecipient and DefaultTipLamports configure the optional tip
	// transfer appended to swap transactions. Whether a fixed recipient is
	// intended production behavior is an open question inherited from the
	// original configuration; override per request or via config.
	DefaultTipRecipient         = "96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5"
	DefaultTipLamports   uint64 = 100_000

	DefaultComputeUnitLimit uint32 = 400_000
	// DefaultComputeUnitPrice is in micro-lamports per unit.
	DefaultComputeUnitPrice uint64 = 25_000

	DefaultIndexBaseURL   = "https://api-v3.raydium.io"
	DefaultConfirmTimeout = 30 // seconds
)

type Config struct {
	Network        Network  `mapstructure:"network"`
	RPCList        []string `mapstructure:"rpc_list"`
	IndexBaseURL   string   `mapstructure:"index_base_url"`
	WalletKey      string   `mapstructure:"wallet_key"`
	DebugLogging   bool     `mapstructure:"debug_logging"`
	ConfirmTimeout int      `mapstructure:"confirm_timeout"`

	PoolID       string `mapstructure:"pool_id"`
	OutputMint   string `mapstructure:"output_mint"`
	OutputAmount uint64 `mapstructure:"output_amount"`
	SlippageBps  uint64 `mapstructure:"slippage_bps"`

	TipRecipient string `mapstructure:"tip_recipient"`
	TipLamports  uint64 `mapstructure:"tip_lamports"`

	ComputeUnitLimit uint32 `mapstructure:"compute_unit_limit"`
	ComputeUnitPrice uint64 `mapstructure:"compute_unit_price"`
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"network":            string(NetworkMainnet),
		"index_base_url":     DefaultIndexBaseURL,
		"confirm_timeout":    DefaultConfirmTimeout,
		"pool_id":            DefaultPoolID,
		"output_mint":        DefaultOutputMint,
		"output_amount":      DefaultOutputAmount,
		"slippage_bps":       DefaultSlippageBps,
		"tip_recipient":      DefaultTipRecipient,
		"tip_lamports":       DefaultTipLamports,
		"compute_unit_limit": DefaultComputeUnitLimit,
		"compute_unit_price": DefaultComputeUnitPrice,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := loadEnvironmentVariables(v, &cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	switch cfg.Network {
	case NetworkMainnet, NetworkDevnet:
	default:
		return errors.New("network must be mainnet or devnet")
	}
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURL(rpcURL, "http"); err != nil {
			return errors.New("invalid RPC URL protocol")
		}
	}
	if cfg.IndexBaseURL != "" {
		if err := validateURL(cfg.IndexBaseURL, "http"); err != nil {
			return errors.New("invalid index URL protocol")
		}
	}
	if cfg.SlippageBps > 10_000 {
		return errors.New("slippage_bps must not exceed 10000")
	}
	if cfg.ConfirmTimeout <= 0 {
		return errors.New("invalid confirm_timeout")
	}
	return nil
}

func validateURL(rawURL string, protocol string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) error {
	v.AutomaticEnv()
	v.SetEnvPrefix("CPMM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if envKey := v.GetString("WALLET_KEY"); envKey != "" {
		cfg.WalletKey = envKey
	}

	if envRPCList := v.GetString("RPC_LIST"); envRPCList != "" {
		var cleanRPCs []string
		for _, rpc := range strings.Split(envRPCList, ",") {
			if clean := strings.TrimSpace(rpc); clean != "" {
				cleanRPCs = append(cleanRPCs, clean)
			}
		}
		if len(cleanRPCs) > 0 {
			cfg.RPCList = cleanRPCs
		}
	}
	return nil
}
