// Package config loads node settings from defaults, an optional config file,
// key/value overrides and ATTEST_ environment variables, in that order.
package config

import (
	"math/big"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/trufnetwork/attestation-registry/internal/units"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "ATTEST_"

const (
	DefaultChainID         = 31337
	DefaultDomainName      = "AttestationRegistry"
	DefaultDomainVersion   = "1.0.0"
	DefaultLedgerAddress   = "0x4200000000000000000000000000000000000021"
	DefaultRegistryAddress = "0x4200000000000000000000000000000000000020"
	DefaultListenAddress   = "127.0.0.1:8484"
	DefaultLogLevel        = "info"
)

type Config struct {
	ChainID         int64             `env:"CHAIN_ID" mapstructure:"chain_id"`
	DomainName      string            `env:"DOMAIN_NAME" mapstructure:"domain_name"`
	DomainVersion   string            `env:"DOMAIN_VERSION" mapstructure:"domain_version"`
	LedgerAddress   string            `env:"LEDGER_ADDRESS" mapstructure:"ledger_address"`
	RegistryAddress string            `env:"REGISTRY_ADDRESS" mapstructure:"registry_address"`
	ListenAddress   string            `env:"LISTEN_ADDRESS" mapstructure:"listen_address"`
	DSN             string            `env:"DSN" mapstructure:"dsn"`
	ReplicaDSNs     []string          `env:"REPLICA_DSNS" mapstructure:"replica_dsns"`
	LogLevel        string            `env:"LOG_LEVEL" mapstructure:"log_level"`
	Genesis         map[string]string `env:"GENESIS" mapstructure:"genesis"`
	Incentive       IncentiveConfig   `envPrefix:"INCENTIVE_" mapstructure:"incentive"`
	Resolvers       []ResolverConfig  `mapstructure:"resolvers"`
}

// IncentiveConfig deploys a paying resolver when Address is set. Amounts are
// decimal ether strings.
type IncentiveConfig struct {
	Address string `env:"ADDRESS" mapstructure:"address"`
	Amount  string `env:"AMOUNT" mapstructure:"amount"`
	Fund    string `env:"FUND" mapstructure:"fund"`
}

// Built-in resolver kinds that can be deployed from the config file.
const (
	ResolverNoOp      = "noop"
	ResolverRecipient = "recipient"
)

// ResolverConfig deploys a built-in resolver at Address. Recipient is only
// read by the recipient kind.
type ResolverConfig struct {
	Kind      string `mapstructure:"kind"`
	Address   string `mapstructure:"address"`
	Recipient string `mapstructure:"recipient"`
}

func (r ResolverConfig) validate() error {
	if !common.IsHexAddress(r.Address) {
		return errors.Errorf("address %q is not an address", r.Address)
	}
	switch r.Kind {
	case ResolverNoOp:
	case ResolverRecipient:
		if !common.IsHexAddress(r.Recipient) {
			return errors.Errorf("recipient %q is not an address", r.Recipient)
		}
	default:
		return errors.Errorf("unknown kind %q", r.Kind)
	}
	return nil
}

// Default returns a config for a local single-node deployment.
func Default() Config {
	return Config{
		ChainID:         DefaultChainID,
		DomainName:      DefaultDomainName,
		DomainVersion:   DefaultDomainVersion,
		LedgerAddress:   DefaultLedgerAddress,
		RegistryAddress: DefaultRegistryAddress,
		ListenAddress:   DefaultListenAddress,
		LogLevel:        DefaultLogLevel,
		Genesis:         map[string]string{},
	}
}

// Load builds the config. path may be empty. overrides are applied after the
// file and before the environment.
func Load(path string, overrides map[string]string) (Config, error) {
	cfg := Default()

	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, errors.Wrapf(err, "read config file %s", path)
		}
		if err := Overlay(&cfg, v.AllSettings()); err != nil {
			return cfg, errors.Wrapf(err, "decode config file %s", path)
		}
	}

	if len(overrides) > 0 {
		raw := make(map[string]any, len(overrides))
		for k, val := range overrides {
			raw[k] = val
		}
		if err := Overlay(&cfg, nest(raw)); err != nil {
			return cfg, errors.Wrap(err, "apply overrides")
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, errors.Wrap(err, "parse environment")
	}

	return cfg, cfg.Validate()
}

// Overlay decodes raw onto cfg. Keys match the mapstructure tags; values may
// be strings and are converted to the field type.
func Overlay(cfg *Config, raw map[string]any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

// nest turns dotted keys such as "incentive.amount" into nested maps.
func nest(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for key, val := range flat {
		parts := strings.Split(strings.ToLower(strings.TrimSpace(key)), ".")
		cur := out
		for _, p := range parts[:len(parts)-1] {
			next, ok := cur[p].(map[string]any)
			if !ok {
				next = make(map[string]any)
				cur[p] = next
			}
			cur = next
		}
		cur[parts[len(parts)-1]] = val
	}
	return out
}

// Validate checks every field that the node would otherwise fail on later.
func (c Config) Validate() error {
	if c.ChainID <= 0 {
		return errors.Errorf("chain_id must be positive, got %d", c.ChainID)
	}
	if c.DomainName == "" || c.DomainVersion == "" {
		return errors.New("domain_name and domain_version are required")
	}
	for name, addr := range map[string]string{
		"ledger_address":   c.LedgerAddress,
		"registry_address": c.RegistryAddress,
	} {
		if !common.IsHexAddress(addr) {
			return errors.Errorf("%s %q is not an address", name, addr)
		}
	}
	if c.LedgerAddress == c.RegistryAddress {
		return errors.New("ledger and registry must use different addresses")
	}
	if len(c.ReplicaDSNs) > 0 && c.DSN == "" {
		return errors.New("replica_dsns needs dsn")
	}
	if c.ListenAddress == "" {
		return errors.New("listen_address is required")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log_level")
	}
	if _, err := c.GenesisBalances(); err != nil {
		return err
	}
	if c.Incentive.Address != "" {
		if !common.IsHexAddress(c.Incentive.Address) {
			return errors.Errorf("incentive.address %q is not an address", c.Incentive.Address)
		}
		if _, err := units.ParseEther(c.Incentive.Amount); err != nil {
			return errors.Wrap(err, "incentive.amount")
		}
		if c.Incentive.Fund != "" {
			if _, err := units.ParseEther(c.Incentive.Fund); err != nil {
				return errors.Wrap(err, "incentive.fund")
			}
		}
	}
	for i, r := range c.Resolvers {
		if err := r.validate(); err != nil {
			return errors.Wrapf(err, "resolvers[%d]", i)
		}
	}
	return nil
}

// Level returns the parsed log level. It assumes Validate passed.
func (c Config) Level() zapcore.Level {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func (c Config) Ledger() common.Address   { return common.HexToAddress(c.LedgerAddress) }
func (c Config) Registry() common.Address { return common.HexToAddress(c.RegistryAddress) }

// GenesisBalances parses the genesis allocation (address -> ether).
func (c Config) GenesisBalances() (map[common.Address]*big.Int, error) {
	out := make(map[common.Address]*big.Int, len(c.Genesis))
	for addr, amount := range c.Genesis {
		if !common.IsHexAddress(addr) {
			return nil, errors.Errorf("genesis account %q is not an address", addr)
		}
		wei, err := units.ParseEther(amount)
		if err != nil {
			return nil, errors.Wrapf(err, "genesis balance of %s", addr)
		}
		out[common.HexToAddress(addr)] = wei
	}
	return out, nil
}
