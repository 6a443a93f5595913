package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"curvelaunch/internal/launchpad"
)

const envPrefix = "CURVELAUNCH"

// Registry backends.
const (
	RegistryMemory   = "memory"
	RegistryJsonl    = "jsonl"
	RegistryPostgres = "postgres"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	LogLevel string

	ReserveAsset        string
	CreationFee         uint64
	GraduationThreshold uint64
	FeeBps              uint16
	StakingBps          uint16
	DexPackages         map[string]string
	DexDisabled         []string

	MinLiquidity uint64
	V3Factory    string
	V3FeeTier    uint32
	Tokens       map[string]string

	Registry     string
	RegistryPath string
	PGDSN        string
	JournalDir   string

	RPCURL string

	MaxRetries      uint
	RetryBackoff    time.Duration
	RetryMaxElapsed time.Duration
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return Config{}, err
	}

	feeBps, err := bps(v, "fee-bps")
	if err != nil {
		return Config{}, err
	}
	stakingBps, err := bps(v, "staking-bps")
	if err != nil {
		return Config{}, err
	}
	feeTier := v.GetUint64("v3-fee-tier")
	if feeTier >= 1_000_000 {
		return Config{}, fmt.Errorf("v3-fee-tier %d out of range", feeTier)
	}

	cfg := Config{
		LogLevel:            v.GetString("log-level"),
		ReserveAsset:        v.GetString("reserve-asset"),
		CreationFee:         v.GetUint64("creation-fee"),
		GraduationThreshold: v.GetUint64("graduation-threshold"),
		FeeBps:              feeBps,
		StakingBps:          stakingBps,
		DexPackages:         getStringMap(v, "dex-package"),
		DexDisabled:         getStringSlice(v, "dex-disabled"),
		MinLiquidity:        v.GetUint64("min-liquidity"),
		V3Factory:           v.GetString("v3-factory"),
		V3FeeTier:           uint32(feeTier),
		Tokens:              getStringMap(v, "token-address"),
		Registry:            strings.ToLower(v.GetString("registry")),
		RegistryPath:        v.GetString("registry-path"),
		PGDSN:               v.GetString("pg-dsn"),
		JournalDir:          v.GetString("journal-dir"),
		RPCURL:              v.GetString("rpc"),
		MaxRetries:          v.GetUint("max-retries"),
		RetryBackoff:        v.GetDuration("retry-backoff"),
		RetryMaxElapsed:     v.GetDuration("retry-max-elapsed"),
	}

	switch cfg.Registry {
	case RegistryMemory, RegistryJsonl, RegistryPostgres:
	default:
		return Config{}, fmt.Errorf("unknown registry %q", cfg.Registry)
	}
	return cfg, nil
}

func newViper(cfgFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("reserve-asset", "SUI")
	v.SetDefault("creation-fee", uint64(1_000))
	v.SetDefault("graduation-threshold", uint64(100_000))
	v.SetDefault("fee-bps", 100)
	v.SetDefault("staking-bps", 0)
	v.SetDefault("v3-factory", "0x1F98431c8aD98523631AE4a59f267346ea31F984")
	v.SetDefault("v3-fee-tier", 10_000)
	v.SetDefault("registry", RegistryJsonl)
	v.SetDefault("registry-path", "./data/receipts.jsonl")
	v.SetDefault("journal-dir", "./data/journal")
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("retry-max-elapsed", time.Minute)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

// LaunchpadParams converts the loaded values into launchpad parameters. Every
// known dex gets a slot; a dex without a package stays unconfigured.
func (c Config) LaunchpadParams() (launchpad.Params, error) {
	disabled := make(map[launchpad.DexKind]bool, len(c.DexDisabled))
	for _, name := range c.DexDisabled {
		kind, err := launchpad.ParseDexKind(name)
		if err != nil {
			return launchpad.Params{}, err
		}
		disabled[kind] = true
	}

	slots := map[launchpad.DexKind]launchpad.DexSlot{
		launchpad.DexCetus:     {},
		launchpad.DexUniswapV3: {},
	}
	for name, pkg := range c.DexPackages {
		kind, err := launchpad.ParseDexKind(name)
		if err != nil {
			return launchpad.Params{}, err
		}
		slots[kind] = launchpad.DexSlot{Package: pkg}
	}
	for kind, slot := range slots {
		slot.Enabled = slot.Package != "" && !disabled[kind]
		slots[kind] = slot
	}

	return launchpad.Params{
		ReserveAsset:        c.ReserveAsset,
		CreationFee:         c.CreationFee,
		GraduationThreshold: c.GraduationThreshold,
		FeeBps:              c.FeeBps,
		StakingBps:          c.StakingBps,
		Dex:                 slots,
	}, nil
}

// TokenAddresses parses the asset id to ERC-20 address map.
func (c Config) TokenAddresses() (map[string]common.Address, error) {
	out := make(map[string]common.Address, len(c.Tokens))
	keys := make([]string, 0, len(c.Tokens))
	for k := range c.Tokens {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		raw := c.Tokens[k]
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("token %s: invalid address %q", k, raw)
		}
		out[k] = common.HexToAddress(raw)
	}
	return out, nil
}

// Factory returns the parsed V3 factory address.
func (c Config) Factory() (common.Address, error) {
	if !common.IsHexAddress(c.V3Factory) {
		return common.Address{}, fmt.Errorf("invalid v3 factory %q", c.V3Factory)
	}
	return common.HexToAddress(c.V3Factory), nil
}

func bps(v *viper.Viper, key string) (uint16, error) {
	val := v.GetUint64(key)
	if val >= 10_000 {
		return 0, fmt.Errorf("%s %d out of range", key, val)
	}
	return uint16(val), nil
}
