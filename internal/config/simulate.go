package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// SimulateConfig holds the scenario run by the simulate command on top of the
// shared launchpad settings.
type SimulateConfig struct {
	Config

	Dex            string
	Token          string
	Admin          string
	Supply         uint64
	VirtualReserve uint64
	VirtualSupply  uint64
	Buys           []uint64
	Sells          []uint64
}

// LoadSimulate merges config file, environment variables, and flags into
// SimulateConfig.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	base, err := Load(cfgFile, flags)
	if err != nil {
		return SimulateConfig{}, err
	}
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return SimulateConfig{}, err
	}
	v.SetDefault("dex", "cetus")
	v.SetDefault("token", "MEME")
	v.SetDefault("admin", "operator")
	v.SetDefault("supply", uint64(1_000_000_000))
	v.SetDefault("virtual-reserve", uint64(30_000))
	v.SetDefault("buy", []string{"110000"})

	buys, err := ParseAmounts(getStringSlice(v, "buy"))
	if err != nil {
		return SimulateConfig{}, err
	}
	sells, err := ParseAmounts(getStringSlice(v, "sell"))
	if err != nil {
		return SimulateConfig{}, err
	}

	cfg := SimulateConfig{
		Config:         base,
		Dex:            v.GetString("dex"),
		Token:          v.GetString("token"),
		Admin:          v.GetString("admin"),
		Supply:         v.GetUint64("supply"),
		VirtualReserve: v.GetUint64("virtual-reserve"),
		VirtualSupply:  v.GetUint64("virtual-supply"),
		Buys:           buys,
		Sells:          sells,
	}
	if cfg.Token == "" || cfg.Token == cfg.ReserveAsset {
		return SimulateConfig{}, fmt.Errorf("token asset %q must differ from reserve asset", cfg.Token)
	}
	if cfg.Supply == 0 {
		return SimulateConfig{}, fmt.Errorf("supply must be greater than zero")
	}
	return cfg, nil
}
