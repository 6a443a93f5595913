package launchpad

import (
	"fmt"
	"strings"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"

	"curvelaunch/internal/curve"
)

// DexKind tags the external exchange a graduation targets.
type DexKind uint8

const (
	DexCetus DexKind = iota + 1
	DexUniswapV3
)

func (k DexKind) String() string {
	switch k {
	case DexCetus:
		return "cetus"
	case DexUniswapV3:
		return "uniswap_v3"
	default:
		return fmt.Sprintf("dex(%d)", uint8(k))
	}
}

// Valid reports whether k is a known kind.
func (k DexKind) Valid() bool {
	return k == DexCetus || k == DexUniswapV3
}

// ParseDexKind parses the String form of a kind.
func ParseDexKind(s string) (DexKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cetus":
		return DexCetus, nil
	case "uniswap_v3", "uniswapv3", "v3":
		return DexUniswapV3, nil
	default:
		return 0, errorsmod.Wrapf(ErrInvalidParams, "unknown dex %q", s)
	}
}

// DexSlot is the per-adapter configuration: target package (or contract)
// address and an enabled flag.
type DexSlot struct {
	Package string `json:"package"`
	Enabled bool   `json:"enabled"`
}

// Configured reports whether the slot points at a non-zero address and is
// enabled.
func (s DexSlot) Configured() bool {
	if !s.Enabled || s.Package == "" {
		return false
	}
	b, err := hexutil.Decode(s.Package)
	if err != nil {
		return false
	}
	for _, v := range b {
		if v != 0 {
			return true
		}
	}
	return false
}

// Params are the initial values of a Config.
type Params struct {
	ReserveAsset        string
	CreationFee         uint64
	GraduationThreshold uint64
	FeeBps              uint16
	StakingBps          uint16
	Dex                 map[DexKind]DexSlot
}

func (p Params) validate() error {
	if p.ReserveAsset == "" {
		return errorsmod.Wrap(ErrInvalidParams, "reserve asset required")
	}
	if p.GraduationThreshold == 0 {
		return errorsmod.Wrap(ErrInvalidParams, "graduation threshold must be positive")
	}
	if p.FeeBps >= curve.BpsDenominator {
		return errorsmod.Wrapf(ErrInvalidParams, "fee %d bps", p.FeeBps)
	}
	if p.StakingBps >= curve.BpsDenominator {
		return errorsmod.Wrapf(ErrInvalidParams, "staking %d bps", p.StakingBps)
	}
	for kind, slot := range p.Dex {
		if !kind.Valid() {
			return errorsmod.Wrapf(ErrInvalidParams, "unknown dex %s", kind)
		}
		if err := validatePackage(slot.Package); err != nil {
			return err
		}
	}
	return nil
}

// Config is the launchpad-wide configuration. It is created once and changed
// only by the holder of the AdminCap returned alongside it.
type Config struct {
	mu     sync.RWMutex
	capID  uuid.UUID
	params Params
}

// NewConfig creates the configuration and its single admin capability.
func NewConfig(p Params, admin string) (*Config, *AdminCap, error) {
	if err := p.validate(); err != nil {
		return nil, nil, err
	}
	dex := make(map[DexKind]DexSlot, len(p.Dex))
	for k, v := range p.Dex {
		dex[k] = v
	}
	p.Dex = dex

	adminCap := newAdminCap(admin)
	return &Config{capID: adminCap.id, params: p}, adminCap, nil
}

// Authorize fails with ErrUnauthorized unless c is this config's capability.
func (c *Config) Authorize(adminCap *AdminCap) error {
	if !adminCap.matches(c.capID) {
		return ErrUnauthorized
	}
	return nil
}

func (c *Config) ReserveAsset() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.params.ReserveAsset
}

func (c *Config) CreationFee() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.params.CreationFee
}

func (c *Config) GraduationThreshold() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.params.GraduationThreshold
}

func (c *Config) FeeBps() uint16 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.params.FeeBps
}

func (c *Config) StakingBps() uint16 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.params.StakingBps
}

// Dex returns the slot for kind; unknown kinds return an empty slot.
func (c *Config) Dex(kind DexKind) DexSlot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.params.Dex[kind]
}

func (c *Config) SetCreationFee(adminCap *AdminCap, fee uint64) error {
	return c.update(adminCap, func(p *Params) error {
		p.CreationFee = fee
		return nil
	})
}

func (c *Config) SetGraduationThreshold(adminCap *AdminCap, threshold uint64) error {
	return c.update(adminCap, func(p *Params) error {
		if threshold == 0 {
			return errorsmod.Wrap(ErrInvalidParams, "graduation threshold must be positive")
		}
		p.GraduationThreshold = threshold
		return nil
	})
}

// SetFeeBps changes the trading fee applied to pools created afterwards.
func (c *Config) SetFeeBps(adminCap *AdminCap, bps uint16) error {
	return c.update(adminCap, func(p *Params) error {
		if bps >= curve.BpsDenominator {
			return errorsmod.Wrapf(ErrInvalidParams, "fee %d bps", bps)
		}
		p.FeeBps = bps
		return nil
	})
}

func (c *Config) SetStakingBps(adminCap *AdminCap, bps uint16) error {
	return c.update(adminCap, func(p *Params) error {
		if bps >= curve.BpsDenominator {
			return errorsmod.Wrapf(ErrInvalidParams, "staking %d bps", bps)
		}
		p.StakingBps = bps
		return nil
	})
}

// SetDexPackage sets the target address of an adapter. An empty address
// unsets it.
func (c *Config) SetDexPackage(adminCap *AdminCap, kind DexKind, pkg string) error {
	return c.update(adminCap, func(p *Params) error {
		if !kind.Valid() {
			return errorsmod.Wrapf(ErrInvalidParams, "unknown dex %s", kind)
		}
		if err := validatePackage(pkg); err != nil {
			return err
		}
		slot := p.Dex[kind]
		slot.Package = pkg
		p.Dex[kind] = slot
		return nil
	})
}

func (c *Config) SetDexEnabled(adminCap *AdminCap, kind DexKind, enabled bool) error {
	return c.update(adminCap, func(p *Params) error {
		if !kind.Valid() {
			return errorsmod.Wrapf(ErrInvalidParams, "unknown dex %s", kind)
		}
		slot := p.Dex[kind]
		slot.Enabled = enabled
		p.Dex[kind] = slot
		return nil
	})
}

func (c *Config) update(adminCap *AdminCap, fn func(p *Params) error) error {
	if err := c.Authorize(adminCap); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.params
	next.Dex = make(map[DexKind]DexSlot, len(c.params.Dex))
	for k, v := range c.params.Dex {
		next.Dex[k] = v
	}
	if err := fn(&next); err != nil {
		return err
	}
	c.params = next
	return nil
}

func validatePackage(pkg string) error {
	if pkg == "" {
		return nil
	}
	if _, err := hexutil.Decode(pkg); err != nil {
		return errorsmod.Wrapf(ErrInvalidParams, "package address %q: %v", pkg, err)
	}
	return nil
}
