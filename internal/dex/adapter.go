package dex

import (
	"context"
	"fmt"
	"sort"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"

	"curvelaunch/internal/asset"
	"curvelaunch/internal/launchpad"
	"curvelaunch/internal/model"
	"curvelaunch/internal/registry"
)

// PoolRequest is everything an external actor needs to create and seed the
// target pool for a pending graduation.
type PoolRequest struct {
	PoolID        string
	Kind          launchpad.DexKind
	Package       string
	ReserveAsset  string
	Base          Leg
	Quote         Leg
	Price         model.PriceSnapshot
	Target        string
	Calldata      []byte
	PredictedPool string
}

// Completion reports the request as fully executed on externalPoolID.
func (r PoolRequest) Completion(externalPoolID string) launchpad.Completion {
	c := launchpad.Completion{ExternalPoolID: externalPoolID, Price: r.Price}
	for _, leg := range []Leg{r.Base, r.Quote} {
		if leg.Asset == r.ReserveAsset {
			c.FinalReserve = leg.Amount
		} else {
			c.FinalToken = leg.Amount
		}
	}
	return c
}

// Leg is one side of the external pool.
type Leg struct {
	Asset   string
	Address string
	Amount  uint64
}

// Adapter translates the generic graduation protocol into one exchange's
// pool-creation flow.
type Adapter interface {
	Kind() launchpad.DexKind
	Name() string
	MinimumLiquidity() uint64
	Extract(pending *launchpad.PendingGraduation, cfg *launchpad.Config) (*asset.Balance, *asset.Balance, error)
	ExtractStakingTokens(pending *launchpad.PendingGraduation, cfg *launchpad.Config, tokens *asset.Balance) (*asset.Balance, error)
	PoolRequest(pending *launchpad.PendingGraduation, cfg *launchpad.Config) (PoolRequest, error)
	Complete(ctx context.Context, pending *launchpad.PendingGraduation, reg registry.Registry, c launchpad.Completion, now time.Time) (model.GraduationReceipt, error)
}

// base carries the parts of an adapter that only differ by constants.
type base struct {
	kind     launchpad.DexKind
	minimum  uint64
	encoding string
	minPrice *uint256.Int
	maxPrice *uint256.Int
}

func (b base) Kind() launchpad.DexKind { return b.kind }

func (b base) Name() string { return b.kind.String() }

// MinimumLiquidity is the floor each extracted amount must meet.
func (b base) MinimumLiquidity() uint64 { return b.minimum }

func (b base) Extract(pending *launchpad.PendingGraduation, cfg *launchpad.Config) (*asset.Balance, *asset.Balance, error) {
	return launchpad.Extract(pending, cfg, b.kind, b.minimum)
}

func (b base) ExtractStakingTokens(pending *launchpad.PendingGraduation, cfg *launchpad.Config, tokens *asset.Balance) (*asset.Balance, error) {
	return launchpad.ExtractStakingTokens(pending, cfg, tokens, b.minimum)
}

func (b base) Complete(ctx context.Context, pending *launchpad.PendingGraduation, reg registry.Registry, c launchpad.Completion, now time.Time) (model.GraduationReceipt, error) {
	if pending == nil {
		return model.GraduationReceipt{}, errorsmod.Wrap(launchpad.ErrInvalidParams, "nil pending graduation")
	}
	if pending.Kind() != b.kind {
		return model.GraduationReceipt{}, errorsmod.Wrapf(launchpad.ErrWrongDexType, "pending for %s, adapter %s", pending.Kind(), b.kind)
	}
	if err := b.checkPrice(c.Price); err != nil {
		return model.GraduationReceipt{}, err
	}
	return launchpad.CompleteGraduation(ctx, pending, reg, c, now)
}

func (b base) checkPrice(p model.PriceSnapshot) error {
	if p.Encoding != b.encoding {
		return errorsmod.Wrapf(launchpad.ErrPriceOutOfRange, "encoding %q, want %q", p.Encoding, b.encoding)
	}
	v, err := uint256.FromDecimal(p.Value)
	if err != nil {
		return errorsmod.Wrapf(launchpad.ErrPriceOutOfRange, "value %q: %v", p.Value, err)
	}
	if v.Lt(b.minPrice) || v.Gt(b.maxPrice) {
		return errorsmod.Wrapf(launchpad.ErrPriceOutOfRange, "%s outside [%s, %s]", v.Dec(), b.minPrice.Dec(), b.maxPrice.Dec())
	}
	return nil
}

// Set holds adapters keyed by kind.
type Set struct {
	adapters map[launchpad.DexKind]Adapter
}

func NewSet(adapters ...Adapter) (*Set, error) {
	s := &Set{adapters: make(map[launchpad.DexKind]Adapter, len(adapters))}
	for _, a := range adapters {
		if _, exists := s.adapters[a.Kind()]; exists {
			return nil, fmt.Errorf("duplicate adapter for %s", a.Kind())
		}
		s.adapters[a.Kind()] = a
	}
	return s, nil
}

// Get returns the adapter for kind.
func (s *Set) Get(kind launchpad.DexKind) (Adapter, error) {
	a, ok := s.adapters[kind]
	if !ok {
		return nil, errorsmod.Wrapf(launchpad.ErrDexNotConfigured, "no adapter for %s", kind)
	}
	return a, nil
}

// Kinds lists the registered kinds in tag order.
func (s *Set) Kinds() []launchpad.DexKind {
	out := make([]launchpad.DexKind, 0, len(s.adapters))
	for k := range s.adapters {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// confirmedAmounts returns the reserve and token amounts a pending graduation
// will confirm, failing if extraction or staking have not happened yet.
func confirmedAmounts(pending *launchpad.PendingGraduation) (uint64, uint64, error) {
	if pending == nil {
		return 0, 0, errorsmod.Wrap(launchpad.ErrInvalidParams, "nil pending graduation")
	}
	if pending.Consumed() {
		return 0, 0, launchpad.ErrPendingConsumed
	}
	if !pending.Extracted() {
		return 0, 0, launchpad.ErrNotExtracted
	}
	if !pending.StakingResolved() {
		return 0, 0, launchpad.ErrStakingUnresolved
	}
	return pending.ReserveAmount(), pending.TokenAmount(), nil
}
