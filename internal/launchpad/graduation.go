package launchpad

import (
	"context"
	"errors"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"

	"curvelaunch/internal/asset"
	"curvelaunch/internal/curve"
	"curvelaunch/internal/model"
	"curvelaunch/internal/registry"
)

// PendingGraduation tracks funds that left a graduating pool and have not yet
// been confirmed as deposited into an external pool. It is single use: once
// completed or aborted every entry point rejects it.
type PendingGraduation struct {
	pool *Pool
	kind DexKind

	reserveAmount  uint64
	extractedToken uint64
	tokenAmount    uint64
	stakingAmount  uint64

	extracted       bool
	stakingResolved bool
	consumed        bool
}

func (g *PendingGraduation) PoolID() string { return g.pool.id }

func (g *PendingGraduation) Pool() *Pool { return g.pool }

func (g *PendingGraduation) Kind() DexKind { return g.kind }

// ReserveAmount is the reserve drained by Extract.
func (g *PendingGraduation) ReserveAmount() uint64 { return g.reserveAmount }

// ExtractedToken is the token amount drained by Extract.
func (g *PendingGraduation) ExtractedToken() uint64 { return g.extractedToken }

// TokenAmount is the token amount completion may confirm: the extracted
// amount minus the staking allocation.
func (g *PendingGraduation) TokenAmount() uint64 { return g.tokenAmount }

func (g *PendingGraduation) StakingAmount() uint64 { return g.stakingAmount }

func (g *PendingGraduation) Extracted() bool { return g.extracted }

func (g *PendingGraduation) StakingResolved() bool { return g.stakingResolved }

func (g *PendingGraduation) Consumed() bool { return g.consumed }

// Completion is what the external pool-creation step reports back.
type Completion struct {
	ExternalPoolID string
	FinalReserve   uint64
	FinalToken     uint64
	Price          model.PriceSnapshot
}

// InitiateGraduation moves an eligible Active pool to Graduating and returns
// its pending graduation. The dex slot is checked at extraction.
func InitiateGraduation(adminCap *AdminCap, pool *Pool, cfg *Config, kind DexKind) (*PendingGraduation, error) {
	if err := cfg.Authorize(adminCap); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, errorsmod.Wrapf(ErrInvalidParams, "unknown dex %s", kind)
	}

	pool.mu.Lock()
	defer pool.mu.Unlock()

	if pool.state != StateActive {
		return nil, errorsmod.Wrapf(ErrWrongState, "initiate on %s pool", pool.state)
	}
	if !pool.eligibleLocked(cfg) {
		return nil, errorsmod.Wrapf(ErrNotEligible, "reserve %d < threshold %d", pool.reserve.Value(), cfg.GraduationThreshold())
	}

	pool.state = StateGraduating
	pool.pending = true
	return &PendingGraduation{pool: pool, kind: kind}, nil
}

// ResumeGraduation issues a fresh pending graduation for a Graduating pool
// whose previous one was aborted.
func ResumeGraduation(adminCap *AdminCap, pool *Pool, cfg *Config, kind DexKind) (*PendingGraduation, error) {
	if err := cfg.Authorize(adminCap); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, errorsmod.Wrapf(ErrInvalidParams, "unknown dex %s", kind)
	}

	pool.mu.Lock()
	defer pool.mu.Unlock()

	if pool.state != StateGraduating {
		return nil, errorsmod.Wrapf(ErrWrongState, "resume on %s pool", pool.state)
	}
	if pool.pending {
		return nil, ErrPendingOutstanding
	}

	pool.pending = true
	return &PendingGraduation{pool: pool, kind: kind}, nil
}

// Extract drains the pool into two handles and records the amounts on the
// pending graduation. It is the shared body of every adapter's extract step.
func Extract(pending *PendingGraduation, cfg *Config, adapterKind DexKind, minimumLiquidity uint64) (*asset.Balance, *asset.Balance, error) {
	if pending == nil || pending.pool == nil {
		return nil, nil, errorsmod.Wrap(ErrInvalidParams, "nil pending graduation")
	}

	pool := pending.pool
	pool.mu.Lock()
	defer pool.mu.Unlock()

	if pending.consumed {
		return nil, nil, ErrPendingConsumed
	}
	if pending.kind != adapterKind {
		return nil, nil, errorsmod.Wrapf(ErrWrongDexType, "pending for %s, adapter %s", pending.kind, adapterKind)
	}
	if !cfg.Dex(adapterKind).Configured() {
		return nil, nil, errorsmod.Wrapf(ErrDexNotConfigured, "%s", adapterKind)
	}
	if pending.extracted {
		return nil, nil, ErrAlreadyExtracted
	}
	if pool.state != StateGraduating {
		return nil, nil, errorsmod.Wrapf(ErrWrongState, "extract from %s pool", pool.state)
	}
	if r, t := pool.reserve.Value(), pool.tokens.Value(); r < minimumLiquidity || t < minimumLiquidity {
		return nil, nil, errorsmod.Wrapf(ErrInsufficientLiquidity, "reserve %d token %d below %d", r, t, minimumLiquidity)
	}

	reserve := pool.reserve.TakeAll()
	tokens := pool.tokens.TakeAll()

	pending.reserveAmount = reserve.Value()
	pending.extractedToken = tokens.Value()
	pending.tokenAmount = tokens.Value()
	pending.extracted = true
	return reserve, tokens, nil
}

// ExtractStakingTokens splits the configured staking fraction off the
// extracted token handle. It must run exactly once between Extract and
// completion, even when the fraction is zero.
func ExtractStakingTokens(pending *PendingGraduation, cfg *Config, tokens *asset.Balance, minimumLiquidity uint64) (*asset.Balance, error) {
	if pending == nil || pending.pool == nil {
		return nil, errorsmod.Wrap(ErrInvalidParams, "nil pending graduation")
	}

	pool := pending.pool
	pool.mu.Lock()
	defer pool.mu.Unlock()

	if pending.consumed {
		return nil, ErrPendingConsumed
	}
	if !pending.extracted {
		return nil, ErrNotExtracted
	}
	if pending.stakingResolved {
		return nil, ErrStakingResolved
	}
	if tokens.Asset() != pool.tokens.Asset() {
		return nil, errorsmod.Wrapf(ErrAssetMismatch, "staking from %s, want %s", tokens.Asset(), pool.tokens.Asset())
	}
	if tokens.Value() != pending.tokenAmount {
		return nil, errorsmod.Wrapf(ErrInvalidParams, "token handle holds %d, extracted %d", tokens.Value(), pending.tokenAmount)
	}

	stake, err := bpsOf(pending.tokenAmount, cfg.StakingBps())
	if err != nil {
		return nil, err
	}
	if pending.tokenAmount-stake < minimumLiquidity {
		return nil, errorsmod.Wrapf(ErrInsufficientLiquidity, "%d left after staking %d", pending.tokenAmount-stake, stake)
	}

	staking, err := tokens.Split(stake)
	if err != nil {
		return nil, err
	}
	pending.tokenAmount -= stake
	pending.stakingAmount = stake
	pending.stakingResolved = true
	return staking, nil
}

// CompleteGraduation consumes pending, records the receipt and moves the pool
// to Graduated. Final amounts may not exceed what was extracted. A registry
// failure other than a duplicate leaves the pending usable for a retry.
func CompleteGraduation(ctx context.Context, pending *PendingGraduation, reg registry.Registry, c Completion, now time.Time) (model.GraduationReceipt, error) {
	if pending == nil || pending.pool == nil {
		return model.GraduationReceipt{}, errorsmod.Wrap(ErrInvalidParams, "nil pending graduation")
	}

	pool := pending.pool
	pool.mu.Lock()
	defer pool.mu.Unlock()

	if pending.consumed {
		return model.GraduationReceipt{}, ErrPendingConsumed
	}
	if !pending.extracted {
		return model.GraduationReceipt{}, ErrNotExtracted
	}
	if !pending.stakingResolved {
		return model.GraduationReceipt{}, ErrStakingUnresolved
	}
	if c.FinalReserve > pending.reserveAmount {
		return model.GraduationReceipt{}, errorsmod.Wrapf(ErrAmountExceedsExtracted, "reserve %d > %d", c.FinalReserve, pending.reserveAmount)
	}
	if c.FinalToken > pending.tokenAmount {
		return model.GraduationReceipt{}, errorsmod.Wrapf(ErrAmountExceedsExtracted, "token %d > %d", c.FinalToken, pending.tokenAmount)
	}
	if c.ExternalPoolID == "" {
		return model.GraduationReceipt{}, errorsmod.Wrap(ErrInvalidParams, "external pool id required")
	}
	switch pool.state {
	case StateGraduating:
	case StateGraduated:
		return model.GraduationReceipt{}, ErrAlreadyGraduated
	default:
		return model.GraduationReceipt{}, errorsmod.Wrapf(ErrWrongState, "complete on %s pool", pool.state)
	}

	if _, exists, err := reg.Get(ctx, pool.id); err != nil {
		return model.GraduationReceipt{}, errorsmod.Wrap(err, "registry lookup")
	} else if exists {
		return model.GraduationReceipt{}, errorsmod.Wrapf(ErrAlreadyGraduated, "receipt exists for %s", pool.id)
	}

	receipt := model.GraduationReceipt{
		PoolID:           pool.id,
		DexKind:          pending.kind.String(),
		ExternalPoolID:   c.ExternalPoolID,
		ReserveAsset:     pool.reserve.Asset(),
		TokenAsset:       pool.tokens.Asset(),
		ExtractedReserve: pending.reserveAmount,
		ExtractedToken:   pending.extractedToken,
		StakingAmount:    pending.stakingAmount,
		FinalReserve:     c.FinalReserve,
		FinalToken:       c.FinalToken,
		Price:            c.Price,
		CompletedAt:      now.UTC(),
	}
	if err := reg.Record(ctx, receipt); err != nil {
		if errors.Is(err, registry.ErrDuplicateReceipt) {
			return model.GraduationReceipt{}, errorsmod.Wrapf(ErrAlreadyGraduated, "receipt exists for %s", pool.id)
		}
		return model.GraduationReceipt{}, errorsmod.Wrap(err, "record receipt")
	}

	pool.state = StateGraduated
	pool.pending = false
	pool.updatedAt = now
	pending.consumed = true
	return receipt, nil
}

// AbortGraduation returns extracted funds to the pool and consumes pending.
// The handles must hold exactly what was extracted; staking may be nil when
// the allocation was never resolved. The pool stays Graduating and can be
// picked up again with ResumeGraduation.
func AbortGraduation(adminCap *AdminCap, cfg *Config, pending *PendingGraduation, reserve, tokens, staking *asset.Balance, now time.Time) error {
	if err := cfg.Authorize(adminCap); err != nil {
		return err
	}
	if pending == nil || pending.pool == nil {
		return errorsmod.Wrap(ErrInvalidParams, "nil pending graduation")
	}

	pool := pending.pool
	pool.mu.Lock()
	defer pool.mu.Unlock()

	if pending.consumed {
		return ErrPendingConsumed
	}

	if pending.extracted {
		if reserve.Asset() != pool.reserve.Asset() || tokens.Asset() != pool.tokens.Asset() {
			return errorsmod.Wrap(ErrAssetMismatch, "refund handles")
		}
		if reserve.Value() != pending.reserveAmount {
			return errorsmod.Wrapf(ErrInvalidParams, "refund reserve %d, extracted %d", reserve.Value(), pending.reserveAmount)
		}
		if tokens.Value() != pending.tokenAmount {
			return errorsmod.Wrapf(ErrInvalidParams, "refund token %d, held %d", tokens.Value(), pending.tokenAmount)
		}
		if pending.stakingAmount > 0 {
			if staking.Asset() != pool.tokens.Asset() || staking.Value() != pending.stakingAmount {
				return errorsmod.Wrapf(ErrInvalidParams, "refund staking %d, split %d", staking.Value(), pending.stakingAmount)
			}
		}

		if err := pool.reserve.Join(reserve); err != nil {
			return err
		}
		if err := pool.tokens.Join(tokens); err != nil {
			return err
		}
		if pending.stakingAmount > 0 {
			if err := pool.tokens.Join(staking); err != nil {
				return err
			}
		}
	}

	pool.pending = false
	pool.updatedAt = now
	pending.consumed = true
	return nil
}

func bpsOf(amount uint64, bps uint16) (uint64, error) {
	v, overflow := new(uint256.Int).MulDivOverflow(
		uint256.NewInt(amount),
		uint256.NewInt(uint64(bps)),
		uint256.NewInt(curve.BpsDenominator),
	)
	if overflow || !v.IsUint64() {
		return 0, errorsmod.Wrapf(curve.ErrOverflow, "%d bps of %d", bps, amount)
	}
	return v.Uint64(), nil
}
