package launcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"curvelaunch/internal/asset"
	"curvelaunch/internal/dex"
	"curvelaunch/internal/journal"
	"curvelaunch/internal/launchpad"
	"curvelaunch/internal/model"
	"curvelaunch/internal/registry"
)

// RetryConfig bounds the retries around the external pool creation and the
// registry write that follows it.
type RetryConfig struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxElapsed      time.Duration
}

// Sinks receive the handles that leave the protocol: Liquidity takes what was
// deposited into the external pool, Staking the staking allocation.
type Sinks struct {
	Liquidity launchpad.FeeSink
	Staking   launchpad.FeeSink
}

// ErrNoOutstanding is returned by Complete when the pool has no external pool
// waiting for its receipt.
var ErrNoOutstanding = errors.New("no outstanding graduation")

// outstanding is a graduation whose external pool exists but whose receipt
// was never recorded.
type outstanding struct {
	pending    *launchpad.PendingGraduation
	adapter    dex.Adapter
	completion launchpad.Completion
}

// Graduator drives a pool through the whole graduation protocol.
type Graduator struct {
	cfg      *launchpad.Config
	cap      *launchpad.AdminCap
	adapters *dex.Set
	creator  dex.PoolCreator
	registry registry.Registry
	journal  journal.Store
	sinks    Sinks
	retry    RetryConfig
	logger   *zap.Logger
	now      func() time.Time

	mu          sync.Mutex
	outstanding map[string]outstanding
}

// NewGraduator builds a Graduator with its dependencies.
func NewGraduator(
	cfg *launchpad.Config,
	adminCap *launchpad.AdminCap,
	adapters *dex.Set,
	creator dex.PoolCreator,
	reg registry.Registry,
	store journal.Store,
	sinks Sinks,
	retry RetryConfig,
	logger *zap.Logger,
) *Graduator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = journal.NewMemory()
	}
	if retry.MaxTries == 0 {
		retry.MaxTries = 5
	}
	if retry.InitialInterval <= 0 {
		retry.InitialInterval = 500 * time.Millisecond
	}
	if retry.MaxElapsed <= 0 {
		retry.MaxElapsed = time.Minute
	}
	return &Graduator{
		cfg:      cfg,
		cap:      adminCap,
		adapters: adapters,
		creator:  creator,
		registry: reg,
		journal:  store,
		sinks:    sinks,
		retry:    retry,
		logger:   logger,
		now:      time.Now,

		outstanding: make(map[string]outstanding),
	}
}

// SetClock replaces the time source used for journal entries and receipts.
func (g *Graduator) SetClock(now func() time.Time) {
	if now != nil {
		g.now = now
	}
}

// Graduate runs initiate, extract, stake, create and complete for pool on the
// given dex. An Active pool is initiated, a Graduating pool without a pending
// graduation is resumed. Failures before the external pool exists abort the
// attempt and refund the pool. A pool whose external pool already exists is
// finished through Complete.
func (g *Graduator) Graduate(ctx context.Context, pool *launchpad.Pool, kind launchpad.DexKind) (model.GraduationReceipt, error) {
	if g.creator == nil {
		return model.GraduationReceipt{}, fmt.Errorf("pool creator is nil")
	}
	if g.registry == nil {
		return model.GraduationReceipt{}, fmt.Errorf("registry is nil")
	}

	adapter, err := g.adapters.Get(kind)
	if err != nil {
		return model.GraduationReceipt{}, err
	}
	// Checked up front so a misconfigured dex never strands an Active pool
	// in Graduating.
	if !g.cfg.Dex(kind).Configured() {
		return model.GraduationReceipt{}, fmt.Errorf("%s: %w", kind, launchpad.ErrDexNotConfigured)
	}

	if pool.HasPending() {
		if _, ok := g.lookup(pool.ID()); ok {
			return g.Complete(ctx, pool.ID())
		}
	}

	log := g.logger.With(zap.String("pool", pool.ID()), zap.String("dex", adapter.Name()))

	pending, err := g.open(ctx, pool, kind)
	if err != nil {
		return model.GraduationReceipt{}, err
	}
	if _, err := journal.Advance(ctx, g.journal, pool.ID(), journal.StageInitiated, g.now(), func(e *journal.Entry) {
		e.Dex = adapter.Name()
	}); err != nil {
		return model.GraduationReceipt{}, g.abort(ctx, log, pending, nil, nil, nil, err)
	}
	log.Info("graduation initiated", zap.Uint64("reserve", pool.ReserveBalance()))

	reserve, tokens, err := adapter.Extract(pending, g.cfg)
	if err != nil {
		return model.GraduationReceipt{}, g.abort(ctx, log, pending, nil, nil, nil, err)
	}
	if _, err := journal.Advance(ctx, g.journal, pool.ID(), journal.StageExtracted, g.now(), func(e *journal.Entry) {
		e.ReserveAmount = pending.ReserveAmount()
		e.TokenAmount = pending.TokenAmount()
	}); err != nil {
		return model.GraduationReceipt{}, g.abort(ctx, log, pending, reserve, tokens, nil, err)
	}

	staking, err := adapter.ExtractStakingTokens(pending, g.cfg, tokens)
	if err != nil {
		return model.GraduationReceipt{}, g.abort(ctx, log, pending, reserve, tokens, nil, err)
	}
	if _, err := journal.Advance(ctx, g.journal, pool.ID(), journal.StageStaked, g.now(), func(e *journal.Entry) {
		e.TokenAmount = pending.TokenAmount()
		e.StakingAmount = pending.StakingAmount()
	}); err != nil {
		return model.GraduationReceipt{}, g.abort(ctx, log, pending, reserve, tokens, staking, err)
	}

	req, err := adapter.PoolRequest(pending, g.cfg)
	if err != nil {
		return model.GraduationReceipt{}, g.abort(ctx, log, pending, reserve, tokens, staking, err)
	}

	completion, err := g.createPool(ctx, log, req)
	if err != nil {
		return model.GraduationReceipt{}, g.abort(ctx, log, pending, reserve, tokens, staking, fmt.Errorf("create pool: %w", err))
	}
	log.Info("external pool created", zap.String("external_pool", completion.ExternalPoolID))

	// The handles now belong to the external pool; nothing can be refunded.
	g.release(log, g.sinks.Liquidity, reserve, tokens)
	g.release(log, g.sinks.Staking, staking)

	if _, err := journal.Advance(ctx, g.journal, pool.ID(), journal.StagePoolCreated, g.now(), func(e *journal.Entry) {
		e.ExternalPoolID = completion.ExternalPoolID
	}); err != nil {
		log.Warn("journal pool created", zap.Error(err))
	}

	return g.finish(ctx, log, outstanding{pending: pending, adapter: adapter, completion: completion})
}

// Complete records the receipt of a graduation whose external pool was
// created but whose registry write failed. The journal entry moves from
// pool_created to completed.
func (g *Graduator) Complete(ctx context.Context, poolID string) (model.GraduationReceipt, error) {
	o, ok := g.lookup(poolID)
	if !ok {
		return model.GraduationReceipt{}, fmt.Errorf("%s: %w", poolID, ErrNoOutstanding)
	}
	log := g.logger.With(zap.String("pool", poolID), zap.String("dex", o.adapter.Name()))
	log.Info("completing outstanding graduation", zap.String("external_pool", o.completion.ExternalPoolID))
	return g.finish(ctx, log, o)
}

// Outstanding lists the pools waiting for Complete.
func (g *Graduator) Outstanding() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, 0, len(g.outstanding))
	for id := range g.outstanding {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (g *Graduator) finish(ctx context.Context, log *zap.Logger, o outstanding) (model.GraduationReceipt, error) {
	poolID := o.pending.PoolID()

	receipt, err := g.complete(ctx, log, o.adapter, o.pending, o.completion)
	if err != nil {
		if o.pending.Consumed() || errors.Is(err, launchpad.ErrAlreadyGraduated) {
			g.forget(poolID)
		} else {
			g.remember(o)
		}
		if annotateErr := journal.Annotate(context.WithoutCancel(ctx), g.journal, poolID, err.Error(), g.now()); annotateErr != nil {
			log.Warn("journal annotate", zap.Error(annotateErr))
		}
		log.Error("graduation left outstanding", zap.String("external_pool", o.completion.ExternalPoolID), zap.Error(err))
		return model.GraduationReceipt{}, fmt.Errorf("complete graduation: %w", err)
	}
	g.forget(poolID)

	if _, err := journal.Advance(ctx, g.journal, poolID, journal.StageCompleted, g.now(), func(e *journal.Entry) {
		e.Error = ""
	}); err != nil {
		log.Warn("journal completed", zap.Error(err))
	}

	log.Info("graduation completed",
		zap.String("external_pool", receipt.ExternalPoolID),
		zap.Uint64("final_reserve", receipt.FinalReserve),
		zap.Uint64("final_token", receipt.FinalToken),
		zap.Uint64("staking", receipt.StakingAmount),
	)
	return receipt, nil
}

func (g *Graduator) lookup(poolID string) (outstanding, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.outstanding[poolID]
	return o, ok
}

func (g *Graduator) remember(o outstanding) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outstanding[o.pending.PoolID()] = o
}

func (g *Graduator) forget(poolID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.outstanding, poolID)
}

// open returns a pending graduation for pool, initiating or resuming as its
// state requires.
func (g *Graduator) open(ctx context.Context, pool *launchpad.Pool, kind launchpad.DexKind) (*launchpad.PendingGraduation, error) {
	switch pool.State() {
	case launchpad.StateActive:
		return launchpad.InitiateGraduation(g.cap, pool, g.cfg, kind)
	case launchpad.StateGraduating:
		pending, err := launchpad.ResumeGraduation(g.cap, pool, g.cfg, kind)
		if err != nil {
			return nil, err
		}
		// An attempt interrupted without reaching abort leaves the journal
		// mid-way; close it so the new attempt can start.
		if entry, ok, err := g.journal.Load(ctx, pool.ID()); err == nil && ok && journal.CanAdvance(entry.Stage, journal.StageAborted) {
			if _, err := journal.Advance(ctx, g.journal, pool.ID(), journal.StageAborted, g.now(), func(e *journal.Entry) {
				e.Error = "interrupted"
			}); err != nil {
				g.logger.Warn("journal close interrupted attempt", zap.String("pool", pool.ID()), zap.Error(err))
			}
		}
		return pending, nil
	case launchpad.StateGraduated:
		return nil, launchpad.ErrAlreadyGraduated
	default:
		return nil, launchpad.ErrWrongState
	}
}

func (g *Graduator) createPool(ctx context.Context, log *zap.Logger, req dex.PoolRequest) (launchpad.Completion, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = g.retry.InitialInterval
	policy.MaxInterval = g.retry.InitialInterval * 10

	notify := func(err error, d time.Duration) {
		log.Warn("pool creation failed, retrying", zap.Error(err), zap.Duration("backoff", d))
	}

	operation := func() (launchpad.Completion, error) {
		return g.creator.CreatePool(ctx, req)
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(g.retry.MaxTries),
		backoff.WithMaxElapsedTime(g.retry.MaxElapsed),
		backoff.WithNotify(notify),
	)
}

// complete retries registry failures; protocol rejections are final.
func (g *Graduator) complete(
	ctx context.Context,
	log *zap.Logger,
	adapter dex.Adapter,
	pending *launchpad.PendingGraduation,
	c launchpad.Completion,
) (model.GraduationReceipt, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = g.retry.InitialInterval

	operation := func() (model.GraduationReceipt, error) {
		receipt, err := adapter.Complete(ctx, pending, g.registry, c, g.now())
		if err != nil {
			if space, _ := launchpad.Code(err); space == launchpad.Codespace {
				return receipt, backoff.Permanent(err)
			}
			return receipt, err
		}
		return receipt, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(g.retry.MaxTries),
		backoff.WithMaxElapsedTime(g.retry.MaxElapsed),
		backoff.WithNotify(func(err error, d time.Duration) {
			log.Warn("record receipt failed, retrying", zap.Error(err), zap.Duration("backoff", d))
		}),
	)
}

// abort refunds the pool and closes the journal attempt. It returns cause,
// joined with any error the abort itself hit.
func (g *Graduator) abort(
	ctx context.Context,
	log *zap.Logger,
	pending *launchpad.PendingGraduation,
	reserve, tokens, staking *asset.Balance,
	cause error,
) error {
	ctx = context.WithoutCancel(ctx)
	log.Warn("aborting graduation", zap.Error(cause))

	if err := launchpad.AbortGraduation(g.cap, g.cfg, pending, reserve, tokens, staking, g.now()); err != nil {
		log.Error("abort graduation", zap.Error(err))
		return errors.Join(cause, fmt.Errorf("abort: %w", err))
	}

	entry, ok, err := g.journal.Load(ctx, pending.PoolID())
	if err == nil && ok && journal.CanAdvance(entry.Stage, journal.StageAborted) {
		_, err = journal.Advance(ctx, g.journal, pending.PoolID(), journal.StageAborted, g.now(), func(e *journal.Entry) {
			e.Error = cause.Error()
		})
	}
	if err != nil {
		log.Warn("journal aborted", zap.Error(err))
	}
	return cause
}

func (g *Graduator) release(log *zap.Logger, sink launchpad.FeeSink, handles ...*asset.Balance) {
	if sink == nil {
		return
	}
	for _, h := range handles {
		if h == nil {
			continue
		}
		if h.Value() == 0 {
			if err := h.DestroyZero(); err != nil {
				log.Error("destroy empty handle", zap.String("asset", h.Asset()), zap.Error(err))
			}
			continue
		}
		if err := sink.Deposit(h); err != nil {
			log.Error("release handle", zap.String("asset", h.Asset()), zap.Uint64("amount", h.Value()), zap.Error(err))
		}
	}
}
