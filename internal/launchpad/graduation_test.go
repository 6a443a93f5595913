package launchpad

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curvelaunch/internal/asset"
	"curvelaunch/internal/model"
	"curvelaunch/internal/registry"
)

func completion(reserve, token uint64) Completion {
	return Completion{
		ExternalPoolID: "0xpool",
		FinalReserve:   reserve,
		FinalToken:     token,
		Price: model.PriceSnapshot{
			Encoding:   model.PriceEncodingSqrtX64,
			Value:      "18446744073709551616",
			BaseAsset:  "MEME",
			QuoteAsset: "SUI",
		},
	}
}

func TestGraduationLifecycle(t *testing.T) {
	ctx := context.Background()
	l := newLaunch(t)
	require.NoError(t, l.cfg.SetStakingBps(l.cap, 100))
	reg := registry.NewMemory()

	l.buy(t, testThreshold+testThreshold/10)
	require.True(t, l.pool.IsEligible(l.cfg))

	pending, err := InitiateGraduation(l.cap, l.pool, l.cfg, DexCetus)
	require.NoError(t, err)
	assert.Equal(t, StateGraduating, l.pool.State())
	assert.Zero(t, pending.ReserveAmount())
	assert.Zero(t, pending.TokenAmount())

	reserve, tokens, err := Extract(pending, l.cfg, DexCetus, testMinLiquidity)
	require.NoError(t, err)
	assert.Equal(t, uint64(108_900), reserve.Value())
	assert.Equal(t, uint64(215_982), tokens.Value())
	assert.Zero(t, l.pool.ReserveBalance())
	assert.Zero(t, l.pool.TokenBalance())

	staking, err := ExtractStakingTokens(pending, l.cfg, tokens, testMinLiquidity)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_159), staking.Value())
	assert.Equal(t, uint64(213_823), tokens.Value())
	assert.Equal(t, tokens.Value(), pending.TokenAmount())

	receipt, err := CompleteGraduation(ctx, pending, reg, completion(reserve.Value(), tokens.Value()), testNow)
	require.NoError(t, err)
	assert.True(t, l.pool.IsGraduated())
	assert.True(t, pending.Consumed())
	assert.False(t, l.pool.HasPending())

	stored, ok, err := reg.Get(ctx, l.pool.ID())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, receipt, stored)
	assert.Equal(t, "cetus", stored.DexKind)
	assert.Equal(t, uint64(215_982), stored.ExtractedToken)
	assert.Equal(t, uint64(2_159), stored.StakingAmount)
	assert.Equal(t, stored.ExtractedReserve+stored.ExtractedToken-stored.StakingAmount, stored.FinalReserve+stored.FinalToken)

	_, _, err = l.pool.Buy(l.cfg, l.fees, l.mintReserve(t, 1), 0, testNow)
	require.ErrorIs(t, err, ErrWrongState)
	assert.True(t, l.pool.IsGraduated())
}

func TestInitiateGraduationGuards(t *testing.T) {
	l := newLaunch(t)

	_, err := InitiateGraduation(l.cap, l.pool, l.cfg, DexCetus)
	require.ErrorIs(t, err, ErrNotEligible)

	l.buy(t, 110_000)

	_, err = InitiateGraduation(&AdminCap{}, l.pool, l.cfg, DexCetus)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = InitiateGraduation(nil, l.pool, l.cfg, DexCetus)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, otherCap, err := NewConfig(Params{ReserveAsset: "SUI", GraduationThreshold: 1}, "mallory")
	require.NoError(t, err)
	_, err = InitiateGraduation(otherCap, l.pool, l.cfg, DexCetus)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = InitiateGraduation(l.cap, l.pool, l.cfg, DexKind(9))
	require.ErrorIs(t, err, ErrInvalidParams)
	assert.Equal(t, StateActive, l.pool.State())

	_, err = InitiateGraduation(l.cap, l.pool, l.cfg, DexCetus)
	require.NoError(t, err)
	_, err = InitiateGraduation(l.cap, l.pool, l.cfg, DexCetus)
	require.ErrorIs(t, err, ErrWrongState)
}

func TestExtractWrongDexType(t *testing.T) {
	l := newLaunch(t)
	l.buy(t, 110_000)
	pending, err := InitiateGraduation(l.cap, l.pool, l.cfg, DexUniswapV3)
	require.NoError(t, err)

	_, _, err = Extract(pending, l.cfg, DexCetus, testMinLiquidity)
	require.ErrorIs(t, err, ErrWrongDexType)
	assert.Equal(t, uint64(108_900), l.pool.ReserveBalance())
	assert.Equal(t, uint64(215_982), l.pool.TokenBalance())
	assert.False(t, pending.Extracted())
}

func TestExtractDexNotConfigured(t *testing.T) {
	cases := []struct {
		name string
		pkg  string
		on   bool
	}{
		{name: "unset", pkg: "", on: true},
		{name: "zero address", pkg: "0x0000000000000000000000000000000000000000", on: true},
		{name: "disabled", pkg: "0x1111111111111111111111111111111111111111", on: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := newLaunch(t)
			require.NoError(t, l.cfg.SetDexPackage(l.cap, DexUniswapV3, tc.pkg))
			require.NoError(t, l.cfg.SetDexEnabled(l.cap, DexUniswapV3, tc.on))
			l.buy(t, 110_000)

			pending, err := InitiateGraduation(l.cap, l.pool, l.cfg, DexUniswapV3)
			require.NoError(t, err)

			_, _, err = Extract(pending, l.cfg, DexUniswapV3, testMinLiquidity)
			require.ErrorIs(t, err, ErrDexNotConfigured)
			assert.Equal(t, uint64(108_900), l.pool.ReserveBalance())
		})
	}
}

func TestExtractMinimumLiquidity(t *testing.T) {
	l := newLaunch(t)
	l.buy(t, 110_000)
	pending, err := InitiateGraduation(l.cap, l.pool, l.cfg, DexCetus)
	require.NoError(t, err)

	_, _, err = Extract(pending, l.cfg, DexCetus, 108_901)
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
	assert.Equal(t, uint64(108_900), l.pool.ReserveBalance())
	assert.Equal(t, uint64(215_982), l.pool.TokenBalance())

	reserve, tokens, err := Extract(pending, l.cfg, DexCetus, 108_900)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, reserve.Value(), uint64(108_900))
	assert.GreaterOrEqual(t, tokens.Value(), uint64(108_900))

	_, _, err = Extract(pending, l.cfg, DexCetus, 0)
	require.ErrorIs(t, err, ErrAlreadyExtracted)
}

func TestStakingOrdering(t *testing.T) {
	ctx := context.Background()
	l := newLaunch(t)
	l.buy(t, 110_000)
	pending, err := InitiateGraduation(l.cap, l.pool, l.cfg, DexCetus)
	require.NoError(t, err)

	_, err = ExtractStakingTokens(pending, l.cfg, asset.Zero("MEME"), 0)
	require.ErrorIs(t, err, ErrNotExtracted)

	reserve, tokens, err := Extract(pending, l.cfg, DexCetus, testMinLiquidity)
	require.NoError(t, err)

	_, err = CompleteGraduation(ctx, pending, registry.NewMemory(), completion(reserve.Value(), tokens.Value()), testNow)
	require.ErrorIs(t, err, ErrStakingUnresolved)

	staking, err := ExtractStakingTokens(pending, l.cfg, tokens, testMinLiquidity)
	require.NoError(t, err)
	assert.Zero(t, staking.Value(), "zero staking fraction still resolves the allocation")
	assert.True(t, pending.StakingResolved())

	_, err = ExtractStakingTokens(pending, l.cfg, tokens, testMinLiquidity)
	require.ErrorIs(t, err, ErrStakingResolved)
}

func TestCompleteRejectsFabricatedAmounts(t *testing.T) {
	ctx := context.Background()
	l := newLaunch(t)
	reg := registry.NewMemory()
	l.buy(t, 110_000)
	pending, err := InitiateGraduation(l.cap, l.pool, l.cfg, DexCetus)
	require.NoError(t, err)
	reserve, tokens, err := Extract(pending, l.cfg, DexCetus, testMinLiquidity)
	require.NoError(t, err)
	_, err = ExtractStakingTokens(pending, l.cfg, tokens, testMinLiquidity)
	require.NoError(t, err)

	_, err = CompleteGraduation(ctx, pending, reg, completion(reserve.Value()+1, tokens.Value()), testNow)
	require.ErrorIs(t, err, ErrAmountExceedsExtracted)
	_, err = CompleteGraduation(ctx, pending, reg, completion(reserve.Value(), tokens.Value()+1), testNow)
	require.ErrorIs(t, err, ErrAmountExceedsExtracted)
	assert.False(t, l.pool.IsGraduated())

	_, err = CompleteGraduation(ctx, pending, reg, completion(reserve.Value()-10, tokens.Value()), testNow)
	require.NoError(t, err)

	_, err = CompleteGraduation(ctx, pending, reg, completion(1, 1), testNow)
	require.ErrorIs(t, err, ErrPendingConsumed)
	_, _, err = Extract(pending, l.cfg, DexCetus, 0)
	require.ErrorIs(t, err, ErrPendingConsumed)

	list, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCompleteRejectsExistingReceipt(t *testing.T) {
	ctx := context.Background()
	l := newLaunch(t)
	reg := registry.NewMemory()
	l.buy(t, 110_000)
	pending, err := InitiateGraduation(l.cap, l.pool, l.cfg, DexCetus)
	require.NoError(t, err)
	reserve, tokens, err := Extract(pending, l.cfg, DexCetus, testMinLiquidity)
	require.NoError(t, err)
	_, err = ExtractStakingTokens(pending, l.cfg, tokens, testMinLiquidity)
	require.NoError(t, err)

	require.NoError(t, reg.Record(ctx, model.GraduationReceipt{PoolID: l.pool.ID(), CompletedAt: testNow}))

	_, err = CompleteGraduation(ctx, pending, reg, completion(reserve.Value(), tokens.Value()), testNow)
	require.ErrorIs(t, err, ErrAlreadyGraduated)
	assert.False(t, l.pool.IsGraduated())
	assert.False(t, pending.Consumed())
}

type failingRegistry struct {
	registry.Registry
	err error
}

func (f failingRegistry) Record(context.Context, model.GraduationReceipt) error { return f.err }

func TestCompleteRegistryFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	l := newLaunch(t)
	l.buy(t, 110_000)
	pending, err := InitiateGraduation(l.cap, l.pool, l.cfg, DexCetus)
	require.NoError(t, err)
	reserve, tokens, err := Extract(pending, l.cfg, DexCetus, testMinLiquidity)
	require.NoError(t, err)
	_, err = ExtractStakingTokens(pending, l.cfg, tokens, testMinLiquidity)
	require.NoError(t, err)

	boom := errors.New("disk full")
	_, err = CompleteGraduation(ctx, pending, failingRegistry{Registry: registry.NewMemory(), err: boom}, completion(reserve.Value(), tokens.Value()), testNow)
	require.ErrorIs(t, err, boom)
	assert.False(t, pending.Consumed())
	assert.Equal(t, StateGraduating, l.pool.State())

	_, err = CompleteGraduation(ctx, pending, registry.NewMemory(), completion(reserve.Value(), tokens.Value()), testNow)
	require.NoError(t, err)
	assert.True(t, l.pool.IsGraduated())
}

func TestAbortAndResume(t *testing.T) {
	ctx := context.Background()
	l := newLaunch(t)
	require.NoError(t, l.cfg.SetStakingBps(l.cap, 100))
	l.buy(t, 110_000)

	pending, err := InitiateGraduation(l.cap, l.pool, l.cfg, DexCetus)
	require.NoError(t, err)
	reserve, tokens, err := Extract(pending, l.cfg, DexCetus, testMinLiquidity)
	require.NoError(t, err)
	staking, err := ExtractStakingTokens(pending, l.cfg, tokens, testMinLiquidity)
	require.NoError(t, err)

	_, err = ResumeGraduation(l.cap, l.pool, l.cfg, DexCetus)
	require.ErrorIs(t, err, ErrPendingOutstanding)

	require.ErrorIs(t, AbortGraduation(&AdminCap{}, l.cfg, pending, reserve, tokens, staking, testNow), ErrUnauthorized)

	short, err := reserve.Split(1)
	require.NoError(t, err)
	require.ErrorIs(t, AbortGraduation(l.cap, l.cfg, pending, reserve, tokens, staking, testNow), ErrInvalidParams)
	require.NoError(t, reserve.Join(short))

	require.NoError(t, AbortGraduation(l.cap, l.cfg, pending, reserve, tokens, staking, testNow))
	assert.Equal(t, uint64(108_900), l.pool.ReserveBalance())
	assert.Equal(t, uint64(215_982), l.pool.TokenBalance())
	assert.Equal(t, StateGraduating, l.pool.State(), "abort never moves the state backwards")
	assert.True(t, pending.Consumed())
	require.ErrorIs(t, AbortGraduation(l.cap, l.cfg, pending, reserve, tokens, staking, testNow), ErrPendingConsumed)

	_, _, err = l.pool.Buy(l.cfg, l.fees, l.mintReserve(t, 1), 0, testNow)
	require.ErrorIs(t, err, ErrWrongState)

	resumed, err := ResumeGraduation(l.cap, l.pool, l.cfg, DexCetus)
	require.NoError(t, err)
	reserve, tokens, err = Extract(resumed, l.cfg, DexCetus, testMinLiquidity)
	require.NoError(t, err)
	assert.Equal(t, uint64(108_900), reserve.Value())
	_, err = ExtractStakingTokens(resumed, l.cfg, tokens, testMinLiquidity)
	require.NoError(t, err)
	_, err = CompleteGraduation(ctx, resumed, registry.NewMemory(), completion(reserve.Value(), tokens.Value()), testNow.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, l.pool.IsGraduated())

	_, err = ResumeGraduation(l.cap, l.pool, l.cfg, DexCetus)
	require.ErrorIs(t, err, ErrWrongState)
}

func TestAbortBeforeExtract(t *testing.T) {
	l := newLaunch(t)
	l.buy(t, 110_000)
	pending, err := InitiateGraduation(l.cap, l.pool, l.cfg, DexCetus)
	require.NoError(t, err)

	require.NoError(t, AbortGraduation(l.cap, l.cfg, pending, nil, nil, nil, testNow))
	assert.False(t, l.pool.HasPending())
	assert.Equal(t, uint64(108_900), l.pool.ReserveBalance())
}

func TestErrorCodesAreStable(t *testing.T) {
	cases := []struct {
		err  error
		code uint32
	}{
		{ErrUnauthorized, 1},
		{ErrWrongState, 2},
		{ErrWrongDexType, 4},
		{ErrDexNotConfigured, 5},
		{ErrInsufficientLiquidity, 6},
		{ErrAlreadyGraduated, 15},
		{ErrPriceOutOfRange, 20},
	}
	for _, tc := range cases {
		space, code := Code(tc.err)
		assert.Equal(t, Codespace, space)
		assert.Equal(t, tc.code, code)
	}

	l := newLaunch(t)
	_, err := InitiateGraduation(l.cap, l.pool, l.cfg, DexCetus)
	space, code := Code(err)
	assert.Equal(t, Codespace, space)
	assert.Equal(t, uint32(3), code, "wrapped errors keep their code")
}
