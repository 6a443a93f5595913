package launchpad

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curvelaunch/internal/curve"
)

func TestSettersRequireAdminCap(t *testing.T) {
	l := newLaunch(t)
	_, otherCap, err := NewConfig(Params{ReserveAsset: "SUI", GraduationThreshold: 1}, "other")
	require.NoError(t, err)

	for name, c := range map[string]*AdminCap{
		"nil":    nil,
		"forged": {},
		"other":  otherCap,
	} {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, l.cfg.SetCreationFee(c, 5), ErrUnauthorized)
			require.ErrorIs(t, l.cfg.SetGraduationThreshold(c, 5), ErrUnauthorized)
			require.ErrorIs(t, l.cfg.SetFeeBps(c, 5), ErrUnauthorized)
			require.ErrorIs(t, l.cfg.SetStakingBps(c, 5), ErrUnauthorized)
			require.ErrorIs(t, l.cfg.SetDexEnabled(c, DexCetus, false), ErrUnauthorized)
			require.ErrorIs(t, l.cfg.SetDexPackage(c, DexCetus, ""), ErrUnauthorized)
		})
	}

	assert.Equal(t, uint64(testCreationFee), l.cfg.CreationFee())
	assert.True(t, l.cfg.Dex(DexCetus).Configured())
}

func TestAdminCapTransfer(t *testing.T) {
	l := newLaunch(t)
	assert.Equal(t, "admin", l.cap.Holder())

	l.cap.Transfer("multisig")
	assert.Equal(t, "multisig", l.cap.Holder())
	require.NoError(t, l.cfg.SetCreationFee(l.cap, 2_000))
	assert.Equal(t, uint64(2_000), l.cfg.CreationFee())
}

func TestSettersValidate(t *testing.T) {
	l := newLaunch(t)

	require.ErrorIs(t, l.cfg.SetGraduationThreshold(l.cap, 0), ErrInvalidParams)
	require.ErrorIs(t, l.cfg.SetFeeBps(l.cap, curve.BpsDenominator), ErrInvalidParams)
	require.ErrorIs(t, l.cfg.SetStakingBps(l.cap, curve.BpsDenominator), ErrInvalidParams)
	require.ErrorIs(t, l.cfg.SetDexPackage(l.cap, DexCetus, "not-hex"), ErrInvalidParams)
	require.ErrorIs(t, l.cfg.SetDexEnabled(l.cap, DexKind(9), true), ErrInvalidParams)

	assert.Equal(t, uint64(testThreshold), l.cfg.GraduationThreshold())
	assert.Equal(t, uint16(100), l.cfg.FeeBps())
	assert.Equal(t, testCetusPackage, l.cfg.Dex(DexCetus).Package)
}

func TestDexSlotConfigured(t *testing.T) {
	cases := []struct {
		slot DexSlot
		want bool
	}{
		{DexSlot{Package: testCetusPackage, Enabled: true}, true},
		{DexSlot{Package: testCetusPackage, Enabled: false}, false},
		{DexSlot{Package: "", Enabled: true}, false},
		{DexSlot{Package: "0x0000", Enabled: true}, false},
		{DexSlot{Package: "0xzz", Enabled: true}, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.slot.Configured(), "%+v", tc.slot)
	}
}

func TestFeeChangeAppliesToNewPools(t *testing.T) {
	l := newLaunch(t)
	require.NoError(t, l.cfg.SetFeeBps(l.cap, 250))

	assert.Equal(t, uint16(100), l.pool.Params().FeeBps)

	pool, err := CreatePool(l.cfg, l.treasury, l.fees, curve.Params{VirtualReserve: 30_000, FeeBps: 9}, testSupply, l.mintReserve(t, testCreationFee), testNow)
	require.NoError(t, err)
	assert.Equal(t, uint16(250), pool.Params().FeeBps)
}

func TestParseDexKind(t *testing.T) {
	for in, want := range map[string]DexKind{
		"cetus":      DexCetus,
		" Cetus ":    DexCetus,
		"uniswap_v3": DexUniswapV3,
		"v3":         DexUniswapV3,
	} {
		got, err := ParseDexKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseDexKind("raydium")
	require.ErrorIs(t, err, ErrInvalidParams)
}
