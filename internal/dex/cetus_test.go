package dex

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"

	"curvelaunch/internal/launchpad"
)

func TestCalculateSqrtPriceX64Identity(t *testing.T) {
	got, err := CalculateSqrtPriceX64(1_000_000, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, "18446744073709551616", got.String())

	one := uint128.From64(1).Lsh(64)
	for _, x := range []uint64{1, 2, 7, 1_000, 123_456_789, math.MaxUint32, math.MaxUint64} {
		got, err := CalculateSqrtPriceX64(x, x)
		require.NoError(t, err)
		assert.True(t, got.Equals(one), "x=%d got %s", x, got)
	}
}

func TestCalculateSqrtPriceX64Ratios(t *testing.T) {
	cases := []struct {
		a, b uint64
		want string
	}{
		// sqrt(4) * 2^64
		{a: 1, b: 4, want: "36893488147419103232"},
		// sqrt(1/4) * 2^64
		{a: 4, b: 1, want: "9223372036854775808"},
		// sqrt(100) * 2^64
		{a: 10, b: 1_000, want: "184467440737095516160"},
	}
	for _, tc := range cases {
		got, err := CalculateSqrtPriceX64(tc.a, tc.b)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got.String(), "a=%d b=%d", tc.a, tc.b)
	}
}

func TestCalculateSqrtPriceX64Positive(t *testing.T) {
	extremes := []uint64{1, 2, 1_000, math.MaxUint32, math.MaxUint64}
	for _, a := range extremes {
		for _, b := range extremes {
			got, err := CalculateSqrtPriceX64(a, b)
			require.NoError(t, err)
			assert.False(t, got.IsZero(), "a=%d b=%d", a, b)
		}
	}
}

func TestCalculateSqrtPriceX64Floor(t *testing.T) {
	// sqrt(2) * 2^64 = 26087635650665564424.69...
	got, err := CalculateSqrtPriceX64(1, 2)
	require.NoError(t, err)
	assert.Equal(t, "26087635650665564424", got.String())

	sq := new(big.Int).Mul(got.Big(), got.Big())
	target := new(big.Int).Lsh(big.NewInt(2), 128)
	assert.True(t, sq.Cmp(target) <= 0)
}

func TestCalculateSqrtPriceX64RejectsZero(t *testing.T) {
	_, err := CalculateSqrtPriceX64(0, 1)
	require.ErrorIs(t, err, launchpad.ErrInvalidParams)
	_, err = CalculateSqrtPriceX64(1, 0)
	require.ErrorIs(t, err, launchpad.ErrInvalidParams)
}

func TestCetusDefaults(t *testing.T) {
	c := NewCetus(0)
	assert.Equal(t, launchpad.DexCetus, c.Kind())
	assert.Equal(t, "cetus", c.Name())
	assert.Equal(t, uint64(DefaultCetusMinimumLiquidity), c.MinimumLiquidity())
	assert.Equal(t, uint64(5_000), NewCetus(5_000).MinimumLiquidity())
}
