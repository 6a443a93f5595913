package dex

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"
	"lukechampine.com/uint128"

	"curvelaunch/internal/launchpad"
	"curvelaunch/internal/model"
)

// DefaultCetusMinimumLiquidity is the extraction floor for Cetus pools.
const DefaultCetusMinimumLiquidity = 1_000

// Cetus CLMM sqrt price bounds (tick -443636 and 443636).
var (
	CetusMinSqrtPriceX64 = uint256.NewInt(4295048016)
	CetusMaxSqrtPriceX64 = uint256.MustFromDecimal("79226673515401279992447579055")
)

// Cetus graduates pools into a Cetus CLMM pool. Coin A is the launched token
// and coin B the reserve asset.
type Cetus struct {
	base
}

var _ Adapter = (*Cetus)(nil)

// NewCetus builds the adapter. A zero minimum uses the default.
func NewCetus(minimumLiquidity uint64) *Cetus {
	if minimumLiquidity == 0 {
		minimumLiquidity = DefaultCetusMinimumLiquidity
	}
	return &Cetus{base: base{
		kind:     launchpad.DexCetus,
		minimum:  minimumLiquidity,
		encoding: model.PriceEncodingSqrtX64,
		minPrice: CetusMinSqrtPriceX64,
		maxPrice: CetusMaxSqrtPriceX64,
	}}
}

// CalculateSqrtPriceX64 returns sqrt(amountB/amountA) as a 64.64 fixed-point
// number. Equal amounts give exactly 1<<64.
func CalculateSqrtPriceX64(amountA, amountB uint64) (uint128.Uint128, error) {
	if amountA == 0 || amountB == 0 {
		return uint128.Zero, errorsmod.Wrapf(launchpad.ErrInvalidParams, "amounts %d/%d must be positive", amountA, amountB)
	}
	ratio := new(uint256.Int).Lsh(uint256.NewInt(amountB), 128)
	ratio.Div(ratio, uint256.NewInt(amountA))
	root := new(uint256.Int).Sqrt(ratio)
	// root <= sqrt(2^192) = 2^96, so it fits 128 bits.
	return uint128.New(root[0], root[1]), nil
}

// PoolRequest builds the create_pool_v2 request for the pending graduation.
func (c *Cetus) PoolRequest(pending *launchpad.PendingGraduation, cfg *launchpad.Config) (PoolRequest, error) {
	reserve, token, err := confirmedAmounts(pending)
	if err != nil {
		return PoolRequest{}, err
	}
	if pending.Kind() != c.kind {
		return PoolRequest{}, errorsmod.Wrapf(launchpad.ErrWrongDexType, "pending for %s", pending.Kind())
	}
	slot := cfg.Dex(c.kind)
	if !slot.Configured() {
		return PoolRequest{}, errorsmod.Wrapf(launchpad.ErrDexNotConfigured, "%s", c.kind)
	}

	price, err := CalculateSqrtPriceX64(token, reserve)
	if err != nil {
		return PoolRequest{}, err
	}
	value := uint256.MustFromBig(price.Big())
	if value.Lt(c.minPrice) || value.Gt(c.maxPrice) {
		return PoolRequest{}, errorsmod.Wrapf(launchpad.ErrPriceOutOfRange, "sqrt price %s", price.String())
	}

	pool := pending.Pool()
	return PoolRequest{
		PoolID:       pending.PoolID(),
		Kind:         c.kind,
		Package:      slot.Package,
		ReserveAsset: pool.ReserveAsset(),
		Base:         Leg{Asset: pool.TokenAsset(), Address: pool.TokenAsset(), Amount: token},
		Quote:        Leg{Asset: pool.ReserveAsset(), Address: pool.ReserveAsset(), Amount: reserve},
		Price: model.PriceSnapshot{
			Encoding:   model.PriceEncodingSqrtX64,
			Value:      price.String(),
			BaseAsset:  pool.TokenAsset(),
			QuoteAsset: pool.ReserveAsset(),
		},
		Target: slot.Package + "::pool_creator::create_pool_v2",
	}, nil
}
