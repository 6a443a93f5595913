package dex

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"curvelaunch/internal/launchpad"
	"curvelaunch/internal/model"
)

const (
	DefaultUniswapV3MinimumLiquidity = 1_000
	DefaultUniswapV3FeeTier          = 10_000
)

// V3 sqrt ratio bounds (TickMath.MIN_SQRT_RATIO and MAX_SQRT_RATIO).
var (
	MinSqrtRatio = uint256.NewInt(4295128739)
	MaxSqrtRatio = uint256.MustFromDecimal("1461446703485210103287273052203988822378723970342")
)

// UniswapV3PoolInitCodeHash is keccak256 of the canonical UniswapV3Pool
// creation code, used for CREATE2 address prediction.
var UniswapV3PoolInitCodeHash = common.HexToHash("0xe34f199b19b2b4f47f68442619d555527d244f78a3297ea89325f843f87b8b54")

// UniswapV3Options configures the UniswapV3 adapter.
type UniswapV3Options struct {
	Factory          common.Address
	FeeTier          uint32
	MinimumLiquidity uint64
	// Tokens maps launchpad asset identifiers to ERC-20 addresses.
	Tokens map[string]common.Address
}

// UniswapV3 graduates pools into a Uniswap V3 style pool through the
// position manager configured as the dex package.
type UniswapV3 struct {
	base
	factory common.Address
	feeTier uint32
	tokens  map[string]common.Address
}

var _ Adapter = (*UniswapV3)(nil)

func NewUniswapV3(opts UniswapV3Options) *UniswapV3 {
	if opts.MinimumLiquidity == 0 {
		opts.MinimumLiquidity = DefaultUniswapV3MinimumLiquidity
	}
	if opts.FeeTier == 0 {
		opts.FeeTier = DefaultUniswapV3FeeTier
	}
	tokens := make(map[string]common.Address, len(opts.Tokens))
	for k, v := range opts.Tokens {
		tokens[k] = v
	}
	return &UniswapV3{
		base: base{
			kind:     launchpad.DexUniswapV3,
			minimum:  opts.MinimumLiquidity,
			encoding: model.PriceEncodingSqrtX96,
			minPrice: MinSqrtRatio,
			maxPrice: MaxSqrtRatio,
		},
		factory: opts.Factory,
		feeTier: opts.FeeTier,
		tokens:  tokens,
	}
}

// CalculateSqrtPriceX96 returns sqrt(amount1/amount0) as a Q64.96 number.
func CalculateSqrtPriceX96(amount0, amount1 uint64) (*uint256.Int, error) {
	if amount0 == 0 || amount1 == 0 {
		return nil, errorsmod.Wrapf(launchpad.ErrInvalidParams, "amounts %d/%d must be positive", amount0, amount1)
	}
	ratio := new(uint256.Int).Lsh(uint256.NewInt(amount1), 192)
	ratio.Div(ratio, uint256.NewInt(amount0))
	return new(uint256.Int).Sqrt(ratio), nil
}

// SortTokens orders two addresses the way the V3 factory does.
func SortTokens(a, b common.Address) (common.Address, common.Address) {
	if bytes.Compare(a.Bytes(), b.Bytes()) < 0 {
		return a, b
	}
	return b, a
}

// PredictPoolAddress returns the CREATE2 address of the pool for the pair.
func PredictPoolAddress(factory, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	token0, token1 := SortTokens(tokenA, tokenB)
	addressTy, err := abi.NewType("address", "", nil)
	if err != nil {
		return common.Address{}, err
	}
	uint24Ty, err := abi.NewType("uint24", "", nil)
	if err != nil {
		return common.Address{}, err
	}
	encoded, err := abi.Arguments{{Type: addressTy}, {Type: addressTy}, {Type: uint24Ty}}.Pack(token0, token1, new(big.Int).SetUint64(uint64(fee)))
	if err != nil {
		return common.Address{}, fmt.Errorf("encode pool key: %w", err)
	}
	salt := crypto.Keccak256Hash(encoded)
	return crypto.CreateAddress2(factory, salt, UniswapV3PoolInitCodeHash.Bytes()), nil
}

// PoolRequest builds createAndInitializePoolIfNecessary calldata for the
// pending graduation.
func (u *UniswapV3) PoolRequest(pending *launchpad.PendingGraduation, cfg *launchpad.Config) (PoolRequest, error) {
	reserve, token, err := confirmedAmounts(pending)
	if err != nil {
		return PoolRequest{}, err
	}
	if pending.Kind() != u.kind {
		return PoolRequest{}, errorsmod.Wrapf(launchpad.ErrWrongDexType, "pending for %s", pending.Kind())
	}
	slot := cfg.Dex(u.kind)
	if !slot.Configured() {
		return PoolRequest{}, errorsmod.Wrapf(launchpad.ErrDexNotConfigured, "%s", u.kind)
	}
	if !common.IsHexAddress(slot.Package) {
		return PoolRequest{}, errorsmod.Wrapf(launchpad.ErrDexNotConfigured, "position manager %q is not an address", slot.Package)
	}

	pool := pending.Pool()
	reserveAddr, ok := lookupToken(u.tokens, pool.ReserveAsset())
	if !ok {
		return PoolRequest{}, errorsmod.Wrapf(launchpad.ErrInvalidParams, "no address for %s", pool.ReserveAsset())
	}
	tokenAddr, ok := lookupToken(u.tokens, pool.TokenAsset())
	if !ok {
		return PoolRequest{}, errorsmod.Wrapf(launchpad.ErrInvalidParams, "no address for %s", pool.TokenAsset())
	}
	if reserveAddr == tokenAddr {
		return PoolRequest{}, errorsmod.Wrapf(launchpad.ErrAssetMismatch, "both assets map to %s", reserveAddr.Hex())
	}

	leg0 := Leg{Asset: pool.TokenAsset(), Address: tokenAddr.Hex(), Amount: token}
	leg1 := Leg{Asset: pool.ReserveAsset(), Address: reserveAddr.Hex(), Amount: reserve}
	if token0, _ := SortTokens(tokenAddr, reserveAddr); token0 == reserveAddr {
		leg0, leg1 = leg1, leg0
	}

	sqrtPrice, err := CalculateSqrtPriceX96(leg0.Amount, leg1.Amount)
	if err != nil {
		return PoolRequest{}, err
	}
	if sqrtPrice.Lt(MinSqrtRatio) || sqrtPrice.Gt(MaxSqrtRatio) {
		return PoolRequest{}, errorsmod.Wrapf(launchpad.ErrPriceOutOfRange, "sqrt price %s", sqrtPrice.Dec())
	}

	manager, err := PositionManagerABI()
	if err != nil {
		return PoolRequest{}, fmt.Errorf("parse position manager abi: %w", err)
	}
	calldata, err := manager.Pack(
		"createAndInitializePoolIfNecessary",
		common.HexToAddress(leg0.Address),
		common.HexToAddress(leg1.Address),
		new(big.Int).SetUint64(uint64(u.feeTier)),
		sqrtPrice.ToBig(),
	)
	if err != nil {
		return PoolRequest{}, fmt.Errorf("pack createAndInitializePoolIfNecessary: %w", err)
	}

	predicted, err := PredictPoolAddress(u.factory, tokenAddr, reserveAddr, u.feeTier)
	if err != nil {
		return PoolRequest{}, err
	}

	return PoolRequest{
		PoolID:       pending.PoolID(),
		Kind:         u.kind,
		Package:      slot.Package,
		ReserveAsset: pool.ReserveAsset(),
		Base:         leg0,
		Quote:        leg1,
		Price: model.PriceSnapshot{
			Encoding:   model.PriceEncodingSqrtX96,
			Value:      sqrtPrice.Dec(),
			BaseAsset:  leg0.Asset,
			QuoteAsset: leg1.Asset,
		},
		Target:        common.HexToAddress(slot.Package).Hex(),
		Calldata:      calldata,
		PredictedPool: predicted.Hex(),
	}, nil
}

// lookupToken prefers an exact match and falls back to a case-insensitive one,
// since config file keys arrive lowercased.
func lookupToken(tokens map[string]common.Address, assetID string) (common.Address, bool) {
	if addr, ok := tokens[assetID]; ok {
		return addr, true
	}
	for k, addr := range tokens {
		if strings.EqualFold(k, assetID) {
			return addr, true
		}
	}
	return common.Address{}, false
}
