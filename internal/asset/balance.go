package asset

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"
)

// Codespace is the error namespace for balance handle failures.
const Codespace = "asset"

var (
	ErrInsufficientBalance = errorsmod.Register(Codespace, 1, "insufficient balance")
	ErrAssetMismatch       = errorsmod.Register(Codespace, 2, "asset mismatch")
	ErrOverflow            = errorsmod.Register(Codespace, 3, "balance overflow")
	ErrNonZeroDestroy      = errorsmod.Register(Codespace, 4, "destroying non-zero balance")
)

// Balance is a fungible value handle for a single asset. Value moves between
// handles only through Split, Join and TakeAll, so the total is conserved.
type Balance struct {
	asset string
	value uint64
}

// Zero returns an empty handle for the asset.
func Zero(asset string) *Balance {
	return &Balance{asset: asset}
}

// Asset returns the asset identifier the handle holds.
func (b *Balance) Asset() string {
	if b == nil {
		return ""
	}
	return b.asset
}

// Value returns the amount held.
func (b *Balance) Value() uint64 {
	if b == nil {
		return 0
	}
	return b.value
}

// Split moves amount out of b into a new handle.
func (b *Balance) Split(amount uint64) (*Balance, error) {
	if b == nil {
		return nil, errorsmod.Wrap(ErrInsufficientBalance, "nil balance")
	}
	if amount > b.value {
		return nil, errorsmod.Wrapf(ErrInsufficientBalance, "split %d from %d %s", amount, b.value, b.asset)
	}
	b.value -= amount
	return &Balance{asset: b.asset, value: amount}, nil
}

// TakeAll moves the whole value into a new handle and leaves b empty.
func (b *Balance) TakeAll() *Balance {
	out := &Balance{asset: b.asset, value: b.value}
	b.value = 0
	return out
}

// Join moves the whole value of other into b. other is left empty.
func (b *Balance) Join(other *Balance) error {
	if other == nil {
		return nil
	}
	if b.asset != other.asset {
		return errorsmod.Wrapf(ErrAssetMismatch, "join %s into %s", other.asset, b.asset)
	}
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(b.value), uint256.NewInt(other.value))
	if overflow || !sum.IsUint64() {
		return errorsmod.Wrapf(ErrOverflow, "%d + %d %s", b.value, other.value, b.asset)
	}
	b.value = sum.Uint64()
	other.value = 0
	return nil
}

// DestroyZero retires an empty handle.
func (b *Balance) DestroyZero() error {
	if b == nil {
		return nil
	}
	if b.value != 0 {
		return errorsmod.Wrapf(ErrNonZeroDestroy, "%d %s", b.value, b.asset)
	}
	return nil
}
