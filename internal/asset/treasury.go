package asset

import (
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"
)

// Treasury is the mint capability for one asset. Only the holder can create
// new value for it.
type Treasury struct {
	mu     sync.Mutex
	asset  string
	supply uint64
}

func NewTreasury(asset string) *Treasury {
	return &Treasury{asset: asset}
}

// Asset returns the asset the treasury mints.
func (t *Treasury) Asset() string {
	return t.asset
}

// TotalSupply returns the amount minted and not yet burned.
func (t *Treasury) TotalSupply() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.supply
}

// Mint creates amount of new value.
func (t *Treasury) Mint(amount uint64) (*Balance, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(t.supply), uint256.NewInt(amount))
	if overflow || !sum.IsUint64() {
		return nil, errorsmod.Wrapf(ErrOverflow, "mint %d %s", amount, t.asset)
	}
	t.supply = sum.Uint64()
	return &Balance{asset: t.asset, value: amount}, nil
}

// Burn destroys the value held by b.
func (t *Treasury) Burn(b *Balance) error {
	if b == nil {
		return nil
	}
	if b.asset != t.asset {
		return errorsmod.Wrapf(ErrAssetMismatch, "burn %s with %s treasury", b.asset, t.asset)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if b.value > t.supply {
		return errorsmod.Wrapf(ErrInsufficientBalance, "burn %d of supply %d", b.value, t.supply)
	}
	t.supply -= b.value
	b.value = 0
	return nil
}
