package asset

import (
	"sync"

	errorsmod "cosmossdk.io/errors"
)

// Vault collects balances of any asset, keyed by asset identifier. It backs
// the fee and staking sinks of the CLI and the simulated trader's wallet.
type Vault struct {
	mu       sync.Mutex
	balances map[string]*Balance
}

func NewVault() *Vault {
	return &Vault{balances: make(map[string]*Balance)}
}

// Deposit joins b into the vault.
func (v *Vault) Deposit(b *Balance) error {
	if b == nil {
		return errorsmod.Wrap(ErrInsufficientBalance, "nil deposit")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	held, ok := v.balances[b.asset]
	if !ok {
		held = Zero(b.asset)
		v.balances[b.asset] = held
	}
	return held.Join(b)
}

// Balance returns the amount held for an asset.
func (v *Vault) Balance(asset string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[asset].Value()
}

// Withdraw splits amount of asset out of the vault.
func (v *Vault) Withdraw(asset string, amount uint64) (*Balance, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	held, ok := v.balances[asset]
	if !ok {
		return nil, errorsmod.Wrapf(ErrInsufficientBalance, "no %s held", asset)
	}
	return held.Split(amount)
}
