package launchpad

import (
	errorsmod "cosmossdk.io/errors"
)

// Codespace is the error namespace of the launchpad protocol. Codes are part of
// the external contract and must keep their meaning.
const Codespace = "launchpad"

var (
	ErrUnauthorized           = errorsmod.Register(Codespace, 1, "admin capability required")
	ErrWrongState             = errorsmod.Register(Codespace, 2, "pool in wrong state")
	ErrNotEligible            = errorsmod.Register(Codespace, 3, "pool not eligible for graduation")
	ErrWrongDexType           = errorsmod.Register(Codespace, 4, "pending graduation tagged for another dex")
	ErrDexNotConfigured       = errorsmod.Register(Codespace, 5, "dex not configured")
	ErrInsufficientLiquidity  = errorsmod.Register(Codespace, 6, "insufficient liquidity")
	ErrSlippage               = errorsmod.Register(Codespace, 7, "output below minimum")
	ErrSupplyExhausted        = errorsmod.Register(Codespace, 8, "token supply exhausted")
	ErrInvalidCreationFee     = errorsmod.Register(Codespace, 9, "invalid creation fee")
	ErrAlreadyExtracted       = errorsmod.Register(Codespace, 10, "graduation funds already extracted")
	ErrNotExtracted           = errorsmod.Register(Codespace, 11, "graduation funds not extracted")
	ErrStakingResolved        = errorsmod.Register(Codespace, 12, "staking allocation already resolved")
	ErrStakingUnresolved      = errorsmod.Register(Codespace, 13, "staking allocation not resolved")
	ErrAmountExceedsExtracted = errorsmod.Register(Codespace, 14, "amount exceeds extracted")
	ErrAlreadyGraduated       = errorsmod.Register(Codespace, 15, "pool already graduated")
	ErrPendingConsumed        = errorsmod.Register(Codespace, 16, "pending graduation already consumed")
	ErrPendingOutstanding     = errorsmod.Register(Codespace, 17, "pending graduation outstanding")
	ErrInvalidParams          = errorsmod.Register(Codespace, 18, "invalid parameters")
	ErrAssetMismatch          = errorsmod.Register(Codespace, 19, "asset mismatch")
	ErrPriceOutOfRange        = errorsmod.Register(Codespace, 20, "price out of range")
)

// Code returns the codespace and stable code of err. Errors that were not
// registered report errorsmod's internal codespace.
func Code(err error) (string, uint32) {
	codespace, code, _ := errorsmod.ABCIInfo(err, false)
	return codespace, code
}
