package curve

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"
)

// Codespace is the error namespace for pricing failures.
const Codespace = "curve"

var (
	ErrDivisionByZero      = errorsmod.Register(Codespace, 1, "division by zero reserve")
	ErrOverflow            = errorsmod.Register(Codespace, 2, "arithmetic overflow")
	ErrInvalidParams       = errorsmod.Register(Codespace, 3, "invalid curve parameters")
	ErrInsufficientReserve = errorsmod.Register(Codespace, 4, "insufficient real reserve")
)

const (
	// BpsDenominator is the basis point scale for fee rates.
	BpsDenominator = 10_000
	// PriceScale is the fixed-point scale of SpotPrice.
	PriceScale = 1_000_000_000
)

// Params are the immutable per-pool curve parameters.
type Params struct {
	VirtualReserve uint64 `json:"virtual_reserve"`
	VirtualSupply  uint64 `json:"virtual_supply"`
	FeeBps         uint16 `json:"fee_bps"`
}

// Validate checks the invariants every pricing call depends on.
func (p Params) Validate() error {
	if p.VirtualReserve == 0 {
		return errorsmod.Wrap(ErrDivisionByZero, "virtual reserve must be positive")
	}
	if p.FeeBps >= BpsDenominator {
		return errorsmod.Wrapf(ErrInvalidParams, "fee %d bps", p.FeeBps)
	}
	return nil
}

// Quote is the result of a pricing call. NetIn is AmountIn minus Fee for buys;
// for sells Fee is taken from the gross output and AmountOut is net.
type Quote struct {
	AmountIn  uint64
	Fee       uint64
	NetIn     uint64
	AmountOut uint64
}

// FeeOn returns amount*feeBps/10000, truncated.
func FeeOn(amount uint64, feeBps uint16) (uint64, error) {
	if feeBps >= BpsDenominator {
		return 0, errorsmod.Wrapf(ErrInvalidParams, "fee %d bps", feeBps)
	}
	fee, overflow := new(uint256.Int).MulDivOverflow(
		uint256.NewInt(amount),
		uint256.NewInt(uint64(feeBps)),
		uint256.NewInt(BpsDenominator),
	)
	if overflow || !fee.IsUint64() {
		return 0, errorsmod.Wrapf(ErrOverflow, "fee on %d", amount)
	}
	return fee.Uint64(), nil
}

// PriceForBuy prices amountIn of reserve asset against the curve. reserve is
// the real reserve balance and supply the real sellable token balance.
func PriceForBuy(reserve, supply uint64, p Params, amountIn uint64) (Quote, error) {
	if err := p.Validate(); err != nil {
		return Quote{}, err
	}
	if amountIn == 0 {
		return Quote{}, nil
	}

	fee, err := FeeOn(amountIn, p.FeeBps)
	if err != nil {
		return Quote{}, err
	}
	netIn := amountIn - fee

	reserveEff, supplyEff := effective(reserve, supply, p)
	k := new(uint256.Int).Mul(reserveEff, supplyEff)

	denom := new(uint256.Int).Add(reserveEff, uint256.NewInt(netIn))
	if denom.IsZero() {
		return Quote{}, errorsmod.Wrap(ErrDivisionByZero, "effective reserve")
	}
	after := new(uint256.Int).Div(k, denom)

	out, underflow := new(uint256.Int).SubOverflow(supplyEff, after)
	if underflow || !out.IsUint64() {
		return Quote{}, errorsmod.Wrapf(ErrOverflow, "buy output for %d", amountIn)
	}

	return Quote{
		AmountIn:  amountIn,
		Fee:       fee,
		NetIn:     netIn,
		AmountOut: out.Uint64(),
	}, nil
}

// PriceForSell prices tokensIn sold back to the curve. The new effective
// reserve is rounded up so the curve never pays out more than its invariant
// allows, and the fee is taken from the gross reserve output.
func PriceForSell(reserve, supply uint64, p Params, tokensIn uint64) (Quote, error) {
	if err := p.Validate(); err != nil {
		return Quote{}, err
	}
	if tokensIn == 0 {
		return Quote{}, nil
	}

	reserveEff, supplyEff := effective(reserve, supply, p)
	k := new(uint256.Int).Mul(reserveEff, supplyEff)

	denom := new(uint256.Int).Add(supplyEff, uint256.NewInt(tokensIn))
	if denom.IsZero() {
		return Quote{}, errorsmod.Wrap(ErrDivisionByZero, "effective supply")
	}
	after := ceilDiv(k, denom)

	gross, underflow := new(uint256.Int).SubOverflow(reserveEff, after)
	if underflow || !gross.IsUint64() {
		return Quote{}, errorsmod.Wrapf(ErrOverflow, "sell output for %d", tokensIn)
	}
	if gross.Uint64() > reserve {
		return Quote{}, errorsmod.Wrapf(ErrInsufficientReserve, "output %d exceeds reserve %d", gross.Uint64(), reserve)
	}

	fee, err := FeeOn(gross.Uint64(), p.FeeBps)
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		AmountIn:  tokensIn,
		Fee:       fee,
		NetIn:     tokensIn,
		AmountOut: gross.Uint64() - fee,
	}, nil
}

// SpotPrice returns R_eff/S_eff scaled by PriceScale.
func SpotPrice(reserve, supply uint64, p Params) (uint64, error) {
	reserveEff, supplyEff := effective(reserve, supply, p)
	if supplyEff.IsZero() {
		return 0, errorsmod.Wrap(ErrDivisionByZero, "effective supply")
	}
	price, overflow := new(uint256.Int).MulDivOverflow(reserveEff, uint256.NewInt(PriceScale), supplyEff)
	if overflow || !price.IsUint64() {
		return 0, errorsmod.Wrap(ErrOverflow, "spot price")
	}
	return price.Uint64(), nil
}

func effective(reserve, supply uint64, p Params) (*uint256.Int, *uint256.Int) {
	reserveEff := new(uint256.Int).Add(uint256.NewInt(reserve), uint256.NewInt(p.VirtualReserve))
	supplyEff := new(uint256.Int).Add(uint256.NewInt(supply), uint256.NewInt(p.VirtualSupply))
	return reserveEff, supplyEff
}

func ceilDiv(x, y *uint256.Int) *uint256.Int {
	q, r := new(uint256.Int), new(uint256.Int)
	q.DivMod(x, y, r)
	if !r.IsZero() {
		q.AddUint64(q, 1)
	}
	return q
}
