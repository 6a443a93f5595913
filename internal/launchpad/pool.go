package launchpad

import (
	"math"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"curvelaunch/internal/asset"
	"curvelaunch/internal/curve"
)

// State is the lifecycle stage of a bonding pool.
type State uint8

const (
	StateActive State = iota
	StateGraduating
	StateGraduated
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateGraduating:
		return "graduating"
	case StateGraduated:
		return "graduated"
	default:
		return "unknown"
	}
}

// TreasuryCap is the mint capability of a launched token. It is supplied by
// the surrounding ledger; the pool never creates one.
type TreasuryCap interface {
	Asset() string
	Mint(amount uint64) (*asset.Balance, error)
	Burn(b *asset.Balance) error
}

// FeeSink receives creation and trading fees.
type FeeSink interface {
	Deposit(b *asset.Balance) error
}

// Trade describes one executed buy or sell.
type Trade struct {
	Quote    curve.Quote
	Eligible bool
	At       time.Time
}

// Pool is a bonding-curve pool for one launched token.
type Pool struct {
	mu sync.Mutex

	id        string
	params    curve.Params
	reserve   *asset.Balance
	tokens    *asset.Balance
	volume    *uint256.Int
	state     State
	pending   bool
	createdAt time.Time
	updatedAt time.Time
}

// CreatePool launches a token. payment must equal the configured creation fee
// exactly and is handed to fees. The pool trades at cfg.FeeBps() for its whole
// life; params.FeeBps is ignored.
func CreatePool(
	cfg *Config,
	treasury TreasuryCap,
	fees FeeSink,
	params curve.Params,
	initialSupply uint64,
	payment *asset.Balance,
	now time.Time,
) (*Pool, error) {
	if treasury == nil || fees == nil {
		return nil, errorsmod.Wrap(ErrInvalidParams, "treasury and fee sink required")
	}
	params.FeeBps = cfg.FeeBps()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if initialSupply == 0 {
		return nil, errorsmod.Wrap(ErrInvalidParams, "initial supply must be positive")
	}
	reserveAsset := cfg.ReserveAsset()
	if treasury.Asset() == reserveAsset {
		return nil, errorsmod.Wrapf(ErrAssetMismatch, "token and reserve are both %s", reserveAsset)
	}
	if payment == nil {
		return nil, errorsmod.Wrap(ErrInvalidCreationFee, "no payment")
	}
	if payment.Asset() != reserveAsset {
		return nil, errorsmod.Wrapf(ErrAssetMismatch, "creation fee paid in %s, want %s", payment.Asset(), reserveAsset)
	}
	if fee := cfg.CreationFee(); payment.Value() != fee {
		return nil, errorsmod.Wrapf(ErrInvalidCreationFee, "paid %d, want %d", payment.Value(), fee)
	}

	minted, err := treasury.Mint(initialSupply)
	if err != nil {
		return nil, err
	}
	if err := fees.Deposit(payment); err != nil {
		if burnErr := treasury.Burn(minted); burnErr != nil {
			return nil, errorsmod.Wrapf(err, "burn after failed fee deposit: %v", burnErr)
		}
		return nil, err
	}

	return &Pool{
		id:        uuid.NewString(),
		params:    params,
		reserve:   asset.Zero(reserveAsset),
		tokens:    minted,
		volume:    new(uint256.Int),
		state:     StateActive,
		createdAt: now,
		updatedAt: now,
	}, nil
}

func (p *Pool) ID() string { return p.id }

func (p *Pool) Params() curve.Params { return p.params }

func (p *Pool) ReserveAsset() string { return p.reserve.Asset() }

func (p *Pool) TokenAsset() string { return p.tokens.Asset() }

func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ReserveBalance is the real reserve accumulated net of fees.
func (p *Pool) ReserveBalance() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reserve.Value()
}

// TokenBalance is the remaining sellable supply.
func (p *Pool) TokenBalance() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokens.Value()
}

// Volume is the cumulative gross reserve traded through the pool.
func (p *Pool) Volume() *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(uint256.Int).Set(p.volume)
}

func (p *Pool) UpdatedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.updatedAt
}

// IsGraduated reports whether the pool reached its terminal state.
func (p *Pool) IsGraduated() bool {
	return p.State() == StateGraduated
}

// IsEligible reports whether an Active pool holds at least the graduation
// threshold. Eligibility never changes the state by itself.
func (p *Pool) IsEligible(cfg *Config) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.eligibleLocked(cfg)
}

// HasPending reports whether a pending graduation is outstanding.
func (p *Pool) HasPending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

func (p *Pool) eligibleLocked(cfg *Config) bool {
	return p.state == StateActive && p.reserve.Value() >= cfg.GraduationThreshold()
}

// Buy spends payment on tokens. The whole payment is consumed: the fee goes to
// fees and the rest joins the reserve.
func (p *Pool) Buy(cfg *Config, fees FeeSink, payment *asset.Balance, minOut uint64, now time.Time) (*asset.Balance, Trade, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateActive {
		return nil, Trade{}, errorsmod.Wrapf(ErrWrongState, "buy on %s pool", p.state)
	}
	if payment == nil || payment.Asset() != p.reserve.Asset() {
		return nil, Trade{}, errorsmod.Wrapf(ErrAssetMismatch, "payment in %s, want %s", payment.Asset(), p.reserve.Asset())
	}

	quote, err := curve.PriceForBuy(p.reserve.Value(), p.tokens.Value(), p.params, payment.Value())
	if err != nil {
		return nil, Trade{}, err
	}
	if quote.AmountOut < minOut {
		return nil, Trade{}, errorsmod.Wrapf(ErrSlippage, "out %d < min %d", quote.AmountOut, minOut)
	}
	if quote.AmountOut > p.tokens.Value() {
		return nil, Trade{}, errorsmod.Wrapf(ErrSupplyExhausted, "out %d > supply %d", quote.AmountOut, p.tokens.Value())
	}
	if p.reserve.Value() > math.MaxUint64-quote.NetIn {
		return nil, Trade{}, errorsmod.Wrap(curve.ErrOverflow, "reserve balance")
	}

	feeBal, err := payment.Split(quote.Fee)
	if err != nil {
		return nil, Trade{}, err
	}
	if err := fees.Deposit(feeBal); err != nil {
		_ = payment.Join(feeBal)
		return nil, Trade{}, err
	}
	out, err := p.tokens.Split(quote.AmountOut)
	if err != nil {
		return nil, Trade{}, err
	}
	if err := p.reserve.Join(payment); err != nil {
		return nil, Trade{}, err
	}
	p.volume.AddUint64(p.volume, quote.AmountIn)
	p.updatedAt = now

	return out, Trade{Quote: quote, Eligible: p.eligibleLocked(cfg), At: now}, nil
}

// Sell returns tokensIn to the pool for reserve. The fee is taken from the
// gross reserve output.
func (p *Pool) Sell(cfg *Config, fees FeeSink, tokensIn *asset.Balance, minOut uint64, now time.Time) (*asset.Balance, Trade, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateActive {
		return nil, Trade{}, errorsmod.Wrapf(ErrWrongState, "sell on %s pool", p.state)
	}
	if tokensIn == nil || tokensIn.Asset() != p.tokens.Asset() {
		return nil, Trade{}, errorsmod.Wrapf(ErrAssetMismatch, "sold %s, want %s", tokensIn.Asset(), p.tokens.Asset())
	}

	quote, err := curve.PriceForSell(p.reserve.Value(), p.tokens.Value(), p.params, tokensIn.Value())
	if err != nil {
		return nil, Trade{}, err
	}
	if quote.AmountOut < minOut {
		return nil, Trade{}, errorsmod.Wrapf(ErrSlippage, "out %d < min %d", quote.AmountOut, minOut)
	}
	if p.tokens.Value() > math.MaxUint64-tokensIn.Value() {
		return nil, Trade{}, errorsmod.Wrap(curve.ErrOverflow, "token balance")
	}

	gross, err := p.reserve.Split(quote.AmountOut + quote.Fee)
	if err != nil {
		return nil, Trade{}, err
	}
	feeBal, err := gross.Split(quote.Fee)
	if err != nil {
		_ = p.reserve.Join(gross)
		return nil, Trade{}, err
	}
	if err := fees.Deposit(feeBal); err != nil {
		_ = gross.Join(feeBal)
		_ = p.reserve.Join(gross)
		return nil, Trade{}, err
	}
	if err := p.tokens.Join(tokensIn); err != nil {
		return nil, Trade{}, err
	}
	p.volume.AddUint64(p.volume, quote.AmountOut+quote.Fee)
	p.updatedAt = now

	return gross, Trade{Quote: quote, Eligible: p.eligibleLocked(cfg), At: now}, nil
}
