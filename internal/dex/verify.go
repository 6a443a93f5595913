package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"curvelaunch/internal/chain"
	"curvelaunch/internal/launchpad"
	"curvelaunch/internal/model"
)

// ChainReader is the subset of the chain client the verifier uses.
type ChainReader interface {
	chain.LogFilterer
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Report is the on-chain view of a graduated V3 pool next to its receipt.
type Report struct {
	PoolID         string `json:"pool_id"`
	ExternalPoolID string `json:"external_pool_id"`
	Token0         string `json:"token0"`
	Token1         string `json:"token1"`
	Fee            uint32 `json:"fee"`
	SqrtPriceX96   string `json:"sqrt_price_x96"`
	ReserveBalance string `json:"reserve_balance"`
	TokenBalance   string `json:"token_balance"`
	PairMatches    bool   `json:"pair_matches"`
	PriceMatches   bool   `json:"price_matches"`
	Funded         bool   `json:"funded"`
}

// OK reports whether every check passed.
func (r Report) OK() bool {
	return r.PairMatches && r.PriceMatches && r.Funded
}

// Verifier checks UniswapV3 graduation receipts against chain state.
type Verifier struct {
	chain     ChainReader
	tokens    map[string]common.Address
	logger    *zap.Logger
	batchSize uint64
}

// DefaultLogBatchSize is the block span of one eth_getLogs request.
const DefaultLogBatchSize = 2_000

func NewVerifier(reader ChainReader, tokens map[string]common.Address, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{chain: reader, tokens: tokens, logger: logger, batchSize: DefaultLogBatchSize}
}

// SetBatchSize changes the block span of each log query.
func (v *Verifier) SetBatchSize(n uint64) {
	if n > 0 {
		v.batchSize = n
	}
}

// Verify reads token0/token1/fee, slot0 and both pool balances and compares
// them with the receipt. The price only matches while nobody has traded.
func (v *Verifier) Verify(ctx context.Context, receipt model.GraduationReceipt) (Report, error) {
	report := Report{PoolID: receipt.PoolID, ExternalPoolID: receipt.ExternalPoolID}
	if v.chain == nil {
		return report, fmt.Errorf("chain client is nil")
	}
	if receipt.DexKind != launchpad.DexUniswapV3.String() {
		return report, fmt.Errorf("receipt %s targets %s, only %s can be verified", receipt.PoolID, receipt.DexKind, launchpad.DexUniswapV3)
	}
	if !common.IsHexAddress(receipt.ExternalPoolID) {
		return report, fmt.Errorf("invalid pool address: %s", receipt.ExternalPoolID)
	}
	pool := common.HexToAddress(receipt.ExternalPoolID)

	poolABI, err := V3PoolABI()
	if err != nil {
		return report, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := v.call(ctx, pool, poolABI, "token0")
	if err != nil {
		return report, err
	}
	token0, err := asAddress(values[0])
	if err != nil {
		return report, fmt.Errorf("token0: %w", err)
	}
	values, err = v.call(ctx, pool, poolABI, "token1")
	if err != nil {
		return report, err
	}
	token1, err := asAddress(values[0])
	if err != nil {
		return report, fmt.Errorf("token1: %w", err)
	}
	report.Token0, report.Token1 = token0.Hex(), token1.Hex()

	if values, err := v.call(ctx, pool, poolABI, "fee"); err == nil {
		if fee, err := asBigInt(values[0]); err == nil {
			report.Fee = uint32(fee.Uint64())
		}
	} else {
		v.logger.Debug("fee call failed", zap.String("pool", pool.Hex()), zap.Error(err))
	}

	values, err = v.call(ctx, pool, poolABI, "slot0")
	if err != nil {
		return report, err
	}
	sqrt, err := asBigInt(values[0])
	if err != nil {
		return report, fmt.Errorf("slot0: %w", err)
	}
	report.SqrtPriceX96 = sqrt.String()
	report.PriceMatches = receipt.Price.Encoding == model.PriceEncodingSqrtX96 && receipt.Price.Value == report.SqrtPriceX96

	reserveAddr, okReserve := lookupToken(v.tokens, receipt.ReserveAsset)
	tokenAddr, okToken := lookupToken(v.tokens, receipt.TokenAsset)
	if !okReserve || !okToken {
		return report, fmt.Errorf("no address for %s or %s", receipt.ReserveAsset, receipt.TokenAsset)
	}
	want0, want1 := SortTokens(reserveAddr, tokenAddr)
	report.PairMatches = want0 == token0 && want1 == token1

	reserveBal, err := v.balanceOf(ctx, reserveAddr, pool)
	if err != nil {
		return report, err
	}
	tokenBal, err := v.balanceOf(ctx, tokenAddr, pool)
	if err != nil {
		return report, err
	}
	report.ReserveBalance, report.TokenBalance = reserveBal.String(), tokenBal.String()
	report.Funded = reserveBal.Cmp(new(big.Int).SetUint64(receipt.FinalReserve)) >= 0 &&
		tokenBal.Cmp(new(big.Int).SetUint64(receipt.FinalToken)) >= 0

	v.logger.Info("verified graduation",
		zap.String("pool_id", receipt.PoolID),
		zap.String("external_pool", pool.Hex()),
		zap.Bool("pair", report.PairMatches),
		zap.Bool("price", report.PriceMatches),
		zap.Bool("funded", report.Funded),
	)
	return report, nil
}

// Initialization is a decoded Initialize event of a V3 pool.
type Initialization struct {
	BlockNumber  uint64 `json:"block_number"`
	TxHash       string `json:"tx_hash"`
	SqrtPriceX96 string `json:"sqrt_price_x96"`
	Tick         int32  `json:"tick"`
}

// FindInitialization scans [fromBlock, toBlock] for the pool's Initialize
// event and stops at the first one.
func (v *Verifier) FindInitialization(ctx context.Context, pool common.Address, fromBlock, toBlock uint64) (Initialization, bool, error) {
	if v.chain == nil {
		return Initialization{}, false, fmt.Errorf("chain client is nil")
	}
	poolABI, err := V3PoolABI()
	if err != nil {
		return Initialization{}, false, fmt.Errorf("parse pool abi: %w", err)
	}
	event := poolABI.Events["Initialize"]

	scan := chain.LogScan{
		Addresses: []common.Address{pool},
		Topics:    [][]common.Hash{{event.ID}},
		From:      fromBlock,
		To:        toBlock,
		Span:      v.batchSize,
	}

	var (
		found          bool
		initialization Initialization
	)
	err = chain.Scan(ctx, v.chain, scan, v.logger, func(log types.Log) (bool, error) {
		if len(log.Topics) == 0 || log.Topics[0] != event.ID {
			return true, nil
		}
		got, ok, err := decodeInitialization(event, log)
		if err != nil {
			return false, err
		}
		initialization, found = got, ok
		return false, nil
	})
	if err != nil {
		return Initialization{}, false, fmt.Errorf("find initialize: %w", err)
	}
	return initialization, found, nil
}

func decodeInitialization(event abi.Event, log types.Log) (Initialization, bool, error) {
	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return Initialization{}, false, fmt.Errorf("unpack initialize: %w", err)
	}
	if len(values) < 2 {
		return Initialization{}, false, fmt.Errorf("initialize: %d values", len(values))
	}
	sqrt, err := asBigInt(values[0])
	if err != nil {
		return Initialization{}, false, fmt.Errorf("sqrtPriceX96: %w", err)
	}
	tickInt, err := asBigInt(values[1])
	if err != nil {
		return Initialization{}, false, fmt.Errorf("tick: %w", err)
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		return Initialization{}, false, err
	}
	return Initialization{
		BlockNumber:  log.BlockNumber,
		TxHash:       log.TxHash.Hex(),
		SqrtPriceX96: sqrt.String(),
		Tick:         tick,
	}, true, nil
}

func (v *Verifier) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := v.chain.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return values, nil
}

func (v *Verifier) balanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	parsed, err := erc20BalanceOfABI()
	if err != nil {
		return nil, err
	}
	values, err := v.call(ctx, token, parsed, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func int24FromBig(value *big.Int) (int32, error) {
	min := big.NewInt(-1 << 23)
	max := big.NewInt((1 << 23) - 1)
	if value.Cmp(min) < 0 || value.Cmp(max) > 0 {
		return 0, fmt.Errorf("int24 overflow: %s", value.String())
	}
	return int32(value.Int64()), nil
}
