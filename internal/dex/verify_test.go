package dex

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"curvelaunch/internal/model"
)

type fakeChain struct {
	t        *testing.T
	pool     common.Address
	token0   common.Address
	token1   common.Address
	sqrt     *big.Int
	balances map[common.Address]*big.Int
	logs     []types.Log

	logQueries int
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	poolABI, err := V3PoolABI()
	require.NoError(f.t, err)
	balanceABI, err := erc20BalanceOfABI()
	require.NoError(f.t, err)

	selector := msg.Data[:4]
	if *msg.To == f.pool {
		for name, method := range poolABI.Methods {
			if !bytes.Equal(method.ID, selector) {
				continue
			}
			switch name {
			case "token0":
				return method.Outputs.Pack(f.token0)
			case "token1":
				return method.Outputs.Pack(f.token1)
			case "fee":
				return method.Outputs.Pack(big.NewInt(10_000))
			case "slot0":
				return method.Outputs.Pack(f.sqrt, big.NewInt(-6_931), uint16(0), uint16(1), uint16(1), uint8(0), true)
			}
		}
		return nil, fmt.Errorf("unexpected pool call %x", selector)
	}

	method := balanceABI.Methods["balanceOf"]
	if !bytes.Equal(method.ID, selector) {
		return nil, fmt.Errorf("unexpected token call %x", selector)
	}
	bal, ok := f.balances[*msg.To]
	if !ok {
		return nil, fmt.Errorf("unknown token %s", msg.To.Hex())
	}
	return method.Outputs.Pack(bal)
}

func (f *fakeChain) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.logQueries++
	from, to := q.FromBlock.Uint64(), q.ToBlock.Uint64()
	var out []types.Log
	for _, l := range f.logs {
		if l.BlockNumber >= from && l.BlockNumber <= to {
			out = append(out, l)
		}
	}
	return out, nil
}

func verifyFixture(t *testing.T) (*fakeChain, model.GraduationReceipt) {
	pool := common.HexToAddress("0x00000000000000000000000000000000000000f1")
	sqrt, err := CalculateSqrtPriceX96(215_982, 108_900)
	require.NoError(t, err)

	chain := &fakeChain{
		t:      t,
		pool:   pool,
		token0: tokenAddr,
		token1: reserveAddr,
		sqrt:   sqrt.ToBig(),
		balances: map[common.Address]*big.Int{
			tokenAddr:   big.NewInt(215_982),
			reserveAddr: big.NewInt(108_900),
		},
	}
	receipt := model.GraduationReceipt{
		PoolID:         "pool-1",
		DexKind:        "uniswap_v3",
		ExternalPoolID: pool.Hex(),
		ReserveAsset:   "WETH",
		TokenAsset:     "MEME",
		FinalReserve:   108_900,
		FinalToken:     215_982,
		Price:          model.PriceSnapshot{Encoding: model.PriceEncodingSqrtX96, Value: sqrt.Dec()},
	}
	return chain, receipt
}

func TestVerifierMatchesReceipt(t *testing.T) {
	chain, receipt := verifyFixture(t)
	v := NewVerifier(chain, map[string]common.Address{"WETH": reserveAddr, "MEME": tokenAddr}, zap.NewNop())

	report, err := v.Verify(context.Background(), receipt)
	require.NoError(t, err)
	assert.True(t, report.OK(), "%+v", report)
	assert.Equal(t, uint32(10_000), report.Fee)
	assert.Equal(t, "108900", report.ReserveBalance)
}

func TestVerifierDetectsDrift(t *testing.T) {
	chain, receipt := verifyFixture(t)
	chain.sqrt = new(big.Int).Add(chain.sqrt, big.NewInt(1))
	chain.balances[reserveAddr] = big.NewInt(1)
	v := NewVerifier(chain, map[string]common.Address{"WETH": reserveAddr, "MEME": tokenAddr}, nil)

	report, err := v.Verify(context.Background(), receipt)
	require.NoError(t, err)
	assert.True(t, report.PairMatches)
	assert.False(t, report.PriceMatches)
	assert.False(t, report.Funded)
	assert.False(t, report.OK())
}

func TestVerifierRejectsOtherDex(t *testing.T) {
	chain, receipt := verifyFixture(t)
	receipt.DexKind = "cetus"
	_, err := NewVerifier(chain, nil, nil).Verify(context.Background(), receipt)
	require.Error(t, err)
}

func TestFindInitialization(t *testing.T) {
	chain, _ := verifyFixture(t)
	poolABI, err := V3PoolABI()
	require.NoError(t, err)
	event := poolABI.Events["Initialize"]
	data, err := event.Inputs.NonIndexed().Pack(chain.sqrt, big.NewInt(-6_931))
	require.NoError(t, err)
	chain.logs = []types.Log{{
		Address:     chain.pool,
		Topics:      []common.Hash{event.ID},
		Data:        data,
		BlockNumber: 120,
		TxHash:      common.HexToHash("0x01"),
	}}

	v := NewVerifier(chain, nil, nil)
	got, found, err := v.FindInitialization(context.Background(), chain.pool, 100, 200)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(120), got.BlockNumber)
	assert.Equal(t, chain.sqrt.String(), got.SqrtPriceX96)
	assert.Equal(t, int32(-6_931), got.Tick)

	assert.Equal(t, 1, chain.logQueries)

	chain.logQueries = 0
	v.SetBatchSize(7)
	got, found, err = v.FindInitialization(context.Background(), chain.pool, 100, 200)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(120), got.BlockNumber)
	assert.Equal(t, 3, chain.logQueries)

	_, found, err = v.FindInitialization(context.Background(), chain.pool, 0, 99)
	require.NoError(t, err)
	assert.False(t, found)

	_, _, err = v.FindInitialization(context.Background(), chain.pool, 10, 9)
	require.Error(t, err)
}
