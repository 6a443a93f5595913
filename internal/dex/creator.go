package dex

import (
	"context"
	"strconv"

	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"curvelaunch/internal/launchpad"
)

// PoolCreator performs the out-of-protocol pool creation and reports what it
// deposited.
type PoolCreator interface {
	CreatePool(ctx context.Context, req PoolRequest) (launchpad.Completion, error)
}

// SimulatedCreator stands in for the external actor in offline runs. The
// external pool id is the predicted address when the request has one and a
// keccak256 digest of the request otherwise, so repeated runs agree.
type SimulatedCreator struct {
	logger *zap.Logger
}

func NewSimulatedCreator(logger *zap.Logger) *SimulatedCreator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimulatedCreator{logger: logger}
}

func (s *SimulatedCreator) CreatePool(ctx context.Context, req PoolRequest) (launchpad.Completion, error) {
	if err := ctx.Err(); err != nil {
		return launchpad.Completion{}, err
	}

	id := req.PredictedPool
	if id == "" {
		id = crypto.Keccak256Hash(
			[]byte(req.Package),
			[]byte(req.PoolID),
			[]byte(req.Base.Asset),
			[]byte(req.Quote.Asset),
			[]byte(strconv.FormatUint(req.Base.Amount, 10)),
			[]byte(strconv.FormatUint(req.Quote.Amount, 10)),
		).Hex()
	}

	s.logger.Info("simulated pool creation",
		zap.String("dex", req.Kind.String()),
		zap.String("pool", req.PoolID),
		zap.String("external_pool", id),
		zap.String("target", req.Target),
		zap.Int("calldata_bytes", len(req.Calldata)),
	)
	return req.Completion(id), nil
}
