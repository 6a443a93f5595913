package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// LogFilterer runs a single eth_getLogs query. *Client satisfies it.
type LogFilterer interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Window is an inclusive block span.
type Window struct {
	From uint64
	To   uint64
}

// LogScan is a log query over [From, To] issued Span blocks at a time.
type LogScan struct {
	Addresses []common.Address
	Topics    [][]common.Hash
	From      uint64
	To        uint64
	Span      uint64

	// MaxTries bounds the attempts per window; zero means 3.
	MaxTries uint
	// Backoff is the first retry delay; zero uses the backoff default.
	Backoff time.Duration
}

// Windows returns the block spans the scan queries, lowest first.
func (s LogScan) Windows() ([]Window, error) {
	if s.Span == 0 {
		return nil, errors.New("log scan: span must be positive")
	}
	if s.To < s.From {
		return nil, fmt.Errorf("log scan: block %d is before %d", s.To, s.From)
	}

	out := make([]Window, 0, (s.To-s.From)/s.Span+1)
	for lo := s.From; ; lo += s.Span {
		hi := s.To
		if s.To-lo >= s.Span {
			hi = lo + s.Span - 1
		}
		out = append(out, Window{From: lo, To: hi})
		if hi == s.To {
			return out, nil
		}
	}
}

func (s LogScan) query(w Window) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(w.From),
		ToBlock:   new(big.Int).SetUint64(w.To),
		Addresses: s.Addresses,
		Topics:    s.Topics,
	}
}

// Scan hands every log matched by s to visit in block order. visit returns
// false to stop the scan.
func Scan(ctx context.Context, f LogFilterer, s LogScan, logger *zap.Logger, visit func(types.Log) (bool, error)) error {
	if f == nil {
		return errors.New("log scan: nil filterer")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	windows, err := s.Windows()
	if err != nil {
		return err
	}
	tries := s.MaxTries
	if tries == 0 {
		tries = 3
	}

	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return err
		}

		policy := backoff.NewExponentialBackOff()
		if s.Backoff > 0 {
			policy.InitialInterval = s.Backoff
		}
		q := s.query(w)
		logs, err := backoff.Retry(ctx, func() ([]types.Log, error) {
			return f.FilterLogs(ctx, q)
		},
			backoff.WithBackOff(policy),
			backoff.WithMaxTries(tries),
			backoff.WithNotify(func(err error, d time.Duration) {
				logger.Warn("get logs failed, retrying",
					zap.Uint64("from", w.From), zap.Uint64("to", w.To),
					zap.Error(err), zap.Duration("backoff", d))
			}),
		)
		if err != nil {
			return fmt.Errorf("logs %d-%d: %w", w.From, w.To, err)
		}
		logger.Debug("scanned window", zap.Uint64("from", w.From), zap.Uint64("to", w.To), zap.Int("logs", len(logs)))

		for _, l := range logs {
			more, err := visit(l)
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}
	}
	return nil
}
