package registry

import (
	"context"
	"errors"
	"sort"
	"sync"

	"curvelaunch/internal/model"
)

// Registry errors.
var (
	// ErrDuplicateReceipt is returned when a receipt for the pool id exists.
	// Receipts are append-only and never replaced.
	ErrDuplicateReceipt = errors.New("receipt already recorded for pool")

	// ErrInvalidReceipt is returned when a receipt has no pool id.
	ErrInvalidReceipt = errors.New("invalid receipt")
)

// Registry is the append-only store of graduation receipts keyed by pool id.
type Registry interface {
	Record(ctx context.Context, receipt model.GraduationReceipt) error
	Get(ctx context.Context, poolID string) (model.GraduationReceipt, bool, error)
	List(ctx context.Context) ([]model.GraduationReceipt, error)
}

// Memory is an in-memory Registry.
type Memory struct {
	mu   sync.RWMutex
	data map[string]model.GraduationReceipt
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]model.GraduationReceipt)}
}

var (
	_ Registry      = (*Memory)(nil)
	_ BatchRecorder = (*Memory)(nil)
)

// Record appends a receipt. Returns ErrDuplicateReceipt if the pool has one.
func (m *Memory) Record(_ context.Context, receipt model.GraduationReceipt) error {
	if receipt.PoolID == "" {
		return ErrInvalidReceipt
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.data[receipt.PoolID]; exists {
		return ErrDuplicateReceipt
	}
	m.data[receipt.PoolID] = receipt
	return nil
}

// RecordBatch records each receipt and collects the duplicate pool ids.
func (m *Memory) RecordBatch(ctx context.Context, receipts []model.GraduationReceipt) ([]string, error) {
	var duplicates []string
	for _, receipt := range receipts {
		err := m.Record(ctx, receipt)
		switch {
		case errors.Is(err, ErrDuplicateReceipt):
			duplicates = append(duplicates, receipt.PoolID)
		case err != nil:
			return duplicates, err
		}
	}
	return duplicates, nil
}

// Get returns the receipt for a pool id.
func (m *Memory) Get(_ context.Context, poolID string) (model.GraduationReceipt, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	receipt, ok := m.data[poolID]
	return receipt, ok, nil
}

// List returns all receipts ordered by completion time.
func (m *Memory) List(_ context.Context) ([]model.GraduationReceipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.GraduationReceipt, 0, len(m.data))
	for _, receipt := range m.data {
		out = append(out, receipt)
	}
	sortReceipts(out)
	return out, nil
}

func sortReceipts(receipts []model.GraduationReceipt) {
	sort.Slice(receipts, func(i, j int) bool {
		if receipts[i].CompletedAt.Equal(receipts[j].CompletedAt) {
			return receipts[i].PoolID < receipts[j].PoolID
		}
		return receipts[i].CompletedAt.Before(receipts[j].CompletedAt)
	})
}
