package registry

import (
	"context"
	"fmt"

	"curvelaunch/internal/model"
)

// BatchRecorder records many receipts in one call and returns the pool ids
// that already had a receipt.
type BatchRecorder interface {
	RecordBatch(ctx context.Context, receipts []model.GraduationReceipt) ([]string, error)
}

// ImportResult summarizes an Import.
type ImportResult struct {
	Imported   int      `json:"imported"`
	Duplicates []string `json:"duplicates,omitempty"`
}

// Import copies every receipt of src into dst, batchSize receipts per call.
// Receipts dst already holds are reported, never replaced.
func Import(ctx context.Context, src Registry, dst BatchRecorder, batchSize int) (ImportResult, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	receipts, err := src.List(ctx)
	if err != nil {
		return ImportResult{}, fmt.Errorf("list source: %w", err)
	}

	var res ImportResult
	for start := 0; start < len(receipts); start += batchSize {
		end := min(start+batchSize, len(receipts))
		chunk := receipts[start:end]
		dups, err := dst.RecordBatch(ctx, chunk)
		if err != nil {
			return res, fmt.Errorf("record batch at %d: %w", start, err)
		}
		res.Duplicates = append(res.Duplicates, dups...)
		res.Imported += len(chunk) - len(dups)
	}
	return res, nil
}
