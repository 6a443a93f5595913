package registry

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"curvelaunch/internal/model"
)

// Jsonl is a Registry backed by an append-only JSON lines file. The file is
// replayed into memory on open; every Record appends one line.
type Jsonl struct {
	path  string
	mu    sync.Mutex
	index *Memory
}

var _ Registry = (*Jsonl)(nil)

// OpenJsonl loads existing receipts from path, if any.
func OpenJsonl(path string) (*Jsonl, error) {
	r := &Jsonl{path: path, index: NewMemory()}
	if err := r.replay(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Jsonl) replay() error {
	file, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open registry: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		var receipt model.GraduationReceipt
		if err := json.Unmarshal(data, &receipt); err != nil {
			return fmt.Errorf("parse registry line %d: %w", line, err)
		}
		if err := r.index.Record(context.Background(), receipt); err != nil {
			return fmt.Errorf("replay registry line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan registry: %w", err)
	}
	return nil
}

// Record appends a receipt as a JSON line.
func (r *Jsonl) Record(ctx context.Context, receipt model.GraduationReceipt) error {
	if receipt.PoolID == "" {
		return ErrInvalidReceipt
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists, _ := r.index.Get(ctx, receipt.PoolID); exists {
		return ErrDuplicateReceipt
	}

	dir := filepath.Dir(r.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create registry dir: %w", err)
		}
	}

	file, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open registry file: %w", err)
	}
	defer file.Close()

	line, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}

	writer := bufio.NewWriter(file)
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write receipt: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush registry: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync registry: %w", err)
	}

	return r.index.Record(ctx, receipt)
}

// Get returns the receipt for a pool id.
func (r *Jsonl) Get(ctx context.Context, poolID string) (model.GraduationReceipt, bool, error) {
	return r.index.Get(ctx, poolID)
}

// List returns all receipts ordered by completion time.
func (r *Jsonl) List(ctx context.Context) ([]model.GraduationReceipt, error) {
	return r.index.List(ctx)
}
