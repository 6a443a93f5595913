package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"curvelaunch/internal/registry/postgres"
)

// DBStore keeps the journal in the graduation_journal table.
type DBStore struct {
	Store *postgres.Store
}

var _ Store = (*DBStore)(nil)

func (s *DBStore) Load(ctx context.Context, poolID string) (Entry, bool, error) {
	if s == nil || s.Store == nil {
		return Entry{}, false, nil
	}
	payload, ok, err := s.Store.LoadStage(ctx, poolID)
	if err != nil || !ok {
		return Entry{}, ok, err
	}
	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("parse journal %s: %w", poolID, err)
	}
	return entry, true, nil
}

func (s *DBStore) Save(ctx context.Context, entry Entry) error {
	if s == nil || s.Store == nil {
		return nil
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	return s.Store.SaveStage(ctx, entry.PoolID, string(entry.Stage), payload, entry.UpdatedAt)
}

func (s *DBStore) List(ctx context.Context) ([]Entry, error) {
	if s == nil || s.Store == nil {
		return nil, nil
	}
	payloads, err := s.Store.ListStages(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(payloads))
	for _, p := range payloads {
		var entry Entry
		if err := json.Unmarshal(p, &entry); err != nil {
			return nil, fmt.Errorf("parse journal: %w", err)
		}
		out = append(out, entry)
	}
	return out, nil
}
