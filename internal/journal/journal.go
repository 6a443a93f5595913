package journal

import (
	"context"
	"fmt"
	"time"
)

// Stage is a step of the graduation protocol as seen from outside the pool.
type Stage string

const (
	StageInitiated   Stage = "initiated"
	StageExtracted   Stage = "extracted"
	StageStaked      Stage = "staked"
	StagePoolCreated Stage = "pool_created"
	StageCompleted   Stage = "completed"
	StageAborted     Stage = "aborted"
)

var transitions = map[Stage][]Stage{
	"":               {StageInitiated},
	StageInitiated:   {StageExtracted, StageAborted},
	StageExtracted:   {StageStaked, StageAborted},
	StageStaked:      {StagePoolCreated, StageAborted},
	StagePoolCreated: {StageCompleted, StageAborted},
	StageAborted:     {StageInitiated},
}

// CanAdvance reports whether a graduation may move from one stage to next.
func CanAdvance(from, next Stage) bool {
	for _, s := range transitions[from] {
		if s == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further stage follows s.
func (s Stage) Terminal() bool {
	return s == StageCompleted
}

// Entry is the journal record of one pool's graduation.
type Entry struct {
	PoolID         string    `json:"pool_id"`
	Dex            string    `json:"dex"`
	Stage          Stage     `json:"stage"`
	Attempt        int       `json:"attempt"`
	ReserveAmount  uint64    `json:"reserve_amount"`
	TokenAmount    uint64    `json:"token_amount"`
	StakingAmount  uint64    `json:"staking_amount"`
	ExternalPoolID string    `json:"external_pool_id,omitempty"`
	Error          string    `json:"error,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Store persists journal entries keyed by pool id.
type Store interface {
	Load(ctx context.Context, poolID string) (Entry, bool, error)
	Save(ctx context.Context, entry Entry) error
	List(ctx context.Context) ([]Entry, error)
}

// Advance moves the entry for poolID to next, applies update and saves it.
// Moving back to initiated after an abort starts a new attempt.
func Advance(ctx context.Context, store Store, poolID string, next Stage, now time.Time, update func(*Entry)) (Entry, error) {
	entry, ok, err := store.Load(ctx, poolID)
	if err != nil {
		return Entry{}, err
	}
	if !ok {
		entry = Entry{PoolID: poolID}
	}
	if !CanAdvance(entry.Stage, next) {
		return Entry{}, fmt.Errorf("journal %s: cannot move from %q to %q", poolID, entry.Stage, next)
	}
	if next == StageInitiated {
		entry.Attempt++
		entry.ReserveAmount, entry.TokenAmount, entry.StakingAmount = 0, 0, 0
		entry.ExternalPoolID, entry.Error = "", ""
	}
	entry.Stage = next
	entry.UpdatedAt = now.UTC()
	if update != nil {
		update(&entry)
	}
	if err := store.Save(ctx, entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Annotate records msg on the entry for poolID without moving its stage.
func Annotate(ctx context.Context, store Store, poolID, msg string, now time.Time) error {
	entry, ok, err := store.Load(ctx, poolID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("journal %s: no entry", poolID)
	}
	entry.Error = msg
	entry.UpdatedAt = now.UTC()
	return store.Save(ctx, entry)
}
