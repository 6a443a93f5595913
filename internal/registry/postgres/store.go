package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"curvelaunch/internal/model"
	"curvelaunch/internal/registry"
)

const schema = `
CREATE TABLE IF NOT EXISTS graduation_receipts (
	pool_id           TEXT PRIMARY KEY,
	dex_kind          TEXT NOT NULL,
	external_pool_id  TEXT NOT NULL,
	reserve_asset     TEXT NOT NULL,
	token_asset       TEXT NOT NULL,
	extracted_reserve NUMERIC(20,0) NOT NULL,
	extracted_token   NUMERIC(20,0) NOT NULL,
	staking_amount    NUMERIC(20,0) NOT NULL,
	final_reserve     NUMERIC(20,0) NOT NULL,
	final_token       NUMERIC(20,0) NOT NULL,
	price_encoding    TEXT NOT NULL,
	price_value       NUMERIC(78,0) NOT NULL,
	price_base        TEXT NOT NULL,
	price_quote       TEXT NOT NULL,
	completed_at      TIMESTAMPTZ NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS graduation_journal (
	pool_id    TEXT PRIMARY KEY,
	stage      TEXT NOT NULL,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// Store provides Postgres persistence for graduation receipts and the
// graduation journal.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ registry.Registry      = (*Store)(nil)
	_ registry.BatchRecorder = (*Store)(nil)
)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Record inserts a receipt. An existing row for the pool id is never
// replaced; registry.ErrDuplicateReceipt is returned instead.
func (s *Store) Record(ctx context.Context, r model.GraduationReceipt) error {
	if r.PoolID == "" {
		return registry.ErrInvalidReceipt
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO graduation_receipts (
			pool_id, dex_kind, external_pool_id, reserve_asset, token_asset,
			extracted_reserve, extracted_token, staking_amount, final_reserve, final_token,
			price_encoding, price_value, price_base, price_quote, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12::numeric,$13,$14,$15)
		ON CONFLICT (pool_id) DO NOTHING
	`,
		r.PoolID,
		r.DexKind,
		r.ExternalPoolID,
		r.ReserveAsset,
		r.TokenAsset,
		numeric(r.ExtractedReserve),
		numeric(r.ExtractedToken),
		numeric(r.StakingAmount),
		numeric(r.FinalReserve),
		numeric(r.FinalToken),
		r.Price.Encoding,
		r.Price.Value,
		r.Price.BaseAsset,
		r.Price.QuoteAsset,
		r.CompletedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return registry.ErrDuplicateReceipt
	}
	return nil
}

const selectReceipt = `
	SELECT pool_id, dex_kind, external_pool_id, reserve_asset, token_asset,
		extracted_reserve::text, extracted_token::text, staking_amount::text,
		final_reserve::text, final_token::text,
		price_encoding, price_value::text, price_base, price_quote, completed_at
	FROM graduation_receipts`

// Get returns the receipt for a pool id.
func (s *Store) Get(ctx context.Context, poolID string) (model.GraduationReceipt, bool, error) {
	row := s.pool.QueryRow(ctx, selectReceipt+` WHERE pool_id=$1`, poolID)
	receipt, err := scanReceipt(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.GraduationReceipt{}, false, nil
		}
		return model.GraduationReceipt{}, false, err
	}
	return receipt, true, nil
}

// List returns all receipts ordered by completion time.
func (s *Store) List(ctx context.Context) ([]model.GraduationReceipt, error) {
	rows, err := s.pool.Query(ctx, selectReceipt+` ORDER BY completed_at, pool_id`)
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}
	defer rows.Close()

	var out []model.GraduationReceipt
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate receipts: %w", err)
	}
	return out, nil
}

// RecordBatch inserts many receipts in one round trip and reports the pool ids
// that already had a receipt.
func (s *Store) RecordBatch(ctx context.Context, receipts []model.GraduationReceipt) ([]string, error) {
	if len(receipts) == 0 {
		return nil, nil
	}
	for _, r := range receipts {
		if r.PoolID == "" {
			return nil, registry.ErrInvalidReceipt
		}
	}
	batch := &pgx.Batch{}
	for _, r := range receipts {
		batch.Queue(`
			INSERT INTO graduation_receipts (
				pool_id, dex_kind, external_pool_id, reserve_asset, token_asset,
				extracted_reserve, extracted_token, staking_amount, final_reserve, final_token,
				price_encoding, price_value, price_base, price_quote, completed_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12::numeric,$13,$14,$15)
			ON CONFLICT (pool_id) DO NOTHING
		`,
			r.PoolID, r.DexKind, r.ExternalPoolID, r.ReserveAsset, r.TokenAsset,
			numeric(r.ExtractedReserve), numeric(r.ExtractedToken), numeric(r.StakingAmount),
			numeric(r.FinalReserve), numeric(r.FinalToken),
			r.Price.Encoding, r.Price.Value, r.Price.BaseAsset, r.Price.QuoteAsset,
			r.CompletedAt.UTC(),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	var duplicates []string
	for _, r := range receipts {
		tag, err := br.Exec()
		if err != nil {
			return duplicates, err
		}
		if tag.RowsAffected() == 0 {
			duplicates = append(duplicates, r.PoolID)
		}
	}
	return duplicates, nil
}

// LoadStage returns the journal payload for a pool.
func (s *Store) LoadStage(ctx context.Context, poolID string) ([]byte, bool, error) {
	if poolID == "" {
		return nil, false, fmt.Errorf("pool id required")
	}
	var payload []byte
	row := s.pool.QueryRow(ctx, `SELECT payload FROM graduation_journal WHERE pool_id=$1`, poolID)
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return payload, true, nil
}

// SaveStage upserts the journal payload for a pool.
func (s *Store) SaveStage(ctx context.Context, poolID, stage string, payload []byte, at time.Time) error {
	if poolID == "" {
		return fmt.Errorf("pool id required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO graduation_journal (pool_id, stage, payload, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (pool_id) DO UPDATE
		SET stage = EXCLUDED.stage, payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
	`, poolID, stage, payload, at.UTC())
	return err
}

// ListStages returns every journal payload ordered by pool id.
func (s *Store) ListStages(ctx context.Context) ([][]byte, error) {
	rows, err := s.pool.Query(ctx, `SELECT payload FROM graduation_journal ORDER BY pool_id`)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		out = append(out, payload)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row scanner) (model.GraduationReceipt, error) {
	var (
		r                                                   model.GraduationReceipt
		extractedReserve, extractedToken, staking, fReserve string
		fToken                                              string
	)
	err := row.Scan(
		&r.PoolID,
		&r.DexKind,
		&r.ExternalPoolID,
		&r.ReserveAsset,
		&r.TokenAsset,
		&extractedReserve,
		&extractedToken,
		&staking,
		&fReserve,
		&fToken,
		&r.Price.Encoding,
		&r.Price.Value,
		&r.Price.BaseAsset,
		&r.Price.QuoteAsset,
		&r.CompletedAt,
	)
	if err != nil {
		return model.GraduationReceipt{}, err
	}

	for _, f := range []struct {
		text string
		dst  *uint64
	}{
		{extractedReserve, &r.ExtractedReserve},
		{extractedToken, &r.ExtractedToken},
		{staking, &r.StakingAmount},
		{fReserve, &r.FinalReserve},
		{fToken, &r.FinalToken},
	} {
		if _, err := fmt.Sscan(f.text, f.dst); err != nil {
			return model.GraduationReceipt{}, fmt.Errorf("parse amount %q: %w", f.text, err)
		}
	}
	r.CompletedAt = r.CompletedAt.UTC()
	return r, nil
}

func numeric(v uint64) string {
	return fmt.Sprintf("%d", v)
}
