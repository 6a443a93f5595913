package postgres

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curvelaunch/internal/model"
	"curvelaunch/internal/registry"
)

// testDSNEnv names the database the store tests run against. They are
// skipped when it is unset.
const testDSNEnv = "CURVELAUNCH_TEST_PG_DSN"

// setupTestStore connects to the test database, creates the schema and
// empties both tables. The returned cleanup closes the pool.
func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", testDSNEnv)
	}

	ctx := context.Background()
	store, err := NewStore(ctx, dsn)
	require.NoError(t, err, "failed to create pool")
	require.NoError(t, store.EnsureSchema(ctx))

	_, err = store.pool.Exec(ctx, `TRUNCATE graduation_receipts, graduation_journal`)
	require.NoError(t, err, "failed to truncate tables")

	return store, store.Close
}

func testReceipt(poolID string, at time.Time) model.GraduationReceipt {
	return model.GraduationReceipt{
		PoolID:           poolID,
		DexKind:          "uniswap_v3",
		ExternalPoolID:   "0x00000000000000000000000000000000000000f1",
		ReserveAsset:     "WETH",
		TokenAsset:       "MEME",
		ExtractedReserve: 108_900,
		ExtractedToken:   215_982,
		StakingAmount:    2_159,
		FinalReserve:     108_900,
		FinalToken:       213_823,
		Price: model.PriceSnapshot{
			Encoding:   model.PriceEncodingSqrtX96,
			Value:      "1461446703485210103287273052203988822378723970341",
			BaseAsset:  "MEME",
			QuoteAsset: "WETH",
		},
		CompletedAt: at,
	}
}

func TestNewStoreRequiresDSN(t *testing.T) {
	_, err := NewStore(context.Background(), "")
	require.Error(t, err)
}

func TestStoreRecordAndGet(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	at := time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)
	want := testReceipt("pool-a", at)
	require.NoError(t, store.Record(ctx, want))

	got, ok, err := store.Get(ctx, "pool-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, ok, err = store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	replaced := want
	replaced.ExternalPoolID = "0x00000000000000000000000000000000000000f2"
	require.ErrorIs(t, store.Record(ctx, replaced), registry.ErrDuplicateReceipt)

	got, _, err = store.Get(ctx, "pool-a")
	require.NoError(t, err)
	assert.Equal(t, want.ExternalPoolID, got.ExternalPoolID)

	require.ErrorIs(t, store.Record(ctx, model.GraduationReceipt{}), registry.ErrInvalidReceipt)
}

func TestStoreListOrder(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	at := time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Record(ctx, testReceipt("c", at.Add(time.Hour))))
	require.NoError(t, store.Record(ctx, testReceipt("b", at)))
	require.NoError(t, store.Record(ctx, testReceipt("a", at)))

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{list[0].PoolID, list[1].PoolID, list[2].PoolID})
}

func TestStoreRecordBatch(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	at := time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Record(ctx, testReceipt("b", at)))

	dups, err := store.RecordBatch(ctx, []model.GraduationReceipt{
		testReceipt("a", at),
		testReceipt("b", at),
		testReceipt("c", at),
		testReceipt("a", at),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, dups)

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	_, err = store.RecordBatch(ctx, []model.GraduationReceipt{testReceipt("d", at), {}})
	require.ErrorIs(t, err, registry.ErrInvalidReceipt)
	_, ok, err := store.Get(ctx, "d")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestImportIntoStore(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	at := time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)
	src := registry.NewMemory()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, src.Record(ctx, testReceipt(id, at)))
	}
	require.NoError(t, store.Record(ctx, testReceipt("c", at)))

	res, err := registry.Import(ctx, src, store, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, []string{"c"}, res.Duplicates)
}

func TestStoreStages(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	_, ok, err := store.LoadStage(ctx, "pool-a")
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveStage(ctx, "pool-b", "initiated", []byte(`{"pool_id":"pool-b"}`), at))
	require.NoError(t, store.SaveStage(ctx, "pool-a", "initiated", []byte(`{"pool_id":"pool-a","stage":"initiated"}`), at))
	require.NoError(t, store.SaveStage(ctx, "pool-a", "extracted", []byte(`{"pool_id":"pool-a","stage":"extracted"}`), at.Add(time.Minute)))

	payload, ok, err := store.LoadStage(ctx, "pool-a")
	require.NoError(t, err)
	require.True(t, ok)
	var decoded map[string]string
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "extracted", decoded["stage"])

	all, err := store.ListStages(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.NoError(t, json.Unmarshal(all[0], &decoded))
	assert.Equal(t, "pool-a", decoded["pool_id"])

	require.Error(t, store.SaveStage(ctx, "", "initiated", []byte(`{}`), at))
}
