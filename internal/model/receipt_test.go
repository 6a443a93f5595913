package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraduationReceiptJSON(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*60*60)
	original := GraduationReceipt{
		PoolID:           "3f1c8a52-5f0e-4a7c-9d4c-0c6a3d1a9b11",
		DexKind:          "cetus",
		ExternalPoolID:   "0x8f3c",
		ReserveAsset:     "SUI",
		TokenAsset:       "MEME",
		ExtractedReserve: 88_000,
		ExtractedToken:   700_000,
		StakingAmount:    7_000,
		FinalReserve:     88_000,
		FinalToken:       693_000,
		Price: PriceSnapshot{
			Encoding:   PriceEncodingSqrtX64,
			Value:      "18446744073709551616",
			BaseAsset:  "SUI",
			QuoteAsset: "MEME",
		},
		CompletedAt: time.Date(2024, 1, 1, 8, 0, 0, 0, loc),
	}

	b, err := json.Marshal(original)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &fields))
	assert.Equal(t, "2024-01-01T00:00:00Z", fields["completed_at"])
	price, ok := fields["price"].(map[string]interface{})
	require.True(t, ok)
	assert.IsType(t, "", price["value"], "price value must stay a string to keep 128-bit precision")

	var decoded GraduationReceipt
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.True(t, original.CompletedAt.Equal(decoded.CompletedAt))
	decoded.CompletedAt = original.CompletedAt
	assert.Equal(t, original, decoded)
}
