package model

import (
	"encoding/json"
	"time"
)

// Price encodings reported by DEX adapters.
const (
	PriceEncodingSqrtX64 = "sqrt_price_x64"
	PriceEncodingSqrtX96 = "sqrt_price_x96"
)

// PriceSnapshot is the initial price of an external pool as the target DEX
// encodes it. Value is a decimal integer string.
type PriceSnapshot struct {
	Encoding   string `json:"encoding"`
	Value      string `json:"value"`
	BaseAsset  string `json:"base_asset"`
	QuoteAsset string `json:"quote_asset"`
}

// GraduationReceipt is the immutable record of a completed graduation.
type GraduationReceipt struct {
	PoolID           string        `json:"pool_id"`
	DexKind          string        `json:"dex_kind"`
	ExternalPoolID   string        `json:"external_pool_id"`
	ReserveAsset     string        `json:"reserve_asset"`
	TokenAsset       string        `json:"token_asset"`
	ExtractedReserve uint64        `json:"extracted_reserve"`
	ExtractedToken   uint64        `json:"extracted_token"`
	StakingAmount    uint64        `json:"staking_amount"`
	FinalReserve     uint64        `json:"final_reserve"`
	FinalToken       uint64        `json:"final_token"`
	Price            PriceSnapshot `json:"price"`
	CompletedAt      time.Time     `json:"completed_at"`
}

// MarshalJSON ensures GraduationReceipt is encoded with stable field names and
// a UTC timestamp.
func (r GraduationReceipt) MarshalJSON() ([]byte, error) {
	type Alias GraduationReceipt
	a := Alias(r)
	a.CompletedAt = a.CompletedAt.UTC()
	return json.Marshal(a)
}

// UnmarshalJSON decodes a GraduationReceipt from JSON.
func (r *GraduationReceipt) UnmarshalJSON(data []byte) error {
	type Alias GraduationReceipt
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = GraduationReceipt(a)
	return nil
}

// Deposited returns the amounts the external pool was seeded with.
func (r GraduationReceipt) Deposited() (reserve, token uint64) {
	return r.FinalReserve, r.FinalToken
}
