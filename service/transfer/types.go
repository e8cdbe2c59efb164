package transfer

import (
	"math/big"
	"strings"
	"time"
)

// Transfer is the canonical view of one on-chain token transfer.
// This is our domain model, independent of the provider response format.
type Transfer struct {
	ID            string
	TokenContract string // empty when the provider did not report one
	TokenSymbol   string
	TokenName     string
	RawAmount     *big.Int // smallest-unit integer amount, never negative
	FromAddress   string   // original casing, for display
	ToAddress     string   // original casing, for display
	TimestampMs   int64    // epoch milliseconds, 0 if unknown
}

// Amount converts the raw amount into token units.
func (t *Transfer) Amount(decimals int) *big.Rat {
	raw := t.RawAmount
	if raw == nil {
		raw = new(big.Int)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Rat).SetFrac(raw, scale)
}

// FormatAmount renders the token amount with a fixed number of decimal places.
func (t *Transfer) FormatAmount(decimals, places int) string {
	return t.Amount(decimals).FloatString(places)
}

// Time returns the provider-reported event time, or the zero time when unknown.
func (t *Transfer) Time() time.Time {
	if t.TimestampMs <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(t.TimestampMs)
}

// WatchConfig is the immutable description of what a run watches.
// Use the With* methods to derive a modified copy.
type WatchConfig struct {
	WatchedAddress    string
	TokenContract     string
	TokenSymbol       string
	Decimals          int
	MinRawAmount      *big.Int
	PollInterval      time.Duration
	StartOfInterestMs int64
}

// WithStartOfInterest returns a copy of the config with a new start-of-interest instant.
func (w WatchConfig) WithStartOfInterest(ms int64) WatchConfig {
	w.StartOfInterestMs = ms
	return w
}

// StartOfInterest returns the start-of-interest instant, or the zero time when unset.
func (w WatchConfig) StartOfInterest() time.Time {
	if w.StartOfInterestMs <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(w.StartOfInterestMs)
}

// RawUnits converts a whole-token amount such as "1.0" into smallest units for
// the given number of decimals. Fractions below one unit are truncated.
func RawUnits(amount string, decimals int) (*big.Int, bool) {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(amount))
	if !ok || r.Sign() < 0 {
		return nil, false
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	r.Mul(r, new(big.Rat).SetInt(scale))
	return new(big.Int).Quo(r.Num(), r.Denom()), true
}
