package transfer

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const (
	testWallet   = "TCKV8GCJcEzQWYi8c3yFGPvMa1UkUDYZ57"
	testContract = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
)

// seenMap is a minimal Seen for classifier tests.
type seenMap map[string]bool

func (s seenMap) Contains(id string) bool { return s[id] }

func (s seenMap) Mark(id string) bool {
	if s[id] {
		return false
	}
	s[id] = true
	return true
}

func testWatch(startMs int64) WatchConfig {
	return WatchConfig{
		WatchedAddress:    testWallet,
		TokenContract:     testContract,
		TokenSymbol:       "USDT",
		Decimals:          6,
		MinRawAmount:      big.NewInt(1_000_000),
		PollInterval:      30 * time.Second,
		StartOfInterestMs: startMs,
	}
}

func qualifying(id string, raw int64, ts int64) *Transfer {
	return &Transfer{
		ID:            id,
		TokenContract: testContract,
		TokenSymbol:   "USDT",
		RawAmount:     big.NewInt(raw),
		FromAddress:   "TSENDER",
		ToAddress:     testWallet,
		TimestampMs:   ts,
	}
}

func TestClassify_Verdicts(t *testing.T) {
	const start = int64(1_760_000_000_000)

	tests := []struct {
		name     string
		transfer *Transfer
		expected Verdict
	}{
		{
			name:     "qualifying transfer",
			transfer: qualifying("t1", 2_500_000, start+1000),
			expected: Notify,
		},
		{
			name:     "one millisecond before start is too old",
			transfer: qualifying("t2", 2_500_000, start-1),
			expected: SkipTooOld,
		},
		{
			name:     "exactly at start is eligible",
			transfer: qualifying("t3", 2_500_000, start),
			expected: Notify,
		},
		{
			name:     "unknown timestamp is eligible",
			transfer: qualifying("t4", 2_500_000, 0),
			expected: Notify,
		},
		{
			name: "other destination",
			transfer: func() *Transfer {
				tr := qualifying("t5", 2_500_000, start+1)
				tr.ToAddress = "TSOMEONEELSE"
				return tr
			}(),
			expected: SkipWrongAddress,
		},
		{
			name: "destination compared case-insensitively",
			transfer: func() *Transfer {
				tr := qualifying("t6", 2_500_000, start+1)
				tr.ToAddress = "tckv8gcjcezqwyi8c3yfgpvma1ukudyz57"
				return tr
			}(),
			expected: Notify,
		},
		{
			name: "other contract still matches on symbol",
			transfer: func() *Transfer {
				tr := qualifying("t7", 2_500_000, start+1)
				tr.TokenContract = "TFAKEUSDTCONTRACT"
				tr.TokenSymbol = "USDT"
				return tr
			}(),
			expected: Notify,
		},
		{
			name: "other contract with other symbol",
			transfer: func() *Transfer {
				tr := qualifying("t7b", 2_500_000, start+1)
				tr.TokenContract = "TOTHERCONTRACT"
				tr.TokenSymbol = "USDC"
				tr.TokenName = "USD Coin"
				return tr
			}(),
			expected: SkipWrongToken,
		},
		{
			name: "no contract falls back to symbol",
			transfer: func() *Transfer {
				tr := qualifying("t8", 2_500_000, start+1)
				tr.TokenContract = ""
				tr.TokenSymbol = "usdt"
				return tr
			}(),
			expected: Notify,
		},
		{
			name: "no contract falls back to name",
			transfer: func() *Transfer {
				tr := qualifying("t9", 2_500_000, start+1)
				tr.TokenContract = ""
				tr.TokenSymbol = ""
				tr.TokenName = "Tether USDT"
				return tr
			}(),
			expected: Notify,
		},
		{
			name: "no contract and other symbol",
			transfer: func() *Transfer {
				tr := qualifying("t10", 2_500_000, start+1)
				tr.TokenContract = ""
				tr.TokenSymbol = "TRX"
				tr.TokenName = "Tronix"
				return tr
			}(),
			expected: SkipWrongToken,
		},
		{
			name:     "just below threshold",
			transfer: qualifying("t11", 999_999, start+1),
			expected: SkipBelowThreshold,
		},
		{
			name:     "exactly at threshold",
			transfer: qualifying("t12", 1_000_000, start+1),
			expected: Notify,
		},
	}

	c := NewClassifier(testWatch(start), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen := seenMap{}
			assert.Equal(t, tt.expected, c.Classify(tt.transfer, seen))
			assert.True(t, seen.Contains(tt.transfer.ID), "every non-duplicate verdict marks the id")
		})
	}
}

func TestClassify_SecondCallIsDuplicate(t *testing.T) {
	c := NewClassifier(testWatch(0), nil)
	seen := seenMap{}

	for _, tr := range []*Transfer{
		qualifying("notify", 2_000_000, 0),
		qualifying("small", 10, 0),
	} {
		first := c.Classify(tr, seen)
		assert.NotEqual(t, SkipDuplicate, first)
		assert.Equal(t, SkipDuplicate, c.Classify(tr, seen))
	}
}

func TestClassify_DuplicateCheckedFirst(t *testing.T) {
	c := NewClassifier(testWatch(0), nil)
	seen := seenMap{"old": true}

	tr := qualifying("old", 5, 0)
	tr.ToAddress = "TELSEWHERE"
	assert.Equal(t, SkipDuplicate, c.Classify(tr, seen))
}

func TestEvaluate_DoesNotMark(t *testing.T) {
	c := NewClassifier(testWatch(0), nil)
	tr := qualifying("x", 2_000_000, 0)
	assert.Equal(t, Notify, c.Evaluate(tr))
	assert.Equal(t, Notify, c.Evaluate(tr))
}

type rejectAll struct{}

func (rejectAll) Matches(*Transfer) bool { return false }

func TestClassify_CustomTokenMatcher(t *testing.T) {
	c := NewClassifier(testWatch(0), rejectAll{})
	assert.Equal(t, SkipWrongToken, c.Classify(qualifying("x", 2_000_000, 0), seenMap{}))
}

func TestWatchConfig_WithStartOfInterestCopies(t *testing.T) {
	w := testWatch(0)
	w2 := w.WithStartOfInterest(42)
	assert.Equal(t, int64(0), w.StartOfInterestMs)
	assert.Equal(t, int64(42), w2.StartOfInterestMs)
	assert.True(t, w.StartOfInterest().IsZero())
	assert.Equal(t, time.UnixMilli(42), w2.StartOfInterest())
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "notify", Notify.String())
	assert.Equal(t, "skip_duplicate", SkipDuplicate.String())
	assert.Equal(t, "unknown", Verdict(99).String())
}

func TestEvaluate_ContractMismatchFallsBackToSymbol(t *testing.T) {
	c := NewClassifier(testWatch(0), nil)
	tr := &Transfer{
		ID:            "mismatch",
		TokenContract: "TXYZOTHERCONTRACT",
		TokenSymbol:   "USDT",
		RawAmount:     big.NewInt(2_500_000),
		ToAddress:     testWallet,
	}
	assert.True(t, c.IsToken(tr))
	assert.Equal(t, Notify, c.Evaluate(tr))
}
