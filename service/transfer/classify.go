package transfer

import (
	"strings"
)

// Verdict is the outcome of classifying one transfer.
type Verdict int

const (
	Notify Verdict = iota
	SkipBelowThreshold
	SkipWrongToken
	SkipWrongAddress
	SkipTooOld
	SkipDuplicate
)

// Verdicts lists every verdict, in declaration order.
var Verdicts = []Verdict{Notify, SkipBelowThreshold, SkipWrongToken, SkipWrongAddress, SkipTooOld, SkipDuplicate}

func (v Verdict) String() string {
	switch v {
	case Notify:
		return "notify"
	case SkipBelowThreshold:
		return "skip_below_threshold"
	case SkipWrongToken:
		return "skip_wrong_token"
	case SkipWrongAddress:
		return "skip_wrong_address"
	case SkipTooOld:
		return "skip_too_old"
	case SkipDuplicate:
		return "skip_duplicate"
	default:
		return "unknown"
	}
}

// Seen is the dedup set consulted and updated by the classifier.
type Seen interface {
	Contains(id string) bool
	Mark(id string) bool
}

// TokenMatcher decides whether a transfer moves the token being watched.
type TokenMatcher interface {
	Matches(t *Transfer) bool
}

// ContractOrSymbolMatcher accepts a transfer whose contract equals Contract,
// or whose symbol or name contains Symbol.
type ContractOrSymbolMatcher struct {
	Contract string
	Symbol   string
}

// Matches implements TokenMatcher.
func (m ContractOrSymbolMatcher) Matches(t *Transfer) bool {
	if t.TokenContract != "" && m.Contract != "" && strings.EqualFold(t.TokenContract, m.Contract) {
		return true
	}
	if m.Symbol == "" {
		return false
	}
	symbol := strings.ToUpper(m.Symbol)
	return strings.Contains(strings.ToUpper(t.TokenSymbol), symbol) ||
		strings.Contains(strings.ToUpper(t.TokenName), symbol)
}

// Classifier filters canonical transfers against a WatchConfig.
type Classifier struct {
	watch   WatchConfig
	watched string
	tokens  TokenMatcher
}

// NewClassifier creates a Classifier. If tokens is nil, the watch config's
// contract and symbol are used.
func NewClassifier(watch WatchConfig, tokens TokenMatcher) *Classifier {
	if tokens == nil {
		tokens = ContractOrSymbolMatcher{Contract: watch.TokenContract, Symbol: watch.TokenSymbol}
	}
	return &Classifier{
		watch:   watch,
		watched: strings.ToUpper(watch.WatchedAddress),
		tokens:  tokens,
	}
}

// Watch returns the config the classifier was built with.
func (c *Classifier) Watch() WatchConfig {
	return c.watch
}

// Classify returns the first matching verdict for t. Every verdict other than
// SkipDuplicate marks t.ID as seen, Notify included, so a transfer is never
// evaluated twice.
func (c *Classifier) Classify(t *Transfer, seen Seen) Verdict {
	if seen.Contains(t.ID) {
		return SkipDuplicate
	}
	v := c.Evaluate(t)
	seen.Mark(t.ID)
	return v
}

// Evaluate runs the checks that follow the duplicate check without touching any
// seen set.
func (c *Classifier) Evaluate(t *Transfer) Verdict {
	if !c.IsRecent(t) {
		return SkipTooOld
	}
	if !c.IsToWatched(t) {
		return SkipWrongAddress
	}
	if !c.tokens.Matches(t) {
		return SkipWrongToken
	}
	if !c.MeetsThreshold(t) {
		return SkipBelowThreshold
	}
	return Notify
}

// IsRecent reports whether t is not older than the start of interest.
// Transfers without a timestamp are treated as recent.
func (c *Classifier) IsRecent(t *Transfer) bool {
	return t.TimestampMs <= 0 || t.TimestampMs >= c.watch.StartOfInterestMs
}

// IsToWatched reports whether t is addressed to the watched wallet.
func (c *Classifier) IsToWatched(t *Transfer) bool {
	return strings.ToUpper(t.ToAddress) == c.watched
}

// IsToken reports whether t moves the watched token.
func (c *Classifier) IsToken(t *Transfer) bool {
	return c.tokens.Matches(t)
}

// MeetsThreshold reports whether t carries at least the minimum amount.
func (c *Classifier) MeetsThreshold(t *Transfer) bool {
	if c.watch.MinRawAmount == nil || t.RawAmount == nil {
		return t.RawAmount != nil
	}
	return t.RawAmount.Cmp(c.watch.MinRawAmount) >= 0
}
