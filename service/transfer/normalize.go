package transfer

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math/big"
	"slices"
	"strconv"
	"strings"
)

// ErrNoIdentifier is returned when a record carries none of the known transaction id keys.
var ErrNoIdentifier = errors.New("record has no transaction identifier")

// Record is one raw transfer object as decoded from a provider JSON response.
type Record map[string]any

// Keys returns up to n keys of the record, for diagnostics.
func (r Record) Keys(n int) []string {
	keys := slices.Sorted(maps.Keys(r))
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// Field names a canonical Transfer field.
type Field string

const (
	FieldID            Field = "id"
	FieldTokenContract Field = "token_contract"
	FieldTokenSymbol   Field = "token_symbol"
	FieldTokenName     Field = "token_name"
	FieldAmount        Field = "raw_amount"
	FieldFrom          Field = "from_address"
	FieldTo            Field = "to_address"
	FieldTimestamp     Field = "timestamp_ms"
)

// FieldTable maps each canonical field to the provider keys that may carry it,
// in lookup order.
type FieldTable map[Field][]string

// DefaultFields lists the key names observed across Tronscan endpoint variants.
var DefaultFields = FieldTable{
	FieldID:            {"hash", "transactionHash", "transaction_id", "txID", "txid"},
	FieldTokenContract: {"contractAddress", "contract_address", "tokenContractAddress", "token_address"},
	FieldTokenSymbol:   {"tokenSymbol", "token_symbol", "symbol", "tokenAbbr"},
	FieldTokenName:     {"tokenName", "token_name", "name"},
	FieldAmount:        {"amount", "quant", "value", "amount_str"},
	FieldFrom:          {"fromAddress", "transferFromAddress", "from", "from_address"},
	FieldTo:            {"toAddress", "transferToAddress", "to", "to_address"},
	FieldTimestamp:     {"timestamp", "block_timestamp", "block_ts", "time"},
}

// DefaultTokenInfoKeys are the keys of the nested token description object.
var DefaultTokenInfoKeys = []string{"tokenInfo", "token_info"}

// DefaultTokenInfoFields are consulted inside the token info object when the
// top-level record lacks contract, symbol or name.
var DefaultTokenInfoFields = FieldTable{
	FieldTokenContract: {"tokenId", "address", "contract_address"},
	FieldTokenSymbol:   {"tokenAbbr", "symbol"},
	FieldTokenName:     {"tokenName", "name"},
}

// secondsCutoff separates second-resolution timestamps from millisecond ones.
// 1e11 ms is March 1973, 1e11 s is far in the future.
const secondsCutoff = 100_000_000_000

// Normalizer turns provider records into canonical transfers using ordered
// alternative-key lookup tables.
type Normalizer struct {
	Fields          FieldTable
	TokenInfoKeys   []string
	TokenInfoFields FieldTable
}

// NewNormalizer returns a Normalizer configured with the default tables.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		Fields:          DefaultFields,
		TokenInfoKeys:   DefaultTokenInfoKeys,
		TokenInfoFields: DefaultTokenInfoFields,
	}
}

// HasIdentifier reports whether the record carries any transaction id key.
func (n *Normalizer) HasIdentifier(rec Record) bool {
	_, ok := lookup(rec, n.Fields[FieldID])
	return ok
}

// Normalize maps a raw record onto a Transfer. The only failure is a missing
// identifier; every other field falls back to a default.
func (n *Normalizer) Normalize(rec Record) (*Transfer, error) {
	id, ok := lookupString(rec, n.Fields[FieldID])
	if !ok {
		return nil, ErrNoIdentifier
	}

	t := &Transfer{
		ID:          id,
		FromAddress: n.str(rec, FieldFrom),
		ToAddress:   n.str(rec, FieldTo),
		RawAmount:   new(big.Int),
	}

	t.TokenContract = n.str(rec, FieldTokenContract)
	t.TokenSymbol = n.str(rec, FieldTokenSymbol)
	t.TokenName = n.str(rec, FieldTokenName)
	if info := n.tokenInfo(rec); info != nil {
		if t.TokenContract == "" {
			t.TokenContract, _ = lookupString(info, n.TokenInfoFields[FieldTokenContract])
		}
		if t.TokenSymbol == "" {
			t.TokenSymbol, _ = lookupString(info, n.TokenInfoFields[FieldTokenSymbol])
		}
		if t.TokenName == "" {
			t.TokenName, _ = lookupString(info, n.TokenInfoFields[FieldTokenName])
		}
	}

	if v, ok := lookup(rec, n.Fields[FieldAmount]); ok {
		t.RawAmount = parseRawAmount(v)
	}
	if v, ok := lookup(rec, n.Fields[FieldTimestamp]); ok {
		t.TimestampMs = parseTimestampMs(v)
	}

	return t, nil
}

func (n *Normalizer) str(rec Record, f Field) string {
	s, _ := lookupString(rec, n.Fields[f])
	return s
}

func (n *Normalizer) tokenInfo(rec Record) Record {
	for _, key := range n.TokenInfoKeys {
		if m, ok := rec[key].(map[string]any); ok && len(m) > 0 {
			return Record(m)
		}
	}
	return nil
}

// lookup returns the first present, non-empty value among keys.
func lookup(rec Record, keys []string) (any, bool) {
	for _, key := range keys {
		v, ok := rec[key]
		if !ok || isEmpty(v) {
			continue
		}
		return v, true
	}
	return nil, false
}

func lookupString(rec Record, keys []string) (string, bool) {
	v, ok := lookup(rec, keys)
	if !ok {
		return "", false
	}
	return stringValue(v), true
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case json.Number:
		f, err := x.Float64()
		return x == "" || (err == nil && f == 0)
	case float64:
		return x == 0
	case int:
		return x == 0
	case int64:
		return x == 0
	case *big.Int:
		return x == nil || x.Sign() == 0
	case bool:
		return !x
	case map[string]any:
		return len(x) == 0
	case []any:
		return len(x) == 0
	}
	return false
}

func stringValue(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case *big.Int:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// parseRawAmount coerces a provider amount into a non-negative integer,
// defaulting to zero.
func parseRawAmount(v any) *big.Int {
	r, ok := new(big.Rat).SetString(stringValue(v))
	if !ok || r.Sign() <= 0 {
		return new(big.Int)
	}
	return new(big.Int).Quo(r.Num(), r.Denom())
}

// parseTimestampMs coerces a provider timestamp into epoch milliseconds.
func parseTimestampMs(v any) int64 {
	r, ok := new(big.Rat).SetString(stringValue(v))
	if !ok || r.Sign() <= 0 {
		return 0
	}
	i := new(big.Int).Quo(r.Num(), r.Denom())
	if !i.IsInt64() {
		return 0
	}
	ts := i.Int64()
	if ts < secondsCutoff {
		ts *= 1000
	}
	return ts
}
