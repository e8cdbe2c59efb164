package tronscan

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math/big"
	"slices"
	"strconv"

	"github.com/brojonat/trc20watch/service/transfer"
	"github.com/itchyny/gojq"
)

// Keys probed, in order, for the record list of an object response.
var listKeys = []string{"data", "transfers"}

var (
	errNoList    = errors.New("response has no record list")
	errEmptyList = errors.New("record list is empty")
)

// locateRecords finds the record list in a decoded response body.
// A top-level array is the list itself. For an object the first present key in
// listKeys wins, even when its value is empty. Otherwise the first value, in
// key order, that is a non-empty array of objects with at least one carrying a
// known identifier key is used.
func locateRecords(body any, idKeys []string) ([]transfer.Record, error) {
	switch v := body.(type) {
	case []any:
		return toRecords(v)
	case map[string]any:
		for _, key := range listKeys {
			if val, ok := v[key]; ok {
				list, _ := val.([]any)
				return toRecords(list)
			}
		}
		for _, key := range slices.Sorted(maps.Keys(v)) {
			list, ok := v[key].([]any)
			if !ok || len(list) == 0 {
				continue
			}
			recs, err := toRecords(list)
			if err != nil || !anyHasKey(recs, idKeys) {
				continue
			}
			return recs, nil
		}
		return nil, errNoList
	default:
		return nil, errNoList
	}
}

// queryRecords evaluates a jq expression against the body and returns the first
// result that is a non-empty array of objects.
func queryRecords(body any, expr string) ([]transfer.Record, error) {
	q, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid records query %q: %w", expr, err)
	}
	code, err := gojq.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("failed to compile records query %q: %w", expr, err)
	}

	iter := code.Run(toJQValue(body))
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			var haltErr *gojq.HaltError
			if errors.As(err, &haltErr) && haltErr.Value() == nil {
				break
			}
			return nil, fmt.Errorf("records query failed: %w", err)
		}
		list, ok := v.([]any)
		if !ok || len(list) == 0 {
			continue
		}
		if recs, err := toRecords(list); err == nil {
			return recs, nil
		}
	}
	return nil, errEmptyList
}

func toRecords(list []any) ([]transfer.Record, error) {
	if len(list) == 0 {
		return nil, errEmptyList
	}
	recs := make([]transfer.Record, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			recs = append(recs, transfer.Record(m))
		}
	}
	if len(recs) == 0 {
		return nil, errNoList
	}
	return recs, nil
}

func anyHasKey(recs []transfer.Record, keys []string) bool {
	for _, rec := range recs {
		for _, k := range keys {
			if _, ok := rec[k]; ok {
				return true
			}
		}
	}
	return false
}

// toJQValue converts decoded JSON into the value types gojq accepts.
// json.Number becomes int, *big.Int or float64 so large amounts keep precision.
func toJQValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := strconv.Atoi(x.String()); err == nil {
			return i
		}
		if b, ok := new(big.Int).SetString(x.String(), 10); ok {
			return b
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = toJQValue(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = toJQValue(val)
		}
		return out
	default:
		return v
	}
}

// ToJQValue exposes the conversion for callers that run their own queries
// over provider responses.
func ToJQValue(v any) any {
	return toJQValue(v)
}
