package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/trc20watch/service/config"
	"github.com/brojonat/trc20watch/service/dedup"
	"github.com/brojonat/trc20watch/service/transfer"
	"github.com/brojonat/trc20watch/service/tronscan"
)

// cliLogger only reports errors so command output stays readable.
func cliLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func commandContext(c *cli.Context) (context.Context, context.CancelFunc) {
	timeout := c.Duration("timeout")
	if timeout <= 0 {
		return context.WithCancel(c.Context)
	}
	return context.WithTimeout(c.Context, timeout)
}

// watchConfigFromFlags builds the watch config from the global flags.
func watchConfigFromFlags(c *cli.Context) (transfer.WatchConfig, error) {
	address := c.String("watch-address")
	if address == "" {
		return transfer.WatchConfig{}, fmt.Errorf("watch-address is required (set WATCH_ADDRESS env var or use --watch-address)")
	}
	if err := config.ValidateTronAddress(address); err != nil {
		return transfer.WatchConfig{}, fmt.Errorf("invalid watch address: %w", err)
	}

	decimals := c.Int("token-decimals")
	minRaw, ok := transfer.RawUnits(c.String("min-amount"), decimals)
	if !ok {
		return transfer.WatchConfig{}, fmt.Errorf("invalid min-amount %q", c.String("min-amount"))
	}

	return transfer.WatchConfig{
		WatchedAddress: address,
		TokenContract:  c.String("token-contract"),
		TokenSymbol:    c.String("token-symbol"),
		Decimals:       decimals,
		MinRawAmount:   minRaw,
	}, nil
}

func newTronscanClient(c *cli.Context, address string) (*tronscan.Client, error) {
	baseURL := c.String("tronscan-base-url")

	var candidates []tronscan.Candidate
	if path := c.String("candidates-file"); path != "" {
		var err error
		candidates, err = tronscan.LoadCandidatesFile(path, baseURL)
		if err != nil {
			return nil, err
		}
	}

	return tronscan.NewClient(tronscan.Options{
		BaseURL:    baseURL,
		Address:    address,
		Contract:   c.String("token-contract"),
		APIKey:     c.String("tronscan-api-key"),
		Timeout:    c.Duration("tronscan-timeout"),
		Candidates: candidates,
	}, nil, cliLogger()), nil
}

func openStore(ctx context.Context, c *cli.Context, address string) (dedup.Store, error) {
	return dedup.Open(ctx, dedup.Options{
		Backend:     c.String("store-backend"),
		Path:        c.String("store-path"),
		DatabaseURL: c.String("database-url"),
		RedisURL:    c.String("redis-url"),
		Address:     address,
	}, cliLogger())
}

// outputJSON writes v as indented JSON to the app writer.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// compileJQ parses and compiles a jq filter.
func compileJQ(filter string) (*gojq.Code, error) {
	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}
	return code, nil
}

// runJQ evaluates code against a decoded provider body and collects every
// emitted value.
func runJQ(code *gojq.Code, body any) ([]any, error) {
	var out []any
	iter := code.Run(tronscan.ToJQValue(body))
	for {
		v, ok := iter.Next()
		if !ok {
			return out, nil
		}
		if err, isErr := v.(error); isErr {
			if err, ok := err.(*gojq.HaltError); ok && err.Value() == nil {
				return out, nil
			}
			return nil, fmt.Errorf("jq filter failed: %w", err)
		}
		out = append(out, v)
	}
}

// toJSONValue round-trips v through JSON so structs can be queried with jq.
func toJSONValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// printWithJQ prints v as JSON, filtered through the --jq flag when set.
func printWithJQ(c *cli.Context, v any) error {
	w := c.App.Writer
	filter := c.String("jq")
	if filter == "" {
		return outputJSON(w, v)
	}

	code, err := compileJQ(filter)
	if err != nil {
		return err
	}
	body, err := toJSONValue(v)
	if err != nil {
		return err
	}
	results, err := runJQ(code, body)
	if err != nil {
		return err
	}
	for _, r := range results {
		if err := outputJSON(w, r); err != nil {
			return err
		}
	}
	return nil
}
