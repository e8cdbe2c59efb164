package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/trc20watch/service/dedup"
	"github.com/brojonat/trc20watch/service/transfer"
	"github.com/brojonat/trc20watch/service/tronscan"
)

// lastTransfer is the diagnostic report for the newest fetched record.
type lastTransfer struct {
	Candidates     int            `json:"candidates"`
	Fetched        int            `json:"fetched"`
	Unidentified   int            `json:"unidentified"`
	RawKeys        []string       `json:"raw_keys"`
	ID             string         `json:"id"`
	From           string         `json:"from"`
	To             string         `json:"to"`
	TokenContract  string         `json:"token_contract"`
	TokenSymbol    string         `json:"token_symbol"`
	TokenName      string         `json:"token_name"`
	RawAmount      string         `json:"raw_amount"`
	Amount         string         `json:"amount"`
	Time           *time.Time     `json:"time,omitempty"`
	Checks         transferChecks `json:"checks"`
	Verdict        string         `json:"verdict"`
	StoreBackend   string         `json:"store_backend,omitempty"`
	StoreLoadError string         `json:"store_load_error,omitempty"`
}

type transferChecks struct {
	IsToken        bool `json:"is_token"`
	ToWatched      bool `json:"to_watched_address"`
	AboveThreshold bool `json:"above_threshold"`
	Recent         bool `json:"recent"`
	AlreadySeen    bool `json:"already_seen"`
}

func lastTransferCommand() *cli.Command {
	return &cli.Command{
		Name:  "last",
		Usage: "Fetch the newest transfer and show every classifier check",
		Description: `Fetch transfers through the candidate list, normalize the first record that
carries a transaction id and report how the watcher would classify it, without
notifying or persisting. Records without an id are counted and skipped.

Example:
  trc20watch tronscan last --watch-address TCKV8GCJcEzQWYi8c3yFGPvMa1UkUDYZ57`,
		Action: func(c *cli.Context) error {
			ctx, cancel := commandContext(c)
			defer cancel()

			wc, err := watchConfigFromFlags(c)
			if err != nil {
				return err
			}
			tc, err := newTronscanClient(c, wc.WatchedAddress)
			if err != nil {
				return err
			}

			records := tc.FetchCandidates(ctx)
			if len(records) == 0 {
				return fmt.Errorf("no transfer records returned by any of %d candidates", len(tc.Candidates()))
			}

			normalizer := transfer.NewNormalizer()
			report := lastTransfer{
				Candidates: len(tc.Candidates()),
				Fetched:    len(records),
			}
			var rec transfer.Record
			for _, r := range records {
				if normalizer.HasIdentifier(r) {
					rec = r
					break
				}
				report.Unidentified++
			}
			if rec == nil {
				return fmt.Errorf("none of %d records carries a transaction id (keys %v): %w",
					len(records), records[0].Keys(15), transfer.ErrNoIdentifier)
			}
			report.RawKeys = rec.Keys(15)

			t, err := normalizer.Normalize(rec)
			if err != nil {
				return fmt.Errorf("newest record unusable (keys %v): %w", rec.Keys(15), err)
			}

			// The store is read only; a missing or unreachable store means nothing is seen.
			seen := dedup.NewSeenSet()
			if store, err := openStore(ctx, c, wc.WatchedAddress); err != nil {
				report.StoreLoadError = err.Error()
			} else {
				defer store.Close()
				report.StoreBackend = store.Backend()
				if state, err := store.Load(ctx); err != nil {
					report.StoreLoadError = err.Error()
				} else {
					seen = dedup.NewSeenSet(state.IDs...)
					wc = wc.WithStartOfInterest(state.StartOfInterestMs)
				}
			}

			describeTransfer(&report, t, wc, seen)

			if c.Bool("json") {
				return outputJSON(c.App.Writer, report)
			}
			printLastTransfer(c.App.Writer, report)
			return nil
		},
	}
}

// describeTransfer fills the report from a normalized transfer. The seen set
// is only consulted, never marked.
func describeTransfer(report *lastTransfer, t *transfer.Transfer, wc transfer.WatchConfig, seen *dedup.SeenSet) {
	cl := transfer.NewClassifier(wc, nil)

	report.ID = t.ID
	report.From = t.FromAddress
	report.To = t.ToAddress
	report.TokenContract = t.TokenContract
	report.TokenSymbol = t.TokenSymbol
	report.TokenName = t.TokenName
	report.RawAmount = t.RawAmount.String()
	report.Amount = t.FormatAmount(wc.Decimals, wc.Decimals)
	if ts := t.Time(); !ts.IsZero() {
		ts = ts.UTC()
		report.Time = &ts
	}

	report.Checks = transferChecks{
		IsToken:        cl.IsToken(t),
		ToWatched:      cl.IsToWatched(t),
		AboveThreshold: cl.MeetsThreshold(t),
		Recent:         cl.IsRecent(t),
		AlreadySeen:    seen.Contains(t.ID),
	}

	if report.Checks.AlreadySeen {
		report.Verdict = transfer.SkipDuplicate.String()
	} else {
		report.Verdict = cl.Evaluate(t).String()
	}
}

func printLastTransfer(out io.Writer, r lastTransfer) {
	when := "unknown"
	if r.Time != nil {
		when = r.Time.Format(time.RFC3339)
	}
	fmt.Fprintf(out, "Fetched %d record(s)\n", r.Fetched)
	if r.Unidentified > 0 {
		fmt.Fprintf(out, "Skipped %d record(s) without a transaction id\n", r.Unidentified)
	}
	fmt.Fprintf(out, "─────────────────────────────────────────────────────\n")
	fmt.Fprintf(out, "ID:           %s\n", r.ID)
	fmt.Fprintf(out, "From:         %s\n", r.From)
	fmt.Fprintf(out, "To:           %s\n", r.To)
	fmt.Fprintf(out, "Contract:     %s\n", r.TokenContract)
	fmt.Fprintf(out, "Symbol:       %s (%s)\n", r.TokenSymbol, r.TokenName)
	fmt.Fprintf(out, "Amount:       %s (raw %s)\n", r.Amount, r.RawAmount)
	fmt.Fprintf(out, "Time:         %s\n", when)
	fmt.Fprintf(out, "Raw keys:     %v\n", r.RawKeys)
	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "Is token:          %s\n", checkMark(r.Checks.IsToken))
	fmt.Fprintf(out, "To our address:    %s\n", checkMark(r.Checks.ToWatched))
	fmt.Fprintf(out, "Above threshold:   %s\n", checkMark(r.Checks.AboveThreshold))
	fmt.Fprintf(out, "Recent:            %s\n", checkMark(r.Checks.Recent))
	fmt.Fprintf(out, "Already seen:      %s\n", checkMark(r.Checks.AlreadySeen))
	fmt.Fprintf(out, "\nVerdict: %s\n", r.Verdict)
	if r.StoreLoadError != "" {
		fmt.Fprintf(out, "(store not read: %s)\n", r.StoreLoadError)
	}
}

func checkMark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}

func lookupTransactionCommand() *cli.Command {
	return &cli.Command{
		Name:      "tx",
		Usage:     "Look up a transaction by hash",
		ArgsUsage: "HASH",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq filter applied to the response body",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("transaction hash is required")
			}
			ctx, cancel := commandContext(c)
			defer cancel()

			tc, err := newTronscanClient(c, c.String("watch-address"))
			if err != nil {
				return err
			}

			result, err := tc.LookupTransaction(ctx, c.Args().First())
			if err != nil {
				return err
			}

			if !c.Bool("json") && c.String("jq") == "" {
				fmt.Fprintf(c.App.Writer, "Endpoint: %s\n", result.Endpoint)
			}
			return printWithJQ(c, result.Body)
		},
	}
}

// candidateProbe is the outcome of trying one candidate.
type candidateProbe struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Records int    `json:"records"`
	Error   string `json:"error,omitempty"`
}

func candidatesCommand() *cli.Command {
	return &cli.Command{
		Name:  "candidates",
		Usage: "Show the expanded candidate list, optionally probing each one",
		Description: `Print the ordered Tronscan candidate list in the YAML format accepted by
TRONSCAN_CANDIDATES_FILE. With --probe every candidate is requested once and
the number of located records is reported.

Example:
  trc20watch tronscan candidates --probe`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "probe",
				Usage: "Request every candidate and report the record count",
			},
		},
		Action: func(c *cli.Context) error {
			tc, err := newTronscanClient(c, c.String("watch-address"))
			if err != nil {
				return err
			}
			candidates := tc.Candidates()

			if !c.Bool("probe") {
				if c.Bool("json") {
					return outputJSON(c.App.Writer, candidates)
				}
				data, err := tronscan.MarshalCandidates(candidates)
				if err != nil {
					return fmt.Errorf("failed to render candidates: %w", err)
				}
				_, err = c.App.Writer.Write(data)
				return err
			}

			ctx, cancel := commandContext(c)
			defer cancel()

			probes := make([]candidateProbe, 0, len(candidates))
			for _, cand := range candidates {
				p := candidateProbe{Name: cand.Name, URL: cand.URL}
				recs, err := tc.TryCandidate(ctx, cand)
				if err != nil {
					p.Error = err.Error()
				}
				p.Records = len(recs)
				probes = append(probes, p)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, probes)
			}
			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CANDIDATE\tRECORDS\tERROR")
			for _, p := range probes {
				fmt.Fprintf(w, "%s\t%d\t%s\n", p.Name, p.Records, p.Error)
			}
			return w.Flush()
		},
	}
}
