package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

// storeSummary is the printable view of a loaded dedup state.
type storeSummary struct {
	Backend           string     `json:"backend"`
	WatchAddress      string     `json:"watch_address,omitempty"`
	SeenCount         int        `json:"seen_count"`
	StartOfInterestMs int64      `json:"start_of_interest_ms"`
	StartOfInterest   *time.Time `json:"start_of_interest,omitempty"`
	LastUpdate        *time.Time `json:"last_update,omitempty"`
	IDs               []string   `json:"ids,omitempty"`
}

func showStoreCommand() *cli.Command {
	return &cli.Command{
		Name:    "show",
		Usage:   "Show the persisted dedup state",
		Aliases: []string{"cat"},
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Number of ids to print (0 prints none, -1 prints all)",
				Value:   20,
			},
		},
		Action: func(c *cli.Context) error {
			ctx, cancel := commandContext(c)
			defer cancel()

			address := c.String("watch-address")
			store, err := openStore(ctx, c, address)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer store.Close()

			state, err := store.Load(ctx)
			if err != nil {
				return fmt.Errorf("failed to load store: %w", err)
			}

			summary := storeSummary{
				Backend:           store.Backend(),
				WatchAddress:      address,
				SeenCount:         len(state.IDs),
				StartOfInterestMs: state.StartOfInterestMs,
			}
			if state.StartOfInterestMs > 0 {
				ts := time.UnixMilli(state.StartOfInterestMs).UTC()
				summary.StartOfInterest = &ts
			}
			if !state.LastUpdate.IsZero() {
				ts := state.LastUpdate.UTC()
				summary.LastUpdate = &ts
			}

			limit := c.Int("limit")
			switch {
			case limit < 0 || limit >= len(state.IDs):
				summary.IDs = state.IDs
			case limit > 0:
				summary.IDs = state.IDs[:limit]
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, summary)
			}

			out := c.App.Writer
			fmt.Fprintf(out, "Backend:            %s\n", summary.Backend)
			fmt.Fprintf(out, "Seen transactions:  %d\n", summary.SeenCount)
			fmt.Fprintf(out, "Start of interest:  %s\n", formatOptionalTime(summary.StartOfInterest))
			fmt.Fprintf(out, "Last update:        %s\n", formatOptionalTime(summary.LastUpdate))
			if len(summary.IDs) > 0 {
				fmt.Fprintf(out, "\n")
				for _, id := range summary.IDs {
					fmt.Fprintf(out, "  %s\n", id)
				}
				if len(summary.IDs) < summary.SeenCount {
					fmt.Fprintf(out, "  ... and %d more\n", summary.SeenCount-len(summary.IDs))
				}
			}
			return nil
		},
	}
}

// formatOptionalTime formats an optional timestamp.
func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}
