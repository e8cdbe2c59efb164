package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/trc20watch/client"
)

func statusClient(c *cli.Context) (*client.Client, error) {
	serverURL := c.String("server-url")
	if serverURL == "" {
		return nil, fmt.Errorf("server-url is required (set SERVER_URL env var or use --server-url)")
	}
	return client.NewClient(serverURL, &http.Client{Timeout: 10 * time.Second}, cliLogger()), nil
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check watcher health",
		Action: func(c *cli.Context) error {
			cl, err := statusClient(c)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(c)
			defer cancel()

			if err := cl.Health(ctx); err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}

			fmt.Fprintf(c.App.Writer, "✓ Watcher is healthy\n")
			fmt.Fprintf(c.App.Writer, "  URL: %s\n", c.String("server-url"))
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the ingestion loop status of a running watcher",
		Action: func(c *cli.Context) error {
			cl, err := statusClient(c)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(c)
			defer cancel()

			status, err := cl.Status(ctx)
			if err != nil && !errors.Is(err, client.ErrNotReady) {
				return err
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, status)
			}

			out := c.App.Writer
			state := "ready"
			if !status.Ready {
				state = "starting"
			}
			fmt.Fprintf(out, "Watcher:            %s (%s)\n", status.WatchAddress, state)
			fmt.Fprintf(out, "Token:              %s %s, minimum %s\n", status.TokenSymbol, status.TokenContract, status.MinAmount)
			fmt.Fprintf(out, "Poll interval:      %s\n", status.PollInterval)
			fmt.Fprintf(out, "Start of interest:  %s\n", formatOptionalTime(status.StartOfInterest))
			fmt.Fprintf(out, "Seen transactions:  %d\n", status.SeenCount)
			fmt.Fprintf(out, "Cycles run:         %d\n", status.CyclesRun)
			fmt.Fprintf(out, "Last cycle:         %s (%s, fetched %d)\n",
				formatOptionalTime(status.LastCycleAt), status.LastCycleStatus, status.LastFetched)
			fmt.Fprintf(out, "Notified:           %d\n", status.NotifiedTotal)
			fmt.Fprintf(out, "Send failures:      %d\n", status.SendFailuresTotal)
			fmt.Fprintf(out, "Persist failures:   %d\n", status.PersistFailures)
			return nil
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			fmt.Fprintf(c.App.Writer, "trc20watch CLI\n")
			fmt.Fprintf(c.App.Writer, "  Version: %s\n", version)
			fmt.Fprintf(c.App.Writer, "  Commit:  %s\n", commit)
			fmt.Fprintf(c.App.Writer, "  Built:   %s\n", date)
			return nil
		},
	}
}
