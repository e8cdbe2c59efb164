package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"

	natspkg "github.com/brojonat/trc20watch/service/nats"
)

// subscribeCommand subscribes to transfer events for a watched address.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to transfer events for a watched address",
		ArgsUsage: "[watch_address]",
		Description: `Subscribe to transfer events published to NATS JetStream by the watcher.

Events are published to the subject: transfers.{watch_address}
Without an argument the --watch-address flag (WATCH_ADDRESS) is used.

Example:
  trc20watch nats subscribe TCKV8GCJcEzQWYi8c3yFGPvMa1UkUDYZ57 --json`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "trc20watch-cli",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Replay every retained event instead of only new ones",
			},
		},
		Action: func(c *cli.Context) error {
			address := c.Args().First()
			if address == "" {
				address = c.String("watch-address")
			}
			if address == "" {
				return fmt.Errorf("watch address is required")
			}
			if c.Bool("durable") && c.String("consumer-name") == "" {
				return fmt.Errorf("consumer-name is required for a durable consumer")
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return streamTransfers(ctx, c.App.Writer, streamOptions{
				address:      address,
				natsURL:      c.String("nats-url"),
				durable:      c.Bool("durable"),
				consumerName: c.String("consumer-name"),
				replayAll:    c.Bool("all"),
				jsonOutput:   c.Bool("json"),
			})
		},
	}
}

type streamOptions struct {
	address      string
	natsURL      string
	durable      bool
	consumerName string
	replayAll    bool
	jsonOutput   bool
}

// streamTransfers connects to NATS and prints transfer events until ctx ends.
func streamTransfers(ctx context.Context, out io.Writer, opts streamOptions) error {
	nc, err := natspkg.Connect(opts.natsURL, "trc20watch-cli")
	if err != nil {
		return err
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	subject := natspkg.Subject(opts.address)

	if !opts.jsonOutput {
		fmt.Fprintf(out, "📡 Subscribing to: %s\n", subject)
		fmt.Fprintf(out, "   NATS: %s\n", opts.natsURL)
		if opts.durable {
			fmt.Fprintf(out, "   Consumer: %s (durable)\n", opts.consumerName)
		}
		fmt.Fprintf(out, "\nWaiting for transfers... (Ctrl-C to exit)\n\n")
	}

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	}
	if opts.replayAll {
		consumerConfig.DeliverPolicy = jetstream.DeliverAllPolicy
	}
	if opts.durable {
		consumerConfig.Durable = opts.consumerName
		consumerConfig.Name = opts.consumerName
	}

	cons, err := js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	msgChan := make(chan jetstream.Msg, 10)
	consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
		msgChan <- msg
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer consumeCtx.Stop()

	count := 0
	for {
		select {
		case msg := <-msgChan:
			var event natspkg.TransferEvent
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				if !opts.jsonOutput {
					fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
				}
				msg.Ack()
				continue
			}

			count++
			if opts.jsonOutput {
				data, _ := json.Marshal(event)
				fmt.Fprintln(out, string(data))
			} else {
				printTransferEvent(out, count, &event)
			}
			msg.Ack()

		case <-ctx.Done():
			if !opts.jsonOutput {
				fmt.Fprintf(out, "\n\n✅ Received %d transfers\n", count)
			}
			return nil
		}
	}
}

func printTransferEvent(out io.Writer, n int, event *natspkg.TransferEvent) {
	delivered := "yes"
	if !event.Delivered {
		delivered = "no (" + event.DeliveryErr + ")"
	}
	fmt.Fprintf(out, "─────────────────────────────────────────────────────\n")
	fmt.Fprintf(out, "Transfer #%d\n", n)
	fmt.Fprintf(out, "─────────────────────────────────────────────────────\n")
	fmt.Fprintf(out, "Transaction:  %s\n", event.TransactionID)
	fmt.Fprintf(out, "Wallet:       %s\n", event.WatchAddress)
	fmt.Fprintf(out, "From:         %s\n", event.FromAddress)
	fmt.Fprintf(out, "Amount:       %s %s\n", event.Amount, event.TokenSymbol)
	if event.BlockTime != nil {
		fmt.Fprintf(out, "Block Time:   %s\n", event.BlockTime.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "Delivered:    %s\n", delivered)
	fmt.Fprintf(out, "Published:    %s\n", event.PublishedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "\n")
}

// inspectStreamCommand shows information about the NATS JetStream stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the TRANSFERS JetStream stream",
		Action: func(c *cli.Context) error {
			ctx, cancel := commandContext(c)
			defer cancel()

			nc, err := natspkg.Connect(c.String("nats-url"), "trc20watch-cli")
			if err != nil {
				return err
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			stream, err := js.Stream(ctx, natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}

			info, err := stream.Info(ctx)
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, info)
			}

			out := c.App.Writer
			fmt.Fprintf(out, "Stream: %s\n", info.Config.Name)
			fmt.Fprintf(out, "─────────────────────────────────────────────────────\n")
			fmt.Fprintf(out, "Description:  %s\n", info.Config.Description)
			fmt.Fprintf(out, "Subjects:     %v\n", info.Config.Subjects)
			fmt.Fprintf(out, "Messages:     %d\n", info.State.Msgs)
			fmt.Fprintf(out, "Bytes:        %d\n", info.State.Bytes)
			fmt.Fprintf(out, "First Seq:    %d\n", info.State.FirstSeq)
			fmt.Fprintf(out, "Last Seq:     %d\n", info.State.LastSeq)
			fmt.Fprintf(out, "Consumers:    %d\n", info.State.Consumers)
			fmt.Fprintf(out, "Max Age:      %s\n", info.Config.MaxAge)
			fmt.Fprintf(out, "Storage:      %s\n", info.Config.Storage)
			return nil
		},
	}
}
