package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/trc20watch/service/config"
	"github.com/brojonat/trc20watch/service/dedup"
	"github.com/brojonat/trc20watch/service/notify"
	"github.com/brojonat/trc20watch/service/tronscan"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "trc20watch",
		Usage: "TRC20 payment watcher CLI",
		Description: `A command-line tool for debugging the trc20watch service.

Use this CLI to probe the Tronscan API, inspect the dedup store, test the
Telegram channel, tail published transfer events and query a running watcher.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Tronscan diagnostics
			{
				Name:  "tronscan",
				Usage: "Tronscan API diagnostics",
				Subcommands: []*cli.Command{
					lastTransferCommand(),
					lookupTransactionCommand(),
					candidatesCommand(),
				},
			},
			// Dedup store inspection
			{
				Name:  "store",
				Usage: "Dedup store inspection commands",
				Subcommands: []*cli.Command{
					showStoreCommand(),
				},
			},
			// Notifier checks
			{
				Name:  "notify",
				Usage: "Telegram notifier commands",
				Subcommands: []*cli.Command{
					testNotifyCommand(),
				},
			},
			// NATS transfer streaming commands
			{
				Name:  "nats",
				Usage: "NATS transfer streaming commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
					inspectStreamCommand(),
				},
			},
			// Running watcher commands
			{
				Name:  "server",
				Usage: "Commands against a running watcher",
				Subcommands: []*cli.Command{
					healthCommand(),
					statusCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "watch-address",
				Usage:   "TRON address being watched",
				EnvVars: []string{"WATCH_ADDRESS"},
			},
			&cli.StringFlag{
				Name:    "token-contract",
				Usage:   "TRC20 token contract",
				EnvVars: []string{"TOKEN_CONTRACT"},
				Value:   config.USDTContract,
			},
			&cli.StringFlag{
				Name:    "token-symbol",
				Usage:   "Token symbol, used when a record has no contract",
				EnvVars: []string{"TOKEN_SYMBOL"},
				Value:   "USDT",
			},
			&cli.IntFlag{
				Name:    "token-decimals",
				Usage:   "Token decimals",
				EnvVars: []string{"TOKEN_DECIMALS"},
				Value:   6,
			},
			&cli.StringFlag{
				Name:    "min-amount",
				Usage:   "Minimum amount in token units",
				EnvVars: []string{"MIN_NOTIFY_AMOUNT"},
				Value:   "1.0",
			},
			&cli.StringFlag{
				Name:    "tronscan-base-url",
				Usage:   "Tronscan API base URL",
				EnvVars: []string{"TRONSCAN_BASE_URL"},
				Value:   tronscan.DefaultBaseURL,
			},
			&cli.StringFlag{
				Name:    "tronscan-api-key",
				Usage:   "Tronscan API key",
				EnvVars: []string{"TRONSCAN_API_KEY"},
			},
			&cli.DurationFlag{
				Name:    "tronscan-timeout",
				Usage:   "Per-request Tronscan timeout",
				EnvVars: []string{"TRONSCAN_TIMEOUT"},
				Value:   tronscan.DefaultTimeout,
			},
			&cli.StringFlag{
				Name:    "candidates-file",
				Usage:   "YAML file with the Tronscan candidate list",
				EnvVars: []string{"TRONSCAN_CANDIDATES_FILE"},
			},
			&cli.StringFlag{
				Name:    "store-backend",
				Usage:   "Dedup store backend (file, postgres, redis)",
				EnvVars: []string{"STORE_BACKEND"},
				Value:   config.StoreFile,
			},
			&cli.StringFlag{
				Name:    "store-path",
				Usage:   "Dedup file path",
				EnvVars: []string{"STORE_PATH"},
				Value:   dedup.DefaultFilePath,
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis connection URL",
				EnvVars: []string{"REDIS_URL"},
			},
			&cli.StringFlag{
				Name:    "telegram-bot-token",
				Usage:   "Telegram bot token",
				EnvVars: []string{"TELEGRAM_BOT_TOKEN"},
			},
			&cli.StringFlag{
				Name:    "telegram-channel-id",
				Usage:   "Telegram channel id or @username",
				EnvVars: []string{"TELEGRAM_CHANNEL_ID"},
			},
			&cli.StringFlag{
				Name:    "telegram-api-url",
				Usage:   "Telegram Bot API base URL",
				EnvVars: []string{"TELEGRAM_API_URL"},
				Value:   notify.DefaultTelegramAPIURL,
			},
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Watcher status server URL",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:9091",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Overall command timeout",
				Value: 60 * time.Second,
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}
}
