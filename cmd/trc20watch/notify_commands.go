package main

import (
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/trc20watch/service/notify"
)

func testNotifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "test",
		Usage: "Check the bot token and channel, then send a test message",
		Description: `Verify the Telegram setup the watcher depends on:
1. getMe validates the bot token
2. getChat confirms the bot can see the channel
3. sendMessage posts an HTML test message

Example:
  trc20watch notify test --telegram-channel-id @payments`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "message",
				Usage: "Text of the test message",
				Value: "Test message from trc20watch",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Only run getMe and getChat",
			},
		},
		Action: func(c *cli.Context) error {
			token := c.String("telegram-bot-token")
			channelID := c.String("telegram-channel-id")
			if token == "" {
				return fmt.Errorf("telegram-bot-token is required (set TELEGRAM_BOT_TOKEN env var or use --telegram-bot-token)")
			}
			if channelID == "" {
				return fmt.Errorf("telegram-channel-id is required (set TELEGRAM_CHANNEL_ID env var or use --telegram-channel-id)")
			}

			ctx, cancel := commandContext(c)
			defer cancel()

			out := c.App.Writer
			tg, err := notify.NewTelegram(c.String("telegram-api-url"), token,
				&http.Client{Timeout: notify.DefaultTelegramTimeout}, cliLogger())
			if err != nil {
				return err
			}

			bot, err := tg.GetMe(ctx)
			if err != nil {
				return fmt.Errorf("bot token rejected: %w", err)
			}
			fmt.Fprintf(out, "✓ Bot authorized: @%s (id %d)\n", bot.Username, bot.ID)

			chat, err := tg.GetChat(ctx, channelID)
			if err != nil {
				return fmt.Errorf("channel %s not reachable: %w", channelID, err)
			}
			fmt.Fprintf(out, "✓ Channel reachable: %s (%s, id %d)\n", chat.Title, chat.Type, chat.ID)

			if c.Bool("dry-run") {
				return nil
			}

			msg := fmt.Sprintf("🧪 <b>%s</b>\n\n<i>Sent at %s</i>",
				html.EscapeString(c.String("message")),
				time.Now().Format("2006-01-02 15:04:05"),
			)
			if err := tg.Send(ctx, channelID, msg); err != nil {
				return fmt.Errorf("failed to send test message: %w", err)
			}
			fmt.Fprintf(out, "✓ Test message sent\n")
			return nil
		},
	}
}
