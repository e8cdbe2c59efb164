// Package notify delivers formatted transfer notifications to a chat channel.
package notify

import (
	"context"
)

// Notifier delivers one HTML-formatted message to a channel. The markup may
// use <b>, <i>, <code> and <a href>. A nil error means the message was accepted.
type Notifier interface {
	Send(ctx context.Context, channelID, html string) error
}
