package notify

import (
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/brojonat/trc20watch/service/transfer"
)

// DefaultExplorerURL is the Tronscan web UI root used for links.
const DefaultExplorerURL = "https://tronscan.org/#"

const (
	timeLayout   = "2006-01-02 15:04:05"
	unknownValue = "unknown"
)

// Formatter renders notification bodies.
type Formatter interface {
	Transfer(t *transfer.Transfer, w transfer.WatchConfig) string
	Startup(w transfer.WatchConfig, now time.Time) string
}

// HTMLFormatter renders messages with the Telegram HTML subset.
type HTMLFormatter struct {
	ExplorerURL string
	Location    *time.Location // nil means time.Local
}

// NewHTMLFormatter creates a formatter linking to explorerURL.
func NewHTMLFormatter(explorerURL string) *HTMLFormatter {
	explorerURL = strings.TrimRight(explorerURL, "/")
	if explorerURL == "" {
		explorerURL = DefaultExplorerURL
	}
	return &HTMLFormatter{ExplorerURL: explorerURL}
}

// Transfer renders the payment message for one transfer.
func (f *HTMLFormatter) Transfer(t *transfer.Transfer, w transfer.WatchConfig) string {
	to := t.ToAddress
	if to == "" {
		to = w.WatchedAddress
	}
	from := t.FromAddress
	if from == "" {
		from = unknownValue
	}
	when := unknownValue
	if ts := t.Time(); !ts.IsZero() {
		when = f.format(ts)
	}

	var b strings.Builder
	b.WriteString("💰 <b>New payment received!</b>\n\n")
	fmt.Fprintf(&b, "📊 <b>Amount:</b> %s %s\n", t.FormatAmount(w.Decimals, 2), html.EscapeString(w.TokenSymbol))
	fmt.Fprintf(&b, "📥 <b>Received on:</b> <code>%s</code>\n", html.EscapeString(to))
	fmt.Fprintf(&b, "📤 <b>Sent from:</b> <code>%s</code>\n", html.EscapeString(from))
	fmt.Fprintf(&b, "🕐 <b>Time:</b> %s\n", when)
	fmt.Fprintf(&b, "🔗 <a href=\"%s\">View transaction</a>", html.EscapeString(f.TransactionURL(t.ID)))
	return b.String()
}

// Startup renders the message sent once when the watcher starts.
func (f *HTMLFormatter) Startup(w transfer.WatchConfig, now time.Time) string {
	var b strings.Builder
	b.WriteString("✅ <b>Watcher started!</b>\n\n")
	fmt.Fprintf(&b, "📍 <b>Address:</b> <code>%s</code>\n", html.EscapeString(w.WatchedAddress))
	fmt.Fprintf(&b, "💵 <b>Token:</b> %s, minimum %s\n",
		html.EscapeString(w.TokenSymbol),
		(&transfer.Transfer{RawAmount: w.MinRawAmount}).FormatAmount(w.Decimals, 2),
	)
	fmt.Fprintf(&b, "⏱️ <b>Interval:</b> %s\n", w.PollInterval)
	fmt.Fprintf(&b, "🕐 <b>Time:</b> %s\n", f.format(now))
	fmt.Fprintf(&b, "🔗 <a href=\"%s\">View transfers</a>", html.EscapeString(f.AddressURL(w.WatchedAddress)))
	return b.String()
}

// TransactionURL links to a transaction in the explorer.
func (f *HTMLFormatter) TransactionURL(hash string) string {
	return f.ExplorerURL + "/transaction/" + url.PathEscape(hash)
}

// AddressURL links to the transfers tab of an address in the explorer.
func (f *HTMLFormatter) AddressURL(address string) string {
	return f.ExplorerURL + "/address/" + url.PathEscape(address) + "/transfers"
}

func (f *HTMLFormatter) format(t time.Time) string {
	loc := f.Location
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(timeLayout)
}
