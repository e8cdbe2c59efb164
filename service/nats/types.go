package nats

import (
	"time"

	"github.com/brojonat/trc20watch/service/transfer"
)

// TransferEvent represents a notified transfer published to NATS.
// This is published to the subject "transfers.{watch_address}" in JetStream.
type TransferEvent struct {
	// Transfer identifiers
	TransactionID string `json:"transaction_id"`
	TokenContract string `json:"token_contract,omitempty"`
	TokenSymbol   string `json:"token_symbol"`

	// Wallet information
	WatchAddress string `json:"watch_address"` // Destination/receiver wallet
	FromAddress  string `json:"from_address,omitempty"`

	// Transfer details
	RawAmount string `json:"raw_amount"` // smallest units, decimal string
	Amount    string `json:"amount"`     // token units, fixed decimals
	Decimals  int    `json:"decimals"`

	// Timing information
	BlockTime *time.Time `json:"block_time,omitempty"`

	// Delivery metadata
	Delivered   bool      `json:"delivered"`
	DeliveryErr string    `json:"delivery_error,omitempty"`
	CycleID     string    `json:"cycle_id,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// FromTransfer converts a classified transfer to a TransferEvent for publishing.
func FromTransfer(t *transfer.Transfer, w transfer.WatchConfig, deliveryErr error, cycleID string) *TransferEvent {
	event := &TransferEvent{
		TransactionID: t.ID,
		TokenContract: t.TokenContract,
		TokenSymbol:   w.TokenSymbol,
		WatchAddress:  w.WatchedAddress,
		FromAddress:   t.FromAddress,
		RawAmount:     "0",
		Amount:        t.FormatAmount(w.Decimals, w.Decimals),
		Decimals:      w.Decimals,
		Delivered:     deliveryErr == nil,
		CycleID:       cycleID,
		PublishedAt:   time.Now().UTC(),
	}

	if t.RawAmount != nil {
		event.RawAmount = t.RawAmount.String()
	}
	if ts := t.Time(); !ts.IsZero() {
		ts = ts.UTC()
		event.BlockTime = &ts
	}
	if deliveryErr != nil {
		event.DeliveryErr = deliveryErr.Error()
	}

	return event
}
