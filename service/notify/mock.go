package notify

import (
	"context"
	"sync"
)

// Message is one message recorded by MockNotifier.
type Message struct {
	ChannelID string
	HTML      string
}

// MockNotifier is a mock implementation of Notifier for testing.
type MockNotifier struct {
	mu        sync.RWMutex
	sent      []Message
	attempts  int
	sendError error
	failures  int // sends left to fail; negative means every send
}

// NewMockNotifier creates a new mock notifier for testing.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{sent: make([]Message, 0)}
}

// Send records the message and returns any configured error.
// Failed attempts are counted but not recorded as sent.
func (m *MockNotifier) Send(ctx context.Context, channelID, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempts++
	if m.sendError != nil && m.failures != 0 {
		if m.failures > 0 {
			m.failures--
		}
		return m.sendError
	}

	m.sent = append(m.sent, Message{ChannelID: channelID, HTML: html})
	return nil
}

// SetSendError makes every subsequent Send fail with err. A nil err clears it.
func (m *MockNotifier) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendError = err
	m.failures = -1
}

// FailNext makes the next n sends fail with err, after which sends succeed.
func (m *MockNotifier) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendError = err
	m.failures = n
}

// GetSentMessages returns all successfully sent messages.
func (m *MockNotifier) GetSentMessages() []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to avoid race conditions
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}

// Attempts returns the number of Send calls, failed ones included.
func (m *MockNotifier) Attempts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attempts
}

// Reset clears recorded messages and errors.
func (m *MockNotifier) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = make([]Message, 0)
	m.attempts = 0
	m.sendError = nil
	m.failures = 0
}
