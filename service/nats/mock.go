package nats

import (
	"context"
	"sync"
)

// MockPublisher records transfer events in memory. Like the JetStream stream,
// it drops a second event for a transaction id it has already stored.
type MockPublisher struct {
	mu         sync.Mutex
	events     []*TransferEvent
	bySubject  map[string]int
	msgIDs     map[string]bool
	duplicates int
	err        error
	closed     bool
}

// NewMockPublisher returns an empty MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		bySubject: make(map[string]int),
		msgIDs:    make(map[string]bool),
	}
}

// PublishTransfer stores event unless an error is configured or its
// transaction id was already published.
func (m *MockPublisher) PublishTransfer(ctx context.Context, event *TransferEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	if m.msgIDs[event.TransactionID] {
		m.duplicates++
		return nil
	}
	m.msgIDs[event.TransactionID] = true
	m.bySubject[Subject(event.WatchAddress)]++
	m.events = append(m.events, event)
	return nil
}

func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetPublishedEvents returns a copy of the stored events in publish order.
func (m *MockPublisher) GetPublishedEvents() []*TransferEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*TransferEvent(nil), m.events...)
}

// SubjectCount returns how many events were stored for a subject.
func (m *MockPublisher) SubjectCount(subject string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bySubject[subject]
}

// Duplicates returns how many publishes were dropped as repeats.
func (m *MockPublisher) Duplicates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duplicates
}

// SetPublishError makes every following publish fail with err (nil clears it).
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockPublisher) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
