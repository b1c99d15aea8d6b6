package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// MockNATSClient is an in-memory broker with natsclient.Client's
// Publish/Subscribe signatures. Subjects match exactly; wildcards are not
// supported. Thread-safe.
type MockNATSClient struct {
	mu            sync.RWMutex
	messages      map[string][][]byte
	subscriptions map[string][]*mockSub
	nextID        int
	closed        bool
}

type mockSub struct {
	id      int
	handler func(subject string, data []byte)
}

// NewMockNATSClient creates a new mock NATS client.
func NewMockNATSClient() *MockNATSClient {
	return &MockNATSClient{
		messages:      make(map[string][][]byte),
		subscriptions: make(map[string][]*mockSub),
	}
}

// Publish records data and delivers it synchronously to subscribers.
func (c *MockNATSClient) Publish(_ context.Context, subject string, data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("client is closed")
	}
	c.messages[subject] = append(c.messages[subject], data)

	// Call handlers outside the lock
	handlers := append([]*mockSub(nil), c.subscriptions[subject]...)
	c.mu.Unlock()

	for _, s := range handlers {
		s.handler(subject, data)
	}
	return nil
}

// Subscribe registers handler for subject and returns its unsubscribe func.
func (c *MockNATSClient) Subscribe(subject string, handler func(subject string, data []byte)) (func() error, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("client is closed")
	}

	c.nextID++
	sub := &mockSub{id: c.nextID, handler: handler}
	c.subscriptions[subject] = append(c.subscriptions[subject], sub)

	return func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		subs := c.subscriptions[subject]
		for i, s := range subs {
			if s.id == sub.id {
				c.subscriptions[subject] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		return nil
	}, nil
}

// GetMessages returns a copy of everything published on subject.
func (c *MockNATSClient) GetMessages(subject string) [][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()

	msgs := c.messages[subject]
	if msgs == nil {
		return nil
	}
	result := make([][]byte, len(msgs))
	copy(result, msgs)
	return result
}

// SubscriberCount returns the live subscriptions on subject.
func (c *MockNATSClient) SubscriberCount(subject string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscriptions[subject])
}

// WaitForMessage waits until subject has at least one message.
func (c *MockNATSClient) WaitForMessage(t testing.TB, subject string, timeout time.Duration) [][]byte {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if msgs := c.GetMessages(subject); len(msgs) > 0 {
			return msgs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no message on %s within %s", subject, timeout)
	return nil
}

// Close rejects further publishes and drops subscriptions.
func (c *MockNATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.subscriptions = make(map[string][]*mockSub)
}

// NATSConn wraps a MockNATSClient for callers that close with a context.
// Closing it closes the shared mock.
type NATSConn struct {
	*MockNATSClient
}

// Close closes the underlying mock.
func (c NATSConn) Close(context.Context) error {
	c.MockNATSClient.Close()
	return nil
}
