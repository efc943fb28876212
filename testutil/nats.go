package testutil

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pbosetti/mads-plugin/errors"
	"github.com/pbosetti/mads-plugin/natsclient"
)

// MockNATSClient is an in-memory stand-in for natsclient.Client: Publish, Subscribe
// and Close have the same signatures. Subscribers on the exact subject are called
// synchronously from Publish. Thread-safe.
type MockNATSClient struct {
	mu            sync.RWMutex
	messages      map[string][][]byte
	subscriptions map[string][]*mockSubscription
	closed        bool
}

type mockSubscription struct {
	client  *MockNATSClient
	subject string
	handler natsclient.MessageHandler
}

// Unsubscribe removes the handler from the mock
func (s *mockSubscription) Unsubscribe() error {
	c := s.client
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[s.subject] = slices.DeleteFunc(c.subscriptions[s.subject],
		func(other *mockSubscription) bool { return other == s })
	return nil
}

// NewMockNATSClient creates a new mock NATS client.
func NewMockNATSClient() *MockNATSClient {
	return &MockNATSClient{
		messages:      make(map[string][][]byte),
		subscriptions: make(map[string][]*mockSubscription),
	}
}

// Publish records data and delivers it to the subscribers of subject
func (c *MockNATSClient) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyClosed, "MockNATSClient", "Publish", "check client state")
	}
	c.messages[subject] = append(c.messages[subject], append([]byte(nil), data...))
	subs := slices.Clone(c.subscriptions[subject])
	c.mu.Unlock()

	// Handlers run outside the lock so they may publish in turn
	for _, sub := range subs {
		sub.handler(subject, data)
	}
	return nil
}

// Subscribe registers handler for subject. The queue group is ignored.
func (c *MockNATSClient) Subscribe(subject, _ string, handler natsclient.MessageHandler) (natsclient.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.WrapInvalid(errors.ErrAlreadyClosed, "MockNATSClient", "Subscribe", "check client state")
	}
	sub := &mockSubscription{client: c, subject: subject, handler: handler}
	c.subscriptions[subject] = append(c.subscriptions[subject], sub)
	return sub, nil
}

// Subscribers returns the number of live subscriptions on subject
func (c *MockNATSClient) Subscribers(subject string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscriptions[subject])
}

// GetMessages returns all messages published on subject
func (c *MockNATSClient) GetMessages(subject string) [][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.messages[subject])
}

// GetMessageCount returns the number of messages on a subject.
func (c *MockNATSClient) GetMessageCount(subject string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages[subject])
}

// Subjects returns the subjects that received messages, sorted
func (c *MockNATSClient) Subjects() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.messages))
	for s := range c.messages {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// Close closes the mock client.
func (c *MockNATSClient) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed returns whether the client is closed.
func (c *MockNATSClient) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// MemoryBackend is an in-memory store.Backend. Thread-safe.
type MemoryBackend struct {
	mu     sync.RWMutex
	data   map[string][]byte
	puts   int
	closed bool
}

// NewMemoryBackend creates an empty backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

// Kind names the backend
func (b *MemoryBackend) Kind() string { return "memory" }

// Put stores a copy of data
func (b *MemoryBackend) Put(_ context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = append([]byte(nil), data...)
	b.puts++
	return nil
}

// Get returns a copy of the data at key
func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	val, ok := b.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrKeyNotFound, key)
	}
	return append([]byte(nil), val...), nil
}

// List returns the keys with prefix, sorted
func (b *MemoryBackend) List(_ context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var keys []string
	for k := range b.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// Delete removes key
func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}

// Close marks the backend closed
func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Puts returns the number of writes
func (b *MemoryBackend) Puts() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.puts
}

// WaitForMessageCount waits for a specific number of messages (with timeout).
func WaitForMessageCount(t *testing.T, client *MockNATSClient, subject string, count int, timeout time.Duration) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if client.GetMessageCount(subject) >= count {
			return
		}
		select {
		case <-ctx.Done():
			got := client.GetMessageCount(subject)
			t.Fatalf("timeout waiting for %d messages on subject %s (got %d)", count, subject, got)
			return
		case <-ticker.C:
		}
	}
}
