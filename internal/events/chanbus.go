package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// ChanBus is an in-process Bus used when no NATS URL is configured and in
// tests. Delivery is asynchronous, matching the broker's semantics.
type ChanBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	wg       sync.WaitGroup
	closed   bool
}

// NewChanBus creates an in-process event bus.
func NewChanBus() *ChanBus {
	return &ChanBus{handlers: make(map[string][]Handler)}
}

// Publish marshals the payload and dispatches it to subscribed handlers.
func (b *ChanBus) Publish(_ context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", subject, err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("event bus is closed")
	}

	for _, h := range b.handlers[subject] {
		h := h
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			h(context.Background(), subject, data)
		}()
	}
	return nil
}

// Subscribe registers a handler for the subject.
func (b *ChanBus) Subscribe(subject string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[subject] = append(b.handlers[subject], h)
	return nil
}

// Close waits for in-flight handlers to finish.
func (b *ChanBus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}
