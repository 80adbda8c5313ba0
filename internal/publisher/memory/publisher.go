// Package memory records published messages in process, for tests and
// single-node deployments without a broker.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/hadith-ingest/internal/publisher"
)

// Publisher stores published payloads for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
}

var _ publisher.Publisher = (*Publisher)(nil)

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	Topic      string
	Payload    any
	Attributes map[string]string
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the message and returns a sequential ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, PublishedMessage{
		Topic:      topic,
		Payload:    payload,
		Attributes: publisher.AttributesOf(payload),
	})
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns the recorded publishes.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
