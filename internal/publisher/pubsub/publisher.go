// Package pubsub publishes job notifications to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/JakeFAU/hadith-ingest/internal/publisher"
)

// Publisher wraps a Pub/Sub topic publisher. The topic argument to Publish
// is informational; messages go to the topic the publisher was built for.
type Publisher struct {
	publisher *pubsub.Publisher
}

var _ publisher.Publisher = (*Publisher)(nil)

// New creates a Publisher for the provided topic publisher.
func New(p *pubsub.Publisher) *Publisher {
	return &Publisher{publisher: p}
}

// Publish marshals the payload to JSON and waits for the server ID.
func (p *Publisher) Publish(ctx context.Context, _ string, payload any) (string, error) {
	if p.publisher == nil {
		return "", errors.New("pubsub publisher is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	result := p.publisher.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: publisher.AttributesOf(payload),
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Close flushes pending messages and stops the publisher's goroutines.
func (p *Publisher) Close() error {
	if p.publisher != nil {
		p.publisher.Stop()
	}
	return nil
}
