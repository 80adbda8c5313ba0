// Package publisher defines how job notifications leave the process.
package publisher

import "context"

// Publisher sends a payload to a topic and returns the broker's message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
	Close() error
}

// Attributed payloads carry routing attributes alongside their body.
type Attributed interface {
	Attributes() map[string]string
}

// AttributesOf returns payload's attributes, or nil.
func AttributesOf(payload any) map[string]string {
	a, ok := payload.(Attributed)
	if !ok {
		return nil
	}
	src := a.Attributes()
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
