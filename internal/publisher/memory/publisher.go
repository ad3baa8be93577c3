// Package memory contains an in-memory publisher for tests and local runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sync"
)

// Publisher stores published payloads for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
}

// PublishedMessage captures one publish call as it would go over the wire.
type PublishedMessage struct {
	ID         string
	Topic      string
	Data       []byte
	Attributes map[string]string
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish encodes the payload as JSON, records it and returns a pseudo ID.
// Payloads with an Attributes method contribute message attributes.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	var attrs map[string]string
	if a, ok := payload.(interface{ Attributes() map[string]string }); ok {
		attrs = maps.Clone(a.Attributes())
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	id := fmt.Sprintf("memory-%d", len(p.messages)+1)
	p.messages = append(p.messages, PublishedMessage{ID: id, Topic: topic, Data: data, Attributes: attrs})
	return id, nil
}

// Messages returns the recorded publishes.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}
