package mocks

import (
	"context"
	"sync"
)

// MockPublisher records published events for testing
type MockPublisher struct {
	mu sync.Mutex

	PublishCalls []PublishCall
	PublishErr   error
}

// PublishCall records parameters passed to Publish
type PublishCall struct {
	Key       string
	EventType string
	Payload   any
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (p *MockPublisher) Publish(ctx context.Context, key, eventType string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.PublishCalls = append(p.PublishCalls, PublishCall{Key: key, EventType: eventType, Payload: payload})
	return p.PublishErr
}

func (p *MockPublisher) Calls() []PublishCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PublishCall(nil), p.PublishCalls...)
}
