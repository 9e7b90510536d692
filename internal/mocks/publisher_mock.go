package mocks

import (
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockPublisher is a mock type for the Publisher type
type MockPublisher struct {
	mock.Mock
}

// Publish provides a mock function with given fields: sessionID, eventType, payload
func (_m *MockPublisher) Publish(sessionID, eventType string, payload interface{}) {
	_m.Called(sessionID, eventType, payload)
}

// NewMockPublisher creates a new instance of MockPublisher. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockPublisher(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockPublisher {
	m := &MockPublisher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// PublishedEvent - событие, записанное RecordingPublisher.
type PublishedEvent struct {
	SessionID string
	Type      string
	Payload   interface{}
}

// RecordingPublisher запоминает все опубликованные события по порядку.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []PublishedEvent
}

func (p *RecordingPublisher) Publish(sessionID, eventType string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, PublishedEvent{SessionID: sessionID, Type: eventType, Payload: payload})
}

// Events возвращает копию записанных событий.
func (p *RecordingPublisher) Events() []PublishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PublishedEvent, len(p.events))
	copy(out, p.events)
	return out
}

// Types возвращает типы записанных событий.
func (p *RecordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// OfType возвращает события заданного типа.
func (p *RecordingPublisher) OfType(eventType string) []PublishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []PublishedEvent
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
