package mocks

import (
	"context"
	"sync"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/realtime"
)

// PublishedEvent is one recorded Publish call
type PublishedEvent struct {
	Topic string
	Event model.Event
}

// Eviction is one recorded Evict call
type Eviction struct {
	Topic      string
	IdentityID model.IdentityID
}

// Publisher records published events and evictions for assertions
type Publisher struct {
	mu        sync.Mutex
	events    []PublishedEvent
	evictions []Eviction
}

// Ensure Publisher implements realtime.Publisher
var _ realtime.Publisher = (*Publisher)(nil)

// NewPublisher creates a recording publisher
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish records the event
func (p *Publisher) Publish(_ context.Context, topic string, event model.Event) {
	p.mu.Lock()
	p.events = append(p.events, PublishedEvent{Topic: topic, Event: event})
	p.mu.Unlock()
}

// Evict records the eviction
func (p *Publisher) Evict(_ context.Context, topic string, identityID model.IdentityID) {
	p.mu.Lock()
	p.evictions = append(p.evictions, Eviction{Topic: topic, IdentityID: identityID})
	p.mu.Unlock()
}

// Evictions returns every recorded eviction, in order
func (p *Publisher) Evictions() []Eviction {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Eviction(nil), p.evictions...)
}

// Events returns the events published to topic, in order
func (p *Publisher) Events(topic string) []model.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.Event
	for _, e := range p.events {
		if e.Topic == topic {
			out = append(out, e.Event)
		}
	}
	return out
}

// Types returns the types of the events published to topic, in order
func (p *Publisher) Types(topic string) []model.EventType {
	var out []model.EventType
	for _, e := range p.Events(topic) {
		out = append(out, e.Type)
	}
	return out
}

// Reset forgets every recorded event
func (p *Publisher) Reset() {
	p.mu.Lock()
	p.events = nil
	p.evictions = nil
	p.mu.Unlock()
}
