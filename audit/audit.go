// Package audit records security-relevant outcomes of the sign-in flows.
package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventType names what happened.
type EventType string

const (
	EventIdentityLinked   EventType = "identity-linked"
	EventUserLoggedIn     EventType = "user-logged-in"
	EventUserCreated      EventType = "user-created"
	EventUserLoginFailed  EventType = "user-login-failed"
	EventIdentityUnlinked EventType = "identity-unlinked"
)

// Event is one audit entry. Token material is never part of an event.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Username   string    `json:"username,omitempty"`
	ExternalID string    `json:"external_id,omitempty"`
	Provider   string    `json:"provider,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEvent stamps an event with an id and time.
func NewEvent(eventType EventType, at time.Time) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		OccurredAt: at,
	}
}

// Sink receives audit events.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// LogSink writes events to a zerolog logger.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "audit").Logger()}
}

func (s *LogSink) Emit(_ context.Context, event Event) error {
	entry := s.logger.Info()
	if event.Type == EventUserLoginFailed {
		entry = s.logger.Warn()
	}
	entry.
		Str("event_id", event.ID).
		Str("event", string(event.Type)).
		Str("username", event.Username).
		Str("external_id", event.ExternalID).
		Str("provider", event.Provider).
		Str("reason", event.Reason).
		Time("occurred_at", event.OccurredAt).
		Msg("audit")
	return nil
}

// MultiSink fans an event out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemorySink keeps events in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func (s *MemorySink) Emit(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of everything emitted so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Types returns the type of each emitted event, in order.
func (s *MemorySink) Types() []EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}
