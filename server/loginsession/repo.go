// Package loginsession holds the browser login sessions of the relying party.
package loginsession

import (
	"context"
	"time"
)

type Session struct {
	Username  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

type Repo interface {
	// Upsert creates or replaces the session stored under sessionID.
	Upsert(ctx context.Context, sessionID string, session Session) error
	// Get returns errors.ErrNotFound for unknown session ids.
	Get(ctx context.Context, sessionID string) (Session, error)
	// Delete removes the session, if present.
	Delete(ctx context.Context, sessionID string) error
	// DeleteExpired removes every session that has expired at now.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
