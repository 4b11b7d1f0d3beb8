package fakestaterepo

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-oidc-connector/authstate"
	rperrors "github.com/jrsteele09/go-oidc-connector/internal/errors"
	"github.com/pkg/errors"
)

var _ authstate.Repo = (*FakeStateRepo)(nil)

// FakeStateRepo is a thread-safe in-memory authstate.Repo.
type FakeStateRepo struct {
	mu     sync.Mutex
	states map[string]authstate.AuthState
}

func NewFakeStateRepo() *FakeStateRepo {
	return &FakeStateRepo{
		states: make(map[string]authstate.AuthState),
	}
}

func (r *FakeStateRepo) Insert(_ context.Context, authState *authstate.AuthState) error {
	if authState == nil {
		return errors.New("authState cannot be nil")
	}
	if authState.State == "" {
		return errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.states[authState.State]; exists {
		return rperrors.ErrAlreadyExists
	}
	// Store a copy to prevent external modifications
	r.states[authState.State] = *authState
	return nil
}

// Take reads and deletes under a single lock so that only one caller can win.
func (r *FakeStateRepo) Take(_ context.Context, state string) (*authstate.AuthState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	authState, exists := r.states[state]
	if !exists {
		return nil, rperrors.ErrNotFound
	}
	delete(r.states, state)
	return &authState, nil
}

func (r *FakeStateRepo) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for state, authState := range r.states {
		if authState.CreatedAt.Before(cutoff) {
			delete(r.states, state)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of stored states.
func (r *FakeStateRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}
