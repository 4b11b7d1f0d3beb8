package authstate

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"time"

	rperrors "github.com/jrsteele09/go-oidc-connector/internal/errors"
	"github.com/pkg/errors"
)

const (
	// DefaultTTL is how long an issued state/nonce pair may wait for the IdP callback.
	DefaultTTL = 5 * time.Minute

	tokenByteLength = 32 // 256 bits, 43 base64url characters
)

// AuthState is a single-use state/nonce pair issued when an authorization
// request is started, together with the PKCE verifier for that request.
type AuthState struct {
	State        string    // Round-tripped through the IdP redirect (anti-CSRF)
	Nonce        string    // Bound into the identity token (anti-replay)
	CodeVerifier string    // PKCE verifier; its S256 challenge goes in the redirect
	CreatedAt    time.Time // When the pair was issued
}

// Repo persists AuthState rows.
type Repo interface {
	// Insert stores a new state row.
	Insert(ctx context.Context, authState *AuthState) error

	// Take atomically reads and deletes the row for state. Returns
	// errors.ErrNotFound when no row matches.
	Take(ctx context.Context, state string) (*AuthState, error)

	// DeleteCreatedBefore removes every row created before cutoff and
	// reports how many were removed.
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Store issues and validates state/nonce pairs.
type Store struct {
	repo    Repo
	ttl     time.Duration
	nowTime func() time.Time
	random  io.Reader
}

// StoreOption modifies a Store.
type StoreOption func(*Store)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithRandReader sets the entropy source used to generate state, nonce and verifier values.
func WithRandReader(r io.Reader) StoreOption {
	return func(s *Store) {
		s.random = r
	}
}

// NewStore creates a Store on top of repo.
func NewStore(repo Repo, options ...StoreOption) (*Store, error) {
	if repo == nil {
		return nil, errors.New("[authstate.NewStore] repo is required")
	}
	s := &Store{
		repo:    repo,
		ttl:     DefaultTTL,
		nowTime: time.Now,
		random:  rand.Reader,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// TTL returns the configured lifetime of an unconsumed state.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Issue generates a new state, nonce and code verifier and persists them.
func (s *Store) Issue(ctx context.Context) (*AuthState, error) {
	state, err := s.randomToken()
	if err != nil {
		return nil, errors.Wrap(err, "[Store.Issue] state")
	}
	nonce, err := s.randomToken()
	if err != nil {
		return nil, errors.Wrap(err, "[Store.Issue] nonce")
	}
	verifier, err := s.randomToken()
	if err != nil {
		return nil, errors.Wrap(err, "[Store.Issue] code verifier")
	}

	authState := &AuthState{
		State:        state,
		Nonce:        nonce,
		CodeVerifier: verifier,
		CreatedAt:    s.nowTime(),
	}
	if err := s.repo.Insert(ctx, authState); err != nil {
		return nil, errors.Wrap(err, "[Store.Issue] repo.Insert")
	}
	return authState, nil
}

// Consume claims state and returns what was issued with it. Never-issued,
// replayed and expired states all fail with ErrUnknownState.
func (s *Store) Consume(ctx context.Context, state string) (*AuthState, error) {
	if state == "" {
		return nil, rperrors.ErrUnknownState
	}

	authState, err := s.repo.Take(ctx, state)
	if err != nil {
		if errors.Is(err, rperrors.ErrNotFound) {
			return nil, rperrors.ErrUnknownState
		}
		return nil, errors.Wrap(err, "[Store.Consume] repo.Take")
	}

	if s.nowTime().Sub(authState.CreatedAt) > s.ttl {
		return nil, rperrors.ErrUnknownState
	}
	return authState, nil
}

// PurgeExpired deletes every state older than maxAge. A non-positive maxAge
// uses the store TTL.
func (s *Store) PurgeExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = s.ttl
	}
	removed, err := s.repo.DeleteCreatedBefore(ctx, s.nowTime().Add(-maxAge))
	if err != nil {
		return 0, errors.Wrap(err, "[Store.PurgeExpired] repo.DeleteCreatedBefore")
	}
	return removed, nil
}

func (s *Store) randomToken() (string, error) {
	b := make([]byte, tokenByteLength)
	if _, err := io.ReadFull(s.random, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
