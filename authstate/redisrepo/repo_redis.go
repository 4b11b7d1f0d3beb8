package redisrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jrsteele09/go-oidc-connector/authstate"
	rperrors "github.com/jrsteele09/go-oidc-connector/internal/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyExpiry bounds how long a state key can outlive a missed purge.
const DefaultKeyExpiry = 2 * authstate.DefaultTTL

var _ authstate.Repo = (*Repo)(nil)

// Repo stores AuthState rows in Redis.
//
// Each state lives at "<prefix>:state:<state>" as JSON. A sorted set at
// "<prefix>:state-created" scored by creation time (unix micros) lets
// DeleteCreatedBefore find old rows without scanning the keyspace. Scores
// stay exact in a float64; the JSON value keeps full nanosecond precision
// for the cutoff comparison.
type Repo struct {
	client    redis.UniversalClient
	keyPrefix string
	keyExpiry time.Duration
}

// Option configures a Repo.
type Option func(*Repo)

// WithKeyExpiry sets the Redis TTL applied to every state key.
func WithKeyExpiry(d time.Duration) Option {
	return func(r *Repo) {
		if d > 0 {
			r.keyExpiry = d
		}
	}
}

// New creates a Repo using an already connected client.
func New(client redis.UniversalClient, keyPrefix string, opts ...Option) *Repo {
	r := &Repo{
		client:    client,
		keyPrefix: keyPrefix,
		keyExpiry: DefaultKeyExpiry,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewFromURL parses a redis:// URL, connects and pings.
func NewFromURL(ctx context.Context, redisURL, keyPrefix string, opts ...Option) (*Repo, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return New(client, keyPrefix, opts...), nil
}

// Close closes the Redis client connection.
func (r *Repo) Close() error {
	return r.client.Close()
}

func (r *Repo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

type storedState struct {
	Nonce        string `json:"nonce"`
	CodeVerifier string `json:"code_verifier,omitempty"`
	CreatedAt    int64  `json:"created_at"` // unix nanos
}

func (r *Repo) stateKey(state string) string {
	return r.keyPrefix + ":state:" + state
}

func (r *Repo) indexKey() string {
	return r.keyPrefix + ":state-created"
}

// Insert stores the state with SetNX so an existing state is never overwritten.
func (r *Repo) Insert(ctx context.Context, authState *authstate.AuthState) error {
	if authState == nil || authState.State == "" {
		return errors.New("state cannot be empty")
	}

	data, err := json.Marshal(storedState{
		Nonce:        authState.Nonce,
		CodeVerifier: authState.CodeVerifier,
		CreatedAt:    authState.CreatedAt.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	ok, err := r.client.SetNX(ctx, r.stateKey(authState.State), data, r.keyExpiry).Result()
	if err != nil {
		return fmt.Errorf("failed to store state: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: state already issued", rperrors.ErrAlreadyExists)
	}

	if err := r.client.ZAdd(ctx, r.indexKey(), redis.Z{
		Score:  float64(authState.CreatedAt.UnixMicro()),
		Member: authState.State,
	}).Err(); err != nil {
		return fmt.Errorf("failed to index state: %w", err)
	}
	return nil
}

// Take uses GETDEL: of two concurrent takers only one receives the value.
func (r *Repo) Take(ctx context.Context, state string) (*authstate.AuthState, error) {
	data, err := r.client.GetDel(ctx, r.stateKey(state)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, rperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to take state: %w", err)
	}
	_ = r.client.ZRem(ctx, r.indexKey(), state).Err()

	var stored storedState
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &authstate.AuthState{
		State:        state,
		Nonce:        stored.Nonce,
		CodeVerifier: stored.CodeVerifier,
		CreatedAt:    time.Unix(0, stored.CreatedAt).UTC(),
	}, nil
}

// DeleteCreatedBefore removes states created strictly before cutoff.
// Members scored in cutoff's own microsecond are compared at nanosecond
// precision against their stored value.
func (r *Repo) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	cutoffMicro := cutoff.UnixMicro()
	candidates, err := r.client.ZRangeByScoreWithScores(ctx, r.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoffMicro, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list expired states: %w", err)
	}

	var members []string
	for _, z := range candidates {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		if int64(z.Score) == cutoffMicro {
			before, err := r.createdBefore(ctx, member, cutoff)
			if err != nil {
				return 0, err
			}
			if !before {
				continue
			}
		}
		members = append(members, member)
	}
	if len(members) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(members))
	indexMembers := make([]any, 0, len(members))
	for _, m := range members {
		keys = append(keys, r.stateKey(m))
		indexMembers = append(indexMembers, m)
	}

	removed, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired states: %w", err)
	}
	if err := r.client.ZRem(ctx, r.indexKey(), indexMembers...).Err(); err != nil {
		return int(removed), fmt.Errorf("failed to clean state index: %w", err)
	}
	return int(removed), nil
}

// createdBefore reads the stored creation time of state. A state whose key
// is already gone counts as before, so its index entry is cleaned up.
func (r *Repo) createdBefore(ctx context.Context, state string, cutoff time.Time) (bool, error) {
	data, err := r.client.Get(ctx, r.stateKey(state)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return true, nil
		}
		return false, fmt.Errorf("failed to read state: %w", err)
	}
	var stored storedState
	if err := json.Unmarshal(data, &stored); err != nil {
		return false, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return stored.CreatedAt < cutoff.UnixNano(), nil
}
