// Package tokentest holds the behaviour every token.Repo must share.
package tokentest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	rperrors "github.com/jrsteele09/go-oidc-connector/internal/errors"
	"github.com/jrsteele09/go-oidc-connector/token"
	"github.com/stretchr/testify/require"
)

// NewRecord returns a populated record for externalID and username.
func NewRecord(externalID, username string) *token.Record {
	now := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	return &token.Record{
		ExternalID:   externalID,
		Username:     username,
		Scope:        "openid profile",
		Resource:     "https://graph.example.com",
		AuthCode:     "code-" + externalID,
		AccessToken:  "at-" + externalID,
		RefreshToken: "rt-" + externalID,
		IDToken:      "id-" + externalID,
		Expiry:       now.Add(time.Hour),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// RunRepoContract exercises newRepo against the token.Repo contract.
func RunRepoContract(t *testing.T, newRepo func(t *testing.T) token.Repo) {
	t.Helper()
	ctx := context.Background()

	t.Run("create and get by both keys", func(t *testing.T) {
		repo := newRepo(t)
		want := NewRecord("ext-1", "alice")
		require.NoError(t, repo.Create(ctx, want))

		got, err := repo.GetByExternalID(ctx, "ext-1")
		require.NoError(t, err)
		requireRecordEqual(t, want, got)

		got, err = repo.GetByUsername(ctx, "alice")
		require.NoError(t, err)
		requireRecordEqual(t, want, got)
	})

	t.Run("get missing", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetByExternalID(ctx, "nope")
		require.ErrorIs(t, err, rperrors.ErrNotFound)
		_, err = repo.GetByUsername(ctx, "nope")
		require.ErrorIs(t, err, rperrors.ErrNotFound)
	})

	t.Run("unique external id", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, NewRecord("ext-1", "alice")))
		err := repo.Create(ctx, NewRecord("ext-1", "bob"))
		require.ErrorIs(t, err, rperrors.ErrAlreadyExists)

		_, err = repo.GetByUsername(ctx, "bob")
		require.ErrorIs(t, err, rperrors.ErrNotFound)
	})

	t.Run("unique username", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, NewRecord("ext-1", "alice")))
		err := repo.Create(ctx, NewRecord("ext-2", "alice"))
		require.ErrorIs(t, err, rperrors.ErrAlreadyExists)

		_, err = repo.GetByExternalID(ctx, "ext-2")
		require.ErrorIs(t, err, rperrors.ErrNotFound)
	})

	t.Run("update rotates tokens in place", func(t *testing.T) {
		repo := newRepo(t)
		original := NewRecord("ext-1", "alice")
		require.NoError(t, repo.Create(ctx, original))

		rotated := *original
		rotated.Username = "ignored"
		rotated.AuthCode = "code-2"
		rotated.AccessToken = "at-2"
		rotated.RefreshToken = "rt-2"
		rotated.IDToken = "id-2"
		rotated.Expiry = original.Expiry.Add(time.Hour)
		rotated.UpdatedAt = original.UpdatedAt.Add(time.Minute)
		require.NoError(t, repo.Update(ctx, &rotated))

		got, err := repo.GetByExternalID(ctx, "ext-1")
		require.NoError(t, err)
		require.Equal(t, "alice", got.Username)
		require.Equal(t, "code-2", got.AuthCode)
		require.Equal(t, "at-2", got.AccessToken)
		require.Equal(t, "rt-2", got.RefreshToken)
		require.Equal(t, "id-2", got.IDToken)
		require.True(t, rotated.Expiry.Equal(got.Expiry))
		require.True(t, rotated.UpdatedAt.Equal(got.UpdatedAt))
		require.True(t, original.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("update missing", func(t *testing.T) {
		repo := newRepo(t)
		err := repo.Update(ctx, NewRecord("ext-9", "zed"))
		require.ErrorIs(t, err, rperrors.ErrNotFound)
	})

	t.Run("delete by username", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, NewRecord("ext-1", "alice")))
		require.NoError(t, repo.DeleteByUsername(ctx, "alice"))

		_, err := repo.GetByExternalID(ctx, "ext-1")
		require.ErrorIs(t, err, rperrors.ErrNotFound)
		require.NoError(t, repo.DeleteByUsername(ctx, "alice"), "delete is idempotent")

		require.NoError(t, repo.Create(ctx, NewRecord("ext-1", "alice")), "keys are free again")
	})

	t.Run("delete by external id", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, NewRecord("ext-1", "alice")))
		require.NoError(t, repo.DeleteByExternalID(ctx, "ext-1"))

		_, err := repo.GetByUsername(ctx, "alice")
		require.ErrorIs(t, err, rperrors.ErrNotFound)
		require.NoError(t, repo.DeleteByExternalID(ctx, "ext-1"))
	})

	t.Run("concurrent create has one winner", func(t *testing.T) {
		repo := newRepo(t)

		var wins, unexpected atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := repo.Create(ctx, NewRecord("ext-race", fmt.Sprintf("user-%d", i)))
				if err == nil {
					wins.Add(1)
					return
				}
				if !rperrors.Is(err, rperrors.ErrAlreadyExists) {
					unexpected.Add(1)
				}
			}(i)
		}
		wg.Wait()
		require.Equal(t, int32(1), wins.Load())
		require.Zero(t, unexpected.Load())
	})
}

func requireRecordEqual(t *testing.T, want, got *token.Record) {
	t.Helper()
	require.Equal(t, want.ExternalID, got.ExternalID)
	require.Equal(t, want.Username, got.Username)
	require.Equal(t, want.Scope, got.Scope)
	require.Equal(t, want.Resource, got.Resource)
	require.Equal(t, want.AuthCode, got.AuthCode)
	require.Equal(t, want.AccessToken, got.AccessToken)
	require.Equal(t, want.RefreshToken, got.RefreshToken)
	require.Equal(t, want.IDToken, got.IDToken)
	require.True(t, want.Expiry.Equal(got.Expiry), "expiry %v != %v", want.Expiry, got.Expiry)
	require.True(t, want.CreatedAt.Equal(got.CreatedAt))
	require.True(t, want.UpdatedAt.Equal(got.UpdatedAt))
}
