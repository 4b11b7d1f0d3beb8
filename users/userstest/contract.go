// Package userstest holds the behaviour every users.Repo must share.
package userstest

import (
	"context"
	"testing"
	"time"

	rperrors "github.com/jrsteele09/go-oidc-connector/internal/errors"
	"github.com/jrsteele09/go-oidc-connector/users"
	"github.com/stretchr/testify/require"
)

// NewUser returns a populated password account.
func NewUser(username string) *users.User {
	return &users.User{
		Username:   username,
		Email:      username + "@example.com",
		FirstName:  "First",
		LastName:   "Last",
		AuthMethod: users.AuthMethodPassword,
		CreatedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// RunRepoContract exercises newRepo against the users.Repo contract.
func RunRepoContract(t *testing.T, newRepo func(t *testing.T) users.Repo) {
	t.Helper()
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		repo := newRepo(t)
		want := NewUser("alice")
		require.NoError(t, repo.Create(ctx, want))
		require.NotEmpty(t, want.ID)

		got, err := repo.GetByUsername(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, want.ID, got.ID)
		require.Equal(t, "alice@example.com", got.Email)
		require.Equal(t, "First", got.FirstName)
		require.Equal(t, "Last", got.LastName)
		require.Equal(t, users.AuthMethodPassword, got.AuthMethod)
		require.False(t, got.Suspended)
		require.True(t, want.CreatedAt.Equal(got.CreatedAt))

		ok, err := repo.Exists(ctx, "alice")
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = repo.Exists(ctx, "bob")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("duplicate username", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, NewUser("alice")))
		require.ErrorIs(t, repo.Create(ctx, NewUser("alice")), rperrors.ErrAlreadyExists)
	})

	t.Run("missing user", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetByUsername(ctx, "ghost")
		require.ErrorIs(t, err, rperrors.ErrNotFound)
		require.ErrorIs(t, repo.SetAuthMethod(ctx, "ghost", users.AuthMethodExternal), rperrors.ErrNotFound)
		require.ErrorIs(t, repo.SetPassword(ctx, "ghost", "", "hash"), rperrors.ErrNotFound)
		require.ErrorIs(t, repo.RecordLogin(ctx, "ghost", time.Now()), rperrors.ErrNotFound)
	})

	t.Run("set auth method and record login", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, NewUser("alice")))
		require.NoError(t, repo.SetAuthMethod(ctx, "alice", users.AuthMethodExternal))

		at := time.Date(2026, 4, 5, 6, 7, 8, 0, time.UTC)
		require.NoError(t, repo.RecordLogin(ctx, "alice", at))

		got, err := repo.GetByUsername(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, users.AuthMethodExternal, got.AuthMethod)
		require.True(t, at.Equal(got.LastLogin))
	})

	t.Run("set password keeps username", func(t *testing.T) {
		repo := newRepo(t)
		u := NewUser("alice")
		u.AuthMethod = users.AuthMethodExternal
		require.NoError(t, repo.Create(ctx, u))
		require.NoError(t, repo.SetPassword(ctx, "alice", "", "hash-1"))

		got, err := repo.GetByUsername(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, "hash-1", got.PasswordHash)
		require.Equal(t, users.AuthMethodPassword, got.AuthMethod)
	})

	t.Run("set password renames", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, NewUser("abc123")))
		require.NoError(t, repo.SetPassword(ctx, "abc123", "alice", "hash-1"))

		_, err := repo.GetByUsername(ctx, "abc123")
		require.ErrorIs(t, err, rperrors.ErrNotFound)
		got, err := repo.GetByUsername(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, "hash-1", got.PasswordHash)
	})

	t.Run("set password rename collision", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, NewUser("abc123")))
		require.NoError(t, repo.Create(ctx, NewUser("alice")))

		err := repo.SetPassword(ctx, "abc123", "alice", "hash-1")
		require.ErrorIs(t, err, rperrors.ErrUsernameTaken)

		got, err := repo.GetByUsername(ctx, "abc123")
		require.NoError(t, err)
		require.Empty(t, got.PasswordHash)
	})

	t.Run("delete", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, NewUser("alice")))
		require.NoError(t, repo.Delete(ctx, "alice"))
		require.NoError(t, repo.Delete(ctx, "alice"))

		ok, err := repo.Exists(ctx, "alice")
		require.NoError(t, err)
		require.False(t, ok)
	})
}
