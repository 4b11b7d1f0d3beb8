// Package authstatetest holds the behaviour every authstate.Repo must share.
package authstatetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-oidc-connector/authstate"
	rperrors "github.com/jrsteele09/go-oidc-connector/internal/errors"
	"github.com/stretchr/testify/require"
)

// RunRepoContract exercises newRepo against the authstate.Repo contract.
func RunRepoContract(t *testing.T, newRepo func(t *testing.T) authstate.Repo) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("take returns and removes", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, &authstate.AuthState{State: "s1", Nonce: "n1", CodeVerifier: "v1", CreatedAt: base}))

		got, err := repo.Take(ctx, "s1")
		require.NoError(t, err)
		require.Equal(t, "s1", got.State)
		require.Equal(t, "n1", got.Nonce)
		require.Equal(t, "v1", got.CodeVerifier)
		require.True(t, base.Equal(got.CreatedAt), "created at %v", got.CreatedAt)

		_, err = repo.Take(ctx, "s1")
		require.ErrorIs(t, err, rperrors.ErrNotFound)
	})

	t.Run("take unknown", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Take(ctx, "never-issued")
		require.ErrorIs(t, err, rperrors.ErrNotFound)
	})

	t.Run("concurrent take has one winner", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, &authstate.AuthState{State: "race", Nonce: "n", CreatedAt: base}))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := repo.Take(ctx, "race"); err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		require.Equal(t, int32(1), wins.Load())
	})

	t.Run("delete created before", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Insert(ctx, &authstate.AuthState{State: "old-1", Nonce: "n", CreatedAt: base.Add(-10 * time.Minute)}))
		require.NoError(t, repo.Insert(ctx, &authstate.AuthState{State: "old-2", Nonce: "n", CreatedAt: base.Add(-6 * time.Minute)}))
		require.NoError(t, repo.Insert(ctx, &authstate.AuthState{State: "fresh", Nonce: "n", CreatedAt: base.Add(-time.Minute)}))

		removed, err := repo.DeleteCreatedBefore(ctx, base.Add(-5*time.Minute))
		require.NoError(t, err)
		require.Equal(t, 2, removed)

		_, err = repo.Take(ctx, "old-1")
		require.ErrorIs(t, err, rperrors.ErrNotFound)
		_, err = repo.Take(ctx, "old-2")
		require.ErrorIs(t, err, rperrors.ErrNotFound)
		_, err = repo.Take(ctx, "fresh")
		require.NoError(t, err)

		removed, err = repo.DeleteCreatedBefore(ctx, base.Add(-5*time.Minute))
		require.NoError(t, err)
		require.Zero(t, removed)
	})

	t.Run("delete created before is exact within a millisecond", func(t *testing.T) {
		repo := newRepo(t)
		cutoff := base.Add(500 * time.Microsecond).Add(500)
		require.NoError(t, repo.Insert(ctx, &authstate.AuthState{State: "same-ms-before", Nonce: "n", CreatedAt: base.Add(100 * time.Microsecond)}))
		require.NoError(t, repo.Insert(ctx, &authstate.AuthState{State: "same-us-before", Nonce: "n", CreatedAt: base.Add(500 * time.Microsecond).Add(100)}))
		require.NoError(t, repo.Insert(ctx, &authstate.AuthState{State: "same-us-at", Nonce: "n", CreatedAt: cutoff}))
		require.NoError(t, repo.Insert(ctx, &authstate.AuthState{State: "same-us-after", Nonce: "n", CreatedAt: base.Add(500 * time.Microsecond).Add(900)}))
		require.NoError(t, repo.Insert(ctx, &authstate.AuthState{State: "same-ms-after", Nonce: "n", CreatedAt: base.Add(900 * time.Microsecond)}))

		removed, err := repo.DeleteCreatedBefore(ctx, cutoff)
		require.NoError(t, err)
		require.Equal(t, 2, removed)

		for _, state := range []string{"same-ms-before", "same-us-before"} {
			_, err = repo.Take(ctx, state)
			require.ErrorIs(t, err, rperrors.ErrNotFound, state)
		}
		for _, state := range []string{"same-us-at", "same-us-after", "same-ms-after"} {
			_, err = repo.Take(ctx, state)
			require.NoError(t, err, state)
		}
	})
}
