package tokenfakerepo_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/go-oidc-connector/token"
	tokenfakerepo "github.com/jrsteele09/go-oidc-connector/token/repofake"
	"github.com/jrsteele09/go-oidc-connector/token/tokentest"
	"github.com/stretchr/testify/require"
)

func TestFakeTokenRepo_Contract(t *testing.T) {
	tokentest.RunRepoContract(t, func(t *testing.T) token.Repo {
		return tokenfakerepo.NewFakeTokenRepo()
	})
}

func TestFakeTokenRepo_ReturnsCopies(t *testing.T) {
	repo := tokenfakerepo.NewFakeTokenRepo()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, tokentest.NewRecord("ext-1", "alice")))

	got, err := repo.GetByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	got.AccessToken = "mutated"

	again, err := repo.GetByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	require.Equal(t, "at-ext-1", again.AccessToken)
	require.Equal(t, 1, repo.Len())
}
