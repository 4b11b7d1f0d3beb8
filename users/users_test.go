package users_test

import (
	"testing"

	"github.com/jrsteele09/go-oidc-connector/users"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	hash, err := users.HashPassword("s3cret-Pass")
	require.NoError(t, err)
	require.NotEqual(t, "s3cret-Pass", hash)

	require.True(t, users.CheckPasswordHash("s3cret-Pass", hash))
	require.False(t, users.CheckPasswordHash("wrong", hash))
}

func TestUser_UsesExternalAuth(t *testing.T) {
	u := &users.User{AuthMethod: users.AuthMethodExternal}
	require.True(t, u.UsesExternalAuth())

	u.AuthMethod = users.AuthMethodPassword
	require.False(t, u.UsesExternalAuth())
}
