package idp_test

import (
	"net/url"
	"testing"

	"github.com/jrsteele09/go-oidc-connector/idp"
	rperrors "github.com/jrsteele09/go-oidc-connector/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestBuildAuthorizationURL(t *testing.T) {
	raw, err := idp.BuildAuthorizationURL(
		"client-1",
		"https://rp.example.com/cb",
		"https://idp.example.com/authorize",
		"state-1",
		"nonce-1",
		"openid profile",
	)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "idp.example.com", u.Host)
	require.Equal(t, "/authorize", u.Path)

	q := u.Query()
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, "client-1", q.Get("client_id"))
	require.Equal(t, "https://rp.example.com/cb", q.Get("redirect_uri"))
	require.Equal(t, "state-1", q.Get("state"))
	require.Equal(t, "nonce-1", q.Get("nonce"))
	require.Equal(t, "openid profile", q.Get("scope"))
}

func TestBuildAuthorizationURL_KeepsExistingQuery(t *testing.T) {
	raw, err := idp.BuildAuthorizationURL("c", "https://rp/cb", "https://idp.example.com/authorize?p=b2c_signin", "s", "n", "openid")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "b2c_signin", u.Query().Get("p"))
	require.Equal(t, "s", u.Query().Get("state"))
}

func TestBuildAuthorizationURL_Deterministic(t *testing.T) {
	a, err := idp.BuildAuthorizationURL("c", "https://rp/cb", "https://idp/authorize", "s", "n", "openid")
	require.NoError(t, err)
	b, err := idp.BuildAuthorizationURL("c", "https://rp/cb", "https://idp/authorize", "s", "n", "openid")
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestBuildAuthorizationURL_MissingConfig(t *testing.T) {
	tests := []struct {
		name     string
		clientID string
		endpoint string
	}{
		{name: "no endpoint", clientID: "c", endpoint: ""},
		{name: "no client id", clientID: "", endpoint: "https://idp/authorize"},
		{name: "relative endpoint", clientID: "c", endpoint: "/authorize"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := idp.BuildAuthorizationURL(tt.clientID, "https://rp/cb", tt.endpoint, "s", "n", "openid")
			require.ErrorIs(t, err, rperrors.ErrConfigurationMissing)
		})
	}
}

func TestProviderConfig_Defaults(t *testing.T) {
	cfg := idp.ProviderConfig{}
	require.Equal(t, idp.DefaultScope, cfg.ScopeOrDefault())
	require.Equal(t, "OpenID Connect", cfg.DisplayName())

	cfg.OPName = "Contoso"
	cfg.Scope = "openid"
	require.Equal(t, "openid", cfg.ScopeOrDefault())
	require.Equal(t, "Contoso", cfg.DisplayName())
}
