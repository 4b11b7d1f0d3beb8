package idp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/jrsteele09/go-oidc-connector/idp"
	rperrors "github.com/jrsteele09/go-oidc-connector/internal/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type testFixture struct {
	server   *httptest.Server
	client   *idp.Client
	lastForm url.Values
	handler  http.HandlerFunc
}

func setupTestFixture(t *testing.T, handler http.HandlerFunc, opts ...idp.ClientOption) *testFixture {
	t.Helper()
	f := &testFixture{handler: handler}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		f.lastForm = r.PostForm
		f.handler(w, r)
	}))
	t.Cleanup(f.server.Close)

	cfg := idp.ProviderConfig{
		ClientID:      "client-1",
		ClientSecret:  "secret-1",
		AuthEndpoint:  f.server.URL + "/authorize",
		TokenEndpoint: f.server.URL + "/token",
		RedirectURI:   "https://rp.example.com/auth/oidc/callback",
		Resource:      "https://graph.example.com",
	}
	client, err := idp.NewClient(cfg, opts...)
	require.NoError(t, err)
	f.client = client
	return f
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestExchangeCode_Success(t *testing.T) {
	f := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "at-1",
			"refresh_token": "rt-1",
			"id_token":      "a.b.c",
			"token_type":    "Bearer",
			"scope":         "openid profile",
			"expires_on":    "1900000000",
		})
	})

	resp, err := f.client.ExchangeCode(context.Background(), "code-1", "verifier-1")
	require.NoError(t, err)
	require.Equal(t, "at-1", resp.AccessToken)
	require.Equal(t, "rt-1", resp.RefreshToken)
	require.Equal(t, "a.b.c", resp.IDToken)
	require.Equal(t, "openid profile", resp.Scope)
	require.Equal(t, "https://graph.example.com", resp.Resource)
	require.Equal(t, time.Unix(1900000000, 0).UTC(), resp.ExpiresOn)

	require.Equal(t, "authorization_code", f.lastForm.Get("grant_type"))
	require.Equal(t, "code-1", f.lastForm.Get("code"))
	require.Equal(t, "client-1", f.lastForm.Get("client_id"))
	require.Equal(t, "secret-1", f.lastForm.Get("client_secret"))
	require.Equal(t, "https://rp.example.com/auth/oidc/callback", f.lastForm.Get("redirect_uri"))
	require.Equal(t, "https://graph.example.com", f.lastForm.Get("resource"))
	require.Equal(t, "verifier-1", f.lastForm.Get("code_verifier"))
}

func TestExchangeCode_ExpiresOnNumber(t *testing.T) {
	f := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "at",
			"id_token":     "a.b.c",
			"token_type":   "Bearer",
			"expires_on":   1900000123,
		})
	})

	resp, err := f.client.ExchangeCode(context.Background(), "code", "")
	require.NoError(t, err)
	require.Equal(t, time.Unix(1900000123, 0).UTC(), resp.ExpiresOn)
}

func TestExchangeCode_ExpiresInFallback(t *testing.T) {
	f := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "at",
			"id_token":     "a.b.c",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})

	before := time.Now()
	resp, err := f.client.ExchangeCode(context.Background(), "code", "")
	require.NoError(t, err)
	require.WithinDuration(t, before.Add(time.Hour), resp.ExpiresOn, time.Minute)
}

func TestExchangeCode_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name: "invalid grant",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
			},
			want: rperrors.ErrTokenRequestFailed,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			want: rperrors.ErrTokenRequestFailed,
		},
		{
			name: "unparseable body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte("{not json"))
			},
			want: rperrors.ErrMalformedTokenResponse,
		},
		{
			name: "missing id token",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{"access_token": "at", "token_type": "Bearer"})
			},
			want: rperrors.ErrMalformedTokenResponse,
		},
		{
			name: "missing access token",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{"id_token": "a.b.c"})
			},
			want: rperrors.ErrMalformedTokenResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t, tt.handler)
			_, err := f.client.ExchangeCode(context.Background(), "code", "")
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestExchangeCode_TransportFailure(t *testing.T) {
	f := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {})
	f.server.Close()

	_, err := f.client.ExchangeCode(context.Background(), "code", "")
	require.ErrorIs(t, err, rperrors.ErrTokenRequestFailed)
}

func TestExchangeCode_Timeout(t *testing.T) {
	release := make(chan struct{})
	f := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, idp.WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	defer close(release)

	_, err := f.client.ExchangeCode(context.Background(), "code", "")
	require.ErrorIs(t, err, rperrors.ErrTokenRequestFailed)
}

func TestExchangeCode_EmptyCode(t *testing.T) {
	calls := 0
	f := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) { calls++ })

	_, err := f.client.ExchangeCode(context.Background(), "", "verifier-1")
	require.ErrorIs(t, err, rperrors.ErrAuthorizationCodeMissing)
	require.Zero(t, calls)
}

func TestClient_AuthorizationURL(t *testing.T) {
	f := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {})

	raw, err := f.client.AuthorizationURL("st", "nn", "verifier-1")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, idp.DefaultScope, q.Get("scope"))
	require.Equal(t, "https://graph.example.com", q.Get("resource"))
	require.Equal(t, "nn", q.Get("nonce"))
	require.Equal(t, oauth2.S256ChallengeFromVerifier("verifier-1"), q.Get("code_challenge"))
	require.Equal(t, "S256", q.Get("code_challenge_method"))

	raw, err = f.client.AuthorizationURL("st", "nn", "")
	require.NoError(t, err)
	u, err = url.Parse(raw)
	require.NoError(t, err)
	require.False(t, u.Query().Has("code_challenge"))
}

func TestExchangeCode_WithoutVerifier(t *testing.T) {
	f := setupTestFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "at-1",
			"id_token":     "a.b.c",
			"token_type":   "Bearer",
		})
	})

	_, err := f.client.ExchangeCode(context.Background(), "code-1", "")
	require.NoError(t, err)
	require.False(t, f.lastForm.Has("code_verifier"))
}

func TestNewClient_InvalidConfig(t *testing.T) {
	_, err := idp.NewClient(idp.ProviderConfig{ClientID: "x"})
	require.ErrorIs(t, err, rperrors.ErrConfigurationMissing)
	require.Contains(t, err.Error(), "tokenendpoint")
}
