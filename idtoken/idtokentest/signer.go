// Package idtokentest mints signed identity tokens for tests.
package idtokentest

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/require"
)

// KeyID is the kid header set on every token minted by a Signer.
const KeyID = "test-key"

// Signer holds an RSA key and signs claim sets with RS256.
type Signer struct {
	key    *rsa.PrivateKey
	signer jose.Signer
}

// NewSigner generates a fresh key pair.
func NewSigner(t testing.TB) *Signer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", KeyID),
	)
	require.NoError(t, err)
	return &Signer{key: key, signer: signer}
}

// Sign serialises claims as a compact JWS.
func (s *Signer) Sign(t testing.TB, claims map[string]any) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	require.NoError(t, err)

	jws, err := s.signer.Sign(payload)
	require.NoError(t, err)
	raw, err := jws.CompactSerialize()
	require.NoError(t, err)
	return raw
}

// PublicKeys returns the verification key for a StaticKeySet.
func (s *Signer) PublicKeys() []crypto.PublicKey {
	return []crypto.PublicKey{&s.key.PublicKey}
}

// JWKS returns the public key as a JSON Web Key Set document.
func (s *Signer) JWKS() jose.JSONWebKeySet {
	return jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &s.key.PublicKey,
		KeyID:     KeyID,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}}}
}

// ServeJWKS starts an httptest server publishing the key set at /jwks and
// a discovery document at /.well-known/openid-configuration.
func (s *Signer) ServeJWKS(t testing.TB) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.JWKS())
	})
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 srv.URL,
			"authorization_endpoint": srv.URL + "/authorize",
			"token_endpoint":         srv.URL + "/token",
			"jwks_uri":               srv.URL + "/jwks",
		})
	})
	t.Cleanup(srv.Close)
	return srv
}

// Unsigned builds an alg=none token carrying claims.
func Unsigned(t testing.TB, claims map[string]any) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + "."
}
