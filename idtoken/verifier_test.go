package idtoken_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-oidc-connector/idtoken"
	"github.com/jrsteele09/go-oidc-connector/idtoken/idtokentest"
	rperrors "github.com/jrsteele09/go-oidc-connector/internal/errors"
	"github.com/stretchr/testify/require"
)

const (
	testClientID = "client-1"
	testIssuer   = "https://idp.example.com"
)

var testNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func validClaims() map[string]any {
	return map[string]any{
		"iss":   testIssuer,
		"aud":   testClientID,
		"sub":   "subject-1",
		"nonce": "nonce-1",
		"exp":   testNow.Add(time.Hour).Unix(),
		"iat":   testNow.Unix(),
	}
}

func setupStaticVerifier(t *testing.T) (*idtoken.Verifier, *idtokentest.Signer) {
	t.Helper()
	signer := idtokentest.NewSigner(t)
	v := idtoken.NewStaticVerifier(testClientID, testIssuer, signer.PublicKeys(), func() time.Time { return testNow })
	return v, signer
}

func TestVerifier_AcceptsSignedToken(t *testing.T) {
	v, signer := setupStaticVerifier(t)

	claims, err := v.Verify(context.Background(), signer.Sign(t, validClaims()))
	require.NoError(t, err)
	require.Equal(t, "subject-1", claims.Subject)
	require.Equal(t, "nonce-1", claims.Nonce)
}

func TestVerifier_Rejections(t *testing.T) {
	v, signer := setupStaticVerifier(t)
	other := idtokentest.NewSigner(t)

	tamper := func(raw string) string {
		parts := strings.Split(raw, ".")
		forged := idtokentest.Unsigned(t, map[string]any{"sub": "attacker", "aud": testClientID, "iss": testIssuer})
		parts[1] = strings.Split(forged, ".")[1]
		return strings.Join(parts, ".")
	}

	withClaim := func(k string, val any) map[string]any {
		c := validClaims()
		c[k] = val
		return c
	}

	tests := []struct {
		name string
		raw  string
	}{
		{name: "unsigned", raw: idtokentest.Unsigned(t, validClaims())},
		{name: "wrong key", raw: other.Sign(t, validClaims())},
		{name: "tampered payload", raw: tamper(signer.Sign(t, validClaims()))},
		{name: "wrong audience", raw: signer.Sign(t, withClaim("aud", "someone-else"))},
		{name: "wrong issuer", raw: signer.Sign(t, withClaim("iss", "https://evil.example.com"))},
		{name: "expired", raw: signer.Sign(t, withClaim("exp", testNow.Add(-time.Minute).Unix()))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.raw)
			require.ErrorIs(t, err, rperrors.ErrInvalidIdentityToken)
		})
	}
}

func TestVerifier_MalformedBeforeSignature(t *testing.T) {
	v, _ := setupStaticVerifier(t)

	_, err := v.Verify(context.Background(), "not-a-token")
	require.ErrorIs(t, err, rperrors.ErrMalformedIdentityToken)
}

func TestNewVerifier_RemoteKeySet(t *testing.T) {
	signer := idtokentest.NewSigner(t)
	srv := signer.ServeJWKS(t)

	v, err := idtoken.NewVerifier(context.Background(), idtoken.VerifierConfig{
		ClientID:   testClientID,
		JWKSURI:    srv.URL + "/jwks",
		HTTPClient: srv.Client(),
		Now:        func() time.Time { return testNow },
	})
	require.NoError(t, err)

	claims := validClaims()
	claims["iss"] = "https://anything.example.com"
	_, err = v.Verify(context.Background(), signer.Sign(t, claims))
	require.NoError(t, err, "issuer is not checked when none is configured")

	_, err = v.Verify(context.Background(), idtokentest.NewSigner(t).Sign(t, claims))
	require.ErrorIs(t, err, rperrors.ErrInvalidIdentityToken)
}

func TestNewVerifier_Discovery(t *testing.T) {
	signer := idtokentest.NewSigner(t)
	srv := signer.ServeJWKS(t)

	v, err := idtoken.NewVerifier(context.Background(), idtoken.VerifierConfig{
		ClientID:   testClientID,
		Issuer:     srv.URL,
		HTTPClient: srv.Client(),
		Now:        func() time.Time { return testNow },
	})
	require.NoError(t, err)

	claims := validClaims()
	claims["iss"] = srv.URL
	_, err = v.Verify(context.Background(), signer.Sign(t, claims))
	require.NoError(t, err)
}

func TestNewVerifier_SkipSignature(t *testing.T) {
	v, err := idtoken.NewVerifier(context.Background(), idtoken.VerifierConfig{
		ClientID:                  testClientID,
		SkipSignatureVerification: true,
		Now:                       func() time.Time { return testNow },
	})
	require.NoError(t, err)

	claims, err := v.Verify(context.Background(), idtokentest.Unsigned(t, validClaims()))
	require.NoError(t, err)
	require.Equal(t, "subject-1", claims.Subject)
}

func TestNewVerifier_MissingConfig(t *testing.T) {
	_, err := idtoken.NewVerifier(context.Background(), idtoken.VerifierConfig{})
	require.ErrorIs(t, err, rperrors.ErrConfigurationMissing)

	_, err = idtoken.NewVerifier(context.Background(), idtoken.VerifierConfig{ClientID: testClientID})
	require.ErrorIs(t, err, rperrors.ErrConfigurationMissing)
}
