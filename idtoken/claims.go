// Package idtoken decodes and checks the identity token returned by the IdP.
package idtoken

import (
	"crypto/subtle"
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	rperrors "github.com/jrsteele09/go-oidc-connector/internal/errors"
	"github.com/jrsteele09/go-oidc-connector/internal/utils"
)

// Claims is the decoded payload of an identity token. Claims without a named
// field are kept in Extra.
type Claims struct {
	Subject    string
	ObjectID   string
	Nonce      string
	GivenName  string
	FamilyName string
	Email      string
	Issuer     string
	Audience   []string
	ExpiresAt  time.Time
	IssuedAt   time.Time
	Extra      map[string]any
}

var namedClaims = map[string]struct{}{
	"sub":         {},
	"oid":         {},
	"nonce":       {},
	"given_name":  {},
	"family_name": {},
	"email":       {},
	"iss":         {},
	"aud":         {},
	"exp":         {},
	"iat":         {},
}

// ExternalID is the stable identifier of the external identity: the object
// id when the provider sends one, otherwise the subject.
func (c *Claims) ExternalID() string {
	if oid := strings.TrimSpace(c.ObjectID); oid != "" {
		return oid
	}
	return strings.TrimSpace(c.Subject)
}

// DerivedUsername is the local username used for accounts created from this identity.
func (c *Claims) DerivedUsername() string {
	return DerivedUsername(c.ExternalID())
}

// DerivedUsername is the local username an account created for externalID gets.
func DerivedUsername(externalID string) string {
	return strings.ToLower(externalID)
}

// Parse decodes the payload segment of raw without checking its signature.
func Parse(raw string) (*Claims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, rperrors.ErrMalformedIdentityToken
	}

	mapClaims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, mapClaims); err != nil {
		return nil, rperrors.Wrapf(rperrors.ErrMalformedIdentityToken, "%v", err)
	}
	return fromMap(mapClaims), nil
}

// Validate checks that the claims carry a usable subject and the nonce issued
// for this authentication attempt.
func Validate(claims *Claims, expectedNonce string) error {
	if claims == nil || claims.ExternalID() == "" {
		return rperrors.ErrMissingSubject
	}
	if expectedNonce == "" || claims.Nonce == "" {
		return rperrors.ErrNonceMismatch
	}
	if subtle.ConstantTimeCompare([]byte(claims.Nonce), []byte(expectedNonce)) != 1 {
		return rperrors.ErrNonceMismatch
	}
	return nil
}

func fromMap(m jwt.MapClaims) *Claims {
	c := &Claims{
		Subject:    stringClaim(m, "sub"),
		ObjectID:   stringClaim(m, "oid"),
		Nonce:      stringClaim(m, "nonce"),
		GivenName:  stringClaim(m, "given_name"),
		FamilyName: stringClaim(m, "family_name"),
		Email:      stringClaim(m, "email"),
		Issuer:     stringClaim(m, "iss"),
		Audience:   audienceClaim(m["aud"]),
		ExpiresAt:  timeClaim(m["exp"]),
		IssuedAt:   timeClaim(m["iat"]),
		Extra:      map[string]any{},
	}
	// Azure AD v1 tokens carry the address in upn or unique_name.
	if c.Email == "" {
		c.Email = stringClaim(m, "upn")
	}
	if c.Email == "" {
		c.Email = stringClaim(m, "unique_name")
	}

	for k, v := range m {
		if _, named := namedClaims[k]; !named {
			c.Extra[k] = v
		}
	}
	return c
}

func stringClaim(m jwt.MapClaims, key string) string {
	s, _ := m[key].(string)
	return s
}

func audienceClaim(v any) []string {
	switch aud := v.(type) {
	case string:
		if aud == "" {
			return nil
		}
		return []string{aud}
	case []any:
		return utils.ToStringSlice(aud)
	case []string:
		return aud
	}
	return nil
}

func timeClaim(v any) time.Time {
	switch n := v.(type) {
	case float64:
		return time.Unix(int64(n), 0).UTC()
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return time.Unix(i, 0).UTC()
		}
	case int64:
		return time.Unix(n, 0).UTC()
	}
	return time.Time{}
}
