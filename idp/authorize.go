package idp

import (
	"net/url"
	"strings"

	rperrors "github.com/jrsteele09/go-oidc-connector/internal/errors"
	"golang.org/x/oauth2"
)

// BuildAuthorizationURL returns authEndpoint with the authorization-code
// request parameters appended. Query parameters already present on the
// endpoint are kept.
func BuildAuthorizationURL(clientID, redirectURI, authEndpoint, state, nonce, scope string) (string, error) {
	return buildAuthorizationURL(clientID, redirectURI, authEndpoint, state, nonce, scope)
}

func buildAuthorizationURL(clientID, redirectURI, authEndpoint, state, nonce, scope string, extra ...oauth2.AuthCodeOption) (string, error) {
	if clientID == "" || authEndpoint == "" {
		return "", rperrors.ErrConfigurationMissing
	}
	if u, err := url.Parse(authEndpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return "", rperrors.Wrapf(rperrors.ErrConfigurationMissing, "invalid authorization endpoint %q", authEndpoint)
	}

	cfg := oauth2.Config{
		ClientID:    clientID,
		RedirectURL: redirectURI,
		Scopes:      strings.Fields(scope),
		Endpoint:    oauth2.Endpoint{AuthURL: authEndpoint},
	}
	opts := append([]oauth2.AuthCodeOption{oauth2.SetAuthURLParam("nonce", nonce)}, extra...)
	return cfg.AuthCodeURL(state, opts...), nil
}
