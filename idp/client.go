package idp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	rperrors "github.com/jrsteele09/go-oidc-connector/internal/errors"
	"golang.org/x/oauth2"
)

// TokenResponse is the useful part of a successful token endpoint reply.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	Scope        string
	Resource     string
	TokenType    string
	ExpiresOn    time.Time
}

// Client performs the front- and back-channel legs of the authorization
// code flow against one provider.
type Client struct {
	cfg        ProviderConfig
	oauth      *oauth2.Config
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for the token request. It owns
// timeouts and TLS settings.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient validates cfg and returns a Client for it.
func NewClient(cfg ProviderConfig, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		cfg:        cfg,
		oauth:      cfg.oauth2Config(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AuthorizationURL builds the redirect to the provider's authorization
// endpoint. A non-empty codeVerifier adds its S256 PKCE challenge.
func (c *Client) AuthorizationURL(state, nonce, codeVerifier string) (string, error) {
	var extra []oauth2.AuthCodeOption
	if c.cfg.Resource != "" {
		extra = append(extra, oauth2.SetAuthURLParam("resource", c.cfg.Resource))
	}
	if codeVerifier != "" {
		extra = append(extra, oauth2.S256ChallengeOption(codeVerifier))
	}
	return buildAuthorizationURL(c.cfg.ClientID, c.cfg.RedirectURI, c.cfg.AuthEndpoint, state, nonce, c.cfg.ScopeOrDefault(), extra...)
}

// ExchangeCode redeems an authorization code at the token endpoint, sending
// codeVerifier when the authorization request carried a PKCE challenge. The
// request is made once and never retried.
func (c *Client) ExchangeCode(ctx context.Context, code, codeVerifier string) (*TokenResponse, error) {
	if code == "" {
		return nil, rperrors.ErrAuthorizationCodeMissing
	}

	var opts []oauth2.AuthCodeOption
	if c.cfg.Resource != "" {
		opts = append(opts, oauth2.SetAuthURLParam("resource", c.cfg.Resource))
	}
	if codeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(codeVerifier))
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.oauth.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, classifyExchangeError(err)
	}

	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return nil, fmt.Errorf("%w: no id_token in response", rperrors.ErrMalformedTokenResponse)
	}

	resp := &TokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		IDToken:      idToken,
		TokenType:    tok.TokenType,
		ExpiresOn:    tok.Expiry,
	}
	resp.Scope, _ = tok.Extra("scope").(string)
	resp.Resource, _ = tok.Extra("resource").(string)
	if resp.Resource == "" {
		resp.Resource = c.cfg.Resource
	}
	if expiresOn, ok := parseExpiresOn(tok.Extra("expires_on")); ok {
		resp.ExpiresOn = expiresOn
	}
	return resp, nil
}

func classifyExchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		return fmt.Errorf("%w: status %d %s", rperrors.ErrTokenRequestFailed, status, retrieveErr.ErrorCode)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", rperrors.ErrTokenRequestFailed, err)
	}
	return fmt.Errorf("%w: %v", rperrors.ErrMalformedTokenResponse, err)
}

// parseExpiresOn reads an absolute unix-seconds expiry, sent by some
// providers as a string and by others as a number.
func parseExpiresOn(v any) (time.Time, bool) {
	var secs int64
	switch val := v.(type) {
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		secs = n
	case float64:
		secs = int64(val)
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return time.Time{}, false
		}
		secs = n
	case int64:
		secs = val
	case int:
		secs = int64(val)
	default:
		return time.Time{}, false
	}
	if secs <= 0 {
		return time.Time{}, false
	}
	return time.Unix(secs, 0).UTC(), true
}
