package config

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-oidc-connector/idp"
)

// CallbackPath is appended to the base URL when no redirect URI is configured.
const CallbackPath = "/auth/oidc/callback"

const (
	keyClientID                  = "oidc.clientid"
	keyClientSecret              = "oidc.clientsecret"
	keyClientSecretARN           = "oidc.clientsecretarn"
	keyAuthEndpoint              = "oidc.authendpoint"
	keyTokenEndpoint             = "oidc.tokenendpoint"
	keyRedirectURI               = "oidc.redirecturi"
	keyScope                     = "oidc.scope"
	keyResource                  = "oidc.resource"
	keyOPName                    = "oidc.opname"
	keyIssuer                    = "oidc.issuer"
	keyJWKSURI                   = "oidc.jwksuri"
	keySkipSignatureVerification = "oidc.skipsignatureverification"
	keyPreventAccountCreation    = "oidc.authpreventaccountcreation"
	keyLinkExistingAccounts      = "oidc.linkexistingaccounts"
	keyAWSRegion                 = "aws.region"
)

// GetProviderConfig assembles and validates the IdP registration. When
// oidc.clientsecretarn is set the client secret is fetched from AWS Secrets
// Manager instead of oidc.clientsecret. Missing or malformed settings yield
// errors.ErrConfigurationMissing.
func (c *mainConfig) GetProviderConfig(ctx context.Context) (idp.ProviderConfig, error) {
	cfg := idp.ProviderConfig{
		ClientID:      c.v.GetString(keyClientID),
		ClientSecret:  c.v.GetString(keyClientSecret),
		AuthEndpoint:  c.v.GetString(keyAuthEndpoint),
		TokenEndpoint: c.v.GetString(keyTokenEndpoint),
		RedirectURI:   c.v.GetString(keyRedirectURI),
		Scope:         c.v.GetString(keyScope),
		Resource:      c.v.GetString(keyResource),
		OPName:        c.v.GetString(keyOPName),
		Issuer:        c.v.GetString(keyIssuer),
		JWKSURI:       c.v.GetString(keyJWKSURI),
	}
	if cfg.RedirectURI == "" {
		cfg.RedirectURI = c.GetBaseURL() + CallbackPath
	}

	if arn := c.v.GetString(keyClientSecretARN); arn != "" {
		secret, err := c.resolveSecret(ctx, arn)
		if err != nil {
			return idp.ProviderConfig{}, err
		}
		cfg.ClientSecret = secret
	}

	if err := cfg.Validate(); err != nil {
		return idp.ProviderConfig{}, err
	}
	return cfg, nil
}

func (c *mainConfig) resolveSecret(ctx context.Context, id string) (string, error) {
	if c.secrets == nil {
		resolver, err := NewAWSSecretResolverFromRegion(ctx, c.v.GetString(keyAWSRegion))
		if err != nil {
			return "", err
		}
		c.secrets = resolver
	}
	secret, err := c.secrets.ResolveSecret(ctx, id)
	if err != nil {
		return "", fmt.Errorf("resolving client secret: %w", err)
	}
	return secret, nil
}

// GetSkipSignatureVerification disables ID token signature checks. Only for
// development against an IdP whose keys cannot be fetched.
func (c *mainConfig) GetSkipSignatureVerification() bool {
	return c.v.GetBool(keySkipSignatureVerification)
}

// GetPreventAccountCreation stops first-time external logins from creating local accounts.
func (c *mainConfig) GetPreventAccountCreation() bool {
	return c.v.GetBool(keyPreventAccountCreation)
}

// GetLinkExistingAccounts lets a first external login take over a password
// account whose username matches the derived one.
func (c *mainConfig) GetLinkExistingAccounts() bool {
	return c.v.GetBool(keyLinkExistingAccounts)
}
