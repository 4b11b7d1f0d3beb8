// Package idp talks to the external OpenID provider: it builds the
// authorization request and exchanges authorization codes for tokens.
package idp

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	rperrors "github.com/jrsteele09/go-oidc-connector/internal/errors"
	"golang.org/x/oauth2"
)

// DefaultScope is requested when no scope is configured.
const DefaultScope = "openid profile email"

// ProviderConfig holds the relying party's registration with the IdP.
type ProviderConfig struct {
	ClientID      string `validate:"required"`
	ClientSecret  string `validate:"required"`
	AuthEndpoint  string `validate:"required,url"`
	TokenEndpoint string `validate:"required,url"`
	RedirectURI   string `validate:"required,url"`
	Scope         string
	Resource      string
	OPName        string
	Issuer        string `validate:"omitempty,url"`
	JWKSURI       string `validate:"omitempty,url"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks that every required setting is present and well formed.
func (c ProviderConfig) Validate() error {
	err := getValidator().Struct(c)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("%w: %v", rperrors.ErrConfigurationMissing, err)
	}
	fields := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", rperrors.ErrConfigurationMissing, strings.Join(fields, ", "))
}

// ScopeOrDefault returns the configured scope or DefaultScope.
func (c ProviderConfig) ScopeOrDefault() string {
	if strings.TrimSpace(c.Scope) == "" {
		return DefaultScope
	}
	return c.Scope
}

// DisplayName is the provider name shown to users.
func (c ProviderConfig) DisplayName() string {
	if c.OPName == "" {
		return "OpenID Connect"
	}
	return c.OPName
}

func (c ProviderConfig) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURI,
		Scopes:       strings.Fields(c.ScopeOrDefault()),
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.AuthEndpoint,
			TokenURL:  c.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}
