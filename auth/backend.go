package auth

import (
	"context"

	"github.com/jrsteele09/go-oidc-connector/idtoken"
	rperrors "github.com/jrsteele09/go-oidc-connector/internal/errors"
	"github.com/pkg/errors"
)

// Backend is the surface a host application plugs in to offer sign-in
// through an OpenID provider.
type Backend interface {
	// BeginAuth starts a sign-in and returns the provider URL to redirect to.
	BeginAuth(ctx context.Context) (string, error)
	// CompleteAuth handles the provider's redirect back.
	CompleteAuth(ctx context.Context, params CallbackParams, session SessionContext) (*Result, error)
	// ValidateCredentials reports whether username currently signs in through the provider.
	ValidateCredentials(ctx context.Context, username, password string) (bool, error)
	// FetchExternalProfile returns the profile asserted by the provider at the last sign-in.
	FetchExternalProfile(ctx context.Context, username string) (*Profile, error)
	// Disconnect unlinks the signed-in user from the provider.
	Disconnect(ctx context.Context, session SessionContext, req DisconnectRequest) error
}

var _ Backend = (*Service)(nil)

// CallbackParams are the query or form parameters of the provider redirect.
type CallbackParams struct {
	State            string
	Code             string
	Error            string
	ErrorDescription string
}

// Profile is the user information asserted by the provider.
type Profile struct {
	Provider   string // Display name of the provider
	ExternalID string
	Username   string
	FirstName  string
	LastName   string
	Email      string
}

// ValidateCredentials is true when username has a live link to an external
// identity. The password is not used: the provider already authenticated the
// user.
func (s *Service) ValidateCredentials(ctx context.Context, username, _ string) (bool, error) {
	record, err := s.linkByUsername(ctx, username)
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, nil
	}
	user, err := s.repos.Users.GetByUsername(ctx, username)
	if err != nil {
		if rperrors.Is(err, rperrors.ErrNotFound) {
			return false, nil
		}
		return false, errors.Wrap(err, "[Service.ValidateCredentials] Users.GetByUsername")
	}
	return user.UsesExternalAuth() && !user.Suspended, nil
}

// FetchExternalProfile reads the profile claims of the identity token stored
// at the user's last sign-in.
func (s *Service) FetchExternalProfile(ctx context.Context, username string) (*Profile, error) {
	record, err := s.repos.Tokens.GetByUsername(ctx, username)
	if err != nil {
		if rperrors.Is(err, rperrors.ErrNotFound) {
			return nil, rperrors.ErrNotLinked
		}
		return nil, errors.Wrap(err, "[Service.FetchExternalProfile] Tokens.GetByUsername")
	}

	claims, err := idtoken.Parse(record.IDToken)
	if err != nil {
		return nil, err
	}
	return &Profile{
		Provider:   s.providerName,
		ExternalID: record.ExternalID,
		Username:   record.Username,
		FirstName:  claims.GivenName,
		LastName:   claims.FamilyName,
		Email:      claims.Email,
	}, nil
}
