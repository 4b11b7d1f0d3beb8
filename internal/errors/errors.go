package errors

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the relying-party core. Every kind is terminal for
// the request that produced it.
var (
	// Configuration errors
	ErrConfigurationMissing = errors.New("oidc configuration missing")

	// Callback / protocol errors
	ErrUnknownState             = errors.New("unknown state")
	ErrAuthorizationCodeMissing = errors.New("authorization code missing")
	ErrTokenRequestFailed       = errors.New("token request failed")
	ErrMalformedTokenResponse   = errors.New("malformed token response")
	ErrMalformedIdentityToken   = errors.New("malformed identity token")
	ErrInvalidIdentityToken     = errors.New("identity token failed verification")
	ErrMissingSubject           = errors.New("identity token has no subject")
	ErrNonceMismatch            = errors.New("nonce mismatch")

	// Identity resolution errors
	ErrIdentityAlreadyLinked             = errors.New("identity already linked to another user")
	ErrSessionUserAlreadyLinkedElsewhere = errors.New("user already linked to another identity")
	ErrAccountCreationDisabled           = errors.New("account creation disabled")
	ErrLoginFailed                       = errors.New("login failed")

	// Disconnect errors
	ErrNotLinked                = errors.New("user is not linked to an external identity")
	ErrPasswordRequired         = errors.New("password required")
	ErrUsernameTaken            = errors.New("username taken")
	ErrUsernameChangeNotAllowed = errors.New("username change not allowed")

	// Storage errors
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

