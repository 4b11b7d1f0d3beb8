package auth

import (
	rperrors "github.com/jrsteele09/go-oidc-connector/internal/errors"
)

// reportedKinds are the error kinds surfaced by name in audit events and metrics.
var reportedKinds = []error{
	rperrors.ErrConfigurationMissing,
	rperrors.ErrUnknownState,
	rperrors.ErrAuthorizationCodeMissing,
	rperrors.ErrTokenRequestFailed,
	rperrors.ErrMalformedTokenResponse,
	rperrors.ErrMalformedIdentityToken,
	rperrors.ErrInvalidIdentityToken,
	rperrors.ErrMissingSubject,
	rperrors.ErrNonceMismatch,
	rperrors.ErrIdentityAlreadyLinked,
	rperrors.ErrSessionUserAlreadyLinkedElsewhere,
	rperrors.ErrAccountCreationDisabled,
	rperrors.ErrLoginFailed,
	rperrors.ErrNotLinked,
	rperrors.ErrPasswordRequired,
	rperrors.ErrUsernameTaken,
	rperrors.ErrUsernameChangeNotAllowed,
}

// ErrorReason returns the message of the error kind err belongs to, or
// "internal error" for anything else. The result is safe to show and to use
// as a metric label.
func ErrorReason(err error) string {
	for _, kind := range reportedKinds {
		if rperrors.Is(err, kind) {
			return kind.Error()
		}
	}
	return "internal error"
}
