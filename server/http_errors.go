package server

import (
	"net/http"

	"github.com/jrsteele09/go-oidc-connector/auth"
	rperrors "github.com/jrsteele09/go-oidc-connector/internal/errors"
	"github.com/rs/zerolog/log"
)

// statusForError maps an error kind to the HTTP status it is reported with.
func statusForError(err error) int {
	switch {
	case rperrors.Is(err, rperrors.ErrUnknownState),
		rperrors.Is(err, rperrors.ErrAuthorizationCodeMissing),
		rperrors.Is(err, rperrors.ErrMalformedIdentityToken),
		rperrors.Is(err, rperrors.ErrInvalidIdentityToken),
		rperrors.Is(err, rperrors.ErrMissingSubject),
		rperrors.Is(err, rperrors.ErrNonceMismatch),
		rperrors.Is(err, rperrors.ErrPasswordRequired),
		rperrors.Is(err, rperrors.ErrUsernameChangeNotAllowed),
		rperrors.Is(err, rperrors.ErrNotLinked):
		return http.StatusBadRequest
	case rperrors.Is(err, rperrors.ErrIdentityAlreadyLinked),
		rperrors.Is(err, rperrors.ErrSessionUserAlreadyLinkedElsewhere),
		rperrors.Is(err, rperrors.ErrUsernameTaken):
		return http.StatusConflict
	case rperrors.Is(err, rperrors.ErrAccountCreationDisabled),
		rperrors.Is(err, rperrors.ErrLoginFailed):
		return http.StatusForbidden
	case rperrors.Is(err, rperrors.ErrTokenRequestFailed),
		rperrors.Is(err, rperrors.ErrMalformedTokenResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err to the browser with only its safe reason text.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	http.Error(w, auth.ErrorReason(err), status)
}
