package server

import (
	"errors"
	"net/http"
	"testing"

	rperrors "github.com/jrsteele09/go-oidc-connector/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{rperrors.ErrUnknownState, http.StatusBadRequest},
		{rperrors.Wrapf(rperrors.ErrAuthorizationCodeMissing, "provider error %s", "access_denied"), http.StatusBadRequest},
		{rperrors.ErrNonceMismatch, http.StatusBadRequest},
		{rperrors.ErrPasswordRequired, http.StatusBadRequest},
		{rperrors.ErrIdentityAlreadyLinked, http.StatusConflict},
		{rperrors.ErrUsernameTaken, http.StatusConflict},
		{rperrors.ErrAccountCreationDisabled, http.StatusForbidden},
		{rperrors.ErrLoginFailed, http.StatusForbidden},
		{rperrors.ErrTokenRequestFailed, http.StatusBadGateway},
		{errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			require.Equal(t, tt.want, statusForError(tt.err))
		})
	}
}
