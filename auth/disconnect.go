package auth

import (
	"context"
	"strings"

	"github.com/jrsteele09/go-oidc-connector/audit"
	"github.com/jrsteele09/go-oidc-connector/idtoken"
	rperrors "github.com/jrsteele09/go-oidc-connector/internal/errors"
	"github.com/jrsteele09/go-oidc-connector/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DisconnectRequest is the form a user submits to stop signing in through the provider.
type DisconnectRequest struct {
	Password string // New local password, required
	Username string // Optional new username
}

// Disconnect unlinks the signed-in user from the provider and moves the
// account back to password sign-in. A new username may only be chosen when
// the current one was derived from the external identity.
//
// Errors from the directory's password update are returned unmodified, with
// the link left in place.
func (s *Service) Disconnect(ctx context.Context, session SessionContext, req DisconnectRequest) error {
	if !session.Authenticated || session.Username == "" {
		return rperrors.ErrLoginFailed
	}

	record, err := s.repos.Tokens.GetByUsername(ctx, session.Username)
	if err != nil {
		if rperrors.Is(err, rperrors.ErrNotFound) {
			return rperrors.ErrNotLinked
		}
		return errors.Wrap(err, "[Service.Disconnect] Tokens.GetByUsername")
	}

	if req.Password == "" {
		return rperrors.ErrPasswordRequired
	}

	newUsername := strings.TrimSpace(req.Username)
	if newUsername == session.Username {
		newUsername = ""
	}
	if newUsername != "" {
		if session.Username != idtoken.DerivedUsername(record.ExternalID) {
			return rperrors.ErrUsernameChangeNotAllowed
		}
		taken, err := s.repos.Users.Exists(ctx, newUsername)
		if err != nil {
			return errors.Wrap(err, "[Service.Disconnect] Users.Exists")
		}
		if taken {
			return rperrors.ErrUsernameTaken
		}
	}

	hash, err := users.HashPassword(req.Password)
	if err != nil {
		return errors.Wrap(err, "[Service.Disconnect] HashPassword")
	}
	// Unlink before the password update; a failed update puts the link back.
	if err := s.repos.Tokens.DeleteByUsername(ctx, session.Username); err != nil {
		return errors.Wrap(err, "[Service.Disconnect] Tokens.DeleteByUsername")
	}
	if err := s.repos.Users.SetPassword(ctx, session.Username, newUsername, hash); err != nil {
		if restoreErr := s.repos.Tokens.Create(ctx, record); restoreErr != nil {
			log.Err(restoreErr).Str("username", session.Username).Msg("failed to restore identity link")
		}
		return err
	}

	s.metrics.Disconnects.Inc()
	s.emit(ctx, audit.EventIdentityUnlinked, func(e *audit.Event) {
		e.Username = session.Username
		e.ExternalID = record.ExternalID
		if newUsername != "" {
			e.Reason = "renamed to " + newUsername
		}
	})
	return nil
}
