package server

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-oidc-connector/auth"
	rperrors "github.com/jrsteele09/go-oidc-connector/internal/errors"
	"github.com/jrsteele09/go-oidc-connector/server/loginsession"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeySessionID stores the login session id
	ContextKeySessionID ContextKey = "session_id"
	// ContextKeySession stores the loginsession.Session
	ContextKeySession ContextKey = "session"
)

// RequireSession rejects requests without a live login session and puts the
// session into the request context.
func (s *Server) RequireSession() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			sessionID, session, ok := s.currentSession(r)
			if !ok {
				http.Error(w, "sign in required", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeySessionID, sessionID)
			ctx = context.WithValue(ctx, ContextKeySession, session)
			next(w, r.WithContext(ctx))
		}
	}
}

// currentSession loads the login session named by the request cookie.
// Expired sessions are deleted and reported as absent.
func (s *Server) currentSession(r *http.Request) (string, loginsession.Session, bool) {
	cookie, err := r.Cookie(s.config.GetSessionCookieName())
	if err != nil || cookie.Value == "" {
		return "", loginsession.Session{}, false
	}

	session, err := s.sessions.Get(r.Context(), cookie.Value)
	if err != nil {
		if !rperrors.Is(err, rperrors.ErrNotFound) {
			log.Err(err).Msg("failed to load login session")
		}
		return "", loginsession.Session{}, false
	}
	if session.Expired(s.nowTime()) {
		if err := s.sessions.Delete(r.Context(), cookie.Value); err != nil {
			log.Err(err).Msg("failed to delete expired login session")
		}
		return "", loginsession.Session{}, false
	}
	return cookie.Value, session, true
}

// sessionContext describes the request's login state for the auth backend.
func (s *Server) sessionContext(r *http.Request) (string, auth.SessionContext) {
	sessionID, session, ok := s.currentSession(r)
	if !ok {
		return "", auth.SessionContext{}
	}
	return sessionID, auth.SessionContext{Authenticated: true, Username: session.Username}
}

func sessionFromContext(ctx context.Context) (string, loginsession.Session) {
	sessionID, _ := ctx.Value(ContextKeySessionID).(string)
	session, _ := ctx.Value(ContextKeySession).(loginsession.Session)
	return sessionID, session
}
