package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-oidc-connector/server/loginsession"
)

const sessionIDLength = 32

// generateRandomString creates a random base64url string
func generateRandomString(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random string: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// startSession stores a new login session for username and returns its id.
func (s *Server) startSession(ctx context.Context, username string) (string, loginsession.Session, error) {
	sessionID, err := generateRandomString(sessionIDLength)
	if err != nil {
		return "", loginsession.Session{}, err
	}
	now := s.nowTime()
	session := loginsession.Session{
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.GetMaxSessionAge()),
	}
	if err := s.sessions.Upsert(ctx, sessionID, session); err != nil {
		return "", loginsession.Session{}, fmt.Errorf("storing login session: %w", err)
	}
	return sessionID, session, nil
}

func (s *Server) SetLoginSessionCookie(w http.ResponseWriter, r *http.Request, sessionID string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.GetSessionCookieName(),
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.GetSecureCookies() || getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func (s *Server) ClearLoginSessionCookie(w http.ResponseWriter, r *http.Request) {
	s.SetLoginSessionCookie(w, r, "", -1)
}
