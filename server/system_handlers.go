package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/jrsteele09/go-oidc-connector/auth"
	rperrors "github.com/jrsteele09/go-oidc-connector/internal/errors"
	"github.com/rs/zerolog/log"
)

const healthCheckTimeout = 2 * time.Second

type accountResponse struct {
	Username      string        `json:"username"`
	ExternalLogin bool          `json:"externalLogin"`
	Profile       *auth.Profile `json:"profile,omitempty"`
}

// HomeHandler sends signed-in users to their account and everyone else to sign in.
func (s *Server) HomeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := s.currentSession(r); ok {
			http.Redirect(w, r, RouteAccount, http.StatusSeeOther)
			return
		}
		http.Redirect(w, r, RouteOIDCLogin, http.StatusSeeOther)
	}
}

// AccountHandler reports how the signed-in user authenticates.
func (s *Server) AccountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, session := sessionFromContext(r.Context())

		external, err := s.backend.ValidateCredentials(r.Context(), session.Username, "")
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp := accountResponse{Username: session.Username, ExternalLogin: external}
		if external {
			profile, err := s.backend.FetchExternalProfile(r.Context(), session.Username)
			if err != nil && !rperrors.Is(err, rperrors.ErrNotLinked) {
				writeError(w, r, err)
				return
			}
			resp.Profile = profile
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// HealthHandler runs every registered check.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		var failing []string
		for name, check := range s.health {
			if err := check(ctx); err != nil {
				log.Err(err).Str("check", name).Msg("health check failed")
				failing = append(failing, name)
			}
		}
		if len(failing) > 0 {
			sort.Strings(failing)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failing": failing})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Err(err).Msg("failed to write response")
	}
}
