package server

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-oidc-connector/auth"
	"github.com/jrsteele09/go-oidc-connector/idtoken"
	"github.com/rs/zerolog/log"
)

// LoginHandler starts a sign-in and sends the browser to the IdP.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authURL, err := s.backend.BeginAuth(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// CallbackHandler completes a sign-in when the IdP redirects back.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// r.FormValue works for both query params and POST form data
		params := auth.CallbackParams{
			State:            r.FormValue("state"),
			Code:             r.FormValue("code"),
			Error:            r.FormValue("error"),
			ErrorDescription: r.FormValue("error_description"),
		}

		_, session := s.sessionContext(r)
		result, err := s.backend.CompleteAuth(r.Context(), params, session)
		if err != nil {
			writeError(w, r, err)
			return
		}

		if !session.Authenticated || session.Username != result.Username {
			sessionID, _, err := s.startSession(r.Context(), result.Username)
			if err != nil {
				writeError(w, r, err)
				return
			}
			s.SetLoginSessionCookie(w, r, sessionID, int(s.config.GetMaxSessionAge().Seconds()))
		}

		log.Info().Str("username", result.Username).Str("action", string(result.Action)).Msg("oidc sign-in completed")

		target := RouteHome
		if result.Migration() {
			target = RouteAccount
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}

var disconnectForm = template.Must(template.New("disconnect").Parse(`<!DOCTYPE html>
<html><head><title>Disconnect</title></head><body>
<form method="post" action="{{.Action}}">
<p>Signed in as {{.Username}}. Choose a password to sign in without {{.Provider}}.</p>
<label>Password <input type="password" name="password" required></label>
{{if .CanRename}}<label>New username <input type="text" name="username"></label>{{end}}
<button type="submit">Disconnect</button>
<button type="submit" name="cancel" value="1" formnovalidate>Cancel</button>
</form>
</body></html>
`))

// DisconnectFormHandler renders the disconnect form.
func (s *Server) DisconnectFormHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, session := sessionFromContext(r.Context())
		profile, err := s.backend.FetchExternalProfile(r.Context(), session.Username)
		if err != nil {
			writeError(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		err = disconnectForm.Execute(w, struct {
			Action    string
			Username  string
			Provider  string
			CanRename bool
		}{
			Action:    RouteOIDCDisconnect,
			Username:  session.Username,
			Provider:  profile.Provider,
			CanRename: session.Username == idtoken.DerivedUsername(profile.ExternalID),
		})
		if err != nil {
			log.Err(err).Msg("failed to render disconnect form")
		}
	}
}

// DisconnectSubmitHandler unlinks the signed-in user, or returns to the
// account page when the form was cancelled.
func (s *Server) DisconnectSubmitHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("cancel") != "" {
			http.Redirect(w, r, RouteAccount, http.StatusSeeOther)
			return
		}

		sessionID, session := sessionFromContext(r.Context())
		req := auth.DisconnectRequest{
			Password: r.FormValue("password"),
			Username: strings.TrimSpace(r.FormValue("username")),
		}
		err := s.backend.Disconnect(r.Context(), auth.SessionContext{Authenticated: true, Username: session.Username}, req)
		if err != nil {
			writeError(w, r, err)
			return
		}

		if req.Username != "" && req.Username != session.Username {
			session.Username = req.Username
			if err := s.sessions.Upsert(r.Context(), sessionID, session); err != nil {
				writeError(w, r, err)
				return
			}
		}
		http.Redirect(w, r, RouteAccount, http.StatusSeeOther)
	}
}

// LogoutHandler ends the login session.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessionID, _, ok := s.currentSession(r); ok {
			if err := s.sessions.Delete(r.Context(), sessionID); err != nil {
				log.Err(err).Msg("failed to delete login session")
			}
		}
		s.ClearLoginSessionCookie(w, r)
		http.Redirect(w, r, RouteHome, http.StatusSeeOther)
	}
}
