package auth

import (
	"context"
	"time"

	"github.com/jrsteele09/go-oidc-connector/audit"
	"github.com/jrsteele09/go-oidc-connector/idp"
	"github.com/jrsteele09/go-oidc-connector/idtoken"
	rperrors "github.com/jrsteele09/go-oidc-connector/internal/errors"
	"github.com/jrsteele09/go-oidc-connector/token"
	"github.com/jrsteele09/go-oidc-connector/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Action is the terminal outcome of resolving an external identity.
type Action string

const (
	// ActionAlreadyLinked: a signed-in user came back with the identity already linked to them.
	ActionAlreadyLinked Action = "already-linked"
	// ActionLinked: the identity was linked to an existing local account.
	ActionLinked Action = "linked"
	// ActionReturningLogin: a previously linked identity signed in.
	ActionReturningLogin Action = "returning-login"
	// ActionCreated: a new local account was created for the identity.
	ActionCreated Action = "created"
)

// SessionContext describes the browser's current local session.
type SessionContext struct {
	Authenticated bool
	Username      string
}

// Identity is a verified external identity together with the tokens that asserted it.
type Identity struct {
	ExternalID string
	AuthCode   string
	Tokens     *idp.TokenResponse
	Claims     *idtoken.Claims
}

// Result is what the caller needs to establish or keep the local session.
type Result struct {
	Action   Action
	Username string // The local account the session belongs to

	migrated bool
}

// Migration reports whether the flow linked an account that was already
// signed in, as opposed to signing someone in.
func (r *Result) Migration() bool {
	return r.Action == ActionAlreadyLinked || (r.Action == ActionLinked && r.migrated)
}

// Resolve maps a verified identity onto a local account.
//
//	session | link for identity | link for username      | outcome
//	yes     | same user         |                        | rotate tokens, ActionAlreadyLinked
//	yes     | other user        |                        | ErrIdentityAlreadyLinked
//	yes     | none              | other identity         | ErrSessionUserAlreadyLinkedElsewhere
//	yes     | none              | none                   | link, ActionLinked
//	no      | exists            |                        | rotate tokens, sign in, ActionReturningLogin
//	no      | none              | derived account exists | link per policy, sign in
//	no      | none              | no account             | create account and link, ActionCreated
func (s *Service) Resolve(ctx context.Context, identity Identity, session SessionContext) (*Result, error) {
	var (
		result *Result
		err    error
	)
	if identity.ExternalID == "" {
		err = rperrors.ErrMissingSubject
	} else if session.Authenticated {
		result, err = s.resolveSignedIn(ctx, identity, session.Username)
	} else {
		result, err = s.resolveSignedOut(ctx, identity)
	}

	if err != nil {
		s.emit(ctx, audit.EventUserLoginFailed, func(e *audit.Event) {
			e.ExternalID = identity.ExternalID
			e.Username = session.Username
			e.Reason = ErrorReason(err)
		})
		return nil, err
	}
	return result, nil
}

func (s *Service) resolveSignedIn(ctx context.Context, identity Identity, username string) (*Result, error) {
	linked, err := s.linkByExternalID(ctx, identity.ExternalID)
	if err != nil {
		return nil, err
	}

	if linked != nil {
		if linked.Username != username {
			return nil, rperrors.ErrIdentityAlreadyLinked
		}
		if err := s.rotateTokens(ctx, linked, identity); err != nil {
			return nil, err
		}
		if err := s.repos.Users.SetAuthMethod(ctx, username, users.AuthMethodExternal); err != nil {
			return nil, errors.Wrap(err, "[Service.Resolve] Users.SetAuthMethod")
		}
		s.emitLinked(ctx, identity, username)
		return &Result{Action: ActionAlreadyLinked, Username: username}, nil
	}

	existing, err := s.linkByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, rperrors.ErrSessionUserAlreadyLinkedElsewhere
	}

	if _, err := s.repos.Users.GetByUsername(ctx, username); err != nil {
		if rperrors.Is(err, rperrors.ErrNotFound) {
			return nil, rperrors.ErrLoginFailed
		}
		return nil, errors.Wrap(err, "[Service.Resolve] Users.GetByUsername")
	}

	if err := s.createLink(ctx, identity, username); err != nil {
		return nil, err
	}
	if err := s.repos.Users.SetAuthMethod(ctx, username, users.AuthMethodExternal); err != nil {
		s.unlink(ctx, identity.ExternalID)
		return nil, errors.Wrap(err, "[Service.Resolve] Users.SetAuthMethod")
	}
	s.emitLinked(ctx, identity, username)
	return &Result{Action: ActionLinked, Username: username, migrated: true}, nil
}

func (s *Service) resolveSignedOut(ctx context.Context, identity Identity) (*Result, error) {
	linked, err := s.linkByExternalID(ctx, identity.ExternalID)
	if err != nil {
		return nil, err
	}

	if linked != nil {
		user, err := s.loadForLogin(ctx, linked.Username)
		if err != nil {
			return nil, err
		}
		if err := s.rotateTokens(ctx, linked, identity); err != nil {
			return nil, err
		}
		if err := s.authenticate(ctx, user); err != nil {
			return nil, err
		}
		s.emitLoggedIn(ctx, identity, user.Username)
		return &Result{Action: ActionReturningLogin, Username: user.Username}, nil
	}

	username := idtoken.DerivedUsername(identity.ExternalID)
	user, err := s.repos.Users.GetByUsername(ctx, username)
	switch {
	case err == nil:
		return s.linkExisting(ctx, identity, user)
	case rperrors.Is(err, rperrors.ErrNotFound):
		return s.createAccount(ctx, identity, username)
	default:
		return nil, errors.Wrap(err, "[Service.Resolve] Users.GetByUsername")
	}
}

// linkExisting handles a first external login whose derived username already
// has a local account.
func (s *Service) linkExisting(ctx context.Context, identity Identity, user *users.User) (*Result, error) {
	if user.Suspended {
		return nil, rperrors.ErrLoginFailed
	}
	takeover := !user.UsesExternalAuth()
	if takeover && !s.linkExistingAccounts {
		return nil, rperrors.ErrLoginFailed
	}

	if err := s.requireUnlinked(ctx, identity, user.Username); err != nil {
		return nil, err
	}
	if err := s.createLink(ctx, identity, user.Username); err != nil {
		return nil, err
	}

	action := ActionReturningLogin
	previousMethod := user.AuthMethod
	if takeover {
		if err := s.repos.Users.SetAuthMethod(ctx, user.Username, users.AuthMethodExternal); err != nil {
			s.unlink(ctx, identity.ExternalID)
			return nil, errors.Wrap(err, "[Service.Resolve] Users.SetAuthMethod")
		}
		user.AuthMethod = users.AuthMethodExternal
	}

	if err := s.authenticate(ctx, user); err != nil {
		if takeover {
			s.restoreAuthMethod(ctx, user.Username, previousMethod)
		}
		s.unlink(ctx, identity.ExternalID)
		return nil, err
	}
	if takeover {
		action = ActionLinked
		s.emitLinked(ctx, identity, user.Username)
	}
	s.emitLoggedIn(ctx, identity, user.Username)
	return &Result{Action: action, Username: user.Username}, nil
}

func (s *Service) createAccount(ctx context.Context, identity Identity, username string) (*Result, error) {
	if s.preventAccountCreation {
		return nil, rperrors.ErrAccountCreationDisabled
	}

	now := s.nowTime()
	user := &users.User{
		Username:   username,
		AuthMethod: users.AuthMethodExternal,
		CreatedAt:  now,
	}
	if identity.Claims != nil {
		user.Email = identity.Claims.Email
		user.FirstName = identity.Claims.GivenName
		user.LastName = identity.Claims.FamilyName
	}

	if err := s.requireUnlinked(ctx, identity, username); err != nil {
		return nil, err
	}
	if err := s.repos.Users.Create(ctx, user); err != nil {
		if rperrors.Is(err, rperrors.ErrAlreadyExists) {
			// A concurrent first login for the same identity got here first.
			return nil, rperrors.ErrIdentityAlreadyLinked
		}
		return nil, errors.Wrap(err, "[Service.Resolve] Users.Create")
	}
	if err := s.createLink(ctx, identity, username); err != nil {
		if !s.hasLink(ctx, username) {
			s.removeCreatedUser(ctx, username)
		}
		return nil, err
	}
	if err := s.authenticate(ctx, user); err != nil {
		s.unlink(ctx, identity.ExternalID)
		s.removeCreatedUser(ctx, username)
		return nil, err
	}

	s.emit(ctx, audit.EventUserCreated, func(e *audit.Event) {
		e.Username = username
		e.ExternalID = identity.ExternalID
	})
	return &Result{Action: ActionCreated, Username: username}, nil
}

// linkByExternalID returns the link for externalID, or nil. A link whose
// local account has gone is deleted and reported as absent.
func (s *Service) linkByExternalID(ctx context.Context, externalID string) (*token.Record, error) {
	record, err := s.repos.Tokens.GetByExternalID(ctx, externalID)
	if err != nil {
		if rperrors.Is(err, rperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "[Service.linkByExternalID] Tokens.GetByExternalID")
	}
	return s.dropIfOrphaned(ctx, record)
}

// linkByUsername is linkByExternalID keyed by the local username.
func (s *Service) linkByUsername(ctx context.Context, username string) (*token.Record, error) {
	record, err := s.repos.Tokens.GetByUsername(ctx, username)
	if err != nil {
		if rperrors.Is(err, rperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "[Service.linkByUsername] Tokens.GetByUsername")
	}
	return s.dropIfOrphaned(ctx, record)
}

func (s *Service) dropIfOrphaned(ctx context.Context, record *token.Record) (*token.Record, error) {
	exists, err := s.repos.Users.Exists(ctx, record.Username)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.dropIfOrphaned] Users.Exists")
	}
	if exists {
		return record, nil
	}

	log.Info().Str("username", record.Username).Msg("removing link to deleted local account")
	if err := s.repos.Tokens.DeleteByExternalID(ctx, record.ExternalID); err != nil {
		return nil, errors.Wrap(err, "[Service.dropIfOrphaned] Tokens.DeleteByExternalID")
	}
	return nil, nil
}

func (s *Service) createLink(ctx context.Context, identity Identity, username string) error {
	now := s.nowTime()
	record := &token.Record{
		ExternalID: identity.ExternalID,
		Username:   username,
		CreatedAt:  now,
	}
	applyTokens(record, identity, now)

	if err := s.repos.Tokens.Create(ctx, record); err != nil {
		if rperrors.Is(err, rperrors.ErrAlreadyExists) {
			return s.linkConflict(ctx, identity.ExternalID)
		}
		return errors.Wrap(err, "[Service.createLink] Tokens.Create")
	}
	return nil
}

// requireUnlinked fails when username already has a live link. A link left
// behind by a deleted account is removed by the lookup.
func (s *Service) requireUnlinked(ctx context.Context, identity Identity, username string) error {
	existing, err := s.linkByUsername(ctx, username)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	if existing.ExternalID == identity.ExternalID {
		// Linked by a concurrent first login since the caller's lookup.
		return rperrors.ErrIdentityAlreadyLinked
	}
	return rperrors.ErrSessionUserAlreadyLinkedElsewhere
}

// unlink removes a link created earlier in a flow that then failed.
func (s *Service) unlink(ctx context.Context, externalID string) {
	if err := s.repos.Tokens.DeleteByExternalID(ctx, externalID); err != nil {
		log.Err(err).Str("externalId", externalID).Msg("failed to roll back identity link")
	}
}

// hasLink reports whether username is linked, in which case a concurrent
// login now owns the account and it must not be rolled back.
func (s *Service) hasLink(ctx context.Context, username string) bool {
	_, err := s.repos.Tokens.GetByUsername(ctx, username)
	return err == nil
}

// removeCreatedUser deletes an account created earlier in a flow that then failed.
func (s *Service) removeCreatedUser(ctx context.Context, username string) {
	if err := s.repos.Users.Delete(ctx, username); err != nil {
		log.Err(err).Str("username", username).Msg("failed to roll back account creation")
	}
}

func (s *Service) restoreAuthMethod(ctx context.Context, username string, method users.AuthMethod) {
	if err := s.repos.Users.SetAuthMethod(ctx, username, method); err != nil {
		log.Err(err).Str("username", username).Msg("failed to roll back auth method")
	}
}

// linkConflict names the uniqueness rule a failed link creation ran into.
func (s *Service) linkConflict(ctx context.Context, externalID string) error {
	if _, err := s.repos.Tokens.GetByExternalID(ctx, externalID); err == nil {
		return rperrors.ErrIdentityAlreadyLinked
	}
	return rperrors.ErrSessionUserAlreadyLinkedElsewhere
}

func (s *Service) rotateTokens(ctx context.Context, record *token.Record, identity Identity) error {
	applyTokens(record, identity, s.nowTime())
	if err := s.repos.Tokens.Update(ctx, record); err != nil {
		return errors.Wrap(err, "[Service.rotateTokens] Tokens.Update")
	}
	return nil
}

func applyTokens(record *token.Record, identity Identity, now time.Time) {
	record.AuthCode = identity.AuthCode
	record.UpdatedAt = now
	if t := identity.Tokens; t != nil {
		record.Scope = t.Scope
		record.Resource = t.Resource
		record.AccessToken = t.AccessToken
		record.RefreshToken = t.RefreshToken
		record.IDToken = t.IDToken
		record.Expiry = t.ExpiresOn
	}
}

// loadForLogin fetches a user that is allowed to sign in externally.
func (s *Service) loadForLogin(ctx context.Context, username string) (*users.User, error) {
	user, err := s.repos.Users.GetByUsername(ctx, username)
	if err != nil {
		if rperrors.Is(err, rperrors.ErrNotFound) {
			return nil, rperrors.ErrLoginFailed
		}
		return nil, errors.Wrap(err, "[Service.loadForLogin] Users.GetByUsername")
	}
	if user.Suspended || !user.UsesExternalAuth() {
		return nil, rperrors.ErrLoginFailed
	}
	return user, nil
}

// authenticate signs user in, recording the login time.
func (s *Service) authenticate(ctx context.Context, user *users.User) error {
	if user.Suspended || !user.UsesExternalAuth() {
		return rperrors.ErrLoginFailed
	}
	if err := s.repos.Users.RecordLogin(ctx, user.Username, s.nowTime()); err != nil {
		return errors.Wrap(err, "[Service.authenticate] Users.RecordLogin")
	}
	return nil
}

func (s *Service) emitLinked(ctx context.Context, identity Identity, username string) {
	s.emit(ctx, audit.EventIdentityLinked, func(e *audit.Event) {
		e.Username = username
		e.ExternalID = identity.ExternalID
	})
}

func (s *Service) emitLoggedIn(ctx context.Context, identity Identity, username string) {
	s.emit(ctx, audit.EventUserLoggedIn, func(e *audit.Event) {
		e.Username = username
		e.ExternalID = identity.ExternalID
	})
}
