package auth

import (
	"context"
	"time"

	"github.com/jrsteele09/go-oidc-connector/audit"
	"github.com/jrsteele09/go-oidc-connector/authstate"
	"github.com/jrsteele09/go-oidc-connector/idp"
	"github.com/jrsteele09/go-oidc-connector/idtoken"
	rperrors "github.com/jrsteele09/go-oidc-connector/internal/errors"
	"github.com/jrsteele09/go-oidc-connector/internal/metrics"
	"github.com/jrsteele09/go-oidc-connector/token"
	"github.com/jrsteele09/go-oidc-connector/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Repos holds all repository dependencies for the Service
type Repos struct {
	Users  users.Repo     // Local user directory
	Tokens token.Repo     // External identity links and their tokens
	States authstate.Repo // Outstanding state/nonce pairs
}

// Provider is the OpenID provider as seen by the Service. *idp.Client implements it.
type Provider interface {
	AuthorizationURL(state, nonce, codeVerifier string) (string, error)
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*idp.TokenResponse, error)
}

// TokenVerifier checks an identity token and returns its claims. *idtoken.Verifier implements it.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*idtoken.Claims, error)
}

// Service runs the relying-party side of the authorization code flow and
// reconciles external identities with local accounts.
type Service struct {
	repos    Repos
	states   *authstate.Store
	provider Provider
	verifier TokenVerifier

	auditSink    audit.Sink
	metrics      *metrics.Metrics
	providerName string
	stateTTL     time.Duration

	preventAccountCreation bool
	linkExistingAccounts   bool

	nowTime func() time.Time // nowTime function (injectable for testing)
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// WithAuditSink sets where audit events go. Defaults to the global logger.
func WithAuditSink(sink audit.Sink) ServiceOption {
	return func(s *Service) {
		s.auditSink = sink
	}
}

// WithMetrics sets the metrics the service reports to.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithProviderName sets the provider's display name, used on audit events and profiles.
func WithProviderName(name string) ServiceOption {
	return func(s *Service) {
		s.providerName = name
	}
}

// WithStateTTL overrides how long an issued state stays valid.
func WithStateTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.stateTTL = ttl
	}
}

// WithPreventAccountCreation stops first-time external logins from creating local accounts.
func WithPreventAccountCreation(prevent bool) ServiceOption {
	return func(s *Service) {
		s.preventAccountCreation = prevent
	}
}

// WithLinkExistingAccounts lets an external login take over an existing
// password account whose username matches the derived username.
func WithLinkExistingAccounts(link bool) ServiceOption {
	return func(s *Service) {
		s.linkExistingAccounts = link
	}
}

// NewService initializes a new Service with required dependencies.
func NewService(repos Repos, provider Provider, verifier TokenVerifier, options ...ServiceOption) (*Service, error) {
	if repos.Users == nil {
		return nil, errors.New("[NewService] Users repo is required")
	}
	if repos.Tokens == nil {
		return nil, errors.New("[NewService] Tokens repo is required")
	}
	if repos.States == nil {
		return nil, errors.New("[NewService] States repo is required")
	}
	if provider == nil {
		return nil, errors.New("[NewService] provider is required")
	}
	if verifier == nil {
		return nil, errors.New("[NewService] verifier is required")
	}

	s := &Service{
		repos:     repos,
		provider:  provider,
		verifier:  verifier,
		auditSink: audit.NewLogSink(log.Logger),
		nowTime:   time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}

	states, err := authstate.NewStore(repos.States,
		authstate.WithNowTime(func() time.Time { return s.nowTime() }),
		authstate.WithTTL(s.stateTTL),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[NewService] authstate.NewStore")
	}
	s.states = states
	return s, nil
}

// BeginAuth issues a state/nonce pair with a PKCE verifier and returns the
// provider URL the browser should be redirected to.
func (s *Service) BeginAuth(ctx context.Context) (string, error) {
	authState, err := s.states.Issue(ctx)
	if err != nil {
		return "", errors.Wrap(err, "[Service.BeginAuth] states.Issue")
	}
	authURL, err := s.provider.AuthorizationURL(authState.State, authState.Nonce, authState.CodeVerifier)
	if err != nil {
		return "", errors.Wrap(err, "[Service.BeginAuth] provider.AuthorizationURL")
	}
	s.metrics.AuthStarted.Inc()
	return authURL, nil
}

// CompleteAuth handles the provider's callback. The state is consumed first,
// whatever else is wrong with the request, and nothing is written until the
// code exchange and every token check have succeeded.
func (s *Service) CompleteAuth(ctx context.Context, params CallbackParams, session SessionContext) (*Result, error) {
	identity, err := s.verifyCallback(ctx, params)
	if err != nil {
		s.recordFailure(ctx, Identity{}, session, err)
		return nil, err
	}

	result, err := s.Resolve(ctx, *identity, session)
	if err != nil {
		s.metrics.AuthFailures.WithLabelValues(ErrorReason(err)).Inc()
		return nil, err
	}
	s.metrics.AuthOutcomes.WithLabelValues(string(result.Action)).Inc()
	return result, nil
}

func (s *Service) verifyCallback(ctx context.Context, params CallbackParams) (*Identity, error) {
	authState, err := s.states.Consume(ctx, params.State)
	if err != nil {
		return nil, err
	}

	if params.Error != "" {
		log.Info().Str("error", params.Error).Str("description", params.ErrorDescription).Msg("provider returned an error")
		return nil, errors.Wrapf(rperrors.ErrAuthorizationCodeMissing, "provider error %s", params.Error)
	}
	if params.Code == "" {
		return nil, rperrors.ErrAuthorizationCodeMissing
	}

	start := time.Now()
	tokens, err := s.provider.ExchangeCode(ctx, params.Code, authState.CodeVerifier)
	s.metrics.ObserveExchange(start)
	if err != nil {
		return nil, err
	}

	claims, err := s.verifier.Verify(ctx, tokens.IDToken)
	if err != nil {
		return nil, err
	}
	if err := idtoken.Validate(claims, authState.Nonce); err != nil {
		return nil, err
	}

	return &Identity{
		ExternalID: claims.ExternalID(),
		AuthCode:   params.Code,
		Tokens:     tokens,
		Claims:     claims,
	}, nil
}

// PurgeExpiredStates removes state/nonce pairs older than the state TTL.
// It is meant to be run periodically.
func (s *Service) PurgeExpiredStates(ctx context.Context) (int, error) {
	removed, err := s.states.PurgeExpired(ctx, 0)
	if err != nil {
		return 0, errors.Wrap(err, "[Service.PurgeExpiredStates]")
	}
	s.metrics.StatesPurged.Add(float64(removed))
	return removed, nil
}

func (s *Service) emit(ctx context.Context, eventType audit.EventType, mutate func(*audit.Event)) {
	event := audit.NewEvent(eventType, s.nowTime())
	event.Provider = s.providerName
	if mutate != nil {
		mutate(&event)
	}
	if err := s.auditSink.Emit(ctx, event); err != nil {
		log.Err(err).Str("event", string(eventType)).Msg("failed to emit audit event")
	}
}

func (s *Service) recordFailure(ctx context.Context, identity Identity, session SessionContext, err error) {
	reason := ErrorReason(err)
	s.metrics.AuthFailures.WithLabelValues(reason).Inc()
	s.emit(ctx, audit.EventUserLoginFailed, func(e *audit.Event) {
		e.ExternalID = identity.ExternalID
		e.Username = session.Username
		e.Reason = reason
	})
}
