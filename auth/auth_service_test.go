package auth_test

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-oidc-connector/audit"
	"github.com/jrsteele09/go-oidc-connector/auth"
	fakestaterepo "github.com/jrsteele09/go-oidc-connector/authstate/repofake"
	"github.com/jrsteele09/go-oidc-connector/idp"
	"github.com/jrsteele09/go-oidc-connector/idtoken"
	"github.com/jrsteele09/go-oidc-connector/idtoken/idtokentest"
	rperrors "github.com/jrsteele09/go-oidc-connector/internal/errors"
	"github.com/jrsteele09/go-oidc-connector/internal/metrics"
	tokenfakerepo "github.com/jrsteele09/go-oidc-connector/token/repofake"
	fakeuserrepo "github.com/jrsteele09/go-oidc-connector/users/repofake"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

const testClientID = "client-1"

type fakeProvider struct {
	mu        sync.Mutex
	response  *idp.TokenResponse
	err       error
	exchanges int
	lastCode  string

	verifiers    map[string]string // state to code verifier sent on the authorization request
	lastVerifier string
}

func (p *fakeProvider) AuthorizationURL(state, nonce, codeVerifier string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.verifiers == nil {
		p.verifiers = make(map[string]string)
	}
	p.verifiers[state] = codeVerifier
	return idp.BuildAuthorizationURL(testClientID, "https://rp.example.com/auth/oidc/callback",
		"https://idp.example.com/authorize", state, nonce, idp.DefaultScope)
}

func (p *fakeProvider) ExchangeCode(_ context.Context, code, codeVerifier string) (*idp.TokenResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exchanges++
	p.lastCode = code
	p.lastVerifier = codeVerifier
	if p.err != nil {
		return nil, p.err
	}
	resp := *p.response
	return &resp, nil
}

func (p *fakeProvider) respond(resp *idp.TokenResponse) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.response = resp
}

func (p *fakeProvider) exchangeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exchanges
}

type testFixture struct {
	service  *auth.Service
	users    *fakeuserrepo.FakeUserRepo
	tokens   *tokenfakerepo.FakeTokenRepo
	states   *fakestaterepo.FakeStateRepo
	provider *fakeProvider
	signer   *idtokentest.Signer
	sink     *audit.MemorySink
	metrics  *metrics.Metrics
	now      time.Time
}

func setupTestFixture(t *testing.T, options ...auth.ServiceOption) *testFixture {
	t.Helper()
	f := &testFixture{
		users:    fakeuserrepo.NewFakeUserRepo(),
		tokens:   tokenfakerepo.NewFakeTokenRepo(),
		states:   fakestaterepo.NewFakeStateRepo(),
		provider: &fakeProvider{},
		signer:   idtokentest.NewSigner(t),
		sink:     &audit.MemorySink{},
		metrics:  metrics.New(),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	nowFn := func() time.Time { return f.now }
	verifier := idtoken.NewStaticVerifier(testClientID, "", f.signer.PublicKeys(), nowFn)

	opts := append([]auth.ServiceOption{
		auth.WithNowTime(nowFn),
		auth.WithAuditSink(f.sink),
		auth.WithMetrics(f.metrics),
		auth.WithProviderName("Test IdP"),
	}, options...)

	service, err := auth.NewService(auth.Repos{
		Users:  f.users,
		Tokens: f.tokens,
		States: f.states,
	}, f.provider, verifier, opts...)
	require.NoError(t, err)
	f.service = service
	return f
}

func (f *testFixture) claims(subject, nonce string) map[string]any {
	return map[string]any{
		"aud":         testClientID,
		"sub":         subject,
		"nonce":       nonce,
		"given_name":  "Ada",
		"family_name": "Lovelace",
		"email":       "ada@example.com",
		"exp":         f.now.Add(time.Hour).Unix(),
		"iat":         f.now.Unix(),
	}
}

// begin starts a flow and returns the state and nonce sent to the provider.
func (f *testFixture) begin(t *testing.T) (string, string) {
	t.Helper()
	raw, err := f.service.BeginAuth(context.Background())
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Query().Get("state"), u.Query().Get("nonce")
}

func (f *testFixture) tokenResponse(idToken string) *idp.TokenResponse {
	return &idp.TokenResponse{
		AccessToken:  "at-" + f.now.Format(time.RFC3339),
		RefreshToken: "rt-1",
		IDToken:      idToken,
		Scope:        "openid profile email",
		TokenType:    "Bearer",
		ExpiresOn:    f.now.Add(time.Hour),
	}
}

func TestNewService_RequiresDependencies(t *testing.T) {
	f := setupTestFixture(t)
	repos := auth.Repos{Users: f.users, Tokens: f.tokens, States: f.states}
	verifier := idtoken.NewStaticVerifier(testClientID, "", f.signer.PublicKeys(), nil)

	_, err := auth.NewService(auth.Repos{Tokens: f.tokens, States: f.states}, f.provider, verifier)
	require.Error(t, err)
	_, err = auth.NewService(auth.Repos{Users: f.users, States: f.states}, f.provider, verifier)
	require.Error(t, err)
	_, err = auth.NewService(auth.Repos{Users: f.users, Tokens: f.tokens}, f.provider, verifier)
	require.Error(t, err)
	_, err = auth.NewService(repos, nil, verifier)
	require.Error(t, err)
	_, err = auth.NewService(repos, f.provider, nil)
	require.Error(t, err)
}

func TestBeginAuth(t *testing.T) {
	f := setupTestFixture(t)

	state, nonce := f.begin(t)
	require.Len(t, state, 43)
	require.Len(t, nonce, 43)
	require.Equal(t, 1, f.states.Len())
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AuthStarted))
}

func TestCompleteAuth_NewLogin(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	state, nonce := f.begin(t)
	f.provider.respond(f.tokenResponse(f.signer.Sign(t, f.claims("ABC123", nonce))))

	result, err := f.service.CompleteAuth(ctx, auth.CallbackParams{State: state, Code: "code-1"}, auth.SessionContext{})
	require.NoError(t, err)
	require.Equal(t, auth.ActionCreated, result.Action)
	require.Equal(t, "abc123", result.Username)
	require.False(t, result.Migration())
	require.Equal(t, "code-1", f.provider.lastCode)
	require.Len(t, f.provider.verifiers[state], 43)
	require.Equal(t, f.provider.verifiers[state], f.provider.lastVerifier, "verifier issued with the state is sent on exchange")
	require.Zero(t, f.states.Len(), "state consumed")

	record, err := f.tokens.GetByExternalID(ctx, "ABC123")
	require.NoError(t, err)
	require.Equal(t, "abc123", record.Username)
	require.Equal(t, "code-1", record.AuthCode)

	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AuthOutcomes.WithLabelValues(string(auth.ActionCreated))))
	require.Equal(t, []audit.EventType{audit.EventUserCreated}, f.sink.Types())
}

func TestCompleteAuth_ReplayedState(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	state, nonce := f.begin(t)
	f.provider.respond(f.tokenResponse(f.signer.Sign(t, f.claims("abc123", nonce))))

	_, err := f.service.CompleteAuth(ctx, auth.CallbackParams{State: state, Code: "code-1"}, auth.SessionContext{})
	require.NoError(t, err)

	_, err = f.service.CompleteAuth(ctx, auth.CallbackParams{State: state, Code: "code-1"}, auth.SessionContext{})
	require.ErrorIs(t, err, rperrors.ErrUnknownState)
	require.Equal(t, 1, f.provider.exchangeCount(), "replay never reaches the token endpoint")
}

func TestCompleteAuth_ExpiredState(t *testing.T) {
	f := setupTestFixture(t)

	state, _ := f.begin(t)
	f.now = f.now.Add(6 * time.Minute)

	_, err := f.service.CompleteAuth(context.Background(), auth.CallbackParams{State: state, Code: "c"}, auth.SessionContext{})
	require.ErrorIs(t, err, rperrors.ErrUnknownState)
	require.Zero(t, f.provider.exchangeCount())
}

func TestCompleteAuth_Failures(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, f *testFixture, nonce string) auth.CallbackParams
		want    error
	}{
		{
			name: "provider error",
			prepare: func(t *testing.T, f *testFixture, nonce string) auth.CallbackParams {
				return auth.CallbackParams{Error: "access_denied", ErrorDescription: "user cancelled"}
			},
			want: rperrors.ErrAuthorizationCodeMissing,
		},
		{
			name: "empty code",
			prepare: func(t *testing.T, f *testFixture, nonce string) auth.CallbackParams {
				return auth.CallbackParams{}
			},
			want: rperrors.ErrAuthorizationCodeMissing,
		},
		{
			name: "exchange failed",
			prepare: func(t *testing.T, f *testFixture, nonce string) auth.CallbackParams {
				f.provider.err = rperrors.Wrapf(rperrors.ErrTokenRequestFailed, "status 400")
				return auth.CallbackParams{Code: "c"}
			},
			want: rperrors.ErrTokenRequestFailed,
		},
		{
			name: "malformed id token",
			prepare: func(t *testing.T, f *testFixture, nonce string) auth.CallbackParams {
				f.provider.respond(f.tokenResponse("garbage"))
				return auth.CallbackParams{Code: "c"}
			},
			want: rperrors.ErrMalformedIdentityToken,
		},
		{
			name: "forged id token",
			prepare: func(t *testing.T, f *testFixture, nonce string) auth.CallbackParams {
				forger := idtokentest.NewSigner(t)
				f.provider.respond(f.tokenResponse(forger.Sign(t, f.claims("abc123", nonce))))
				return auth.CallbackParams{Code: "c"}
			},
			want: rperrors.ErrInvalidIdentityToken,
		},
		{
			name: "unsigned id token",
			prepare: func(t *testing.T, f *testFixture, nonce string) auth.CallbackParams {
				f.provider.respond(f.tokenResponse(idtokentest.Unsigned(t, f.claims("abc123", nonce))))
				return auth.CallbackParams{Code: "c"}
			},
			want: rperrors.ErrInvalidIdentityToken,
		},
		{
			name: "nonce mismatch",
			prepare: func(t *testing.T, f *testFixture, nonce string) auth.CallbackParams {
				f.provider.respond(f.tokenResponse(f.signer.Sign(t, f.claims("abc123", "other-nonce"))))
				return auth.CallbackParams{Code: "c"}
			},
			want: rperrors.ErrNonceMismatch,
		},
		{
			name: "missing subject",
			prepare: func(t *testing.T, f *testFixture, nonce string) auth.CallbackParams {
				f.provider.respond(f.tokenResponse(f.signer.Sign(t, f.claims("", nonce))))
				return auth.CallbackParams{Code: "c"}
			},
			want: rperrors.ErrMissingSubject,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			state, nonce := f.begin(t)
			params := tt.prepare(t, f, nonce)
			params.State = state

			_, err := f.service.CompleteAuth(context.Background(), params, auth.SessionContext{})
			require.ErrorIs(t, err, tt.want)

			require.Zero(t, f.states.Len(), "state consumed even on failure")
			require.Zero(t, f.users.Len(), "no account written")
			require.Zero(t, f.tokens.Len(), "no link written")
			require.Equal(t, []audit.EventType{audit.EventUserLoginFailed}, f.sink.Types())
			require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AuthFailures.WithLabelValues(auth.ErrorReason(tt.want))))
		})
	}
}

func TestPurgeExpiredStates(t *testing.T) {
	f := setupTestFixture(t)

	f.begin(t)
	f.now = f.now.Add(2 * time.Minute)
	f.begin(t)
	f.now = f.now.Add(4 * time.Minute)

	removed, err := f.service.PurgeExpiredStates(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.Equal(t, 1, f.states.Len())
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.StatesPurged))
}

func TestErrorReason(t *testing.T) {
	require.Equal(t, "unknown state", auth.ErrorReason(rperrors.Wrapf(rperrors.ErrUnknownState, "ctx")))
	require.Equal(t, "account creation disabled", auth.ErrorReason(rperrors.ErrAccountCreationDisabled))
	require.Equal(t, "internal error", auth.ErrorReason(errors.New("db down")))
}
