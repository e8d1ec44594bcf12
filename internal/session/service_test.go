package session_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/geocoder89/sessionauth/internal/auth"
	"github.com/geocoder89/sessionauth/internal/domain/user"
	"github.com/geocoder89/sessionauth/internal/identity"
	"github.com/geocoder89/sessionauth/internal/observability"
	"github.com/geocoder89/sessionauth/internal/repo/memory"
	"github.com/geocoder89/sessionauth/internal/security"
	"github.com/geocoder89/sessionauth/internal/session"
	"github.com/geocoder89/sessionauth/internal/validation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/crypto/bcrypt"
)

type fakeProvider struct {
	profile auth.ProviderProfile
	err     error
}

func (f fakeProvider) AuthURL(string) string { return "https://accounts.example.com/auth" }

func (f fakeProvider) Exchange(context.Context, string) (auth.ProviderProfile, error) {
	return f.profile, f.err
}

type recorder struct {
	outcomes map[string]int
	tokens   map[string]int
}

func newRecorder() *recorder {
	return &recorder{outcomes: map[string]int{}, tokens: map[string]int{}}
}

func (r *recorder) ObserveAuth(op, outcome string) { r.outcomes[op+":"+outcome]++ }
func (r *recorder) TokenIssued(class string)       { r.tokens[class]++ }

type fixture struct {
	svc     *session.Service
	repo    *memory.UsersRepo
	tokens  *auth.Manager
	metrics *recorder
	clock   *time.Time
}

func newFixture(t *testing.T, provider identity.Provider) fixture {
	t.Helper()

	clock := time.Now()
	tokens, err := auth.NewManager(
		auth.DomainConfig{Secret: "access-secret", TTL: 15 * time.Minute},
		auth.DomainConfig{Secret: "refresh-secret", TTL: 7 * 24 * time.Hour},
	)
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}
	tokens = tokens.WithClock(func() time.Time { return clock })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.NewUsersRepo()
	resolver := identity.NewResolver(repo, security.NewHasher(bcrypt.MinCost), provider, identity.Options{Logger: logger})
	metrics := newRecorder()

	svc := session.NewService(resolver, repo, tokens, session.Options{Logger: logger, Metrics: metrics})

	return fixture{svc: svc, repo: repo, tokens: tokens, metrics: metrics, clock: &clock}
}

func TestService_SignupLoginScenario(t *testing.T) {
	f := newFixture(t, fakeProvider{})
	ctx := context.Background()

	signed, err := f.svc.SignUp(ctx, user.SignUpRequest{Name: "Ann", Email: "ann@x.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if signed.User.Email != "ann@x.com" || signed.AccessToken == "" || signed.RefreshToken == "" {
		t.Fatalf("unexpected signup result: %+v", signed)
	}

	_, err = f.svc.SignUp(ctx, user.SignUpRequest{Name: "Ann", Email: "ann@x.com", Password: "secret1"})
	if !errors.Is(err, identity.ErrEmailInUse) {
		t.Fatalf("expected ErrEmailInUse, got %v", err)
	}

	_, err = f.svc.Login(ctx, user.LoginRequest{Email: "ann@x.com", Password: "wrong-pw"})
	if !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	logged, err := f.svc.Login(ctx, user.LoginRequest{Email: "ann@x.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if logged.User.ID != signed.User.ID {
		t.Fatalf("user id not stable: %s vs %s", logged.User.ID, signed.User.ID)
	}
	if logged.AccessToken == "" || logged.RefreshToken == "" {
		t.Fatalf("login must issue a token pair")
	}

	if f.metrics.outcomes["signup:ok"] != 1 || f.metrics.outcomes["signup:email_in_use"] != 1 {
		t.Fatalf("unexpected signup metrics: %v", f.metrics.outcomes)
	}
	if f.metrics.outcomes["login:invalid_credentials"] != 1 || f.metrics.outcomes["login:ok"] != 1 {
		t.Fatalf("unexpected login metrics: %v", f.metrics.outcomes)
	}
	if f.metrics.tokens["access"] != 2 || f.metrics.tokens["refresh"] != 2 {
		t.Fatalf("unexpected token metrics: %v", f.metrics.tokens)
	}
}

func TestService_SignupValidation(t *testing.T) {
	f := newFixture(t, fakeProvider{})

	_, err := f.svc.SignUp(context.Background(), user.SignUpRequest{Name: "A", Email: "nope", Password: "123"})

	var verr *validation.Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if f.repo.Count() != 0 {
		t.Fatalf("invalid input must not write")
	}
}

func TestService_RefreshThenWhoAmI(t *testing.T) {
	f := newFixture(t, fakeProvider{})
	ctx := context.Background()

	signed, err := f.svc.SignUp(ctx, user.SignUpRequest{Name: "Ann", Email: "ann@x.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	for i := 0; i < 2; i++ {
		access, err := f.svc.Refresh(ctx, signed.RefreshToken)
		if err != nil {
			t.Fatalf("refresh #%d: %v", i+1, err)
		}

		me, err := f.svc.WhoAmI(ctx, access)
		if err != nil {
			t.Fatalf("whoami #%d: %v", i+1, err)
		}
		if me.Public() != signed.User.Public() {
			t.Fatalf("whoami mismatch: %+v vs %+v", me.Public(), signed.User.Public())
		}
	}
}

func TestService_RefreshFailures(t *testing.T) {
	f := newFixture(t, fakeProvider{})
	ctx := context.Background()

	signed, _ := f.svc.SignUp(ctx, user.SignUpRequest{Name: "Ann", Email: "ann@x.com", Password: "secret1"})

	if _, err := f.svc.Refresh(ctx, ""); !errors.Is(err, session.ErrUnauthorized) {
		t.Fatalf("empty token: expected ErrUnauthorized, got %v", err)
	}

	// an access token is not a refresh token
	if _, err := f.svc.Refresh(ctx, signed.AccessToken); !errors.Is(err, session.ErrUnauthorized) {
		t.Fatalf("access as refresh: expected ErrUnauthorized, got %v", err)
	}

	*f.clock = f.clock.Add(8 * 24 * time.Hour)
	_, err := f.svc.Refresh(ctx, signed.RefreshToken)
	if !errors.Is(err, session.ErrUnauthorized) || !errors.Is(err, auth.ErrExpiredToken) {
		t.Fatalf("expired refresh: expected ErrUnauthorized+ErrExpiredToken, got %v", err)
	}
}

func TestService_RefreshForDeletedUser(t *testing.T) {
	f := newFixture(t, fakeProvider{})
	ctx := context.Background()

	signed, _ := f.svc.SignUp(ctx, user.SignUpRequest{Name: "Ann", Email: "ann@x.com", Password: "secret1"})

	if err := f.repo.Delete(ctx, signed.User.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := f.svc.Refresh(ctx, signed.RefreshToken); !errors.Is(err, session.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	if _, err := f.svc.WhoAmI(ctx, signed.AccessToken); !errors.Is(err, session.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestService_WhoAmIRejectsBadTokens(t *testing.T) {
	f := newFixture(t, fakeProvider{})
	ctx := context.Background()

	signed, _ := f.svc.SignUp(ctx, user.SignUpRequest{Name: "Ann", Email: "ann@x.com", Password: "secret1"})

	tests := []struct {
		name  string
		token string
	}{
		{name: "missing", token: ""},
		{name: "garbage", token: "abc.def.ghi"},
		{name: "refresh token", token: signed.RefreshToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.WhoAmI(ctx, tt.token); !errors.Is(err, session.ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
		})
	}

	*f.clock = f.clock.Add(time.Hour)
	_, err := f.svc.WhoAmI(ctx, signed.AccessToken)
	if !errors.Is(err, session.ErrUnauthorized) || !errors.Is(err, auth.ErrExpiredToken) {
		t.Fatalf("expired access: got %v", err)
	}
}

func TestService_OAuthResolve(t *testing.T) {
	f := newFixture(t, fakeProvider{profile: auth.ProviderProfile{ProviderID: "g-1", Email: "ann@x.com", Name: "Ann", EmailVerified: true}})
	ctx := context.Background()

	res, err := f.svc.OAuthResolve(ctx, "code")
	if err != nil {
		t.Fatalf("oauth: %v", err)
	}
	if res.User.AuthProvider != user.ProviderGoogle || res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatalf("unexpected result: %+v", res)
	}

	id, err := f.tokens.VerifyRefreshToken(res.RefreshToken)
	if err != nil || id.UserID != res.User.ID {
		t.Fatalf("refresh token does not name the user: %+v err=%v", id, err)
	}

	if f.svc.OAuthURL() == "" {
		t.Fatalf("expected an authorization url")
	}
}

func TestService_OAuthFailureIsOpaque(t *testing.T) {
	f := newFixture(t, fakeProvider{err: errors.New("upstream said: client secret wrong")})

	_, err := f.svc.OAuthResolve(context.Background(), "code")
	if !errors.Is(err, identity.ErrOAuthExchangeFailed) {
		t.Fatalf("expected ErrOAuthExchangeFailed, got %v", err)
	}
	if f.metrics.outcomes["oauth:oauth_failed"] != 1 {
		t.Fatalf("unexpected metrics: %v", f.metrics.outcomes)
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: nil, want: "ok"},
		{err: validation.Field("email", "email", "bad"), want: "invalid_input"},
		{err: identity.ErrEmailInUse, want: "email_in_use"},
		{err: identity.ErrInvalidCredentials, want: "invalid_credentials"},
		{err: identity.ErrOAuthExchangeFailed, want: "oauth_failed"},
		{err: identity.ErrLinkRejected, want: "link_rejected"},
		{err: session.ErrUserNotFound, want: "user_not_found"},
		{err: session.ErrUnauthorized, want: "unauthorized"},
		{err: errors.New("db down"), want: "error"},
	}

	for _, tt := range tests {
		if got := session.Outcome(tt.err); got != tt.want {
			t.Fatalf("Outcome(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestService_SpansCarryOutcome(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp, err := observability.NewTracerProvider(context.Background(), observability.TracerConfig{ServiceName: "sessionauth-test"}, sdktrace.WithSpanProcessor(rec))
	if err != nil {
		t.Fatalf("tracer provider: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens, _ := auth.NewManager(
		auth.DomainConfig{Secret: "access-secret", TTL: time.Minute},
		auth.DomainConfig{Secret: "refresh-secret", TTL: time.Hour},
	)
	repo := memory.NewUsersRepo()
	resolver := identity.NewResolver(repo, security.NewHasher(bcrypt.MinCost), fakeProvider{}, identity.Options{Logger: logger})
	svc := session.NewService(resolver, repo, tokens, session.Options{Logger: logger, Tracing: tp})

	_, _ = svc.Login(context.Background(), user.LoginRequest{Email: "nobody@x.com", Password: "secret1"})

	spans := rec.Ended()
	if len(spans) != 1 || spans[0].Name() != "session.login" {
		t.Fatalf("unexpected spans: %d", len(spans))
	}

	found := false
	for _, attr := range spans[0].Attributes() {
		if attr.Key == "auth.outcome" && attr.Value.AsString() == "invalid_credentials" {
			found = true
		}
	}
	if !found {
		t.Fatalf("span is missing auth.outcome: %v", spans[0].Attributes())
	}
}
