package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/geocoder89/sessionauth/internal/auth"
	"github.com/geocoder89/sessionauth/internal/domain/user"
	"github.com/geocoder89/sessionauth/internal/identity"
	"github.com/geocoder89/sessionauth/internal/validation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrUnauthorized covers a missing, malformed, forged or expired token, and a token whose user is gone.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUserNotFound is a refresh token pointing at a user that no longer exists.
	ErrUserNotFound = errors.New("user not found")
)

type Identities interface {
	SignUp(ctx context.Context, req user.SignUpRequest) (user.User, error)
	Login(ctx context.Context, req user.LoginRequest) (user.User, error)
	ResolveOAuth(ctx context.Context, code string) (user.User, error)
	AuthURL() string
}

type UserReader interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

type Tokens interface {
	GenerateAccessToken(userID, email string) (string, error)
	GenerateRefreshToken(userID, email string) (string, error)
	VerifyAccessToken(token string) (auth.Identity, error)
	VerifyRefreshToken(token string) (auth.Identity, error)
}

// Recorder receives per-operation outcomes. *observability.Prom satisfies it.
type Recorder interface {
	ObserveAuth(op, outcome string)
	TokenIssued(class string)
}

type Options struct {
	Logger  *slog.Logger
	Metrics Recorder
	// Tracing defaults to the global provider.
	Tracing trace.TracerProvider
}

// Result is a completed authentication: the user plus a fresh token pair.
// The refresh token is meant for cookie transport, never the response body.
type Result struct {
	User         user.User
	AccessToken  string
	RefreshToken string
}

type Service struct {
	identities Identities
	users      UserReader
	tokens     Tokens
	log        *slog.Logger
	metrics    Recorder
	tracer     trace.Tracer
}

func NewService(identities Identities, users UserReader, tokens Tokens, opts Options) *Service {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = noopRecorder{}
	}

	tracing := opts.Tracing
	if tracing == nil {
		tracing = otel.GetTracerProvider()
	}

	return &Service{
		identities: identities,
		users:      users,
		tokens:     tokens,
		log:        log,
		metrics:    metrics,
		tracer:     tracing.Tracer("github.com/geocoder89/sessionauth/internal/session"),
	}
}

func (s *Service) SignUp(ctx context.Context, req user.SignUpRequest) (res Result, err error) {
	ctx, done := s.begin(ctx, "signup")
	defer func() { done(err) }()

	u, err := s.identities.SignUp(ctx, req)
	if err != nil {
		return Result{}, err
	}

	s.log.InfoContext(ctx, "user signed up", "user_id", u.ID)
	return s.issuePair(u)
}

func (s *Service) Login(ctx context.Context, req user.LoginRequest) (res Result, err error) {
	ctx, done := s.begin(ctx, "login")
	defer func() { done(err) }()

	u, err := s.identities.Login(ctx, req)
	if err != nil {
		return Result{}, err
	}

	return s.issuePair(u)
}

// Refresh mints a new access token. The refresh token is not rotated and stays valid until it expires.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (accessToken string, err error) {
	ctx, done := s.begin(ctx, "refresh")
	defer func() { done(err) }()

	if refreshToken == "" {
		return "", ErrUnauthorized
	}

	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		s.log.DebugContext(ctx, "refresh token rejected", "reason", tokenFailure(err))
		return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	u, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("load user: %w", err)
	}

	accessToken, err = s.tokens.GenerateAccessToken(u.ID, u.Email)
	if err != nil {
		return "", err
	}
	s.metrics.TokenIssued("access")

	return accessToken, nil
}

func (s *Service) WhoAmI(ctx context.Context, accessToken string) (u user.User, err error) {
	ctx, done := s.begin(ctx, "me")
	defer func() { done(err) }()

	if accessToken == "" {
		return user.User{}, ErrUnauthorized
	}

	claims, err := s.tokens.VerifyAccessToken(accessToken)
	if err != nil {
		s.log.DebugContext(ctx, "access token rejected", "reason", tokenFailure(err))
		return user.User{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	return s.loadActive(ctx, claims.UserID)
}

func (s *Service) OAuthURL() string {
	return s.identities.AuthURL()
}

func (s *Service) OAuthResolve(ctx context.Context, code string) (res Result, err error) {
	ctx, done := s.begin(ctx, "oauth")
	defer func() { done(err) }()

	u, err := s.identities.ResolveOAuth(ctx, code)
	if err != nil {
		return Result{}, err
	}

	return s.issuePair(u)
}

func (s *Service) loadActive(ctx context.Context, userID string) (user.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.User{}, fmt.Errorf("%w: %w", ErrUnauthorized, ErrUserNotFound)
		}
		return user.User{}, fmt.Errorf("load user: %w", err)
	}

	return u, nil
}

func (s *Service) issuePair(u user.User) (Result, error) {
	access, err := s.tokens.GenerateAccessToken(u.ID, u.Email)
	if err != nil {
		return Result{}, err
	}

	refresh, err := s.tokens.GenerateRefreshToken(u.ID, u.Email)
	if err != nil {
		return Result{}, err
	}

	s.metrics.TokenIssued("access")
	s.metrics.TokenIssued("refresh")

	return Result{User: u, AccessToken: access, RefreshToken: refresh}, nil
}

// begin opens a span for op and returns a closer that records the outcome on span and metrics.
func (s *Service) begin(ctx context.Context, op string) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "session."+op)

	return ctx, func(err error) {
		outcome := Outcome(err)
		span.SetAttributes(attribute.String("auth.outcome", outcome))
		if err != nil && outcome == "error" {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
		s.metrics.ObserveAuth(op, outcome)
	}
}

// Outcome names the error class of err for metrics and logs.
func Outcome(err error) string {
	var verr *validation.Error

	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &verr):
		return "invalid_input"
	case errors.Is(err, identity.ErrEmailInUse):
		return "email_in_use"
	case errors.Is(err, identity.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, identity.ErrLinkRejected):
		return "link_rejected"
	case errors.Is(err, identity.ErrOAuthExchangeFailed):
		return "oauth_failed"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	default:
		return "error"
	}
}

func tokenFailure(err error) string {
	if errors.Is(err, auth.ErrExpiredToken) {
		return "expired"
	}
	return "invalid"
}

type noopRecorder struct{}

func (noopRecorder) ObserveAuth(string, string) {}
func (noopRecorder) TokenIssued(string)         {}
