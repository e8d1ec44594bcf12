package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/geocoder89/sessionauth/internal/auth"
	"github.com/geocoder89/sessionauth/internal/domain/user"
	"github.com/geocoder89/sessionauth/internal/security"
	"github.com/geocoder89/sessionauth/internal/validation"
)

var (
	ErrEmailInUse          = errors.New("email already in use")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrOAuthExchangeFailed = errors.New("oauth exchange failed")
	ErrLinkRejected        = errors.New("account link rejected by policy")
)

// LinkPolicy decides whether a federated login may claim an existing local account with the same email.
type LinkPolicy string

const (
	// LinkByEmail trusts the provider's email outright.
	LinkByEmail LinkPolicy = "email"
	// LinkVerifiedEmail links only when the provider marks the email as verified.
	LinkVerifiedEmail LinkPolicy = "verified-email"
	// LinkNever refuses to touch local accounts.
	LinkNever LinkPolicy = "never"
)

// Valid reports whether p is one of the known policies.
func (p LinkPolicy) Valid() bool {
	switch p {
	case LinkByEmail, LinkVerifiedEmail, LinkNever:
		return true
	}
	return false
}

type UserStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	Create(ctx context.Context, nu user.NewUser) (user.User, error)
	LinkGoogle(ctx context.Context, id, googleID string) (user.User, error)
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

type Provider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (auth.ProviderProfile, error)
}

type Options struct {
	LinkPolicy      LinkPolicy
	ExchangeTimeout time.Duration
	Logger          *slog.Logger
}

// Resolver turns credentials or an authorization code into a user record, creating or linking as needed.
type Resolver struct {
	users           UserStore
	hasher          PasswordHasher
	provider        Provider
	linkPolicy      LinkPolicy
	exchangeTimeout time.Duration
	log             *slog.Logger

	// compared against when the email is unknown so that path costs one bcrypt like the others
	dummyHash string
}

func NewResolver(users UserStore, hasher PasswordHasher, provider Provider, opts Options) *Resolver {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	policy := opts.LinkPolicy
	if policy == "" {
		policy = LinkByEmail
	}

	timeout := opts.ExchangeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	dummy, err := hasher.Hash("timing-equaliser-not-a-password")
	if err != nil {
		log.Warn("could not prepare dummy hash", "err", err)
	}

	return &Resolver{
		users:           users,
		hasher:          hasher,
		provider:        provider,
		linkPolicy:      policy,
		exchangeTimeout: timeout,
		log:             log,
		dummyHash:       dummy,
	}
}

func (r *Resolver) SignUp(ctx context.Context, req user.SignUpRequest) (user.User, error) {
	if err := validation.Struct(req); err != nil {
		return user.User{}, err
	}

	_, err := r.users.GetByEmail(ctx, req.Email)
	if err == nil {
		return user.User{}, ErrEmailInUse
	}
	if !errors.Is(err, user.ErrNotFound) {
		return user.User{}, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := r.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooLong) {
			return user.User{}, validation.Field("password", "max", "must be at most 72 bytes")
		}
		return user.User{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := r.users.Create(ctx, user.NewUser{
		Name:         req.Name,
		Email:        req.Email,
		AuthProvider: user.ProviderLocal,
		PasswordHash: hash,
	})
	if err != nil {
		// lost a race with a concurrent signup; the store's unique constraint decided
		if errors.Is(err, user.ErrEmailTaken) {
			return user.User{}, ErrEmailInUse
		}
		return user.User{}, fmt.Errorf("create user: %w", err)
	}

	return created, nil
}

// Login answers ErrInvalidCredentials for an unknown email, a non-local account and a wrong password alike.
func (r *Resolver) Login(ctx context.Context, req user.LoginRequest) (user.User, error) {
	if err := validation.Struct(req); err != nil {
		return user.User{}, err
	}

	found, err := r.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			r.hasher.Verify(req.Password, r.dummyHash)
			return user.User{}, ErrInvalidCredentials
		}
		return user.User{}, fmt.Errorf("lookup email: %w", err)
	}

	if !found.IsLocal() {
		r.hasher.Verify(req.Password, r.dummyHash)
		return user.User{}, ErrInvalidCredentials
	}

	if !r.hasher.Verify(req.Password, found.PasswordHash) {
		return user.User{}, ErrInvalidCredentials
	}

	return found, nil
}

func (r *Resolver) AuthURL() string {
	return r.provider.AuthURL("")
}

// ResolveOAuth exchanges code with the provider and maps the profile onto a user record.
func (r *Resolver) ResolveOAuth(ctx context.Context, code string) (user.User, error) {
	if code == "" {
		return user.User{}, validation.Field("code", "required", "is required")
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, r.exchangeTimeout)
	defer cancel()

	profile, err := r.provider.Exchange(exchangeCtx, code)
	if err != nil {
		r.log.ErrorContext(ctx, "oauth exchange failed", "provider", user.ProviderGoogle, "err", err)
		return user.User{}, ErrOAuthExchangeFailed
	}

	if profile.Email == "" || profile.Name == "" || profile.ProviderID == "" {
		r.log.ErrorContext(ctx, "oauth profile incomplete", "provider", user.ProviderGoogle)
		return user.User{}, ErrOAuthExchangeFailed
	}

	return r.resolveProfile(ctx, profile, true)
}

func (r *Resolver) resolveProfile(ctx context.Context, profile auth.ProviderProfile, retryOnRace bool) (user.User, error) {
	existing, err := r.users.GetByEmail(ctx, profile.Email)

	switch {
	case errors.Is(err, user.ErrNotFound):
		return r.createFederated(ctx, profile, retryOnRace)
	case err != nil:
		return user.User{}, fmt.Errorf("lookup email: %w", err)
	}

	if !existing.IsLocal() {
		if !existing.HasGoogleID(profile.ProviderID) {
			r.log.WarnContext(ctx, "google subject differs from linked account", "user_id", existing.ID)
		}
		return existing, nil
	}

	if err := r.checkLink(profile); err != nil {
		r.log.WarnContext(ctx, "oauth link refused", "user_id", existing.ID, "policy", r.linkPolicy)
		return user.User{}, err
	}

	linked, err := r.users.LinkGoogle(ctx, existing.ID, profile.ProviderID)
	if err != nil {
		if errors.Is(err, user.ErrGoogleIDTaken) {
			r.log.ErrorContext(ctx, "google id already linked to another user", "user_id", existing.ID)
			return user.User{}, ErrOAuthExchangeFailed
		}
		return user.User{}, fmt.Errorf("link google: %w", err)
	}

	r.log.InfoContext(ctx, "local account linked to google", "user_id", linked.ID)
	return linked, nil
}

func (r *Resolver) createFederated(ctx context.Context, profile auth.ProviderProfile, retryOnRace bool) (user.User, error) {
	googleID := profile.ProviderID

	created, err := r.users.Create(ctx, user.NewUser{
		Name:         profile.Name,
		Email:        profile.Email,
		AuthProvider: user.ProviderGoogle,
		GoogleID:     &googleID,
	})
	if err == nil {
		return created, nil
	}

	switch {
	case errors.Is(err, user.ErrEmailTaken) && retryOnRace:
		// a concurrent request created this email first; resolve against the winner once
		return r.resolveProfile(ctx, profile, false)
	case errors.Is(err, user.ErrGoogleIDTaken):
		r.log.ErrorContext(ctx, "google id already linked to another email")
		return user.User{}, ErrOAuthExchangeFailed
	default:
		return user.User{}, fmt.Errorf("create user: %w", err)
	}
}

func (r *Resolver) checkLink(profile auth.ProviderProfile) error {
	switch r.linkPolicy {
	case LinkNever:
		return ErrLinkRejected
	case LinkVerifiedEmail:
		if !profile.EmailVerified {
			return ErrLinkRejected
		}
	}
	return nil
}
