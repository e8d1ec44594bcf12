package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

type Claims struct {
	Email     string `json:"email"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Identity is what a verified token vouches for.
type Identity struct {
	UserID string
	Email  string
}

// DomainConfig is one signing domain: its own secret and lifetime.
type DomainConfig struct {
	Secret string
	TTL    time.Duration
}

type domain struct {
	kind   string
	secret []byte
	ttl    time.Duration
}

// Manager signs and verifies access and refresh tokens. The two domains never share a secret,
// so a token from one never verifies in the other.
type Manager struct {
	access  domain
	refresh domain
	now     func() time.Time
}

func NewManager(access, refresh DomainConfig) (*Manager, error) {
	if access.Secret == "" || refresh.Secret == "" {
		return nil, errors.New("token secrets must not be empty")
	}

	if access.Secret == refresh.Secret {
		return nil, errors.New("access and refresh secrets must differ")
	}

	if access.TTL <= 0 || refresh.TTL <= 0 {
		return nil, errors.New("token ttl must be positive")
	}

	return &Manager{
		access:  domain{kind: tokenTypeAccess, secret: []byte(access.Secret), ttl: access.TTL},
		refresh: domain{kind: tokenTypeRefresh, secret: []byte(refresh.Secret), ttl: refresh.TTL},
		now:     time.Now,
	}, nil
}

// WithClock swaps the time source. Tests use it to step past expiry.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	clone := *m
	clone.now = now
	return &clone
}

func (m *Manager) AccessTTL() time.Duration  { return m.access.ttl }
func (m *Manager) RefreshTTL() time.Duration { return m.refresh.ttl }

func (m *Manager) GenerateAccessToken(userID, email string) (string, error) {
	return m.sign(m.access, userID, email)
}

func (m *Manager) GenerateRefreshToken(userID, email string) (string, error) {
	return m.sign(m.refresh, userID, email)
}

func (m *Manager) VerifyAccessToken(tokenStr string) (Identity, error) {
	return m.verify(m.access, tokenStr)
}

func (m *Manager) VerifyRefreshToken(tokenStr string) (Identity, error) {
	return m.verify(m.refresh, tokenStr)
}

func (m *Manager) sign(d domain, userID, email string) (string, error) {
	now := m.now().UTC()

	claims := Claims{
		Email:     email,
		TokenType: d.kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(d.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", d.kind, err)
	}

	return signed, nil
}

func (m *Manager) verify(d domain, tokenStr string) (Identity, error) {
	var claims Claims

	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		// Enforce HS256
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return d.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, fmt.Errorf("%w: %s", ErrExpiredToken, d.kind)
		}
		return Identity{}, fmt.Errorf("%w: %s: %v", ErrInvalidToken, d.kind, err)
	}

	if !token.Valid || claims.TokenType != d.kind || claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: %s claims", ErrInvalidToken, d.kind)
	}

	return Identity{UserID: claims.Subject, Email: claims.Email}, nil
}
