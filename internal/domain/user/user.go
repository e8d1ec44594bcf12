package user

import (
	"errors"
	"time"
)

type Provider string

const (
	ProviderLocal  Provider = "local"
	ProviderGoogle Provider = "google"
)

// Store-level failures shared by every UsersRepo implementation.
var (
	ErrNotFound      = errors.New("user not found")
	ErrEmailTaken    = errors.New("email already in use")
	ErrGoogleIDTaken = errors.New("google id already linked")
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	AuthProvider Provider  `json:"authProvider"`
	PasswordHash string    `json:"-"` // never expose hash in JSON
	GoogleID     *string   `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NewUser is what a store needs to create a record; the store assigns ID and timestamps.
type NewUser struct {
	Name         string
	Email        string
	AuthProvider Provider
	PasswordHash string
	GoogleID     *string
}

// Public is the shape returned to API callers.
type Public struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u User) Public() Public {
	return Public{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

func (u User) IsLocal() bool {
	return u.AuthProvider == ProviderLocal
}

func (u User) HasGoogleID(id string) bool {
	return u.GoogleID != nil && *u.GoogleID == id
}

type SignUpRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=120"`
	Email    string `json:"email" binding:"required,email,max=254"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}
