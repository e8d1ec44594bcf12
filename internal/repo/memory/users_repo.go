package memory

import (
	"context"
	"sync"
	"time"

	"github.com/geocoder89/sessionauth/internal/domain/user"
	"github.com/google/uuid"
)

// UsersRepo keeps users in maps. Uniqueness of email and google id is checked and applied
// under one lock, the same guarantee a unique index gives the postgres repo.
type UsersRepo struct {
	mu         sync.RWMutex
	items      map[string]user.User // {"id": user}
	byEmail    map[string]string
	byGoogleID map[string]string
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		items:      make(map[string]user.User),
		byEmail:    make(map[string]string),
		byGoogleID: make(map[string]string),
	}
}

func (r *UsersRepo) GetByEmail(_ context.Context, email string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	return cloneUser(r.items[id]), nil
}

func (r *UsersRepo) GetByID(_ context.Context, id string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.items[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	return cloneUser(u), nil
}

func (r *UsersRepo) Create(_ context.Context, nu user.NewUser) (user.User, error) {
	now := time.Now().UTC()

	u := user.User{
		ID:           uuid.NewString(),
		Name:         nu.Name,
		Email:        nu.Email,
		AuthProvider: nu.AuthProvider,
		PasswordHash: nu.PasswordHash,
		GoogleID:     copyString(nu.GoogleID),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[u.Email]; taken {
		return user.User{}, user.ErrEmailTaken
	}

	if u.GoogleID != nil {
		if _, taken := r.byGoogleID[*u.GoogleID]; taken {
			return user.User{}, user.ErrGoogleIDTaken
		}
		r.byGoogleID[*u.GoogleID] = u.ID
	}

	r.items[u.ID] = u
	r.byEmail[u.Email] = u.ID

	return cloneUser(u), nil
}

func (r *UsersRepo) LinkGoogle(_ context.Context, id, googleID string) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	if owner, taken := r.byGoogleID[googleID]; taken && owner != id {
		return user.User{}, user.ErrGoogleIDTaken
	}

	if u.GoogleID != nil {
		delete(r.byGoogleID, *u.GoogleID)
	}

	u.AuthProvider = user.ProviderGoogle
	u.GoogleID = &googleID
	u.UpdatedAt = time.Now().UTC()

	r.items[id] = u
	r.byGoogleID[googleID] = id

	return cloneUser(u), nil
}

// Delete exists for out-of-band removal; nothing in the session flow deletes users.
func (r *UsersRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok {
		return user.ErrNotFound
	}

	delete(r.items, id)
	delete(r.byEmail, u.Email)
	if u.GoogleID != nil {
		delete(r.byGoogleID, *u.GoogleID)
	}

	return nil
}

func (r *UsersRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

func (r *UsersRepo) Ping(context.Context) error {
	return nil
}

func cloneUser(u user.User) user.User {
	u.GoogleID = copyString(u.GoogleID)
	return u
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
