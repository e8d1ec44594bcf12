package cached

import (
	"context"

	"github.com/geocoder89/sessionauth/internal/cache"
	"github.com/geocoder89/sessionauth/internal/domain/user"
)

// Store is the user persistence contract the cache wraps.
type Store interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	Create(ctx context.Context, nu user.NewUser) (user.User, error)
	LinkGoogle(ctx context.Context, id, googleID string) (user.User, error)
	Ping(ctx context.Context) error
}

// Users is a read-through cache in front of a Store for id lookups.
// Email lookups always go to the store because they gate uniqueness decisions.
type Users struct {
	next  Store
	cache cache.UserCache
}

func NewUsers(next Store, c cache.UserCache) *Users {
	return &Users{next: next, cache: c}
}

func (u *Users) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return u.next.GetByEmail(ctx, email)
}

func (u *Users) GetByID(ctx context.Context, id string) (user.User, error) {
	if hit, ok := u.cache.Get(ctx, id); ok {
		return hit, nil
	}

	found, err := u.next.GetByID(ctx, id)
	if err != nil {
		return user.User{}, err
	}

	u.cache.Set(ctx, found)
	return found, nil
}

func (u *Users) Create(ctx context.Context, nu user.NewUser) (user.User, error) {
	created, err := u.next.Create(ctx, nu)
	if err != nil {
		return user.User{}, err
	}

	u.cache.Set(ctx, created)
	return created, nil
}

func (u *Users) LinkGoogle(ctx context.Context, id, googleID string) (user.User, error) {
	// drop first so a failed write never leaves the pre-link record cached
	u.cache.Delete(ctx, id)

	linked, err := u.next.LinkGoogle(ctx, id, googleID)
	if err != nil {
		return user.User{}, err
	}

	u.cache.Set(ctx, linked)
	return linked, nil
}

func (u *Users) Ping(ctx context.Context) error {
	return u.next.Ping(ctx)
}
