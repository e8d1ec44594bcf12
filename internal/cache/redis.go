package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/geocoder89/sessionauth/internal/domain/user"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "sessionauth:user:"

// Redis stores user records as JSON with a TTL so several API replicas share one cache.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
	log *slog.Logger
}

// cachedUser is the stored shape of a user. The password hash stays in the primary store.
type cachedUser struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	AuthProvider string    `json:"authProvider"`
	GoogleID     *string   `json:"googleId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func NewRedis(rdb *redis.Client, ttl time.Duration, log *slog.Logger) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Redis{rdb: rdb, ttl: ttl, log: log}
}

func (c *Redis) Get(ctx context.Context, id string) (user.User, bool) {
	raw, err := c.rdb.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.WarnContext(ctx, "user cache get failed", "err", err)
		}
		return user.User{}, false
	}

	var cu cachedUser
	if err := json.Unmarshal(raw, &cu); err != nil {
		c.log.WarnContext(ctx, "user cache entry corrupt", "err", err)
		return user.User{}, false
	}

	return user.User{
		ID:           cu.ID,
		Name:         cu.Name,
		Email:        cu.Email,
		AuthProvider: user.Provider(cu.AuthProvider),
		GoogleID:     cu.GoogleID,
		CreatedAt:    cu.CreatedAt,
		UpdatedAt:    cu.UpdatedAt,
	}, true
}

func (c *Redis) Set(ctx context.Context, u user.User) {
	raw, err := json.Marshal(cachedUser{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		AuthProvider: string(u.AuthProvider),
		GoogleID:     u.GoogleID,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	})
	if err != nil {
		return
	}

	if err := c.rdb.Set(ctx, keyPrefix+u.ID, raw, c.ttl).Err(); err != nil {
		c.log.WarnContext(ctx, "user cache set failed", "err", err)
	}
}

func (c *Redis) Delete(ctx context.Context, id string) {
	if err := c.rdb.Del(ctx, keyPrefix+id).Err(); err != nil {
		c.log.WarnContext(ctx, "user cache delete failed", "err", err)
	}
}
