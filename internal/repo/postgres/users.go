package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/sessionauth/internal/domain/user"
	"github.com/geocoder89/sessionauth/internal/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	emailConstraint    = "users_email_key"
	googleIDConstraint = "users_google_id_key"

	userColumns = `id, name, email, auth_provider, COALESCE(password_hash, ''), google_id, created_at, updated_at`
)

// UsersRepo leans on the unique constraints for email and google_id; concurrent writers
// that lose a race get a typed error back instead of a duplicate row.
type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User

	err := r.prom.ObserveDB("users.get_by_email", func() error {
		return scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+`
			FROM users
			WHERE email = $1`,
			email,
		), &u)
	})

	return u, mapReadErr(err)
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	var u user.User

	err := r.prom.ObserveDB("users.get_by_id", func() error {
		return scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+`
			FROM users
			WHERE id = $1`,
			id,
		), &u)
	})

	return u, mapReadErr(err)
}

func (r *UsersRepo) Create(ctx context.Context, nu user.NewUser) (user.User, error) {
	now := time.Now().UTC()

	var passwordHash *string
	if nu.PasswordHash != "" {
		passwordHash = &nu.PasswordHash
	}

	var u user.User

	err := r.prom.ObserveDB("users.create", func() error {
		return scanUser(r.pool.QueryRow(ctx,
			`INSERT INTO users (id, name, email, auth_provider, password_hash, google_id, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			RETURNING `+userColumns,
			uuid.NewString(), nu.Name, nu.Email, string(nu.AuthProvider), passwordHash, nu.GoogleID, now, now,
		), &u)
	})

	if err != nil {
		return user.User{}, mapWriteErr(err)
	}

	return u, nil
}

func (r *UsersRepo) LinkGoogle(ctx context.Context, id, googleID string) (user.User, error) {
	var u user.User

	err := r.prom.ObserveDB("users.link_google", func() error {
		return scanUser(r.pool.QueryRow(ctx,
			`UPDATE users
			SET auth_provider = 'google', google_id = $2, updated_at = NOW()
			WHERE id = $1
			RETURNING `+userColumns,
			id, googleID,
		), &u)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, mapWriteErr(err)
	}

	return u, nil
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanUser(row pgx.Row, u *user.User) error {
	var provider string

	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&provider,
		&u.PasswordHash,
		&u.GoogleID,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return err
	}

	u.AuthProvider = user.Provider(provider)
	return nil
}

func mapReadErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return user.ErrNotFound
	}

	return err
}

func mapWriteErr(err error) error {
	constraint, ok := observability.UniqueViolation(err)
	if !ok {
		return err
	}

	switch constraint {
	case emailConstraint:
		return user.ErrEmailTaken
	case googleIDConstraint:
		return user.ErrGoogleIDTaken
	default:
		return err
	}
}
