package config

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/geocoder89/sessionauth/internal/identity"
	"github.com/joho/godotenv"
)

const (
	StorePostgres       = "postgres"
	StoreMemory         = "memory"
	defaultCookieMaxAge = 7 * 24 * time.Hour
)

type Config struct {
	Env  string `env:"APP_ENV" envDefault:"dev"`
	Port int    `env:"PORT" envDefault:"3000"`

	UserStore  string `env:"USER_STORE" envDefault:"postgres"`
	DBURL      string `env:"DB_URL"`
	DBHost     string `env:"DB_HOST" envDefault:"127.0.0.1"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"sessionauth"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"sessionauth"`
	DBName     string `env:"DB_NAME" envDefault:"sessionauth"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
	DBMaxConns int32  `env:"DB_MAX_CONNS" envDefault:"5"`

	JWTAccessSecret  string        `env:"JWT_ACCESS_SECRET"`
	JWTRefreshSecret string        `env:"JWT_REFRESH_SECRET"`
	AccessTokenTTL   time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL  time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
	BcryptCost       int           `env:"BCRYPT_COST" envDefault:"10"`

	Cookie CookieConfig
	Google GoogleConfig

	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	UserCacheTTL  time.Duration `env:"USER_CACHE_TTL" envDefault:"0s"`

	OTLPEndpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure     bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	TraceSampleRatio float64 `env:"OTEL_TRACES_SAMPLER_RATIO" envDefault:"1"`

	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:5173" envSeparator:","`
	MaxBodyBytes   int64    `env:"MAX_BODY_BYTES" envDefault:"1048576"`
}

type CookieConfig struct {
	Name     string        `env:"REFRESH_COOKIE_NAME" envDefault:"refresh_token"`
	Domain   string        `env:"COOKIE_DOMAIN"`
	Path     string        `env:"COOKIE_PATH" envDefault:"/"`
	Secure   bool          `env:"COOKIE_SECURE" envDefault:"false"`
	SameSite string        `env:"COOKIE_SAMESITE" envDefault:"lax"`
	MaxAge   time.Duration `env:"COOKIE_MAX_AGE" envDefault:"168h"`
}

type GoogleConfig struct {
	ClientID     string              `env:"GOOGLE_CLIENT_ID"`
	ClientSecret string              `env:"GOOGLE_CLIENT_SECRET"`
	RedirectURL  string              `env:"GOOGLE_REDIRECT_URL" envDefault:"http://localhost:3000/api/auth/google/callback"`
	FrontendURL  string              `env:"FRONTEND_REDIRECT_URL" envDefault:"http://localhost:5173/dashboard"`
	Timeout      time.Duration       `env:"OAUTH_TIMEOUT" envDefault:"10s"`
	LinkPolicy   identity.LinkPolicy `env:"OAUTH_LINK_POLICY" envDefault:"email"`
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.DBURL == "" {
		cfg.DBURL = cfg.buildDBURL()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) buildDBURL() string {
	return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + c.DBHost + ":" + c.DBPort + "/" + c.DBName + "?sslmode=" + c.DBSSLMode
}

func (c Config) Validate() error {
	var errs []error

	if c.JWTAccessSecret == "" || c.JWTRefreshSecret == "" {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET are required"))
	} else if c.JWTAccessSecret == c.JWTRefreshSecret {
		errs = append(errs, errors.New("access and refresh secrets must differ"))
	}

	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}

	if _, ok := parseSameSite(c.Cookie.SameSite); !ok {
		errs = append(errs, fmt.Errorf("unknown COOKIE_SAMESITE %q", c.Cookie.SameSite))
	}

	if !c.Google.LinkPolicy.Valid() {
		errs = append(errs, fmt.Errorf("unknown OAUTH_LINK_POLICY %q", c.Google.LinkPolicy))
	}

	switch c.UserStore {
	case StorePostgres, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown USER_STORE %q", c.UserStore))
	}

	return errors.Join(errs...)
}

// SameSiteMode maps the configured string onto net/http's enum.
func (c CookieConfig) SameSiteMode() http.SameSite {
	mode, _ := parseSameSite(c.SameSite)
	return mode
}

// MaxAgeSeconds falls back to seven days when unset.
func (c CookieConfig) MaxAgeSeconds() int {
	if c.MaxAge <= 0 {
		return int(defaultCookieMaxAge.Seconds())
	}
	return int(c.MaxAge.Seconds())
}

func parseSameSite(v string) (http.SameSite, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "lax":
		return http.SameSiteLaxMode, true
	case "strict":
		return http.SameSiteStrictMode, true
	case "none":
		return http.SameSiteNoneMode, true
	default:
		return http.SameSiteDefaultMode, false
	}
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}
