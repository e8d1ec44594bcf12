package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/sessionauth/internal/auth"
	"github.com/geocoder89/sessionauth/internal/cache"
	"github.com/geocoder89/sessionauth/internal/config"
	"github.com/geocoder89/sessionauth/internal/db"
	httpx "github.com/geocoder89/sessionauth/internal/http"
	"github.com/geocoder89/sessionauth/internal/identity"
	"github.com/geocoder89/sessionauth/internal/observability"
	"github.com/geocoder89/sessionauth/internal/redisclient"
	"github.com/geocoder89/sessionauth/internal/repo/cached"
	"github.com/geocoder89/sessionauth/internal/repo/memory"
	"github.com/geocoder89/sessionauth/internal/repo/postgres"
	"github.com/geocoder89/sessionauth/internal/security"
	"github.com/geocoder89/sessionauth/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Load the config set up
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPEndpoint != "" {
		shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
			ServiceName: "sessionauth",
			Environment: cfg.Env,
			Endpoint:    cfg.OTLPEndpoint,
			Insecure:    cfg.OTLPInsecure,
			SampleRatio: cfg.TraceSampleRatio,
		})
		if err != nil {
			log.Error("tracer init failed", "err", err)
			os.Exit(1)
		}
		defer func() {
			sctx, cancel := config.WithTimeout(5 * time.Second)
			defer cancel()
			_ = shutdownTracer(sctx)
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	users, closeUsers, err := buildUsers(ctx, cfg, log, prom)
	if err != nil {
		log.Error("user store init failed", "err", err)
		os.Exit(1)
	}
	defer closeUsers()

	tokens, err := auth.NewManager(
		auth.DomainConfig{Secret: cfg.JWTAccessSecret, TTL: cfg.AccessTokenTTL},
		auth.DomainConfig{Secret: cfg.JWTRefreshSecret, TTL: cfg.RefreshTokenTTL},
	)
	if err != nil {
		log.Error("token manager init failed", "err", err)
		os.Exit(1)
	}

	google := auth.NewGoogleClient(auth.GoogleConfig{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.RedirectURL,
		Timeout:      cfg.Google.Timeout,
	})
	if cfg.Google.ClientID == "" {
		log.Warn("GOOGLE_CLIENT_ID not set; google sign-in will fail")
	}

	resolver := identity.NewResolver(users, security.NewHasher(cfg.BcryptCost), google, identity.Options{
		LinkPolicy:      cfg.Google.LinkPolicy,
		ExchangeTimeout: cfg.Google.Timeout,
		Logger:          log,
	})

	sessions := session.NewService(resolver, users, tokens, session.Options{Logger: log, Metrics: prom})

	// set up routers with the log
	router := httpx.NewRouter(httpx.Deps{
		Log:      log,
		Config:   cfg,
		Sessions: sessions,
		Prom:     prom,
		Gatherer: reg,
		Ping:     users.Ping,
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// start server using a concurrent go-routine driven anonymous function.

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.UserStore)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			stop()
		}
	}()

	// Graceful shutdown

	<-ctx.Done()
	log.Info("server shutting down")

	shutdownCtx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
		return
	}

	log.Info("shutdown complete")
}

// buildUsers picks the user store and optionally fronts it with a cache. The returned func releases its resources.
func buildUsers(ctx context.Context, cfg config.Config, log *slog.Logger, prom *observability.Prom) (cached.Store, func(), error) {
	var (
		store   cached.Store
		closers []func()
	)

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.UserStore {
	case config.StoreMemory:
		log.Warn("using in-memory user store; users are lost on restart")
		store = memory.NewUsersRepo()
	default:
		pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DBURL, MaxConns: cfg.DBMaxConns})
		if err != nil {
			return nil, nil, fmt.Errorf("db connect: %w", err)
		}
		closers = append(closers, pool.Close)

		if err := db.Migrate(ctx, pool, log); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}

		store = postgres.NewUsersRepo(pool, prom)
	}

	if cfg.UserCacheTTL <= 0 {
		return store, closeAll, nil
	}

	if cfg.RedisAddr == "" {
		log.Info("user cache enabled", "backend", "memory", "ttl", cfg.UserCacheTTL)
		return cached.NewUsers(store, cache.New(cfg.UserCacheTTL)), closeAll, nil
	}

	rdb := redisclient.New(redisclient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	closers = append(closers, func() { _ = rdb.Close() })

	if err := rdb.Ping(ctx); err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Info("user cache enabled", "backend", "redis", "ttl", cfg.UserCacheTTL)
	return cached.NewUsers(store, cache.NewRedis(rdb.Raw(), cfg.UserCacheTTL, log)), closeAll, nil
}
