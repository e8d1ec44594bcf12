package http

import (
	"context"
	"log/slog"

	"github.com/geocoder89/sessionauth/internal/config"
	"github.com/geocoder89/sessionauth/internal/http/handlers"
	"github.com/geocoder89/sessionauth/internal/http/middlewares"
	"github.com/geocoder89/sessionauth/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Sessions is everything the HTTP layer needs from the session service.
type Sessions interface {
	handlers.Sessions
	middlewares.Authenticator
}

type Deps struct {
	Log      *slog.Logger
	Config   config.Config
	Sessions Sessions
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer
	// Ping backs /readyz; nil means always ready.
	Ping func(ctx context.Context) error
}

func NewRouter(d Deps) *gin.Engine {
	if d.Config.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(otelgin.Middleware("sessionauth"))
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.RequestLogger(d.Log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(d.Config.AllowedOrigins))
	r.Use(middlewares.MaxBodyBytes(d.Config.MaxBodyBytes))
	r.Use(middlewares.RequireJSON())

	// health
	h := handlers.NewHealthHandler(d.Ping)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	authHandler := handlers.NewAuthHandler(d.Sessions, d.Config.Cookie, d.Config.Google.FrontendURL, d.Log)
	authMW := middlewares.NewAuthMiddleware(d.Sessions)

	api := r.Group("/api")
	{
		api.POST("/auth/signup", authHandler.SignUp)
		api.POST("/auth/login", authHandler.Login)
		api.POST("/auth/refresh", authHandler.Refresh)
		api.POST("/auth/logout", authHandler.Logout)
		api.GET("/auth/google", authHandler.GoogleStart)
		api.GET("/auth/google/callback", authHandler.GoogleCallback)

		api.GET("/me", authMW.RequireAuth(), authHandler.Me)
	}

	return r
}
