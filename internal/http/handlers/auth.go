package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/geocoder89/sessionauth/internal/config"
	"github.com/geocoder89/sessionauth/internal/domain/user"
	"github.com/geocoder89/sessionauth/internal/http/middlewares"
	"github.com/geocoder89/sessionauth/internal/identity"
	"github.com/geocoder89/sessionauth/internal/session"
	"github.com/geocoder89/sessionauth/internal/validation"
	"github.com/gin-gonic/gin"
)

type Sessions interface {
	SignUp(ctx context.Context, req user.SignUpRequest) (session.Result, error)
	Login(ctx context.Context, req user.LoginRequest) (session.Result, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	OAuthURL() string
	OAuthResolve(ctx context.Context, code string) (session.Result, error)
}

type AuthHandler struct {
	sessions    Sessions
	cookie      config.CookieConfig
	frontendURL string
	log         *slog.Logger
}

func NewAuthHandler(sessions Sessions, cookie config.CookieConfig, frontendURL string, log *slog.Logger) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}

	return &AuthHandler{
		sessions:    sessions,
		cookie:      cookie,
		frontendURL: frontendURL,
		log:         log,
	}
}

type sessionResponse struct {
	AccessToken string      `json:"accessToken"`
	User        user.Public `json:"user"`
}

func (h *AuthHandler) SignUp(ctx *gin.Context) {
	var req user.SignUpRequest

	if !BindJSON(ctx, &req) {
		return
	}

	res, err := h.sessions.SignUp(ctx.Request.Context(), req)
	if err != nil {
		h.respondAuthError(ctx, err, "Could not create user")
		return
	}

	h.setRefreshCookie(ctx, res.RefreshToken)

	ctx.JSON(http.StatusCreated, sessionResponse{
		AccessToken: res.AccessToken,
		User:        res.User.Public(),
	})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req user.LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	res, err := h.sessions.Login(ctx.Request.Context(), req)
	if err != nil {
		h.respondAuthError(ctx, err, "Could not log in")
		return
	}

	h.setRefreshCookie(ctx, res.RefreshToken)

	ctx.JSON(http.StatusOK, sessionResponse{
		AccessToken: res.AccessToken,
		User:        res.User.Public(),
	})
}

// Me answers with the user RequireAuth already resolved.
func (h *AuthHandler) Me(ctx *gin.Context) {
	u, ok := middlewares.UserFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "unauthorized", "Not authenticated.")
		return
	}

	ctx.JSON(http.StatusOK, u.Public())
}

// Refresh trades the refresh cookie for a new access token. The cookie itself is left untouched.
func (h *AuthHandler) Refresh(ctx *gin.Context) {
	raw, err := ctx.Cookie(h.cookie.Name)

	if err != nil || raw == "" {
		RespondUnauthorized(ctx, "no_refresh", "Missing refresh token")
		return
	}

	accessToken, err := h.sessions.Refresh(ctx.Request.Context(), raw)
	if err != nil {
		if errors.Is(err, session.ErrUnauthorized) || errors.Is(err, session.ErrUserNotFound) {
			RespondUnauthorized(ctx, "invalid_refresh", "Invalid refresh token")
			return
		}

		h.log.ErrorContext(ctx.Request.Context(), "refresh failed", "err", err)
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"accessToken": accessToken,
	})
}

// Logout only clears the cookie; an already issued refresh token stays valid until it expires.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	h.clearRefreshCookie(ctx)
	ctx.Status(http.StatusNoContent)
}

func (h *AuthHandler) GoogleStart(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"url": h.sessions.OAuthURL(),
	})
}

// GoogleCallback finishes the code exchange, sets the refresh cookie and sends the browser to the frontend
// with the access token and the user JSON in the query string.
func (h *AuthHandler) GoogleCallback(ctx *gin.Context) {
	code := ctx.Query("code")
	if code == "" {
		RespondBadRequest(ctx, "Missing authorization code", gin.H{"field": "code"})
		return
	}

	res, err := h.sessions.OAuthResolve(ctx.Request.Context(), code)
	if err != nil {
		h.respondAuthError(ctx, err, "Could not complete sign-in")
		return
	}

	target, err := h.frontendRedirect(res)
	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "build frontend redirect", "err", err)
		RespondInternal(ctx, "Could not complete sign-in")
		return
	}

	h.setRefreshCookie(ctx, res.RefreshToken)
	ctx.Redirect(http.StatusFound, target)
}

func (h *AuthHandler) frontendRedirect(res session.Result) (string, error) {
	u, err := url.Parse(h.frontendURL)
	if err != nil {
		return "", err
	}

	userJSON, err := json.Marshal(res.User.Public())
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("token", res.AccessToken)
	q.Set("user", string(userJSON))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func (h *AuthHandler) respondAuthError(ctx *gin.Context, err error, fallback string) {
	var verr *validation.Error

	switch {
	case errors.As(err, &verr):
		RespondValidation(ctx, verr)
	case errors.Is(err, identity.ErrEmailInUse):
		RespondConflict(ctx, "email_taken", "Email is already in use.")
	case errors.Is(err, identity.ErrInvalidCredentials):
		RespondUnauthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
	case errors.Is(err, identity.ErrLinkRejected):
		RespondConflict(ctx, "link_rejected", "An account with this email already exists.")
	case errors.Is(err, identity.ErrOAuthExchangeFailed):
		RespondBadGateway(ctx, "oauth_failed", "Sign-in with the provider failed.")
	default:
		h.log.ErrorContext(ctx.Request.Context(), "auth request failed", "path", ctx.FullPath(), "err", err)
		RespondInternal(ctx, fallback)
	}
}

func (h *AuthHandler) setRefreshCookie(ctx *gin.Context, raw string) {
	ctx.SetSameSite(h.cookie.SameSiteMode())

	ctx.SetCookie(
		h.cookie.Name,
		raw,
		h.cookie.MaxAgeSeconds(),
		h.cookie.Path,
		h.cookie.Domain,
		h.cookie.Secure,
		true, // HttpOnly.
	)
}

func (h *AuthHandler) clearRefreshCookie(ctx *gin.Context) {
	ctx.SetSameSite(h.cookie.SameSiteMode())
	ctx.SetCookie(
		h.cookie.Name,
		"",
		-1,
		h.cookie.Path,
		h.cookie.Domain,
		h.cookie.Secure,
		true,
	)
}
