package middlewares_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geocoder89/sessionauth/internal/actorctx"
	"github.com/geocoder89/sessionauth/internal/domain/user"
	"github.com/geocoder89/sessionauth/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type fakeAuthenticator struct {
	whoAmIFn func(ctx context.Context, token string) (user.User, error)
}

func (f fakeAuthenticator) WhoAmI(ctx context.Context, token string) (user.User, error) {
	return f.whoAmIFn(ctx, token)
}

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	authn := fakeAuthenticator{
		whoAmIFn: func(_ context.Context, token string) (user.User, error) {
			if token != "good" {
				return user.User{}, errors.New("unauthorized")
			}
			return user.User{ID: "u-1", Email: "ann@x.com"}, nil
		},
	}

	r := gin.New()
	r.GET("/me", middlewares.NewAuthMiddleware(authn).RequireAuth(), func(c *gin.Context) {
		u, ok := middlewares.UserFromContext(c)
		actor, _ := actorctx.UserIDFrom(c.Request.Context())
		if !ok || actor != u.ID {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, u.ID)
	})

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "valid bearer", header: "Bearer good", wantStatus: http.StatusOK},
		{name: "no header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "empty bearer", header: "Bearer ", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Token good", wantStatus: http.StatusUnauthorized},
		{name: "rejected token", header: "Bearer bad", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("got %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}
