package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/geocoder89/sessionauth/internal/auth"
	"golang.org/x/oauth2"
)

// fakeGoogle serves a token endpoint and a userinfo endpoint.
func fakeGoogle(t *testing.T, userInfo string, userInfoStatus int) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"provider-token","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer provider-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(userInfoStatus)
		_, _ = w.Write([]byte(userInfo))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newGoogleClient(srv *httptest.Server) *auth.GoogleClient {
	return auth.NewGoogleClient(auth.GoogleConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:3000/api/auth/google/callback",
		Timeout:      2 * time.Second,
		UserInfoURL:  srv.URL + "/userinfo",
		Endpoint: oauth2.Endpoint{
			AuthURL:   srv.URL + "/auth",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	})
}

func TestGoogleClient_AuthURL(t *testing.T) {
	c := auth.NewGoogleClient(auth.GoogleConfig{
		ClientID:    "client-id",
		RedirectURL: "http://localhost:3000/api/auth/google/callback",
	})

	raw := c.AuthURL("")

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}

	if !strings.HasPrefix(raw, "https://accounts.google.com/") {
		t.Fatalf("unexpected auth host: %s", raw)
	}

	q := u.Query()
	if q.Get("client_id") != "client-id" {
		t.Fatalf("client_id missing: %s", raw)
	}
	if q.Get("redirect_uri") != "http://localhost:3000/api/auth/google/callback" {
		t.Fatalf("redirect_uri mismatch: %s", q.Get("redirect_uri"))
	}
	if q.Get("scope") != "email profile" {
		t.Fatalf("scope mismatch: %q", q.Get("scope"))
	}
	if q.Get("response_type") != "code" {
		t.Fatalf("response_type mismatch: %q", q.Get("response_type"))
	}
}

func TestGoogleClient_Exchange(t *testing.T) {
	tests := []struct {
		name       string
		code       string
		userInfo   string
		status     int
		wantErr    bool
		wantErrIs  error
		wantEmail  string
		wantVerify bool
	}{
		{
			name:       "success",
			code:       "good-code",
			userInfo:   `{"id":"g-123","email":"ann@x.com","name":"Ann","verified_email":true}`,
			status:     http.StatusOK,
			wantEmail:  "ann@x.com",
			wantVerify: true,
		},
		{
			name:     "bad code",
			code:     "bad-code",
			userInfo: `{}`,
			status:   http.StatusOK,
			wantErr:  true,
		},
		{
			name:      "missing name",
			code:      "good-code",
			userInfo:  `{"id":"g-123","email":"ann@x.com"}`,
			status:    http.StatusOK,
			wantErr:   true,
			wantErrIs: auth.ErrIncompleteProfile,
		},
		{
			name:     "userinfo failure",
			code:     "good-code",
			userInfo: `{"error":"boom"}`,
			status:   http.StatusInternalServerError,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fakeGoogle(t, tt.userInfo, tt.status)
			c := newGoogleClient(srv)

			profile, err := c.Exchange(context.Background(), tt.code)

			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got profile %+v", profile)
				}
				if tt.wantErrIs != nil && !errors.Is(err, tt.wantErrIs) {
					t.Fatalf("expected %v, got %v", tt.wantErrIs, err)
				}
				return
			}

			if err != nil {
				t.Fatalf("exchange: %v", err)
			}
			if profile.Email != tt.wantEmail || profile.ProviderID != "g-123" || profile.Name != "Ann" {
				t.Fatalf("unexpected profile: %+v", profile)
			}
			if profile.EmailVerified != tt.wantVerify {
				t.Fatalf("verified mismatch: %+v", profile)
			}
		})
	}
}
