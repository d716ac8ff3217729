package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/heartmarshall/engagement-backend/internal/domain"
	"github.com/heartmarshall/engagement-backend/pkg/ctxutil"
)

//go:generate moq -out authenticator_mock_test.go -pkg middleware . authenticator

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestAuth_ValidToken(t *testing.T) {
	want := domain.User{ID: uuid.New(), Role: domain.RoleManager, Type: domain.UserTypeInternal}
	a := &authenticatorMock{
		AuthenticateFunc: func(ctx context.Context, token string) (domain.User, error) {
			if token == "valid-token" {
				return want, nil
			}
			return domain.User{}, fmt.Errorf("bad token: %w", domain.ErrUnauthorized)
		},
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := ctxutil.UserFromCtx(r.Context())
		if !ok {
			t.Error("expected user in context")
			return
		}
		if got.ID != want.ID || got.Role != want.Role {
			t.Errorf("expected user %+v, got %+v", want, got)
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()

	Auth(a, discard)(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestAuth_InvalidToken(t *testing.T) {
	a := &authenticatorMock{
		AuthenticateFunc: func(ctx context.Context, token string) (domain.User, error) {
			return domain.User{}, domain.ErrUnauthorized
		},
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called for invalid token")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid-token")
	rec := httptest.NewRecorder()

	Auth(a, discard)(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "error" || body.Error.Code != "UNAUTHENTICATED" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestAuth_Anonymous(t *testing.T) {
	headers := []string{"", "Basic dXNlcjpwYXNz", "Bearer "}
	for _, h := range headers {
		t.Run(h, func(t *testing.T) {
			a := &authenticatorMock{
				AuthenticateFunc: func(ctx context.Context, token string) (domain.User, error) {
					t.Error("Authenticate should not be called")
					return domain.User{}, domain.ErrUnauthorized
				},
			}
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if _, ok := ctxutil.UserFromCtx(r.Context()); ok {
					t.Error("expected no user in context for anonymous request")
				}
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if h != "" {
				req.Header.Set("Authorization", h)
			}
			rec := httptest.NewRecorder()
			Auth(a, discard)(handler).ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
			}
			if len(a.AuthenticateCalls()) > 0 {
				t.Error("Authenticate should not be called for anonymous request")
			}
		})
	}
}

func TestRequireUser(t *testing.T) {
	handler := RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: expected %d, got %d", http.StatusUnauthorized, rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(ctxutil.WithUser(req.Context(), domain.User{ID: uuid.New(), Role: domain.RoleClerk}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("authenticated: expected %d, got %d", http.StatusNoContent, rec.Code)
	}
}

func TestExtractBearerToken_Cases(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   string
	}{
		{"empty header", "", ""},
		{"bearer with token", "Bearer valid-token", "valid-token"},
		{"bearer lowercase", "bearer valid-token", "valid-token"},
		{"bearer mixed case", "BEARER valid-token", "valid-token"},
		{"basic auth", "Basic dXNlcjpwYXNz", ""},
		{"bearer no space", "Bearertoken", ""},
		{"bearer empty token", "Bearer ", ""},
		{"just bearer", "Bearer", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			got := extractBearerToken(req)
			if got != tc.want {
				t.Errorf("extractBearerToken(%q) = %q, want %q", tc.header, got, tc.want)
			}
		})
	}
}
