package middleware

import (
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
)

func tagging(name string, order *[]string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*order = append(*order, name+">")
			next.ServeHTTP(w, r)
			*order = append(*order, "<"+name)
		})
	}
}

func TestChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		mws  func(order *[]string) []Middleware
		want []string
	}{
		{
			name: "outermost first",
			mws: func(o *[]string) []Middleware {
				return []Middleware{tagging("request_id", o), tagging("auth", o)}
			},
			want: []string{"request_id>", "auth>", "handler", "<auth", "<request_id"},
		},
		{
			name: "nil skipped",
			mws: func(o *[]string) []Middleware {
				return []Middleware{tagging("cors", o), nil, tagging("auth", o)}
			},
			want: []string{"cors>", "auth>", "handler", "<auth", "<cors"},
		},
		{
			name: "empty",
			mws:  func(*[]string) []Middleware { return nil },
			want: []string{"handler"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var order []string
			h := Chain(tt.mws(&order)...)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				order = append(order, "handler")
				w.WriteHeader(http.StatusNoContent)
			}))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/entities/rfi", nil))

			if rec.Code != http.StatusNoContent {
				t.Errorf("status = %d, want 204", rec.Code)
			}
			if !slices.Equal(order, tt.want) {
				t.Errorf("order = %v, want %v", order, tt.want)
			}
		})
	}
}
