package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/heartmarshall/engagement-backend/pkg/ctxutil"
)

func TestRequestID(t *testing.T) {
	t.Parallel()

	incoming := uuid.NewString()

	tests := []struct {
		name     string
		header   string
		wantKeep bool
	}{
		{"reuses uuid", incoming, true},
		{"reuses trace style id", "rfi-bulk.42_a", true},
		{"generates when absent", "", false},
		{"replaces too long", strings.Repeat("a", maxRequestIDLen+1), false},
		{"replaces unsafe characters", "abc\ninjected=1", false},
		{"replaces spaces", "two words", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var fromCtx string
			h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fromCtx = ctxutil.RequestIDFromCtx(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/entities/engagement", nil)
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			if got != fromCtx {
				t.Errorf("header %q != context %q", got, fromCtx)
			}
			if tt.wantKeep {
				if got != tt.header {
					t.Errorf("request id = %q, want %q", got, tt.header)
				}
				return
			}
			if _, err := uuid.Parse(got); err != nil {
				t.Errorf("generated id %q is not a uuid: %v", got, err)
			}
		})
	}
}
