package util

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWithRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "propagates incoming", incoming: "req-123", keep: true},
		{name: "generates when missing"},
		{name: "replaces oversized", incoming: strings.Repeat("x", maxRequestIDLength+1)},
		{name: "replaces with spaces", incoming: "a b"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			handler := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromRequest(r)
				if LoggerFromContext(r.Context()) == nil {
					t.Errorf("missing logger")
				}
			}))
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			if tc.incoming != "" {
				req.Header.Set("X-Request-Id", tc.incoming)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if seen == "" || rec.Header().Get("X-Request-Id") != seen {
				t.Fatalf("context id %q, header %q", seen, rec.Header().Get("X-Request-Id"))
			}
			if (seen == tc.incoming) != tc.keep {
				t.Fatalf("request id = %q, incoming %q, keep=%v", seen, tc.incoming, tc.keep)
			}
		})
	}
}
