package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/louisbranch/portfolio.studio/internal/platform/errors"
	"github.com/louisbranch/portfolio.studio/internal/platform/requestctx"
)

func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer  abc ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"Bearer   ", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		got, ok := BearerToken(tc.header)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("BearerToken(%q) = %q, %v; want %q, %v", tc.header, got, ok, tc.want, tc.ok)
		}
	}
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	verifier := VerifierFunc(func(_ context.Context, token string) (User, error) {
		switch token {
		case "good":
			return User{ID: "u-1"}, nil
		case "down":
			return User{}, apperrors.E(apperrors.KindUnavailable, "backend down")
		}
		return User{}, apperrors.E(apperrors.KindUnauthorized, "bad token")
	})
	var gotUser User
	var gotToken, gotUserID string
	h := Middleware(verifier, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = UserFromContext(r.Context())
		gotToken = requestctx.BearerTokenFromContext(r.Context())
		gotUserID = requestctx.UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		header string
		want   int
	}{
		{"", http.StatusUnauthorized},
		{"Bearer bad", http.StatusUnauthorized},
		{"Bearer down", http.StatusServiceUnavailable},
		{"Bearer good", http.StatusNoContent},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/clients", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != tc.want {
			t.Fatalf("%q: status = %d, want %d", tc.header, rr.Code, tc.want)
		}
		if tc.want == http.StatusUnauthorized && rr.Header().Get("WWW-Authenticate") == "" {
			t.Fatalf("%q: expected WWW-Authenticate header", tc.header)
		}
	}
	if gotUser.ID != "u-1" || gotToken != "good" || gotUserID != "u-1" {
		t.Fatalf("context user=%+v token=%q userID=%q", gotUser, gotToken, gotUserID)
	}
}

func TestUserFromContextMissing(t *testing.T) {
	t.Parallel()

	if _, ok := UserFromContext(context.Background()); ok {
		t.Fatal("expected no user")
	}
	if _, ok := UserFromContext(nil); ok {
		t.Fatal("expected no user for nil context")
	}
}
