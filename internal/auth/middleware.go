package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/louisbranch/portfolio.studio/internal/platform/errors"
	"github.com/louisbranch/portfolio.studio/internal/platform/logging"
	"github.com/louisbranch/portfolio.studio/internal/platform/requestctx"
	"github.com/louisbranch/portfolio.studio/internal/services/web/platform/httpx"
)

type userContextKey struct{}

// UserFromContext returns the verified user stored by Middleware.
func UserFromContext(ctx context.Context) (User, bool) {
	if ctx == nil {
		return User{}, false
	}
	user, ok := ctx.Value(userContextKey{}).(User)
	return user, ok
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Middleware rejects requests without a verified bearer token. Verified
// requests carry the user and the raw token in context.
func Middleware(verifier Verifier, logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logging.OrNop(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				_ = httpx.WriteJSONError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			user, err := verifier.Verify(r.Context(), token)
			if err != nil {
				status := apperrors.HTTPStatus(err)
				if status != http.StatusServiceUnavailable {
					status = http.StatusUnauthorized
					w.Header().Set("WWW-Authenticate", `Bearer realm="admin", error="invalid_token"`)
				}
				logger.Info("admin auth rejected", zap.String("path", r.URL.Path), zap.Error(err))
				_ = httpx.WriteJSONError(w, status, http.StatusText(status))
				return
			}
			ctx := context.WithValue(r.Context(), userContextKey{}, user)
			ctx = requestctx.WithUserID(ctx, user.ID)
			ctx = requestctx.WithBearerToken(ctx, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
