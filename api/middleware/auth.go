package middleware

import (
	"net/http"
	"strings"

	"github.com/javery-app/javery-backend/api/responses"
	pkgauth "github.com/javery-app/javery-backend/pkg/auth"
	"github.com/javery-app/javery-backend/pkg/config"
	pkgerrors "github.com/javery-app/javery-backend/pkg/errors"
	"github.com/javery-app/javery-backend/pkg/logger"
)

// Auth verifies the bearer token and seeds the context with its subject.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgauth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithUserID(r.Context(), claims.UserID())
			ctx = WithUserName(ctx, claims.Name)
			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.UserID())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) string {
	raw := strings.TrimSpace(header)
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return ""
}
