package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-metrature/internal/common"
)

// Middleware guards administrative routes.
type Middleware struct {
	Verifier *Verifier
	Logger   zerolog.Logger
}

// RequireAdmin rejects requests without a valid pricing admin bearer token.
func (m Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Verifier == nil {
			common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "auth not configured", nil)
			return
		}
		token := bearerToken(r)
		if token == "" {
			common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "missing or invalid token", nil)
			return
		}
		subject, err := m.Verifier.Verify(token)
		switch {
		case errors.Is(err, ErrMissingRole):
			m.Logger.Warn().Str("subject", subject).Str("path", r.URL.Path).Msg("admin role missing")
			common.JSONError(w, http.StatusForbidden, common.CodeForbidden, "pricing admin role required", nil)
			return
		case err != nil:
			m.Logger.Debug().Err(err).Msg("admin token rejected")
			common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "missing or invalid token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithSubject(r.Context(), subject)))
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
