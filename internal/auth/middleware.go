package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/sponsor-api/internal/common"
)

// Middleware protects admin routes.
type Middleware struct {
	Tokens *Tokens
	Logger zerolog.Logger
}

// RequireAdmin demands a bearer token carrying the admin role. Without a
// configured secret requests pass through and a warning is logged, which keeps
// the original open finalize behaviour available for local runs.
func (m Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Tokens.Enabled() {
			m.Logger.Warn().Str("path", r.URL.Path).Msg("admin route served without authentication: ADMIN_JWT_SECRET unset")
			next.ServeHTTP(w, r)
			return
		}
		subject, err := m.Tokens.Parse(bearer(r))
		if err != nil {
			status, code := http.StatusUnauthorized, ErrUnauthorized.Code
			var appErr *common.AppError
			if errors.As(err, &appErr) && appErr.HTTPStatus != 0 {
				status, code = appErr.HTTPStatus, appErr.Code
			}
			m.Logger.Warn().Err(err).Str("path", r.URL.Path).Msg("admin token rejected")
			message := ErrUnauthorized.Message
			if status == http.StatusForbidden {
				message = ErrForbidden.Message
			}
			common.JSONError(w, status, code, message)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithAdminSubject(r.Context(), subject)))
	})
}

func bearer(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
