package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/policyadmin/internal/admin"
	"github.com/kiranshivaraju/policyadmin/internal/api/response"
	"github.com/kiranshivaraju/policyadmin/pkg/models"
)

const realm = `Basic realm="policyadmin"`

// Authenticator verifies portal credentials. *admin.Guard implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, login, secret string) (models.Principal, error)
}

// Auth provides authentication and admin-checking middleware.
type Auth struct {
	authn Authenticator
}

// NewAuth creates a new Auth middleware.
func NewAuth(a Authenticator) *Auth {
	return &Auth{authn: a}
}

// Authenticate validates HTTP Basic credentials against the portal principals
// and sets the resulting models.Principal in the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		login, secret, ok := r.BasicAuth()
		if !ok || login == "" {
			w.Header().Set("WWW-Authenticate", realm)
			response.Error(w, http.StatusUnauthorized,
				"UNAUTHORIZED", "Missing or invalid Authorization header", nil)
			return
		}

		p, err := a.authn.Authenticate(r.Context(), login, secret)
		if errors.Is(err, admin.ErrInvalidCredentials) {
			w.Header().Set("WWW-Authenticate", realm)
			response.Error(w, http.StatusUnauthorized,
				"INVALID_CREDENTIALS", "Invalid login or secret", nil)
			return
		}
		if err != nil {
			slog.Error("authenticate", "login", login, "error", err)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to validate credentials", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(SetPrincipal(r.Context(), p)))
	})
}

// RequireAdmin rejects callers that are not administrators.
func (a *Auth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := GetPrincipal(r)
		if !ok || !p.IsAdmin {
			response.Error(w, http.StatusForbidden,
				"FORBIDDEN", "Administrator access required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
