package middleware

import (
	"context"
	"net/http"
	"strings"

	"hdnotes-server/internal/domain"
	"hdnotes-server/pkg/response"
)

type contextKey string

const identityKey contextKey = "identity"

type Authenticator interface {
	Authenticate(token string) (*domain.Identity, error)
}

func AuthMiddleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "Access denied. No token provided.")
				return
			}

			token, ok := BearerToken(authHeader)
			if !ok {
				response.Unauthorized(w, "Invalid authorization header format")
				return
			}

			ident, err := auth.Authenticate(token)
			if err != nil {
				response.Unauthorized(w, "Invalid or expired token")
				return
			}

			if info := requestInfoFrom(r.Context()); info != nil {
				info.userID = ident.AccountID
			}

			ctx := context.WithValue(r.Context(), identityKey, ident)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value.
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func GetIdentity(r *http.Request) *domain.Identity {
	ident, _ := r.Context().Value(identityKey).(*domain.Identity)
	return ident
}

func GetUserID(r *http.Request) string {
	if ident := GetIdentity(r); ident != nil {
		return ident.AccountID
	}
	return ""
}

// WithIdentity returns a copy of r carrying ident, as AuthMiddleware would.
func WithIdentity(r *http.Request, ident *domain.Identity) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), identityKey, ident))
}
