package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/chicogong/vidioai/pkg/schemas"
)

// Error codes written by the middleware
const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
)

// Authentication methods
const (
	MethodJWT    = "jwt"
	MethodAPIKey = "apikey"
)

type principalKey struct{}

// Principal is the authenticated caller
type Principal struct {
	UserID string
	Email  string
	Role   string
	Method string
}

// WithPrincipal returns a copy of ctx carrying p
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// AuthMiddleware provides HTTP middleware for authentication
type AuthMiddleware struct {
	jwtManager    *JWTManager
	apiKeyManager *APIKeyManager
	optional      bool // If true, anonymous requests pass through
	logger        zerolog.Logger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(jwtManager *JWTManager, apiKeyManager *APIKeyManager, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager:    jwtManager,
		apiKeyManager: apiKeyManager,
		optional:      optional,
		logger:        zerolog.Nop(),
	}
}

// WithLogger sets the logger rejected requests are reported to
func (m *AuthMiddleware) WithLogger(l zerolog.Logger) *AuthMiddleware {
	m.logger = l.With().Str("component", "auth").Logger()
	return m
}

// Handler returns the HTTP middleware handler. Presented credentials must
// be valid even when authentication is optional.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
			if m.jwtManager == nil {
				m.reject(w, r, http.StatusUnauthorized, CodeUnauthorized, "token authentication is not configured", nil)
				return
			}
			claims, err := m.jwtManager.Verify(token)
			if err != nil {
				m.reject(w, r, http.StatusUnauthorized, CodeUnauthorized, "invalid or expired token", err)
				return
			}
			p := Principal{UserID: claims.UserID, Email: claims.Email, Role: claims.Role, Method: MethodJWT}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
			return
		}

		if key := r.Header.Get("X-API-Key"); key != "" && m.apiKeyManager != nil {
			apiKey, err := m.apiKeyManager.Verify(key)
			if err != nil {
				m.reject(w, r, http.StatusUnauthorized, CodeUnauthorized, err.Error(), err)
				return
			}
			p := Principal{UserID: apiKey.UserID, Method: MethodAPIKey}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
			return
		}

		if m.optional {
			next.ServeHTTP(w, r)
			return
		}
		m.reject(w, r, http.StatusUnauthorized, CodeUnauthorized, "no valid authentication provided", nil)
	})
}

func (m *AuthMiddleware) reject(w http.ResponseWriter, r *http.Request, status int, code, msg string, err error) {
	m.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("request rejected")
	writeError(w, status, code, msg)
}

// GetUserID extracts user ID from request context
func GetUserID(r *http.Request) (string, bool) {
	p, ok := PrincipalFrom(r.Context())
	return p.UserID, ok
}

// GetUserEmail extracts user email from request context
func GetUserEmail(r *http.Request) (string, bool) {
	p, ok := PrincipalFrom(r.Context())
	return p.Email, ok && p.Email != ""
}

// GetUserRole extracts user role from request context
func GetUserRole(r *http.Request) (string, bool) {
	p, ok := PrincipalFrom(r.Context())
	return p.Role, ok && p.Role != ""
}

// GetAuthMethod extracts authentication method from request context
func GetAuthMethod(r *http.Request) (string, bool) {
	p, ok := PrincipalFrom(r.Context())
	return p.Method, ok
}

// RequireRole is a middleware that requires a specific role
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userRole, ok := GetUserRole(r)
			if !ok || userRole != role {
				writeError(w, http.StatusForbidden, CodeForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": schemas.ErrorInfo{Code: code, Message: msg},
	})
}
