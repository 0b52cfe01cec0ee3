package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/enterprise-access/access-api/internal/pkg/jwt"
	"github.com/enterprise-access/access-api/internal/pkg/logger"
	"github.com/enterprise-access/access-api/internal/pkg/response"
)

type contextKey string

const CallerKey contextKey = "caller"

// Caller is the authenticated identity making the request.
type Caller struct {
	LmsUserID int64
	Email     string
	IsStaff   bool
	Roles     []string
}

// Auth returns middleware that validates JWT
func Auth(jwtService *jwt.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "Missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || (strings.ToLower(parts[0]) != "bearer" && strings.ToLower(parts[0]) != "jwt") {
				response.Unauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := jwtService.ValidateAccessToken(parts[1])
			if err != nil {
				if errors.Is(err, jwt.ErrExpiredToken) {
					response.Unauthorized(w, "Token expired")
				} else {
					response.Unauthorized(w, "Invalid token")
				}
				return
			}

			caller := Caller{
				LmsUserID: claims.LmsUserID,
				Email:     claims.Email,
				IsStaff:   claims.IsStaff,
				Roles:     claims.Roles,
			}
			ctx := WithCaller(r.Context(), caller)

			l := logger.FromContext(ctx).With().Int64("caller_lms_user_id", caller.LmsUserID).Logger()
			ctx = logger.WithContext(ctx, &l)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithCaller stores the caller identity in ctx.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, CallerKey, caller)
}

// GetCaller extracts the caller identity from context
func GetCaller(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(CallerKey).(Caller)
	return caller, ok
}
