package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/tulumbak/courierhook/internal/ratelimit"
)

type contextKey string

const operatorKey contextKey = "operator"

// ContextWithOperator stores the authenticated operator on the context.
func ContextWithOperator(ctx context.Context, op *Operator) context.Context {
	return context.WithValue(ctx, operatorKey, op)
}

// OperatorFromContext returns the authenticated operator, if any.
func OperatorFromContext(ctx context.Context) *Operator {
	if op, ok := ctx.Value(operatorKey).(*Operator); ok {
		return op
	}
	return nil
}

// RequireOperator guards administrative endpoints: a valid bearer token is
// mandatory, and requests are rate limited per operator identity rather
// than per network origin.
func RequireOperator(service *JWTService, limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				http.Error(w, `{"success":false,"error":"Authentication required","code":"UNAUTHORIZED"}`, http.StatusUnauthorized)
				return
			}

			operator, err := service.ValidateToken(token)
			if err != nil {
				http.Error(w, `{"success":false,"error":"Invalid or expired token","code":"INVALID_TOKEN"}`, http.StatusUnauthorized)
				return
			}

			if limiter != nil && !limiter.Allow(operator.Subject) {
				http.Error(w, `{"success":false,"error":"Too many requests","code":"RATE_LIMITED"}`, http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithOperator(r.Context(), operator)))
		})
	}
}

func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
