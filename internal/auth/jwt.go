package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Context key for storing the calling module in context
type contextKey string

const ModuleKey contextKey = "module"

// JWTValidator handles JWT token validation for the HTTP API. Tokens are
// HS256-signed with a shared secret and carry the emitting module in the
// "module" claim.
type JWTValidator struct {
	secret   []byte
	issuer   string
	audience string
}

// NewJWTValidator creates a new JWT validator
func NewJWTValidator(secret, issuer, audience string) (*JWTValidator, error) {
	if secret == "" {
		return nil, fmt.Errorf("auth secret is required")
	}
	return &JWTValidator{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
	}, nil
}

// ValidateToken validates a JWT token and returns the calling module
func (v *JWTValidator) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %v", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid claims")
	}

	if iss, ok := claims["iss"].(string); !ok || iss != v.issuer {
		return "", fmt.Errorf("invalid issuer")
	}
	if aud, ok := claims["aud"].(string); !ok || aud != v.audience {
		return "", fmt.Errorf("invalid audience")
	}

	module, ok := claims["module"].(string)
	if !ok || module == "" {
		return "", fmt.Errorf("missing or invalid module claim")
	}
	return module, nil
}

// HTTPMiddleware returns an HTTP middleware that validates JWT tokens
func (v *JWTValidator) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth for health checks, ping, and metrics scrapes
		switch r.URL.Path {
		case "/healthz", "/v1/ping", "/metrics":
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		module, err := v.ValidateToken(tokenString)
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid token: %v", err), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ModuleKey, module)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ModuleFromContext returns the module set by HTTPMiddleware, if any.
func ModuleFromContext(ctx context.Context) string {
	module, _ := ctx.Value(ModuleKey).(string)
	return module
}
