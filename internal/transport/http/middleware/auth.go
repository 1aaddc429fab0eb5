package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Manz2/chat-e2e/internal/httputil"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	principalKey contextKey = "principal"
)

// Principal is the already-verified identity every core operation consumes:
// who is calling, from which enrolled device. The relay core never looks at
// the token itself.
type Principal struct {
	UserID   uuid.UUID
	Handle   string
	DeviceID uuid.UUID
}

// AuthMiddleware validates the bearer token and stashes the Principal in the
// request context. Tokens carry user_id, handle and device_id claims; how
// they are minted (login service, gateway) is outside this process.
func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				httputil.WriteUnauthorized(w, "Missing authentication token")
				return
			}

			token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				httputil.WriteUnauthorized(w, "Invalid authentication token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				httputil.WriteUnauthorized(w, "Invalid authentication token")
				return
			}

			principal, ok := principalFromClaims(claims)
			if !ok {
				httputil.WriteUnauthorized(w, "Invalid authentication token")
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func principalFromClaims(claims jwt.MapClaims) (Principal, bool) {
	rawUser, ok := claims["user_id"].(string)
	if !ok {
		return Principal{}, false
	}
	userID, err := uuid.Parse(rawUser)
	if err != nil {
		return Principal{}, false
	}

	rawDevice, ok := claims["device_id"].(string)
	if !ok {
		return Principal{}, false
	}
	deviceID, err := uuid.Parse(rawDevice)
	if err != nil {
		return Principal{}, false
	}

	handle, _ := claims["handle"].(string)
	return Principal{UserID: userID, Handle: handle, DeviceID: deviceID}, true
}

// GetPrincipal returns the verified caller identity set by AuthMiddleware.
func GetPrincipal(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
