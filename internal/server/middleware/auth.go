package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/termgate/termgate/internal/bridge"
	"github.com/termgate/termgate/internal/hoststore"
)

type contextKey string

const userKey contextKey = "user"

// TokenVerifier resolves a console session token to a verified user.
// Implemented by hoststore.Client.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*hoststore.User, error)
}

// Auth validates the console session token before a request reaches the
// bridge or the SFTP surface. The token travels in the Authorization header
// or, for WebSocket upgrades (browsers cannot set custom headers there), in
// the "token" query parameter.
func Auth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				token = r.URL.Query().Get("token")
			}
			if token == "" {
				http.Error(w, "missing session token", http.StatusUnauthorized)
				return
			}

			user, err := verifier.VerifyToken(r.Context(), token)
			if err != nil {
				log.Debug().Err(err).Msg("auth: token verification failed")
				http.Error(w, "invalid session token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			ctx = bridge.WithUserID(ctx, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUser returns the verified user from the request context, or nil.
func GetUser(ctx context.Context) *hoststore.User {
	if user, ok := ctx.Value(userKey).(*hoststore.User); ok {
		return user
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
