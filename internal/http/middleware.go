package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/fjod/go_cart/cartsync/internal/service"
	"github.com/fjod/go_cart/cartsync/pkg/logger"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type contextKey string

const identityKey = contextKey("identity")

const SessionHeader = "X-Session-ID"

// Claims are the storefront's access token claims. The subject is the user
// id; sid names the browser session.
type Claims struct {
	SessionID string `json:"sid,omitempty"`
	jwt.StandardClaims
}

// AuthMiddleware resolves the caller's identity. Requests without a token
// are anonymous; a token that does not verify is rejected.
func AuthMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id service.Identity

			if authHeader := r.Header.Get("Authorization"); authHeader != "" {
				parts := strings.Split(authHeader, " ")
				if len(parts) != 2 || parts[0] != "Bearer" {
					respondError(w, http.StatusUnauthorized, "unauthenticated", "invalid Authorization header format")
					return
				}

				claims := &Claims{}
				token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
					if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
						return nil, jwt.ErrSignatureInvalid
					}
					return secret, nil
				})
				if err != nil || !token.Valid || claims.Subject == "" {
					respondError(w, http.StatusUnauthorized, "unauthenticated", "invalid token")
					return
				}
				id = service.Identity{UserID: claims.Subject, SessionID: claims.SessionID}
			}

			if sid := strings.TrimSpace(r.Header.Get(SessionHeader)); sid != "" {
				id.SessionID = sid
			}

			ctx := context.WithValue(r.Context(), identityKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func identityFromContext(ctx context.Context) service.Identity {
	id, _ := ctx.Value(identityKey).(service.Identity)
	return id
}

// RequestLogger logs one line per request with chi's request id.
func RequestLogger(l *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.WithTrace(r.Context(), l).Info("http request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
