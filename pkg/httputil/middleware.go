package httputil

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/medflow/medflow-clinic/pkg/actor"
	"github.com/medflow/medflow-clinic/pkg/auth"
	"github.com/medflow/medflow-clinic/pkg/errors"
	"github.com/medflow/medflow-clinic/pkg/logger"
	"github.com/medflow/medflow-clinic/pkg/tenant"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
)

// TokenValidator validates bearer tokens
type TokenValidator interface {
	ValidateAccessToken(token string) (*auth.Claims, error)
}

// RequestID middleware adds a request ID to each request
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logger middleware logs HTTP requests
func Logger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			// Auth runs further down the chain and stores the actor on a
			// derived context, so read it back through this holder.
			holder := &actorHolder{}
			next.ServeHTTP(wrapped, r.WithContext(context.WithValue(r.Context(), actorHolderKey{}, holder)))

			event := log.Info()
			if wrapped.statusCode >= http.StatusInternalServerError {
				event = log.Error()
			}

			event.
				Str("request_id", GetRequestID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapped.statusCode).
				Dur("duration", time.Since(start)).
				Str("user_id", holder.userID).
				Str("tenant_id", holder.tenantID).
				Str("remote_addr", r.RemoteAddr).
				Msg("HTTP request")
		})
	}
}

type actorHolderKey struct{}

type actorHolder struct {
	userID   string
	tenantID string
}

// Recoverer middleware recovers from panics
func Recoverer(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error().
						Interface("panic", err).
						Str("request_id", GetRequestID(r.Context())).
						Str("path", r.URL.Path).
						Msg("panic recovered")

					Error(w, errors.Internal("internal server error"))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// Authenticate validates the bearer token and puts the actor and its tenant
// on the request context. Requests without a valid token get 401.
func Authenticate(tokens TokenValidator, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				Error(w, errors.Unauthorized("missing authorization header"))
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				Error(w, errors.Unauthorized("invalid authorization header format"))
				return
			}

			claims, err := tokens.ValidateAccessToken(token)
			if err != nil {
				log.Debug().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("token validation failed")
				Error(w, err)
				return
			}

			if holder, ok := r.Context().Value(actorHolderKey{}).(*actorHolder); ok {
				holder.userID = claims.UserID
				holder.tenantID = claims.TenantID
			}

			ctx := tenant.WithTenantContext(r.Context(), claims.TenantID, claims.FacilityID)
			ctx = actor.WithActor(ctx, claims.Actor())

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission rejects actors lacking the permission with 403
func RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a := actor.FromContext(r.Context())
			if a == nil {
				Error(w, errors.Unauthorized("authentication required"))
				return
			}
			if !a.Can(permission) {
				Error(w, errors.Forbidden("missing permission "+permission))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
