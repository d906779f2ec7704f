package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/xpload/voicecore-ai-sub002/internal/apierr"
	"github.com/xpload/voicecore-ai-sub002/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// responseWriter wraps http.ResponseWriter to capture the status code
// for access logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs every admin API request with its outcome.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Base().Info("api request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Int("status", wrapped.statusCode),
			zap.Duration("latency", time.Since(start)),
		)
	})
}

// CORSMiddleware adds permissive CORS headers for admin dashboard access.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Hub-Signature-256, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ValidationMiddleware rejects non-JSON bodies on mutating requests
// before a handler ever decodes one.
func ValidationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
				writeError(w, apierr.New(apierr.Validation, "Content-Type must be application/json"))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type tenantClaims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// contextKey avoids collisions with other packages' context keys.
type contextKey string

const tenantIDContextKey contextKey = "tenant_id"

// JWTAuthMiddleware validates a bearer token signed with signingKey
// and carries its tenant_id claim into the request context, so every
// admin handler downstream can scope its query without re-parsing the
// token (§6 "admin API authenticates per tenant").
func JWTAuthMiddleware(signingKey, issuer string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if signingKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			raw := strings.TrimPrefix(authHeader, "Bearer ")
			if raw == "" || raw == authHeader {
				writeError(w, apierr.New(apierr.Auth, "missing bearer token"))
				return
			}

			claims := &tenantClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(signingKey), nil
			})
			if err != nil || !token.Valid {
				logger.Base().Warn("rejected admin token", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
				writeError(w, apierr.New(apierr.Auth, "invalid or expired token"))
				return
			}
			if issuer != "" && claims.Issuer != issuer {
				writeError(w, apierr.New(apierr.Auth, "unrecognized token issuer"))
				return
			}
			if claims.TenantID == "" {
				writeError(w, apierr.New(apierr.Auth, "token missing tenant_id claim"))
				return
			}

			r = r.WithContext(context.WithValue(r.Context(), tenantIDContextKey, claims.TenantID))
			next.ServeHTTP(w, r)
		})
	}
}

// tenantIDFromContext returns the tenant id a validated bearer token
// carried, if JWTAuthMiddleware ran ahead of this handler.
func tenantIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(tenantIDContextKey).(string)
	return id, ok && id != ""
}

// RateLimitMiddleware enforces a global token-bucket cap on the admin
// API (golang.org/x/time/rate), shedding load before it reaches the
// repository layer (§6 "rate limiting").
func RateLimitMiddleware(rps float64, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeError(w, apierr.New(apierr.Quota, "rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeError renders an apierr.Error (or any error, defaulted to
// internal_invariant) as the JSON envelope every handler in this
// package uses for non-2xx responses.
func writeError(w http.ResponseWriter, err error) {
	kind := apierr.KindOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(kind.HTTPStatus())
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
		"kind":  string(kind),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
