package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORSMiddleware_AnswersPreflightWithoutCallingNext(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/tenants", nil)
	rec := httptest.NewRecorder()
	CORSMiddleware(next).ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestValidationMiddleware_RejectsNonJSONBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants", nil)
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()

	ValidationMiddleware(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidationMiddleware_AllowsJSONBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tenants", nil)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	ValidationMiddleware(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitMiddleware_ShedsLoadPastBurst(t *testing.T) {
	mw := RateLimitMiddleware(1, 2)(okHandler())

	var codes []int
	for i := 0; i < 4; i++ {
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Equal(t, http.StatusTooManyRequests, codes[2])
	assert.Equal(t, http.StatusTooManyRequests, codes[3])
}

func TestJWTAuthMiddleware_AllowsAllWhenNoSigningKeyConfigured(t *testing.T) {
	mw := JWTAuthMiddleware("", "voicecore")(okHandler())

	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJWTAuthMiddleware_RejectsMissingBearerToken(t *testing.T) {
	mw := JWTAuthMiddleware("secret", "voicecore")(okHandler())

	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTAuthMiddleware_AcceptsValidTokenAndCarriesTenantID(t *testing.T) {
	var gotTenantID string
	var gotOK bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTenantID, gotOK = tenantIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	claims := tenantClaims{
		TenantID: "acme-inc",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "voicecore",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()

	JWTAuthMiddleware("secret", "voicecore")(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, gotOK)
	assert.Equal(t, "acme-inc", gotTenantID)
}

func TestJWTAuthMiddleware_RejectsWrongIssuer(t *testing.T) {
	claims := tenantClaims{
		TenantID:         "acme-inc",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else"},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()

	JWTAuthMiddleware("secret", "voicecore")(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
