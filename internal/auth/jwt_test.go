package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tulumbak/courierhook/internal/config"
	"github.com/tulumbak/courierhook/internal/ratelimit"
)

func newTestService() *JWTService {
	return NewJWTService(config.AdminConfig{
		JWTSecret: "test-admin-secret-with-enough-length",
		JWTIssuer: "courierhook",
	})
}

func TestJWTService_RoundTrip(t *testing.T) {
	s := newTestService()

	token, err := s.GenerateToken("op-1", "Dispatch Ops", time.Hour)
	require.NoError(t, err)

	op, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "op-1", op.Subject)
	assert.Equal(t, "Dispatch Ops", op.Name)
}

func TestJWTService_Expired(t *testing.T) {
	s := newTestService()

	token, err := s.GenerateToken("op-1", "", -time.Minute)
	require.NoError(t, err)

	_, err = s.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTService_WrongSecret(t *testing.T) {
	other := NewJWTService(config.AdminConfig{
		JWTSecret: "a-completely-different-signing-secret",
		JWTIssuer: "courierhook",
	})

	token, err := other.GenerateToken("op-1", "", time.Hour)
	require.NoError(t, err)

	_, err = newTestService().ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_WrongIssuer(t *testing.T) {
	other := NewJWTService(config.AdminConfig{
		JWTSecret: "test-admin-secret-with-enough-length",
		JWTIssuer: "someone-else",
	})

	token, err := other.GenerateToken("op-1", "", time.Hour)
	require.NoError(t, err)

	_, err = newTestService().ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidIssuer)
}

func TestJWTService_Garbage(t *testing.T) {
	_, err := newTestService().ValidateToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRequireOperator(t *testing.T) {
	s := newTestService()

	var gotOperator *Operator
	handler := RequireOperator(s, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOperator = OperatorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("no token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/webhook-sources", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bad token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/webhook-sources", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := s.GenerateToken("op-9", "Ops", time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/admin/webhook-sources", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, gotOperator)
		assert.Equal(t, "op-9", gotOperator.Subject)
	})
}

func TestRequireOperator_RateLimitsPerOperator(t *testing.T) {
	s := newTestService()
	limiter := ratelimit.NewLimiter(config.RateLimitRule{Max: 2, Window: time.Minute})
	defer limiter.Stop()

	handler := RequireOperator(s, limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	token, err := s.GenerateToken("op-limited", "", time.Hour)
	require.NoError(t, err)

	call := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/webhook-sources", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call())
	assert.Equal(t, http.StatusOK, call())
	assert.Equal(t, http.StatusTooManyRequests, call())
}
