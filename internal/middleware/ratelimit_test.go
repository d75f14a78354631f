package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/technosupport/ts-licensing/internal/data"
	"github.com/technosupport/ts-licensing/internal/middleware"
	"github.com/technosupport/ts-licensing/internal/ratelimit"
)

var ok200 = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func newRedisLimiter(t *testing.T) (*miniredis.Miniredis, *ratelimit.Limiter) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, ratelimit.NewLimiter(rdb, "salt")
}

func TestRateLimit_PublicIP(t *testing.T) {
	_, limiter := newRedisLimiter(t)
	mw := middleware.NewRateLimitMiddleware(limiter, middleware.Config{
		Public: ratelimit.LimitConfig{Rate: 2, Window: time.Minute},
	})
	handler := mw.Public()(ok200)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/licenses/X/status", nil)
	req.RemoteAddr = "1.2.3.4:1234"

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")

	other := httptest.NewRequest(http.MethodGet, "/api/v1/licenses/X/status", nil)
	other.RemoteAddr = "5.6.7.8:1234"
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, other)
	assert.Equal(t, http.StatusOK, w.Code, "other clients keep their own window")
}

func TestRateLimit_Brand(t *testing.T) {
	_, limiter := newRedisLimiter(t)
	mw := middleware.NewRateLimitMiddleware(limiter, middleware.Config{
		Brand: ratelimit.LimitConfig{Rate: 1, Window: time.Minute},
	})
	handler := mw.Brand()(ok200)

	acme := &data.Brand{ID: uuid.New(), Slug: "acme"}
	globex := &data.Brand{ID: uuid.New(), Slug: "globex"}

	send := func(b *data.Brand) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/brands/licenses", nil)
		req = req.WithContext(middleware.WithBrand(req.Context(), b))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send(acme))
	assert.Equal(t, http.StatusTooManyRequests, send(acme))
	assert.Equal(t, http.StatusOK, send(globex))
}

func TestRateLimit_RedisDownFailsOpen(t *testing.T) {
	mr, limiter := newRedisLimiter(t)
	mr.Close()

	mw := middleware.NewRateLimitMiddleware(limiter, middleware.Config{
		Public: ratelimit.LimitConfig{Rate: 1, Window: time.Minute},
	})
	handler := mw.Public()(ok200)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimit_InProcessFallback(t *testing.T) {
	mw := middleware.NewRateLimitMiddleware(nil, middleware.Config{
		Public: ratelimit.LimitConfig{Rate: 1, Window: time.Minute},
	})
	handler := mw.Public()(ok200)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "9.9.9.9:1000"

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
}
