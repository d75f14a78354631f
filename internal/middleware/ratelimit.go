package middleware

import (
	"log"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/httprate"
	"github.com/technosupport/ts-licensing/internal/ratelimit"
)

type Config struct {
	Public ratelimit.LimitConfig `yaml:"public"`
	Brand  ratelimit.LimitConfig `yaml:"brand"`
}

// RateLimitMiddleware counts public traffic per client IP and brand traffic
// per brand. With a nil limiter it falls back to in-process httprate
// counters, which are per replica.
type RateLimitMiddleware struct {
	limiter *ratelimit.Limiter
	config  Config
}

func NewRateLimitMiddleware(l *ratelimit.Limiter, c Config) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: l, config: c}
}

// Public limits key-bearing routes by hashed client IP.
func (m *RateLimitMiddleware) Public() func(http.Handler) http.Handler {
	if m.limiter == nil {
		return httprate.Limit(m.config.Public.Rate, m.config.Public.Window,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(limitExceeded),
		)
	}
	return m.limit(ratelimit.ScopePublicIP, m.config.Public, func(r *http.Request) (string, bool) {
		return m.limiter.HashIP(clientIP(r)), true
	})
}

// Brand limits brand routes per authenticated brand. It must run after
// BrandAuth.
func (m *RateLimitMiddleware) Brand() func(http.Handler) http.Handler {
	brandKey := func(r *http.Request) (string, bool) {
		b, ok := BrandFromContext(r.Context())
		if !ok {
			return "", false
		}
		return b.ID.String(), true
	}
	if m.limiter == nil {
		return httprate.Limit(m.config.Brand.Rate, m.config.Brand.Window,
			httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
				key, _ := brandKey(r)
				return key, nil
			}),
			httprate.WithLimitHandler(limitExceeded),
		)
	}
	return m.limit(ratelimit.ScopeBrand, m.config.Brand, brandKey)
}

func (m *RateLimitMiddleware) limit(scope ratelimit.Scope, cfg ratelimit.LimitConfig, subject func(*http.Request) (string, bool)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sub, ok := subject(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			decision, err := m.limiter.CheckRateLimit(r.Context(), scope, ratelimit.Key(scope, sub), cfg)
			if err != nil {
				// Fail open.
				log.Printf("RateLimit Redis Error (%s, Fail Open): %v", scope, err)
				next.ServeHTTP(w, r)
				return
			}

			writeRateLimitHeaders(w, decision)
			if !decision.Allowed {
				limitExceeded(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func limitExceeded(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Rate limit exceeded")
}

func writeRateLimitHeaders(w http.ResponseWriter, d *ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
	if !d.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter))
	}
}

// clientIP reads RemoteAddr. Proxy headers count only when the router was
// configured to trust them and chi's RealIP rewrote RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
