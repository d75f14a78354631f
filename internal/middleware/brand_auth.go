package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/technosupport/ts-licensing/internal/auth"
	"github.com/technosupport/ts-licensing/internal/data"
)

const APIKeyHeader = "X-API-Key"

// BrandResolver turns a presented credential into a brand.
type BrandResolver interface {
	ResolveAPIKey(ctx context.Context, apiKey string) (*data.Brand, error)
	ResolveBearer(ctx context.Context, token string) (*data.Brand, error)
}

type BrandAuth struct {
	resolver BrandResolver
}

func NewBrandAuth(r BrandResolver) *BrandAuth {
	return &BrandAuth{resolver: r}
}

// Middleware authenticates the brand through X-API-Key or a Bearer token and
// injects it into the request context.
func (m *BrandAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			brand *data.Brand
			err   error
		)

		if apiKey := r.Header.Get(APIKeyHeader); apiKey != "" {
			brand, err = m.resolver.ResolveAPIKey(r.Context(), apiKey)
		} else if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				writeError(w, http.StatusUnauthorized, "AUTHENTICATION_FAILED", "Malformed Authorization header")
				return
			}
			brand, err = m.resolver.ResolveBearer(r.Context(), parts[1])
		} else {
			writeError(w, http.StatusUnauthorized, "AUTHENTICATION_FAILED", "Missing brand credentials")
			return
		}

		if err != nil {
			if !errors.Is(err, auth.ErrUnauthenticated) {
				log.Printf("Brand auth error: %v", err)
			}
			writeError(w, http.StatusUnauthorized, "AUTHENTICATION_FAILED", "Invalid brand credentials")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithBrand(r.Context(), brand)))
	})
}
