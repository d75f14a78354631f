package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/technosupport/ts-licensing/internal/data"
	"github.com/technosupport/ts-licensing/internal/tokens"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// BrandLookup loads brands by slug or id.
type BrandLookup interface {
	GetBrandBySlug(ctx context.Context, slug string) (*data.Brand, error)
	GetBrandByID(ctx context.Context, id uuid.UUID) (*data.Brand, error)
}

// TokenValidator verifies brand bearer tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (*tokens.Claims, error)
}

type cachedBrand struct {
	brand    data.Brand
	cachedAt time.Time
}

// Resolver maps a presented credential to a Brand. Successful API key
// checks are cached by key digest for ttl so argon2 runs once per key per
// window.
type Resolver struct {
	brands    BrandLookup
	tokens    TokenValidator
	blacklist TokenBlacklist
	cache     *lru.Cache[string, cachedBrand]
	ttl       time.Duration
}

func NewResolver(brands BrandLookup, tv TokenValidator, bl TokenBlacklist, cacheSize int, ttl time.Duration) *Resolver {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	c, _ := lru.New[string, cachedBrand](cacheSize)
	return &Resolver{brands: brands, tokens: tv, blacklist: bl, cache: c, ttl: ttl}
}

// ResolveAPIKey authenticates an X-API-Key value.
func (r *Resolver) ResolveAPIKey(ctx context.Context, apiKey string) (*data.Brand, error) {
	digest := sha256.Sum256([]byte(apiKey))
	cacheKey := hex.EncodeToString(digest[:])
	if hit, ok := r.cache.Get(cacheKey); ok {
		if time.Since(hit.cachedAt) < r.ttl {
			b := hit.brand
			return &b, nil
		}
		r.cache.Remove(cacheKey)
	}

	slug, ok := SplitAPIKey(apiKey)
	if !ok {
		return nil, ErrUnauthenticated
	}
	brand, err := r.brands.GetBrandBySlug(ctx, slug)
	if errors.Is(err, data.ErrRecordNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("load brand: %w", err)
	}

	match, err := CheckAPIKey(apiKey, brand.APIKeyHash)
	if err != nil {
		log.Printf("Brand %s has an unusable credential hash: %v", brand.Slug, err)
		return nil, ErrUnauthenticated
	}
	if !match {
		return nil, ErrUnauthenticated
	}

	if r.ttl > 0 {
		r.cache.Add(cacheKey, cachedBrand{brand: *brand, cachedAt: time.Now()})
	}
	return brand, nil
}

// ResolveBearer authenticates a brand JWT.
func (r *Resolver) ResolveBearer(ctx context.Context, token string) (*data.Brand, error) {
	if r.tokens == nil {
		return nil, ErrUnauthenticated
	}
	claims, err := r.tokens.ValidateToken(token)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	brandID, err := uuid.Parse(claims.BrandID)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	if r.blacklist != nil {
		revoked, err := r.blacklist.IsBlacklisted(ctx, claims.BrandID, claims.ID)
		if err != nil || revoked {
			// Fail closed.
			return nil, ErrUnauthenticated
		}
	}

	brand, err := r.brands.GetBrandByID(ctx, brandID)
	if errors.Is(err, data.ErrRecordNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("load brand: %w", err)
	}
	if brand.Slug != claims.BrandSlug {
		return nil, ErrUnauthenticated
	}
	return brand, nil
}

// Purge drops every cached credential, e.g. after brand hashes change.
func (r *Resolver) Purge() {
	r.cache.Purge()
}
