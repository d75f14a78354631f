package middleware

import (
	"context"

	"github.com/technosupport/ts-licensing/internal/data"
)

type contextKey string

const (
	BrandContextKey contextKey = "brand"
)

// BrandFromContext retrieves the authenticated brand from the context
func BrandFromContext(ctx context.Context) (*data.Brand, bool) {
	val, ok := ctx.Value(BrandContextKey).(*data.Brand)
	return val, ok
}

// WithBrand attaches the authenticated brand to the context
func WithBrand(ctx context.Context, b *data.Brand) context.Context {
	return context.WithValue(ctx, BrandContextKey, b)
}
