package catalog

import (
	"context"
	"fmt"

	"github.com/technosupport/ts-licensing/internal/data"
)

// Store runs catalog writes in one transaction.
type Store interface {
	InCatalogTx(ctx context.Context, fn func(data.CatalogWriter) error) error
}

type SyncResult struct {
	Brands   int
	Products int
}

// Sync upserts every brand and product of f. Rows missing from f are left
// alone, as are licenses of products whose default seat limit changed.
func Sync(ctx context.Context, store Store, f *File) (SyncResult, error) {
	var res SyncResult
	err := store.InCatalogTx(ctx, func(w data.CatalogWriter) error {
		for _, cb := range f.Brands {
			b := &data.Brand{Name: cb.Name, Slug: cb.Slug, APIKeyHash: cb.APIKeyHash}
			if err := w.UpsertBrand(ctx, b); err != nil {
				return fmt.Errorf("upsert brand %s: %w", cb.Slug, err)
			}
			res.Brands++

			for _, cp := range cb.Products {
				p := &data.Product{
					BrandID:          b.ID,
					Name:             cp.Name,
					Slug:             cp.Slug,
					DefaultSeatLimit: cp.DefaultSeatLimit,
				}
				if err := w.UpsertProduct(ctx, p); err != nil {
					return fmt.Errorf("upsert product %s/%s: %w", cb.Slug, cp.Slug, err)
				}
				res.Products++
			}
		}
		return nil
	})
	if err != nil {
		return SyncResult{}, err
	}
	return res, nil
}
