package catalog_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/technosupport/ts-licensing/internal/catalog"
	"github.com/technosupport/ts-licensing/internal/data"
)

const hash = "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"

const validCatalog = `
brands:
  - name: Acme
    slug: acme
    api_key_hash: "` + hash + `"
    products:
      - name: Acme Pro
        slug: pro
        default_seat_limit: 3
      - name: Acme Free
        slug: free
  - name: Globex
    slug: globex
    api_key_hash: "` + hash + `"
`

type fakeWriter struct {
	mu       sync.Mutex
	brands   map[string]data.Brand
	products []data.Product
	fail     error
	syncs    int
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{brands: map[string]data.Brand{}}
}

func (f *fakeWriter) InCatalogTx(ctx context.Context, fn func(data.CatalogWriter) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs++
	return fn(f)
}

func (f *fakeWriter) UpsertBrand(_ context.Context, b *data.Brand) error {
	if f.fail != nil {
		return f.fail
	}
	if existing, ok := f.brands[b.Slug]; ok {
		b.ID = existing.ID
	} else {
		b.ID = uuid.New()
	}
	f.brands[b.Slug] = *b
	return nil
}

func (f *fakeWriter) UpsertProduct(_ context.Context, p *data.Product) error {
	f.products = append(f.products, *p)
	return nil
}

func (f *fakeWriter) syncCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.syncs
}

func TestParse_Valid(t *testing.T) {
	f, err := catalog.Parse([]byte(validCatalog))
	require.NoError(t, err)
	require.Len(t, f.Brands, 2)

	pro := f.Brands[0].Products[0]
	require.NotNil(t, pro.DefaultSeatLimit)
	assert.Equal(t, 3, *pro.DefaultSeatLimit)
	assert.Nil(t, f.Brands[0].Products[1].DefaultSeatLimit, "omitted limit means unlimited")
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"missing slug": `
brands:
  - name: Acme
    api_key_hash: "` + hash + `"`,
		"bad slug": `
brands:
  - name: Acme
    slug: "Acme Corp"
    api_key_hash: "` + hash + `"`,
		"plain hash": `
brands:
  - name: Acme
    slug: acme
    api_key_hash: "secret"`,
		"zero seat limit": `
brands:
  - name: Acme
    slug: acme
    api_key_hash: "` + hash + `"
    products:
      - name: Pro
        slug: pro
        default_seat_limit: 0`,
		"duplicate brand": `
brands:
  - {name: A, slug: acme, api_key_hash: "` + hash + `"}
  - {name: B, slug: acme, api_key_hash: "` + hash + `"}`,
		"duplicate product": `
brands:
  - name: Acme
    slug: acme
    api_key_hash: "` + hash + `"
    products:
      - {name: Pro, slug: pro}
      - {name: Pro 2, slug: pro}`,
		"malformed": `brands: [`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := catalog.Parse([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestSync_UpsertsBrandsAndProducts(t *testing.T) {
	f, err := catalog.Parse([]byte(validCatalog))
	require.NoError(t, err)

	w := newFakeWriter()
	res, err := catalog.Sync(context.Background(), w, f)
	require.NoError(t, err)
	assert.Equal(t, catalog.SyncResult{Brands: 2, Products: 2}, res)

	acme := w.brands["acme"]
	for _, p := range w.products {
		assert.Equal(t, acme.ID, p.BrandID)
	}
}

func TestSync_PropagatesError(t *testing.T) {
	f, err := catalog.Parse([]byte(validCatalog))
	require.NoError(t, err)

	w := newFakeWriter()
	w.fail = errors.New("db down")
	_, err = catalog.Sync(context.Background(), w, f)
	assert.ErrorIs(t, err, w.fail)
}

func TestWatcher_ReloadIfChanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validCatalog), 0o600))

	w := newFakeWriter()
	watcher := catalog.NewWatcher(path, w, time.Hour)
	var synced int
	watcher.OnSync = func(catalog.SyncResult) { synced++ }

	require.NoError(t, watcher.Reload(context.Background()))
	require.NoError(t, watcher.ReloadIfChanged(context.Background()))
	assert.Equal(t, 1, w.syncCount(), "unchanged file is not re-synced")

	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))
	require.NoError(t, watcher.ReloadIfChanged(context.Background()))
	assert.Equal(t, 2, w.syncCount())
	assert.Equal(t, 2, synced)
}

func TestWatcher_InvalidFileKeepsState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("brands: [{name: x}]"), 0o600))

	w := newFakeWriter()
	watcher := catalog.NewWatcher(path, w, time.Hour)
	assert.Error(t, watcher.Reload(context.Background()))
	assert.Equal(t, 0, w.syncCount())
}

func TestWatcher_PicksUpWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validCatalog), 0o600))

	w := newFakeWriter()
	watcher := catalog.NewWatcher(path, w, 50*time.Millisecond)
	require.NoError(t, watcher.Reload(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher.Start(ctx)

	later := time.Now().Add(time.Minute)
	require.NoError(t, os.WriteFile(path, []byte(validCatalog), 0o600))
	require.NoError(t, os.Chtimes(path, later, later))

	assert.Eventually(t, func() bool { return w.syncCount() >= 2 }, 2*time.Second, 20*time.Millisecond)
}
