package license_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/technosupport/ts-licensing/internal/audit"
	"github.com/technosupport/ts-licensing/internal/data"
)

// memStore is an in-memory data.Tx backend. Transactions are fully
// serialized and work on a copy that is swapped in on commit, so a failed
// transaction leaves no trace.
type memStore struct {
	mu    sync.Mutex
	state *memState
	clock time.Time
}

type memState struct {
	brands      map[uuid.UUID]data.Brand
	products    map[uuid.UUID]data.Product
	keys        map[uuid.UUID]data.LicenseKey
	licenses    []data.License
	activations []data.Activation
}

func newMemStore() *memStore {
	return &memStore{
		state: &memState{
			brands:   map[uuid.UUID]data.Brand{},
			products: map[uuid.UUID]data.Product{},
			keys:     map[uuid.UUID]data.LicenseKey{},
		},
		clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		brands:      make(map[uuid.UUID]data.Brand, len(s.brands)),
		products:    make(map[uuid.UUID]data.Product, len(s.products)),
		keys:        make(map[uuid.UUID]data.LicenseKey, len(s.keys)),
		licenses:    append([]data.License(nil), s.licenses...),
		activations: append([]data.Activation(nil), s.activations...),
	}
	for k, v := range s.brands {
		c.brands[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.keys {
		c.keys[k] = v
	}
	return c
}

func (m *memStore) InTx(ctx context.Context, fn func(data.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memTx{store: m, st: m.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	m.state = tx.st
	return nil
}

func (m *memStore) ReadTx(ctx context.Context, fn func(data.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&memTx{store: m, st: m.state.clone()})
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Millisecond)
	return m.clock
}

func (m *memStore) addBrand(name, slug string) *data.Brand {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := data.Brand{ID: uuid.New(), Name: name, Slug: slug, APIKeyHash: "x", CreatedAt: m.tick()}
	m.state.brands[b.ID] = b
	return &b
}

func (m *memStore) addProduct(brand *data.Brand, name, slug string, limit *int) *data.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := data.Product{ID: uuid.New(), BrandID: brand.ID, BrandName: brand.Name, Name: name, Slug: slug, DefaultSeatLimit: limit, CreatedAt: m.tick()}
	m.state.products[p.ID] = p
	return &p
}

func (m *memStore) keyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.keys)
}

func (m *memStore) activeCount(licenseID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.state.activations {
		if a.LicenseID == licenseID && a.DeactivatedAt == nil {
			n++
		}
	}
	return n
}

type memTx struct {
	store *memStore
	st    *memState
}

var _ data.Tx = (*memTx)(nil)

func (t *memTx) GetBrandByID(_ context.Context, id uuid.UUID) (*data.Brand, error) {
	b, ok := t.st.brands[id]
	if !ok {
		return nil, data.ErrRecordNotFound
	}
	return &b, nil
}

func (t *memTx) GetBrandBySlug(_ context.Context, slug string) (*data.Brand, error) {
	for _, b := range t.st.brands {
		if b.Slug == slug {
			return &b, nil
		}
	}
	return nil, data.ErrRecordNotFound
}

func (t *memTx) GetProductBySlug(_ context.Context, brandID uuid.UUID, slug string) (*data.Product, error) {
	for _, p := range t.st.products {
		if p.BrandID == brandID && p.Slug == slug {
			return &p, nil
		}
	}
	return nil, data.ErrRecordNotFound
}

func (t *memTx) CreateLicenseKey(_ context.Context, k *data.LicenseKey) error {
	for _, existing := range t.st.keys {
		if existing.Key == k.Key {
			return &data.DuplicateError{Constraint: data.ConstraintLicenseKeyUnique}
		}
	}
	if k.ID == uuid.Nil {
		k.ID = uuid.New()
	}
	k.CreatedAt = t.store.tick()
	k.UpdatedAt = k.CreatedAt
	t.st.keys[k.ID] = *k
	return nil
}

func (t *memTx) GetLicenseKey(_ context.Context, key string) (*data.LicenseKey, error) {
	for _, k := range t.st.keys {
		if k.Key == key {
			return &k, nil
		}
	}
	return nil, data.ErrRecordNotFound
}

func (t *memTx) CreateLicense(_ context.Context, l *data.License) error {
	for _, existing := range t.st.licenses {
		if existing.LicenseKeyID == l.LicenseKeyID && existing.ProductID == l.ProductID {
			return &data.DuplicateError{Constraint: data.ConstraintLicenseUnique}
		}
	}
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.CreatedAt = t.store.tick()
	l.UpdatedAt = l.CreatedAt
	t.st.licenses = append(t.st.licenses, data.License{
		ID: l.ID, LicenseKeyID: l.LicenseKeyID, ProductID: l.ProductID, Status: l.Status,
		ExpiresAt: l.ExpiresAt, SeatLimit: l.SeatLimit, CreatedAt: l.CreatedAt, UpdatedAt: l.UpdatedAt,
	})
	return nil
}

func (t *memTx) LicenseExists(_ context.Context, licenseKeyID, productID uuid.UUID) (bool, error) {
	for _, l := range t.st.licenses {
		if l.LicenseKeyID == licenseKeyID && l.ProductID == productID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) view(raw data.License, withSeats bool) data.License {
	k := t.st.keys[raw.LicenseKeyID]
	p := t.st.products[raw.ProductID]
	raw.Key = k.Key
	raw.CustomerEmail = k.CustomerEmail
	raw.BrandID = k.BrandID
	raw.Product = p
	raw.Product.BrandName = t.st.brands[p.BrandID].Name
	raw.SeatsUsed = 0
	if withSeats {
		n, _ := t.CountActiveActivations(context.Background(), raw.ID)
		raw.SeatsUsed = n
	}
	return raw
}

func (t *memTx) GetLicense(_ context.Context, id uuid.UUID) (*data.License, error) {
	for _, l := range t.st.licenses {
		if l.ID == id {
			v := t.view(l, true)
			return &v, nil
		}
	}
	return nil, data.ErrRecordNotFound
}

func (t *memTx) LockLicense(_ context.Context, id uuid.UUID) (*data.License, error) {
	for _, l := range t.st.licenses {
		if l.ID == id {
			v := t.view(l, false)
			return &v, nil
		}
	}
	return nil, data.ErrRecordNotFound
}

func (t *memTx) UpdateLicense(_ context.Context, l *data.License) error {
	for i := range t.st.licenses {
		if t.st.licenses[i].ID == l.ID {
			t.st.licenses[i].Status = l.Status
			t.st.licenses[i].ExpiresAt = l.ExpiresAt
			t.st.licenses[i].UpdatedAt = t.store.tick()
			l.UpdatedAt = t.st.licenses[i].UpdatedAt
			return nil
		}
	}
	return data.ErrRecordNotFound
}

func (t *memTx) sorted(match func(data.License) bool) []data.License {
	var out []data.License
	for _, l := range t.st.licenses {
		if match(l) {
			out = append(out, t.view(l, true))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (t *memTx) ListLicensesByKey(_ context.Context, licenseKeyID uuid.UUID) ([]data.License, error) {
	return t.sorted(func(l data.License) bool { return l.LicenseKeyID == licenseKeyID }), nil
}

func (t *memTx) ListLicensesByEmail(_ context.Context, email string) ([]data.License, error) {
	return t.sorted(func(l data.License) bool { return t.st.keys[l.LicenseKeyID].CustomerEmail == email }), nil
}

func (t *memTx) activationView(a data.Activation) *data.Activation {
	for _, l := range t.st.licenses {
		if l.ID == a.LicenseID {
			v := t.view(l, false)
			a.LicenseKey = v.Key
			a.BrandID = v.BrandID
			a.ProductName = v.Product.Name
		}
	}
	return &a
}

func (t *memTx) FindActiveActivation(_ context.Context, licenseID uuid.UUID, instance string) (*data.Activation, error) {
	for _, a := range t.st.activations {
		if a.LicenseID == licenseID && a.InstanceIdentifier == instance && a.DeactivatedAt == nil {
			return t.activationView(a), nil
		}
	}
	return nil, data.ErrRecordNotFound
}

func (t *memTx) CountActiveActivations(_ context.Context, licenseID uuid.UUID) (int, error) {
	n := 0
	for _, a := range t.st.activations {
		if a.LicenseID == licenseID && a.DeactivatedAt == nil {
			n++
		}
	}
	return n, nil
}

func (t *memTx) CreateActivation(_ context.Context, a *data.Activation) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	t.st.activations = append(t.st.activations, *a)
	return nil
}

func (t *memTx) LockActivation(_ context.Context, id uuid.UUID) (*data.Activation, error) {
	for _, a := range t.st.activations {
		if a.ID == id {
			return t.activationView(a), nil
		}
	}
	return nil, data.ErrRecordNotFound
}

func (t *memTx) DeactivateActivation(_ context.Context, id uuid.UUID, at time.Time) error {
	for i := range t.st.activations {
		if t.st.activations[i].ID == id && t.st.activations[i].DeactivatedAt == nil {
			t.st.activations[i].DeactivatedAt = &at
		}
	}
	return nil
}

// captureRecorder keeps every audit entry it is given.
type captureRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *captureRecorder) Record(_ context.Context, e audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *captureRecorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

// countingObserver tallies results per label.
type countingObserver struct {
	mu            sync.Mutex
	activations   map[string]int
	deactivations map[string]int
	created       int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{activations: map[string]int{}, deactivations: map[string]int{}}
}

func (o *countingObserver) ObserveActivation(result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.activations[result]++
}

func (o *countingObserver) ObserveDeactivation(result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deactivations[result]++
}

func (o *countingObserver) ObserveLicenseCreated() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.created++
}

func intPtr(n int) *int { return &n }

func timePtr(t time.Time) *time.Time { return &t }
