package data_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/technosupport/ts-licensing/internal/data"
)

var licenseCols = []string{
	"id", "license_key_id", "product_id", "status", "expires_at", "seat_limit", "created_at", "updated_at",
	"key", "customer_email", "brand_id",
	"p_id", "p_brand_id", "b_name", "p_name", "p_slug", "p_default_seat_limit", "p_created_at", "p_updated_at",
}

func newMock(t *testing.T) (*data.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return data.NewStore(db), mock
}

func TestInTx_CommitsOnSuccess(t *testing.T) {
	store, mock := newMock(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE activations").WithArgs(sqlmock.AnyArg(), id).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.InTx(context.Background(), func(tx data.Tx) error {
		return tx.DeactivateActivation(context.Background(), id, time.Now())
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_RollsBackOnError(t *testing.T) {
	store, mock := newMock(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(tx data.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockLicense_UsesRowLock(t *testing.T) {
	store, mock := newMock(t)
	id, keyID, productID, brandID := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows(licenseCols).AddRow(
		id.String(), keyID.String(), productID.String(), "valid", nil, nil, now, now,
		"ACME-1", "c@x.com", brandID.String(),
		productID.String(), brandID.String(), "Acme", "Pro", "pro", int64(5), now, now,
	)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE OF l`).WithArgs(id).WillReturnRows(rows)
	mock.ExpectCommit()

	var got *data.License
	err := store.InTx(context.Background(), func(tx data.Tx) error {
		var err error
		got, err = tx.LockLicense(context.Background(), id)
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, data.StatusValid, got.Status)
	assert.Nil(t, got.ExpiresAt)
	assert.Nil(t, got.SeatLimit)
	require.NotNil(t, got.EffectiveSeatLimit())
	assert.Equal(t, 5, *got.EffectiveSeatLimit())
	assert.Equal(t, "Acme", got.Product.BrandName)
}

func TestGetLicense_NotFound(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	q := data.Queries{DB: db}

	mock.ExpectQuery("FROM licenses l").WillReturnRows(sqlmock.NewRows(append(licenseCols, "seats_used")))

	_, err := q.GetLicense(context.Background(), uuid.New())
	assert.ErrorIs(t, err, data.ErrRecordNotFound)
}

func TestListLicensesByEmail_Scans(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	q := data.Queries{DB: db}
	now := time.Now()
	expires := now.Add(time.Hour)

	rows := sqlmock.NewRows(append(licenseCols, "seats_used")).
		AddRow(uuid.NewString(), uuid.NewString(), uuid.NewString(), "suspended", expires, int64(3), now, now,
			"ACME-1", "c@x.com", uuid.NewString(), uuid.NewString(), uuid.NewString(), "Acme", "Pro", "pro", nil, now, now, int64(2)).
		AddRow(uuid.NewString(), uuid.NewString(), uuid.NewString(), "valid", nil, nil, now, now,
			"GLOBEX-1", "c@x.com", uuid.NewString(), uuid.NewString(), uuid.NewString(), "Globex", "Rocket", "rocket", nil, now, now, int64(0))

	mock.ExpectQuery(`WHERE k.customer_email = \$1`).WithArgs("c@x.com").WillReturnRows(rows)

	got, err := q.ListLicensesByEmail(context.Background(), "c@x.com")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, data.StatusSuspended, got[0].Status)
	assert.Equal(t, 2, got[0].SeatsUsed)
	require.NotNil(t, got[0].SeatLimit)
	assert.Equal(t, 3, *got[0].SeatLimit)
	assert.Nil(t, got[1].EffectiveSeatLimit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateLicenseKey_Duplicate(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	q := data.Queries{DB: db}

	mock.ExpectQuery("INSERT INTO license_keys").
		WillReturnError(&pq.Error{Code: "23505", Constraint: data.ConstraintLicenseKeyUnique})

	err := q.CreateLicenseKey(context.Background(), &data.LicenseKey{Key: "ACME-1", BrandID: uuid.New(), CustomerEmail: "c@x.com"})
	assert.ErrorIs(t, err, data.ErrDuplicate)
	assert.True(t, data.IsDuplicate(err, data.ConstraintLicenseKeyUnique))
	assert.False(t, data.IsDuplicate(err, data.ConstraintLicenseUnique))
}

func TestCreateLicense_DefaultsStatus(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	q := data.Queries{DB: db}
	now := time.Now()

	l := &data.License{LicenseKeyID: uuid.New(), ProductID: uuid.New()}
	mock.ExpectQuery("INSERT INTO licenses").
		WithArgs(sqlmock.AnyArg(), l.LicenseKeyID, l.ProductID, data.StatusValid, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	require.NoError(t, q.CreateLicense(context.Background(), l))
	assert.NotEqual(t, uuid.Nil, l.ID)
	assert.Equal(t, now, l.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateActivation_DefaultMetadata(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	q := data.Queries{DB: db}

	a := &data.Activation{LicenseID: uuid.New(), InstanceIdentifier: "site", ActivatedAt: time.Now()}
	mock.ExpectExec("INSERT INTO activations").
		WithArgs(sqlmock.AnyArg(), a.LicenseID, "site", a.ActivatedAt, []byte(`{}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, q.CreateActivation(context.Background(), a))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindActiveActivation(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	q := data.Queries{DB: db}
	licenseID, id := uuid.New(), uuid.New()
	now := time.Now()

	cols := []string{"id", "license_id", "instance_identifier", "activated_at", "deactivated_at", "metadata", "key", "brand_id", "name"}
	mock.ExpectQuery(`a.deactivated_at IS NULL`).WithArgs(licenseID, "site").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(id.String(), licenseID.String(), "site", now, nil, []byte(`{"a":1}`), "ACME-1", uuid.NewString(), "Pro"))

	a, err := q.FindActiveActivation(context.Background(), licenseID, "site")
	require.NoError(t, err)
	assert.Equal(t, id, a.ID)
	assert.True(t, a.IsActive())
	assert.JSONEq(t, `{"a":1}`, string(a.Metadata))
	assert.Equal(t, "Pro", a.ProductName)

	mock.ExpectQuery(`a.deactivated_at IS NULL`).WillReturnRows(sqlmock.NewRows(cols))
	_, err = q.FindActiveActivation(context.Background(), licenseID, "other")
	assert.ErrorIs(t, err, data.ErrRecordNotFound)
}

func TestCountActiveActivations(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	q := data.Queries{DB: db}
	id := uuid.New()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM activations`).WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(4)))

	n, err := q.CountActiveActivations(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestUpsertProduct(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	q := data.Queries{DB: db}
	now := time.Now()
	storedID := uuid.New()
	limit := 5

	mock.ExpectQuery("ON CONFLICT ON CONSTRAINT products_brand_slug_key").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(storedID.String(), now, now))

	p := &data.Product{BrandID: uuid.New(), Name: "Pro", Slug: "pro", DefaultSeatLimit: &limit}
	require.NoError(t, q.UpsertProduct(context.Background(), p))
	assert.Equal(t, storedID, p.ID)
}

func TestParseLicenseStatus(t *testing.T) {
	st, err := data.ParseLicenseStatus("cancelled")
	require.NoError(t, err)
	assert.Equal(t, data.StatusCancelled, st)

	_, err = data.ParseLicenseStatus("expired")
	assert.Error(t, err, "expired is derived, never stored")
}
