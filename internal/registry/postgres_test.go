package registry

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresEnsureSchema(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS safenet_devices`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreate(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO safenet_devices \(id, name, address, public_key\)`).
		WithArgs(sqlmock.AnyArg(), "phone", "10.8.0.2", "pub").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	d := &Device{Name: "phone", Address: "10.8.0.2", PublicKey: "pub"}
	require.NoError(t, store.Create(context.Background(), d))
	assert.NotEmpty(t, d.ID)
	assert.Equal(t, created, d.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`INSERT INTO safenet_devices`).
		WillReturnError(&pq.Error{Code: "23505"})

	err := store.Create(context.Background(), &Device{Name: "phone", Address: "10.8.0.2", PublicKey: "pub"})
	assert.ErrorIs(t, err, ErrExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateOtherErrorIsWrapped(t *testing.T) {
	store, mock := newMockStore(t)
	boom := errors.New("connection reset")
	mock.ExpectQuery(`INSERT INTO safenet_devices`).WillReturnError(boom)

	err := store.Create(context.Background(), &Device{Name: "phone", Address: "10.8.0.2", PublicKey: "pub"})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrExists)
}

func TestPostgresGet(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM safenet_devices\s+WHERE name = \$1`).
		WithArgs("phone").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "address", "public_key", "created_at"}).
			AddRow("id-1", "phone", "10.8.0.2", "pub", now))
	mock.ExpectQuery(`FROM safenet_devices\s+WHERE name = \$1`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	d, err := store.Get(context.Background(), "phone")
	require.NoError(t, err)
	assert.Equal(t, Device{ID: "id-1", Name: "phone", Address: "10.8.0.2", PublicKey: "pub", CreatedAt: now}, *d)

	_, err = store.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListAndAddresses(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`ORDER BY created_at, name`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "address", "public_key", "created_at"}).
			AddRow("id-1", "phone", "10.8.0.2", "p1", now).
			AddRow("id-2", "laptop", "10.8.0.3", "p2", now.Add(time.Second)))
	mock.ExpectQuery(`SELECT host\(address\) FROM safenet_devices`).
		WillReturnRows(sqlmock.NewRows([]string{"host"}).AddRow("10.8.0.2").AddRow("10.8.0.3"))

	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "laptop", list[1].Name)

	addrs, err := store.Addresses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"10.8.0.2", "10.8.0.3"}, addrs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDelete(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`DELETE FROM safenet_devices WHERE name = \$1`).
		WithArgs("phone").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM safenet_devices WHERE name = \$1`).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Delete(context.Background(), "phone"))
	assert.ErrorIs(t, store.Delete(context.Background(), "ghost"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoresSatisfyInterface(t *testing.T) {
	var _ Store = NewMemoryStore()
	var _ Store = (*PostgresStore)(nil)
}
