package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestPostgresStorageGetItem(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	store := NewPostgresStorage(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM local_storage WHERE key = $1")).
		WithArgs("cloudbase_device_id").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("abc-123"))

	value, ok, err := store.GetItem(context.Background(), "cloudbase_device_id")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc-123", value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorageGetItemMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	store := NewPostgresStorage(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM local_storage WHERE key = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	_, ok, err := store.GetItem(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorageSetAndRemove(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	store := NewPostgresStorage(db)

	mock.ExpectExec("INSERT INTO local_storage").
		WithArgs("k", "v").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM local_storage WHERE key = $1")).
		WithArgs("k").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.SetItem(context.Background(), "k", "v"))
	require.NoError(t, store.RemoveItem(context.Background(), "k"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorageEnsureSchemaError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	store := NewPostgresStorage(db)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS local_storage").WillReturnError(errors.New("permission denied"))

	err := store.EnsureSchema(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.NoError(t, mock.ExpectationsWereMet())
}
