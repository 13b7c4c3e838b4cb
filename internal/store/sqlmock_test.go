package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := New(db, DriverPostgres)
	require.NoError(t, err)
	return s, mock
}

func TestRebind(t *testing.T) {
	s, _ := newMockStore(t)
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", s.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite, err := New(nil, DriverSQLite)
	require.NoError(t, err)
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))
}

func TestPostgresSaveRollsBackOnFailure(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, checksum, operator_count, created_at FROM snapshots ORDER BY")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "checksum", "operator_count", "created_at"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO snapshots (id, checksum, operator_count, created_at, payload) VALUES ($1, $2, $3, $4, $5)")).
		WillReturnError(&pgconn.PgError{Code: "23505", Detail: "Key (id) already exists."})
	mock.ExpectRollback()

	_, _, err := s.Save(ctx, []map[string]any{descriptor("A", "m")})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLatest(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	payload := `[
  {
    "properties": {
      "module": "m",
      "parameters": []
    },
    "type": "A"
  }
]`
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, checksum, operator_count, created_at FROM snapshots")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "checksum", "operator_count", "created_at"}).
			AddRow("id-1", Checksum([]byte(payload)), 1, created))
	mock.ExpectQuery(regexp.QuoteMeta("FROM snapshots WHERE id = $1")).
		WithArgs("id-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "checksum", "operator_count", "created_at", "payload"}).
			AddRow("id-1", Checksum([]byte(payload)), 1, created, payload))

	snap, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "id-1", snap.ID)
	require.Len(t, snap.Operators, 1)
	assert.Equal(t, "A", snap.Operators[0]["type"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteMissing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM snapshot_operators WHERE snapshot_id = $1")).
		WithArgs("gone").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM snapshots WHERE id = $1")).
		WithArgs("gone").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.Delete(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConvertDBError(t *testing.T) {
	assert.Nil(t, convertDBError(nil))

	boom := errors.New("boom")
	assert.Equal(t, boom, convertDBError(boom))
	assert.ErrorIs(t, convertDBError(&pgconn.PgError{Code: "23505"}), ErrDuplicate)
	assert.NotErrorIs(t, convertDBError(&pgconn.PgError{Code: "23503"}), ErrDuplicate)
}
