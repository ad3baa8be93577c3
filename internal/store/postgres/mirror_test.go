package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/malegislature-crawler/internal/store"
)

func TestPutUpsertsRecord(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mirror, err := NewWithPool(mock, "")
	require.NoError(t, err)

	rec := store.Record{
		Kind:     "hearing",
		Identity: "77",
		Hash:     "abc123",
		Data:     []byte(`{"EventId":77}`),
		SavedAt:  time.Unix(1700000000, 0).UTC(),
	}

	mock.ExpectExec("INSERT INTO entity_records").
		WithArgs(rec.Kind, rec.Hash, rec.Identity, rec.Data, rec.SavedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, mirror.Put(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteRemovesRecord(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mirror, err := NewWithPool(mock, "records")
	require.NoError(t, err)

	mock.ExpectExec("DELETE FROM records").
		WithArgs("committee", "ff00").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, mirror.Delete(context.Background(), "committee", "ff00"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mirror, err := NewWithPool(mock, "records")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS records").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, mirror.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithPoolRejectsBadTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "records; DROP TABLE x")
	require.Error(t, err)
}
