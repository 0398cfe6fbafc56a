package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/graintrace/core/pkg/ledger"
)

func newMockPostgres(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS blocks").WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := NewPostgresStore(db)
	require.NoError(t, err)
	return s, mock
}

// Payload columns must be plain TEXT: JSONB normalizes numeric literals
// on output (1e2 becomes 100), and the block digest covers the literal
// as submitted, so a JSONB round trip would fail verification on an
// untampered block. A live-server literal round-trip cannot run under
// sqlmock; this pins the DDL instead.
func TestPostgresMigrationStoresPayloadsAsText(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS blocks[\s\S]*event_data TEXT,[\s\S]*content_refs TEXT,`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err = NewPostgresStore(db)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertGenesis(t *testing.T) {
	s, mock := newMockPostgres(t)
	ctx := context.Background()

	b := testBlock("BATCH-1", ledger.EventSowing, "", time.Now().UTC())

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs("BATCH-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT current_hash FROM blocks").
		WithArgs("BATCH-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO blocks").
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(1)))
	mock.ExpectCommit()

	saved, err := s.Insert(ctx, b, "")
	require.NoError(t, err)
	require.Equal(t, int64(1), saved.Seq)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertHeadConflict(t *testing.T) {
	s, mock := newMockPostgres(t)
	ctx := context.Background()

	b := testBlock("BATCH-1", ledger.EventTillering, "stale-head", time.Now().UTC())

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs("BATCH-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT current_hash FROM blocks").
		WithArgs("BATCH-1").
		WillReturnRows(sqlmock.NewRows([]string{"current_hash"}).AddRow("actual-head"))
	mock.ExpectRollback()

	_, err := s.Insert(ctx, b, "stale-head")
	require.ErrorIs(t, err, ledger.ErrHeadConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindLatestNone(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectQuery("SELECT (.+) FROM blocks WHERE stream_id").
		WithArgs("BATCH-9").
		WillReturnError(sql.ErrNoRows)

	b, err := s.FindLatest(context.Background(), "BATCH-9")
	require.NoError(t, err)
	require.Nil(t, b)
	require.NoError(t, mock.ExpectationsWereMet())
}
