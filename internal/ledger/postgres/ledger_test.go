package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manojdandy/orders-inventory/pkg/database"
	apperrors "github.com/manojdandy/orders-inventory/pkg/errors"
)

func setupLedger(t *testing.T) (*Ledger, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	return NewLedger(mock), mock
}

var snapshotColumns = []string{"product_id", "quantity", "version"}

func TestLedger_Get_Success(t *testing.T) {
	l, mock := setupLedger(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM stock_ledger").
		WithArgs("prod-1").
		WillReturnRows(pgxmock.NewRows(snapshotColumns).AddRow("prod-1", 10, int64(3)))

	s, err := l.Get(context.Background(), "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 10, s.Quantity)
	assert.Equal(t, int64(3), s.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_Get_NotFound(t *testing.T) {
	l, mock := setupLedger(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM stock_ledger").
		WithArgs("prod-x").
		WillReturnError(pgx.ErrNoRows)

	_, err := l.Get(context.Background(), "prod-x")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_TryReserve_Success(t *testing.T) {
	l, mock := setupLedger(t)
	defer mock.Close()

	mock.ExpectQuery("UPDATE stock_ledger").
		WithArgs("prod-1", 3).
		WillReturnRows(pgxmock.NewRows(snapshotColumns).AddRow("prod-1", 7, int64(4)))

	s, err := l.TryReserve(context.Background(), "prod-1", 3)
	require.NoError(t, err)
	assert.Equal(t, 7, s.Quantity)
	assert.Equal(t, int64(4), s.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_TryReserve_Insufficient(t *testing.T) {
	l, mock := setupLedger(t)
	defer mock.Close()

	// Guarded UPDATE matches no row; the follow-up read classifies the miss.
	mock.ExpectQuery("UPDATE stock_ledger").
		WithArgs("prod-1", 5).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT .+ FROM stock_ledger").
		WithArgs("prod-1").
		WillReturnRows(pgxmock.NewRows(snapshotColumns).AddRow("prod-1", 2, int64(9)))

	_, err := l.TryReserve(context.Background(), "prod-1", 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)
	assert.Contains(t, err.Error(), "available 2, requested 5")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_TryReserve_UnknownProduct(t *testing.T) {
	l, mock := setupLedger(t)
	defer mock.Close()

	mock.ExpectQuery("UPDATE stock_ledger").
		WithArgs("prod-x", 1).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT .+ FROM stock_ledger").
		WithArgs("prod-x").
		WillReturnError(pgx.ErrNoRows)

	_, err := l.TryReserve(context.Background(), "prod-x", 1)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_TryReserveVersion_Success(t *testing.T) {
	l, mock := setupLedger(t)
	defer mock.Close()

	mock.ExpectQuery("UPDATE stock_ledger").
		WithArgs("prod-1", 2, int64(5)).
		WillReturnRows(pgxmock.NewRows(snapshotColumns).AddRow("prod-1", 8, int64(6)))

	s, err := l.TryReserveVersion(context.Background(), "prod-1", 2, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(6), s.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_TryReserveVersion_StaleVersion(t *testing.T) {
	l, mock := setupLedger(t)
	defer mock.Close()

	mock.ExpectQuery("UPDATE stock_ledger").
		WithArgs("prod-1", 2, int64(5)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT .+ FROM stock_ledger").
		WithArgs("prod-1").
		WillReturnRows(pgxmock.NewRows(snapshotColumns).AddRow("prod-1", 8, int64(6)))

	_, err := l.TryReserveVersion(context.Background(), "prod-1", 2, 5)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_TryReserveVersion_InsufficientAtCurrentVersion(t *testing.T) {
	l, mock := setupLedger(t)
	defer mock.Close()

	mock.ExpectQuery("UPDATE stock_ledger").
		WithArgs("prod-1", 9, int64(6)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT .+ FROM stock_ledger").
		WithArgs("prod-1").
		WillReturnRows(pgxmock.NewRows(snapshotColumns).AddRow("prod-1", 3, int64(6)))

	_, err := l.TryReserveVersion(context.Background(), "prod-1", 9, 6)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_ReserveLocked_Success(t *testing.T) {
	l, mock := setupLedger(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout").
		WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectQuery("SELECT quantity, version FROM stock_ledger .+ FOR UPDATE").
		WithArgs("prod-1").
		WillReturnRows(pgxmock.NewRows([]string{"quantity", "version"}).AddRow(10, int64(2)))
	mock.ExpectQuery("UPDATE stock_ledger").
		WithArgs("prod-1", 4).
		WillReturnRows(pgxmock.NewRows(snapshotColumns).AddRow("prod-1", 6, int64(3)))
	mock.ExpectCommit()

	s, err := l.ReserveLocked(context.Background(), "prod-1", 4, 500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 6, s.Quantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_ReserveLocked_LockTimeout(t *testing.T) {
	l, mock := setupLedger(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout").
		WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectQuery("SELECT quantity, version FROM stock_ledger .+ FOR UPDATE").
		WithArgs("prod-1").
		WillReturnError(&pgconn.PgError{Code: "55P03", Message: "canceling statement due to lock timeout"})
	mock.ExpectRollback()

	_, err := l.ReserveLocked(context.Background(), "prod-1", 1, 100*time.Millisecond)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_ReserveLocked_Insufficient_RollsBack(t *testing.T) {
	l, mock := setupLedger(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout").
		WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectQuery("SELECT quantity, version FROM stock_ledger .+ FOR UPDATE").
		WithArgs("prod-1").
		WillReturnRows(pgxmock.NewRows([]string{"quantity", "version"}).AddRow(2, int64(2)))
	mock.ExpectRollback()

	_, err := l.ReserveLocked(context.Background(), "prod-1", 4, 500*time.Millisecond)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_Release_Success(t *testing.T) {
	l, mock := setupLedger(t)
	defer mock.Close()

	mock.ExpectQuery("UPDATE stock_ledger").
		WithArgs("prod-1", 4).
		WillReturnRows(pgxmock.NewRows(snapshotColumns).AddRow("prod-1", 10, int64(5)))

	s, err := l.Release(context.Background(), "prod-1", 4)
	require.NoError(t, err)
	assert.Equal(t, 10, s.Quantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_Release_NotFound(t *testing.T) {
	l, mock := setupLedger(t)
	defer mock.Close()

	mock.ExpectQuery("UPDATE stock_ledger").
		WithArgs("prod-x", 4).
		WillReturnError(pgx.ErrNoRows)

	_, err := l.Release(context.Background(), "prod-x", 4)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_ApplyDelta_RefusesNegative(t *testing.T) {
	l, mock := setupLedger(t)
	defer mock.Close()

	mock.ExpectQuery("UPDATE stock_ledger").
		WithArgs("prod-1", -5).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT .+ FROM stock_ledger").
		WithArgs("prod-1").
		WillReturnRows(pgxmock.NewRows(snapshotColumns).AddRow("prod-1", 3, int64(7)))

	_, err := l.ApplyDelta(context.Background(), "prod-1", -5)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_Provision_Success(t *testing.T) {
	l, mock := setupLedger(t)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO stock_ledger").
		WithArgs("prod-1", 100).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, l.Provision(context.Background(), "prod-1", 100))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_Provision_AlreadyExists(t *testing.T) {
	l, mock := setupLedger(t)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO stock_ledger").
		WithArgs("prod-1", 100).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := l.Provision(context.Background(), "prod-1", 100)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_ListLowStock(t *testing.T) {
	l, mock := setupLedger(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT .+ FROM stock_ledger").
		WithArgs(10, 20, 0).
		WillReturnRows(pgxmock.NewRows(snapshotColumns).
			AddRow("prod-2", 0, int64(12)).
			AddRow("prod-1", 3, int64(7)))

	snapshots, total, err := l.ListLowStock(context.Background(), 10, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, snapshots, 2)
	assert.Equal(t, "prod-2", snapshots[0].ProductID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_ListLowStock_QueryError(t *testing.T) {
	l, mock := setupLedger(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(10).
		WillReturnError(errors.New("db down"))

	_, _, err := l.ListLowStock(context.Background(), 10, 20, 0)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
