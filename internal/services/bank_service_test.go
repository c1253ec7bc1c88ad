package services

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletverify/backend/internal/config"
)

func testBankConfig() *config.BankConfig {
	return &config.BankConfig{
		Currency:        "MXN",
		DefaultConcept:  "Transferencia WhatsApp",
		TwoFAThreshold:  1000,
		TransferTimeout: 10 * time.Second,
	}
}

func transactionRows(id string, amount float64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "payer_wallet_id", "destination_account", "amount", "currency", "concept", "status", "client_tx_id", "created_at"}).
		AddRow(id, "w1", "012345678901234567", amount, "MXN", "Transferencia WhatsApp", "completed", "wa-r1", time.Now().UTC())
}

func TestGetBalanceCreatesWalletLazily(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT balance FROM wallets")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO wallets")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	svc := NewBankService(db, testBankConfig())
	balance, err := svc.GetBalance(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, balance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferDebitsAndRecords(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM transactions")).
		WithArgs("wa-r1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("FROM wallets WHERE user_id = $1 FOR UPDATE")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "balance"}).AddRow("w1", 500.0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE wallets SET balance = balance - $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transactions")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	svc := NewBankService(db, testBankConfig())
	tx, err := svc.Transfer(context.Background(), "u1", 200, "012345678901234567", "", "", "wa-r1")
	require.NoError(t, err)

	assert.Equal(t, 200.0, tx.Amount)
	assert.Equal(t, "MXN", tx.Currency, "currency defaults from config")
	assert.Equal(t, "Transferencia WhatsApp", tx.Concept)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferReplaySameClientTxID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// The existing row is the answer; no wallet lock, no debit.
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM transactions")).
		WithArgs("wa-r1").
		WillReturnRows(transactionRows("tx-original", 200))
	mock.ExpectCommit()

	svc := NewBankService(db, testBankConfig())
	tx, err := svc.Transfer(context.Background(), "u1", 200, "012345678901234567", "", "", "wa-r1")
	require.NoError(t, err)

	assert.Equal(t, "tx-original", tx.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferInsufficientFunds(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM transactions")).
		WithArgs("wa-r1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "balance"}).AddRow("w1", 50.0))
	mock.ExpectRollback()

	svc := NewBankService(db, testBankConfig())
	_, err = svc.Transfer(context.Background(), "u1", 200, "012345678901234567", "", "", "wa-r1")
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferUnknownPayer(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM transactions")).
		WithArgs("wa-r1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "balance"}))
	mock.ExpectRollback()

	svc := NewBankService(db, testBankConfig())
	_, err = svc.Transfer(context.Background(), "ghost", 200, "012345678901234567", "", "", "wa-r1")
	assert.ErrorIs(t, err, ErrPayerNotFound)
}

func TestTransferUniqueViolationIsConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM transactions")).
		WithArgs("wa-r1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "balance"}).AddRow("w1", 500.0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE wallets")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transactions")).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	svc := NewBankService(db, testBankConfig())
	_, err = svc.Transfer(context.Background(), "u1", 200, "012345678901234567", "", "", "wa-r1")
	assert.ErrorIs(t, err, ErrRequestConflict)
}

func TestIs2FARequired(t *testing.T) {
	svc := NewBankService(nil, testBankConfig())

	assert.False(t, svc.Is2FARequired(999.99))
	assert.True(t, svc.Is2FARequired(1000))
	assert.True(t, svc.Is2FARequired(1500))
}
