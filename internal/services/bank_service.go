package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/walletverify/backend/internal/config"
	"github.com/walletverify/backend/internal/models"
)

// Ledger is the funds-movement collaborator the orchestrator calls.
type Ledger interface {
	GetBalance(ctx context.Context, userID string) (float64, error)
	Transfer(ctx context.Context, payerID string, amount float64, destinationAccount, currency, concept, clientTxID string) (*models.Transaction, error)
	Is2FARequired(amount float64) bool
}

// BankService simulates a core banking API over local wallet rows.
// Transfers are idempotent on the client transaction id: a repeated call
// with the same key returns the original Transaction with no new debit.
type BankService struct {
	db    *sql.DB
	cfg   *config.BankConfig
	audit *AuditLogger
}

func NewBankService(db *sql.DB, cfg *config.BankConfig) *BankService {
	return &BankService{
		db:    db,
		cfg:   cfg,
		audit: NewAuditLogger(),
	}
}

// GetBalance returns the wallet balance, lazily creating a zero wallet
// for users that have never transacted.
func (s *BankService) GetBalance(ctx context.Context, userID string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.TransferTimeout)
	defer cancel()

	var balance float64
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM wallets WHERE user_id = $1`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO wallets (id, user_id, balance, currency, updated_at)
			VALUES ($1, $2, 0, $3, $4)
			ON CONFLICT (user_id) DO NOTHING
		`, uuid.NewString(), userID, s.cfg.Currency, time.Now().UTC())
		if err != nil {
			return 0, fmt.Errorf("creating wallet: %w", err)
		}
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying balance: %w", err)
	}
	return balance, nil
}

// Transfer debits the payer wallet and records a Transaction in one
// database transaction of its own.
func (s *BankService) Transfer(ctx context.Context, payerID string, amount float64, destinationAccount, currency, concept, clientTxID string) (*models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.TransferTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback()

	result, err := s.TransferTx(ctx, tx, payerID, amount, destinationAccount, currency, concept, clientTxID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}
	return result, nil
}

// TransferTx is the composable variant running inside the caller's
// transaction, so request-status transitions and the funds movement
// commit atomically.
func (s *BankService) TransferTx(ctx context.Context, tx *sql.Tx, payerID string, amount float64, destinationAccount, currency, concept, clientTxID string) (*models.Transaction, error) {
	if currency == "" {
		currency = s.cfg.Currency
	}
	if concept == "" {
		concept = s.cfg.DefaultConcept
	}

	// Idempotency: an existing row for the key is the answer, unchanged.
	if clientTxID != "" {
		existing, err := s.findByClientTxID(ctx, tx, clientTxID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			log.Printf("[BANK] transfer replay for client_tx_id=%s, returning tx %s", clientTxID, existing.ID)
			return existing, nil
		}
	}

	var walletID string
	var balance float64
	err := tx.QueryRowContext(ctx, `
		SELECT id, balance FROM wallets WHERE user_id = $1 FOR UPDATE
	`, payerID).Scan(&walletID, &balance)
	if err == sql.ErrNoRows {
		return nil, ErrPayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("locking wallet: %w", err)
	}

	if balance < amount {
		return nil, ErrInsufficientFunds
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE wallets SET balance = balance - $1, updated_at = $2 WHERE id = $3
	`, amount, time.Now().UTC(), walletID)
	if err != nil {
		return nil, fmt.Errorf("debiting wallet: %w", err)
	}

	transaction := &models.Transaction{
		ID:                 uuid.NewString(),
		PayerWalletID:      walletID,
		DestinationAccount: destinationAccount,
		Amount:             amount,
		Currency:           currency,
		Concept:            concept,
		Status:             "completed",
		ClientTxID:         clientTxID,
		CreatedAt:          time.Now().UTC(),
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (id, payer_wallet_id, destination_account, amount, currency, concept, status, client_tx_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
	`, transaction.ID, transaction.PayerWalletID, transaction.DestinationAccount,
		transaction.Amount, transaction.Currency, transaction.Concept,
		transaction.Status, transaction.ClientTxID, transaction.CreatedAt)
	if err != nil {
		// Unique violation on client_tx_id: a concurrent caller won the
		// race; the uniqueness constraint is the last line of defense.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrRequestConflict
		}
		return nil, fmt.Errorf("recording transaction: %w", err)
	}

	s.audit.LogTransfer(transaction.ID, walletID, destinationAccount, amount, currency, transaction.Status)
	return transaction, nil
}

// GetTransaction loads a transaction by id.
func (s *BankService) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	var t models.Transaction
	err := s.db.QueryRowContext(ctx, `
		SELECT id, payer_wallet_id, destination_account, amount, currency, concept, status, COALESCE(client_tx_id, ''), created_at
		FROM transactions
		WHERE id = $1
	`, id).Scan(&t.ID, &t.PayerWalletID, &t.DestinationAccount, &t.Amount,
		&t.Currency, &t.Concept, &t.Status, &t.ClientTxID, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying transaction: %w", err)
	}
	return &t, nil
}

// Is2FARequired reports whether the amount crosses the out-of-band
// confirmation threshold. Enforcing the OTP flow is the caller's job.
func (s *BankService) Is2FARequired(amount float64) bool {
	return amount >= s.cfg.TwoFAThreshold
}

func (s *BankService) findByClientTxID(ctx context.Context, tx *sql.Tx, clientTxID string) (*models.Transaction, error) {
	var t models.Transaction
	err := tx.QueryRowContext(ctx, `
		SELECT id, payer_wallet_id, destination_account, amount, currency, concept, status, COALESCE(client_tx_id, ''), created_at
		FROM transactions
		WHERE client_tx_id = $1
	`, clientTxID).Scan(&t.ID, &t.PayerWalletID, &t.DestinationAccount, &t.Amount,
		&t.Currency, &t.Concept, &t.Status, &t.ClientTxID, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying by client_tx_id: %w", err)
	}
	return &t, nil
}
